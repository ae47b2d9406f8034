package extractor

import (
	"context"
	"fmt"
	"time"

	"faceattend/internal/facematch"
)

// Pool bounds concurrent calls to the face service so slow extractions
// cannot exhaust the request-serving goroutines. Slots are a buffered
// channel; acquisition respects context cancellation.
type Pool struct {
	client  *Client
	slots   chan struct{}
	timeout time.Duration
}

// NewPool creates a pool of size workers with a per-call timeout.
func NewPool(client *Client, size int, timeout time.Duration) *Pool {
	if size <= 0 {
		size = 4
	}
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &Pool{
		client:  client,
		slots:   make(chan struct{}, size),
		timeout: timeout,
	}
}

// ExactlyOne runs Client.ExactlyOne inside a pool slot.
func (p *Pool) ExactlyOne(ctx context.Context, image []byte) (facematch.Encoding, error) {
	release, err := p.acquire(ctx)
	if err != nil {
		return nil, err
	}
	defer release()

	callCtx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()
	return p.client.ExactlyOne(callCtx, image)
}

// Extract runs Client.Extract inside a pool slot.
func (p *Pool) Extract(ctx context.Context, image []byte) (*Result, error) {
	release, err := p.acquire(ctx)
	if err != nil {
		return nil, err
	}
	defer release()

	callCtx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()
	return p.client.Extract(callCtx, image)
}

func (p *Pool) acquire(ctx context.Context) (func(), error) {
	select {
	case p.slots <- struct{}{}:
		return func() { <-p.slots }, nil
	case <-ctx.Done():
		return nil, fmt.Errorf("extractor: waiting for worker slot: %w", ctx.Err())
	}
}
