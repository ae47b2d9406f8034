package queue

import (
	"context"
	"testing"
	"time"
)

func TestInMemoryPublishConsume(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	q := NewInMemory(4)
	msgs, err := q.Consume(ctx)
	if err != nil {
		t.Fatalf("Consume failed: %v", err)
	}

	if err := q.Publish(ctx, Attendance("evt-1")); err != nil {
		t.Fatalf("Publish failed: %v", err)
	}

	select {
	case msg := <-msgs:
		if msg.Type != TypeAttendance || string(msg.Body) != "evt-1" {
			t.Errorf("got %+v; want attendance evt-1", msg)
		}
	case <-time.After(time.Second):
		t.Fatal("message never delivered")
	}
}

func TestInMemoryPublishRespectsContext(t *testing.T) {
	q := NewInMemory(1)
	ctx := context.Background()
	if err := q.Publish(ctx, Attendance("a")); err != nil {
		t.Fatalf("Publish failed: %v", err)
	}

	// Queue full and nobody consuming: a cancelled context unblocks.
	cancelled, cancel := context.WithCancel(context.Background())
	cancel()
	if err := q.Publish(cancelled, Attendance("b")); err == nil {
		t.Error("publish into a full queue with cancelled context should fail")
	}
}

func TestSerializeRoundTrip(t *testing.T) {
	tests := []struct {
		name string
		msg  Message
	}{
		{"attendance", Attendance("evt-42")},
		{"body with separator", Message{Type: "attendance", Body: []byte("a|b")}},
		{"empty body", Message{Type: "attendance"}},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			got, err := deserialize(serialize(tc.msg))
			if err != nil {
				t.Fatalf("deserialize failed: %v", err)
			}
			if got.Type != tc.msg.Type || string(got.Body) != string(tc.msg.Body) {
				t.Errorf("round-trip = %+v; want %+v", got, tc.msg)
			}
		})
	}
}
