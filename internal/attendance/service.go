// Package attendance records timestamped attendance events with
// duplicate suppression inside a cooldown window.
package attendance

import (
	"context"
	"errors"
	"time"

	"faceattend/internal/metrics"
)

// DefaultCooldown is the minimum time between two recorded events for
// the same student in the same course.
const DefaultCooldown = 5 * time.Minute

// Status reports whether a record call wrote a new event.
type Status string

const (
	StatusCreated   Status = "created"
	StatusDuplicate Status = "duplicate"
)

// Log is a persisted attendance event. Append-only: rows are never
// updated, only suppressed before creation.
type Log struct {
	ID         string    `json:"id"`
	UserID     string    `json:"user_id"`
	CourseID   string    `json:"course_id"`
	RecordedAt time.Time `json:"recorded_at"`
}

// LogView is a log joined with display names for listings.
type LogView struct {
	Log
	UserName   string `json:"user_name"`
	CourseCode string `json:"course_code"`
}

// Outcome is the result of a record attempt. A suppressed duplicate is
// a successful outcome, not an error.
type Outcome struct {
	Status Status
	Log    Log
}

// Store persists attendance logs. Record must be atomic with respect to
// concurrent calls for the same user: the recent-event check and the
// insert happen under a per-user exclusive guard so at most one event
// exists per cooldown window.
type Store interface {
	Record(ctx context.Context, userID, courseID string, at time.Time, window time.Duration) (Outcome, error)
	ListAll(ctx context.Context, limit, offset int) ([]LogView, error)
	ListByUser(ctx context.Context, userID string, limit, offset int) ([]LogView, error)
}

// Service applies the cooldown policy over a store.
type Service struct {
	store    Store
	cooldown time.Duration
	now      func() time.Time
}

// NewService creates a recorder with the given cooldown window.
func NewService(store Store, cooldown time.Duration) *Service {
	if cooldown <= 0 {
		cooldown = DefaultCooldown
	}
	return &Service{store: store, cooldown: cooldown, now: time.Now}
}

// Record writes a new attendance event for the user in the course, or
// suppresses it when one already exists inside the cooldown window.
// Idempotent within the window: N calls yield one row and N successes.
func (s *Service) Record(ctx context.Context, userID, courseID string) (Outcome, error) {
	if userID == "" || courseID == "" {
		return Outcome{}, errors.New("attendance: user and course required")
	}
	out, err := s.store.Record(ctx, userID, courseID, s.now().UTC(), s.cooldown)
	if err != nil {
		return Outcome{}, err
	}
	switch out.Status {
	case StatusCreated:
		metrics.AttendanceRecorded.Inc()
	case StatusDuplicate:
		metrics.AttendanceSuppressed.Inc()
	}
	return out, nil
}

// Logs returns recent attendance events across all users.
func (s *Service) Logs(ctx context.Context, limit, offset int) ([]LogView, error) {
	return s.store.ListAll(ctx, limit, offset)
}

// UserLogs returns a single user's attendance history.
func (s *Service) UserLogs(ctx context.Context, userID string, limit, offset int) ([]LogView, error) {
	if userID == "" {
		return nil, errors.New("attendance: user required")
	}
	return s.store.ListByUser(ctx, userID, limit, offset)
}
