package attendance

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Repository persists attendance logs in Postgres.
type Repository struct {
	db *sql.DB
}

// NewRepository creates a repo.
func NewRepository(db *sql.DB) *Repository {
	return &Repository{db: db}
}

// Record checks for a recent event and inserts a new one when none
// exists, inside a single transaction. A per-user advisory lock is held
// across the check and the insert, closing the check-then-act race:
// two concurrent calls within the window serialize, and the second
// observes the first's row and suppresses.
func (r *Repository) Record(ctx context.Context, userID, courseID string, at time.Time, window time.Duration) (Outcome, error) {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return Outcome{}, fmt.Errorf("begin record tx: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `SELECT pg_advisory_xact_lock(hashtext($1))`, userID); err != nil {
		return Outcome{}, fmt.Errorf("acquire user lock: %w", err)
	}

	row := tx.QueryRowContext(ctx, `
		SELECT id, user_id, course_id, recorded_at
		FROM attendance_logs
		WHERE user_id = $1 AND course_id = $2 AND recorded_at > $3
		ORDER BY recorded_at DESC
		LIMIT 1
	`, userID, courseID, at.Add(-window))

	var recent Log
	err = row.Scan(&recent.ID, &recent.UserID, &recent.CourseID, &recent.RecordedAt)
	switch {
	case err == nil:
		if err := tx.Commit(); err != nil {
			return Outcome{}, err
		}
		return Outcome{Status: StatusDuplicate, Log: recent}, nil
	case errors.Is(err, sql.ErrNoRows):
		// fall through to insert
	default:
		return Outcome{}, fmt.Errorf("query recent log: %w", err)
	}

	evt := Log{ID: uuid.NewString(), UserID: userID, CourseID: courseID, RecordedAt: at}
	if _, err := tx.ExecContext(ctx, `
		INSERT INTO attendance_logs (id, user_id, course_id, recorded_at)
		VALUES ($1, $2, $3, $4)
	`, evt.ID, evt.UserID, evt.CourseID, evt.RecordedAt); err != nil {
		return Outcome{}, fmt.Errorf("insert log: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return Outcome{}, err
	}
	return Outcome{Status: StatusCreated, Log: evt}, nil
}

// Get returns a single event by id.
func (r *Repository) Get(ctx context.Context, id string) (Log, error) {
	row := r.db.QueryRowContext(ctx, `
		SELECT id, user_id, course_id, recorded_at FROM attendance_logs WHERE id = $1
	`, id)
	var l Log
	if err := row.Scan(&l.ID, &l.UserID, &l.CourseID, &l.RecordedAt); err != nil {
		return Log{}, err
	}
	return l, nil
}

const logViewSelect = `
	SELECT l.id, l.user_id, l.course_id, l.recorded_at, u.name, c.code
	FROM attendance_logs l
	JOIN users u ON u.id = l.user_id
	JOIN courses c ON c.id = l.course_id
`

// ListAll returns events across all users, newest first.
func (r *Repository) ListAll(ctx context.Context, limit, offset int) ([]LogView, error) {
	limit, offset = clampPage(limit, offset)
	rows, err := r.db.QueryContext(ctx, logViewSelect+`
		ORDER BY l.recorded_at DESC LIMIT $1 OFFSET $2
	`, limit, offset)
	if err != nil {
		return nil, err
	}
	return scanLogViews(rows)
}

// ListByUser returns one user's events, newest first.
func (r *Repository) ListByUser(ctx context.Context, userID string, limit, offset int) ([]LogView, error) {
	limit, offset = clampPage(limit, offset)
	rows, err := r.db.QueryContext(ctx, logViewSelect+`
		WHERE l.user_id = $1
		ORDER BY l.recorded_at DESC LIMIT $2 OFFSET $3
	`, userID, limit, offset)
	if err != nil {
		return nil, err
	}
	return scanLogViews(rows)
}

func clampPage(limit, offset int) (int, int) {
	if limit <= 0 || limit > 500 {
		limit = 50
	}
	if offset < 0 {
		offset = 0
	}
	return limit, offset
}

func scanLogViews(rows *sql.Rows) ([]LogView, error) {
	defer rows.Close()
	var res []LogView
	for rows.Next() {
		var v LogView
		if err := rows.Scan(&v.ID, &v.UserID, &v.CourseID, &v.RecordedAt, &v.UserName, &v.CourseCode); err != nil {
			return nil, err
		}
		res = append(res, v)
	}
	return res, rows.Err()
}
