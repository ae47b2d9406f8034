package identity

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/pgvector/pgvector-go"

	"faceattend/internal/facematch"
)

// Repository persists users and reference encodings in Postgres. The
// encodings live in a pgvector column of fixed dimensionality with a
// format version for future evolution.
type Repository struct {
	db *sql.DB
}

// NewRepository creates a repo.
func NewRepository(db *sql.DB) *Repository {
	return &Repository{db: db}
}

const userSelect = `SELECT id, name, role, COALESCE(image_url, ''), created_at, password_hash FROM users`

func scanUser(row *sql.Row) (*User, error) {
	var u User
	var role string
	err := row.Scan(&u.ID, &u.Name, &role, &u.ImageURL, &u.CreatedAt, &u.PasswordHash)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	u.Role = Role(role)
	return &u, nil
}

// CreateWithEncodings inserts the user row and every reference encoding
// in one transaction, so a failed batch leaves no partial record.
func (r *Repository) CreateWithEncodings(ctx context.Context, user User, encodings []facematch.Encoding) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin create tx: %w", err)
	}
	defer tx.Rollback()

	if user.ID == "" {
		user.ID = uuid.NewString()
	}
	if _, err := tx.ExecContext(ctx, `
		INSERT INTO users (id, name, password_hash, role)
		VALUES ($1, $2, $3, $4)
	`, user.ID, user.Name, user.PasswordHash, string(user.Role)); err != nil {
		return fmt.Errorf("insert user: %w", err)
	}

	for _, enc := range encodings {
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO face_encodings (id, user_id, embedding, format_version)
			VALUES ($1, $2, $3, 1)
		`, uuid.NewString(), user.ID, pgvector.NewVector([]float32(enc))); err != nil {
			return fmt.Errorf("insert encoding: %w", err)
		}
	}
	return tx.Commit()
}

// GetByName returns the user with the given login name, nil when absent.
func (r *Repository) GetByName(ctx context.Context, name string) (*User, error) {
	return scanUser(r.db.QueryRowContext(ctx, userSelect+` WHERE name = $1`, name))
}

// GetByID returns a user by id, nil when absent.
func (r *Repository) GetByID(ctx context.Context, id string) (*User, error) {
	return scanUser(r.db.QueryRowContext(ctx, userSelect+` WHERE id = $1`, id))
}

// Encodings returns a user's reference encodings in enrollment order.
func (r *Repository) Encodings(ctx context.Context, userID string) ([]facematch.Encoding, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT embedding FROM face_encodings
		WHERE user_id = $1
		ORDER BY created_at
	`, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var res []facematch.Encoding
	for rows.Next() {
		var vec pgvector.Vector
		if err := rows.Scan(&vec); err != nil {
			return nil, err
		}
		res = append(res, facematch.Encoding(vec.Slice()))
	}
	return res, rows.Err()
}

// Candidates returns every enrolled user's encoding set, ordered
// ascending by user id so match scans iterate deterministically.
func (r *Repository) Candidates(ctx context.Context) ([]facematch.Candidate, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT user_id, embedding FROM face_encodings
		ORDER BY user_id, created_at
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var res []facematch.Candidate
	for rows.Next() {
		var userID string
		var vec pgvector.Vector
		if err := rows.Scan(&userID, &vec); err != nil {
			return nil, err
		}
		if n := len(res); n > 0 && res[n-1].UserID == userID {
			res[n-1].Encodings = append(res[n-1].Encodings, facematch.Encoding(vec.Slice()))
			continue
		}
		res = append(res, facematch.Candidate{
			UserID:    userID,
			Encodings: []facematch.Encoding{facematch.Encoding(vec.Slice())},
		})
	}
	return res, rows.Err()
}

// List returns all users ordered by name.
func (r *Repository) List(ctx context.Context) ([]User, error) {
	rows, err := r.db.QueryContext(ctx, userSelect+` ORDER BY name`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var res []User
	for rows.Next() {
		var u User
		var role string
		if err := rows.Scan(&u.ID, &u.Name, &role, &u.ImageURL, &u.CreatedAt, &u.PasswordHash); err != nil {
			return nil, err
		}
		u.Role = Role(role)
		res = append(res, u)
	}
	return res, rows.Err()
}

// Update writes name, role, and password hash.
func (r *Repository) Update(ctx context.Context, user User) error {
	_, err := r.db.ExecContext(ctx, `
		UPDATE users SET name = $2, role = $3, password_hash = $4 WHERE id = $1
	`, user.ID, user.Name, string(user.Role), user.PasswordHash)
	return err
}

// Delete removes a user; encodings and attendance logs cascade.
func (r *Repository) Delete(ctx context.Context, id string) error {
	_, err := r.db.ExecContext(ctx, `DELETE FROM users WHERE id = $1`, id)
	return err
}

// SetImageURL records the archived enrollment capture location.
func (r *Repository) SetImageURL(ctx context.Context, id, url string) error {
	_, err := r.db.ExecContext(ctx, `UPDATE users SET image_url = $2 WHERE id = $1`, id, url)
	return err
}
