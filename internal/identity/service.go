// Package identity manages user accounts: registration with face
// enrollment, password login, face login, and admin maintenance.
package identity

import (
	"context"
	"errors"
	"fmt"
	"time"

	"faceattend/internal/extractor"
	"faceattend/internal/facematch"
	"faceattend/internal/metrics"
)

// EnrollmentBatchSize is the number of capture images collected by the
// registration flow when enrolling a face.
const EnrollmentBatchSize = 5

var (
	ErrUserNotFound       = errors.New("identity: user not found")
	ErrNoEncodings        = errors.New("identity: user has no face encodings")
	ErrNoMatch            = errors.New("identity: face does not match")
	ErrInvalidCredentials = errors.New("identity: invalid name or password")
	ErrNameTaken          = errors.New("identity: name already registered")
)

// User is an account. PasswordHash never leaves the package boundary in
// JSON responses.
type User struct {
	ID           string    `json:"id"`
	Name         string    `json:"name"`
	Role         Role      `json:"role"`
	ImageURL     string    `json:"image_url,omitempty"`
	CreatedAt    time.Time `json:"created_at"`
	PasswordHash string    `json:"-"`
}

// RegistrationImageError identifies which capture image failed
// validation and why, so the caller can retake it.
type RegistrationImageError struct {
	Index int // 1-based, matching what the user sees
	Err   error
}

func (e *RegistrationImageError) Error() string {
	var fce *extractor.FaceCountError
	if errors.As(e.Err, &fce) {
		if fce.Count == 0 {
			return fmt.Sprintf("Image %d: No face detected. Please try again.", e.Index)
		}
		return fmt.Sprintf("Image %d: Multiple faces detected. Only one person should be visible.", e.Index)
	}
	return fmt.Sprintf("Image %d: %v", e.Index, e.Err)
}

func (e *RegistrationImageError) Unwrap() error { return e.Err }

// Extractor produces a single face encoding from an image, failing when
// the image does not contain exactly one face.
type Extractor interface {
	ExactlyOne(ctx context.Context, image []byte) (facematch.Encoding, error)
}

// Store persists users and their reference encodings.
type Store interface {
	// CreateWithEncodings inserts the user and all encodings in one
	// transaction; nothing persists when any part fails.
	CreateWithEncodings(ctx context.Context, user User, encodings []facematch.Encoding) error
	GetByName(ctx context.Context, name string) (*User, error)
	GetByID(ctx context.Context, id string) (*User, error)
	Encodings(ctx context.Context, userID string) ([]facematch.Encoding, error)
	// Candidates returns every user's encoding set ordered ascending by
	// user id, so match scans are deterministic.
	Candidates(ctx context.Context) ([]facematch.Candidate, error)
	List(ctx context.Context) ([]User, error)
	Update(ctx context.Context, user User) error
	Delete(ctx context.Context, id string) error
	SetImageURL(ctx context.Context, id, url string) error
}

// Archive optionally stores a captured enrollment image and returns a
// public URL for it.
type Archive interface {
	Store(ctx context.Context, image []byte, name string) (string, error)
}

// Service wires the store, the extractor and the match engine.
type Service struct {
	store     Store
	extractor Extractor
	matcher   *facematch.Matcher
	archive   Archive // nil when image archival is not configured
}

// NewService creates the identity service. archive may be nil.
func NewService(store Store, ext Extractor, matcher *facematch.Matcher, archive Archive) *Service {
	return &Service{store: store, extractor: ext, matcher: matcher, archive: archive}
}

// Register creates a user. Students and teachers enrolling a face
// supply either one image or the full capture batch; every image must
// contain exactly one face or the whole registration is rejected with
// an error naming the offending image. An admin account may register
// with no images at all.
func (s *Service) Register(ctx context.Context, name, password string, role Role, images [][]byte) (*User, error) {
	if name == "" || password == "" {
		return nil, errors.New("identity: name and password required")
	}
	if !role.Valid() {
		return nil, fmt.Errorf("identity: unknown role %q", role)
	}
	if n := len(images); n != 0 && n != 1 && n != EnrollmentBatchSize {
		return nil, fmt.Errorf("identity: expected 1 or %d capture images, got %d", EnrollmentBatchSize, n)
	}

	if existing, err := s.store.GetByName(ctx, name); err != nil {
		return nil, err
	} else if existing != nil {
		return nil, ErrNameTaken
	}

	encodings := make([]facematch.Encoding, 0, len(images))
	for i, img := range images {
		enc, err := s.extractor.ExactlyOne(ctx, img)
		if err != nil {
			metrics.ExtractionFailures.Inc()
			return nil, &RegistrationImageError{Index: i + 1, Err: err}
		}
		encodings = append(encodings, enc)
	}

	hash, err := HashPassword(password)
	if err != nil {
		return nil, fmt.Errorf("hash password: %w", err)
	}

	user := User{Name: name, Role: role, PasswordHash: hash}
	if err := s.store.CreateWithEncodings(ctx, user, encodings); err != nil {
		return nil, err
	}
	created, err := s.store.GetByName(ctx, name)
	if err != nil {
		return nil, err
	}

	if s.archive != nil && len(images) > 0 {
		if url, aerr := s.archive.Store(ctx, images[0], name); aerr == nil {
			_ = s.store.SetImageURL(ctx, created.ID, url)
			created.ImageURL = url
		}
	}
	return created, nil
}

// LoginPassword authenticates by name and password.
func (s *Service) LoginPassword(ctx context.Context, name, password string) (*User, error) {
	user, err := s.store.GetByName(ctx, name)
	if err != nil {
		return nil, err
	}
	if user == nil || !CheckPasswordHash(password, user.PasswordHash) {
		return nil, ErrInvalidCredentials
	}
	return user, nil
}

// LoginFace verifies a capture against one named user's encoding set.
func (s *Service) LoginFace(ctx context.Context, name string, image []byte) (*User, error) {
	user, err := s.store.GetByName(ctx, name)
	if err != nil {
		return nil, err
	}
	if user == nil {
		return nil, ErrUserNotFound
	}
	refs, err := s.store.Encodings(ctx, user.ID)
	if err != nil {
		return nil, err
	}
	if len(refs) == 0 {
		return nil, ErrNoEncodings
	}

	probe, err := s.extractor.ExactlyOne(ctx, image)
	if err != nil {
		metrics.ExtractionFailures.Inc()
		return nil, err
	}
	res, err := s.matcher.Verify(probe, refs)
	if err != nil {
		return nil, err
	}
	if !res.Matched {
		return nil, ErrNoMatch
	}
	return user, nil
}

// Identify scans the whole enrolled gallery for the user matching the
// capture (1:N). Returns ErrNoMatch when nobody is within tolerance.
func (s *Service) Identify(ctx context.Context, image []byte) (*User, float64, error) {
	probe, err := s.extractor.ExactlyOne(ctx, image)
	if err != nil {
		metrics.ExtractionFailures.Inc()
		return nil, 0, err
	}

	candidates, err := s.store.Candidates(ctx)
	if err != nil {
		return nil, 0, err
	}

	metrics.MatchAttempts.Inc()
	res, err := s.matcher.Find(probe, candidates)
	if err != nil {
		return nil, 0, err
	}
	if !res.Matched {
		metrics.MatchMisses.Inc()
		return nil, 0, ErrNoMatch
	}
	metrics.MatchHits.Inc()

	user, err := s.store.GetByID(ctx, res.UserID)
	if err != nil {
		return nil, 0, err
	}
	if user == nil {
		return nil, 0, ErrUserNotFound
	}
	return user, res.Distance, nil
}

// Get returns a user by id.
func (s *Service) Get(ctx context.Context, id string) (*User, error) {
	user, err := s.store.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if user == nil {
		return nil, ErrUserNotFound
	}
	return user, nil
}

// List returns all users.
func (s *Service) List(ctx context.Context) ([]User, error) {
	return s.store.List(ctx)
}

// Update applies admin edits to name, role, or password.
func (s *Service) Update(ctx context.Context, id, name string, role Role, password string) (*User, error) {
	user, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if name != "" {
		user.Name = name
	}
	if role != "" {
		if !role.Valid() {
			return nil, fmt.Errorf("identity: unknown role %q", role)
		}
		user.Role = role
	}
	if password != "" {
		hash, err := HashPassword(password)
		if err != nil {
			return nil, err
		}
		user.PasswordHash = hash
	}
	if err := s.store.Update(ctx, *user); err != nil {
		return nil, err
	}
	return user, nil
}

// Delete removes a user and, via cascade, their attendance logs. A user
// cannot delete their own account.
func (s *Service) Delete(ctx context.Context, id, actorID string) error {
	if id == actorID {
		return errors.New("identity: cannot delete your own account")
	}
	user, err := s.Get(ctx, id)
	if err != nil {
		return err
	}
	return s.store.Delete(ctx, user.ID)
}
