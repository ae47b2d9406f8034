// Package courses manages semesters, courses, and student enrollments.
package courses

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"

	"faceattend/internal/identity"
)

var (
	ErrCourseNotFound   = errors.New("courses: course not found")
	ErrSemesterNotFound = errors.New("courses: semester not found")
	ErrCodeTaken        = errors.New("courses: course code already in use")
	ErrSemesterTaken    = errors.New("courses: semester name already in use")
)

// Semester is a named academic term.
type Semester struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

// Course belongs to exactly one teacher and one semester.
type Course struct {
	ID         string `json:"id"`
	Name       string `json:"name"`
	Code       string `json:"code"`
	TeacherID  string `json:"teacher_id"`
	SemesterID string `json:"semester_id"`
}

// Enrollment ties one student to one course; the pair is unique.
type Enrollment struct {
	ID        string `json:"id"`
	StudentID string `json:"student_id"`
	CourseID  string `json:"course_id"`
}

// Store persists the course catalog.
type Store interface {
	CreateSemester(ctx context.Context, s Semester) error
	ListSemesters(ctx context.Context) ([]Semester, error)
	GetSemester(ctx context.Context, id string) (*Semester, error)
	CreateCourse(ctx context.Context, c Course) error
	GetCourse(ctx context.Context, id string) (*Course, error)
	GetCourseByCode(ctx context.Context, code string) (*Course, error)
	ListCourses(ctx context.Context) ([]Course, error)
	DeleteCourse(ctx context.Context, id string) error
	// Enroll inserts unless the (student, course) pair already exists;
	// created=false reports the duplicate no-op.
	Enroll(ctx context.Context, e Enrollment) (created bool, err error)
	ListEnrollments(ctx context.Context, courseID string) ([]Enrollment, error)
	IsEnrolled(ctx context.Context, studentID, courseID string) (bool, error)
}

// UserDirectory resolves users for role validation. identity.Service
// satisfies it.
type UserDirectory interface {
	Get(ctx context.Context, id string) (*identity.User, error)
}

// Service validates catalog operations against user roles.
type Service struct {
	store Store
	users UserDirectory
}

// NewService creates the catalog service.
func NewService(store Store, users UserDirectory) *Service {
	return &Service{store: store, users: users}
}

// CreateSemester adds a named term.
func (s *Service) CreateSemester(ctx context.Context, name string) (*Semester, error) {
	if name == "" {
		return nil, errors.New("courses: semester name required")
	}
	existing, err := s.store.ListSemesters(ctx)
	if err != nil {
		return nil, err
	}
	for _, sem := range existing {
		if sem.Name == name {
			return nil, ErrSemesterTaken
		}
	}
	sem := Semester{ID: uuid.NewString(), Name: name}
	if err := s.store.CreateSemester(ctx, sem); err != nil {
		return nil, err
	}
	return &sem, nil
}

// CreateCourse adds a course with a unique code, owned by a teacher.
func (s *Service) CreateCourse(ctx context.Context, name, code, teacherID, semesterID string) (*Course, error) {
	if name == "" || code == "" || teacherID == "" || semesterID == "" {
		return nil, errors.New("courses: name, code, teacher and semester required")
	}

	teacher, err := s.users.Get(ctx, teacherID)
	if err != nil {
		return nil, err
	}
	if teacher.Role != identity.RoleTeacher {
		return nil, fmt.Errorf("courses: user %s is not a teacher", teacher.Name)
	}
	if sem, err := s.store.GetSemester(ctx, semesterID); err != nil {
		return nil, err
	} else if sem == nil {
		return nil, ErrSemesterNotFound
	}
	if existing, err := s.store.GetCourseByCode(ctx, code); err != nil {
		return nil, err
	} else if existing != nil {
		return nil, ErrCodeTaken
	}

	c := Course{ID: uuid.NewString(), Name: name, Code: code, TeacherID: teacherID, SemesterID: semesterID}
	if err := s.store.CreateCourse(ctx, c); err != nil {
		return nil, err
	}
	return &c, nil
}

// Enroll associates a student with a course. Enrolling twice is a
// reported no-op, not an error.
func (s *Service) Enroll(ctx context.Context, studentID, courseID string) (created bool, err error) {
	student, err := s.users.Get(ctx, studentID)
	if err != nil {
		return false, err
	}
	if student.Role != identity.RoleStudent {
		return false, fmt.Errorf("courses: user %s is not a student", student.Name)
	}
	if course, err := s.store.GetCourse(ctx, courseID); err != nil {
		return false, err
	} else if course == nil {
		return false, ErrCourseNotFound
	}
	return s.store.Enroll(ctx, Enrollment{ID: uuid.NewString(), StudentID: studentID, CourseID: courseID})
}

// Get returns a course by id.
func (s *Service) Get(ctx context.Context, id string) (*Course, error) {
	c, err := s.store.GetCourse(ctx, id)
	if err != nil {
		return nil, err
	}
	if c == nil {
		return nil, ErrCourseNotFound
	}
	return c, nil
}

// List returns the whole catalog.
func (s *Service) List(ctx context.Context) ([]Course, error) {
	return s.store.ListCourses(ctx)
}

// Semesters returns all terms.
func (s *Service) Semesters(ctx context.Context) ([]Semester, error) {
	return s.store.ListSemesters(ctx)
}

// Delete removes a course; enrollments and logs cascade.
func (s *Service) Delete(ctx context.Context, id string) error {
	if _, err := s.Get(ctx, id); err != nil {
		return err
	}
	return s.store.DeleteCourse(ctx, id)
}

// IsEnrolled reports whether the student is enrolled in the course.
func (s *Service) IsEnrolled(ctx context.Context, studentID, courseID string) (bool, error) {
	return s.store.IsEnrolled(ctx, studentID, courseID)
}

// Enrollments returns a course's roster.
func (s *Service) Enrollments(ctx context.Context, courseID string) ([]Enrollment, error) {
	if _, err := s.Get(ctx, courseID); err != nil {
		return nil, err
	}
	return s.store.ListEnrollments(ctx, courseID)
}
