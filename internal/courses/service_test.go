package courses

import (
	"context"
	"errors"
	"testing"

	"faceattend/internal/identity"
)

type memStore struct {
	semesters   map[string]Semester
	coursesByID map[string]Course
	enrollments map[string]Enrollment // keyed student|course
}

func newMemStore() *memStore {
	return &memStore{
		semesters:   make(map[string]Semester),
		coursesByID: make(map[string]Course),
		enrollments: make(map[string]Enrollment),
	}
}

func (m *memStore) CreateSemester(_ context.Context, s Semester) error {
	m.semesters[s.ID] = s
	return nil
}

func (m *memStore) ListSemesters(context.Context) ([]Semester, error) {
	var res []Semester
	for _, s := range m.semesters {
		res = append(res, s)
	}
	return res, nil
}

func (m *memStore) GetSemester(_ context.Context, id string) (*Semester, error) {
	if s, ok := m.semesters[id]; ok {
		return &s, nil
	}
	return nil, nil
}

func (m *memStore) CreateCourse(_ context.Context, c Course) error {
	m.coursesByID[c.ID] = c
	return nil
}

func (m *memStore) GetCourse(_ context.Context, id string) (*Course, error) {
	if c, ok := m.coursesByID[id]; ok {
		return &c, nil
	}
	return nil, nil
}

func (m *memStore) GetCourseByCode(_ context.Context, code string) (*Course, error) {
	for _, c := range m.coursesByID {
		if c.Code == code {
			c := c
			return &c, nil
		}
	}
	return nil, nil
}

func (m *memStore) ListCourses(context.Context) ([]Course, error) {
	var res []Course
	for _, c := range m.coursesByID {
		res = append(res, c)
	}
	return res, nil
}

func (m *memStore) DeleteCourse(_ context.Context, id string) error {
	delete(m.coursesByID, id)
	return nil
}

func (m *memStore) Enroll(_ context.Context, e Enrollment) (bool, error) {
	key := e.StudentID + "|" + e.CourseID
	if _, ok := m.enrollments[key]; ok {
		return false, nil
	}
	m.enrollments[key] = e
	return true, nil
}

func (m *memStore) ListEnrollments(_ context.Context, courseID string) ([]Enrollment, error) {
	var res []Enrollment
	for _, e := range m.enrollments {
		if e.CourseID == courseID {
			res = append(res, e)
		}
	}
	return res, nil
}

func (m *memStore) IsEnrolled(_ context.Context, studentID, courseID string) (bool, error) {
	_, ok := m.enrollments[studentID+"|"+courseID]
	return ok, nil
}

type memDirectory struct {
	users map[string]identity.User
}

func (d *memDirectory) Get(_ context.Context, id string) (*identity.User, error) {
	if u, ok := d.users[id]; ok {
		return &u, nil
	}
	return nil, identity.ErrUserNotFound
}

func fixture() (*Service, *memStore) {
	store := newMemStore()
	dir := &memDirectory{users: map[string]identity.User{
		"t1": {ID: "t1", Name: "teach", Role: identity.RoleTeacher},
		"s1": {ID: "s1", Name: "stud", Role: identity.RoleStudent},
	}}
	return NewService(store, dir), store
}

func TestCreateCourse(t *testing.T) {
	svc, _ := fixture()
	sem, err := svc.CreateSemester(context.Background(), "Fall 2025")
	if err != nil {
		t.Fatalf("CreateSemester failed: %v", err)
	}

	course, err := svc.CreateCourse(context.Background(), "Databases", "CS305", "t1", sem.ID)
	if err != nil {
		t.Fatalf("CreateCourse failed: %v", err)
	}
	if course.Code != "CS305" || course.TeacherID != "t1" {
		t.Errorf("unexpected course %+v", course)
	}

	// Duplicate code is rejected.
	if _, err := svc.CreateCourse(context.Background(), "Other", "CS305", "t1", sem.ID); !errors.Is(err, ErrCodeTaken) {
		t.Errorf("duplicate code: err = %v; want ErrCodeTaken", err)
	}

	// Owner must hold the teacher role.
	if _, err := svc.CreateCourse(context.Background(), "X", "CS999", "s1", sem.ID); err == nil {
		t.Error("student as course owner should be rejected")
	}

	// Semester must exist.
	if _, err := svc.CreateCourse(context.Background(), "X", "CS998", "t1", "missing"); !errors.Is(err, ErrSemesterNotFound) {
		t.Errorf("missing semester: err = %v; want ErrSemesterNotFound", err)
	}
}

func TestCreateSemesterDuplicateName(t *testing.T) {
	svc, _ := fixture()
	if _, err := svc.CreateSemester(context.Background(), "Spring"); err != nil {
		t.Fatalf("CreateSemester failed: %v", err)
	}
	if _, err := svc.CreateSemester(context.Background(), "Spring"); !errors.Is(err, ErrSemesterTaken) {
		t.Errorf("duplicate semester: err = %v; want ErrSemesterTaken", err)
	}
}

func TestEnrollDuplicateIsNoOp(t *testing.T) {
	svc, store := fixture()
	sem, _ := svc.CreateSemester(context.Background(), "Fall")
	course, err := svc.CreateCourse(context.Background(), "Algo", "CS201", "t1", sem.ID)
	if err != nil {
		t.Fatalf("CreateCourse failed: %v", err)
	}

	created, err := svc.Enroll(context.Background(), "s1", course.ID)
	if err != nil {
		t.Fatalf("Enroll failed: %v", err)
	}
	if !created {
		t.Error("first enrollment should create")
	}

	created, err = svc.Enroll(context.Background(), "s1", course.ID)
	if err != nil {
		t.Fatalf("duplicate Enroll errored: %v", err)
	}
	if created {
		t.Error("duplicate enrollment must be a no-op, not a second row")
	}
	if len(store.enrollments) != 1 {
		t.Errorf("stored %d enrollments; want 1", len(store.enrollments))
	}
}

func TestEnrollValidation(t *testing.T) {
	svc, _ := fixture()
	sem, _ := svc.CreateSemester(context.Background(), "Fall")
	course, _ := svc.CreateCourse(context.Background(), "Algo", "CS201", "t1", sem.ID)

	// Only students can be enrolled.
	if _, err := svc.Enroll(context.Background(), "t1", course.ID); err == nil {
		t.Error("enrolling a teacher should be rejected")
	}
	// Course must exist.
	if _, err := svc.Enroll(context.Background(), "s1", "missing"); !errors.Is(err, ErrCourseNotFound) {
		t.Errorf("missing course: err = %v; want ErrCourseNotFound", err)
	}
}
