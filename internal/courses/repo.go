package courses

import (
	"context"
	"database/sql"
	"errors"
)

// Repository persists the course catalog in Postgres.
type Repository struct {
	db *sql.DB
}

// NewRepository creates a repo.
func NewRepository(db *sql.DB) *Repository {
	return &Repository{db: db}
}

// CreateSemester inserts a term.
func (r *Repository) CreateSemester(ctx context.Context, s Semester) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO semesters (id, name) VALUES ($1, $2)
	`, s.ID, s.Name)
	return err
}

// ListSemesters returns all terms by name.
func (r *Repository) ListSemesters(ctx context.Context) ([]Semester, error) {
	rows, err := r.db.QueryContext(ctx, `SELECT id, name FROM semesters ORDER BY name`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []Semester
	for rows.Next() {
		var s Semester
		if err := rows.Scan(&s.ID, &s.Name); err != nil {
			return nil, err
		}
		res = append(res, s)
	}
	return res, rows.Err()
}

// GetSemester returns a term by id, nil when absent.
func (r *Repository) GetSemester(ctx context.Context, id string) (*Semester, error) {
	var s Semester
	err := r.db.QueryRowContext(ctx, `SELECT id, name FROM semesters WHERE id = $1`, id).
		Scan(&s.ID, &s.Name)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &s, nil
}

// CreateCourse inserts a course.
func (r *Repository) CreateCourse(ctx context.Context, c Course) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO courses (id, name, code, teacher_id, semester_id)
		VALUES ($1, $2, $3, $4, $5)
	`, c.ID, c.Name, c.Code, c.TeacherID, c.SemesterID)
	return err
}

const courseSelect = `SELECT id, name, code, teacher_id, semester_id FROM courses`

func scanCourse(row *sql.Row) (*Course, error) {
	var c Course
	err := row.Scan(&c.ID, &c.Name, &c.Code, &c.TeacherID, &c.SemesterID)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &c, nil
}

// GetCourse returns a course by id, nil when absent.
func (r *Repository) GetCourse(ctx context.Context, id string) (*Course, error) {
	return scanCourse(r.db.QueryRowContext(ctx, courseSelect+` WHERE id = $1`, id))
}

// GetCourseByCode returns a course by its unique code, nil when absent.
func (r *Repository) GetCourseByCode(ctx context.Context, code string) (*Course, error) {
	return scanCourse(r.db.QueryRowContext(ctx, courseSelect+` WHERE code = $1`, code))
}

// ListCourses returns the catalog ordered by code.
func (r *Repository) ListCourses(ctx context.Context) ([]Course, error) {
	rows, err := r.db.QueryContext(ctx, courseSelect+` ORDER BY code`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []Course
	for rows.Next() {
		var c Course
		if err := rows.Scan(&c.ID, &c.Name, &c.Code, &c.TeacherID, &c.SemesterID); err != nil {
			return nil, err
		}
		res = append(res, c)
	}
	return res, rows.Err()
}

// DeleteCourse removes a course; enrollments and logs cascade.
func (r *Repository) DeleteCourse(ctx context.Context, id string) error {
	_, err := r.db.ExecContext(ctx, `DELETE FROM courses WHERE id = $1`, id)
	return err
}

// Enroll inserts unless the (student, course) pair exists already.
// The unique constraint makes the duplicate check race-free; a conflict
// is reported as created=false rather than an error.
func (r *Repository) Enroll(ctx context.Context, e Enrollment) (bool, error) {
	res, err := r.db.ExecContext(ctx, `
		INSERT INTO enrollments (id, student_id, course_id)
		VALUES ($1, $2, $3)
		ON CONFLICT (student_id, course_id) DO NOTHING
	`, e.ID, e.StudentID, e.CourseID)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

// ListEnrollments returns a course's enrollments.
func (r *Repository) ListEnrollments(ctx context.Context, courseID string) ([]Enrollment, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT id, student_id, course_id FROM enrollments WHERE course_id = $1
	`, courseID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []Enrollment
	for rows.Next() {
		var e Enrollment
		if err := rows.Scan(&e.ID, &e.StudentID, &e.CourseID); err != nil {
			return nil, err
		}
		res = append(res, e)
	}
	return res, rows.Err()
}

// IsEnrolled reports whether the student is enrolled in the course.
func (r *Repository) IsEnrolled(ctx context.Context, studentID, courseID string) (bool, error) {
	var exists bool
	err := r.db.QueryRowContext(ctx, `
		SELECT EXISTS(SELECT 1 FROM enrollments WHERE student_id = $1 AND course_id = $2)
	`, studentID, courseID).Scan(&exists)
	return exists, err
}
