package sqlxrepos

import (
	"context"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"github.com/volatiletech/null/v8"

	"github.com/cornelabs/lms/core"
	"github.com/cornelabs/lms/core/enrollment"
)

var enrollmentColumns = []string{"id", "user_id", "course_id", "status", "enrolled_at", "completed_at"}

// lessonCounts selects the number of lessons of the course and the number completed by the user.
const lessonCounts = `
	(SELECT count(*) FROM lessons l JOIN modules m ON m.id = l.module_id WHERE m.course_id = e.course_id) AS total_lessons,
	(SELECT count(*) FROM progress p
		JOIN lessons l ON l.id = p.lesson_id
		JOIN modules m ON m.id = l.module_id
		WHERE m.course_id = e.course_id AND p.user_id = e.user_id AND p.completed) AS completed_lessons`

type (
	enrollmentRow struct {
		ID          string    `db:"id"`
		UserID      string    `db:"user_id"`
		CourseID    string    `db:"course_id"`
		Status      string    `db:"status"`
		EnrolledAt  time.Time `db:"enrolled_at"`
		CompletedAt null.Time `db:"completed_at"`
	}

	userEnrollmentRow struct {
		enrollmentRow
		Course           courseRow `db:"course"`
		TotalLessons     int       `db:"total_lessons"`
		CompletedLessons int       `db:"completed_lessons"`
	}

	courseStudentRow struct {
		enrollmentRow
		Student          userRow `db:"student"`
		TotalLessons     int     `db:"total_lessons"`
		CompletedLessons int     `db:"completed_lessons"`
	}
)

func toEnrollmentRow(e enrollment.Enrollment) enrollmentRow {
	return enrollmentRow{
		ID:          e.ID,
		UserID:      e.UserID,
		CourseID:    e.CourseID,
		Status:      e.Status,
		EnrolledAt:  e.EnrolledAt.UTC(),
		CompletedAt: null.TimeFromPtr(e.CompletedAt),
	}
}

func (row enrollmentRow) enrollment() enrollment.Enrollment {
	e := enrollment.Enrollment{
		ID:         row.ID,
		UserID:     row.UserID,
		CourseID:   row.CourseID,
		Status:     row.Status,
		EnrolledAt: row.EnrolledAt.UTC(),
	}
	if row.CompletedAt.Valid {
		t := row.CompletedAt.Time.UTC()
		e.CompletedAt = &t
	}
	return e
}

// aliased selects the columns of alias as "prefix.column", which sqlx maps to nested structs.
func aliased(alias, prefix string, cols []string) string {
	selected := make([]string, 0, len(cols))
	for _, c := range cols {
		selected = append(selected, alias+"."+c+` AS "`+prefix+"."+c+`"`)
	}
	return strings.Join(selected, ", ")
}

type enrollmentRepository struct {
	repository
}

var _ enrollment.Repository = (*enrollmentRepository)(nil) // interface compliance check

func NewEnrollmentRepository(exec core.DBExecutor) *enrollmentRepository {
	return &enrollmentRepository{repository{exec: exec}}
}

func (repo enrollmentRepository) CreateEnrollment(ctx context.Context, e enrollment.Enrollment, exec ...core.DBExecutor) (enrollment.Enrollment, error) {
	e.ID = uuid.New().String()
	q := `INSERT INTO enrollments (` + strings.Join(enrollmentColumns, ", ") + `) VALUES (` + namedValues(enrollmentColumns) + `)`
	if _, err := namedExec(ctx, repo.getExec(exec), q, toEnrollmentRow(e)); err != nil {
		if isUniqueViolation(err) {
			return enrollment.Enrollment{}, enrollment.ErrAlreadyEnrolled
		}
		return enrollment.Enrollment{}, errors.Wrap(err, "inserting enrollment")
	}
	return e, nil
}

func (repo enrollmentRepository) GetEnrollment(ctx context.Context, userID, courseID string, exec ...core.DBExecutor) (enrollment.Enrollment, error) {
	if !validID(userID) || !validID(courseID) {
		return enrollment.Enrollment{}, enrollment.ErrNotFound
	}
	var row enrollmentRow
	q := `SELECT ` + strings.Join(enrollmentColumns, ", ") + ` FROM enrollments WHERE user_id = $1 AND course_id = $2`
	if err := repo.getExec(exec).GetContext(ctx, &row, q, userID, courseID); err != nil {
		return enrollment.Enrollment{}, trapNoRowsErr(err, enrollment.ErrNotFound, "finding enrollment")
	}
	return row.enrollment(), nil
}

func (repo enrollmentRepository) UpdateEnrollment(ctx context.Context, e enrollment.Enrollment, exec ...core.DBExecutor) (enrollment.Enrollment, error) {
	q := `UPDATE enrollments SET status = :status, completed_at = :completed_at WHERE id = :id`
	res, err := namedExec(ctx, repo.getExec(exec), q, toEnrollmentRow(e))
	if err != nil {
		return enrollment.Enrollment{}, errors.Wrap(err, "updating enrollment")
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return enrollment.Enrollment{}, enrollment.ErrNotFound
	}
	return e, nil
}

func (repo enrollmentRepository) QueryUserEnrollments(ctx context.Context, userID string, exec ...core.DBExecutor) ([]enrollment.UserEnrollment, error) {
	if !validID(userID) {
		return []enrollment.UserEnrollment{}, nil
	}
	q := `SELECT ` + columns("e", enrollmentColumns) + `, ` + aliased("c", "course", courseColumns) + `,` + lessonCounts + `
		FROM enrollments e JOIN courses c ON c.id = e.course_id
		WHERE e.user_id = $1
		ORDER BY e.enrolled_at DESC`

	var rows []userEnrollmentRow
	if err := repo.getExec(exec).SelectContext(ctx, &rows, q, userID); err != nil {
		return nil, errors.Wrap(err, "querying user enrollments")
	}
	enrollments := make([]enrollment.UserEnrollment, 0, len(rows))
	for _, row := range rows {
		enrollments = append(enrollments, enrollment.UserEnrollment{
			Enrollment:       row.enrollment(),
			Course:           row.Course.course(),
			TotalLessons:     row.TotalLessons,
			CompletedLessons: row.CompletedLessons,
		})
	}
	return enrollments, nil
}

func (repo enrollmentRepository) QueryCourseStudents(ctx context.Context, courseID string, exec ...core.DBExecutor) ([]enrollment.CourseStudent, error) {
	if !validID(courseID) {
		return []enrollment.CourseStudent{}, nil
	}
	q := `SELECT ` + columns("e", enrollmentColumns) + `, ` + aliased("u", "student", strings.Split(userColumns, ", ")) + `,` + lessonCounts + `
		FROM enrollments e JOIN users u ON u.id = e.user_id
		WHERE e.course_id = $1
		ORDER BY e.enrolled_at DESC`

	var rows []courseStudentRow
	if err := repo.getExec(exec).SelectContext(ctx, &rows, q, courseID); err != nil {
		return nil, errors.Wrap(err, "querying course students")
	}
	students := make([]enrollment.CourseStudent, 0, len(rows))
	for _, row := range rows {
		students = append(students, enrollment.CourseStudent{
			Enrollment:       row.enrollment(),
			Student:          row.Student.user(),
			TotalLessons:     row.TotalLessons,
			CompletedLessons: row.CompletedLessons,
		})
	}
	return students, nil
}
