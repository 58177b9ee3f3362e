package sqlxrepos

import (
	"context"
	"strings"

	"github.com/pkg/errors"

	"github.com/cornelabs/lms/core"
	"github.com/cornelabs/lms/core/stats"
)

type statsRepository struct {
	repository
}

var _ stats.Repository = (*statsRepository)(nil) // interface compliance check

func NewStatsRepository(exec core.DBExecutor) *statsRepository {
	return &statsRepository{repository{exec: exec}}
}

func (repo statsRepository) count(ctx context.Context, exec []core.DBExecutor, table string, w where) (int, error) {
	var n int
	if err := repo.getExec(exec).GetContext(ctx, &n, `SELECT count(*) FROM `+table+w.String(), w.args...); err != nil {
		return 0, errors.Wrapf(err, "counting %s", table)
	}
	return n, nil
}

func (repo statsRepository) CountUsers(ctx context.Context, role string, exec ...core.DBExecutor) (int, error) {
	var w where
	if role != "" {
		w.add("role = ?", role)
	}
	return repo.count(ctx, exec, "users", w)
}

func (repo statsRepository) CountCourses(ctx context.Context, status string, exec ...core.DBExecutor) (int, error) {
	var w where
	if status != "" {
		w.add("status = ?", status)
	}
	return repo.count(ctx, exec, "courses", w)
}

func (repo statsRepository) CountEnrollments(ctx context.Context, exec ...core.DBExecutor) (int, error) {
	return repo.count(ctx, exec, "enrollments", where{})
}

type recentStudentRow struct {
	userRow
	EnrolledCount int `db:"enrolled_count"`
}

func (repo statsRepository) QueryRecentStudents(ctx context.Context, limit int, exec ...core.DBExecutor) ([]stats.RecentStudent, error) {
	q := `SELECT ` + columns("u", strings.Split(userColumns, ", ")) + `,
			(SELECT count(*) FROM enrollments e WHERE e.user_id = u.id) AS enrolled_count
		FROM users u
		WHERE u.role = 'student'
		ORDER BY u.created_at DESC
		LIMIT $1`

	var rows []recentStudentRow
	if err := repo.getExec(exec).SelectContext(ctx, &rows, q, limit); err != nil {
		return nil, errors.Wrap(err, "querying recent students")
	}
	students := make([]stats.RecentStudent, 0, len(rows))
	for _, row := range rows {
		students = append(students, stats.RecentStudent{User: row.user(), EnrolledCount: row.EnrolledCount})
	}
	return students, nil
}
