package inmemdb

import (
	"context"
	"sort"

	"github.com/cornelabs/lms/core"
	"github.com/cornelabs/lms/core/stats"
	"github.com/cornelabs/lms/core/user"
)

type statsRepository struct {
	db *DB
}

var _ stats.Repository = (*statsRepository)(nil) // interface compliance check

func NewStatsRepository(db *DB) *statsRepository {
	return &statsRepository{db: db}
}

func (repo *statsRepository) CountUsers(ctx context.Context, role string, exec ...core.DBExecutor) (int, error) {
	repo.db.mutex.RLock()
	defer repo.db.mutex.RUnlock()

	var n int
	for _, usr := range repo.db.users {
		if role == "" || usr.Role == role {
			n++
		}
	}
	return n, nil
}

func (repo *statsRepository) CountCourses(ctx context.Context, status string, exec ...core.DBExecutor) (int, error) {
	repo.db.mutex.RLock()
	defer repo.db.mutex.RUnlock()

	var n int
	for _, c := range repo.db.courses {
		if status == "" || c.Status == status {
			n++
		}
	}
	return n, nil
}

func (repo *statsRepository) CountEnrollments(ctx context.Context, exec ...core.DBExecutor) (int, error) {
	repo.db.mutex.RLock()
	defer repo.db.mutex.RUnlock()
	return len(repo.db.enrollments), nil
}

func (repo *statsRepository) QueryRecentStudents(ctx context.Context, limit int, exec ...core.DBExecutor) ([]stats.RecentStudent, error) {
	repo.db.mutex.RLock()
	defer repo.db.mutex.RUnlock()

	enrolled := make(map[string]int)
	for _, e := range repo.db.enrollments {
		enrolled[e.UserID]++
	}
	students := make([]stats.RecentStudent, 0)
	for _, usr := range repo.db.users {
		if usr.Role == user.RoleStudent {
			students = append(students, stats.RecentStudent{User: usr, EnrolledCount: enrolled[usr.ID]})
		}
	}
	sort.SliceStable(students, func(i, j int) bool { return students[i].CreatedAt.After(students[j].CreatedAt) })
	if len(students) > limit {
		students = students[:limit]
	}
	return students, nil
}
