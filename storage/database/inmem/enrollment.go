package inmemdb

import (
	"context"
	"sort"

	"github.com/cornelabs/lms/core"
	"github.com/cornelabs/lms/core/enrollment"
)

type enrollmentRepository struct {
	db *DB
}

var _ enrollment.Repository = (*enrollmentRepository)(nil) // interface compliance check

func NewEnrollmentRepository(db *DB) *enrollmentRepository {
	return &enrollmentRepository{db: db}
}

func (repo *enrollmentRepository) find(userID, courseID string) (enrollment.Enrollment, bool) {
	for _, e := range repo.db.enrollments {
		if e.UserID == userID && e.CourseID == courseID {
			return e, true
		}
	}
	return enrollment.Enrollment{}, false
}

func (repo *enrollmentRepository) CreateEnrollment(ctx context.Context, e enrollment.Enrollment, exec ...core.DBExecutor) (enrollment.Enrollment, error) {
	repo.db.mutex.Lock()
	defer repo.db.mutex.Unlock()

	if _, exists := repo.find(e.UserID, e.CourseID); exists {
		return enrollment.Enrollment{}, enrollment.ErrAlreadyEnrolled
	}
	e.ID = newID()
	repo.db.enrollments[e.ID] = e
	return e, nil
}

func (repo *enrollmentRepository) GetEnrollment(ctx context.Context, userID, courseID string, exec ...core.DBExecutor) (enrollment.Enrollment, error) {
	repo.db.mutex.RLock()
	defer repo.db.mutex.RUnlock()

	if e, ok := repo.find(userID, courseID); ok {
		return e, nil
	}
	return enrollment.Enrollment{}, enrollment.ErrNotFound
}

func (repo *enrollmentRepository) UpdateEnrollment(ctx context.Context, e enrollment.Enrollment, exec ...core.DBExecutor) (enrollment.Enrollment, error) {
	repo.db.mutex.Lock()
	defer repo.db.mutex.Unlock()

	orig, ok := repo.db.enrollments[e.ID]
	if !ok {
		return enrollment.Enrollment{}, enrollment.ErrNotFound
	}
	orig.Status = e.Status
	orig.CompletedAt = e.CompletedAt
	repo.db.enrollments[e.ID] = orig
	return orig, nil
}

// lessonCounts returns the number of lessons of a course and how many of them userID completed.
func (repo *enrollmentRepository) lessonCounts(userID, courseID string) (int, int) {
	lessons := make(map[string]bool)
	for _, l := range repo.db.lessons {
		if m, ok := repo.db.modules[l.ModuleID]; ok && m.CourseID == courseID {
			lessons[l.ID] = true
		}
	}
	var completed int
	for _, p := range repo.db.progress {
		if p.UserID == userID && p.Completed && lessons[p.LessonID] {
			completed++
		}
	}
	return len(lessons), completed
}

func (repo *enrollmentRepository) QueryUserEnrollments(ctx context.Context, userID string, exec ...core.DBExecutor) ([]enrollment.UserEnrollment, error) {
	repo.db.mutex.RLock()
	defer repo.db.mutex.RUnlock()

	enrollments := make([]enrollment.UserEnrollment, 0)
	for _, e := range repo.db.enrollments {
		if e.UserID != userID {
			continue
		}
		c, ok := repo.db.courses[e.CourseID]
		if !ok {
			continue
		}
		total, completed := repo.lessonCounts(userID, e.CourseID)
		enrollments = append(enrollments, enrollment.UserEnrollment{
			Enrollment:       e,
			Course:           c,
			TotalLessons:     total,
			CompletedLessons: completed,
		})
	}
	sort.SliceStable(enrollments, func(i, j int) bool {
		return enrollments[i].EnrolledAt.After(enrollments[j].EnrolledAt)
	})
	return enrollments, nil
}

func (repo *enrollmentRepository) QueryCourseStudents(ctx context.Context, courseID string, exec ...core.DBExecutor) ([]enrollment.CourseStudent, error) {
	repo.db.mutex.RLock()
	defer repo.db.mutex.RUnlock()

	students := make([]enrollment.CourseStudent, 0)
	for _, e := range repo.db.enrollments {
		if e.CourseID != courseID {
			continue
		}
		usr, ok := repo.db.users[e.UserID]
		if !ok {
			continue
		}
		total, completed := repo.lessonCounts(e.UserID, courseID)
		students = append(students, enrollment.CourseStudent{
			Enrollment:       e,
			Student:          usr,
			TotalLessons:     total,
			CompletedLessons: completed,
		})
	}
	sort.SliceStable(students, func(i, j int) bool {
		return students[i].EnrolledAt.After(students[j].EnrolledAt)
	})
	return students, nil
}
