package inmemdb

import (
	"context"

	"github.com/cornelabs/lms/core"
	"github.com/cornelabs/lms/core/progress"
)

type progressRepository struct {
	db *DB
}

var _ progress.Repository = (*progressRepository)(nil) // interface compliance check

func NewProgressRepository(db *DB) *progressRepository {
	return &progressRepository{db: db}
}

func (repo *progressRepository) find(userID, lessonID string) (progress.Progress, bool) {
	for _, p := range repo.db.progress {
		if p.UserID == userID && p.LessonID == lessonID {
			return p, true
		}
	}
	return progress.Progress{}, false
}

func (repo *progressRepository) GetProgress(ctx context.Context, userID, lessonID string, exec ...core.DBExecutor) (progress.Progress, error) {
	repo.db.mutex.RLock()
	defer repo.db.mutex.RUnlock()

	if p, ok := repo.find(userID, lessonID); ok {
		return cloneProgress(p), nil
	}
	return progress.Progress{}, progress.ErrNotFound
}

func (repo *progressRepository) UpsertProgress(ctx context.Context, p progress.Progress, exec ...core.DBExecutor) (progress.Progress, error) {
	repo.db.mutex.Lock()
	defer repo.db.mutex.Unlock()

	if existing, ok := repo.find(p.UserID, p.LessonID); ok {
		p.ID = existing.ID
	} else {
		p.ID = newID()
	}
	repo.db.progress[p.ID] = cloneProgress(p)
	return p, nil
}

func (repo *progressRepository) QueryCourseProgress(ctx context.Context, userID, courseID string, exec ...core.DBExecutor) ([]progress.Progress, error) {
	repo.db.mutex.RLock()
	defer repo.db.mutex.RUnlock()

	res := make([]progress.Progress, 0)
	for _, p := range repo.db.progress {
		if p.UserID != userID {
			continue
		}
		l, ok := repo.db.lessons[p.LessonID]
		if !ok {
			continue
		}
		if m, ok := repo.db.modules[l.ModuleID]; ok && m.CourseID == courseID {
			res = append(res, cloneProgress(p))
		}
	}
	return res, nil
}
