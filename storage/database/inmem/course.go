package inmemdb

import (
	"context"
	"sort"
	"strings"

	"github.com/cornelabs/lms/core"
	"github.com/cornelabs/lms/core/course"
)

type courseRepository struct {
	db *DB
}

var _ course.Repository = (*courseRepository)(nil) // interface compliance check

func NewCourseRepository(db *DB) *courseRepository {
	return &courseRepository{db: db}
}

func (repo *courseRepository) CreateCourse(ctx context.Context, c course.Course, exec ...core.DBExecutor) (course.Course, error) {
	repo.db.mutex.Lock()
	defer repo.db.mutex.Unlock()

	c.ID = newID()
	repo.db.courses[c.ID] = c
	return c, nil
}

func (repo *courseRepository) UpdateCourse(ctx context.Context, c course.Course, exec ...core.DBExecutor) (course.Course, error) {
	repo.db.mutex.Lock()
	defer repo.db.mutex.Unlock()

	if _, ok := repo.db.courses[c.ID]; !ok {
		return course.Course{}, course.ErrNotFound
	}
	repo.db.courses[c.ID] = c
	return c, nil
}

func (repo *courseRepository) DeleteCourse(ctx context.Context, id string, exec ...core.DBExecutor) error {
	repo.db.mutex.Lock()
	defer repo.db.mutex.Unlock()

	delete(repo.db.courses, id)
	var moduleIDs []string
	for _, m := range repo.db.modules {
		if m.CourseID == id {
			moduleIDs = append(moduleIDs, m.ID)
		}
	}
	repo.deleteModules(moduleIDs)
	for eid, e := range repo.db.enrollments {
		if e.CourseID == id {
			delete(repo.db.enrollments, eid)
		}
	}
	return nil
}

func (repo *courseRepository) GetCourse(ctx context.Context, id string, exec ...core.DBExecutor) (course.Course, error) {
	repo.db.mutex.RLock()
	defer repo.db.mutex.RUnlock()

	if c, ok := repo.db.courses[id]; ok {
		return c, nil
	}
	return course.Course{}, course.ErrNotFound
}

func matchCourse(c course.Course, filter *course.QueryFilter) bool {
	if filter == nil {
		return true
	}
	if filter.Search != "" {
		search := strings.ToLower(filter.Search)
		if !strings.Contains(strings.ToLower(c.Title), search) && !strings.Contains(strings.ToLower(c.Description), search) {
			return false
		}
	}
	if filter.Difficulty != "" && c.Difficulty != filter.Difficulty {
		return false
	}
	if filter.Category != "" && !strings.EqualFold(c.Category, filter.Category) {
		return false
	}
	return true
}

// counts returns the number of modules and lessons of a course.
func (repo *courseRepository) counts(courseID string) (int, int) {
	var modules, lessons int
	for _, m := range repo.db.modules {
		if m.CourseID == courseID {
			modules++
		}
	}
	for _, l := range repo.db.lessons {
		if m, ok := repo.db.modules[l.ModuleID]; ok && m.CourseID == courseID {
			lessons++
		}
	}
	return modules, lessons
}

func (repo *courseRepository) QueryCatalog(ctx context.Context, filter *course.QueryFilter, exec ...core.DBExecutor) ([]course.CatalogCourse, error) {
	repo.db.mutex.RLock()
	defer repo.db.mutex.RUnlock()

	courses := make([]course.CatalogCourse, 0)
	for _, c := range repo.db.courses {
		if !c.IsPublished() || !matchCourse(c, filter) {
			continue
		}
		modules, lessons := repo.counts(c.ID)
		courses = append(courses, course.CatalogCourse{Course: c, ModuleCount: modules, LessonCount: lessons})
	}
	sort.SliceStable(courses, func(i, j int) bool { return courses[i].CreatedAt.After(courses[j].CreatedAt) })
	return courses, nil
}

func (repo *courseRepository) QueryAdminCourses(ctx context.Context, filter *course.QueryFilter, exec ...core.DBExecutor) ([]course.AdminCourse, error) {
	repo.db.mutex.RLock()
	defer repo.db.mutex.RUnlock()

	courses := make([]course.AdminCourse, 0)
	for _, c := range repo.db.courses {
		if !matchCourse(c, filter) || (filter != nil && filter.Status != "" && c.Status != filter.Status) {
			continue
		}
		var students int
		for _, e := range repo.db.enrollments {
			if e.CourseID == c.ID {
				students++
			}
		}
		courses = append(courses, course.AdminCourse{Course: c, StudentCount: students})
	}
	sort.SliceStable(courses, func(i, j int) bool { return courses[i].UpdatedAt.After(courses[j].UpdatedAt) })
	return courses, nil
}

func (repo *courseRepository) QueryModules(ctx context.Context, courseID string, exec ...core.DBExecutor) ([]course.Module, error) {
	repo.db.mutex.RLock()
	defer repo.db.mutex.RUnlock()

	modules := make([]course.Module, 0)
	for _, m := range repo.db.modules {
		if m.CourseID != courseID {
			continue
		}
		m.Lessons = make([]course.Lesson, 0)
		for _, l := range repo.db.lessons {
			if l.ModuleID == m.ID {
				l = cloneLesson(l)
				l.CourseID = courseID
				m.Lessons = append(m.Lessons, l)
			}
		}
		sort.SliceStable(m.Lessons, func(i, j int) bool {
			if m.Lessons[i].OrderIndex != m.Lessons[j].OrderIndex {
				return m.Lessons[i].OrderIndex < m.Lessons[j].OrderIndex
			}
			return m.Lessons[i].CreatedAt.Before(m.Lessons[j].CreatedAt)
		})
		modules = append(modules, m)
	}
	sort.SliceStable(modules, func(i, j int) bool {
		if modules[i].OrderIndex != modules[j].OrderIndex {
			return modules[i].OrderIndex < modules[j].OrderIndex
		}
		return modules[i].CreatedAt.Before(modules[j].CreatedAt)
	})
	return modules, nil
}

func (repo *courseRepository) GetModule(ctx context.Context, id string, exec ...core.DBExecutor) (course.Module, error) {
	repo.db.mutex.RLock()
	defer repo.db.mutex.RUnlock()

	if m, ok := repo.db.modules[id]; ok {
		m.Lessons = []course.Lesson{}
		return m, nil
	}
	return course.Module{}, course.ErrModuleNotFound
}

func (repo *courseRepository) CreateModule(ctx context.Context, m course.Module, exec ...core.DBExecutor) (course.Module, error) {
	repo.db.mutex.Lock()
	defer repo.db.mutex.Unlock()

	if _, ok := repo.db.courses[m.CourseID]; !ok {
		return course.Module{}, course.ErrNotFound
	}
	m.ID = newID()
	m.Lessons = nil
	repo.db.modules[m.ID] = m
	m.Lessons = []course.Lesson{}
	return m, nil
}

func (repo *courseRepository) UpdateModule(ctx context.Context, m course.Module, exec ...core.DBExecutor) (course.Module, error) {
	repo.db.mutex.Lock()
	defer repo.db.mutex.Unlock()

	orig, ok := repo.db.modules[m.ID]
	if !ok {
		return course.Module{}, course.ErrModuleNotFound
	}
	orig.Title = m.Title
	orig.OrderIndex = m.OrderIndex
	repo.db.modules[m.ID] = orig
	orig.Lessons = []course.Lesson{}
	return orig, nil
}

func (repo *courseRepository) deleteModules(ids []string) {
	var lessonIDs []string
	for _, id := range ids {
		delete(repo.db.modules, id)
		for _, l := range repo.db.lessons {
			if l.ModuleID == id {
				lessonIDs = append(lessonIDs, l.ID)
			}
		}
	}
	repo.deleteLessons(lessonIDs)
}

func (repo *courseRepository) DeleteModules(ctx context.Context, ids []string, exec ...core.DBExecutor) error {
	repo.db.mutex.Lock()
	defer repo.db.mutex.Unlock()

	repo.deleteModules(ids)
	return nil
}

func (repo *courseRepository) GetLesson(ctx context.Context, id string, exec ...core.DBExecutor) (course.Lesson, error) {
	repo.db.mutex.RLock()
	defer repo.db.mutex.RUnlock()

	l, ok := repo.db.lessons[id]
	if !ok {
		return course.Lesson{}, course.ErrLessonNotFound
	}
	l = cloneLesson(l)
	l.CourseID = repo.db.modules[l.ModuleID].CourseID
	return l, nil
}

func (repo *courseRepository) CreateLesson(ctx context.Context, l course.Lesson, exec ...core.DBExecutor) (course.Lesson, error) {
	repo.db.mutex.Lock()
	defer repo.db.mutex.Unlock()

	m, ok := repo.db.modules[l.ModuleID]
	if !ok {
		return course.Lesson{}, course.ErrModuleNotFound
	}
	l.ID = newID()
	l.CourseID = m.CourseID
	repo.db.lessons[l.ID] = cloneLesson(l)
	return l, nil
}

func (repo *courseRepository) UpdateLesson(ctx context.Context, l course.Lesson, exec ...core.DBExecutor) (course.Lesson, error) {
	repo.db.mutex.Lock()
	defer repo.db.mutex.Unlock()

	if _, ok := repo.db.lessons[l.ID]; !ok {
		return course.Lesson{}, course.ErrLessonNotFound
	}
	m, ok := repo.db.modules[l.ModuleID]
	if !ok {
		return course.Lesson{}, course.ErrModuleNotFound
	}
	l.CourseID = m.CourseID
	repo.db.lessons[l.ID] = cloneLesson(l)
	return l, nil
}

func (repo *courseRepository) deleteLessons(ids []string) {
	deleted := make(map[string]bool, len(ids))
	for _, id := range ids {
		delete(repo.db.lessons, id)
		deleted[id] = true
	}
	for pid, p := range repo.db.progress {
		if deleted[p.LessonID] {
			delete(repo.db.progress, pid)
		}
	}
}

func (repo *courseRepository) DeleteLessons(ctx context.Context, ids []string, exec ...core.DBExecutor) error {
	repo.db.mutex.Lock()
	defer repo.db.mutex.Unlock()

	repo.deleteLessons(ids)
	return nil
}
