package inmemdb

import (
	"context"
	"sync"

	"github.com/google/uuid"

	"github.com/cornelabs/lms/core"
	"github.com/cornelabs/lms/core/course"
	"github.com/cornelabs/lms/core/enrollment"
	"github.com/cornelabs/lms/core/progress"
	"github.com/cornelabs/lms/core/user"
)

type (
	// DB keeps every table in memory. It is used by tests and by the API when no database is configured.
	DB struct {
		mutex sync.RWMutex
		tables

		txMutex sync.Mutex
	}

	tables struct {
		users       map[string]user.User
		courses     map[string]course.Course
		modules     map[string]course.Module // without lessons
		lessons     map[string]course.Lesson
		enrollments map[string]enrollment.Enrollment
		progress    map[string]progress.Progress
	}
)

var _ core.DBTransactor = (*DB)(nil)

func Open() *DB {
	return &DB{tables: newTables()}
}

func newTables() tables {
	return tables{
		users:       make(map[string]user.User),
		courses:     make(map[string]course.Course),
		modules:     make(map[string]course.Module),
		lessons:     make(map[string]course.Lesson),
		enrollments: make(map[string]enrollment.Enrollment),
		progress:    make(map[string]progress.Progress),
	}
}

func copyMap[K comparable, V any](m map[K]V, clone func(V) V) map[K]V {
	cp := make(map[K]V, len(m))
	for k, v := range m {
		if clone != nil {
			v = clone(v)
		}
		cp[k] = v
	}
	return cp
}

func (t tables) snapshot() tables {
	return tables{
		users:       copyMap(t.users, nil),
		courses:     copyMap(t.courses, nil),
		modules:     copyMap(t.modules, nil),
		lessons:     copyMap(t.lessons, cloneLesson),
		enrollments: copyMap(t.enrollments, nil),
		progress:    copyMap(t.progress, cloneProgress),
	}
}

// Transact serializes transactions and restores every table when fn fails.
// Writes made outside the transaction while it runs are not isolated from it.
func (db *DB) Transact(ctx context.Context, fn func(exec core.DBExecutor) error) error {
	db.txMutex.Lock()
	defer db.txMutex.Unlock()

	db.mutex.RLock()
	snap := db.tables.snapshot()
	db.mutex.RUnlock()

	if err := fn(nil); err != nil {
		db.mutex.Lock()
		db.tables = snap
		db.mutex.Unlock()
		return err
	}
	return nil
}

func newID() string {
	return uuid.New().String()
}

func cloneLesson(l course.Lesson) course.Lesson {
	if l.QuizData != nil {
		qd := *l.QuizData
		qd.Questions = make([]course.QuizQuestion, 0, len(l.QuizData.Questions))
		for _, q := range l.QuizData.Questions {
			q.Options = append([]string(nil), q.Options...)
			if q.CorrectIndex != nil {
				idx := *q.CorrectIndex
				q.CorrectIndex = &idx
			}
			qd.Questions = append(qd.Questions, q)
		}
		l.QuizData = &qd
	}
	if l.AssignmentData != nil {
		ad := *l.AssignmentData
		l.AssignmentData = &ad
	}
	return l
}

func cloneProgress(p progress.Progress) progress.Progress {
	if p.QuizAnswers != nil {
		p.QuizAnswers = append([]int(nil), p.QuizAnswers...)
	}
	if p.Score != nil {
		s := *p.Score
		p.Score = &s
	}
	return p
}
