package testutil

import (
	"testing"

	"github.com/cornelabs/lms/core"
	"github.com/cornelabs/lms/core/course"
	"github.com/cornelabs/lms/core/enrollment"
	"github.com/cornelabs/lms/core/progress"
	"github.com/cornelabs/lms/core/stats"
	"github.com/cornelabs/lms/core/user"
	emailsvc "github.com/cornelabs/lms/services/email"
	logsvc "github.com/cornelabs/lms/services/logger"
	storagesvc "github.com/cornelabs/lms/services/storage"
	inmemdb "github.com/cornelabs/lms/storage/database/inmem"
)

// Env wires every service on top of a fresh in-memory database.
type Env struct {
	Conf   *core.Config
	Logger core.Logger
	DB     *inmemdb.DB
	Mail   *emailsvc.ConsoleServiceMock

	Users       user.Repository
	Courses     course.Repository
	Enrollments enrollment.Repository
	Progress    progress.Repository

	UserSvc       user.Service
	CourseSvc     course.Service
	EnrollmentSvc enrollment.Service
	ProgressSvc   progress.Service
	StatsSvc      stats.Service
}

// NewEnv builds an Env. opts may tweak the config first.
// Email templates must have been parsed (core.ParseEmailTemplates) for Mail to record messages.
func NewEnv(t *testing.T, opts ...func(conf *core.Config)) *Env {
	t.Helper()

	conf := NewConfig(t)
	for _, opt := range opts {
		opt(conf)
	}
	logger := logsvc.NewLogger(conf, "TEST")
	db := inmemdb.Open()

	env := &Env{
		Conf:        conf,
		Logger:      logger,
		DB:          db,
		Mail:        emailsvc.NewConsoleServiceMock(conf, logger),
		Users:       inmemdb.NewUserRepository(db),
		Courses:     inmemdb.NewCourseRepository(db),
		Enrollments: inmemdb.NewEnrollmentRepository(db),
		Progress:    inmemdb.NewProgressRepository(db),
	}
	env.UserSvc = user.NewService(conf, env.Users, env.Mail)
	env.CourseSvc = course.NewService(db, env.Courses, storagesvc.NewLocalStorage(conf), logger)
	env.EnrollmentSvc = enrollment.NewService(conf, db, env.Enrollments, env.CourseSvc, env.UserSvc, env.Mail)
	env.ProgressSvc = progress.NewService(env.Progress, env.CourseSvc, env.EnrollmentSvc, logger)
	env.StatsSvc = stats.NewService(inmemdb.NewStatsRepository(db))
	return env
}
