package dig_container

import (
	"context"
	"fmt"
	"log"

	"github.com/go-playground/locales/en"
	ut "github.com/go-playground/universal-translator"
	"github.com/go-playground/validator/v10"
	"github.com/jmoiron/sqlx"
	"github.com/pkg/errors"
	"go.uber.org/dig"

	echoapi "github.com/cornelabs/lms/apps/api/echo"
	"github.com/cornelabs/lms/core"
	"github.com/cornelabs/lms/core/course"
	"github.com/cornelabs/lms/core/enrollment"
	"github.com/cornelabs/lms/core/progress"
	"github.com/cornelabs/lms/core/stats"
	"github.com/cornelabs/lms/core/user"
	emailsvc "github.com/cornelabs/lms/services/email"
	logsvc "github.com/cornelabs/lms/services/logger"
	ratelimitsvc "github.com/cornelabs/lms/services/ratelimit"
	storagesvc "github.com/cornelabs/lms/services/storage"
	"github.com/cornelabs/lms/storage/database"
	inmemdb "github.com/cornelabs/lms/storage/database/inmem"
	sqlxrepos "github.com/cornelabs/lms/storage/database/sqlx"
)

type (
	DBLoggerParam struct {
		dig.In
		Logger core.Logger `name:"dbLogger"`
	}

	// DBCloser releases the database. It is a no-op for the in-memory store.
	DBCloser func() error

	store struct {
		dig.Out
		Transactor  core.DBTransactor
		Users       user.Repository
		Courses     course.Repository
		Enrollments enrollment.Repository
		Progress    progress.Repository
		Stats       stats.Repository
		Closer      DBCloser
	}

	serverParams struct {
		dig.In
		Conf          *core.Config
		Logger        core.Logger
		Validate      *validator.Validate
		Translator    ut.Translator
		Limiter       core.RateLimiter
		UserSvc       user.Service
		CourseSvc     course.Service
		EnrollmentSvc enrollment.Service
		ProgressSvc   progress.Service
		StatsSvc      stats.Service
	}
)

func newLogger(conf *core.Config) core.Logger {
	return logsvc.NewLogger(conf, "API")
}

func newDBLogger(conf *core.Config) core.Logger {
	return logsvc.NewLogger(conf, "DB")
}

func newStore(conf *core.Config, loggerParam DBLoggerParam) store {
	if conf.Database.Engine == core.DatabaseEngineMemory {
		loggerParam.Logger.Warn("using the in-memory database: data is lost on restart")
		db := inmemdb.Open()
		return store{
			Transactor:  db,
			Users:       inmemdb.NewUserRepository(db),
			Courses:     inmemdb.NewCourseRepository(db),
			Enrollments: inmemdb.NewEnrollmentRepository(db),
			Progress:    inmemdb.NewProgressRepository(db),
			Stats:       inmemdb.NewStatsRepository(db),
			Closer:      func() error { return nil },
		}
	}

	setUp := func() (*sqlx.DB, error) {
		if err := database.CreateIfNotExist(conf); err != nil {
			return nil, err
		}

		db, err := database.Open(conf)
		if err != nil {
			return nil, err
		}

		if err = database.Migrate(db); err != nil {
			return nil, err
		}
		return db, nil
	}

	db, err := setUp()
	if err != nil {
		loggerParam.Logger.Fatal(fmt.Sprintf("setting up database: %v", err), err)
	}
	return store{
		Transactor:  database.NewTransactor(db),
		Users:       sqlxrepos.NewUserRepository(db),
		Courses:     sqlxrepos.NewCourseRepository(db),
		Enrollments: sqlxrepos.NewEnrollmentRepository(db),
		Progress:    sqlxrepos.NewProgressRepository(db),
		Stats:       sqlxrepos.NewStatsRepository(db),
		Closer:      db.Close,
	}
}

func newFileStorage(conf *core.Config, logger core.Logger) core.FileStorage {
	fs, err := storagesvc.NewFileStorage(context.Background(), conf, logger)
	if err != nil {
		logger.Fatal(fmt.Sprintf("setting up file storage: %v", err), err)
	}
	return fs
}

func newRateLimiter(conf *core.Config, logger core.Logger) core.RateLimiter {
	limiter, err := ratelimitsvc.NewLimiter(context.Background(), conf, logger)
	if err != nil {
		logger.Error("redis rate limiter unavailable, falling back to memory", err)
		return ratelimitsvc.NewMemoryLimiter(conf.RateLimit.Requests, conf.RateLimit.Window)
	}
	return limiter
}

func newTranslator() ut.Translator {
	_en := en.New()
	uni := ut.New(_en, _en)
	translator, _ := uni.GetTranslator("en")
	return translator
}

func newServer(p serverParams) *echoapi.Server {
	return echoapi.NewServer(&echoapi.Deps{
		Conf:          p.Conf,
		Logger:        p.Logger,
		Validate:      p.Validate,
		Translator:    p.Translator,
		Limiter:       p.Limiter,
		UserSvc:       p.UserSvc,
		CourseSvc:     p.CourseSvc,
		EnrollmentSvc: p.EnrollmentSvc,
		ProgressSvc:   p.ProgressSvc,
		StatsSvc:      p.StatsSvc,
	})
}

// New returns a new dependency injection dig.Container
func New() *dig.Container {
	c := dig.New()

	must(c.Provide(core.NewConfig))
	must(c.Provide(newLogger))
	must(c.Provide(newDBLogger, dig.Name("dbLogger")))
	must(c.Provide(newStore))
	must(c.Provide(emailsvc.NewService))
	must(c.Provide(newFileStorage))
	must(c.Provide(newRateLimiter))
	must(c.Provide(func() *validator.Validate { return validator.New() }))
	must(c.Provide(newTranslator))
	must(c.Provide(user.NewService))
	must(c.Provide(course.NewService))
	must(c.Provide(enrollment.NewService))
	must(c.Provide(progress.NewService))
	must(c.Provide(stats.NewService))
	must(c.Provide(newServer))

	return c
}

// must exits program if err happened
func must(err error) {
	if err != nil {
		log.Fatal(errors.Wrap(err, "failed to provide dependency").Error())
	}
}
