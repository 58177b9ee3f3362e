package echoapi

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	ut "github.com/go-playground/universal-translator"
	"github.com/go-playground/validator/v10"
	"github.com/kat-co/vala"
	echojwt "github.com/labstack/echo-jwt/v4"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"go.opentelemetry.io/contrib/instrumentation/github.com/labstack/echo/otelecho"

	"github.com/cornelabs/lms/core"
	"github.com/cornelabs/lms/core/course"
	"github.com/cornelabs/lms/core/enrollment"
	"github.com/cornelabs/lms/core/progress"
	"github.com/cornelabs/lms/core/stats"
	"github.com/cornelabs/lms/core/user"
	storagesvc "github.com/cornelabs/lms/services/storage"
)

type (
	Deps struct {
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

	Server struct {
		deps     *Deps
		app      *echo.Echo
		errors   chan error
		shutdown chan os.Signal
	}
)

func NewServer(deps *Deps) *Server {
	vala.BeginValidation().Validate(
		vala.IsNotNil(deps, "deps"),
		vala.IsNotNil(deps.Conf, "deps.Conf"),
		vala.IsNotNil(deps.Logger, "deps.Logger"),
		vala.IsNotNil(deps.Validate, "deps.Validate"),
		vala.IsNotNil(deps.Translator, "deps.Translator"),
		vala.IsNotNil(deps.Limiter, "deps.Limiter"),
		vala.IsNotNil(deps.UserSvc, "deps.UserSvc"),
		vala.IsNotNil(deps.CourseSvc, "deps.CourseSvc"),
		vala.IsNotNil(deps.EnrollmentSvc, "deps.EnrollmentSvc"),
		vala.IsNotNil(deps.ProgressSvc, "deps.ProgressSvc"),
		vala.IsNotNil(deps.StatsSvc, "deps.StatsSvc"),
	).CheckAndPanic()

	s := &Server{
		deps:     deps,
		app:      echo.New(),
		errors:   make(chan error, 1),
		shutdown: make(chan os.Signal, 1),
	}
	signal.Notify(s.shutdown, os.Interrupt, syscall.SIGTERM)
	s.setup()
	return s
}

func (s *Server) setup() {
	conf := s.deps.Conf

	s.app.HideBanner = true
	s.app.Server.ReadTimeout = conf.Server.ReadTimeout
	s.app.Server.WriteTimeout = conf.Server.WriteTimeout
	s.app.Pre(middleware.RemoveTrailingSlash())
	if conf.Otel.Enabled {
		s.app.Use(otelecho.Middleware(conf.Otel.ServiceName))
	}
	if !conf.Server.DisableReqLogs {
		s.app.Use(middleware.Logger())
	}
	// do not recover in DEV|TEST mode
	if !(conf.Debug || conf.TestMode) {
		s.app.Use(middleware.Recover())
	}
	s.app.Use(middleware.CORSWithConfig(middleware.CORSConfig{
		AllowOrigins: []string{conf.FrontendBaseURL},
		AllowHeaders: []string{echo.HeaderOrigin, echo.HeaderContentType, echo.HeaderAccept, echo.HeaderAuthorization},
	}))

	s.app.HTTPErrorHandler = newAppHTTPErrorHandler(s.deps.Logger, s.deps.Translator, s.signalShutdown)
	s.app.Debug = conf.Debug

	s.app.GET("/", s.home)
	if conf.Storage.Backend == core.StorageBackendLocal {
		s.app.Static(storagesvc.MediaPrefix, conf.Storage.LocalDir)
	}

	v1 := s.app.Group("/v1")
	jwt := echojwt.WithConfig(newJWTConfig(conf))
	limit := rateLimitMiddleware(s.deps.Limiter)

	registerUserAPI(v1, jwt, limit, s.deps)
	registerCourseAPI(v1, jwt, s.deps)
	registerLearnAPI(v1, jwt, s.deps)
	registerAdminAPI(v1, jwt, s.deps)
}

func (s *Server) home(ctx echo.Context) error {
	return ctx.String(http.StatusOK, "Welcome to "+s.deps.Conf.AppName+" API!")
}

// Start blocks until the server stops. Errors other than http.ErrServerClosed are sent to Errors().
func (s *Server) Start() {
	if err := s.app.Start(s.deps.Conf.Server.Address); err != nil && err != http.ErrServerClosed {
		s.errors <- err
	}
}

func (s *Server) Errors() <-chan error {
	return s.errors
}

func (s *Server) ShutdownSignal() <-chan os.Signal {
	return s.shutdown
}

func (s *Server) signalShutdown() {
	select {
	case s.shutdown <- syscall.SIGTERM:
	default:
	}
}

func (s *Server) Shutdown(ctx context.Context) error {
	signal.Stop(s.shutdown)
	return s.app.Shutdown(ctx)
}

func (s *Server) Close() error {
	return s.app.Close()
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) { // for tests
	s.app.ServeHTTP(w, r)
}
