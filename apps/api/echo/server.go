package echoapi

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	ut "github.com/go-playground/universal-translator"
	"github.com/go-playground/validator/v10"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/labstack/gommon/log"
	"github.com/pkg/errors"

	"github.com/trezcool/academia/apps/api/di"
	"github.com/trezcool/academia/core"
)

type (
	ServerDeps struct {
		Conf           *core.Config
		Logger         core.Logger
		Validate       *validator.Validate
		Translator     ut.Translator
		Services       *di.Container
		DisableReqLogs bool
	}

	Server interface {
		http.Handler
		Start()
		Errors() <-chan error
		ShutdownSignal() <-chan os.Signal
		Shutdown(ctx context.Context) error
		Close() error
	}

	server struct {
		deps     ServerDeps
		app      *echo.Echo
		auth     *Authenticator
		errors   chan error
		shutdown chan os.Signal
	}
)

var _ Server = (*server)(nil)

func NewServer(deps ServerDeps) Server {
	s := &server{
		deps:     deps,
		app:      echo.New(),
		auth:     NewAuthenticator(deps.Conf),
		errors:   make(chan error, 1),
		shutdown: make(chan os.Signal, 1),
	}
	s.setup()
	return s
}

func (s *server) setup() {
	conf := s.deps.Conf

	s.app.HideBanner = true
	s.app.Pre(middleware.RemoveTrailingSlash())
	if !s.deps.DisableReqLogs {
		s.app.Use(middleware.Logger())
	}
	// do not recover in DEV|TEST mode
	if !(conf.Debug || conf.TestMode) {
		s.app.Use(middleware.RecoverWithConfig(middleware.RecoverConfig{LogLevel: log.ERROR}))
	}

	s.app.HTTPErrorHandler = newAppHTTPErrorHandler(s.deps.Logger, s.deps.Translator, s.signalShutdown)
	s.app.Debug = conf.Debug && !conf.TestMode

	s.app.GET("/", s.home)
	if conf.StorageRoot != "" {
		s.app.Static("/media", conf.StorageRoot)
	}

	api := s.app.Group("/api")
	jwt := s.auth.Middleware()
	svc := s.deps.Services
	validate := s.deps.Validate

	registerUserAPI(api, jwt, s.auth, svc.UserSvc, svc.PasswordReset, validate)
	registerStudentAPI(api, jwt, svc.StudentSvc, svc.UserSvc, validate)
	registerInstructorAPI(api, jwt, svc.InstructorSvc, svc.UserSvc, svc.CourseSvc, validate)
	registerAdminAPI(api, jwt, svc.AdminSvc, svc.UserSvc, validate)
	registerAcademicsAPI(api, jwt, svc.DepartmentSvc, validate)
	registerCourseAPI(api, jwt, svc.CourseSvc, svc.InstructorSvc, validate)
	registerGradingAPI(api, jwt, svc.GradingSvc, validate)
	registerApplicationAPI(api, jwt, svc.ApplicationSvc, svc.LMS, validate)
	registerDashboardAPI(api, jwt, svc.DashboardSvc)
	registerLearnAPI(api, jwt, learnApi{
		students: svc.StudentSvc,
		courses:  svc.CourseSvc,
		gating:   svc.Gating,
		items:    svc.ItemSvc,
		modules:  svc.ModuleSvc,
		quizzes:  svc.QuizSvc,
		grading:  svc.GradingSvc,
	})
}

// Start listens until the server is shut down. Listening errors are sent to Errors().
func (s *server) Start() {
	signal.Notify(s.shutdown, os.Interrupt, syscall.SIGTERM)

	s.deps.Logger.Info(fmt.Sprintf("API listening on %s", s.deps.Conf.Server.Address))
	if err := s.app.Start(s.deps.Conf.Server.Address); err != nil && !errors.Is(err, http.ErrServerClosed) {
		s.errors <- err
	}
}

func (s *server) Errors() <-chan error {
	return s.errors
}

func (s *server) ShutdownSignal() <-chan os.Signal {
	return s.shutdown
}

func (s *server) signalShutdown() {
	select {
	case s.shutdown <- syscall.SIGTERM:
	default: // already signaled
	}
}

func (s *server) Shutdown(ctx context.Context) error {
	return s.app.Shutdown(ctx)
}

func (s *server) Close() error {
	return s.app.Close()
}

func (s *server) ServeHTTP(w http.ResponseWriter, r *http.Request) { // for tests
	s.app.ServeHTTP(w, r)
}

func (s *server) home(ctx echo.Context) error {
	return ctx.String(http.StatusOK, fmt.Sprintf("Welcome to %s API!", s.deps.Conf.AppName))
}
