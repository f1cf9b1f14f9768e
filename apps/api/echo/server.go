package echoapi

import (
	"context"
	"io/fs"
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

	"github.com/trezcool/codedays/core"
	"github.com/trezcool/codedays/core/content"
	"github.com/trezcool/codedays/core/coursework"
	"github.com/trezcool/codedays/core/site"
	"github.com/trezcool/codedays/core/user"
	appfs "github.com/trezcool/codedays/fs"
	"github.com/trezcool/codedays/storage/sessions"
)

type (
	Options struct {
		Conf           *core.Config
		Logger         core.Logger
		DisableReqLogs bool
		DisableCSRF    bool

		UserSvc       user.Service
		ContentSvc    content.Service
		CourseworkSvc coursework.Service
		SiteSvc       site.Service
		Files         core.FileStore
		Sessions      sessions.Store
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
		opts       *Options
		app        *echo.Echo
		validate   *validator.Validate
		translator ut.Translator
		sessions   *sessionManager
		errors     chan error
		shutdown   chan os.Signal
	}
)

var _ Server = (*server)(nil)

func NewServer(opts *Options) (Server, error) {
	renderer, err := NewRenderer(appfs.FS, appfs.WebTemplatesDir)
	if err != nil {
		return nil, errors.Wrap(err, "loading web templates")
	}

	s := &server{
		opts:       opts,
		app:        echo.New(),
		validate:   opts.UserSvc.Validator(),
		translator: opts.UserSvc.Translator(),
		errors:     make(chan error, 1),
		shutdown:   make(chan os.Signal, 1),
	}
	signal.Notify(s.shutdown, os.Interrupt, syscall.SIGTERM)
	s.sessions = newSessionManager(opts.Conf, opts.Sessions, opts.UserSvc)
	s.app.Renderer = renderer
	if err := s.setup(); err != nil {
		return nil, err
	}
	return s, nil
}

func (s *server) setup() error {
	conf := s.opts.Conf

	s.app.HideBanner = true
	s.app.Pre(middleware.RemoveTrailingSlash())
	if !s.opts.DisableReqLogs {
		s.app.Use(middleware.Logger())
	}
	// do not recover in DEV|TEST mode
	if !(conf.Debug || conf.TestMode) {
		s.app.Use(middleware.RecoverWithConfig(middleware.RecoverConfig{LogLevel: log.ERROR}))
	}
	if !s.opts.DisableCSRF {
		s.app.Use(middleware.CSRFWithConfig(middleware.CSRFConfig{
			TokenLookup:    "form:" + csrfField,
			ContextKey:     csrfContextKey,
			CookieName:     "_csrf",
			CookiePath:     "/",
			CookieSecure:   conf.Server.CookieSecure,
			CookieHTTPOnly: true,
		}))
	}
	s.app.Use(s.sessions.load)

	s.app.HTTPErrorHandler = newAppHTTPErrorHandler(s.opts.Logger, s.signalShutdown)
	s.app.Debug = conf.Debug

	static, err := fs.Sub(appfs.FS, appfs.StaticDir)
	if err != nil {
		return errors.Wrap(err, "opening static files")
	}
	s.app.GET("/static/*", echo.WrapHandler(http.StripPrefix("/static/", http.FileServer(http.FS(static)))))
	s.app.Static("/uploads", conf.Uploads.Dir)

	s.app.GET("/", func(ctx echo.Context) error {
		return ctx.Redirect(http.StatusFound, dashboardURL)
	})

	registerAuthRoutes(s.app.Group("/auth"), s)
	registerStudentRoutes(s.app.Group("/student", requireLogin), s)
	registerAdminRoutes(s.app.Group("/admin", requireLogin, staffOnly), s)
	return nil
}

func (s *server) signalShutdown() {
	select {
	case s.shutdown <- syscall.SIGTERM:
	default: // already shutting down
	}
}

// Start serves until Shutdown; a listener failure is reported on Errors.
func (s *server) Start() {
	if err := s.app.Start(s.opts.Conf.Server.Address); err != nil && err != http.ErrServerClosed {
		s.errors <- err
	}
}

func (s *server) Errors() <-chan error             { return s.errors }
func (s *server) ShutdownSignal() <-chan os.Signal { return s.shutdown }

func (s *server) Shutdown(ctx context.Context) error {
	signal.Stop(s.shutdown)
	return s.app.Shutdown(ctx)
}

func (s *server) Close() error {
	signal.Stop(s.shutdown)
	return s.app.Close()
}

func (s *server) ServeHTTP(w http.ResponseWriter, r *http.Request) { // for tests
	s.app.ServeHTTP(w, r)
}
