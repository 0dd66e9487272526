package echoapi

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	ut "github.com/go-playground/universal-translator"
	"github.com/go-playground/validator/v10"
	"github.com/jonboulle/clockwork"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/labstack/gommon/log"

	"github.com/zerlake/thesisai-philippines-sub009/core"
	"github.com/zerlake/thesisai-philippines-sub009/core/dashboard"
	"github.com/zerlake/thesisai-philippines-sub009/core/notification"
	"github.com/zerlake/thesisai-philippines-sub009/core/personalization"
	"github.com/zerlake/thesisai-philippines-sub009/core/widget"
)

// WidgetSource produces the current payload of a widget for a user.
type WidgetSource func(ctx context.Context, userID, widgetID string) (interface{}, error)

// ManagerSource fetches each user's widgets through m, scoped to that user.
func ManagerSource(m *dashboard.Manager) WidgetSource {
	return func(ctx context.Context, userID, widgetID string) (interface{}, error) {
		return m.Fetch(dashboard.WithUser(ctx, userID), widgetID, nil).Data, nil
	}
}

type (
	ServerDeps struct {
		Conf       *core.Config
		Logger     core.Logger
		Validate   *validator.Validate
		Translator ut.Translator
		Clock      clockwork.Clock // real clock when nil

		Registry     *widget.Registry
		WidgetStore  widget.Store
		WidgetSource WidgetSource // Registry.Mock when nil

		NotificationRepo notification.Repository
		Stream           notification.Stream // websocket bells poll only when nil

		Personalization *personalization.Client // health route disabled when nil

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
		ServerDeps
		app      *echo.Echo
		errors   chan error
		shutdown chan os.Signal
	}
)

var _ Server = (*server)(nil) // interface compliance check

func NewServer(deps ServerDeps) Server {
	s := &server{
		ServerDeps: deps,
		app:        echo.New(),
		errors:     make(chan error, 1),
		shutdown:   make(chan os.Signal, 1),
	}
	if s.Clock == nil {
		s.Clock = clockwork.NewRealClock()
	}
	if s.WidgetSource == nil && s.Registry != nil {
		reg := s.Registry
		s.WidgetSource = func(_ context.Context, _, widgetID string) (interface{}, error) {
			return reg.Mock(widgetID), nil
		}
	}
	signal.Notify(s.shutdown, os.Interrupt, syscall.SIGTERM)
	s.setup()
	return s
}

func (s *server) setup() {
	s.app.Pre(middleware.RemoveTrailingSlash())
	if !s.DisableReqLogs {
		s.app.Use(middleware.Logger())
	}
	// do not recover in DEV|TEST mode
	if !(s.Conf.Debug || s.Conf.TestMode) {
		s.app.Use(middleware.RecoverWithConfig(middleware.RecoverConfig{LogLevel: log.ERROR}))
	}

	s.app.HideBanner = true
	s.app.HTTPErrorHandler = newAppHTTPErrorHandler(s.Logger, s.Translator, s.signalShutdown)
	s.app.Debug = s.Conf.Debug

	s.app.GET("/", home)

	jwt := middleware.JWTWithConfig(newJWTConfig(s.Conf))

	api := s.app.Group("/api")
	registerWidgetAPI(api.Group("/dashboard/widgets", jwt), s)
	if s.Personalization != nil {
		registerPersonalizationAPI(api.Group("/personalization"), s.Personalization)
	}

	v1 := s.app.Group("/v1")
	registerBellAPI(v1.Group("/notifications/bell", jwt), s)
}

func (s *server) signalShutdown() {
	s.shutdown <- syscall.SIGSTOP
}

func (s *server) Start() {
	s.errors <- s.app.Start(s.Conf.Server.Host)
}

func (s *server) Errors() <-chan error {
	return s.errors
}

func (s *server) ShutdownSignal() <-chan os.Signal {
	return s.shutdown
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

func home(ctx echo.Context) error {
	return ctx.String(http.StatusOK, "Welcome to the ThesisAI dashboard API!")
}
