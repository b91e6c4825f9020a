package httpapi

import (
	"context"
	"errors"
	"log/slog"
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"

	"careerlens/internal/ports"
	"careerlens/internal/profile"
	"careerlens/internal/speech"
	"careerlens/internal/usecase"
)

// ChannelFactory builds the speech channel a live connection asks for.
type ChannelFactory interface {
	RemoteChannel(peer speech.RemotePeer) *speech.Remote
	StreamingChannel(capture ports.AudioCapture, sink ports.AudioSink) *speech.Streaming
}

type Deps struct {
	Registry *usecase.Registry
	Turns    *usecase.TurnService
	Profiles *profile.Service
	Channels ChannelFactory
	Logger   *slog.Logger
	// RuntimeInfo reports non-sensitive settings for the client.
	RuntimeInfo func() map[string]string
}

// Server is the HTTP and websocket surface of the coaching service.
type Server struct {
	e    *echo.Echo
	deps Deps
	log  *slog.Logger
}

func New(deps Deps) *Server {
	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true

	s := &Server{e: e, deps: deps, log: logger}
	e.HTTPErrorHandler = s.handleError
	e.Use(middleware.Recover())
	e.Use(middleware.CORS())
	e.Use(middleware.RequestLoggerWithConfig(middleware.RequestLoggerConfig{
		LogMethod:   true,
		LogURI:      true,
		LogStatus:   true,
		LogLatency:  true,
		LogError:    true,
		HandleError: true,
		LogValuesFunc: func(c echo.Context, v middleware.RequestLoggerValues) error {
			level := slog.LevelInfo
			attrs := []slog.Attr{
				slog.String("method", v.Method),
				slog.String("uri", v.URI),
				slog.Int("status", v.Status),
				slog.Duration("latency", v.Latency),
			}
			if v.Error != nil {
				level = slog.LevelWarn
				attrs = append(attrs, slog.String("error", v.Error.Error()))
			}
			logger.LogAttrs(c.Request().Context(), level, "request", attrs...)
			return nil
		},
	}))

	s.routes()
	return s
}

func (s *Server) routes() {
	s.e.GET("/healthz", func(c echo.Context) error { return c.String(http.StatusOK, "ok") })

	api := s.e.Group("/api")
	api.POST("/turns", s.postTurn)
	api.POST("/ai-interviewer", s.postTurn)
	api.POST("/english-helper", s.postEnglishTurn)

	api.POST("/sessions", s.createSession)
	api.GET("/sessions/:id", s.getSession)
	api.DELETE("/sessions/:id", s.endSession)
	api.POST("/sessions/:id/utterances", s.submitUtterance)
	api.GET("/sessions/:id/live", s.live)

	api.GET("/runtime", s.runtimeInfo)
	api.GET("/profile", s.getProfile)
	api.POST("/profile", s.saveProfile)
}

func (s *Server) runtimeInfo(c echo.Context) error {
	info := map[string]string{}
	if s.deps.RuntimeInfo != nil {
		info = s.deps.RuntimeInfo()
	}
	return c.JSON(http.StatusOK, info)
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.e.ServeHTTP(w, r)
}

// Start serves on addr until Shutdown.
func (s *Server) Start(addr string) error {
	err := s.e.Start(addr)
	if errors.Is(err, http.ErrServerClosed) {
		return nil
	}
	return err
}

func (s *Server) Shutdown(ctx context.Context) error {
	return s.e.Shutdown(ctx)
}
