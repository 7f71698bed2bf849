// Package server exposes the task executor over HTTP.
package server

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/xkilldash9x/autonote/api/schemas"
	"github.com/xkilldash9x/autonote/internal/config"
	"github.com/xkilldash9x/autonote/internal/metrics"
	"github.com/xkilldash9x/autonote/internal/task"
)

// TaskRunner is the part of the task executor the server drives.
type TaskRunner interface {
	Execute(ctx context.Context, req schemas.TaskRequest) (*schemas.TaskResult, error)
	GenerateArticle(ctx context.Context, productID, theme string) (*schemas.Article, *schemas.Product, error)
	History(ctx context.Context, limit int) (*task.History, error)
}

// Server is the HTTP trigger surface.
type Server struct {
	echo    *echo.Echo
	runner  TaskRunner
	app     config.AppConfig
	cfg     config.ServerConfig
	limiter *IPRateLimiter
	version string
	now     func() time.Time
	logger  *zap.Logger
}

// Option configures a Server.
type Option func(*Server)

// WithVersion sets the version reported by /health.
func WithVersion(v string) Option {
	return func(s *Server) { s.version = v }
}

// WithClock overrides time.Now for /health timestamps.
func WithClock(now func() time.Time) Option {
	return func(s *Server) { s.now = now }
}

// New builds the server and registers its routes. m may be nil, in which case /metrics
// is not served.
func New(runner TaskRunner, cfg *config.Config, m *metrics.Metrics, logger *zap.Logger, opts ...Option) *Server {
	s := &Server{
		echo:    echo.New(),
		runner:  runner,
		app:     cfg.App,
		cfg:     cfg.Server,
		version: "dev",
		now:     time.Now,
		logger:  logger.Named("server"),
	}
	for _, opt := range opts {
		opt(s)
	}

	e := s.echo
	e.HideBanner = true
	e.HidePort = true
	e.JSONSerializer = jsonSerializer{}

	e.Use(middleware.RequestLoggerWithConfig(middleware.RequestLoggerConfig{
		LogStatus:   true,
		LogURI:      true,
		LogError:    true,
		LogMethod:   true,
		LogLatency:  true,
		LogRemoteIP: true,
		HandleError: true,
		LogValuesFunc: func(c echo.Context, v middleware.RequestLoggerValues) error {
			fields := []zap.Field{
				zap.String("method", v.Method),
				zap.String("uri", v.URI),
				zap.Int("status", v.Status),
				zap.Duration("latency", v.Latency),
				zap.String("ip", v.RemoteIP),
			}
			if v.Error != nil {
				s.logger.Error("Request failed", append(fields, zap.Error(v.Error))...)
				return nil
			}
			s.logger.Info("Request completed", fields...)
			return nil
		},
	}))
	e.Use(middleware.Recover())

	var guard []echo.MiddlewareFunc
	if s.cfg.RateLimit > 0 {
		s.limiter = NewIPRateLimiter(rate.Limit(s.cfg.RateLimit), max(s.cfg.RateBurst, 1))
		guard = append(guard, s.limiter.Middleware())
	}

	e.GET("/health", s.handleHealth)
	if m != nil {
		e.GET("/metrics", echo.WrapHandler(m.Handler()))
	}
	e.POST("/pubsub/trigger", s.handlePubSub, guard...)
	e.POST("/execute", s.handleExecute, guard...)
	e.POST("/generate-article", s.handleGenerateArticle, guard...)
	e.GET("/posts/history", s.handleHistory, guard...)

	return s
}

// ServeHTTP makes the server usable with httptest.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.echo.ServeHTTP(w, r)
}

// Start listens on the configured port and blocks until the server stops. A graceful
// Shutdown makes it return nil.
func (s *Server) Start() error {
	addr := fmt.Sprintf(":%d", s.cfg.Port)
	s.logger.Info("Starting HTTP server", zap.String("address", addr), zap.String("env", s.app.Env))
	if err := s.echo.Start(addr); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("http server: %w", err)
	}
	return nil
}

// Shutdown stops accepting requests and waits for in-flight ones until ctx ends.
func (s *Server) Shutdown(ctx context.Context) error {
	if s.limiter != nil {
		s.limiter.Stop()
	}
	return s.echo.Shutdown(ctx)
}
