// Package api serves the REST control surface with gin.
package api

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"

	"github.com/felixgeelhaar/recon-go/domain/goal"
	"github.com/felixgeelhaar/recon-go/domain/run"
	"github.com/felixgeelhaar/recon-go/infrastructure/logging"
)

// Scanner is the control surface the handlers drive. *application.Service
// implements it.
type Scanner interface {
	Goals() []goal.Spec
	Start(ctx context.Context, target, goalID string) (*run.Record, error)
	Status() run.StatusView
	Runs(ctx context.Context, filter run.ListFilter) ([]*run.Record, error)
	Run(ctx context.Context, id string) (*run.Record, error)
}

// Config configures the router.
type Config struct {
	Scanner Scanner

	// MetricsHandler serves GET /metrics when set.
	MetricsHandler http.Handler

	// ServiceName names spans created by the tracing middleware.
	ServiceName string

	// DefaultGoal is used when a start request omits the goal.
	DefaultGoal string
}

// NewRouter builds the gin engine with every route registered.
func NewRouter(cfg Config) (*gin.Engine, error) {
	if cfg.Scanner == nil {
		return nil, errors.New("scanner is required")
	}
	if cfg.ServiceName == "" {
		cfg.ServiceName = "recon"
	}
	if cfg.DefaultGoal == "" {
		cfg.DefaultGoal = goal.DefaultID
	}

	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(otelgin.Middleware(cfg.ServiceName))
	router.Use(requestLogger())

	h := &handlers{scanner: cfg.Scanner, defaultGoal: cfg.DefaultGoal}

	apiGroup := router.Group("/api")
	{
		apiGroup.GET("/ping", h.ping)
		apiGroup.GET("/goals", h.listGoals)
		apiGroup.POST("/scan", h.startScan)
		apiGroup.GET("/scan/status", h.scanStatus)
		apiGroup.GET("/runs", h.listRuns)
		apiGroup.GET("/runs/:id", h.getRun)
		apiGroup.GET("/runs/:id/report", h.getReport)
	}

	if cfg.MetricsHandler != nil {
		router.GET("/metrics", gin.WrapH(cfg.MetricsHandler))
	}

	return router, nil
}

func requestLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		logging.Debug().
			Add(logging.Component("api")).
			Add(logging.Str("method", c.Request.Method)).
			Add(logging.Str("path", c.FullPath())).
			Add(logging.HTTPStatus(c.Writer.Status())).
			Add(logging.Duration(time.Since(start))).
			Msg("request served")
	}
}

// Server runs the router until its context ends.
type Server struct {
	http *http.Server
}

// NewServer creates an HTTP server for handler on addr.
func NewServer(addr string, handler http.Handler) *Server {
	return &Server{http: &http.Server{
		Addr:              addr,
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
	}}
}

// ListenAndServe serves until ctx is cancelled, then shuts down gracefully.
func (s *Server) ListenAndServe(ctx context.Context) error {
	errCh := make(chan error, 1)
	go func() {
		logging.Info().
			Add(logging.Component("api")).
			Add(logging.Str("addr", s.http.Addr)).
			Msg("listening")
		errCh <- s.http.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 10*time.Second)
		defer cancel()
		return s.http.Shutdown(shutdownCtx)
	}
}
