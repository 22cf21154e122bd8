package server

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"

	"github.com/civicnet/weeklymatch/internal/cycle"
	"github.com/civicnet/weeklymatch/internal/meeting"
	"github.com/civicnet/weeklymatch/internal/middleware"
	"github.com/civicnet/weeklymatch/internal/monitoring"
	"github.com/civicnet/weeklymatch/internal/telemetry"
)

const (
	CronPath        = "/api/cron/weekly-matches"
	LastSummaryPath = "/api/cron/weekly-matches/last"
)

// Runner executes one matching cycle
type Runner interface {
	Run(ctx context.Context, opts cycle.Options) *cycle.Summary
}

// SummaryReader loads the summary stored by the last cycle
type SummaryReader interface {
	LoadLastSummary(ctx context.Context, dest interface{}) (bool, error)
}

// Config wires the HTTP surface. Summaries, Health and Metrics are optional.
type Config struct {
	ServiceName string
	CronSecret  string
	Defaults    cycle.Options
	Runner      Runner
	Summaries   SummaryReader
	Health      *monitoring.HealthChecker
	Metrics     *monitoring.CycleMetrics
}

// Server is the gin HTTP service exposing the cron trigger and its support endpoints
type Server struct {
	cfg    Config
	router *gin.Engine
	// running admits one cycle at a time
	running chan struct{}
}

func New(cfg Config) *Server {
	if cfg.ServiceName == "" {
		cfg.ServiceName = "weeklymatch"
	}
	s := &Server{cfg: cfg, router: gin.New(), running: make(chan struct{}, 1)}
	s.routes()
	return s
}

func (s *Server) routes() {
	r := s.router
	r.Use(
		otelgin.Middleware(s.cfg.ServiceName),
		middleware.LoggingMiddleware(nil),
		middleware.Recovery(),
		s.cfg.Metrics.RequestMetrics(),
	)

	cron := r.Group("", middleware.CronAuth(s.cfg.CronSecret))
	cron.POST(CronPath, s.handleRunCycle)
	// Hosted schedulers such as Vercel Cron issue GET requests.
	cron.GET(CronPath, s.handleRunCycle)
	cron.GET(LastSummaryPath, s.handleLastSummary)

	r.GET(meeting.ICSPath, s.handleICS)

	if s.cfg.Health != nil {
		r.GET("/health", s.cfg.Health.HealthHandler())
		r.GET("/livez", s.cfg.Health.LivenessHandler())
	} else {
		r.GET("/health", func(c *gin.Context) { c.JSON(http.StatusOK, gin.H{"status": "healthy"}) })
	}
	if s.cfg.Metrics != nil {
		r.GET("/metrics", s.cfg.Metrics.MetricsHandler())
	}
}

// Handler exposes the router, mainly for tests
func (s *Server) Handler() http.Handler {
	return s.router
}

// ListenAndServe serves on addr until ctx is cancelled, then drains in-flight requests
// for up to shutdownTimeout.
func (s *Server) ListenAndServe(ctx context.Context, addr string, shutdownTimeout time.Duration) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           s.router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		telemetry.LogFromContext(ctx).WithField("addr", addr).Info("HTTP server listening")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), shutdownTimeout)
	defer cancel()
	telemetry.LogFromContext(ctx).Info("Shutting down HTTP server")
	return srv.Shutdown(shutdownCtx)
}
