// Package dashboard serves a read-only HTTP view of a running datacenter.
//
// The dashboard holds no state of its own. Every request is translated
// into one command on the datacenter's TCP protocol:
//
//	GET  /estado            STATUS
//	GET  /analisis          STATUS, then occupancy and energy alerts
//	GET  /cristales         LIST
//	GET  /cristales/:name   INFO <name>
//	GET  /ia/estado         AI_STATUS
//	GET  /ia/reporte        AI_REPORT
//	POST /ia/optimizar      AI_OPTIMIZE
//	GET  /ws                STATUS every refresh interval, over a websocket
//
// Together with /health, the HTML page at / and the Prometheus /metrics
// endpoint this is the full route table.
package dashboard

import (
	"context"
	"embed"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"

	"github.com/dreamware/knotdc/internal/ai"
	"github.com/dreamware/knotdc/internal/crystal"
	"github.com/dreamware/knotdc/internal/protocol"
)

//go:embed static/index.html
var static embed.FS

// Backend is the subset of the protocol client the dashboard uses.
type Backend interface {
	Status(ctx context.Context) (protocol.StatusResponse, error)
	List(ctx context.Context) ([]string, error)
	Info(ctx context.Context, name string) (crystal.State, error)
	AIStatus(ctx context.Context) (ai.Metrics, error)
	AIReport(ctx context.Context) (string, error)
	AIOptimize(ctx context.Context) (ai.SweepResult, error)
}

// DefaultRefresh is the websocket push interval when none is configured.
const DefaultRefresh = 2 * time.Second

// Option configures a Dashboard.
type Option func(*Dashboard)

// WithLogger sets the logger. The default is slog.Default().
func WithLogger(l *slog.Logger) Option {
	return func(d *Dashboard) {
		if l != nil {
			d.logger = l
		}
	}
}

// WithRefresh sets the websocket push interval.
func WithRefresh(every time.Duration) Option {
	return func(d *Dashboard) {
		if every > 0 {
			d.refresh = every
		}
	}
}

// Dashboard is the HTTP front end.
type Dashboard struct {
	backend Backend
	logger  *slog.Logger
	engine  *gin.Engine
	refresh time.Duration
}

// New builds the router for backend.
func New(backend Backend, opts ...Option) *Dashboard {
	d := &Dashboard{
		backend: backend,
		logger:  slog.Default(),
		refresh: DefaultRefresh,
	}
	for _, opt := range opts {
		opt(d)
	}

	r := gin.New()
	r.Use(gin.Recovery(), otelgin.Middleware("knotdc-dashboard"), d.observe())

	r.GET("/health", d.health)
	r.GET("/", d.index)
	r.GET("/estado", d.status)
	r.GET("/analisis", d.analysis)
	r.GET("/cristales", d.crystals)
	r.GET("/cristales/:name", d.crystal)
	r.GET("/ia/estado", d.aiStatus)
	r.GET("/ia/reporte", d.aiReport)
	r.POST("/ia/optimizar", d.aiOptimize)
	r.GET("/ws", d.stream)
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	d.engine = r
	return d
}

// Handler returns the router.
func (d *Dashboard) Handler() http.Handler {
	return d.engine
}

// Run serves on addr until ctx is canceled, then shuts down gracefully.
func (d *Dashboard) Run(ctx context.Context, addr string) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           d.engine,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		d.logger.Info("dashboard listening", "addr", addr)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("dashboard: %w", err)
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("dashboard shutdown: %w", err)
		}
		d.logger.Info("dashboard stopped")
		return nil
	}
}
