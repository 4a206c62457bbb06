package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math/rand/v2"
	"net"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/sync/errgroup"

	"github.com/dreamware/knotdc/internal/ai"
	"github.com/dreamware/knotdc/internal/config"
	"github.com/dreamware/knotdc/internal/correction"
	"github.com/dreamware/knotdc/internal/crystal"
	"github.com/dreamware/knotdc/internal/datacenter"
	"github.com/dreamware/knotdc/internal/learning"
	"github.com/dreamware/knotdc/internal/qstate"
	"github.com/dreamware/knotdc/internal/server"
)

// demoCrystals and demoSeed are loaded when demo is enabled.
var demoCrystals = []config.CrystalConfig{
	{Name: "Cristal_Alpha", Dimensions: []int{4, 4, 4}},
	{Name: "Cristal_Beta", Dimensions: []int{3, 3, 3}},
	{Name: "Cristal_Gamma", Dimensions: []int{5, 5, 5}},
}

var demoSeed = []config.SeedConfig{
	{Crystal: "Cristal_Alpha", Data: "Datos secretos nivel 1", Knot: "trebol"},
	{Crystal: "Cristal_Beta", Data: "Informacion clasificada", Knot: "figura_ocho"},
	{Crystal: "Cristal_Gamma", Data: "Quantum encryption key", Knot: "toroidal"},
	{Crystal: "Cristal_Alpha", Data: "Entangled state data", Knot: "borromeo"},
	{Crystal: "Cristal_Beta", Data: "Cristal coherence info", Knot: "hopf"},
}

// daemon wires the datacenter to its network and background services.
type daemon struct {
	cfg     config.Config
	logger  *slog.Logger
	dc      *datacenter.Datacenter
	orch    *ai.Orchestrator
	server  *server.Server
	monitor *ai.Monitor
	metrics net.Addr      // Bound metrics address, set before ready closes
	ready   chan struct{} // Closed once every service is listening
}

// newDaemon builds every component and loads the configured crystals and
// payloads. Nothing listens until run is called.
func newDaemon(cfg config.Config, logger *slog.Logger) (*daemon, error) {
	dc := datacenter.New(cfg.Name, datacenter.WithLogger(logger))

	optOpts := []learning.Option{
		learning.WithLearningRate(cfg.AI.LearningRate),
		learning.WithHistorySize(cfg.AI.OperationHistory),
	}
	if cfg.AI.Seed != 0 {
		optOpts = append(optOpts, learning.WithRand(rand.New(rand.NewPCG(cfg.AI.Seed, cfg.AI.Seed))))
	}
	orch := ai.New(
		ai.WithCorrector(correction.New(
			correction.WithThreshold(cfg.AI.FidelityThreshold),
			correction.WithHistorySize(cfg.AI.ErrorHistory),
		)),
		ai.WithOptimizer(learning.New(optOpts...)),
		ai.WithLogger(logger),
	)

	crystals, seed := cfg.Crystals, cfg.Seed
	if cfg.Demo {
		crystals = append(append([]config.CrystalConfig{}, demoCrystals...), crystals...)
		seed = append(append([]config.SeedConfig{}, demoSeed...), seed...)
	}
	if err := load(dc, crystals, seed); err != nil {
		return nil, err
	}

	srv := server.New(dc, orch, server.Config{
		Host:              cfg.Server.Host,
		Port:              cfg.Server.Port,
		PollInterval:      cfg.Server.PollInterval,
		ReadBuffer:        cfg.Server.ReadBuffer,
		CommandsPerSecond: cfg.Server.CommandsPerSecond,
		Burst:             cfg.Server.Burst,
	}, server.WithLogger(logger))

	mon := ai.NewMonitor(orch, dc, cfg.AI.Interval, ai.WithMonitorLogger(logger))
	mon.SetOnAnomaly(func(a ai.Anomaly) {
		logger.Warn("anomaly flagged",
			"kind", string(a.Kind),
			"crystal", a.Crystal,
			"knot", a.KnotID,
			"value", a.Value)
	})

	return &daemon{
		cfg:     cfg,
		logger:  logger,
		dc:      dc,
		orch:    orch,
		server:  srv,
		monitor: mon,
		ready:   make(chan struct{}),
	}, nil
}

// load creates the crystals and stores the payloads in order.
func load(dc *datacenter.Datacenter, crystals []config.CrystalConfig, seed []config.SeedConfig) error {
	for _, c := range crystals {
		if len(c.Dimensions) != 3 {
			return fmt.Errorf("crystal %q: want 3 dimensions, got %d", c.Name, len(c.Dimensions))
		}
		dims := crystal.Dimensions{X: c.Dimensions[0], Y: c.Dimensions[1], Z: c.Dimensions[2]}
		if _, err := dc.CreateCrystal(c.Name, dims); err != nil {
			return fmt.Errorf("create crystal: %w", err)
		}
	}
	for _, s := range seed {
		kind, err := qstate.ParseKnotType(s.Knot)
		if err != nil {
			return fmt.Errorf("seed %q: %w", s.Data, err)
		}
		if _, err := dc.StorePayload(s.Crystal, []byte(s.Data), kind); err != nil {
			return fmt.Errorf("seed %q: %w", s.Data, err)
		}
	}
	return nil
}

// run starts the TCP server, the AI monitor and the metrics endpoint and
// blocks until ctx is canceled or one of them fails.
func (d *daemon) run(ctx context.Context) error {
	var metricsLn net.Listener
	if d.cfg.Metrics.Listen != "" {
		ln, err := net.Listen("tcp", d.cfg.Metrics.Listen)
		if err != nil {
			return fmt.Errorf("metrics listen %s: %w", d.cfg.Metrics.Listen, err)
		}
		metricsLn = ln
		d.metrics = ln.Addr()
	}

	g, ctx := errgroup.WithContext(ctx)

	if err := d.server.Start(ctx); err != nil {
		if metricsLn != nil {
			metricsLn.Close()
		}
		return err
	}
	for name, st := range d.dc.States() {
		d.logger.Info("crystal ready",
			"crystal", name,
			"used", st.Used,
			"total", st.Total,
			"occupancy", st.Occupancy,
			"energy", st.Energy)
	}

	g.Go(func() error {
		<-ctx.Done()
		d.server.Stop()
		return nil
	})

	g.Go(func() error {
		d.monitor.Start(ctx)
		return nil
	})

	if metricsLn != nil {
		g.Go(func() error {
			return d.serveMetrics(ctx, metricsLn)
		})
	}

	d.logger.Info("datacenter ready",
		"name", d.dc.Name,
		"addr", d.server.Addr().String(),
		"crystals", d.dc.Len())
	close(d.ready)

	err := g.Wait()
	d.logger.Info("datacenter stopped")
	return err
}

func (d *daemon) serveMetrics(ctx context.Context, ln net.Listener) error {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	mux.HandleFunc("/health", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	})

	s := &http.Server{
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		d.logger.Info("metrics listening", "addr", ln.Addr().String())
		errCh <- s.Serve(ln)
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("metrics: %w", err)
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return s.Shutdown(shutdownCtx)
	}
}
