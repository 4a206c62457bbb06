package ai

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/dreamware/knotdc/internal/datacenter"
	"github.com/dreamware/knotdc/internal/ring"
)

// DefaultAnomalyLimit bounds the anomalies a Monitor keeps.
const DefaultAnomalyLimit = 500

// Monitor runs the AI sweep continuously on a fixed interval and keeps the
// most recent anomalies it flagged.
//
// Lifecycle:
//  1. NewMonitor configures the interval and target
//  2. Start blocks, sweeping once immediately and then on every tick
//  3. Stop (or canceling the context passed to Start) ends the loop
//
// The sweep function can be replaced with SetSweepFunction for tests.
type Monitor struct {
	sweepFunc func(ctx context.Context) (SweepResult, error) // Performs one pass
	onAnomaly func(Anomaly)                                  // Called for each new anomaly
	anomalies *ring.Buffer[Anomaly]                          // Most recent anomalies
	logger    *slog.Logger
	ctx       context.Context    // Internal cancellation
	cancel    context.CancelFunc // Cancels ctx
	last      SweepResult        // Result of the latest successful pass
	interval  time.Duration      // Time between passes, <= 0 disables the loop
	runs      int                // Successful passes
	failures  int                // Failed passes
	mu        sync.RWMutex       // Protects anomalies, last, runs, failures
	wg        sync.WaitGroup     // Tracks the running loop
}

// MonitorOption configures a Monitor.
type MonitorOption func(*Monitor)

// WithMonitorLogger sets the monitor's logger.
func WithMonitorLogger(l *slog.Logger) MonitorOption {
	return func(m *Monitor) {
		if l != nil {
			m.logger = l
		}
	}
}

// WithAnomalyLimit overrides DefaultAnomalyLimit.
func WithAnomalyLimit(n int) MonitorOption {
	return func(m *Monitor) { m.anomalies = ring.New[Anomaly](n) }
}

// NewMonitor returns a monitor that sweeps dc with o every interval.
func NewMonitor(o *Orchestrator, dc *datacenter.Datacenter, interval time.Duration, opts ...MonitorOption) *Monitor {
	ctx, cancel := context.WithCancel(context.Background())
	m := &Monitor{
		interval:  interval,
		anomalies: ring.New[Anomaly](DefaultAnomalyLimit),
		logger:    slog.Default(),
		ctx:       ctx,
		cancel:    cancel,
	}
	if o != nil && dc != nil {
		m.sweepFunc = func(ctx context.Context) (SweepResult, error) {
			return o.Sweep(ctx, dc)
		}
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// SetSweepFunction replaces the function run on every tick.
func (m *Monitor) SetSweepFunction(fn func(ctx context.Context) (SweepResult, error)) {
	m.sweepFunc = fn
}

// SetOnAnomaly registers a callback invoked synchronously for every new
// anomaly.
func (m *Monitor) SetOnAnomaly(fn func(Anomaly)) {
	m.onAnomaly = fn
}

// Start runs the sweep loop until ctx is canceled or Stop is called.
// It returns immediately when the interval is not positive or no sweep
// function is configured.
func (m *Monitor) Start(ctx context.Context) {
	if m.interval <= 0 || m.sweepFunc == nil {
		m.logger.Info("ai monitor disabled")
		return
	}

	m.wg.Add(1)
	defer m.wg.Done()

	if ctx == nil {
		ctx = m.ctx
	}

	ticker := time.NewTicker(m.interval)
	defer ticker.Stop()

	m.logger.Info("ai monitor started", "interval", m.interval)

	m.runOnce(ctx)

	for {
		select {
		case <-ticker.C:
			m.runOnce(ctx)
		case <-ctx.Done():
			m.logger.Info("ai monitor stopping", "reason", "context canceled")
			return
		case <-m.ctx.Done():
			m.logger.Info("ai monitor stopping", "reason", "stopped")
			return
		}
	}
}

// Stop ends the loop and waits for an in-flight pass to finish.
func (m *Monitor) Stop() {
	m.cancel()
	m.wg.Wait()
}

func (m *Monitor) runOnce(ctx context.Context) {
	res, err := m.sweepFunc(ctx)

	m.mu.Lock()
	if err != nil {
		m.failures++
		m.mu.Unlock()
		m.logger.Warn("ai sweep failed", "error", err)
		return
	}
	m.runs++
	m.last = res
	for _, a := range res.Anomalies {
		m.anomalies.Push(a)
	}
	cb := m.onAnomaly
	m.mu.Unlock()

	for _, a := range res.Anomalies {
		m.logger.Warn("anomaly flagged",
			"kind", string(a.Kind),
			"crystal", a.Crystal,
			"knot", a.KnotID,
			"position", a.Position.String(),
			"value", a.Value)
		if cb != nil {
			cb(a)
		}
	}
}

// Anomalies returns the retained anomalies, oldest first.
func (m *Monitor) Anomalies() []Anomaly {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.anomalies.Slice()
}

// LastSweep returns the most recent successful pass, if any.
func (m *Monitor) LastSweep() (SweepResult, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.last, m.runs > 0
}

// Runs returns the number of successful and failed passes.
func (m *Monitor) Runs() (ok, failed int) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.runs, m.failures
}
