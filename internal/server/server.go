// Package server implements the datacenter's TCP command server.
//
// Every accepted connection is served by its own goroutine. Each read of
// up to Config.ReadBuffer bytes is one command; the response is written
// back as-is, with no framing, and the connection stays open for further
// commands until the client closes it or the server stops.
//
//	accept ──> read ──> dispatch ──> respond ──┐
//	              ^                            │
//	              └────────────────────────────┘
//
// The accept loop polls with a deadline so that Stop is observed within
// one poll interval. Binding is the only failure Start reports; every
// per-command failure is turned into an "ERROR: " line.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/time/rate"

	"github.com/dreamware/knotdc/internal/ai"
	"github.com/dreamware/knotdc/internal/crystal"
	"github.com/dreamware/knotdc/internal/datacenter"
	"github.com/dreamware/knotdc/internal/protocol"
)

// Config holds the network settings of a Server.
type Config struct {
	Host              string        // Interface to bind, default "localhost"
	Port              int           // 0 picks a free port
	PollInterval      time.Duration // Accept deadline, default 1s
	ReadBuffer        int           // Bytes per read, default 4096
	CommandsPerSecond float64       // Per-connection limit, 0 = unlimited
	Burst             int           // Limiter burst, default 1 when limited
}

// DefaultConfig returns the settings used when nothing is configured.
func DefaultConfig() Config {
	return Config{
		Host:         "localhost",
		Port:         5555,
		PollInterval: time.Second,
		ReadBuffer:   4096,
	}
}

func (c *Config) setDefaults() {
	d := DefaultConfig()
	if c.Host == "" {
		c.Host = d.Host
	}
	if c.PollInterval <= 0 {
		c.PollInterval = d.PollInterval
	}
	if c.ReadBuffer <= 0 {
		c.ReadBuffer = d.ReadBuffer
	}
	if c.CommandsPerSecond > 0 && c.Burst <= 0 {
		c.Burst = 1
	}
}

// Option configures a Server.
type Option func(*Server)

// WithLogger sets the logger. The default is slog.Default().
func WithLogger(l *slog.Logger) Option {
	return func(s *Server) {
		if l != nil {
			s.logger = l
		}
	}
}

// Server serves the command protocol for one datacenter.
type Server struct {
	dc       *datacenter.Datacenter
	ai       *ai.Orchestrator
	logger   *slog.Logger
	listener net.Listener
	conns    map[string]net.Conn // Open connections by id
	cfg      Config
	running  atomic.Bool
	mu       sync.Mutex     // Protects conns and listener
	wg       sync.WaitGroup // Accept loop and connection handlers
}

// New returns a server for dc. The orchestrator backs the AI_* commands.
func New(dc *datacenter.Datacenter, orch *ai.Orchestrator, cfg Config, opts ...Option) *Server {
	cfg.setDefaults()
	s := &Server{
		dc:     dc,
		ai:     orch,
		cfg:    cfg,
		logger: slog.Default(),
		conns:  make(map[string]net.Conn),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Start binds the listener and launches the accept loop. It returns once
// the server is accepting connections; the loop ends when ctx is canceled
// or Stop is called.
func (s *Server) Start(ctx context.Context) error {
	addr := net.JoinHostPort(s.cfg.Host, strconv.Itoa(s.cfg.Port))
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("listen %s: %w", addr, err)
	}

	s.mu.Lock()
	s.listener = ln
	s.mu.Unlock()
	s.running.Store(true)

	s.logger.Info("command server listening", "addr", ln.Addr().String())

	s.wg.Add(1)
	go s.acceptLoop(ctx, ln)
	return nil
}

type deadliner interface {
	SetDeadline(time.Time) error
}

func (s *Server) acceptLoop(ctx context.Context, ln net.Listener) {
	defer s.wg.Done()
	defer ln.Close()

	for s.running.Load() {
		if ctx.Err() != nil {
			s.running.Store(false)
			s.closeConns()
			return
		}
		if d, ok := ln.(deadliner); ok {
			_ = d.SetDeadline(time.Now().Add(s.cfg.PollInterval))
		}

		conn, err := ln.Accept()
		if err != nil {
			var ne net.Error
			if errors.As(err, &ne) && ne.Timeout() {
				continue
			}
			if !s.running.Load() {
				return
			}
			s.logger.Error("accept failed", "error", err)
			continue
		}

		// Checked under mu so a concurrent closeConns either sees the
		// connection or the loop sees the cleared flag.
		id := uuid.NewString()
		s.mu.Lock()
		if !s.running.Load() {
			s.mu.Unlock()
			_ = conn.Close()
			continue
		}
		s.conns[id] = conn
		s.mu.Unlock()
		connectionsTotal.Inc()
		connectionsActive.Inc()

		s.logger.Info("connection accepted", "conn", id, "remote", conn.RemoteAddr().String())

		s.wg.Add(1)
		go s.handle(ctx, id, conn)
	}
}

func (s *Server) handle(ctx context.Context, id string, conn net.Conn) {
	defer s.wg.Done()
	defer func() {
		s.mu.Lock()
		delete(s.conns, id)
		s.mu.Unlock()
		conn.Close()
		connectionsActive.Dec()
		s.logger.Info("connection closed", "conn", id)
	}()

	var limiter *rate.Limiter
	if s.cfg.CommandsPerSecond > 0 {
		limiter = rate.NewLimiter(rate.Limit(s.cfg.CommandsPerSecond), s.cfg.Burst)
	}

	buf := make([]byte, s.cfg.ReadBuffer)
	for {
		n, err := conn.Read(buf)
		if n > 0 {
			if !utf8.Valid(buf[:n]) {
				s.logger.Warn("dropping connection after invalid utf-8", "conn", id)
				return
			}
			line := string(buf[:n])

			var resp string
			if limiter != nil && !limiter.Allow() {
				rateLimited.Inc()
				resp = protocol.ErrorLine(protocol.MsgRateLimited)
			} else {
				resp = s.Dispatch(ctx, line)
			}

			if _, werr := conn.Write([]byte(resp)); werr != nil {
				s.logger.Warn("write failed", "conn", id, "error", werr)
				return
			}
		}
		if err != nil {
			return
		}
	}
}

// Dispatch executes one command and returns the response text.
func (s *Server) Dispatch(ctx context.Context, line string) string {
	start := time.Now()
	cmd, perr := protocol.Parse(line)

	label := cmd.Name
	switch {
	case errors.Is(perr, protocol.ErrEmptyCommand):
		label = "EMPTY"
	case perr != nil:
		label = "UNKNOWN"
	}

	ctx, span := tracer.Start(ctx, "server.Dispatch",
		trace.WithAttributes(attribute.String("command", label)))
	defer span.End()

	resp := s.dispatch(ctx, cmd, perr)

	failed := protocol.IsError(resp)
	if failed {
		span.SetStatus(codes.Error, resp)
	} else {
		span.SetStatus(codes.Ok, "")
	}
	recordCommand(label, failed, time.Since(start).Seconds())
	s.logger.Debug("command dispatched", "command", label, "error", failed)
	return resp
}

func (s *Server) dispatch(ctx context.Context, cmd protocol.Command, perr error) string {
	switch {
	case errors.Is(perr, protocol.ErrEmptyCommand):
		return protocol.ErrorLine(protocol.MsgEmpty)
	case perr != nil:
		return protocol.ErrorLine(protocol.MsgUnknown)
	}

	switch cmd.Name {
	case protocol.CmdStatus:
		return marshal(s.Status())
	case protocol.CmdList:
		return strings.Join(s.dc.List(), "\n")
	case protocol.CmdInfo:
		name := cmd.Arg(0)
		st, err := s.dc.State(name)
		if errors.Is(err, datacenter.ErrNotFound) {
			return protocol.CrystalNotFound(name)
		}
		if err != nil {
			return protocol.ErrorLine(err.Error())
		}
		return marshal(st)
	case protocol.CmdAIStatus:
		return marshal(s.ai.Metrics())
	case protocol.CmdAIReport:
		return s.ai.Report()
	case protocol.CmdAIOptimize:
		res, err := s.ai.Sweep(ctx, s.dc)
		if err != nil {
			return protocol.ErrorLine(err.Error())
		}
		return marshal(res)
	}
	return protocol.ErrorLine(protocol.MsgUnknown)
}

// Status builds the STATUS payload from a consistent view of the
// datacenter.
func (s *Server) Status() protocol.StatusResponse {
	st := protocol.StatusResponse{
		Datacenter: s.dc.Name,
		Details:    make(map[string]crystal.State),
		Server: protocol.ServerInfo{
			Active:      s.Running(),
			Port:        s.Port(),
			Connections: s.Connections(),
		},
	}
	_ = s.dc.View(func(tx datacenter.Tx) error {
		tx.Each(func(c *crystal.Crystal) {
			st.Details[c.Name] = c.Snapshot()
		})
		return nil
	})
	st.Crystals = len(st.Details)
	return st
}

func marshal(v any) string {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return protocol.ErrorLine(err.Error())
	}
	return string(data)
}

// Addr returns the bound address, or nil before Start.
func (s *Server) Addr() net.Addr {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.listener == nil {
		return nil
	}
	return s.listener.Addr()
}

// Port returns the bound port, or the configured port before Start.
func (s *Server) Port() int {
	if a, ok := s.Addr().(*net.TCPAddr); ok {
		return a.Port
	}
	return s.cfg.Port
}

// Running reports whether the accept loop is active.
func (s *Server) Running() bool {
	return s.running.Load()
}

// Connections returns the number of open client connections.
func (s *Server) Connections() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.conns)
}

func (s *Server) closeConns() {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, c := range s.conns {
		_ = c.Close()
	}
}

// Stop clears the running flag, closes the listener and every open
// connection, and waits for all goroutines to exit.
func (s *Server) Stop() {
	s.running.Store(false)

	s.mu.Lock()
	if s.listener != nil {
		_ = s.listener.Close()
	}
	s.mu.Unlock()
	s.closeConns()

	s.wg.Wait()
	s.logger.Info("command server stopped")
}
