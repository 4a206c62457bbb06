// Package main runs the knot datacenter dashboard, an HTTP front end that
// proxies every request to a datacenter's TCP command server.
//
//	browser ──HTTP/ws──> dashboard ──TCP──> datacenter
//
// Configuration is read from the dashboard section of knotdc.yaml and the
// KNOTDC_DASHBOARD_* environment variables; --listen and --datacenter
// override it.
package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/spf13/cobra"

	"github.com/dreamware/knotdc/internal/config"
	"github.com/dreamware/knotdc/internal/dashboard"
	"github.com/dreamware/knotdc/internal/logging"
	"github.com/dreamware/knotdc/internal/protocol"
	"github.com/dreamware/knotdc/internal/telemetry"
)

// logFatal is a variable to allow mocking log.Fatal in tests.
var logFatal = log.Fatalf

func main() {
	if err := NewRootCmd().Execute(); err != nil {
		logFatal("dashboard: %v", err)
	}
}

// NewRootCmd builds the dashboard command.
func NewRootCmd() *cobra.Command {
	var (
		configPath string
		listen     string
		backend    string
	)

	cmd := &cobra.Command{
		Use:           "dashboard",
		Short:         "Serve the datacenter dashboard over HTTP",
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := config.Load(configPath)
			if err != nil {
				return err
			}
			if cmd.Flags().Changed("listen") {
				cfg.Dashboard.Listen = listen
			}
			if cmd.Flags().Changed("datacenter") {
				cfg.Dashboard.DatacenterAddr = backend
			}
			if err := cfg.Validate(); err != nil {
				return err
			}

			logger, err := logging.New(logging.Config{
				Level:   cfg.Log.Level,
				Format:  cfg.Log.Format,
				Service: "dashboard",
			}, cmd.ErrOrStderr())
			if err != nil {
				return err
			}

			shutdown, err := telemetry.Init(cfg.Trace.Exporter, "dashboard", cmd.ErrOrStderr())
			if err != nil {
				return err
			}
			defer func() {
				ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
				defer cancel()
				if err := shutdown(ctx); err != nil {
					logger.Warn("trace flush failed", "error", err)
				}
			}()

			if cfg.Log.Level != "debug" {
				gin.SetMode(gin.ReleaseMode)
			}

			d := dashboard.New(
				protocol.NewClient(cfg.Dashboard.DatacenterAddr, cfg.Dashboard.Timeout),
				dashboard.WithLogger(logger),
				dashboard.WithRefresh(cfg.Dashboard.Refresh),
			)
			logger.Info("dashboard configured",
				"listen", cfg.Dashboard.Listen,
				"datacenter", cfg.Dashboard.DatacenterAddr,
				"refresh", cfg.Dashboard.Refresh)

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			if err := d.Run(ctx, cfg.Dashboard.Listen); err != nil {
				return fmt.Errorf("serve: %w", err)
			}
			return nil
		},
	}

	cmd.Flags().StringVarP(&configPath, "config", "c", "", "config file (default: ./knotdc.yaml or ~/.knotdc/knotdc.yaml)")
	cmd.Flags().StringVarP(&listen, "listen", "l", "", "HTTP listen address (overrides dashboard.listen)")
	cmd.Flags().StringVarP(&backend, "datacenter", "d", "", "datacenter host:port (overrides dashboard.datacenter_addr)")
	return cmd
}
