package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/dreamware/knotdc/internal/config"
	"github.com/dreamware/knotdc/internal/logging"
	"github.com/dreamware/knotdc/internal/telemetry"
)

// rootFlags holds the flags shared by every subcommand.
type rootFlags struct {
	configPath string
	host       string
	port       int
	logLevel   string
	noDemo     bool
}

// NewRootCmd builds the command tree. Running it without a subcommand
// serves.
func NewRootCmd() *cobra.Command {
	var f rootFlags

	root := &cobra.Command{
		Use:           "datacenter",
		Short:         "Knot datacenter daemon",
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runServe(cmd, &f)
		},
	}
	root.PersistentFlags().StringVarP(&f.configPath, "config", "c", "", "config file (default: ./knotdc.yaml or ~/.knotdc/knotdc.yaml)")

	serve := &cobra.Command{
		Use:   "serve",
		Short: "Run the TCP server, AI monitor and metrics endpoint",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runServe(cmd, &f)
		},
	}
	for _, c := range []*cobra.Command{root, serve} {
		c.Flags().StringVar(&f.host, "host", "", "interface to bind (overrides server.host)")
		c.Flags().IntVarP(&f.port, "port", "p", 0, "TCP port (overrides server.port)")
		c.Flags().StringVar(&f.logLevel, "log-level", "", "debug, info, warn or error (overrides log.level)")
		c.Flags().BoolVar(&f.noDemo, "no-demo", false, "start without the demo crystals")
	}

	root.AddCommand(serve, newConfigCmd(&f), newVersionCmd())
	return root
}

// loadConfig resolves the configuration and applies command line
// overrides.
func loadConfig(cmd *cobra.Command, f *rootFlags) (config.Config, error) {
	cfg, err := config.Load(f.configPath)
	if err != nil {
		return cfg, err
	}
	if cmd.Flags().Changed("host") {
		cfg.Server.Host = f.host
	}
	if cmd.Flags().Changed("port") {
		cfg.Server.Port = f.port
	}
	if cmd.Flags().Changed("log-level") {
		cfg.Log.Level = f.logLevel
	}
	if f.noDemo {
		cfg.Demo = false
	}
	return cfg, cfg.Validate()
}

func runServe(cmd *cobra.Command, f *rootFlags) error {
	cfg, err := loadConfig(cmd, f)
	if err != nil {
		return err
	}

	logger, err := logging.New(logging.Config{
		Level:   cfg.Log.Level,
		Format:  cfg.Log.Format,
		Service: "datacenter",
	}, cmd.ErrOrStderr())
	if err != nil {
		return err
	}

	shutdown, err := telemetry.Init(cfg.Trace.Exporter, "datacenter", cmd.ErrOrStderr())
	if err != nil {
		return err
	}
	defer flushTraces(shutdown, logger)

	d, err := newDaemon(cfg, logger)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	return d.run(ctx)
}

// flushTraces gives the exporter a bounded window to drain after the
// daemon has stopped.
func flushTraces(shutdown telemetry.Shutdown, logger *slog.Logger) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := shutdown(ctx); err != nil {
		logger.Warn("trace flush failed", "error", err)
	}
}

func newConfigCmd(f *rootFlags) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Inspect or create configuration files",
	}

	var (
		path  string
		force bool
	)
	initCmd := &cobra.Command{
		Use:   "init",
		Short: "Write the default configuration",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if err := config.WriteDefault(path, force); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "wrote %s\n", path)
			return nil
		},
	}
	initCmd.Flags().StringVarP(&path, "path", "o", "knotdc.yaml", "destination file")
	initCmd.Flags().BoolVarP(&force, "force", "f", false, "overwrite an existing file")

	show := &cobra.Command{
		Use:   "show",
		Short: "Print the resolved configuration",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := config.Load(f.configPath)
			if err != nil {
				return err
			}
			data, err := config.Marshal(cfg)
			if err != nil {
				return err
			}
			_, err = cmd.OutOrStdout().Write(data)
			return err
		},
	}

	cmd.AddCommand(initCmd, show)
	return cmd
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the version",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, _ []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "datacenter %s\n", version)
		},
	}
}
