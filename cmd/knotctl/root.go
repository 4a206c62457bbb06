package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/dreamware/knotdc/internal/protocol"
)

// errServer is returned when the server answers with an error line.
var errServer = errors.New("server returned an error")

type options struct {
	addr    string
	timeout time.Duration
	json    bool
}

func (o *options) client() *protocol.Client {
	return protocol.NewClient(o.addr, o.timeout)
}

// raw sends command and writes the response verbatim.
func (o *options) raw(ctx context.Context, w io.Writer, command string) error {
	resp, err := o.client().Do(ctx, command)
	if err != nil {
		return err
	}
	fmt.Fprintln(w, resp)
	if protocol.IsError(resp) {
		return errServer
	}
	return nil
}

// NewRootCmd builds the knotctl command tree.
func NewRootCmd() *cobra.Command {
	o := &options{}

	root := &cobra.Command{
		Use:           "knotctl",
		Short:         "Query a knot datacenter over its TCP protocol",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVarP(&o.addr, "addr", "a", getenv("KNOTDC_ADDR", "localhost:5555"), "datacenter address host:port")
	root.PersistentFlags().DurationVarP(&o.timeout, "timeout", "t", protocol.DefaultTimeout, "per-request timeout")
	root.PersistentFlags().BoolVar(&o.json, "json", false, "print the raw server response")

	root.AddCommand(
		newStatusCmd(o),
		newListCmd(o),
		newInfoCmd(o),
		newAICmd(o),
		newSendCmd(o),
	)
	return root
}

func newStatusCmd(o *options) *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show the full datacenter state",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if o.json {
				return o.raw(cmd.Context(), cmd.OutOrStdout(), protocol.CmdStatus)
			}
			st, err := o.client().Status(cmd.Context())
			if err != nil {
				return err
			}
			printStatus(cmd.OutOrStdout(), st)
			return nil
		},
	}
}

func newListCmd(o *options) *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List crystal names",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			names, err := o.client().List(cmd.Context())
			if err != nil {
				return err
			}
			if o.json {
				if names == nil {
					names = []string{}
				}
				enc := json.NewEncoder(cmd.OutOrStdout())
				return enc.Encode(names)
			}
			printList(cmd.OutOrStdout(), names)
			return nil
		},
	}
}

func newInfoCmd(o *options) *cobra.Command {
	return &cobra.Command{
		Use:   "info <crystal>",
		Short: "Show one crystal",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if o.json {
				return o.raw(cmd.Context(), cmd.OutOrStdout(), protocol.CmdInfo+" "+args[0])
			}
			st, err := o.client().Info(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			printCrystal(cmd.OutOrStdout(), st)
			return nil
		},
	}
}

func newAICmd(o *options) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "ai",
		Short: "Inspect and drive the AI engine",
	}

	status := &cobra.Command{
		Use:   "status",
		Short: "Show AI metrics",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if o.json {
				return o.raw(cmd.Context(), cmd.OutOrStdout(), protocol.CmdAIStatus)
			}
			m, err := o.client().AIStatus(cmd.Context())
			if err != nil {
				return err
			}
			printMetrics(cmd.OutOrStdout(), m)
			return nil
		},
	}

	report := &cobra.Command{
		Use:   "report",
		Short: "Print the AI report",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return o.raw(cmd.Context(), cmd.OutOrStdout(), protocol.CmdAIReport)
		},
	}

	optimize := &cobra.Command{
		Use:   "optimize",
		Short: "Run one AI sweep over every stored knot",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if o.json {
				return o.raw(cmd.Context(), cmd.OutOrStdout(), protocol.CmdAIOptimize)
			}
			res, err := o.client().AIOptimize(cmd.Context())
			if err != nil {
				return err
			}
			printSweep(cmd.OutOrStdout(), res)
			return nil
		},
	}

	cmd.AddCommand(status, report, optimize)
	return cmd
}

func newSendCmd(o *options) *cobra.Command {
	return &cobra.Command{
		Use:   "send <command> [args...]",
		Short: "Send a raw command and print the response",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return o.raw(cmd.Context(), cmd.OutOrStdout(), strings.Join(args, " "))
		},
	}
}
