// Package cmd wires up the CLI and dispatches to the core modes.
package cmd

import (
	"context"
	"fmt"
	"strconv"

	"github.com/pkg/errors"
	"github.com/spf13/cobra"
	flag "github.com/spf13/pflag"

	"chatd/config"
	"chatd/internal/core"
	"chatd/util"
)

// version is overridable at link time:
//
//	go build -ldflags "-X chatd/cmd.version=2.0.0"
var version = "1.0.0" //nolint:gochecknoglobals

// Execute parses args and runs the selected chatd command.
func Execute(ctx context.Context, args []string) error {
	if args == nil {
		args = []string{}
	}
	root := newRootCmd()
	root.SetArgs(args)
	return root.ExecuteContext(ctx)
}

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:   "chatd",
		Short: "Multi-client line chat server",
		Long: `chatd is a small line-oriented TCP chat server.

Clients connect with any line client (telnet, nc, or "chatd connect"),
type HELP for the command list, HELLO [name] to greet everyone else,
and BYE to leave.  Silent clients are disconnected after an idle
threshold.`,
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.AddCommand(newServeCmd(), newConnectCmd(), newVersionCmd())
	return root
}

// ── serve ────────────────────────────────────────────────────────────

func newServeCmd() *cobra.Command {
	var (
		cfgFile string
		dryRun  bool
	)
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the chat server until interrupted",
		Example: `  chatd serve
  chatd serve -p 2323 --max-connections 50
  CHATD_IDLE_THRESHOLD_MS=60000 chatd serve --config /etc/chatd.yaml`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := config.Load(cmd.Flags(), cfgFile)
			if err != nil {
				return errors.Wrap(err, "load configuration failed")
			}
			cfg.Listen = true
			return run(cmd, cfg, dryRun)
		},
	}

	fs := cmd.Flags()
	fs.StringVar(&cfgFile, "config", "", "Config file (yaml, toml or json)")
	fs.BoolVar(&dryRun, "dry-run", false, "Validate configuration and exit")

	// ── network ──────────────────────────────────────────────────
	fs.StringP("bind-address", "b", config.DefaultBindAddress, "Address to listen on")
	fs.IntP("port", "p", config.DefaultPort, "Port to listen on (0 = ephemeral)")
	fs.Int("backlog", config.DefaultBacklog, "Pending-connection queue length")
	fs.Int("max-connections", config.DefaultMaxConnections, "Concurrent session limit (0 = unlimited)")

	// ── timing ───────────────────────────────────────────────────
	fs.Int("idle-threshold-ms", config.DefaultIdleThresholdMs, "Disconnect clients silent this long")
	fs.Int("watchdog-interval-ms", config.DefaultWatchdogIntervalMs, "How often idle checks run")
	fs.Int("drain-timeout-ms", config.DefaultDrainTimeoutMs, "Shutdown wait for sessions to finish")
	fs.Int("send-timeout-ms", config.DefaultSendTimeoutMs, "Per-write deadline for one client")
	fs.Int("stats-interval-ms", config.DefaultStatsIntervalMs, "Log a metrics snapshot this often (0 = off)")

	// ── protocol ─────────────────────────────────────────────────
	fs.Int("max-line-length", config.DefaultMaxLineLength, "Longest accepted partial line in bytes")

	addOutputFlags(fs)
	return cmd
}

// ── connect ──────────────────────────────────────────────────────────

func newConnectCmd() *cobra.Command {
	var (
		cfgFile string
		dryRun  bool
	)
	cmd := &cobra.Command{
		Use:     "connect HOST PORT",
		Short:   "Connect to a chat server and relay this terminal",
		Example: `  chatd connect localhost 9999`,
		Args:    cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(cmd.Flags(), cfgFile)
			if err != nil {
				return errors.Wrap(err, "load configuration failed")
			}
			port, err := strconv.Atoi(args[1])
			if err != nil {
				return errors.Wrapf(err, "parse port %q failed", args[1])
			}
			cfg.Host = args[0]
			cfg.Port = port
			cfg.Listen = false
			return run(cmd, cfg, dryRun)
		},
	}

	fs := cmd.Flags()
	fs.StringVar(&cfgFile, "config", "", "Config file (yaml, toml or json)")
	fs.BoolVar(&dryRun, "dry-run", false, "Validate configuration and exit")
	fs.IntP("timeout-ms", "w", config.DefaultTimeoutMs, "Dial timeout (0 = none)")
	fs.Int("retries", config.DefaultRetries, "Dial retries after the first attempt")
	addOutputFlags(fs)
	return cmd
}

// ── version ──────────────────────────────────────────────────────────

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the version",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, _ []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "chatd %s\n", version)
		},
	}
}

// ── helpers ──────────────────────────────────────────────────────────

func addOutputFlags(fs *flag.FlagSet) {
	fs.IntP("verbose", "v", config.DefaultVerbose, "Verbosity: 0 errors, 1 normal, 2 verbose, 3 debug")
	fs.String("log-format", config.DefaultLogFormat, `Log format: "text" or "json"`)
}

func run(cmd *cobra.Command, cfg *config.Config, dryRun bool) error {
	if err := cfg.Validate(); err != nil {
		return errors.Wrap(err, "invalid configuration")
	}
	if dryRun {
		fmt.Fprintf(cmd.OutOrStdout(), "configuration ok (%s)\n", cmd.Name())
		return nil
	}

	logger := util.NewLogger(cfg.Verbose)
	logger.SetJSON(cfg.LogFormat == "json")

	mode, err := core.Build(cfg, logger)
	if err != nil {
		return errors.Wrap(err, "build mode failed")
	}
	return errors.Wrapf(mode.Run(cmd.Context()), "%s failed", cmd.Name())
}
