package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"runtime"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/happyflowgames/spawnpool/pkg/config"
)

var version = "0.1.0"

func main() {
	// Load .env file if it exists
	_ = godotenv.Load()

	root := &cobra.Command{
		Use:   "spawnpool",
		Short: "spawnpool - entity pools for tick-driven games",
		Long: `spawnpool precreates game entities in small batches spread over ticks and
lends them out by category (good, bad, platform, misc), so a level never
instantiates on its hot path. The simulate command plays a headless level
against a pool configuration and reports how the pools behaved.`,
		SilenceUsage: true,
	}

	root.AddCommand(&cobra.Command{
		Use:   "version",
		Short: "Show version information",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "spawnpool v%s\n", version)
			fmt.Fprintf(cmd.OutOrStdout(), "Go version: %s\n", runtime.Version())
			fmt.Fprintf(cmd.OutOrStdout(), "OS/Arch: %s/%s\n", runtime.GOOS, runtime.GOARCH)
		},
	})

	root.AddCommand(newValidateCmd(), newInitCmd(), newSimulateCmd())

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := root.ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, err)
		stop()
		os.Exit(1)
	}
}

func newValidateCmd() *cobra.Command {
	var configFile string

	cmd := &cobra.Command{
		Use:   "validate",
		Short: "Validate a pool configuration file",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.LoadFile(configFile)
			if err != nil {
				return err
			}
			templates := 0
			for _, p := range cfg.Pools {
				templates += len(p.Templates)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s: %d pools, %d templates\n", configFile, len(cfg.Pools), templates)
			return nil
		},
	}
	cmd.Flags().StringVarP(&configFile, "config", "c", "", "Path to the pool configuration (YAML or TOML)")
	_ = cmd.MarkFlagRequired("config")
	return cmd
}

func newInitCmd() *cobra.Command {
	var force bool

	cmd := &cobra.Command{
		Use:   "init [file]",
		Short: "Write the default pool configuration",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			path := "pools.yaml"
			if len(args) == 1 {
				path = args[0]
			}
			if _, err := os.Stat(path); err == nil && !force {
				return fmt.Errorf("%s already exists, use --force to overwrite", path)
			}
			if err := config.Save(path, config.Default()); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "wrote %s\n", path)
			return nil
		},
	}
	cmd.Flags().BoolVarP(&force, "force", "f", false, "Overwrite an existing file")
	return cmd
}

func newSimulateCmd() *cobra.Command {
	var opts simulateOptions

	cmd := &cobra.Command{
		Use:   "simulate",
		Short: "Play a headless level and print a JSON report",
		Long: `Precreate every pool one batch per tick, play the level for the configured
number of ticks and return everything to the pools. With --metrics-addr the
metrics endpoint stays up after the report is printed until the command is
interrupted.

Example:
  spawnpool simulate --config pools.yaml --ticks 600 --metrics-addr :9090`,
		RunE: func(cmd *cobra.Command, args []string) error {
			opts.ticksSet = cmd.Flags().Changed("ticks")
			opts.seedSet = cmd.Flags().Changed("seed")
			return simulate(cmd.Context(), opts, cmd.OutOrStdout())
		},
	}

	cmd.Flags().StringVarP(&opts.configFile, "config", "c", "", "Path to the pool configuration; the built-in level when empty")
	cmd.Flags().IntVar(&opts.ticks, "ticks", 0, "Ticks to play (overrides loop.play_ticks)")
	cmd.Flags().Uint64Var(&opts.seed, "seed", 0, "Random seed (overrides loop.seed)")
	cmd.Flags().StringVar(&opts.metricsAddr, "metrics-addr", "", "Serve Prometheus metrics on this address until interrupted, e.g. :9090")
	cmd.Flags().BoolVar(&opts.trace, "trace", false, "Export OpenTelemetry spans to stderr")
	cmd.Flags().StringVar(&opts.logLevel, "log-level", "", "Log level (debug, info, warn, error)")
	return cmd
}
