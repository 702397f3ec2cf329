// Package cli defines the simulation-deployer command-line interface.
package cli

import (
	"context"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/bcnelson/simulation-deployer/internal/config"
	"github.com/bcnelson/simulation-deployer/internal/images"
	"github.com/bcnelson/simulation-deployer/internal/logging"
	"github.com/bcnelson/simulation-deployer/internal/manifest"
)

// Version is set at build time with -ldflags "-X ...cli.Version=...".
var Version = "dev"

// Execute builds the root command, runs it with args and returns any error.
func Execute(args []string) error {
	cmd := newRootCommand()
	cmd.SetArgs(args)
	return cmd.Execute()
}

func newRootCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:           "simulation-deployer",
		Short:         "Deploy per-user simulations to GKE",
		Long:          "simulation-deployer provisions and tears down per-user simulation workloads on a GKE cluster through the Pulumi Automation API.",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := config.Load()
			if err != nil {
				return err
			}
			if flag := cmd.Flag("log-level"); flag != nil && flag.Changed {
				cfg.Log.Level = flag.Value.String()
			}

			logger := logging.NewLogger(os.Stderr, logging.ParseLevel(cfg.Log.Level), cfg.Log.NoColor)
			slog.SetDefault(logger)

			ctx := context.WithValue(cmd.Context(), loggerKey{}, logger)
			ctx = context.WithValue(ctx, configKey{}, cfg)
			cmd.SetContext(ctx)
			return nil
		},
	}

	cmd.PersistentFlags().String("log-level", "info", "Log level (debug, info, warn, error); overrides LOG_LEVEL")

	cmd.AddCommand(
		newServeCommand(),
		newRenderCommand(),
		newVersionCommand(),
	)

	return cmd
}

type loggerKey struct{}

type configKey struct{}

// LoggerFromContext returns the logger stored by the root command.
func LoggerFromContext(ctx context.Context) *slog.Logger {
	if logger, ok := ctx.Value(loggerKey{}).(*slog.Logger); ok {
		return logger
	}
	return slog.Default()
}

// ConfigFromContext returns the configuration loaded by the root command.
func ConfigFromContext(ctx context.Context) *config.Config {
	cfg, _ := ctx.Value(configKey{}).(*config.Config)
	return cfg
}

// newBuilder loads the image map and constructs the manifest builder.
func newBuilder(cfg *config.Config) (*manifest.Builder, *images.Map, error) {
	imageMap, err := images.LoadFile(cfg.Images.File, cfg.Images.RequireDigest)
	if err != nil {
		return nil, nil, err
	}

	builder, err := manifest.NewBuilder(manifest.Config{
		Namespace:         cfg.Simulation.Namespace,
		GatewayName:       cfg.Simulation.GatewayName,
		GatewayNamespace:  cfg.Simulation.GatewayNamespace,
		PoliciesEnabled:   cfg.Simulation.PoliciesEnabled,
		HealthCheckPath:   cfg.Simulation.HealthCheckPath,
		BackendTimeoutSec: cfg.Simulation.BackendTimeoutSec,
		CPURequest:        cfg.Simulation.CPURequest,
		MemoryRequest:     cfg.Simulation.MemoryRequest,
	}, imageMap)
	if err != nil {
		return nil, nil, err
	}
	return builder, imageMap, nil
}
