package cli

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/bcnelson/simulation-deployer/internal/api"
	"github.com/bcnelson/simulation-deployer/internal/auth"
	"github.com/bcnelson/simulation-deployer/internal/config"
	"github.com/bcnelson/simulation-deployer/internal/engine"
	"github.com/bcnelson/simulation-deployer/internal/service"
	"github.com/bcnelson/simulation-deployer/internal/storage/sql"
)

func newServeCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP control surface",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return serve(cmd.Context(), ConfigFromContext(cmd.Context()), LoggerFromContext(cmd.Context()))
		},
	}
}

func serve(ctx context.Context, cfg *config.Config, logger *slog.Logger) error {
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}

	// Create data directory if needed (for SQLite)
	if cfg.Database.Driver == "sqlite3" {
		if dir := filepath.Dir(cfg.Database.DSN); dir != "." {
			if err := os.MkdirAll(dir, 0o755); err != nil {
				return fmt.Errorf("creating data directory: %w", err)
			}
		}
	}

	store, err := sql.New(cfg.Database.Driver, cfg.Database.DSN)
	if err != nil {
		return fmt.Errorf("initializing storage: %w", err)
	}
	defer store.Close()

	builder, imageMap, err := newBuilder(cfg)
	if err != nil {
		return err
	}
	logger.Info("loaded image map", "file", cfg.Images.File, "modules", imageMap.Len())

	// Pulumi engine (or file shim for testing)
	var eng engine.Engine
	if cfg.UseFileShim() {
		logger.Info("using file shim engine", "dir", cfg.Engine.FileShim)
		eng = engine.NewFileShim(cfg.Engine.FileShim, logger)
	} else {
		eng = engine.NewPulumi(engine.PulumiConfig{
			ProjectName:          cfg.Engine.ProjectName,
			BackendURL:           cfg.Engine.BackendURL,
			Passphrase:           cfg.Engine.Passphrase,
			ClusterProject:       cfg.Cluster.Project,
			ClusterLocation:      cfg.Cluster.Location,
			ClusterName:          cfg.Cluster.Name,
			RemoveStackOnDestroy: cfg.Engine.RemoveStackOnDestroy,
		}, logger)
	}

	verifier, err := newVerifier(ctx, &cfg.Auth)
	if err != nil {
		return err
	}

	stacks := service.NewStackService(store, builder, eng, cfg.Engine.OperationTimeout, logger)
	router := api.NewRouter(store, stacks, imageMap, verifier, cfg.RateLimit, logger)

	server := &http.Server{
		Addr:         cfg.Server.Addr(),
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	logger.Info("starting simulation deployer", "addr", cfg.Server.Addr(), "auth", cfg.Auth.AuthEnabled())

	errCh := make(chan error, 1)
	go func() {
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	// Wait for interrupt signal
	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	select {
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("server failed: %w", err)
		}
	case <-ctx.Done():
	}

	logger.Info("shutting down server")

	// In-flight engine operations get the shutdown window to finish.
	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server forced to shutdown: %w", err)
	}

	logger.Info("server stopped")
	return nil
}

// newVerifier builds the configured bearer verifiers, or nil when
// authentication is disabled.
func newVerifier(ctx context.Context, cfg *config.AuthConfig) (auth.Verifier, error) {
	if !cfg.AuthEnabled() {
		return nil, nil
	}

	var chain auth.Chain
	if cfg.APIToken != "" {
		chain = append(chain, auth.NewStaticToken(cfg.APIToken))
	}
	if cfg.OIDCIssuerURL != "" {
		v, err := auth.NewOIDCVerifier(ctx, cfg.OIDCIssuerURL, cfg.OIDCClientID, cfg.OIDCAllowedDomains)
		if err != nil {
			return nil, err
		}
		chain = append(chain, v)
	}
	return chain, nil
}
