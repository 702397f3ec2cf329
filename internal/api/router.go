package api

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/time/rate"

	"github.com/bcnelson/simulation-deployer/internal/api/handler"
	"github.com/bcnelson/simulation-deployer/internal/api/middleware"
	"github.com/bcnelson/simulation-deployer/internal/auth"
	"github.com/bcnelson/simulation-deployer/internal/config"
	"github.com/bcnelson/simulation-deployer/internal/service"
	"github.com/bcnelson/simulation-deployer/internal/storage"
)

// NewRouter creates a new HTTP router with all routes configured.
// A nil verifier leaves the mutating routes unauthenticated.
func NewRouter(
	store storage.Storage,
	stacks *service.StackService,
	modules handler.ModuleLister,
	verifier auth.Verifier,
	limits config.RateLimitConfig,
	logger *slog.Logger,
) http.Handler {
	if logger == nil {
		logger = slog.Default()
	}

	r := chi.NewRouter()

	// Global middleware
	r.Use(chimw.RequestID)
	r.Use(middleware.Logging(logger))
	r.Use(chimw.Recoverer)

	statusHandler := handler.NewStatusHandler(store)
	r.Get("/status", statusHandler.Status)
	r.Get("/health", statusHandler.Health)
	r.Method(http.MethodGet, "/metrics", promhttp.Handler())

	deployHandler := handler.NewDeploymentHandler(stacks)
	r.Get("/manifest", deployHandler.Manifest)
	r.Get("/deployments/{user_id}", deployHandler.History)
	r.Get("/deployments/{user_id}/latest", deployHandler.Latest)
	r.Get("/operations/{id}", deployHandler.Operation)

	r.Get("/modules", handler.NewModuleHandler(modules).List)

	// Mutating routes (auth and rate limit)
	r.Group(func(r chi.Router) {
		r.Use(middleware.Auth(verifier))
		r.Use(middleware.RateLimit(rate.Limit(limits.RequestsPerSecond), limits.Burst))

		r.Post("/deploy", deployHandler.Deploy)
		r.Post("/destroy", deployHandler.Destroy)
	})

	return r
}
