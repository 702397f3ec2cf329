package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/caarlos0/env/v9"
)

// Config holds all configuration for the application.
type Config struct {
	Server     ServerConfig
	Database   DatabaseConfig
	Engine     EngineConfig
	Cluster    ClusterConfig
	Simulation SimulationConfig
	Images     ImagesConfig
	Auth       AuthConfig
	RateLimit  RateLimitConfig
	Log        LogConfig
}

// ServerConfig holds HTTP server configuration.
type ServerConfig struct {
	Host string `env:"SERVER_HOST" envDefault:"0.0.0.0"`
	Port int    `env:"SERVER_PORT" envDefault:"8080"`
	// WriteTimeout must outlast a full deploy, which can take minutes.
	ReadTimeout     time.Duration `env:"SERVER_READ_TIMEOUT" envDefault:"30s"`
	WriteTimeout    time.Duration `env:"SERVER_WRITE_TIMEOUT" envDefault:"20m"`
	IdleTimeout     time.Duration `env:"SERVER_IDLE_TIMEOUT" envDefault:"120s"`
	ShutdownTimeout time.Duration `env:"SERVER_SHUTDOWN_TIMEOUT" envDefault:"30s"`
}

// DatabaseConfig holds configuration for the operation history store.
type DatabaseConfig struct {
	Driver string `env:"DB_DRIVER" envDefault:"sqlite3"`
	DSN    string `env:"DB_DSN" envDefault:"data/simulation-deployer.db"`
}

// EngineConfig holds Pulumi automation settings.
type EngineConfig struct {
	ProjectName string `env:"PULUMI_PROJECT" envDefault:"gke-deployment"`
	BackendURL  string `env:"PULUMI_BACKEND_URL"`
	Passphrase  string `env:"PULUMI_CONFIG_PASSPHRASE"`
	// RemoveStackOnDestroy deletes the stack record after a successful teardown.
	RemoveStackOnDestroy bool   `env:"REMOVE_STACK_ON_DESTROY" envDefault:"false"`
	FileShim             string `env:"ENGINE_FILE_SHIM"` // Directory for the file shim (disables Pulumi)
	// OperationTimeout bounds one deploy or destroy. Zero means no timeout.
	OperationTimeout time.Duration `env:"OPERATION_TIMEOUT" envDefault:"0"`
}

// ClusterConfig identifies the GKE cluster simulations run on.
type ClusterConfig struct {
	Name     string `env:"CLUSTER_NAME" envDefault:"steam-simulation-cluster-1"`
	Location string `env:"CLUSTER_LOCATION" envDefault:"us-central1-c"`
	Project  string `env:"GCP_PROJECT"`
}

// SimulationConfig holds the per-simulation manifest settings.
type SimulationConfig struct {
	Namespace         string `env:"SIM_NAMESPACE" envDefault:"simulations"`
	GatewayName       string `env:"GATEWAY_NAME" envDefault:"simulation-gateway"`
	GatewayNamespace  string `env:"GATEWAY_NAMESPACE"`
	PoliciesEnabled   bool   `env:"POLICIES_ENABLED" envDefault:"true"`
	HealthCheckPath   string `env:"HEALTH_CHECK_PATH" envDefault:"/health"`
	BackendTimeoutSec int64  `env:"BACKEND_TIMEOUT_SEC" envDefault:"3600"`
	CPURequest        string `env:"SIM_CPU_REQUEST"`
	MemoryRequest     string `env:"SIM_MEMORY_REQUEST"`
}

// ImagesConfig points at the module image map.
type ImagesConfig struct {
	File          string `env:"IMAGE_MAP_FILE" envDefault:"config/images.yaml"`
	RequireDigest bool   `env:"IMAGE_REQUIRE_DIGEST" envDefault:"true"`
}

// AuthConfig holds optional request authentication settings.
// With neither a token nor an issuer configured the API is open.
type AuthConfig struct {
	APIToken      string `env:"AUTH_API_TOKEN"`
	OIDCIssuerURL string `env:"OIDC_ISSUER_URL"`
	OIDCClientID  string `env:"OIDC_CLIENT_ID"`
	// OIDCAllowedDomains restricts ID tokens to verified e-mail domains.
	OIDCAllowedDomains []string `env:"OIDC_ALLOWED_DOMAINS" envSeparator:","`
}

// RateLimitConfig limits mutating requests. A zero rate disables limiting.
type RateLimitConfig struct {
	RequestsPerSecond float64 `env:"RATE_LIMIT" envDefault:"5"`
	Burst             int     `env:"RATE_LIMIT_BURST" envDefault:"10"`
}

// LogConfig holds logging configuration.
type LogConfig struct {
	Level   string `env:"LOG_LEVEL" envDefault:"info"`
	NoColor bool   `env:"LOG_NO_COLOR" envDefault:"false"`
}

// Load loads configuration from environment variables.
func Load() (*Config, error) {
	cfg := &Config{}

	if err := env.Parse(&cfg.Server); err != nil {
		return nil, fmt.Errorf("parsing server config: %w", err)
	}
	if err := env.Parse(&cfg.Database); err != nil {
		return nil, fmt.Errorf("parsing database config: %w", err)
	}
	if err := env.Parse(&cfg.Engine); err != nil {
		return nil, fmt.Errorf("parsing engine config: %w", err)
	}
	if err := env.Parse(&cfg.Cluster); err != nil {
		return nil, fmt.Errorf("parsing cluster config: %w", err)
	}
	if err := env.Parse(&cfg.Simulation); err != nil {
		return nil, fmt.Errorf("parsing simulation config: %w", err)
	}
	if err := env.Parse(&cfg.Images); err != nil {
		return nil, fmt.Errorf("parsing images config: %w", err)
	}
	if err := env.Parse(&cfg.Auth); err != nil {
		return nil, fmt.Errorf("parsing auth config: %w", err)
	}
	if err := env.Parse(&cfg.RateLimit); err != nil {
		return nil, fmt.Errorf("parsing rate limit config: %w", err)
	}
	if err := env.Parse(&cfg.Log); err != nil {
		return nil, fmt.Errorf("parsing log config: %w", err)
	}

	return cfg, nil
}

// Addr returns the server address in host:port format.
func (c *ServerConfig) Addr() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

// Validate checks if the configuration is valid.
func (c *Config) Validate() error {
	if c.Images.File == "" {
		return fmt.Errorf("IMAGE_MAP_FILE is required")
	}

	// The file shim needs no cloud credentials
	if c.Engine.FileShim == "" {
		if c.Cluster.Project == "" {
			return fmt.Errorf("GCP_PROJECT is required (or set ENGINE_FILE_SHIM for testing)")
		}
		if c.Cluster.Name == "" || c.Cluster.Location == "" {
			return fmt.Errorf("CLUSTER_NAME and CLUSTER_LOCATION are required")
		}
		if c.Engine.ProjectName == "" {
			return fmt.Errorf("PULUMI_PROJECT is required")
		}
	}

	if c.Simulation.Namespace == "" {
		return fmt.Errorf("SIM_NAMESPACE is required")
	}
	if c.Simulation.GatewayName == "" {
		return fmt.Errorf("GATEWAY_NAME is required")
	}
	if !strings.HasPrefix(c.Simulation.HealthCheckPath, "/") {
		return fmt.Errorf("HEALTH_CHECK_PATH must start with '/'")
	}

	if c.Auth.OIDCIssuerURL != "" && c.Auth.OIDCClientID == "" {
		return fmt.Errorf("OIDC_CLIENT_ID is required when OIDC_ISSUER_URL is set")
	}

	if c.RateLimit.RequestsPerSecond < 0 {
		return fmt.Errorf("RATE_LIMIT must not be negative")
	}
	if c.RateLimit.RequestsPerSecond > 0 && c.RateLimit.Burst < 1 {
		return fmt.Errorf("RATE_LIMIT_BURST must be at least 1 when rate limiting is enabled")
	}

	if c.Engine.OperationTimeout < 0 {
		return fmt.Errorf("OPERATION_TIMEOUT must not be negative")
	}

	return nil
}

// UseFileShim returns true if the file shim should be used instead of Pulumi.
func (c *Config) UseFileShim() bool {
	return c.Engine.FileShim != ""
}

// AuthEnabled returns true if any request authentication is configured.
func (c *AuthConfig) AuthEnabled() bool {
	return c.APIToken != "" || c.OIDCIssuerURL != ""
}
