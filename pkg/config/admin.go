package config

import (
	"fmt"
	"time"

	"github.com/vellum-dev/vellum/pkg/auth"
)

// AdminConfig is the top-level configuration for vellum-trustd: the
// daemon that hosts the trust store, plugin discovery, and the optional
// admin HTTP API over them.
type AdminConfig struct {
	Server    ServerConfig    `yaml:"server"`
	TrustDir  TrustDirConfig  `yaml:"trust"`
	RBAC      RBACConfig      `yaml:"rbac"`
	Logging   LoggingConfig   `yaml:"logging"`
	Metrics   MetricsConfig   `yaml:"metrics"`
}

// ServerConfig configures the admin HTTP API listener (SPEC_FULL.md §6.1).
type ServerConfig struct {
	Host            string        `yaml:"host"`
	Port            int           `yaml:"port"`
	ReadTimeout     time.Duration `yaml:"read_timeout"`
	WriteTimeout    time.Duration `yaml:"write_timeout"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
	TLS             TLSConfig     `yaml:"tls"`
	RateLimit       RateLimitConfig `yaml:"rate_limit"`
	JWT             auth.JWTConfig  `yaml:"jwt"`
}

// TLSConfig configures optional TLS termination for the admin API.
type TLSConfig struct {
	Enabled  bool   `yaml:"enabled"`
	CertFile string `yaml:"cert_file"`
	KeyFile  string `yaml:"key_file"`
}

// RateLimitConfig configures the per-remote-address token bucket
// (golang.org/x/time/rate) guarding the admin API.
type RateLimitConfig struct {
	Enabled           bool    `yaml:"enabled"`
	RequestsPerSecond float64 `yaml:"requests_per_second"`
	Burst             int     `yaml:"burst"`
}

// TrustDirConfig configures the trust store and discovery roots.
type TrustDirConfig struct {
	StorePath      string   `yaml:"store_path"`
	DiscoveryRoots []string `yaml:"discovery_roots"`
}

// RBACConfig configures the admin API's role-based access control.
type RBACConfig struct {
	PolicyPath    string        `yaml:"policy_path"`
	DefaultPolicy string        `yaml:"default_policy"`
	CacheTTL      time.Duration `yaml:"cache_ttl"`
}

// LoggingConfig configures the structured logger.
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// MetricsConfig configures the in-process metrics registry and its
// optional HTTP exposition endpoint.
type MetricsConfig struct {
	Enabled bool   `yaml:"enabled"`
	Path    string `yaml:"path"`
}

// Validate checks the configuration for internal consistency.
func (c *AdminConfig) Validate() error {
	if c.Server.Port < 0 || c.Server.Port > 65535 {
		return fmt.Errorf("server.port must be between 0 and 65535, got %d", c.Server.Port)
	}

	if c.Server.TLS.Enabled {
		if c.Server.TLS.CertFile == "" || c.Server.TLS.KeyFile == "" {
			return fmt.Errorf("server.tls.cert_file and key_file are required when TLS is enabled")
		}
	}

	if c.Server.RateLimit.Enabled && c.Server.RateLimit.RequestsPerSecond <= 0 {
		return fmt.Errorf("server.rate_limit.requests_per_second must be positive when rate limiting is enabled")
	}

	if len(c.TrustDir.DiscoveryRoots) == 0 {
		return fmt.Errorf("trust.discovery_roots must name at least one root")
	}

	return nil
}

// GetDefaults returns a fully populated default configuration, with
// store/discovery paths left empty so callers fill them in from
// pkg/paths.DefaultPaths().
func GetDefaults() *AdminConfig {
	return &AdminConfig{
		Server: ServerConfig{
			Host:            "127.0.0.1",
			Port:            8743,
			ReadTimeout:     10 * time.Second,
			WriteTimeout:    10 * time.Second,
			ShutdownTimeout: 15 * time.Second,
			RateLimit: RateLimitConfig{
				Enabled:           true,
				RequestsPerSecond: 10,
				Burst:             20,
			},
			JWT: auth.JWTConfig{
				ClockSkew: 5 * time.Minute,
			},
		},
		RBAC: RBACConfig{
			DefaultPolicy: "readonly",
			CacheTTL:      5 * time.Minute,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
		},
		Metrics: MetricsConfig{
			Enabled: true,
			Path:    "/metrics",
		},
	}
}
