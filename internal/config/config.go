// Package config loads the orchestrator's YAML configuration and applies
// environment-variable overrides, mirroring the dual file+env pattern used
// throughout the corpus this module is built from.
package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the root configuration object.
type Config struct {
	Server    ServerConfig    `yaml:"server"`
	Database  DatabaseConfig  `yaml:"database"`
	Forge     ForgeConfig     `yaml:"forge"`
	Platform  PlatformConfig  `yaml:"platform"`
	Image     ImageConfig     `yaml:"image"`
	Vault     VaultConfig     `yaml:"vault"`
	Temporal  TemporalConfig  `yaml:"temporal"`
	Cache     CacheConfig     `yaml:"cache"`
	Bus       MessageBusConfig `yaml:"message_bus"`
	Telemetry TelemetryConfig `yaml:"telemetry"`
	HotReload HotReloadConfig `yaml:"hot_reload"`
	Security  SecurityConfig  `yaml:"security"`
	Retry     RetryConfig     `yaml:"retry"`
}

// ServerConfig configures the inbound HTTP server.
type ServerConfig struct {
	HTTPPort     int           `yaml:"http_port"`
	ReadTimeout  time.Duration `yaml:"read_timeout"`
	WriteTimeout time.Duration `yaml:"write_timeout"`
	IdleTimeout  time.Duration `yaml:"idle_timeout"`
	DebugLevel   int           `yaml:"debug_level"`
}

// DatabaseConfig configures the Project Store's PostgreSQL connection.
type DatabaseConfig struct {
	DSN string `yaml:"dsn"`
}

// ForgeConfig configures the C1 Forge Gateway.
type ForgeConfig struct {
	BaseURL       string `yaml:"base_url"`
	PublicBaseURL string `yaml:"public_base_url"`
	Token         string `yaml:"token"`
	DefaultOwner  string `yaml:"default_owner"`
	GitUserEmail  string `yaml:"git_user_email"`
	GitUserName   string `yaml:"git_user_name"`
}

// PlatformConfig configures the C2 Platform Gateway.
type PlatformConfig struct {
	BaseURL           string `yaml:"base_url"`
	Token             string `yaml:"token"`
	TargetProjectUUID string `yaml:"target_project_uuid"`
	TargetServerUUID  string `yaml:"target_server_uuid"`
}

// ImageConfig configures C3's default composition inputs.
type ImageConfig struct {
	Registry        string `yaml:"registry"`
	Owner           string `yaml:"owner"`
	Version         string `yaml:"version"`
	BasePort        int    `yaml:"base_port"`
	GatewayPort     int    `yaml:"gateway_port"`
	PortRangeStart  int    `yaml:"port_range_start"`
	PortRangeEnd    int    `yaml:"port_range_end"`
	HealthCheckPath string `yaml:"health_check_path"`
	WildcardDomain  string `yaml:"wildcard_domain"`
	DefaultFlavor   string `yaml:"default_flavor"`
	DefaultTier     string `yaml:"default_tier"`
}

// VaultConfig configures the C4 Credential Vault's key store.
type VaultConfig struct {
	StorePath string `yaml:"store_path"`
}

// TemporalConfig configures the Temporal client driving C6's sagas.
type TemporalConfig struct {
	HostPort  string `yaml:"host_port"`
	Namespace string `yaml:"namespace"`
	TaskQueue string `yaml:"task_queue"`
}

// CacheConfig configures the shared FQDN/client cache backing C7.
type CacheConfig struct {
	Addr string `yaml:"addr"` // empty = in-process cache only
}

// MessageBusConfig configures optional async event fan-out.
type MessageBusConfig struct {
	URL string `yaml:"url"` // empty = disabled
}

// TelemetryConfig configures OpenTelemetry tracing export.
type TelemetryConfig struct {
	OTLPEndpoint string `yaml:"otlp_endpoint"` // empty = tracing disabled
	ServiceName  string `yaml:"service_name"`
}

// HotReloadConfig enables fsnotify-based config hot reload.
type HotReloadConfig struct {
	Enabled bool `yaml:"enabled"`
}

// SecurityConfig configures the minimal inbound JWT auth layer.
type SecurityConfig struct {
	JWTSecret  string `yaml:"jwt_secret"`
	EnableAuth bool   `yaml:"enable_auth"`
}

// RetryConfig is the bounded-backoff policy used for idempotent gateway
// calls.
type RetryConfig struct {
	MaxAttempts  int           `yaml:"max_attempts"`
	InitialDelay time.Duration `yaml:"initial_delay"`
	MaxDelay     time.Duration `yaml:"max_delay"`
}

func defaults() *Config {
	return &Config{
		Server: ServerConfig{HTTPPort: 8080, ReadTimeout: 30 * time.Second, WriteTimeout: 30 * time.Second, IdleTimeout: 120 * time.Second},
		Image: ImageConfig{
			BasePort: 4096, GatewayPort: 4097, PortRangeStart: 10000, PortRangeEnd: 20000,
			HealthCheckPath: "/session", DefaultFlavor: "standard", DefaultTier: "small",
		},
		Temporal: TemporalConfig{HostPort: "localhost:7233", Namespace: "default", TaskQueue: "codeopen-orchestrator"},
		Retry:    RetryConfig{MaxAttempts: 3, InitialDelay: 200 * time.Millisecond, MaxDelay: 2 * time.Second},
	}
}

// Load reads a YAML config file and applies environment overrides. A
// missing path is not an error: defaults plus env overrides are returned.
func Load(path string) (*Config, error) {
	cfg := defaults()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			if !os.IsNotExist(err) {
				return nil, fmt.Errorf("reading config file: %w", err)
			}
		} else if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parsing config file: %w", err)
		}
	}

	applyEnvOverrides(cfg)
	return cfg, nil
}

func applyEnvOverrides(cfg *Config) {
	strOverride(&cfg.Database.DSN, "DATABASE_DSN")
	strOverride(&cfg.Forge.BaseURL, "FORGE_BASE_URL")
	strOverride(&cfg.Forge.PublicBaseURL, "FORGE_PUBLIC_BASE_URL")
	strOverride(&cfg.Forge.Token, "FORGE_TOKEN")
	strOverride(&cfg.Forge.DefaultOwner, "FORGE_DEFAULT_OWNER")
	strOverride(&cfg.Forge.GitUserEmail, "FORGE_GIT_USER_EMAIL")
	strOverride(&cfg.Forge.GitUserName, "FORGE_GIT_USER_NAME")
	strOverride(&cfg.Platform.BaseURL, "PLATFORM_BASE_URL")
	strOverride(&cfg.Platform.Token, "PLATFORM_TOKEN")
	strOverride(&cfg.Platform.TargetProjectUUID, "PLATFORM_TARGET_PROJECT_UUID")
	strOverride(&cfg.Platform.TargetServerUUID, "PLATFORM_TARGET_SERVER_UUID")
	strOverride(&cfg.Image.WildcardDomain, "IMAGE_WILDCARD_DOMAIN")
	strOverride(&cfg.Image.Registry, "IMAGE_REGISTRY")
	strOverride(&cfg.Temporal.HostPort, "TEMPORAL_HOST")
	strOverride(&cfg.Temporal.Namespace, "TEMPORAL_NAMESPACE")
	strOverride(&cfg.Cache.Addr, "CACHE_REDIS_ADDR")
	strOverride(&cfg.Bus.URL, "MESSAGE_BUS_URL")
	strOverride(&cfg.Telemetry.OTLPEndpoint, "OTEL_EXPORTER_OTLP_ENDPOINT")
	strOverride(&cfg.Security.JWTSecret, "JWT_SECRET")
	strOverride(&cfg.Vault.StorePath, "VAULT_STORE_PATH")
}

func strOverride(dst *string, envKey string) {
	if v := os.Getenv(envKey); v != "" {
		*dst = v
	}
}

// Validate returns an error naming the first missing or invalid required
// field, or nil. orchestratord calls it at startup and exits with code 2 on
// a non-nil result.
func (c *Config) Validate() error {
	if c.Forge.BaseURL == "" {
		return fmt.Errorf("forge.base_url is required")
	}
	if c.Platform.BaseURL == "" {
		return fmt.Errorf("platform.base_url is required")
	}
	if c.Database.DSN == "" {
		return fmt.Errorf("database.dsn is required")
	}
	if c.Image.PortRangeStart <= 0 || c.Image.PortRangeEnd <= c.Image.PortRangeStart {
		return fmt.Errorf("image.port_range_start/end is invalid")
	}
	return nil
}
