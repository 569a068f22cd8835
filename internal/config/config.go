// Package config defines the proxy's configuration surface (SPEC_FULL §6)
// and loads it from environment variables with an optional YAML file
// overlay. Adapted from the teacher's internal/config/config.go: the
// encrypted multi-provider AppConfig store is gone (there is exactly one
// backend, no secret-at-rest store to protect), but the "defaults struct"
// shape is kept; fields are read and set directly.
package config

import (
	"fmt"
	"os"
	"strconv"

	"github.com/goccy/go-yaml"
)

// Config is the proxy's full runtime configuration, per SPEC_FULL §6.
type Config struct {
	ListenAddr string `yaml:"listen_addr"`

	BackendBaseURL string `yaml:"backend_base_url"`
	BackendAPIKey  string `yaml:"backend_api_key"`
	BackendStyle   string `yaml:"backend_style"` // "openai" (default) | "anthropic"

	CacheMaxBytes int64 `yaml:"cache_max_bytes"`
	CacheEligibilityExpr string `yaml:"cache_eligibility_expr"`

	KeepaliveIntervalMS int `yaml:"keepalive_interval_ms"`
	TerminalWatchdogMS  int `yaml:"terminal_watchdog_ms"`
	DrainTimeoutMS      int `yaml:"drain_timeout_ms"`

	TraceDir      string `yaml:"trace_dir"`
	RequestLogPath string `yaml:"request_log_path"`
	LogLevel      string `yaml:"log_level"`

	RequireAuth  bool     `yaml:"require_auth"`
	AuthTokens   []string `yaml:"auth_tokens"`
	JWTSecret    string   `yaml:"jwt_secret"`

	ModelAliases []ModelAlias `yaml:"model_aliases"`

	HealthProbeIntervalMS int `yaml:"health_probe_interval_ms"`
}

// ModelAlias is one entry of the optional GET /v1/models echo list,
// generalized from the teacher's ModelDefinition (internal/config/model_config.go)
// down to the fields this passthrough actually needs.
type ModelAlias struct {
	ID          string `yaml:"id"`
	DisplayName string `yaml:"display_name"`
}

// Defaults returns a Config populated with the SPEC_FULL §6 defaults.
func Defaults() *Config {
	return &Config{
		ListenAddr:            ":8080",
		BackendStyle:          "openai",
		CacheMaxBytes:         0,
		KeepaliveIntervalMS:   10000,
		TerminalWatchdogMS:    60000,
		DrainTimeoutMS:        5000,
		LogLevel:              "basic",
		HealthProbeIntervalMS: 30000,
	}
}

// Load builds a Config from defaults, an optional YAML file, then
// environment variable overrides (in that precedence order, env wins).
func Load(yamlPath string) (*Config, error) {
	cfg := Defaults()

	if yamlPath != "" {
		data, err := os.ReadFile(yamlPath)
		if err != nil {
			if !os.IsNotExist(err) {
				return nil, fmt.Errorf("reading config file %s: %w", yamlPath, err)
			}
		} else if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parsing config file %s: %w", yamlPath, err)
		}
	}

	applyEnvOverrides(cfg)

	if cfg.BackendBaseURL == "" {
		return nil, fmt.Errorf("backend_base_url is required (set via config file or ANTHROBRIDGE_BACKEND_BASE_URL)")
	}

	return cfg, nil
}

func applyEnvOverrides(cfg *Config) {
	str := func(key string, dst *string) {
		if v := os.Getenv(key); v != "" {
			*dst = v
		}
	}
	integer := func(key string, dst *int) {
		if v := os.Getenv(key); v != "" {
			if n, err := strconv.Atoi(v); err == nil {
				*dst = n
			}
		}
	}
	int64v := func(key string, dst *int64) {
		if v := os.Getenv(key); v != "" {
			if n, err := strconv.ParseInt(v, 10, 64); err == nil {
				*dst = n
			}
		}
	}
	boolean := func(key string, dst *bool) {
		if v := os.Getenv(key); v != "" {
			if b, err := strconv.ParseBool(v); err == nil {
				*dst = b
			}
		}
	}

	str("ANTHROBRIDGE_LISTEN_ADDR", &cfg.ListenAddr)
	str("ANTHROBRIDGE_BACKEND_BASE_URL", &cfg.BackendBaseURL)
	str("ANTHROBRIDGE_BACKEND_API_KEY", &cfg.BackendAPIKey)
	str("ANTHROBRIDGE_BACKEND_STYLE", &cfg.BackendStyle)
	int64v("ANTHROBRIDGE_CACHE_MAX_BYTES", &cfg.CacheMaxBytes)
	str("ANTHROBRIDGE_CACHE_ELIGIBILITY_EXPR", &cfg.CacheEligibilityExpr)
	integer("ANTHROBRIDGE_KEEPALIVE_INTERVAL_MS", &cfg.KeepaliveIntervalMS)
	integer("ANTHROBRIDGE_TERMINAL_WATCHDOG_MS", &cfg.TerminalWatchdogMS)
	integer("ANTHROBRIDGE_DRAIN_TIMEOUT_MS", &cfg.DrainTimeoutMS)
	str("ANTHROBRIDGE_TRACE_DIR", &cfg.TraceDir)
	str("ANTHROBRIDGE_REQUEST_LOG_PATH", &cfg.RequestLogPath)
	str("ANTHROBRIDGE_LOG_LEVEL", &cfg.LogLevel)
	boolean("ANTHROBRIDGE_REQUIRE_AUTH", &cfg.RequireAuth)
	str("ANTHROBRIDGE_JWT_SECRET", &cfg.JWTSecret)
}
