package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
)

// Config holds all application configuration
type Config struct {
	// Phone system (PBX)
	PBXBaseURL string `env:"PBX_BASE_URL,required"`
	PBXAPIKey  string `env:"PBX_API_KEY,required"`

	// CRM
	CRMBaseURL string `env:"CRM_BASE_URL,required"`
	CRMAPIKey  string `env:"CRM_API_KEY,required"`

	// Synchronization
	SyncIntervalSeconds    int `env:"SYNC_INTERVAL_SECONDS" envDefault:"30"`
	SyncHistoryLimit       int `env:"SYNC_HISTORY_LIMIT" envDefault:"200"`
	SyncRetainedCalls      int `env:"SYNC_RETAINED_CALLS" envDefault:"500"`
	UpstreamTimeoutSeconds int `env:"UPSTREAM_TIMEOUT_SECONDS" envDefault:"10"`

	// Redis (optional; rate limiting is disabled when unset)
	RedisURL string `env:"REDIS_URL"`

	// API tokens: CSV of "token:client" pairs. Empty means open access.
	APITokens string `env:"API_TOKENS"`

	// Metrics endpoint bearer token. Empty means open access.
	MetricsToken string `env:"METRICS_TOKEN"`

	// OpenTelemetry
	OTELEnabled          bool    `env:"OTEL_ENABLED" envDefault:"false"`
	OTELExporterEndpoint string  `env:"OTEL_EXPORTER_OTLP_ENDPOINT" envDefault:"localhost:4317"`
	OTELServiceName      string  `env:"OTEL_SERVICE_NAME" envDefault:"callmon-api"`
	OTELSamplingRatio    float64 `env:"OTEL_SAMPLING_RATIO" envDefault:"0.1"`

	// Server
	Port   string `env:"PORT" envDefault:"3004"`
	AppEnv string `env:"APP_ENV" envDefault:"dev"`

	// Rate Limiting
	RateLimitPerClientPerMin int `env:"RATE_LIMIT_PER_CLIENT_PER_MIN" envDefault:"120"`

	// Logging
	LogLevel string `env:"LOG_LEVEL" envDefault:"info"`
}

// LoadConfig loads configuration from environment variables
func LoadConfig() (*Config, error) {
	cfg := &Config{}

	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return cfg, nil
}

// Validate performs custom validation on the configuration
func (c *Config) Validate() error {
	if c.PBXBaseURL == "" {
		return fmt.Errorf("PBX_BASE_URL is required")
	}

	if c.CRMBaseURL == "" {
		return fmt.Errorf("CRM_BASE_URL is required")
	}

	if c.SyncIntervalSeconds <= 0 {
		return fmt.Errorf("SYNC_INTERVAL_SECONDS must be positive")
	}

	if c.SyncHistoryLimit <= 0 {
		return fmt.Errorf("SYNC_HISTORY_LIMIT must be positive")
	}

	if c.SyncRetainedCalls <= 0 {
		return fmt.Errorf("SYNC_RETAINED_CALLS must be positive")
	}

	if c.UpstreamTimeoutSeconds <= 0 {
		return fmt.Errorf("UPSTREAM_TIMEOUT_SECONDS must be positive")
	}

	if c.OTELSamplingRatio < 0 || c.OTELSamplingRatio > 1 {
		return fmt.Errorf("OTEL_SAMPLING_RATIO must be between 0 and 1")
	}

	if c.RateLimitPerClientPerMin <= 0 {
		return fmt.Errorf("RATE_LIMIT_PER_CLIENT_PER_MIN must be positive")
	}

	if _, err := c.GetAPITokens(); err != nil {
		return err
	}

	return nil
}

// TelemetryEnabled reports whether the OTel exporters should be wired
func (c *Config) TelemetryEnabled() bool {
	return c.OTELEnabled && c.OTELExporterEndpoint != ""
}

// SyncInterval returns the polling cadence as a duration
func (c *Config) SyncInterval() time.Duration {
	return time.Duration(c.SyncIntervalSeconds) * time.Second
}

// UpstreamTimeout returns the per-request upstream timeout as a duration
func (c *Config) UpstreamTimeout() time.Duration {
	return time.Duration(c.UpstreamTimeoutSeconds) * time.Second
}

// GetAPITokens parses the API_TOKENS CSV into a token -> client map.
// Each entry is "token:client"; blank entries are skipped.
func (c *Config) GetAPITokens() (map[string]string, error) {
	tokens := make(map[string]string)
	if strings.TrimSpace(c.APITokens) == "" {
		return tokens, nil
	}

	for _, entry := range strings.Split(c.APITokens, ",") {
		entry = strings.TrimSpace(entry)
		if entry == "" {
			continue
		}
		parts := strings.SplitN(entry, ":", 2)
		if len(parts) != 2 || strings.TrimSpace(parts[0]) == "" || strings.TrimSpace(parts[1]) == "" {
			return nil, fmt.Errorf("API_TOKENS entry %q must be in token:client form", entry)
		}
		tokens[strings.TrimSpace(parts[0])] = strings.TrimSpace(parts[1])
	}
	return tokens, nil
}
