package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/providers/structs"
	"github.com/knadh/koanf/v2"
)

type Config struct {
	Version     string `koanf:"version"`
	Environment string `koanf:"environment"`
	LogLevel    string `koanf:"log_level"`
	MetricsAddr string `koanf:"metrics_addr"`

	Database DatabaseConfig `koanf:"database"`
	Redis    RedisConfig    `koanf:"redis"`

	Investigation InvestigationConfig      `koanf:"investigation"`
	Providers     map[string]ProviderLimit `koanf:"providers"`
	Breaker       BreakerConfig            `koanf:"breaker"`
	Retry         RetryConfig              `koanf:"retry"`
	Cache         CacheConfig              `koanf:"cache"`
	Monitoring    MonitoringConfig         `koanf:"monitoring"`
	Lifecycle     LifecycleConfig          `koanf:"lifecycle"`
}

type DatabaseConfig struct {
	URL             string        `koanf:"url"`
	MaxOpenConns    int           `koanf:"max_open_conns"`
	MaxIdleConns    int           `koanf:"max_idle_conns"`
	ConnMaxLifetime time.Duration `koanf:"conn_max_lifetime"`
}

type RedisConfig struct {
	URL      string `koanf:"url"`
	Password string `koanf:"password"`
	DB       int    `koanf:"db"`
}

// InvestigationConfig carries the SAR and orchestration knobs
type InvestigationConfig struct {
	ConfidenceThreshold           float64       `koanf:"confidence_threshold" validate:"gt=0,lte=1"`
	FoundationConfidenceThreshold float64       `koanf:"foundation_confidence_threshold" validate:"gt=0,lte=1"`
	MaxIterations                 int           `koanf:"max_iterations" validate:"gte=1"`
	FoundationMaxIterations       int           `koanf:"foundation_max_iterations" validate:"gte=1"`
	MinGainThreshold              float64       `koanf:"min_gain_threshold" validate:"gte=0"`
	MinConfidenceDelta            float64       `koanf:"min_confidence_delta" validate:"gte=0"`
	NetworkMaxEntitiesPerDegree   int           `koanf:"network_max_entities_per_degree" validate:"gte=1"`
	GlobalConcurrencyLimit        int           `koanf:"global_concurrency_limit" validate:"gte=1"`
	ScreeningTimeout              time.Duration `koanf:"screening_timeout"`
}

// ProviderLimit is the per-provider gateway configuration. The endpoint
// fields bind the provider adapter; the coverage fields feed the data source
// resolver.
type ProviderLimit struct {
	RPM     int           `koanf:"rpm" validate:"gte=1"`
	RPH     int           `koanf:"rph"`
	RPD     int           `koanf:"rpd"`
	Burst   int           `koanf:"burst"`
	Timeout time.Duration `koanf:"timeout"`

	BaseURL       string   `koanf:"base_url"`
	APIKey        string   `koanf:"api_key"`
	Checks        []string `koanf:"checks"`
	Tiers         []string `koanf:"tiers"`
	Jurisdictions []string `koanf:"jurisdictions"`
	Priority      int      `koanf:"priority"`
}

type BreakerConfig struct {
	FailureThreshold int           `koanf:"failure_threshold" validate:"gte=1"`
	RecoveryTimeout  time.Duration `koanf:"recovery_timeout"`
	HalfOpenMaxCalls int           `koanf:"half_open_max_calls" validate:"gte=1"`
}

type RetryConfig struct {
	MaxAttempts  int           `koanf:"max_attempts" validate:"gte=1"`
	InitialDelay time.Duration `koanf:"initial_delay"`
	MaxDelay     time.Duration `koanf:"max_delay"`
	Base         float64       `koanf:"base" validate:"gt=1"`
}

type CacheConfig struct {
	KeyPrefix string `koanf:"key_prefix"`
}

type MonitoringConfig struct {
	PollInterval time.Duration `koanf:"poll_interval"`
	BatchSize    int           `koanf:"batch_size" validate:"gte=1"`
}

// LifecycleConfig drives the inbound HR event queue consumer
type LifecycleConfig struct {
	QueueKey    string        `koanf:"queue_key"`
	PollTimeout time.Duration `koanf:"poll_timeout"`
}

// Defaults returns the configuration defaults from the specification surface
func Defaults() *Config {
	return &Config{
		Version:     "dev",
		Environment: "development",
		LogLevel:    "info",
		MetricsAddr: ":9090",
		Database: DatabaseConfig{
			MaxOpenConns:    25,
			MaxIdleConns:    5,
			ConnMaxLifetime: 5 * time.Minute,
		},
		Investigation: InvestigationConfig{
			ConfidenceThreshold:           0.85,
			FoundationConfidenceThreshold: 0.90,
			MaxIterations:                 3,
			FoundationMaxIterations:       4,
			MinGainThreshold:              0.10,
			MinConfidenceDelta:            0.05,
			NetworkMaxEntitiesPerDegree:   20,
			GlobalConcurrencyLimit:        32,
			ScreeningTimeout:              30 * time.Minute,
		},
		Providers: map[string]ProviderLimit{},
		Breaker: BreakerConfig{
			FailureThreshold: 5,
			RecoveryTimeout:  60 * time.Second,
			HalfOpenMaxCalls: 1,
		},
		Retry: RetryConfig{
			MaxAttempts:  3,
			InitialDelay: 200 * time.Millisecond,
			MaxDelay:     10 * time.Second,
			Base:         2.0,
		},
		Cache: CacheConfig{
			KeyPrefix: "screen:cache:",
		},
		Monitoring: MonitoringConfig{
			PollInterval: time.Minute,
			BatchSize:    50,
		},
		Lifecycle: LifecycleConfig{
			QueueKey:    "screen:lifecycle:events",
			PollTimeout: 5 * time.Second,
		},
	}
}

// Load builds the configuration from defaults, an optional YAML file and
// SCREEN_-prefixed environment variables, in that order.
func Load(configPath string) (*Config, error) {
	k := koanf.New(".")

	if err := k.Load(structs.Provider(Defaults(), "koanf"), nil); err != nil {
		return nil, fmt.Errorf("loading defaults: %w", err)
	}

	if configPath != "" {
		if err := k.Load(file.Provider(configPath), yaml.Parser()); err != nil {
			return nil, fmt.Errorf("loading config file %s: %w", configPath, err)
		}
	}

	if err := k.Load(env.Provider("SCREEN_", ".", func(s string) string {
		return strings.Replace(strings.ToLower(
			strings.TrimPrefix(s, "SCREEN_")), "_", ".", -1)
	}), nil); err != nil {
		return nil, fmt.Errorf("loading environment variables: %w", err)
	}

	var cfg Config
	if err := k.Unmarshal("", &cfg); err != nil {
		return nil, fmt.Errorf("unmarshaling config: %w", err)
	}

	if err := validator.New().Struct(&cfg); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}
	return &cfg, nil
}

// DefaultProviderLimit is applied when a provider has no explicit entry
func DefaultProviderLimit() ProviderLimit {
	return ProviderLimit{
		RPM:     60,
		RPH:     0,
		RPD:     0,
		Burst:   5,
		Timeout: 30 * time.Second,
	}
}

// LimitFor returns the configured limit for a provider, falling back to the
// defaults.
func (c *Config) LimitFor(providerID string) ProviderLimit {
	if limit, ok := c.Providers[providerID]; ok {
		if limit.Timeout == 0 {
			limit.Timeout = 30 * time.Second
		}
		return limit
	}
	return DefaultProviderLimit()
}
