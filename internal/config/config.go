package config

import (
	"fmt"
	"os"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
	"github.com/snarg/segmerge/internal/align"
	"github.com/snarg/segmerge/internal/database"
)

type Config struct {
	MergeStrategy       string  `env:"MERGE_STRATEGY" envDefault:"best_overlap"`
	MinOverlapThreshold float64 `env:"MIN_OVERLAP_THRESHOLD" envDefault:"0.1"`
	ConfidenceThreshold float64 `env:"CONFIDENCE_THRESHOLD" envDefault:"0.5"`
	PauseGap            float64 `env:"PAUSE_GAP" envDefault:"0.8"`

	HTTPAddr        string        `env:"HTTP_ADDR" envDefault:":8080"`
	ReadTimeout     time.Duration `env:"HTTP_READ_TIMEOUT" envDefault:"5s"`
	WriteTimeout    time.Duration `env:"HTTP_WRITE_TIMEOUT" envDefault:"30s"`
	IdleTimeout     time.Duration `env:"HTTP_IDLE_TIMEOUT" envDefault:"120s"`
	MaxRequestBytes int64         `env:"MAX_REQUEST_BYTES" envDefault:"8388608"`

	DatabaseURL    string `env:"DATABASE_URL"`
	DBMaxConns     int32  `env:"DB_MAX_CONNS" envDefault:"8"`
	DBMinConns     int32  `env:"DB_MIN_CONNS" envDefault:"1"`
	MetricsEnabled bool   `env:"METRICS_ENABLED" envDefault:"true"`

	// MQTT ingest is enabled when MQTTBrokerURL is set.
	MQTTBrokerURL   string `env:"MQTT_BROKER_URL"`
	MQTTClientID    string `env:"MQTT_CLIENT_ID" envDefault:"segmerge"`
	MQTTTopics      string `env:"MQTT_TOPICS" envDefault:"segmerge/merge/#"`
	MQTTResultTopic string `env:"MQTT_RESULT_TOPIC" envDefault:"segmerge/results"`
	MQTTUsername    string `env:"MQTT_USERNAME"`
	MQTTPassword    string `env:"MQTT_PASSWORD"`

	AuthToken string `env:"AUTH_TOKEN"`
	LogLevel  string `env:"LOG_LEVEL" envDefault:"info"`
}

// Overrides holds CLI flag values that take priority over env vars.
type Overrides struct {
	EnvFile       string
	HTTPAddr      string
	LogLevel      string
	DatabaseURL   string
	MergeStrategy string
}

// Load reads configuration from .env file, environment variables, and CLI overrides.
// Priority: CLI flags > environment variables > .env file > struct defaults.
func Load(overrides Overrides) (*Config, error) {
	// Load .env file (silent if missing)
	envFile := overrides.EnvFile
	if envFile == "" {
		envFile = ".env"
	}
	if _, err := os.Stat(envFile); err == nil {
		_ = godotenv.Load(envFile)
	}

	// Parse environment variables into config struct
	cfg := &Config{}
	if err := env.Parse(cfg); err != nil {
		return nil, err
	}

	// Apply CLI overrides (non-empty values win)
	if overrides.HTTPAddr != "" {
		cfg.HTTPAddr = overrides.HTTPAddr
	}
	if overrides.LogLevel != "" {
		cfg.LogLevel = overrides.LogLevel
	}
	if overrides.DatabaseURL != "" {
		cfg.DatabaseURL = overrides.DatabaseURL
	}
	if overrides.MergeStrategy != "" {
		cfg.MergeStrategy = overrides.MergeStrategy
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// MergeOptions returns the engine options described by the config.
func (c *Config) MergeOptions() (align.Options, error) {
	st, err := align.ParseStrategy(c.MergeStrategy)
	if err != nil {
		return align.Options{}, err
	}
	opts := align.Options{
		Strategy:            st,
		MinOverlapThreshold: c.MinOverlapThreshold,
		ConfidenceThreshold: c.ConfidenceThreshold,
	}
	return opts, opts.Validate()
}

// Validate rejects settings the service cannot start with.
func (c *Config) Validate() error {
	if _, err := c.MergeOptions(); err != nil {
		return fmt.Errorf("merge config: %w", err)
	}
	if c.PauseGap <= 0 {
		return fmt.Errorf("PAUSE_GAP must be positive, got %v", c.PauseGap)
	}
	if c.DBMaxConns <= 0 || c.DBMinConns < 0 || c.DBMinConns > c.DBMaxConns {
		return fmt.Errorf("DB_MIN_CONNS/DB_MAX_CONNS must satisfy 0 <= min <= max, max > 0; got %d/%d", c.DBMinConns, c.DBMaxConns)
	}
	if c.MaxRequestBytes <= 0 {
		return fmt.Errorf("MAX_REQUEST_BYTES must be positive, got %d", c.MaxRequestBytes)
	}
	return nil
}

// DatabasePool returns the merge-run pool settings.
func (c *Config) DatabasePool() database.PoolOptions {
	return database.PoolOptions{
		URL:      c.DatabaseURL,
		MaxConns: c.DBMaxConns,
		MinConns: c.DBMinConns,
	}
}
