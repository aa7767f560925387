// Package config loads worker configuration from environment variables.
package config

import (
	"fmt"

	"github.com/caarlos0/env/v11"
	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
)

// Config holds all application configuration, loaded from environment
// variables.
type Config struct {
	// Queue service
	QueueBaseURL string `env:"QUEUE_BASE_URL" validate:"required,url"`
	QueueAPIKey  string `env:"QUEUE_API_KEY" validate:"required"`
	QueueName    string `env:"QUEUE_NAME" envDefault:"validator" validate:"required"`
	InstanceID   string `env:"INSTANCE_ID"`

	// Local persistence
	CheckStoreFile string `env:"CHECK_STORE_FILE" envDefault:"data/check_store.json" validate:"required"`
	CooldownFile   string `env:"COOLDOWN_FILE" envDefault:"data/cooldowns.json" validate:"required"`

	// Coordinator
	ClaimBatchSize        int   `env:"CLAIM_BATCH_SIZE" envDefault:"5" validate:"min=1"`
	DeferredSweepInterval int64 `env:"DEFERRED_SWEEP_INTERVAL_MS" envDefault:"60000" validate:"min=1000"`
	IdlePollInterval      int64 `env:"IDLE_POLL_INTERVAL_MS" envDefault:"5000" validate:"min=100"`

	// Cooldown
	BackoffSequenceMinutes    []int `env:"BACKOFF_SEQUENCE_MINUTES" envDefault:"1,2,4,8,16,32,60,120,240,480" envSeparator:"," validate:"min=1,dive,min=1"`
	CooldownConnectionResetMS int64 `env:"COOLDOWN_CONNECTION_RESET_MS" envDefault:"60000" validate:"min=1"`
	CooldownTimeoutMS         int64 `env:"COOLDOWN_TIMEOUT_MS" envDefault:"60000" validate:"min=1"`
	CooldownDNSFailureMS      int64 `env:"COOLDOWN_DNS_FAILURE_MS" envDefault:"60000" validate:"min=1"`

	// Logging
	LogLevel  string `env:"LOG_LEVEL" envDefault:"info"`
	LogFormat string `env:"LOG_FORMAT" envDefault:"json"`

	// Admin HTTP surface. Empty disables it.
	AdminListenAddr string `env:"ADMIN_LISTEN_ADDR" envDefault:""`
}

// Load reads configuration from environment variables and validates it.
func Load() (*Config, error) {
	cfg := &Config{}
	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("parsing config from env: %w", err)
	}

	if cfg.InstanceID == "" {
		cfg.InstanceID = uuid.NewString()
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}

	return cfg, nil
}

// Validate checks struct-level constraints via validator tags. Called by
// Load, but exported so callers constructing a Config by hand (tests,
// embedders) can validate it themselves.
func (c *Config) Validate() error {
	v := validator.New()
	if err := v.Struct(c); err != nil {
		return err
	}
	return nil
}
