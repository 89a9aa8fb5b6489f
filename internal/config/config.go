// Package config loads the root service configuration from config.toml,
// an optional per-environment overlay, and environment variables.
package config

import (
	"fmt"
	"os"
	"time"

	"github.com/pelletier/go-toml/v2"

	"github.com/arbiterlabs/arbiter/internal/engine"
	"github.com/arbiterlabs/arbiter/internal/events"
	"github.com/arbiterlabs/arbiter/internal/inference"
	"github.com/arbiterlabs/arbiter/pkg/database"
	"github.com/arbiterlabs/arbiter/pkg/storage"
)

const (
	BaseConfigFile       = "config.toml"
	OverlayConfigPattern = "config.%s.toml"

	EnvArbiterEnv             = "ARBITER_ENV"
	EnvArbiterShutdownTimeout = "ARBITER_SHUTDOWN_TIMEOUT"
	EnvArbiterVersion         = "ARBITER_VERSION"
)

var databaseEnv = &database.Env{
	Host:            "ARBITER_DB_HOST",
	Port:            "ARBITER_DB_PORT",
	Name:            "ARBITER_DB_NAME",
	User:            "ARBITER_DB_USER",
	Password:        "ARBITER_DB_PASSWORD",
	SSLMode:         "ARBITER_DB_SSL_MODE",
	MaxOpenConns:    "ARBITER_DB_MAX_OPEN_CONNS",
	MaxIdleConns:    "ARBITER_DB_MAX_IDLE_CONNS",
	ConnMaxLifetime: "ARBITER_DB_CONN_MAX_LIFETIME",
	ConnTimeout:     "ARBITER_DB_CONN_TIMEOUT",
}

var storageEnv = &storage.Env{
	ContainerName:    "ARBITER_STORAGE_CONTAINER_NAME",
	ConnectionString: "ARBITER_STORAGE_CONNECTION_STRING",
}

var inferenceEnv = &inference.Env{
	BaseURL:        "ARBITER_INFERENCE_BASE_URL",
	Token:          "ARBITER_INFERENCE_TOKEN",
	Model:          "ARBITER_INFERENCE_MODEL",
	Temperature:    "ARBITER_INFERENCE_TEMPERATURE",
	MaxTokens:      "ARBITER_INFERENCE_MAX_TOKENS",
	RequestTimeout: "ARBITER_INFERENCE_REQUEST_TIMEOUT",
}

var engineEnv = &engine.Env{
	Workers:             "ARBITER_ENGINE_WORKERS",
	ClaimInterval:       "ARBITER_ENGINE_CLAIM_INTERVAL",
	LeaseDuration:       "ARBITER_ENGINE_LEASE_DURATION",
	RenewInterval:       "ARBITER_ENGINE_RENEW_INTERVAL",
	JanitorInterval:     "ARBITER_ENGINE_JANITOR_INTERVAL",
	TimeoutBudget:       "ARBITER_ENGINE_TIMEOUT_BUDGET",
	MaxAttempts:         "ARBITER_ENGINE_MAX_ATTEMPTS",
	InitialBackoff:      "ARBITER_ENGINE_INITIAL_BACKOFF",
	MaxBackoff:          "ARBITER_ENGINE_MAX_BACKOFF",
	BackoffMultiplier:   "ARBITER_ENGINE_BACKOFF_MULTIPLIER",
	BatchSize:           "ARBITER_ENGINE_BATCH_SIZE",
	ParseConcurrency:    "ARBITER_ENGINE_PARSE_CONCURRENCY",
	EvalConcurrency:     "ARBITER_ENGINE_EVAL_CONCURRENCY",
	EvidenceThreshold:   "ARBITER_ENGINE_EVIDENCE_THRESHOLD",
	StrictEvaluation:    "ARBITER_ENGINE_STRICT_EVALUATION",
	TenantProcessingCap: "ARBITER_ENGINE_TENANT_PROCESSING_CAP",
	TenantInferenceRate: "ARBITER_ENGINE_TENANT_INFERENCE_RATE",
	SubmissionRate:      "ARBITER_ENGINE_SUBMISSION_RATE",
}

// Config is the root configuration for the Arbiter service.
type Config struct {
	Server          ServerConfig     `toml:"server"`
	Database        database.Config  `toml:"database"`
	Storage         storage.Config   `toml:"storage"`
	Inference       inference.Config `toml:"inference"`
	Engine          engine.Config    `toml:"engine"`
	Events          events.Config    `toml:"events"`
	API             APIConfig        `toml:"api"`
	ShutdownTimeout string           `toml:"shutdown_timeout"`
	Version         string           `toml:"version"`
}

// Env returns the ARBITER_ENV value, defaulting to "local".
func (c *Config) Env() string {
	if env := os.Getenv(EnvArbiterEnv); env != "" {
		return env
	}
	return "local"
}

// ShutdownTimeoutDuration returns ShutdownTimeout as a time.Duration.
func (c *Config) ShutdownTimeoutDuration() time.Duration {
	d, _ := time.ParseDuration(c.ShutdownTimeout)
	return d
}

// Load reads the base config (if present), applies any environment overlay,
// and finalizes all values. If no config.toml exists, defaults and environment
// variables provide all configuration.
func Load() (*Config, error) {
	cfg := &Config{}

	if _, err := os.Stat(BaseConfigFile); err == nil {
		loaded, err := load(BaseConfigFile)
		if err != nil {
			return nil, err
		}
		cfg = loaded
	}

	if path := overlayPath(); path != "" {
		overlay, err := load(path)
		if err != nil {
			return nil, fmt.Errorf("load overlay %s: %w", path, err)
		}
		cfg.Merge(overlay)
	}

	if err := cfg.finalize(); err != nil {
		return nil, fmt.Errorf("finalize config: %w", err)
	}

	return cfg, nil
}

// Merge overwrites non-zero fields from overlay across all sub-configs.
func (c *Config) Merge(overlay *Config) {
	if overlay.ShutdownTimeout != "" {
		c.ShutdownTimeout = overlay.ShutdownTimeout
	}
	if overlay.Version != "" {
		c.Version = overlay.Version
	}
	c.Server.Merge(&overlay.Server)
	c.Database.Merge(&overlay.Database)
	c.Storage.Merge(&overlay.Storage)
	c.Inference.Merge(&overlay.Inference)
	c.Engine.Merge(&overlay.Engine)
	c.Events.Merge(overlay.Events)
	c.API.Merge(&overlay.API)
}

func (c *Config) finalize() error {
	c.loadDefaults()
	c.loadEnv()

	if err := c.validate(); err != nil {
		return err
	}
	if err := c.Server.Finalize(); err != nil {
		return fmt.Errorf("server: %w", err)
	}
	if err := c.Database.Finalize(databaseEnv); err != nil {
		return fmt.Errorf("database: %w", err)
	}
	if err := c.Storage.Finalize(storageEnv); err != nil {
		return fmt.Errorf("storage: %w", err)
	}
	if err := c.Inference.Finalize(inferenceEnv); err != nil {
		return fmt.Errorf("inference: %w", err)
	}
	if err := c.Engine.Finalize(engineEnv); err != nil {
		return fmt.Errorf("engine: %w", err)
	}
	if err := c.Events.Finalize(); err != nil {
		return fmt.Errorf("events: %w", err)
	}
	if err := c.API.Finalize(); err != nil {
		return fmt.Errorf("api: %w", err)
	}
	return nil
}

func (c *Config) loadDefaults() {
	if c.ShutdownTimeout == "" {
		c.ShutdownTimeout = "30s"
	}
	if c.Version == "" {
		c.Version = "0.1.0"
	}
}

func (c *Config) loadEnv() {
	if v := os.Getenv(EnvArbiterShutdownTimeout); v != "" {
		c.ShutdownTimeout = v
	}
	if v := os.Getenv(EnvArbiterVersion); v != "" {
		c.Version = v
	}
}

func (c *Config) validate() error {
	if _, err := time.ParseDuration(c.ShutdownTimeout); err != nil {
		return fmt.Errorf("invalid shutdown_timeout: %w", err)
	}
	return nil
}

func load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}

	var cfg Config
	if err := toml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}

	return &cfg, nil
}

func overlayPath() string {
	if env := os.Getenv(EnvArbiterEnv); env != "" {
		path := fmt.Sprintf(OverlayConfigPattern, env)
		if _, err := os.Stat(path); err == nil {
			return path
		}
	}
	return ""
}
