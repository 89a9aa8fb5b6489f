package engine

import (
	"fmt"
	"os"
	"strconv"
	"time"
)

// Config holds scheduler and orchestrator tuning parameters.
type Config struct {
	Workers             int     `toml:"workers"`
	ClaimInterval       string  `toml:"claim_interval"`
	LeaseDuration       string  `toml:"lease_duration"`
	RenewInterval       string  `toml:"renew_interval"`
	JanitorInterval     string  `toml:"janitor_interval"`
	TimeoutBudget       string  `toml:"timeout_budget"`
	MaxAttempts         int     `toml:"max_attempts"`
	InitialBackoff      string  `toml:"initial_backoff"`
	MaxBackoff          string  `toml:"max_backoff"`
	BackoffMultiplier   float64 `toml:"backoff_multiplier"`
	BatchSize           int     `toml:"batch_size"`
	ParseConcurrency    int     `toml:"parse_concurrency"`
	EvalConcurrency     int     `toml:"eval_concurrency"`
	EvidenceThreshold   float64 `toml:"evidence_threshold"`
	StrictEvaluation    bool    `toml:"strict_evaluation"`
	TenantProcessingCap int     `toml:"tenant_processing_cap"`
	TenantInferenceRate int     `toml:"tenant_inference_rate"`
	SubmissionRate      int     `toml:"submission_rate"`
}

// Env maps config fields to environment variable names for override injection.
type Env struct {
	Workers             string
	ClaimInterval       string
	LeaseDuration       string
	RenewInterval       string
	JanitorInterval     string
	TimeoutBudget       string
	MaxAttempts         string
	InitialBackoff      string
	MaxBackoff          string
	BackoffMultiplier   string
	BatchSize           string
	ParseConcurrency    string
	EvalConcurrency     string
	EvidenceThreshold   string
	StrictEvaluation    string
	TenantProcessingCap string
	TenantInferenceRate string
	SubmissionRate      string
}

func (c *Config) ClaimIntervalDuration() time.Duration   { return duration(c.ClaimInterval) }
func (c *Config) LeaseDurationDuration() time.Duration   { return duration(c.LeaseDuration) }
func (c *Config) RenewIntervalDuration() time.Duration   { return duration(c.RenewInterval) }
func (c *Config) JanitorIntervalDuration() time.Duration { return duration(c.JanitorInterval) }
func (c *Config) TimeoutBudgetDuration() time.Duration   { return duration(c.TimeoutBudget) }
func (c *Config) InitialBackoffDuration() time.Duration  { return duration(c.InitialBackoff) }
func (c *Config) MaxBackoffDuration() time.Duration      { return duration(c.MaxBackoff) }

// ReapPolicy derives the janitor's expired-lease disposition from the
// retry settings.
func (c *Config) ReapPolicy() ReapPolicy {
	return ReapPolicy{
		MaxAttempts:    c.MaxAttempts,
		InitialBackoff: c.InitialBackoffDuration(),
		MaxBackoff:     c.MaxBackoffDuration(),
		Multiplier:     c.BackoffMultiplier,
	}
}

func duration(s string) time.Duration {
	d, _ := time.ParseDuration(s)
	return d
}

// Finalize applies defaults, environment variable overrides, and validation.
func (c *Config) Finalize(env *Env) error {
	c.loadDefaults()
	if env != nil {
		c.loadEnv(env)
	}
	return c.validate()
}

// Merge overwrites non-zero fields from overlay.
func (c *Config) Merge(overlay *Config) {
	if overlay.Workers != 0 {
		c.Workers = overlay.Workers
	}
	if overlay.ClaimInterval != "" {
		c.ClaimInterval = overlay.ClaimInterval
	}
	if overlay.LeaseDuration != "" {
		c.LeaseDuration = overlay.LeaseDuration
	}
	if overlay.RenewInterval != "" {
		c.RenewInterval = overlay.RenewInterval
	}
	if overlay.JanitorInterval != "" {
		c.JanitorInterval = overlay.JanitorInterval
	}
	if overlay.TimeoutBudget != "" {
		c.TimeoutBudget = overlay.TimeoutBudget
	}
	if overlay.MaxAttempts != 0 {
		c.MaxAttempts = overlay.MaxAttempts
	}
	if overlay.InitialBackoff != "" {
		c.InitialBackoff = overlay.InitialBackoff
	}
	if overlay.MaxBackoff != "" {
		c.MaxBackoff = overlay.MaxBackoff
	}
	if overlay.BackoffMultiplier != 0 {
		c.BackoffMultiplier = overlay.BackoffMultiplier
	}
	if overlay.BatchSize != 0 {
		c.BatchSize = overlay.BatchSize
	}
	if overlay.ParseConcurrency != 0 {
		c.ParseConcurrency = overlay.ParseConcurrency
	}
	if overlay.EvalConcurrency != 0 {
		c.EvalConcurrency = overlay.EvalConcurrency
	}
	if overlay.EvidenceThreshold != 0 {
		c.EvidenceThreshold = overlay.EvidenceThreshold
	}
	if overlay.StrictEvaluation {
		c.StrictEvaluation = overlay.StrictEvaluation
	}
	if overlay.TenantProcessingCap != 0 {
		c.TenantProcessingCap = overlay.TenantProcessingCap
	}
	if overlay.TenantInferenceRate != 0 {
		c.TenantInferenceRate = overlay.TenantInferenceRate
	}
	if overlay.SubmissionRate != 0 {
		c.SubmissionRate = overlay.SubmissionRate
	}
}

func (c *Config) loadDefaults() {
	if c.Workers == 0 {
		c.Workers = 4
	}
	if c.ClaimInterval == "" {
		c.ClaimInterval = "2s"
	}
	if c.LeaseDuration == "" {
		c.LeaseDuration = "2m"
	}
	if c.RenewInterval == "" {
		c.RenewInterval = "30s"
	}
	if c.JanitorInterval == "" {
		c.JanitorInterval = "1m"
	}
	if c.TimeoutBudget == "" {
		c.TimeoutBudget = "12m"
	}
	if c.MaxAttempts == 0 {
		c.MaxAttempts = 4
	}
	if c.InitialBackoff == "" {
		c.InitialBackoff = "30s"
	}
	if c.MaxBackoff == "" {
		c.MaxBackoff = "10m"
	}
	if c.BackoffMultiplier == 0 {
		c.BackoffMultiplier = 2.0
	}
	if c.BatchSize == 0 {
		c.BatchSize = 8
	}
	if c.ParseConcurrency == 0 {
		c.ParseConcurrency = 4
	}
	if c.EvalConcurrency == 0 {
		c.EvalConcurrency = 2
	}
	if c.EvidenceThreshold == 0 {
		c.EvidenceThreshold = 0.6
	}
	if c.TenantProcessingCap == 0 {
		c.TenantProcessingCap = 2
	}
	if c.TenantInferenceRate == 0 {
		c.TenantInferenceRate = 60
	}
	if c.SubmissionRate == 0 {
		c.SubmissionRate = 30
	}
}

func (c *Config) loadEnv(env *Env) {
	setString := func(envVar string, target *string) {
		if envVar == "" {
			return
		}
		if v := os.Getenv(envVar); v != "" {
			*target = v
		}
	}
	setInt := func(envVar string, target *int) {
		if envVar == "" {
			return
		}
		if v := os.Getenv(envVar); v != "" {
			if n, err := strconv.Atoi(v); err == nil {
				*target = n
			}
		}
	}
	setFloat := func(envVar string, target *float64) {
		if envVar == "" {
			return
		}
		if v := os.Getenv(envVar); v != "" {
			if f, err := strconv.ParseFloat(v, 64); err == nil {
				*target = f
			}
		}
	}

	setInt(env.Workers, &c.Workers)
	setString(env.ClaimInterval, &c.ClaimInterval)
	setString(env.LeaseDuration, &c.LeaseDuration)
	setString(env.RenewInterval, &c.RenewInterval)
	setString(env.JanitorInterval, &c.JanitorInterval)
	setString(env.TimeoutBudget, &c.TimeoutBudget)
	setInt(env.MaxAttempts, &c.MaxAttempts)
	setString(env.InitialBackoff, &c.InitialBackoff)
	setString(env.MaxBackoff, &c.MaxBackoff)
	setFloat(env.BackoffMultiplier, &c.BackoffMultiplier)
	setInt(env.BatchSize, &c.BatchSize)
	setInt(env.ParseConcurrency, &c.ParseConcurrency)
	setInt(env.EvalConcurrency, &c.EvalConcurrency)
	setFloat(env.EvidenceThreshold, &c.EvidenceThreshold)
	setInt(env.TenantProcessingCap, &c.TenantProcessingCap)
	setInt(env.TenantInferenceRate, &c.TenantInferenceRate)
	setInt(env.SubmissionRate, &c.SubmissionRate)

	if env.StrictEvaluation != "" {
		if v := os.Getenv(env.StrictEvaluation); v != "" {
			c.StrictEvaluation = v == "true" || v == "1"
		}
	}
}

func (c *Config) validate() error {
	for name, value := range map[string]string{
		"claim_interval":   c.ClaimInterval,
		"lease_duration":   c.LeaseDuration,
		"renew_interval":   c.RenewInterval,
		"janitor_interval": c.JanitorInterval,
		"timeout_budget":   c.TimeoutBudget,
		"initial_backoff":  c.InitialBackoff,
		"max_backoff":      c.MaxBackoff,
	} {
		if _, err := time.ParseDuration(value); err != nil {
			return fmt.Errorf("invalid %s: %w", name, err)
		}
	}

	if c.RenewIntervalDuration() >= c.LeaseDurationDuration() {
		return fmt.Errorf("renew_interval must be shorter than lease_duration")
	}
	if c.EvidenceThreshold < 0 || c.EvidenceThreshold > 1 {
		return fmt.Errorf("evidence_threshold must be within [0, 1]")
	}
	if c.ParseConcurrency < 1 {
		return fmt.Errorf("parse_concurrency must be positive")
	}
	if c.EvalConcurrency < 1 {
		return fmt.Errorf("eval_concurrency must be positive")
	}

	return nil
}
