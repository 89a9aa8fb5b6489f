package events

import (
	"fmt"
	"os"
	"strings"
)

const (
	defaultTopic = "arbiter.assessments"

	envEnabled = "ARBITER_EVENTS_ENABLED"
	envBrokers = "ARBITER_EVENTS_BROKERS"
	envTopic   = "ARBITER_EVENTS_TOPIC"
)

// Config holds event publishing settings.
type Config struct {
	Enabled bool     `json:"enabled" toml:"enabled"`
	Brokers []string `json:"brokers" toml:"brokers"`
	Topic   string   `json:"topic" toml:"topic"`
}

// Finalize applies defaults, environment overrides, and validation.
func (c *Config) Finalize() error {
	c.loadDefaults()
	c.loadEnv()
	return c.validate()
}

// Merge overlays non-zero values from overlay onto c.
func (c *Config) Merge(overlay Config) {
	if overlay.Enabled {
		c.Enabled = overlay.Enabled
	}
	if len(overlay.Brokers) > 0 {
		c.Brokers = overlay.Brokers
	}
	if overlay.Topic != "" {
		c.Topic = overlay.Topic
	}
}

func (c *Config) loadDefaults() {
	if c.Topic == "" {
		c.Topic = defaultTopic
	}
}

func (c *Config) loadEnv() {
	if v := os.Getenv(envEnabled); v != "" {
		c.Enabled = v == "true" || v == "1"
	}
	if v := os.Getenv(envBrokers); v != "" {
		brokers := make([]string, 0)
		for _, b := range strings.Split(v, ",") {
			if b = strings.TrimSpace(b); b != "" {
				brokers = append(brokers, b)
			}
		}
		c.Brokers = brokers
	}
	if v := os.Getenv(envTopic); v != "" {
		c.Topic = v
	}
}

func (c *Config) validate() error {
	if c.Enabled && len(c.Brokers) == 0 {
		return fmt.Errorf("events enabled with no brokers configured")
	}
	return nil
}
