// Package config loads the runtime configuration from YAML with environment
// overrides.
package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

const (
	TransportWebsocket = "websocket"
	TransportNATS      = "nats"
)

// Config is the runtime configuration for the session timer stack.
type Config struct {
	// Transport selects the signaling adapter: "websocket" or "nats".
	Transport string `yaml:"transport"`

	// SignalingURL is the websocket URL or NATS server URL.
	SignalingURL string `yaml:"signaling_url"`

	// NATSSubjectPrefix prefixes event subjects on the NATS transport.
	NATSSubjectPrefix string `yaml:"nats_subject_prefix"`

	Timer TimerConfig `yaml:"timer"`
}

// TimerConfig tunes the coordinator.
type TimerConfig struct {
	DriftToleranceSeconds int `yaml:"drift_tolerance_seconds"`
	SyncTimeoutSeconds    int `yaml:"sync_timeout_seconds"`
	DeriveIntervalMillis  int `yaml:"derive_interval_millis"`
}

// Default returns the configuration used when no file is present.
func Default() Config {
	return Config{
		Transport:         TransportWebsocket,
		SignalingURL:      "ws://localhost:8080/signaling",
		NATSSubjectPrefix: "session",
		Timer: TimerConfig{
			DriftToleranceSeconds: 2,
			SyncTimeoutSeconds:    5,
			DeriveIntervalMillis:  1000,
		},
	}
}

// Load reads the YAML file at path, falling back to defaults for anything
// unset, then applies environment overrides. An empty path loads defaults and
// env only.
func Load(path string) (Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return Config{}, fmt.Errorf("failed to read config file: %w", err)
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return Config{}, fmt.Errorf("failed to parse config: %w", err)
		}
	}

	cfg.Transport = getEnv("SESSION_TRANSPORT", cfg.Transport)
	cfg.SignalingURL = getEnv("SIGNALING_URL", cfg.SignalingURL)
	cfg.NATSSubjectPrefix = getEnv("SESSION_NATS_PREFIX", cfg.NATSSubjectPrefix)
	cfg.Timer.DriftToleranceSeconds = getEnvAsInt("SESSION_DRIFT_TOLERANCE_SEC", cfg.Timer.DriftToleranceSeconds)
	cfg.Timer.SyncTimeoutSeconds = getEnvAsInt("SESSION_SYNC_TIMEOUT_SEC", cfg.Timer.SyncTimeoutSeconds)
	cfg.Timer.DeriveIntervalMillis = getEnvAsInt("SESSION_DERIVE_INTERVAL_MS", cfg.Timer.DeriveIntervalMillis)

	if err := cfg.validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c Config) validate() error {
	switch c.Transport {
	case TransportWebsocket, TransportNATS:
	default:
		return fmt.Errorf("unknown transport %q", c.Transport)
	}
	if c.SignalingURL == "" {
		return fmt.Errorf("signaling_url is required")
	}
	return nil
}

// DriftTolerance returns the configured tolerance as a duration.
func (c TimerConfig) DriftTolerance() time.Duration {
	return time.Duration(c.DriftToleranceSeconds) * time.Second
}

// SyncTimeout returns the configured sync timeout as a duration.
func (c TimerConfig) SyncTimeout() time.Duration {
	return time.Duration(c.SyncTimeoutSeconds) * time.Second
}

// DeriveInterval returns the configured derivation cadence as a duration.
func (c TimerConfig) DeriveInterval() time.Duration {
	return time.Duration(c.DeriveIntervalMillis) * time.Millisecond
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}
