package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"

	dErrors "pulse/pkg/domain-errors"
)

// Config captures relay and pipeline configuration. Values resolve in
// priority order: environment variable → YAML file → built-in default.
type Config struct {
	Addr           string        `yaml:"addr"`
	Endpoint       string        `yaml:"endpoint"`
	QueueCapacity  int           `yaml:"queue_capacity"`
	FlushInterval  time.Duration `yaml:"flush_interval"`
	RetryAttempts  int           `yaml:"retry_attempts"`
	RetryBackoff   time.Duration `yaml:"retry_backoff"`
	MaxBeaconBytes int           `yaml:"max_beacon_bytes"`
	Compress       bool          `yaml:"compress"`
	CacheBust      bool          `yaml:"cache_bust"`
	ConsentVersion string        `yaml:"consent_version"`
	ConsentFile    string        `yaml:"consent_file"`
}

// Defaults mirror what a small site deployment wants out of the box. The
// 64 KiB beacon limit matches the payload budget user agents enforce.
func defaults() Config {
	return Config{
		Addr:           ":8080",
		QueueCapacity:  256,
		FlushInterval:  10 * time.Second,
		RetryAttempts:  3,
		RetryBackoff:   500 * time.Millisecond,
		MaxBeaconBytes: 64 * 1024,
	}
}

// Load builds the configuration: defaults, overlaid by the YAML file at
// path (skipped when path is empty), overlaid by environment variables.
// A missing endpoint is a fatal configuration error.
func Load(path string) (Config, error) {
	cfg := defaults()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return Config{}, dErrors.Wrap(err, dErrors.CodeInvalidConfiguration, fmt.Sprintf("read config file %s", path))
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return Config{}, dErrors.Wrap(err, dErrors.CodeInvalidConfiguration, fmt.Sprintf("parse config file %s", path))
		}
	}

	applyEnv(&cfg)

	if cfg.Endpoint == "" {
		return Config{}, dErrors.New(dErrors.CodeInvalidConfiguration, "delivery endpoint required (PULSE_ENDPOINT or endpoint in config file)")
	}
	if cfg.QueueCapacity < 1 {
		return Config{}, dErrors.New(dErrors.CodeInvalidConfiguration, fmt.Sprintf("queue capacity must be >= 1, got %d", cfg.QueueCapacity))
	}
	return cfg, nil
}

// FromEnv builds the configuration from environment variables alone, using
// PULSE_CONFIG as the optional YAML file location.
func FromEnv() (Config, error) {
	return Load(os.Getenv("PULSE_CONFIG"))
}

func applyEnv(cfg *Config) {
	setString(&cfg.Addr, "PULSE_ADDR")
	setString(&cfg.Endpoint, "PULSE_ENDPOINT")
	setString(&cfg.ConsentVersion, "PULSE_CONSENT_VERSION")
	setString(&cfg.ConsentFile, "PULSE_CONSENT_FILE")
	setInt(&cfg.QueueCapacity, "PULSE_QUEUE_CAPACITY")
	setInt(&cfg.RetryAttempts, "PULSE_RETRY_ATTEMPTS")
	setInt(&cfg.MaxBeaconBytes, "PULSE_MAX_BEACON_BYTES")
	setDuration(&cfg.FlushInterval, "PULSE_FLUSH_INTERVAL")
	setDuration(&cfg.RetryBackoff, "PULSE_RETRY_BACKOFF")
	setBool(&cfg.Compress, "PULSE_COMPRESS")
	setBool(&cfg.CacheBust, "PULSE_CACHE_BUST")
}

func setString(dst *string, key string) {
	if v := os.Getenv(key); v != "" {
		*dst = v
	}
}

func setInt(dst *int, key string) {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			*dst = n
		}
	}
}

func setDuration(dst *time.Duration, key string) {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			*dst = d
		}
	}
}

func setBool(dst *bool, key string) {
	if v := os.Getenv(key); v != "" {
		*dst = v == "true" || v == "1"
	}
}
