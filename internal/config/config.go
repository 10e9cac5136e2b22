// Package config loads runtime configuration from environment variables,
// optional .env files and an optional YAML overlay file.
package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Config holds everything the api and migrate binaries need at startup.
type Config struct {
	Addr            string        `yaml:"addr"`
	PostgresDSN     string        `yaml:"postgres_dsn"`
	Version         string        `yaml:"version"`
	Commit          string        `yaml:"commit"`
	RateLimitRPS    float64       `yaml:"rate_limit_rps"`
	RateLimitBurst  int           `yaml:"rate_limit_burst"`
	MaxBodyBytes    int64         `yaml:"max_body_bytes"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
}

// Load reads configuration in precedence order: YAML file (lowest), .env
// file, process environment (highest). The YAML path comes from
// CHECKBOOK_CONFIG_FILE; a missing file is not an error unless the variable
// names it explicitly.
func Load(envPath ...string) (*Config, error) {
	if len(envPath) > 0 && envPath[0] != "" {
		if err := godotenv.Load(envPath[0]); err != nil {
			return nil, fmt.Errorf("failed to load .env file: %w", err)
		}
	} else {
		_ = godotenv.Load()
	}

	cfg := &Config{
		Addr:            ":8080",
		Version:         "dev",
		RateLimitRPS:    50,
		RateLimitBurst:  100,
		MaxBodyBytes:    1 << 20,
		ShutdownTimeout: 10 * time.Second,
	}

	if path := os.Getenv("CHECKBOOK_CONFIG_FILE"); path != "" {
		if err := cfg.mergeYAML(path); err != nil {
			return nil, err
		}
	} else if _, err := os.Stat("checkbook.yaml"); err == nil {
		if err := cfg.mergeYAML("checkbook.yaml"); err != nil {
			return nil, err
		}
	}

	cfg.Addr = getEnvOrDefault("CHECKBOOK_ADDR", cfg.Addr)
	cfg.PostgresDSN = getEnvOrDefault("CHECKBOOK_PG_DSN", cfg.PostgresDSN)
	cfg.Version = getEnvOrDefault("CHECKBOOK_VERSION", cfg.Version)
	cfg.Commit = getEnvOrDefault("CHECKBOOK_COMMIT", cfg.Commit)

	rps, err := parseFloatEnv("CHECKBOOK_RATE_LIMIT_RPS", cfg.RateLimitRPS)
	if err != nil {
		return nil, err
	}
	cfg.RateLimitRPS = rps

	burst, err := parseIntEnv("CHECKBOOK_RATE_LIMIT_BURST", cfg.RateLimitBurst)
	if err != nil {
		return nil, err
	}
	cfg.RateLimitBurst = burst

	maxBody, err := parseInt64Env("CHECKBOOK_MAX_BODY_BYTES", cfg.MaxBodyBytes)
	if err != nil {
		return nil, err
	}
	cfg.MaxBodyBytes = maxBody

	if v := os.Getenv("CHECKBOOK_SHUTDOWN_TIMEOUT"); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			return nil, fmt.Errorf("invalid CHECKBOOK_SHUTDOWN_TIMEOUT: %w", err)
		}
		cfg.ShutdownTimeout = d
	}

	return cfg, nil
}

func (c *Config) mergeYAML(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read config file %s: %w", path, err)
	}
	if err := yaml.Unmarshal(data, c); err != nil {
		return fmt.Errorf("failed to parse config file %s: %w", path, err)
	}
	return nil
}

// Validate checks invariants that would otherwise surface as obscure runtime
// failures.
func (c *Config) Validate() error {
	if c.Addr == "" {
		return fmt.Errorf("listen address must not be empty")
	}
	if c.RateLimitRPS <= 0 {
		return fmt.Errorf("rate limit rps must be positive, got %v", c.RateLimitRPS)
	}
	if c.RateLimitBurst <= 0 {
		return fmt.Errorf("rate limit burst must be positive, got %d", c.RateLimitBurst)
	}
	if c.MaxBodyBytes <= 0 {
		return fmt.Errorf("max body bytes must be positive, got %d", c.MaxBodyBytes)
	}
	return nil
}

func getEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func parseIntEnv(key string, defaultValue int) (int, error) {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue, nil
	}
	parsed, err := strconv.Atoi(value)
	if err != nil {
		return 0, fmt.Errorf("invalid integer value for %s: %s", key, value)
	}
	return parsed, nil
}

func parseInt64Env(key string, defaultValue int64) (int64, error) {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue, nil
	}
	parsed, err := strconv.ParseInt(value, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid integer value for %s: %s", key, value)
	}
	return parsed, nil
}

func parseFloatEnv(key string, defaultValue float64) (float64, error) {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue, nil
	}
	parsed, err := strconv.ParseFloat(value, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid float value for %s: %s", key, value)
	}
	return parsed, nil
}
