package config

import (
	"fmt"
	"os"
	"time"

	"github.com/workforce-ai/meter/pkg/models"
	"gopkg.in/yaml.v3"
)

// Config holds all meter configuration.
type Config struct {
	Listen    string             `yaml:"listen"`
	Env       string             `yaml:"env"`
	LogLevel  string             `yaml:"log_level"`
	Store     StoreConfig        `yaml:"store"`
	Cache     CacheConfig        `yaml:"cache"`
	Audit     models.AuditConfig `yaml:"audit"`
	Evaluator EvaluatorConfig    `yaml:"evaluator"`
	Providers []string           `yaml:"providers"`
}

// StoreConfig selects where usage records and plans are read from.
// Driver is "sqlite" (default) or "postgres".
type StoreConfig struct {
	Driver string `yaml:"driver"`
	DBPath string `yaml:"db_path"`
	DSN    string `yaml:"dsn"`
}

// CacheConfig controls the report cache. Driver is "sqlite" (default) or "redis".
type CacheConfig struct {
	Enabled   bool          `yaml:"enabled"`
	Driver    string        `yaml:"driver"`
	DBPath    string        `yaml:"db_path"`
	RedisAddr string        `yaml:"redis_addr"`
	TTL       time.Duration `yaml:"ttl"`
}

// EvaluatorConfig tunes usage evaluation.
type EvaluatorConfig struct {
	// Strict rejects malformed usage records instead of clamping them to zero.
	Strict bool `yaml:"strict"`
}

// Default returns a Config with sensible defaults.
func Default() *Config {
	return &Config{
		Listen:   ":8080",
		Env:      "dev",
		LogLevel: "info",
		Store: StoreConfig{
			Driver: "sqlite",
			DBPath: "meter.db",
		},
		Cache: CacheConfig{
			Enabled: true,
			Driver:  "sqlite",
			DBPath:  "meter-cache.db",
			TTL:     time.Hour,
		},
		Audit: models.AuditConfig{
			Enabled:       false,
			DBPath:        "meter-audit.db",
			RetentionDays: 90,
		},
	}
}

// Load reads a YAML config file and expands environment variables.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}

	expanded := os.ExpandEnv(string(data))

	cfg := Default()
	if err := yaml.Unmarshal([]byte(expanded), cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks driver names and required fields.
func (c *Config) Validate() error {
	switch c.Store.Driver {
	case "sqlite":
		if c.Store.DBPath == "" {
			return fmt.Errorf("config: store.db_path is required for sqlite")
		}
	case "postgres":
		if c.Store.DSN == "" {
			return fmt.Errorf("config: store.dsn is required for postgres")
		}
	default:
		return fmt.Errorf("config: unknown store driver %q", c.Store.Driver)
	}

	if c.Cache.Enabled {
		switch c.Cache.Driver {
		case "sqlite":
		case "redis":
			if c.Cache.RedisAddr == "" {
				return fmt.Errorf("config: cache.redis_addr is required for redis")
			}
		default:
			return fmt.Errorf("config: unknown cache driver %q", c.Cache.Driver)
		}
		if c.Cache.TTL <= 0 {
			return fmt.Errorf("config: cache.ttl must be positive")
		}
	}
	return nil
}

// ProviderIDs returns the configured canonical providers, normalized, or
// models.CanonicalProviders when none are set.
func (c *Config) ProviderIDs() []models.ProviderID {
	if len(c.Providers) == 0 {
		return models.CanonicalProviders
	}
	ids := make([]models.ProviderID, 0, len(c.Providers))
	for _, p := range c.Providers {
		if id := models.NormalizeProvider(p); id != "" {
			ids = append(ids, id)
		}
	}
	return ids
}
