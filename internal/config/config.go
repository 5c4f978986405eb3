// Package config loads the cryptofolio YAML configuration and applies
// environment variable overrides.
package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// ---------------------------------------------------------------------------
// Configuration structs
// ---------------------------------------------------------------------------

// Config is the top-level configuration for the cryptofolio server.
type Config struct {
	Server  Server  `yaml:"server"`
	Storage Storage `yaml:"storage"`
	GateIO  GateIO  `yaml:"gateio"`
	Auth    Auth    `yaml:"auth"`
	Logging Logging `yaml:"logging"`
	Trading Trading `yaml:"trading"`
}

// Server holds network listener configuration.
type Server struct {
	Host string `yaml:"host"`
	Port int    `yaml:"port"`
}

// Storage holds paths for data persistence.
type Storage struct {
	DBPath    string `yaml:"db_path"`
	ExportDir string `yaml:"export_dir"`
}

// GateIO holds credentials and endpoints for the Gate.io spot API.
type GateIO struct {
	APIKey          string `yaml:"api_key"`
	APISecret       string `yaml:"api_secret"`
	BaseURL         string `yaml:"base_url"`
	RateLimitPerMin int    `yaml:"rate_limit_per_min"`
}

// Auth holds the shared-secret access code for the HTTP API.
type Auth struct {
	AccessCode string `yaml:"access_code"`
}

// Logging configures the application logger.
type Logging struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// Trading defines allocation parameters.
type Trading struct {
	// MinOrderValue is the minimum per-asset notional, in quote currency,
	// for a single allocation slice. Slices exactly at the threshold are
	// accepted.
	MinOrderValue float64 `yaml:"min_order_value"`
}

// ---------------------------------------------------------------------------
// Loading
// ---------------------------------------------------------------------------

// Load reads the YAML configuration file at the given path, parses it into a
// Config struct, applies environment variable overrides, and fills defaults.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config: %w", err)
	}

	cfg := &Config{}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parsing config: %w", err)
	}

	applyEnvOverrides(cfg)
	applyDefaults(cfg)

	return cfg, nil
}

// applyEnvOverrides checks well-known environment variables and overrides the
// corresponding configuration fields when they are set. The names match the
// original deployment's variables.
func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("ACCESS_CODE"); v != "" {
		cfg.Auth.AccessCode = v
	}

	if v := os.Getenv("DATA"); v != "" {
		cfg.Storage.DBPath = v
	}

	if v := os.Getenv("GATE_IO_KEY"); v != "" {
		cfg.GateIO.APIKey = v
	}
	if v := os.Getenv("GATE_IO_SECRET"); v != "" {
		cfg.GateIO.APISecret = v
	}
	if v := os.Getenv("GATE_IO_URL"); v != "" {
		cfg.GateIO.BaseURL = v
	}

	if v := os.Getenv("PORT"); v != "" {
		var port int
		if _, err := fmt.Sscanf(v, "%d", &port); err == nil {
			cfg.Server.Port = port
		}
	}

	if v := os.Getenv("LOG_LEVEL"); v != "" {
		cfg.Logging.Level = v
	}
}

// applyDefaults fills zero-valued fields with working defaults.
func applyDefaults(cfg *Config) {
	if cfg.Server.Host == "" {
		cfg.Server.Host = "0.0.0.0"
	}
	if cfg.Server.Port == 0 {
		cfg.Server.Port = 5000
	}
	if cfg.Storage.DBPath == "" {
		cfg.Storage.DBPath = "cryptofolio.db"
	}
	if cfg.Storage.ExportDir == "" {
		cfg.Storage.ExportDir = "export"
	}
	if cfg.GateIO.BaseURL == "" {
		cfg.GateIO.BaseURL = "https://api.gateio.ws"
	}
	if cfg.GateIO.RateLimitPerMin == 0 {
		cfg.GateIO.RateLimitPerMin = 120
	}
	if cfg.Logging.Level == "" {
		cfg.Logging.Level = "info"
	}
	if cfg.Logging.Format == "" {
		cfg.Logging.Format = "json"
	}
	if cfg.Trading.MinOrderValue == 0 {
		cfg.Trading.MinOrderValue = 2
	}
}
