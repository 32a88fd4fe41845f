package config

import (
	"os"
	"strconv"

	"gopkg.in/yaml.v3"
)

// Config is the hashivaultd server configuration.
type Config struct {
	APIToken string `yaml:"-"` // from HASHIVAULTD_API_TOKEN env

	Server struct {
		Host string `yaml:"host"`
		Port int    `yaml:"port"`
	} `yaml:"server"`

	// Vault holds defaults applied beneath every write request's own
	// parameters: typically url, verify, namespace and TLS files.
	Vault Params `yaml:"vault"`

	Index struct {
		DataPath string `yaml:"data_path"`
	} `yaml:"index"`

	Audit struct {
		Enabled       bool   `yaml:"enabled"`
		Path          string `yaml:"path"`
		RetentionDays int    `yaml:"retention_days"`
	} `yaml:"audit"`
}

// Load reads the server configuration: defaults, then the YAML file at path
// (if any), then HASHIVAULTD_* environment overrides.
func Load(path string) (*Config, error) {
	cfg := &Config{}

	// Defaults
	cfg.Server.Host = "0.0.0.0"
	cfg.Server.Port = 8766
	cfg.Index.DataPath = "/data/inventory.db"
	cfg.Audit.Path = "/data/audit.log"
	cfg.Audit.RetentionDays = 30

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, err
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, err
		}
	}

	// Env overrides
	if v := os.Getenv("HASHIVAULTD_API_TOKEN"); v != "" {
		cfg.APIToken = v
	}
	if v := os.Getenv("HASHIVAULTD_PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			cfg.Server.Port = port
		}
	}
	if v := os.Getenv("HASHIVAULTD_INDEX_PATH"); v != "" {
		cfg.Index.DataPath = v
	}
	if v := os.Getenv("HASHIVAULTD_AUDIT_PATH"); v != "" {
		cfg.Audit.Path = v
		cfg.Audit.Enabled = true
	}

	return cfg, nil
}
