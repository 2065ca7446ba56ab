package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// ScheduleConfig declares one recurring transfer in the server config file.
type ScheduleConfig struct {
	Name      string      `yaml:"name"`
	CronExpr  string      `yaml:"cron"`
	SourceURL string      `yaml:"source_url"`
	DestURL   string      `yaml:"dest_url"`
	Source    Credentials `yaml:"source_credentials"`
	Dest      Credentials `yaml:"dest_credentials"`
	Workers   int         `yaml:"workers"`
	Enabled   bool        `yaml:"enabled"`
}

// ServerConfig is the optional YAML file consumed by serve mode.
type ServerConfig struct {
	Listen    string           `yaml:"listen"`
	Workers   int              `yaml:"workers"`
	ChunkSize int64            `yaml:"chunk_size"`
	Schedules []ScheduleConfig `yaml:"schedules"`
}

// DefaultServerConfig returns serve-mode defaults, applied under any file
// values.
func DefaultServerConfig() ServerConfig {
	return ServerConfig{
		Listen:    ":8000",
		Workers:   4,
		ChunkSize: 8 * 1024 * 1024,
	}
}

// LoadServerConfig reads a YAML server config, filling unset fields with
// defaults.
func LoadServerConfig(path string) (ServerConfig, error) {
	cfg := DefaultServerConfig()

	data, err := os.ReadFile(path)
	if err != nil {
		return cfg, fmt.Errorf("read config %s: %w", path, err)
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, fmt.Errorf("parse config %s: %w", path, err)
	}

	if cfg.Listen == "" {
		cfg.Listen = ":8000"
	}
	if cfg.Workers <= 0 {
		cfg.Workers = 4
	}
	if cfg.ChunkSize <= 0 {
		cfg.ChunkSize = 8 * 1024 * 1024
	}
	return cfg, nil
}
