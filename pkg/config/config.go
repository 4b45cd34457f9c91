// Package config loads the daemon's app-level configuration from an
// optional YAML file, the same layering cobra flags / config file
// convention the teacher's CLI uses.
package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// Config is the root application configuration.
type Config struct {
	RootDir           string `yaml:"root_dir"`
	LogLevel          string `yaml:"log_level"`
	LogJSON           bool   `yaml:"log_json"`
	CacheDefaultTTL   int    `yaml:"cache_default_ttl_seconds"`
	CurseForgeAPIKey  string `yaml:"-"` // sourced from CURSEFORGE_API_KEY, never persisted
}

// Default returns the configuration applied when no config.yaml is present.
func Default(rootDir string) *Config {
	return &Config{
		RootDir:         rootDir,
		LogLevel:        "info",
		LogJSON:         false,
		CacheDefaultTTL: 3600,
	}
}

// Load reads path if it exists, overlaying values onto Default(rootDir);
// a missing file is not an error.
func Load(path, rootDir string) (*Config, error) {
	cfg := Default(rootDir)

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			cfg.CurseForgeAPIKey = os.Getenv("CURSEFORGE_API_KEY")
			return cfg, nil
		}
		return nil, fmt.Errorf("reading config %s: %w", path, err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parsing config %s: %w", path, err)
	}

	cfg.CurseForgeAPIKey = os.Getenv("CURSEFORGE_API_KEY")
	return cfg, nil
}
