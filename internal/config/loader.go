package config

import (
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

// Load reads and parses a configuration from the given YAML file path.
// After parsing, it fills in defaults for anything the file doesn't set.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parsing config YAML: %w", err)
	}

	applyDefaults(&cfg)
	return &cfg, nil
}

// LoadDefault searches for a config in standard locations and loads the first
// one found. Search order: ./droidscope.yaml, ~/.droidscope/config.yaml.
// When no file exists the built-in defaults are returned; the server runs
// fine without a config file.
func LoadDefault() (*Config, error) {
	candidates := []string{"droidscope.yaml"}

	home, err := os.UserHomeDir()
	if err == nil {
		candidates = append(candidates, filepath.Join(home, ".droidscope", "config.yaml"))
	}

	for _, path := range candidates {
		if _, err := os.Stat(path); err == nil {
			return Load(path)
		}
	}

	return Default(), nil
}

// Default returns the built-in configuration.
func Default() *Config {
	cfg := &Config{}
	applyDefaults(cfg)
	return cfg
}

func applyDefaults(cfg *Config) {
	if cfg.Server.Port == 0 {
		cfg.Server.Port = 8080
	}
	if cfg.DataDir == "" {
		if home, err := os.UserHomeDir(); err == nil {
			cfg.DataDir = filepath.Join(home, ".droidscope")
		}
	}
	if cfg.Database.Path == "" && cfg.DataDir != "" {
		cfg.Database.Path = filepath.Join(cfg.DataDir, "droidscope.db")
	}
	if cfg.Agent.Binary == "" {
		cfg.Agent.Binary = "droidrun"
	}
	if cfg.Agent.MaxSteps == 0 {
		cfg.Agent.MaxSteps = 200
	}
	if cfg.Agent.StressMaxSteps == 0 {
		cfg.Agent.StressMaxSteps = 100
	}
	if cfg.Agent.Timeout == "" {
		cfg.Agent.Timeout = "30m"
	}
	if cfg.LLM.Model == "" {
		cfg.LLM.Model = "gemini-2.0-flash"
	}
	if cfg.LLM.APIKeyEnv == "" {
		cfg.LLM.APIKeyEnv = "GEMINI_API_KEY"
	}
	if cfg.Stream.KeepaliveInterval == "" {
		cfg.Stream.KeepaliveInterval = "30s"
	}
	if cfg.Stream.BufferSize == 0 {
		cfg.Stream.BufferSize = 64
	}
}
