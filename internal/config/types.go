package config

import "time"

// Config is the top-level configuration structure parsed from droidscope YAML.
type Config struct {
	Server    Server    `yaml:"server"`
	DataDir   string    `yaml:"data_dir"`
	Database  Database  `yaml:"database"`
	Agent     Agent     `yaml:"agent"`
	LLM       LLM       `yaml:"llm"`
	Stream    Stream    `yaml:"stream"`
	Templates Templates `yaml:"templates"`
}

// Server holds HTTP server settings.
type Server struct {
	Port int `yaml:"port"`
}

// Database holds SQLite settings. An empty path means the default location
// under the data directory.
type Database struct {
	Path string `yaml:"path"`
}

// Agent configures the device automation CLI.
type Agent struct {
	Binary         string `yaml:"binary"`
	MaxSteps       int    `yaml:"max_steps"`
	StressMaxSteps int    `yaml:"stress_max_steps"`
	Timeout        string `yaml:"timeout"`
}

// TimeoutDuration parses the agent turn timeout. Call after Validate.
func (a Agent) TimeoutDuration() time.Duration {
	d, err := time.ParseDuration(a.Timeout)
	if err != nil {
		return 30 * time.Minute
	}
	return d
}

// LLM configures the final-analysis model call.
type LLM struct {
	Model     string `yaml:"model"`
	APIKeyEnv string `yaml:"api_key_env"`
}

// Stream configures the SSE event bus.
type Stream struct {
	KeepaliveInterval string `yaml:"keepalive_interval"`
	BufferSize        int    `yaml:"buffer_size"`
}

// KeepaliveDuration parses the keepalive interval. Call after Validate.
func (s Stream) KeepaliveDuration() time.Duration {
	d, err := time.ParseDuration(s.KeepaliveInterval)
	if err != nil {
		return 30 * time.Second
	}
	return d
}

// Templates holds prompt template settings.
type Templates struct {
	Dir string `yaml:"dir"`
}
