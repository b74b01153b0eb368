package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "droidscope.yaml")
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

func TestLoadFullConfig(t *testing.T) {
	path := writeConfig(t, `
server:
  port: 9090
data_dir: /tmp/scope
database:
  path: /tmp/scope/custom.db
agent:
  binary: /usr/local/bin/droidrun
  max_steps: 120
  stress_max_steps: 40
  timeout: 15m
llm:
  model: gemini-2.5-pro
  api_key_env: MY_KEY
stream:
  keepalive_interval: 10s
  buffer_size: 16
templates:
  dir: /tmp/templates
`)
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.Server.Port != 9090 {
		t.Errorf("Port = %d, want 9090", cfg.Server.Port)
	}
	if cfg.Database.Path != "/tmp/scope/custom.db" {
		t.Errorf("Database.Path = %q", cfg.Database.Path)
	}
	if cfg.Agent.Binary != "/usr/local/bin/droidrun" || cfg.Agent.MaxSteps != 120 || cfg.Agent.StressMaxSteps != 40 {
		t.Errorf("Agent = %+v", cfg.Agent)
	}
	if got := cfg.Agent.TimeoutDuration(); got != 15*time.Minute {
		t.Errorf("TimeoutDuration = %v, want 15m", got)
	}
	if cfg.LLM.Model != "gemini-2.5-pro" || cfg.LLM.APIKeyEnv != "MY_KEY" {
		t.Errorf("LLM = %+v", cfg.LLM)
	}
	if got := cfg.Stream.KeepaliveDuration(); got != 10*time.Second {
		t.Errorf("KeepaliveDuration = %v, want 10s", got)
	}
	if cfg.Templates.Dir != "/tmp/templates" {
		t.Errorf("Templates.Dir = %q", cfg.Templates.Dir)
	}
	if errs := Validate(cfg); len(errs) != 0 {
		t.Errorf("Validate() = %v, want no errors", errs)
	}
}

func TestLoadAppliesDefaults(t *testing.T) {
	path := writeConfig(t, `
server:
  port: 3000
`)
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.Agent.Binary != "droidrun" {
		t.Errorf("Agent.Binary = %q, want droidrun", cfg.Agent.Binary)
	}
	if cfg.Agent.MaxSteps != 200 || cfg.Agent.StressMaxSteps != 100 {
		t.Errorf("step budgets = %d/%d, want 200/100", cfg.Agent.MaxSteps, cfg.Agent.StressMaxSteps)
	}
	if cfg.LLM.Model != "gemini-2.0-flash" || cfg.LLM.APIKeyEnv != "GEMINI_API_KEY" {
		t.Errorf("LLM defaults = %+v", cfg.LLM)
	}
	if cfg.Stream.BufferSize != 64 {
		t.Errorf("BufferSize = %d, want 64", cfg.Stream.BufferSize)
	}
	if cfg.DataDir == "" || cfg.Database.Path == "" {
		t.Errorf("data paths not defaulted: %q %q", cfg.DataDir, cfg.Database.Path)
	}
	if filepath.Dir(cfg.Database.Path) != cfg.DataDir {
		t.Errorf("Database.Path = %q, want inside %q", cfg.Database.Path, cfg.DataDir)
	}
}

func TestLoadMissingFile(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "nope.yaml")); err == nil {
		t.Error("Load() on missing file should error")
	}
}

func TestLoadInvalidYAML(t *testing.T) {
	path := writeConfig(t, "server: [not a mapping")
	if _, err := Load(path); err == nil {
		t.Error("Load() on invalid YAML should error")
	}
}

func TestDefaultIsValid(t *testing.T) {
	cfg := Default()
	if errs := Validate(cfg); len(errs) != 0 {
		t.Errorf("Validate(Default()) = %v, want no errors", errs)
	}
}

func TestValidateCatchesBadValues(t *testing.T) {
	cases := []struct {
		name   string
		mutate func(*Config)
		field  string
	}{
		{"port zero", func(c *Config) { c.Server.Port = -1 }, "server.port"},
		{"port too high", func(c *Config) { c.Server.Port = 70000 }, "server.port"},
		{"empty binary", func(c *Config) { c.Agent.Binary = "" }, "agent.binary"},
		{"negative steps", func(c *Config) { c.Agent.MaxSteps = -5 }, "agent.max_steps"},
		{"negative stress steps", func(c *Config) { c.Agent.StressMaxSteps = -1 }, "agent.stress_max_steps"},
		{"bad timeout", func(c *Config) { c.Agent.Timeout = "soon" }, "agent.timeout"},
		{"zero timeout", func(c *Config) { c.Agent.Timeout = "0s" }, "agent.timeout"},
		{"empty model", func(c *Config) { c.LLM.Model = "" }, "llm.model"},
		{"empty key env", func(c *Config) { c.LLM.APIKeyEnv = "" }, "llm.api_key_env"},
		{"bad keepalive", func(c *Config) { c.Stream.KeepaliveInterval = "whenever" }, "stream.keepalive_interval"},
		{"negative buffer", func(c *Config) { c.Stream.BufferSize = -2 }, "stream.buffer_size"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			cfg := Default()
			tc.mutate(cfg)
			errs := Validate(cfg)
			found := false
			for _, e := range errs {
				if e.Field == tc.field {
					found = true
				}
			}
			if !found {
				t.Errorf("Validate() = %v, want error on %s", errs, tc.field)
			}
		})
	}
}

func TestDurationFallbacks(t *testing.T) {
	a := Agent{Timeout: "garbage"}
	if got := a.TimeoutDuration(); got != 30*time.Minute {
		t.Errorf("TimeoutDuration fallback = %v, want 30m", got)
	}
	s := Stream{KeepaliveInterval: "garbage"}
	if got := s.KeepaliveDuration(); got != 30*time.Second {
		t.Errorf("KeepaliveDuration fallback = %v, want 30s", got)
	}
}
