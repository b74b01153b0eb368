package config

import (
	"fmt"
	"time"
)

// ValidationError represents a single validation issue with a config.
type ValidationError struct {
	Field   string
	Message string
}

func (e ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// Validate checks a Config for structural and semantic errors.
// It returns a slice of all validation errors found (empty if valid).
func Validate(cfg *Config) []ValidationError {
	var errs []ValidationError

	if cfg.Server.Port < 1 || cfg.Server.Port > 65535 {
		errs = append(errs, ValidationError{Field: "server.port", Message: "must be between 1 and 65535"})
	}
	if cfg.DataDir == "" {
		errs = append(errs, ValidationError{Field: "data_dir", Message: "is required"})
	}
	if cfg.Database.Path == "" {
		errs = append(errs, ValidationError{Field: "database.path", Message: "is required"})
	}

	if cfg.Agent.Binary == "" {
		errs = append(errs, ValidationError{Field: "agent.binary", Message: "is required"})
	}
	if cfg.Agent.MaxSteps < 1 {
		errs = append(errs, ValidationError{Field: "agent.max_steps", Message: "must be positive"})
	}
	if cfg.Agent.StressMaxSteps < 1 {
		errs = append(errs, ValidationError{Field: "agent.stress_max_steps", Message: "must be positive"})
	}
	if d, err := time.ParseDuration(cfg.Agent.Timeout); err != nil {
		errs = append(errs, ValidationError{Field: "agent.timeout", Message: fmt.Sprintf("invalid duration %q", cfg.Agent.Timeout)})
	} else if d <= 0 {
		errs = append(errs, ValidationError{Field: "agent.timeout", Message: "must be positive"})
	}

	if cfg.LLM.Model == "" {
		errs = append(errs, ValidationError{Field: "llm.model", Message: "is required"})
	}
	if cfg.LLM.APIKeyEnv == "" {
		errs = append(errs, ValidationError{Field: "llm.api_key_env", Message: "is required"})
	}

	if d, err := time.ParseDuration(cfg.Stream.KeepaliveInterval); err != nil {
		errs = append(errs, ValidationError{Field: "stream.keepalive_interval", Message: fmt.Sprintf("invalid duration %q", cfg.Stream.KeepaliveInterval)})
	} else if d <= 0 {
		errs = append(errs, ValidationError{Field: "stream.keepalive_interval", Message: "must be positive"})
	}
	if cfg.Stream.BufferSize < 1 {
		errs = append(errs, ValidationError{Field: "stream.buffer_size", Message: "must be positive"})
	}

	return errs
}
