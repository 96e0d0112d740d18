package config

import "time"

// ExecutionConfig configures how generated code is run.
type ExecutionConfig struct {
	// Python interpreter used for generated code and tests
	Python string `yaml:"python"`

	// Per-run wall clock limit
	Timeout string `yaml:"timeout"`

	// Captured stdout/stderr cap, per stream
	MaxOutputBytes int64 `yaml:"max_output_bytes"`

	// Environment variables passed through to the interpreter
	AllowedEnvVars []string `yaml:"allowed_env_vars"`

	// Scratch directory for generated sources (default: os.TempDir)
	WorkingDirectory string `yaml:"working_directory"`
}

// GetExecutionTimeout returns the execution timeout as a duration.
func (c *Config) GetExecutionTimeout() time.Duration {
	d, err := time.ParseDuration(c.Execution.Timeout)
	if err != nil {
		return 30 * time.Second
	}
	return d
}
