package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// ErrMissingAPIKey is returned by Validate when no OpenAI key was found in
// the config file, the environment, or the .env file.
var ErrMissingAPIKey = errors.New("LLM API key not configured (set OPENAI_API_KEY in the environment or in .env)")

// DefaultConfigPath is read when --config is not given.
const DefaultConfigPath = "codesmith.yaml"

// DefaultEnvFile is loaded when --env-file is not given.
const DefaultEnvFile = ".env"

// Config holds all codesmith configuration.
type Config struct {
	// LLM configuration
	LLM LLMConfig `yaml:"llm"`

	// Generation pipeline
	Pipeline PipelineConfig `yaml:"pipeline"`

	// Execution settings for generated code
	Execution ExecutionConfig `yaml:"execution"`

	// Logging
	Logging LoggingConfig `yaml:"logging"`

	// Run journal
	History HistoryConfig `yaml:"history"`
}

// DefaultConfig returns the default configuration.
func DefaultConfig() *Config {
	return &Config{
		LLM: LLMConfig{
			Provider:    "openai",
			Model:       "gpt-4o",
			BaseURL:     "https://api.openai.com/v1",
			Timeout:     "120s",
			MaxTokens:   1000,
			Temperature: 0.0,
			MaxRetries:  3,
		},

		Pipeline: PipelineConfig{
			MaxBootstrappedDemos: 4,
			MaxLabeledDemos:      16,
			MaxFixAttempts:       3,
			ParseRetries:         1,
		},

		Execution: ExecutionConfig{
			Python:         "python3",
			Timeout:        "30s",
			MaxOutputBytes: 1 << 20,
			AllowedEnvVars: []string{"PATH", "HOME", "LANG", "LC_ALL", "PYTHONPATH", "SYSTEMROOT", "TMPDIR", "TEMP"},
		},

		Logging: LoggingConfig{
			Level: "info",
			Dir:   ".codesmith/logs",
		},

		History: HistoryConfig{
			Enabled: false,
			Path:    ".codesmith/history.db",
		},
	}
}

// Load loads configuration from a YAML file.
// A missing file yields the defaults; environment overrides are applied either way.
func Load(path string) (*Config, error) {
	cfg := DefaultConfig()

	data, err := os.ReadFile(path)
	if err != nil {
		if !os.IsNotExist(err) {
			return nil, fmt.Errorf("failed to read config: %w", err)
		}
	} else if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	cfg.applyEnvOverrides()

	return cfg, nil
}

// LoadEnvFile loads KEY=VALUE pairs from a dotenv file into the process
// environment. Variables that are already set are not overwritten, and a
// missing file is not an error.
func LoadEnvFile(path string) error {
	if path == "" {
		return nil
	}
	if _, err := os.Stat(path); err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("failed to stat env file: %w", err)
	}
	if err := godotenv.Load(path); err != nil {
		return fmt.Errorf("failed to load env file %s: %w", path, err)
	}
	return nil
}

// Save saves configuration to a YAML file.
func (c *Config) Save(path string) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("failed to write config: %w", err)
	}

	return nil
}

// applyEnvOverrides applies environment variable overrides.
func (c *Config) applyEnvOverrides() {
	if key := os.Getenv("OPENAI_API_KEY"); key != "" {
		c.LLM.APIKey = key
		c.LLM.Provider = "openai"
	}
	if url := os.Getenv("OPENAI_BASE_URL"); url != "" {
		c.LLM.BaseURL = url
	}
	if model := os.Getenv("CODESMITH_MODEL"); model != "" {
		c.LLM.Model = model
	}
	if n := os.Getenv("CODESMITH_MAX_TOKENS"); n != "" {
		if v, err := strconv.Atoi(n); err == nil && v > 0 {
			c.LLM.MaxTokens = v
		}
	}
	if python := os.Getenv("CODESMITH_PYTHON"); python != "" {
		c.Execution.Python = python
	}
	if path := os.Getenv("CODESMITH_HISTORY_DB"); path != "" {
		c.History.Path = path
		c.History.Enabled = true
	}
}

// ValidProviders lists all supported LLM providers.
var ValidProviders = []string{"openai"}

// Validate validates the configuration.
func (c *Config) Validate() error {
	if c.LLM.APIKey == "" {
		return ErrMissingAPIKey
	}

	validProvider := false
	for _, p := range ValidProviders {
		if c.LLM.Provider == p {
			validProvider = true
			break
		}
	}
	if !validProvider {
		return fmt.Errorf("invalid LLM provider: %s (valid: %v)", c.LLM.Provider, ValidProviders)
	}

	if c.LLM.MaxTokens <= 0 {
		return fmt.Errorf("llm.max_tokens must be positive, got %d", c.LLM.MaxTokens)
	}
	if c.Pipeline.MaxFixAttempts < 0 {
		return fmt.Errorf("pipeline.max_fix_attempts must not be negative, got %d", c.Pipeline.MaxFixAttempts)
	}
	if c.Pipeline.MaxBootstrappedDemos < 0 || c.Pipeline.MaxLabeledDemos < 0 {
		return fmt.Errorf("pipeline demo limits must not be negative")
	}
	if c.Execution.Python == "" {
		return fmt.Errorf("execution.python must name an interpreter")
	}

	return nil
}
