package main

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"codesmith/internal/config"
	"codesmith/internal/forge"
	"codesmith/internal/logging"
	"codesmith/internal/perception"
	"codesmith/internal/tactile"
)

// Constructors for the external collaborators; tests replace them.
var (
	newLLMClient = func(cfg *config.Config) (perception.LLMClient, error) {
		return perception.NewClient(perception.Provider(cfg.LLM.Provider), perception.OpenAIConfig{
			APIKey:           cfg.LLM.APIKey,
			BaseURL:          cfg.LLM.BaseURL,
			Model:            cfg.LLM.Model,
			Timeout:          cfg.GetLLMTimeout(),
			MaxTokens:        cfg.LLM.MaxTokens,
			Temperature:      cfg.LLM.Temperature,
			MaxRetries:       cfg.LLM.MaxRetries,
			RetryBackoffBase: time.Second,
			RateLimitDelay:   100 * time.Millisecond,
		})
	}

	newRunner = func(cfg *config.Config) forge.Runner {
		execCfg := tactile.DefaultExecutorConfig()
		execCfg.DefaultTimeout = cfg.GetExecutionTimeout()
		if cfg.Execution.MaxOutputBytes > 0 {
			execCfg.MaxOutputBytes = cfg.Execution.MaxOutputBytes
		}
		if len(cfg.Execution.AllowedEnvVars) > 0 {
			execCfg.AllowedEnvironment = cfg.Execution.AllowedEnvVars
		}
		return tactile.NewPythonRunner(
			tactile.NewDirectExecutorWithConfig(execCfg),
			cfg.Execution.Python,
			tactile.WithTimeout(cfg.GetExecutionTimeout()),
			tactile.WithTempDir(cfg.Execution.WorkingDirectory),
		)
	}
)

// loadConfig reads the env file, then the YAML config with environment
// overrides, then applies flags that were set explicitly.
func loadConfig(cmd *cobra.Command, opts *cliOptions) (*config.Config, error) {
	if err := config.LoadEnvFile(opts.envFile); err != nil {
		return nil, err
	}
	cfg, err := config.Load(opts.configPath)
	if err != nil {
		return nil, err
	}

	if opts.historyDB != "" {
		cfg.History.Enabled = true
		cfg.History.Path = opts.historyDB
	}
	flags := cmd.Flags()
	if flags.Lookup("model") != nil && opts.model != "" {
		cfg.LLM.Model = opts.model
	}
	if flags.Lookup("max-fix-attempts") != nil && flags.Changed("max-fix-attempts") {
		cfg.Pipeline.MaxFixAttempts = opts.maxFixAttempts
	}
	if flags.Lookup("examples") != nil && opts.examplesPath != "" {
		cfg.Pipeline.ExamplesPath = opts.examplesPath
	}

	if err := logging.Initialize(cfg.Logging.Options()); err != nil {
		return nil, fmt.Errorf("failed to initialize logging: %w", err)
	}
	logging.Boot("Config loaded from %s (model=%s, python=%s)", opts.configPath, cfg.LLM.Model, cfg.Execution.Python)
	return cfg, nil
}

func loadExamples(cfg *config.Config) ([]forge.Example, error) {
	if cfg.Pipeline.ExamplesPath == "" {
		return forge.DefaultExamples(), nil
	}
	return forge.LoadExamples(cfg.Pipeline.ExamplesPath)
}
