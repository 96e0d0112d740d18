package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"codesmith/internal/articulation"
	"codesmith/internal/forge"
	"codesmith/internal/logging"
	"codesmith/internal/perception"
	"codesmith/internal/predict"
	"codesmith/internal/store"
	"codesmith/internal/world"
)

// runGenerate executes one task through the pipeline.
func runGenerate(cmd *cobra.Command, opts *cliOptions) error {
	task := strings.TrimSpace(opts.task)
	if task == "" {
		return fmt.Errorf("--task must not be empty")
	}

	style, err := articulation.ParseStyle(opts.style)
	if err != nil {
		return err
	}

	cfg, err := loadConfig(cmd, opts)
	if err != nil {
		return err
	}
	defer logging.CloseAll()

	if err := cfg.Validate(); err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	if opts.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, opts.timeout)
		defer cancel()
	}

	client, err := newLLMClient(cfg)
	if err != nil {
		return err
	}

	examples, err := loadExamples(cfg)
	if err != nil {
		return err
	}

	printer, err := articulation.NewPrinter(cmd.OutOrStdout(), style, articulation.WithFixDiffs(opts.showDiff))
	if err != nil {
		return err
	}

	fopts := forge.Options{
		Runner:    newRunner(cfg),
		Inspector: world.NewPythonInspector(),
		Reporter:  printer,
		Bootstrap: predict.BootstrapFewShot{
			MaxBootstrappedDemos: cfg.Pipeline.MaxBootstrappedDemos,
			MaxLabeledDemos:      cfg.Pipeline.MaxLabeledDemos,
			MaxErrors:            predict.DefaultBootstrapFewShot().MaxErrors,
		},
		MaxFixAttempts: cfg.Pipeline.MaxFixAttempts,
		ParseRetries:   cfg.Pipeline.ParseRetries,
		Model:          cfg.LLM.Model,
	}
	if u, ok := client.(interface{ Usage() perception.UsageStats }); ok {
		fopts.Usage = u.Usage
	}

	if cfg.History.Enabled {
		runs, err := store.NewRunStore(cfg.History.Path)
		if err != nil {
			return fmt.Errorf("failed to open history: %w", err)
		}
		defer runs.Close()
		fopts.Journal = runs
	}

	logger.Info("Compiling pipeline",
		zap.String("model", cfg.LLM.Model),
		zap.Int("examples", len(examples)))
	pipeline, err := forge.New(ctx, client, examples, fopts)
	if err != nil {
		return err
	}

	logger.Info("Generating", zap.String("task", task))
	result, err := pipeline.Generate(ctx, task)
	if fopts.Usage != nil {
		u := fopts.Usage()
		logger.Debug("LLM usage",
			zap.Int("calls", u.Calls),
			zap.Int("prompt_tokens", u.PromptTokens),
			zap.Int("completion_tokens", u.CompletionTokens))
	}
	if err != nil {
		if errors.Is(err, forge.ErrFixAttemptsExhausted) {
			logger.Warn("Tests still failing", zap.Int("fixes", len(result.Attempts)))
		}
		return err
	}

	logger.Info("Done", zap.Int("fixes", len(result.Attempts)), zap.String("run_id", result.RunID))
	return nil
}
