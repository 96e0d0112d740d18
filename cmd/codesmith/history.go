package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"codesmith/internal/articulation"
	"codesmith/internal/logging"
	"codesmith/internal/store"
)

func newHistoryCmd(opts *cliOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "history [run-id]",
		Short: "List recorded runs, or show one run in detail",
		Long: `Lists runs recorded in the history database, newest first. Pass a run ID
(or a unique prefix of one) to show its code, tests and fix attempts.

History is recorded only when --history-db, CODESMITH_HISTORY_DB or
history.enabled in the config file is set.`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runHistory(cmd, opts, args)
		},
	}
	cmd.Flags().IntVar(&opts.limit, "limit", 20, "Maximum number of runs to list")
	return cmd
}

func runHistory(cmd *cobra.Command, opts *cliOptions, args []string) error {
	style, err := articulation.ParseStyle(opts.style)
	if err != nil {
		return err
	}
	cfg, err := loadConfig(cmd, opts)
	if err != nil {
		return err
	}
	defer logging.CloseAll()

	printer, err := articulation.NewPrinter(cmd.OutOrStdout(), style)
	if err != nil {
		return err
	}

	if _, err := os.Stat(cfg.History.Path); os.IsNotExist(err) {
		printer.PrintHistory(nil)
		return nil
	}

	runs, err := store.NewRunStore(cfg.History.Path)
	if err != nil {
		return fmt.Errorf("failed to open history: %w", err)
	}
	defer runs.Close()

	ctx := cmd.Context()
	if len(args) == 1 {
		id, err := runs.Resolve(ctx, args[0])
		if err != nil {
			return err
		}
		run, err := runs.Get(ctx, id)
		if err != nil {
			return err
		}
		printer.PrintRun(run)
		return nil
	}

	recent, err := runs.Recent(ctx, opts.limit)
	if err != nil {
		return err
	}
	printer.PrintHistory(recent)
	return nil
}
