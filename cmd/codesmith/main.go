// Command codesmith turns a natural-language task into a Python function,
// generates unit tests for it, runs both, and repairs the code from the
// execution feedback.
package main

import (
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"codesmith/internal/config"
)

var logger = zap.NewNop()

// cliOptions holds flag values for one invocation.
type cliOptions struct {
	verbose        bool
	configPath     string
	envFile        string
	task           string
	model          string
	maxFixAttempts int
	examplesPath   string
	style          string
	showDiff       bool
	historyDB      string
	timeout        time.Duration
	limit          int
}

func newRootCmd() *cobra.Command {
	opts := &cliOptions{}

	rootCmd := &cobra.Command{
		Use:   "codesmith",
		Short: "Generate, test and repair Python code from a task description",
		Long: `codesmith asks a language model for a Python function signature, an
implementation and three unit tests, then runs them. When the code or a test
fails, the error is fed back to the model and the fixed code is run again.`,
		Example:       `  codesmith --task "A Python function to get the nth Fibonacci number"`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			zcfg := zap.NewProductionConfig()
			zcfg.Level = zap.NewAtomicLevelAt(zapcore.WarnLevel)
			if opts.verbose {
				zcfg.Level = zap.NewAtomicLevelAt(zapcore.DebugLevel)
			}
			l, err := zcfg.Build()
			if err != nil {
				return fmt.Errorf("failed to initialize logger: %w", err)
			}
			logger = l
			return nil
		},
		PersistentPostRun: func(cmd *cobra.Command, args []string) {
			_ = logger.Sync()
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			return runGenerate(cmd, opts)
		},
	}

	pf := rootCmd.PersistentFlags()
	pf.BoolVarP(&opts.verbose, "verbose", "v", false, "Enable verbose logging")
	pf.StringVar(&opts.configPath, "config", config.DefaultConfigPath, "Path to the YAML config file")
	pf.StringVar(&opts.envFile, "env-file", config.DefaultEnvFile, "Dotenv file to load before reading the environment")
	pf.StringVar(&opts.historyDB, "history-db", "", "Record runs in this SQLite file (enables history)")
	pf.StringVar(&opts.style, "style", "auto", "Output style: plain, pretty or auto")

	f := rootCmd.Flags()
	f.StringVar(&opts.task, "task", "", "What the generated Python code should do (required)")
	f.StringVar(&opts.model, "model", "", "Override the model name")
	f.IntVar(&opts.maxFixAttempts, "max-fix-attempts", 3, "Fixes to attempt before giving up")
	f.StringVar(&opts.examplesPath, "examples", "", "YAML trainset replacing the built-in examples")
	f.BoolVar(&opts.showDiff, "show-diff", false, "Print a diff of each fix against the code it replaced")
	f.DurationVar(&opts.timeout, "timeout", 10*time.Minute, "Overall time limit (0 disables)")
	_ = rootCmd.MarkFlagRequired("task")

	rootCmd.AddCommand(newHistoryCmd(opts), newConfigCmd(opts))
	return rootCmd
}

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}
