// Package forge is the code generation pipeline. It turns a task description
// into a Python signature, an implementation and three unit tests, runs them,
// and feeds failures back to a fixer until the tests pass or the fix budget
// runs out.
package forge

import (
	"context"
	"errors"
	"fmt"

	"codesmith/internal/logging"
	"codesmith/internal/perception"
	"codesmith/internal/predict"
	"codesmith/internal/store"
	"codesmith/internal/tactile"
	"codesmith/internal/world"

	"golang.org/x/sync/errgroup"
)

// ErrFixAttemptsExhausted is returned when the code still fails after the
// configured number of fixes.
var ErrFixAttemptsExhausted = errors.New("fix attempts exhausted")

// MainCodeStage names a failure of the program itself rather than a test.
const MainCodeStage = "main code"

// TestNames are the generated tests, in execution order.
var TestNames = []string{"test_1", "test_2", "edge_case_test_1"}

var (
	signatureSig = predict.MustParseSignature("task -> code_signature")
	codeSig      = predict.MustParseSignature("task, code_signature -> code")
	testsSig     = predict.MustParseSignature("task, code_signature -> test_1, test_2, edge_case_test_1")
	fixerSig     = predict.MustParseSignature("task, old_code, failed_test, error_message -> fixed_code")
)

// Runner executes Python source. A *tactile.RunError means the program ran
// and failed; any other error aborts the pipeline.
type Runner interface {
	Run(ctx context.Context, source string) (*tactile.ExecutionResult, error)
}

// Inspector parses source before it is run.
type Inspector interface {
	Inspect(ctx context.Context, source string) (*world.Report, error)
}

// Journal records runs. *store.RunStore implements it.
type Journal interface {
	StartRun(ctx context.Context, task, model string) (string, error)
	RecordAttempt(ctx context.Context, runID string, a store.RunAttempt) error
	FinishRun(ctx context.Context, runID string, out store.RunOutcome) error
}

// Options configures a Pipeline. Runner is required.
type Options struct {
	Runner    Runner
	Inspector Inspector
	Reporter  Reporter
	Journal   Journal

	Bootstrap      predict.BootstrapFewShot
	MaxFixAttempts int
	ParseRetries   int

	// Model and Usage are only used for journaling.
	Model string
	Usage func() perception.UsageStats
}

// TestCase is one generated test.
type TestCase struct {
	Name   string
	Source string
}

// Attempt is one failed run and the fix it produced.
type Attempt struct {
	Code      string
	Stage     string // MainCodeStage or a test name
	FailedOn  string // MainCodeStage or the failing test's source
	Error     string
	FixedCode string
}

// Result is everything Generate produced.
type Result struct {
	Task      string
	Signature string
	Code      string // final code, after any fixes
	Tests     []TestCase
	Symbols   []string
	Attempts  []Attempt
	Passed    bool
	RunID     string
}

// Pipeline holds the compiled generators.
type Pipeline struct {
	signature *predict.Predictor
	code      *predict.Predictor
	tests     *predict.Predictor
	fixer     *predict.Predictor

	runner    Runner
	inspector Inspector
	reporter  Reporter
	journal   Journal

	maxFixAttempts int
	model          string
	usage          func() perception.UsageStats
}

// New builds the pipeline and compiles the signature, code and test
// generators against examples. The three compilations run concurrently.
func New(ctx context.Context, client perception.LLMClient, examples []Example, opts Options) (*Pipeline, error) {
	if opts.Runner == nil {
		return nil, fmt.Errorf("forge: runner is required")
	}
	if opts.MaxFixAttempts < 0 {
		return nil, fmt.Errorf("forge: max fix attempts must be >= 0, got %d", opts.MaxFixAttempts)
	}
	if opts.Reporter == nil {
		opts.Reporter = NopReporter{}
	}

	timer := logging.StartTimer(logging.CategoryForge, "pipeline compile")
	defer timer.Stop()

	popts := []predict.Option{predict.WithParseRetries(opts.ParseRetries)}
	p := &Pipeline{
		fixer:          predict.NewChainOfThought("code_fixer", fixerSig, client, popts...),
		runner:         opts.Runner,
		inspector:      opts.Inspector,
		reporter:       opts.Reporter,
		journal:        opts.Journal,
		maxFixAttempts: opts.MaxFixAttempts,
		model:          opts.Model,
		usage:          opts.Usage,
	}

	modules := []struct {
		dst    **predict.Predictor
		name   string
		sig    predict.Signature
		inputs []string
	}{
		{&p.signature, "signature_generator", signatureSig, []string{"task"}},
		{&p.code, "code_generator", codeSig, []string{"task", "code_signature"}},
		{&p.tests, "unit_test_generator", testsSig, []string{"task", "code_signature"}},
	}

	g, gctx := errgroup.WithContext(ctx)
	for _, m := range modules {
		g.Go(func() error {
			student := predict.NewChainOfThought(m.name, m.sig, client, popts...)
			if len(examples) == 0 {
				*m.dst = student
				return nil
			}
			compiled, err := opts.Bootstrap.Compile(gctx, student, toTrainset(examples, m.inputs...))
			if err != nil {
				return fmt.Errorf("failed to compile %s: %w", m.name, err)
			}
			*m.dst = compiled
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		logging.ForgeError("Pipeline compile failed: %v", err)
		return nil, err
	}

	logging.Forge("Pipeline compiled from %d examples", len(examples))
	return p, nil
}
