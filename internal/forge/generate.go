package forge

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strings"

	"codesmith/internal/logging"
	"codesmith/internal/predict"
	"codesmith/internal/store"
	"codesmith/internal/tactile"

	"golang.org/x/sync/errgroup"
)

const (
	signaturePrompt = "Write the signature for a Python function doing the following (if the function uses classes, also include the class definition and their methods): %s"
	codePrompt      = "Write %s with the provided code signature"
	testsPrompt     = "Generate unit tests for the following task with the provided code signature: %s"
)

var definedNamePattern = regexp.MustCompile(`(?m)^\s*(?:async\s+)?(?:def|class)\s+([A-Za-z_]\w*)`)

// Generate runs the whole pipeline for task. On ErrFixAttemptsExhausted the
// returned Result is still populated.
func (p *Pipeline) Generate(ctx context.Context, task string) (result *Result, err error) {
	timer := logging.StartTimer(logging.CategoryForge, "generate")
	defer timer.Stop()

	result = &Result{Task: task}
	p.startJournal(ctx, result)
	defer func() { p.finishJournal(ctx, result, err) }()

	sigPred, err := p.signature.Forward(ctx, map[string]string{
		"task": fmt.Sprintf(signaturePrompt, task),
	})
	if err != nil {
		return result, fmt.Errorf("failed to generate signature: %w", err)
	}
	result.Signature = sigPred.Get("code_signature")
	logging.ForgeDebug("Signature: %s", result.Signature)

	var codePred, testsPred predict.Prediction
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		codePred, err = p.code.Forward(gctx, map[string]string{
			"task":           fmt.Sprintf(codePrompt, task),
			"code_signature": result.Signature,
		})
		if err != nil {
			return fmt.Errorf("failed to generate code: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		var err error
		testsPred, err = p.tests.Forward(gctx, map[string]string{
			"task":           fmt.Sprintf(testsPrompt, task),
			"code_signature": result.Signature,
		})
		if err != nil {
			return fmt.Errorf("failed to generate tests: %w", err)
		}
		return nil
	})
	if err := g.Wait(); err != nil {
		return result, err
	}

	result.Code = stripFences(codePred.Get("code"))
	for _, name := range TestNames {
		result.Tests = append(result.Tests, TestCase{Name: name, Source: stripFences(testsPred.Get(name))})
	}

	p.reporter.Signature(result.Signature)
	p.reporter.Code(result.Code)
	p.reporter.Tests(result.Tests)

	return result, p.runAndFix(ctx, task, result)
}

// runAndFix executes the code and tests, asking the fixer for new code after
// each failure until everything passes or the budget is spent.
func (p *Pipeline) runAndFix(ctx context.Context, task string, result *Result) error {
	for {
		stage, failedOn, message, err := p.check(ctx, result)
		if err != nil {
			return err
		}
		if stage == "" {
			result.Passed = true
			p.reporter.Passed()
			logging.Forge("All tests passed after %d fixes", len(result.Attempts))
			return nil
		}

		if len(result.Attempts) >= p.maxFixAttempts {
			logging.ForgeWarn("Giving up after %d fixes; last failure in %s: %s", len(result.Attempts), stage, message)
			return fmt.Errorf("%w: %d fixes, last failure in %s: %s", ErrFixAttemptsExhausted, len(result.Attempts), stage, message)
		}

		p.reporter.Regenerating()
		fixPred, err := p.fixer.Forward(ctx, map[string]string{
			"task":          task,
			"old_code":      result.Code,
			"failed_test":   failedOn,
			"error_message": message,
		})
		if err != nil {
			return fmt.Errorf("failed to fix code: %w", err)
		}
		fixed := stripFences(fixPred.Get("fixed_code"))

		attempt := Attempt{
			Code:      result.Code,
			Stage:     stage,
			FailedOn:  failedOn,
			Error:     message,
			FixedCode: fixed,
		}
		result.Attempts = append(result.Attempts, attempt)
		p.recordAttempt(ctx, result.RunID, attempt)

		p.reporter.Fixed(fixed)
		result.Code = fixed
	}
}

// check runs the code, then each test with the code prepended. It returns
// the failing stage ("" when everything passed), the source the fixer should
// see as the failed test, and the error message.
func (p *Pipeline) check(ctx context.Context, result *Result) (stage, failedOn, message string, err error) {
	p.reporter.RunningCode()
	p.inspect(ctx, result)

	out, err := p.runner.Run(ctx, result.Code)
	if msg, failed, err := classify(err); err != nil {
		return "", "", "", err
	} else if failed {
		p.reporter.CodeFailed(msg)
		return MainCodeStage, MainCodeStage, msg, nil
	}
	p.reportOutput(MainCodeStage, out)
	var codeOut string
	if out != nil {
		codeOut = out.Stdout
	}

	p.reporter.RunningTests()
	for _, tc := range result.Tests {
		out, err := p.runner.Run(ctx, result.Code+"\n\n"+tc.Source+"\n")
		msg, failed, err := classify(err)
		if err != nil {
			return "", "", "", err
		}
		if failed {
			p.reporter.TestFailed(tc.Name, msg)
			return tc.Name, tc.Source, msg, nil
		}
		// The code's own output was already echoed above.
		if out != nil {
			if added := strings.TrimPrefix(out.Stdout, codeOut); added != "" {
				p.reporter.Output(tc.Name, added)
			}
		}
	}
	return "", "", "", nil
}

// classify separates program failures from infrastructure errors.
func classify(err error) (message string, failed bool, fatal error) {
	if err == nil {
		return "", false, nil
	}
	var runErr *tactile.RunError
	if errors.As(err, &runErr) {
		return runErr.Message, true, nil
	}
	return "", false, fmt.Errorf("failed to run code: %w", err)
}

func (p *Pipeline) reportOutput(stage string, out *tactile.ExecutionResult) {
	if out != nil && out.Stdout != "" {
		p.reporter.Output(stage, out.Stdout)
	}
}

// inspect parses the code before it runs. Findings are logged and recorded on
// the result; the interpreter stays the judge of whether the code works.
func (p *Pipeline) inspect(ctx context.Context, result *Result) {
	if p.inspector == nil {
		return
	}
	report, err := p.inspector.Inspect(ctx, result.Code)
	if err != nil {
		logging.ForgeWarn("Source inspection failed: %v", err)
		return
	}
	result.Symbols = report.Names()
	if report.HasSyntaxErrors() {
		logging.ForgeWarn("Generated code has syntax issues: %s", report.SyntaxError())
	}
	if m := definedNamePattern.FindStringSubmatch(result.Signature); m != nil && !report.Defines(m[1]) {
		logging.ForgeWarn("Generated code does not define %q from the signature (defines %v)", m[1], result.Symbols)
	}
}

func (p *Pipeline) startJournal(ctx context.Context, result *Result) {
	if p.journal == nil {
		return
	}
	id, err := p.journal.StartRun(ctx, result.Task, p.model)
	if err != nil {
		logging.ForgeWarn("Journal: %v", err)
		return
	}
	result.RunID = id
}

func (p *Pipeline) recordAttempt(ctx context.Context, runID string, a Attempt) {
	if p.journal == nil || runID == "" {
		return
	}
	err := p.journal.RecordAttempt(ctx, runID, store.RunAttempt{
		Stage:        a.Stage,
		ErrorMessage: a.Error,
		Code:         a.Code,
		FixedCode:    a.FixedCode,
	})
	if err != nil {
		logging.ForgeWarn("Journal: %v", err)
	}
}

func (p *Pipeline) finishJournal(ctx context.Context, result *Result, runErr error) {
	if p.journal == nil || result.RunID == "" {
		return
	}
	out := store.RunOutcome{
		Status:    store.StatusPassed,
		Signature: result.Signature,
		Code:      result.Code,
		Tests:     make(map[string]string, len(result.Tests)),
	}
	for _, tc := range result.Tests {
		out.Tests[tc.Name] = tc.Source
	}
	switch {
	case errors.Is(runErr, ErrFixAttemptsExhausted):
		out.Status = store.StatusFailed
		out.Error = runErr.Error()
	case runErr != nil:
		out.Status = store.StatusError
		out.Error = runErr.Error()
	}
	if p.usage != nil {
		u := p.usage()
		out.PromptTokens = u.PromptTokens
		out.CompletionTokens = u.CompletionTokens
	}

	// The run context may already be canceled; the outcome is still worth keeping.
	if err := p.journal.FinishRun(context.WithoutCancel(ctx), result.RunID, out); err != nil {
		logging.ForgeWarn("Journal: %v", err)
	}
}
