package forge

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"codesmith/internal/perception"
	"codesmith/internal/store"
	"codesmith/internal/tactile"
)

// --- scriptedLLM ---

// scriptedLLM answers each generator with canned field values. The module is
// recognised from the output fields listed in the system prompt.
type scriptedLLM struct {
	mu        sync.Mutex
	signature string
	code      string
	tests     [3]string
	fixes     []string
	fixInputs []string // final user message of each fixer call
	calls     map[string]int
	failOn    string
}

func newScriptedLLM() *scriptedLLM {
	return &scriptedLLM{
		signature: "def fib(n: int) -> int:",
		code:      "def fib(n):\n    return n if n < 2 else fib(n - 1) + fib(n - 2)",
		tests:     [3]string{"assert fib(1) == 1", "assert fib(10) == 55", "assert fib(0) == 0"},
		calls:     make(map[string]int),
	}
}

func moduleOf(system string) string {
	switch {
	case strings.Contains(system, "`fixed_code`"):
		return "fixer"
	case strings.Contains(system, "`test_1`"):
		return "tests"
	case strings.Contains(system, "`code`"):
		return "code"
	default:
		return "signature"
	}
}

func reply(fields ...string) string {
	var b strings.Builder
	b.WriteString("[[ ## reasoning ## ]]\nthinking\n\n")
	for i := 0; i+1 < len(fields); i += 2 {
		fmt.Fprintf(&b, "[[ ## %s ## ]]\n%s\n\n", fields[i], fields[i+1])
	}
	b.WriteString("[[ ## completed ## ]]")
	return b.String()
}

func (s *scriptedLLM) Complete(ctx context.Context, prompt string) (string, error) {
	return s.CompleteChat(ctx, []perception.Message{{Role: perception.RoleUser, Content: prompt}})
}

func (s *scriptedLLM) CompleteWithSystem(ctx context.Context, sys, user string) (string, error) {
	return s.CompleteChat(ctx, []perception.Message{
		{Role: perception.RoleSystem, Content: sys},
		{Role: perception.RoleUser, Content: user},
	})
}

func (s *scriptedLLM) CompleteChat(ctx context.Context, messages []perception.Message) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	module := moduleOf(messages[0].Content)

	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls[module]++
	if module == s.failOn {
		return "", fmt.Errorf("%s unavailable", module)
	}

	switch module {
	case "fixer":
		s.fixInputs = append(s.fixInputs, messages[len(messages)-1].Content)
		fix := "def fib(n):\n    pass"
		if len(s.fixes) > 0 {
			fix, s.fixes = s.fixes[0], s.fixes[1:]
		}
		return reply("fixed_code", fix), nil
	case "tests":
		return reply("test_1", s.tests[0], "test_2", s.tests[1], "edge_case_test_1", s.tests[2]), nil
	case "code":
		return reply("code", s.code), nil
	default:
		return reply("code_signature", s.signature), nil
	}
}

func (s *scriptedLLM) callCount(module string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls[module]
}

// --- fakeRunner ---

// fakeRunner fails any source containing a key of failures with its message.
type fakeRunner struct {
	mu       sync.Mutex
	failures map[string]string
	stdout   string
	sources  []string
	infraErr error
}

func (r *fakeRunner) Run(ctx context.Context, source string) (*tactile.ExecutionResult, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.sources = append(r.sources, source)
	if r.infraErr != nil {
		return nil, r.infraErr
	}
	for marker, msg := range r.failures {
		if strings.Contains(source, marker) {
			return &tactile.ExecutionResult{Success: true, ExitCode: 1, Stderr: msg},
				&tactile.RunError{ExitCode: 1, Message: msg, Stderr: msg}
		}
	}
	return &tactile.ExecutionResult{Success: true, Stdout: r.stdout}, nil
}

// stdoutRunner prints code for every run, plus extra[marker] when the source
// contains marker.
type stdoutRunner struct {
	code  string
	extra map[string]string
}

func (r *stdoutRunner) Run(ctx context.Context, source string) (*tactile.ExecutionResult, error) {
	out := r.code
	for marker, text := range r.extra {
		if strings.Contains(source, marker) {
			out += text
		}
	}
	return &tactile.ExecutionResult{Success: true, Stdout: out}, nil
}

// --- recordingReporter ---

type recordingReporter struct {
	events []string
}

func (r *recordingReporter) add(format string, args ...any) {
	r.events = append(r.events, fmt.Sprintf(format, args...))
}

func (r *recordingReporter) Signature(s string) { r.add("signature: %s", s) }
func (r *recordingReporter) Code(c string)      { r.add("code") }
func (r *recordingReporter) Tests(tests []TestCase) {
	r.add("tests: %d", len(tests))
}
func (r *recordingReporter) RunningCode()                { r.add("running code") }
func (r *recordingReporter) Output(stage, out string)    { r.add("output %s: %s", stage, out) }
func (r *recordingReporter) CodeFailed(msg string)       { r.add("code failed: %s", msg) }
func (r *recordingReporter) RunningTests()               { r.add("running tests") }
func (r *recordingReporter) TestFailed(name, msg string) { r.add("test %s failed: %s", name, msg) }
func (r *recordingReporter) Regenerating()               { r.add("regenerating") }
func (r *recordingReporter) Fixed(code string)           { r.add("fixed") }
func (r *recordingReporter) Passed()                     { r.add("passed") }

// --- memJournal ---

type memJournal struct {
	started  []string
	attempts []store.RunAttempt
	outcome  *store.RunOutcome
}

func (j *memJournal) StartRun(ctx context.Context, task, model string) (string, error) {
	j.started = append(j.started, task+"|"+model)
	return "run-1", nil
}

func (j *memJournal) RecordAttempt(ctx context.Context, runID string, a store.RunAttempt) error {
	j.attempts = append(j.attempts, a)
	return nil
}

func (j *memJournal) FinishRun(ctx context.Context, runID string, out store.RunOutcome) error {
	j.outcome = &out
	return nil
}
