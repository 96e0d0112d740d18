package articulation

import (
	"bytes"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"codesmith/internal/forge"
	"codesmith/internal/store"
)

func sampleTests() []forge.TestCase {
	return []forge.TestCase{
		{Name: "test_1", Source: "assert fib(1) == 1"},
		{Name: "test_2", Source: "assert fib(10) == 55"},
		{Name: "edge_case_test_1", Source: "assert fib(0) == 0"},
	}
}

func TestParseStyle(t *testing.T) {
	for in, want := range map[string]Style{"": StyleAuto, "auto": StyleAuto, "Plain": StylePlain, " pretty ": StylePretty} {
		got, err := ParseStyle(in)
		require.NoError(t, err, in)
		assert.Equal(t, want, got, in)
	}
	_, err := ParseStyle("fancy")
	assert.Error(t, err)
}

func TestStyleResolve_NonTerminalIsPlain(t *testing.T) {
	var buf bytes.Buffer
	assert.Equal(t, StylePlain, StyleAuto.Resolve(&buf))
	assert.Equal(t, StylePretty, StylePretty.Resolve(&buf))
}

func TestPrinter_PlainTranscript(t *testing.T) {
	var buf bytes.Buffer
	p, err := NewPrinter(&buf, StyleAuto)
	require.NoError(t, err)
	assert.Equal(t, StylePlain, p.Style())

	p.Signature("def fib(n: int) -> int:")
	p.Code("def fib(n):\n    return n")
	p.Tests(sampleTests())
	p.RunningCode()
	p.CodeFailed("NameError: name 'x' is not defined")
	p.Regenerating()
	p.Fixed("def fib(n):\n    return 1")
	p.RunningCode()
	p.Output(forge.MainCodeStage, "hello")
	p.RunningTests()
	p.TestFailed("test_2", "AssertionError")
	p.Regenerating()
	p.Fixed("def fib(n):\n    return 55")
	p.RunningCode()
	p.RunningTests()
	p.Passed()

	want := `
Generated code signature:
def fib(n: int) -> int:

Generated code:
def fib(n):
    return n

Generated tests:
test_1: assert fib(1) == 1
test_2: assert fib(10) == 55
edge_case_test_1: assert fib(0) == 0

Running the code...
Code failed with error: NameError: name 'x' is not defined
Re-generating the code with the execution feedback...

Fixed code:
def fib(n):
    return 1

Running the code...
hello
Running the tests...
Test test_2 failed with error: AssertionError
Re-generating the code with the execution feedback...

Fixed code:
def fib(n):
    return 55

Running the code...
Running the tests...
All generated tests passed
`
	assert.Equal(t, want, buf.String())
}

func TestPrinter_Pretty(t *testing.T) {
	var buf bytes.Buffer
	p, err := NewPrinter(&buf, StylePretty, WithGlamourStyle("notty"), WithWordWrap(60))
	require.NoError(t, err)

	p.Signature("def fib(n: int) -> int:")
	p.Tests(sampleTests())
	p.RunningTests()
	p.TestFailed("test_1", "AssertionError")
	p.Passed()

	out := buf.String()
	assert.Contains(t, out, "Generated code signature")
	assert.Contains(t, out, "Generated tests")
	assert.Contains(t, out, "edge_case_test_1:")
	assert.Contains(t, out, "Test test_1 failed with error: AssertionError")
	assert.Contains(t, out, "All generated tests passed")
}

func TestPrinter_HistoryPlain(t *testing.T) {
	var buf bytes.Buffer
	p, err := NewPrinter(&buf, StylePlain)
	require.NoError(t, err)

	p.PrintHistory(nil)
	assert.Equal(t, "No runs recorded.\n", buf.String())
	buf.Reset()

	started := time.Date(2026, 1, 2, 3, 4, 5, 0, time.Local)
	finished := started.Add(2500 * time.Millisecond)
	p.PrintHistory([]store.Run{
		{
			ID:         "0123456789abcdef",
			Task:       "A Python function to get the nth Fibonacci number",
			Status:     store.StatusPassed,
			FixCount:   1,
			StartedAt:  started,
			FinishedAt: &finished,
		},
		{
			ID:        "fedcba",
			Task:      "short",
			Status:    store.StatusRunning,
			StartedAt: started,
		},
	})

	lines := strings.Split(strings.TrimRight(buf.String(), "\n"), "\n")
	require.Len(t, lines, 3)
	assert.True(t, strings.HasPrefix(lines[0], "ID"))
	assert.Contains(t, lines[1], "01234567")
	assert.NotContains(t, lines[1], "89abcdef")
	assert.Contains(t, lines[1], "2026-01-02 03:04:05")
	assert.Contains(t, lines[1], "passed")
	assert.Contains(t, lines[1], "2.5s")
	assert.Contains(t, lines[1], "A Python function to get the nth Fibonacci nu...")
	assert.Contains(t, lines[2], "fedcba")
	assert.Contains(t, lines[2], "-")
}

func TestPrinter_HistoryPretty(t *testing.T) {
	var buf bytes.Buffer
	p, err := NewPrinter(&buf, StylePretty, WithGlamourStyle("notty"))
	require.NoError(t, err)

	p.PrintHistory([]store.Run{{ID: "abc", Task: "t", Status: store.StatusFailed, StartedAt: time.Now()}})
	out := buf.String()
	assert.Contains(t, out, "STATUS")
	assert.Contains(t, out, "failed")
}

func TestPrinter_PrintRun(t *testing.T) {
	var buf bytes.Buffer
	p, err := NewPrinter(&buf, StylePlain)
	require.NoError(t, err)

	finished := time.Now()
	p.PrintRun(&store.Run{
		ID:           "run-1",
		Task:         "fib",
		Model:        "gpt-4o",
		Status:       store.StatusFailed,
		Signature:    "def fib(n):",
		Code:         "def fib(n):\n    pass",
		Tests:        map[string]string{"test_2": "assert fib(2) == 1", "test_1": "assert fib(1) == 1"},
		Error:        "fix attempts exhausted",
		PromptTokens: 10,
		StartedAt:    finished.Add(-time.Second),
		FinishedAt:   &finished,
		Attempts: []store.RunAttempt{
			{Seq: 1, Stage: "test_1", ErrorMessage: "AssertionError"},
		},
	})

	out := buf.String()
	assert.Contains(t, out, "Run run-1\nTask: fib\nModel: gpt-4o\nStatus: failed\n")
	assert.Contains(t, out, "Tokens: 10 prompt, 0 completion\n")
	assert.Contains(t, out, "Error: fix attempts exhausted\n")
	assert.Contains(t, out, "test_1: assert fib(1) == 1\ntest_2: assert fib(2) == 1\n")
	assert.Contains(t, out, "Attempt 1 failed in test_1: AssertionError\n")
	assert.Contains(t, out, "\nGenerated code:\ndef fib(n):\n    pass\n")
}

func TestPrinter_FixDiffs(t *testing.T) {
	var buf bytes.Buffer
	p, err := NewPrinter(&buf, StylePlain, WithFixDiffs(true))
	require.NoError(t, err)

	p.Code("def fib(n):\n    return n")
	p.Fixed("def fib(n):\n    return 1")
	p.Fixed("def fib(n):\n    return 1")

	out := buf.String()
	assert.Contains(t, out, "Changes: +1 -1\n--- revision 1\n+++ revision 2\n@@ -1,2 +1,2 @@\n def fib(n):\n-    return n\n+    return 1\n")
	assert.Contains(t, out, "(fix left the code unchanged)\n")
}

func TestPrinter_PrintRunAttemptDiff(t *testing.T) {
	var buf bytes.Buffer
	p, err := NewPrinter(&buf, StylePlain)
	require.NoError(t, err)

	p.PrintRun(&store.Run{
		ID:        "run-2",
		Task:      "fib",
		Status:    store.StatusPassed,
		StartedAt: time.Now(),
		Attempts: []store.RunAttempt{
			{Seq: 1, Stage: forge.MainCodeStage, ErrorMessage: "NameError", Code: "x = y", FixedCode: "x = 1"},
		},
	})

	out := buf.String()
	assert.Contains(t, out, "Attempt 1 failed in main code: NameError\nChanges: +1 -1\n")
	assert.Contains(t, out, "-x = y\n+x = 1\n")
}
