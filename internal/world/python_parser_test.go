package world

import (
	"context"
	"strings"
	"sync"
	"testing"
	"unicode/utf8"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPythonInspector_Definitions(t *testing.T) {
	source := `import math

def is_prime(n):
    def helper(k):
        return k
    if n < 2:
        return False
    return all(n % i for i in range(2, int(math.sqrt(n)) + 1))

class Calculator:
    def add(self, a, b):
        return a + b

    @staticmethod
    def zero():
        return 0
`
	report, err := NewPythonInspector().Inspect(context.Background(), source)
	require.NoError(t, err)

	assert.False(t, report.HasSyntaxErrors())
	assert.Empty(t, report.SyntaxError())
	assert.Equal(t, []string{"is_prime", "Calculator", "Calculator.add", "Calculator.zero"}, report.Names())

	assert.True(t, report.Defines("is_prime"))
	assert.True(t, report.Defines("Calculator"))
	assert.False(t, report.Defines("add"), "methods are not top-level")
	assert.False(t, report.Defines("helper"), "nested functions are not reported")

	fn := report.Symbols[0]
	assert.Equal(t, SymbolFunction, fn.Kind)
	assert.Equal(t, 3, fn.StartLine)
	assert.Equal(t, "def is_prime(n):", fn.Signature)

	zero := report.Symbols[3]
	assert.Equal(t, SymbolMethod, zero.Kind)
	assert.Equal(t, "Calculator", zero.Parent)
	assert.Equal(t, 14, zero.StartLine, "decorated definitions start at the decorator")
	assert.Equal(t, "def zero():", zero.Signature)
}

func TestPythonInspector_ConditionalDefinition(t *testing.T) {
	source := "if True:\n    def g():\n        pass\n"
	report, err := NewPythonInspector().Inspect(context.Background(), source)
	require.NoError(t, err)
	assert.True(t, report.Defines("g"))
}

func TestPythonInspector_SyntaxError(t *testing.T) {
	source := "def broken(:\n    return 1\n"
	report, err := NewPythonInspector().Inspect(context.Background(), source)
	require.NoError(t, err)

	require.True(t, report.HasSyntaxErrors())
	assert.Equal(t, 1, report.Issues[0].Line)
	assert.True(t, strings.HasPrefix(report.SyntaxError(), "SyntaxError: invalid syntax (line 1"))
}

func TestPythonInspector_Empty(t *testing.T) {
	report, err := NewPythonInspector().Inspect(context.Background(), "")
	require.NoError(t, err)
	assert.False(t, report.HasSyntaxErrors())
	assert.Empty(t, report.Symbols)
}

func TestPythonInspector_ConcurrentUse(t *testing.T) {
	inspector := NewPythonInspector()
	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			report, err := inspector.Inspect(context.Background(), "def f():\n    return 1\n")
			assert.NoError(t, err)
			assert.True(t, report.Defines("f"))
		}()
	}
	wg.Wait()
}

func TestSyntaxIssue_String(t *testing.T) {
	assert.Equal(t, `line 2, column 5: missing ")"`, SyntaxIssue{Line: 2, Column: 5, Missing: ")"}.String())
	assert.Equal(t, `line 1, column 1: unexpected "@@"`, SyntaxIssue{Line: 1, Column: 1, Snippet: "@@"}.String())
	assert.Equal(t, "line 3, column 4", SyntaxIssue{Line: 3, Column: 4}.String())
}

func TestClipSnippet_KeepsRunesWhole(t *testing.T) {
	short := "x = 'é'"
	assert.Equal(t, short, clipSnippet(short))

	long := strings.Repeat("é", 39) + "日本語"
	clipped := clipSnippet(long)
	assert.True(t, utf8.ValidString(clipped))
	assert.Equal(t, strings.Repeat("é", 39)+"日", clipped)
}
