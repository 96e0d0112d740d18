package predict

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"codesmith/internal/perception"
)

func trainset(n int) []Example {
	out := make([]Example, n)
	for i := range out {
		out[i] = NewExample(map[string]string{
			"task":           fmt.Sprintf("task %d", i),
			"code_signature": fmt.Sprintf("def f%d():", i),
		}).WithInputs("task")
	}
	return out
}

// lastTask pulls the live task out of the final user message.
func lastTask(messages []perception.Message) string {
	content := messages[len(messages)-1].Content
	content = strings.TrimPrefix(content, "[[ ## task ## ]]\n")
	task, _, _ := strings.Cut(content, "\n")
	return task
}

func echoClient() *MockLLMClient {
	return &MockLLMClient{
		CompleteChatFunc: func(ctx context.Context, messages []perception.Message) (string, error) {
			task := lastTask(messages)
			return fmt.Sprintf("[[ ## reasoning ## ]]\nabout %s\n\n[[ ## code_signature ## ]]\nsig for %s", task, task), nil
		},
	}
}

func TestBootstrapFewShot_Compile(t *testing.T) {
	client := echoClient()
	student := NewChainOfThought("signature", MustParseSignature("task -> code_signature"), client)

	compiled, err := DefaultBootstrapFewShot().Compile(context.Background(), student, trainset(6))
	require.NoError(t, err)

	demos := compiled.Demos()
	require.Len(t, demos, 6, "4 bootstrapped + 2 labeled")
	for i := 0; i < 4; i++ {
		task, _ := demos[i].Get("task")
		assert.Equal(t, fmt.Sprintf("task %d", i), task)
		reasoning, ok := demos[i].Get("reasoning")
		assert.True(t, ok, "bootstrapped demos carry reasoning")
		assert.Equal(t, "about "+task, reasoning)
	}
	for _, d := range demos[4:] {
		_, hasReasoning := d.Get("reasoning")
		assert.False(t, hasReasoning, "labeled demos are raw examples")
	}

	assert.Equal(t, 4, client.CallCount())
	assert.Empty(t, student.Demos(), "student is not modified")
}

func TestBootstrapFewShot_ExcludesSelfFromDemonstratorDemos(t *testing.T) {
	client := &MockLLMClient{}
	client.CompleteChatFunc = func(ctx context.Context, messages []perception.Message) (string, error) {
		live := lastTask(messages)
		for _, m := range messages[1 : len(messages)-1] {
			if strings.Contains(m.Content, live+"\n") || strings.HasSuffix(m.Content, live) {
				return "", fmt.Errorf("example %q leaked into its own demos", live)
			}
		}
		return "[[ ## reasoning ## ]]\nr\n[[ ## code_signature ## ]]\ns", nil
	}
	student := NewChainOfThought("signature", MustParseSignature("task -> code_signature"), client)

	compiled, err := DefaultBootstrapFewShot().Compile(context.Background(), student, trainset(3))
	require.NoError(t, err)
	assert.Len(t, compiled.Demos(), 3)
}

func TestBootstrapFewShot_MetricRejects(t *testing.T) {
	client := echoClient()
	student := NewChainOfThought("signature", MustParseSignature("task -> code_signature"), client)

	bfs := DefaultBootstrapFewShot()
	bfs.Metric = func(example Example, pred Prediction) bool {
		task, _ := example.Get("task")
		return task == "task 1"
	}

	compiled, err := bfs.Compile(context.Background(), student, trainset(3))
	require.NoError(t, err)

	demos := compiled.Demos()
	require.Len(t, demos, 3)
	task, _ := demos[0].Get("task")
	assert.Equal(t, "task 1", task)
	_, ok := demos[0].Get("reasoning")
	assert.True(t, ok)
}

func TestBootstrapFewShot_SkipsFailures(t *testing.T) {
	client := &MockLLMClient{}
	client.CompleteChatFunc = func(ctx context.Context, messages []perception.Message) (string, error) {
		if lastTask(messages) == "task 0" {
			return "", errors.New("upstream error")
		}
		return "[[ ## reasoning ## ]]\nr\n[[ ## code_signature ## ]]\ns", nil
	}
	student := NewPredict("signature", MustParseSignature("task -> code_signature").PrependOutput(ReasoningField), client, WithParseRetries(0))

	compiled, err := DefaultBootstrapFewShot().Compile(context.Background(), student, trainset(2))
	require.NoError(t, err)
	assert.Len(t, compiled.Demos(), 2, "one bootstrapped, failed example kept as labeled")
}

func TestBootstrapFewShot_MaxErrors(t *testing.T) {
	client := &MockLLMClient{
		CompleteChatFunc: func(ctx context.Context, messages []perception.Message) (string, error) {
			return "", errors.New("down")
		},
	}
	student := NewPredict("signature", MustParseSignature("task -> code_signature"), client)

	bfs := DefaultBootstrapFewShot()
	bfs.MaxErrors = 2
	_, err := bfs.Compile(context.Background(), student, trainset(5))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "bootstrap aborted")
	assert.Equal(t, 2, client.CallCount())
}

func TestBootstrapFewShot_ContextCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	student := NewPredict("signature", MustParseSignature("task -> code_signature"), echoClient())
	_, err := DefaultBootstrapFewShot().Compile(ctx, student, trainset(2))
	assert.ErrorIs(t, err, context.Canceled)
}

func TestBootstrapFewShot_LabeledCap(t *testing.T) {
	student := NewChainOfThought("signature", MustParseSignature("task -> code_signature"), echoClient())

	bfs := DefaultBootstrapFewShot()
	bfs.MaxBootstrappedDemos = 1
	bfs.MaxLabeledDemos = 3

	compiled, err := bfs.Compile(context.Background(), student, trainset(10))
	require.NoError(t, err)
	assert.Len(t, compiled.Demos(), 3)
}
