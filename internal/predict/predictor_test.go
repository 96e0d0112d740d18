package predict

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"codesmith/internal/perception"
)

func TestPredictor_Forward(t *testing.T) {
	client := &MockLLMClient{
		CompleteChatFunc: func(ctx context.Context, messages []perception.Message) (string, error) {
			return "[[ ## reasoning ## ]]\nthink\n\n[[ ## code_signature ## ]]\ndef fib(n: int) -> int:\n\n[[ ## completed ## ]]", nil
		},
	}
	p := NewChainOfThought("signature", MustParseSignature("task -> code_signature"), client)

	pred, err := p.Forward(context.Background(), map[string]string{"task": "fibonacci"})
	require.NoError(t, err)
	assert.Equal(t, "def fib(n: int) -> int:", pred.Get("code_signature"))
	assert.Equal(t, "think", pred.Get("reasoning"))
	assert.Equal(t, 1, client.CallCount())
}

func TestPredictor_MissingInput(t *testing.T) {
	client := &MockLLMClient{}
	p := NewPredict("code", MustParseSignature("task, code_signature -> code"), client)

	_, err := p.Forward(context.Background(), map[string]string{"task": "x"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "code_signature")
	assert.Equal(t, 0, client.CallCount())
}

func TestPredictor_ParseRetry(t *testing.T) {
	replies := []string{"garbage", "[[ ## code ## ]]\nprint(1)"}
	client := &MockLLMClient{}
	client.CompleteChatFunc = func(ctx context.Context, messages []perception.Message) (string, error) {
		return replies[client.CallCount()-1], nil
	}
	p := NewPredict("code", MustParseSignature("task -> code"), client, WithParseRetries(1))

	pred, err := p.Forward(context.Background(), map[string]string{"task": "x"})
	require.NoError(t, err)
	assert.Equal(t, "print(1)", pred.Get("code"))
	assert.Equal(t, 2, client.CallCount())
}

func TestPredictor_ParseRetriesExhausted(t *testing.T) {
	client := &MockLLMClient{
		CompleteChatFunc: func(ctx context.Context, messages []perception.Message) (string, error) {
			return "still garbage", nil
		},
	}
	p := NewPredict("code", MustParseSignature("task -> code"), client, WithParseRetries(2))

	_, err := p.Forward(context.Background(), map[string]string{"task": "x"})
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrParse)
	assert.Equal(t, 3, client.CallCount())
}

func TestPredictor_ClientErrorNotRetried(t *testing.T) {
	boom := errors.New("boom")
	client := &MockLLMClient{
		CompleteChatFunc: func(ctx context.Context, messages []perception.Message) (string, error) {
			return "", boom
		},
	}
	p := NewPredict("code", MustParseSignature("task -> code"), client)

	_, err := p.Forward(context.Background(), map[string]string{"task": "x"})
	assert.ErrorIs(t, err, boom)
	assert.Equal(t, 1, client.CallCount())
}

func TestPredictor_DemosAreSent(t *testing.T) {
	client := &MockLLMClient{
		CompleteChatFunc: func(ctx context.Context, messages []perception.Message) (string, error) {
			return "[[ ## code ## ]]\nok", nil
		},
	}
	p := NewPredict("code", MustParseSignature("task -> code"), client)
	p.SetDemos([]Example{NewExample(map[string]string{"task": "a", "code": "b"}).WithInputs("task")})

	_, err := p.Forward(context.Background(), map[string]string{"task": "x"})
	require.NoError(t, err)
	require.Len(t, client.Calls[0], 4)

	clone := p.Clone()
	assert.Empty(t, clone.Demos())
	assert.Len(t, p.Demos(), 1)
}
