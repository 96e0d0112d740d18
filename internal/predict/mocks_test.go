package predict

import (
	"context"
	"sync"

	"codesmith/internal/perception"
)

// --- MockLLMClient ---

type MockLLMClient struct {
	CompleteChatFunc func(ctx context.Context, messages []perception.Message) (string, error)

	mu    sync.Mutex
	Calls [][]perception.Message
}

func (m *MockLLMClient) Complete(ctx context.Context, prompt string) (string, error) {
	return m.CompleteChat(ctx, []perception.Message{{Role: perception.RoleUser, Content: prompt}})
}

func (m *MockLLMClient) CompleteWithSystem(ctx context.Context, sys, user string) (string, error) {
	return m.CompleteChat(ctx, []perception.Message{
		{Role: perception.RoleSystem, Content: sys},
		{Role: perception.RoleUser, Content: user},
	})
}

func (m *MockLLMClient) CompleteChat(ctx context.Context, messages []perception.Message) (string, error) {
	m.mu.Lock()
	m.Calls = append(m.Calls, messages)
	m.mu.Unlock()
	if m.CompleteChatFunc != nil {
		return m.CompleteChatFunc(ctx, messages)
	}
	return "", nil
}

func (m *MockLLMClient) CallCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.Calls)
}
