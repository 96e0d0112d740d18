// Package perception holds the LLM transport: the client interface the rest of
// codesmith programs against and its OpenAI chat-completions implementation.
package perception

import (
	"context"
	"fmt"
)

// Role is a chat message role.
type Role string

const (
	RoleSystem    Role = "system"
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// Message is one chat turn.
type Message struct {
	Role    Role   `json:"role"`
	Content string `json:"content"`
}

// LLMClient defines the interface for LLM providers.
type LLMClient interface {
	Complete(ctx context.Context, prompt string) (string, error)
	CompleteWithSystem(ctx context.Context, systemPrompt, userPrompt string) (string, error)
	CompleteChat(ctx context.Context, messages []Message) (string, error)
}

// Provider represents an LLM provider.
type Provider string

const (
	ProviderOpenAI Provider = "openai"
)

// NewClient builds the client for a provider.
func NewClient(provider Provider, cfg OpenAIConfig) (LLMClient, error) {
	switch provider {
	case ProviderOpenAI, "":
		return NewOpenAIClientWithConfig(cfg), nil
	default:
		return nil, fmt.Errorf("unsupported LLM provider: %s", provider)
	}
}
