package perception

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"

	"codesmith/internal/logging"
)

// APIError is a non-retryable error reported by the API.
type APIError struct {
	StatusCode int
	Body       string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("API request failed with status %d: %s", e.StatusCode, e.Body)
}

// ErrNoAPIKey is returned before any request is made when the key is empty.
var ErrNoAPIKey = errors.New("API key not configured")

// OpenAIClient implements LLMClient for OpenAI API.
type OpenAIClient struct {
	apiKey      string
	baseURL     string
	model       string
	maxTokens   int
	temperature float64
	maxRetries  int
	backoffBase time.Duration
	rateDelay   time.Duration
	httpClient  *http.Client

	mu          sync.Mutex
	lastRequest time.Time
	usage       UsageStats
}

// DefaultOpenAIConfig returns the defaults the generation pipeline was tuned on.
func DefaultOpenAIConfig(apiKey string) OpenAIConfig {
	return OpenAIConfig{
		APIKey:           apiKey,
		BaseURL:          "https://api.openai.com/v1",
		Model:            "gpt-4o",
		Timeout:          120 * time.Second,
		MaxTokens:        1000,
		Temperature:      0.0,
		MaxRetries:       3,
		RetryBackoffBase: time.Second,
		RateLimitDelay:   100 * time.Millisecond,
	}
}

// NewOpenAIClient creates a new OpenAI client.
func NewOpenAIClient(apiKey string) *OpenAIClient {
	return NewOpenAIClientWithConfig(DefaultOpenAIConfig(apiKey))
}

// NewOpenAIClientWithConfig creates a new OpenAI client with custom config.
func NewOpenAIClientWithConfig(config OpenAIConfig) *OpenAIClient {
	if config.BaseURL == "" {
		config.BaseURL = "https://api.openai.com/v1"
	}
	if config.Timeout <= 0 {
		config.Timeout = 120 * time.Second
	}
	if config.MaxRetries < 0 {
		config.MaxRetries = 0
	}
	return &OpenAIClient{
		apiKey:      config.APIKey,
		baseURL:     strings.TrimRight(config.BaseURL, "/"),
		model:       config.Model,
		maxTokens:   config.MaxTokens,
		temperature: config.Temperature,
		maxRetries:  config.MaxRetries,
		backoffBase: config.RetryBackoffBase,
		rateDelay:   config.RateLimitDelay,
		httpClient: &http.Client{
			Timeout: config.Timeout,
		},
	}
}

// Model returns the configured model name.
func (c *OpenAIClient) Model() string {
	return c.model
}

// Usage returns a snapshot of accumulated token usage.
func (c *OpenAIClient) Usage() UsageStats {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.usage
}

// Complete sends a prompt and returns the completion.
func (c *OpenAIClient) Complete(ctx context.Context, prompt string) (string, error) {
	return c.CompleteChat(ctx, []Message{{Role: RoleUser, Content: prompt}})
}

// CompleteWithSystem sends a prompt with a system message.
func (c *OpenAIClient) CompleteWithSystem(ctx context.Context, systemPrompt, userPrompt string) (string, error) {
	messages := make([]Message, 0, 2)
	if strings.TrimSpace(systemPrompt) != "" {
		messages = append(messages, Message{Role: RoleSystem, Content: systemPrompt})
	}
	messages = append(messages, Message{Role: RoleUser, Content: userPrompt})
	return c.CompleteChat(ctx, messages)
}

// CompleteChat sends a full conversation and returns the assistant reply.
func (c *OpenAIClient) CompleteChat(ctx context.Context, messages []Message) (string, error) {
	startTime := time.Now()
	logging.PerceptionDebug("[OpenAI] CompleteChat: model=%s messages=%d", c.model, len(messages))

	if c.apiKey == "" {
		logging.PerceptionError("[OpenAI] CompleteChat: API key not configured")
		return "", ErrNoAPIKey
	}
	if len(messages) == 0 {
		return "", fmt.Errorf("no messages to send")
	}

	reqBody := OpenAIRequest{
		Model:       c.model,
		Messages:    make([]OpenAIMessage, len(messages)),
		MaxTokens:   c.maxTokens,
		Temperature: c.temperature,
	}
	for i, m := range messages {
		reqBody.Messages[i] = OpenAIMessage{Role: string(m.Role), Content: m.Content}
	}

	jsonData, err := json.Marshal(reqBody)
	if err != nil {
		return "", fmt.Errorf("failed to marshal request: %w", err)
	}

	var lastErr error
	for attempt := 0; attempt <= c.maxRetries; attempt++ {
		if attempt > 0 {
			delay := c.backoffBase * time.Duration(1<<uint(attempt-1))
			logging.PerceptionWarn("[OpenAI] retry %d/%d in %v: %v", attempt, c.maxRetries, delay, lastErr)
			select {
			case <-ctx.Done():
				return "", fmt.Errorf("context cancelled during retry backoff: %w", ctx.Err())
			case <-time.After(delay):
			}
		}

		if err := c.waitRateLimit(ctx); err != nil {
			return "", err
		}

		content, retry, err := c.doRequest(ctx, jsonData)
		if err == nil {
			logging.Perception("[OpenAI] CompleteChat: completed in %v response_len=%d", time.Since(startTime), len(content))
			return content, nil
		}
		if !retry || ctx.Err() != nil {
			logging.PerceptionError("[OpenAI] CompleteChat: %v", err)
			return "", err
		}
		lastErr = err
	}

	logging.PerceptionError("[OpenAI] CompleteChat: max retries exceeded after %v: %v", time.Since(startTime), lastErr)
	return "", fmt.Errorf("max retries exceeded: %w", lastErr)
}

func (c *OpenAIClient) waitRateLimit(ctx context.Context) error {
	c.mu.Lock()
	wait := c.rateDelay - time.Since(c.lastRequest)
	if wait < 0 {
		wait = 0
	}
	c.lastRequest = time.Now().Add(wait)
	c.mu.Unlock()

	if wait == 0 {
		return nil
	}
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-time.After(wait):
		return nil
	}
}

// logExchange writes one api log entry per HTTP round trip.
func (c *OpenAIClient) logExchange(status int, elapsed time.Duration, sent, received int) {
	level := "info"
	if status != http.StatusOK {
		level = "warn"
	}
	logging.Get(logging.CategoryAPI).StructuredLog(level, "chat completion", map[string]interface{}{
		"model":          c.model,
		"status":         status,
		"duration_ms":    elapsed.Milliseconds(),
		"request_bytes":  sent,
		"response_bytes": received,
	})
}

// doRequest performs one HTTP round trip. The bool reports whether the
// failure is worth retrying.
func (c *OpenAIClient) doRequest(ctx context.Context, payload []byte) (string, bool, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/chat/completions", bytes.NewReader(payload))
	if err != nil {
		return "", false, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.apiKey)

	start := time.Now()
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", true, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", true, fmt.Errorf("failed to read response: %w", err)
	}
	c.logExchange(resp.StatusCode, time.Since(start), len(payload), len(body))

	if resp.StatusCode == http.StatusTooManyRequests {
		return "", true, fmt.Errorf("rate limit exceeded (429): %s", strings.TrimSpace(string(body)))
	}
	if resp.StatusCode >= 500 {
		return "", true, &APIError{StatusCode: resp.StatusCode, Body: strings.TrimSpace(string(body))}
	}
	if resp.StatusCode != http.StatusOK {
		return "", false, &APIError{StatusCode: resp.StatusCode, Body: strings.TrimSpace(string(body))}
	}

	var openaiResp OpenAIResponse
	if err := json.Unmarshal(body, &openaiResp); err != nil {
		return "", false, fmt.Errorf("failed to parse response: %w", err)
	}
	if openaiResp.Error != nil {
		return "", false, fmt.Errorf("API error: %s", openaiResp.Error.Message)
	}
	if len(openaiResp.Choices) == 0 {
		return "", false, fmt.Errorf("no completion returned")
	}

	c.mu.Lock()
	c.usage.Calls++
	if openaiResp.Usage != nil {
		c.usage.PromptTokens += openaiResp.Usage.PromptTokens
		c.usage.CompletionTokens += openaiResp.Usage.CompletionTokens
	}
	c.mu.Unlock()

	if openaiResp.Choices[0].FinishReason == "length" {
		logging.PerceptionWarn("[OpenAI] completion truncated at max_tokens=%d", c.maxTokens)
	}

	return strings.TrimSpace(openaiResp.Choices[0].Message.Content), false, nil
}
