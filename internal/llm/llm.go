// Package llm wraps the chat completion APIs used for lecture summaries
// behind a single Client interface.
package llm

import (
	"context"
	"errors"
	"fmt"
	"strings"
)

const (
	RoleSystem    = "system"
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

const defaultMaxTokens = 8192

var (
	ErrEmptyResponse = errors.New("empty response")
	ErrMissingAPIKey = errors.New("missing api key")
)

type Message struct {
	Role    string
	Content string
}

type Client interface {
	Complete(ctx context.Context, messages []Message) (string, error)
}

// Factory builds a client for a provider and model name.
type Factory func(provider, model string) (Client, error)

type Option func(*clientOptions)

type clientOptions struct {
	baseURL   string
	maxTokens int
}

func WithBaseURL(url string) Option {
	return func(o *clientOptions) {
		o.baseURL = url
	}
}

// WithMaxTokens caps the completion length. Long lectures with the detailed
// preset need more than the default.
func WithMaxTokens(n int) Option {
	return func(o *clientOptions) {
		o.maxTokens = n
	}
}

func ParseModel(model string) (provider, modelName string, err error) {
	parts := strings.SplitN(model, "/", 2)
	if len(parts) != 2 || parts[0] == "" || parts[1] == "" {
		return "", "", fmt.Errorf("invalid model format %q: expected provider/model_name", model)
	}
	return parts[0], parts[1], nil
}

func NewClient(provider, apiKey, model string, opts ...Option) (Client, error) {
	o := &clientOptions{maxTokens: defaultMaxTokens}
	for _, opt := range opts {
		opt(o)
	}

	switch provider {
	case "openai":
		return newOpenAIClient(apiKey, model, o)
	case "anthropic":
		return newAnthropicClient(apiKey, model, o)
	case "gemini":
		return newGeminiClient(apiKey, model, o)
	default:
		return nil, fmt.Errorf("unknown LLM provider %q: supported providers are openai, anthropic, gemini", provider)
	}
}

// split separates system prompts from the conversation turns, keeping the
// order of each.
func split(messages []Message) (system []string, turns []Message) {
	for _, m := range messages {
		if m.Role == RoleSystem {
			system = append(system, m.Content)
			continue
		}
		turns = append(turns, m)
	}
	return system, turns
}

// reply trims a provider answer; blank answers wrap ErrEmptyResponse.
func reply(provider, text string) (string, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return "", fmt.Errorf("%s: %w", provider, ErrEmptyResponse)
	}
	return text, nil
}

// NewFactory returns a Factory that looks up each provider's key with keyFor.
// Providers without a key fail with ErrMissingAPIKey instead of sending
// unauthenticated requests.
func NewFactory(keyFor func(provider string) string, opts ...Option) Factory {
	return func(provider, model string) (Client, error) {
		key := keyFor(provider)
		if key == "" {
			return nil, fmt.Errorf("%s: %w", provider, ErrMissingAPIKey)
		}
		return NewClient(provider, key, model, opts...)
	}
}
