package llm

import (
	"context"
	"fmt"

	openai "github.com/sashabaranov/go-openai"
)

type openaiClient struct {
	api       *openai.Client
	model     string
	maxTokens int
}

func newOpenAIClient(apiKey, model string, opts *clientOptions) (*openaiClient, error) {
	cfg := openai.DefaultConfig(apiKey)
	if opts.baseURL != "" {
		cfg.BaseURL = opts.baseURL
	}
	return &openaiClient{api: openai.NewClientWithConfig(cfg), model: model, maxTokens: opts.maxTokens}, nil
}

// Complete sends the messages unchanged; OpenAI accepts system turns inline.
func (c *openaiClient) Complete(ctx context.Context, messages []Message) (string, error) {
	req := openai.ChatCompletionRequest{
		Model:               c.model,
		Messages:            make([]openai.ChatCompletionMessage, 0, len(messages)),
		MaxCompletionTokens: c.maxTokens,
	}
	for _, m := range messages {
		req.Messages = append(req.Messages, openai.ChatCompletionMessage{Role: m.Role, Content: m.Content})
	}

	resp, err := c.api.CreateChatCompletion(ctx, req)
	if err != nil {
		return "", fmt.Errorf("openai completion: %w", err)
	}
	if len(resp.Choices) == 0 {
		return "", fmt.Errorf("openai: no choices: %w", ErrEmptyResponse)
	}
	return reply("openai", resp.Choices[0].Message.Content)
}
