package llm

import (
	"context"
	"errors"
	"fmt"

	"google.golang.org/genai"
)

type geminiClient struct {
	api       *genai.Client
	model     string
	maxTokens int32
}

func newGeminiClient(apiKey, model string, opts *clientOptions) (*geminiClient, error) {
	cfg := &genai.ClientConfig{APIKey: apiKey, Backend: genai.BackendGeminiAPI}
	if opts.baseURL != "" {
		cfg.HTTPOptions.BaseURL = opts.baseURL
	}
	api, err := genai.NewClient(context.Background(), cfg)
	if err != nil {
		return nil, fmt.Errorf("create gemini client: %w", err)
	}
	return &geminiClient{api: api, model: model, maxTokens: int32(opts.maxTokens)}, nil
}

// geminiContents maps the conversation to Gemini roles; assistant turns are
// "model". System prompts become one multi-part instruction.
func geminiContents(messages []Message) (*genai.Content, []*genai.Content) {
	system, turns := split(messages)

	var instruction *genai.Content
	if len(system) > 0 {
		instruction = &genai.Content{}
		for _, s := range system {
			instruction.Parts = append(instruction.Parts, &genai.Part{Text: s})
		}
	}

	contents := make([]*genai.Content, 0, len(turns))
	for _, m := range turns {
		role := genai.RoleUser
		if m.Role == RoleAssistant {
			role = genai.RoleModel
		}
		contents = append(contents, genai.NewContentFromText(m.Content, genai.Role(role)))
	}
	return instruction, contents
}

func (c *geminiClient) Complete(ctx context.Context, messages []Message) (string, error) {
	instruction, contents := geminiContents(messages)
	if len(contents) == 0 {
		return "", errors.New("gemini: no user message provided")
	}

	cfg := &genai.GenerateContentConfig{SystemInstruction: instruction}
	if c.maxTokens > 0 {
		cfg.MaxOutputTokens = c.maxTokens
	}
	resp, err := c.api.Models.GenerateContent(ctx, c.model, contents, cfg)
	if err != nil {
		return "", fmt.Errorf("gemini completion: %w", err)
	}
	return reply("gemini", resp.Text())
}
