package llm

import (
	"context"
	"fmt"

	"github.com/liushuangls/go-anthropic/v2"
)

// ClaudeClient only generates text. Anthropic has no embedding endpoint.
type ClaudeClient struct {
	client    *anthropic.Client
	model     string
	maxTokens int
}

func NewClaudeClient(apiKey, model, baseURL string, maxTokens int) *ClaudeClient {
	var opts []anthropic.ClientOption
	if baseURL != "" {
		opts = append(opts, anthropic.WithBaseURL(baseURL))
	}
	if maxTokens <= 0 {
		maxTokens = 4096
	}
	return &ClaudeClient{
		client:    anthropic.NewClient(apiKey, opts...),
		model:     model,
		maxTokens: maxTokens,
	}
}

func (c *ClaudeClient) Model() string { return c.model }

func (c *ClaudeClient) Generate(ctx context.Context, prompt string, opts ...GenerateOption) (*Completion, error) {
	o := collect(opts)
	req := anthropic.MessagesRequest{
		Model: anthropic.Model(c.model),
		Messages: []anthropic.Message{
			{
				Role: anthropic.RoleUser,
				Content: []anthropic.MessageContent{
					anthropic.NewTextMessageContent(prompt),
				},
			},
		},
		MaxTokens: c.maxTokens,
	}
	if o.Temperature != nil {
		req.Temperature = o.Temperature
	}

	resp, err := c.client.CreateMessages(ctx, req)
	if err != nil {
		// Anthropic error types (rate_limit_error, overloaded_error, api_error)
		// are part of the message and classified from there.
		return nil, &ProviderError{Provider: "claude", Err: err}
	}

	if len(resp.Content) == 0 || resp.Content[0].Text == nil {
		return nil, fmt.Errorf("no response content")
	}
	return &Completion{
		Text:             *resp.Content[0].Text,
		PromptTokens:     resp.Usage.InputTokens,
		CompletionTokens: resp.Usage.OutputTokens,
	}, nil
}
