package llm

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"

	"github.com/ollama/ollama/api"
)

type OllamaClient struct {
	client         *api.Client
	model          string
	embeddingModel string
}

func NewOllamaClient(baseURL, model, embeddingModel string) (*OllamaClient, error) {
	if baseURL == "" {
		baseURL = "http://localhost:11434"
	}
	u, err := url.Parse(baseURL)
	if err != nil {
		return nil, fmt.Errorf("invalid ollama base url %q: %w", baseURL, err)
	}
	if embeddingModel == "" {
		embeddingModel = "nomic-embed-text"
	}
	return &OllamaClient{
		client:         api.NewClient(u, http.DefaultClient),
		model:          model,
		embeddingModel: embeddingModel,
	}, nil
}

func (c *OllamaClient) Model() string          { return c.model }
func (c *OllamaClient) EmbeddingModel() string { return c.embeddingModel }

func (c *OllamaClient) Generate(ctx context.Context, prompt string, opts ...GenerateOption) (*Completion, error) {
	o := collect(opts)
	stream := false
	req := &api.ChatRequest{
		Model: c.model,
		Messages: []api.Message{
			{Role: "user", Content: prompt},
		},
		Stream:  &stream,
		Options: map[string]any{},
	}
	if o.Schema != nil {
		req.Format = json.RawMessage(o.Schema)
	}
	if o.Temperature != nil {
		req.Options["temperature"] = *o.Temperature
	}

	var final api.ChatResponse
	err := c.client.Chat(ctx, req, func(cr api.ChatResponse) error {
		final.Message.Content += cr.Message.Content
		if cr.Done {
			final.Done = true
			final.Metrics = cr.Metrics
		}
		return nil
	})
	if err != nil {
		return nil, wrapOllama(err)
	}
	if final.Message.Content == "" {
		return nil, fmt.Errorf("no response content")
	}
	return &Completion{
		Text:             final.Message.Content,
		PromptTokens:     final.Metrics.PromptEvalCount,
		CompletionTokens: final.Metrics.EvalCount,
	}, nil
}

func (c *OllamaClient) Embed(ctx context.Context, text string) ([]float32, error) {
	res, err := c.client.Embed(ctx, &api.EmbedRequest{
		Model: c.embeddingModel,
		Input: text,
	})
	if err != nil {
		return nil, wrapOllama(err)
	}
	if len(res.Embeddings) == 0 {
		return nil, fmt.Errorf("no embedding data")
	}
	return res.Embeddings[0], nil
}

func wrapOllama(err error) error {
	var statusErr api.StatusError
	if errors.As(err, &statusErr) {
		return &ProviderError{Provider: "ollama", Status: statusErr.StatusCode, Err: err}
	}
	return &ProviderError{Provider: "ollama", Err: err}
}
