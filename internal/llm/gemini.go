package llm

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/generative-ai-go/genai"
	"google.golang.org/api/googleapi"
	"google.golang.org/api/option"
)

type GeminiClient struct {
	client         *genai.Client
	model          string
	embeddingModel string
}

func NewGeminiClient(ctx context.Context, apiKey, model, embeddingModel string) (*GeminiClient, error) {
	client, err := genai.NewClient(ctx, option.WithAPIKey(apiKey))
	if err != nil {
		return nil, err
	}
	if embeddingModel == "" {
		embeddingModel = "text-embedding-004"
	}
	return &GeminiClient{
		client:         client,
		model:          model,
		embeddingModel: embeddingModel,
	}, nil
}

func (c *GeminiClient) Model() string          { return c.model }
func (c *GeminiClient) EmbeddingModel() string { return c.embeddingModel }

func (c *GeminiClient) Generate(ctx context.Context, prompt string, opts ...GenerateOption) (*Completion, error) {
	o := collect(opts)
	model := c.client.GenerativeModel(c.model)
	if o.Schema != nil {
		model.ResponseMIMEType = "application/json"
	}
	if o.Temperature != nil {
		model.SetTemperature(*o.Temperature)
	}

	resp, err := model.GenerateContent(ctx, genai.Text(prompt))
	if err != nil {
		return nil, wrapGoogle(err)
	}

	var sb strings.Builder
	if len(resp.Candidates) > 0 && resp.Candidates[0].Content != nil {
		for _, part := range resp.Candidates[0].Content.Parts {
			if txt, ok := part.(genai.Text); ok {
				sb.WriteString(string(txt))
			}
		}
	}
	if sb.Len() == 0 {
		return nil, fmt.Errorf("no response candidates or content")
	}

	out := &Completion{Text: sb.String()}
	if resp.UsageMetadata != nil {
		out.PromptTokens = int(resp.UsageMetadata.PromptTokenCount)
		out.CompletionTokens = int(resp.UsageMetadata.CandidatesTokenCount)
	}
	return out, nil
}

func (c *GeminiClient) Embed(ctx context.Context, text string) ([]float32, error) {
	res, err := c.client.EmbeddingModel(c.embeddingModel).EmbedContent(ctx, genai.Text(text))
	if err != nil {
		return nil, wrapGoogle(err)
	}
	if res.Embedding == nil {
		return nil, fmt.Errorf("no embedding values")
	}
	return res.Embedding.Values, nil
}

func (c *GeminiClient) Close() error {
	return c.client.Close()
}

func wrapGoogle(err error) error {
	var gErr *googleapi.Error
	if errors.As(err, &gErr) {
		return &ProviderError{Provider: "gemini", Status: gErr.Code, Err: err}
	}
	return &ProviderError{Provider: "gemini", Err: err}
}
