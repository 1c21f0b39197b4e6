package llm

import (
	"context"
	"fmt"
)

// Completion is a model response together with the token counts the provider
// reported. Counts are zero when the provider does not report them.
type Completion struct {
	Text             string
	PromptTokens     int
	CompletionTokens int
}

type LLMClient interface {
	Generate(ctx context.Context, prompt string, opts ...GenerateOption) (*Completion, error)
	Model() string
}

type EmbedderClient interface {
	Embed(ctx context.Context, text string) ([]float32, error)
	EmbeddingModel() string
}

type GenerateOptions struct {
	// Schema asks the provider for JSON output matching this JSON schema where supported.
	Schema      []byte
	Temperature *float32
}

type GenerateOption func(*GenerateOptions)

func WithSchema(schema []byte) GenerateOption {
	return func(o *GenerateOptions) { o.Schema = schema }
}

func WithTemperature(t float32) GenerateOption {
	return func(o *GenerateOptions) { o.Temperature = &t }
}

func collect(opts []GenerateOption) GenerateOptions {
	var o GenerateOptions
	for _, fn := range opts {
		fn(&o)
	}
	return o
}

// ProviderError carries the HTTP status of a failed provider call so the
// rate limiter can classify it.
type ProviderError struct {
	Provider string
	Status   int
	Err      error
}

func (e *ProviderError) Error() string {
	if e.Status > 0 {
		return fmt.Sprintf("%s: status %d: %v", e.Provider, e.Status, e.Err)
	}
	return fmt.Sprintf("%s: %v", e.Provider, e.Err)
}

func (e *ProviderError) Unwrap() error { return e.Err }

func (e *ProviderError) StatusCode() int { return e.Status }
