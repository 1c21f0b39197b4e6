package extraction

import (
	"context"
	"fmt"
	"strings"

	"github.com/agenthands/docgraph/internal/config"
	"github.com/agenthands/docgraph/internal/core/common"
	"github.com/agenthands/docgraph/internal/core/model"
	"github.com/agenthands/docgraph/internal/llm"
	"github.com/agenthands/docgraph/internal/ratelimit"
)

type Extractor struct {
	LLM    llm.LLMClient
	Config config.ExtractionConfig
	schema []byte
}

func NewExtractor(llmClient llm.LLMClient, cfg config.ExtractionConfig) (*Extractor, error) {
	schema, err := common.GenerateSchema[model.ExtractionResponse]()
	if err != nil {
		return nil, err
	}
	if cfg.Prompt == "" {
		cfg.Prompt = config.DefaultExtractionPrompt
	}
	return &Extractor{
		LLM:    llmClient,
		Config: cfg,
		schema: schema,
	}, nil
}

// Result is one extraction call with its prompt and raw completion, kept for usage accounting.
type Result struct {
	Response   model.ExtractionResponse
	Prompt     string
	Completion *llm.Completion
}

// Extract asks the model for the entities and relations of one chunk.
// Malformed model output is reported as retryable.
func (e *Extractor) Extract(ctx context.Context, text string) (*Result, error) {
	prompt := fmt.Sprintf(e.Config.Prompt,
		strings.Join(e.Config.EntityTypes, ", "),
		strings.Join(e.Config.RelationTypes, ", "),
		e.schema,
		text,
	)

	out, err := e.LLM.Generate(ctx, prompt, llm.WithSchema(e.schema), llm.WithTemperature(0))
	if err != nil {
		return nil, fmt.Errorf("failed to generate extraction: %w", err)
	}

	parsed, err := common.ParseJSON[model.ExtractionResponse](out.Text)
	if err != nil {
		return nil, ratelimit.MarkRetryable(fmt.Errorf("failed to extract entities: %w", err))
	}

	return &Result{
		Response:   clean(parsed),
		Prompt:     prompt,
		Completion: out,
	}, nil
}

func clean(in model.ExtractionResponse) model.ExtractionResponse {
	out := model.ExtractionResponse{
		Entities:  make([]model.ExtractedEntity, 0, len(in.Entities)),
		Relations: make([]model.ExtractedRelation, 0, len(in.Relations)),
	}
	for _, e := range in.Entities {
		e.Name = strings.TrimSpace(e.Name)
		e.Type = strings.TrimSpace(e.Type)
		e.Description = strings.TrimSpace(e.Description)
		if e.Name == "" {
			continue
		}
		c := e.Score()
		e.Confidence = &c
		out.Entities = append(out.Entities, e)
	}
	for _, r := range in.Relations {
		r.Source = strings.TrimSpace(r.Source)
		r.Target = strings.TrimSpace(r.Target)
		r.Type = strings.TrimSpace(r.Type)
		r.Description = strings.TrimSpace(r.Description)
		if r.Source == "" || r.Target == "" || r.Type == "" {
			continue
		}
		c := r.Score()
		r.Confidence = &c
		out.Relations = append(out.Relations, r)
	}
	return out
}
