package extraction

import (
	"context"
	"fmt"

	"golang.org/x/sync/errgroup"

	"github.com/agenthands/docgraph/internal/core/model"
	"github.com/agenthands/docgraph/internal/logger"
	"github.com/agenthands/docgraph/internal/ratelimit"
	"github.com/agenthands/docgraph/internal/usage"
)

// Coordinator runs one extraction per chunk through the shared limiter.
type Coordinator struct {
	Extractor   *Extractor
	Limiter     *ratelimit.Limiter
	Concurrency int
	Meter       *usage.Meter
}

// Run returns one result per chunk, in chunk order. The first chunk that
// fails after the limiter's retries fails the whole run and cancels chunks
// that have not been dispatched yet.
func (c *Coordinator) Run(ctx context.Context, documentID string, chunks []model.DocumentChunk) ([]model.ChunkExtraction, error) {
	results := make([]model.ChunkExtraction, len(chunks))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(max(c.Concurrency, 1))

	for i, chunk := range chunks {
		g.Go(func() error {
			res, err := ratelimit.Do(gctx, c.Limiter, func(ctx context.Context) (*Result, error) {
				return c.Extractor.Extract(ctx, chunk.Text)
			})
			if err != nil {
				return fmt.Errorf("chunk %d: %w", chunk.Index, err)
			}

			results[i] = model.ChunkExtraction{
				ChunkID:    chunk.ID,
				ChunkIndex: chunk.Index,
				Entities:   res.Response.Entities,
				Relations:  res.Response.Relations,
			}
			c.Meter.Observe(ctx, usage.Call{
				DocumentID:       documentID,
				Phase:            model.PhaseExtracting,
				Model:            c.Extractor.LLM.Model(),
				Prompt:           res.Prompt,
				Completion:       res.Completion.Text,
				PromptTokens:     res.Completion.PromptTokens,
				CompletionTokens: res.Completion.CompletionTokens,
			})
			logger.Debug("[Extraction] chunk done", "document_id", documentID, "chunk", chunk.Index,
				"entities", len(res.Response.Entities), "relations", len(res.Response.Relations))
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, err
	}
	return results, nil
}
