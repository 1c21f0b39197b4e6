package embedding

import (
	"context"
	"fmt"

	"golang.org/x/sync/errgroup"

	"github.com/agenthands/docgraph/internal/config"
	"github.com/agenthands/docgraph/internal/core/model"
	"github.com/agenthands/docgraph/internal/llm"
	"github.com/agenthands/docgraph/internal/logger"
	"github.com/agenthands/docgraph/internal/ratelimit"
	"github.com/agenthands/docgraph/internal/usage"
)

// Coordinator embeds resolved nodes and/or chunks through the shared limiter
// and attaches the vectors in place.
type Coordinator struct {
	Embedder    llm.EmbedderClient
	Limiter     *ratelimit.Limiter
	Concurrency int
	// Targets is one of config.EmbedNodes, config.EmbedChunks or config.EmbedBoth.
	Targets string
	Meter   *usage.Meter
}

type target struct {
	label  string
	text   string
	attach func([]float32)
}

func (c *Coordinator) Run(ctx context.Context, documentID string, graph *model.ResolvedGraph, chunks []model.DocumentChunk) error {
	if c.Embedder == nil {
		logger.Warn("[Embedding] no embedder configured, skipping", "document_id", documentID)
		return nil
	}

	targets := c.targets(graph, chunks)
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(max(c.Concurrency, 1))

	for _, t := range targets {
		g.Go(func() error {
			vec, err := ratelimit.Do(gctx, c.Limiter, func(ctx context.Context) ([]float32, error) {
				return c.Embedder.Embed(ctx, t.text)
			})
			if err != nil {
				return fmt.Errorf("%s: %w", t.label, err)
			}
			t.attach(vec)
			c.Meter.Observe(ctx, usage.Call{
				DocumentID: documentID,
				Phase:      model.PhaseEmbedding,
				Model:      c.Embedder.EmbeddingModel(),
				Prompt:     t.text,
			})
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return err
	}
	logger.Debug("[Embedding] done", "document_id", documentID, "vectors", len(targets))
	return nil
}

func (c *Coordinator) targets(graph *model.ResolvedGraph, chunks []model.DocumentChunk) []target {
	var out []target
	if c.Targets != config.EmbedChunks && graph != nil {
		for i := range graph.Nodes {
			n := &graph.Nodes[i]
			out = append(out, target{
				label:  "node " + n.Name,
				text:   n.EmbeddingText(),
				attach: func(v []float32) { n.Embedding = v },
			})
		}
	}
	if c.Targets != config.EmbedNodes {
		for i := range chunks {
			ch := &chunks[i]
			out = append(out, target{
				label:  fmt.Sprintf("chunk %d", ch.Index),
				text:   ch.Text,
				attach: func(v []float32) { ch.Embedding = v },
			})
		}
	}
	return out
}
