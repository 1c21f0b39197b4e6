package core

import (
	"fmt"

	"github.com/agenthands/docgraph/internal/config"
	"github.com/agenthands/docgraph/internal/core/chunking"
	"github.com/agenthands/docgraph/internal/core/embedding"
	"github.com/agenthands/docgraph/internal/core/extraction"
	"github.com/agenthands/docgraph/internal/events"
	"github.com/agenthands/docgraph/internal/llm"
	"github.com/agenthands/docgraph/internal/parser"
	"github.com/agenthands/docgraph/internal/ratelimit"
	"github.com/agenthands/docgraph/internal/usage"
)

// Deps are the external services a pipeline is assembled from. Embedder may
// be nil, in which case the embedding phase is a no-op.
type Deps struct {
	LLM      llm.LLMClient
	Embedder llm.EmbedderClient
	Store    GraphStore
	Cache    Checkpoints
	Limiter  *ratelimit.Limiter
	Meter    *usage.Meter
	Observer events.Observer
}

// NewLimiter builds the limiter shared by every pipeline of the process.
func NewLimiter(cfg config.RateLimitConfig) *ratelimit.Limiter {
	return ratelimit.New(ratelimit.Config{
		MaxConcurrent:     cfg.MaxConcurrent,
		RequestsPerMinute: cfg.RequestsPerMinute,
		Timeout:           cfg.Timeout(),
		MaxRetries:        cfg.MaxRetries,
		RetryDelay:        cfg.RetryDelay(),
	})
}

func NewPipeline(cfg *config.Config, deps Deps) (*Pipeline, error) {
	chunker, err := chunking.New(chunking.Config{Size: cfg.Pipeline.ChunkSize, Overlap: cfg.Pipeline.ChunkOverlap})
	if err != nil {
		return nil, err
	}
	extractor, err := extraction.NewExtractor(deps.LLM, cfg.Extraction)
	if err != nil {
		return nil, fmt.Errorf("failed to create extractor: %w", err)
	}
	limiter := deps.Limiter
	if limiter == nil {
		limiter = NewLimiter(cfg.RateLimit)
	}

	p := &Pipeline{
		Parser:  parser.NewRegistry(),
		Chunker: chunker,
		Cache:   deps.Cache,
		Extractor: &extraction.Coordinator{
			Extractor:   extractor,
			Limiter:     limiter,
			Concurrency: cfg.Pipeline.ExtractionConcurrency,
			Meter:       deps.Meter,
		},
		Persister: &Persister{Store: deps.Store},
		Observer:  deps.Observer,
		Limits: Limits{
			MaxChunks:          cfg.Pipeline.MaxChunksPerDocument,
			MaxEstimatedTokens: cfg.Pipeline.MaxEstimatedTokens,
		},
	}
	if deps.Embedder != nil {
		p.Embedder = &embedding.Coordinator{
			Embedder:    deps.Embedder,
			Limiter:     limiter,
			Concurrency: cfg.Pipeline.EmbeddingConcurrency,
			Targets:     cfg.Pipeline.EmbedTargets,
			Meter:       deps.Meter,
		}
	}
	return p, nil
}
