// Package core runs a document through parsing, chunking, extraction,
// resolution, embedding and persistence.
package core

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/agenthands/docgraph/internal/cache"
	"github.com/agenthands/docgraph/internal/core/chunking"
	"github.com/agenthands/docgraph/internal/core/model"
	"github.com/agenthands/docgraph/internal/core/resolve"
	"github.com/agenthands/docgraph/internal/events"
	"github.com/agenthands/docgraph/internal/logger"
	"github.com/agenthands/docgraph/internal/parser"
	"github.com/agenthands/docgraph/internal/ratelimit"
)

type DocumentParser interface {
	Parse(ctx context.Context, fileType string, raw []byte) (*parser.Parsed, error)
}

// Checkpoints is the per-document cache of completed phases.
type Checkpoints interface {
	LoadChunks(documentID, fingerprint string) ([]model.DocumentChunk, bool, error)
	SaveChunks(documentID, fingerprint string, chunks []model.DocumentChunk) error
	LoadExtractions(documentID, fingerprint string) ([]model.ChunkExtraction, bool, error)
	SaveExtractions(documentID, fingerprint string, extractions []model.ChunkExtraction) error
}

type ChunkExtractor interface {
	Run(ctx context.Context, documentID string, chunks []model.DocumentChunk) ([]model.ChunkExtraction, error)
}

type GraphEmbedder interface {
	Run(ctx context.Context, documentID string, graph *model.ResolvedGraph, chunks []model.DocumentChunk) error
}

// Limits are checked before any extraction call. Zero disables a limit.
type Limits struct {
	MaxChunks          int
	MaxEstimatedTokens int
}

type Pipeline struct {
	Parser    DocumentParser
	Chunker   *chunking.Chunker
	Cache     Checkpoints
	Extractor ChunkExtractor
	Embedder  GraphEmbedder
	Persister *Persister
	Observer  events.Observer
	Limits    Limits

	now func() time.Time
}

type Result struct {
	Document model.Document
	Graph    *model.ResolvedGraph
	Chunks   []model.DocumentChunk
	// FromCache is set when extraction results were replayed from the cache.
	FromCache bool
}

// run carries the state of one Process call between phases.
type run struct {
	doc         model.Document
	raw         []byte
	parsed      *parser.Parsed
	fingerprint string
	chunks      []model.DocumentChunk
	extractions []model.ChunkExtraction
	fromCache   bool
	graph       *model.ResolvedGraph
}

// Process runs every phase of doc in order and returns the persisted graph.
//
// Callers must not process the same document id concurrently. Cancelling ctx
// stops the run at the next phase boundary or before the next queued model
// call; calls already sent to the model are left to finish.
func (p *Pipeline) Process(ctx context.Context, doc model.Document, raw []byte) (*Result, error) {
	if doc.FileType == "" {
		doc.FileType = parser.TypeOf(doc.Filename)
	}
	r := &run{doc: doc, raw: raw}
	start := p.clock()

	phases := []struct {
		phase model.Phase
		fn    func(context.Context, *run) error
	}{
		{model.PhaseParsing, p.parse},
		{model.PhaseChunking, p.chunk},
		{model.PhaseExtracting, p.extract},
		{model.PhaseResolving, p.resolve},
		{model.PhaseEmbedding, p.embed},
		{model.PhaseSaving, p.save},
	}
	for _, ph := range phases {
		if err := ctx.Err(); err != nil {
			return nil, p.fail(r, ph.phase, KindCanceled, true, err)
		}
		p.emit(ph.phase, doc.ID)
		if err := ph.fn(ctx, r); err != nil {
			var pe *PhaseError
			if errors.As(err, &pe) {
				if ctx.Err() != nil {
					pe.Kind, pe.Retryable = KindCanceled, true
				}
				logger.Error("[Pipeline] phase failed", "document_id", doc.ID, "phase", pe.Phase, "kind", pe.Kind, "error", pe.Err)
			}
			return nil, err
		}
	}
	p.emit(model.PhaseCompleted, doc.ID)

	logger.Info("[Pipeline] document processed", "document_id", doc.ID,
		"chunks", len(r.chunks), "nodes", len(r.graph.Nodes), "edges", len(r.graph.Edges),
		"from_cache", r.fromCache, "took", p.clock().Sub(start))

	return &Result{Document: r.doc, Graph: r.graph, Chunks: r.chunks, FromCache: r.fromCache}, nil
}

func (p *Pipeline) parse(ctx context.Context, r *run) error {
	parsed, err := p.Parser.Parse(ctx, r.doc.FileType, r.raw)
	if err != nil {
		return p.fail(r, model.PhaseParsing, KindParseFailure, false, err)
	}
	r.parsed = parsed
	cfg := p.Chunker.Config()
	r.fingerprint = cache.Fingerprint(parsed.Text, cfg.Size, cfg.Overlap)
	return nil
}

func (p *Pipeline) chunk(ctx context.Context, r *run) error {
	chunks, hit, err := p.Cache.LoadChunks(r.doc.ID, r.fingerprint)
	if err != nil {
		return p.fail(r, model.PhaseChunking, KindCheckpointFailure, checkpointRetryable(err), err)
	}
	if hit {
		logger.Debug("[Pipeline] chunks loaded from cache", "document_id", r.doc.ID, "chunks", len(chunks))
		if err := p.checkLimits(chunks); err != nil {
			return p.fail(r, model.PhaseChunking, KindValidationLimitExceeded, false, err)
		}
		r.chunks = chunks
		return nil
	}

	if n := p.Chunker.Count(r.parsed.Text); p.Limits.MaxChunks > 0 && n > p.Limits.MaxChunks {
		return p.fail(r, model.PhaseChunking, KindValidationLimitExceeded, false,
			fmt.Errorf("%w: %d chunks, at most %d allowed", ErrLimit, n, p.Limits.MaxChunks))
	}
	chunks, err = p.Chunker.Chunks(r.doc.ID, r.parsed.Text)
	if err != nil {
		return p.fail(r, model.PhaseChunking, KindValidationLimitExceeded, false, err)
	}
	if err := p.checkLimits(chunks); err != nil {
		return p.fail(r, model.PhaseChunking, KindValidationLimitExceeded, false, err)
	}
	if err := p.Cache.SaveChunks(r.doc.ID, r.fingerprint, chunks); err != nil {
		return p.fail(r, model.PhaseChunking, KindCheckpointFailure, checkpointRetryable(err), err)
	}
	r.chunks = chunks
	return nil
}

// checkpointRetryable reports whether a cache error can clear on a later run.
// An id the cache cannot store never will.
func checkpointRetryable(err error) bool {
	return !errors.Is(err, cache.ErrInvalidDocumentID)
}

func (p *Pipeline) checkLimits(chunks []model.DocumentChunk) error {
	if p.Limits.MaxChunks > 0 && len(chunks) > p.Limits.MaxChunks {
		return fmt.Errorf("%w: %d chunks, at most %d allowed", ErrLimit, len(chunks), p.Limits.MaxChunks)
	}
	if p.Limits.MaxEstimatedTokens <= 0 {
		return nil
	}
	tokens := 0
	for _, c := range chunks {
		tokens += chunking.EstimateTokens(c.Text)
	}
	if tokens > p.Limits.MaxEstimatedTokens {
		return fmt.Errorf("%w: estimated %d tokens, at most %d allowed", ErrLimit, tokens, p.Limits.MaxEstimatedTokens)
	}
	return nil
}

func (p *Pipeline) extract(ctx context.Context, r *run) error {
	extractions, hit, err := p.Cache.LoadExtractions(r.doc.ID, r.fingerprint)
	if err != nil {
		return p.fail(r, model.PhaseExtracting, KindCheckpointFailure, checkpointRetryable(err), err)
	}
	if hit {
		logger.Info("[Pipeline] extractions replayed from cache", "document_id", r.doc.ID)
		r.extractions, r.fromCache = extractions, true
		return nil
	}

	extractions, err = p.Extractor.Run(ctx, r.doc.ID, r.chunks)
	if err != nil {
		return p.fail(r, model.PhaseExtracting, KindExtractionFailure, true, err)
	}
	if err := p.Cache.SaveExtractions(r.doc.ID, r.fingerprint, extractions); err != nil {
		return p.fail(r, model.PhaseExtracting, KindCheckpointFailure, checkpointRetryable(err), err)
	}
	r.extractions = extractions
	return nil
}

func (p *Pipeline) resolve(ctx context.Context, r *run) error {
	r.graph = resolve.Resolve(r.doc.ID, r.extractions)
	if r.graph.DroppedRelations > 0 {
		logger.Warn("[Pipeline] relations with unknown endpoints dropped", "document_id", r.doc.ID, "dropped", r.graph.DroppedRelations)
	}
	return nil
}

func (p *Pipeline) embed(ctx context.Context, r *run) error {
	if p.Embedder == nil {
		return nil
	}
	if err := p.Embedder.Run(ctx, r.doc.ID, r.graph, r.chunks); err != nil {
		return p.fail(r, model.PhaseEmbedding, KindEmbeddingFailure, true, err)
	}
	return nil
}

func (p *Pipeline) save(ctx context.Context, r *run) error {
	r.doc.Status = model.StatusCompleted
	r.doc.Metadata = p.metadata(r)
	if err := p.Persister.Persist(ctx, r.doc, r.graph, r.chunks); err != nil {
		return p.fail(r, model.PhaseSaving, KindPersistenceFailure, ratelimit.IsRetryable(err), err)
	}
	return nil
}

func (p *Pipeline) metadata(r *run) map[string]interface{} {
	md := make(map[string]interface{}, len(r.doc.Metadata)+6)
	for k, v := range r.doc.Metadata {
		md[k] = v
	}
	md["word_count"] = r.parsed.Metadata.WordCount
	md["line_count"] = r.parsed.Metadata.LineCount
	if r.parsed.Metadata.PageCount != nil {
		md["page_count"] = *r.parsed.Metadata.PageCount
	}
	md["chunk_count"] = len(r.chunks)
	md["dropped_relations"] = r.graph.DroppedRelations
	md["processed_at"] = p.clock().UTC().Format(time.RFC3339)
	return md
}

func (p *Pipeline) fail(r *run, phase model.Phase, kind ErrorKind, retryable bool, err error) error {
	return &PhaseError{Kind: kind, Phase: phase, DocumentID: r.doc.ID, Retryable: retryable, Err: err}
}

func (p *Pipeline) emit(phase model.Phase, documentID string) {
	_ = events.SafeNotify(p.Observer, model.StatusEvent{Phase: phase, DocumentID: documentID, Time: p.clock()})
}

func (p *Pipeline) clock() time.Time {
	if p.now != nil {
		return p.now()
	}
	return time.Now()
}
