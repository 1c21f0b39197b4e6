package core

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/agenthands/docgraph/internal/cache"
	"github.com/agenthands/docgraph/internal/config"
	"github.com/agenthands/docgraph/internal/core/model"
	"github.com/agenthands/docgraph/internal/events"
	"github.com/agenthands/docgraph/internal/llm"
	"github.com/agenthands/docgraph/internal/ratelimit"
)

const techText = `Docker is a container runtime written in Go.
Many teams ship Docker images built with Go tooling every day.
Go keeps the Docker daemon fast and small.`

type harness struct {
	pipeline *Pipeline
	llm      *MockLLM
	embedder *MockEmbedder
	store    *MockStore
	cacheDir string

	mu     sync.Mutex
	phases []model.Phase
}

func newHarness(t *testing.T, mutate func(*config.Config)) *harness {
	t.Helper()
	cfg := config.Default()
	cfg.Pipeline.ChunkSize = 10
	cfg.Pipeline.ChunkOverlap = 2
	cfg.Pipeline.EmbedTargets = config.EmbedBoth
	if mutate != nil {
		mutate(cfg)
	}

	h := &harness{
		llm:      &MockLLM{Respond: techResponse},
		embedder: &MockEmbedder{},
		store:    &MockStore{},
		cacheDir: t.TempDir(),
	}
	fc, err := cache.NewFileCache(h.cacheDir)
	require.NoError(t, err)

	limiter := ratelimit.New(ratelimit.Config{MaxConcurrent: 4, RequestsPerMinute: 1000, MaxRetries: 0})
	t.Cleanup(limiter.Close)

	var embedder llm.EmbedderClient = h.embedder
	h.pipeline, err = NewPipeline(cfg, Deps{
		LLM:      h.llm,
		Embedder: embedder,
		Store:    h.store,
		Cache:    fc,
		Limiter:  limiter,
		Observer: events.ObserverFunc(func(ev model.StatusEvent) {
			h.mu.Lock()
			h.phases = append(h.phases, ev.Phase)
			h.mu.Unlock()
		}),
	})
	require.NoError(t, err)
	return h
}

func (h *harness) seen() []model.Phase {
	h.mu.Lock()
	defer h.mu.Unlock()
	return append([]model.Phase(nil), h.phases...)
}

func doc(id string) model.Document {
	return model.Document{ID: id, Filename: id + ".txt", FileSize: int64(len(techText)), Status: model.StatusPending, UploadedAt: time.Now()}
}

func TestProcessTwoTechnologies(t *testing.T) {
	h := newHarness(t, nil)

	res, err := h.pipeline.Process(context.Background(), doc("doc-1"), []byte(techText))
	require.NoError(t, err)

	assert.GreaterOrEqual(t, len(res.Chunks), 2)
	require.Len(t, res.Graph.Nodes, 2)
	require.Len(t, res.Graph.Edges, 1)
	assert.Equal(t, model.Phases, h.seen())

	edge := res.Graph.Edges[0]
	assert.Equal(t, "WRITTEN_IN", edge.RelationType)
	assert.Equal(t, 0.7, edge.Confidence)
	// the last chunk mentions neither technology
	assert.Equal(t, len(res.Chunks)-1, edge.Weight)

	for _, n := range res.Graph.Nodes {
		assert.NotEmpty(t, n.Embedding, n.Name)
	}
	for _, c := range res.Chunks {
		assert.NotEmpty(t, c.Embedding)
	}

	assert.Equal(t, []string{"nodes", "edges", "chunks", "document"}, h.store.Ops)
	require.Len(t, h.store.Docs, 1)
	assert.Equal(t, model.StatusCompleted, h.store.Docs[0].Status)
	assert.Equal(t, len(res.Chunks), h.store.Docs[0].Metadata["chunk_count"])
	assert.Equal(t, "txt", res.Document.FileType)
}

func TestSecondRunMakesNoExtractionCalls(t *testing.T) {
	h := newHarness(t, nil)

	first, err := h.pipeline.Process(context.Background(), doc("doc-1"), []byte(techText))
	require.NoError(t, err)
	calls := h.llm.Calls()
	require.Positive(t, calls)
	assert.False(t, first.FromCache)

	second, err := h.pipeline.Process(context.Background(), doc("doc-1"), []byte(techText))
	require.NoError(t, err)

	assert.Equal(t, calls, h.llm.Calls())
	assert.True(t, second.FromCache)
	assert.Equal(t, first.Graph, second.Graph)
	assert.Equal(t, first.Chunks, second.Chunks)
}

func TestChangedTextInvalidatesCache(t *testing.T) {
	h := newHarness(t, nil)

	_, err := h.pipeline.Process(context.Background(), doc("doc-1"), []byte(techText))
	require.NoError(t, err)
	calls := h.llm.Calls()

	res, err := h.pipeline.Process(context.Background(), doc("doc-1"), []byte(techText+"\nDocker Compose is also written in Go."))
	require.NoError(t, err)
	assert.False(t, res.FromCache)
	assert.Greater(t, h.llm.Calls(), calls)
}

func TestMaxChunksFailsBeforeExtraction(t *testing.T) {
	h := newHarness(t, func(c *config.Config) { c.Pipeline.MaxChunksPerDocument = 1 })

	_, err := h.pipeline.Process(context.Background(), doc("doc-1"), []byte(techText))
	require.Error(t, err)

	assert.ErrorIs(t, err, ErrValidationLimitExceeded)
	assert.ErrorIs(t, err, ErrLimit)
	assert.False(t, IsRetryable(err))
	assert.Zero(t, h.llm.Calls())
	assert.Equal(t, []model.Phase{model.PhaseParsing, model.PhaseChunking}, h.seen())
	assert.NoFileExists(t, filepath.Join(h.cacheDir, "doc-1", cache.ChunksFile))
	assert.Empty(t, h.store.Ops)
}

func TestTokenBudgetFailsBeforeExtraction(t *testing.T) {
	h := newHarness(t, func(c *config.Config) { c.Pipeline.MaxEstimatedTokens = 5 })

	_, err := h.pipeline.Process(context.Background(), doc("doc-1"), []byte(techText))

	var pe *PhaseError
	require.ErrorAs(t, err, &pe)
	assert.Equal(t, KindValidationLimitExceeded, pe.Kind)
	assert.Equal(t, model.PhaseChunking, pe.Phase)
	assert.Equal(t, "doc-1", pe.DocumentID)
	assert.Zero(t, h.llm.Calls())
}

func TestParseFailure(t *testing.T) {
	h := newHarness(t, nil)
	d := doc("doc-1")
	d.Filename = "report.docx"

	_, err := h.pipeline.Process(context.Background(), d, []byte(techText))
	assert.ErrorIs(t, err, ErrParseFailure)
	assert.Equal(t, []model.Phase{model.PhaseParsing}, h.seen())
}

func TestExtractionFailureLeavesChunkCheckpoint(t *testing.T) {
	h := newHarness(t, nil)
	h.llm.Respond = func(chunk string) (string, error) {
		return "", errors.New("invalid api key")
	}

	_, err := h.pipeline.Process(context.Background(), doc("doc-1"), []byte(techText))
	assert.ErrorIs(t, err, ErrExtractionFailure)
	assert.True(t, IsRetryable(err))
	chunksPath := filepath.Join(h.cacheDir, "doc-1", cache.ChunksFile)
	assert.FileExists(t, chunksPath)
	assert.NoFileExists(t, filepath.Join(h.cacheDir, "doc-1", cache.ExtractionsFile))
	checkpoint, err := os.ReadFile(chunksPath)
	require.NoError(t, err)

	h.llm.Respond = techResponse
	calls := h.llm.Calls()
	res, err := h.pipeline.Process(context.Background(), doc("doc-1"), []byte(techText))
	require.NoError(t, err)
	assert.False(t, res.FromCache)
	assert.Len(t, res.Graph.Nodes, 2)
	assert.Greater(t, h.llm.Calls(), calls)

	// Chunking was served from the checkpoint: the file, created_at included, is unchanged.
	after, err := os.ReadFile(chunksPath)
	require.NoError(t, err)
	assert.Equal(t, string(checkpoint), string(after))
	assert.FileExists(t, filepath.Join(h.cacheDir, "doc-1", cache.ExtractionsFile))
}

func TestInvalidDocumentIDIsNotRetryable(t *testing.T) {
	h := newHarness(t, nil)

	_, err := h.pipeline.Process(context.Background(), doc("my doc"), []byte(techText))
	require.Error(t, err)

	var pe *PhaseError
	require.ErrorAs(t, err, &pe)
	assert.Equal(t, KindCheckpointFailure, pe.Kind)
	assert.Equal(t, model.PhaseChunking, pe.Phase)
	assert.ErrorIs(t, err, cache.ErrInvalidDocumentID)
	assert.False(t, IsRetryable(err))
	assert.Zero(t, h.llm.Calls())
	assert.Empty(t, h.store.Ops)
}

func TestPersistenceFailureResumesFromCache(t *testing.T) {
	h := newHarness(t, nil)
	h.store.Fail = map[string]error{"edges": errors.New("connection reset by peer")}

	_, err := h.pipeline.Process(context.Background(), doc("doc-1"), []byte(techText))
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrPersistenceFailure)
	assert.True(t, IsRetryable(err))
	assert.Empty(t, h.store.Docs)
	assert.NotContains(t, h.seen(), model.PhaseCompleted)

	calls := h.llm.Calls()
	h.store.Fail = nil
	res, err := h.pipeline.Process(context.Background(), doc("doc-1"), []byte(techText))
	require.NoError(t, err)
	assert.True(t, res.FromCache)
	assert.Equal(t, calls, h.llm.Calls())
	assert.Len(t, h.store.Docs, 1)
}

func TestCanceledBeforeStart(t *testing.T) {
	h := newHarness(t, nil)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := h.pipeline.Process(ctx, doc("doc-1"), []byte(techText))
	assert.ErrorIs(t, err, ErrCanceled)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Empty(t, h.seen())
	assert.Zero(t, h.llm.Calls())
}

func TestObserverPanicDoesNotFailRun(t *testing.T) {
	h := newHarness(t, nil)
	h.pipeline.Observer = events.ObserverFunc(func(ev model.StatusEvent) {
		if ev.Phase == model.PhaseResolving {
			panic("observer bug")
		}
	})

	_, err := h.pipeline.Process(context.Background(), doc("doc-1"), []byte(techText))
	assert.NoError(t, err)
}

func TestEmptyDocument(t *testing.T) {
	h := newHarness(t, nil)

	res, err := h.pipeline.Process(context.Background(), doc("doc-1"), []byte("   \n"))
	require.NoError(t, err)
	assert.Empty(t, res.Chunks)
	assert.Empty(t, res.Graph.Nodes)
	assert.Zero(t, h.llm.Calls())
	assert.Equal(t, model.Phases, h.seen())
}

func TestPersisterRejectsDanglingEdge(t *testing.T) {
	store := &MockStore{}
	p := &Persister{Store: store}
	graph := &model.ResolvedGraph{
		Nodes: []model.GraphNode{{ID: "a", Name: "A"}},
		Edges: []model.GraphEdge{{ID: "e", SourceNodeID: "a", TargetNodeID: "missing"}},
	}

	err := p.Persist(context.Background(), doc("doc-1"), graph, nil)
	assert.ErrorContains(t, err, "dangling target node missing")
	assert.Empty(t, store.Ops)
}

func TestPhaseErrorMessage(t *testing.T) {
	err := &PhaseError{Kind: KindParseFailure, Phase: model.PhaseParsing, DocumentID: "d", Err: errors.New("bad bytes")}
	assert.True(t, strings.HasPrefix(err.Error(), "parse_failure in parsing phase of document d"))

	kind, ok := KindOf(err)
	assert.True(t, ok)
	assert.Equal(t, KindParseFailure, kind)
	assert.False(t, errors.Is(err, ErrPersistenceFailure))
}
