package core

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/agenthands/docgraph/internal/core/model"
	"github.com/agenthands/docgraph/internal/llm"
)

// MockLLM answers every extraction prompt through Respond, which receives the
// chunk text cut from the end of the prompt.
type MockLLM struct {
	Respond func(chunk string) (string, error)

	mu    sync.Mutex
	calls int
}

func (m *MockLLM) Generate(ctx context.Context, prompt string, opts ...llm.GenerateOption) (*llm.Completion, error) {
	m.mu.Lock()
	m.calls++
	m.mu.Unlock()

	chunk := prompt
	if i := strings.LastIndex(prompt, "TEXT:\n"); i >= 0 {
		chunk = prompt[i+len("TEXT:\n"):]
	}
	text, err := m.Respond(chunk)
	if err != nil {
		return nil, err
	}
	return &llm.Completion{Text: text, PromptTokens: 50, CompletionTokens: 10}, nil
}

func (m *MockLLM) Model() string { return "mock-llm" }

func (m *MockLLM) Calls() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.calls
}

type MockEmbedder struct {
	mu    sync.Mutex
	calls int
}

func (m *MockEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	m.mu.Lock()
	m.calls++
	m.mu.Unlock()
	return []float32{float32(len(text)), 1}, nil
}

func (m *MockEmbedder) EmbeddingModel() string { return "mock-embedder" }

// MockStore records the order of batch writes. Fail makes the named
// operation return an error.
type MockStore struct {
	mu   sync.Mutex
	Ops  []string
	Fail map[string]error

	Nodes []model.GraphNode
	Edges []model.GraphEdge
	Docs  []model.Document
}

func (m *MockStore) op(name string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Ops = append(m.Ops, name)
	return m.Fail[name]
}

func (m *MockStore) SaveNodes(ctx context.Context, documentID string, nodes []model.GraphNode) error {
	if err := m.op("nodes"); err != nil {
		return err
	}
	m.Nodes = append(m.Nodes, nodes...)
	return nil
}

func (m *MockStore) SaveEdges(ctx context.Context, documentID string, edges []model.GraphEdge) error {
	if err := m.op("edges"); err != nil {
		return err
	}
	m.Edges = append(m.Edges, edges...)
	return nil
}

func (m *MockStore) SaveChunks(ctx context.Context, chunks []model.DocumentChunk, nodes []model.GraphNode) error {
	return m.op("chunks")
}

func (m *MockStore) SaveDocument(ctx context.Context, doc model.Document, chunkIDs []string) error {
	if err := m.op("document"); err != nil {
		return err
	}
	m.Docs = append(m.Docs, doc)
	return nil
}

// techResponse reports Docker and Go with Docker WRITTEN_IN Go for any chunk
// that mentions them.
func techResponse(chunk string) (string, error) {
	var entities, relations []string
	if strings.Contains(chunk, "Docker") {
		entities = append(entities, `{"name": "Docker", "type": "TECHNOLOGY", "description": "Container runtime", "confidence": 0.8}`)
	}
	if strings.Contains(chunk, "Go") {
		entities = append(entities, `{"name": "go", "type": "technology", "confidence": 0.6}`)
	}
	if len(entities) == 2 {
		relations = append(relations, `{"source": "Docker", "target": "Go", "type": "WRITTEN_IN", "confidence": 0.7}`)
	}
	return fmt.Sprintf(`{"entities": [%s], "relations": [%s]}`, strings.Join(entities, ","), strings.Join(relations, ",")), nil
}
