package core

import (
	"context"
	"fmt"

	"github.com/agenthands/docgraph/internal/core/model"
)

// GraphStore is the batch write side of the graph database.
type GraphStore interface {
	SaveNodes(ctx context.Context, documentID string, nodes []model.GraphNode) error
	SaveEdges(ctx context.Context, documentID string, edges []model.GraphEdge) error
	SaveChunks(ctx context.Context, chunks []model.DocumentChunk, nodes []model.GraphNode) error
	SaveDocument(ctx context.Context, doc model.Document, chunkIDs []string) error
}

// Persister writes a resolved graph in dependency order: nodes, edges,
// chunks, then the document record. The store offers no transaction across
// these calls, so the document is written last and only after everything it
// points at exists.
type Persister struct {
	Store GraphStore
}

func (p *Persister) Persist(ctx context.Context, doc model.Document, graph *model.ResolvedGraph, chunks []model.DocumentChunk) error {
	if err := graph.Validate(); err != nil {
		return fmt.Errorf("refusing to save graph: %w", err)
	}
	if err := p.Store.SaveNodes(ctx, doc.ID, graph.Nodes); err != nil {
		return fmt.Errorf("nodes: %w", err)
	}
	if err := p.Store.SaveEdges(ctx, doc.ID, graph.Edges); err != nil {
		return fmt.Errorf("edges: %w", err)
	}
	if err := p.Store.SaveChunks(ctx, chunks, graph.Nodes); err != nil {
		return fmt.Errorf("chunks: %w", err)
	}

	chunkIDs := make([]string, len(chunks))
	for i, c := range chunks {
		chunkIDs[i] = c.ID
	}
	if err := p.Store.SaveDocument(ctx, doc, chunkIDs); err != nil {
		return fmt.Errorf("document: %w", err)
	}
	return nil
}
