package driver

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/neo4j/neo4j-go-driver/v5/neo4j"

	"github.com/agenthands/docgraph/internal/core/model"
)

const defaultBatchSize = 500

// Store writes pipeline output to the graph in UNWIND batches. Every write is
// an idempotent MERGE keyed by id, so a repeated save overwrites in place.
type Store struct {
	Driver    GraphDriver
	BatchSize int
}

func NewStore(d GraphDriver, batchSize int) *Store {
	if batchSize <= 0 {
		batchSize = defaultBatchSize
	}
	return &Store{Driver: d, BatchSize: batchSize}
}

func (s *Store) HealthCheck(ctx context.Context) error { return s.Driver.HealthCheck(ctx) }

func (s *Store) Close(ctx context.Context) error { return s.Driver.Close(ctx) }

func (s *Store) SaveNodes(ctx context.Context, documentID string, nodes []model.GraphNode) error {
	rows := make([]map[string]interface{}, len(nodes))
	for i, n := range nodes {
		rows[i] = map[string]interface{}{
			"id":          n.ID,
			"name":        n.Name,
			"type":        n.Type,
			"description": n.Description,
			"confidence":  n.Confidence,
			"aliases":     stringsOrEmpty(n.Aliases),
			"mentions":    n.Mentions,
			"document_id": documentID,
			"embedding":   toFloat64(n.Embedding),
		}
	}
	return s.batch(ctx, "nodes", SaveNodesQuery, rows)
}

func (s *Store) SaveEdges(ctx context.Context, documentID string, edges []model.GraphEdge) error {
	rows := make([]map[string]interface{}, len(edges))
	for i, e := range edges {
		rows[i] = map[string]interface{}{
			"id":          e.ID,
			"source_id":   e.SourceNodeID,
			"target_id":   e.TargetNodeID,
			"type":        e.RelationType,
			"description": e.Description,
			"weight":      e.Weight,
			"confidence":  e.Confidence,
			"document_id": documentID,
		}
	}
	return s.batch(ctx, "edges", SaveEdgesQuery, rows)
}

// SaveChunks writes the chunks and links each to the nodes it mentions.
func (s *Store) SaveChunks(ctx context.Context, chunks []model.DocumentChunk, nodes []model.GraphNode) error {
	rows := make([]map[string]interface{}, len(chunks))
	for i, c := range chunks {
		rows[i] = map[string]interface{}{
			"id":          c.ID,
			"document_id": c.DocumentID,
			"text":        c.Text,
			"index":       c.Index,
			"embedding":   toFloat64(c.Embedding),
		}
	}
	if err := s.batch(ctx, "chunks", SaveChunksQuery, rows); err != nil {
		return err
	}

	var mentions []map[string]interface{}
	for _, n := range nodes {
		for _, chunkID := range n.SourceChunkIDs {
			mentions = append(mentions, map[string]interface{}{"chunk_id": chunkID, "node_id": n.ID})
		}
	}
	return s.batch(ctx, "mentions", LinkMentionsQuery, mentions)
}

func (s *Store) SaveDocument(ctx context.Context, doc model.Document, chunkIDs []string) error {
	metadata := "{}"
	if len(doc.Metadata) > 0 {
		b, err := json.Marshal(doc.Metadata)
		if err != nil {
			return fmt.Errorf("failed to encode document metadata: %w", err)
		}
		metadata = string(b)
	}

	_, err := s.Driver.ExecuteQuery(ctx, SaveDocumentQuery, map[string]interface{}{
		"id":          doc.ID,
		"filename":    doc.Filename,
		"file_type":   doc.FileType,
		"file_size":   doc.FileSize,
		"status":      string(doc.Status),
		"uploaded_at": doc.UploadedAt,
		"metadata":    metadata,
	})
	if err != nil {
		return fmt.Errorf("failed to save document %s: %w", doc.ID, err)
	}
	if len(chunkIDs) == 0 {
		return nil
	}
	_, err = s.Driver.ExecuteQuery(ctx, LinkDocumentChunksQuery, map[string]interface{}{
		"id":        doc.ID,
		"chunk_ids": chunkIDs,
	})
	if err != nil {
		return fmt.Errorf("failed to link chunks of document %s: %w", doc.ID, err)
	}
	return nil
}

func (s *Store) batch(ctx context.Context, what, query string, rows []map[string]interface{}) error {
	for start := 0; start < len(rows); start += s.BatchSize {
		end := min(start+s.BatchSize, len(rows))
		res, err := s.Driver.ExecuteQuery(ctx, query, map[string]interface{}{"rows": rows[start:end]})
		if err != nil {
			return fmt.Errorf("failed to save %s [%d:%d]: %w", what, start, end, err)
		}
		if saved, ok := savedCount(res); ok && saved < int64(end-start) {
			return fmt.Errorf("saved %d of %d %s: missing endpoints", saved, end-start, what)
		}
	}
	return nil
}

func savedCount(res neo4j.EagerResult) (int64, bool) {
	if len(res.Records) == 0 {
		return 0, false
	}
	v, ok := res.Records[0].Get("saved")
	if !ok {
		return 0, false
	}
	n, ok := v.(int64)
	return n, ok
}

func toFloat64(v []float32) []float64 {
	if v == nil {
		return nil
	}
	out := make([]float64, len(v))
	for i, f := range v {
		out[i] = float64(f)
	}
	return out
}

func stringsOrEmpty(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}
