package model

// GraphNode is an entity resolved across all chunks of one document.
type GraphNode struct {
	ID             string    `json:"id"`
	Name           string    `json:"name"`
	Type           string    `json:"type"`
	Description    string    `json:"description,omitempty"`
	Confidence     float64   `json:"confidence"`
	Aliases        []string  `json:"aliases,omitempty"`
	Mentions       int       `json:"mentions"`
	SourceChunkIDs []string  `json:"source_chunk_ids,omitempty"`
	Embedding      []float32 `json:"embedding,omitempty"`
}

// EmbeddingText is the text sent to the embedder for this node.
func (n *GraphNode) EmbeddingText() string {
	if n.Description == "" {
		return n.Name
	}
	return n.Name + ": " + n.Description
}
