package model

import "time"

// Phase is one step of the ingestion state machine.
type Phase string

const (
	PhaseParsing    Phase = "parsing"
	PhaseChunking   Phase = "chunking"
	PhaseExtracting Phase = "extracting"
	PhaseResolving  Phase = "resolving"
	PhaseEmbedding  Phase = "embedding"
	PhaseSaving     Phase = "saving"
	PhaseCompleted  Phase = "completed"
)

// Phases lists every phase in execution order.
var Phases = []Phase{
	PhaseParsing,
	PhaseChunking,
	PhaseExtracting,
	PhaseResolving,
	PhaseEmbedding,
	PhaseSaving,
	PhaseCompleted,
}

type DocumentStatus string

const (
	StatusPending    DocumentStatus = "pending"
	StatusProcessing DocumentStatus = "processing"
	StatusCompleted  DocumentStatus = "completed"
	StatusFailed     DocumentStatus = "failed"
)

type Document struct {
	ID         string                 `json:"id"`
	Filename   string                 `json:"filename"`
	FileType   string                 `json:"file_type"`
	FileSize   int64                  `json:"file_size"`
	Status     DocumentStatus         `json:"status"`
	UploadedAt time.Time              `json:"uploaded_at"`
	Metadata   map[string]interface{} `json:"metadata,omitempty"`
}

type DocumentChunk struct {
	ID         string    `json:"id"`
	DocumentID string    `json:"document_id"`
	Text       string    `json:"text"`
	Index      int       `json:"index"`
	Embedding  []float32 `json:"embedding,omitempty"`
}

// StatusEvent is emitted on every phase transition of a pipeline run.
type StatusEvent struct {
	Phase      Phase     `json:"phase"`
	DocumentID string    `json:"document_id"`
	Time       time.Time `json:"time"`
}
