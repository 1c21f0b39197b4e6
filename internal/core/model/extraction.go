package model

// ExtractedEntity is a chunk-scoped entity as returned by the language model.
type ExtractedEntity struct {
	Name        string   `json:"name" jsonschema_description:"Canonical name of the entity as it appears in the text"`
	Type        string   `json:"type" jsonschema_description:"Entity type, one of the allowed types"`
	Description string   `json:"description,omitempty" jsonschema_description:"One or two sentences describing the entity"`
	Confidence  *float64 `json:"confidence,omitempty" jsonschema_description:"Confidence between 0 and 1"`
	Aliases     []string `json:"aliases,omitempty" jsonschema_description:"Other names used for the same entity in the text"`
}

// ExtractedRelation is a chunk-scoped directed relation between two entity names.
type ExtractedRelation struct {
	Source      string   `json:"source" jsonschema_description:"Name of the source entity"`
	Target      string   `json:"target" jsonschema_description:"Name of the target entity"`
	Type        string   `json:"type" jsonschema_description:"Relation type in UPPER_SNAKE_CASE"`
	Description string   `json:"description,omitempty" jsonschema_description:"Short statement of the relation"`
	Confidence  *float64 `json:"confidence,omitempty" jsonschema_description:"Confidence between 0 and 1"`
}

// ExtractionResponse is the JSON document the model is asked to produce.
type ExtractionResponse struct {
	Entities  []ExtractedEntity   `json:"entities"`
	Relations []ExtractedRelation `json:"relations"`
}

// ChunkExtraction is the extraction result of a single chunk.
type ChunkExtraction struct {
	ChunkID    string              `json:"chunk_id"`
	ChunkIndex int                 `json:"chunk_index"`
	Entities   []ExtractedEntity   `json:"entities"`
	Relations  []ExtractedRelation `json:"relations"`
}

// DefaultConfidence is assumed when the model omits a confidence.
const DefaultConfidence = 0.5

func score(c *float64) float64 {
	if c == nil {
		return DefaultConfidence
	}
	return min(max(*c, 0), 1)
}

func (e ExtractedEntity) Score() float64 { return score(e.Confidence) }

func (r ExtractedRelation) Score() float64 { return score(r.Confidence) }
