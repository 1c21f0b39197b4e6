package model

import "time"

// TokenUsageRecord is an append-only record of one model call.
type TokenUsageRecord struct {
	DocumentID       string    `json:"document_id"`
	Phase            Phase     `json:"phase"`
	Model            string    `json:"model"`
	PromptTokens     int       `json:"prompt_tokens"`
	CompletionTokens int       `json:"completion_tokens"`
	TotalTokens      int       `json:"total_tokens"`
	EstimatedCost    float64   `json:"estimated_cost"`
	Timestamp        time.Time `json:"timestamp"`
}
