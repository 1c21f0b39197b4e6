package usage

import (
	"context"
	"time"

	"github.com/agenthands/docgraph/internal/core/model"
	"github.com/agenthands/docgraph/internal/logger"
)

// Meter turns model calls into usage records. A nil Meter or a Meter without
// a Recorder discards everything.
type Meter struct {
	Recorder Recorder
	Counter  Counter
	Pricing  Pricing
}

// Call describes one model call. Zero token counts are estimated from the texts.
type Call struct {
	DocumentID       string
	Phase            model.Phase
	Model            string
	Prompt           string
	Completion       string
	PromptTokens     int
	CompletionTokens int
}

func (m *Meter) Observe(ctx context.Context, call Call) {
	if m == nil || m.Recorder == nil {
		return
	}
	counter := m.Counter
	if counter == nil {
		counter = WordCounter{}
	}
	if call.PromptTokens == 0 {
		call.PromptTokens = counter.Count(call.Prompt)
	}
	if call.CompletionTokens == 0 && call.Completion != "" {
		call.CompletionTokens = counter.Count(call.Completion)
	}

	rec := model.TokenUsageRecord{
		DocumentID:       call.DocumentID,
		Phase:            call.Phase,
		Model:            call.Model,
		PromptTokens:     call.PromptTokens,
		CompletionTokens: call.CompletionTokens,
		TotalTokens:      call.PromptTokens + call.CompletionTokens,
		EstimatedCost:    m.Pricing.Cost(call.Model, call.PromptTokens, call.CompletionTokens),
		Timestamp:        time.Now().UTC(),
	}
	if err := m.Recorder.Record(ctx, rec); err != nil {
		logger.Warn("[Usage] failed to record usage", "document_id", call.DocumentID, "phase", call.Phase, "error", err)
	}
}
