package extraction

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/agenthands/docgraph/internal/config"
	"github.com/agenthands/docgraph/internal/core/model"
	"github.com/agenthands/docgraph/internal/llm"
	"github.com/agenthands/docgraph/internal/ratelimit"
	"github.com/agenthands/docgraph/internal/usage"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newExtractor(t *testing.T, client llm.LLMClient) *Extractor {
	e, err := NewExtractor(client, config.Default().Extraction)
	require.NoError(t, err)
	return e
}

// TestExtractParsesResponse ensures that Extract parses the model output
// and fills in defaults the model left out.
func TestExtractParsesResponse(t *testing.T) {
	mockLLM := &MockLLMClient{Respond: func(string) (string, error) {
		return "```json\n" + `{
			"entities": [
				{"name": " Go ", "type": "TECHNOLOGY", "description": "A language", "confidence": 0.9},
				{"name": "Kubernetes", "type": "TECHNOLOGY"},
				{"name": "   ", "type": "TECHNOLOGY"}
			],
			"relations": [
				{"source": "Kubernetes", "target": "Go", "type": "WRITTEN_IN", "confidence": 1.7},
				{"source": "", "target": "Go", "type": "USES"}
			]
		}` + "\n```", nil
	}}

	res, err := newExtractor(t, mockLLM).Extract(context.Background(), "Kubernetes is written in Go.")
	require.NoError(t, err)

	require.Len(t, res.Response.Entities, 2)
	assert.Equal(t, "Go", res.Response.Entities[0].Name)
	assert.Equal(t, 0.9, res.Response.Entities[0].Score())
	assert.Equal(t, model.DefaultConfidence, *res.Response.Entities[1].Confidence)

	require.Len(t, res.Response.Relations, 1)
	assert.Equal(t, 1.0, res.Response.Relations[0].Score())

	require.Len(t, mockLLM.Prompts, 1)
	assert.Contains(t, mockLLM.Prompts[0], "Kubernetes is written in Go.")
	assert.Contains(t, mockLLM.Prompts[0], `"entities"`)
	assert.Contains(t, mockLLM.Prompts[0], "TECHNOLOGY")
}

func TestExtractMalformedOutputIsRetryable(t *testing.T) {
	mockLLM := &MockLLMClient{Respond: func(string) (string, error) {
		return "I could not find anything.", nil
	}}

	_, err := newExtractor(t, mockLLM).Extract(context.Background(), "text")
	require.Error(t, err)
	assert.True(t, ratelimit.IsRetryable(err))
}

func TestCoordinatorPreservesChunkOrder(t *testing.T) {
	const n = 8
	chunks := make([]model.DocumentChunk, n)
	for i := range chunks {
		chunks[i] = model.DocumentChunk{ID: model.ChunkID("doc", i), DocumentID: "doc", Index: i, Text: fmt.Sprintf("chunk-%d", i)}
	}

	var inFlight, peak int32
	mockLLM := &MockLLMClient{Respond: func(prompt string) (string, error) {
		cur := atomic.AddInt32(&inFlight, 1)
		defer atomic.AddInt32(&inFlight, -1)
		for {
			p := atomic.LoadInt32(&peak)
			if cur <= p || atomic.CompareAndSwapInt32(&peak, p, cur) {
				break
			}
		}
		var idx int
		_, _ = fmt.Sscanf(prompt[strings.LastIndex(prompt, "chunk-"):], "chunk-%d", &idx)
		time.Sleep(time.Duration(n-idx) * 2 * time.Millisecond)
		return fmt.Sprintf(`{"entities": [{"name": "E%d", "type": "CONCEPT"}], "relations": []}`, idx), nil
	}}

	rec := &MockRecorder{}
	c := &Coordinator{
		Extractor:   newExtractor(t, mockLLM),
		Limiter:     ratelimit.New(ratelimit.Config{MaxConcurrent: 10}),
		Concurrency: 3,
		Meter:       &usage.Meter{Recorder: rec},
	}

	results, err := c.Run(context.Background(), "doc", chunks)
	require.NoError(t, err)
	require.Len(t, results, n)
	for i, r := range results {
		assert.Equal(t, i, r.ChunkIndex)
		assert.Equal(t, chunks[i].ID, r.ChunkID)
		assert.Equal(t, fmt.Sprintf("E%d", i), r.Entities[0].Name)
	}
	assert.LessOrEqual(t, atomic.LoadInt32(&peak), int32(3))

	require.Len(t, rec.Records, n)
	assert.Equal(t, model.PhaseExtracting, rec.Records[0].Phase)
	assert.Equal(t, "mock-model", rec.Records[0].Model)
	assert.Equal(t, 120, rec.Records[0].TotalTokens)
}

func TestCoordinatorFailsAfterRetries(t *testing.T) {
	boom := &llm.ProviderError{Provider: "mock", Status: 503, Err: errors.New("unavailable")}
	mockLLM := &MockLLMClient{Respond: func(prompt string) (string, error) {
		if strings.Contains(prompt, "bad chunk") {
			return "", boom
		}
		return `{"entities": [], "relations": []}`, nil
	}}

	c := &Coordinator{
		Extractor:   newExtractor(t, mockLLM),
		Limiter:     ratelimit.New(ratelimit.Config{MaxConcurrent: 2, MaxRetries: 2, RetryDelay: time.Millisecond}),
		Concurrency: 1,
	}
	chunks := []model.DocumentChunk{
		{ID: "a", Index: 0, Text: "fine"},
		{ID: "b", Index: 1, Text: "bad chunk"},
	}

	results, err := c.Run(context.Background(), "doc", chunks)
	assert.Nil(t, results)

	var exhausted *ratelimit.ExhaustedError
	require.ErrorAs(t, err, &exhausted)
	assert.Equal(t, 3, exhausted.Attempts)
	assert.ErrorIs(t, err, boom)
}
