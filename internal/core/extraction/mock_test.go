package extraction

import (
	"context"
	"sync"

	"github.com/agenthands/docgraph/internal/core/model"
	"github.com/agenthands/docgraph/internal/llm"
)

type MockLLMClient struct {
	Respond func(prompt string) (string, error)

	mu      sync.Mutex
	Prompts []string
}

func (m *MockLLMClient) Generate(ctx context.Context, prompt string, opts ...llm.GenerateOption) (*llm.Completion, error) {
	m.mu.Lock()
	m.Prompts = append(m.Prompts, prompt)
	m.mu.Unlock()

	text, err := m.Respond(prompt)
	if err != nil {
		return nil, err
	}
	return &llm.Completion{Text: text, PromptTokens: 100, CompletionTokens: 20}, nil
}

func (m *MockLLMClient) Model() string { return "mock-model" }

func (m *MockLLMClient) Calls() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.Prompts)
}

type MockRecorder struct {
	mu      sync.Mutex
	Records []model.TokenUsageRecord
}

func (m *MockRecorder) Record(ctx context.Context, rec model.TokenUsageRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Records = append(m.Records, rec)
	return nil
}
