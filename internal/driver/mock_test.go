package driver

import (
	"context"

	"github.com/neo4j/neo4j-go-driver/v5/neo4j"
)

type executed struct {
	Query  string
	Params map[string]interface{}
}

type MockDriver struct {
	Executed []executed
	// Saved, when set, returns a "saved" record per call.
	Saved func(query string, params map[string]interface{}) int64
	Err   error
}

func (m *MockDriver) ExecuteQuery(ctx context.Context, query string, params map[string]interface{}) (neo4j.EagerResult, error) {
	m.Executed = append(m.Executed, executed{Query: query, Params: params})
	if m.Err != nil {
		return neo4j.EagerResult{}, m.Err
	}
	if m.Saved == nil {
		return neo4j.EagerResult{}, nil
	}
	return neo4j.EagerResult{
		Keys:    []string{"saved"},
		Records: []*neo4j.Record{{Keys: []string{"saved"}, Values: []any{m.Saved(query, params)}}},
	}, nil
}

func (m *MockDriver) BuildIndices(ctx context.Context) error { return nil }
func (m *MockDriver) HealthCheck(ctx context.Context) error  { return m.Err }
func (m *MockDriver) Close(ctx context.Context) error        { return nil }
