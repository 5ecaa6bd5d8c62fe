package ai

import (
	"context"
	"sync"

	"offer-parser/internal/model"
	schemapkg "offer-parser/internal/schema"
	"offer-parser/internal/service"
)

// MockExtractor is a mock implementation of service.Extractor for testing
type MockExtractor struct {
	ExtractFunc func(ctx context.Context, req service.ExtractRequest, schema *model.Schema) (*service.ExtractResult, error)

	mu    sync.Mutex
	calls []service.ExtractRequest
}

func NewMockExtractor() *MockExtractor {
	return &MockExtractor{}
}

func (m *MockExtractor) Extract(ctx context.Context, req service.ExtractRequest, schema *model.Schema) (*service.ExtractResult, error) {
	m.mu.Lock()
	m.calls = append(m.calls, req)
	m.mu.Unlock()

	if m.ExtractFunc != nil {
		return m.ExtractFunc(ctx, req, schema)
	}

	// Default mock behavior: every declared field comes back null
	doc := model.Document{}
	if schema != nil {
		for _, f := range schemapkg.Fields(schema.Document) {
			doc[f.Name] = nil
		}
	}
	return &service.ExtractResult{Document: doc, Model: "mock"}, nil
}

// Calls returns the requests seen so far.
func (m *MockExtractor) Calls() []service.ExtractRequest {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]service.ExtractRequest(nil), m.calls...)
}
