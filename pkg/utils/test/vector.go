package testutils

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/papercomputeco/engram/pkg/vector"
)

// MockVectorDriver is a test vector driver with canned query results
type MockVectorDriver struct {
	mu   sync.Mutex
	docs map[string]vector.Document

	// Results is returned from Query, truncated to topK
	Results []vector.QueryResult

	// QueryErr causes Query to fail
	QueryErr error

	// Delay makes Query wait before responding, honoring ctx cancellation
	Delay time.Duration
}

func NewMockVectorDriver() *MockVectorDriver {
	return &MockVectorDriver{
		docs: make(map[string]vector.Document),
	}
}

func (m *MockVectorDriver) Add(_ context.Context, docs []vector.Document) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, doc := range docs {
		m.docs[doc.ID] = doc
	}
	return nil
}

func (m *MockVectorDriver) Query(ctx context.Context, _ []float32, topK int) ([]vector.QueryResult, error) {
	if m.Delay > 0 {
		select {
		case <-time.After(m.Delay):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}

	if m.QueryErr != nil {
		return nil, m.QueryErr
	}

	if topK <= 0 || len(m.Results) < topK {
		return m.Results, nil
	}
	return m.Results[:topK], nil
}

func (m *MockVectorDriver) Get(_ context.Context, ids []string) ([]vector.Document, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var docs []vector.Document
	for _, id := range ids {
		if doc, ok := m.docs[id]; ok {
			docs = append(docs, doc)
		}
	}
	return docs, nil
}

func (m *MockVectorDriver) Delete(_ context.Context, ids []string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, id := range ids {
		delete(m.docs, id)
	}
	return nil
}

// Documents returns every stored document ordered by ID.
func (m *MockVectorDriver) Documents() []vector.Document {
	m.mu.Lock()
	defer m.mu.Unlock()

	docs := make([]vector.Document, 0, len(m.docs))
	for _, doc := range m.docs {
		docs = append(docs, doc)
	}
	sort.Slice(docs, func(i, j int) bool { return docs[i].ID < docs[j].ID })
	return docs
}

func (m *MockVectorDriver) Close() error {
	return nil
}
