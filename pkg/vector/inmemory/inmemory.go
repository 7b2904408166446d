// Package inmemory implements the vector Driver with an exhaustive cosine
// scan over a map. It is the default index for tests and small sessions.
package inmemory

import (
	"context"
	"sort"
	"sync"

	"github.com/papercomputeco/engram/pkg/vector"
)

// Driver implements vector.Driver using an in-memory map.
type Driver struct {
	// mu guards the documents map
	mu sync.RWMutex

	// docs maps document ID to its stored document
	docs map[string]vector.Document
}

// NewDriver creates a new in-memory vector driver.
func NewDriver() *Driver {
	return &Driver{
		docs: make(map[string]vector.Document),
	}
}

// Add stores documents with their embeddings. Existing IDs are updated.
func (d *Driver) Add(_ context.Context, docs []vector.Document) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	for _, doc := range docs {
		embedding := make([]float32, len(doc.Embedding))
		copy(embedding, doc.Embedding)
		doc.Embedding = embedding

		d.docs[doc.ID] = doc
	}

	return nil
}

// Query scans every stored document and returns the topK by cosine
// similarity.
func (d *Driver) Query(_ context.Context, embedding []float32, topK int) ([]vector.QueryResult, error) {
	if topK <= 0 {
		topK = 10
	}

	d.mu.RLock()
	defer d.mu.RUnlock()

	results := make([]vector.QueryResult, 0, len(d.docs))
	for _, doc := range d.docs {
		results = append(results, vector.QueryResult{
			Document: doc,
			Score:    vector.ClampScore(vector.CosineSimilarity(embedding, doc.Embedding)),
		})
	}

	sort.Slice(results, func(i, j int) bool {
		return results[i].Score > results[j].Score
	})

	if len(results) > topK {
		results = results[:topK]
	}

	return results, nil
}

// Get retrieves documents by their IDs. Unknown IDs are skipped.
func (d *Driver) Get(_ context.Context, ids []string) ([]vector.Document, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()

	var docs []vector.Document
	for _, id := range ids {
		if doc, ok := d.docs[id]; ok {
			docs = append(docs, doc)
		}
	}

	return docs, nil
}

// Delete removes documents by their IDs.
func (d *Driver) Delete(_ context.Context, ids []string) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	for _, id := range ids {
		delete(d.docs, id)
	}

	return nil
}

// Count returns the number of stored documents.
func (d *Driver) Count() int {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return len(d.docs)
}

// Close is a no-op for the in-memory driver.
func (d *Driver) Close() error {
	return nil
}

// Ensure Driver implements vector.Driver
var _ vector.Driver = (*Driver)(nil)
