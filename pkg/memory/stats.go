package memory

import (
	"context"

	"github.com/papercomputeco/engram/pkg/contentstore"
)

// WindowStats summarizes context window occupancy.
type WindowStats struct {
	Items     int `json:"items"`
	Tokens    int `json:"tokens"`
	MaxTokens int `json:"max_tokens"`
}

// Stats combines store and window statistics.
type Stats struct {
	Store  *contentstore.Stats `json:"store"`
	Window WindowStats         `json:"window"`
}

// Stats reports per-tier entry counts and sizes plus window occupancy.
func (e *Engine) Stats(ctx context.Context) (*Stats, error) {
	storeStats, err := e.store.Stats(ctx)
	if err != nil {
		return nil, err
	}

	return &Stats{
		Store: storeStats,
		Window: WindowStats{
			Items:     e.window.Len(),
			Tokens:    e.window.TokenCount(),
			MaxTokens: e.window.MaxTokens(),
		},
	}, nil
}
