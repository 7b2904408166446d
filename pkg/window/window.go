package window

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/papercomputeco/engram/pkg/fragment"
)

// DefaultObserverBuffer is the event channel capacity when none is configured.
const DefaultObserverBuffer = 64

// ContentSource serves the stored bytes behind an admitted item.
type ContentSource interface {
	Get(ctx context.Context, hash string) ([]byte, error)
}

// EventType classifies window observer events.
type EventType string

const (
	// EventAdmitted fires when an item enters the window.
	EventAdmitted EventType = "admitted"

	// EventEvicted fires when an item leaves the window.
	EventEvicted EventType = "evicted"
)

// Event describes one admission or eviction for observers.
type Event struct {
	Type   EventType `json:"type"`
	Hash   string    `json:"hash"`
	Tokens int       `json:"tokens"`
}

// Config holds construction parameters for the Window.
type Config struct {
	// MaxTokens is the window's token budget. Required.
	MaxTokens int

	// MaxItems caps the item count. Zero means unlimited.
	MaxItems int

	// Source serves content when a prompt is rendered. Required.
	Source ContentSource

	// Logger receives admission and eviction logs. Defaults to a nop logger.
	Logger *zap.Logger

	// ObserverBuffer sizes the event channel. Defaults to DefaultObserverBuffer.
	ObserverBuffer int
}

// Window is the bounded set of recently relevant fragments. Admission
// appends in call order; going over budget evicts the lowest-relevance
// unprotected item until the window fits again.
type Window struct {
	mu        sync.Mutex
	items     []*Item
	tokens    int
	maxTokens int
	maxItems  int
	seq       uint64
	querySim  map[string]float64

	source ContentSource
	logger *zap.Logger
	events chan Event
}

// New creates a context window.
func New(c Config) (*Window, error) {
	if c.Source == nil {
		return nil, fmt.Errorf("content source is required")
	}
	if c.MaxTokens <= 0 {
		return nil, fmt.Errorf("max tokens must be positive")
	}

	logger := c.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	buffer := c.ObserverBuffer
	if buffer <= 0 {
		buffer = DefaultObserverBuffer
	}

	return &Window{
		maxTokens: c.MaxTokens,
		maxItems:  c.MaxItems,
		querySim:  make(map[string]float64),
		source:    c.Source,
		logger:    logger,
		events:    make(chan Event, buffer),
	}, nil
}

// Events exposes the observer channel. Sends are non-blocking: an
// observer that falls behind misses events rather than stalling the window.
func (w *Window) Events() <-chan Event {
	return w.events
}

// Admit appends a fragment to the window and evicts until the token and
// item maxima hold again. User-marked items and the incoming item itself
// are never eviction candidates; when only protected items remain the
// window stays over budget and logs a warning.
func (w *Window) Admit(frag *fragment.Fragment, hash string) {
	w.mu.Lock()
	defer w.mu.Unlock()

	w.seq++
	item := &Item{
		Hash:        hash,
		ContentType: frag.ContentType,
		Tags:        frag.Tags,
		CreatedAt:   frag.CreatedAt,
		AdmittedAt:  time.Now().UTC(),
		TokenCount:  frag.TokenCount(),
		seq:         w.seq,
	}

	w.items = append(w.items, item)
	w.tokens += item.TokenCount
	w.emit(Event{Type: EventAdmitted, Hash: item.Hash, Tokens: item.TokenCount})

	w.logger.Debug("admitted window item",
		zap.String("hash", hash),
		zap.Int("tokens", item.TokenCount),
		zap.Int("window_tokens", w.tokens),
	)

	w.enforceLocked(item)
}

// Resize changes the token budget and evicts if the window no longer fits.
func (w *Window) Resize(maxTokens int) {
	if maxTokens <= 0 {
		return
	}

	w.mu.Lock()
	defer w.mu.Unlock()

	if maxTokens == w.maxTokens {
		return
	}

	w.logger.Debug("window resized",
		zap.Int("from", w.maxTokens),
		zap.Int("to", maxTokens),
	)
	w.maxTokens = maxTokens
	w.enforceLocked(nil)
}

// SetQuerySimilarities replaces the similarity scores used for the query
// term on subsequent scoring passes. Hashes absent from the map score zero.
func (w *Window) SetQuerySimilarities(sims map[string]float64) {
	w.mu.Lock()
	defer w.mu.Unlock()

	w.querySim = make(map[string]float64, len(sims))
	for hash, sim := range sims {
		w.querySim[hash] = sim
	}
}

// Remove drops every item backed by the given hash, returning how many
// items left the window.
func (w *Window) Remove(hash string) int {
	w.mu.Lock()
	defer w.mu.Unlock()

	removed := 0
	kept := w.items[:0]
	for _, item := range w.items {
		if item.Hash == hash {
			w.tokens -= item.TokenCount
			w.emit(Event{Type: EventEvicted, Hash: item.Hash, Tokens: item.TokenCount})
			removed++
			continue
		}
		kept = append(kept, item)
	}
	w.items = kept
	return removed
}

// Items returns a snapshot of the window in admission order.
func (w *Window) Items() []Item {
	w.mu.Lock()
	defer w.mu.Unlock()

	items := make([]Item, len(w.items))
	for i, item := range w.items {
		items[i] = *item
	}
	return items
}

// Len returns the current item count.
func (w *Window) Len() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return len(w.items)
}

// TokenCount returns the current total token count.
func (w *Window) TokenCount() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.tokens
}

// MaxTokens returns the current token budget.
func (w *Window) MaxTokens() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.maxTokens
}

// PromptContext renders the newest items that fit the token budget as one
// delimited text block, ordered oldest to newest. Truncation never splits
// an item. Items whose content can no longer be served are skipped.
func (w *Window) PromptContext(ctx context.Context, tokenBudget int) (string, error) {
	if tokenBudget <= 0 {
		return "", nil
	}

	w.mu.Lock()
	var chosen []*Item
	remaining := tokenBudget
	for i := len(w.items) - 1; i >= 0; i-- {
		item := w.items[i]
		if item.TokenCount > remaining {
			break
		}
		remaining -= item.TokenCount
		chosen = append(chosen, item)
	}
	w.mu.Unlock()

	// chosen is newest-first; render oldest to newest.
	var parts []string
	for i := len(chosen) - 1; i >= 0; i-- {
		item := chosen[i]
		content, err := w.source.Get(ctx, item.Hash)
		if err != nil {
			if ctx.Err() != nil {
				return "", ctx.Err()
			}
			w.logger.Warn("skipping unservable window item",
				zap.String("hash", item.Hash),
				zap.Error(err),
			)
			continue
		}
		parts = append(parts, string(content))
	}

	return strings.Join(parts, "\n\n"), nil
}

// enforceLocked evicts lowest-relevance items until the maxima hold.
// incoming, when non-nil, is the item whose admission triggered the pass
// and is itself protected from eviction.
func (w *Window) enforceLocked(incoming *Item) {
	now := time.Now().UTC()

	for w.overBudgetLocked() {
		victim := w.victimLocked(incoming, now)
		if victim < 0 {
			w.logger.Warn("window over budget with only protected items",
				zap.Int("tokens", w.tokens),
				zap.Int("max_tokens", w.maxTokens),
				zap.Int("items", len(w.items)),
			)
			return
		}

		item := w.items[victim]
		w.items = append(w.items[:victim], w.items[victim+1:]...)
		w.tokens -= item.TokenCount
		w.emit(Event{Type: EventEvicted, Hash: item.Hash, Tokens: item.TokenCount})

		w.logger.Debug("evicted window item",
			zap.String("hash", item.Hash),
			zap.Float64("relevance", item.Relevance),
			zap.Int("window_tokens", w.tokens),
		)
	}
}

func (w *Window) overBudgetLocked() bool {
	if w.maxTokens > 0 && w.tokens > w.maxTokens {
		return true
	}
	return w.maxItems > 0 && len(w.items) > w.maxItems
}

// victimLocked picks the lowest-relevance eviction candidate, breaking
// score ties toward the chronologically oldest item. Returns -1 when every
// item is protected.
func (w *Window) victimLocked(incoming *Item, now time.Time) int {
	victim := -1
	for i, item := range w.items {
		if item == incoming || item.HasTag(fragment.TagUserMarked) {
			continue
		}

		item.Relevance = Relevance(item.CreatedAt, now, item.Tags, item.ContentType, w.querySim[item.Hash])
		if victim < 0 {
			victim = i
			continue
		}

		current := w.items[victim]
		switch {
		case item.Relevance < current.Relevance:
			victim = i
		case item.Relevance == current.Relevance && item.CreatedAt.Before(current.CreatedAt):
			victim = i
		case item.Relevance == current.Relevance && item.CreatedAt.Equal(current.CreatedAt) && item.seq < current.seq:
			victim = i
		}
	}
	return victim
}

func (w *Window) emit(event Event) {
	select {
	case w.events <- event:
	default:
	}
}
