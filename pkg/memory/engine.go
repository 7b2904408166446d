// Package memory provides the working-memory engine for a conversational agent.
//
// The [Engine] is the single entry point external collaborators call. Ingested
// fragments flow through the content store (dedup + persist) into the context
// window, with embedding generation deferred to a background worker pool. On a
// query the engine merges the window's recent items with historical snippets
// retrieved from the embedding index, under one token budget.
//
// Tier migration and garbage collection run on a background ticker started by
// StartMigrations, never on the ingest path.
package memory

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/papercomputeco/engram/pkg/contentstore"
	"github.com/papercomputeco/engram/pkg/embeddings"
	"github.com/papercomputeco/engram/pkg/eventstream"
	"github.com/papercomputeco/engram/pkg/eventstream/nop"
	"github.com/papercomputeco/engram/pkg/fragment"
	"github.com/papercomputeco/engram/pkg/tier"
	"github.com/papercomputeco/engram/pkg/vector"
	"github.com/papercomputeco/engram/pkg/window"
	"github.com/papercomputeco/engram/pkg/worker"
)

const (
	// DefaultMaxWindowTokens is the base token budget for the context window.
	DefaultMaxWindowTokens = 8192

	// DefaultMinSimilarity is the floor below which historical results are
	// dropped from assembled context.
	DefaultMinSimilarity = 0.3

	// DefaultRetrievalTimeout bounds the index query during context assembly.
	DefaultRetrievalTimeout = 100 * time.Millisecond

	// DefaultRetrievalTopK is the number of candidates requested per query.
	DefaultRetrievalTopK = 16

	// recentLimit is how many ingested fragments feed the window sizer.
	recentLimit = 10
)

// Config is the engine configuration. All collaborators are injected here.
type Config struct {
	// Store is the content-addressed store backing the engine.
	Store *contentstore.Store

	// Vectors is an optional vector index enabling historical retrieval.
	// If nil, context assembly is recent-only.
	Vectors vector.Driver

	// Embedder generates query and fragment embeddings.
	// Required if Vectors is set.
	Embedder embeddings.Embedder

	// Publisher receives memory lifecycle events (defaults to the nop publisher).
	Publisher eventstream.Publisher

	// Source identifies this engine instance in emitted events.
	Source eventstream.EventSource

	// Logger is the provided zap logger
	Logger *zap.Logger

	// MaxWindowTokens is the base token budget for the context window
	// (defaults to 8192). The sizer floats the live budget between half
	// and four times this value.
	MaxWindowTokens int

	// MaxWindowItems caps the number of window items (0 = unlimited).
	MaxWindowItems int

	// TaskMultiplier scales the sizer's recommended budget (defaults to 1).
	TaskMultiplier float64

	// MinSimilarity filters historical results below this score
	// (defaults to 0.3).
	MinSimilarity float64

	// RetrievalTimeout bounds index queries during context assembly
	// (defaults to 100ms).
	RetrievalTimeout time.Duration

	// NumWorkers is the number of embedding workers (0 takes the pool default).
	NumWorkers uint

	// QueueSize is the embedding job queue capacity (0 takes the pool default).
	QueueSize uint

	// HotMaxAge, WarmMaxAge, HotMaxBytes, WarmMaxBytes, GracePeriod and
	// MinDailyEntries tune the tier manager (zero values take its defaults).
	HotMaxAge       time.Duration
	WarmMaxAge      time.Duration
	HotMaxBytes     int64
	WarmMaxBytes    int64
	GracePeriod     time.Duration
	MinDailyEntries int
}

// Engine is the working-memory facade. It owns the context window, the
// embedding worker pool and the migration loop; the store, index, embedder
// and publisher are injected and closed by the caller.
type Engine struct {
	config    Config
	store     *contentstore.Store
	vectors   vector.Driver
	embedder  embeddings.Embedder
	window    *window.Window
	tiers     *tier.Manager
	pool      *worker.Pool
	publisher eventstream.Publisher
	logger    *zap.Logger

	runCtx context.Context
	cancel context.CancelFunc
	bg     sync.WaitGroup

	mu         sync.Mutex
	recent     []*fragment.Fragment
	prevBudget int
}

// New creates a new Engine from the given configuration.
func New(c Config) (*Engine, error) {
	if c.Store == nil {
		return nil, fmt.Errorf("content store is required")
	}
	if c.Vectors != nil && c.Embedder == nil {
		return nil, fmt.Errorf("embedder is required when a vector driver is configured")
	}

	logger := c.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	publisher := c.Publisher
	if publisher == nil {
		publisher = nop.NewPublisher()
	}

	if c.MaxWindowTokens <= 0 {
		c.MaxWindowTokens = DefaultMaxWindowTokens
	}
	if c.MinSimilarity <= 0 {
		c.MinSimilarity = DefaultMinSimilarity
	}
	if c.RetrievalTimeout <= 0 {
		c.RetrievalTimeout = DefaultRetrievalTimeout
	}

	win, err := window.New(window.Config{
		MaxTokens: c.MaxWindowTokens,
		MaxItems:  c.MaxWindowItems,
		Source:    c.Store,
		Logger:    logger,
	})
	if err != nil {
		return nil, fmt.Errorf("could not create context window: %w", err)
	}

	tiers, err := tier.NewManager(tier.Config{
		Store:           c.Store,
		Vectors:         c.Vectors,
		Embedder:        c.Embedder,
		Logger:          logger,
		HotMaxAge:       c.HotMaxAge,
		WarmMaxAge:      c.WarmMaxAge,
		HotMaxBytes:     c.HotMaxBytes,
		WarmMaxBytes:    c.WarmMaxBytes,
		GracePeriod:     c.GracePeriod,
		MinDailyEntries: c.MinDailyEntries,
	})
	if err != nil {
		return nil, fmt.Errorf("could not create tier manager: %w", err)
	}

	var pool *worker.Pool
	if c.Vectors != nil && c.Embedder != nil {
		pool, err = worker.NewPool(&worker.Config{
			Vectors:    c.Vectors,
			Embedder:   c.Embedder,
			NumWorkers: c.NumWorkers,
			QueueSize:  c.QueueSize,
			Logger:     logger,
		})
		if err != nil {
			return nil, fmt.Errorf("could not create worker pool: %w", err)
		}
	}

	runCtx, cancel := context.WithCancel(context.Background())

	return &Engine{
		config:     c,
		store:      c.Store,
		vectors:    c.Vectors,
		embedder:   c.Embedder,
		window:     win,
		tiers:      tiers,
		pool:       pool,
		publisher:  publisher,
		logger:     logger,
		runCtx:     runCtx,
		cancel:     cancel,
		prevBudget: c.MaxWindowTokens,
	}, nil
}

// StartMigrations launches the background migration loop. Each tick runs one
// migration cycle; cycles that moved or deleted entries publish a
// tier.migrated event.
func (e *Engine) StartMigrations(interval time.Duration) {
	if interval <= 0 {
		return
	}

	e.bg.Add(1)
	go func() {
		defer e.bg.Done()

		ticker := time.NewTicker(interval)
		defer ticker.Stop()

		for {
			select {
			case <-e.runCtx.Done():
				return
			case <-ticker.C:
				stats, err := e.tiers.RunMigrationCycle(e.runCtx)
				if err != nil {
					e.logger.Warn("migration cycle failed", zap.Error(err))
					continue
				}

				e.publishMigration(stats)
			}
		}
	}()

	e.logger.Info("migration loop started", zap.Duration("interval", interval))
}

// MigrateNow runs a single migration cycle synchronously.
func (e *Engine) MigrateNow(ctx context.Context) (*tier.MigrationStats, error) {
	stats, err := e.tiers.RunMigrationCycle(ctx)
	if err != nil {
		return nil, err
	}

	e.publishMigration(stats)
	return stats, nil
}

func (e *Engine) publishMigration(stats *tier.MigrationStats) {
	if stats == nil {
		return
	}
	if stats.HotToWarm == 0 && stats.WarmToCold == 0 && stats.Deleted == 0 {
		return
	}

	event := eventstream.NewTierMigratedEvent(e.config.Source, eventstream.MigrationMeta{
		HotToWarm:      stats.HotToWarm,
		WarmToCold:     stats.WarmToCold,
		Reindexed:      stats.Reindexed,
		Deleted:        stats.Deleted,
		BytesReclaimed: stats.BytesReclaimed,
		DurationMs:     stats.Duration.Milliseconds(),
	})

	if err := e.publisher.PublishTierMigrated(e.runCtx, event); err != nil {
		e.logger.Warn("failed to publish migration event", zap.Error(err))
	}
}

// SetBaseBudget rebases the window's token budget at runtime, typically on
// a configuration reload. The sizer keeps floating the live budget around
// the new base on subsequent ingests.
func (e *Engine) SetBaseBudget(tokens int) {
	if tokens <= 0 {
		return
	}

	e.mu.Lock()
	e.config.MaxWindowTokens = tokens
	e.prevBudget = tokens
	e.mu.Unlock()

	e.window.Resize(tokens)
	e.logger.Info("window budget rebased", zap.Int("max_tokens", tokens))
}

// WindowEvents exposes the context window's admission/eviction event channel.
func (e *Engine) WindowEvents() <-chan window.Event {
	return e.window.Events()
}

// WindowHashes returns the store hashes of the current window items in
// admission order. Together with Restore it lets a session survive restarts.
func (e *Engine) WindowHashes() []string {
	items := e.window.Items()
	hashes := make([]string, 0, len(items))
	for _, item := range items {
		hashes = append(hashes, item.Hash)
	}
	return hashes
}

// Close stops the migration loop, drains the embedding worker pool and
// closes the publisher. The injected store, index and embedder stay open
// for the caller to close.
func (e *Engine) Close() error {
	e.cancel()
	e.bg.Wait()

	if e.pool != nil {
		e.pool.Close()
	}

	return e.publisher.Close()
}
