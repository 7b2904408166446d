// Package backfill fills the vector index with embeddings for entries
// stored while the index was unavailable: ingests with the vector store
// disabled, a freshly provisioned index, or an index file lost to disk.
package backfill

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/papercomputeco/engram/pkg/contentstore"
	"github.com/papercomputeco/engram/pkg/embeddings"
	"github.com/papercomputeco/engram/pkg/vector"
)

// DefaultProbeBatch caps how many hashes are checked against the index
// per lookup.
const DefaultProbeBatch = 256

// Options configures backfill behavior.
type Options struct {
	// DryRun reports what would be embedded without touching the index.
	DryRun bool

	// ProbeBatch overrides the index lookup batch size.
	ProbeBatch int

	// Logger receives per-entry progress at debug level.
	Logger *zap.Logger
}

// Backfiller walks the content store and indexes entries the vector
// index does not know about yet. Indexed documents match what the
// embedding workers produce, so retrieval cannot tell them apart.
type Backfiller struct {
	store      *contentstore.Store
	vectors    vector.Driver
	embedder   embeddings.Embedder
	dryRun     bool
	probeBatch int
	logger     *zap.Logger
}

// NewBackfiller creates a Backfiller over an open store, index, and
// embedder. The caller keeps ownership of all three. A dry run works
// without an embedder.
func NewBackfiller(store *contentstore.Store, vectors vector.Driver, embedder embeddings.Embedder, opts Options) (*Backfiller, error) {
	if store == nil {
		return nil, errors.New("content store is required")
	}
	if vectors == nil {
		return nil, errors.New("vector driver is required")
	}
	if embedder == nil && !opts.DryRun {
		return nil, errors.New("embedder is required")
	}

	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	probeBatch := opts.ProbeBatch
	if probeBatch <= 0 {
		probeBatch = DefaultProbeBatch
	}

	return &Backfiller{
		store:      store,
		vectors:    vectors,
		embedder:   embedder,
		dryRun:     opts.DryRun,
		probeBatch: probeBatch,
		logger:     logger,
	}, nil
}

// Run scans every stored entry and embeds the ones missing from the
// index. Cancellation stops between entries; work already indexed stays.
func (b *Backfiller) Run(ctx context.Context) (*Result, error) {
	start := time.Now()
	result := &Result{}

	entries, err := b.store.List(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list entries: %w", err)
	}
	result.Scanned = len(entries)

	missing, err := b.missingEntries(ctx, entries, result)
	if err != nil {
		return nil, err
	}

	for _, entry := range missing {
		if ctx.Err() != nil {
			result.Cancelled = true
			break
		}

		content, err := b.store.Get(ctx, entry.Hash)
		if err != nil {
			result.Failed++
			b.logger.Warn("could not reconstruct entry",
				zap.String("hash", entry.Hash),
				zap.Error(err),
			)
			continue
		}
		if len(content) == 0 {
			result.Skipped++
			continue
		}

		if b.dryRun {
			result.Embedded++
			b.logger.Debug("would embed entry", zap.String("hash", entry.Hash))
			continue
		}

		embedding, err := b.embedder.Embed(ctx, string(content))
		if err != nil {
			if ctx.Err() != nil {
				result.Cancelled = true
				break
			}
			result.Failed++
			b.logger.Warn("failed to generate embedding",
				zap.String("hash", entry.Hash),
				zap.Error(err),
			)
			continue
		}

		doc := vector.Document{
			ID:        entry.Hash,
			Hash:      entry.Hash,
			Embedding: embedding,
		}
		if err := b.vectors.Add(ctx, []vector.Document{doc}); err != nil {
			result.Failed++
			b.logger.Warn("failed to store embedding",
				zap.String("hash", entry.Hash),
				zap.Error(err),
			)
			continue
		}

		result.Embedded++
		b.logger.Debug("backfilled embedding",
			zap.String("hash", entry.Hash),
			zap.Int("embedding_dim", len(embedding)),
		)
	}

	result.Duration = time.Since(start)

	b.logger.Info("backfill complete",
		zap.Int("scanned", result.Scanned),
		zap.Int("already_indexed", result.Indexed),
		zap.Int("embedded", result.Embedded),
		zap.Int("skipped", result.Skipped),
		zap.Int("failed", result.Failed),
		zap.Bool("dry_run", b.dryRun),
		zap.Bool("cancelled", result.Cancelled),
	)

	return result, nil
}

// missingEntries partitions entries by index membership, probing the
// index in batches. Quarantined entries are never candidates.
func (b *Backfiller) missingEntries(ctx context.Context, entries []*contentstore.Entry, result *Result) ([]*contentstore.Entry, error) {
	candidates := make([]*contentstore.Entry, 0, len(entries))
	for _, e := range entries {
		if e.Quarantined {
			result.Skipped++
			continue
		}
		candidates = append(candidates, e)
	}

	var missing []*contentstore.Entry
	for start := 0; start < len(candidates); start += b.probeBatch {
		end := min(start+b.probeBatch, len(candidates))
		batch := candidates[start:end]

		ids := make([]string, 0, len(batch))
		for _, e := range batch {
			ids = append(ids, e.Hash)
		}

		docs, err := b.vectors.Get(ctx, ids)
		if err != nil {
			return nil, fmt.Errorf("failed to probe index: %w", err)
		}

		have := make(map[string]bool, len(docs))
		for _, doc := range docs {
			have[doc.ID] = true
		}

		for _, e := range batch {
			if have[e.Hash] {
				result.Indexed++
				continue
			}
			missing = append(missing, e)
		}
	}

	return missing, nil
}
