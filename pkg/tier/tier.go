// Package tier migrates stored entries between the hot, warm, and cold
// tiers and garbage-collects entries whose references have expired.
package tier

import (
	"context"
	"fmt"
	"sort"
	"time"

	"go.uber.org/zap"

	"github.com/papercomputeco/engram/pkg/contentstore"
	"github.com/papercomputeco/engram/pkg/embeddings"
	"github.com/papercomputeco/engram/pkg/fragment"
	"github.com/papercomputeco/engram/pkg/vector"
)

const (
	// DefaultHotMaxAge is how long an entry stays hot before aging to warm.
	DefaultHotMaxAge = 7 * 24 * time.Hour

	// DefaultWarmMaxAge is how long an entry stays warm before aging to cold.
	DefaultWarmMaxAge = 30 * 24 * time.Hour

	// DefaultGracePeriod is how long a fully released entry survives
	// before garbage collection may delete it.
	DefaultGracePeriod = 7 * 24 * time.Hour

	// DefaultMinDailyEntries is how many entries per calendar day are
	// preserved from age-based migration.
	DefaultMinDailyEntries = 1
)

// Config holds construction parameters for the Manager.
type Config struct {
	// Store is the content store whose entries are managed. Required.
	Store *contentstore.Store

	// Vectors receives re-indexed embeddings on warm to cold migration
	// and document deletions on garbage collection. Optional.
	Vectors vector.Driver

	// Embedder generates embeddings for re-indexing. Optional; without
	// it cold entries keep whatever index document they already have.
	Embedder embeddings.Embedder

	// Logger receives migration logs. Defaults to a nop logger.
	Logger *zap.Logger

	// HotMaxAge is the age past which unprotected hot entries migrate
	// to warm. Defaults to DefaultHotMaxAge.
	HotMaxAge time.Duration

	// WarmMaxAge is the age past which unprotected warm entries migrate
	// to cold. Defaults to DefaultWarmMaxAge.
	WarmMaxAge time.Duration

	// HotMaxBytes caps the hot tier's stored size. Zero means no cap.
	HotMaxBytes int64

	// WarmMaxBytes caps the warm tier's stored size. Zero means no cap.
	WarmMaxBytes int64

	// GracePeriod is how long a released entry survives before deletion.
	// Defaults to DefaultGracePeriod.
	GracePeriod time.Duration

	// MinDailyEntries is how many entries per UTC calendar day are
	// preserved from age-based migration. Defaults to DefaultMinDailyEntries.
	MinDailyEntries int
}

// Manager runs migration cycles against a content store.
type Manager struct {
	store    *contentstore.Store
	vectors  vector.Driver
	embedder embeddings.Embedder
	logger   *zap.Logger

	hotMaxAge       time.Duration
	warmMaxAge      time.Duration
	hotMaxBytes     int64
	warmMaxBytes    int64
	gracePeriod     time.Duration
	minDailyEntries int
}

// NewManager creates a tier manager.
func NewManager(c Config) (*Manager, error) {
	if c.Store == nil {
		return nil, fmt.Errorf("content store is required")
	}

	logger := c.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	hotMaxAge := c.HotMaxAge
	if hotMaxAge <= 0 {
		hotMaxAge = DefaultHotMaxAge
	}

	warmMaxAge := c.WarmMaxAge
	if warmMaxAge <= 0 {
		warmMaxAge = DefaultWarmMaxAge
	}

	gracePeriod := c.GracePeriod
	if gracePeriod <= 0 {
		gracePeriod = DefaultGracePeriod
	}

	minDaily := c.MinDailyEntries
	if minDaily <= 0 {
		minDaily = DefaultMinDailyEntries
	}

	return &Manager{
		store:           c.Store,
		vectors:         c.Vectors,
		embedder:        c.Embedder,
		logger:          logger,
		hotMaxAge:       hotMaxAge,
		warmMaxAge:      warmMaxAge,
		hotMaxBytes:     c.HotMaxBytes,
		warmMaxBytes:    c.WarmMaxBytes,
		gracePeriod:     gracePeriod,
		minDailyEntries: minDaily,
	}, nil
}

// RunMigrationCycle evaluates every stored entry against the tier policy
// and applies age migrations, size-cap evictions, and garbage collection.
// The cycle is cancellable between entries; a cancelled cycle returns the
// partial stats it accumulated with Cancelled set.
func (m *Manager) RunMigrationCycle(ctx context.Context) (*MigrationStats, error) {
	start := time.Now()
	now := start.UTC()
	stats := &MigrationStats{}

	entries, err := m.store.List(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list entries: %w", err)
	}

	preserved := m.dailyPreserved(entries)

	// Tier membership is snapshotted here so an entry moves at most one
	// tier per cycle.
	var hot, warm []*contentstore.Entry
	for _, e := range entries {
		if e.Quarantined {
			continue
		}
		switch e.Tier {
		case contentstore.TierHot:
			hot = append(hot, e)
		case contentstore.TierWarm:
			warm = append(warm, e)
		}
	}

	cancelled := m.agePass(ctx, hot, now, m.hotMaxAge, contentstore.TierWarm, preserved, stats)
	if !cancelled {
		cancelled = m.sizePass(ctx, hot, m.hotMaxBytes, contentstore.TierHot, contentstore.TierWarm, stats)
	}
	if !cancelled {
		cancelled = m.agePass(ctx, warm, now, m.warmMaxAge, contentstore.TierCold, preserved, stats)
	}
	if !cancelled {
		cancelled = m.sizePass(ctx, warm, m.warmMaxBytes, contentstore.TierWarm, contentstore.TierCold, stats)
	}
	if !cancelled {
		cancelled = m.gcPass(ctx, entries, now, stats)
	}
	stats.Cancelled = cancelled

	stats.Duration = time.Since(start)

	m.logger.Info("migration cycle complete",
		zap.Int("hot_to_warm", stats.HotToWarm),
		zap.Int("warm_to_cold", stats.WarmToCold),
		zap.Int("reindexed", stats.Reindexed),
		zap.Int("deleted", stats.Deleted),
		zap.Int64("bytes_reclaimed", stats.BytesReclaimed),
		zap.Duration("duration", stats.Duration),
		zap.Bool("cancelled", stats.Cancelled),
	)

	return stats, nil
}

// agePass migrates entries older than maxAge to the target tier unless a
// preservation rule protects them. Returns true when cancelled.
func (m *Manager) agePass(ctx context.Context, entries []*contentstore.Entry, now time.Time, maxAge time.Duration, target contentstore.Tier, preserved map[string]bool, stats *MigrationStats) bool {
	for _, e := range entries {
		if ctx.Err() != nil {
			return true
		}
		if e.Tier == target {
			continue
		}
		if e.Age(now) <= maxAge {
			continue
		}
		if e.HasTag(fragment.TagUserMarked) || preserved[e.Hash] {
			continue
		}
		m.migrate(ctx, e, target, stats)
	}
	return false
}

// sizePass evicts oldest-accessed entries to the target tier while the
// source tier exceeds its byte cap, skipping user-marked entries until no
// unprotected candidates remain. Returns true when cancelled.
func (m *Manager) sizePass(ctx context.Context, entries []*contentstore.Entry, maxBytes int64, source, target contentstore.Tier, stats *MigrationStats) bool {
	if maxBytes <= 0 {
		return false
	}

	size, err := m.store.SizeOfTier(ctx, source)
	if err != nil {
		m.logger.Warn("failed to size tier",
			zap.String("tier", string(source)),
			zap.Error(err),
		)
		return false
	}
	if size <= maxBytes {
		return false
	}

	candidates := make([]*contentstore.Entry, 0, len(entries))
	for _, e := range entries {
		if e.Tier != source || e.HasTag(fragment.TagUserMarked) {
			continue
		}
		candidates = append(candidates, e)
	}
	sort.Slice(candidates, func(i, j int) bool {
		return candidates[i].LastAccessed.Before(candidates[j].LastAccessed)
	})

	for _, e := range candidates {
		if size <= maxBytes {
			return false
		}
		if ctx.Err() != nil {
			return true
		}
		freed := int64(len(e.Payload))
		if m.migrate(ctx, e, target, stats) {
			size -= freed
		}
	}

	if size > maxBytes {
		m.logger.Warn("tier over size cap with only protected entries remaining",
			zap.String("tier", string(source)),
			zap.Int64("size", size),
			zap.Int64("cap", maxBytes),
		)
	}
	return false
}

// migrate moves one entry to the target tier, re-indexing its embedding
// when it lands cold. Reports whether the move happened.
func (m *Manager) migrate(ctx context.Context, e *contentstore.Entry, target contentstore.Tier, stats *MigrationStats) bool {
	before := int64(len(e.Payload))

	if err := m.store.SetTier(ctx, e.Hash, target); err != nil {
		m.logger.Warn("failed to migrate entry",
			zap.String("hash", e.Hash),
			zap.String("target", string(target)),
			zap.Error(err),
		)
		return false
	}
	e.Tier = target

	switch target {
	case contentstore.TierWarm:
		stats.HotToWarm++
	case contentstore.TierCold:
		stats.WarmToCold++
	}

	if migrated, err := m.store.Entry(ctx, e.Hash); err == nil {
		if saved := before - int64(len(migrated.Payload)); saved > 0 {
			stats.BytesReclaimed += saved
		}
	}

	if target == contentstore.TierCold {
		m.reindex(ctx, e.Hash, stats)
	}
	return true
}

// reindex refreshes the vector document for a cold entry so it stays
// searchable. Failures are logged and skipped, never fatal to the cycle.
func (m *Manager) reindex(ctx context.Context, hash string, stats *MigrationStats) {
	if m.vectors == nil || m.embedder == nil {
		return
	}

	content, err := m.store.Get(ctx, hash)
	if err != nil {
		m.logger.Warn("failed to read entry for re-indexing",
			zap.String("hash", hash),
			zap.Error(err),
		)
		return
	}

	embedding, err := m.embedder.Embed(ctx, string(content))
	if err != nil {
		m.logger.Warn("failed to embed entry for re-indexing",
			zap.String("hash", hash),
			zap.Error(err),
		)
		return
	}

	if err := m.vectors.Add(ctx, []vector.Document{{
		ID:        hash,
		Hash:      hash,
		Embedding: embedding,
	}}); err != nil {
		m.logger.Warn("failed to re-index entry",
			zap.String("hash", hash),
			zap.Error(err),
		)
		return
	}

	stats.Reindexed++
}

// gcPass deletes entries whose reference count dropped to zero more than
// a grace period ago. Returns true when cancelled.
func (m *Manager) gcPass(ctx context.Context, entries []*contentstore.Entry, now time.Time, stats *MigrationStats) bool {
	for _, e := range entries {
		if ctx.Err() != nil {
			return true
		}
		if e.ReferenceCount != 0 || e.ReleasedAt == nil {
			continue
		}
		if now.Sub(*e.ReleasedAt) <= m.gracePeriod {
			continue
		}

		freed := int64(len(e.Payload))
		if err := m.store.Remove(ctx, e.Hash); err != nil {
			m.logger.Warn("failed to garbage-collect entry",
				zap.String("hash", e.Hash),
				zap.Error(err),
			)
			continue
		}

		if m.vectors != nil {
			if err := m.vectors.Delete(ctx, []string{e.Hash}); err != nil {
				m.logger.Warn("failed to delete vector document",
					zap.String("hash", e.Hash),
					zap.Error(err),
				)
			}
		}

		stats.Deleted++
		stats.BytesReclaimed += freed

		m.logger.Debug("entry garbage-collected",
			zap.String("hash", e.Hash),
			zap.Int64("bytes", freed),
		)
	}
	return false
}

// dailyPreserved returns the hashes exempt from age-based migration: the
// first MinDailyEntries entries of each UTC calendar day.
func (m *Manager) dailyPreserved(entries []*contentstore.Entry) map[string]bool {
	byDay := make(map[string][]*contentstore.Entry)
	for _, e := range entries {
		day := e.CreatedAt.UTC().Format("2006-01-02")
		byDay[day] = append(byDay[day], e)
	}

	preserved := make(map[string]bool)
	for _, day := range byDay {
		sort.Slice(day, func(i, j int) bool {
			if day[i].CreatedAt.Equal(day[j].CreatedAt) {
				return day[i].Hash < day[j].Hash
			}
			return day[i].CreatedAt.Before(day[j].CreatedAt)
		})
		for i := 0; i < m.minDailyEntries && i < len(day); i++ {
			preserved[day[i].Hash] = true
		}
	}
	return preserved
}
