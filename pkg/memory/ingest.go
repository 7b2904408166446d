package memory

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/papercomputeco/engram/pkg/contentstore"
	"github.com/papercomputeco/engram/pkg/eventstream"
	"github.com/papercomputeco/engram/pkg/fragment"
	"github.com/papercomputeco/engram/pkg/window"
	"github.com/papercomputeco/engram/pkg/worker"
)

// Ingest persists a fragment and admits it into the context window.
// Identical content deduplicates in the store; the returned hash addresses
// the stored entry either way. Embedding generation happens asynchronously
// and a fragment.stored event is published on a best-effort basis.
func (e *Engine) Ingest(ctx context.Context, frag *fragment.Fragment) (string, error) {
	if frag == nil {
		return "", ErrNilFragment
	}

	hash, isNew, err := e.store.Store(ctx, frag)
	if err != nil {
		return "", fmt.Errorf("failed to store fragment: %w", err)
	}

	e.window.Admit(frag, hash)
	e.resizeAfterIngest(frag)

	if isNew && e.pool != nil {
		e.pool.Enqueue(worker.Job{
			Hash: hash,
			Text: string(frag.Normalized()),
		})
	}

	e.publishStored(ctx, frag, hash, isNew)

	e.logger.Debug("fragment ingested",
		zap.String("hash", hash),
		zap.String("content_type", string(frag.ContentType)),
		zap.Bool("deduplicated", !isNew),
	)

	return hash, nil
}

// Get retrieves the stored bytes for a hash.
func (e *Engine) Get(ctx context.Context, hash string) ([]byte, error) {
	return e.store.Get(ctx, hash)
}

// Entry retrieves the stored entry metadata for a hash.
func (e *Engine) Entry(ctx context.Context, hash string) (*contentstore.Entry, error) {
	return e.store.Entry(ctx, hash)
}

// Restore re-admits previously stored entries into the context window in
// the order given, deduplicating repeated hashes. Content is reconstructed
// from the store and nothing is re-stored, so reference counts are
// untouched. Hashes that cannot be loaded are skipped. Returns how many
// entries were admitted.
func (e *Engine) Restore(ctx context.Context, hashes []string) int {
	restored := 0
	seen := make(map[string]struct{}, len(hashes))

	for _, hash := range hashes {
		if _, ok := seen[hash]; ok {
			continue
		}
		seen[hash] = struct{}{}

		entry, err := e.store.Entry(ctx, hash)
		if err != nil {
			e.logger.Debug("skipping restore, entry unavailable",
				zap.String("hash", hash),
				zap.Error(err),
			)
			continue
		}

		content, err := e.store.Get(ctx, hash)
		if err != nil {
			e.logger.Debug("skipping restore, content unreadable",
				zap.String("hash", hash),
				zap.Error(err),
			)
			continue
		}

		frag := fragment.New(content, entry.ContentType, fragment.Meta{
			CreatedAt: entry.CreatedAt,
			Tags:      entry.Tags,
		})
		e.window.Admit(frag, hash)
		restored++
	}

	if restored > 0 {
		e.logger.Info("window restored", zap.Int("entries", restored))
	}

	return restored
}

// Release drops one reference to the entry and removes it from the context
// window. The bytes stay in the store until the garbage collector's grace
// period has passed.
func (e *Engine) Release(ctx context.Context, hash string) error {
	entry, err := e.store.Entry(ctx, hash)
	if err != nil {
		return err
	}

	if err := e.store.Release(ctx, hash); err != nil {
		return err
	}

	e.window.Remove(hash)

	event := eventstream.NewEntryDeletedEvent(e.config.Source, eventstream.DeletionMeta{
		Hash:          hash,
		Tier:          string(entry.Tier),
		RemainingRefs: entry.ReferenceCount - 1,
	})
	if err := e.publisher.PublishEntryDeleted(ctx, event); err != nil {
		e.logger.Warn("failed to publish deletion event",
			zap.String("hash", hash),
			zap.Error(err),
		)
	}

	return nil
}

// resizeAfterIngest feeds the sizer and applies the recommended budget.
func (e *Engine) resizeAfterIngest(frag *fragment.Fragment) {
	e.mu.Lock()
	e.recent = append(e.recent, frag)
	if len(e.recent) > recentLimit {
		e.recent = e.recent[len(e.recent)-recentLimit:]
	}

	recommended := window.RecommendBudget(e.recent, e.config.MaxWindowTokens, e.config.TaskMultiplier, e.prevBudget)
	changed := recommended != e.prevBudget
	e.prevBudget = recommended
	e.mu.Unlock()

	if changed {
		e.window.Resize(recommended)
	}
}

func (e *Engine) publishStored(ctx context.Context, frag *fragment.Fragment, hash string, isNew bool) {
	meta := eventstream.FragmentMeta{
		Hash:         hash,
		ContentType:  string(frag.ContentType),
		Tags:         tagStrings(frag.Tags),
		TokenCount:   frag.TokenCount(),
		Tier:         string(contentstore.TierHot),
		Deduplicated: !isNew,
	}

	if entry, err := e.store.Entry(ctx, hash); err == nil {
		meta.Tier = string(entry.Tier)
		meta.RefCount = entry.ReferenceCount
	}

	event := eventstream.NewFragmentStoredEvent(e.config.Source, meta)
	if err := e.publisher.PublishFragmentStored(ctx, event); err != nil {
		e.logger.Warn("failed to publish stored event",
			zap.String("hash", hash),
			zap.Error(err),
		)
	}
}

func tagStrings(tags []fragment.Tag) []string {
	if len(tags) == 0 {
		return nil
	}

	out := make([]string, len(tags))
	for i, tag := range tags {
		out[i] = string(tag)
	}
	return out
}
