package contentstore

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/papercomputeco/engram/pkg/diff"
	"github.com/papercomputeco/engram/pkg/fragment"
)

const (
	// DefaultCompressionThreshold skips compression at store time when
	// the compressed-to-original ratio comes in at or above it.
	DefaultCompressionThreshold = 0.8

	// maxDeltaChain bounds how many delta hops a snapshot lineage may
	// accumulate before the next version is stored in full.
	maxDeltaChain = 8
)

// Config carries the dependencies for a Store.
type Config struct {
	Driver Driver
	Logger *zap.Logger

	// CompressionThreshold overrides DefaultCompressionThreshold when
	// set to a value in (0, 1].
	CompressionThreshold float64
}

// Store is the content-addressed entry store. It normalizes and hashes
// fragments, deduplicates by hash with reference counting, compresses
// payloads per tier, and verifies integrity on every read.
type Store struct {
	driver    Driver
	logger    *zap.Logger
	codec     *codec
	locks     *keyedMutex
	threshold float64
}

// New creates a Store on top of the given driver.
func New(cfg Config) (*Store, error) {
	if cfg.Driver == nil {
		return nil, errors.New("contentstore: driver is required")
	}

	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	threshold := cfg.CompressionThreshold
	if threshold <= 0 || threshold > 1 {
		threshold = DefaultCompressionThreshold
	}

	c, err := newCodec()
	if err != nil {
		return nil, err
	}

	return &Store{
		driver:    cfg.Driver,
		logger:    logger,
		codec:     c,
		locks:     newKeyedMutex(),
		threshold: threshold,
	}, nil
}

// Store persists a fragment's normalized content and returns its hash.
// Identical content is stored once; repeat stores only bump the reference
// count. The second return reports whether a new entry was created.
func (s *Store) Store(ctx context.Context, frag *fragment.Fragment) (string, bool, error) {
	if frag == nil {
		return "", false, errors.New("contentstore: nil fragment")
	}

	normalized := frag.Normalized()
	hash := fragment.HashContent(normalized)

	unlock := s.locks.lock(hash)
	defer unlock()

	return s.storeLocked(ctx, frag, normalized, hash)
}

// StoreVersion persists a fragment that supersedes a prior snapshot. When
// both contents are structured and the structural delta is smaller than
// the full content, only the delta is stored, pinned to the base entry.
// Otherwise it behaves exactly like Store.
func (s *Store) StoreVersion(ctx context.Context, frag *fragment.Fragment, prev *fragment.Reference) (string, bool, error) {
	if frag == nil {
		return "", false, errors.New("contentstore: nil fragment")
	}
	if prev == nil || prev.ContentHash == "" {
		return s.Store(ctx, frag)
	}

	normalized := frag.Normalized()
	hash := fragment.HashContent(normalized)
	if hash == prev.ContentHash {
		return s.Store(ctx, frag)
	}

	baseBytes, err := s.Get(ctx, prev.ContentHash)
	if err != nil {
		s.logger.Warn("base snapshot unavailable, storing full content",
			zap.String("base", prev.ContentHash),
			zap.Error(err))
		return s.Store(ctx, frag)
	}

	delta, err := diff.Diff(baseBytes, normalized)
	if err != nil {
		return s.Store(ctx, frag)
	}

	deltaBytes, err := delta.Marshal()
	if err != nil {
		return "", false, fmt.Errorf("encoding delta: %w", err)
	}
	if len(deltaBytes) >= len(normalized) {
		return s.Store(ctx, frag)
	}

	depth, err := s.chainDepth(ctx, prev.ContentHash)
	if err != nil || depth >= maxDeltaChain {
		return s.Store(ctx, frag)
	}

	unlock := s.locks.lock(hash)
	defer unlock()

	existing, err := s.driver.Get(ctx, hash)
	if err != nil && !IsNotFound(err) {
		return "", false, fmt.Errorf("checking for existing entry: %w", err)
	}
	if existing != nil {
		if existing.Quarantined {
			return s.storeLocked(ctx, frag, normalized, hash)
		}
		if _, err := s.driver.AdjustRefCount(ctx, hash, 1, time.Now().UTC()); err != nil {
			return "", false, fmt.Errorf("adding reference to %s: %w", hash, err)
		}
		return hash, false, nil
	}

	now := time.Now().UTC()
	payload, compression, err := s.encodePayload(deltaBytes, TierHot, s.threshold)
	if err != nil {
		return "", false, err
	}

	base := prev.ContentHash
	entry := &Entry{
		Hash:           hash,
		Payload:        payload,
		OriginalSize:   int64(len(normalized)),
		Compression:    compression,
		Tier:           TierHot,
		BaseHash:       &base,
		ReferenceCount: 1,
		ContentType:    frag.ContentType,
		Tags:           frag.Tags,
		CreatedAt:      now,
		LastAccessed:   now,
	}

	isNew, err := s.driver.Put(ctx, entry)
	if err != nil {
		return "", false, fmt.Errorf("storing delta entry: %w", err)
	}
	if isNew {
		if err := s.AddReference(ctx, base); err != nil {
			s.logger.Warn("pinning delta base",
				zap.String("hash", hash),
				zap.String("base", base),
				zap.Error(err))
		}
		s.logger.Debug("stored delta entry",
			zap.String("hash", hash),
			zap.String("base", base),
			zap.Int("delta_bytes", len(deltaBytes)),
			zap.Int64("original_size", entry.OriginalSize))
	}

	return hash, isNew, nil
}

func (s *Store) storeLocked(ctx context.Context, frag *fragment.Fragment, normalized []byte, hash string) (string, bool, error) {
	existing, err := s.driver.Get(ctx, hash)
	if err != nil && !IsNotFound(err) {
		return "", false, fmt.Errorf("checking for existing entry: %w", err)
	}

	now := time.Now().UTC()

	if existing != nil && !existing.Quarantined {
		if _, err := s.driver.AdjustRefCount(ctx, hash, 1, now); err != nil {
			return "", false, fmt.Errorf("adding reference to %s: %w", hash, err)
		}
		return hash, false, nil
	}

	tier := TierHot
	if existing != nil {
		tier = existing.Tier
	}

	payload, compression, err := s.encodePayload(normalized, tier, s.threshold)
	if err != nil {
		return "", false, err
	}

	entry := &Entry{
		Hash:           hash,
		Payload:        payload,
		OriginalSize:   int64(len(normalized)),
		Compression:    compression,
		Tier:           tier,
		ReferenceCount: 1,
		ContentType:    frag.ContentType,
		Tags:           frag.Tags,
		CreatedAt:      now,
		LastAccessed:   now,
	}

	if existing != nil {
		// The caller supplied the exact content again, so the damaged
		// payload can be rebuilt in place as a full entry.
		entry.CreatedAt = existing.CreatedAt
		entry.ReferenceCount = existing.ReferenceCount + 1
		if err := s.driver.Update(ctx, entry); err != nil {
			return "", false, fmt.Errorf("repairing entry %s: %w", hash, err)
		}
		if existing.BaseHash != nil {
			if err := s.Release(ctx, *existing.BaseHash); err != nil {
				s.logger.Warn("releasing stale delta base",
					zap.String("hash", hash),
					zap.String("base", *existing.BaseHash),
					zap.Error(err))
			}
		}
		s.logger.Info("quarantined entry repaired from fresh content", zap.String("hash", hash))
		return hash, false, nil
	}

	isNew, err := s.driver.Put(ctx, entry)
	if err != nil {
		return "", false, fmt.Errorf("storing entry: %w", err)
	}
	if isNew {
		s.logger.Debug("stored entry",
			zap.String("hash", hash),
			zap.String("content_type", string(frag.ContentType)),
			zap.String("compression", string(compression)),
			zap.Int64("original_size", entry.OriginalSize),
			zap.Int("stored_size", len(payload)))
	}

	return hash, isNew, nil
}

// Get returns the normalized content for a hash, reconstructing delta
// chains and verifying the bytes against the hash before serving them.
// Entries that fail verification are quarantined and never served again.
func (s *Store) Get(ctx context.Context, hash string) ([]byte, error) {
	return s.reconstruct(ctx, hash, 0)
}

func (s *Store) reconstruct(ctx context.Context, hash string, depth int) ([]byte, error) {
	if depth > maxDeltaChain {
		return nil, fmt.Errorf("delta chain for %s exceeds %d hops", hash, maxDeltaChain)
	}

	unlock := s.locks.lock(hash)
	defer unlock()

	entry, err := s.driver.Get(ctx, hash)
	if err != nil {
		return nil, err
	}
	if entry.Quarantined {
		return nil, NotFoundError{Hash: hash}
	}

	raw, err := s.codec.decompress(entry.Payload, entry.Compression)
	if err != nil {
		s.quarantine(ctx, entry, "payload decode failed")
		return nil, CorruptedEntryError{Hash: hash, Reason: "payload decode failed"}
	}

	content := raw
	if entry.BaseHash != nil {
		baseBytes, err := s.reconstruct(ctx, *entry.BaseHash, depth+1)
		if err != nil {
			return nil, fmt.Errorf("reconstructing base of %s: %w", hash, err)
		}

		delta, err := diff.Unmarshal(raw)
		if err != nil {
			s.quarantine(ctx, entry, "delta decode failed")
			return nil, CorruptedEntryError{Hash: hash, Reason: "delta decode failed"}
		}

		content, err = diff.Apply(baseBytes, delta)
		if err != nil {
			s.quarantine(ctx, entry, "delta apply failed")
			return nil, CorruptedEntryError{Hash: hash, Reason: "delta apply failed"}
		}
	}

	if computed := fragment.HashContent(content); computed != hash {
		s.quarantine(ctx, entry, "content hash mismatch")
		return nil, CorruptedEntryError{Hash: hash, Reason: "content hash mismatch"}
	}

	if err := s.driver.Touch(ctx, hash, time.Now().UTC()); err != nil {
		s.logger.Warn("recording access time", zap.String("hash", hash), zap.Error(err))
	}

	return content, nil
}

// Entry returns the stored record for a hash without decoding its payload.
func (s *Store) Entry(ctx context.Context, hash string) (*Entry, error) {
	return s.driver.Get(ctx, hash)
}

// AddReference increments the reference count for a hash. Reaching a
// positive count cancels any pending garbage collection.
func (s *Store) AddReference(ctx context.Context, hash string) error {
	unlock := s.locks.lock(hash)
	defer unlock()

	if _, err := s.driver.AdjustRefCount(ctx, hash, 1, time.Now().UTC()); err != nil {
		return fmt.Errorf("adding reference to %s: %w", hash, err)
	}
	return nil
}

// Release decrements the reference count for a hash. At zero the entry
// becomes eligible for garbage collection after the grace period. A
// release below zero is a bookkeeping bug and panics.
func (s *Store) Release(ctx context.Context, hash string) error {
	unlock := s.locks.lock(hash)
	defer unlock()

	count, err := s.driver.AdjustRefCount(ctx, hash, -1, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("releasing %s: %w", hash, err)
	}
	if count < 0 {
		panic(fmt.Sprintf("contentstore: reference count underflow on %s", hash))
	}
	if count == 0 {
		s.logger.Debug("entry fully released", zap.String("hash", hash))
	}
	return nil
}

// SetTier moves an entry to the given tier, re-encoding the payload for
// the tier's compression scheme.
func (s *Store) SetTier(ctx context.Context, hash string, tier Tier) error {
	unlock := s.locks.lock(hash)
	defer unlock()

	entry, err := s.driver.Get(ctx, hash)
	if err != nil {
		return err
	}
	if entry.Tier == tier {
		return nil
	}

	raw, err := s.codec.decompress(entry.Payload, entry.Compression)
	if err != nil {
		s.quarantine(ctx, entry, "payload decode failed during migration")
		return CorruptedEntryError{Hash: hash, Reason: "payload decode failed during migration"}
	}

	// Migrations keep any compression gain at all; the store-time
	// threshold only guards the hot path.
	payload, compression, err := s.encodePayload(raw, tier, 1.0)
	if err != nil {
		return err
	}

	from := entry.Tier
	entry.Tier = tier
	entry.Payload = payload
	entry.Compression = compression
	if err := s.driver.Update(ctx, entry); err != nil {
		return fmt.Errorf("migrating %s to %s: %w", hash, tier, err)
	}

	s.logger.Debug("entry migrated",
		zap.String("hash", hash),
		zap.String("from", string(from)),
		zap.String("to", string(tier)),
		zap.String("compression", string(compression)))
	return nil
}

// Remove permanently deletes an entry. Only the garbage collector calls
// this; entries with live references must never be removed. Deleting a
// delta entry releases the base it was pinned to.
func (s *Store) Remove(ctx context.Context, hash string) error {
	unlock := s.locks.lock(hash)

	entry, err := s.driver.Get(ctx, hash)
	if err != nil {
		unlock()
		return err
	}
	if err := s.driver.Delete(ctx, hash); err != nil {
		unlock()
		return fmt.Errorf("deleting %s: %w", hash, err)
	}
	unlock()

	if entry.BaseHash != nil {
		if err := s.Release(ctx, *entry.BaseHash); err != nil {
			s.logger.Warn("releasing delta base",
				zap.String("hash", hash),
				zap.String("base", *entry.BaseHash),
				zap.Error(err))
		}
	}

	s.logger.Debug("entry removed", zap.String("hash", hash))
	return nil
}

// List returns all stored entries.
func (s *Store) List(ctx context.Context) ([]*Entry, error) {
	return s.driver.List(ctx)
}

// ListByTier returns all entries in the given tier.
func (s *Store) ListByTier(ctx context.Context, tier Tier) ([]*Entry, error) {
	return s.driver.ListByTier(ctx, tier)
}

// SizeOfTier returns the total payload bytes at rest in the given tier.
func (s *Store) SizeOfTier(ctx context.Context, tier Tier) (int64, error) {
	return s.driver.SizeOfTier(ctx, tier)
}

// Close releases the driver and compression resources.
func (s *Store) Close() error {
	s.codec.close()
	return s.driver.Close()
}

func (s *Store) encodePayload(data []byte, tier Tier, threshold float64) ([]byte, Compression, error) {
	target := compressionForTier(tier)
	encoded, err := s.codec.compress(data, target)
	if err != nil {
		return nil, "", err
	}
	if !worthCompressing(len(data), len(encoded), threshold) {
		return data, CompressionNone, nil
	}
	return encoded, target, nil
}

func (s *Store) quarantine(ctx context.Context, entry *Entry, reason string) {
	entry.Quarantined = true
	if err := s.driver.Update(ctx, entry); err != nil {
		s.logger.Error("failed to quarantine corrupted entry",
			zap.String("hash", entry.Hash),
			zap.Error(err))
		return
	}
	s.logger.Error("entry quarantined",
		zap.String("hash", entry.Hash),
		zap.String("reason", reason))
}

func (s *Store) chainDepth(ctx context.Context, hash string) (int, error) {
	depth := 0
	current := hash
	for depth <= maxDeltaChain {
		entry, err := s.driver.Get(ctx, current)
		if err != nil {
			return 0, err
		}
		if entry.BaseHash == nil {
			return depth, nil
		}
		current = *entry.BaseHash
		depth++
	}
	return depth, nil
}

func worthCompressing(original, compressed int, threshold float64) bool {
	if original == 0 {
		return false
	}
	return float64(compressed)/float64(original) < threshold
}
