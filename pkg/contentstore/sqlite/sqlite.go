// Package sqlite implements the contentstore Driver on SQLite. It is the
// default persistent backend for local sessions.
package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"github.com/papercomputeco/engram/pkg/contentstore"
	"github.com/papercomputeco/engram/pkg/fragment"
)

// Driver implements contentstore.Driver using SQLite as the backend.
type Driver struct {
	db *sql.DB
}

// NewDriver creates a new SQLite-backed driver. The dbPath can be a file
// path or ":memory:" for an in-memory database.
func NewDriver(dbPath string) (*Driver, error) {
	db, err := sql.Open("sqlite3", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	return NewDriverWithDB(db)
}

// NewDriverWithDB wraps an already-open handle speaking the SQLite
// dialect. The libsql driver reuses it.
func NewDriverWithDB(db *sql.DB) (*Driver, error) {
	d := &Driver{db: db}

	if err := d.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}

	return d, nil
}

// migrate creates the necessary tables if they don't exist.
func (d *Driver) migrate() error {
	schema := `
	CREATE TABLE IF NOT EXISTS entries (
		hash TEXT PRIMARY KEY,
		payload BLOB NOT NULL,
		original_size INTEGER NOT NULL,
		compression TEXT NOT NULL,
		tier TEXT NOT NULL,
		base_hash TEXT,
		reference_count INTEGER NOT NULL,
		content_type TEXT NOT NULL,
		tags TEXT NOT NULL DEFAULT '[]',
		created_at INTEGER NOT NULL,
		last_accessed INTEGER NOT NULL,
		released_at INTEGER,
		quarantined INTEGER NOT NULL DEFAULT 0
	);

	CREATE INDEX IF NOT EXISTS idx_entries_tier ON entries(tier);
	CREATE INDEX IF NOT EXISTS idx_entries_released_at ON entries(released_at);
	`

	_, err := d.db.Exec(schema)
	return err
}

// Put stores an entry. If the entry already exists (by hash), this is a no-op.
func (d *Driver) Put(ctx context.Context, entry *contentstore.Entry) (bool, error) {
	if entry == nil {
		return false, fmt.Errorf("cannot store nil entry")
	}

	tagsJSON, err := json.Marshal(entry.Tags)
	if err != nil {
		return false, fmt.Errorf("failed to marshal tags: %w", err)
	}

	// INSERT OR IGNORE keeps inserts idempotent under content-addressing
	query := `INSERT OR IGNORE INTO entries
		(hash, payload, original_size, compression, tier, base_hash, reference_count,
		 content_type, tags, created_at, last_accessed, released_at, quarantined)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`

	result, err := d.db.ExecContext(ctx, query,
		entry.Hash,
		entry.Payload,
		entry.OriginalSize,
		string(entry.Compression),
		string(entry.Tier),
		entry.BaseHash,
		entry.ReferenceCount,
		string(entry.ContentType),
		string(tagsJSON),
		entry.CreatedAt.UnixNano(),
		entry.LastAccessed.UnixNano(),
		nanosOrNil(entry.ReleasedAt),
		boolToInt(entry.Quarantined),
	)
	if err != nil {
		return false, fmt.Errorf("failed to insert entry: %w", err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to read rows affected: %w", err)
	}

	return affected > 0, nil
}

// Get retrieves an entry by its hash.
func (d *Driver) Get(ctx context.Context, hash string) (*contentstore.Entry, error) {
	query := `SELECT hash, payload, original_size, compression, tier, base_hash,
		reference_count, content_type, tags, created_at, last_accessed, released_at, quarantined
		FROM entries WHERE hash = ?`

	entry, err := scanEntry(d.db.QueryRowContext(ctx, query, hash))
	if err == sql.ErrNoRows {
		return nil, contentstore.NotFoundError{Hash: hash}
	}
	if err != nil {
		return nil, err
	}

	return entry, nil
}

// Has checks if an entry exists by its hash.
func (d *Driver) Has(ctx context.Context, hash string) (bool, error) {
	query := `SELECT 1 FROM entries WHERE hash = ? LIMIT 1`

	var exists int
	err := d.db.QueryRowContext(ctx, query, hash).Scan(&exists)
	if err == sql.ErrNoRows {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("failed to check existence: %w", err)
	}

	return true, nil
}

// Update overwrites a stored entry's record.
func (d *Driver) Update(ctx context.Context, entry *contentstore.Entry) error {
	if entry == nil {
		return fmt.Errorf("cannot update nil entry")
	}

	tagsJSON, err := json.Marshal(entry.Tags)
	if err != nil {
		return fmt.Errorf("failed to marshal tags: %w", err)
	}

	query := `UPDATE entries SET
		payload = ?, original_size = ?, compression = ?, tier = ?, base_hash = ?,
		reference_count = ?, content_type = ?, tags = ?, created_at = ?,
		last_accessed = ?, released_at = ?, quarantined = ?
		WHERE hash = ?`

	result, err := d.db.ExecContext(ctx, query,
		entry.Payload,
		entry.OriginalSize,
		string(entry.Compression),
		string(entry.Tier),
		entry.BaseHash,
		entry.ReferenceCount,
		string(entry.ContentType),
		string(tagsJSON),
		entry.CreatedAt.UnixNano(),
		entry.LastAccessed.UnixNano(),
		nanosOrNil(entry.ReleasedAt),
		boolToInt(entry.Quarantined),
		entry.Hash,
	)
	if err != nil {
		return fmt.Errorf("failed to update entry: %w", err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to read rows affected: %w", err)
	}
	if affected == 0 {
		return contentstore.NotFoundError{Hash: entry.Hash}
	}

	return nil
}

// Touch records an access at the given instant.
func (d *Driver) Touch(ctx context.Context, hash string, at time.Time) error {
	query := `UPDATE entries SET last_accessed = ? WHERE hash = ?`

	result, err := d.db.ExecContext(ctx, query, at.UnixNano(), hash)
	if err != nil {
		return fmt.Errorf("failed to touch entry: %w", err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to read rows affected: %w", err)
	}
	if affected == 0 {
		return contentstore.NotFoundError{Hash: hash}
	}

	return nil
}

// AdjustRefCount atomically adds delta to the reference count and returns
// the new count. Reaching zero stamps the release instant; going positive
// clears it.
func (d *Driver) AdjustRefCount(ctx context.Context, hash string, delta int, at time.Time) (int, error) {
	// SET expressions read the pre-update row, so both references to
	// reference_count see the old value
	query := `UPDATE entries SET
		reference_count = reference_count + ?,
		released_at = CASE WHEN reference_count + ? = 0 THEN ? ELSE NULL END
		WHERE hash = ?
		RETURNING reference_count`

	var count int
	err := d.db.QueryRowContext(ctx, query, delta, delta, at.UnixNano(), hash).Scan(&count)
	if err == sql.ErrNoRows {
		return 0, contentstore.NotFoundError{Hash: hash}
	}
	if err != nil {
		return 0, fmt.Errorf("failed to adjust reference count: %w", err)
	}

	return count, nil
}

// Delete removes an entry permanently.
func (d *Driver) Delete(ctx context.Context, hash string) error {
	query := `DELETE FROM entries WHERE hash = ?`

	result, err := d.db.ExecContext(ctx, query, hash)
	if err != nil {
		return fmt.Errorf("failed to delete entry: %w", err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to read rows affected: %w", err)
	}
	if affected == 0 {
		return contentstore.NotFoundError{Hash: hash}
	}

	return nil
}

// List returns all entries in the store.
func (d *Driver) List(ctx context.Context) ([]*contentstore.Entry, error) {
	query := `SELECT hash, payload, original_size, compression, tier, base_hash,
		reference_count, content_type, tags, created_at, last_accessed, released_at, quarantined
		FROM entries ORDER BY created_at`

	rows, err := d.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to query entries: %w", err)
	}
	defer rows.Close()

	return scanEntries(rows)
}

// ListByTier returns all entries in the given tier.
func (d *Driver) ListByTier(ctx context.Context, tier contentstore.Tier) ([]*contentstore.Entry, error) {
	query := `SELECT hash, payload, original_size, compression, tier, base_hash,
		reference_count, content_type, tags, created_at, last_accessed, released_at, quarantined
		FROM entries WHERE tier = ? ORDER BY created_at`

	rows, err := d.db.QueryContext(ctx, query, string(tier))
	if err != nil {
		return nil, fmt.Errorf("failed to query entries: %w", err)
	}
	defer rows.Close()

	return scanEntries(rows)
}

// SizeOfTier returns the total payload bytes at rest in the given tier.
func (d *Driver) SizeOfTier(ctx context.Context, tier contentstore.Tier) (int64, error) {
	query := `SELECT COALESCE(SUM(LENGTH(payload)), 0) FROM entries WHERE tier = ?`

	var size int64
	if err := d.db.QueryRowContext(ctx, query, string(tier)).Scan(&size); err != nil {
		return 0, fmt.Errorf("failed to sum tier size: %w", err)
	}

	return size, nil
}

// Close closes the database connection.
func (d *Driver) Close() error {
	return d.db.Close()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanEntry(row rowScanner) (*contentstore.Entry, error) {
	var entry contentstore.Entry
	var compression, tier, contentType, tagsJSON string
	var baseHash sql.NullString
	var createdAt, lastAccessed int64
	var releasedAt sql.NullInt64
	var quarantined int

	err := row.Scan(
		&entry.Hash,
		&entry.Payload,
		&entry.OriginalSize,
		&compression,
		&tier,
		&baseHash,
		&entry.ReferenceCount,
		&contentType,
		&tagsJSON,
		&createdAt,
		&lastAccessed,
		&releasedAt,
		&quarantined,
	)
	if err != nil {
		return nil, err
	}

	entry.Compression = contentstore.Compression(compression)
	entry.Tier = contentstore.Tier(tier)
	entry.ContentType = fragment.ContentType(contentType)
	entry.CreatedAt = time.Unix(0, createdAt).UTC()
	entry.LastAccessed = time.Unix(0, lastAccessed).UTC()
	entry.Quarantined = quarantined != 0

	if baseHash.Valid {
		entry.BaseHash = &baseHash.String
	}
	if releasedAt.Valid {
		released := time.Unix(0, releasedAt.Int64).UTC()
		entry.ReleasedAt = &released
	}
	if err := json.Unmarshal([]byte(tagsJSON), &entry.Tags); err != nil {
		return nil, fmt.Errorf("failed to unmarshal tags: %w", err)
	}

	return &entry, nil
}

func scanEntries(rows *sql.Rows) ([]*contentstore.Entry, error) {
	var entries []*contentstore.Entry

	for rows.Next() {
		entry, err := scanEntry(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan entry: %w", err)
		}
		entries = append(entries, entry)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating rows: %w", err)
	}

	return entries, nil
}

func nanosOrNil(t *time.Time) any {
	if t == nil {
		return nil
	}
	return t.UnixNano()
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

// Ensure Driver implements contentstore.Driver
var _ contentstore.Driver = (*Driver)(nil)
