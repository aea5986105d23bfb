package assets

import (
	"context"
	"database/sql"
	_ "embed"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/gofrs/flock"
	_ "modernc.org/sqlite"
)

//go:embed schema.sql
var schemaSQL string

// schemaVersion is the current cache schema version. A cache written by
// another version is rejected; delete the file to rebuild it.
const schemaVersion = 1

var (
	// ErrCacheLocked is returned when another process owns the cache file.
	ErrCacheLocked = errors.New("assets: shader cache is locked by another process")

	// ErrSchemaMismatch indicates the cache file was written by an
	// incompatible version.
	ErrSchemaMismatch = errors.New("assets: shader cache schema version mismatch")
)

// DiskCache persists compiled WGSL across runs in a SQLite database keyed
// by source hash. The cache file is owned by one process at a time.
//
// DiskCache is safe for concurrent use.
type DiskCache struct {
	db   *sql.DB
	path string
	lock *flock.Flock
}

// OpenDiskCache opens or creates the cache at path and takes an exclusive
// lock on path+".lock".
func OpenDiskCache(path string) (*DiskCache, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("create cache directory: %w", err)
	}

	lock := flock.New(path + ".lock")
	ok, err := lock.TryLock()
	if err != nil {
		return nil, fmt.Errorf("acquire cache lock: %w", err)
	}
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrCacheLocked, path)
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		_ = lock.Unlock()
		return nil, fmt.Errorf("open sqlite db: %w", err)
	}

	pragmas := []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout = 5000",
	}
	for _, pragma := range pragmas {
		if _, execErr := db.Exec(pragma); execErr != nil {
			_ = db.Close()
			_ = lock.Unlock()
			return nil, fmt.Errorf("apply pragma %q: %w", pragma, execErr)
		}
	}

	c := &DiskCache{db: db, path: path, lock: lock}
	if err := c.initSchema(context.Background()); err != nil {
		_ = c.Close()
		return nil, err
	}
	return c, nil
}

func (c *DiskCache) initSchema(ctx context.Context) error {
	if _, err := c.db.ExecContext(ctx, schemaSQL); err != nil {
		return fmt.Errorf("create schema: %w", err)
	}

	var version int
	err := c.db.QueryRowContext(ctx, "SELECT version FROM schema_version LIMIT 1").Scan(&version)
	switch {
	case errors.Is(err, sql.ErrNoRows):
		if _, err := c.db.ExecContext(ctx, "INSERT INTO schema_version (version) VALUES (?)", schemaVersion); err != nil {
			return fmt.Errorf("record schema version: %w", err)
		}
		return nil
	case err != nil:
		return fmt.Errorf("read schema version: %w", err)
	case version != schemaVersion:
		return fmt.Errorf("%w: %s has version %d, expected %d", ErrSchemaMismatch, c.path, version, schemaVersion)
	}
	return nil
}

// Path returns the database file path.
func (c *DiskCache) Path() string { return c.path }

// Get returns the SPIR-V compiled from the source with the given hash.
func (c *DiskCache) Get(ctx context.Context, sourceHash uint64) ([]uint32, bool, error) {
	var blob []byte
	err := c.db.QueryRowContext(ctx,
		"SELECT spirv FROM compiled_shaders WHERE source_hash = ?",
		int64(sourceHash), //nolint:gosec // stored as the bit pattern
	).Scan(&blob)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("read compiled shader: %w", err)
	}
	words, err := wordsFromBytes(blob)
	if err != nil {
		return nil, false, fmt.Errorf("cached shader %x: %w", sourceHash, err)
	}
	return words, true, nil
}

// Put stores SPIR-V compiled from the source with the given hash.
func (c *DiskCache) Put(ctx context.Context, sourceHash uint64, words []uint32) error {
	if err := validate(words); err != nil {
		return err
	}
	_, err := c.db.ExecContext(ctx,
		`INSERT INTO compiled_shaders (source_hash, spirv, created_at) VALUES (?, ?, ?)
         ON CONFLICT(source_hash) DO UPDATE SET spirv = excluded.spirv, created_at = excluded.created_at`,
		int64(sourceHash), //nolint:gosec // stored as the bit pattern
		bytesFromWords(words),
		time.Now().UTC().Format(time.RFC3339Nano),
	)
	if err != nil {
		return fmt.Errorf("store compiled shader: %w", err)
	}
	return nil
}

// Len returns the number of cached modules.
func (c *DiskCache) Len(ctx context.Context) (int, error) {
	var n int
	if err := c.db.QueryRowContext(ctx, "SELECT COUNT(1) FROM compiled_shaders").Scan(&n); err != nil {
		return 0, fmt.Errorf("count compiled shaders: %w", err)
	}
	return n, nil
}

// Size returns the total size in bytes of the cached SPIR-V.
func (c *DiskCache) Size(ctx context.Context) (int64, error) {
	var n sql.NullInt64
	if err := c.db.QueryRowContext(ctx, "SELECT SUM(LENGTH(spirv)) FROM compiled_shaders").Scan(&n); err != nil {
		return 0, fmt.Errorf("sum compiled shaders: %w", err)
	}
	return n.Int64, nil
}

// Close closes the database and releases the lock.
func (c *DiskCache) Close() error {
	if c == nil {
		return nil
	}
	var errs []error
	if c.db != nil {
		errs = append(errs, c.db.Close())
	}
	if c.lock != nil {
		errs = append(errs, c.lock.Unlock())
	}
	return errors.Join(errs...)
}
