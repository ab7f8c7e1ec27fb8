// Package contentcache provides a local embedded-SQLite cache of remote
// content hashes, consulted by the Differ before an expensive content
// fetch.
package contentcache

import (
	"context"
	"crypto/sha256"
	"database/sql"
	"encoding/hex"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"

	_ "github.com/ncruces/go-sqlite3/driver"
	_ "github.com/ncruces/go-sqlite3/embed"
)

// Cache wraps an embedded SQLite database storing, per (val, branch,
// version, path, server mtime), the sha256 of the content last observed
// there. A cache hit lets the Differ skip refetching bytes it already knows
// are unchanged.
type Cache struct {
	conn *sql.DB
}

// Open creates or opens the cache database at path, enabling WAL mode for
// concurrent readers during a push/pull's fan-out.
func Open(path string) (*Cache, error) {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create cache directory: %w", err)
	}

	conn, err := sql.Open("sqlite3", fmt.Sprintf("file:%s", path))
	if err != nil {
		return nil, fmt.Errorf("open content cache: %w", err)
	}
	if err := conn.Ping(); err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("ping content cache: %w", err)
	}

	conn.SetMaxOpenConns(25)
	conn.SetMaxIdleConns(5)
	conn.SetConnMaxLifetime(5 * time.Minute)

	c := &Cache{conn: conn}
	if err := c.initSchema(); err != nil {
		_ = conn.Close()
		return nil, err
	}
	return c, nil
}

func (c *Cache) initSchema() error {
	for _, pragma := range []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout=5000",
		"PRAGMA foreign_keys=ON",
	} {
		if _, err := c.conn.Exec(pragma); err != nil {
			return fmt.Errorf("%s: %w", pragma, err)
		}
	}

	const schema = `
	CREATE TABLE IF NOT EXISTS content_hashes (
		val_id       TEXT NOT NULL,
		branch_id    TEXT NOT NULL,
		version      INTEGER NOT NULL,
		path         TEXT NOT NULL,
		server_mtime INTEGER NOT NULL,
		sha256       TEXT NOT NULL,
		cached_at    INTEGER NOT NULL,
		PRIMARY KEY (val_id, branch_id, version, path)
	);
	`
	if _, err := c.conn.Exec(schema); err != nil {
		return fmt.Errorf("init content cache schema: %w", err)
	}
	return nil
}

// Close closes the underlying database connection.
func (c *Cache) Close() error {
	if c.conn == nil {
		return nil
	}
	return c.conn.Close()
}

// Key identifies one cached content hash.
type Key struct {
	ValID       uuid.UUID
	BranchID    uuid.UUID
	Version     uint64
	Path        string
	ServerMTime int64
}

// Lookup returns the cached sha256 hex digest for key, and whether it was
// present. A miss is not an error: the caller falls back to fetching bytes.
func (c *Cache) Lookup(ctx context.Context, key Key) (string, bool, error) {
	row := c.conn.QueryRowContext(ctx, `
		SELECT sha256 FROM content_hashes
		WHERE val_id = ? AND branch_id = ? AND version = ? AND path = ? AND server_mtime = ?
	`, key.ValID.String(), key.BranchID.String(), key.Version, key.Path, key.ServerMTime)

	var digest string
	if err := row.Scan(&digest); err != nil {
		if err == sql.ErrNoRows {
			return "", false, nil
		}
		return "", false, fmt.Errorf("content cache lookup: %w", err)
	}
	return digest, true, nil
}

// Store records content's hash under key, upserting on the primary key
// (val, branch, version, path); a re-fetch of the same entry simply
// refreshes cached_at.
func (c *Cache) Store(ctx context.Context, key Key, content []byte) (string, error) {
	digest := HashContent(content)
	_, err := c.conn.ExecContext(ctx, `
		INSERT INTO content_hashes (val_id, branch_id, version, path, server_mtime, sha256, cached_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(val_id, branch_id, version, path) DO UPDATE SET
			server_mtime = excluded.server_mtime,
			sha256 = excluded.sha256,
			cached_at = excluded.cached_at
	`, key.ValID.String(), key.BranchID.String(), key.Version, key.Path, key.ServerMTime, digest, time.Now().Unix())
	if err != nil {
		return "", fmt.Errorf("content cache store: %w", err)
	}
	return digest, nil
}

// HashContent returns the hex-encoded sha256 digest of content.
func HashContent(content []byte) string {
	sum := sha256.Sum256(content)
	return hex.EncodeToString(sum[:])
}

// Invalidate drops every cached entry for one branch of a val.
func (c *Cache) Invalidate(ctx context.Context, valID, branchID uuid.UUID) error {
	_, err := c.conn.ExecContext(ctx, `
		DELETE FROM content_hashes WHERE val_id = ? AND branch_id = ?
	`, valID.String(), branchID.String())
	if err != nil {
		return fmt.Errorf("content cache invalidate: %w", err)
	}
	return nil
}
