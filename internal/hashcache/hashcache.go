// Package hashcache persists per-path content fingerprints across runs,
// so a later run can classify paths as changed or unchanged without
// re-parsing them.
package hashcache

import (
	"database/sql"
	"fmt"

	_ "modernc.org/sqlite"
)

const schema = `
CREATE TABLE IF NOT EXISTS path_hashes (
	path TEXT PRIMARY KEY,
	hash TEXT NOT NULL
);`

// Cache is a SQLite-backed store of path fingerprints.
type Cache struct {
	db *sql.DB
}

// Open opens or creates the cache database at path.
func Open(path string) (*Cache, error) {
	db, err := sql.Open("sqlite", path+"?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)")
	if err != nil {
		return nil, fmt.Errorf("open hash cache: %w", err)
	}
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("init hash cache: %w", err)
	}
	return &Cache{db: db}, nil
}

// OpenMemory opens an in-memory cache (for testing).
func OpenMemory() (*Cache, error) {
	return Open(":memory:")
}

// Close releases the underlying database.
func (c *Cache) Close() error { return c.db.Close() }

// Upsert stores one fingerprint.
func (c *Cache) Upsert(path, hash string) error {
	_, err := c.db.Exec(
		`INSERT INTO path_hashes (path, hash) VALUES (?, ?)
		 ON CONFLICT(path) DO UPDATE SET hash = excluded.hash`,
		path, hash)
	return err
}

// UpsertBatch stores fingerprints in one transaction.
func (c *Cache) UpsertBatch(hashes map[string]string) error {
	tx, err := c.db.Begin()
	if err != nil {
		return err
	}
	stmt, err := tx.Prepare(
		`INSERT INTO path_hashes (path, hash) VALUES (?, ?)
		 ON CONFLICT(path) DO UPDATE SET hash = excluded.hash`)
	if err != nil {
		_ = tx.Rollback()
		return err
	}
	defer stmt.Close()
	for path, hash := range hashes {
		if _, err := stmt.Exec(path, hash); err != nil {
			_ = tx.Rollback()
			return err
		}
	}
	return tx.Commit()
}

// Hash returns the stored fingerprint for a path.
func (c *Cache) Hash(path string) (string, bool, error) {
	var hash string
	err := c.db.QueryRow(`SELECT hash FROM path_hashes WHERE path = ?`, path).Scan(&hash)
	if err == sql.ErrNoRows {
		return "", false, nil
	}
	if err != nil {
		return "", false, err
	}
	return hash, true, nil
}

// All returns every stored fingerprint.
func (c *Cache) All() (map[string]string, error) {
	rows, err := c.db.Query(`SELECT path, hash FROM path_hashes`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := make(map[string]string)
	for rows.Next() {
		var path, hash string
		if err := rows.Scan(&path, &hash); err != nil {
			return nil, err
		}
		out[path] = hash
	}
	return out, rows.Err()
}

// Changed returns the paths in current whose fingerprint differs from,
// or is missing in, the stored set.
func (c *Cache) Changed(current map[string]string) ([]string, error) {
	stored, err := c.All()
	if err != nil {
		return nil, err
	}
	var changed []string
	for path, hash := range current {
		if prev, ok := stored[path]; !ok || prev != hash {
			changed = append(changed, path)
		}
	}
	return changed, nil
}
