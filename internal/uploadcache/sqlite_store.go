package uploadcache

import (
	"context"
	"database/sql"

	"github.com/rotisserie/eris"
	_ "modernc.org/sqlite"
)

// SQLiteStore keeps the cache in a SQLite table.
type SQLiteStore struct {
	db *sql.DB
}

const sqliteMigration = `
CREATE TABLE IF NOT EXISTS upload_cache (
	cache_key  TEXT PRIMARY KEY,
	url        TEXT NOT NULL,
	updated_at DATETIME NOT NULL DEFAULT (datetime('now'))
);
`

// NewSQLite opens a SQLite database at dsn, configures WAL mode, and
// creates the cache table.
func NewSQLite(ctx context.Context, dsn string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: open")
	}
	for _, pragma := range []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout=5000",
		"PRAGMA synchronous=FULL",
	} {
		if _, err := db.ExecContext(ctx, pragma); err != nil {
			db.Close() //nolint:errcheck
			return nil, eris.Wrapf(err, "sqlite: exec %s", pragma)
		}
	}
	if _, err := db.ExecContext(ctx, sqliteMigration); err != nil {
		db.Close() //nolint:errcheck
		return nil, eris.Wrap(err, "sqlite: migrate")
	}
	return &SQLiteStore{db: db}, nil
}

// Load returns every cached entry.
func (s *SQLiteStore) Load(ctx context.Context) (map[string]string, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT cache_key, url FROM upload_cache`)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: load cache")
	}
	defer rows.Close() //nolint:errcheck

	entries := map[string]string{}
	for rows.Next() {
		var key, url string
		if err := rows.Scan(&key, &url); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan cache row")
		}
		entries[key] = url
	}
	return entries, eris.Wrap(rows.Err(), "sqlite: iterate cache")
}

// Save replaces the table contents with entries in one transaction.
func (s *SQLiteStore) Save(ctx context.Context, entries map[string]string) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return eris.Wrap(err, "sqlite: begin")
	}
	defer tx.Rollback() //nolint:errcheck

	if _, err := tx.ExecContext(ctx, `DELETE FROM upload_cache`); err != nil {
		return eris.Wrap(err, "sqlite: clear cache")
	}
	stmt, err := tx.PrepareContext(ctx, `INSERT INTO upload_cache (cache_key, url) VALUES (?, ?)`)
	if err != nil {
		return eris.Wrap(err, "sqlite: prepare insert")
	}
	defer stmt.Close() //nolint:errcheck

	for key, url := range entries {
		if _, err := stmt.ExecContext(ctx, key, url); err != nil {
			return eris.Wrapf(err, "sqlite: insert %s", key)
		}
	}
	return eris.Wrap(tx.Commit(), "sqlite: commit")
}

// Close closes the database.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}
