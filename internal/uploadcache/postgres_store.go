package uploadcache

import (
	"context"
	"sort"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rotisserie/eris"

	"github.com/sells-group/billrecon/internal/db"
)

// Pool is the subset of pgxpool.Pool used by PostgresStore.
type Pool interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	Begin(ctx context.Context) (pgx.Tx, error)
	Close()
}

// PostgresStore keeps the cache in a Postgres table.
type PostgresStore struct {
	pool Pool
}

const postgresMigration = `
CREATE TABLE IF NOT EXISTS upload_cache (
	cache_key  TEXT PRIMARY KEY,
	url        TEXT NOT NULL,
	updated_at TIMESTAMPTZ NOT NULL DEFAULT now()
)`

// NewPostgres connects a pool to connString and creates the cache table.
func NewPostgres(ctx context.Context, connString string) (*PostgresStore, error) {
	pgxCfg, err := pgxpool.ParseConfig(connString)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: parse config")
	}
	pgxCfg.MaxConns = 2
	pgxCfg.MaxConnIdleTime = 5 * time.Minute

	pool, err := pgxpool.NewWithConfig(ctx, pgxCfg)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: create pool")
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, eris.Wrap(err, "postgres: ping")
	}

	st := NewPostgresFromPool(pool)
	if err := st.Migrate(ctx); err != nil {
		pool.Close()
		return nil, err
	}
	return st, nil
}

// NewPostgresFromPool wraps an existing pool.
func NewPostgresFromPool(pool Pool) *PostgresStore {
	return &PostgresStore{pool: pool}
}

// Migrate creates the cache table if needed.
func (s *PostgresStore) Migrate(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, postgresMigration)
	return eris.Wrap(err, "postgres: migrate")
}

// Load returns every cached entry.
func (s *PostgresStore) Load(ctx context.Context) (map[string]string, error) {
	rows, err := s.pool.Query(ctx, `SELECT cache_key, url FROM upload_cache`)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: load cache")
	}
	defer rows.Close()

	entries := map[string]string{}
	for rows.Next() {
		var key, url string
		if err := rows.Scan(&key, &url); err != nil {
			return nil, eris.Wrap(err, "postgres: scan cache row")
		}
		entries[key] = url
	}
	return entries, eris.Wrap(rows.Err(), "postgres: iterate cache")
}

// Save replaces the table contents with entries in one transaction.
func (s *PostgresStore) Save(ctx context.Context, entries map[string]string) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return eris.Wrap(err, "postgres: begin")
	}
	defer tx.Rollback(ctx) //nolint:errcheck

	if _, err := tx.Exec(ctx, `DELETE FROM upload_cache`); err != nil {
		return eris.Wrap(err, "postgres: clear cache")
	}
	keys := make([]string, 0, len(entries))
	for k := range entries {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	rows := make([][]any, len(keys))
	for i, k := range keys {
		rows[i] = []any{k, entries[k]}
	}
	if _, err := db.CopyFrom(ctx, tx, "upload_cache", []string{"cache_key", "url"}, rows); err != nil {
		return err
	}
	return eris.Wrap(tx.Commit(ctx), "postgres: commit")
}

// Close closes the pool.
func (s *PostgresStore) Close() error {
	s.pool.Close()
	return nil
}
