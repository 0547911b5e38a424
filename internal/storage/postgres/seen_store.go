// Package postgres persists seen link sets in Postgres so restarts do not re-announce
// listings that were already on the page.
package postgres

import (
	"context"
	"fmt"
	"regexp"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

var validTableName = regexp.MustCompile(`^[a-zA-Z_][a-zA-Z0-9_]*$`)

// SeenStoreConfig controls the Postgres connection pool used for seen links.
type SeenStoreConfig struct {
	DSN             string
	Table           string
	MaxConns        int32
	MinConns        int32
	MaxConnLifetime time.Duration
}

type pool interface {
	Exec(context.Context, string, ...any) (pgconn.CommandTag, error)
	Query(context.Context, string, ...any) (pgx.Rows, error)
	Begin(context.Context) (pgx.Tx, error)
	Ping(context.Context) error
	Close()
}

// SeenStore stores one row per (source, link).
type SeenStore struct {
	pool  pool
	table string
}

// NewSeenStore connects to Postgres and ensures the table exists.
func NewSeenStore(ctx context.Context, cfg SeenStoreConfig) (*SeenStore, error) {
	if cfg.DSN == "" {
		return nil, fmt.Errorf("db.dsn is required")
	}
	poolCfg, err := pgxpool.ParseConfig(cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("parse postgres dsn: %w", err)
	}
	if cfg.MaxConns > 0 {
		poolCfg.MaxConns = cfg.MaxConns
	}
	if cfg.MinConns > 0 {
		poolCfg.MinConns = cfg.MinConns
	}
	if cfg.MaxConnLifetime > 0 {
		poolCfg.MaxConnLifetime = cfg.MaxConnLifetime
	}
	p, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}
	store, err := NewSeenStoreWithPool(p, cfg.Table)
	if err != nil {
		p.Close()
		return nil, err
	}
	if err := store.EnsureSchema(ctx); err != nil {
		p.Close()
		return nil, err
	}
	return store, nil
}

// NewSeenStoreWithPool constructs a store from an existing pool (primarily for testing).
func NewSeenStoreWithPool(p pool, table string) (*SeenStore, error) {
	if p == nil {
		return nil, fmt.Errorf("pool is required")
	}
	if table == "" {
		table = "seen_links"
	}
	if !validTableName.MatchString(table) {
		return nil, fmt.Errorf("invalid table name %q", table)
	}
	return &SeenStore{pool: p, table: table}, nil
}

// Close releases the underlying pool resources.
func (s *SeenStore) Close() {
	if s == nil || s.pool == nil {
		return
	}
	s.pool.Close()
}

// Ping checks that the database is reachable.
func (s *SeenStore) Ping(ctx context.Context) error {
	if err := s.pool.Ping(ctx); err != nil {
		return fmt.Errorf("ping postgres: %w", err)
	}
	return nil
}

// EnsureSchema creates the seen links table when missing.
func (s *SeenStore) EnsureSchema(ctx context.Context) error {
	query := fmt.Sprintf(`
CREATE TABLE IF NOT EXISTS %s (
	source  TEXT NOT NULL,
	link    TEXT NOT NULL,
	seen_at TIMESTAMPTZ NOT NULL DEFAULT now(),
	PRIMARY KEY (source, link)
)`, s.table)
	if _, err := s.pool.Exec(ctx, query); err != nil {
		return fmt.Errorf("create %s: %w", s.table, err)
	}
	return nil
}

// Load returns the links stored for source. ok is false when the source has never been swept.
func (s *SeenStore) Load(ctx context.Context, source string) ([]string, bool, error) {
	query := fmt.Sprintf(`SELECT link FROM %s WHERE source = $1 ORDER BY link`, s.table)
	rows, err := s.pool.Query(ctx, query, source)
	if err != nil {
		return nil, false, fmt.Errorf("query seen links: %w", err)
	}
	links, err := pgx.CollectRows(rows, pgx.RowTo[string])
	if err != nil {
		return nil, false, fmt.Errorf("scan seen links: %w", err)
	}
	return links, len(links) > 0, nil
}

// Replace swaps the stored set for source in a single transaction.
func (s *SeenStore) Replace(ctx context.Context, source string, links []string) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin replace: %w", err)
	}
	defer tx.Rollback(ctx) //nolint:errcheck // no-op after commit

	if _, err := tx.Exec(ctx, fmt.Sprintf(`DELETE FROM %s WHERE source = $1`, s.table), source); err != nil {
		return fmt.Errorf("delete seen links: %w", err)
	}
	if len(links) > 0 {
		insert := fmt.Sprintf(`
INSERT INTO %s (source, link)
SELECT $1, unnest($2::text[])
ON CONFLICT (source, link) DO NOTHING`, s.table)
		if _, err := tx.Exec(ctx, insert, source, links); err != nil {
			return fmt.Errorf("insert seen links: %w", err)
		}
	}
	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit replace: %w", err)
	}
	return nil
}

// Delete removes every stored link for source.
func (s *SeenStore) Delete(ctx context.Context, source string) error {
	if _, err := s.pool.Exec(ctx, fmt.Sprintf(`DELETE FROM %s WHERE source = $1`, s.table), source); err != nil {
		return fmt.Errorf("delete seen links: %w", err)
	}
	return nil
}
