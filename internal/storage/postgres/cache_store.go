// Package postgres provides a Postgres-backed poster cache store.
package postgres

import (
	"context"
	"fmt"
	"regexp"
	"sync"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"
)

var validTableName = regexp.MustCompile(`^[a-zA-Z_][a-zA-Z0-9_]*$`)

const defaultTable = "poster_cache"

// CacheStoreConfig controls the Postgres connection pool used for cache rows.
type CacheStoreConfig struct {
	DSN             string
	Table           string
	MaxConns        int32
	MinConns        int32
	MaxConnLifetime time.Duration
	AutoMigrate     bool
}

type queryExecCloser interface {
	Exec(context.Context, string, ...any) (pgconn.CommandTag, error)
	Query(context.Context, string, ...any) (pgx.Rows, error)
	Ping(context.Context) error
	Close()
}

// CacheStore mirrors the cache table in memory. The table is read once at open and every
// Put is written through with an upsert.
type CacheStore struct {
	pool    queryExecCloser
	table   string
	logger  *zap.Logger
	mu      sync.RWMutex
	entries map[string]string
}

// Open connects to Postgres and loads the cache table.
func Open(ctx context.Context, cfg CacheStoreConfig, logger *zap.Logger) (*CacheStore, error) {
	if cfg.DSN == "" {
		return nil, fmt.Errorf("db.dsn is required")
	}
	table, err := tableName(cfg.Table)
	if err != nil {
		return nil, err
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
	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}
	return OpenWithPool(ctx, pool, table, cfg.AutoMigrate, logger)
}

// OpenWithPool constructs a store from an existing pool (primarily for testing).
func OpenWithPool(
	ctx context.Context,
	pool queryExecCloser,
	table string,
	autoMigrate bool,
	logger *zap.Logger,
) (*CacheStore, error) {
	if pool == nil {
		return nil, fmt.Errorf("pool is required")
	}
	table, err := tableName(table)
	if err != nil {
		return nil, err
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	s := &CacheStore{pool: pool, table: table, logger: logger}
	if autoMigrate {
		if err := s.ensureTable(ctx); err != nil {
			pool.Close()
			return nil, err
		}
	}
	s.entries = s.Load(ctx)
	logger.Info("poster cache loaded", zap.String("table", table), zap.Int("entries", len(s.entries)))
	return s, nil
}

func tableName(table string) (string, error) {
	if table == "" {
		table = defaultTable
	}
	if !validTableName.MatchString(table) {
		return "", fmt.Errorf("invalid table name %q", table)
	}
	return table, nil
}

func (s *CacheStore) ensureTable(ctx context.Context) error {
	query := fmt.Sprintf(`
CREATE TABLE IF NOT EXISTS %s (
	cache_key  TEXT PRIMARY KEY,
	file_path  TEXT NOT NULL,
	updated_at TIMESTAMPTZ NOT NULL DEFAULT now()
)`, s.table)
	if _, err := s.pool.Exec(ctx, query); err != nil {
		return fmt.Errorf("create cache table: %w", err)
	}
	return nil
}

// Load reads every row of the cache table. Query failures are logged and yield an empty map.
func (s *CacheStore) Load(ctx context.Context) map[string]string {
	entries := map[string]string{}
	rows, err := s.pool.Query(ctx, fmt.Sprintf("SELECT cache_key, file_path FROM %s", s.table))
	if err != nil {
		s.logger.Error("error loading cache", zap.String("table", s.table), zap.Error(err))
		return entries
	}
	defer rows.Close()
	for rows.Next() {
		var key, path string
		if err := rows.Scan(&key, &path); err != nil {
			s.logger.Error("error loading cache", zap.String("table", s.table), zap.Error(err))
			return map[string]string{}
		}
		entries[key] = path
	}
	if err := rows.Err(); err != nil {
		s.logger.Error("error loading cache", zap.String("table", s.table), zap.Error(err))
		return map[string]string{}
	}
	return entries
}

// Get returns the path stored under key.
func (s *CacheStore) Get(_ context.Context, key string) (string, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	path, ok := s.entries[key]
	return path, ok
}

// Put records path under key and upserts the row. Write failures are logged.
func (s *CacheStore) Put(ctx context.Context, key, path string) {
	s.mu.Lock()
	s.entries[key] = path
	s.mu.Unlock()

	query := fmt.Sprintf(`
INSERT INTO %s (cache_key, file_path, updated_at)
VALUES ($1, $2, now())
ON CONFLICT (cache_key) DO UPDATE
SET file_path = EXCLUDED.file_path, updated_at = EXCLUDED.updated_at`, s.table)
	if _, err := s.pool.Exec(ctx, query, key, path); err != nil {
		s.logger.Error("error saving cache", zap.String("table", s.table), zap.String("cache_key", key), zap.Error(err))
	}
}

// Snapshot returns a copy of the current mapping.
func (s *CacheStore) Snapshot() map[string]string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make(map[string]string, len(s.entries))
	for k, v := range s.entries {
		out[k] = v
	}
	return out
}

// Ping reports whether the database is reachable.
func (s *CacheStore) Ping(ctx context.Context) error {
	if err := s.pool.Ping(ctx); err != nil {
		return fmt.Errorf("ping postgres: %w", err)
	}
	return nil
}

// Close releases the underlying pool resources. Rows are written through on Put, so there
// is nothing left to flush.
func (s *CacheStore) Close(_ context.Context) error {
	if s == nil || s.pool == nil {
		return nil
	}
	s.pool.Close()
	return nil
}
