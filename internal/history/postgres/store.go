// Package postgres records classified subscription endpoints per run in Postgres.
package postgres

import (
	"context"
	"fmt"
	"regexp"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/JakeFAU/subharvest/internal/crawler"
)

const defaultTable = "subscription_history"

var validTableName = regexp.MustCompile(`^[a-zA-Z_][a-zA-Z0-9_]*$`)

// Config controls the connection pool and target table.
type Config struct {
	DSN             string
	Table           string
	MaxConns        int32
	MaxConnLifetime time.Duration
}

type pool interface {
	Begin(context.Context) (pgx.Tx, error)
	Exec(context.Context, string, ...any) (pgconn.CommandTag, error)
	Close()
}

// Store appends records to a Postgres table.
type Store struct {
	pool  pool
	table string
	now   func() time.Time
}

// Open connects to Postgres and ensures the history table exists.
func Open(ctx context.Context, cfg Config) (*Store, error) {
	if cfg.DSN == "" {
		return nil, fmt.Errorf("history.dsn is required")
	}
	poolCfg, err := pgxpool.ParseConfig(cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("parse postgres dsn: %w", err)
	}
	if cfg.MaxConns > 0 {
		poolCfg.MaxConns = cfg.MaxConns
	}
	if cfg.MaxConnLifetime > 0 {
		poolCfg.MaxConnLifetime = cfg.MaxConnLifetime
	}
	p, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}
	s, err := NewWithPool(p, cfg.Table)
	if err != nil {
		p.Close()
		return nil, err
	}
	if err := s.EnsureSchema(ctx); err != nil {
		p.Close()
		return nil, err
	}
	return s, nil
}

// NewWithPool builds a Store from an existing pool.
func NewWithPool(p pool, table string) (*Store, error) {
	if p == nil {
		return nil, fmt.Errorf("pool is required")
	}
	if table == "" {
		table = defaultTable
	}
	if !validTableName.MatchString(table) {
		return nil, fmt.Errorf("invalid table name %q", table)
	}
	return &Store{pool: p, table: table, now: time.Now}, nil
}

// EnsureSchema creates the history table when missing.
func (s *Store) EnsureSchema(ctx context.Context) error {
	query := fmt.Sprintf(`
CREATE TABLE IF NOT EXISTS %s (
	run_id      UUID        NOT NULL,
	url         TEXT        NOT NULL,
	kind        TEXT        NOT NULL,
	upload      BIGINT,
	download    BIGINT,
	total       BIGINT,
	expire_at   TIMESTAMPTZ,
	recorded_at TIMESTAMPTZ NOT NULL,
	PRIMARY KEY (run_id, url)
)`, s.table)
	if _, err := s.pool.Exec(ctx, query); err != nil {
		return fmt.Errorf("create history table: %w", err)
	}
	return nil
}

// RecordRun inserts every record for runID in one transaction.
func (s *Store) RecordRun(ctx context.Context, runID string, records []crawler.Record) (err error) {
	if runID == "" {
		return fmt.Errorf("run id is required")
	}
	if len(records) == 0 {
		return nil
	}
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin history tx: %w", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback(ctx)
		}
	}()

	query := fmt.Sprintf(`
INSERT INTO %s (run_id, url, kind, upload, download, total, expire_at, recorded_at)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8)
ON CONFLICT (run_id, url) DO NOTHING`, s.table)
	recordedAt := s.now().UTC()
	for _, rec := range records {
		var upload, download, total *int64
		var expire *time.Time
		if rec.Traffic != nil {
			upload, download, total = &rec.Traffic.Upload, &rec.Traffic.Download, &rec.Traffic.Total
			if !rec.Traffic.Expire.IsZero() {
				expire = &rec.Traffic.Expire
			}
		}
		if _, err = tx.Exec(ctx, query, runID, rec.URL, string(rec.Kind), upload, download, total, expire, recordedAt); err != nil {
			return fmt.Errorf("insert history %s: %w", rec.URL, err)
		}
	}
	if err = tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit history: %w", err)
	}
	return nil
}

// Close releases the pool.
func (s *Store) Close() error {
	if s == nil || s.pool == nil {
		return nil
	}
	s.pool.Close()
	return nil
}
