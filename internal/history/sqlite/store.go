// Package sqlite records classified subscription endpoints per run in an
// embedded SQLite database.
package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"time"

	// Registers the pure-Go "sqlite" driver.
	_ "modernc.org/sqlite"

	"github.com/JakeFAU/subharvest/internal/crawler"
)

const defaultTable = "subscription_history"

var validTableName = regexp.MustCompile(`^[a-zA-Z_][a-zA-Z0-9_]*$`)

// Store appends records to a SQLite table.
type Store struct {
	db    *sql.DB
	table string
	now   func() time.Time
}

// Open opens or creates the database file at path.
func Open(ctx context.Context, path, table string) (*Store, error) {
	if path == "" {
		return nil, fmt.Errorf("history.dsn is required")
	}
	if table == "" {
		table = defaultTable
	}
	if !validTableName.MatchString(table) {
		return nil, fmt.Errorf("invalid table name %q", table)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o750); err != nil {
		return nil, fmt.Errorf("create history dir: %w", err)
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	db.SetMaxOpenConns(1)
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping sqlite: %w", err)
	}
	s := &Store{db: db, table: table, now: time.Now}
	if err := s.init(ctx); err != nil {
		_ = db.Close()
		return nil, err
	}
	return s, nil
}

func (s *Store) init(ctx context.Context) error {
	stmts := []string{
		`PRAGMA busy_timeout = 5000`,
		`PRAGMA journal_mode = WAL`,
		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
	run_id      TEXT    NOT NULL,
	url         TEXT    NOT NULL,
	kind        TEXT    NOT NULL,
	upload      INTEGER,
	download    INTEGER,
	total       INTEGER,
	expire_at   INTEGER,
	recorded_at INTEGER NOT NULL,
	PRIMARY KEY (run_id, url)
)`, s.table),
	}
	for _, stmt := range stmts {
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("init sqlite history: %w", err)
		}
	}
	return nil
}

// RecordRun inserts every record for runID in one transaction.
func (s *Store) RecordRun(ctx context.Context, runID string, records []crawler.Record) error {
	if runID == "" {
		return fmt.Errorf("run id is required")
	}
	if len(records) == 0 {
		return nil
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin history tx: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck // no-op after commit

	stmt, err := tx.PrepareContext(ctx, fmt.Sprintf(
		`INSERT OR IGNORE INTO %s (run_id, url, kind, upload, download, total, expire_at, recorded_at)
VALUES (?, ?, ?, ?, ?, ?, ?, ?)`, s.table))
	if err != nil {
		return fmt.Errorf("prepare history insert: %w", err)
	}
	defer stmt.Close()

	recordedAt := s.now().Unix()
	for _, rec := range records {
		var upload, download, total, expire sql.NullInt64
		if t := rec.Traffic; t != nil {
			upload = sql.NullInt64{Int64: t.Upload, Valid: true}
			download = sql.NullInt64{Int64: t.Download, Valid: true}
			total = sql.NullInt64{Int64: t.Total, Valid: true}
			if !t.Expire.IsZero() {
				expire = sql.NullInt64{Int64: t.Expire.Unix(), Valid: true}
			}
		}
		if _, err := stmt.ExecContext(ctx, runID, rec.URL, string(rec.Kind), upload, download, total, expire, recordedAt); err != nil {
			return fmt.Errorf("insert history %s: %w", rec.URL, err)
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit history: %w", err)
	}
	return nil
}

// runs returns the number of records stored per kind for runID.
func (s *Store) runs(ctx context.Context, runID string) (map[crawler.Kind]int, error) {
	rows, err := s.db.QueryContext(ctx,
		fmt.Sprintf(`SELECT kind, COUNT(*) FROM %s WHERE run_id = ? GROUP BY kind`, s.table), runID)
	if err != nil {
		return nil, fmt.Errorf("query history: %w", err)
	}
	defer rows.Close()
	out := map[crawler.Kind]int{}
	for rows.Next() {
		var (
			kind  string
			count int
		)
		if err := rows.Scan(&kind, &count); err != nil {
			return nil, fmt.Errorf("scan history: %w", err)
		}
		out[crawler.Kind(kind)] = count
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate history: %w", err)
	}
	return out, nil
}

// Close closes the database.
func (s *Store) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	if err := s.db.Close(); err != nil {
		return fmt.Errorf("close sqlite: %w", err)
	}
	return nil
}
