// Package history opens the optional per-run record log.
package history

import (
	"context"
	"fmt"
	"strings"

	"github.com/JakeFAU/subharvest/internal/crawler"
	"github.com/JakeFAU/subharvest/internal/history/postgres"
	"github.com/JakeFAU/subharvest/internal/history/sqlite"
)

// Supported drivers.
const (
	DriverNone     = "none"
	DriverSQLite   = "sqlite"
	DriverPostgres = "postgres"
)

// Config selects and configures the history backend.
type Config struct {
	Driver string
	DSN    string
	Table  string
}

// Open returns the configured store, or nil when history is disabled.
func Open(ctx context.Context, cfg Config) (crawler.HistoryStore, error) {
	switch strings.ToLower(strings.TrimSpace(cfg.Driver)) {
	case "", DriverNone:
		return nil, nil
	case DriverSQLite:
		s, err := sqlite.Open(ctx, cfg.DSN, cfg.Table)
		if err != nil {
			return nil, fmt.Errorf("open sqlite history: %w", err)
		}
		return s, nil
	case DriverPostgres:
		s, err := postgres.Open(ctx, postgres.Config{DSN: cfg.DSN, Table: cfg.Table})
		if err != nil {
			return nil, fmt.Errorf("open postgres history: %w", err)
		}
		return s, nil
	default:
		return nil, fmt.Errorf("unknown history driver %q", cfg.Driver)
	}
}
