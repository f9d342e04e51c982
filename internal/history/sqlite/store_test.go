package sqlite

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/JakeFAU/subharvest/internal/crawler"
)

func TestRecordRunAndCount(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "db", "history.db")
	store, err := Open(ctx, path, "")
	require.NoError(t, err)
	defer func() { require.NoError(t, store.Close()) }()

	records := []crawler.Record{
		{URL: "https://a.example.com/sub", Kind: crawler.KindAirport, Traffic: &crawler.Traffic{
			Upload: 1, Download: 1, Total: 10, Expire: time.Unix(1700000000, 0),
		}},
		{URL: "https://c.example.com/clash", Kind: crawler.KindClash},
		{URL: "https://d.example.com/clash", Kind: crawler.KindClash},
		// Duplicate URLs within a run are ignored.
		{URL: "https://d.example.com/clash", Kind: crawler.KindClash},
	}
	require.NoError(t, store.RecordRun(ctx, "run-1", records))
	require.NoError(t, store.RecordRun(ctx, "run-2", records[:1]))

	counts, err := store.runs(ctx, "run-1")
	require.NoError(t, err)
	require.Equal(t, map[crawler.Kind]int{crawler.KindAirport: 1, crawler.KindClash: 2}, counts)

	counts, err = store.runs(ctx, "run-2")
	require.NoError(t, err)
	require.Equal(t, map[crawler.Kind]int{crawler.KindAirport: 1}, counts)
}

func TestOpenValidation(t *testing.T) {
	t.Parallel()

	_, err := Open(context.Background(), "", "")
	require.ErrorContains(t, err, "history.dsn")

	_, err = Open(context.Background(), filepath.Join(t.TempDir(), "h.db"), "drop table")
	require.ErrorContains(t, err, "invalid table name")
}

func TestRecordRunEmpty(t *testing.T) {
	t.Parallel()

	store, err := Open(context.Background(), filepath.Join(t.TempDir(), "h.db"), "runs")
	require.NoError(t, err)
	defer store.Close() //nolint:errcheck // test cleanup

	require.NoError(t, store.RecordRun(context.Background(), "run", nil))
	require.ErrorContains(t, store.RecordRun(context.Background(), "", nil), "run id")
}
