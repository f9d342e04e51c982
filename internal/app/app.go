// Package app builds the long-lived services of a harvest run from
// configuration and owns their shutdown.
package app

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"

	"github.com/JakeFAU/subharvest/internal/classify"
	"github.com/JakeFAU/subharvest/internal/config"
	"github.com/JakeFAU/subharvest/internal/crawler"
	collyfetcher "github.com/JakeFAU/subharvest/internal/fetcher/colly"
	"github.com/JakeFAU/subharvest/internal/history"
	"github.com/JakeFAU/subharvest/internal/notify/telegram"
	"github.com/JakeFAU/subharvest/internal/pipeline"
	"github.com/JakeFAU/subharvest/internal/policy/ratelimit"
	"github.com/JakeFAU/subharvest/internal/progress"
	"github.com/JakeFAU/subharvest/internal/progress/sinks"
	"github.com/JakeFAU/subharvest/internal/retry"
	"github.com/JakeFAU/subharvest/internal/sources"
	"github.com/JakeFAU/subharvest/internal/state"
	"github.com/JakeFAU/subharvest/internal/storage/gcs"
	"github.com/JakeFAU/subharvest/internal/storage/local"
	"github.com/JakeFAU/subharvest/internal/telemetry"
)

const shutdownTimeout = 10 * time.Second

// App holds the services shared by a run.
type App struct {
	cfg       config.Config
	logger    *zap.Logger
	registry  *prometheus.Registry
	hub       *progress.Hub
	telemetry *telemetry.Server
	blob      crawler.BlobStore
	history   crawler.HistoryStore
	notifier  crawler.Notifier
	pipeline  *pipeline.Pipeline
	closers   []func(context.Context) error
}

// New initializes every service named by cfg. It fails fast when a required
// backend cannot be reached; a missing Telegram configuration only disables
// notifications.
func New(ctx context.Context, cfg config.Config, logger *zap.Logger) (*App, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	a := &App{cfg: cfg, logger: logger, registry: prometheus.NewRegistry()}
	if err := a.init(ctx); err != nil {
		a.Close()
		return nil, err
	}
	return a, nil
}

func (a *App) init(ctx context.Context) error {
	promSink, err := sinks.NewPrometheusSink(a.registry)
	if err != nil {
		return fmt.Errorf("init metrics sink: %w", err)
	}
	a.hub = progress.NewHub(progress.Config{Logger: a.logger}, sinks.NewLogSink(a.logger), promSink)
	a.closers = append(a.closers, a.hub.Close)

	if a.cfg.Metrics.Addr != "" {
		a.telemetry, err = telemetry.Start(a.cfg.Metrics.Addr, a.registry, a.logger)
		if err != nil {
			return fmt.Errorf("init metrics listener: %w", err)
		}
		a.closers = append(a.closers, a.telemetry.Shutdown)
	}

	reportName, err := a.initBlobStore(ctx)
	if err != nil {
		return err
	}

	a.history, err = history.Open(ctx, history.Config{
		Driver: a.cfg.History.Driver,
		DSN:    a.cfg.History.DSN,
		Table:  a.cfg.History.Table,
	})
	if err != nil {
		return fmt.Errorf("init history: %w", err)
	}
	if a.history != nil {
		h := a.history
		a.closers = append(a.closers, func(context.Context) error { return h.Close() })
		a.logger.Info("history enabled", zap.String("driver", a.cfg.History.Driver))
	}

	if err := a.initNotifier(); err != nil {
		return err
	}

	var bar io.Writer
	if a.cfg.Progress.Bar {
		bar = os.Stderr
	}
	limiter := ratelimit.New(ratelimit.Config{
		PerHostRPS: a.cfg.Pipeline.PerHostRPS,
		Burst:      a.cfg.Pipeline.PerHostBurst,
	})
	a.pipeline, err = pipeline.New(pipeline.Deps{
		Fetcher:    collyfetcher.New(collyfetcher.Config{Timeout: a.cfg.HTTP.PageTimeout}),
		Classifier: classify.New(),
		Blob:       a.blob,
		History:    a.history,
		Notifier:   a.notifier,
		Limiter:    limiter,
		Emitter:    a.hub,
		Logger:     a.logger,
	}, pipeline.Options{
		ExcludeHosts: a.cfg.Pipeline.ExcludeHosts,
		Exclude:      a.cfg.Pipeline.Exclude,
		Keywords:     a.cfg.Pipeline.Keywords,
		Suffixes:     a.cfg.Pipeline.Suffixes,
		FollowLinks:  a.cfg.Pipeline.FollowLinks,
		PageTimeout:  a.cfg.HTTP.PageTimeout,
		ProbeTimeout: a.cfg.HTTP.ProbeTimeout,
		Concurrency:  a.cfg.Pipeline.Concurrency,
		Retry: retry.Policy{
			MaxAttempts: a.cfg.Pipeline.MaxAttempts,
			BaseDelay:   a.cfg.Pipeline.BackoffInitial,
			Multiplier:  2,
			MaxDelay:    a.cfg.Pipeline.BackoffMax,
		},
		BarWriter:  bar,
		StatePath:  a.cfg.State.Path,
		ReportName: reportName,
	})
	if err != nil {
		return fmt.Errorf("init pipeline: %w", err)
	}
	return nil
}

// initBlobStore selects GCS when a bucket is configured and the directory of
// the output path otherwise. It returns the object name of the report.
func (a *App) initBlobStore(ctx context.Context) (string, error) {
	name := filepath.Base(a.cfg.State.OutputPath)
	if a.cfg.Storage.GCSBucket != "" {
		store, err := gcs.Open(ctx, gcs.Config{Bucket: a.cfg.Storage.GCSBucket, Prefix: a.cfg.Storage.Prefix})
		if err != nil {
			return "", fmt.Errorf("init gcs store: %w", err)
		}
		a.blob = store
		a.closers = append(a.closers, func(context.Context) error { return store.Close() })
		a.logger.Info("report output", zap.String("bucket", a.cfg.Storage.GCSBucket))
		return name, nil
	}
	store, err := local.New(local.Config{BaseDir: filepath.Dir(a.cfg.State.OutputPath)})
	if err != nil {
		return "", fmt.Errorf("init local store: %w", err)
	}
	a.blob = store
	a.logger.Info("report output", zap.String("path", a.cfg.State.OutputPath))
	return name, nil
}

func (a *App) initNotifier() error {
	if !a.cfg.NotificationsEnabled() {
		a.logger.Warn("telegram not configured; report will not be sent")
		return nil
	}
	n, err := telegram.New(telegram.Config{
		BotToken: a.cfg.Telegram.BotToken,
		ChatID:   a.cfg.Telegram.ChatID,
		APIBase:  a.cfg.Telegram.APIBase,
	}, nil, a.logger)
	switch {
	case errors.Is(err, telegram.ErrNotConfigured):
		a.logger.Warn("telegram not configured; report will not be sent")
		return nil
	case err != nil:
		return fmt.Errorf("init telegram: %w", err)
	}
	a.notifier = n
	return nil
}

// Logger returns the shared logger.
func (a *App) Logger() *zap.Logger {
	return a.logger
}

// Registry returns the metrics registry the run reports into.
func (a *App) Registry() *prometheus.Registry {
	return a.registry
}

// Run loads the sources and the previous state, then executes one pass.
func (a *App) Run(ctx context.Context) (pipeline.Result, error) {
	src, err := sources.Load(a.cfg.Sources.Path)
	if err != nil {
		return pipeline.Result{}, fmt.Errorf("load sources: %w", err)
	}
	existing, err := state.Load(a.cfg.State.Path)
	if err != nil {
		return pipeline.Result{}, fmt.Errorf("load state: %w", err)
	}
	a.logger.Info("run starting",
		zap.Int("channels", len(src.Channels)),
		zap.Int("sites", len(src.Sites)))
	return a.pipeline.Run(ctx, src, existing)
}

// Close releases services in reverse order of creation.
func (a *App) Close() {
	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](ctx); err != nil {
			a.logger.Warn("service shutdown failed", zap.Error(err))
		}
	}
	a.closers = nil
}
