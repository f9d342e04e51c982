// Package pipeline runs one harvest pass: discover candidates from sources,
// probe and classify them, merge the results into the known state, and write
// the outputs.
package pipeline

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"slices"
	"time"

	"github.com/google/uuid"
	"github.com/samber/lo"
	"go.uber.org/zap"

	"github.com/JakeFAU/subharvest/internal/crawler"
	"github.com/JakeFAU/subharvest/internal/dispatcher"
	"github.com/JakeFAU/subharvest/internal/extract"
	"github.com/JakeFAU/subharvest/internal/progress"
	"github.com/JakeFAU/subharvest/internal/report"
	"github.com/JakeFAU/subharvest/internal/retry"
	"github.com/JakeFAU/subharvest/internal/sources"
	"github.com/JakeFAU/subharvest/internal/state"
)

// Options tunes discovery and output.
type Options struct {
	// ExcludeHosts drops extracted URLs on these domains or their subdomains.
	ExcludeHosts []string
	// Exclude drops extracted URLs containing any of these substrings.
	Exclude []string
	// Keywords and Suffixes narrow URLs taken from free-form sites.
	Keywords []string
	Suffixes []string
	// FollowLinks also considers anchor targets on configured sites.
	FollowLinks  bool
	PageTimeout  time.Duration
	ProbeTimeout time.Duration
	// Concurrency bounds in-flight fetches in each phase.
	Concurrency int
	Retry       retry.Policy
	// BarWriter, when set, renders a progress bar for the probe phase.
	BarWriter io.Writer
	// StatePath, when set, receives the merged state.
	StatePath string
	// ReportName is the object path of the text report in the blob store.
	ReportName string
	// RunID overrides the generated run identifier.
	RunID uuid.UUID
}

// Deps are the collaborators of a run. Fetcher, Classifier, and Blob are
// required; the rest may be nil.
type Deps struct {
	Fetcher    crawler.Fetcher
	Classifier crawler.Classifier
	Blob       crawler.BlobStore
	History    crawler.HistoryStore
	Notifier   crawler.Notifier
	Limiter    crawler.Limiter
	Emitter    progress.Emitter
	Logger     *zap.Logger
}

// Result is the outcome of a run.
type Result struct {
	RunID      uuid.UUID
	Candidates []string
	Records    []crawler.Record
	State      state.CategorizedSet
	Report     []string
	ReportURI  string
	Stats      dispatcher.Stats
}

// Pipeline wires the run stages together.
type Pipeline struct {
	deps   Deps
	opts   Options
	logger *zap.Logger
}

// New validates deps and returns a Pipeline.
func New(deps Deps, opts Options) (*Pipeline, error) {
	switch {
	case deps.Fetcher == nil:
		return nil, errors.New("pipeline requires a fetcher")
	case deps.Classifier == nil:
		return nil, errors.New("pipeline requires a classifier")
	case deps.Blob == nil:
		return nil, errors.New("pipeline requires a blob store")
	}
	if opts.PageTimeout <= 0 {
		opts.PageTimeout = 10 * time.Second
	}
	if opts.ProbeTimeout <= 0 {
		opts.ProbeTimeout = 5 * time.Second
	}
	if opts.ReportName == "" {
		opts.ReportName = "subscribe.txt"
	}
	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Pipeline{deps: deps, opts: opts, logger: logger.Named("pipeline")}, nil
}

// Run executes one pass. existing is not modified; the merged state is
// returned in Result.State. Only failures to persist the state or the report
// are returned as errors.
func (p *Pipeline) Run(ctx context.Context, src crawler.Sources, existing state.CategorizedSet) (Result, error) {
	runID := p.opts.RunID
	if runID == uuid.Nil {
		runID = uuid.New()
	}
	if existing == nil {
		existing = state.New()
	}
	start := time.Now()
	res := Result{RunID: runID}
	p.emit(runID, progress.Event{Stage: progress.StageRunStart})

	candidates, err := p.discover(ctx, runID, src)
	if err != nil {
		p.emit(runID, progress.Event{Stage: progress.StageRunError, Dur: time.Since(start), Note: err.Error()})
		return res, err
	}
	res.Candidates = candidates
	p.logger.Info("candidates discovered", zap.Int("count", len(candidates)))

	records, stats, err := p.probe(ctx, runID, candidates)
	res.Stats = stats
	if err != nil {
		p.emit(runID, progress.Event{Stage: progress.StageRunError, Dur: time.Since(start), Note: err.Error()})
		return res, err
	}
	res.Records = records
	p.logger.Info("probe finished",
		zap.Int64("classified", stats.Classified),
		zap.Int64("unmatched", stats.Unmatched),
		zap.Int64("failed", stats.Failed))

	res.State, res.Report = state.Merge(existing, records)
	for _, line := range res.Report {
		p.logger.Info(line)
	}

	if err := p.persist(ctx, &res); err != nil {
		p.emit(runID, progress.Event{Stage: progress.StageRunError, Dur: time.Since(start), Note: err.Error()})
		return res, err
	}
	p.emit(runID, progress.Event{Stage: progress.StageRunDone, Dur: time.Since(start)})
	return res, nil
}

// discover fetches channel pages and sites and extracts candidate URLs.
func (p *Pipeline) discover(ctx context.Context, runID uuid.UUID, src crawler.Sources) ([]string, error) {
	type page struct {
		url  string
		site bool
	}
	pages := lo.Map(sources.ChannelURLs(src), func(u string, _ int) page { return page{url: u} })
	pages = append(pages, lo.Map(sources.SiteURLs(src), func(u string, _ int) page { return page{url: u, site: true} })...)
	if len(pages) == 0 {
		return nil, nil
	}
	isSite := lo.SliceToMap(pages, func(pg page) (string, bool) { return pg.url, pg.site })

	channelFilter := extract.Filter{ExcludeHosts: p.opts.ExcludeHosts, Exclude: p.opts.Exclude}
	siteFilter := extract.Filter{
		ExcludeHosts: p.opts.ExcludeHosts,
		Exclude:      p.opts.Exclude,
		Keywords:     p.opts.Keywords,
		Suffixes:     p.opts.Suffixes,
	}

	found := make(chan []string)
	collected := collect(found)
	// Source pages are not candidates, so this pass reports no candidate events.
	pool := dispatcher.New(p.dispatchConfig(runID, nil), nil, p.logger)
	_, err := pool.RunAll(ctx, lo.Keys(isSite), func(ctx context.Context, pageURL string) (dispatcher.Result, error) {
		resp, err := p.fetch(ctx, runID, pageURL, crawler.BrowserHeaders(pageURL), p.opts.PageTimeout)
		if err != nil {
			return dispatcher.Result{}, err
		}
		if !resp.OK() {
			p.logger.Warn("source page returned non-2xx",
				zap.String("url", pageURL),
				zap.Int("status", resp.StatusCode))
			return dispatcher.Result{Outcome: progress.OutcomeUnmatched}, nil
		}
		filter := channelFilter
		if isSite[pageURL] {
			filter = siteFilter
		}
		urls := extract.Extract(string(resp.Body), filter)
		if isSite[pageURL] && p.opts.FollowLinks {
			urls = append(urls, lo.Filter(extract.Links(pageURL, resp.Body), func(u string, _ int) bool {
				return filter.Allow(u)
			})...)
		}
		p.logger.Info("source page scanned", zap.String("url", pageURL), zap.Int("links", len(urls)))
		found <- urls
		return dispatcher.Result{Outcome: progress.OutcomeClassified, Kind: "source"}, nil
	})
	close(found)
	batches := <-collected
	if err != nil {
		return nil, fmt.Errorf("discover candidates: %w", err)
	}
	candidates := lo.Uniq(lo.Flatten(batches))
	slices.Sort(candidates)
	return candidates, nil
}

// probe fetches every candidate with the proxy-client profile and classifies it.
func (p *Pipeline) probe(ctx context.Context, runID uuid.UUID, candidates []string) ([]crawler.Record, dispatcher.Stats, error) {
	out := make(chan crawler.Record)
	collected := collect(out)
	pool := dispatcher.New(p.dispatchConfig(runID, p.opts.BarWriter), p.deps.Emitter, p.logger)
	stats, err := pool.RunAll(ctx, candidates, func(ctx context.Context, candidate string) (dispatcher.Result, error) {
		resp, err := p.fetch(ctx, runID, candidate, crawler.ProxyClientHeaders(), p.opts.ProbeTimeout)
		if err != nil {
			return dispatcher.Result{}, err
		}
		rec, ok := p.deps.Classifier.Classify(resp)
		if !ok {
			return dispatcher.Result{Outcome: progress.OutcomeUnmatched}, nil
		}
		// Candidates are compared by their exact discovered string.
		rec.URL = candidate
		out <- rec
		return dispatcher.Result{Outcome: progress.OutcomeClassified, Kind: string(rec.Kind)}, nil
	})
	close(out)
	records := <-collected
	if err != nil {
		return records, stats, fmt.Errorf("probe candidates: %w", err)
	}
	return records, stats, nil
}

func (p *Pipeline) fetch(
	ctx context.Context,
	runID uuid.UUID,
	rawURL string,
	headers http.Header,
	timeout time.Duration,
) (crawler.FetchResponse, error) {
	if p.deps.Limiter != nil {
		if err := p.deps.Limiter.Wait(ctx, rawURL); err != nil {
			return crawler.FetchResponse{}, err
		}
	}
	resp, err := p.deps.Fetcher.Fetch(ctx, crawler.FetchRequest{
		URL:     rawURL,
		Headers: headers,
		Timeout: timeout,
	})
	evt := progress.Event{
		Stage:       progress.StageFetchDone,
		URL:         rawURL,
		Site:        dispatcher.Site(rawURL),
		StatusClass: progress.ClassifyStatus(resp.StatusCode),
		Bytes:       int64(len(resp.Body)),
		Dur:         resp.Duration,
	}
	if err != nil {
		evt.Note = err.Error()
		p.logger.Debug("fetch failed", zap.String("url", rawURL), zap.Error(err))
	}
	p.emit(runID, evt)
	return resp, err
}

// persist writes the state file and report, then records history and sends
// the notification. Only the first two are fatal.
func (p *Pipeline) persist(ctx context.Context, res *Result) error {
	if p.opts.StatePath != "" {
		if err := state.Save(p.opts.StatePath, res.State); err != nil {
			return fmt.Errorf("persist state: %w", err)
		}
		p.logger.Info("state saved", zap.String("path", p.opts.StatePath))
	}

	body := report.Render(res.State)
	uri, err := p.deps.Blob.PutObject(ctx, p.opts.ReportName, report.ContentType, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("persist report: %w", err)
	}
	res.ReportURI = uri
	p.logger.Info("report written", zap.String("uri", uri))

	if p.deps.History != nil {
		if err := p.deps.History.RecordRun(ctx, res.RunID.String(), res.Records); err != nil {
			p.logger.Warn("history not recorded", zap.Error(err))
		}
	}
	if p.deps.Notifier != nil {
		if err := p.deps.Notifier.SendDocument(ctx, p.opts.ReportName, bytes.NewReader(body)); err != nil {
			p.logger.Warn("report notification failed", zap.Error(err))
		}
	}
	return nil
}

func (p *Pipeline) dispatchConfig(runID uuid.UUID, bar io.Writer) dispatcher.Config {
	return dispatcher.Config{
		Concurrency: p.opts.Concurrency,
		Retry:       p.opts.Retry,
		RunID:       progress.UUIDToBytes(runID),
		BarWriter:   bar,
	}
}

func (p *Pipeline) emit(runID uuid.UUID, evt progress.Event) {
	if p.deps.Emitter == nil {
		return
	}
	evt.RunID = progress.UUIDToBytes(runID)
	evt.TS = time.Now().UTC()
	p.deps.Emitter.Emit(evt)
}

// collect drains in on a single goroutine and delivers the accumulated slice
// once in is closed.
func collect[T any](in <-chan T) <-chan []T {
	done := make(chan []T, 1)
	go func() {
		var acc []T
		for v := range in {
			acc = append(acc, v)
		}
		done <- acc
	}()
	return done
}
