// Package collyfetcher implements Fetcher using gocolly.
package collyfetcher

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/gocolly/colly/v2"

	"github.com/JakeFAU/subharvest/internal/crawler"
)

const defaultTimeout = 10 * time.Second

// Config controls collector behavior.
type Config struct {
	// Timeout is the per-attempt default when a request carries none.
	Timeout time.Duration
	// MaxBodySize caps the bytes read per response; zero keeps the colly default.
	MaxBodySize int
}

// Fetcher implements crawler.Fetcher using the Colly collector. Each call
// clones the base collector so concurrent fetches never share callbacks.
type Fetcher struct {
	cfg           Config
	baseCollector *colly.Collector
}

type collectorHooks interface {
	OnResponse(colly.ResponseCallback)
	OnError(colly.ErrorCallback)
}

// New builds a Fetcher.
func New(cfg Config) *Fetcher {
	if cfg.Timeout <= 0 {
		cfg.Timeout = defaultTimeout
	}
	c := colly.NewCollector(colly.Async(false))
	// Non-2xx bodies still reach OnResponse; the classifier decides relevance.
	c.ParseHTTPErrorResponse = true
	// Retries revisit the same URL.
	c.AllowURLRevisit = true
	c.IgnoreRobotsTxt = true
	if cfg.MaxBodySize > 0 {
		c.MaxBodySize = cfg.MaxBodySize
	}
	c.WithTransport(newHTTPTransport())
	// Upper bound only; each attempt is bounded by its own context deadline.
	c.SetRequestTimeout(4 * cfg.Timeout)

	return &Fetcher{
		cfg:           cfg,
		baseCollector: c,
	}
}

// Fetch executes a single request. Transport failures come back as
// *crawler.FetchError; every HTTP status is a successful response.
func (f *Fetcher) Fetch(ctx context.Context, request crawler.FetchRequest) (crawler.FetchResponse, error) {
	timeout := request.Timeout
	if timeout <= 0 {
		timeout = f.cfg.Timeout
	}
	attemptCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	var (
		result   crawler.FetchResponse
		fetchErr error
		got      bool
	)
	start := time.Now()
	collector := f.baseCollector.Clone()
	collector.Context = attemptCtx
	f.configureCollectorHooks(collector, start, &result, &got, &fetchErr)

	if err := f.runCollector(attemptCtx, collector, request); err != nil {
		return crawler.FetchResponse{}, crawler.NewFetchError(err)
	}
	if fetchErr != nil {
		return crawler.FetchResponse{}, crawler.NewFetchError(fetchErr)
	}
	if !got {
		return crawler.FetchResponse{}, &crawler.FetchError{
			Kind:    crawler.FailureOther,
			Message: "colly fetch produced no response",
		}
	}
	return result, nil
}

func (f *Fetcher) configureCollectorHooks(
	hooks collectorHooks,
	start time.Time,
	result *crawler.FetchResponse,
	got *bool,
	fetchErr *error,
) {
	hooks.OnResponse(func(r *colly.Response) {
		headers := http.Header{}
		if r.Headers != nil {
			headers = r.Headers.Clone()
		}
		*result = crawler.FetchResponse{
			URL:        r.Request.URL.String(),
			StatusCode: r.StatusCode,
			Headers:    headers,
			Body:       append([]byte(nil), r.Body...),
			Duration:   time.Since(start),
		}
		*got = true
	})

	hooks.OnError(func(r *colly.Response, err error) {
		// With ParseHTTPErrorResponse set, only transport errors land here.
		if r != nil && r.StatusCode > 0 {
			return
		}
		if err == nil {
			err = errors.New("unknown colly error")
		}
		*fetchErr = err
	})
}

func (f *Fetcher) runCollector(ctx context.Context, collector *colly.Collector, request crawler.FetchRequest) error {
	method := strings.ToUpper(strings.TrimSpace(request.Method))
	if method == "" {
		method = http.MethodGet
	}
	headers := request.Headers.Clone()
	if headers == nil {
		headers = http.Header{}
	}

	done := make(chan error, 1)
	go func() {
		done <- collector.Request(method, request.URL, nil, nil, headers)
	}()

	select {
	case <-ctx.Done():
		return fmt.Errorf("colly fetch %s: %w", request.URL, ctx.Err())
	case err := <-done:
		if err != nil {
			return fmt.Errorf("colly request %s: %w", request.URL, err)
		}
		return nil
	}
}

func newHTTPTransport() *http.Transport {
	return &http.Transport{
		Proxy: http.ProxyFromEnvironment,
		DialContext: (&net.Dialer{
			Timeout:   10 * time.Second,
			KeepAlive: 30 * time.Second,
		}).DialContext,
		TLSHandshakeTimeout:   10 * time.Second,
		ExpectContinueTimeout: 1 * time.Second,
		MaxIdleConns:          128,
		MaxIdleConnsPerHost:   8,
		IdleConnTimeout:       90 * time.Second,
		ForceAttemptHTTP2:     true,
	}
}
