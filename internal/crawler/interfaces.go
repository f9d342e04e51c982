package crawler

import (
	"context"
	"io"
)

// Fetcher performs a single attempt against a URL.
type Fetcher interface {
	Fetch(ctx context.Context, request FetchRequest) (FetchResponse, error)
}

// Classifier decides which subscription kind a response belongs to.
type Classifier interface {
	Classify(resp FetchResponse) (Record, bool)
}

// BlobStore writes artifacts and returns a URI.
type BlobStore interface {
	PutObject(ctx context.Context, path string, contentType string, data io.Reader) (string, error)
}

// HistoryStore appends classified records for a run.
type HistoryStore interface {
	RecordRun(ctx context.Context, runID string, records []Record) error
	Close() error
}

// Notifier delivers a finished report as a named document.
type Notifier interface {
	SendDocument(ctx context.Context, filename string, data io.Reader) error
}

// Limiter paces requests per host.
type Limiter interface {
	Wait(ctx context.Context, rawURL string) error
}
