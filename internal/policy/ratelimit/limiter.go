// Package ratelimit spaces out requests to the same host with token buckets.
package ratelimit

import (
	"context"
	"fmt"
	"net/url"
	"strings"
	"sync"

	"golang.org/x/time/rate"
)

// Config sets the bucket applied to every host.
type Config struct {
	// PerHostRPS is the sustained request rate per host; zero or less disables limiting.
	PerHostRPS float64
	Burst      int
}

// Limiter holds one bucket per host, created on first use.
type Limiter struct {
	mu       sync.Mutex
	limiters map[string]*rate.Limiter
	limit    rate.Limit
	burst    int
}

// New creates a Limiter.
func New(cfg Config) *Limiter {
	limit := rate.Limit(cfg.PerHostRPS)
	if cfg.PerHostRPS <= 0 {
		limit = rate.Inf
	}
	burst := cfg.Burst
	if burst <= 0 {
		burst = 1
	}
	return &Limiter{
		limiters: make(map[string]*rate.Limiter),
		limit:    limit,
		burst:    burst,
	}
}

// Wait blocks until rawURL's host may be contacted again or ctx ends.
func (l *Limiter) Wait(ctx context.Context, rawURL string) error {
	if l.limit == rate.Inf {
		return nil
	}
	if err := l.bucket(host(rawURL)).Wait(ctx); err != nil {
		return fmt.Errorf("rate limit wait: %w", err)
	}
	return nil
}

// hosts returns the number of hosts seen so far.
func (l *Limiter) hosts() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.limiters)
}

func (l *Limiter) bucket(h string) *rate.Limiter {
	l.mu.Lock()
	defer l.mu.Unlock()
	b, ok := l.limiters[h]
	if !ok {
		b = rate.NewLimiter(l.limit, l.burst)
		l.limiters[h] = b
	}
	return b
}

func host(rawURL string) string {
	u, err := url.Parse(rawURL)
	if err != nil || u.Hostname() == "" {
		return "unknown"
	}
	return strings.ToLower(u.Hostname())
}
