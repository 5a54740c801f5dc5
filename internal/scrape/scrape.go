// Package scrape wraps the external page scraping providers. Scrapers never
// return Go errors for a failed page: every call produces an Outcome so the
// fan-out engine can treat failures as data.
package scrape

import (
	"context"
	"time"
)

// Timeout is the fixed per-scrape deadline enforced by every scraper.
const Timeout = 15 * time.Second

// MaxCacheAge is the content-cache hint passed to providers that support it.
const MaxCacheAge = 12 * time.Hour

// Outcome is the terminal result of one scrape attempt. Either Content is
// non-empty and Failure is empty, or the reverse; never both.
type Outcome struct {
	URL     string
	Title   string
	Content string
	Failure string
}

// OK reports whether the scrape yielded usable content.
func (o Outcome) OK() bool { return o.Failure == "" && o.Content != "" }

func failure(url, cause string) Outcome {
	return Outcome{URL: url, Failure: cause}
}

// Scraper fetches a single page. Timeout, provider error, and empty text all
// produce a failure Outcome carrying the url and cause.
type Scraper interface {
	Scrape(ctx context.Context, url string) Outcome
}

// Limiter is the process-wide counting semaphore bounding concurrent scrapes
// across all jobs, protecting the external provider from overload.
type Limiter struct {
	sem chan struct{}
}

// NewLimiter creates a limiter admitting at most n concurrent scrapes.
func NewLimiter(n int) *Limiter {
	if n < 1 {
		n = 1
	}
	return &Limiter{sem: make(chan struct{}, n)}
}

// Acquire blocks until a slot is free or ctx is done.
func (l *Limiter) Acquire(ctx context.Context) error {
	select {
	case l.sem <- struct{}{}:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Release frees a slot taken by Acquire.
func (l *Limiter) Release() {
	<-l.sem
}
