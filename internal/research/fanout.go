package research

import (
	"context"
	"log"
	"sync"

	"github.com/delver-dev/delver/internal/sanitize"
	"github.com/delver-dev/delver/internal/scrape"
	"github.com/delver-dev/delver/internal/search"
)

// Fanout turns one query into findings: a search call followed by concurrent
// bounded scrapes of every hit. All launched scrapes reach a terminal outcome
// before the call returns; a single page failing never fails the batch.
type Fanout struct {
	Search          search.Provider
	Scraper         scrape.Scraper
	Limiter         *scrape.Limiter
	ResultsPerQuery int
	Logger          *log.Logger

	// OnScrape, when set, observes each terminal scrape outcome.
	OnScrape func(ok bool)
}

// FetchAndScrape runs the search-then-scrape fan-out for a single query.
// The only error it returns is a search provider failure; scrape failures and
// empty content are logged and excluded. Zero hits or all scrapes failing
// yields an empty slice, which the scheduler treats as "no new findings this
// cycle".
func (f *Fanout) FetchAndScrape(ctx context.Context, q Query) ([]Finding, error) {
	count := f.ResultsPerQuery
	if count <= 0 {
		count = 10
	}
	hits, err := f.Search.Search(ctx, q.Text, count)
	if err != nil {
		return nil, err
	}
	if len(hits) == 0 {
		f.Logger.Printf("query %q returned no hits", q.Text)
		return nil, nil
	}

	outcomes := make(chan scrape.Outcome, len(hits))
	var wg sync.WaitGroup
	for _, hit := range hits {
		wg.Add(1)
		go func(hit search.RawHit) {
			defer wg.Done()
			outcomes <- f.scrapeOne(ctx, hit)
		}(hit)
	}
	// barrier: the evaluator must never see a partially settled cycle
	wg.Wait()
	close(outcomes)

	var findings []Finding
	for out := range outcomes {
		ok := out.OK()
		if f.OnScrape != nil {
			f.OnScrape(ok)
		}
		if !ok {
			f.Logger.Printf("scrape failed for %s: %s", out.URL, out.Failure)
			continue
		}
		content := sanitize.Clean(out.Content)
		if content == "" {
			f.Logger.Printf("dropping %s: empty after sanitization", out.URL)
			continue
		}
		findings = append(findings, Finding{
			URL:     out.URL,
			Title:   out.Title,
			Content: content,
			Cycle:   q.Cycle,
		})
	}
	return findings, nil
}

func (f *Fanout) scrapeOne(ctx context.Context, hit search.RawHit) scrape.Outcome {
	if err := f.Limiter.Acquire(ctx); err != nil {
		return scrape.Outcome{URL: hit.URL, Failure: "cancelled before scrape: " + err.Error()}
	}
	defer f.Limiter.Release()

	out := f.Scraper.Scrape(ctx, hit.URL)
	if out.Title == "" {
		out.Title = hit.Title
	}
	return out
}
