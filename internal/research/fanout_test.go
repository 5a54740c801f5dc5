package research

import (
	"context"
	"fmt"
	"io"
	"log"
	"sync/atomic"
	"testing"

	"github.com/delver-dev/delver/internal/scrape"
	"github.com/delver-dev/delver/internal/search"
)

type stubSearch struct {
	hits map[string][]search.RawHit
	err  error
}

func (s *stubSearch) Search(ctx context.Context, query string, count int) ([]search.RawHit, error) {
	if s.err != nil {
		return nil, s.err
	}
	hits := s.hits[query]
	if len(hits) > count {
		hits = hits[:count]
	}
	return hits, nil
}

type stubScraper struct {
	content  map[string]string // url -> content; missing means failure
	inFlight int32
	peak     int32
}

func (s *stubScraper) Scrape(ctx context.Context, url string) scrape.Outcome {
	n := atomic.AddInt32(&s.inFlight, 1)
	for {
		p := atomic.LoadInt32(&s.peak)
		if n <= p || atomic.CompareAndSwapInt32(&s.peak, p, n) {
			break
		}
	}
	defer atomic.AddInt32(&s.inFlight, -1)

	content, ok := s.content[url]
	if !ok {
		return scrape.Outcome{URL: url, Failure: "timeout"}
	}
	return scrape.Outcome{URL: url, Content: content}
}

func discardLogger() *log.Logger { return log.New(io.Discard, "", 0) }

func hitsFor(urls ...string) []search.RawHit {
	out := make([]search.RawHit, 0, len(urls))
	for i, u := range urls {
		out = append(out, search.RawHit{URL: u, Title: fmt.Sprintf("title %d", i)})
	}
	return out
}

func TestFetchAndScrapeCollectsSuccesses(t *testing.T) {
	searcher := &stubSearch{hits: map[string][]search.RawHit{
		"q": hitsFor("https://a.example", "https://b.example", "https://c.example"),
	}}
	scraper := &stubScraper{content: map[string]string{
		"https://a.example": "content a",
		"https://c.example": "content c",
		// b.example missing: simulated timeout
	}}
	f := &Fanout{
		Search:          searcher,
		Scraper:         scraper,
		Limiter:         scrape.NewLimiter(4),
		ResultsPerQuery: 10,
		Logger:          discardLogger(),
	}
	findings, err := f.FetchAndScrape(context.Background(), Query{Text: "q", Cycle: 0})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(findings) != 2 {
		t.Fatalf("expected 2 findings from 2 successes, got %d", len(findings))
	}
	for _, fd := range findings {
		if fd.URL == "https://b.example" {
			t.Error("failed scrape must be excluded")
		}
		if fd.Title == "" {
			t.Error("hit title should backfill missing scrape title")
		}
		if fd.Cycle != 0 {
			t.Errorf("finding cycle = %d, want 0", fd.Cycle)
		}
	}
}

func TestFetchAndScrapeSearchFailurePropagates(t *testing.T) {
	searcher := &stubSearch{err: &search.ProviderError{Provider: "stub", Query: "q", Err: fmt.Errorf("boom")}}
	f := &Fanout{
		Search:  searcher,
		Scraper: &stubScraper{},
		Limiter: scrape.NewLimiter(1),
		Logger:  discardLogger(),
	}
	if _, err := f.FetchAndScrape(context.Background(), Query{Text: "q"}); err == nil {
		t.Fatal("expected search provider error")
	}
}

func TestFetchAndScrapeZeroHits(t *testing.T) {
	f := &Fanout{
		Search:  &stubSearch{hits: map[string][]search.RawHit{}},
		Scraper: &stubScraper{},
		Limiter: scrape.NewLimiter(1),
		Logger:  discardLogger(),
	}
	findings, err := f.FetchAndScrape(context.Background(), Query{Text: "nothing"})
	if err != nil {
		t.Fatalf("zero hits must not be an error: %v", err)
	}
	if len(findings) != 0 {
		t.Errorf("expected no findings, got %d", len(findings))
	}
}

func TestFetchAndScrapeDropsEmptyAfterSanitize(t *testing.T) {
	searcher := &stubSearch{hits: map[string][]search.RawHit{
		"q": hitsFor("https://only-links.example"),
	}}
	scraper := &stubScraper{content: map[string]string{
		"https://only-links.example": "https://a.b/c <https://d.e/f>",
	}}
	f := &Fanout{
		Search:  searcher,
		Scraper: scraper,
		Limiter: scrape.NewLimiter(1),
		Logger:  discardLogger(),
	}
	findings, err := f.FetchAndScrape(context.Background(), Query{Text: "q"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(findings) != 0 {
		t.Errorf("content that sanitizes to empty must be dropped, got %d findings", len(findings))
	}
}

func TestFetchAndScrapeHonorsLimiter(t *testing.T) {
	urls := make([]string, 12)
	content := make(map[string]string, 12)
	for i := range urls {
		urls[i] = fmt.Sprintf("https://site%d.example", i)
		content[urls[i]] = "body"
	}
	searcher := &stubSearch{hits: map[string][]search.RawHit{"q": hitsFor(urls...)}}
	scraper := &stubScraper{content: content}
	f := &Fanout{
		Search:          searcher,
		Scraper:         scraper,
		Limiter:         scrape.NewLimiter(3),
		ResultsPerQuery: 20,
		Logger:          discardLogger(),
	}
	if _, err := f.FetchAndScrape(context.Background(), Query{Text: "q"}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if peak := atomic.LoadInt32(&scraper.peak); peak > 3 {
		t.Errorf("peak concurrent scrapes %d exceeds limiter ceiling 3", peak)
	}
}

func TestFetchAndScrapeReportsOutcomes(t *testing.T) {
	searcher := &stubSearch{hits: map[string][]search.RawHit{
		"q": hitsFor("https://ok.example", "https://bad.example"),
	}}
	scraper := &stubScraper{content: map[string]string{"https://ok.example": "body"}}
	var succ, fail int32
	f := &Fanout{
		Search:  searcher,
		Scraper: scraper,
		Limiter: scrape.NewLimiter(2),
		Logger:  discardLogger(),
		OnScrape: func(ok bool) {
			if ok {
				atomic.AddInt32(&succ, 1)
			} else {
				atomic.AddInt32(&fail, 1)
			}
		},
	}
	if _, err := f.FetchAndScrape(context.Background(), Query{Text: "q"}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if succ != 1 || fail != 1 {
		t.Errorf("observed %d successes and %d failures, want 1 and 1", succ, fail)
	}
}
