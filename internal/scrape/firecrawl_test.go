package scrape

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

func TestFirecrawlScrapeSuccess(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req map[string]any
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Fatalf("decode request: %v", err)
		}
		if req["url"] != "https://a.example/page" {
			t.Errorf("unexpected url in request: %v", req["url"])
		}
		if req["maxAge"] != float64(MaxCacheAge.Milliseconds()) {
			t.Errorf("expected cache hint %d, got %v", MaxCacheAge.Milliseconds(), req["maxAge"])
		}
		_, _ = w.Write([]byte(`{"success": true, "data": {"markdown": "# Heading\n\nBody text.", "metadata": {"title": "A Page"}}}`))
	}))
	defer srv.Close()

	f := NewFirecrawl("", srv.URL)
	out := f.Scrape(context.Background(), "https://a.example/page")
	if !out.OK() {
		t.Fatalf("expected success, got failure %q", out.Failure)
	}
	if out.Title != "A Page" {
		t.Errorf("title = %q, want A Page", out.Title)
	}
	if out.Content == "" {
		t.Error("expected non-empty content")
	}
}

func TestFirecrawlScrapeProviderError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
		_, _ = w.Write([]byte(`{"success": false, "error": "render timed out"}`))
	}))
	defer srv.Close()

	f := NewFirecrawl("", srv.URL)
	out := f.Scrape(context.Background(), "https://slow.example")
	if out.OK() {
		t.Fatal("expected failure outcome")
	}
	if out.Failure != "render timed out" {
		t.Errorf("failure = %q, want render timed out", out.Failure)
	}
	if out.URL != "https://slow.example" {
		t.Errorf("failure outcome must carry the url, got %q", out.URL)
	}
}

func TestFirecrawlScrapeEmptyContent(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"success": true, "data": {"markdown": "   "}}`))
	}))
	defer srv.Close()

	f := NewFirecrawl("", srv.URL)
	out := f.Scrape(context.Background(), "https://empty.example")
	if out.OK() {
		t.Fatal("expected failure for empty content")
	}
	if out.Failure != "empty content" {
		t.Errorf("failure = %q, want empty content", out.Failure)
	}
}

func TestFirecrawlScrapeTransportFailureNeverPanics(t *testing.T) {
	f := NewFirecrawl("", "http://127.0.0.1:1")
	out := f.Scrape(context.Background(), "https://x.example")
	if out.OK() {
		t.Fatal("expected failure outcome on transport error")
	}
}

func TestLimiterBoundsConcurrency(t *testing.T) {
	l := NewLimiter(2)
	var inFlight, peak int32
	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := l.Acquire(context.Background()); err != nil {
				t.Errorf("acquire: %v", err)
				return
			}
			n := atomic.AddInt32(&inFlight, 1)
			for {
				p := atomic.LoadInt32(&peak)
				if n <= p || atomic.CompareAndSwapInt32(&peak, p, n) {
					break
				}
			}
			time.Sleep(5 * time.Millisecond)
			atomic.AddInt32(&inFlight, -1)
			l.Release()
		}()
	}
	wg.Wait()
	if got := atomic.LoadInt32(&peak); got > 2 {
		t.Errorf("peak concurrency %d exceeds limit 2", got)
	}
}

func TestLimiterAcquireHonorsContext(t *testing.T) {
	l := NewLimiter(1)
	if err := l.Acquire(context.Background()); err != nil {
		t.Fatalf("first acquire: %v", err)
	}
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	if err := l.Acquire(ctx); err == nil {
		t.Fatal("expected context error when limiter is full")
	}
	l.Release()
}
