// Package search wraps the external web search providers behind a single
// Provider interface returning ranked raw hits.
package search

import (
	"context"
	"fmt"
	"strings"
)

// RawHit is a single search result, not yet validated as containing usable
// content. Auxiliary metadata may be absent depending on the provider.
type RawHit struct {
	URL          string   `json:"url"`
	Title        string   `json:"title"`
	FaviconURL   string   `json:"faviconUrl,omitempty"`
	Snippets     []string `json:"snippets,omitempty"`
	ThumbnailURL string   `json:"thumbnailUrl,omitempty"`
}

// Provider issues one web search and returns up to count hits. Individual
// malformed entries are dropped; transport failure or a top-level shape
// mismatch yields a *ProviderError.
type Provider interface {
	Search(ctx context.Context, query string, count int) ([]RawHit, error)
}

// ProviderError marks a failed search call (transport error or a response
// whose top-level shape did not match the provider contract).
type ProviderError struct {
	Provider string
	Query    string
	Err      error
}

func (e *ProviderError) Error() string {
	return fmt.Sprintf("search provider %s failed for %q: %v", e.Provider, e.Query, e.Err)
}

func (e *ProviderError) Unwrap() error { return e.Err }

// validHit rejects entries missing the fields every provider must supply.
func validHit(h RawHit) bool {
	return strings.TrimSpace(h.URL) != "" && strings.HasPrefix(h.URL, "http")
}
