package search

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"
)

// Serper queries the serper.dev Google search API.
type Serper struct {
	APIKey  string
	BaseURL string // overridable for tests
	Client  *http.Client
}

// NewSerper creates a serper.dev provider with the given per-call timeout.
func NewSerper(apiKey string, timeout time.Duration) *Serper {
	if timeout == 0 {
		timeout = 15 * time.Second
	}
	return &Serper{
		APIKey:  apiKey,
		BaseURL: "https://google.serper.dev",
		Client:  &http.Client{Timeout: timeout},
	}
}

// Search implements Provider.
// https://serper.dev/ docs
func (s *Serper) Search(ctx context.Context, query string, count int) ([]RawHit, error) {
	payload := map[string]any{"q": query, "num": count}
	body, _ := json.Marshal(payload)
	req, err := http.NewRequestWithContext(ctx, "POST", s.BaseURL+"/search", strings.NewReader(string(body)))
	if err != nil {
		return nil, &ProviderError{Provider: "serper", Query: query, Err: err}
	}
	req.Header.Set("X-API-KEY", s.APIKey)
	req.Header.Set("Content-Type", "application/json")

	resp, err := s.Client.Do(req)
	if err != nil {
		return nil, &ProviderError{Provider: "serper", Query: query, Err: err}
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, &ProviderError{Provider: "serper", Query: query, Err: fmt.Errorf("status %d", resp.StatusCode)}
	}

	var raw struct {
		Organic []struct {
			Title    string `json:"title"`
			Link     string `json:"link"`
			Snippet  string `json:"snippet"`
			Favicon  string `json:"favicon"`
			ImageURL string `json:"imageUrl"`
		} `json:"organic"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&raw); err != nil {
		return nil, &ProviderError{Provider: "serper", Query: query, Err: fmt.Errorf("decode: %w", err)}
	}
	if raw.Organic == nil {
		return nil, &ProviderError{Provider: "serper", Query: query, Err: fmt.Errorf("response missing organic results")}
	}

	var out []RawHit
	for i, r := range raw.Organic {
		if i >= count {
			break
		}
		hit := RawHit{
			URL:          r.Link,
			Title:        r.Title,
			FaviconURL:   r.Favicon,
			ThumbnailURL: r.ImageURL,
		}
		if r.Snippet != "" {
			hit.Snippets = []string{r.Snippet}
		}
		if !validHit(hit) {
			continue
		}
		out = append(out, hit)
	}
	return out, nil
}
