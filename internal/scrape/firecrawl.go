package scrape

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"
)

// Firecrawl calls a Firecrawl-style scraping API: the provider renders the
// page and returns markdown, optionally served from a recent cache.
type Firecrawl struct {
	APIKey  string
	BaseURL string
	Client  *http.Client
}

// NewFirecrawl creates a Firecrawl scraper. The HTTP client timeout sits
// slightly above the provider-side timeout so the provider's own error
// response wins the race when a page is slow.
func NewFirecrawl(apiKey, baseURL string) *Firecrawl {
	if baseURL == "" {
		baseURL = "https://api.firecrawl.dev"
	}
	return &Firecrawl{
		APIKey:  apiKey,
		BaseURL: baseURL,
		Client:  &http.Client{Timeout: Timeout + 5*time.Second},
	}
}

// Scrape implements Scraper.
func (f *Firecrawl) Scrape(ctx context.Context, url string) Outcome {
	ctx, cancel := context.WithTimeout(ctx, Timeout)
	defer cancel()

	payload := map[string]any{
		"url":             url,
		"formats":         []string{"markdown"},
		"timeout":         Timeout.Milliseconds(),
		"maxAge":          MaxCacheAge.Milliseconds(),
		"onlyMainContent": true,
	}
	body, _ := json.Marshal(payload)
	req, err := http.NewRequestWithContext(ctx, "POST", f.BaseURL+"/v1/scrape", bytes.NewReader(body))
	if err != nil {
		return failure(url, err.Error())
	}
	req.Header.Set("Content-Type", "application/json")
	if f.APIKey != "" {
		req.Header.Set("Authorization", "Bearer "+f.APIKey)
	}

	resp, err := f.Client.Do(req)
	if err != nil {
		return failure(url, fmt.Sprintf("scrape request: %v", err))
	}
	defer resp.Body.Close()

	var raw struct {
		Success bool   `json:"success"`
		Error   string `json:"error"`
		Data    struct {
			Markdown string `json:"markdown"`
			Metadata struct {
				Title string `json:"title"`
			} `json:"metadata"`
		} `json:"data"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&raw); err != nil {
		return failure(url, fmt.Sprintf("decode response: %v", err))
	}
	if !raw.Success {
		cause := raw.Error
		if cause == "" {
			cause = fmt.Sprintf("provider status %d", resp.StatusCode)
		}
		return failure(url, cause)
	}
	content := strings.TrimSpace(raw.Data.Markdown)
	if content == "" {
		return failure(url, "empty content")
	}
	return Outcome{
		URL:     url,
		Title:   strings.TrimSpace(raw.Data.Metadata.Title),
		Content: content,
	}
}
