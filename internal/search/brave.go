package search

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"time"
)

// Brave queries the Brave web search API.
type Brave struct {
	APIKey  string
	BaseURL string
	Client  *http.Client
}

// NewBrave creates a Brave provider with the given per-call timeout.
func NewBrave(apiKey string, timeout time.Duration) *Brave {
	if timeout == 0 {
		timeout = 15 * time.Second
	}
	return &Brave{
		APIKey:  apiKey,
		BaseURL: "https://api.search.brave.com",
		Client:  &http.Client{Timeout: timeout},
	}
}

// Search implements Provider.
// https://api.search.brave.com/app/documentation/web-search
func (b *Brave) Search(ctx context.Context, query string, count int) ([]RawHit, error) {
	endpoint := fmt.Sprintf("%s/res/v1/web/search?q=%s&count=%d", b.BaseURL, url.QueryEscape(query), count)
	req, err := http.NewRequestWithContext(ctx, "GET", endpoint, nil)
	if err != nil {
		return nil, &ProviderError{Provider: "brave", Query: query, Err: err}
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("X-Subscription-Token", b.APIKey)

	resp, err := b.Client.Do(req)
	if err != nil {
		return nil, &ProviderError{Provider: "brave", Query: query, Err: err}
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, &ProviderError{Provider: "brave", Query: query, Err: fmt.Errorf("status %d", resp.StatusCode)}
	}

	var raw struct {
		Web struct {
			Results []struct {
				Title       string `json:"title"`
				URL         string `json:"url"`
				Description string `json:"description"`
				Profile     struct {
					Img string `json:"img"`
				} `json:"profile"`
				Thumbnail struct {
					Src string `json:"src"`
				} `json:"thumbnail"`
			} `json:"results"`
		} `json:"web"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&raw); err != nil {
		return nil, &ProviderError{Provider: "brave", Query: query, Err: fmt.Errorf("decode: %w", err)}
	}

	var out []RawHit
	for i, r := range raw.Web.Results {
		if i >= count {
			break
		}
		hit := RawHit{
			URL:          r.URL,
			Title:        r.Title,
			FaviconURL:   r.Profile.Img,
			ThumbnailURL: r.Thumbnail.Src,
		}
		if r.Description != "" {
			hit.Snippets = []string{r.Description}
		}
		if !validHit(hit) {
			continue
		}
		out = append(out, hit)
	}
	return out, nil
}
