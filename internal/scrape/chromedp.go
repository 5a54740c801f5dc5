package scrape

import (
	"context"
	"net/url"
	"strings"

	"github.com/chromedp/chromedp"
	"github.com/go-shiori/go-readability"
)

// Chromedp renders pages in a local headless browser and extracts the main
// article text with readability. Useful when no hosted scraping API is
// configured.
type Chromedp struct {
	MaxChars int
}

// NewChromedp creates a headless-browser scraper capping extracted text at
// maxChars bytes.
func NewChromedp(maxChars int) *Chromedp {
	if maxChars <= 0 {
		maxChars = 80000
	}
	return &Chromedp{MaxChars: maxChars}
}

// Scrape implements Scraper.
func (c *Chromedp) Scrape(ctx context.Context, rawURL string) Outcome {
	if strings.TrimSpace(rawURL) == "" {
		return failure(rawURL, "invalid url")
	}
	ctx, cancel := context.WithTimeout(ctx, Timeout)
	defer cancel()

	html, err := fetchHTML(ctx, rawURL)
	if err != nil {
		return failure(rawURL, "render: "+err.Error())
	}

	article, err := readability.FromReader(strings.NewReader(html), mustParseURL(rawURL))
	if err != nil {
		return failure(rawURL, "extract: "+err.Error())
	}
	text := strings.TrimSpace(article.TextContent)
	if len(text) > c.MaxChars {
		text = text[:c.MaxChars]
	}
	if text == "" {
		return failure(rawURL, "empty content")
	}
	return Outcome{
		URL:     rawURL,
		Title:   strings.TrimSpace(article.Title),
		Content: text,
	}
}

func fetchHTML(ctx context.Context, url string) (string, error) {
	opts := append(chromedp.DefaultExecAllocatorOptions[:],
		chromedp.Flag("headless", true),
		chromedp.UserAgent("delver/1.0 (+https://github.com/delver-dev/delver)"),
	)
	actx, cancelAlloc := chromedp.NewExecAllocator(ctx, opts...)
	defer cancelAlloc()
	bctx, cancelBrowser := chromedp.NewContext(actx)
	defer cancelBrowser()

	var html string
	err := chromedp.Run(bctx,
		chromedp.Navigate(url),
		chromedp.WaitReady("body", chromedp.ByQuery),
		chromedp.OuterHTML("html", &html, chromedp.ByQuery),
	)
	return html, err
}

func mustParseURL(raw string) *url.URL {
	u, err := url.Parse(raw)
	if err != nil {
		return &url.URL{}
	}
	return u
}
