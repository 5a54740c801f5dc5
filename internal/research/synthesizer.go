package research

import (
	"context"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/delver-dev/delver/internal/llm"
)

// Synthesizer produces the final cited report from the selected sources.
// Failure is an *AdapterFailure: the job fails but the accumulated findings
// and sources stay on the job for partial recovery.
type Synthesizer struct {
	Provider llm.Provider
	Model    string
	Logger   *log.Logger

	OnUsage func(model string, in, out int64)
}

// Synthesize writes a markdown report covering the topic from the selected
// sources, bounded by maxReportTokens.
func (s *Synthesizer) Synthesize(ctx context.Context, topic string, sources []Source, findings []Finding, maxReportTokens int) (*Report, error) {
	if len(sources) == 0 {
		return nil, &AdapterFailure{Stage: "synthesis", Err: fmt.Errorf("no sources selected")}
	}

	content := make(map[string]string, len(findings))
	for _, f := range findings {
		content[normalizeURL(f.URL)] = f.Content
	}

	var b strings.Builder
	fmt.Fprintf(&b, `Write a well-structured research report in markdown on the topic:

%s

Base the report strictly on the sources below. Cite sources inline with
bracketed numbers like [1], and end the report with a "Sources" section
listing each number, title, and URL.

SOURCES:
`, topic)
	for i, src := range sources {
		fmt.Fprintf(&b, "\n[%d] %s\n%s\n%s\n", i+1, src.Title, src.URL, excerpt(content[normalizeURL(src.URL)], 2000))
	}
	b.WriteString("\nReturn ONLY the markdown report.")

	options := map[string]interface{}{}
	if maxReportTokens > 0 {
		options["max_tokens"] = maxReportTokens
	}
	text, inTok, outTok, err := s.Provider.GenerateWithTokens(ctx, b.String(), s.Model, options)
	if err != nil {
		return nil, &AdapterFailure{Stage: "synthesis", Err: err}
	}
	if s.OnUsage != nil {
		s.OnUsage(s.Model, inTok, outTok)
	}
	text = strings.TrimSpace(text)
	if text == "" {
		return nil, &AdapterFailure{Stage: "synthesis", Err: fmt.Errorf("empty report")}
	}
	s.Logger.Printf("synthesized report with %d sources", len(sources))
	return &Report{
		Markdown:    text,
		Sources:     sources,
		GeneratedAt: time.Now().UTC(),
	}, nil
}
