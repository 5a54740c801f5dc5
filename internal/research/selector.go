package research

import (
	"context"
	"fmt"
	"log"
	"strconv"
	"strings"

	"github.com/blevesearch/bleve"

	"github.com/delver-dev/delver/internal/llm"
)

// Selector deduplicates findings by URL and picks the bounded source list for
// the final report. Ranking is best-effort: a model ranking call first, a
// local bleve index scoring findings against the topic as fallback, and the
// unranked deduplicated order if both degrade. Ranking failure never aborts
// the job.
type Selector struct {
	Provider llm.Provider
	Model    string
	Logger   *log.Logger

	OnUsage func(model string, in, out int64)
}

// Select returns at most maxSources sources. First occurrence wins on
// duplicate URLs, preserving earliest-discovered ordering unless ranking
// reorders.
func (s *Selector) Select(ctx context.Context, topic string, findings []Finding, maxSources int) []Source {
	deduped := dedupe(findings)
	if len(deduped) == 0 {
		return nil
	}

	ranked := deduped
	if ordered, err := s.rankWithModel(ctx, topic, deduped); err != nil {
		s.Logger.Printf("model ranking unavailable: %v", err)
		if ordered, err = s.rankWithIndex(topic, deduped); err != nil {
			s.Logger.Printf("local ranking unavailable: %v", err)
		} else {
			ranked = ordered
		}
	} else {
		ranked = ordered
	}

	if maxSources > 0 && len(ranked) > maxSources {
		ranked = ranked[:maxSources]
	}
	out := make([]Source, 0, len(ranked))
	for _, f := range ranked {
		out = append(out, Source{URL: f.URL, Title: f.Title})
	}
	return out
}

func dedupe(findings []Finding) []Finding {
	seen := make(map[string]struct{}, len(findings))
	out := make([]Finding, 0, len(findings))
	for _, f := range findings {
		key := normalizeURL(f.URL)
		if key == "" {
			continue
		}
		if _, ok := seen[key]; ok {
			continue
		}
		seen[key] = struct{}{}
		out = append(out, f)
	}
	return out
}

// rankWithModel asks the ranking model for the finding indices in relevance
// order. Indices it omits are dropped (the model may filter); invalid output
// is an error so the caller falls back.
func (s *Selector) rankWithModel(ctx context.Context, topic string, findings []Finding) ([]Finding, error) {
	if s.Provider == nil || s.Model == "" {
		return nil, fmt.Errorf("ranking model not configured")
	}
	var b strings.Builder
	fmt.Fprintf(&b, `Rank the sources below by relevance to the topic %q, most relevant first.
Drop sources that are clearly irrelevant.

SOURCES:
`, topic)
	for i, f := range findings {
		fmt.Fprintf(&b, "[%d] %s (%s)\n%s\n\n", i, f.Title, f.URL, excerpt(f.Content, 300))
	}
	b.WriteString(`Respond with ONLY a JSON array of the source numbers in ranked order.
Example: [2, 0, 1]`)

	resp, inTok, outTok, err := s.Provider.GenerateWithTokens(ctx, b.String(), s.Model, nil)
	if err != nil {
		return nil, err
	}
	if s.OnUsage != nil {
		s.OnUsage(s.Model, inTok, outTok)
	}
	items, err := llm.DecodeStringList(numbersAsStrings(resp))
	if err != nil {
		return nil, err
	}
	var ranked []Finding
	used := make(map[int]struct{}, len(items))
	for _, item := range items {
		idx, err := strconv.Atoi(strings.TrimSpace(item))
		if err != nil || idx < 0 || idx >= len(findings) {
			continue
		}
		if _, ok := used[idx]; ok {
			continue
		}
		used[idx] = struct{}{}
		ranked = append(ranked, findings[idx])
	}
	if len(ranked) == 0 {
		return nil, fmt.Errorf("ranking yielded nothing usable")
	}
	return ranked, nil
}

// rankWithIndex scores findings against the topic in an in-memory bleve
// index. Findings the index does not match keep their original relative order
// after the scored ones.
func (s *Selector) rankWithIndex(topic string, findings []Finding) ([]Finding, error) {
	index, err := bleve.NewMemOnly(bleve.NewIndexMapping())
	if err != nil {
		return nil, fmt.Errorf("open index: %w", err)
	}
	defer index.Close()

	type doc struct {
		Title   string `json:"title"`
		Content string `json:"content"`
	}
	for i, f := range findings {
		if err := index.Index(strconv.Itoa(i), doc{Title: f.Title, Content: f.Content}); err != nil {
			return nil, fmt.Errorf("index finding: %w", err)
		}
	}

	req := bleve.NewSearchRequest(bleve.NewMatchQuery(topic))
	req.Size = len(findings)
	res, err := index.Search(req)
	if err != nil {
		return nil, fmt.Errorf("search index: %w", err)
	}

	ranked := make([]Finding, 0, len(findings))
	used := make(map[int]struct{}, len(findings))
	for _, hit := range res.Hits {
		idx, err := strconv.Atoi(hit.ID)
		if err != nil || idx < 0 || idx >= len(findings) {
			continue
		}
		used[idx] = struct{}{}
		ranked = append(ranked, findings[idx])
	}
	for i, f := range findings {
		if _, ok := used[i]; !ok {
			ranked = append(ranked, f)
		}
	}
	return ranked, nil
}

// numbersAsStrings rewrites a JSON array of numbers into an array of strings
// so DecodeStringList can parse either form the model returns.
func numbersAsStrings(resp string) string {
	arr, err := llm.ExtractJSONArray(resp)
	if err != nil {
		return resp
	}
	var b strings.Builder
	inString := false
	for i := 0; i < len(arr); i++ {
		ch := arr[i]
		if ch == '"' {
			inString = !inString
			b.WriteByte(ch)
			continue
		}
		if !inString && (ch >= '0' && ch <= '9') {
			j := i
			for j < len(arr) && arr[j] >= '0' && arr[j] <= '9' {
				j++
			}
			b.WriteByte('"')
			b.WriteString(arr[i:j])
			b.WriteByte('"')
			i = j - 1
			continue
		}
		b.WriteByte(ch)
	}
	return b.String()
}
