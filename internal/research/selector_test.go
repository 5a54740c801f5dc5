package research

import (
	"context"
	"fmt"
	"testing"

	"github.com/delver-dev/delver/internal/llm"
)

// stubLLM returns canned responses keyed by a substring of the prompt, or a
// fixed response, or an error.
type stubLLM struct {
	responses []string
	err       error
	calls     int
}

func (s *stubLLM) Generate(ctx context.Context, prompt, model string, options map[string]interface{}) (string, error) {
	resp, _, _, err := s.GenerateWithTokens(ctx, prompt, model, options)
	return resp, err
}

func (s *stubLLM) GenerateWithTokens(ctx context.Context, prompt, model string, options map[string]interface{}) (string, int64, int64, error) {
	if s.err != nil {
		return "", 0, 0, s.err
	}
	if s.calls >= len(s.responses) {
		return "", 0, 0, fmt.Errorf("stub exhausted after %d calls", s.calls)
	}
	resp := s.responses[s.calls]
	s.calls++
	return resp, 10, 5, nil
}

func (s *stubLLM) GetModelInfo(model string) (llm.ModelInfo, error) {
	return llm.ModelInfo{Name: model}, nil
}

func (s *stubLLM) CalculateCost(inputTokens, outputTokens int64, model string) float64 {
	return float64(inputTokens+outputTokens) / 1000.0
}

func findingsFixture(n int) []Finding {
	out := make([]Finding, 0, n)
	for i := 0; i < n; i++ {
		out = append(out, Finding{
			URL:     fmt.Sprintf("https://site%d.example/article", i),
			Title:   fmt.Sprintf("Article %d about solar batteries", i),
			Content: fmt.Sprintf("Details %d on solar battery storage capacity.", i),
		})
	}
	return out
}

func TestSelectDedupAndCap(t *testing.T) {
	findings := findingsFixture(4)
	findings = append(findings, Finding{URL: "https://site1.example/article#sec", Title: "dup", Content: "dup"})

	sel := &Selector{Logger: discardLogger()}
	sources := sel.Select(context.Background(), "solar batteries", findings, 3)
	if len(sources) != 3 {
		t.Fatalf("expected cap at 3 sources, got %d", len(sources))
	}
	seen := map[string]struct{}{}
	for _, src := range sources {
		if _, ok := seen[src.URL]; ok {
			t.Errorf("duplicate URL in sources: %s", src.URL)
		}
		seen[src.URL] = struct{}{}
	}
}

func TestSelectModelRanking(t *testing.T) {
	findings := findingsFixture(3)
	sel := &Selector{
		Provider: &stubLLM{responses: []string{"[2, 0]"}},
		Model:    "ranker",
		Logger:   discardLogger(),
	}
	sources := sel.Select(context.Background(), "solar batteries", findings, 5)
	if len(sources) != 2 {
		t.Fatalf("model filtered to 2, got %d", len(sources))
	}
	if sources[0].URL != findings[2].URL || sources[1].URL != findings[0].URL {
		t.Errorf("ranked order not honored: %+v", sources)
	}
}

func TestSelectFallsBackWhenRankingFails(t *testing.T) {
	findings := findingsFixture(3)
	sel := &Selector{
		Provider: &stubLLM{err: fmt.Errorf("model down")},
		Model:    "ranker",
		Logger:   discardLogger(),
	}
	sources := sel.Select(context.Background(), "solar battery storage", findings, 5)
	if len(sources) != 3 {
		t.Fatalf("fallback must keep all deduplicated findings, got %d", len(sources))
	}
}

func TestSelectUnusableRankingFallsBack(t *testing.T) {
	findings := findingsFixture(2)
	sel := &Selector{
		Provider: &stubLLM{responses: []string{"I cannot rank these."}},
		Model:    "ranker",
		Logger:   discardLogger(),
	}
	sources := sel.Select(context.Background(), "solar", findings, 5)
	if len(sources) != 2 {
		t.Fatalf("expected 2 sources from fallback, got %d", len(sources))
	}
}

func TestSelectEmptyFindings(t *testing.T) {
	sel := &Selector{Logger: discardLogger()}
	if sources := sel.Select(context.Background(), "t", nil, 5); len(sources) != 0 {
		t.Errorf("expected no sources for no findings, got %d", len(sources))
	}
}
