package research

import (
	"context"
	"fmt"
	"log"
	"strings"

	"github.com/delver-dev/delver/internal/llm"
)

// Planner turns a topic into the initial ordered query list. Two model calls:
// the first produces free-form planning text, the second extracts a strict
// JSON array of query strings from it. Any failure is a *PlanningError, which
// the scheduler treats as fatal.
type Planner struct {
	Provider     llm.Provider
	Model        string
	ExtractModel string
	MaxQueries   int
	Logger       *log.Logger

	// OnUsage, when set, observes token usage of each model call.
	OnUsage func(model string, in, out int64)
}

// Plan produces up to MaxQueries initial queries for the topic.
func (p *Planner) Plan(ctx context.Context, topic string) ([]Query, error) {
	prompt := fmt.Sprintf(`You are planning web research on the following topic:

%s

Think through what a thorough researcher would need to find out: key facts,
recent developments, differing viewpoints, primary sources. Then propose the
web search queries, most important first, that together cover the topic.
Explain your reasoning briefly and list the queries.`, topic)

	planText, err := p.generate(ctx, prompt, p.Model)
	if err != nil {
		return nil, &PlanningError{Err: err}
	}

	queries, err := p.extractQueries(ctx, planText)
	if err != nil {
		return nil, &PlanningError{Err: err}
	}
	if len(queries) == 0 {
		return nil, &PlanningError{Err: fmt.Errorf("planner produced no queries")}
	}
	if p.MaxQueries > 0 && len(queries) > p.MaxQueries {
		queries = queries[:p.MaxQueries]
	}

	out := make([]Query, 0, len(queries))
	for _, q := range queries {
		out = append(out, Query{Text: q, Cycle: 0})
	}
	p.Logger.Printf("planned %d queries for topic %q", len(out), topic)
	return out, nil
}

func (p *Planner) extractQueries(ctx context.Context, planText string) ([]string, error) {
	model := p.ExtractModel
	if model == "" {
		model = p.Model
	}
	prompt := fmt.Sprintf(`Extract the web search queries from the research plan below.

PLAN:
%s

Respond with ONLY a JSON array of query strings, most important first.
Example: ["query one", "query two"]`, planText)

	resp, err := p.generate(ctx, prompt, model)
	if err != nil {
		return nil, err
	}
	return llm.DecodeStringList(resp)
}

func (p *Planner) generate(ctx context.Context, prompt, model string) (string, error) {
	resp, inTok, outTok, err := p.Provider.GenerateWithTokens(ctx, prompt, model, nil)
	if err != nil {
		return "", err
	}
	if p.OnUsage != nil {
		p.OnUsage(model, inTok, outTok)
	}
	return strings.TrimSpace(resp), nil
}
