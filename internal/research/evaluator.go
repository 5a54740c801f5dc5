package research

import (
	"context"
	"fmt"
	"log"
	"strings"

	"github.com/delver-dev/delver/internal/llm"
)

// MaxFollowUpQueries caps the evaluator's follow-up list regardless of how
// many queries the model proposes. The first entries win, preserving the
// model's own priority ordering.
const MaxFollowUpQueries = 5

// Evaluator judges whether the accumulated findings satisfy the topic and
// proposes follow-up queries for the gaps. An empty follow-up list is a valid
// stop signal, distinct from an *AdapterFailure.
type Evaluator struct {
	Provider     llm.Provider
	Model        string
	ExtractModel string
	Logger       *log.Logger

	OnUsage func(model string, in, out int64)
}

// Evaluate produces a gap narrative and up to MaxFollowUpQueries follow-up
// queries tagged with nextCycle.
func (e *Evaluator) Evaluate(ctx context.Context, topic string, findings []Finding, nextCycle int) (EvaluationResult, error) {
	narrative, err := e.generate(ctx, e.narrativePrompt(topic, findings), e.Model)
	if err != nil {
		return EvaluationResult{}, &AdapterFailure{Stage: "evaluation", Err: err}
	}

	model := e.ExtractModel
	if model == "" {
		model = e.Model
	}
	resp, err := e.generate(ctx, e.extractPrompt(narrative), model)
	if err != nil {
		return EvaluationResult{}, &AdapterFailure{Stage: "evaluation", Err: err}
	}
	queries, err := llm.DecodeStringList(resp)
	if err != nil {
		return EvaluationResult{}, &AdapterFailure{Stage: "evaluation", Err: err}
	}
	if len(queries) > MaxFollowUpQueries {
		queries = queries[:MaxFollowUpQueries]
	}

	result := EvaluationResult{Summary: narrative}
	for _, q := range queries {
		result.FollowUp = append(result.FollowUp, Query{Text: q, Cycle: nextCycle})
	}
	e.Logger.Printf("evaluation proposed %d follow-up queries", len(result.FollowUp))
	return result, nil
}

func (e *Evaluator) narrativePrompt(topic string, findings []Finding) string {
	var b strings.Builder
	fmt.Fprintf(&b, `You are reviewing research gathered on the topic:

%s

FINDINGS SO FAR:
`, topic)
	for i, f := range findings {
		fmt.Fprintf(&b, "\n[%d] %s (%s)\n%s\n", i+1, f.Title, f.URL, excerpt(f.Content, 800))
	}
	b.WriteString(`
Summarize what is now well covered and what is still missing or uncertain.
If further web searches would close real gaps, name the specific queries to
run next; if the topic is sufficiently covered, say so.`)
	return b.String()
}

func (e *Evaluator) extractPrompt(narrative string) string {
	return fmt.Sprintf(`Extract the follow-up web search queries from the gap analysis below.

ANALYSIS:
%s

Respond with ONLY a JSON array of query strings. If the analysis concludes no
further searches are needed, respond with [].`, narrative)
}

func (e *Evaluator) generate(ctx context.Context, prompt, model string) (string, error) {
	resp, inTok, outTok, err := e.Provider.GenerateWithTokens(ctx, prompt, model, nil)
	if err != nil {
		return "", err
	}
	if e.OnUsage != nil {
		e.OnUsage(model, inTok, outTok)
	}
	return strings.TrimSpace(resp), nil
}

// excerpt trims content for prompt inclusion without splitting a UTF-8
// sequence.
func excerpt(s string, n int) string {
	if len(s) <= n {
		return s
	}
	for n > 0 && s[n]&0xC0 == 0x80 {
		n--
	}
	return s[:n] + "..."
}
