package research

import (
	"context"
	"errors"
	"fmt"
	"testing"
)

func TestPlanProducesCappedQueries(t *testing.T) {
	p := &Planner{
		Provider: &stubLLM{responses: []string{
			"Search broadly, then narrow down.",
			`["query one", "query two", "query three"]`,
		}},
		Model:      "planner",
		MaxQueries: 2,
		Logger:     discardLogger(),
	}
	queries, err := p.Plan(context.Background(), "solid state batteries")
	if err != nil {
		t.Fatalf("plan: %v", err)
	}
	if len(queries) != 2 {
		t.Fatalf("queries = %d, want capped at 2", len(queries))
	}
	if queries[0].Text != "query one" || queries[0].Cycle != 0 {
		t.Errorf("first query wrong: %+v", queries[0])
	}
}

func TestPlanModelFailureIsPlanningError(t *testing.T) {
	p := &Planner{
		Provider: &stubLLM{err: fmt.Errorf("model down")},
		Model:    "planner",
		Logger:   discardLogger(),
	}
	_, err := p.Plan(context.Background(), "anything")
	var pe *PlanningError
	if !errors.As(err, &pe) {
		t.Fatalf("expected PlanningError, got %v", err)
	}
}

func TestPlanEmptyQueryListIsPlanningError(t *testing.T) {
	p := &Planner{
		Provider: &stubLLM{responses: []string{"no plan", "[]"}},
		Model:    "planner",
		Logger:   discardLogger(),
	}
	_, err := p.Plan(context.Background(), "anything")
	var pe *PlanningError
	if !errors.As(err, &pe) {
		t.Fatalf("empty query list must be fatal, got %v", err)
	}
}

func TestPlanUnparsableExtractionIsPlanningError(t *testing.T) {
	p := &Planner{
		Provider: &stubLLM{responses: []string{"a plan", "I would rather not."}},
		Model:    "planner",
		Logger:   discardLogger(),
	}
	_, err := p.Plan(context.Background(), "anything")
	var pe *PlanningError
	if !errors.As(err, &pe) {
		t.Fatalf("expected PlanningError, got %v", err)
	}
}
