package research

import (
	"errors"
	"testing"

	"github.com/delver-dev/delver/internal/budget"
)

func TestTransitionHappyPath(t *testing.T) {
	job := NewJob("quantum error correction", budget.Default())
	steps := []State{StatePlanning, StateSearching, StateEvaluating, StateSearching, StateFinalizing, StateSynthesizing, StateCompleted}
	for _, next := range steps {
		if err := job.Transition(next); err != nil {
			t.Fatalf("transition to %s: %v", next, err)
		}
	}
	if !job.State.Terminal() {
		t.Errorf("completed state should be terminal")
	}
}

func TestTransitionRejectsBackward(t *testing.T) {
	job := NewJob("t", budget.Default())
	mustTransition(t, job, StatePlanning, StateSearching, StateEvaluating, StateFinalizing)

	err := job.Transition(StateSearching)
	var inv *InvalidTransitionError
	if !errors.As(err, &inv) {
		t.Fatalf("expected InvalidTransitionError, got %v", err)
	}
	if inv.From != StateFinalizing || inv.To != StateSearching {
		t.Errorf("unexpected error detail: %+v", inv)
	}
}

func TestTransitionOutOfTerminal(t *testing.T) {
	job := NewJob("t", budget.Default())
	mustTransition(t, job, StatePlanning, StateFailed)
	if err := job.Transition(StateSearching); err == nil {
		t.Fatal("expected error transitioning out of failed")
	}
}

func TestCancelledReachableFromEveryNonTerminalState(t *testing.T) {
	for from := range transitions {
		job := &Job{State: from}
		if err := job.Transition(StateCancelled); err != nil {
			t.Errorf("cancel from %s: %v", from, err)
		}
	}
}

func TestAddFindingDedup(t *testing.T) {
	job := NewJob("t", budget.Default())
	if !job.AddFinding(Finding{URL: "https://example.com/a", Title: "A", Content: "x"}) {
		t.Fatal("first add should succeed")
	}
	if job.AddFinding(Finding{URL: "https://example.com/a", Title: "dup", Content: "y"}) {
		t.Error("identical URL should be rejected")
	}
	if job.AddFinding(Finding{URL: "HTTPS://EXAMPLE.com/a#frag", Title: "dup", Content: "y"}) {
		t.Error("normalized-equal URL should be rejected")
	}
	if job.AddFinding(Finding{URL: "https://example.com/a/", Title: "dup", Content: "y"}) {
		t.Error("trailing-slash variant should be rejected")
	}
	if !job.AddFinding(Finding{URL: "https://example.com/b", Title: "B", Content: "z"}) {
		t.Error("distinct URL should be accepted")
	}
	if len(job.Findings) != 2 {
		t.Errorf("expected 2 findings, got %d", len(job.Findings))
	}
}

func TestAddFindingRejectsEmptyContent(t *testing.T) {
	job := NewJob("t", budget.Default())
	if job.AddFinding(Finding{URL: "https://example.com/a", Content: ""}) {
		t.Error("empty content must never become a finding")
	}
}

func TestNewJobAppliesDefaultBudget(t *testing.T) {
	job := NewJob("t", budget.Budget{})
	if job.Budget.MaxQueriesPerCycle < 1 || job.Budget.MaxSources < 1 {
		t.Errorf("expected defaulted budget, got %+v", job.Budget)
	}
	if job.State != StatePending {
		t.Errorf("new job state = %s, want pending", job.State)
	}
}

func mustTransition(t *testing.T, job *Job, states ...State) {
	t.Helper()
	for _, s := range states {
		if err := job.Transition(s); err != nil {
			t.Fatalf("transition to %s: %v", s, err)
		}
	}
}
