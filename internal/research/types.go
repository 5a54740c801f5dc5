// Package research implements the iterative research pipeline: a cycle
// scheduler drives planning, concurrent search-and-scrape fan-out, gap
// evaluation, source selection, and report synthesis under a fixed budget.
package research

import (
	"net/url"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/delver-dev/delver/internal/budget"
)

// State is the lifecycle state of a research job.
type State string

const (
	StatePending      State = "pending"
	StatePlanning     State = "planning"
	StateSearching    State = "searching"
	StateEvaluating   State = "evaluating"
	StateFinalizing   State = "finalizing"
	StateSynthesizing State = "synthesizing"
	StateCompleted    State = "completed"
	StateFailed       State = "failed"
	StateCancelled    State = "cancelled"
)

// Terminal reports whether no further transitions are possible.
func (s State) Terminal() bool {
	return s == StateCompleted || s == StateFailed || s == StateCancelled
}

var transitions = map[State][]State{
	StatePending:      {StatePlanning, StateCancelled},
	StatePlanning:     {StateSearching, StateFailed, StateCancelled},
	StateSearching:    {StateEvaluating, StateFinalizing, StateFailed, StateCancelled},
	StateEvaluating:   {StateSearching, StateFinalizing, StateFailed, StateCancelled},
	StateFinalizing:   {StateSynthesizing, StateFailed, StateCancelled},
	StateSynthesizing: {StateCompleted, StateFailed, StateCancelled},
}

// Query is a single natural-language search query tagged with the cycle that
// produced it.
type Query struct {
	Text  string `json:"text"`
	Cycle int    `json:"cycle"`
}

// Finding is the accepted result of one successful scrape: sanitized,
// non-empty content tied to a URL. Findings accumulate append-only across
// cycles.
type Finding struct {
	URL     string `json:"url"`
	Title   string `json:"title"`
	Content string `json:"content"`
	Cycle   int    `json:"cycle"`
}

// Source is one selected finding chosen for the final report. Unique by URL
// across the job, cardinality bounded by the budget.
type Source struct {
	URL   string `json:"url"`
	Title string `json:"title"`
}

// EvaluationResult is the evaluator's gap analysis: a narrative summary of
// what is known and missing, plus zero or more follow-up queries. An empty
// FollowUp list means "no further queries needed".
type EvaluationResult struct {
	Summary  string  `json:"summary"`
	FollowUp []Query `json:"follow_up"`
}

// Report is the final cited artifact.
type Report struct {
	Markdown    string    `json:"markdown"`
	Sources     []Source  `json:"sources"`
	GeneratedAt time.Time `json:"generated_at"`
}

// Job is one research run. It is owned exclusively by the scheduler goroutine
// for the duration of the run; concurrent scrape tasks hand results back to
// the scheduler instead of mutating the job directly.
type Job struct {
	ID        string        `json:"id"`
	TopicID   string        `json:"topic_id,omitempty"`
	Topic     string        `json:"topic"`
	Budget    budget.Budget `json:"budget"`
	State     State         `json:"state"`
	Cycle     int           `json:"cycle"`
	Findings  []Finding     `json:"findings"`
	Sources   []Source      `json:"sources"`
	Report    *Report       `json:"report,omitempty"`
	Cause     string        `json:"cause,omitempty"`
	CreatedAt time.Time     `json:"created_at"`
	UpdatedAt time.Time     `json:"updated_at"`

	seen map[string]struct{}
}

// NewJob creates a pending job for a topic. Invalid budget fields fall back
// to the service defaults.
func NewJob(topic string, b budget.Budget) *Job {
	if b.IsZero() || b.Validate() != nil {
		b = budget.Merge(budget.Default(), b)
	}
	now := time.Now().UTC()
	return &Job{
		ID:        uuid.NewString(),
		Topic:     topic,
		Budget:    b,
		State:     StatePending,
		CreatedAt: now,
		UpdatedAt: now,
		seen:      make(map[string]struct{}),
	}
}

// Transition moves the job to next, rejecting anything the state machine does
// not allow. Lifecycle state is monotonic; there are no backward transitions.
func (j *Job) Transition(next State) error {
	for _, allowed := range transitions[j.State] {
		if allowed == next {
			j.State = next
			j.UpdatedAt = time.Now().UTC()
			return nil
		}
	}
	return &InvalidTransitionError{From: j.State, To: next}
}

// AddFinding appends f unless its URL was already accumulated. Returns true
// when the finding was accepted. Only the scheduler goroutine calls this.
func (j *Job) AddFinding(f Finding) bool {
	if f.Content == "" {
		return false
	}
	key := normalizeURL(f.URL)
	if key == "" {
		return false
	}
	if j.seen == nil {
		j.seen = make(map[string]struct{})
	}
	if _, ok := j.seen[key]; ok {
		return false
	}
	j.seen[key] = struct{}{}
	j.Findings = append(j.Findings, f)
	return true
}

// normalizeURL canonicalizes a URL for dedup: scheme and host lowercased,
// fragment dropped, trailing slash trimmed.
func normalizeURL(raw string) string {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return ""
	}
	u, err := url.Parse(raw)
	if err != nil || u.Host == "" {
		return strings.TrimSuffix(raw, "/")
	}
	u.Scheme = strings.ToLower(u.Scheme)
	u.Host = strings.ToLower(u.Host)
	u.Fragment = ""
	s := u.String()
	return strings.TrimSuffix(s, "/")
}
