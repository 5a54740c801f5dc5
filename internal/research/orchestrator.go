package research

import (
	"context"
	"log"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/delver-dev/delver/config"
	"github.com/delver-dev/delver/internal/llm"
	"github.com/delver-dev/delver/internal/scrape"
	"github.com/delver-dev/delver/internal/search"
	"github.com/delver-dev/delver/internal/telemetry"
)

var tracer = otel.Tracer("delver/internal/research")

// JobStore is the persistence boundary. The scheduler calls it at state
// transitions only; persistence failures are logged, never fatal to the run.
type JobStore interface {
	SaveJobState(ctx context.Context, job *Job) error
}

// Orchestrator drives research jobs through the pipeline state machine.
// One instance serves the whole process so the scrape limiter bounds
// concurrent scrapes across all jobs.
type Orchestrator struct {
	planner     *Planner
	evaluator   *Evaluator
	selector    *Selector
	synthesizer *Synthesizer
	fanout      *Fanout
	store       JobStore
	telemetry   *telemetry.Telemetry
	logger      *log.Logger

	mu     sync.RWMutex
	active map[string]State
}

// NewOrchestrator wires the pipeline from configuration and shared
// dependencies. store may be nil for one-shot CLI runs.
func NewOrchestrator(cfg *config.Config, provider llm.Provider, searcher search.Provider, scraper scrape.Scraper, store JobStore, tele *telemetry.Telemetry, logger *log.Logger) *Orchestrator {
	routing := cfg.LLM.Routing
	onUsage := func(model string, in, out int64) {
		tele.RecordLLMUsage(model, in, out, provider.CalculateCost(in, out, model))
	}
	fanout := &Fanout{
		Search:          searcher,
		Scraper:         scraper,
		Limiter:         scrape.NewLimiter(cfg.Research.MaxConcurrentScrapes),
		ResultsPerQuery: cfg.Research.ResultsPerQuery,
		Logger:          logger,
		OnScrape:        tele.RecordScrape,
	}
	return &Orchestrator{
		planner: &Planner{
			Provider:     provider,
			Model:        route(routing.Planning, routing.Fallback),
			ExtractModel: route(routing.Extraction, routing.Fallback),
			MaxQueries:   cfg.Research.MaxQueriesPerCycle,
			Logger:       logger,
			OnUsage:      onUsage,
		},
		evaluator: &Evaluator{
			Provider:     provider,
			Model:        route(routing.Evaluation, routing.Fallback),
			ExtractModel: route(routing.Extraction, routing.Fallback),
			Logger:       logger,
			OnUsage:      onUsage,
		},
		selector: &Selector{
			Provider: provider,
			Model:    route(routing.Ranking, routing.Fallback),
			Logger:   logger,
			OnUsage:  onUsage,
		},
		synthesizer: &Synthesizer{
			Provider: provider,
			Model:    route(routing.Synthesis, routing.Fallback),
			Logger:   logger,
			OnUsage:  onUsage,
		},
		fanout:    fanout,
		store:     store,
		telemetry: tele,
		logger:    logger,
		active:    make(map[string]State),
	}
}

func route(primary, fallback string) string {
	if primary != "" {
		return primary
	}
	return fallback
}

// JobState reports the live state of a job currently running in this process.
func (o *Orchestrator) JobState(id string) (State, bool) {
	o.mu.RLock()
	defer o.mu.RUnlock()
	s, ok := o.active[id]
	return s, ok
}

// Run executes one research job to a terminal state. The returned error is
// the job's failure cause; the job itself always carries its accumulated
// findings and sources, also on failure.
func (o *Orchestrator) Run(ctx context.Context, job *Job) error {
	start := time.Now()
	ctx, span := tracer.Start(ctx, "research.run", trace.WithAttributes(
		attribute.String("job_id", job.ID),
		attribute.String("topic", job.Topic),
		attribute.Int("cycle_budget", job.Budget.CycleBudget),
	))
	defer span.End()

	o.setActive(job.ID, job.State)
	defer o.clearActive(job.ID)

	err := o.run(ctx, start, job)
	span.SetAttributes(
		attribute.Int("cycles", job.Cycle+1),
		attribute.Int("findings", len(job.Findings)),
		attribute.Int("sources", len(job.Sources)),
	)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return err
	}
	span.SetStatus(codes.Ok, "completed")
	return nil
}

func (o *Orchestrator) run(ctx context.Context, start time.Time, job *Job) error {
	fail := func(cause error) error {
		job.Cause = cause.Error()
		if err := o.transition(ctx, job, StateFailed); err != nil {
			o.logger.Printf("job %s: %v", job.ID, err)
		}
		o.telemetry.RecordJob(string(StateFailed), time.Since(start))
		return cause
	}
	cancelled := func() error {
		cause := ctx.Err()
		job.Cause = cause.Error()
		// persist with a fresh context; the job context is already dead
		if err := o.transition(context.Background(), job, StateCancelled); err != nil {
			o.logger.Printf("job %s: %v", job.ID, err)
		}
		o.telemetry.RecordJob(string(StateCancelled), time.Since(start))
		return cause
	}

	if err := o.transition(ctx, job, StatePlanning); err != nil {
		return err
	}
	queries, err := o.planner.Plan(ctx, job.Topic)
	if err != nil {
		if ctx.Err() != nil {
			return cancelled()
		}
		return fail(err)
	}
	queries = capQueries(queries, job.Budget.MaxQueriesPerCycle)

	for cycle := 0; ; cycle++ {
		job.Cycle = cycle
		if err := o.transition(ctx, job, StateSearching); err != nil {
			return err
		}
		o.runCycle(ctx, job, queries)
		o.telemetry.RecordCycle()
		if ctx.Err() != nil {
			return cancelled()
		}
		if cycle == job.Budget.CycleBudget {
			// budget exhausted: normal termination, evaluation skipped
			break
		}
		if err := o.transition(ctx, job, StateEvaluating); err != nil {
			return err
		}
		eval, err := o.evaluator.Evaluate(ctx, job.Topic, job.Findings, cycle+1)
		if err != nil {
			if ctx.Err() != nil {
				return cancelled()
			}
			// unreachable evaluator reads as "no further queries": forward
			// progress over completeness
			o.logger.Printf("job %s: %v; finalizing with current findings", job.ID, err)
			break
		}
		if len(eval.FollowUp) == 0 {
			o.logger.Printf("job %s: evaluation proposes no follow-up queries", job.ID)
			break
		}
		queries = capQueries(eval.FollowUp, job.Budget.MaxQueriesPerCycle)
	}

	if len(job.Findings) == 0 {
		return fail(ErrNoFindings)
	}

	if err := o.transition(ctx, job, StateFinalizing); err != nil {
		return err
	}
	job.Sources = o.selector.Select(ctx, job.Topic, job.Findings, job.Budget.MaxSources)

	if err := o.transition(ctx, job, StateSynthesizing); err != nil {
		return err
	}
	report, err := o.synthesizer.Synthesize(ctx, job.Topic, job.Sources, job.Findings, job.Budget.MaxReportTokens)
	if err != nil {
		if ctx.Err() != nil {
			return cancelled()
		}
		return fail(err)
	}
	job.Report = report

	if err := o.transition(ctx, job, StateCompleted); err != nil {
		return err
	}
	o.telemetry.RecordJob(string(StateCompleted), time.Since(start))
	o.logger.Printf("job %s completed: %d cycles, %d findings, %d sources",
		job.ID, job.Cycle+1, len(job.Findings), len(job.Sources))
	return nil
}

// runCycle fans queries out in parallel and merges the settled results into
// the job. Only this goroutine touches job data; the fan-out hands results
// back over a channel.
func (o *Orchestrator) runCycle(ctx context.Context, job *Job, queries []Query) {
	type result struct {
		query    Query
		findings []Finding
		err      error
	}
	results := make(chan result, len(queries))
	var wg sync.WaitGroup
	for _, q := range queries {
		wg.Add(1)
		go func(q Query) {
			defer wg.Done()
			findings, err := o.fanout.FetchAndScrape(ctx, q)
			results <- result{query: q, findings: findings, err: err}
		}(q)
	}
	wg.Wait()
	close(results)

	added := 0
	for r := range results {
		o.telemetry.RecordSearch(r.err == nil)
		if r.err != nil {
			o.logger.Printf("job %s: query %q failed: %v", job.ID, r.query.Text, r.err)
			continue
		}
		for _, f := range r.findings {
			if job.AddFinding(f) {
				added++
			}
		}
	}
	o.logger.Printf("job %s cycle %d: %d new findings (%d total)", job.ID, job.Cycle, added, len(job.Findings))
}

func (o *Orchestrator) transition(ctx context.Context, job *Job, next State) error {
	if err := job.Transition(next); err != nil {
		return err
	}
	o.setActive(job.ID, next)
	if o.store != nil {
		if err := o.store.SaveJobState(ctx, job); err != nil {
			o.logger.Printf("job %s: persist state %s: %v", job.ID, next, err)
		}
	}
	return nil
}

func (o *Orchestrator) setActive(id string, s State) {
	o.mu.Lock()
	o.active[id] = s
	o.mu.Unlock()
}

func (o *Orchestrator) clearActive(id string) {
	o.mu.Lock()
	delete(o.active, id)
	o.mu.Unlock()
}

func capQueries(queries []Query, max int) []Query {
	if max > 0 && len(queries) > max {
		return queries[:max]
	}
	return queries
}
