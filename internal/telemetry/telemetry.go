// Package telemetry provides prometheus metrics and in-process cost tracking
// for the research pipeline.
package telemetry

import (
	"log"
	"net/http"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/delver-dev/delver/config"
)

// Telemetry aggregates pipeline metrics and LLM spend.
type Telemetry struct {
	config      config.TelemetryConfig
	logger      *log.Logger
	registry    *prometheus.Registry
	costTracker *CostTracker

	jobsTotal    *prometheus.CounterVec
	jobDuration  prometheus.Histogram
	cyclesTotal  prometheus.Counter
	searchTotal  *prometheus.CounterVec
	scrapesTotal *prometheus.CounterVec
	llmTokens    *prometheus.CounterVec
	llmCost      prometheus.Counter
}

// CostTracker tracks token usage and dollar cost per model.
type CostTracker struct {
	mu          sync.RWMutex
	ModelCosts  map[string]float64
	ModelTokens map[string]int64
	TotalCost   float64
	TotalTokens int64
}

// CostSummary is a point-in-time snapshot of accumulated spend.
type CostSummary struct {
	TotalCost   float64            `json:"total_cost"`
	TotalTokens int64              `json:"total_tokens"`
	ModelCosts  map[string]float64 `json:"model_costs"`
}

// New creates a telemetry instance with its own prometheus registry.
func New(cfg config.TelemetryConfig) *Telemetry {
	registry := prometheus.NewRegistry()
	t := &Telemetry{
		config:   cfg,
		logger:   log.New(log.Writer(), "[TELEMETRY] ", log.LstdFlags),
		registry: registry,
		costTracker: &CostTracker{
			ModelCosts:  make(map[string]float64),
			ModelTokens: make(map[string]int64),
		},
		jobsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "delver_jobs_total",
			Help: "Research jobs by terminal state.",
		}, []string{"state"}),
		jobDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "delver_job_duration_seconds",
			Help:    "Wall-clock duration of research jobs.",
			Buckets: prometheus.ExponentialBuckets(1, 2, 12),
		}),
		cyclesTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "delver_cycles_total",
			Help: "Search cycles executed across all jobs.",
		}),
		searchTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "delver_search_requests_total",
			Help: "Search provider calls by result.",
		}, []string{"result"}),
		scrapesTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "delver_scrapes_total",
			Help: "Scrape attempts by result.",
		}, []string{"result"}),
		llmTokens: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "delver_llm_tokens_total",
			Help: "LLM tokens consumed by model and direction.",
		}, []string{"model", "direction"}),
		llmCost: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "delver_llm_cost_dollars_total",
			Help: "Accumulated LLM spend in dollars.",
		}),
	}
	registry.MustRegister(t.jobsTotal, t.jobDuration, t.cyclesTotal, t.searchTotal, t.scrapesTotal, t.llmTokens, t.llmCost)
	return t
}

// Handler exposes the metrics registry for the /metrics endpoint.
func (t *Telemetry) Handler() http.Handler {
	return promhttp.HandlerFor(t.registry, promhttp.HandlerOpts{})
}

// RecordJob records a finished job with its terminal state.
func (t *Telemetry) RecordJob(state string, duration time.Duration) {
	if !t.config.Enabled {
		return
	}
	t.jobsTotal.WithLabelValues(state).Inc()
	t.jobDuration.Observe(duration.Seconds())
	t.logger.Printf("job finished: state=%s duration=%v", state, duration)
}

// RecordCycle records one executed search cycle.
func (t *Telemetry) RecordCycle() {
	if !t.config.Enabled {
		return
	}
	t.cyclesTotal.Inc()
}

// RecordSearch records a search provider call outcome.
func (t *Telemetry) RecordSearch(ok bool) {
	if !t.config.Enabled {
		return
	}
	t.searchTotal.WithLabelValues(resultLabel(ok)).Inc()
}

// RecordScrape records a scrape attempt outcome.
func (t *Telemetry) RecordScrape(ok bool) {
	if !t.config.Enabled {
		return
	}
	t.scrapesTotal.WithLabelValues(resultLabel(ok)).Inc()
}

// RecordLLMUsage records token usage and cost of one model call.
func (t *Telemetry) RecordLLMUsage(model string, inputTokens, outputTokens int64, cost float64) {
	if !t.config.Enabled {
		return
	}
	t.llmTokens.WithLabelValues(model, "input").Add(float64(inputTokens))
	t.llmTokens.WithLabelValues(model, "output").Add(float64(outputTokens))
	t.llmCost.Add(cost)

	if !t.config.CostTracking {
		return
	}
	t.costTracker.mu.Lock()
	defer t.costTracker.mu.Unlock()
	t.costTracker.ModelCosts[model] += cost
	t.costTracker.ModelTokens[model] += inputTokens + outputTokens
	t.costTracker.TotalCost += cost
	t.costTracker.TotalTokens += inputTokens + outputTokens
}

// CostSummary returns a snapshot of accumulated spend.
func (t *Telemetry) CostSummary() CostSummary {
	t.costTracker.mu.RLock()
	defer t.costTracker.mu.RUnlock()
	models := make(map[string]float64, len(t.costTracker.ModelCosts))
	for k, v := range t.costTracker.ModelCosts {
		models[k] = v
	}
	return CostSummary{
		TotalCost:   t.costTracker.TotalCost,
		TotalTokens: t.costTracker.TotalTokens,
		ModelCosts:  models,
	}
}

func resultLabel(ok bool) string {
	if ok {
		return "success"
	}
	return "failure"
}
