package telemetry

import (
	"testing"
	"time"

	"github.com/delver-dev/delver/config"
)

func TestCostTracking(t *testing.T) {
	tele := New(config.TelemetryConfig{Enabled: true, CostTracking: true})
	tele.RecordLLMUsage("gpt-4o-mini", 100, 50, 0.01)
	tele.RecordLLMUsage("gpt-4o-mini", 200, 100, 0.02)
	tele.RecordLLMUsage("gpt-4o", 10, 5, 0.05)

	sum := tele.CostSummary()
	if sum.TotalTokens != 465 {
		t.Errorf("TotalTokens = %d, want 465", sum.TotalTokens)
	}
	if diff := sum.TotalCost - 0.08; diff > 1e-9 || diff < -1e-9 {
		t.Errorf("TotalCost = %f, want 0.08", sum.TotalCost)
	}
	if diff := sum.ModelCosts["gpt-4o-mini"] - 0.03; diff > 1e-9 || diff < -1e-9 {
		t.Errorf("ModelCosts[gpt-4o-mini] = %f, want 0.03", sum.ModelCosts["gpt-4o-mini"])
	}
}

func TestDisabledTelemetryIsNoop(t *testing.T) {
	tele := New(config.TelemetryConfig{Enabled: false})
	tele.RecordJob("completed", time.Second)
	tele.RecordCycle()
	tele.RecordSearch(true)
	tele.RecordScrape(false)
	tele.RecordLLMUsage("m", 1, 1, 1)
	if sum := tele.CostSummary(); sum.TotalCost != 0 || sum.TotalTokens != 0 {
		t.Errorf("expected zero cost summary, got %+v", sum)
	}
}

func TestHandlerServesMetrics(t *testing.T) {
	tele := New(config.TelemetryConfig{Enabled: true})
	if tele.Handler() == nil {
		t.Fatal("expected non-nil metrics handler")
	}
}
