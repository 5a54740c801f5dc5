package budget

import "fmt"

// Budget defines the resource guardrails for a single research job.
// CycleBudget counts follow-up cycles beyond the initial one, so a job
// executes at most CycleBudget+1 search rounds.
type Budget struct {
	CycleBudget        int `json:"cycle_budget"`
	MaxQueriesPerCycle int `json:"max_queries_per_cycle"`
	MaxSources         int `json:"max_sources"`
	MaxReportTokens    int `json:"max_report_tokens"`
}

// Validate ensures the budget values are sane before use.
func (b Budget) Validate() error {
	if b.CycleBudget < 0 {
		return fmt.Errorf("cycle_budget cannot be negative")
	}
	if b.MaxQueriesPerCycle < 1 {
		return fmt.Errorf("max_queries_per_cycle must be >= 1")
	}
	if b.MaxSources < 1 {
		return fmt.Errorf("max_sources must be >= 1")
	}
	if b.MaxReportTokens < 1 {
		return fmt.Errorf("max_report_tokens must be >= 1")
	}
	return nil
}

// IsZero reports whether no limits were set at all.
func (b Budget) IsZero() bool {
	return b.CycleBudget == 0 && b.MaxQueriesPerCycle == 0 && b.MaxSources == 0 && b.MaxReportTokens == 0
}

// Merge overlays the non-zero fields of override onto base.
func Merge(base Budget, override Budget) Budget {
	result := base
	if override.CycleBudget != 0 {
		result.CycleBudget = override.CycleBudget
	}
	if override.MaxQueriesPerCycle != 0 {
		result.MaxQueriesPerCycle = override.MaxQueriesPerCycle
	}
	if override.MaxSources != 0 {
		result.MaxSources = override.MaxSources
	}
	if override.MaxReportTokens != 0 {
		result.MaxReportTokens = override.MaxReportTokens
	}
	return result
}

// Default returns the service-wide fallback budget.
func Default() Budget {
	return Budget{
		CycleBudget:        2,
		MaxQueriesPerCycle: 5,
		MaxSources:         10,
		MaxReportTokens:    4096,
	}
}
