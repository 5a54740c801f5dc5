package research

import (
	"errors"
	"fmt"
)

// ErrNoFindings is surfaced when a job exhausts its budget without
// accumulating a single finding. Synthesis is skipped and the job fails with
// this cause instead of producing an empty report.
var ErrNoFindings = errors.New("no findings accumulated after exhausting cycle budget")

// PlanningError marks a fatal failure to obtain initial queries. Without
// queries there is nothing to research, so the scheduler fails the job.
type PlanningError struct {
	Err error
}

func (e *PlanningError) Error() string { return fmt.Sprintf("planning failed: %v", e.Err) }
func (e *PlanningError) Unwrap() error { return e.Err }

// AdapterFailure marks a model-inference call that errored or whose
// structured extraction failed. Every site except initial planning recovers
// with a degrade-and-continue policy.
type AdapterFailure struct {
	Stage string
	Err   error
}

func (e *AdapterFailure) Error() string {
	return fmt.Sprintf("%s adapter failed: %v", e.Stage, e.Err)
}
func (e *AdapterFailure) Unwrap() error { return e.Err }

// InvalidTransitionError is returned for out-of-order lifecycle transitions.
type InvalidTransitionError struct {
	From State
	To   State
}

func (e *InvalidTransitionError) Error() string {
	return fmt.Sprintf("invalid transition from %s to %s", e.From, e.To)
}
