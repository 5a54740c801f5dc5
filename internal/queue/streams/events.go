package streams

import (
	"encoding/json"
	"fmt"

	"github.com/delver-dev/delver/internal/budget"
)

// EventTypeResearchRequested asks a worker to run a research job.
const EventTypeResearchRequested = "research.requested"

// ResearchRequested is the payload carried by research.requested events. The
// job row already exists in pending state; the worker picks it up from here.
type ResearchRequested struct {
	JobID       string        `json:"job_id"`
	TopicID     string        `json:"topic_id,omitempty"`
	Topic       string        `json:"topic"`
	Budget      budget.Budget `json:"budget"`
	RequestedBy string        `json:"requested_by,omitempty"`
}

// Validate checks the payload carries enough to start a job.
func (r ResearchRequested) Validate() error {
	if r.JobID == "" {
		return fmt.Errorf("job_id is required")
	}
	if r.Topic == "" {
		return fmt.Errorf("topic is required")
	}
	return nil
}

// DecodeResearchRequested extracts the payload from an envelope.
func DecodeResearchRequested(env Envelope) (ResearchRequested, error) {
	if env.EventType != EventTypeResearchRequested {
		return ResearchRequested{}, fmt.Errorf("unexpected event type %q", env.EventType)
	}
	var req ResearchRequested
	if err := json.Unmarshal(env.Data, &req); err != nil {
		return ResearchRequested{}, fmt.Errorf("decode research request: %w", err)
	}
	if err := req.Validate(); err != nil {
		return ResearchRequested{}, err
	}
	return req, nil
}
