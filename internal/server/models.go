package server

import "github.com/delver-dev/delver/internal/budget"

// HTTPError is the unified error body returned by the API.
type HTTPError struct {
	Error string `json:"error"`
}

type AuthSignupRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type AuthLoginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type TokenResponse struct {
	Token string `json:"token"`
}

type TopicCreateRequest struct {
	Name         string        `json:"name"`
	Budget       budget.Budget `json:"budget"`
	ScheduleCron string        `json:"schedule_cron"`
}

type TopicUpdateRequest struct {
	Budget       *budget.Budget `json:"budget,omitempty"`
	ScheduleCron *string        `json:"schedule_cron,omitempty"`
	Name         *string        `json:"name,omitempty"`
}

type TopicResponse struct {
	ID           string        `json:"id"`
	Name         string        `json:"name"`
	Budget       budget.Budget `json:"budget"`
	ScheduleCron string        `json:"schedule_cron"`
}

type TriggerResponse struct {
	JobID string `json:"job_id"`
	State string `json:"state"`
}
