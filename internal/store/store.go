// Package store persists users, topics, and research jobs in Postgres.
package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	_ "github.com/lib/pq"

	"github.com/delver-dev/delver/config"
	"github.com/delver-dev/delver/internal/budget"
	"github.com/delver-dev/delver/internal/research"
)

type Store struct {
	DB *sql.DB
}

// New connects to Postgres using the configured DSN.
func New(ctx context.Context, cfg config.PostgresConfig) (*Store, error) {
	dsn, err := cfg.DSN()
	if err != nil {
		return nil, err
	}
	return NewWithDSN(ctx, dsn)
}

// NewWithDSN constructs the Store using an explicit Postgres DSN.
func NewWithDSN(ctx context.Context, dsn string) (*Store, error) {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, err
	}
	if err := db.PingContext(ctx); err != nil {
		return nil, err
	}
	return &Store{DB: db}, nil
}

// User operations
func (s *Store) CreateUser(ctx context.Context, email, hash string) error {
	_, err := s.DB.ExecContext(ctx, `INSERT INTO users (email, password_hash) VALUES ($1,$2)`, email, hash)
	return err
}

func (s *Store) GetUserByEmail(ctx context.Context, email string) (id string, hash string, err error) {
	err = s.DB.QueryRowContext(ctx, `SELECT id, password_hash FROM users WHERE email=$1`, email).Scan(&id, &hash)
	return
}

// Topic is a saved research subject with its budget and schedule.
type Topic struct {
	ID           string
	UserID       string
	Name         string
	Budget       budget.Budget
	ScheduleCron string
	CreatedAt    time.Time
}

// Topic operations
func (s *Store) CreateTopic(ctx context.Context, userID, name string, b budget.Budget, cron string) (string, error) {
	budgetJSON, err := json.Marshal(b)
	if err != nil {
		return "", fmt.Errorf("marshal budget: %w", err)
	}
	var id string
	err = s.DB.QueryRowContext(ctx, `INSERT INTO topics (user_id, name, budget, schedule_cron) VALUES ($1,$2,$3,$4) RETURNING id`,
		userID, name, budgetJSON, cron).Scan(&id)
	return id, err
}

func (s *Store) ListTopics(ctx context.Context, userID string) ([]Topic, error) {
	rows, err := s.DB.QueryContext(ctx, `SELECT id, user_id, name, budget, schedule_cron, created_at FROM topics WHERE user_id=$1 ORDER BY created_at DESC`, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanTopics(rows)
}

func (s *Store) GetTopicByID(ctx context.Context, id string, userID string) (Topic, error) {
	var t Topic
	var budgetJSON []byte
	err := s.DB.QueryRowContext(ctx, `SELECT id, user_id, name, budget, schedule_cron, created_at FROM topics WHERE id=$1 AND user_id=$2`, id, userID).
		Scan(&t.ID, &t.UserID, &t.Name, &budgetJSON, &t.ScheduleCron, &t.CreatedAt)
	if err != nil {
		return Topic{}, err
	}
	if len(budgetJSON) > 0 {
		_ = json.Unmarshal(budgetJSON, &t.Budget)
	}
	return t, nil
}

// UpdateTopic changes the budget and, when cron is non-nil and non-empty, the
// schedule of a topic owned by userID.
func (s *Store) UpdateTopic(ctx context.Context, topicID string, userID string, b budget.Budget, cron *string) error {
	budgetJSON, err := json.Marshal(b)
	if err != nil {
		return fmt.Errorf("marshal budget: %w", err)
	}
	if cron != nil && *cron != "" {
		_, err := s.DB.ExecContext(ctx, `UPDATE topics SET budget=$1, schedule_cron=$2 WHERE id=$3 AND user_id=$4`, budgetJSON, *cron, topicID, userID)
		return err
	}
	_, err = s.DB.ExecContext(ctx, `UPDATE topics SET budget=$1 WHERE id=$2 AND user_id=$3`, budgetJSON, topicID, userID)
	return err
}

// UpdateTopicName updates only the topic name (user-driven rename)
func (s *Store) UpdateTopicName(ctx context.Context, topicID string, userID string, name string) error {
	_, err := s.DB.ExecContext(ctx, `UPDATE topics SET name=$1 WHERE id=$2 AND user_id=$3`, name, topicID, userID)
	return err
}

func (s *Store) ListAllTopics(ctx context.Context) ([]Topic, error) {
	rows, err := s.DB.QueryContext(ctx, `SELECT id, user_id, name, budget, schedule_cron, created_at FROM topics`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanTopics(rows)
}

func scanTopics(rows *sql.Rows) ([]Topic, error) {
	var out []Topic
	for rows.Next() {
		var t Topic
		var budgetJSON []byte
		if err := rows.Scan(&t.ID, &t.UserID, &t.Name, &budgetJSON, &t.ScheduleCron, &t.CreatedAt); err != nil {
			return nil, err
		}
		if len(budgetJSON) > 0 {
			_ = json.Unmarshal(budgetJSON, &t.Budget)
		}
		out = append(out, t)
	}
	return out, rows.Err()
}

// JobSummary is a lightweight view of a research job for listings.
type JobSummary struct {
	ID         string     `json:"id"`
	TopicID    string     `json:"topic_id"`
	State      string     `json:"state"`
	Cycle      int        `json:"cycle"`
	Cause      *string    `json:"cause,omitempty"`
	CreatedAt  time.Time  `json:"created_at"`
	UpdatedAt  time.Time  `json:"updated_at"`
	FinishedAt *time.Time `json:"finished_at,omitempty"`
}

// Job operations

// CreateJob inserts a pending job row. The job ID is generated by the caller.
func (s *Store) CreateJob(ctx context.Context, job *research.Job) error {
	budgetJSON, err := json.Marshal(job.Budget)
	if err != nil {
		return fmt.Errorf("marshal budget: %w", err)
	}
	var topicID interface{}
	if job.TopicID != "" {
		topicID = job.TopicID
	}
	_, err = s.DB.ExecContext(ctx, `INSERT INTO jobs (id, topic_id, topic, state, cycle, budget) VALUES ($1,$2,$3,$4,$5,$6)`,
		job.ID, topicID, job.Topic, string(job.State), job.Cycle, budgetJSON)
	return err
}

// SaveJobState persists the job snapshot at a state transition. Findings,
// sources, and the report travel as JSON documents; finished_at is stamped
// once the job reaches a terminal state.
func (s *Store) SaveJobState(ctx context.Context, job *research.Job) error {
	findingsJSON, err := json.Marshal(job.Findings)
	if err != nil {
		return fmt.Errorf("marshal findings: %w", err)
	}
	sourcesJSON, err := json.Marshal(job.Sources)
	if err != nil {
		return fmt.Errorf("marshal sources: %w", err)
	}
	var reportJSON []byte
	if job.Report != nil {
		if reportJSON, err = json.Marshal(job.Report); err != nil {
			return fmt.Errorf("marshal report: %w", err)
		}
	}
	var cause interface{}
	if job.Cause != "" {
		cause = job.Cause
	}
	if job.State.Terminal() {
		_, err = s.DB.ExecContext(ctx, `UPDATE jobs SET state=$2, cycle=$3, cause=$4, findings=$5, sources=$6, report=$7, updated_at=NOW(), finished_at=NOW() WHERE id=$1`,
			job.ID, string(job.State), job.Cycle, cause, findingsJSON, sourcesJSON, reportJSON)
		return err
	}
	_, err = s.DB.ExecContext(ctx, `UPDATE jobs SET state=$2, cycle=$3, cause=$4, findings=$5, sources=$6, report=$7, updated_at=NOW() WHERE id=$1`,
		job.ID, string(job.State), job.Cycle, cause, findingsJSON, sourcesJSON, reportJSON)
	return err
}

// GetJob loads a full job snapshot by ID.
func (s *Store) GetJob(ctx context.Context, id string) (*research.Job, error) {
	var (
		job          research.Job
		topicID      sql.NullString
		state        string
		cause        sql.NullString
		budgetJSON   []byte
		findingsJSON []byte
		sourcesJSON  []byte
		reportJSON   []byte
	)
	err := s.DB.QueryRowContext(ctx, `SELECT id, topic_id, topic, state, cycle, cause, budget, findings, sources, report, created_at, updated_at FROM jobs WHERE id=$1`, id).
		Scan(&job.ID, &topicID, &job.Topic, &state, &job.Cycle, &cause, &budgetJSON, &findingsJSON, &sourcesJSON, &reportJSON, &job.CreatedAt, &job.UpdatedAt)
	if err != nil {
		return nil, err
	}
	job.State = research.State(state)
	if topicID.Valid {
		job.TopicID = topicID.String
	}
	if cause.Valid {
		job.Cause = cause.String
	}
	if len(budgetJSON) > 0 {
		_ = json.Unmarshal(budgetJSON, &job.Budget)
	}
	if len(findingsJSON) > 0 {
		_ = json.Unmarshal(findingsJSON, &job.Findings)
	}
	if len(sourcesJSON) > 0 {
		_ = json.Unmarshal(sourcesJSON, &job.Sources)
	}
	if len(reportJSON) > 0 {
		var rep research.Report
		if json.Unmarshal(reportJSON, &rep) == nil {
			job.Report = &rep
		}
	}
	return &job, nil
}

func (s *Store) ListJobs(ctx context.Context, topicID string) ([]JobSummary, error) {
	rows, err := s.DB.QueryContext(ctx, `SELECT id, topic_id, state, cycle, cause, created_at, updated_at, finished_at FROM jobs WHERE topic_id=$1 ORDER BY created_at DESC`, topicID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []JobSummary
	for rows.Next() {
		var j JobSummary
		if err := rows.Scan(&j.ID, &j.TopicID, &j.State, &j.Cycle, &j.Cause, &j.CreatedAt, &j.UpdatedAt, &j.FinishedAt); err != nil {
			return nil, err
		}
		out = append(out, j)
	}
	return out, rows.Err()
}

func (s *Store) GetLatestJobID(ctx context.Context, topicID string) (string, error) {
	var id string
	err := s.DB.QueryRowContext(ctx, `SELECT id FROM jobs WHERE topic_id=$1 ORDER BY created_at DESC LIMIT 1`, topicID).Scan(&id)
	if err == sql.ErrNoRows {
		return "", nil
	}
	return id, err
}

// LatestJobTime returns when the topic last finished (or started) a job.
// The scheduler uses it to decide whether a cron schedule is due.
func (s *Store) LatestJobTime(ctx context.Context, topicID string) (*time.Time, error) {
	var ts *time.Time
	err := s.DB.QueryRowContext(ctx, `SELECT MAX(COALESCE(finished_at, created_at)) FROM jobs WHERE topic_id=$1`, topicID).Scan(&ts)
	return ts, err
}

// GetLatestReport returns the report of the most recent completed job for a
// topic, or sql.ErrNoRows when none exists.
func (s *Store) GetLatestReport(ctx context.Context, topicID string) (*research.Report, error) {
	var reportJSON []byte
	err := s.DB.QueryRowContext(ctx, `SELECT report FROM jobs WHERE topic_id=$1 AND state='completed' AND report IS NOT NULL ORDER BY finished_at DESC LIMIT 1`, topicID).
		Scan(&reportJSON)
	if err != nil {
		return nil, err
	}
	var rep research.Report
	if err := json.Unmarshal(reportJSON, &rep); err != nil {
		return nil, fmt.Errorf("unmarshal report: %w", err)
	}
	return &rep, nil
}
