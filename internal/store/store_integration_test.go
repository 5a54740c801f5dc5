package store_test

import (
	"context"
	"database/sql"
	"fmt"
	"testing"
	"time"

	_ "github.com/lib/pq"
	"github.com/testcontainers/testcontainers-go"
	tcPostgres "github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/delver-dev/delver/internal/budget"
	"github.com/delver-dev/delver/internal/research"
	"github.com/delver-dev/delver/internal/store"
)

func TestStoreJobLifecycle(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}

	ctx := context.Background()

	pgC, err := tcPostgres.RunContainer(ctx,
		tcPostgres.WithDatabase("delver"),
		tcPostgres.WithUsername("delver"),
		tcPostgres.WithPassword("delver"),
		testcontainers.WithWaitStrategy(wait.ForListeningPort("5432/tcp")),
	)
	if err != nil {
		t.Fatalf("postgres container: %v", err)
	}
	defer func() { _ = pgC.Terminate(ctx) }()

	host, err := pgC.Host(ctx)
	if err != nil {
		t.Fatalf("postgres host: %v", err)
	}
	port, err := pgC.MappedPort(ctx, "5432")
	if err != nil {
		t.Fatalf("postgres port: %v", err)
	}

	dsn := fmt.Sprintf("postgres://delver:delver@%s:%s/delver?sslmode=disable", host, port.Port())
	if err := applySchema(ctx, dsn); err != nil {
		t.Fatalf("apply schema: %v", err)
	}

	st, err := store.NewWithDSN(ctx, dsn)
	if err != nil {
		t.Fatalf("store init: %v", err)
	}
	defer st.DB.Close()

	if err := st.CreateUser(ctx, "alice@example.com", "hash"); err != nil {
		t.Fatalf("create user: %v", err)
	}
	userID, _, err := st.GetUserByEmail(ctx, "alice@example.com")
	if err != nil {
		t.Fatalf("get user: %v", err)
	}

	b := budget.Budget{CycleBudget: 2, MaxQueriesPerCycle: 3, MaxSources: 5, MaxReportTokens: 1024}
	topicID, err := st.CreateTopic(ctx, userID, "grid scale batteries", b, "@daily")
	if err != nil {
		t.Fatalf("create topic: %v", err)
	}
	topic, err := st.GetTopicByID(ctx, topicID, userID)
	if err != nil {
		t.Fatalf("get topic: %v", err)
	}
	if topic.Budget != b {
		t.Errorf("budget round trip: got %+v, want %+v", topic.Budget, b)
	}

	job := research.NewJob(topic.Name, topic.Budget)
	job.TopicID = topicID
	if err := st.CreateJob(ctx, job); err != nil {
		t.Fatalf("create job: %v", err)
	}

	for _, state := range []research.State{research.StatePlanning, research.StateSearching} {
		if err := job.Transition(state); err != nil {
			t.Fatalf("transition %s: %v", state, err)
		}
		if err := st.SaveJobState(ctx, job); err != nil {
			t.Fatalf("save state %s: %v", state, err)
		}
	}
	job.AddFinding(research.Finding{URL: "https://a.example", Title: "A", Content: "battery details"})
	job.Sources = []research.Source{{URL: "https://a.example", Title: "A"}}
	job.Report = &research.Report{Markdown: "# Report\n", Sources: job.Sources, GeneratedAt: time.Now().UTC()}
	for _, state := range []research.State{research.StateFinalizing, research.StateSynthesizing, research.StateCompleted} {
		if err := job.Transition(state); err != nil {
			t.Fatalf("transition %s: %v", state, err)
		}
		if err := st.SaveJobState(ctx, job); err != nil {
			t.Fatalf("save state %s: %v", state, err)
		}
	}

	loaded, err := st.GetJob(ctx, job.ID)
	if err != nil {
		t.Fatalf("get job: %v", err)
	}
	if loaded.State != research.StateCompleted {
		t.Errorf("state = %s, want completed", loaded.State)
	}
	if len(loaded.Findings) != 1 || loaded.Findings[0].URL != "https://a.example" {
		t.Errorf("findings round trip failed: %+v", loaded.Findings)
	}
	if loaded.Report == nil || loaded.Report.Markdown != "# Report\n" {
		t.Errorf("report round trip failed: %+v", loaded.Report)
	}

	jobs, err := st.ListJobs(ctx, topicID)
	if err != nil {
		t.Fatalf("list jobs: %v", err)
	}
	if len(jobs) != 1 || jobs[0].FinishedAt == nil {
		t.Errorf("job listing: %+v", jobs)
	}

	last, err := st.LatestJobTime(ctx, topicID)
	if err != nil || last == nil {
		t.Fatalf("latest job time: %v %v", last, err)
	}

	rep, err := st.GetLatestReport(ctx, topicID)
	if err != nil {
		t.Fatalf("latest report: %v", err)
	}
	if len(rep.Sources) != 1 {
		t.Errorf("latest report sources: %+v", rep.Sources)
	}
}

func applySchema(ctx context.Context, dsn string) error {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return err
	}
	defer db.Close()

	schemaSQL := `
CREATE EXTENSION IF NOT EXISTS pgcrypto;
CREATE TABLE IF NOT EXISTS users (
    id            UUID PRIMARY KEY DEFAULT gen_random_uuid(),
    email         TEXT NOT NULL UNIQUE,
    password_hash TEXT NOT NULL,
    created_at    TIMESTAMPTZ NOT NULL DEFAULT NOW()
);
CREATE TABLE IF NOT EXISTS topics (
    id            UUID PRIMARY KEY DEFAULT gen_random_uuid(),
    user_id       UUID NOT NULL REFERENCES users(id) ON DELETE CASCADE,
    name          TEXT NOT NULL,
    budget        JSONB NOT NULL DEFAULT '{}',
    schedule_cron TEXT NOT NULL DEFAULT '@daily',
    created_at    TIMESTAMPTZ NOT NULL DEFAULT NOW()
);
CREATE TABLE IF NOT EXISTS jobs (
    id          UUID PRIMARY KEY,
    topic_id    UUID REFERENCES topics(id) ON DELETE CASCADE,
    topic       TEXT NOT NULL,
    state       TEXT NOT NULL,
    cycle       INT NOT NULL DEFAULT 0,
    cause       TEXT,
    budget      JSONB NOT NULL DEFAULT '{}',
    findings    JSONB,
    sources     JSONB,
    report      JSONB,
    created_at  TIMESTAMPTZ NOT NULL DEFAULT NOW(),
    updated_at  TIMESTAMPTZ NOT NULL DEFAULT NOW(),
    finished_at TIMESTAMPTZ
);
`
	_, err = db.ExecContext(ctx, schemaSQL)
	return err
}
