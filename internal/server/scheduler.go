package server

import (
	"context"
	"log"
	"time"

	"github.com/gorhill/cronexpr"
	"github.com/redis/go-redis/v9"

	"github.com/delver-dev/delver/internal/queue/streams"
	"github.com/delver-dev/delver/internal/research"
	"github.com/delver-dev/delver/internal/store"
)

// Scheduler fires research jobs for topics whose cron schedule is due. A
// Redis SetNX lock keeps replicas from triggering the same topic twice.
type Scheduler struct {
	Store     *store.Store
	Stop      chan struct{}
	Rdb       *redis.Client
	Orch      *research.Orchestrator
	Publisher *streams.Publisher
	Stream    string
	MaxLen    int64
	Logger    *log.Logger
}

func (s *Scheduler) Start() {
	ticker := time.NewTicker(1 * time.Hour)
	go func() {
		for {
			select {
			case <-s.Stop:
				ticker.Stop()
				return
			case <-ticker.C:
				s.tick()
			}
		}
	}()
}

func (s *Scheduler) tick() {
	ctx := context.Background()
	topics, err := s.Store.ListAllTopics(ctx)
	if err != nil {
		s.Logger.Printf("list topics: %v", err)
		return
	}
	for _, t := range topics {
		last, _ := s.Store.LatestJobTime(ctx, t.ID)
		if !isDue(t.ScheduleCron, last, time.Now()) {
			continue
		}
		if s.Rdb != nil {
			lockKey := "sched:lock:" + t.ID
			ok, _ := s.Rdb.SetNX(ctx, lockKey, "1", 2*time.Minute).Result()
			if !ok {
				continue
			}
		}
		s.fire(ctx, t)
	}
}

func (s *Scheduler) fire(ctx context.Context, t store.Topic) {
	job := research.NewJob(t.Name, t.Budget)
	job.TopicID = t.ID
	if err := s.Store.CreateJob(ctx, job); err != nil {
		s.Logger.Printf("topic %s: create job: %v", t.ID, err)
		return
	}
	s.Logger.Printf("topic %s due, created job %s", t.ID, job.ID)

	if s.Publisher != nil {
		req := streams.ResearchRequested{JobID: job.ID, TopicID: t.ID, Topic: t.Name, Budget: t.Budget, RequestedBy: "scheduler"}
		if _, err := s.Publisher.PublishResearchRequested(ctx, s.Stream, req, streams.WithMaxLenApprox(s.MaxLen)); err == nil {
			return
		} else {
			s.Logger.Printf("publish job %s failed, running in-process: %v", job.ID, err)
		}
	}
	go func() {
		// jitter to avoid stampedes when many topics come due together
		time.Sleep(time.Duration(250+time.Now().UnixNano()%250) * time.Millisecond)
		if err := s.Orch.Run(context.Background(), job); err != nil {
			s.Logger.Printf("job %s: %v", job.ID, err)
		}
	}()
}

// isDue determines if a topic with cronSpec should run now based on last job
// time. Supports "@daily", "@hourly", and standard 5-field cron expressions.
func isDue(cronSpec string, last *time.Time, now time.Time) bool {
	switch cronSpec {
	case "@daily":
		if last == nil {
			return true
		}
		return now.Sub(*last) >= 24*time.Hour
	case "@hourly":
		if last == nil {
			return true
		}
		return now.Sub(*last) >= time.Hour
	default:
		expr, err := cronexpr.Parse(cronSpec)
		if err != nil {
			// invalid spec falls back to @daily
			if last == nil {
				return true
			}
			return now.Sub(*last) >= 24*time.Hour
		}
		if last == nil {
			return true
		}
		next := expr.Next(*last)
		return !next.After(now)
	}
}
