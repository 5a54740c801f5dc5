// Package worker consumes research.requested events and executes the jobs
// they name.
package worker

import (
	"context"
	"log"
	"time"

	"github.com/delver-dev/delver/internal/queue/streams"
	"github.com/delver-dev/delver/internal/research"
)

// Runner executes a research job to a terminal state.
type Runner interface {
	Run(ctx context.Context, job *research.Job) error
}

// JobStore loads previously created job rows.
type JobStore interface {
	GetJob(ctx context.Context, id string) (*research.Job, error)
}

// Processor drives job execution by consuming research.requested events.
type Processor struct {
	logger   *log.Logger
	store    JobStore
	consumer *streams.Consumer
	stream   string
	runner   Runner
}

// NewProcessor constructs a Processor. store may be nil; jobs are then rebuilt
// from the event payload alone.
func NewProcessor(logger *log.Logger, st JobStore, cons *streams.Consumer, stream string, runner Runner) *Processor {
	return &Processor{
		logger:   logger,
		store:    st,
		consumer: cons,
		stream:   stream,
		runner:   runner,
	}
}

// Start blocks, continuously processing research.requested events until the
// context is cancelled.
func (p *Processor) Start(ctx context.Context) error {
	p.logger.Printf("worker starting; consuming stream %s", p.stream)
	for {
		select {
		case <-ctx.Done():
			p.logger.Printf("worker stopping: %v", ctx.Err())
			return nil
		default:
		}

		msgs, err := p.consumer.Read(ctx, p.stream, streams.WithBlock(5*time.Second), streams.WithCount(16))
		if err != nil {
			if ctx.Err() != nil {
				continue
			}
			p.logger.Printf("error reading stream: %v", err)
			time.Sleep(time.Second)
			continue
		}
		for _, msg := range msgs {
			req, err := streams.DecodeResearchRequested(msg.Envelope)
			if err != nil {
				p.logger.Printf("dropping malformed event %s: %v", msg.ID, err)
				_ = p.consumer.Ack(ctx, p.stream, msg.ID)
				continue
			}
			if err := p.handle(ctx, req); err != nil {
				p.logger.Printf("job %s failed: %v", req.JobID, err)
			}
			_ = p.consumer.Ack(ctx, p.stream, msg.ID)
		}
	}
}

// handle resolves the job behind a request and runs it. A job row that is
// already past pending has been picked up elsewhere and is skipped.
func (p *Processor) handle(ctx context.Context, req streams.ResearchRequested) error {
	var job *research.Job
	if p.store != nil {
		if loaded, err := p.store.GetJob(ctx, req.JobID); err == nil {
			job = loaded
		} else {
			p.logger.Printf("job %s not in store, rebuilding from event: %v", req.JobID, err)
		}
	}
	if job == nil {
		job = research.NewJob(req.Topic, req.Budget)
		job.ID = req.JobID
		job.TopicID = req.TopicID
	}
	if job.State != research.StatePending {
		p.logger.Printf("job %s already %s, skipping", job.ID, job.State)
		return nil
	}
	return p.runner.Run(ctx, job)
}
