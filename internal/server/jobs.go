package server

import (
	"context"
	"database/sql"
	"log"
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/delver-dev/delver/internal/auth"
	"github.com/delver-dev/delver/internal/queue/streams"
	"github.com/delver-dev/delver/internal/research"
	"github.com/delver-dev/delver/internal/store"
)

// JobsHandler triggers and inspects research jobs for a topic. When a
// publisher is configured the trigger hands the job to the worker fleet over
// Redis Streams; otherwise it runs in-process.
type JobsHandler struct {
	Store     *store.Store
	Orch      *research.Orchestrator
	Publisher *streams.Publisher
	Stream    string
	MaxLen    int64
	Logger    *log.Logger
}

func (h *JobsHandler) Register(g *echo.Group, secret []byte) {
	g.Use(auth.EchoMiddleware(secret))
	g.POST("/:topic_id/trigger", h.trigger)
	g.GET("/:topic_id/jobs", h.list)
	g.GET("/:topic_id/jobs/:job_id", h.get)
	g.GET("/:topic_id/jobs/:job_id/report", h.report)
	g.GET("/:topic_id/latest_report", h.latestReport)
}

func (h *JobsHandler) trigger(c echo.Context) error {
	ctx := c.Request().Context()
	topic, err := h.Store.GetTopicByID(ctx, c.Param("topic_id"), userID(c))
	if err != nil {
		if err == sql.ErrNoRows {
			return echo.NewHTTPError(http.StatusNotFound, "topic not found")
		}
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}

	job := research.NewJob(topic.Name, topic.Budget)
	job.TopicID = topic.ID
	if err := h.Store.CreateJob(ctx, job); err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}

	if h.Publisher != nil {
		req := streams.ResearchRequested{
			JobID:       job.ID,
			TopicID:     topic.ID,
			Topic:       topic.Name,
			Budget:      topic.Budget,
			RequestedBy: userID(c),
		}
		if _, err := h.Publisher.PublishResearchRequested(ctx, h.Stream, req, streams.WithMaxLenApprox(h.MaxLen)); err != nil {
			h.Logger.Printf("publish job %s failed, running in-process: %v", job.ID, err)
			h.runInProcess(job)
		}
	} else {
		h.runInProcess(job)
	}
	return c.JSON(http.StatusAccepted, TriggerResponse{JobID: job.ID, State: string(job.State)})
}

func (h *JobsHandler) runInProcess(job *research.Job) {
	go func() {
		if err := h.Orch.Run(context.Background(), job); err != nil {
			h.Logger.Printf("job %s: %v", job.ID, err)
		}
	}()
}

func (h *JobsHandler) list(c echo.Context) error {
	jobs, err := h.Store.ListJobs(c.Request().Context(), c.Param("topic_id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	return c.JSON(http.StatusOK, jobs)
}

func (h *JobsHandler) get(c echo.Context) error {
	job, err := h.Store.GetJob(c.Request().Context(), c.Param("job_id"))
	if err != nil {
		if err == sql.ErrNoRows {
			return echo.NewHTTPError(http.StatusNotFound, "job not found")
		}
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	// prefer the live state when the job is running in this process
	if live, ok := h.Orch.JobState(job.ID); ok {
		job.State = live
	}
	return c.JSON(http.StatusOK, job)
}

func (h *JobsHandler) report(c echo.Context) error {
	job, err := h.Store.GetJob(c.Request().Context(), c.Param("job_id"))
	if err != nil {
		if err == sql.ErrNoRows {
			return echo.NewHTTPError(http.StatusNotFound, "job not found")
		}
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	if job.Report == nil {
		return echo.NewHTTPError(http.StatusNotFound, "report not available")
	}
	return c.Blob(http.StatusOK, "text/markdown; charset=utf-8", []byte(job.Report.Markdown))
}

func (h *JobsHandler) latestReport(c echo.Context) error {
	rep, err := h.Store.GetLatestReport(c.Request().Context(), c.Param("topic_id"))
	if err != nil {
		if err == sql.ErrNoRows {
			return echo.NewHTTPError(http.StatusNotFound, "no completed report for topic")
		}
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	return c.JSON(http.StatusOK, rep)
}
