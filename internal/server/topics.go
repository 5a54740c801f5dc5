package server

import (
	"database/sql"
	"net/http"
	"strings"

	"github.com/labstack/echo/v4"

	"github.com/delver-dev/delver/internal/auth"
	"github.com/delver-dev/delver/internal/budget"
	"github.com/delver-dev/delver/internal/store"
)

type TopicsHandler struct {
	Store *store.Store
}

func (h *TopicsHandler) Register(g *echo.Group, secret []byte) {
	g.Use(auth.EchoMiddleware(secret))
	g.POST("", h.create)
	g.GET("", h.list)
	g.GET("/:topic_id", h.get)
	g.PUT("/:topic_id", h.update)
}

func userID(c echo.Context) string {
	id, _ := c.Get("user_id").(string)
	return id
}

func (h *TopicsHandler) create(c echo.Context) error {
	var req TopicCreateRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	req.Name = strings.TrimSpace(req.Name)
	if req.Name == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "name is required")
	}
	b := req.Budget
	if b.IsZero() {
		b = budget.Default()
	} else if err := b.Validate(); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	cron := req.ScheduleCron
	if cron == "" {
		cron = "@daily"
	}
	id, err := h.Store.CreateTopic(c.Request().Context(), userID(c), req.Name, b, cron)
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	return c.JSON(http.StatusCreated, TopicResponse{ID: id, Name: req.Name, Budget: b, ScheduleCron: cron})
}

func (h *TopicsHandler) list(c echo.Context) error {
	topics, err := h.Store.ListTopics(c.Request().Context(), userID(c))
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	out := make([]TopicResponse, 0, len(topics))
	for _, t := range topics {
		out = append(out, TopicResponse{ID: t.ID, Name: t.Name, Budget: t.Budget, ScheduleCron: t.ScheduleCron})
	}
	return c.JSON(http.StatusOK, out)
}

func (h *TopicsHandler) get(c echo.Context) error {
	t, err := h.Store.GetTopicByID(c.Request().Context(), c.Param("topic_id"), userID(c))
	if err != nil {
		if err == sql.ErrNoRows {
			return echo.NewHTTPError(http.StatusNotFound, "topic not found")
		}
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	return c.JSON(http.StatusOK, TopicResponse{ID: t.ID, Name: t.Name, Budget: t.Budget, ScheduleCron: t.ScheduleCron})
}

func (h *TopicsHandler) update(c echo.Context) error {
	var req TopicUpdateRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	ctx := c.Request().Context()
	topicID := c.Param("topic_id")
	uid := userID(c)

	t, err := h.Store.GetTopicByID(ctx, topicID, uid)
	if err != nil {
		if err == sql.ErrNoRows {
			return echo.NewHTTPError(http.StatusNotFound, "topic not found")
		}
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	b := t.Budget
	if req.Budget != nil {
		if err := req.Budget.Validate(); err != nil {
			return echo.NewHTTPError(http.StatusBadRequest, err.Error())
		}
		b = *req.Budget
	}
	if err := h.Store.UpdateTopic(ctx, topicID, uid, b, req.ScheduleCron); err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	if req.Name != nil && strings.TrimSpace(*req.Name) != "" {
		if err := h.Store.UpdateTopicName(ctx, topicID, uid, strings.TrimSpace(*req.Name)); err != nil {
			return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
		}
	}
	return c.NoContent(http.StatusOK)
}
