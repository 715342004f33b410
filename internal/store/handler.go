package store

import (
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	appLog "calgrid/internal/log"
	"calgrid/internal/model"
)

// Handler serves a Backend over the REST contract the Client speaks.
type Handler struct {
	backend Backend
}

func NewHandler(b Backend) *Handler {
	return &Handler{backend: b}
}

// Register mounts the event routes under g.
func (h *Handler) Register(g gin.IRoutes) {
	g.GET("/events", h.fetchWindow)
	g.POST("/events", h.create)
	g.PATCH("/events/:id", h.update)
	g.POST("/events/:id/move", h.move)
	g.DELETE("/events/:id", h.remove)
}

func (h *Handler) fetchWindow(c *gin.Context) {
	start, err := time.Parse(time.RFC3339, c.Query("start"))
	if err != nil {
		writeError(c, http.StatusBadRequest, errors.New("invalid start parameter; expected RFC3339"))
		return
	}
	end, err := time.Parse(time.RFC3339, c.Query("end"))
	if err != nil {
		writeError(c, http.StatusBadRequest, errors.New("invalid end parameter; expected RFC3339"))
		return
	}
	if !end.After(start) {
		writeError(c, http.StatusBadRequest, errors.New("end must be after start"))
		return
	}

	events, err := h.backend.FetchWindow(c.Request.Context(), start, end)
	if err != nil {
		h.fail(c, "fetch", err)
		return
	}
	c.JSON(http.StatusOK, events)
}

func (h *Handler) create(c *gin.Context) {
	var f model.Fields
	if err := c.ShouldBindJSON(&f); err != nil {
		writeError(c, http.StatusBadRequest, err)
		return
	}
	if err := f.Validate(); err != nil {
		writeError(c, http.StatusBadRequest, err)
		return
	}
	ev, err := h.backend.Create(c.Request.Context(), f)
	if err != nil {
		h.fail(c, "create", err)
		return
	}
	c.JSON(http.StatusCreated, ev)
}

func (h *Handler) update(c *gin.Context) {
	var p model.Patch
	if err := c.ShouldBindJSON(&p); err != nil {
		writeError(c, http.StatusBadRequest, err)
		return
	}
	ev, err := h.backend.Update(c.Request.Context(), c.Param("id"), p)
	if err != nil {
		h.fail(c, "update", err)
		return
	}
	c.JSON(http.StatusOK, ev)
}

func (h *Handler) move(c *gin.Context) {
	var body moveBody
	if err := c.ShouldBindJSON(&body); err != nil {
		writeError(c, http.StatusBadRequest, err)
		return
	}
	ev, err := h.backend.Move(c.Request.Context(), c.Param("id"), body.Start, body.End)
	if err != nil {
		h.fail(c, "move", err)
		return
	}
	c.JSON(http.StatusOK, ev)
}

func (h *Handler) remove(c *gin.Context) {
	if err := h.backend.Remove(c.Request.Context(), c.Param("id")); err != nil {
		h.fail(c, "remove", err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (h *Handler) fail(c *gin.Context, op string, err error) {
	switch {
	case errors.Is(err, ErrNotFound) || NotFound(err):
		writeError(c, http.StatusNotFound, err)
	case errors.Is(err, model.ErrInvalidRange), errors.Is(err, model.ErrEmptyTitle), errors.Is(err, model.ErrNegativeReminder):
		writeError(c, http.StatusBadRequest, err)
	default:
		appLog.Error("store handler: backend failed", err, "op", op, "id", c.Param("id"))
		writeError(c, http.StatusBadGateway, err)
	}
}

func writeError(c *gin.Context, status int, err error) {
	c.AbortWithStatusJSON(status, gin.H{"error": err.Error()})
}
