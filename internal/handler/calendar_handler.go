package handler

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
	gcal "google.golang.org/api/calendar/v3"

	"mailtriage/internal/apperr"
	"mailtriage/internal/service/calendar"
)

type Scheduler interface {
	CheckAvailability(ctx context.Context, cal calendar.Provider, start, end string) (bool, error)
	CreateEvent(ctx context.Context, cal calendar.Provider, req calendar.EventRequest) (*gcal.Event, error)
}

type CalendarHandler struct {
	sessions  SessionResolver
	scheduler Scheduler
	logger    *zap.Logger
}

func NewCalendarHandler(sessions SessionResolver, scheduler Scheduler, logger *zap.Logger) *CalendarHandler {
	return &CalendarHandler{sessions: sessions, scheduler: scheduler, logger: logger}
}

// CheckAvailability handles POST /api/emails/calendar/check-availability
func (h *CalendarHandler) CheckAvailability(c *gin.Context) {
	s, ok := resolveSession(c, h.sessions, h.logger)
	if !ok {
		return
	}

	var req struct {
		Start string `json:"start"`
		End   string `json:"end"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		writeError(c, h.logger, apperr.ErrInvalidRange, "Failed to check calendar availability.")
		return
	}

	available, err := h.scheduler.CheckAvailability(c.Request.Context(), s.Calendar, req.Start, req.End)
	if err != nil {
		writeError(c, h.logger, err, "Failed to check calendar availability.")
		return
	}
	c.JSON(http.StatusOK, gin.H{"isAvailable": available})
}

// CreateEvent handles POST /api/emails/calendar/create-event
func (h *CalendarHandler) CreateEvent(c *gin.Context) {
	s, ok := resolveSession(c, h.sessions, h.logger)
	if !ok {
		return
	}

	var req calendar.EventRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		writeError(c, h.logger, apperr.ErrMissingFields, "Failed to create calendar event.")
		return
	}

	ev, err := h.scheduler.CreateEvent(c.Request.Context(), s.Calendar, req)
	if err != nil {
		writeError(c, h.logger, err, "Failed to create calendar event.")
		return
	}
	c.JSON(http.StatusCreated, gin.H{"message": "Event created successfully!", "event": ev})
}
