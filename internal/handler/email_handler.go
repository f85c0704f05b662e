package handler

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"mailtriage/internal/model"
	"mailtriage/internal/service/mailsync"
	"mailtriage/internal/service/reply"
	"mailtriage/internal/service/triage"
)

type MessageLister interface {
	ListRecent(ctx context.Context, user *model.User, mail mailsync.MailReader) ([]*model.CachedMessage, error)
}

type MessageAnalyzer interface {
	Analyze(ctx context.Context, user *model.User, mail triage.MessageFetcher, messageID string) (*model.CachedMessage, error)
}

type ReplySender interface {
	Send(ctx context.Context, user *model.User, sender reply.Sender, req reply.Request) error
}

type EmailHandler struct {
	sessions SessionResolver
	lister   MessageLister
	analyzer MessageAnalyzer
	replies  ReplySender
	logger   *zap.Logger
}

func NewEmailHandler(sessions SessionResolver, lister MessageLister, analyzer MessageAnalyzer, replies ReplySender, logger *zap.Logger) *EmailHandler {
	return &EmailHandler{
		sessions: sessions,
		lister:   lister,
		analyzer: analyzer,
		replies:  replies,
		logger:   logger,
	}
}

// List handles GET /api/emails
func (h *EmailHandler) List(c *gin.Context) {
	s, ok := resolveSession(c, h.sessions, h.logger)
	if !ok {
		return
	}

	msgs, err := h.lister.ListRecent(c.Request.Context(), s.User, s.Mail)
	if err != nil {
		writeError(c, h.logger, err, "Error fetching email list")
		return
	}
	c.JSON(http.StatusOK, msgs)
}

// Analyze handles POST /api/emails/analyze/:messageId
func (h *EmailHandler) Analyze(c *gin.Context) {
	s, ok := resolveSession(c, h.sessions, h.logger)
	if !ok {
		return
	}

	msg, err := h.analyzer.Analyze(c.Request.Context(), s.User, s.Mail, c.Param("messageId"))
	if err != nil {
		writeError(c, h.logger, err, "Error analyzing email")
		return
	}
	c.JSON(http.StatusOK, msg)
}

// Send handles POST /api/emails/send
func (h *EmailHandler) Send(c *gin.Context) {
	s, ok := resolveSession(c, h.sessions, h.logger)
	if !ok {
		return
	}

	var req reply.Request
	if err := c.ShouldBindJSON(&req); err != nil {
		writeError(c, h.logger, reply.ErrMissingFields, "Failed to send reply")
		return
	}

	if err := h.replies.Send(c.Request.Context(), s.User, s.Mail, req); err != nil {
		writeError(c, h.logger, err, "Failed to send reply")
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "Reply sent successfully!"})
}
