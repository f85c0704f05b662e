package handler

import (
	"context"
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"mailtriage/internal/apperr"
	"mailtriage/internal/service/credential"
	"mailtriage/pkg/logger"
)

// SessionResolver authenticates a request's Authorization header.
type SessionResolver interface {
	Resolve(ctx context.Context, authHeader string) (*credential.Session, error)
}

func resolveSession(c *gin.Context, sessions SessionResolver, log *zap.Logger) (*credential.Session, bool) {
	s, err := sessions.Resolve(c.Request.Context(), c.GetHeader("Authorization"))
	if err != nil {
		writeError(c, log, err, "Authentication error.")
		return nil, false
	}
	return s, true
}

// writeError maps err onto a status code and a client-safe message. The
// underlying error is only logged.
func writeError(c *gin.Context, log *zap.Logger, err error, fallback string) {
	status, message := http.StatusInternalServerError, fallback

	var verr *apperr.ValidationError
	switch {
	case errors.Is(err, apperr.ErrUnauthenticated), errors.Is(err, apperr.ErrUserNotFound):
		status, message = http.StatusUnauthorized, "Authentication error."
	case errors.As(err, &verr):
		status, message = http.StatusBadRequest, verr.Message
	case errors.Is(err, apperr.ErrNotFound):
		status, message = http.StatusNotFound, "Resource not found."
	}

	l := logger.WithTrace(c.Request.Context(), log).With(
		zap.String("method", c.Request.Method),
		zap.String("path", c.FullPath()),
		zap.Int("status", status),
		zap.Error(err),
	)
	if status >= http.StatusInternalServerError {
		l.Error(fallback)
	} else {
		l.Info("Request rejected")
	}

	c.AbortWithStatusJSON(status, gin.H{"message": message})
}
