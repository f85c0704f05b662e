package handler

import (
	"context"
	"net/http"
	"net/url"
	"strings"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"mailtriage/internal/service/account"
	"mailtriage/pkg/logger"
)

type SignIn interface {
	AuthURL() (string, error)
	Complete(ctx context.Context, state, code string) (*account.Login, error)
}

type AuthHandler struct {
	accounts  SignIn
	clientURL string
	logger    *zap.Logger
}

func NewAuthHandler(accounts SignIn, clientURL string, logger *zap.Logger) *AuthHandler {
	return &AuthHandler{accounts: accounts, clientURL: strings.TrimRight(clientURL, "/"), logger: logger}
}

// Begin handles GET /api/auth/google
func (h *AuthHandler) Begin(c *gin.Context) {
	target, err := h.accounts.AuthURL()
	if err != nil {
		writeError(c, h.logger, err, "Failed to start Google sign-in.")
		return
	}
	c.Redirect(http.StatusFound, target)
}

// Callback handles GET /api/auth/google/callback
func (h *AuthHandler) Callback(c *gin.Context) {
	if e := c.Query("error"); e != "" {
		logger.WithTrace(c.Request.Context(), h.logger).Info("Google sign-in declined", zap.String("reason", e))
		c.Redirect(http.StatusFound, h.clientURL+"/login?error=true")
		return
	}

	login, err := h.accounts.Complete(c.Request.Context(), c.Query("state"), c.Query("code"))
	if err != nil {
		logger.WithTrace(c.Request.Context(), h.logger).Warn("Google sign-in failed", zap.Error(err))
		c.Redirect(http.StatusFound, h.clientURL+"/login?error=true")
		return
	}

	q := url.Values{}
	q.Set("token", login.Token)
	q.Set("name", login.User.DisplayName)
	q.Set("email", login.User.Email)
	c.Redirect(http.StatusFound, h.clientURL+"/dashboard?"+q.Encode())
}
