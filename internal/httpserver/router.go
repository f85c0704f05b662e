package httpserver

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"mailtriage/internal/handler"
	"mailtriage/pkg/otel"
)

// Pinger reports whether the database is reachable.
type Pinger interface {
	Ping(ctx context.Context) error
}

type Handlers struct {
	Auth     *handler.AuthHandler
	Email    *handler.EmailHandler
	Calendar *handler.CalendarHandler
}

func NewRouter(h Handlers, db Pinger, clientURL string, logger *zap.Logger) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(TraceMiddleware())
	r.Use(otel.GinMiddleware())
	r.Use(RequestLogger(logger))
	r.Use(CORS(clientURL))

	r.GET("/", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"message": "Welcome to the AI Email Workflow API!"})
	})
	r.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	r.HEAD("/healthz", func(c *gin.Context) {
		c.Status(http.StatusOK)
	})
	r.GET("/readyz", func(c *gin.Context) {
		ctx, cancel := context.WithTimeout(c.Request.Context(), time.Second)
		defer cancel()

		if err := db.Ping(ctx); err != nil {
			logger.Warn("Readiness check failed", zap.Error(err))
			c.JSON(http.StatusServiceUnavailable, gin.H{"status": "db_not_ready"})
			return
		}
		c.JSON(http.StatusOK, gin.H{"status": "ready"})
	})
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	auth := r.Group("/api/auth")
	{
		auth.GET("/google", h.Auth.Begin)
		auth.GET("/google/callback", h.Auth.Callback)
	}

	emails := r.Group("/api/emails")
	{
		emails.GET("", h.Email.List)
		emails.POST("/analyze/:messageId", h.Email.Analyze)
		emails.POST("/send", h.Email.Send)
		emails.POST("/calendar/check-availability", h.Calendar.CheckAvailability)
		emails.POST("/calendar/create-event", h.Calendar.CreateEvent)
	}

	return r
}
