package app

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"mailtriage/internal/ai"
	"mailtriage/internal/auth"
	"mailtriage/internal/google"
	"mailtriage/internal/handler"
	"mailtriage/internal/httpserver"
	"mailtriage/internal/repository"
	"mailtriage/internal/sealer"
	"mailtriage/internal/service/account"
	"mailtriage/internal/service/calendar"
	"mailtriage/internal/service/credential"
	"mailtriage/internal/service/mailsync"
	"mailtriage/internal/service/reply"
	"mailtriage/internal/service/triage"
	"mailtriage/pkg/outbox"
	redisclient "mailtriage/pkg/redis"
	"mailtriage/pkg/util"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the REST API",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		rt, err := bootstrap(ctx, "api")
		if err != nil {
			return err
		}
		defer rt.close()
		return serve(ctx, rt)
	},
}

func serve(ctx context.Context, rt *runtime) error {
	cfg, log := rt.cfg, rt.logger

	rdb, err := redisclient.NewClient(ctx, cfg.Redis)
	if err != nil {
		log.Warn("Redis unavailable, in-flight triage dedupe disabled", zap.Error(err))
		rdb = nil
	}
	if rdb != nil {
		defer rdb.Close()
	}

	users := repository.NewUserRepository(rt.pool, sealer.New(cfg.Security.TokenKey))
	messages := repository.NewMessageRepository(rt.pool, outbox.NewRepository(rt.pool))

	tokens := auth.NewManager(cfg.JWT.Secret, cfg.JWT.TTL())
	oauth := google.NewOAuth(cfg.Google)
	gemini := ai.NewClient(cfg.Gemini, log)

	batchOpts := []triage.BatcherOption{triage.WithRetry(cfg.Triage.RetryEnabled)}
	if rdb != nil {
		batchOpts = append(batchOpts, triage.WithLocker(util.NewDeduper(rdb, cfg.Triage.LockTTL(), log)))
	}
	batcher := triage.NewBatcher(gemini, messages, cfg.Triage.BatchBodyLimit, log, batchOpts...)
	analyzer := triage.NewAnalyzer(gemini, messages, cfg.Triage.SingleBodyLimit, log)
	engine := mailsync.NewEngine(messages, batcher, cfg.Triage, log)
	sessions := credential.NewProvider(users, tokens, oauth, log)

	handlers := httpserver.Handlers{
		Auth:     handler.NewAuthHandler(account.NewService(oauth, users, tokens, log), cfg.Server.ClientURL, log),
		Email:    handler.NewEmailHandler(sessions, engine, analyzer, reply.NewService(), log),
		Calendar: handler.NewCalendarHandler(sessions, calendar.NewBridge(cfg.Google.TimeZone), log),
	}

	if !cfg.Log.Development {
		gin.SetMode(gin.ReleaseMode)
	}
	router := httpserver.NewRouter(handlers, rt.pool, cfg.Server.ClientURL, log)

	srv := &http.Server{
		Addr:              cfg.Server.Port,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	log.Info("mailtriage API initialized",
		zap.String("addr", cfg.Server.Port),
		zap.Bool("triage_retry", cfg.Triage.RetryEnabled),
		zap.Bool("triage_dedupe", rdb != nil),
	)
	return httpserver.Serve(ctx, srv, log)
}
