package app

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	mqcontracts "mailtriage/contracts/mq"
	"mailtriage/internal/ai"
	"mailtriage/internal/mqhandler"
	"mailtriage/internal/repository"
	"mailtriage/internal/service/triage"
	"mailtriage/pkg/mq"
	"mailtriage/pkg/outbox"
	redisclient "mailtriage/pkg/redis"
	"mailtriage/pkg/util"
)

const (
	retryCounterTTL     = 24 * time.Hour
	publisherCheckEvery = 15 * time.Second
)

var workerCmd = &cobra.Command{
	Use:   "worker",
	Short: "Dispatch outbox events and consume triage retries",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		rt, err := bootstrap(ctx, "worker")
		if err != nil {
			return err
		}
		defer rt.close()
		return work(ctx, rt)
	},
}

func work(ctx context.Context, rt *runtime) error {
	cfg, log := rt.cfg, rt.logger
	if cfg.MQ.URL == "" {
		return errors.New("worker requires mq.url")
	}

	rdb, err := redisclient.NewClient(ctx, cfg.Redis)
	if err != nil {
		return fmt.Errorf("connect redis: %w", err)
	}
	if rdb == nil {
		return errors.New("worker requires redis.addr for retry counting")
	}
	defer rdb.Close()

	publisher, err := mq.NewPublisher(cfg.MQ.URL)
	if err != nil {
		return fmt.Errorf("init MQ publisher: %w", err)
	}
	defer publisher.Close()

	outboxRepo := outbox.NewRepository(rt.pool)
	messages := repository.NewMessageRepository(rt.pool, outboxRepo)
	batcher := triage.NewBatcher(ai.NewClient(cfg.Gemini, log), messages, cfg.Triage.BatchBodyLimit, log)

	retryHandler := mqhandler.NewTriageRetryHandler(
		messages,
		batcher,
		util.NewRetryCounter(rdb, retryCounterTTL),
		publisher,
		cfg.Triage.MaxRetries,
		log,
	)

	consumer, err := mq.NewConsumer(cfg.MQ.URL, mqcontracts.TriageRetryQueue, mqcontracts.RoutingTriageRetryRequested, log)
	if err != nil {
		return fmt.Errorf("init triage retry consumer: %w", err)
	}
	defer consumer.Close()
	consumer.SetHandler(retryHandler.Handle)

	dispatcher := outbox.NewDispatcher(outboxRepo, publisher, log).
		WithMaxRetries(cfg.Outbox.MaxRetries).
		WithInterval(cfg.Outbox.Interval()).
		WithBatchSize(cfg.Outbox.BatchSize)

	log.Info("mailtriage worker initialized",
		zap.String("queue", mqcontracts.TriageRetryQueue),
		zap.Int("max_retries", cfg.Triage.MaxRetries),
	)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		dispatcher.Start(gctx)
		return nil
	})
	g.Go(func() error {
		return consumer.StartConsuming(gctx)
	})
	g.Go(func() error {
		return watchPublisher(gctx, publisher, publisherCheckEvery, log)
	})

	err = g.Wait()
	log.Info("mailtriage worker stopped")
	return err
}

type connectionChecker interface {
	IsConnected() bool
}

// watchPublisher returns an error once the broker connection is closed.
// The publisher does not reconnect, so the worker exits and is restarted.
func watchPublisher(ctx context.Context, conn connectionChecker, every time.Duration, log *zap.Logger) error {
	ticker := time.NewTicker(every)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			if !conn.IsConnected() {
				log.Error("MQ publisher connection lost")
				return errors.New("mq publisher connection lost")
			}
		}
	}
}
