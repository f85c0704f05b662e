package triage

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"mailtriage/internal/mailparse"
	"mailtriage/internal/model"
	"mailtriage/pkg/logger"
	"mailtriage/pkg/metrics"
)

const lockHandler = "triage"

// Generator produces model output for a prompt.
type Generator interface {
	Generate(ctx context.Context, prompt string) (string, error)
}

// Store is the persistence the batcher writes results to.
type Store interface {
	ApplyTriage(ctx context.Context, userID uuid.UUID, results []model.Triage) (int, error)
	MarkFailed(ctx context.Context, userID uuid.UUID, ids []string, scheduleRetry bool) error
}

// Locker claims a message for one in-flight batch.
type Locker interface {
	AcquireOnce(ctx context.Context, handler, key string) bool
	Release(ctx context.Context, handler, key string)
}

// Batcher triages many messages with a single model call.
type Batcher struct {
	ai           Generator
	store        Store
	locker       Locker
	logger       *zap.Logger
	bodyLimit    int
	retryEnabled bool
	now          func() time.Time
}

type BatcherOption func(*Batcher)

// WithLocker makes fresh batches skip messages already claimed elsewhere.
func WithLocker(l Locker) BatcherOption {
	return func(b *Batcher) { b.locker = l }
}

// WithRetry stages a retry event whenever a fresh batch fails.
func WithRetry(enabled bool) BatcherOption {
	return func(b *Batcher) { b.retryEnabled = enabled }
}

// WithClock sets the clock that dates the batch prompt.
func WithClock(now func() time.Time) BatcherOption {
	return func(b *Batcher) { b.now = now }
}

func NewBatcher(ai Generator, store Store, bodyLimit int, logger *zap.Logger, opts ...BatcherOption) *Batcher {
	b := &Batcher{
		ai:        ai,
		store:     store,
		logger:    logger,
		bodyLimit: bodyLimit,
		now:       time.Now,
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// Enrich triages freshly cached messages. Items with no text are left
// pending. On failure the rows are marked failed and, if enabled, a retry
// is scheduled; the error is still returned for logging.
func (b *Batcher) Enrich(ctx context.Context, userID uuid.UUID, items []Item) error {
	return b.run(ctx, userID, items, true)
}

// Reenrich triages messages again without claiming them and without
// scheduling another retry.
func (b *Batcher) Reenrich(ctx context.Context, userID uuid.UUID, items []Item) error {
	return b.run(ctx, userID, items, false)
}

func (b *Batcher) run(ctx context.Context, userID uuid.UUID, items []Item, fresh bool) error {
	log := logger.WithTrace(ctx, b.logger).With(zap.String("user_id", userID.String()))

	batch := make([]Item, 0, len(items))
	for _, it := range items {
		body := mailparse.PlainText(it.Body, b.bodyLimit)
		if body == "" {
			continue
		}
		if fresh && b.locker != nil && !b.locker.AcquireOnce(ctx, lockHandler, lockKey(userID, it.ID)) {
			metrics.IncrementTriageBatch("skipped")
			continue
		}
		batch = append(batch, Item{ID: it.ID, Body: body})
	}
	if len(batch) == 0 {
		return nil
	}

	ids := make([]string, len(batch))
	for i, it := range batch {
		ids[i] = it.ID
	}

	results, status, err := b.triage(ctx, batch)
	if err != nil {
		metrics.IncrementTriageBatch(status)
		log.Warn("Batch triage failed",
			zap.Int("batch_size", len(batch)),
			zap.String("status", status),
			zap.Error(err),
		)
		scheduleRetry := fresh && b.retryEnabled
		if markErr := b.store.MarkFailed(ctx, userID, ids, scheduleRetry); markErr != nil {
			log.Error("Failed to mark batch as failed", zap.Error(markErr))
		}
		// A scheduled retry keeps the claim until the worker has run.
		if fresh && !scheduleRetry {
			b.release(ctx, userID, ids)
		}
		return err
	}

	results = keepRequested(results, ids)
	updated, err := b.store.ApplyTriage(ctx, userID, results)
	if err != nil {
		metrics.IncrementTriageBatch("store_error")
		return fmt.Errorf("apply triage results: %w", err)
	}

	metrics.IncrementTriageBatch("success")
	log.Info("Batch triage applied",
		zap.Int("batch_size", len(batch)),
		zap.Int("results", len(results)),
		zap.Int("updated", updated),
	)
	return nil
}

func (b *Batcher) release(ctx context.Context, userID uuid.UUID, ids []string) {
	if b.locker == nil {
		return
	}
	for _, id := range ids {
		b.locker.Release(ctx, lockHandler, lockKey(userID, id))
	}
}

func lockKey(userID uuid.UUID, messageID string) string {
	return userID.String() + ":" + messageID
}

func (b *Batcher) triage(ctx context.Context, batch []Item) ([]model.Triage, string, error) {
	prompt, err := BatchPrompt(batch, b.now())
	if err != nil {
		return nil, "prompt_error", err
	}
	text, err := b.ai.Generate(ctx, prompt)
	if err != nil {
		return nil, "ai_error", fmt.Errorf("generate batch triage: %w", err)
	}
	results, err := parseBatch(text)
	if err != nil {
		return nil, "parse_error", err
	}
	return results, "", nil
}

// keepRequested drops results for ids that were not in the batch and
// repeated ids after the first.
func keepRequested(results []model.Triage, ids []string) []model.Triage {
	want := make(map[string]bool, len(ids))
	for _, id := range ids {
		want[id] = true
	}
	out := results[:0]
	for _, r := range results {
		if want[r.MessageID] {
			want[r.MessageID] = false
			out = append(out, r)
		}
	}
	return out
}
