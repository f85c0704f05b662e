package mqhandler

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"sort"
	"strings"

	"github.com/google/uuid"
	"go.uber.org/zap"

	mqcontracts "mailtriage/contracts/mq"
	"mailtriage/internal/apperr"
	"mailtriage/internal/model"
	"mailtriage/internal/service/triage"
	"mailtriage/pkg/logger"
	"mailtriage/pkg/util"
)

type MessageFinder interface {
	FindByIDs(ctx context.Context, userID uuid.UUID, ids []string) ([]*model.CachedMessage, error)
}

type Reenricher interface {
	Reenrich(ctx context.Context, userID uuid.UUID, items []triage.Item) error
}

// AttemptCounter counts deliveries of the same retry request.
type AttemptCounter interface {
	IncrementAndGet(ctx context.Context, key string) (int64, error)
	Reset(ctx context.Context, key string) error
}

type DeadLetterPublisher interface {
	PublishToDLQ(ctx context.Context, routingKey string, payload []byte, reason string) error
}

// TriageRetryHandler re-runs batch triage for messages whose fresh batch failed.
type TriageRetryHandler struct {
	messages   MessageFinder
	batcher    Reenricher
	attempts   AttemptCounter
	deadLetter DeadLetterPublisher
	maxRetries int64
	logger     *zap.Logger
}

func NewTriageRetryHandler(
	messages MessageFinder,
	batcher Reenricher,
	attempts AttemptCounter,
	deadLetter DeadLetterPublisher,
	maxRetries int,
	logger *zap.Logger,
) *TriageRetryHandler {
	return &TriageRetryHandler{
		messages:   messages,
		batcher:    batcher,
		attempts:   attempts,
		deadLetter: deadLetter,
		maxRetries: int64(maxRetries),
		logger:     logger,
	}
}

// Handle returns an error only when the delivery should be redelivered.
func (h *TriageRetryHandler) Handle(ctx context.Context, raw json.RawMessage) error {
	log := logger.WithTrace(ctx, h.logger)

	var p mqcontracts.TriageRetryRequested
	if err := json.Unmarshal(raw, &p); err != nil {
		log.Error("Failed to unmarshal triage retry payload (non-retryable, sending to DLQ)", zap.Error(err))
		h.bury(ctx, raw, "invalid_payload")
		return nil
	}
	userID, err := uuid.Parse(p.UserID)
	if err != nil || len(p.MessageIDs) == 0 {
		log.Error("Triage retry payload has no usable target (sending to DLQ)", zap.String("user_id", p.UserID))
		h.bury(ctx, raw, "invalid_payload")
		return nil
	}

	log = log.With(zap.String("user_id", p.UserID), zap.Int("message_count", len(p.MessageIDs)))

	key := util.FormatRetryKey("triage", p.UserID+":"+fingerprint(p.MessageIDs))
	attempt, err := h.attempts.IncrementAndGet(ctx, key)
	if err != nil {
		log.Warn("Failed to get retry count, continuing anyway", zap.Error(err))
		attempt = 1
	}

	err = h.retry(ctx, userID, p.MessageIDs)
	if err == nil {
		if rerr := h.attempts.Reset(ctx, key); rerr != nil {
			log.Warn("Failed to reset retry count", zap.Error(rerr))
		}
		log.Info("Triage retry completed", zap.Int64("attempt", attempt))
		return nil
	}

	retryable, kind := apperr.IsRetryable(err)
	log = log.With(
		zap.Int64("attempt", attempt),
		zap.Int64("max_retries", h.maxRetries),
		zap.String("error_type", kind),
		zap.Bool("retryable", retryable),
		zap.Error(err),
	)

	switch {
	case !retryable:
		log.Error("Triage retry failed (non-retryable, sending to DLQ)")
		h.bury(ctx, raw, kind)
		return nil
	case attempt >= h.maxRetries:
		log.Error("Triage retry exhausted (sending to DLQ)")
		h.bury(ctx, raw, "max_retries_exceeded")
		return nil
	default:
		log.Warn("Triage retry failed, will retry")
		return err
	}
}

func (h *TriageRetryHandler) retry(ctx context.Context, userID uuid.UUID, ids []string) error {
	rows, err := h.messages.FindByIDs(ctx, userID, ids)
	if err != nil {
		return err
	}

	items := make([]triage.Item, 0, len(rows))
	for _, m := range rows {
		if m.EnrichmentStatus == model.EnrichmentAnalyzed {
			continue
		}
		items = append(items, triage.Item{ID: m.GmailMessageID, Body: m.Body})
	}
	if len(items) == 0 {
		return nil
	}
	return h.batcher.Reenrich(ctx, userID, items)
}

func (h *TriageRetryHandler) bury(ctx context.Context, raw []byte, reason string) {
	if h.deadLetter == nil {
		return
	}
	if err := h.deadLetter.PublishToDLQ(ctx, mqcontracts.RoutingTriageRetryRequested, raw, reason); err != nil {
		logger.WithTrace(ctx, h.logger).Error("Failed to publish to DLQ", zap.String("reason", reason), zap.Error(err))
	}
}

// fingerprint identifies a set of message ids regardless of order.
func fingerprint(ids []string) string {
	sorted := append([]string(nil), ids...)
	sort.Strings(sorted)
	sum := sha256.Sum256([]byte(strings.Join(sorted, ",")))
	return hex.EncodeToString(sum[:8])
}
