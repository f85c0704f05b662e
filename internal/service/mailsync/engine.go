package mailsync

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
	gmail "google.golang.org/api/gmail/v1"

	"mailtriage/internal/mailparse"
	"mailtriage/internal/model"
	"mailtriage/internal/service/triage"
	"mailtriage/pkg/config"
	"mailtriage/pkg/logger"
	"mailtriage/pkg/metrics"
)

// MailReader is the part of Gmail the sync needs.
type MailReader interface {
	ListMessageIDs(ctx context.Context, query string, max int64) ([]string, error)
	GetMessage(ctx context.Context, id string) (*gmail.Message, error)
}

type Store interface {
	ExistingIDs(ctx context.Context, userID uuid.UUID, ids []string) (map[string]struct{}, error)
	InsertPlaceholders(ctx context.Context, msgs []*model.CachedMessage) (int, error)
	FindByIDs(ctx context.Context, userID uuid.UUID, ids []string) ([]*model.CachedMessage, error)
}

type Enricher interface {
	Enrich(ctx context.Context, userID uuid.UUID, items []triage.Item) error
}

// Engine lists a user's recent mail, caching and triaging what is new.
type Engine struct {
	store       Store
	enricher    Enricher
	logger      *zap.Logger
	query       string
	maxResults  int64
	concurrency int

	// enrichTimeout bounds triage, which is detached from the request.
	enrichTimeout time.Duration
}

func NewEngine(store Store, enricher Enricher, cfg config.TriageConfig, logger *zap.Logger) *Engine {
	return &Engine{
		store:       store,
		enricher:    enricher,
		logger:      logger,
		query:       cfg.ListQuery,
		maxResults:  cfg.MaxResults,
		concurrency: cfg.FetchConcurrency,

		enrichTimeout: cfg.EnrichTimeout(),
	}
}

// ListRecent returns the user's recent messages newest first. Messages not
// yet cached are fetched, stored as pending and triaged in one batch before
// the list is read back. Triage failures never fail the call.
func (e *Engine) ListRecent(ctx context.Context, user *model.User, mail MailReader) ([]*model.CachedMessage, error) {
	log := logger.WithTrace(ctx, e.logger).With(zap.String("user_id", user.ID.String()))

	ids, err := mail.ListMessageIDs(ctx, e.query, e.maxResults)
	if err != nil {
		return nil, fmt.Errorf("list recent messages: %w", err)
	}
	if len(ids) == 0 {
		return []*model.CachedMessage{}, nil
	}

	cached, err := e.store.ExistingIDs(ctx, user.ID, ids)
	if err != nil {
		return nil, err
	}

	missing := make([]string, 0, len(ids))
	for _, id := range ids {
		if _, ok := cached[id]; !ok {
			missing = append(missing, id)
		}
	}
	metrics.AddEmailsSynced("cached", len(ids)-len(missing))

	if len(missing) > 0 {
		fresh, err := e.fetch(ctx, user.ID, mail, missing)
		if err != nil {
			return nil, err
		}

		inserted, err := e.store.InsertPlaceholders(ctx, fresh)
		if err != nil {
			return nil, fmt.Errorf("store new messages: %w", err)
		}
		metrics.AddEmailsSynced("fetched", len(fresh))
		log.Info("Cached new messages", zap.Int("fetched", len(fresh)), zap.Int("inserted", inserted))

		items := make([]triage.Item, len(fresh))
		for i, m := range fresh {
			items[i] = triage.Item{ID: m.GmailMessageID, Body: m.Body}
		}
		e.enrich(ctx, log, user.ID, items)
	}

	msgs, err := e.store.FindByIDs(ctx, user.ID, ids)
	if err != nil {
		return nil, err
	}
	sort.SliceStable(msgs, func(i, j int) bool {
		return msgs[i].ReceivedAt.After(msgs[j].ReceivedAt)
	})
	return msgs, nil
}

// enrich runs batch triage detached from the caller's cancellation and
// bounded by enrichTimeout.
func (e *Engine) enrich(ctx context.Context, log *zap.Logger, userID uuid.UUID, items []triage.Item) {
	ctx = context.WithoutCancel(ctx)
	if e.enrichTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, e.enrichTimeout)
		defer cancel()
	}
	if err := e.enricher.Enrich(ctx, userID, items); err != nil {
		log.Warn("Triage skipped for new messages", zap.Int("count", len(items)), zap.Error(err))
	}
}

// fetch loads ids concurrently. Any failure fails the whole fetch.
func (e *Engine) fetch(ctx context.Context, userID uuid.UUID, mail MailReader, ids []string) ([]*model.CachedMessage, error) {
	out := make([]*model.CachedMessage, len(ids))

	g, gctx := errgroup.WithContext(ctx)
	if e.concurrency > 0 {
		g.SetLimit(e.concurrency)
	}
	for i, id := range ids {
		g.Go(func() error {
			msg, err := mail.GetMessage(gctx, id)
			if err != nil {
				return fmt.Errorf("fetch message %s: %w", id, err)
			}
			m := mailparse.ToCachedMessage(userID, msg)
			m.MarkPending()
			out[i] = m
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return out, nil
}
