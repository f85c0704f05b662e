package triage

import (
	"context"
	"time"

	"go.uber.org/zap"
	gmail "google.golang.org/api/gmail/v1"

	"mailtriage/internal/mailparse"
	"mailtriage/internal/model"
	"mailtriage/pkg/logger"
)

const (
	emptyBodySummary = "No text content to analyze."
	failedSummary    = "AI service failed to analyze this email."
)

// MessageFetcher loads one full Gmail message.
type MessageFetcher interface {
	GetMessage(ctx context.Context, id string) (*gmail.Message, error)
}

// MessageUpserter stores a fully computed cache row.
type MessageUpserter interface {
	Upsert(ctx context.Context, m *model.CachedMessage) (*model.CachedMessage, error)
}

// Analyzer re-runs triage for a single message on demand.
type Analyzer struct {
	ai        Generator
	store     MessageUpserter
	logger    *zap.Logger
	bodyLimit int
	now       func() time.Time
}

func NewAnalyzer(ai Generator, store MessageUpserter, bodyLimit int, logger *zap.Logger) *Analyzer {
	return &Analyzer{ai: ai, store: store, logger: logger, bodyLimit: bodyLimit, now: time.Now}
}

// Analyze fetches messageID, triages it and overwrites its cache row.
// Model failures are recorded on the row as priority "error"; only fetch
// and storage failures are returned.
func (a *Analyzer) Analyze(ctx context.Context, user *model.User, mail MessageFetcher, messageID string) (*model.CachedMessage, error) {
	msg, err := mail.GetMessage(ctx, messageID)
	if err != nil {
		return nil, err
	}

	m := mailparse.ToCachedMessage(user.ID, msg)
	t, status := a.triage(ctx, messageID, mailparse.PlainText(m.Body, a.bodyLimit))
	m.Apply(t, status)

	return a.store.Upsert(ctx, m)
}

func (a *Analyzer) triage(ctx context.Context, messageID, body string) (model.Triage, model.EnrichmentStatus) {
	if body == "" {
		return model.Triage{Priority: model.PriorityNeutral, Summary: emptyBodySummary}, model.EnrichmentAnalyzed
	}

	log := logger.WithTrace(ctx, a.logger).With(zap.String("message_id", messageID))

	text, err := a.ai.Generate(ctx, SinglePrompt(body, a.now()))
	if err == nil {
		var t model.Triage
		if t, err = parseSingle(text); err == nil {
			return t, model.EnrichmentAnalyzed
		}
	}

	log.Warn("Single message analysis failed", zap.Error(err))
	return model.Triage{Priority: model.PriorityError, Summary: failedSummary}, model.EnrichmentFailed
}
