package mailsync

import (
	"context"
	"encoding/base64"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/nalgeon/be"
	"go.uber.org/zap"
	gmail "google.golang.org/api/gmail/v1"

	"mailtriage/internal/apperr"
	"mailtriage/internal/model"
	"mailtriage/internal/service/triage"
	"mailtriage/pkg/config"
)

type fakeMail struct {
	mu      sync.Mutex
	ids     []string
	msgs    map[string]*gmail.Message
	failOn  string
	fetched []string
}

func (f *fakeMail) ListMessageIDs(context.Context, string, int64) ([]string, error) {
	return f.ids, nil
}

func (f *fakeMail) GetMessage(_ context.Context, id string) (*gmail.Message, error) {
	f.mu.Lock()
	f.fetched = append(f.fetched, id)
	f.mu.Unlock()
	if id == f.failOn {
		return nil, apperr.ErrUpstream
	}
	return f.msgs[id], nil
}

type memoryStore struct {
	rows     map[string]*model.CachedMessage
	inserted int
}

func (s *memoryStore) ExistingIDs(_ context.Context, _ uuid.UUID, ids []string) (map[string]struct{}, error) {
	out := map[string]struct{}{}
	for _, id := range ids {
		if _, ok := s.rows[id]; ok {
			out[id] = struct{}{}
		}
	}
	return out, nil
}

func (s *memoryStore) InsertPlaceholders(_ context.Context, msgs []*model.CachedMessage) (int, error) {
	n := 0
	for _, m := range msgs {
		if _, ok := s.rows[m.GmailMessageID]; ok {
			continue
		}
		cp := *m
		s.rows[m.GmailMessageID] = &cp
		n++
	}
	s.inserted += n
	return n, nil
}

func (s *memoryStore) FindByIDs(_ context.Context, _ uuid.UUID, ids []string) ([]*model.CachedMessage, error) {
	var out []*model.CachedMessage
	for _, id := range ids {
		if m, ok := s.rows[id]; ok {
			out = append(out, m)
		}
	}
	return out, nil
}

type recordingEnricher struct {
	calls   [][]triage.Item
	ctxErrs []error
	bounded []bool
	err     error
}

func (r *recordingEnricher) Enrich(ctx context.Context, _ uuid.UUID, items []triage.Item) error {
	r.calls = append(r.calls, items)
	r.ctxErrs = append(r.ctxErrs, ctx.Err())
	_, ok := ctx.Deadline()
	r.bounded = append(r.bounded, ok)
	return r.err
}

func message(id string, received time.Time, body string) *gmail.Message {
	return &gmail.Message{
		Id:           id,
		ThreadId:     "t-" + id,
		InternalDate: received.UnixMilli(),
		Payload: &gmail.MessagePart{
			MimeType: "text/plain",
			Body:     &gmail.MessagePartBody{Data: base64.URLEncoding.EncodeToString([]byte(body))},
		},
	}
}

func newTestEngine(store Store, enricher Enricher) *Engine {
	return NewEngine(store, enricher, config.TriageConfig{
		ListQuery:            "in:inbox",
		MaxResults:           25,
		FetchConcurrency:     4,
		EnrichTimeoutSeconds: 90,
	}, zap.NewNop())
}

func TestListRecentFetchesOnlyUncached(t *testing.T) {
	user := &model.User{ID: uuid.New()}
	older := time.Date(2025, 9, 1, 8, 0, 0, 0, time.UTC)
	newer := older.Add(time.Hour)

	store := &memoryStore{rows: map[string]*model.CachedMessage{
		"a": {UserID: user.ID, GmailMessageID: "a", ReceivedAt: older, EnrichmentStatus: model.EnrichmentAnalyzed},
	}}
	mail := &fakeMail{ids: []string{"a", "b"}, msgs: map[string]*gmail.Message{"b": message("b", newer, "new mail")}}
	enricher := &recordingEnricher{}

	got, err := newTestEngine(store, enricher).ListRecent(context.Background(), user, mail)
	be.Err(t, err, nil)

	be.Equal(t, mail.fetched, []string{"b"})
	be.Equal(t, len(enricher.calls), 1)
	be.Equal(t, enricher.calls[0], []triage.Item{{ID: "b", Body: "new mail"}})

	be.Equal(t, len(got), 2)
	be.Equal(t, got[0].GmailMessageID, "b")
	be.Equal(t, got[1].GmailMessageID, "a")
	be.Equal(t, got[0].Priority, model.PriorityNeutral)
	be.Equal(t, got[0].Summary, model.PendingSummary)
	be.Equal(t, got[0].EnrichmentStatus, model.EnrichmentPending)
}

func TestListRecentEmptyInbox(t *testing.T) {
	store := &memoryStore{rows: map[string]*model.CachedMessage{}}
	enricher := &recordingEnricher{}

	got, err := newTestEngine(store, enricher).ListRecent(context.Background(), &model.User{ID: uuid.New()}, &fakeMail{})
	be.Err(t, err, nil)
	be.Equal(t, len(got), 0)
	be.True(t, got != nil)
	be.Equal(t, len(enricher.calls), 0)
	be.Equal(t, store.inserted, 0)
}

func TestListRecentAllCachedSkipsFetchAndTriage(t *testing.T) {
	user := &model.User{ID: uuid.New()}
	store := &memoryStore{rows: map[string]*model.CachedMessage{
		"a": {GmailMessageID: "a"},
	}}
	mail := &fakeMail{ids: []string{"a"}}
	enricher := &recordingEnricher{}

	got, err := newTestEngine(store, enricher).ListRecent(context.Background(), user, mail)
	be.Err(t, err, nil)
	be.Equal(t, len(got), 1)
	be.Equal(t, len(mail.fetched), 0)
	be.Equal(t, len(enricher.calls), 0)
}

func TestListRecentFetchErrorFailsWholeRequest(t *testing.T) {
	now := time.Now()
	store := &memoryStore{rows: map[string]*model.CachedMessage{}}
	mail := &fakeMail{
		ids:    []string{"a", "b"},
		msgs:   map[string]*gmail.Message{"a": message("a", now, "x")},
		failOn: "b",
	}
	enricher := &recordingEnricher{}

	_, err := newTestEngine(store, enricher).ListRecent(context.Background(), &model.User{ID: uuid.New()}, mail)
	be.Err(t, err, apperr.ErrUpstream)
	be.Equal(t, store.inserted, 0)
	be.Equal(t, len(enricher.calls), 0)
}

func TestListRecentSurvivesTriageFailure(t *testing.T) {
	now := time.Now()
	store := &memoryStore{rows: map[string]*model.CachedMessage{}}
	mail := &fakeMail{ids: []string{"a"}, msgs: map[string]*gmail.Message{"a": message("a", now, "x")}}
	enricher := &recordingEnricher{err: apperr.ErrTriageParse}

	got, err := newTestEngine(store, enricher).ListRecent(context.Background(), &model.User{ID: uuid.New()}, mail)
	be.Err(t, err, nil)
	be.Equal(t, len(got), 1)
	be.Equal(t, got[0].Summary, model.PendingSummary)
}

func TestListRecentTriageOutlivesCancelledRequest(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	store := &memoryStore{rows: map[string]*model.CachedMessage{}}
	mail := &fakeMail{ids: []string{"a"}, msgs: map[string]*gmail.Message{"a": message("a", time.Now(), "x")}}
	enricher := &recordingEnricher{}

	_, err := newTestEngine(store, enricher).ListRecent(ctx, &model.User{ID: uuid.New()}, mail)
	be.Err(t, err, nil)
	be.Equal(t, len(enricher.calls), 1)
	be.Err(t, enricher.ctxErrs[0], nil)
	be.True(t, enricher.bounded[0])
}
