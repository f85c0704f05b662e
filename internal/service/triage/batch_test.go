package triage

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/nalgeon/be"
	"go.uber.org/zap"

	"mailtriage/internal/apperr"
)

var fixedNow = func() time.Time { return time.Date(2025, 9, 18, 9, 30, 0, 0, time.UTC) }

func newTestBatcher(ai Generator, store Store, opts ...BatcherOption) *Batcher {
	opts = append(opts, WithClock(fixedNow))
	return NewBatcher(ai, store, 4000, zap.NewNop(), opts...)
}

func TestEnrichMakesOneCallPerBatch(t *testing.T) {
	ai := &fakeAI{reply: `[{"id":"a","priority":"urgent","summary":"s1"},{"id":"b","priority":"spam","summary":"s2"}]`}
	store := &fakeStore{}
	b := newTestBatcher(ai, store)

	err := b.Enrich(context.Background(), uuid.New(), []Item{
		{ID: "a", Body: "<p>Can we meet tomorrow?</p>"},
		{ID: "b", Body: "Cheap watches"},
	})
	be.Err(t, err, nil)
	be.Equal(t, len(ai.prompts), 1)
	be.True(t, strings.Contains(ai.prompts[0], "2025-09-18"))
	be.True(t, strings.Contains(ai.prompts[0], `{"id":"a","body":"Can we meet tomorrow?"}`))
	be.Equal(t, len(store.applied), 2)
	be.Equal(t, len(store.failed), 0)
}

func TestEnrichSkipsEmptyBodies(t *testing.T) {
	ai := &fakeAI{}
	store := &fakeStore{}
	b := newTestBatcher(ai, store)

	err := b.Enrich(context.Background(), uuid.New(), []Item{
		{ID: "a", Body: ""},
		{ID: "b", Body: "<div>  </div>"},
	})
	be.Err(t, err, nil)
	be.Equal(t, len(ai.prompts), 0)
	be.Equal(t, len(store.applied), 0)
	be.Equal(t, len(store.failed), 0)
}

func TestEnrichAIFailureLeavesPlaceholders(t *testing.T) {
	ai := &fakeAI{err: apperr.ErrUpstream}
	store := &fakeStore{}
	b := newTestBatcher(ai, store, WithRetry(true))

	err := b.Enrich(context.Background(), uuid.New(), []Item{{ID: "a", Body: "hello"}})
	be.Err(t, err, apperr.ErrUpstream)
	be.Equal(t, len(store.applied), 0)
	be.Equal(t, len(store.failed), 1)
	be.Equal(t, store.failed[0].ids, []string{"a"})
	be.True(t, store.failed[0].scheduleRetry)
}

func TestEnrichParseFailureMarksFailed(t *testing.T) {
	ai := &fakeAI{reply: "Sorry, I can't help with that."}
	store := &fakeStore{}
	b := newTestBatcher(ai, store)

	err := b.Enrich(context.Background(), uuid.New(), []Item{{ID: "a", Body: "hello"}})
	be.Err(t, err, apperr.ErrTriageParse)
	be.Equal(t, len(store.applied), 0)
	be.Equal(t, len(store.failed), 1)
	be.Equal(t, store.failed[0].scheduleRetry, false)
}

func TestEnrichDropsUnrequestedResults(t *testing.T) {
	ai := &fakeAI{reply: `[{"id":"a","priority":"urgent"},{"id":"zzz","priority":"spam"},{"id":"a","priority":"spam"}]`}
	store := &fakeStore{}
	b := newTestBatcher(ai, store)

	err := b.Enrich(context.Background(), uuid.New(), []Item{{ID: "a", Body: "hello"}})
	be.Err(t, err, nil)
	be.Equal(t, len(store.applied), 1)
	be.Equal(t, store.applied[0].MessageID, "a")
}

func TestEnrichSkipsLockedMessages(t *testing.T) {
	user := uuid.New()
	locker := &fakeLocker{held: map[string]bool{"triage:" + user.String() + ":a": true}}
	ai := &fakeAI{reply: `[{"id":"b","priority":"neutral"}]`}
	store := &fakeStore{}
	b := newTestBatcher(ai, store, WithLocker(locker))

	err := b.Enrich(context.Background(), user, []Item{{ID: "a", Body: "one"}, {ID: "b", Body: "two"}})
	be.Err(t, err, nil)
	be.Equal(t, len(ai.prompts), 1)
	be.True(t, !strings.Contains(ai.prompts[0], `"id":"a"`))
	be.True(t, strings.Contains(ai.prompts[0], `"id":"b"`))
}

func TestReenrichIgnoresLocksAndNeverReschedules(t *testing.T) {
	user := uuid.New()
	locker := &fakeLocker{held: map[string]bool{"triage:" + user.String() + ":a": true}}
	ai := &fakeAI{err: errors.New("boom")}
	store := &fakeStore{}
	b := newTestBatcher(ai, store, WithLocker(locker), WithRetry(true))

	err := b.Reenrich(context.Background(), user, []Item{{ID: "a", Body: "one"}})
	be.Err(t, err, "boom")
	be.Equal(t, len(ai.prompts), 1)
	be.Equal(t, len(store.failed), 1)
	be.Equal(t, store.failed[0].scheduleRetry, false)
}

func TestEnrichFailureReleasesClaimsUnlessRetryScheduled(t *testing.T) {
	user := uuid.New()
	key := "triage:" + user.String() + ":a"

	locker := &fakeLocker{held: map[string]bool{}}
	b := newTestBatcher(&fakeAI{err: apperr.ErrUpstream}, &fakeStore{}, WithLocker(locker))
	err := b.Enrich(context.Background(), user, []Item{{ID: "a", Body: "hello"}})
	be.Err(t, err, apperr.ErrUpstream)
	be.Equal(t, locker.held[key], false)

	locker = &fakeLocker{held: map[string]bool{}}
	b = newTestBatcher(&fakeAI{err: apperr.ErrUpstream}, &fakeStore{}, WithLocker(locker), WithRetry(true))
	err = b.Enrich(context.Background(), user, []Item{{ID: "a", Body: "hello"}})
	be.Err(t, err, apperr.ErrUpstream)
	be.True(t, locker.held[key])
}
