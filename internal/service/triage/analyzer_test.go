package triage

import (
	"context"
	"encoding/base64"
	"testing"

	"github.com/google/uuid"
	"github.com/nalgeon/be"
	"go.uber.org/zap"
	gmail "google.golang.org/api/gmail/v1"

	"mailtriage/internal/apperr"
	"mailtriage/internal/model"
)

func gmailMessage(id, body string) *gmail.Message {
	return &gmail.Message{
		Id:           id,
		ThreadId:     "t-" + id,
		InternalDate: 1726650000000,
		Payload: &gmail.MessagePart{
			MimeType: "text/plain",
			Headers: []*gmail.MessagePartHeader{
				{Name: "From", Value: "alice@example.com"},
				{Name: "Subject", Value: "Sync"},
			},
			Body: &gmail.MessagePartBody{Data: base64.URLEncoding.EncodeToString([]byte(body))},
		},
	}
}

func newTestAnalyzer(ai Generator, store MessageUpserter) *Analyzer {
	a := NewAnalyzer(ai, store, 8000, zap.NewNop())
	a.now = fixedNow
	return a
}

func TestAnalyzeTwiceKeepsOneRow(t *testing.T) {
	user := &model.User{ID: uuid.New()}
	mail := &fakeMailbox{msgs: map[string]*gmail.Message{"m1": gmailMessage("m1", "Lunch on Friday at noon?")}}
	store := &memoryMessages{}

	ai := &fakeAI{reply: `{"priority":"urgent","summary":"first","isMeetingRequest":true,"proposedTime":"12:00"}`}
	first, err := newTestAnalyzer(ai, store).Analyze(context.Background(), user, mail, "m1")
	be.Err(t, err, nil)
	be.Equal(t, first.Priority, model.PriorityUrgent)
	be.Equal(t, first.EnrichmentStatus, model.EnrichmentAnalyzed)

	ai.reply = `{"priority":"neutral","summary":"second"}`
	second, err := newTestAnalyzer(ai, store).Analyze(context.Background(), user, mail, "m1")
	be.Err(t, err, nil)

	be.Equal(t, len(store.rows), 1)
	be.Equal(t, second.ID, first.ID)
	be.Equal(t, second.Summary, "second")
	be.Equal(t, second.IsMeetingRequest, false)
	be.True(t, second.ProposedTime == nil)
}

func TestAnalyzeRecordsAIFailure(t *testing.T) {
	user := &model.User{ID: uuid.New()}
	mail := &fakeMailbox{msgs: map[string]*gmail.Message{"m1": gmailMessage("m1", "hello")}}
	store := &memoryMessages{}

	got, err := newTestAnalyzer(&fakeAI{err: apperr.ErrUpstream}, store).Analyze(context.Background(), user, mail, "m1")
	be.Err(t, err, nil)
	be.Equal(t, got.Priority, model.PriorityError)
	be.Equal(t, got.Summary, "AI service failed to analyze this email.")
	be.Equal(t, got.EnrichmentStatus, model.EnrichmentFailed)
	be.Equal(t, got.From, "alice@example.com")
}

func TestAnalyzeEmptyBodySkipsAI(t *testing.T) {
	user := &model.User{ID: uuid.New()}
	mail := &fakeMailbox{msgs: map[string]*gmail.Message{"m1": gmailMessage("m1", "")}}
	ai := &fakeAI{}

	got, err := newTestAnalyzer(ai, &memoryMessages{}).Analyze(context.Background(), user, mail, "m1")
	be.Err(t, err, nil)
	be.Equal(t, len(ai.prompts), 0)
	be.Equal(t, got.Priority, model.PriorityNeutral)
	be.Equal(t, got.Summary, "No text content to analyze.")
}

func TestAnalyzePropagatesFetchError(t *testing.T) {
	user := &model.User{ID: uuid.New()}
	mail := &fakeMailbox{err: apperr.ErrNotFound}
	store := &memoryMessages{}

	_, err := newTestAnalyzer(&fakeAI{}, store).Analyze(context.Background(), user, mail, "missing")
	be.Err(t, err, apperr.ErrNotFound)
	be.Equal(t, len(store.rows), 0)
}
