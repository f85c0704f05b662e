package triage

import (
	"context"
	"sync"

	"github.com/google/uuid"
	gmail "google.golang.org/api/gmail/v1"

	"mailtriage/internal/model"
)

type fakeAI struct {
	mu      sync.Mutex
	reply   string
	err     error
	prompts []string
}

func (f *fakeAI) Generate(_ context.Context, prompt string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.prompts = append(f.prompts, prompt)
	return f.reply, f.err
}

type failedCall struct {
	ids           []string
	scheduleRetry bool
}

type fakeStore struct {
	applied []model.Triage
	failed  []failedCall
}

func (s *fakeStore) ApplyTriage(_ context.Context, _ uuid.UUID, results []model.Triage) (int, error) {
	s.applied = append(s.applied, results...)
	return len(results), nil
}

func (s *fakeStore) MarkFailed(_ context.Context, _ uuid.UUID, ids []string, scheduleRetry bool) error {
	s.failed = append(s.failed, failedCall{ids: ids, scheduleRetry: scheduleRetry})
	return nil
}

type fakeLocker struct {
	held map[string]bool
}

func (l *fakeLocker) AcquireOnce(_ context.Context, handler, key string) bool {
	k := handler + ":" + key
	if l.held[k] {
		return false
	}
	l.held[k] = true
	return true
}

func (l *fakeLocker) Release(_ context.Context, handler, key string) {
	delete(l.held, handler+":"+key)
}

type memoryMessages struct {
	rows   map[string]*model.CachedMessage
	nextID int64
}

func (m *memoryMessages) Upsert(_ context.Context, msg *model.CachedMessage) (*model.CachedMessage, error) {
	if m.rows == nil {
		m.rows = map[string]*model.CachedMessage{}
	}
	key := msg.UserID.String() + "/" + msg.GmailMessageID
	stored := *msg
	if prev, ok := m.rows[key]; ok {
		stored.ID = prev.ID
	} else {
		m.nextID++
		stored.ID = m.nextID
	}
	m.rows[key] = &stored
	return &stored, nil
}

type fakeMailbox struct {
	msgs map[string]*gmail.Message
	err  error
}

func (f *fakeMailbox) GetMessage(_ context.Context, id string) (*gmail.Message, error) {
	if f.err != nil {
		return nil, f.err
	}
	return f.msgs[id], nil
}
