package credential

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/nalgeon/be"
	"go.uber.org/zap"
	"golang.org/x/oauth2"

	"mailtriage/internal/apperr"
	"mailtriage/internal/google"
	"mailtriage/internal/model"
)

type memoryUsers struct {
	users   map[uuid.UUID]*model.User
	updates []model.Credentials
}

func (m *memoryUsers) FindByID(_ context.Context, id uuid.UUID) (*model.User, error) {
	u, ok := m.users[id]
	if !ok {
		return nil, apperr.ErrNotFound
	}
	cp := *u
	return &cp, nil
}

func (m *memoryUsers) UpdateCredentials(ctx context.Context, _ uuid.UUID, creds model.Credentials) error {
	if ctx.Err() != nil {
		return ctx.Err()
	}
	m.updates = append(m.updates, creds)
	return nil
}

type staticVerifier struct {
	tokens map[string]uuid.UUID
}

func (v staticVerifier) Verify(token string) (uuid.UUID, error) {
	id, ok := v.tokens[token]
	if !ok {
		return uuid.Nil, apperr.ErrUnauthenticated
	}
	return id, nil
}

type capturingFactory struct {
	creds    model.Credentials
	onRotate google.RotateFunc
	calls    int
}

func (f *capturingFactory) Clients(_ context.Context, creds model.Credentials, onRotate google.RotateFunc) (google.Mailbox, google.Calendar, error) {
	f.calls++
	f.creds = creds
	f.onRotate = onRotate
	return nil, nil, nil
}

func setup() (*Provider, *memoryUsers, *capturingFactory, uuid.UUID) {
	id := uuid.New()
	users := &memoryUsers{users: map[uuid.UUID]*model.User{
		id: {ID: id, Email: "me@example.com", AccessToken: "old-access", RefreshToken: "refresh-1"},
	}}
	factory := &capturingFactory{}
	verifier := staticVerifier{tokens: map[string]uuid.UUID{"good": id, "ghost": uuid.New()}}
	return NewProvider(users, verifier, factory, zap.NewNop()), users, factory, id
}

func TestResolveBuildsClientsFromStoredCredentials(t *testing.T) {
	p, _, factory, id := setup()

	s, err := p.Resolve(context.Background(), "Bearer good")
	be.Err(t, err, nil)
	be.Equal(t, s.User.ID, id)
	be.Equal(t, factory.creds.AccessToken, "old-access")
	be.Equal(t, factory.creds.RefreshToken, "refresh-1")
}

func TestResolveRejectsMissingOrBadToken(t *testing.T) {
	p, _, factory, _ := setup()

	for _, header := range []string{"", "Bearer", "Basic abc", "Bearer nope"} {
		_, err := p.Resolve(context.Background(), header)
		be.Err(t, err, apperr.ErrUnauthenticated)
	}
	be.Equal(t, factory.calls, 0)
}

func TestResolveUnknownUser(t *testing.T) {
	p, _, factory, _ := setup()

	_, err := p.Resolve(context.Background(), "Bearer ghost")
	be.Err(t, err, apperr.ErrUserNotFound)
	be.Equal(t, factory.calls, 0)
}

func TestRotationPersistsEvenAfterRequestEnds(t *testing.T) {
	p, users, factory, _ := setup()

	ctx, cancel := context.WithCancel(context.Background())
	s, err := p.Resolve(ctx, "Bearer good")
	be.Err(t, err, nil)
	cancel()

	expiry := time.Now().Add(time.Hour)
	factory.onRotate(&oauth2.Token{AccessToken: "new-access", RefreshToken: "refresh-1", Expiry: expiry})

	be.Equal(t, len(users.updates), 1)
	be.Equal(t, users.updates[0].AccessToken, "new-access")
	be.Equal(t, users.updates[0].RefreshToken, "")
	be.True(t, users.updates[0].Expiry.Equal(expiry))
	be.Equal(t, s.User.AccessToken, "new-access")

	factory.onRotate(&oauth2.Token{AccessToken: "newer-access", RefreshToken: "refresh-2"})
	be.Equal(t, users.updates[1].RefreshToken, "refresh-2")
	be.Equal(t, s.User.RefreshToken, "refresh-2")
}
