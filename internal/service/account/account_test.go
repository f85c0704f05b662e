package account

import (
	"context"
	"net/url"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/nalgeon/be"
	"go.uber.org/zap"
	"golang.org/x/oauth2"

	"mailtriage/internal/apperr"
	"mailtriage/internal/auth"
	"mailtriage/internal/model"
)

type fakeOAuth struct {
	profile   model.GoogleProfile
	exchanged []string
}

func (f *fakeOAuth) AuthCodeURL(state string) string {
	return "https://accounts.example.com/auth?state=" + url.QueryEscape(state)
}

func (f *fakeOAuth) Exchange(_ context.Context, code string) (*oauth2.Token, error) {
	f.exchanged = append(f.exchanged, code)
	return &oauth2.Token{AccessToken: "access-" + code, RefreshToken: "refresh", Expiry: time.Now().Add(time.Hour)}, nil
}

func (f *fakeOAuth) Profile(context.Context, *oauth2.Token) (model.GoogleProfile, error) {
	return f.profile, nil
}

type recordingUsers struct {
	creds model.Credentials
	user  *model.User
}

func (r *recordingUsers) UpsertFromGoogle(_ context.Context, p model.GoogleProfile, creds model.Credentials) (*model.User, error) {
	r.creds = creds
	r.user = &model.User{ID: uuid.New(), GoogleID: p.GoogleID, Email: p.Email, DisplayName: p.DisplayName}
	return r.user, nil
}

func newTestService(profile model.GoogleProfile) (*Service, *fakeOAuth, *recordingUsers, *auth.Manager) {
	oauth := &fakeOAuth{profile: profile}
	users := &recordingUsers{}
	tokens := auth.NewManager("test-secret", 30*24*time.Hour)
	return NewService(oauth, users, tokens, zap.NewNop()), oauth, users, tokens
}

func TestCompleteIssuesSessionForUser(t *testing.T) {
	svc, oauth, users, tokens := newTestService(model.GoogleProfile{GoogleID: "g-1", Email: "me@example.com", DisplayName: "Me"})

	authURL, err := svc.AuthURL()
	be.Err(t, err, nil)
	u, err := url.Parse(authURL)
	be.Err(t, err, nil)
	state := u.Query().Get("state")

	login, err := svc.Complete(context.Background(), state, "code-1")
	be.Err(t, err, nil)
	be.Equal(t, oauth.exchanged, []string{"code-1"})
	be.Equal(t, users.creds.AccessToken, "access-code-1")
	be.Equal(t, users.creds.RefreshToken, "refresh")
	be.True(t, users.creds.Expiry != nil)

	id, err := tokens.Verify(login.Token)
	be.Err(t, err, nil)
	be.Equal(t, id, login.User.ID)
}

func TestCompleteRejectsForgedState(t *testing.T) {
	svc, oauth, _, _ := newTestService(model.GoogleProfile{GoogleID: "g-1", Email: "me@example.com"})

	_, err := svc.Complete(context.Background(), "forged", "code-1")
	be.Err(t, err, apperr.ErrUnauthenticated)
	be.Equal(t, len(oauth.exchanged), 0)
}

func TestCompleteRequiresEmail(t *testing.T) {
	svc, _, users, tokens := newTestService(model.GoogleProfile{GoogleID: "g-1"})
	state, err := tokens.IssueState()
	be.Err(t, err, nil)

	_, err = svc.Complete(context.Background(), state, "code-1")
	be.Err(t, err, apperr.ErrUnauthenticated)
	be.True(t, users.user == nil)
}
