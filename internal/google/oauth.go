package google

import (
	"context"
	"fmt"
	"time"

	"golang.org/x/oauth2"
	googleoauth "golang.org/x/oauth2/google"
	calendar "google.golang.org/api/calendar/v3"
	gmail "google.golang.org/api/gmail/v1"
	oauthapi "google.golang.org/api/oauth2/v2"
	"google.golang.org/api/option"

	"mailtriage/internal/model"
	"mailtriage/pkg/config"
)

// Scopes requested at sign-in.
var Scopes = []string{
	oauthapi.UserinfoProfileScope,
	oauthapi.UserinfoEmailScope,
	gmail.GmailReadonlyScope,
	gmail.GmailSendScope,
	calendar.CalendarScope,
}

// OAuth wraps the Google OAuth client configuration.
type OAuth struct {
	config  *oauth2.Config
	timeout time.Duration
}

func NewOAuth(cfg config.GoogleConfig) *OAuth {
	return &OAuth{
		config: &oauth2.Config{
			ClientID:     cfg.ClientID,
			ClientSecret: cfg.ClientSecret,
			RedirectURL:  cfg.RedirectURL,
			Scopes:       Scopes,
			Endpoint:     googleoauth.Endpoint,
		},
		timeout: cfg.Timeout(),
	}
}

// AuthCodeURL asks for offline access with forced consent so Google always
// returns a refresh token.
func (o *OAuth) AuthCodeURL(state string) string {
	return o.config.AuthCodeURL(state, oauth2.AccessTypeOffline, oauth2.ApprovalForce)
}

func (o *OAuth) Exchange(ctx context.Context, code string) (*oauth2.Token, error) {
	ctx, cancel := context.WithTimeout(ctx, o.timeout)
	defer cancel()

	tok, err := o.config.Exchange(ctx, code)
	if err != nil {
		return nil, wrapError("exchange code", err)
	}
	return tok, nil
}

// Profile fetches the signed-in account's id, email and name.
func (o *OAuth) Profile(ctx context.Context, tok *oauth2.Token) (model.GoogleProfile, error) {
	ctx, cancel := context.WithTimeout(ctx, o.timeout)
	defer cancel()

	svc, err := oauthapi.NewService(ctx, option.WithTokenSource(o.config.TokenSource(ctx, tok)))
	if err != nil {
		return model.GoogleProfile{}, fmt.Errorf("create userinfo service: %w", err)
	}

	info, err := svc.Userinfo.Get().Context(ctx).Do()
	if err != nil {
		return model.GoogleProfile{}, wrapError("get userinfo", err)
	}
	return model.GoogleProfile{
		GoogleID:    info.Id,
		Email:       info.Email,
		DisplayName: info.Name,
	}, nil
}

// Clients builds Gmail and Calendar clients for one user's credentials.
// onRotate is called synchronously whenever a refreshed access token is
// about to be used.
func (o *OAuth) Clients(ctx context.Context, creds model.Credentials, onRotate RotateFunc) (Mailbox, Calendar, error) {
	tok := &oauth2.Token{
		AccessToken:  creds.AccessToken,
		RefreshToken: creds.RefreshToken,
		TokenType:    "Bearer",
	}
	if creds.Expiry != nil {
		tok.Expiry = *creds.Expiry
	}

	ts := NewRotatingTokenSource(o.config.TokenSource(ctx, tok), tok.AccessToken, onRotate)
	opt := option.WithTokenSource(ts)

	gsvc, err := gmail.NewService(ctx, opt)
	if err != nil {
		return nil, nil, fmt.Errorf("create gmail service: %w", err)
	}
	csvc, err := calendar.NewService(ctx, opt)
	if err != nil {
		return nil, nil, fmt.Errorf("create calendar service: %w", err)
	}

	return &MailClient{svc: gsvc, timeout: o.timeout}, &CalendarClient{svc: csvc, timeout: o.timeout}, nil
}
