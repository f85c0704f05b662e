package account

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/oauth2"

	"mailtriage/internal/apperr"
	"mailtriage/internal/model"
	"mailtriage/pkg/logger"
)

// OAuthProvider is the Google sign-in flow.
type OAuthProvider interface {
	AuthCodeURL(state string) string
	Exchange(ctx context.Context, code string) (*oauth2.Token, error)
	Profile(ctx context.Context, tok *oauth2.Token) (model.GoogleProfile, error)
}

type UserUpserter interface {
	UpsertFromGoogle(ctx context.Context, p model.GoogleProfile, creds model.Credentials) (*model.User, error)
}

// TokenIssuer signs session tokens and OAuth state values.
type TokenIssuer interface {
	Issue(userID uuid.UUID) (string, error)
	IssueState() (string, error)
	VerifyState(state string) error
}

// Login is the outcome of a completed sign-in.
type Login struct {
	Token string
	User  *model.User
}

type Service struct {
	oauth  OAuthProvider
	users  UserUpserter
	tokens TokenIssuer
	logger *zap.Logger
}

func NewService(oauth OAuthProvider, users UserUpserter, tokens TokenIssuer, logger *zap.Logger) *Service {
	return &Service{oauth: oauth, users: users, tokens: tokens, logger: logger}
}

// AuthURL returns the Google consent URL carrying a fresh signed state.
func (s *Service) AuthURL() (string, error) {
	state, err := s.tokens.IssueState()
	if err != nil {
		return "", fmt.Errorf("issue oauth state: %w", err)
	}
	return s.oauth.AuthCodeURL(state), nil
}

// Complete finishes the OAuth callback: it checks state, exchanges code,
// stores the account and issues a session token.
func (s *Service) Complete(ctx context.Context, state, code string) (*Login, error) {
	if err := s.tokens.VerifyState(state); err != nil {
		return nil, err
	}
	if strings.TrimSpace(code) == "" {
		return nil, fmt.Errorf("%w: missing authorization code", apperr.ErrUnauthenticated)
	}

	tok, err := s.oauth.Exchange(ctx, code)
	if err != nil {
		return nil, err
	}
	profile, err := s.oauth.Profile(ctx, tok)
	if err != nil {
		return nil, err
	}
	if profile.Email == "" {
		return nil, fmt.Errorf("%w: google profile has no email", apperr.ErrUnauthenticated)
	}

	creds := model.Credentials{AccessToken: tok.AccessToken, RefreshToken: tok.RefreshToken}
	if !tok.Expiry.IsZero() {
		expiry := tok.Expiry
		creds.Expiry = &expiry
	}

	user, err := s.users.UpsertFromGoogle(ctx, profile, creds)
	if err != nil {
		return nil, err
	}

	token, err := s.tokens.Issue(user.ID)
	if err != nil {
		return nil, err
	}

	logger.WithTrace(ctx, s.logger).Info("User signed in",
		zap.String("user_id", user.ID.String()),
		zap.Bool("refresh_token_issued", tok.RefreshToken != ""),
	)
	return &Login{Token: token, User: user}, nil
}
