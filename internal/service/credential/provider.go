package credential

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/oauth2"

	"mailtriage/internal/apperr"
	"mailtriage/internal/auth"
	"mailtriage/internal/google"
	"mailtriage/internal/model"
	"mailtriage/pkg/logger"
)

const persistTimeout = 5 * time.Second

type UserStore interface {
	FindByID(ctx context.Context, id uuid.UUID) (*model.User, error)
	UpdateCredentials(ctx context.Context, id uuid.UUID, creds model.Credentials) error
}

type TokenVerifier interface {
	Verify(token string) (uuid.UUID, error)
}

// ClientFactory builds Google clients bound to one user's credentials.
type ClientFactory interface {
	Clients(ctx context.Context, creds model.Credentials, onRotate google.RotateFunc) (google.Mailbox, google.Calendar, error)
}

// Session is everything an authenticated request needs.
type Session struct {
	User     *model.User
	Mail     google.Mailbox
	Calendar google.Calendar
}

// Provider turns a bearer header into a Session.
type Provider struct {
	users    UserStore
	verifier TokenVerifier
	clients  ClientFactory
	logger   *zap.Logger
}

func NewProvider(users UserStore, verifier TokenVerifier, clients ClientFactory, logger *zap.Logger) *Provider {
	return &Provider{users: users, verifier: verifier, clients: clients, logger: logger}
}

// Resolve authenticates authHeader and builds the user's clients. Refreshed
// Google tokens are written back to the user before the client uses them.
func (p *Provider) Resolve(ctx context.Context, authHeader string) (*Session, error) {
	token, err := auth.BearerToken(authHeader)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", apperr.ErrUnauthenticated, err)
	}

	id, err := p.verifier.Verify(token)
	if err != nil {
		return nil, err
	}

	user, err := p.users.FindByID(ctx, id)
	if errors.Is(err, apperr.ErrNotFound) {
		return nil, fmt.Errorf("%w: %s", apperr.ErrUserNotFound, id)
	}
	if err != nil {
		return nil, err
	}

	creds := model.Credentials{
		AccessToken:  user.AccessToken,
		RefreshToken: user.RefreshToken,
		Expiry:       user.TokenExpiry,
	}
	mail, cal, err := p.clients.Clients(ctx, creds, p.rotation(ctx, user))
	if err != nil {
		return nil, err
	}
	return &Session{User: user, Mail: mail, Calendar: cal}, nil
}

// rotation persists refreshed tokens for user. The write outlives the
// request context so a cancelled request cannot lose a rotation.
func (p *Provider) rotation(ctx context.Context, user *model.User) google.RotateFunc {
	log := logger.WithTrace(ctx, p.logger).With(zap.String("user_id", user.ID.String()))

	return func(tok *oauth2.Token) {
		creds := model.Credentials{AccessToken: tok.AccessToken}
		if tok.RefreshToken != "" && tok.RefreshToken != user.RefreshToken {
			creds.RefreshToken = tok.RefreshToken
		}
		if !tok.Expiry.IsZero() {
			expiry := tok.Expiry
			creds.Expiry = &expiry
		}

		wctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), persistTimeout)
		defer cancel()

		if err := p.users.UpdateCredentials(wctx, user.ID, creds); err != nil {
			log.Error("Failed to persist rotated Google credentials", zap.Error(err))
			return
		}

		user.AccessToken = creds.AccessToken
		if creds.RefreshToken != "" {
			user.RefreshToken = creds.RefreshToken
		}
		user.TokenExpiry = creds.Expiry
		log.Info("Persisted rotated Google credentials", zap.Bool("refresh_rotated", creds.RefreshToken != ""))
	}
}
