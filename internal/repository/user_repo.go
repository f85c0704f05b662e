package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"mailtriage/internal/apperr"
	"mailtriage/internal/model"
	"mailtriage/internal/sealer"
)

const userColumns = `id, google_id, email, display_name, access_token, refresh_token, token_expiry, created_at, updated_at`

type UserRepository struct {
	db     *pgxpool.Pool
	sealer *sealer.Sealer
}

func NewUserRepository(db *pgxpool.Pool, s *sealer.Sealer) *UserRepository {
	return &UserRepository{db: db, sealer: s}
}

// FindByID returns apperr.ErrNotFound when no user has id.
func (r *UserRepository) FindByID(ctx context.Context, id uuid.UUID) (*model.User, error) {
	query := `SELECT ` + userColumns + ` FROM users WHERE id = $1`
	u, err := r.scanUser(r.db.QueryRow(ctx, query, id))
	if err != nil {
		return nil, fmt.Errorf("find user %s: %w", id, err)
	}
	return u, nil
}

// UpsertFromGoogle creates the user on first sign-in or refreshes display
// name and tokens on later ones. A missing refresh token keeps the stored one.
func (r *UserRepository) UpsertFromGoogle(ctx context.Context, p model.GoogleProfile, creds model.Credentials) (*model.User, error) {
	access, refresh, err := r.sealCredentials(creds)
	if err != nil {
		return nil, err
	}

	query := `
        INSERT INTO users (id, google_id, email, display_name, access_token, refresh_token, token_expiry)
        VALUES ($1, $2, $3, $4, $5, $6, $7)
        ON CONFLICT (google_id) DO UPDATE SET
            display_name  = EXCLUDED.display_name,
            access_token  = EXCLUDED.access_token,
            refresh_token = COALESCE(EXCLUDED.refresh_token, users.refresh_token),
            token_expiry  = EXCLUDED.token_expiry,
            updated_at    = NOW()
        RETURNING ` + userColumns

	u, err := r.scanUser(r.db.QueryRow(ctx, query,
		uuid.New(), p.GoogleID, p.Email, p.DisplayName, access, refresh, creds.Expiry,
	))
	if err != nil {
		return nil, fmt.Errorf("upsert user %s: %w", p.GoogleID, err)
	}
	return u, nil
}

// UpdateCredentials stores rotated tokens for id.
func (r *UserRepository) UpdateCredentials(ctx context.Context, id uuid.UUID, creds model.Credentials) error {
	access, refresh, err := r.sealCredentials(creds)
	if err != nil {
		return err
	}

	tag, err := r.db.Exec(ctx, `
        UPDATE users
        SET access_token  = $2,
            refresh_token = COALESCE($3, refresh_token),
            token_expiry  = $4,
            updated_at    = NOW()
        WHERE id = $1
    `, id, access, refresh, creds.Expiry)
	if err != nil {
		return fmt.Errorf("update credentials for %s: %w", id, err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("update credentials for %s: %w", id, apperr.ErrNotFound)
	}
	return nil
}

func (r *UserRepository) sealCredentials(creds model.Credentials) (string, *string, error) {
	access, err := r.sealer.Seal(creds.AccessToken)
	if err != nil {
		return "", nil, fmt.Errorf("seal access token: %w", err)
	}
	if creds.RefreshToken == "" {
		return access, nil, nil
	}
	refresh, err := r.sealer.Seal(creds.RefreshToken)
	if err != nil {
		return "", nil, fmt.Errorf("seal refresh token: %w", err)
	}
	return access, &refresh, nil
}

func (r *UserRepository) scanUser(row pgx.Row) (*model.User, error) {
	var (
		u       model.User
		refresh *string
		expiry  *time.Time
	)
	err := row.Scan(
		&u.ID, &u.GoogleID, &u.Email, &u.DisplayName,
		&u.AccessToken, &refresh, &expiry, &u.CreatedAt, &u.UpdatedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, apperr.ErrNotFound
	}
	if err != nil {
		return nil, err
	}

	if u.AccessToken, err = r.sealer.Open(u.AccessToken); err != nil {
		return nil, fmt.Errorf("open access token: %w", err)
	}
	if refresh != nil {
		if u.RefreshToken, err = r.sealer.Open(*refresh); err != nil {
			return nil, fmt.Errorf("open refresh token: %w", err)
		}
	}
	u.TokenExpiry = expiry
	return &u, nil
}
