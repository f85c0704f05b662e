package repository

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/nalgeon/be"

	"mailtriage/internal/apperr"
	"mailtriage/internal/model"
	"mailtriage/internal/sealer"
	"mailtriage/pkg/db"
	"mailtriage/pkg/outbox"
)

// testPool connects to MAILTRIAGE_TEST_DATABASE_URL and migrates it.
func testPool(t *testing.T) *pgxpool.Pool {
	t.Helper()
	dsn := os.Getenv("MAILTRIAGE_TEST_DATABASE_URL")
	if dsn == "" {
		t.Skip("MAILTRIAGE_TEST_DATABASE_URL not set")
	}

	ctx := context.Background()
	pool, err := pgxpool.New(ctx, dsn)
	be.Err(t, err, nil)
	t.Cleanup(pool.Close)
	be.Err(t, db.Migrate(ctx, pool), nil)
	return pool
}

func newUser(t *testing.T, users *UserRepository) *model.User {
	t.Helper()
	u, err := users.UpsertFromGoogle(context.Background(),
		model.GoogleProfile{GoogleID: "g-" + uuid.NewString(), Email: "me@example.com", DisplayName: "Me"},
		model.Credentials{AccessToken: "access-1", RefreshToken: "refresh-1"},
	)
	be.Err(t, err, nil)
	return u
}

func TestUserUpsertKeepsRefreshToken(t *testing.T) {
	pool := testPool(t)
	ctx := context.Background()
	users := NewUserRepository(pool, sealer.New("test-key"))

	u := newUser(t, users)
	be.Equal(t, u.AccessToken, "access-1")

	again, err := users.UpsertFromGoogle(ctx,
		model.GoogleProfile{GoogleID: u.GoogleID, Email: u.Email, DisplayName: "Renamed"},
		model.Credentials{AccessToken: "access-2"},
	)
	be.Err(t, err, nil)
	be.Equal(t, again.ID, u.ID)
	be.Equal(t, again.DisplayName, "Renamed")
	be.Equal(t, again.AccessToken, "access-2")
	be.Equal(t, again.RefreshToken, "refresh-1")

	var stored string
	be.Err(t, pool.QueryRow(ctx, `SELECT access_token FROM users WHERE id = $1`, u.ID).Scan(&stored), nil)
	be.True(t, stored != "access-2")

	_, err = users.FindByID(ctx, uuid.New())
	be.Err(t, err, apperr.ErrNotFound)
}

func TestMessageLifecycle(t *testing.T) {
	pool := testPool(t)
	ctx := context.Background()
	users := NewUserRepository(pool, sealer.New(""))
	messages := NewMessageRepository(pool, outbox.NewRepository(pool))
	u := newUser(t, users)

	now := time.Now().UTC().Truncate(time.Millisecond)
	placeholder := func(id string, received time.Time) *model.CachedMessage {
		m := &model.CachedMessage{UserID: u.ID, GmailMessageID: id, ThreadID: "t", From: "?", Subject: "?",
			ReceivedAt: received, MessageIDHeader: "<" + id + "@mail.gmail.com>"}
		m.MarkPending()
		return m
	}

	n, err := messages.InsertPlaceholders(ctx, []*model.CachedMessage{placeholder("a", now.Add(-time.Hour)), placeholder("b", now)})
	be.Err(t, err, nil)
	be.Equal(t, n, 2)

	n, err = messages.InsertPlaceholders(ctx, []*model.CachedMessage{placeholder("b", now)})
	be.Err(t, err, nil)
	be.Equal(t, n, 0)

	existing, err := messages.ExistingIDs(ctx, u.ID, []string{"a", "b", "c"})
	be.Err(t, err, nil)
	be.Equal(t, len(existing), 2)

	date, clock := "2025-09-23", "16:00"
	updated, err := messages.ApplyTriage(ctx, u.ID, []model.Triage{
		{MessageID: "a", Priority: model.PriorityUrgent, Summary: "meet", IsMeetingRequest: true, ProposedDate: &date, ProposedTime: &clock},
		{MessageID: "ghost", Priority: model.PrioritySpam},
	})
	be.Err(t, err, nil)
	be.Equal(t, updated, 1)

	be.Err(t, messages.MarkFailed(ctx, u.ID, []string{"a", "b"}, true), nil)

	rows, err := messages.FindByIDs(ctx, u.ID, []string{"a", "b"})
	be.Err(t, err, nil)
	be.Equal(t, len(rows), 2)
	be.Equal(t, rows[0].GmailMessageID, "b")
	be.Equal(t, rows[0].EnrichmentStatus, model.EnrichmentFailed)
	be.Equal(t, rows[0].Summary, model.PendingSummary)
	be.Equal(t, rows[1].EnrichmentStatus, model.EnrichmentAnalyzed)
	be.Equal(t, *rows[1].ProposedDate, "2025-09-23")
	be.Equal(t, *rows[1].ProposedTime, "16:00")

	var events int
	be.Err(t, pool.QueryRow(ctx,
		`SELECT COUNT(*) FROM outbox_events WHERE aggregate_id = $1 AND routing_key = 'triage.retry.requested'`,
		u.ID.String()).Scan(&events), nil)
	be.Equal(t, events, 1)

	m := placeholder("b", now)
	m.Apply(model.Triage{Priority: model.PriorityError, Summary: "AI service failed to analyze this email."}, model.EnrichmentFailed)
	first, err := messages.Upsert(ctx, m)
	be.Err(t, err, nil)
	m.Apply(model.Triage{Priority: model.PriorityNeutral, Summary: "ok"}, model.EnrichmentAnalyzed)
	second, err := messages.Upsert(ctx, m)
	be.Err(t, err, nil)
	be.Equal(t, second.ID, first.ID)
	be.Equal(t, second.Summary, "ok")
}
