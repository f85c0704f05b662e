package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	mqcontracts "mailtriage/contracts/mq"
	"mailtriage/internal/apperr"
	"mailtriage/internal/model"
	"mailtriage/pkg/outbox"
	"mailtriage/pkg/trace"
)

const messageColumns = `
    id, user_id, gmail_message_id, thread_id, sender, subject, snippet, body, received_at,
    ai_priority, ai_summary, ai_suggestion, is_meeting_request,
    to_char(ai_proposed_date, 'YYYY-MM-DD'), to_char(ai_proposed_time, 'HH24:MI'),
    message_id_header, references_header, enrichment_status, created_at, updated_at`

const insertPlaceholderSQL = `
    INSERT INTO cached_messages (
        user_id, gmail_message_id, thread_id, sender, subject, snippet, body, received_at,
        ai_priority, ai_summary, ai_suggestion, message_id_header, references_header, enrichment_status
    ) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)
    ON CONFLICT (user_id, gmail_message_id) DO NOTHING`

const applyTriageSQL = `
    UPDATE cached_messages
    SET ai_priority        = $3,
        ai_summary         = $4,
        ai_suggestion      = $5,
        is_meeting_request = $6,
        ai_proposed_date   = $7::text::date,
        ai_proposed_time   = $8::text::time,
        enrichment_status  = 'analyzed',
        updated_at         = NOW()
    WHERE user_id = $1 AND gmail_message_id = $2`

// MessageRepository stores cached Gmail messages and their triage fields.
type MessageRepository struct {
	db     *pgxpool.Pool
	outbox *outbox.Repository
}

func NewMessageRepository(db *pgxpool.Pool, outboxRepo *outbox.Repository) *MessageRepository {
	return &MessageRepository{db: db, outbox: outboxRepo}
}

// ExistingIDs returns which of ids are already cached for userID.
func (r *MessageRepository) ExistingIDs(ctx context.Context, userID uuid.UUID, ids []string) (map[string]struct{}, error) {
	rows, err := r.db.Query(ctx, `
        SELECT gmail_message_id FROM cached_messages
        WHERE user_id = $1 AND gmail_message_id = ANY($2)
    `, userID, ids)
	if err != nil {
		return nil, fmt.Errorf("query cached ids: %w", err)
	}
	defer rows.Close()

	found := make(map[string]struct{}, len(ids))
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scan cached id: %w", err)
		}
		found[id] = struct{}{}
	}
	return found, rows.Err()
}

// InsertPlaceholders inserts msgs in one round trip. Rows that already exist
// are left untouched; the number actually inserted is returned.
func (r *MessageRepository) InsertPlaceholders(ctx context.Context, msgs []*model.CachedMessage) (int, error) {
	if len(msgs) == 0 {
		return 0, nil
	}

	batch := &pgx.Batch{}
	for _, m := range msgs {
		batch.Queue(insertPlaceholderSQL,
			m.UserID, m.GmailMessageID, m.ThreadID, m.From, m.Subject, m.Snippet, m.Body, m.ReceivedAt,
			string(m.Priority), m.Summary, m.Suggestion, m.MessageIDHeader, m.ReferencesHeader,
			string(m.EnrichmentStatus),
		)
	}

	br := r.db.SendBatch(ctx, batch)
	defer br.Close()

	inserted := 0
	for range msgs {
		tag, err := br.Exec()
		if err != nil {
			return inserted, fmt.Errorf("insert placeholder: %w", err)
		}
		inserted += int(tag.RowsAffected())
	}
	return inserted, nil
}

// ApplyTriage writes results in one round trip and marks the rows analyzed.
// Results without a cached row are skipped.
func (r *MessageRepository) ApplyTriage(ctx context.Context, userID uuid.UUID, results []model.Triage) (int, error) {
	if len(results) == 0 {
		return 0, nil
	}

	batch := &pgx.Batch{}
	for _, t := range results {
		batch.Queue(applyTriageSQL,
			userID, t.MessageID, string(t.Priority), t.Summary, t.Suggestion,
			t.IsMeetingRequest, t.ProposedDate, t.ProposedTime,
		)
	}

	br := r.db.SendBatch(ctx, batch)
	defer br.Close()

	updated := 0
	for range results {
		tag, err := br.Exec()
		if err != nil {
			return updated, fmt.Errorf("apply triage: %w", err)
		}
		updated += int(tag.RowsAffected())
	}
	return updated, nil
}

// MarkFailed flags ids as failed enrichment. With scheduleRetry a
// triage.retry.requested event is staged in the same transaction.
func (r *MessageRepository) MarkFailed(ctx context.Context, userID uuid.UUID, ids []string, scheduleRetry bool) error {
	if len(ids) == 0 {
		return nil
	}

	tx, err := r.db.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	defer tx.Rollback(ctx)

	_, err = tx.Exec(ctx, `
        UPDATE cached_messages
        SET enrichment_status = 'failed', updated_at = NOW()
        WHERE user_id = $1 AND gmail_message_id = ANY($2) AND enrichment_status <> 'analyzed'
    `, userID, ids)
	if err != nil {
		return fmt.Errorf("mark enrichment failed: %w", err)
	}

	if scheduleRetry {
		payload := mqcontracts.TriageRetryRequested{
			UserID:     userID.String(),
			MessageIDs: ids,
			TraceID:    trace.FromContext(ctx),
		}
		if err := outbox.InsertEventInTx(ctx, tx, r.outbox, "user", userID.String(),
			mqcontracts.RoutingTriageRetryRequested, payload); err != nil {
			return err
		}
	}

	return tx.Commit(ctx)
}

// FindByIDs returns the cached rows among ids, newest first.
func (r *MessageRepository) FindByIDs(ctx context.Context, userID uuid.UUID, ids []string) ([]*model.CachedMessage, error) {
	rows, err := r.db.Query(ctx, `
        SELECT `+messageColumns+`
        FROM cached_messages
        WHERE user_id = $1 AND gmail_message_id = ANY($2)
        ORDER BY received_at DESC
    `, userID, ids)
	if err != nil {
		return nil, fmt.Errorf("query cached messages: %w", err)
	}
	defer rows.Close()

	out := make([]*model.CachedMessage, 0, len(ids))
	for rows.Next() {
		m, err := scanMessage(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, m)
	}
	return out, rows.Err()
}

// Upsert creates or fully overwrites the row for (m.UserID, m.GmailMessageID).
func (r *MessageRepository) Upsert(ctx context.Context, m *model.CachedMessage) (*model.CachedMessage, error) {
	row := r.db.QueryRow(ctx, `
        INSERT INTO cached_messages (
            user_id, gmail_message_id, thread_id, sender, subject, snippet, body, received_at,
            ai_priority, ai_summary, ai_suggestion, is_meeting_request, ai_proposed_date, ai_proposed_time,
            message_id_header, references_header, enrichment_status
        ) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13::text::date, $14::text::time, $15, $16, $17)
        ON CONFLICT (user_id, gmail_message_id) DO UPDATE SET
            thread_id          = EXCLUDED.thread_id,
            sender             = EXCLUDED.sender,
            subject            = EXCLUDED.subject,
            snippet            = EXCLUDED.snippet,
            body               = EXCLUDED.body,
            received_at        = EXCLUDED.received_at,
            ai_priority        = EXCLUDED.ai_priority,
            ai_summary         = EXCLUDED.ai_summary,
            ai_suggestion      = EXCLUDED.ai_suggestion,
            is_meeting_request = EXCLUDED.is_meeting_request,
            ai_proposed_date   = EXCLUDED.ai_proposed_date,
            ai_proposed_time   = EXCLUDED.ai_proposed_time,
            message_id_header  = EXCLUDED.message_id_header,
            references_header  = EXCLUDED.references_header,
            enrichment_status  = EXCLUDED.enrichment_status,
            updated_at         = NOW()
        RETURNING `+messageColumns,
		m.UserID, m.GmailMessageID, m.ThreadID, m.From, m.Subject, m.Snippet, m.Body, m.ReceivedAt,
		string(m.Priority), m.Summary, m.Suggestion, m.IsMeetingRequest, m.ProposedDate, m.ProposedTime,
		m.MessageIDHeader, m.ReferencesHeader, string(m.EnrichmentStatus),
	)

	stored, err := scanMessage(row)
	if err != nil {
		return nil, fmt.Errorf("upsert message %s: %w", m.GmailMessageID, err)
	}
	return stored, nil
}

func scanMessage(row pgx.Row) (*model.CachedMessage, error) {
	var (
		m        model.CachedMessage
		priority string
		status   string
	)
	err := row.Scan(
		&m.ID, &m.UserID, &m.GmailMessageID, &m.ThreadID, &m.From, &m.Subject, &m.Snippet, &m.Body, &m.ReceivedAt,
		&priority, &m.Summary, &m.Suggestion, &m.IsMeetingRequest,
		&m.ProposedDate, &m.ProposedTime,
		&m.MessageIDHeader, &m.ReferencesHeader, &status, &m.CreatedAt, &m.UpdatedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, apperr.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("scan message: %w", err)
	}
	m.Priority = model.Priority(priority)
	m.EnrichmentStatus = model.EnrichmentStatus(status)
	return &m, nil
}
