package mailparse

import (
	"strings"
	"time"

	"github.com/google/uuid"
	gmail "google.golang.org/api/gmail/v1"

	"mailtriage/internal/model"
)

const unknownHeader = "?"

// Header returns the first header named name, case-insensitively.
func Header(headers []*gmail.MessagePartHeader, name string) (string, bool) {
	for _, h := range headers {
		if h != nil && strings.EqualFold(h.Name, name) {
			return h.Value, true
		}
	}
	return "", false
}

// ToCachedMessage maps a full Gmail message onto a cache row without
// triage fields.
func ToCachedMessage(userID uuid.UUID, msg *gmail.Message) *model.CachedMessage {
	var headers []*gmail.MessagePartHeader
	if msg.Payload != nil {
		headers = msg.Payload.Headers
	}

	m := &model.CachedMessage{
		UserID:          userID,
		GmailMessageID:  msg.Id,
		ThreadID:        msg.ThreadId,
		From:            headerOr(headers, "From", unknownHeader),
		Subject:         headerOr(headers, "Subject", unknownHeader),
		Snippet:         msg.Snippet,
		Body:            ExtractBody(msg.Payload),
		ReceivedAt:      time.UnixMilli(msg.InternalDate).UTC(),
		MessageIDHeader: headerOr(headers, "Message-ID", "<"+msg.Id+"@mail.gmail.com>"),
	}
	if refs, ok := Header(headers, "References"); ok && refs != "" {
		m.ReferencesHeader = &refs
	}
	return m
}

func headerOr(headers []*gmail.MessagePartHeader, name, fallback string) string {
	if v, ok := Header(headers, name); ok && v != "" {
		return v
	}
	return fallback
}
