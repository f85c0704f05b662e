package model

import (
	"strings"
	"time"

	"github.com/google/uuid"
)

type Priority string

const (
	PriorityUnset   Priority = ""
	PriorityUrgent  Priority = "urgent"
	PriorityNeutral Priority = "neutral"
	PrioritySpam    Priority = "spam"
	PriorityError   Priority = "error"
)

// ParsePriority accepts the three values a model may assign.
func ParsePriority(s string) (Priority, bool) {
	switch p := Priority(strings.ToLower(strings.TrimSpace(s))); p {
	case PriorityUrgent, PriorityNeutral, PrioritySpam:
		return p, true
	default:
		return PriorityUnset, false
	}
}

// EnrichmentStatus tracks whether AI triage has landed on a cached message.
type EnrichmentStatus string

const (
	EnrichmentPending  EnrichmentStatus = "pending"
	EnrichmentAnalyzed EnrichmentStatus = "analyzed"
	EnrichmentFailed   EnrichmentStatus = "failed"
)

const PendingSummary = "Pending analysis..."

// CachedMessage is one Gmail message plus its triage fields. At most one
// exists per (UserID, GmailMessageID).
type CachedMessage struct {
	ID               int64            `json:"id"`
	UserID           uuid.UUID        `json:"userId"`
	GmailMessageID   string           `json:"gmailMessageId"`
	ThreadID         string           `json:"threadId"`
	From             string           `json:"from"`
	Subject          string           `json:"subject"`
	Snippet          string           `json:"snippet"`
	Body             string           `json:"body"`
	ReceivedAt       time.Time        `json:"receivedAt"`
	Priority         Priority         `json:"aiPriority"`
	Summary          string           `json:"aiSummary"`
	Suggestion       string           `json:"aiSuggestion"`
	IsMeetingRequest bool             `json:"isMeetingRequest"`
	ProposedDate     *string          `json:"aiProposedDate"` // YYYY-MM-DD
	ProposedTime     *string          `json:"aiProposedTime"` // HH:MM, 24h
	MessageIDHeader  string           `json:"messageIdHeader"`
	ReferencesHeader *string          `json:"referencesHeader,omitempty"`
	EnrichmentStatus EnrichmentStatus `json:"enrichmentStatus"`
	CreatedAt        time.Time        `json:"createdAt"`
	UpdatedAt        time.Time        `json:"updatedAt"`
}

// MarkPending resets the triage fields to the placeholder written before
// enrichment runs.
func (m *CachedMessage) MarkPending() {
	m.Priority = PriorityNeutral
	m.Summary = PendingSummary
	m.Suggestion = ""
	m.IsMeetingRequest = false
	m.ProposedDate = nil
	m.ProposedTime = nil
	m.EnrichmentStatus = EnrichmentPending
}

// Apply copies a triage result onto the message.
func (m *CachedMessage) Apply(t Triage, status EnrichmentStatus) {
	m.Priority = t.Priority
	m.Summary = t.Summary
	m.Suggestion = t.Suggestion
	m.IsMeetingRequest = t.IsMeetingRequest
	m.ProposedDate = t.ProposedDate
	m.ProposedTime = t.ProposedTime
	m.EnrichmentStatus = status
}

// Triage is the AI verdict for one message.
type Triage struct {
	MessageID        string
	Priority         Priority
	Summary          string
	Suggestion       string
	IsMeetingRequest bool
	ProposedDate     *string
	ProposedTime     *string
}
