package triage

import (
	"testing"

	"github.com/nalgeon/be"

	"mailtriage/internal/apperr"
	"mailtriage/internal/model"
)

func TestParseBatchStripsFencesAndNormalizes(t *testing.T) {
	text := "```json\n" + `[
		{"id":"a","priority":"URGENT","summary":" Meet Tuesday. ","suggestion":"Sure.","isMeetingRequest":true,"proposedDate":"2025-09-23","proposedTime":"16:00"},
		{"id":"b","priority":"important","summary":"x","proposedDate":"next Tuesday","proposedTime":"4pm"},
		{"id":"","priority":"spam"}
	]` + "\n```"

	got, err := parseBatch(text)
	be.Err(t, err, nil)
	be.Equal(t, len(got), 2)

	be.Equal(t, got[0].MessageID, "a")
	be.Equal(t, got[0].Priority, model.PriorityUrgent)
	be.Equal(t, got[0].Summary, "Meet Tuesday.")
	be.True(t, got[0].IsMeetingRequest)
	be.Equal(t, *got[0].ProposedDate, "2025-09-23")
	be.Equal(t, *got[0].ProposedTime, "16:00")

	be.Equal(t, got[1].Priority, model.PriorityNeutral)
	be.True(t, got[1].ProposedDate == nil)
	be.True(t, got[1].ProposedTime == nil)
}

func TestParseBatchRejectsNonArray(t *testing.T) {
	_, err := parseBatch(`{"id":"a"}`)
	be.Err(t, err, apperr.ErrTriageParse)

	_, err = parseBatch("I could not analyze these emails.")
	be.Err(t, err, apperr.ErrTriageParse)
}

func TestParseSingle(t *testing.T) {
	got, err := parseSingle("```" + `{"priority":"spam","summary":"Win a prize","suggestion":"","isMeetingRequest":false}` + "```")
	be.Err(t, err, nil)
	be.Equal(t, got.Priority, model.PrioritySpam)
	be.Equal(t, got.Summary, "Win a prize")

	_, err = parseSingle("[]")
	be.Err(t, err, apperr.ErrTriageParse)
}
