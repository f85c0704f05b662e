package triage

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"mailtriage/internal/apperr"
	"mailtriage/internal/model"
)

type analysis struct {
	ID               string  `json:"id"`
	Priority         string  `json:"priority"`
	Summary          string  `json:"summary"`
	Suggestion       string  `json:"suggestion"`
	IsMeetingRequest bool    `json:"isMeetingRequest"`
	ProposedDate     *string `json:"proposedDate"`
	ProposedTime     *string `json:"proposedTime"`
}

// stripFences removes markdown code fences models like to wrap JSON in.
func stripFences(s string) string {
	s = strings.ReplaceAll(s, "```json", "")
	s = strings.ReplaceAll(s, "```", "")
	return strings.TrimSpace(s)
}

// parseBatch decodes a JSON array of analyses. Objects without an id are
// dropped; anything that is not an array fails with ErrTriageParse.
func parseBatch(text string) ([]model.Triage, error) {
	var raw []analysis
	if err := json.Unmarshal([]byte(stripFences(text)), &raw); err != nil {
		return nil, fmt.Errorf("%w: %v", apperr.ErrTriageParse, err)
	}

	out := make([]model.Triage, 0, len(raw))
	for _, a := range raw {
		if strings.TrimSpace(a.ID) == "" {
			continue
		}
		out = append(out, a.normalize())
	}
	return out, nil
}

// parseSingle decodes one JSON object. The returned Triage has no MessageID.
func parseSingle(text string) (model.Triage, error) {
	var a analysis
	if err := json.Unmarshal([]byte(stripFences(text)), &a); err != nil {
		return model.Triage{}, fmt.Errorf("%w: %v", apperr.ErrTriageParse, err)
	}
	return a.normalize(), nil
}

func (a analysis) normalize() model.Triage {
	p, ok := model.ParsePriority(a.Priority)
	if !ok {
		p = model.PriorityNeutral
	}
	return model.Triage{
		MessageID:        strings.TrimSpace(a.ID),
		Priority:         p,
		Summary:          strings.TrimSpace(a.Summary),
		Suggestion:       strings.TrimSpace(a.Suggestion),
		IsMeetingRequest: a.IsMeetingRequest,
		ProposedDate:     validLayout(a.ProposedDate, time.DateOnly),
		ProposedTime:     validLayout(a.ProposedTime, "15:04"),
	}
}

// validLayout keeps v only if it parses with layout.
func validLayout(v *string, layout string) *string {
	if v == nil {
		return nil
	}
	s := strings.TrimSpace(*v)
	if _, err := time.Parse(layout, s); err != nil {
		return nil
	}
	return &s
}
