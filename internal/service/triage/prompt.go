package triage

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"
)

// Item is one message body offered to the model.
type Item struct {
	ID   string `json:"id"`
	Body string `json:"body"`
}

const batchPromptTemplate = `You are an expert AI assistant specializing in email triage and data extraction. Your goal is to analyze emails and return structured JSON data.

You will be given a JSON array of emails. You MUST return a single, valid JSON array.

Each object in your response MUST conform to this exact schema:
- "id": (string) The original email ID.
- "priority": (string) "urgent", "neutral", or "spam".
- "summary": (string) A concise one-sentence summary.
- "suggestion": (string) A short, professional reply suggestion.
- "isMeetingRequest": (boolean) True if the email is trying to schedule a meeting.
- "proposedDate": (string or null) If a specific date is proposed (e.g., "tomorrow", "next Tuesday", "June 25th"), return it in "YYYY-MM-DD" format. If no date is mentioned, return null.
- "proposedTime": (string or null) If a specific time is proposed (e.g., "3pm", "10:00 AM"), return it in "HH:MM" 24-hour format. If no time is mentioned, return null.

CRITICAL RULES:
1. NEVER respond with text outside the final JSON array.
2. Base the proposedDate on a current date of %s. For example, "tomorrow" would be the next calendar day.
3. If an email is ambiguous, classify it as "neutral".

EXAMPLE:
- Input: [{"id": "123", "body": "Hey, can you meet next Tuesday around 4pm to discuss the project?"}]
- Output: [{"id": "123", "priority": "urgent", "summary": "A meeting is proposed for next Tuesday at 4pm to discuss the project.", "suggestion": "That time works for me. I'll send a calendar invite shortly.", "isMeetingRequest": true, "proposedDate": "2025-09-23", "proposedTime": "16:00"}]

Now, analyze the following emails:
%s
`

const singlePromptTemplate = `Critically analyze this email. Respond with a single, valid JSON object, and nothing else.

JSON keys:
- "priority": (string) "urgent", "neutral", or "spam".
- "summary": (string) A one-sentence summary.
- "suggestion": (string) A professional reply suggestion.
- "isMeetingRequest": (boolean) True if the email is trying to schedule a meeting.
- "proposedDate": (string or null) A proposed date in "YYYY-MM-DD" format, relative to a current date of %s, or null.
- "proposedTime": (string or null) A proposed time in "HH:MM" 24-hour format, or null.

Email:
%s
`

// BatchPrompt renders the prompt that triages items in one model call.
func BatchPrompt(items []Item, now time.Time) (string, error) {
	payload, err := json.Marshal(items)
	if err != nil {
		return "", fmt.Errorf("marshal batch items: %w", err)
	}
	return fmt.Sprintf(batchPromptTemplate, now.Format(time.DateOnly), payload), nil
}

// SinglePrompt renders the prompt for one message body.
func SinglePrompt(body string, now time.Time) string {
	quoted, _ := json.Marshal(strings.TrimSpace(body))
	return fmt.Sprintf(singlePromptTemplate, now.Format(time.DateOnly), quoted)
}
