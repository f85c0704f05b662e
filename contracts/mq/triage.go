package mq

// RoutingTriageRetryRequested is published when a batch triage failed and
// the affected messages should be analyzed again by the worker.
const RoutingTriageRetryRequested = "triage.retry.requested"

// TriageRetryQueue is the durable queue the worker consumes retries from.
const TriageRetryQueue = "triage.retry"

type TriageRetryRequested struct {
	UserID     string   `json:"user_id"`
	MessageIDs []string `json:"message_ids"`
	TraceID    string   `json:"trace_id,omitempty"`
}
