package apperr

import (
	"context"
	"errors"
	"net"
	"net/http"

	"github.com/jackc/pgx/v5"
	"google.golang.org/api/googleapi"
)

// IsRetryable reports whether err is worth another attempt, and a short
// label for logs and metrics.
func IsRetryable(err error) (bool, string) {
	if err == nil {
		return false, ""
	}

	switch {
	case errors.Is(err, context.Canceled):
		return false, "context_canceled"
	case errors.Is(err, context.DeadlineExceeded):
		return true, "timeout"
	case errors.Is(err, ErrValidation):
		return false, "validation"
	case errors.Is(err, ErrUnauthenticated), errors.Is(err, ErrUserNotFound):
		return false, "unauthenticated"
	case errors.Is(err, ErrNotFound), errors.Is(err, pgx.ErrNoRows):
		return false, "not_found"
	case errors.Is(err, ErrTriageParse):
		// model output varies between calls
		return true, "triage_parse"
	}

	var gerr *googleapi.Error
	if errors.As(err, &gerr) {
		if gerr.Code == http.StatusTooManyRequests || gerr.Code >= 500 {
			return true, "upstream_unavailable"
		}
		return false, "upstream_rejected"
	}

	var netErr net.Error
	if errors.As(err, &netErr) {
		if netErr.Timeout() {
			return true, "network_timeout"
		}
		return true, "network_error"
	}

	if errors.Is(err, ErrUpstream) {
		return true, "upstream_error"
	}

	return false, "unknown_error"
}
