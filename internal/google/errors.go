package google

import (
	"errors"
	"fmt"
	"net/http"

	"golang.org/x/oauth2"
	"google.golang.org/api/googleapi"

	"mailtriage/internal/apperr"
)

// wrapError tags Google failures with the matching apperr sentinel while
// keeping the original error in the chain.
func wrapError(op string, err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, apperr.ErrUnauthenticated) || errors.Is(err, apperr.ErrUpstream) || errors.Is(err, apperr.ErrNotFound) {
		return fmt.Errorf("%s: %w", op, err)
	}

	var rerr *oauth2.RetrieveError
	if errors.As(err, &rerr) {
		return fmt.Errorf("%s: %w: %w", op, apperr.ErrUnauthenticated, err)
	}

	var gerr *googleapi.Error
	if errors.As(err, &gerr) {
		switch gerr.Code {
		case http.StatusUnauthorized:
			return fmt.Errorf("%s: %w: %w", op, apperr.ErrUnauthenticated, err)
		case http.StatusNotFound:
			return fmt.Errorf("%s: %w: %w", op, apperr.ErrNotFound, err)
		}
	}
	return fmt.Errorf("%s: %w: %w", op, apperr.ErrUpstream, err)
}
