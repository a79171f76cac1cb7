package timecamp

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/timecamp-tools/timecamp-sync/internal/httpclient"
)

// Sentinel errors surfaced by the API adapter. Callers should use errors.Is
// for comparison; every error wraps the underlying HTTP detail.
var (
	ErrNotFound         = errors.New("timecamp: not found")
	ErrConflict         = errors.New("timecamp: conflict")
	ErrRateLimited      = errors.New("timecamp: rate limited")
	ErrPermissionDenied = errors.New("timecamp: permission denied")
	ErrTransport        = errors.New("timecamp: transport failure")
	ErrValidation       = errors.New("timecamp: validation failure")
)

// classify maps an httpclient error onto the adapter's taxonomy.
func classify(err error) error {
	if err == nil {
		return nil
	}
	var statusErr *httpclient.StatusError
	if !errors.As(err, &statusErr) {
		return fmt.Errorf("%w: %s", ErrTransport, err)
	}
	switch statusErr.StatusCode {
	case http.StatusNotFound:
		return fmt.Errorf("%w: %s", ErrNotFound, statusErr)
	case http.StatusConflict:
		return fmt.Errorf("%w: %s", ErrConflict, statusErr)
	case http.StatusTooManyRequests:
		return fmt.Errorf("%w: %s", ErrRateLimited, statusErr)
	case http.StatusUnauthorized, http.StatusForbidden:
		return fmt.Errorf("%w: %s", ErrPermissionDenied, statusErr)
	case http.StatusBadRequest, http.StatusUnprocessableEntity:
		return fmt.Errorf("%w: %s", ErrValidation, statusErr)
	default:
		return fmt.Errorf("%w: %s", ErrTransport, statusErr)
	}
}
