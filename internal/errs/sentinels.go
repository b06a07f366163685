// Package errs contains sentinel errors used across layers for stable error mapping.
package errs

import (
	"errors"
	"fmt"
	"net/http"
)

// Common sentinels across api/service layers.
var (
	// ErrNotFound indicates the requested entity does not exist.
	ErrNotFound = errors.New("not found")

	// ErrUnauthorized indicates a rejected or missing session token.
	ErrUnauthorized = errors.New("unauthorized")

	// ErrRateLimited indicates the backend answered 429 and retries were exhausted.
	ErrRateLimited = errors.New("rate limited")

	// ErrValidation indicates a business/validation failure (success:false or 4xx).
	ErrValidation = errors.New("validation")

	// ErrNotEligible indicates an edit/recall/delete that the message does not allow.
	ErrNotEligible = errors.New("not eligible")

	// ErrRestoreWindow indicates a story can no longer be restored from the archive.
	ErrRestoreWindow = errors.New("restore window elapsed")

	// ErrNoSession indicates no persisted session exists (login required).
	ErrNoSession = errors.New("no session (login required)")

	// ErrSessionExpired indicates the persisted session is past its expiry.
	ErrSessionExpired = errors.New("session expired")
)

// APIError is a non-successful backend answer. It unwraps to the sentinel that
// matches its status so callers can use errors.Is.
type APIError struct {
	Status  int
	Message string
}

func (e *APIError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("api: status %d", e.Status)
	}
	return fmt.Sprintf("api: status %d: %s", e.Status, e.Message)
}

// Unwrap maps the HTTP status to a sentinel.
func (e *APIError) Unwrap() error {
	switch {
	case e.Status == http.StatusUnauthorized:
		return ErrUnauthorized
	case e.Status == http.StatusNotFound:
		return ErrNotFound
	case e.Status == http.StatusTooManyRequests:
		return ErrRateLimited
	case e.Status >= 400 && e.Status < 500, e.Status >= 200 && e.Status < 300:
		// 2xx only reaches here for success:false envelopes
		return ErrValidation
	default:
		return nil
	}
}
