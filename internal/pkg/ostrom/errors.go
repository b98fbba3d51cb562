package ostrom

import (
	"errors"
	"fmt"
)

// ErrEmptyResponse is returned by the coordinator when the API answers
// with no price list at all. Individual malformed entries are skipped
// instead.
var ErrEmptyResponse = errors.New("no price data received from api")

// AuthError means the client id/secret were rejected. Retrying with the
// same credentials is pointless; the account has to be re-authenticated.
type AuthError struct {
	StatusCode int
}

func (e *AuthError) Error() string {
	return fmt.Sprintf("authentication rejected with status %d: invalid client id or secret", e.StatusCode)
}

// InvalidRequestError means the API rejected the request itself, most
// commonly because the configured zip code is not a valid tariff zone.
type InvalidRequestError struct {
	Body string
}

func (e *InvalidRequestError) Error() string {
	return "bad request (invalid zip?): " + e.Body
}

// TransientError covers network failures, timeouts and 5xx responses.
// The scheduler retries these on its normal interval.
type TransientError struct {
	Op  string
	Err error
}

func (e *TransientError) Error() string {
	return fmt.Sprintf("transient error during %s: %v", e.Op, e.Err)
}

func (e *TransientError) Unwrap() error { return e.Err }

// RefreshError wraps whatever made a refresh cycle fail so the
// scheduler can match the original cause with errors.As.
type RefreshError struct {
	Cause error
}

func (e *RefreshError) Error() string {
	return "refresh failed: " + e.Cause.Error()
}

func (e *RefreshError) Unwrap() error { return e.Cause }
