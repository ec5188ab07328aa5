package remote

import (
	"errors"
	"fmt"
)

// NetworkError wraps a transient failure: connection refused, timeout, or a
// 5xx response. Transient errors are retryable under the backoff policy.
type NetworkError struct {
	// Op names the failed operation ("GET content/abc123").
	Op string

	// StatusCode is the HTTP status for 5xx responses, 0 for transport
	// failures.
	StatusCode int

	// Timeout is true when the failure was a deadline expiry.
	Timeout bool

	// Err is the underlying cause, nil for bare status failures.
	Err error
}

func (e *NetworkError) Error() string {
	switch {
	case e.Err != nil:
		return fmt.Sprintf("%s: %v", e.Op, e.Err)
	case e.StatusCode != 0:
		return fmt.Sprintf("%s: server returned %d", e.Op, e.StatusCode)
	default:
		return fmt.Sprintf("%s: network error", e.Op)
	}
}

func (e *NetworkError) Unwrap() error { return e.Err }

// ConflictError reports that the server state is newer than the base version
// a local edit was built on. Never retried automatically; the caller decides
// whether to rebase or discard.
type ConflictError struct {
	// EntityID identifies the conflicted entity.
	EntityID string

	// ServerVersion is the version the server currently holds.
	ServerVersion string

	// ServerState is the server's current body, when it was returned,
	// so the caller can rebase without another round trip.
	ServerState []byte
}

func (e *ConflictError) Error() string {
	return fmt.Sprintf("conflict on %s: server is at version %s", e.EntityID, e.ServerVersion)
}

// ValidationError reports a permanent rejection (4xx other than 404/409).
// Never retried.
type ValidationError struct {
	StatusCode int
	Message    string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("request rejected (%d): %s", e.StatusCode, e.Message)
}

// NotFoundError reports that the requested content doesn't exist remotely.
type NotFoundError struct {
	ID string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("content %s not found", e.ID)
}

// IsTransient reports whether err is retryable under the backoff policy.
// Only network errors qualify; conflicts, validation failures and missing
// content are terminal per attempt.
func IsTransient(err error) bool {
	var ne *NetworkError
	return errors.As(err, &ne)
}

// IsConflict reports whether err is a version conflict.
func IsConflict(err error) bool {
	var ce *ConflictError
	return errors.As(err, &ce)
}

// IsNotFound reports whether err is a missing-content error.
func IsNotFound(err error) bool {
	var nf *NotFoundError
	return errors.As(err, &nf)
}
