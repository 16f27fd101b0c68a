package models

import "errors"

// Sentinel errors shared across services and repositories. Handlers map these
// to HTTP statuses at the boundary, the pipeline maps them to item outcomes.
var (
	// ErrNotFound indicates the requested record does not exist or is soft-deleted.
	ErrNotFound = errors.New("record not found")

	// ErrAuth indicates the source rejected the provided credentials outright.
	ErrAuth = errors.New("source authentication failed")

	// ErrStaleCredentials indicates previously valid credentials have expired or
	// been revoked. The account must be re-connected before syncing.
	ErrStaleCredentials = errors.New("source credentials are stale")

	// ErrUpstreamUnavailable indicates the source or target platform could not be
	// reached or returned a server error. Safe to retry.
	ErrUpstreamUnavailable = errors.New("upstream service unavailable")

	// ErrValidation indicates the target platform rejected the record content.
	// Not retryable without changing the item.
	ErrValidation = errors.New("record failed validation")

	// ErrConflict indicates the target platform already holds an equivalent
	// record. The pipeline treats this as a skipped success.
	ErrConflict = errors.New("record already exists on target")

	// ErrInvalidState indicates the operation is not valid for the record's
	// current status.
	ErrInvalidState = errors.New("invalid state for operation")

	// ErrScanInProgress indicates another duplicate scan currently holds the lock.
	ErrScanInProgress = errors.New("duplicate scan already in progress")
)
