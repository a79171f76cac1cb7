package storage

import "errors"

// Sentinel errors returned by blob store backends. Callers should use
// errors.Is for comparison.
var (
	// ErrNotFound is returned when the requested artifact does not exist in
	// the selected backend (missing file, missing S3 key).
	ErrNotFound = errors.New("storage: artifact not found")

	// ErrTransport is returned for I/O and network failures, including S3
	// requests that failed after the SDK's own retries.
	ErrTransport = errors.New("storage: transport failure")

	// ErrAuth is returned when the backend rejects the configured
	// credentials or denies access to the bucket.
	ErrAuth = errors.New("storage: access denied")
)
