// Package storage reads and writes the inter-stage JSON artifacts
// (users.json, timecamp_users.json) by logical key. Two backends exist: the
// local filesystem and any S3-compatible object store (AWS, MinIO). Reads and
// writes are whole-object; there are no partial reads.
package storage

import "context"

// Store is the blob interface shared by the pipeline stages.
type Store interface {
	// GetJSON returns the raw bytes stored under key. Returns ErrNotFound
	// when the artifact does not exist.
	GetJSON(ctx context.Context, key string) ([]byte, error)

	// PutJSON stores data under key, replacing any previous content
	// atomically from the reader's point of view.
	PutJSON(ctx context.Context, key string, data []byte) error

	// Exists reports whether an artifact is present under key.
	Exists(ctx context.Context, key string) (bool, error)
}

// Well-known artifact keys.
const (
	// KeyPersons is the stage-1 output: {"users": [Person, ...]}.
	KeyPersons = "var/users.json"

	// KeyDesiredUsers is the stage-2 output: a JSON array of DesiredUser
	// records sorted by email.
	KeyDesiredUsers = "var/timecamp_users.json"
)
