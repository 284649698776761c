// Package credstore abstracts the platform credential store: an opaque
// blob-per-identifier keychain with a small status-code taxonomy. Records hold
// ciphertext only; the vault layer above owns encryption.
package credstore

import "context"

// Status is the credential store status taxonomy. Statuses are translated
// into the core error taxonomy before leaving the storage boundary.
type Status int

const (
	StatusSuccess Status = iota
	StatusDuplicate
	StatusNotFound
	StatusAuthFailed
	StatusParamError
	StatusInternal
)

// String returns the status name for development-time logging.
func (s Status) String() string {
	switch s {
	case StatusSuccess:
		return "success"
	case StatusDuplicate:
		return "duplicate"
	case StatusNotFound:
		return "notFound"
	case StatusAuthFailed:
		return "authFailed"
	case StatusParamError:
		return "paramError"
	default:
		return "internal"
	}
}

// Store is a platform credential store.
//
// Add on an existing identifier returns StatusDuplicate without touching the
// stored blob; callers that want upsert semantics delete first or use Put.
type Store interface {
	// Add persists a blob under the identifier.
	Add(ctx context.Context, id string, blob []byte) Status

	// Put persists a blob under the identifier, replacing any existing blob.
	Put(ctx context.Context, id string, blob []byte) Status

	// Get retrieves the blob stored under the identifier.
	Get(ctx context.Context, id string) ([]byte, Status)

	// Delete removes the blob stored under the identifier.
	Delete(ctx context.Context, id string) Status

	// DeleteAll removes every record. Used on wallet wipe.
	DeleteAll(ctx context.Context) Status
}
