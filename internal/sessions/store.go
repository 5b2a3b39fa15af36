package sessions

import (
	"context"
	"errors"
)

var (
	// ErrValidation marks sessions rejected before any store interaction.
	ErrValidation = errors.New("invalid session")

	// ErrStoreBusy is transient lock contention. It is retried internally
	// and only surfaces wrapped in ErrStoreUnavailable once retries are
	// exhausted.
	ErrStoreBusy = errors.New("session store busy")

	// ErrStoreUnavailable means the operation did not complete: retries
	// exhausted or the storage failed unrecoverably. For Add this means the
	// session was NOT durably saved.
	ErrStoreUnavailable = errors.New("session store unavailable")
)

// Store is the durable home of completed task sessions. It owns all
// store-level concurrency control; callers never retry on top of it.
type Store interface {
	// Add inserts a session with Synced forced to false and returns the
	// assigned id.
	Add(ctx context.Context, session TaskSession) (int64, error)

	// Unsynced returns all sessions not yet landed in the remote ledger,
	// id ascending.
	Unsynced(ctx context.Context) ([]TaskSession, error)

	// MarkSynced flips one record to synced. It reports false when no
	// unsynced record with that id exists, so a second call for the same
	// id is a safe no-op.
	MarkSynced(ctx context.Context, id int64) (bool, error)

	// All returns every session, newest date first.
	All(ctx context.Context) ([]TaskSession, error)

	Close() error
}
