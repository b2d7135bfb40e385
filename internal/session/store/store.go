package store

import (
	"context"
	"time"

	"pigateway/internal/session"
)

// Store persists sessions. Implementations must make Create an atomic
// insert-if-absent and ExtendIfValid an atomic check-and-extend so concurrent
// requests on the same session cannot lose updates.
type Store interface {
	// Create inserts a session. Returns sentinel.ErrConflict if the ID exists.
	Create(ctx context.Context, s *session.Session) error

	// FindByID returns the stored session or sentinel.ErrNotFound.
	// Expired sessions may still be returned; callers decide eviction.
	FindByID(ctx context.Context, id string) (*session.Session, error)

	// ExtendIfValid extends the session expiry iff it is present and not yet
	// expired at now. Returns false when absent or expired.
	ExtendIfValid(ctx context.Context, id string, now time.Time, until time.Time) (bool, error)

	// Delete removes the session unconditionally. Reports whether it existed.
	Delete(ctx context.Context, id string) (bool, error)

	// DeleteExpired sweeps sessions whose expiry has passed. Idempotent.
	DeleteExpired(ctx context.Context, now time.Time) (int, error)

	// Count returns the number of stored, unexpired sessions.
	Count(ctx context.Context, now time.Time) (int, error)
}
