package store

import (
	"context"

	"pigateway/internal/payment"
)

// Store persists payment records. The ledger is append-only: records are
// created once and mutated only through Execute, never removed.
type Store interface {
	// CreateIfAbsent inserts a record atomically. Returns
	// sentinel.ErrConflict if the ID already exists, so two requests racing
	// on the same ID cannot both win.
	CreateIfAbsent(ctx context.Context, r *payment.Record) error

	// FindByID returns a copy of the record or sentinel.ErrNotFound.
	FindByID(ctx context.Context, id string) (*payment.Record, error)

	// Execute runs validate then mutate on the record identified by id while
	// holding the store lock, linearizing all transitions on one payment.
	// If validate returns an error the mutation is skipped and the error is
	// returned. Returns a copy of the (possibly mutated) record.
	Execute(ctx context.Context, id string, validate func(*payment.Record) error, mutate func(*payment.Record)) (*payment.Record, error)

	// ListByUser returns copies of the user's records in creation order.
	ListByUser(ctx context.Context, userID string) ([]*payment.Record, error)

	// Snapshot returns copies of every record, for aggregate views.
	Snapshot(ctx context.Context) ([]*payment.Record, error)
}
