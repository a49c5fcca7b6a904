package queue

import "context"

// Store is the durable local record store. Implementations must write each
// record atomically and must survive process restarts (the memory store is
// the degraded exception).
type Store interface {
	// Put inserts or replaces the record keyed by LocalID
	Put(ctx context.Context, t *Transaction) error

	// Get returns errors.ErrTransactionNotFound when no record exists
	Get(ctx context.Context, localID string) (*Transaction, error)

	// GetAll returns every record ordered by creation time
	GetAll(ctx context.Context) ([]*Transaction, error)

	// ListByStatus returns records in any of the given statuses ordered by creation time
	ListByStatus(ctx context.Context, statuses ...Status) ([]*Transaction, error)

	// Delete removes the record; deleting a missing record is not an error
	Delete(ctx context.Context, localID string) error

	Close() error
}
