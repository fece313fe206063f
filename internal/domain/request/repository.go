// internal/domain/request/repository.go
package request

import (
	"context"
	"time"
)

// Repository defines the operations the pipeline performs on request records.
//
// Every method that writes an outcome is a compare-and-skip: the write only
// happens when the record is still in the expected state, and the returned bool
// tells whether it was applied. Not applied is not an error.
type Repository interface {
	// ListPendingIDs returns the ids of all records with no outcome, in store order.
	ListPendingIDs(ctx context.Context) ([]int64, error)
	// GetByID returns ErrRequestNotFound when the record does not exist.
	GetByID(ctx context.Context, id int64) (*Record, error)
	// NormalizeCreatedAt persists the structured form of created_at.
	NormalizeCreatedAt(ctx context.Context, id int64, createdAt time.Time) error

	MarkDuplicate(ctx context.Context, id int64) (bool, error)
	// Classify sets the classification and, when outcome is not OutcomeNone, the outcome.
	Classify(ctx context.Context, id int64, classification Classification, outcome Outcome) (bool, error)
	MarkUnknownRequest(ctx context.Context, id int64, diagnostic string) (bool, error)

	// ClaimDispatch moves a pending record to OutcomeValid, or re-claims a
	// delivery-pending record whose claim is older than staleBefore.
	ClaimDispatch(ctx context.Context, id int64, now, staleBefore time.Time) (bool, error)
	// RecordDelivery stores the delivery result of a claimed record that has none yet.
	RecordDelivery(ctx context.Context, id int64, statusCode int, deliveredAt time.Time) (bool, error)
	// ListStaleClaims returns delivery-pending records claimed before staleBefore.
	ListStaleClaims(ctx context.Context, staleBefore time.Time) ([]int64, error)
}

// CounterRepository defines operations on the run counter.
type CounterRepository interface {
	// Get returns ErrCounterNotFound when the counter was never created.
	Get(ctx context.Context, name string) (*RunCounter, error)
	// Create returns ErrDuplicateCounter if the counter already exists.
	Create(ctx context.Context, counter *RunCounter) error
	// Increment atomically adds one and returns the new state, or ErrCounterNotFound.
	Increment(ctx context.Context, name string) (*RunCounter, error)
}
