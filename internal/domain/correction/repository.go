package correction

import (
	"context"
	"time"
)

// RequestRepository defines data access for correction requests.
// At most one pending request exists per (employee, date, kind).
type RequestRepository interface {
	// Create stores a new pending request; a second pending request for the same day and kind is a unique violation
	Create(ctx context.Context, req Request) error

	// GetByIDForUpdate retrieves a request and locks it for the current transaction
	GetByIDForUpdate(ctx context.Context, id string) (Request, error)

	// UpdateState records a review decision
	UpdateState(ctx context.Context, id string, state State, reviewedBy string, reviewNote string, punchTime *time.Time, at time.Time) error

	// List retrieves requests with filters
	List(ctx context.Context, filter Filter) ([]Request, error)
}
