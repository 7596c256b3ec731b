package overtime

import (
	"context"
	"time"
)

// OvertimeRepository defines data access for overtime records.
// (employee, date) is unique.
type OvertimeRepository interface {
	// GetByID retrieves a record
	GetByID(ctx context.Context, id string) (Record, error)

	// GetByIDForUpdate retrieves a record and locks it for the current transaction
	GetByIDForUpdate(ctx context.Context, id string) (Record, error)

	// GetByEmployeeDates returns the existing records for the given employee-days
	GetByEmployeeDates(ctx context.Context, employeeID string, dates []time.Time) ([]Record, error)

	// Upsert replaces the record of an (employee, date) with r
	Upsert(ctx context.Context, r Record) error

	// Delete removes a record
	Delete(ctx context.Context, id string) error

	// UpdateState changes the approval state of a record
	UpdateState(ctx context.Context, id string, state State, reviewedBy, note *string, at time.Time) error

	// List retrieves records with filters
	List(ctx context.Context, filter Filter) ([]Record, error)
}

// HolidayRepository reads the holiday calendar.
type HolidayRepository interface {
	ListBetween(ctx context.Context, from, to time.Time) ([]Holiday, error)
}
