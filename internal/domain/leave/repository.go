package leave

import (
	"context"
	"time"
)

// DeductionRepository defines data access for leave deductions.
// (employee, date) is unique.
type DeductionRepository interface {
	GetByID(ctx context.Context, id string) (Deduction, error)

	// GetByIDForUpdate retrieves a deduction and locks it for the current transaction
	GetByIDForUpdate(ctx context.Context, id string) (Deduction, error)

	// GetByEmployeeDates returns the existing deductions for the given employee-days
	GetByEmployeeDates(ctx context.Context, employeeID string, dates []time.Time) ([]Deduction, error)

	// Upsert replaces the deduction of an (employee, date) with d
	Upsert(ctx context.Context, d Deduction) error

	Delete(ctx context.Context, id string) error

	UpdateState(ctx context.Context, id string, state DeductionState, reviewedBy *string, at time.Time) error

	List(ctx context.Context, filter DeductionFilter) ([]Deduction, error)
}

// Ledger is the external leave balance. Debit must apply an entry at most once
// per Reference; a repeated reference returns applied=false and changes nothing.
type Ledger interface {
	Debit(ctx context.Context, entry LedgerEntry) (applied bool, err error)
}
