package attendance

import (
	"context"
	"time"
)

// PunchRepository stores raw punches. Storage enforces the dedup key: a punch
// whose key is already stored replaces the stored one only when it sorts
// earlier by sequence hint, then direction, so the survivor never depends on
// arrival order.
type PunchRepository interface {
	// InsertBatch stores punches and returns how many keys were new
	InsertBatch(ctx context.Context, punches []RawPunch) (int, error)

	// ListByEmployeeRange returns every stored punch of an employee in [from, to)
	ListByEmployeeRange(ctx context.Context, employeeID string, from, to time.Time) ([]RawPunch, error)

	// SaveRejected keeps unattributed punches for operator review
	SaveRejected(ctx context.Context, rejected []RejectedPunch) error

	// ListRejected returns stored rejections, oldest first
	ListRejected(ctx context.Context, filter RejectedFilter) ([]RejectedPunch, error)

	// DeleteRejected removes stored rejections by id
	DeleteRejected(ctx context.Context, ids []int64) error
}

// SegmentRepository stores normalized day segments.
type SegmentRepository interface {
	// LockDay serializes rebuilds of one employee-day until the surrounding transaction ends
	LockDay(ctx context.Context, employeeID string, date time.Time) error

	// ListByDay returns the current segments of one employee-day
	ListByDay(ctx context.Context, employeeID string, date time.Time) ([]DaySegment, error)

	// ReplaceDay swaps the segments of one employee-day for a new version
	ReplaceDay(ctx context.Context, employeeID string, date time.Time, segments []DaySegment) error

	// ListByRange returns segments with dates in [from, to], ordered by employee and date
	ListByRange(ctx context.Context, from, to time.Time) ([]DaySegment, error)
}

// ClassifiedDayRepository stores classifier output, one row per employee-day.
type ClassifiedDayRepository interface {
	Upsert(ctx context.Context, day ClassifiedDay) error
	List(ctx context.Context, filter DayFilter) ([]ClassifiedDay, error)
}

// EmployeeDirectory resolves device user ids, card numbers and employee codes.
type EmployeeDirectory interface {
	// Resolve maps each known identifier to its employee code. Unknown identifiers are absent.
	Resolve(ctx context.Context, identifiers []string) (map[string]string, error)

	// Schedules returns the working hours of employees that override the
	// configured expected start and end. Employees without one are absent.
	Schedules(ctx context.Context, employeeIDs []string) (map[string]Schedule, error)
}

// ImportBatchRepository records archived import files so a failed import can be retried.
type ImportBatchRepository interface {
	Create(ctx context.Context, batch ImportBatch) error
	GetByID(ctx context.Context, batchID string) (ImportBatch, error)
	// RecordAttempt stores the outcome of an ingest attempt of the batch
	RecordAttempt(ctx context.Context, batchID string, counts ImportCounts, lastError string, at time.Time) error
}

// PolicySource reports the direction policy configured per punch source.
// Sources missing from the map use the pipeline default.
type PolicySource interface {
	DirectionPolicies(ctx context.Context) (map[string]DirectionPolicy, error)
}
