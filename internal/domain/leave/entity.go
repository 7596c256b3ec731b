package leave

import (
	"time"

	"github.com/cmlabs-hris/attendance-sync/internal/pkg/workflow"
	"github.com/shopspring/decimal"
)

type DeductionState string

const (
	DeductionStatePending   DeductionState = "pending"
	DeductionStateConfirmed DeductionState = "confirmed"
	DeductionStateRejected  DeductionState = "rejected"
)

func (s DeductionState) IsValid() bool {
	return s == DeductionStatePending || s == DeductionStateConfirmed || s == DeductionStateRejected
}

// Machine is the confirmation lifecycle of a deduction. Confirmed and rejected are terminal.
var Machine = workflow.NewMachine("leave deduction", map[DeductionState][]DeductionState{
	DeductionStatePending: {DeductionStateConfirmed, DeductionStateRejected},
})

// DeductionType tells which counters produced a deduction.
type DeductionType string

const (
	DeductionTypeLateIn   DeductionType = "late_in"
	DeductionTypeEarlyOut DeductionType = "early_out"
	DeductionTypeBoth     DeductionType = "both"
)

// Deduction is the leave charged for one employee-day of lateness or early departure.
type Deduction struct {
	ID              string
	EmployeeID      string
	Date            time.Time
	DeductionType   DeductionType
	LateMinutes     int
	EarlyMinutes    int
	MinutesDeducted int
	Units           decimal.Decimal
	LeaveType       string
	State           DeductionState
	ReviewedBy      *string
	ReviewedAt      *time.Time
	CreatedAt       time.Time
	UpdatedAt       time.Time
}

// SameComputation reports whether two deductions carry the same computed figures.
func (d Deduction) SameComputation(other Deduction) bool {
	return d.MinutesDeducted == other.MinutesDeducted &&
		d.DeductionType == other.DeductionType &&
		d.LeaveType == other.LeaveType &&
		d.Units.Equal(other.Units)
}

// IsFrozen reports whether recompute must leave the deduction alone.
func (d Deduction) IsFrozen() bool {
	return Machine.IsTerminal(d.State)
}

// DeductionConfig holds grace periods and the minutes-to-leave conversion.
type DeductionConfig struct {
	LateGraceMinutes  int
	EarlyGraceMinutes int
	MinutesPerUnit    int
	LeaveType         string
	AutoConfirm       bool
}

// LedgerEntry is one debit against an employee's leave balance.
// Reference is the deduction id and makes the debit idempotent.
type LedgerEntry struct {
	EmployeeID string
	LeaveType  string
	Year       int
	Units      decimal.Decimal
	Reference  string
	CreatedAt  time.Time
}
