package leave

import (
	"github.com/cmlabs-hris/attendance-sync/internal/domain/attendance"
	"github.com/cmlabs-hris/attendance-sync/internal/domain/leave"
	"github.com/cmlabs-hris/attendance-sync/internal/pkg/workflow"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// DefaultMinutesPerUnit is one leave day of eight hours.
const DefaultMinutesPerUnit = 480

// ComputeDeductions derives pending deductions from the late and early
// counters of classified days. Minutes inside the grace periods are free.
// Confirmed and rejected deductions are frozen and come back in Frozen.
func ComputeDeductions(days []attendance.ClassifiedDay, cfg leave.DeductionConfig, existing []leave.Deduction) leave.ComputeResult {
	perUnit := cfg.MinutesPerUnit
	if perUnit <= 0 {
		perUnit = DefaultMinutesPerUnit
	}

	byDay := make(map[attendance.DayKey]leave.Deduction, len(existing))
	for _, d := range existing {
		byDay[attendance.DayKey{EmployeeID: d.EmployeeID, Date: d.Date.Format(attendance.DateLayout)}] = d
	}

	var result leave.ComputeResult
	for _, day := range days {
		current, has := byDay[day.Key()]

		if has && current.IsFrozen() {
			result.Frozen = append(result.Frozen, &workflow.ReconciliationConflict{
				Entity:     "leave_deduction",
				RecordID:   current.ID,
				EmployeeID: current.EmployeeID,
				Date:       current.Date,
				State:      string(current.State),
			})
			continue
		}

		late := max(0, day.LateMinutes-cfg.LateGraceMinutes)
		early := max(0, day.EarlyMinutes-cfg.EarlyGraceMinutes)
		if late+early == 0 {
			if has {
				result.Deletes = append(result.Deletes, current)
			}
			continue
		}

		next := leave.Deduction{
			EmployeeID:      day.EmployeeID,
			Date:            day.Date,
			DeductionType:   deductionType(late, early),
			LateMinutes:     day.LateMinutes,
			EarlyMinutes:    day.EarlyMinutes,
			MinutesDeducted: late + early,
			Units:           decimal.NewFromInt(int64(late + early)).Div(decimal.NewFromInt(int64(perUnit))).Round(4),
			LeaveType:       cfg.LeaveType,
			State:           leave.DeductionStatePending,
		}

		switch {
		case has && current.SameComputation(next):
			result.Unchanged = append(result.Unchanged, current)
		case has:
			next.ID = current.ID
			next.CreatedAt = current.CreatedAt
			result.Upserts = append(result.Upserts, next)
		default:
			next.ID = newID()
			result.Upserts = append(result.Upserts, next)
		}
	}
	return result
}

func deductionType(late, early int) leave.DeductionType {
	switch {
	case late > 0 && early > 0:
		return leave.DeductionTypeBoth
	case late > 0:
		return leave.DeductionTypeLateIn
	default:
		return leave.DeductionTypeEarlyOut
	}
}

func newID() string {
	id, err := uuid.NewV7()
	if err != nil {
		return uuid.NewString()
	}
	return id.String()
}
