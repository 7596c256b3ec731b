package overtime

import (
	"github.com/cmlabs-hris/attendance-sync/internal/domain/attendance"
	"github.com/cmlabs-hris/attendance-sync/internal/domain/overtime"
	"github.com/cmlabs-hris/attendance-sync/internal/pkg/workflow"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

var sixty = decimal.NewFromInt(60)

// ComputeOvertime derives draft records from classified days.
//
// Approved records are never rewritten; their dates come back in Frozen.
// Other existing records are replaced only when the figures changed, and are
// deleted when the day no longer has overtime.
func ComputeOvertime(days []attendance.ClassifiedDay, rates overtime.RateConfig, cal overtime.Calendar, existing []overtime.Record) overtime.ComputeResult {
	byDay := make(map[attendance.DayKey]overtime.Record, len(existing))
	for _, r := range existing {
		byDay[recordKey(r)] = r
	}

	var result overtime.ComputeResult
	for _, day := range days {
		current, has := byDay[day.Key()]

		if has && current.State == overtime.StateApproved {
			result.Frozen = append(result.Frozen, &workflow.ReconciliationConflict{
				Entity:     "overtime",
				RecordID:   current.ID,
				EmployeeID: current.EmployeeID,
				Date:       current.Date,
				State:      string(current.State),
			})
			continue
		}

		if day.OvertimeMinutes <= 0 {
			if has {
				result.Deletes = append(result.Deletes, current)
			}
			continue
		}

		next := draft(day, rates, cal)
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

func draft(day attendance.ClassifiedDay, rates overtime.RateConfig, cal overtime.Calendar) overtime.Record {
	category := overtime.RateWeekday
	if cal != nil {
		category = cal.Category(day.Date)
	}

	minutes := day.OvertimeMinutes
	if limit := rates.Cap(category); limit > 0 && minutes > limit {
		minutes = limit
	}

	hours := decimal.NewFromInt(int64(minutes)).Div(sixty).Round(2)
	multiplier := rates.Multiplier(category)
	return overtime.Record{
		EmployeeID:    day.EmployeeID,
		Date:          day.Date,
		RateCategory:  category,
		Minutes:       minutes,
		Hours:         hours,
		Multiplier:    multiplier,
		WeightedHours: hours.Mul(multiplier).Round(2),
		State:         overtime.StateDraft,
	}
}

func recordKey(r overtime.Record) attendance.DayKey {
	return attendance.DayKey{EmployeeID: r.EmployeeID, Date: r.Date.Format(attendance.DateLayout)}
}

func newID() string {
	id, err := uuid.NewV7()
	if err != nil {
		return uuid.NewString()
	}
	return id.String()
}
