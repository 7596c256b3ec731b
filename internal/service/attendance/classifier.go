package attendance

import (
	"time"

	"github.com/cmlabs-hris/attendance-sync/internal/domain/attendance"
)

// Classify resolves one employee-day to a single status. All minute counters
// are computed first and reported whatever status wins:
//
//	open segment                 -> missing_checkout
//	check-out without in         -> missing_checkin
//	worked >= standard+threshold -> overtime
//	first in > start+grace       -> late
//	last out < end-grace         -> early_departure
//	otherwise                    -> normal
//
// Overtime also needs worked > standard, so a zero threshold never turns an
// exact standard day into overtime.
func Classify(employeeID string, date time.Time, segments []attendance.DaySegment, cfg attendance.ClassifierConfig) attendance.ClassifiedDay {
	loc := cfg.Location
	if loc == nil {
		loc = time.UTC
	}
	midnight := time.Date(date.Year(), date.Month(), date.Day(), 0, 0, 0, 0, loc)
	expectedStart := midnight.Add(cfg.ExpectedStart)
	expectedEnd := midnight.Add(cfg.ExpectedEnd)

	day := attendance.ClassifiedDay{
		EmployeeID:   employeeID,
		Date:         time.Date(date.Year(), date.Month(), date.Day(), 0, 0, 0, 0, time.UTC),
		SegmentCount: len(segments),
	}

	var anyOpen, anyMissingIn bool
	for _, seg := range segments {
		day.WorkedMinutes += seg.WorkedMinutes
		anyOpen = anyOpen || seg.IsOpen
		anyMissingIn = anyMissingIn || seg.MissingCheckIn

		if seg.CheckIn != nil && (day.FirstCheckIn == nil || seg.CheckIn.Before(*day.FirstCheckIn)) {
			t := *seg.CheckIn
			day.FirstCheckIn = &t
		}
		if seg.CheckOut != nil && (day.LastCheckOut == nil || seg.CheckOut.After(*day.LastCheckOut)) {
			t := *seg.CheckOut
			day.LastCheckOut = &t
		}
	}

	if day.FirstCheckIn != nil && day.FirstCheckIn.After(expectedStart) {
		day.LateMinutes = int(day.FirstCheckIn.Sub(expectedStart) / time.Minute)
	}
	if day.LastCheckOut != nil && day.LastCheckOut.Before(expectedEnd) {
		day.EarlyMinutes = int(expectedEnd.Sub(*day.LastCheckOut) / time.Minute)
	}
	overtimeRule := day.WorkedMinutes >= cfg.StandardMinutes+cfg.OvertimeThresholdMinutes && day.WorkedMinutes > cfg.StandardMinutes
	if overtimeRule {
		day.OvertimeMinutes = day.WorkedMinutes - cfg.StandardMinutes
	}

	switch {
	case anyOpen:
		day.Status = attendance.StatusMissingCheckout
	case anyMissingIn:
		day.Status = attendance.StatusMissingCheckin
	case overtimeRule:
		day.Status = attendance.StatusOvertime
	case day.FirstCheckIn != nil && day.FirstCheckIn.After(expectedStart.Add(minutes(cfg.LateGraceMinutes))):
		day.Status = attendance.StatusLate
	case day.LastCheckOut != nil && day.LastCheckOut.Before(expectedEnd.Add(-minutes(cfg.EarlyGraceMinutes))):
		day.Status = attendance.StatusEarlyDeparture
	default:
		day.Status = attendance.StatusNormal
	}
	return day
}

func minutes(n int) time.Duration {
	return time.Duration(n) * time.Minute
}
