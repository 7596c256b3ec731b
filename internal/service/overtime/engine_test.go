package overtime

import (
	"testing"
	"time"

	"github.com/cmlabs-hris/attendance-sync/internal/domain/attendance"
	"github.com/cmlabs-hris/attendance-sync/internal/domain/overtime"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func rates() overtime.RateConfig {
	return overtime.RateConfig{
		WeekdayMultiplier: decimal.RequireFromString("1.5"),
		WeekendMultiplier: decimal.RequireFromString("2.0"),
		HolidayMultiplier: decimal.RequireFromString("3.0"),
		WeekendCapMinutes: 240,
	}
}

func calendar() overtime.Calendar {
	return overtime.WeekCalendar{
		Weekend:  []time.Weekday{time.Saturday, time.Sunday},
		Holidays: map[string]struct{}{"2024-01-17": {}},
	}
}

func date(day int) time.Time {
	return time.Date(2024, 1, day, 0, 0, 0, 0, time.UTC)
}

func classified(emp string, day, overtimeMinutes int) attendance.ClassifiedDay {
	return attendance.ClassifiedDay{EmployeeID: emp, Date: date(day), OvertimeMinutes: overtimeMinutes}
}

func TestComputeOvertime_Drafts(t *testing.T) {
	// 2024-01-15 is a Monday, the 17th a holiday, the 20th a Saturday.
	res := ComputeOvertime([]attendance.ClassifiedDay{
		classified("E1", 15, 90),
		classified("E1", 16, 0),
		classified("E1", 17, 60),
		classified("E1", 20, 300),
	}, rates(), calendar(), nil)

	require.Len(t, res.Upserts, 3)
	assert.Empty(t, res.Frozen)

	weekday := res.Upserts[0]
	assert.Equal(t, overtime.RateWeekday, weekday.RateCategory)
	assert.Equal(t, overtime.StateDraft, weekday.State)
	assert.Equal(t, "1.50", weekday.Hours.StringFixed(2))
	assert.Equal(t, "2.25", weekday.WeightedHours.StringFixed(2))
	assert.NotEmpty(t, weekday.ID)

	assert.Equal(t, overtime.RateHoliday, res.Upserts[1].RateCategory)
	assert.Equal(t, "3.00", res.Upserts[1].WeightedHours.StringFixed(2))

	weekend := res.Upserts[2]
	assert.Equal(t, overtime.RateWeekend, weekend.RateCategory)
	assert.Equal(t, 240, weekend.Minutes, "weekend overtime is capped")
	assert.Equal(t, "8.00", weekend.WeightedHours.StringFixed(2))
}

func TestComputeOvertime_DefaultsToWeekday(t *testing.T) {
	res := ComputeOvertime([]attendance.ClassifiedDay{classified("E1", 20, 30)}, rates(), nil, nil)
	require.Len(t, res.Upserts, 1)
	assert.Equal(t, overtime.RateWeekday, res.Upserts[0].RateCategory)
}

func TestComputeOvertime_Recompute(t *testing.T) {
	base := ComputeOvertime([]attendance.ClassifiedDay{
		classified("E1", 15, 60),
		classified("E1", 16, 60),
		classified("E1", 18, 60),
		classified("E1", 19, 60),
	}, rates(), calendar(), nil).Upserts
	require.Len(t, base, 4)

	base[0].State = overtime.StateApproved
	base[1].State = overtime.StateSubmitted
	base[2].State = overtime.StateRejected

	res := ComputeOvertime([]attendance.ClassifiedDay{
		classified("E1", 15, 120),
		classified("E1", 16, 120),
		classified("E1", 18, 60),
		classified("E1", 19, 0),
	}, rates(), calendar(), base)

	require.Len(t, res.Frozen, 1)
	assert.Equal(t, base[0].ID, res.Frozen[0].RecordID)
	assert.Equal(t, "approved", res.Frozen[0].State)

	require.Len(t, res.Upserts, 1)
	assert.Equal(t, base[1].ID, res.Upserts[0].ID, "replacement keeps the record id")
	assert.Equal(t, 120, res.Upserts[0].Minutes)
	assert.Equal(t, overtime.StateDraft, res.Upserts[0].State)

	require.Len(t, res.Unchanged, 1)
	assert.Equal(t, overtime.StateRejected, res.Unchanged[0].State)

	require.Len(t, res.Deletes, 1)
	assert.Equal(t, base[3].ID, res.Deletes[0].ID)
}

func TestComputeOvertime_ApprovedNeverRewritten(t *testing.T) {
	approved := ComputeOvertime([]attendance.ClassifiedDay{classified("E1", 15, 60)}, rates(), calendar(), nil).Upserts[0]
	approved.State = overtime.StateApproved

	for _, minutes := range []int{0, 60, 500} {
		res := ComputeOvertime([]attendance.ClassifiedDay{classified("E1", 15, minutes)}, rates(), calendar(), []overtime.Record{approved})
		assert.Empty(t, res.Upserts)
		assert.Empty(t, res.Deletes)
		assert.Len(t, res.Frozen, 1)
	}
}
