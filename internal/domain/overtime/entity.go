package overtime

import (
	"time"

	"github.com/cmlabs-hris/attendance-sync/internal/pkg/workflow"
	"github.com/shopspring/decimal"
)

type State string

const (
	StateDraft     State = "draft"
	StateSubmitted State = "submitted"
	StateApproved  State = "approved"
	StateRejected  State = "rejected"
)

func (s State) IsValid() bool {
	switch s {
	case StateDraft, StateSubmitted, StateApproved, StateRejected:
		return true
	}
	return false
}

// Machine is the approval lifecycle of an overtime record.
var Machine = workflow.NewMachine("overtime", map[State][]State{
	StateDraft:     {StateSubmitted},
	StateSubmitted: {StateApproved, StateRejected},
	StateRejected:  {StateDraft},
})

// Action is a manager action on an overtime record.
type Action string

const (
	ActionSubmit  Action = "submit"
	ActionApprove Action = "approve"
	ActionReject  Action = "reject"
	ActionReset   Action = "reset"
)

// Target returns the state an action moves a record to.
func (a Action) Target() (State, bool) {
	switch a {
	case ActionSubmit:
		return StateSubmitted, true
	case ActionApprove:
		return StateApproved, true
	case ActionReject:
		return StateRejected, true
	case ActionReset:
		return StateDraft, true
	}
	return "", false
}

type RateCategory string

const (
	RateWeekday RateCategory = "weekday"
	RateWeekend RateCategory = "weekend"
	RateHoliday RateCategory = "holiday"
)

// Record is the overtime of one employee on one date.
type Record struct {
	ID            string
	EmployeeID    string
	Date          time.Time
	RateCategory  RateCategory
	Minutes       int
	Hours         decimal.Decimal
	Multiplier    decimal.Decimal
	WeightedHours decimal.Decimal
	State         State
	ReviewedBy    *string
	ReviewedAt    *time.Time
	Note          *string
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

// SameComputation reports whether two records carry the same computed figures.
func (r Record) SameComputation(other Record) bool {
	return r.RateCategory == other.RateCategory &&
		r.Minutes == other.Minutes &&
		r.Multiplier.Equal(other.Multiplier)
}

// RateConfig holds the multipliers and caps per rate category.
// A cap of zero means uncapped.
type RateConfig struct {
	WeekdayMultiplier decimal.Decimal
	WeekendMultiplier decimal.Decimal
	HolidayMultiplier decimal.Decimal
	WeekdayCapMinutes int
	WeekendCapMinutes int
	HolidayCapMinutes int
}

// Multiplier returns the configured multiplier of a category.
func (c RateConfig) Multiplier(cat RateCategory) decimal.Decimal {
	switch cat {
	case RateWeekend:
		return c.WeekendMultiplier
	case RateHoliday:
		return c.HolidayMultiplier
	default:
		return c.WeekdayMultiplier
	}
}

// Cap returns the minute cap of a category.
func (c RateConfig) Cap(cat RateCategory) int {
	switch cat {
	case RateWeekend:
		return c.WeekendCapMinutes
	case RateHoliday:
		return c.HolidayCapMinutes
	default:
		return c.WeekdayCapMinutes
	}
}

// Calendar classifies a date into a rate category.
type Calendar interface {
	Category(date time.Time) RateCategory
}

// WeekCalendar treats listed weekdays as weekend and listed dates as holidays.
// Holidays win over weekends.
type WeekCalendar struct {
	Weekend  []time.Weekday
	Holidays map[string]struct{}
}

func (c WeekCalendar) Category(date time.Time) RateCategory {
	if _, ok := c.Holidays[date.Format("2006-01-02")]; ok {
		return RateHoliday
	}
	for _, wd := range c.Weekend {
		if date.Weekday() == wd {
			return RateWeekend
		}
	}
	return RateWeekday
}

// Holiday is one entry of the holiday calendar.
type Holiday struct {
	Date time.Time
	Name string
}
