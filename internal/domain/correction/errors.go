package correction

import "errors"

// Correction domain errors
var (
	ErrRequestNotFound = errors.New("correction request not found")
	ErrRequestPending  = errors.New("a correction request for this day is already pending")
	ErrDayNotMissing   = errors.New("the day has no matching missing punch")
	ErrPunchOutsideDay = errors.New("punch_time must fall on the requested date")
)
