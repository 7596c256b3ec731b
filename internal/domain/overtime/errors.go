package overtime

import "errors"

// Overtime domain errors
var (
	ErrOvertimeNotFound = errors.New("overtime record not found")
	ErrUnknownAction    = errors.New("unknown overtime action")
)
