package leave

import "errors"

var (
	ErrDeductionNotFound   = errors.New("leave deduction not found")
	ErrInsufficientBalance = errors.New("insufficient leave balance")
	ErrBalanceNotFound     = errors.New("leave balance not found")
	ErrUnknownAction       = errors.New("unknown deduction action")
)
