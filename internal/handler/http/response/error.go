package response

import (
	"context"
	"errors"
	"net/http"

	"github.com/cmlabs-hris/attendance-sync/internal/domain/attendance"
	"github.com/cmlabs-hris/attendance-sync/internal/domain/correction"
	"github.com/cmlabs-hris/attendance-sync/internal/domain/device"
	"github.com/cmlabs-hris/attendance-sync/internal/domain/leave"
	"github.com/cmlabs-hris/attendance-sync/internal/domain/overtime"
	"github.com/cmlabs-hris/attendance-sync/internal/pkg/validator"
	"github.com/cmlabs-hris/attendance-sync/internal/pkg/workflow"
)

// HandleError maps domain errors to HTTP responses
func HandleError(w http.ResponseWriter, err error) {
	// Check if it's a validation error
	var validationErrs validator.ValidationErrors
	if errors.As(err, &validationErrs) {
		ValidationError(w, validationErrs.ToMap())
		return
	}

	var rowErr *attendance.ValidationError
	if errors.As(err, &rowErr) {
		BadRequest(w, rowErr.Error(), nil)
		return
	}

	var transitionErr *workflow.InvalidTransitionError
	if errors.As(err, &transitionErr) {
		Conflict(w, transitionErr.Error())
		return
	}

	var connErr *device.ConnectionError
	if errors.As(err, &connErr) {
		BadGateway(w, "DEVICE_UNREACHABLE", connErr.Error())
		return
	}

	var protoErr *device.ProtocolError
	if errors.As(err, &protoErr) {
		BadGateway(w, "DEVICE_PROTOCOL_ERROR", protoErr.Error())
		return
	}

	switch {
	// Attendance domain errors
	case errors.Is(err, attendance.ErrUnknownEmployee):
		BadRequest(w, err.Error(), nil)
	case errors.Is(err, attendance.ErrUnknownProfile),
		errors.Is(err, attendance.ErrUnsupportedFile),
		errors.Is(err, attendance.ErrEmptyFile),
		errors.Is(err, attendance.ErrTooManyRecords),
		errors.Is(err, attendance.ErrInvalidDateRange),
		errors.Is(err, attendance.ErrMissingHeaderField):
		BadRequest(w, err.Error(), nil)
	case errors.Is(err, attendance.ErrImportBatchNotFound):
		NotFound(w, "Import batch not found")
	case errors.Is(err, attendance.ErrImportNotArchived):
		Conflict(w, "The import file is no longer archived")

	// Device domain errors
	case errors.Is(err, device.ErrDeviceNotFound):
		NotFound(w, "Device not found")
	case errors.Is(err, device.ErrDeviceInactive):
		Conflict(w, "Device is not active")
	case errors.Is(err, device.ErrSyncInProgress):
		Conflict(w, "A pull is already running for this device")

	// Overtime domain errors
	case errors.Is(err, overtime.ErrOvertimeNotFound):
		NotFound(w, "Overtime record not found")
	case errors.Is(err, overtime.ErrUnknownAction):
		BadRequest(w, "Unknown overtime action", nil)

	// Correction domain errors
	case errors.Is(err, correction.ErrRequestNotFound):
		NotFound(w, "Correction request not found")
	case errors.Is(err, correction.ErrRequestPending),
		errors.Is(err, correction.ErrDayNotMissing):
		Conflict(w, err.Error())
	case errors.Is(err, correction.ErrPunchOutsideDay):
		BadRequest(w, err.Error(), nil)

	// Leave domain errors
	case errors.Is(err, leave.ErrDeductionNotFound):
		NotFound(w, "Leave deduction not found")
	case errors.Is(err, leave.ErrBalanceNotFound):
		NotFound(w, "Leave balance not found")
	case errors.Is(err, leave.ErrInsufficientBalance):
		BadRequest(w, "Insufficient leave balance", nil)
	case errors.Is(err, leave.ErrUnknownAction):
		BadRequest(w, "Unknown deduction action", nil)

	case errors.Is(err, context.DeadlineExceeded):
		GatewayTimeout(w, "The operation timed out")

	// Default
	default:
		InternalServerError(w, "An unexpected error occurred")
	}
}
