package response

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/cmlabs-hris/attendance-sync/internal/domain/attendance"
	"github.com/cmlabs-hris/attendance-sync/internal/domain/correction"
	"github.com/cmlabs-hris/attendance-sync/internal/domain/device"
	"github.com/cmlabs-hris/attendance-sync/internal/domain/leave"
	"github.com/cmlabs-hris/attendance-sync/internal/domain/overtime"
	"github.com/cmlabs-hris/attendance-sync/internal/pkg/validator"
	"github.com/cmlabs-hris/attendance-sync/internal/pkg/workflow"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHandleError(t *testing.T) {
	tests := []struct {
		name   string
		err    error
		status int
		code   string
	}{
		{"validation", validator.ValidationErrors{{Field: "records", Message: "records must not be empty"}}, http.StatusUnprocessableEntity, "VALIDATION_ERROR"},
		{"row error", &attendance.ValidationError{Row: 3, Field: "check_in", Message: "bad datetime"}, http.StatusBadRequest, "BAD_REQUEST"},
		{"unknown employee", fmt.Errorf("%w: EMP999", attendance.ErrUnknownEmployee), http.StatusBadRequest, "BAD_REQUEST"},
		{"invalid transition", fmt.Errorf("failed to transition: %w", &workflow.InvalidTransitionError{Entity: "overtime", From: "approved", To: "draft"}), http.StatusConflict, "CONFLICT"},
		{"sync in progress", device.ErrSyncInProgress, http.StatusConflict, "CONFLICT"},
		{"connection", &device.ConnectionError{Address: "10.0.0.2:4370", Op: "dial", Err: errors.New("timeout")}, http.StatusBadGateway, "DEVICE_UNREACHABLE"},
		{"protocol", &device.ProtocolError{Address: "10.0.0.2:4370", Reason: "short frame"}, http.StatusBadGateway, "DEVICE_PROTOCOL_ERROR"},
		{"overtime missing", overtime.ErrOvertimeNotFound, http.StatusNotFound, "NOT_FOUND"},
		{"import batch missing", attendance.ErrImportBatchNotFound, http.StatusNotFound, "NOT_FOUND"},
		{"import not archived", fmt.Errorf("%w: imports/x.csv", attendance.ErrImportNotArchived), http.StatusConflict, "CONFLICT"},
		{"correction missing", correction.ErrRequestNotFound, http.StatusNotFound, "NOT_FOUND"},
		{"correction pending", correction.ErrRequestPending, http.StatusConflict, "CONFLICT"},
		{"day not missing", correction.ErrDayNotMissing, http.StatusConflict, "CONFLICT"},
		{"punch outside day", correction.ErrPunchOutsideDay, http.StatusBadRequest, "BAD_REQUEST"},
		{"insufficient balance", leave.ErrInsufficientBalance, http.StatusBadRequest, "BAD_REQUEST"},
		{"unexpected", errors.New("boom"), http.StatusInternalServerError, "INTERNAL_SERVER_ERROR"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := httptest.NewRecorder()
			HandleError(rec, tt.err)

			assert.Equal(t, tt.status, rec.Code)
			var body Response
			require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
			assert.False(t, body.Success)
			require.NotNil(t, body.Error)
			assert.Equal(t, tt.code, body.Error.Code)
		})
	}
}
