package http

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"github.com/cmlabs-hris/attendance-sync/internal/domain/attendance"
	"github.com/cmlabs-hris/attendance-sync/internal/domain/overtime"
	"github.com/cmlabs-hris/attendance-sync/internal/handler/http/middleware"
	"github.com/cmlabs-hris/attendance-sync/internal/handler/http/response"
	"github.com/cmlabs-hris/attendance-sync/internal/pkg/validator"
	"github.com/go-chi/chi/v5"
)

type OvertimeHandler interface {
	Transition(w http.ResponseWriter, r *http.Request)
	Recompute(w http.ResponseWriter, r *http.Request)
	List(w http.ResponseWriter, r *http.Request)
}

type overtimeHandlerImpl struct {
	overtimeService   overtime.OvertimeService
	attendanceService attendance.AttendanceService
}

func NewOvertimeHandler(overtimeService overtime.OvertimeService, attendanceService attendance.AttendanceService) OvertimeHandler {
	return &overtimeHandlerImpl{
		overtimeService:   overtimeService,
		attendanceService: attendanceService,
	}
}

// Transition implements OvertimeHandler.
func (h *overtimeHandlerImpl) Transition(w http.ResponseWriter, r *http.Request) {
	var req overtime.TransitionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil && !errors.Is(err, io.EOF) {
		response.BadRequest(w, "Invalid request format", nil)
		return
	}
	req.ID = chi.URLParam(r, "id")
	req.Action = overtime.Action(chi.URLParam(r, "action"))
	req.Actor, _ = middleware.ActorFromContext(r.Context())

	if err := req.Validate(); err != nil {
		response.HandleError(w, err)
		return
	}

	result, err := h.overtimeService.Transition(r.Context(), req)
	if err != nil {
		response.HandleError(w, err)
		return
	}
	response.SuccessWithMessage(w, "Overtime record updated", result)
}

// Recompute implements OvertimeHandler. It reruns reconciliation over the
// range, which rederives every non-approved overtime record in it.
func (h *overtimeHandlerImpl) Recompute(w http.ResponseWriter, r *http.Request) {
	var req attendance.ReconcileRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		response.BadRequest(w, "Invalid request format", nil)
		return
	}

	if err := req.Validate(); err != nil {
		response.HandleError(w, err)
		return
	}

	result, err := h.attendanceService.Reconcile(r.Context(), req)
	if err != nil {
		response.HandleError(w, err)
		return
	}
	response.SuccessWithMessage(w, "Overtime recomputed", newReconcileResponse(result))
}

// List implements OvertimeHandler.
func (h *overtimeHandlerImpl) List(w http.ResponseWriter, r *http.Request) {
	var errs validator.ValidationErrors
	filter := overtime.Filter{EmployeeID: r.URL.Query().Get("employee_id")}
	filter.DateFrom, filter.DateTo = queryDateRange(r, &errs)
	if s := r.URL.Query().Get("state"); s != "" {
		state := overtime.State(s)
		if !state.IsValid() {
			errs = append(errs, validator.ValidationError{Field: "state", Message: "state must be one of draft, submitted, approved, rejected"})
		}
		filter.State = &state
	}
	if len(errs) > 0 {
		response.HandleError(w, errs)
		return
	}

	records, err := h.overtimeService.List(r.Context(), filter)
	if err != nil {
		response.HandleError(w, err)
		return
	}
	response.SuccessWithMeta(w, records, &response.Meta{TotalItems: len(records)})
}
