package http

import (
	"net/http"

	"github.com/cmlabs-hris/attendance-sync/internal/domain/leave"
	"github.com/cmlabs-hris/attendance-sync/internal/handler/http/middleware"
	"github.com/cmlabs-hris/attendance-sync/internal/handler/http/response"
	"github.com/cmlabs-hris/attendance-sync/internal/pkg/validator"
	"github.com/go-chi/chi/v5"
)

type DeductionHandler interface {
	Review(w http.ResponseWriter, r *http.Request)
	List(w http.ResponseWriter, r *http.Request)
}

type deductionHandlerImpl struct {
	deductionService leave.DeductionService
}

func NewDeductionHandler(deductionService leave.DeductionService) DeductionHandler {
	return &deductionHandlerImpl{deductionService: deductionService}
}

// Review implements DeductionHandler.
func (h *deductionHandlerImpl) Review(w http.ResponseWriter, r *http.Request) {
	req := leave.ReviewDeductionRequest{
		ID:     chi.URLParam(r, "id"),
		Action: leave.DeductionAction(chi.URLParam(r, "action")),
	}
	req.Actor, _ = middleware.ActorFromContext(r.Context())

	if err := req.Validate(); err != nil {
		response.HandleError(w, err)
		return
	}

	result, err := h.deductionService.Review(r.Context(), req)
	if err != nil {
		response.HandleError(w, err)
		return
	}
	response.SuccessWithMessage(w, "Leave deduction "+string(result.State), result)
}

// List implements DeductionHandler.
func (h *deductionHandlerImpl) List(w http.ResponseWriter, r *http.Request) {
	var errs validator.ValidationErrors
	filter := leave.DeductionFilter{EmployeeID: r.URL.Query().Get("employee_id")}
	filter.DateFrom, filter.DateTo = queryDateRange(r, &errs)
	if s := r.URL.Query().Get("state"); s != "" {
		state := leave.DeductionState(s)
		if !state.IsValid() {
			errs = append(errs, validator.ValidationError{Field: "state", Message: "state must be one of pending, confirmed, rejected"})
		}
		filter.State = &state
	}
	if len(errs) > 0 {
		response.HandleError(w, errs)
		return
	}

	deductions, err := h.deductionService.List(r.Context(), filter)
	if err != nil {
		response.HandleError(w, err)
		return
	}
	response.SuccessWithMeta(w, deductions, &response.Meta{TotalItems: len(deductions)})
}
