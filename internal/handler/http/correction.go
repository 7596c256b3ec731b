package http

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strings"

	"github.com/cmlabs-hris/attendance-sync/internal/domain/correction"
	"github.com/cmlabs-hris/attendance-sync/internal/handler/http/middleware"
	"github.com/cmlabs-hris/attendance-sync/internal/handler/http/response"
	"github.com/cmlabs-hris/attendance-sync/internal/pkg/validator"
	"github.com/go-chi/chi/v5"
)

type CorrectionHandler interface {
	Create(w http.ResponseWriter, r *http.Request)
	Review(w http.ResponseWriter, r *http.Request)
	List(w http.ResponseWriter, r *http.Request)
}

type correctionHandlerImpl struct {
	correctionService correction.CorrectionService
}

func NewCorrectionHandler(correctionService correction.CorrectionService) CorrectionHandler {
	return &correctionHandlerImpl{correctionService: correctionService}
}

// Create implements CorrectionHandler. Employees file requests for their own
// days; managers may file for anyone.
func (h *correctionHandlerImpl) Create(w http.ResponseWriter, r *http.Request) {
	var req correction.CreateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		response.BadRequest(w, "Invalid request format", nil)
		return
	}

	actor, _ := middleware.ActorFromContext(r.Context())
	req.RequestedBy = actor
	if !middleware.IsManager(r.Context()) {
		employeeID := strings.TrimSpace(req.EmployeeID)
		if employeeID != "" && employeeID != actor {
			response.Forbidden(w, "Corrections can only be requested for your own attendance")
			return
		}
		req.EmployeeID = actor
	}

	if err := req.Validate(); err != nil {
		response.HandleError(w, err)
		return
	}

	result, err := h.correctionService.Create(r.Context(), req)
	if err != nil {
		response.HandleError(w, err)
		return
	}
	response.Created(w, "Correction requested", result)
}

// Review implements CorrectionHandler.
func (h *correctionHandlerImpl) Review(w http.ResponseWriter, r *http.Request) {
	var req correction.ReviewRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil && !errors.Is(err, io.EOF) {
		response.BadRequest(w, "Invalid request format", nil)
		return
	}
	req.ID = chi.URLParam(r, "id")
	req.Action = correction.Action(chi.URLParam(r, "action"))
	req.Actor, _ = middleware.ActorFromContext(r.Context())

	if err := req.Validate(); err != nil {
		response.HandleError(w, err)
		return
	}

	result, err := h.correctionService.Review(r.Context(), req)
	if err != nil {
		response.HandleError(w, err)
		return
	}
	response.SuccessWithMessage(w, "Correction reviewed", result)
}

// List implements CorrectionHandler.
func (h *correctionHandlerImpl) List(w http.ResponseWriter, r *http.Request) {
	var errs validator.ValidationErrors
	filter := correction.Filter{EmployeeID: r.URL.Query().Get("employee_id")}
	filter.DateFrom, filter.DateTo = queryDateRange(r, &errs)
	if s := r.URL.Query().Get("state"); s != "" {
		state := correction.State(s)
		if !state.IsValid() {
			errs = append(errs, validator.ValidationError{Field: "state", Message: "state must be one of pending, approved, rejected"})
		}
		filter.State = &state
	}
	if len(errs) > 0 {
		response.HandleError(w, errs)
		return
	}

	requests, err := h.correctionService.List(r.Context(), filter)
	if err != nil {
		response.HandleError(w, err)
		return
	}
	response.SuccessWithMeta(w, requests, &response.Meta{TotalItems: len(requests)})
}
