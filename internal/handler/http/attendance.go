package http

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"

	"github.com/cmlabs-hris/attendance-sync/internal/domain/attendance"
	"github.com/cmlabs-hris/attendance-sync/internal/handler/http/response"
	"github.com/cmlabs-hris/attendance-sync/internal/pkg/validator"
	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"
)

type AttendanceHandler interface {
	Import(w http.ResponseWriter, r *http.Request)
	BulkImport(w http.ResponseWriter, r *http.Request)
	ImportFile(w http.ResponseWriter, r *http.Request)
	ListDays(w http.ResponseWriter, r *http.Request)
	Reconcile(w http.ResponseWriter, r *http.Request)
	ListRejected(w http.ResponseWriter, r *http.Request)
	ReprocessRejected(w http.ResponseWriter, r *http.Request)
	RetryImport(w http.ResponseWriter, r *http.Request)
}

type attendanceHandlerImpl struct {
	attendanceService attendance.AttendanceService
	maxFileSize       int64
	logger            *zap.Logger
}

func NewAttendanceHandler(attendanceService attendance.AttendanceService, maxFileSize int64, logger *zap.Logger) AttendanceHandler {
	if maxFileSize <= 0 {
		maxFileSize = 10 << 20
	}
	return &attendanceHandlerImpl{
		attendanceService: attendanceService,
		maxFileSize:       maxFileSize,
		logger:            logger,
	}
}

// Import implements AttendanceHandler.
func (h *attendanceHandlerImpl) Import(w http.ResponseWriter, r *http.Request) {
	var req attendance.ImportRecordRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		response.BadRequest(w, "Invalid request format", nil)
		return
	}

	if err := req.Validate(); err != nil {
		response.HandleError(w, err)
		return
	}

	result, err := h.attendanceService.ImportRecord(r.Context(), req)
	if err != nil {
		response.HandleError(w, err)
		return
	}

	response.Created(w, "Attendance imported", result)
}

// BulkImport implements AttendanceHandler. Bad items are reported per item
// and never fail the whole request.
func (h *attendanceHandlerImpl) BulkImport(w http.ResponseWriter, r *http.Request) {
	var req attendance.BulkImportRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		response.BadRequest(w, "Invalid request format", nil)
		return
	}

	if err := req.Validate(); err != nil {
		response.HandleError(w, err)
		return
	}

	result, err := h.attendanceService.BulkImport(r.Context(), req)
	if err != nil {
		response.HandleError(w, err)
		return
	}

	response.SuccessWithMessage(w, "Bulk import processed", result)
}

// ImportFile implements AttendanceHandler.
func (h *attendanceHandlerImpl) ImportFile(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, h.maxFileSize+1<<20)
	if err := r.ParseMultipartForm(h.maxFileSize); err != nil {
		h.logger.Warn("Failed to parse multipart form", zap.Error(err))
		response.BadRequest(w, "Failed to parse form data", nil)
		return
	}

	file, fileHeader, err := r.FormFile("file")
	if err != nil {
		if err == http.ErrMissingFile {
			response.BadRequest(w, "Field 'file' is required", nil)
			return
		}
		response.BadRequest(w, "Invalid file upload", nil)
		return
	}
	defer file.Close()

	if fileHeader.Size > h.maxFileSize {
		response.BadRequest(w, "File exceeds the maximum upload size", nil)
		return
	}

	data, err := io.ReadAll(file)
	if err != nil {
		response.BadRequest(w, "Invalid file upload", nil)
		return
	}

	req := attendance.ImportFileRequest{
		FileName:   fileHeader.Filename,
		Data:       data,
		Profile:    attendance.Profile(r.FormValue("profile")),
		Delimiter:  r.FormValue("delimiter"),
		DateFormat: r.FormValue("date_format"),
		DateFrom:   r.FormValue("date_from"),
		DateTo:     r.FormValue("date_to"),
	}
	if req.Profile == "" {
		req.Profile = attendance.ProfileStandard
	}

	var errs validator.ValidationErrors
	req.HasHeader = formBool(r, "has_header", true, &errs)
	req.ValidateOnly = formBool(r, "validate_only", false, &errs)
	req.Columns = attendance.CustomColumns{
		Employee:  formInt(r, "employee_column", &errs),
		DateTime:  formInt(r, "datetime_column", &errs),
		Direction: formInt(r, "direction_column", &errs),
		CheckIn:   formInt(r, "check_in_column", &errs),
		CheckOut:  formInt(r, "check_out_column", &errs),
	}
	if len(errs) > 0 {
		response.HandleError(w, errs)
		return
	}

	if err := req.Validate(); err != nil {
		response.HandleError(w, err)
		return
	}

	result, err := h.attendanceService.ImportFile(r.Context(), req)
	if err != nil {
		response.HandleError(w, err)
		return
	}

	message := "File imported"
	if result.ValidateOnly {
		message = "File validated"
	}
	response.SuccessWithMessage(w, message, result)
}

// ListDays implements AttendanceHandler.
func (h *attendanceHandlerImpl) ListDays(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	var errs validator.ValidationErrors

	filter := attendance.DayFilter{EmployeeID: q.Get("employee_id")}
	from, to := queryDateRange(r, &errs)
	if from != nil {
		filter.DateFrom = *from
	}
	if to != nil {
		filter.DateTo = *to
	}
	if s := q.Get("status"); s != "" {
		status := attendance.Status(s)
		if !status.IsValid() {
			errs = append(errs, validator.ValidationError{Field: "status", Message: "status is not a known day status"})
		}
		filter.Status = &status
	}
	if len(errs) > 0 {
		response.HandleError(w, errs)
		return
	}

	days, err := h.attendanceService.ListDays(r.Context(), filter)
	if err != nil {
		response.HandleError(w, err)
		return
	}

	response.SuccessWithMeta(w, days, &response.Meta{TotalItems: len(days)})
}

type reconcileResponse struct {
	Days   []attendance.ClassifiedDayResponse `json:"days"`
	Frozen any                                `json:"frozen,omitempty"`
}

func newReconcileResponse(res attendance.IngestResult) reconcileResponse {
	out := reconcileResponse{Days: make([]attendance.ClassifiedDayResponse, 0, len(res.Days))}
	for _, d := range res.Days {
		out.Days = append(out.Days, attendance.NewClassifiedDayResponse(d))
	}
	if len(res.Frozen) > 0 {
		out.Frozen = res.Frozen
	}
	return out
}

// Reconcile implements AttendanceHandler.
func (h *attendanceHandlerImpl) Reconcile(w http.ResponseWriter, r *http.Request) {
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

	response.SuccessWithMessage(w, "Days reconciled", newReconcileResponse(result))
}

// ListRejected implements AttendanceHandler.
func (h *attendanceHandlerImpl) ListRejected(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	filter := attendance.RejectedFilter{BatchID: q.Get("batch_id"), Limit: attendance.MaxReprocessRejected}
	if v := q.Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 || n > attendance.MaxReprocessRejected {
			response.HandleError(w, validator.ValidationErrors{{
				Field:   "limit",
				Message: "limit must be between 1 and " + validator.Itoa(attendance.MaxReprocessRejected),
			}})
			return
		}
		filter.Limit = n
	}

	rejected, err := h.attendanceService.ListRejected(r.Context(), filter)
	if err != nil {
		response.HandleError(w, err)
		return
	}
	response.SuccessWithMeta(w, rejected, &response.Meta{TotalItems: len(rejected)})
}

// ReprocessRejected implements AttendanceHandler. An empty body retries the
// oldest stored rejections.
func (h *attendanceHandlerImpl) ReprocessRejected(w http.ResponseWriter, r *http.Request) {
	var req attendance.ReprocessRejectedRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil && !errors.Is(err, io.EOF) {
		response.BadRequest(w, "Invalid request format", nil)
		return
	}

	if err := req.Validate(); err != nil {
		response.HandleError(w, err)
		return
	}

	result, err := h.attendanceService.ReprocessRejected(r.Context(), req)
	if err != nil {
		response.HandleError(w, err)
		return
	}
	response.SuccessWithMessage(w, "Rejected punches reprocessed", result)
}

// RetryImport implements AttendanceHandler.
func (h *attendanceHandlerImpl) RetryImport(w http.ResponseWriter, r *http.Request) {
	result, err := h.attendanceService.RetryImport(r.Context(), chi.URLParam(r, "batchID"))
	if err != nil {
		response.HandleError(w, err)
		return
	}
	response.SuccessWithMessage(w, "Import retried", result)
}

func formBool(r *http.Request, key string, fallback bool, errs *validator.ValidationErrors) bool {
	v := r.FormValue(key)
	if v == "" {
		return fallback
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		*errs = append(*errs, validator.ValidationError{Field: key, Message: key + " must be true or false"})
		return fallback
	}
	return b
}

func formInt(r *http.Request, key string, errs *validator.ValidationErrors) int {
	v := r.FormValue(key)
	if v == "" {
		return 0
	}
	if !validator.IsNumeric(v) {
		*errs = append(*errs, validator.ValidationError{Field: key, Message: key + " must be a column number"})
		return 0
	}
	n, _ := strconv.Atoi(v)
	return n
}
