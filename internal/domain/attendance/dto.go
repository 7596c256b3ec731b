package attendance

import (
	"strings"
	"time"

	"github.com/cmlabs-hris/attendance-sync/internal/pkg/validator"
	"github.com/cmlabs-hris/attendance-sync/internal/pkg/workflow"
)

// MaxBulkRecords caps a single bulk import request.
const MaxBulkRecords = 1000

// DefaultDateTimeLayouts are tried in order when a datetime carries no explicit layout.
var DefaultDateTimeLayouts = []string{
	"2006-01-02 15:04:05",
	"2006-01-02 15:04",
	"2006-01-02T15:04:05",
	"2006/01/02 15:04:05",
	"02/01/2006 15:04:05",
	"02/01/2006 15:04",
}

// ParseDateTime parses value with the first matching layout in loc.
// RFC3339 values carry their own offset and are accepted regardless of layouts.
func ParseDateTime(value string, layouts []string, loc *time.Location) (time.Time, bool) {
	value = strings.TrimSpace(value)
	if value == "" {
		return time.Time{}, false
	}
	if t, ok := validator.IsValidDateTime(value); ok {
		return t, true
	}
	if loc == nil {
		loc = time.UTC
	}
	if len(layouts) == 0 {
		layouts = DefaultDateTimeLayouts
	}
	for _, layout := range layouts {
		if t, err := time.ParseInLocation(layout, value, loc); err == nil {
			return t, true
		}
	}
	return time.Time{}, false
}

// ========================================
// IMPORT DTOs
// ========================================

// ImportRecordRequest is one employee-day pair sent through the inbound API.
type ImportRecordRequest struct {
	EmployeeCode string `json:"employee_code"`
	CheckIn      string `json:"check_in"`
	CheckOut     string `json:"check_out"`
}

func (r *ImportRecordRequest) Validate() error {
	var errs validator.ValidationErrors

	if validator.IsEmpty(r.EmployeeCode) {
		errs = append(errs, validator.ValidationError{
			Field:   "employee_code",
			Message: "employee_code is required",
		})
	}

	checkIn, checkOut, timeErrs := r.parseTimes(nil, time.UTC)
	errs = append(errs, timeErrs...)

	if checkIn != nil && checkOut != nil && !checkOut.After(*checkIn) {
		errs = append(errs, validator.ValidationError{
			Field:   "check_out",
			Message: "check_out must be after check_in",
		})
	}

	if len(errs) > 0 {
		return errs
	}
	return nil
}

// Punches converts the request into raw punches in loc.
// Validate must have succeeded first.
func (r *ImportRecordRequest) Punches(layouts []string, loc *time.Location, source, batchID string) ([]RawPunch, error) {
	checkIn, checkOut, errs := r.parseTimes(layouts, loc)
	if len(errs) > 0 {
		return nil, errs
	}

	code := strings.TrimSpace(r.EmployeeCode)
	punches := []RawPunch{{
		EmployeeIdentifier: code,
		Timestamp:          *checkIn,
		Direction:          DirectionIn,
		Source:             source,
		BatchID:            batchID,
	}}
	if checkOut != nil {
		punches = append(punches, RawPunch{
			EmployeeIdentifier: code,
			Timestamp:          *checkOut,
			Direction:          DirectionOut,
			Source:             source,
			BatchID:            batchID,
		})
	}
	return punches, nil
}

func (r *ImportRecordRequest) parseTimes(layouts []string, loc *time.Location) (*time.Time, *time.Time, validator.ValidationErrors) {
	var errs validator.ValidationErrors
	var checkIn, checkOut *time.Time

	if validator.IsEmpty(r.CheckIn) {
		errs = append(errs, validator.ValidationError{
			Field:   "check_in",
			Message: "check_in is required",
		})
	} else if t, ok := ParseDateTime(r.CheckIn, layouts, loc); ok {
		checkIn = &t
	} else {
		errs = append(errs, validator.ValidationError{
			Field:   "check_in",
			Message: "check_in must be a datetime like YYYY-MM-DD HH:MM:SS",
		})
	}

	if !validator.IsEmpty(r.CheckOut) {
		if t, ok := ParseDateTime(r.CheckOut, layouts, loc); ok {
			checkOut = &t
		} else {
			errs = append(errs, validator.ValidationError{
				Field:   "check_out",
				Message: "check_out must be a datetime like YYYY-MM-DD HH:MM:SS",
			})
		}
	}

	return checkIn, checkOut, errs
}

type ImportRecordResponse struct {
	EmployeeCode string                             `json:"employee_code"`
	Stored       int                                `json:"stored"`
	Duplicates   int                                `json:"duplicates"`
	Days         []ClassifiedDayResponse            `json:"days"`
	Frozen       []*workflow.ReconciliationConflict `json:"frozen,omitempty"`
}

type BulkImportRequest struct {
	Records []ImportRecordRequest `json:"records"`
}

func (r *BulkImportRequest) Validate() error {
	var errs validator.ValidationErrors

	if len(r.Records) == 0 {
		errs = append(errs, validator.ValidationError{
			Field:   "records",
			Message: "records must not be empty",
		})
	}
	if len(r.Records) > MaxBulkRecords {
		errs = append(errs, validator.ValidationError{
			Field:   "records",
			Message: "records must not exceed " + validator.Itoa(MaxBulkRecords) + " items",
		})
	}

	if len(errs) > 0 {
		return errs
	}
	return nil
}

// BulkImportItemResult reports one element of a bulk import by its 0-based index.
type BulkImportItemResult struct {
	Index        int               `json:"index"`
	EmployeeCode string            `json:"employee_code"`
	Success      bool              `json:"success"`
	Error        string            `json:"error,omitempty"`
	Errors       map[string]string `json:"errors,omitempty"`
}

type BulkImportResponse struct {
	Total     int                                `json:"total"`
	Succeeded int                                `json:"succeeded"`
	Failed    int                                `json:"failed"`
	Items     []BulkImportItemResult             `json:"items"`
	Frozen    []*workflow.ReconciliationConflict `json:"frozen,omitempty"`
}

// Profile names an import file layout.
type Profile string

const (
	ProfileStandard     Profile = "standard"
	ProfileDeviceExport Profile = "device-export"
	ProfileCustom       Profile = "custom"
)

// IsValid reports whether p is a known profile.
func (p Profile) IsValid() bool {
	switch p {
	case ProfileStandard, ProfileDeviceExport, ProfileCustom:
		return true
	}
	return false
}

// CustomColumns maps fields to 1-based column indices for the custom profile.
// Either DateTime or CheckIn must be set.
type CustomColumns struct {
	Employee  int `json:"employee_column"`
	DateTime  int `json:"datetime_column"`
	Direction int `json:"direction_column"`
	CheckIn   int `json:"check_in_column"`
	CheckOut  int `json:"check_out_column"`
}

type ImportFileRequest struct {
	FileName     string
	Data         []byte
	Profile      Profile
	Delimiter    string
	DateFormat   string
	HasHeader    bool
	DateFrom     string
	DateTo       string
	ValidateOnly bool
	Columns      CustomColumns
}

func (r *ImportFileRequest) Validate() error {
	var errs validator.ValidationErrors

	if len(r.Data) == 0 {
		errs = append(errs, validator.ValidationError{
			Field:   "file",
			Message: "file is required",
		})
	}

	ext := fileExt(r.FileName)
	if !validator.IsInSlice(ext, []string{".csv", ".txt", ".xlsx", ".xls"}) {
		errs = append(errs, validator.ValidationError{
			Field:   "file",
			Message: "invalid file type: only csv, txt, xlsx, xls allowed",
		})
	}

	if !r.Profile.IsValid() {
		errs = append(errs, validator.ValidationError{
			Field:   "profile",
			Message: "profile must be one of standard, device-export, custom",
		})
	}

	if r.Profile == ProfileCustom {
		if r.Columns.Employee < 1 {
			errs = append(errs, validator.ValidationError{
				Field:   "employee_column",
				Message: "employee_column is required for the custom profile",
			})
		}
		if r.Columns.DateTime < 1 && r.Columns.CheckIn < 1 {
			errs = append(errs, validator.ValidationError{
				Field:   "datetime_column",
				Message: "datetime_column or check_in_column is required for the custom profile",
			})
		}
	}

	if r.Delimiter != "" && !validator.IsInSlice(r.Delimiter, []string{",", ";", "\t", "tab", "|"}) {
		errs = append(errs, validator.ValidationError{
			Field:   "delimiter",
			Message: "delimiter must be one of , ; tab |",
		})
	}

	var from, to time.Time
	var fromOK, toOK bool
	if r.DateFrom != "" {
		if from, fromOK = validator.IsValidDate(r.DateFrom); !fromOK {
			errs = append(errs, validator.ValidationError{
				Field:   "date_from",
				Message: "date_from must be in YYYY-MM-DD format",
			})
		}
	}
	if r.DateTo != "" {
		if to, toOK = validator.IsValidDate(r.DateTo); !toOK {
			errs = append(errs, validator.ValidationError{
				Field:   "date_to",
				Message: "date_to must be in YYYY-MM-DD format",
			})
		}
	}
	if fromOK && toOK && from.After(to) {
		errs = append(errs, validator.ValidationError{
			Field:   "date_to",
			Message: ErrInvalidDateRange.Error(),
		})
	}

	if len(errs) > 0 {
		return errs
	}
	return nil
}

// Options returns the parse settings of the request for storage with its batch.
func (r *ImportFileRequest) Options() ImportOptions {
	return ImportOptions{
		Profile:    r.Profile,
		Delimiter:  r.Delimiter,
		DateFormat: r.DateFormat,
		HasHeader:  r.HasHeader,
		DateFrom:   r.DateFrom,
		DateTo:     r.DateTo,
		Columns:    r.Columns,
	}
}

// Ext returns the lower-cased extension of the uploaded file name.
func (r *ImportFileRequest) Ext() string {
	return fileExt(r.FileName)
}

func fileExt(name string) string {
	idx := strings.LastIndex(name, ".")
	if idx < 0 {
		return ""
	}
	return strings.ToLower(name[idx:])
}

type ImportFileResponse struct {
	BatchID      string                             `json:"batch_id"`
	Profile      Profile                            `json:"profile"`
	ValidateOnly bool                               `json:"validate_only"`
	TotalRows    int                                `json:"total_rows"`
	Imported     int                                `json:"imported"`
	Duplicates   int                                `json:"duplicates"`
	Skipped      int                                `json:"skipped"`
	Failed       int                                `json:"failed"`
	Errors       []*ValidationError                 `json:"errors"`
	Rejected     []RejectedPunch                    `json:"rejected,omitempty"`
	Frozen       []*workflow.ReconciliationConflict `json:"frozen,omitempty"`
}

// ========================================
// PIPELINE DTOs
// ========================================

// IngestResult summarises one pass of punches through the pipeline.
type IngestResult struct {
	Received   int
	Stored     int
	Duplicates int
	Rejected   []RejectedPunch
	Segments   []DaySegment
	Days       []ClassifiedDay
	Frozen     []*workflow.ReconciliationConflict
}

type ReconcileRequest struct {
	DateFrom string `json:"date_from"`
	DateTo   string `json:"date_to"`
}

func (r *ReconcileRequest) Validate() error {
	var errs validator.ValidationErrors

	from, fromOK := validator.IsValidDate(r.DateFrom)
	if !fromOK {
		errs = append(errs, validator.ValidationError{
			Field:   "date_from",
			Message: "date_from must be in YYYY-MM-DD format",
		})
	}
	to, toOK := validator.IsValidDate(r.DateTo)
	if !toOK {
		errs = append(errs, validator.ValidationError{
			Field:   "date_to",
			Message: "date_to must be in YYYY-MM-DD format",
		})
	}
	if fromOK && toOK && from.After(to) {
		errs = append(errs, validator.ValidationError{
			Field:   "date_to",
			Message: ErrInvalidDateRange.Error(),
		})
	}

	if len(errs) > 0 {
		return errs
	}
	return nil
}

type DayFilter struct {
	EmployeeID string
	DateFrom   time.Time
	DateTo     time.Time
	Status     *Status
}

type ClassifiedDayResponse struct {
	EmployeeID      string  `json:"employee_id"`
	Date            string  `json:"date"`
	Status          Status  `json:"status"`
	FirstCheckIn    *string `json:"first_check_in"`
	LastCheckOut    *string `json:"last_check_out"`
	WorkedMinutes   int     `json:"worked_minutes"`
	LateMinutes     int     `json:"late_minutes"`
	EarlyMinutes    int     `json:"early_minutes"`
	OvertimeMinutes int     `json:"overtime_minutes"`
	SegmentCount    int     `json:"segment_count"`
}

// NewClassifiedDayResponse renders a classified day for API output.
func NewClassifiedDayResponse(d ClassifiedDay) ClassifiedDayResponse {
	resp := ClassifiedDayResponse{
		EmployeeID:      d.EmployeeID,
		Date:            d.Date.Format(DateLayout),
		Status:          d.Status,
		WorkedMinutes:   d.WorkedMinutes,
		LateMinutes:     d.LateMinutes,
		EarlyMinutes:    d.EarlyMinutes,
		OvertimeMinutes: d.OvertimeMinutes,
		SegmentCount:    d.SegmentCount,
	}
	if d.FirstCheckIn != nil {
		s := d.FirstCheckIn.Format(time.RFC3339)
		resp.FirstCheckIn = &s
	}
	if d.LastCheckOut != nil {
		s := d.LastCheckOut.Format(time.RFC3339)
		resp.LastCheckOut = &s
	}
	return resp
}

// ========================================
// REJECTED PUNCH DTOs
// ========================================

// MaxReprocessRejected caps how many stored rejections one reprocess pass loads.
const MaxReprocessRejected = 5000

type RejectedFilter struct {
	BatchID string
	IDs     []int64
	Limit   int
}

type RejectedPunchResponse struct {
	ID                 int64   `json:"id"`
	EmployeeIdentifier string  `json:"employee_identifier"`
	PunchedAt          *string `json:"punched_at"`
	Direction          string  `json:"direction"`
	Source             string  `json:"source"`
	BatchID            string  `json:"batch_id"`
	Reason             string  `json:"reason"`
	CreatedAt          string  `json:"created_at"`
}

// NewRejectedPunchResponse renders a stored rejection for API output.
func NewRejectedPunchResponse(r RejectedPunch) RejectedPunchResponse {
	resp := RejectedPunchResponse{
		ID:                 r.ID,
		EmployeeIdentifier: r.Punch.EmployeeIdentifier,
		Direction:          string(r.Punch.Direction),
		Source:             r.Punch.Source,
		BatchID:            r.Punch.BatchID,
		Reason:             r.Reason,
		CreatedAt:          r.CreatedAt.Format(time.RFC3339),
	}
	if !r.Punch.Timestamp.IsZero() {
		s := r.Punch.Timestamp.Format(time.RFC3339)
		resp.PunchedAt = &s
	}
	return resp
}

// ReprocessRejectedRequest selects stored rejections to retry. An empty
// request retries the oldest MaxReprocessRejected rejections.
type ReprocessRejectedRequest struct {
	BatchID string  `json:"batch_id"`
	IDs     []int64 `json:"ids"`
}

func (r *ReprocessRejectedRequest) Validate() error {
	var errs validator.ValidationErrors

	if len(r.IDs) > MaxReprocessRejected {
		errs = append(errs, validator.ValidationError{
			Field:   "ids",
			Message: "ids must not exceed " + validator.Itoa(MaxReprocessRejected) + " items",
		})
	}
	for _, id := range r.IDs {
		if id < 1 {
			errs = append(errs, validator.ValidationError{
				Field:   "ids",
				Message: "ids must be positive",
			})
			break
		}
	}

	if len(errs) > 0 {
		return errs
	}
	return nil
}

type ReprocessRejectedResponse struct {
	Total         int                                `json:"total"`
	Reprocessed   int                                `json:"reprocessed"`
	StillRejected int                                `json:"still_rejected"`
	Stored        int                                `json:"stored"`
	Duplicates    int                                `json:"duplicates"`
	Days          []ClassifiedDayResponse            `json:"days"`
	Frozen        []*workflow.ReconciliationConflict `json:"frozen,omitempty"`
}

// ========================================
// IMPORT BATCH DTOs
// ========================================

type RetryImportResponse struct {
	BatchID    string                             `json:"batch_id"`
	Attempts   int                                `json:"attempts"`
	TotalRows  int                                `json:"total_rows"`
	Imported   int                                `json:"imported"`
	Duplicates int                                `json:"duplicates"`
	Failed     int                                `json:"failed"`
	Errors     []*ValidationError                 `json:"errors"`
	Rejected   []RejectedPunch                    `json:"rejected,omitempty"`
	Frozen     []*workflow.ReconciliationConflict `json:"frozen,omitempty"`
}
