package attendance

import (
	"errors"
	"fmt"
)

// Attendance domain errors
var (
	ErrUnknownEmployee     = errors.New("unknown employee identifier")
	ErrUnknownProfile      = errors.New("unknown import format profile")
	ErrUnsupportedFile     = errors.New("unsupported import file type")
	ErrEmptyFile           = errors.New("import file is empty")
	ErrTooManyRecords      = errors.New("too many records in bulk import")
	ErrInvalidDateRange    = errors.New("date_from must not be after date_to")
	ErrMissingHeaderField  = errors.New("required column missing from header")
	ErrImportBatchNotFound = errors.New("import batch not found")
	ErrImportNotArchived   = errors.New("import file was not archived")
)

// ValidationError is a row-level import failure. Row is 1-based and counts the
// header row when the file has one, so it matches what a spreadsheet shows.
type ValidationError struct {
	Row     int    `json:"row"`
	Field   string `json:"field,omitempty"`
	Value   string `json:"value,omitempty"`
	Message string `json:"message"`
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return fmt.Sprintf("row %d: %s", e.Row, e.Message)
	}
	return fmt.Sprintf("row %d: %s: %s", e.Row, e.Field, e.Message)
}
