package http

import (
	"net/http"
	"time"

	"github.com/cmlabs-hris/attendance-sync/internal/pkg/validator"
)

// queryDateRange reads optional date_from and date_to query parameters.
func queryDateRange(r *http.Request, errs *validator.ValidationErrors) (from, to *time.Time) {
	q := r.URL.Query()
	if v := q.Get("date_from"); v != "" {
		if d, ok := validator.IsValidDate(v); ok {
			from = &d
		} else {
			*errs = append(*errs, validator.ValidationError{Field: "date_from", Message: "date_from must be in YYYY-MM-DD format"})
		}
	}
	if v := q.Get("date_to"); v != "" {
		if d, ok := validator.IsValidDate(v); ok {
			to = &d
		} else {
			*errs = append(*errs, validator.ValidationError{Field: "date_to", Message: "date_to must be in YYYY-MM-DD format"})
		}
	}
	if from != nil && to != nil && from.After(*to) {
		*errs = append(*errs, validator.ValidationError{Field: "date_from", Message: "date_from must not be after date_to"})
	}
	return from, to
}
