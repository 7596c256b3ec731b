package overtime

import (
	"time"

	"github.com/cmlabs-hris/attendance-sync/internal/pkg/validator"
	"github.com/cmlabs-hris/attendance-sync/internal/pkg/workflow"
)

type Filter struct {
	EmployeeID string
	DateFrom   *time.Time
	DateTo     *time.Time
	State      *State
}

type TransitionRequest struct {
	ID     string `json:"-"`
	Action Action `json:"-"`
	Actor  string `json:"-"`
	Note   string `json:"note"`
}

func (r *TransitionRequest) Validate() error {
	var errs validator.ValidationErrors

	if validator.IsEmpty(r.ID) {
		errs = append(errs, validator.ValidationError{
			Field:   "id",
			Message: "id is required",
		})
	}
	if _, ok := r.Action.Target(); !ok {
		errs = append(errs, validator.ValidationError{
			Field:   "action",
			Message: "action must be one of submit, approve, reject, reset",
		})
	}

	if len(errs) > 0 {
		return errs
	}
	return nil
}

// ComputeResult is the outcome of the overtime engine over a set of days.
type ComputeResult struct {
	Upserts   []Record
	Deletes   []Record
	Unchanged []Record
	Frozen    []*workflow.ReconciliationConflict
}

type RecordResponse struct {
	ID            string       `json:"id"`
	EmployeeID    string       `json:"employee_id"`
	Date          string       `json:"date"`
	RateCategory  RateCategory `json:"rate_category"`
	Minutes       int          `json:"minutes"`
	Hours         string       `json:"hours"`
	Multiplier    string       `json:"multiplier"`
	WeightedHours string       `json:"weighted_hours"`
	State         State        `json:"state"`
	ReviewedBy    *string      `json:"reviewed_by"`
	ReviewedAt    *string      `json:"reviewed_at"`
}

// NewRecordResponse renders a record for API output.
func NewRecordResponse(r Record) RecordResponse {
	resp := RecordResponse{
		ID:            r.ID,
		EmployeeID:    r.EmployeeID,
		Date:          r.Date.Format("2006-01-02"),
		RateCategory:  r.RateCategory,
		Minutes:       r.Minutes,
		Hours:         r.Hours.StringFixed(2),
		Multiplier:    r.Multiplier.StringFixed(2),
		WeightedHours: r.WeightedHours.StringFixed(2),
		State:         r.State,
		ReviewedBy:    r.ReviewedBy,
	}
	if r.ReviewedAt != nil {
		s := r.ReviewedAt.Format(time.RFC3339)
		resp.ReviewedAt = &s
	}
	return resp
}
