package leave

import (
	"time"

	"github.com/cmlabs-hris/attendance-sync/internal/pkg/validator"
	"github.com/cmlabs-hris/attendance-sync/internal/pkg/workflow"
)

type DeductionFilter struct {
	EmployeeID string
	DateFrom   *time.Time
	DateTo     *time.Time
	State      *DeductionState
}

// DeductionAction is a reviewer action on a pending deduction.
type DeductionAction string

const (
	ActionConfirm DeductionAction = "confirm"
	ActionReject  DeductionAction = "reject"
)

type ReviewDeductionRequest struct {
	ID     string          `json:"-"`
	Action DeductionAction `json:"-"`
	Actor  string          `json:"-"`
}

func (r *ReviewDeductionRequest) Validate() error {
	var errs validator.ValidationErrors

	if validator.IsEmpty(r.ID) {
		errs = append(errs, validator.ValidationError{
			Field:   "id",
			Message: "id is required",
		})
	}
	if r.Action != ActionConfirm && r.Action != ActionReject {
		errs = append(errs, validator.ValidationError{
			Field:   "action",
			Message: "action must be confirm or reject",
		})
	}

	if len(errs) > 0 {
		return errs
	}
	return nil
}

// ComputeResult is the outcome of the deduction engine over a set of days.
type ComputeResult struct {
	Upserts   []Deduction
	Deletes   []Deduction
	Unchanged []Deduction
	Frozen    []*workflow.ReconciliationConflict
}

type DeductionResponse struct {
	ID              string         `json:"id"`
	EmployeeID      string         `json:"employee_id"`
	Date            string         `json:"date"`
	DeductionType   DeductionType  `json:"deduction_type"`
	LateMinutes     int            `json:"late_minutes"`
	EarlyMinutes    int            `json:"early_minutes"`
	MinutesDeducted int            `json:"minutes_deducted"`
	Units           string         `json:"units"`
	LeaveType       string         `json:"leave_type"`
	State           DeductionState `json:"state"`
	ReviewedBy      *string        `json:"reviewed_by"`
	ReviewedAt      *string        `json:"reviewed_at"`
}

// NewDeductionResponse renders a deduction for API output.
func NewDeductionResponse(d Deduction) DeductionResponse {
	resp := DeductionResponse{
		ID:              d.ID,
		EmployeeID:      d.EmployeeID,
		Date:            d.Date.Format("2006-01-02"),
		DeductionType:   d.DeductionType,
		LateMinutes:     d.LateMinutes,
		EarlyMinutes:    d.EarlyMinutes,
		MinutesDeducted: d.MinutesDeducted,
		Units:           d.Units.StringFixed(4),
		LeaveType:       d.LeaveType,
		State:           d.State,
		ReviewedBy:      d.ReviewedBy,
	}
	if d.ReviewedAt != nil {
		s := d.ReviewedAt.Format(time.RFC3339)
		resp.ReviewedAt = &s
	}
	return resp
}
