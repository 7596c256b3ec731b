package correction

import (
	"strings"
	"time"

	"github.com/cmlabs-hris/attendance-sync/internal/pkg/validator"
)

type Filter struct {
	EmployeeID string
	DateFrom   *time.Time
	DateTo     *time.Time
	State      *State
}

type CreateRequest struct {
	EmployeeID  string `json:"employee_id"`
	Date        string `json:"date"`
	Kind        Kind   `json:"kind"`
	PunchTime   string `json:"punch_time"`
	Note        string `json:"note"`
	RequestedBy string `json:"-"`
}

func (r *CreateRequest) Validate() error {
	var errs validator.ValidationErrors

	if validator.IsEmpty(r.EmployeeID) {
		errs = append(errs, validator.ValidationError{
			Field:   "employee_id",
			Message: "employee_id is required",
		})
	}
	if _, ok := validator.IsValidDate(r.Date); !ok {
		errs = append(errs, validator.ValidationError{
			Field:   "date",
			Message: "date must be in YYYY-MM-DD format",
		})
	}
	if !r.Kind.IsValid() {
		errs = append(errs, validator.ValidationError{
			Field:   "kind",
			Message: "kind must be one of missing_checkin, missing_checkout",
		})
	}
	if r.PunchTime != "" {
		if _, ok := validator.IsValidDateTime(r.PunchTime); !ok {
			errs = append(errs, validator.ValidationError{
				Field:   "punch_time",
				Message: "punch_time must be an RFC3339 datetime",
			})
		}
	}
	if validator.IsEmpty(r.Note) {
		errs = append(errs, validator.ValidationError{
			Field:   "note",
			Message: "note is required",
		})
	}
	if validator.IsEmpty(r.RequestedBy) {
		errs = append(errs, validator.ValidationError{
			Field:   "requested_by",
			Message: "requested_by is required",
		})
	}

	if len(errs) > 0 {
		return errs
	}
	return nil
}

// ReviewRequest carries a manager decision. PunchTime overrides the time the
// requester supplied.
type ReviewRequest struct {
	ID        string `json:"-"`
	Action    Action `json:"-"`
	Actor     string `json:"-"`
	Note      string `json:"note"`
	PunchTime string `json:"punch_time"`
}

func (r *ReviewRequest) Validate() error {
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
			Message: "action must be one of approve, reject",
		})
	}
	if r.PunchTime != "" {
		if r.Action != ActionApprove {
			errs = append(errs, validator.ValidationError{
				Field:   "punch_time",
				Message: "punch_time is only accepted when approving",
			})
		} else if _, ok := validator.IsValidDateTime(r.PunchTime); !ok {
			errs = append(errs, validator.ValidationError{
				Field:   "punch_time",
				Message: "punch_time must be an RFC3339 datetime",
			})
		}
	}

	if len(errs) > 0 {
		return errs
	}
	return nil
}

type RequestResponse struct {
	ID          string  `json:"id"`
	EmployeeID  string  `json:"employee_id"`
	Date        string  `json:"date"`
	Kind        Kind    `json:"kind"`
	State       State   `json:"state"`
	PunchTime   *string `json:"punch_time"`
	Note        string  `json:"note"`
	RequestedBy string  `json:"requested_by"`
	ReviewedBy  *string `json:"reviewed_by"`
	ReviewedAt  *string `json:"reviewed_at"`
	ReviewNote  string  `json:"review_note,omitempty"`
	CreatedAt   string  `json:"created_at"`
}

// NewRequestResponse renders a request for API output.
func NewRequestResponse(r Request) RequestResponse {
	resp := RequestResponse{
		ID:          r.ID,
		EmployeeID:  r.EmployeeID,
		Date:        r.Date.Format("2006-01-02"),
		Kind:        r.Kind,
		State:       r.State,
		Note:        r.Note,
		RequestedBy: r.RequestedBy,
		ReviewedBy:  r.ReviewedBy,
		ReviewNote:  strings.TrimSpace(r.ReviewNote),
		CreatedAt:   r.CreatedAt.Format(time.RFC3339),
	}
	if r.PunchTime != nil {
		s := r.PunchTime.Format(time.RFC3339)
		resp.PunchTime = &s
	}
	if r.ReviewedAt != nil {
		s := r.ReviewedAt.Format(time.RFC3339)
		resp.ReviewedAt = &s
	}
	return resp
}
