package correction

import (
	"time"

	"github.com/cmlabs-hris/attendance-sync/internal/pkg/workflow"
)

// Kind names the side of a day a correction supplies.
type Kind string

const (
	KindMissingCheckIn  Kind = "missing_checkin"
	KindMissingCheckOut Kind = "missing_checkout"
)

func (k Kind) IsValid() bool {
	switch k {
	case KindMissingCheckIn, KindMissingCheckOut:
		return true
	}
	return false
}

type State string

const (
	StatePending  State = "pending"
	StateApproved State = "approved"
	StateRejected State = "rejected"
)

func (s State) IsValid() bool {
	switch s {
	case StatePending, StateApproved, StateRejected:
		return true
	}
	return false
}

// Machine is the review lifecycle of a correction request. A rejected day can
// be requested again with a new request.
var Machine = workflow.NewMachine("correction", map[State][]State{
	StatePending: {StateApproved, StateRejected},
})

// Action is a manager decision on a request.
type Action string

const (
	ActionApprove Action = "approve"
	ActionReject  Action = "reject"
)

// Target returns the state an action moves a request to.
func (a Action) Target() (State, bool) {
	switch a {
	case ActionApprove:
		return StateApproved, true
	case ActionReject:
		return StateRejected, true
	}
	return "", false
}

// Request asks a manager to accept a day with a missing check-in or check-out.
// PunchTime, when set, is ingested as a correction punch on approval.
type Request struct {
	ID          string
	EmployeeID  string
	Date        time.Time
	Kind        Kind
	State       State
	PunchTime   *time.Time
	Note        string
	RequestedBy string
	ReviewedBy  *string
	ReviewedAt  *time.Time
	ReviewNote  string
	CreatedAt   time.Time
	UpdatedAt   time.Time
}
