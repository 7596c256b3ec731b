package overtime

import (
	"context"

	"github.com/cmlabs-hris/attendance-sync/internal/domain/attendance"
	"github.com/cmlabs-hris/attendance-sync/internal/pkg/workflow"
)

// OvertimeService computes overtime records and drives their approval
type OvertimeService interface {
	// ProcessDays recomputes overtime for classified days; approved dates come back frozen
	ProcessDays(ctx context.Context, days []attendance.ClassifiedDay) ([]*workflow.ReconciliationConflict, error)

	// Transition applies a manager action
	Transition(ctx context.Context, req TransitionRequest) (RecordResponse, error)

	// List retrieves overtime records
	List(ctx context.Context, filter Filter) ([]RecordResponse, error)
}
