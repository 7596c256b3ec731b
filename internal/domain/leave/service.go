package leave

import (
	"context"

	"github.com/cmlabs-hris/attendance-sync/internal/domain/attendance"
	"github.com/cmlabs-hris/attendance-sync/internal/pkg/workflow"
)

// DeductionService computes leave deductions and drives their confirmation
type DeductionService interface {
	// ProcessDays recomputes deductions; confirmed and rejected dates come back frozen
	ProcessDays(ctx context.Context, days []attendance.ClassifiedDay) ([]*workflow.ReconciliationConflict, error)

	// Review confirms or rejects a deduction. Confirming twice is a no-op.
	Review(ctx context.Context, req ReviewDeductionRequest) (DeductionResponse, error)

	List(ctx context.Context, filter DeductionFilter) ([]DeductionResponse, error)
}
