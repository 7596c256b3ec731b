package attendance

import (
	"context"

	"github.com/cmlabs-hris/attendance-sync/internal/pkg/workflow"
)

// AttendanceService runs punches through normalization and classification
type AttendanceService interface {
	// Ingest stores punches and re-reconciles every employee-day they touch
	Ingest(ctx context.Context, punches []RawPunch) (IngestResult, error)

	// ImportRecord imports one check-in/check-out pair from the API
	ImportRecord(ctx context.Context, req ImportRecordRequest) (ImportRecordResponse, error)

	// BulkImport imports many pairs and reports per item
	BulkImport(ctx context.Context, req BulkImportRequest) (BulkImportResponse, error)

	// ImportFile parses an uploaded csv/xlsx/xls file under a format profile
	ImportFile(ctx context.Context, req ImportFileRequest) (ImportFileResponse, error)

	// Reconcile re-classifies stored segments in a date range and reruns the engines
	Reconcile(ctx context.Context, req ReconcileRequest) (IngestResult, error)

	// ListDays returns classified days
	ListDays(ctx context.Context, filter DayFilter) ([]ClassifiedDayResponse, error)

	// ListRejected returns stored punches that could not be attributed
	ListRejected(ctx context.Context, filter RejectedFilter) ([]RejectedPunchResponse, error)

	// ReprocessRejected retries stored rejections against the current employee directory
	ReprocessRejected(ctx context.Context, req ReprocessRejectedRequest) (ReprocessRejectedResponse, error)

	// RetryImport ingests an archived import file again under its original options
	RetryImport(ctx context.Context, batchID string) (RetryImportResponse, error)
}

// DayProcessor derives records from classified days. The overtime and leave
// deduction engines implement it; frozen records come back as conflicts.
type DayProcessor interface {
	ProcessDays(ctx context.Context, days []ClassifiedDay) ([]*workflow.ReconciliationConflict, error)
}
