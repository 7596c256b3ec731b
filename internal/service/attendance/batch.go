package attendance

import (
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/cmlabs-hris/attendance-sync/internal/domain/attendance"
	"github.com/cmlabs-hris/attendance-sync/internal/pkg/storage"
	"go.uber.org/zap"
)

// archiveImport keeps the upload and records its batch. It reports whether the
// batch was recorded and can be retried later. An archived file whose batch
// could not be recorded is removed again.
func (s *AttendanceServiceImpl) archiveImport(ctx context.Context, batchID, fileName string, data []byte, options attendance.ImportOptions) bool {
	if s.files == nil {
		return false
	}
	log := s.logger.With(zap.String("batch_id", batchID), zap.String("file_name", fileName))

	path, err := s.files.ArchiveImport(ctx, batchID, fileName, data)
	if err != nil {
		log.Warn("failed to archive import file", zap.Error(err))
		return false
	}
	log.Debug("import file archived", zap.String("path", path))
	if s.batches == nil {
		return false
	}

	now := s.now().UTC()
	err = s.batches.Create(ctx, attendance.ImportBatch{
		BatchID:     batchID,
		FileName:    fileName,
		ArchivePath: path,
		Options:     options,
		CreatedAt:   now,
		UpdatedAt:   now,
	})
	if err != nil {
		log.Warn("failed to record import batch", zap.Error(err))
		if err := s.files.DeleteFile(ctx, path); err != nil {
			log.Warn("failed to remove unrecorded import file", zap.String("path", path), zap.Error(err))
		}
		return false
	}
	return true
}

// recordAttempt stores the outcome of one ingest of a recorded batch.
func (s *AttendanceServiceImpl) recordAttempt(ctx context.Context, batchID string, counts attendance.ImportCounts, ingestErr error) {
	lastError := ""
	if ingestErr != nil {
		lastError = ingestErr.Error()
	}
	if err := s.batches.RecordAttempt(ctx, batchID, counts, lastError, s.now().UTC()); err != nil {
		s.logger.Warn("failed to record import attempt", zap.String("batch_id", batchID), zap.Error(err))
	}
}

// RetryImport implements attendance.AttendanceService. The archived file is
// parsed again with the options it was uploaded with and keeps its batch id,
// so punches stored by an earlier attempt count as duplicates.
func (s *AttendanceServiceImpl) RetryImport(ctx context.Context, batchID string) (attendance.RetryImportResponse, error) {
	if s.files == nil || s.batches == nil {
		return attendance.RetryImportResponse{}, attendance.ErrImportNotArchived
	}

	batch, err := s.batches.GetByID(ctx, batchID)
	if err != nil {
		return attendance.RetryImportResponse{}, err
	}

	rc, err := s.files.OpenImport(ctx, batch.ArchivePath)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return attendance.RetryImportResponse{}, fmt.Errorf("%w: %s", attendance.ErrImportNotArchived, batch.ArchivePath)
		}
		return attendance.RetryImportResponse{}, fmt.Errorf("failed to open archived import: %w", err)
	}
	data, err := io.ReadAll(rc)
	rc.Close()
	if err != nil {
		return attendance.RetryImportResponse{}, fmt.Errorf("failed to read archived import: %w", err)
	}

	parsed, err := s.parseImport(ctx, batch.FileName, data, batch.BatchID, batch.Options)
	if err != nil {
		return attendance.RetryImportResponse{}, err
	}

	var result attendance.IngestResult
	var ingestErr error
	if len(parsed.Punches) > 0 {
		result, ingestErr = s.Ingest(ctx, parsed.Punches)
	}
	counts := attendance.ImportCounts{TotalRows: parsed.TotalRows, Imported: parsed.Parsed, Duplicates: result.Duplicates, Failed: parsed.Failed()}
	s.recordAttempt(ctx, batch.BatchID, counts, ingestErr)
	if ingestErr != nil {
		return attendance.RetryImportResponse{}, ingestErr
	}

	resp := attendance.RetryImportResponse{
		BatchID:    batch.BatchID,
		Attempts:   batch.Attempts + 1,
		TotalRows:  parsed.TotalRows,
		Imported:   parsed.Parsed,
		Duplicates: result.Duplicates,
		Failed:     parsed.Failed(),
		Errors:     parsed.Errors,
		Rejected:   result.Rejected,
		Frozen:     result.Frozen,
	}
	if resp.Errors == nil {
		resp.Errors = []*attendance.ValidationError{}
	}

	s.logger.Info("attendance import retried",
		zap.String("batch_id", batch.BatchID),
		zap.Int("attempts", resp.Attempts),
		zap.Int("imported", resp.Imported),
		zap.Int("duplicates", resp.Duplicates),
		zap.Int("failed", resp.Failed),
	)
	return resp, nil
}
