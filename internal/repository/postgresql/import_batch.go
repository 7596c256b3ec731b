package postgresql

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/cmlabs-hris/attendance-sync/internal/domain/attendance"
	"github.com/cmlabs-hris/attendance-sync/internal/pkg/database"
	"github.com/jackc/pgx/v5"
)

type importBatchRepositoryImpl struct {
	db *database.DB
}

func NewImportBatchRepository(db *database.DB) attendance.ImportBatchRepository {
	return &importBatchRepositoryImpl{db: db}
}

// Create implements attendance.ImportBatchRepository. Options are stored as jsonb.
func (r *importBatchRepositoryImpl) Create(ctx context.Context, batch attendance.ImportBatch) error {
	q := GetQuerier(ctx, r.db)

	_, err := q.Exec(ctx, `
		INSERT INTO import_batches (batch_id, file_name, archive_path, options, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6)
	`, batch.BatchID, batch.FileName, batch.ArchivePath, batch.Options, batch.CreatedAt, batch.UpdatedAt)
	if err != nil {
		return fmt.Errorf("failed to create import batch: %w", err)
	}
	return nil
}

// GetByID implements attendance.ImportBatchRepository.
func (r *importBatchRepositoryImpl) GetByID(ctx context.Context, batchID string) (attendance.ImportBatch, error) {
	q := GetQuerier(ctx, r.db)

	var b attendance.ImportBatch
	err := q.QueryRow(ctx, `
		SELECT batch_id, file_name, archive_path, options, total_rows, imported, duplicates, failed,
			   attempts, last_error, created_at, updated_at
		FROM import_batches
		WHERE batch_id = $1
	`, batchID).Scan(
		&b.BatchID, &b.FileName, &b.ArchivePath, &b.Options, &b.Counts.TotalRows, &b.Counts.Imported,
		&b.Counts.Duplicates, &b.Counts.Failed, &b.Attempts, &b.LastError, &b.CreatedAt, &b.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return attendance.ImportBatch{}, attendance.ErrImportBatchNotFound
		}
		return attendance.ImportBatch{}, fmt.Errorf("failed to get import batch: %w", err)
	}
	return b, nil
}

// RecordAttempt implements attendance.ImportBatchRepository.
func (r *importBatchRepositoryImpl) RecordAttempt(ctx context.Context, batchID string, counts attendance.ImportCounts, lastError string, at time.Time) error {
	q := GetQuerier(ctx, r.db)

	tag, err := q.Exec(ctx, `
		UPDATE import_batches
		SET total_rows = $2, imported = $3, duplicates = $4, failed = $5,
			attempts = attempts + 1, last_error = $6, updated_at = $7
		WHERE batch_id = $1
	`, batchID, counts.TotalRows, counts.Imported, counts.Duplicates, counts.Failed, lastError, at)
	if err != nil {
		return fmt.Errorf("failed to record import attempt: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return attendance.ErrImportBatchNotFound
	}
	return nil
}
