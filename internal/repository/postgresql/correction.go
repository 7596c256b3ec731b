package postgresql

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/cmlabs-hris/attendance-sync/internal/domain/correction"
	"github.com/cmlabs-hris/attendance-sync/internal/pkg/database"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
)

type correctionRepositoryImpl struct {
	db *database.DB
}

func NewCorrectionRepository(db *database.DB) correction.RequestRepository {
	return &correctionRepositoryImpl{db: db}
}

const correctionColumns = `
	id, employee_id, work_date, kind, state, punch_time, note, requested_by,
	reviewed_by, reviewed_at, review_note, created_at, updated_at
`

func scanCorrection(row pgx.Row) (correction.Request, error) {
	var r correction.Request
	err := row.Scan(
		&r.ID, &r.EmployeeID, &r.Date, &r.Kind, &r.State, &r.PunchTime, &r.Note, &r.RequestedBy,
		&r.ReviewedBy, &r.ReviewedAt, &r.ReviewNote, &r.CreatedAt, &r.UpdatedAt,
	)
	r.PunchTime = utcPtr(r.PunchTime)
	return r, err
}

// Create implements correction.RequestRepository.
func (r *correctionRepositoryImpl) Create(ctx context.Context, req correction.Request) error {
	q := GetQuerier(ctx, r.db)

	_, err := q.Exec(ctx, `
		INSERT INTO missing_requests (
			id, employee_id, work_date, kind, state, punch_time, note, requested_by, created_at, updated_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
	`, req.ID, req.EmployeeID, req.Date, req.Kind, req.State, req.PunchTime, req.Note, req.RequestedBy, req.CreatedAt, req.UpdatedAt)
	if err != nil {
		return fmt.Errorf("failed to create correction request: %w", err)
	}
	return nil
}

// GetByIDForUpdate implements correction.RequestRepository.
func (r *correctionRepositoryImpl) GetByIDForUpdate(ctx context.Context, id string) (correction.Request, error) {
	if _, err := uuid.Parse(id); err != nil {
		return correction.Request{}, correction.ErrRequestNotFound
	}
	q := GetQuerier(ctx, r.db)

	rec, err := scanCorrection(q.QueryRow(ctx, `SELECT `+correctionColumns+` FROM missing_requests WHERE id = $1 FOR UPDATE`, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return correction.Request{}, correction.ErrRequestNotFound
		}
		return correction.Request{}, fmt.Errorf("failed to get correction request: %w", err)
	}
	return rec, nil
}

// UpdateState implements correction.RequestRepository.
func (r *correctionRepositoryImpl) UpdateState(ctx context.Context, id string, state correction.State, reviewedBy string, reviewNote string, punchTime *time.Time, at time.Time) error {
	q := GetQuerier(ctx, r.db)

	tag, err := q.Exec(ctx, `
		UPDATE missing_requests
		SET state = $2, reviewed_by = $3, reviewed_at = $4, review_note = $5, punch_time = $6, updated_at = $4
		WHERE id = $1
	`, id, state, reviewedBy, at, reviewNote, punchTime)
	if err != nil {
		return fmt.Errorf("failed to update correction state: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return correction.ErrRequestNotFound
	}
	return nil
}

// List implements correction.RequestRepository.
func (r *correctionRepositoryImpl) List(ctx context.Context, filter correction.Filter) ([]correction.Request, error) {
	q := GetQuerier(ctx, r.db)

	query := `SELECT ` + correctionColumns + ` FROM missing_requests WHERE 1=1`
	var args []any
	argIdx := 1

	if filter.EmployeeID != "" {
		query += fmt.Sprintf(" AND employee_id = $%d", argIdx)
		args = append(args, filter.EmployeeID)
		argIdx++
	}
	if filter.DateFrom != nil {
		query += fmt.Sprintf(" AND work_date >= $%d", argIdx)
		args = append(args, *filter.DateFrom)
		argIdx++
	}
	if filter.DateTo != nil {
		query += fmt.Sprintf(" AND work_date <= $%d", argIdx)
		args = append(args, *filter.DateTo)
		argIdx++
	}
	if filter.State != nil {
		query += fmt.Sprintf(" AND state = $%d", argIdx)
		args = append(args, *filter.State)
	}
	query += " ORDER BY work_date, employee_id, created_at"

	rows, err := q.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list correction requests: %w", err)
	}
	defer rows.Close()

	var out []correction.Request
	for rows.Next() {
		rec, err := scanCorrection(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan correction request: %w", err)
		}
		out = append(out, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating correction requests: %w", err)
	}
	return out, nil
}
