package postgresql

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/cmlabs-hris/attendance-sync/internal/domain/overtime"
	"github.com/cmlabs-hris/attendance-sync/internal/pkg/database"
	"github.com/jackc/pgx/v5"
)

type overtimeRepositoryImpl struct {
	db *database.DB
}

func NewOvertimeRepository(db *database.DB) overtime.OvertimeRepository {
	return &overtimeRepositoryImpl{db: db}
}

const overtimeColumns = `
	id, employee_id, work_date, rate_category, minutes, hours, multiplier, weighted_hours,
	state, reviewed_by, reviewed_at, note, created_at, updated_at
`

func scanOvertime(row pgx.Row) (overtime.Record, error) {
	var r overtime.Record
	err := row.Scan(
		&r.ID, &r.EmployeeID, &r.Date, &r.RateCategory, &r.Minutes, &r.Hours, &r.Multiplier, &r.WeightedHours,
		&r.State, &r.ReviewedBy, &r.ReviewedAt, &r.Note, &r.CreatedAt, &r.UpdatedAt,
	)
	return r, err
}

func (r *overtimeRepositoryImpl) getOne(ctx context.Context, query, id string) (overtime.Record, error) {
	q := GetQuerier(ctx, r.db)

	rec, err := scanOvertime(q.QueryRow(ctx, query, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return overtime.Record{}, overtime.ErrOvertimeNotFound
		}
		return overtime.Record{}, fmt.Errorf("failed to get overtime record: %w", err)
	}
	return rec, nil
}

// GetByID implements overtime.OvertimeRepository.
func (r *overtimeRepositoryImpl) GetByID(ctx context.Context, id string) (overtime.Record, error) {
	return r.getOne(ctx, `SELECT `+overtimeColumns+` FROM overtime_records WHERE id = $1`, id)
}

// GetByIDForUpdate implements overtime.OvertimeRepository.
func (r *overtimeRepositoryImpl) GetByIDForUpdate(ctx context.Context, id string) (overtime.Record, error) {
	return r.getOne(ctx, `SELECT `+overtimeColumns+` FROM overtime_records WHERE id = $1 FOR UPDATE`, id)
}

// GetByEmployeeDates implements overtime.OvertimeRepository.
func (r *overtimeRepositoryImpl) GetByEmployeeDates(ctx context.Context, employeeID string, dates []time.Time) ([]overtime.Record, error) {
	q := GetQuerier(ctx, r.db)

	rows, err := q.Query(ctx, `
		SELECT `+overtimeColumns+`
		FROM overtime_records
		WHERE employee_id = $1 AND work_date = ANY($2::date[])
		ORDER BY work_date
		FOR UPDATE
	`, employeeID, dateStrings(dates))
	if err != nil {
		return nil, fmt.Errorf("failed to get overtime records: %w", err)
	}
	return collectOvertime(rows)
}

func collectOvertime(rows pgx.Rows) ([]overtime.Record, error) {
	defer rows.Close()

	var records []overtime.Record
	for rows.Next() {
		rec, err := scanOvertime(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan overtime record: %w", err)
		}
		records = append(records, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating overtime records: %w", err)
	}
	return records, nil
}

// Upsert implements overtime.OvertimeRepository.
func (r *overtimeRepositoryImpl) Upsert(ctx context.Context, rec overtime.Record) error {
	q := GetQuerier(ctx, r.db)

	query := `
		INSERT INTO overtime_records (
			id, employee_id, work_date, rate_category, minutes, hours, multiplier, weighted_hours,
			state, reviewed_by, reviewed_at, note, updated_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, NOW())
		ON CONFLICT (employee_id, work_date) DO UPDATE SET
			rate_category = EXCLUDED.rate_category,
			minutes = EXCLUDED.minutes,
			hours = EXCLUDED.hours,
			multiplier = EXCLUDED.multiplier,
			weighted_hours = EXCLUDED.weighted_hours,
			state = EXCLUDED.state,
			reviewed_by = EXCLUDED.reviewed_by,
			reviewed_at = EXCLUDED.reviewed_at,
			note = EXCLUDED.note,
			updated_at = NOW()
		WHERE overtime_records.state <> 'approved'
	`

	_, err := q.Exec(ctx, query,
		rec.ID, rec.EmployeeID, rec.Date, rec.RateCategory, rec.Minutes, rec.Hours, rec.Multiplier, rec.WeightedHours,
		rec.State, rec.ReviewedBy, rec.ReviewedAt, rec.Note,
	)
	if err != nil {
		return fmt.Errorf("failed to upsert overtime record: %w", err)
	}
	return nil
}

// Delete implements overtime.OvertimeRepository.
func (r *overtimeRepositoryImpl) Delete(ctx context.Context, id string) error {
	q := GetQuerier(ctx, r.db)

	_, err := q.Exec(ctx, `DELETE FROM overtime_records WHERE id = $1 AND state <> 'approved'`, id)
	if err != nil {
		return fmt.Errorf("failed to delete overtime record: %w", err)
	}
	return nil
}

// UpdateState implements overtime.OvertimeRepository.
func (r *overtimeRepositoryImpl) UpdateState(ctx context.Context, id string, state overtime.State, reviewedBy, note *string, at time.Time) error {
	q := GetQuerier(ctx, r.db)

	tag, err := q.Exec(ctx, `
		UPDATE overtime_records
		SET state = $2, reviewed_by = $3, reviewed_at = $4, note = $5, updated_at = $4
		WHERE id = $1
	`, id, state, reviewedBy, at, note)
	if err != nil {
		return fmt.Errorf("failed to update overtime state: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return overtime.ErrOvertimeNotFound
	}
	return nil
}

// List implements overtime.OvertimeRepository.
func (r *overtimeRepositoryImpl) List(ctx context.Context, filter overtime.Filter) ([]overtime.Record, error) {
	q := GetQuerier(ctx, r.db)

	query := `SELECT ` + overtimeColumns + ` FROM overtime_records WHERE 1=1`
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
	query += " ORDER BY work_date, employee_id"

	rows, err := q.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list overtime records: %w", err)
	}
	return collectOvertime(rows)
}
