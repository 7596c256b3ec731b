package postgresql

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/cmlabs-hris/attendance-sync/internal/domain/leave"
	"github.com/cmlabs-hris/attendance-sync/internal/pkg/database"
	"github.com/jackc/pgx/v5"
)

type deductionRepositoryImpl struct {
	db *database.DB
}

func NewDeductionRepository(db *database.DB) leave.DeductionRepository {
	return &deductionRepositoryImpl{db: db}
}

const deductionColumns = `
	id, employee_id, work_date, deduction_type, late_minutes, early_minutes, minutes_deducted,
	units, leave_type, state, reviewed_by, reviewed_at, created_at, updated_at
`

func scanDeduction(row pgx.Row) (leave.Deduction, error) {
	var d leave.Deduction
	err := row.Scan(
		&d.ID, &d.EmployeeID, &d.Date, &d.DeductionType, &d.LateMinutes, &d.EarlyMinutes, &d.MinutesDeducted,
		&d.Units, &d.LeaveType, &d.State, &d.ReviewedBy, &d.ReviewedAt, &d.CreatedAt, &d.UpdatedAt,
	)
	return d, err
}

func collectDeductions(rows pgx.Rows) ([]leave.Deduction, error) {
	defer rows.Close()

	var deductions []leave.Deduction
	for rows.Next() {
		d, err := scanDeduction(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan deduction: %w", err)
		}
		deductions = append(deductions, d)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating deductions: %w", err)
	}
	return deductions, nil
}

func (r *deductionRepositoryImpl) getOne(ctx context.Context, query, id string) (leave.Deduction, error) {
	q := GetQuerier(ctx, r.db)

	d, err := scanDeduction(q.QueryRow(ctx, query, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return leave.Deduction{}, leave.ErrDeductionNotFound
		}
		return leave.Deduction{}, fmt.Errorf("failed to get deduction: %w", err)
	}
	return d, nil
}

// GetByID implements leave.DeductionRepository.
func (r *deductionRepositoryImpl) GetByID(ctx context.Context, id string) (leave.Deduction, error) {
	return r.getOne(ctx, `SELECT `+deductionColumns+` FROM leave_deductions WHERE id = $1`, id)
}

// GetByIDForUpdate implements leave.DeductionRepository.
func (r *deductionRepositoryImpl) GetByIDForUpdate(ctx context.Context, id string) (leave.Deduction, error) {
	return r.getOne(ctx, `SELECT `+deductionColumns+` FROM leave_deductions WHERE id = $1 FOR UPDATE`, id)
}

// GetByEmployeeDates implements leave.DeductionRepository.
func (r *deductionRepositoryImpl) GetByEmployeeDates(ctx context.Context, employeeID string, dates []time.Time) ([]leave.Deduction, error) {
	q := GetQuerier(ctx, r.db)

	rows, err := q.Query(ctx, `
		SELECT `+deductionColumns+`
		FROM leave_deductions
		WHERE employee_id = $1 AND work_date = ANY($2::date[])
		ORDER BY work_date
		FOR UPDATE
	`, employeeID, dateStrings(dates))
	if err != nil {
		return nil, fmt.Errorf("failed to get deductions: %w", err)
	}
	return collectDeductions(rows)
}

// Upsert implements leave.DeductionRepository. Confirmed and rejected rows are never overwritten.
func (r *deductionRepositoryImpl) Upsert(ctx context.Context, d leave.Deduction) error {
	q := GetQuerier(ctx, r.db)

	query := `
		INSERT INTO leave_deductions (
			id, employee_id, work_date, deduction_type, late_minutes, early_minutes, minutes_deducted,
			units, leave_type, state, updated_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, NOW())
		ON CONFLICT (employee_id, work_date) DO UPDATE SET
			deduction_type = EXCLUDED.deduction_type,
			late_minutes = EXCLUDED.late_minutes,
			early_minutes = EXCLUDED.early_minutes,
			minutes_deducted = EXCLUDED.minutes_deducted,
			units = EXCLUDED.units,
			leave_type = EXCLUDED.leave_type,
			updated_at = NOW()
		WHERE leave_deductions.state = 'pending'
	`

	_, err := q.Exec(ctx, query,
		d.ID, d.EmployeeID, d.Date, d.DeductionType, d.LateMinutes, d.EarlyMinutes, d.MinutesDeducted,
		d.Units, d.LeaveType, d.State,
	)
	if err != nil {
		return fmt.Errorf("failed to upsert deduction: %w", err)
	}
	return nil
}

// Delete implements leave.DeductionRepository.
func (r *deductionRepositoryImpl) Delete(ctx context.Context, id string) error {
	q := GetQuerier(ctx, r.db)

	_, err := q.Exec(ctx, `DELETE FROM leave_deductions WHERE id = $1 AND state = 'pending'`, id)
	if err != nil {
		return fmt.Errorf("failed to delete deduction: %w", err)
	}
	return nil
}

// UpdateState implements leave.DeductionRepository.
func (r *deductionRepositoryImpl) UpdateState(ctx context.Context, id string, state leave.DeductionState, reviewedBy *string, at time.Time) error {
	q := GetQuerier(ctx, r.db)

	tag, err := q.Exec(ctx, `
		UPDATE leave_deductions
		SET state = $2, reviewed_by = $3, reviewed_at = $4, updated_at = $4
		WHERE id = $1
	`, id, state, reviewedBy, at)
	if err != nil {
		return fmt.Errorf("failed to update deduction state: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return leave.ErrDeductionNotFound
	}
	return nil
}

// List implements leave.DeductionRepository.
func (r *deductionRepositoryImpl) List(ctx context.Context, filter leave.DeductionFilter) ([]leave.Deduction, error) {
	q := GetQuerier(ctx, r.db)

	query := `SELECT ` + deductionColumns + ` FROM leave_deductions WHERE 1=1`
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
		return nil, fmt.Errorf("failed to list deductions: %w", err)
	}
	return collectDeductions(rows)
}
