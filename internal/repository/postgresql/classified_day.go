package postgresql

import (
	"context"
	"fmt"
	"strings"

	"github.com/cmlabs-hris/attendance-sync/internal/domain/attendance"
	"github.com/cmlabs-hris/attendance-sync/internal/pkg/database"
)

type classifiedDayRepositoryImpl struct {
	db *database.DB
}

func NewClassifiedDayRepository(db *database.DB) attendance.ClassifiedDayRepository {
	return &classifiedDayRepositoryImpl{db: db}
}

// Upsert implements attendance.ClassifiedDayRepository.
func (r *classifiedDayRepositoryImpl) Upsert(ctx context.Context, day attendance.ClassifiedDay) error {
	q := GetQuerier(ctx, r.db)

	query := `
		INSERT INTO classified_days (
			employee_id, work_date, status, first_check_in, last_check_out,
			worked_minutes, late_minutes, early_minutes, overtime_minutes, segment_count, updated_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, NOW())
		ON CONFLICT (employee_id, work_date) DO UPDATE SET
			status = EXCLUDED.status,
			first_check_in = EXCLUDED.first_check_in,
			last_check_out = EXCLUDED.last_check_out,
			worked_minutes = EXCLUDED.worked_minutes,
			late_minutes = EXCLUDED.late_minutes,
			early_minutes = EXCLUDED.early_minutes,
			overtime_minutes = EXCLUDED.overtime_minutes,
			segment_count = EXCLUDED.segment_count,
			updated_at = NOW()
	`

	_, err := q.Exec(ctx, query,
		day.EmployeeID, day.Date, day.Status, day.FirstCheckIn, day.LastCheckOut,
		day.WorkedMinutes, day.LateMinutes, day.EarlyMinutes, day.OvertimeMinutes, day.SegmentCount,
	)
	if err != nil {
		return fmt.Errorf("failed to upsert classified day: %w", err)
	}
	return nil
}

// List implements attendance.ClassifiedDayRepository.
func (r *classifiedDayRepositoryImpl) List(ctx context.Context, filter attendance.DayFilter) ([]attendance.ClassifiedDay, error) {
	q := GetQuerier(ctx, r.db)

	query := `
		SELECT employee_id, work_date, status, first_check_in, last_check_out,
			   worked_minutes, late_minutes, early_minutes, overtime_minutes, segment_count
		FROM classified_days
		WHERE 1=1
	`
	var args []any
	argIdx := 1

	if filter.EmployeeID != "" {
		query += fmt.Sprintf(" AND employee_id = $%d", argIdx)
		args = append(args, filter.EmployeeID)
		argIdx++
	}
	if !filter.DateFrom.IsZero() {
		query += fmt.Sprintf(" AND work_date >= $%d", argIdx)
		args = append(args, filter.DateFrom)
		argIdx++
	}
	if !filter.DateTo.IsZero() {
		query += fmt.Sprintf(" AND work_date <= $%d", argIdx)
		args = append(args, filter.DateTo)
		argIdx++
	}
	if filter.Status != nil {
		query += fmt.Sprintf(" AND status = $%d", argIdx)
		args = append(args, *filter.Status)
	}
	query += " ORDER BY employee_id, work_date"

	rows, err := q.Query(ctx, strings.TrimSpace(query), args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list classified days: %w", err)
	}
	defer rows.Close()

	var days []attendance.ClassifiedDay
	for rows.Next() {
		var d attendance.ClassifiedDay
		if err := rows.Scan(
			&d.EmployeeID, &d.Date, &d.Status, &d.FirstCheckIn, &d.LastCheckOut,
			&d.WorkedMinutes, &d.LateMinutes, &d.EarlyMinutes, &d.OvertimeMinutes, &d.SegmentCount,
		); err != nil {
			return nil, fmt.Errorf("failed to scan classified day: %w", err)
		}
		d.FirstCheckIn = utcPtr(d.FirstCheckIn)
		d.LastCheckOut = utcPtr(d.LastCheckOut)
		days = append(days, d)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating classified days: %w", err)
	}
	return days, nil
}
