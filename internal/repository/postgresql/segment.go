package postgresql

import (
	"context"
	"fmt"
	"time"

	"github.com/cmlabs-hris/attendance-sync/internal/domain/attendance"
	"github.com/cmlabs-hris/attendance-sync/internal/pkg/database"
	"github.com/jackc/pgx/v5"
)

type segmentRepositoryImpl struct {
	db *database.DB
}

func NewSegmentRepository(db *database.DB) attendance.SegmentRepository {
	return &segmentRepositoryImpl{db: db}
}

// LockDay implements attendance.SegmentRepository. The advisory lock is
// released when the surrounding transaction ends.
func (r *segmentRepositoryImpl) LockDay(ctx context.Context, employeeID string, date time.Time) error {
	q := GetQuerier(ctx, r.db)

	_, err := q.Exec(ctx, `SELECT pg_advisory_xact_lock(hashtext($1))`,
		"day:"+employeeID+":"+date.Format(attendance.DateLayout))
	if err != nil {
		return fmt.Errorf("failed to lock employee day: %w", err)
	}
	return nil
}

const segmentColumns = `
	employee_id, work_date, check_in, check_out, check_in_source, check_out_source,
	worked_minutes, is_open, missing_check_in, check_in_direction, check_out_direction,
	check_in_sequence, check_out_sequence
`

func scanSegments(rows pgx.Rows) ([]attendance.DaySegment, error) {
	defer rows.Close()

	var segments []attendance.DaySegment
	for rows.Next() {
		var s attendance.DaySegment
		if err := rows.Scan(
			&s.EmployeeID, &s.Date, &s.CheckIn, &s.CheckOut, &s.CheckInSource, &s.CheckOutSource,
			&s.WorkedMinutes, &s.IsOpen, &s.MissingCheckIn, &s.CheckInDirection, &s.CheckOutDirection,
			&s.CheckInSequence, &s.CheckOutSequence,
		); err != nil {
			return nil, fmt.Errorf("failed to scan segment: %w", err)
		}
		s.CheckIn = utcPtr(s.CheckIn)
		s.CheckOut = utcPtr(s.CheckOut)
		segments = append(segments, s)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating segments: %w", err)
	}
	return segments, nil
}

// ListByDay implements attendance.SegmentRepository.
func (r *segmentRepositoryImpl) ListByDay(ctx context.Context, employeeID string, date time.Time) ([]attendance.DaySegment, error) {
	q := GetQuerier(ctx, r.db)

	rows, err := q.Query(ctx, `
		SELECT `+segmentColumns+`
		FROM day_segments
		WHERE employee_id = $1 AND work_date = $2
		ORDER BY position
	`, employeeID, date)
	if err != nil {
		return nil, fmt.Errorf("failed to list segments: %w", err)
	}
	return scanSegments(rows)
}

// ReplaceDay implements attendance.SegmentRepository.
func (r *segmentRepositoryImpl) ReplaceDay(ctx context.Context, employeeID string, date time.Time, segments []attendance.DaySegment) error {
	return WithTransaction(ctx, r.db, func(tx pgx.Tx) error {
		if _, err := tx.Exec(ctx, `DELETE FROM day_segments WHERE employee_id = $1 AND work_date = $2`, employeeID, date); err != nil {
			return fmt.Errorf("failed to clear segments: %w", err)
		}
		if len(segments) == 0 {
			return nil
		}

		rows := make([][]any, 0, len(segments))
		for i, s := range segments {
			rows = append(rows, []any{
				employeeID, date, i, s.CheckIn, s.CheckOut, s.CheckInSource, s.CheckOutSource,
				s.WorkedMinutes, s.IsOpen, s.MissingCheckIn, string(s.CheckInDirection), string(s.CheckOutDirection),
				s.CheckInSequence, s.CheckOutSequence,
			})
		}
		_, err := tx.CopyFrom(ctx,
			pgx.Identifier{"day_segments"},
			[]string{
				"employee_id", "work_date", "position", "check_in", "check_out", "check_in_source",
				"check_out_source", "worked_minutes", "is_open", "missing_check_in", "check_in_direction",
				"check_out_direction", "check_in_sequence", "check_out_sequence",
			},
			pgx.CopyFromRows(rows),
		)
		if err != nil {
			return fmt.Errorf("failed to insert segments: %w", err)
		}
		return nil
	})
}

// ListByRange implements attendance.SegmentRepository.
func (r *segmentRepositoryImpl) ListByRange(ctx context.Context, from, to time.Time) ([]attendance.DaySegment, error) {
	q := GetQuerier(ctx, r.db)

	rows, err := q.Query(ctx, `
		SELECT `+segmentColumns+`
		FROM day_segments
		WHERE work_date BETWEEN $1 AND $2
		ORDER BY employee_id, work_date, position
	`, from, to)
	if err != nil {
		return nil, fmt.Errorf("failed to list segments: %w", err)
	}
	return scanSegments(rows)
}

func utcPtr(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	u := t.UTC()
	return &u
}

// dateStrings renders calendar dates for a date[] parameter.
func dateStrings(dates []time.Time) []string {
	out := make([]string, 0, len(dates))
	for _, d := range dates {
		out = append(out, d.Format(attendance.DateLayout))
	}
	return out
}
