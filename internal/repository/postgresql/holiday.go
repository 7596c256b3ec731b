package postgresql

import (
	"context"
	"fmt"
	"time"

	"github.com/cmlabs-hris/attendance-sync/internal/domain/overtime"
	"github.com/cmlabs-hris/attendance-sync/internal/pkg/database"
)

type holidayRepositoryImpl struct {
	db *database.DB
}

func NewHolidayRepository(db *database.DB) overtime.HolidayRepository {
	return &holidayRepositoryImpl{db: db}
}

// ListBetween implements overtime.HolidayRepository.
func (r *holidayRepositoryImpl) ListBetween(ctx context.Context, from, to time.Time) ([]overtime.Holiday, error) {
	q := GetQuerier(ctx, r.db)

	rows, err := q.Query(ctx, `
		SELECT holiday_date, name
		FROM holidays
		WHERE holiday_date BETWEEN $1 AND $2
		ORDER BY holiday_date
	`, from, to)
	if err != nil {
		return nil, fmt.Errorf("failed to list holidays: %w", err)
	}
	defer rows.Close()

	var holidays []overtime.Holiday
	for rows.Next() {
		var h overtime.Holiday
		if err := rows.Scan(&h.Date, &h.Name); err != nil {
			return nil, fmt.Errorf("failed to scan holiday: %w", err)
		}
		holidays = append(holidays, h)
	}
	return holidays, rows.Err()
}
