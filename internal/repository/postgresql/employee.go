package postgresql

import (
	"context"
	"fmt"
	"time"

	"github.com/cmlabs-hris/attendance-sync/internal/domain/attendance"
	"github.com/cmlabs-hris/attendance-sync/internal/pkg/database"
	"github.com/jackc/pgx/v5/pgtype"
)

type employeeDirectoryImpl struct {
	db *database.DB
}

func NewEmployeeDirectory(db *database.DB) attendance.EmployeeDirectory {
	return &employeeDirectoryImpl{db: db}
}

// directoryEntry is one active employee with every identifier a punch may carry.
type directoryEntry struct {
	Code         string
	DeviceUserID *string
	CardNumber   *string
	Barcode      *string
}

// Resolve implements attendance.EmployeeDirectory.
func (e *employeeDirectoryImpl) Resolve(ctx context.Context, identifiers []string) (map[string]string, error) {
	if len(identifiers) == 0 {
		return map[string]string{}, nil
	}
	q := GetQuerier(ctx, e.db)

	query := `
		SELECT employee_code, device_user_id, card_number, barcode
		FROM employees
		WHERE is_active
		  AND (device_user_id = ANY($1)
		    OR card_number = ANY($1)
		    OR barcode = ANY($1)
		    OR employee_code = ANY($1))
		ORDER BY employee_code
	`

	rows, err := q.Query(ctx, query, identifiers)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve employees: %w", err)
	}
	defer rows.Close()

	var entries []directoryEntry
	for rows.Next() {
		var en directoryEntry
		if err := rows.Scan(&en.Code, &en.DeviceUserID, &en.CardNumber, &en.Barcode); err != nil {
			return nil, fmt.Errorf("failed to scan employee: %w", err)
		}
		entries = append(entries, en)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating employees: %w", err)
	}

	return matchIdentifiers(identifiers, entries), nil
}

// matchIdentifiers maps each identifier to an employee code. A device user id
// match wins over a card number, then a barcode, then the employee code itself.
func matchIdentifiers(identifiers []string, entries []directoryEntry) map[string]string {
	const none = 4
	best := make(map[string]int, len(identifiers))
	resolved := make(map[string]string, len(identifiers))
	for _, id := range identifiers {
		best[id] = none
	}

	consider := func(id *string, code string, rank int) {
		if id == nil {
			return
		}
		current, wanted := best[*id]
		if !wanted || rank >= current {
			return
		}
		best[*id] = rank
		resolved[*id] = code
	}

	for _, en := range entries {
		code := en.Code
		consider(en.DeviceUserID, code, 0)
		consider(en.CardNumber, code, 1)
		consider(en.Barcode, code, 2)
		consider(&code, code, 3)
	}
	return resolved
}

// Schedules implements attendance.EmployeeDirectory. Only employees with both
// a schedule start and end override the configured hours.
func (e *employeeDirectoryImpl) Schedules(ctx context.Context, employeeIDs []string) (map[string]attendance.Schedule, error) {
	out := make(map[string]attendance.Schedule)
	if len(employeeIDs) == 0 {
		return out, nil
	}
	q := GetQuerier(ctx, e.db)

	rows, err := q.Query(ctx, `
		SELECT employee_code, schedule_start, schedule_end
		FROM employees
		WHERE employee_code = ANY($1)
		  AND schedule_start IS NOT NULL
		  AND schedule_end IS NOT NULL
	`, employeeIDs)
	if err != nil {
		return nil, fmt.Errorf("failed to load employee schedules: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var code string
		var start, end pgtype.Time
		if err := rows.Scan(&code, &start, &end); err != nil {
			return nil, fmt.Errorf("failed to scan employee schedule: %w", err)
		}
		out[code] = attendance.Schedule{
			Start: time.Duration(start.Microseconds) * time.Microsecond,
			End:   time.Duration(end.Microseconds) * time.Microsecond,
		}
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating employee schedules: %w", err)
	}
	return out, nil
}
