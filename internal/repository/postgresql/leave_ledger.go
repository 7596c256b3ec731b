package postgresql

import (
	"context"
	"errors"
	"fmt"

	"github.com/cmlabs-hris/attendance-sync/internal/domain/leave"
	"github.com/cmlabs-hris/attendance-sync/internal/pkg/database"
	"github.com/jackc/pgx/v5"
	"github.com/shopspring/decimal"
)

type leaveLedgerImpl struct {
	db *database.DB
}

// NewLeaveLedger returns the leave balance ledger kept in leave_balances and leave_ledger.
func NewLeaveLedger(db *database.DB) leave.Ledger {
	return &leaveLedgerImpl{db: db}
}

// Debit implements leave.Ledger. A failed debit leaves no trace, so callers
// may keep using the surrounding transaction.
func (r *leaveLedgerImpl) Debit(ctx context.Context, entry leave.LedgerEntry) (bool, error) {
	q := GetQuerier(ctx, r.db)

	var exists bool
	err := q.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM leave_ledger WHERE reference = $1)`, entry.Reference).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("failed to check ledger reference: %w", err)
	}
	if exists {
		return false, nil
	}

	tag, err := q.Exec(ctx, `
		UPDATE leave_balances
		SET used = used + $1, updated_at = NOW()
		WHERE employee_id = $2 AND leave_type = $3 AND year = $4
		  AND quota - used >= $1
	`, entry.Units, entry.EmployeeID, entry.LeaveType, entry.Year)
	if err != nil {
		return false, fmt.Errorf("failed to debit leave balance: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return false, r.missingBalance(ctx, q, entry)
	}

	_, err = q.Exec(ctx, `
		INSERT INTO leave_ledger (employee_id, leave_type, year, units, reference, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)
	`, entry.EmployeeID, entry.LeaveType, entry.Year, entry.Units, entry.Reference, entry.CreatedAt)
	if err != nil {
		return false, fmt.Errorf("failed to write ledger entry: %w", err)
	}
	return true, nil
}

// missingBalance tells a missing balance row from an exhausted one.
func (r *leaveLedgerImpl) missingBalance(ctx context.Context, q database.Querier, entry leave.LedgerEntry) error {
	var available decimal.Decimal
	err := q.QueryRow(ctx, `
		SELECT quota - used FROM leave_balances
		WHERE employee_id = $1 AND leave_type = $2 AND year = $3
	`, entry.EmployeeID, entry.LeaveType, entry.Year).Scan(&available)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return fmt.Errorf("%w: %s %s %d", leave.ErrBalanceNotFound, entry.EmployeeID, entry.LeaveType, entry.Year)
		}
		return fmt.Errorf("failed to read leave balance: %w", err)
	}
	return fmt.Errorf("%w: %s available, %s requested",
		leave.ErrInsufficientBalance, available.StringFixed(4), entry.Units.StringFixed(4))
}
