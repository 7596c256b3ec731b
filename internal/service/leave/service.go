package leave

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"time"

	"github.com/cmlabs-hris/attendance-sync/internal/domain/attendance"
	"github.com/cmlabs-hris/attendance-sync/internal/domain/leave"
	"github.com/cmlabs-hris/attendance-sync/internal/pkg/database"
	"github.com/cmlabs-hris/attendance-sync/internal/pkg/workflow"
	"go.uber.org/zap"
)

// systemActor is recorded as reviewer of auto-confirmed deductions.
const systemActor = "system"

type DeductionServiceImpl struct {
	tx         database.Transactor
	deductions leave.DeductionRepository
	ledger     leave.Ledger
	cfg        leave.DeductionConfig
	logger     *zap.Logger
	now        func() time.Time
}

func NewDeductionService(
	tx database.Transactor,
	deductions leave.DeductionRepository,
	ledger leave.Ledger,
	cfg leave.DeductionConfig,
	logger *zap.Logger,
) leave.DeductionService {
	return &DeductionServiceImpl{
		tx:         tx,
		deductions: deductions,
		ledger:     ledger,
		cfg:        cfg,
		logger:     logger,
		now:        time.Now,
	}
}

// ProcessDays implements leave.DeductionService.
func (s *DeductionServiceImpl) ProcessDays(ctx context.Context, days []attendance.ClassifiedDay) ([]*workflow.ReconciliationConflict, error) {
	byEmployee := make(map[string][]attendance.ClassifiedDay)
	for _, d := range days {
		byEmployee[d.EmployeeID] = append(byEmployee[d.EmployeeID], d)
	}
	employees := make([]string, 0, len(byEmployee))
	for id := range byEmployee {
		employees = append(employees, id)
	}
	slices.Sort(employees)

	var frozen []*workflow.ReconciliationConflict
	for _, employeeID := range employees {
		if err := ctx.Err(); err != nil {
			return frozen, err
		}
		empDays := byEmployee[employeeID]
		dates := make([]time.Time, 0, len(empDays))
		for _, d := range empDays {
			dates = append(dates, d.Date)
		}

		var result leave.ComputeResult
		err := s.tx.WithinTransaction(ctx, func(txCtx context.Context) error {
			existing, err := s.deductions.GetByEmployeeDates(txCtx, employeeID, dates)
			if err != nil {
				return fmt.Errorf("failed to load deductions: %w", err)
			}

			result = ComputeDeductions(empDays, s.cfg, existing)
			for _, d := range result.Deletes {
				if err := s.deductions.Delete(txCtx, d.ID); err != nil {
					return fmt.Errorf("failed to delete deduction: %w", err)
				}
			}
			for _, d := range result.Upserts {
				if err := s.deductions.Upsert(txCtx, d); err != nil {
					return fmt.Errorf("failed to save deduction: %w", err)
				}
				if !s.cfg.AutoConfirm {
					continue
				}
				if _, err := s.confirm(txCtx, d, systemActor); err != nil {
					if !errors.Is(err, leave.ErrInsufficientBalance) && !errors.Is(err, leave.ErrBalanceNotFound) {
						return err
					}
					s.logger.Warn("auto-confirm skipped, deduction left pending",
						zap.String("deduction_id", d.ID),
						zap.String("employee_id", d.EmployeeID),
						zap.Error(err),
					)
				}
			}
			return nil
		})
		if err != nil {
			return frozen, fmt.Errorf("deductions for employee %s: %w", employeeID, err)
		}

		for _, c := range result.Frozen {
			s.logger.Warn("leave deduction is frozen, recompute skipped",
				zap.String("record_id", c.RecordID),
				zap.String("employee_id", c.EmployeeID),
				zap.Time("date", c.Date),
				zap.String("state", c.State),
			)
		}
		frozen = append(frozen, result.Frozen...)
	}
	return frozen, nil
}

// confirm debits the ledger and moves d to confirmed. It runs inside the
// caller's transaction; the ledger reference keeps the debit exactly-once.
func (s *DeductionServiceImpl) confirm(ctx context.Context, d leave.Deduction, actor string) (leave.Deduction, error) {
	next, err := leave.Machine.Transition(d.State, leave.DeductionStateConfirmed)
	if err != nil {
		return d, err
	}

	now := s.now().UTC()
	applied, err := s.ledger.Debit(ctx, leave.LedgerEntry{
		EmployeeID: d.EmployeeID,
		LeaveType:  d.LeaveType,
		Year:       d.Date.Year(),
		Units:      d.Units,
		Reference:  d.ID,
		CreatedAt:  now,
	})
	if err != nil {
		return d, err
	}
	if !applied {
		s.logger.Info("ledger already holds this deduction", zap.String("deduction_id", d.ID))
	}

	if err := s.deductions.UpdateState(ctx, d.ID, next, &actor, now); err != nil {
		return d, fmt.Errorf("failed to update deduction state: %w", err)
	}
	d.State = next
	d.ReviewedBy = &actor
	d.ReviewedAt = &now
	d.UpdatedAt = now
	return d, nil
}

// Review implements leave.DeductionService.
func (s *DeductionServiceImpl) Review(ctx context.Context, req leave.ReviewDeductionRequest) (leave.DeductionResponse, error) {
	if err := req.Validate(); err != nil {
		return leave.DeductionResponse{}, err
	}

	var updated leave.Deduction
	err := s.tx.WithinTransaction(ctx, func(txCtx context.Context) error {
		d, err := s.deductions.GetByIDForUpdate(txCtx, req.ID)
		if err != nil {
			return err
		}

		switch req.Action {
		case leave.ActionConfirm:
			if d.State == leave.DeductionStateConfirmed {
				updated = d
				return nil
			}
			updated, err = s.confirm(txCtx, d, req.Actor)
			return err
		case leave.ActionReject:
			next, err := leave.Machine.Transition(d.State, leave.DeductionStateRejected)
			if err != nil {
				return err
			}
			now := s.now().UTC()
			if err := s.deductions.UpdateState(txCtx, d.ID, next, &req.Actor, now); err != nil {
				return fmt.Errorf("failed to update deduction state: %w", err)
			}
			d.State = next
			d.ReviewedBy = &req.Actor
			d.ReviewedAt = &now
			d.UpdatedAt = now
			updated = d
			return nil
		}
		return leave.ErrUnknownAction
	})
	if err != nil {
		return leave.DeductionResponse{}, err
	}

	s.logger.Info("leave deduction reviewed",
		zap.String("deduction_id", updated.ID),
		zap.String("action", string(req.Action)),
		zap.String("state", string(updated.State)),
		zap.String("actor", req.Actor),
	)
	return leave.NewDeductionResponse(updated), nil
}

// List implements leave.DeductionService.
func (s *DeductionServiceImpl) List(ctx context.Context, filter leave.DeductionFilter) ([]leave.DeductionResponse, error) {
	deductions, err := s.deductions.List(ctx, filter)
	if err != nil {
		return nil, fmt.Errorf("failed to list deductions: %w", err)
	}
	resp := make([]leave.DeductionResponse, 0, len(deductions))
	for _, d := range deductions {
		resp = append(resp, leave.NewDeductionResponse(d))
	}
	return resp, nil
}
