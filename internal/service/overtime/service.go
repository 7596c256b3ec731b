package overtime

import (
	"context"
	"fmt"
	"slices"
	"strings"
	"time"

	"github.com/cmlabs-hris/attendance-sync/internal/domain/attendance"
	"github.com/cmlabs-hris/attendance-sync/internal/domain/overtime"
	"github.com/cmlabs-hris/attendance-sync/internal/pkg/database"
	"github.com/cmlabs-hris/attendance-sync/internal/pkg/workflow"
	"go.uber.org/zap"
)

// Config holds the overtime rates and the weekly rest days.
type Config struct {
	Rates   overtime.RateConfig
	Weekend []time.Weekday
}

type OvertimeServiceImpl struct {
	tx       database.Transactor
	records  overtime.OvertimeRepository
	holidays overtime.HolidayRepository
	cfg      Config
	logger   *zap.Logger
	now      func() time.Time
}

func NewOvertimeService(
	tx database.Transactor,
	records overtime.OvertimeRepository,
	holidays overtime.HolidayRepository,
	cfg Config,
	logger *zap.Logger,
) overtime.OvertimeService {
	return &OvertimeServiceImpl{
		tx:       tx,
		records:  records,
		holidays: holidays,
		cfg:      cfg,
		logger:   logger,
		now:      time.Now,
	}
}

// ProcessDays implements overtime.OvertimeService.
func (s *OvertimeServiceImpl) ProcessDays(ctx context.Context, days []attendance.ClassifiedDay) ([]*workflow.ReconciliationConflict, error) {
	if len(days) == 0 {
		return nil, nil
	}

	cal, err := s.calendar(ctx, days)
	if err != nil {
		return nil, err
	}

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

		var result overtime.ComputeResult
		err := s.tx.WithinTransaction(ctx, func(txCtx context.Context) error {
			existing, err := s.records.GetByEmployeeDates(txCtx, employeeID, dates)
			if err != nil {
				return fmt.Errorf("failed to load overtime records: %w", err)
			}

			result = ComputeOvertime(empDays, s.cfg.Rates, cal, existing)
			for _, r := range result.Upserts {
				if err := s.records.Upsert(txCtx, r); err != nil {
					return fmt.Errorf("failed to save overtime record: %w", err)
				}
			}
			for _, r := range result.Deletes {
				if err := s.records.Delete(txCtx, r.ID); err != nil {
					return fmt.Errorf("failed to delete overtime record: %w", err)
				}
			}
			return nil
		})
		if err != nil {
			return frozen, fmt.Errorf("overtime for employee %s: %w", employeeID, err)
		}

		for _, c := range result.Frozen {
			s.logger.Warn("overtime record is frozen, recompute skipped",
				zap.String("record_id", c.RecordID),
				zap.String("employee_id", c.EmployeeID),
				zap.Time("date", c.Date),
			)
		}
		frozen = append(frozen, result.Frozen...)
	}
	return frozen, nil
}

// calendar builds the rate calendar covering the given days.
func (s *OvertimeServiceImpl) calendar(ctx context.Context, days []attendance.ClassifiedDay) (overtime.Calendar, error) {
	cal := overtime.WeekCalendar{Weekend: s.cfg.Weekend, Holidays: map[string]struct{}{}}
	if s.holidays == nil {
		return cal, nil
	}

	from, to := days[0].Date, days[0].Date
	for _, d := range days[1:] {
		if d.Date.Before(from) {
			from = d.Date
		}
		if d.Date.After(to) {
			to = d.Date
		}
	}

	holidays, err := s.holidays.ListBetween(ctx, from, to)
	if err != nil {
		return nil, fmt.Errorf("failed to load holidays: %w", err)
	}
	for _, h := range holidays {
		cal.Holidays[h.Date.Format(attendance.DateLayout)] = struct{}{}
	}
	return cal, nil
}

// Transition implements overtime.OvertimeService.
func (s *OvertimeServiceImpl) Transition(ctx context.Context, req overtime.TransitionRequest) (overtime.RecordResponse, error) {
	if err := req.Validate(); err != nil {
		return overtime.RecordResponse{}, err
	}
	target, _ := req.Action.Target()

	var updated overtime.Record
	err := s.tx.WithinTransaction(ctx, func(txCtx context.Context) error {
		rec, err := s.records.GetByIDForUpdate(txCtx, req.ID)
		if err != nil {
			return err
		}

		next, err := overtime.Machine.Transition(rec.State, target)
		if err != nil {
			return err
		}

		now := s.now().UTC()
		var reviewer, note *string
		if next == overtime.StateApproved || next == overtime.StateRejected {
			reviewer = &req.Actor
		}
		if n := strings.TrimSpace(req.Note); n != "" {
			note = &n
		}
		if err := s.records.UpdateState(txCtx, rec.ID, next, reviewer, note, now); err != nil {
			return fmt.Errorf("failed to update overtime state: %w", err)
		}

		rec.State = next
		rec.ReviewedBy = reviewer
		rec.Note = note
		rec.ReviewedAt = nil
		if reviewer != nil {
			rec.ReviewedAt = &now
		}
		rec.UpdatedAt = now
		updated = rec
		return nil
	})
	if err != nil {
		return overtime.RecordResponse{}, err
	}

	s.logger.Info("overtime transition",
		zap.String("record_id", updated.ID),
		zap.String("action", string(req.Action)),
		zap.String("state", string(updated.State)),
		zap.String("actor", req.Actor),
	)
	return overtime.NewRecordResponse(updated), nil
}

// List implements overtime.OvertimeService.
func (s *OvertimeServiceImpl) List(ctx context.Context, filter overtime.Filter) ([]overtime.RecordResponse, error) {
	records, err := s.records.List(ctx, filter)
	if err != nil {
		return nil, fmt.Errorf("failed to list overtime records: %w", err)
	}
	resp := make([]overtime.RecordResponse, 0, len(records))
	for _, r := range records {
		resp = append(resp, overtime.NewRecordResponse(r))
	}
	return resp, nil
}
