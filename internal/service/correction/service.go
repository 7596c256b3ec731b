package correction

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/cmlabs-hris/attendance-sync/internal/domain/attendance"
	"github.com/cmlabs-hris/attendance-sync/internal/domain/correction"
	"github.com/cmlabs-hris/attendance-sync/internal/pkg/database"
	"github.com/cmlabs-hris/attendance-sync/internal/pkg/validator"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgconn"
	"go.uber.org/zap"
)

type Config struct {
	// Location decides which calendar date a punch time falls on.
	Location *time.Location
}

type CorrectionServiceImpl struct {
	tx         database.Transactor
	requests   correction.RequestRepository
	segments   attendance.SegmentRepository
	attendance attendance.AttendanceService
	cfg        Config
	logger     *zap.Logger
	now        func() time.Time
}

func NewCorrectionService(
	tx database.Transactor,
	requests correction.RequestRepository,
	segments attendance.SegmentRepository,
	attendanceService attendance.AttendanceService,
	cfg Config,
	logger *zap.Logger,
) correction.CorrectionService {
	if cfg.Location == nil {
		cfg.Location = time.UTC
	}
	return &CorrectionServiceImpl{
		tx:         tx,
		requests:   requests,
		segments:   segments,
		attendance: attendanceService,
		cfg:        cfg,
		logger:     logger,
		now:        time.Now,
	}
}

// Create implements correction.CorrectionService.
func (s *CorrectionServiceImpl) Create(ctx context.Context, req correction.CreateRequest) (correction.RequestResponse, error) {
	if err := req.Validate(); err != nil {
		return correction.RequestResponse{}, err
	}
	employeeID := strings.TrimSpace(req.EmployeeID)
	date, _ := validator.IsValidDate(req.Date)

	var punch *time.Time
	if req.PunchTime != "" {
		t, _ := validator.IsValidDateTime(req.PunchTime)
		if !s.onDate(t, date) {
			return correction.RequestResponse{}, correction.ErrPunchOutsideDay
		}
		t = t.UTC()
		punch = &t
	}

	segments, err := s.segments.ListByDay(ctx, employeeID, date)
	if err != nil {
		return correction.RequestResponse{}, fmt.Errorf("failed to load segments: %w", err)
	}
	if !missing(segments, req.Kind) {
		return correction.RequestResponse{}, correction.ErrDayNotMissing
	}

	now := s.now().UTC()
	rec := correction.Request{
		ID:          newID(),
		EmployeeID:  employeeID,
		Date:        date,
		Kind:        req.Kind,
		State:       correction.StatePending,
		PunchTime:   punch,
		Note:        strings.TrimSpace(req.Note),
		RequestedBy: req.RequestedBy,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if err := s.requests.Create(ctx, rec); err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return correction.RequestResponse{}, correction.ErrRequestPending
		}
		return correction.RequestResponse{}, err
	}

	s.logger.Info("correction requested",
		zap.String("request_id", rec.ID),
		zap.String("employee_id", rec.EmployeeID),
		zap.String("date", req.Date),
		zap.String("kind", string(rec.Kind)),
		zap.String("requested_by", rec.RequestedBy),
	)
	return correction.NewRequestResponse(rec), nil
}

// Review implements correction.CorrectionService. Approving a request that
// carries a punch time ingests that punch in the same transaction, so the day
// is rebuilt exactly when the request becomes approved.
func (s *CorrectionServiceImpl) Review(ctx context.Context, req correction.ReviewRequest) (correction.RequestResponse, error) {
	if err := req.Validate(); err != nil {
		return correction.RequestResponse{}, err
	}
	target, _ := req.Action.Target()

	var override *time.Time
	if req.PunchTime != "" {
		t, _ := validator.IsValidDateTime(req.PunchTime)
		t = t.UTC()
		override = &t
	}

	var updated correction.Request
	var frozen int
	err := s.tx.WithinTransaction(ctx, func(txCtx context.Context) error {
		rec, err := s.requests.GetByIDForUpdate(txCtx, req.ID)
		if err != nil {
			return err
		}

		next, err := correction.Machine.Transition(rec.State, target)
		if err != nil {
			return err
		}

		if next == correction.StateApproved {
			if override != nil {
				rec.PunchTime = override
			}
			if rec.PunchTime != nil {
				n, err := s.ingest(txCtx, rec)
				if err != nil {
					return err
				}
				frozen = n
			}
		}

		now := s.now().UTC()
		note := strings.TrimSpace(req.Note)
		if err := s.requests.UpdateState(txCtx, rec.ID, next, req.Actor, note, rec.PunchTime, now); err != nil {
			return fmt.Errorf("failed to update correction state: %w", err)
		}

		rec.State = next
		rec.ReviewedBy = &req.Actor
		rec.ReviewedAt = &now
		rec.ReviewNote = note
		rec.UpdatedAt = now
		updated = rec
		return nil
	})
	if err != nil {
		return correction.RequestResponse{}, err
	}

	s.logger.Info("correction reviewed",
		zap.String("request_id", updated.ID),
		zap.String("action", string(req.Action)),
		zap.String("state", string(updated.State)),
		zap.String("actor", req.Actor),
		zap.Bool("punch_ingested", updated.State == correction.StateApproved && updated.PunchTime != nil),
		zap.Int("frozen", frozen),
	)
	return correction.NewRequestResponse(updated), nil
}

// ingest stores the correction punch of an approved request and returns the
// number of frozen records the rebuild ran into.
func (s *CorrectionServiceImpl) ingest(ctx context.Context, rec correction.Request) (int, error) {
	if !s.onDate(*rec.PunchTime, rec.Date) {
		return 0, correction.ErrPunchOutsideDay
	}

	dir := attendance.DirectionIn
	if rec.Kind == correction.KindMissingCheckOut {
		dir = attendance.DirectionOut
	}
	result, err := s.attendance.Ingest(ctx, []attendance.RawPunch{{
		EmployeeIdentifier: rec.EmployeeID,
		Timestamp:          *rec.PunchTime,
		Direction:          dir,
		Source:             attendance.SourceCorrection,
		BatchID:            rec.ID,
	}})
	if err != nil {
		return 0, fmt.Errorf("failed to ingest correction punch: %w", err)
	}
	if len(result.Rejected) > 0 {
		return 0, fmt.Errorf("%w: %s", attendance.ErrUnknownEmployee, rec.EmployeeID)
	}
	return len(result.Frozen), nil
}

// List implements correction.CorrectionService.
func (s *CorrectionServiceImpl) List(ctx context.Context, filter correction.Filter) ([]correction.RequestResponse, error) {
	requests, err := s.requests.List(ctx, filter)
	if err != nil {
		return nil, fmt.Errorf("failed to list correction requests: %w", err)
	}
	resp := make([]correction.RequestResponse, 0, len(requests))
	for _, r := range requests {
		resp = append(resp, correction.NewRequestResponse(r))
	}
	return resp, nil
}

// onDate reports whether t falls on the calendar date of date in the configured zone.
func (s *CorrectionServiceImpl) onDate(t, date time.Time) bool {
	l := t.In(s.cfg.Location)
	return l.Year() == date.Year() && l.Month() == date.Month() && l.Day() == date.Day()
}

// missing reports whether the day's segments lack the side a request supplies.
func missing(segments []attendance.DaySegment, kind correction.Kind) bool {
	for _, seg := range segments {
		switch {
		case kind == correction.KindMissingCheckOut && seg.IsOpen:
			return true
		case kind == correction.KindMissingCheckIn && seg.MissingCheckIn:
			return true
		}
	}
	return false
}

func newID() string {
	id, err := uuid.NewV7()
	if err != nil {
		return uuid.NewString()
	}
	return id.String()
}
