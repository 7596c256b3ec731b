package attendance

import (
	"context"
	"fmt"

	"github.com/cmlabs-hris/attendance-sync/internal/domain/attendance"
	"go.uber.org/zap"
)

// ListRejected implements attendance.AttendanceService.
func (s *AttendanceServiceImpl) ListRejected(ctx context.Context, filter attendance.RejectedFilter) ([]attendance.RejectedPunchResponse, error) {
	rejected, err := s.punches.ListRejected(ctx, filter)
	if err != nil {
		return nil, fmt.Errorf("failed to list rejected punches: %w", err)
	}
	resp := make([]attendance.RejectedPunchResponse, 0, len(rejected))
	for _, rj := range rejected {
		resp = append(resp, attendance.NewRejectedPunchResponse(rj))
	}
	return resp, nil
}

// ReprocessRejected implements attendance.AttendanceService. Stored rejections
// are attributed again against the current employee directory. Those that now
// resolve are ingested and removed from the rejection store; the rest stay
// where they are and are not stored a second time.
func (s *AttendanceServiceImpl) ReprocessRejected(ctx context.Context, req attendance.ReprocessRejectedRequest) (attendance.ReprocessRejectedResponse, error) {
	if err := req.Validate(); err != nil {
		return attendance.ReprocessRejectedResponse{}, err
	}

	stored, err := s.punches.ListRejected(ctx, attendance.RejectedFilter{
		BatchID: req.BatchID,
		IDs:     req.IDs,
		Limit:   attendance.MaxReprocessRejected,
	})
	if err != nil {
		return attendance.ReprocessRejectedResponse{}, fmt.Errorf("failed to list rejected punches: %w", err)
	}

	resp := attendance.ReprocessRejectedResponse{
		Total: len(stored),
		Days:  []attendance.ClassifiedDayResponse{},
	}
	if len(stored) == 0 {
		return resp, nil
	}

	punches := make([]attendance.RawPunch, 0, len(stored))
	for _, rj := range stored {
		punches = append(punches, rj.Punch)
	}
	resolved, err := s.resolve(ctx, punches)
	if err != nil {
		return attendance.ReprocessRejectedResponse{}, err
	}

	var known []attendance.RawPunch
	var ids []int64
	for _, rj := range stored {
		k, _ := Attribute([]attendance.RawPunch{rj.Punch}, lookup(resolved))
		if len(k) == 0 {
			continue
		}
		known = append(known, k[0])
		ids = append(ids, rj.ID)
	}
	resp.Reprocessed = len(known)
	resp.StillRejected = resp.Total - resp.Reprocessed

	result := attendance.IngestResult{Received: len(known)}
	if err := s.store(ctx, known, &result); err != nil {
		return attendance.ReprocessRejectedResponse{}, err
	}
	if err := s.punches.DeleteRejected(ctx, ids); err != nil {
		return attendance.ReprocessRejectedResponse{}, fmt.Errorf("failed to clear reprocessed punches: %w", err)
	}

	resp.Stored = result.Stored
	resp.Duplicates = result.Duplicates
	resp.Frozen = result.Frozen
	for _, d := range result.Days {
		resp.Days = append(resp.Days, attendance.NewClassifiedDayResponse(d))
	}

	s.logger.Info("rejected punches reprocessed",
		zap.Int("total", resp.Total),
		zap.Int("reprocessed", resp.Reprocessed),
		zap.Int("still_rejected", resp.StillRejected),
		zap.Int("days", len(resp.Days)),
	)
	return resp, nil
}
