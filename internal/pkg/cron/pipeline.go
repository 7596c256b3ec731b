package cron

import (
	"context"
	"fmt"
	"time"

	"github.com/cmlabs-hris/attendance-sync/internal/domain/attendance"
	"github.com/cmlabs-hris/attendance-sync/internal/domain/device"
	"go.uber.org/zap"
)

// PipelineJobs pulls the terminals and re-reconciles recent days on a schedule.
type PipelineJobs struct {
	deviceService     device.DeviceService
	attendanceService attendance.AttendanceService
	daysBack          int
	location          *time.Location
	logger            *zap.Logger
	now               func() time.Time
}

func NewPipelineJobs(
	deviceService device.DeviceService,
	attendanceService attendance.AttendanceService,
	daysBack int,
	location *time.Location,
	logger *zap.Logger,
) *PipelineJobs {
	if location == nil {
		location = time.UTC
	}
	return &PipelineJobs{
		deviceService:     deviceService,
		attendanceService: attendanceService,
		daysBack:          daysBack,
		location:          location,
		logger:            logger,
		now:               time.Now,
	}
}

func (j *PipelineJobs) RegisterJobs(scheduler *Scheduler, pullInterval, reconcileInterval time.Duration) {
	scheduler.AddJob("pull_devices", pullInterval, j.PullDevices)
	scheduler.AddJob("reconcile_recent_days", reconcileInterval, j.ReconcileRecentDays)
}

// PullDevices syncs every active terminal. Individual device failures are logged
// and do not fail the job.
func (j *PipelineJobs) PullDevices(ctx context.Context) error {
	results, err := j.deviceService.SyncAll(ctx)
	if err != nil {
		return fmt.Errorf("failed to sync devices: %w", err)
	}

	failed := 0
	for _, r := range results {
		if !r.Success {
			failed++
		}
	}
	j.logger.Info("Cron: device pull finished", zap.Int("devices", len(results)), zap.Int("failed", failed))
	return nil
}

// ReconcileRecentDays re-classifies the last daysBack local days, today included.
func (j *PipelineJobs) ReconcileRecentDays(ctx context.Context) error {
	today := j.now().In(j.location)
	from := today.AddDate(0, 0, -(j.daysBack - 1))

	res, err := j.attendanceService.Reconcile(ctx, attendance.ReconcileRequest{
		DateFrom: from.Format(attendance.DateLayout),
		DateTo:   today.Format(attendance.DateLayout),
	})
	if err != nil {
		return fmt.Errorf("failed to reconcile recent days: %w", err)
	}

	j.logger.Info("Cron: reconciliation finished",
		zap.Int("days", len(res.Days)),
		zap.Int("frozen", len(res.Frozen)),
	)
	return nil
}
