package device

import (
	"cmp"
	"context"
	"errors"
	"fmt"
	"slices"
	"time"

	"github.com/cmlabs-hris/attendance-sync/internal/domain/attendance"
	"github.com/cmlabs-hris/attendance-sync/internal/domain/device"
	"github.com/segmentio/ksuid"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// DefaultWorkers bounds SyncAll when Config.Workers is unset.
const DefaultWorkers = 4

type Config struct {
	Workers int
}

type DeviceServiceImpl struct {
	devices    device.DeviceRepository
	states     device.StateRepository
	link       device.Link
	locker     device.Locker
	attendance attendance.AttendanceService
	cfg        Config
	logger     *zap.Logger
	now        func() time.Time
}

func NewDeviceService(
	devices device.DeviceRepository,
	states device.StateRepository,
	link device.Link,
	locker device.Locker,
	attendanceService attendance.AttendanceService,
	cfg Config,
	logger *zap.Logger,
) device.DeviceService {
	if cfg.Workers <= 0 {
		cfg.Workers = DefaultWorkers
	}
	return &DeviceServiceImpl{
		devices:    devices,
		states:     states,
		link:       link,
		locker:     locker,
		attendance: attendanceService,
		cfg:        cfg,
		logger:     logger,
		now:        time.Now,
	}
}

// Sync implements device.DeviceService.
func (s *DeviceServiceImpl) Sync(ctx context.Context, deviceID string) (device.SyncResult, error) {
	d, err := s.devices.GetByID(ctx, deviceID)
	if err != nil {
		return device.SyncResult{DeviceID: deviceID}, err
	}
	if !d.IsActive {
		return device.SyncResult{DeviceID: deviceID}, device.ErrDeviceInactive
	}
	return s.sync(ctx, d)
}

func (s *DeviceServiceImpl) sync(ctx context.Context, d device.Device) (device.SyncResult, error) {
	result := device.SyncResult{DeviceID: d.ID}

	release, err := s.locker.Acquire(ctx, d.ID)
	if err != nil {
		return result, err
	}
	defer release()

	log := s.logger.With(zap.String("device_id", d.ID), zap.String("address", d.Address))

	err = s.pull(ctx, d, &result)
	if err != nil {
		result.Error = err.Error()
		// The failure is recorded even when ctx is already cancelled.
		if recErr := s.states.RecordFailure(context.WithoutCancel(ctx), d.ID, err.Error(), s.now().UTC()); recErr != nil {
			log.Error("failed to record pull failure", zap.Error(recErr))
		}
		switch {
		case device.IsConnectionError(err):
			log.Warn("device unreachable, cursor kept", zap.Error(err))
		case device.IsProtocolError(err):
			log.Error("malformed device reply, cursor kept", zap.Error(err))
		default:
			log.Error("device pull failed, cursor kept", zap.Error(err))
		}
		return result, err
	}

	result.Success = true
	log.Info("device pulled",
		zap.Int("pulled", result.Pulled),
		zap.Int("stored", result.Stored),
		zap.Int("duplicates", result.Duplicates),
		zap.Int("days", result.Days),
		zap.Int("rejected", len(result.Rejected)),
	)
	return result, nil
}

// pull runs one session and commits the cursor only after the punches are ingested.
func (s *DeviceServiceImpl) pull(ctx context.Context, d device.Device, result *device.SyncResult) error {
	state, err := s.states.GetState(ctx, d.ID)
	if err != nil {
		return fmt.Errorf("failed to load device state: %w", err)
	}

	since := state.Cursor
	if d.HasReloadWindow() {
		since = device.Cursor{Watermark: *d.PullStart}
	}

	session, err := s.link.Connect(ctx, d)
	if err != nil {
		return err
	}
	defer session.Close()

	batch, err := session.Pull(ctx, since)
	if err != nil {
		return err
	}

	batchID := ksuid.New().String()
	var punches []attendance.RawPunch
	for p := range batch.Punches() {
		if d.HasReloadWindow() && p.Timestamp.After(*d.PullEnd) {
			continue
		}
		p.BatchID = batchID
		punches = append(punches, p)
	}
	result.Pulled = len(punches)

	if len(punches) > 0 {
		ingested, err := s.attendance.Ingest(ctx, punches)
		if err != nil {
			return fmt.Errorf("failed to ingest device punches: %w", err)
		}
		result.Stored = ingested.Stored
		result.Duplicates = ingested.Duplicates
		result.Days = len(ingested.Days)
		result.Rejected = ingested.Rejected
		result.Frozen = ingested.Frozen
	}

	// A reload never moves the cursor backwards; CommitCursor ignores older values.
	next := state.Cursor
	for _, p := range punches {
		next = next.Advance(p.Timestamp)
	}
	if err := s.states.CommitCursor(ctx, d.ID, next, result.Pulled, s.now().UTC()); err != nil {
		return fmt.Errorf("failed to commit cursor: %w", err)
	}
	if !next.IsZero() {
		c := next.Watermark.Format(time.RFC3339)
		result.Cursor = &c
	}
	return nil
}

// SyncAll implements device.DeviceService.
func (s *DeviceServiceImpl) SyncAll(ctx context.Context) ([]device.SyncResult, error) {
	devices, err := s.devices.ListActive(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list devices: %w", err)
	}

	results := make([]device.SyncResult, len(devices))
	g, gCtx := errgroup.WithContext(ctx)
	g.SetLimit(s.cfg.Workers)

	for i, d := range devices {
		g.Go(func() error {
			res, err := s.sync(gCtx, d)
			if err != nil && res.Error == "" {
				res.Error = err.Error()
			}
			results[i] = res
			// Device failures stay in the result; only cancellation stops the group.
			if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
				return err
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return results, err
	}
	return results, nil
}

// Status implements device.DeviceService.
func (s *DeviceServiceImpl) Status(ctx context.Context) ([]device.StatusResponse, error) {
	devices, err := s.devices.List(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list devices: %w", err)
	}
	states, err := s.states.ListStates(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list device states: %w", err)
	}

	byDevice := make(map[string]device.State, len(states))
	for _, st := range states {
		byDevice[st.DeviceID] = st
	}

	slices.SortFunc(devices, func(a, b device.Device) int {
		return cmp.Compare(a.Name, b.Name)
	})

	resp := make([]device.StatusResponse, 0, len(devices))
	for _, d := range devices {
		resp = append(resp, device.NewStatusResponse(d, byDevice[d.ID]))
	}
	return resp, nil
}
