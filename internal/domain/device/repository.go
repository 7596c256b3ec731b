package device

import (
	"context"
	"time"
)

// DeviceRepository reads terminal configuration.
type DeviceRepository interface {
	GetByID(ctx context.Context, id string) (Device, error)
	ListActive(ctx context.Context) ([]Device, error)
	List(ctx context.Context) ([]Device, error)
}

// StateRepository persists the cursor and last run of each device.
type StateRepository interface {
	// GetState returns the stored state, or a zero state for a device never pulled
	GetState(ctx context.Context, deviceID string) (State, error)

	// CommitCursor records a successful pull and moves the cursor forward.
	// A cursor older than the stored one is ignored.
	CommitCursor(ctx context.Context, deviceID string, cursor Cursor, count int, at time.Time) error

	// RecordFailure records a failed pull and leaves the cursor untouched
	RecordFailure(ctx context.Context, deviceID string, reason string, at time.Time) error

	// ListStates returns the state of every device that has one
	ListStates(ctx context.Context) ([]State, error)
}

// Locker serializes pulls of the same device across workers and processes.
type Locker interface {
	// Acquire takes the device lock or fails with ErrSyncInProgress
	Acquire(ctx context.Context, deviceID string) (release func(), err error)
}
