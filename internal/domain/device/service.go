package device

import "context"

// DeviceService pulls punches from terminals and reports their state
type DeviceService interface {
	// Sync pulls one device from its cursor, ingests the punches and commits the cursor
	Sync(ctx context.Context, deviceID string) (SyncResult, error)

	// SyncAll pulls every active device concurrently; failures are reported per device
	SyncAll(ctx context.Context) ([]SyncResult, error)

	// Status returns cursor and last run per device
	Status(ctx context.Context) ([]StatusResponse, error)
}
