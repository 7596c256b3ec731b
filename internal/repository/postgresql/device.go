package postgresql

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/cmlabs-hris/attendance-sync/internal/domain/attendance"
	"github.com/cmlabs-hris/attendance-sync/internal/domain/device"
	"github.com/cmlabs-hris/attendance-sync/internal/pkg/database"
	"github.com/jackc/pgx/v5"
)

// DeviceStore keeps terminal configuration and pull state.
type DeviceStore struct {
	db *database.DB
}

// NewDeviceRepository returns the device store. It also serves the per-device
// direction policies to the normalizer.
func NewDeviceRepository(db *database.DB) *DeviceStore {
	return &DeviceStore{db: db}
}

var (
	_ device.DeviceRepository = (*DeviceStore)(nil)
	_ device.StateRepository  = (*DeviceStore)(nil)
	_ attendance.PolicySource = (*DeviceStore)(nil)
)

const deviceColumns = `
	id, name, address, port, comm_key, timeout_seconds, codec, timezone, direction_policy,
	is_active, pull_start, pull_end, created_at, updated_at
`

func scanDevice(row pgx.Row) (device.Device, error) {
	var (
		d       device.Device
		commKey int64
		timeout int
	)
	err := row.Scan(
		&d.ID, &d.Name, &d.Address, &d.Port, &commKey, &timeout, &d.Codec, &d.Timezone, &d.DirectionPolicy,
		&d.IsActive, &d.PullStart, &d.PullEnd, &d.CreatedAt, &d.UpdatedAt,
	)
	d.CommKey = uint32(commKey)
	d.Timeout = time.Duration(timeout) * time.Second
	return d, err
}

func (r *DeviceStore) list(ctx context.Context, query string) ([]device.Device, error) {
	q := GetQuerier(ctx, r.db)

	rows, err := q.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to list devices: %w", err)
	}
	defer rows.Close()

	var devices []device.Device
	for rows.Next() {
		d, err := scanDevice(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan device: %w", err)
		}
		devices = append(devices, d)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating devices: %w", err)
	}
	return devices, nil
}

// GetByID implements device.DeviceRepository.
func (r *DeviceStore) GetByID(ctx context.Context, id string) (device.Device, error) {
	q := GetQuerier(ctx, r.db)

	d, err := scanDevice(q.QueryRow(ctx, `SELECT `+deviceColumns+` FROM devices WHERE id = $1`, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return device.Device{}, device.ErrDeviceNotFound
		}
		return device.Device{}, fmt.Errorf("failed to get device: %w", err)
	}
	return d, nil
}

// ListActive implements device.DeviceRepository.
func (r *DeviceStore) ListActive(ctx context.Context) ([]device.Device, error) {
	return r.list(ctx, `SELECT `+deviceColumns+` FROM devices WHERE is_active ORDER BY id`)
}

// List implements device.DeviceRepository.
func (r *DeviceStore) List(ctx context.Context) ([]device.Device, error) {
	return r.list(ctx, `SELECT `+deviceColumns+` FROM devices ORDER BY id`)
}

// DirectionPolicies implements attendance.PolicySource.
func (r *DeviceStore) DirectionPolicies(ctx context.Context) (map[string]attendance.DirectionPolicy, error) {
	q := GetQuerier(ctx, r.db)

	rows, err := q.Query(ctx, `SELECT id, direction_policy FROM devices WHERE direction_policy <> ''`)
	if err != nil {
		return nil, fmt.Errorf("failed to list direction policies: %w", err)
	}
	defer rows.Close()

	policies := make(map[string]attendance.DirectionPolicy)
	for rows.Next() {
		var (
			id     string
			policy attendance.DirectionPolicy
		)
		if err := rows.Scan(&id, &policy); err != nil {
			return nil, fmt.Errorf("failed to scan direction policy: %w", err)
		}
		if policy.IsValid() {
			policies[attendance.DeviceSource(id)] = policy
		}
	}
	return policies, rows.Err()
}

// GetState implements device.StateRepository.
func (r *DeviceStore) GetState(ctx context.Context, deviceID string) (device.State, error) {
	q := GetQuerier(ctx, r.db)

	st, err := scanState(q.QueryRow(ctx, `
		SELECT device_id, watermark, last_run_at, last_success, last_error, last_count
		FROM device_states WHERE device_id = $1
	`, deviceID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return device.State{DeviceID: deviceID}, nil
		}
		return device.State{}, fmt.Errorf("failed to get device state: %w", err)
	}
	return st, nil
}

func scanState(row pgx.Row) (device.State, error) {
	var (
		st        device.State
		watermark *time.Time
	)
	if err := row.Scan(&st.DeviceID, &watermark, &st.LastRunAt, &st.LastSuccess, &st.LastError, &st.LastCount); err != nil {
		return device.State{}, err
	}
	if watermark != nil {
		st.Cursor = device.Cursor{Watermark: watermark.UTC()}
	}
	return st, nil
}

// CommitCursor implements device.StateRepository.
func (r *DeviceStore) CommitCursor(ctx context.Context, deviceID string, cursor device.Cursor, count int, at time.Time) error {
	q := GetQuerier(ctx, r.db)

	var watermark *time.Time
	if !cursor.IsZero() {
		watermark = &cursor.Watermark
	}

	_, err := q.Exec(ctx, `
		INSERT INTO device_states (device_id, watermark, last_run_at, last_success, last_error, last_count)
		VALUES ($1, $2, $3, TRUE, NULL, $4)
		ON CONFLICT (device_id) DO UPDATE SET
			watermark = GREATEST(device_states.watermark, EXCLUDED.watermark),
			last_run_at = EXCLUDED.last_run_at,
			last_success = TRUE,
			last_error = NULL,
			last_count = EXCLUDED.last_count
	`, deviceID, watermark, at, count)
	if err != nil {
		return fmt.Errorf("failed to commit device cursor: %w", err)
	}
	return nil
}

// RecordFailure implements device.StateRepository.
func (r *DeviceStore) RecordFailure(ctx context.Context, deviceID string, reason string, at time.Time) error {
	q := GetQuerier(ctx, r.db)

	_, err := q.Exec(ctx, `
		INSERT INTO device_states (device_id, last_run_at, last_success, last_error, last_count)
		VALUES ($1, $2, FALSE, $3, 0)
		ON CONFLICT (device_id) DO UPDATE SET
			last_run_at = EXCLUDED.last_run_at,
			last_success = FALSE,
			last_error = EXCLUDED.last_error,
			last_count = 0
	`, deviceID, at, reason)
	if err != nil {
		return fmt.Errorf("failed to record device failure: %w", err)
	}
	return nil
}

// ListStates implements device.StateRepository.
func (r *DeviceStore) ListStates(ctx context.Context) ([]device.State, error) {
	q := GetQuerier(ctx, r.db)

	rows, err := q.Query(ctx, `
		SELECT device_id, watermark, last_run_at, last_success, last_error, last_count
		FROM device_states ORDER BY device_id
	`)
	if err != nil {
		return nil, fmt.Errorf("failed to list device states: %w", err)
	}
	defer rows.Close()

	var states []device.State
	for rows.Next() {
		st, err := scanState(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan device state: %w", err)
		}
		states = append(states, st)
	}
	return states, rows.Err()
}
