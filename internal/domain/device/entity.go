package device

import (
	"time"

	"github.com/cmlabs-hris/attendance-sync/internal/domain/attendance"
)

// DefaultPort is the TCP port terminals listen on out of the box.
const DefaultPort = 4370

// Device is a networked time clock the pipeline pulls punches from.
type Device struct {
	ID              string
	Name            string
	Address         string
	Port            int
	CommKey         uint32
	Timeout         time.Duration
	Codec           string
	Timezone        string
	DirectionPolicy attendance.DirectionPolicy
	IsActive        bool

	// PullStart and PullEnd force a reload of that window, ignoring the cursor.
	PullStart *time.Time
	PullEnd   *time.Time

	CreatedAt time.Time
	UpdatedAt time.Time
}

// Location returns the device's configured time zone, falling back to fallback.
func (d Device) Location(fallback *time.Location) *time.Location {
	if d.Timezone == "" {
		return fallback
	}
	loc, err := time.LoadLocation(d.Timezone)
	if err != nil {
		return fallback
	}
	return loc
}

// HasReloadWindow reports whether a forced reload window is configured.
func (d Device) HasReloadWindow() bool {
	return d.PullStart != nil && d.PullEnd != nil
}

// Cursor is the durable watermark of a device's punch log. Pulls take it as an
// argument and return the next value; it is committed only after the pulled
// punches are normalized.
type Cursor struct {
	Watermark time.Time
}

// IsZero reports whether the cursor has never been committed.
func (c Cursor) IsZero() bool {
	return c.Watermark.IsZero()
}

// Advance returns the later of c and t.
func (c Cursor) Advance(t time.Time) Cursor {
	if t.After(c.Watermark) {
		return Cursor{Watermark: t}
	}
	return c
}

// State is the persisted bookkeeping of a device: cursor plus last run outcome.
type State struct {
	DeviceID    string
	Cursor      Cursor
	LastRunAt   *time.Time
	LastSuccess bool
	LastError   *string
	LastCount   int
}
