package device

import (
	"context"
	"iter"

	"github.com/cmlabs-hris/attendance-sync/internal/domain/attendance"
)

// Link opens sessions to terminals.
type Link interface {
	// Connect dials and handshakes; failures are *ConnectionError
	Connect(ctx context.Context, d Device) (Session, error)
}

// Session is an authenticated connection to one terminal.
type Session interface {
	// Pull fetches the punch log from since onwards. Malformed responses are
	// *ProtocolError, transport failures *ConnectionError.
	Pull(ctx context.Context, since Cursor) (Batch, error)
	Close() error
}

// Batch is the result of one pull. Punches are decoded lazily.
type Batch interface {
	Punches() iter.Seq[attendance.RawPunch]
	// Cursor is the watermark to commit once the punches are normalized
	Cursor() Cursor
	Len() int
}
