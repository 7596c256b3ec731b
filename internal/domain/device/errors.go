package device

import (
	"errors"
	"fmt"
)

// Device domain errors
var (
	ErrDeviceNotFound   = errors.New("device not found")
	ErrDeviceInactive   = errors.New("device is not active")
	ErrSyncInProgress   = errors.New("a pull is already running for this device")
	ErrUnknownCodec     = errors.New("unknown frame codec")
	ErrHandshakeRefused = errors.New("terminal refused the handshake")
)

// ConnectionError reports a terminal that could not be reached or timed out.
// It is transient and the cursor is never advanced.
type ConnectionError struct {
	Address string
	Op      string
	Err     error
}

func (e *ConnectionError) Error() string {
	return fmt.Sprintf("device %s: %s: %v", e.Address, e.Op, e.Err)
}

func (e *ConnectionError) Unwrap() error {
	return e.Err
}

// ProtocolError reports a malformed frame or record array. The pull is aborted
// and the cursor is never advanced.
type ProtocolError struct {
	Address string
	Command uint16
	Reason  string
}

func (e *ProtocolError) Error() string {
	return fmt.Sprintf("device %s: protocol error on command %d: %s", e.Address, e.Command, e.Reason)
}

// IsConnectionError reports whether err wraps a ConnectionError.
func IsConnectionError(err error) bool {
	var ce *ConnectionError
	return errors.As(err, &ce)
}

// IsProtocolError reports whether err wraps a ProtocolError.
func IsProtocolError(err error) bool {
	var pe *ProtocolError
	return errors.As(err, &pe)
}
