package devicelink

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"
)

// Command codes understood by the terminals.
const (
	CmdGetLog        uint16 = 13
	CmdGetStatus     uint16 = 50
	CmdConnect       uint16 = 1000
	CmdExit          uint16 = 1001
	CmdEnableDevice  uint16 = 1002
	CmdDisableDevice uint16 = 1003
)

// Response status codes, carried in the first payload byte of every reply.
const (
	StatusOK           byte = 0
	StatusUnauthorized byte = 1
	StatusError        byte = 2
)

const (
	headerSize = 6

	// MaxPayload bounds a single frame. Anything larger is treated as a corrupt length.
	MaxPayload = 16 << 20
)

var (
	errFrameTooLarge = errors.New("declared payload length exceeds frame limit")
	errEmptyResponse = errors.New("response carries no status byte")
)

// Frame is one message on the wire: [2B command][4B payload length][payload], little-endian.
type Frame struct {
	Command uint16
	Payload []byte
}

// WriteFrame encodes f onto w.
func WriteFrame(w io.Writer, f Frame) error {
	if len(f.Payload) > MaxPayload {
		return errFrameTooLarge
	}
	buf := make([]byte, headerSize+len(f.Payload))
	binary.LittleEndian.PutUint16(buf[0:2], f.Command)
	binary.LittleEndian.PutUint32(buf[2:6], uint32(len(f.Payload)))
	copy(buf[headerSize:], f.Payload)
	_, err := w.Write(buf)
	return err
}

// ReadFrame reads one complete frame, blocking until the declared length is
// satisfied. It returns errFrameTooLarge before reading a payload larger than
// MaxPayload.
func ReadFrame(r io.Reader) (Frame, error) {
	var header [headerSize]byte
	if _, err := io.ReadFull(r, header[:]); err != nil {
		return Frame{}, err
	}

	f := Frame{Command: binary.LittleEndian.Uint16(header[0:2])}
	length := binary.LittleEndian.Uint32(header[2:6])
	if length > MaxPayload {
		return f, errFrameTooLarge
	}

	f.Payload = make([]byte, length)
	if _, err := io.ReadFull(r, f.Payload); err != nil {
		return f, err
	}
	return f, nil
}

// Response is a decoded reply frame.
type Response struct {
	Command uint16
	Status  byte
	Body    []byte
}

// ParseResponse splits a reply frame into status and body.
func ParseResponse(f Frame) (Response, error) {
	if len(f.Payload) < 1 {
		return Response{Command: f.Command}, errEmptyResponse
	}
	return Response{Command: f.Command, Status: f.Payload[0], Body: f.Payload[1:]}, nil
}

// NewResponseFrame builds a reply frame. Terminals and test doubles use it.
func NewResponseFrame(cmd uint16, status byte, body []byte) Frame {
	payload := make([]byte, 1+len(body))
	payload[0] = status
	copy(payload[1:], body)
	return Frame{Command: cmd, Payload: payload}
}

func statusText(s byte) string {
	switch s {
	case StatusOK:
		return "ok"
	case StatusUnauthorized:
		return "unauthorized"
	case StatusError:
		return "error"
	}
	return fmt.Sprintf("status %d", s)
}
