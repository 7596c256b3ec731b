package devicelink

import (
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"iter"
	"net"
	"strconv"
	"sync"
	"time"

	"github.com/cmlabs-hris/attendance-sync/internal/domain/attendance"
	"github.com/cmlabs-hris/attendance-sync/internal/domain/device"
)

const defaultTimeout = 10 * time.Second

var errSessionBroken = errors.New("session stream is out of sync")

// Options configures a terminal session.
type Options struct {
	Address  string
	Port     int
	Timeout  time.Duration
	CommKey  uint32
	Codec    Codec
	Location *time.Location
	// Source is stamped on every punch pulled through the session.
	Source string
}

// Session is an open, authenticated connection to a terminal. Requests on a
// session are serialized.
type Session struct {
	conn   net.Conn
	opts   Options
	addr   string
	mu     sync.Mutex
	broken bool
}

// Dial connects to a terminal and performs the handshake. Refused connections,
// timeouts and rejected handshakes are *device.ConnectionError.
func Dial(ctx context.Context, opts Options) (*Session, error) {
	if opts.Timeout <= 0 {
		opts.Timeout = defaultTimeout
	}
	if opts.Codec == nil {
		opts.Codec = unixCodec{}
	}
	if opts.Location == nil {
		opts.Location = time.UTC
	}
	port := opts.Port
	if port == 0 {
		port = device.DefaultPort
	}
	addr := net.JoinHostPort(opts.Address, strconv.Itoa(port))

	dialer := net.Dialer{Timeout: opts.Timeout}
	conn, err := dialer.DialContext(ctx, "tcp", addr)
	if err != nil {
		return nil, &device.ConnectionError{Address: addr, Op: "dial", Err: err}
	}

	s := &Session{conn: conn, opts: opts, addr: addr}
	if err := s.handshake(ctx); err != nil {
		conn.Close()
		return nil, err
	}
	return s, nil
}

func (s *Session) handshake(ctx context.Context) error {
	payload := make([]byte, 4)
	binary.LittleEndian.PutUint32(payload, s.opts.CommKey)

	resp, err := s.exchange(ctx, CmdConnect, payload)
	if err != nil {
		var pe *device.ProtocolError
		if errors.As(err, &pe) {
			return &device.ConnectionError{Address: s.addr, Op: "handshake", Err: err}
		}
		return err
	}
	if resp.Status != StatusOK {
		return &device.ConnectionError{
			Address: s.addr,
			Op:      "handshake",
			Err:     fmt.Errorf("%w: %s", device.ErrHandshakeRefused, statusText(resp.Status)),
		}
	}
	return nil
}

// exchange writes one request frame and reads its reply.
func (s *Session) exchange(ctx context.Context, cmd uint16, payload []byte) (Response, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	op := commandName(cmd)
	if s.broken {
		return Response{}, &device.ConnectionError{Address: s.addr, Op: op, Err: errSessionBroken}
	}

	deadline := time.Now().Add(s.opts.Timeout)
	if d, ok := ctx.Deadline(); ok && d.Before(deadline) {
		deadline = d
	}
	if err := s.conn.SetDeadline(deadline); err != nil {
		return Response{}, &device.ConnectionError{Address: s.addr, Op: op, Err: err}
	}
	// Unblock pending I/O as soon as the caller gives up.
	stop := context.AfterFunc(ctx, func() {
		s.conn.SetDeadline(time.Unix(1, 0))
	})
	defer stop()

	if err := WriteFrame(s.conn, Frame{Command: cmd, Payload: payload}); err != nil {
		s.broken = true
		return Response{}, &device.ConnectionError{Address: s.addr, Op: op, Err: contextCause(ctx, err)}
	}

	f, err := ReadFrame(s.conn)
	if err != nil {
		s.broken = true
		if errors.Is(err, errFrameTooLarge) {
			return Response{}, s.protocolError(cmd, err.Error())
		}
		return Response{}, &device.ConnectionError{Address: s.addr, Op: op, Err: contextCause(ctx, err)}
	}
	if f.Command != cmd {
		s.broken = true
		return Response{}, s.protocolError(cmd, fmt.Sprintf("reply carries command %d", f.Command))
	}

	resp, err := ParseResponse(f)
	if err != nil {
		return Response{}, s.protocolError(cmd, err.Error())
	}
	return resp, nil
}

// command is exchange for requests that only need an ok status back.
func (s *Session) command(ctx context.Context, cmd uint16, payload []byte) (Response, error) {
	resp, err := s.exchange(ctx, cmd, payload)
	if err != nil {
		return resp, err
	}
	if resp.Status != StatusOK {
		return resp, s.protocolError(cmd, "terminal replied "+statusText(resp.Status))
	}
	return resp, nil
}

func (s *Session) protocolError(cmd uint16, reason string) error {
	return &device.ProtocolError{Address: s.addr, Command: cmd, Reason: reason}
}

// TerminalStatus is the reply of a get-status request.
type TerminalStatus struct {
	Users   uint32
	Records uint32
}

// Status asks the terminal for its user and punch record counts.
func (s *Session) Status(ctx context.Context) (TerminalStatus, error) {
	resp, err := s.command(ctx, CmdGetStatus, nil)
	if err != nil {
		return TerminalStatus{}, err
	}
	if len(resp.Body) != 8 {
		return TerminalStatus{}, s.protocolError(CmdGetStatus, fmt.Sprintf("status body of %d bytes, want 8", len(resp.Body)))
	}
	return TerminalStatus{
		Users:   binary.LittleEndian.Uint32(resp.Body[0:4]),
		Records: binary.LittleEndian.Uint32(resp.Body[4:8]),
	}, nil
}

// Pull fetches the whole punch log and returns the records at or after since.
// The terminal is disabled for the duration of the transfer. The returned batch
// is fully validated: record boundaries are checked against the record count
// the terminal reports, so a malformed reply never yields a cursor.
func (s *Session) Pull(ctx context.Context, since device.Cursor) (device.Batch, error) {
	if _, err := s.command(ctx, CmdDisableDevice, nil); err != nil {
		return nil, err
	}

	body, pullErr := s.fetchLog(ctx)

	if _, err := s.command(ctx, CmdEnableDevice, nil); err != nil && pullErr == nil {
		pullErr = err
	}
	if pullErr != nil {
		return nil, pullErr
	}

	return &batch{
		body:   body,
		codec:  s.opts.Codec,
		loc:    s.opts.Location,
		since:  since,
		source: s.opts.Source,
	}, nil
}

func (s *Session) fetchLog(ctx context.Context) ([]byte, error) {
	status, err := s.Status(ctx)
	if err != nil {
		return nil, err
	}

	resp, err := s.command(ctx, CmdGetLog, nil)
	if err != nil {
		return nil, err
	}

	size := s.opts.Codec.RecordSize()
	if len(resp.Body)%size != 0 {
		return nil, s.protocolError(CmdGetLog, fmt.Sprintf("record array of %d bytes is not a multiple of %d", len(resp.Body), size))
	}
	if got := len(resp.Body) / size; got != int(status.Records) {
		return nil, s.protocolError(CmdGetLog, fmt.Sprintf("terminal announced %d records, sent %d", status.Records, got))
	}
	return resp.Body, nil
}

// Close ends the session. The exit command is best effort.
func (s *Session) Close() error {
	if !s.broken {
		ctx, cancel := context.WithTimeout(context.Background(), s.opts.Timeout)
		_, _ = s.exchange(ctx, CmdExit, nil)
		cancel()
	}
	return s.conn.Close()
}

type batch struct {
	body   []byte
	codec  Codec
	loc    *time.Location
	since  device.Cursor
	source string
}

func (b *batch) Punches() iter.Seq[attendance.RawPunch] {
	return func(yield func(attendance.RawPunch) bool) {
		size := b.codec.RecordSize()
		for i := 0; i*size < len(b.body); i++ {
			rec := b.codec.Decode(b.body[i*size:(i+1)*size], b.loc)
			if !b.since.IsZero() && rec.Timestamp.Before(b.since.Watermark) {
				continue
			}
			seq := int64(i)
			p := attendance.RawPunch{
				EmployeeIdentifier: strconv.FormatUint(uint64(rec.UserID), 10),
				Timestamp:          rec.Timestamp,
				Direction:          attendance.DirectionFromStatus(int(rec.InOut)),
				Source:             b.source,
				SequenceHint:       &seq,
				VerifyMode:         int(rec.VerifyMode),
			}
			if !yield(p) {
				return
			}
		}
	}
}

func (b *batch) Cursor() device.Cursor {
	c := b.since
	for p := range b.Punches() {
		c = c.Advance(p.Timestamp)
	}
	return c
}

func (b *batch) Len() int {
	n := 0
	for range b.Punches() {
		n++
	}
	return n
}

// Connector opens sessions from stored device configuration.
type Connector struct {
	timeout  time.Duration
	location *time.Location
}

// NewConnector returns a device.Link. timeout and loc apply to devices that do not set their own.
func NewConnector(timeout time.Duration, loc *time.Location) *Connector {
	return &Connector{timeout: timeout, location: loc}
}

// Connect implements device.Link.
func (c *Connector) Connect(ctx context.Context, d device.Device) (device.Session, error) {
	codec, err := CodecByName(d.Codec)
	if err != nil {
		return nil, err
	}
	timeout := d.Timeout
	if timeout <= 0 {
		timeout = c.timeout
	}

	s, err := Dial(ctx, Options{
		Address:  d.Address,
		Port:     d.Port,
		Timeout:  timeout,
		CommKey:  d.CommKey,
		Codec:    codec,
		Location: d.Location(c.location),
		Source:   attendance.DeviceSource(d.ID),
	})
	if err != nil {
		return nil, err
	}
	return s, nil
}

func commandName(cmd uint16) string {
	switch cmd {
	case CmdConnect:
		return "handshake"
	case CmdExit:
		return "exit"
	case CmdGetLog:
		return "get-log"
	case CmdGetStatus:
		return "get-status"
	case CmdEnableDevice:
		return "enable-device"
	case CmdDisableDevice:
		return "disable-device"
	}
	return "command " + strconv.Itoa(int(cmd))
}

// contextCause prefers the context error over the deadline error it caused.
func contextCause(ctx context.Context, err error) error {
	if ctxErr := ctx.Err(); ctxErr != nil {
		return ctxErr
	}
	// The socket deadline can fire a moment before the context timer does.
	if d, ok := ctx.Deadline(); ok && !time.Now().Before(d) {
		return context.DeadlineExceeded
	}
	return err
}
