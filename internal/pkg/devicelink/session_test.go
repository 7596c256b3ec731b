package devicelink

import (
	"context"
	"encoding/binary"
	"errors"
	"net"
	"sync/atomic"
	"testing"
	"time"

	"github.com/cmlabs-hris/attendance-sync/internal/domain/attendance"
	"github.com/cmlabs-hris/attendance-sync/internal/domain/device"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeTerminal speaks the terminal side of the protocol on a loopback listener.
type fakeTerminal struct {
	ln      net.Listener
	commKey uint32
	codec   Codec
	records []Record

	chunked   bool // write replies a few bytes at a time
	silent    bool // accept but never answer
	trimLog   int  // drop this many bytes from the get-log body
	announce  int  // record count announced by get-status, -1 for the real count
	oversized bool // answer get-log with an impossible length

	disabled atomic.Int32
	enabled  atomic.Int32
}

// newFakeTerminal starts a terminal; configure runs before the first connection is accepted.
func newFakeTerminal(t *testing.T, configure func(*fakeTerminal), records ...Record) *fakeTerminal {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)

	f := &fakeTerminal{ln: ln, commKey: 1234, codec: unixCodec{}, records: records, announce: -1}
	if configure != nil {
		configure(f)
	}
	go f.acceptLoop()
	t.Cleanup(func() { ln.Close() })
	return f
}

func (f *fakeTerminal) options() Options {
	addr := f.ln.Addr().(*net.TCPAddr)
	return Options{
		Address: addr.IP.String(),
		Port:    addr.Port,
		Timeout: 2 * time.Second,
		CommKey: f.commKey,
		Codec:   f.codec,
		Source:  attendance.DeviceSource("dev-1"),
	}
}

func (f *fakeTerminal) acceptLoop() {
	for {
		conn, err := f.ln.Accept()
		if err != nil {
			return
		}
		go f.serve(conn)
	}
}

func (f *fakeTerminal) serve(conn net.Conn) {
	defer conn.Close()
	for {
		req, err := ReadFrame(conn)
		if err != nil {
			return
		}
		if f.silent {
			continue
		}

		switch req.Command {
		case CmdConnect:
			status := StatusOK
			if len(req.Payload) != 4 || binary.LittleEndian.Uint32(req.Payload) != f.commKey {
				status = StatusUnauthorized
			}
			f.reply(conn, NewResponseFrame(req.Command, status, nil))
		case CmdDisableDevice:
			f.disabled.Add(1)
			f.reply(conn, NewResponseFrame(req.Command, StatusOK, nil))
		case CmdEnableDevice:
			f.enabled.Add(1)
			f.reply(conn, NewResponseFrame(req.Command, StatusOK, nil))
		case CmdGetStatus:
			count := len(f.records)
			if f.announce >= 0 {
				count = f.announce
			}
			body := make([]byte, 8)
			binary.LittleEndian.PutUint32(body[0:4], 10)
			binary.LittleEndian.PutUint32(body[4:8], uint32(count))
			f.reply(conn, NewResponseFrame(req.Command, StatusOK, body))
		case CmdGetLog:
			if f.oversized {
				header := make([]byte, headerSize)
				binary.LittleEndian.PutUint16(header[0:2], CmdGetLog)
				binary.LittleEndian.PutUint32(header[2:6], MaxPayload+10)
				conn.Write(header)
				continue
			}
			var body []byte
			for _, r := range f.records {
				body = append(body, f.codec.Encode(r, time.UTC)...)
			}
			body = body[:len(body)-f.trimLog]
			f.reply(conn, NewResponseFrame(req.Command, StatusOK, body))
		case CmdExit:
			f.reply(conn, NewResponseFrame(req.Command, StatusOK, nil))
			return
		}
	}
}

func (f *fakeTerminal) reply(conn net.Conn, fr Frame) {
	if !f.chunked {
		WriteFrame(conn, fr)
		return
	}
	var buf []byte
	header := make([]byte, headerSize)
	binary.LittleEndian.PutUint16(header[0:2], fr.Command)
	binary.LittleEndian.PutUint32(header[2:6], uint32(len(fr.Payload)))
	buf = append(header, fr.Payload...)
	for len(buf) > 0 {
		n := min(3, len(buf))
		conn.Write(buf[:n])
		buf = buf[n:]
		time.Sleep(time.Millisecond)
	}
}

func punchRecords() []Record {
	day := time.Date(2024, 1, 15, 0, 0, 0, 0, time.UTC)
	return []Record{
		{UserID: 1, Timestamp: day.Add(8 * time.Hour), VerifyMode: 1, InOut: 1},
		{UserID: 2, Timestamp: day.Add(9 * time.Hour), VerifyMode: 15, InOut: 1},
		{UserID: 1, Timestamp: day.Add(17 * time.Hour), VerifyMode: 1, InOut: 0},
	}
}

func collect(b device.Batch) []attendance.RawPunch {
	var out []attendance.RawPunch
	for p := range b.Punches() {
		out = append(out, p)
	}
	return out
}

func TestDial_RefusedConnection(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	port := ln.Addr().(*net.TCPAddr).Port
	ln.Close()

	_, err = Dial(context.Background(), Options{Address: "127.0.0.1", Port: port, Timeout: time.Second})
	require.Error(t, err)
	assert.True(t, device.IsConnectionError(err))
	assert.False(t, device.IsProtocolError(err))
}

func TestDial_HandshakeRejected(t *testing.T) {
	term := newFakeTerminal(t, nil)
	opts := term.options()
	opts.CommKey = 9999

	_, err := Dial(context.Background(), opts)
	require.Error(t, err)
	assert.True(t, device.IsConnectionError(err))
	assert.ErrorIs(t, err, device.ErrHandshakeRefused)
}

func TestDial_TimeoutIsConnectionError(t *testing.T) {
	term := newFakeTerminal(t, func(f *fakeTerminal) { f.silent = true })

	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()

	_, err := Dial(ctx, term.options())
	require.Error(t, err)
	assert.True(t, device.IsConnectionError(err))
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestPull_FromZeroCursor(t *testing.T) {
	term := newFakeTerminal(t, nil, punchRecords()...)

	s, err := Dial(context.Background(), term.options())
	require.NoError(t, err)
	defer s.Close()

	batch, err := s.Pull(context.Background(), device.Cursor{})
	require.NoError(t, err)

	punches := collect(batch)
	require.Len(t, punches, 3)
	assert.Equal(t, 3, batch.Len())

	assert.Equal(t, "1", punches[0].EmployeeIdentifier)
	assert.Equal(t, attendance.DirectionIn, punches[0].Direction)
	assert.Equal(t, "device:dev-1", punches[0].Source)
	require.NotNil(t, punches[0].SequenceHint)
	assert.Equal(t, int64(0), *punches[0].SequenceHint)

	assert.Equal(t, "2", punches[1].EmployeeIdentifier)
	assert.Equal(t, 15, punches[1].VerifyMode)

	assert.Equal(t, attendance.DirectionOut, punches[2].Direction)
	assert.Equal(t, int64(2), *punches[2].SequenceHint)

	assert.True(t, batch.Cursor().Watermark.Equal(punches[2].Timestamp))
	assert.Equal(t, int32(1), term.disabled.Load())
	assert.Equal(t, int32(1), term.enabled.Load())
}

func TestPull_SkipsRecordsBeforeCursor(t *testing.T) {
	records := punchRecords()
	term := newFakeTerminal(t, nil, records...)

	s, err := Dial(context.Background(), term.options())
	require.NoError(t, err)
	defer s.Close()

	since := device.Cursor{Watermark: records[1].Timestamp}
	batch, err := s.Pull(context.Background(), since)
	require.NoError(t, err)

	punches := collect(batch)
	require.Len(t, punches, 2, "records at the watermark are re-delivered and absorbed by dedup")
	assert.True(t, punches[0].Timestamp.Equal(records[1].Timestamp))
	assert.True(t, batch.Cursor().Watermark.Equal(records[2].Timestamp))
}

func TestPull_EmptyLogKeepsCursor(t *testing.T) {
	term := newFakeTerminal(t, nil)

	s, err := Dial(context.Background(), term.options())
	require.NoError(t, err)
	defer s.Close()

	since := device.Cursor{Watermark: time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)}
	batch, err := s.Pull(context.Background(), since)
	require.NoError(t, err)
	assert.Equal(t, 0, batch.Len())
	assert.Equal(t, since, batch.Cursor())
}

func TestPull_ChunkedReplies(t *testing.T) {
	term := newFakeTerminal(t, func(f *fakeTerminal) { f.chunked = true }, punchRecords()...)

	s, err := Dial(context.Background(), term.options())
	require.NoError(t, err)
	defer s.Close()

	batch, err := s.Pull(context.Background(), device.Cursor{})
	require.NoError(t, err)
	assert.Len(t, collect(batch), 3)
}

func TestPull_ProtocolErrors(t *testing.T) {
	tests := []struct {
		name  string
		setup func(*fakeTerminal)
	}{
		{"record array not a multiple of the record size", func(f *fakeTerminal) { f.trimLog = 5 }},
		{"announced record count mismatch", func(f *fakeTerminal) { f.announce = 7 }},
		{"declared frame length too large", func(f *fakeTerminal) { f.oversized = true }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			term := newFakeTerminal(t, tt.setup, punchRecords()...)

			s, err := Dial(context.Background(), term.options())
			require.NoError(t, err)
			defer s.Close()

			batch, err := s.Pull(context.Background(), device.Cursor{})
			require.Error(t, err)
			assert.Nil(t, batch)

			var pe *device.ProtocolError
			require.True(t, errors.As(err, &pe))
			assert.Equal(t, CmdGetLog, pe.Command)
			assert.False(t, device.IsConnectionError(err))
		})
	}
}

func TestConnector_UnknownCodec(t *testing.T) {
	c := NewConnector(time.Second, time.UTC)
	_, err := c.Connect(context.Background(), device.Device{ID: "d1", Address: "127.0.0.1", Codec: "acme"})
	assert.ErrorIs(t, err, device.ErrUnknownCodec)
}

func TestConnector_Connect(t *testing.T) {
	term := newFakeTerminal(t, nil, punchRecords()...)
	opts := term.options()

	c := NewConnector(time.Second, time.UTC)
	s, err := c.Connect(context.Background(), device.Device{
		ID:      "dev-9",
		Address: opts.Address,
		Port:    opts.Port,
		CommKey: term.commKey,
		Codec:   "standard",
	})
	require.NoError(t, err)
	defer s.Close()

	batch, err := s.Pull(context.Background(), device.Cursor{})
	require.NoError(t, err)
	for p := range batch.Punches() {
		assert.Equal(t, "device:dev-9", p.Source)
	}
}
