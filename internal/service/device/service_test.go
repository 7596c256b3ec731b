package device

import (
	"context"
	"errors"
	"iter"
	"slices"
	"sync"
	"testing"
	"time"

	"github.com/cmlabs-hris/attendance-sync/internal/domain/attendance"
	"github.com/cmlabs-hris/attendance-sync/internal/domain/device"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func at(day, hour int) time.Time {
	return time.Date(2024, 1, day, hour, 0, 0, 0, time.UTC)
}

type mockDeviceRepo []device.Device

func (m mockDeviceRepo) GetByID(ctx context.Context, id string) (device.Device, error) {
	for _, d := range m {
		if d.ID == id {
			return d, nil
		}
	}
	return device.Device{}, device.ErrDeviceNotFound
}

func (m mockDeviceRepo) ListActive(ctx context.Context) ([]device.Device, error) {
	var out []device.Device
	for _, d := range m {
		if d.IsActive {
			out = append(out, d)
		}
	}
	return out, nil
}

func (m mockDeviceRepo) List(ctx context.Context) ([]device.Device, error) {
	return slices.Clone(m), nil
}

type mockStateRepo struct {
	mu       sync.Mutex
	states   map[string]device.State
	commits  int
	failures int
}

func newMockStateRepo() *mockStateRepo {
	return &mockStateRepo{states: make(map[string]device.State)}
}

func (m *mockStateRepo) GetState(ctx context.Context, deviceID string) (device.State, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	st, ok := m.states[deviceID]
	if !ok {
		return device.State{DeviceID: deviceID}, nil
	}
	return st, nil
}

func (m *mockStateRepo) CommitCursor(ctx context.Context, deviceID string, cursor device.Cursor, count int, at time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	st := m.states[deviceID]
	st.DeviceID = deviceID
	st.Cursor = st.Cursor.Advance(cursor.Watermark)
	st.LastRunAt = &at
	st.LastSuccess = true
	st.LastError = nil
	st.LastCount = count
	m.states[deviceID] = st
	m.commits++
	return nil
}

func (m *mockStateRepo) RecordFailure(ctx context.Context, deviceID string, reason string, at time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	st := m.states[deviceID]
	st.DeviceID = deviceID
	st.LastRunAt = &at
	st.LastSuccess = false
	st.LastError = &reason
	m.states[deviceID] = st
	m.failures++
	return nil
}

func (m *mockStateRepo) ListStates(ctx context.Context) ([]device.State, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []device.State
	for _, st := range m.states {
		out = append(out, st)
	}
	return out, nil
}

// fakeLink serves a fixed punch log per device. Errors queued in connectErrs
// are returned by the next Connect calls.
type fakeLink struct {
	mu          sync.Mutex
	logs        map[string][]attendance.RawPunch
	connectErrs map[string][]error
	pullErr     error
	pulledSince []device.Cursor
}

func (f *fakeLink) Connect(ctx context.Context, d device.Device) (device.Session, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if errs := f.connectErrs[d.ID]; len(errs) > 0 {
		f.connectErrs[d.ID] = errs[1:]
		return nil, errs[0]
	}
	return &fakeSession{link: f, log: f.logs[d.ID]}, nil
}

type fakeSession struct {
	link *fakeLink
	log  []attendance.RawPunch
}

func (s *fakeSession) Pull(ctx context.Context, since device.Cursor) (device.Batch, error) {
	s.link.mu.Lock()
	defer s.link.mu.Unlock()
	s.link.pulledSince = append(s.link.pulledSince, since)
	if s.link.pullErr != nil {
		return nil, s.link.pullErr
	}
	var punches []attendance.RawPunch
	for _, p := range s.log {
		if since.IsZero() || !p.Timestamp.Before(since.Watermark) {
			punches = append(punches, p)
		}
	}
	return fakeBatch(punches), nil
}

func (s *fakeSession) Close() error { return nil }

type fakeBatch []attendance.RawPunch

func (b fakeBatch) Punches() iter.Seq[attendance.RawPunch] { return slices.Values(b) }
func (b fakeBatch) Len() int                              { return len(b) }
func (b fakeBatch) Cursor() device.Cursor {
	var c device.Cursor
	for _, p := range b {
		c = c.Advance(p.Timestamp)
	}
	return c
}

// mockIngest stores punches by dedup key, like the punch repository does.
type mockIngest struct {
	attendance.AttendanceService
	mu   sync.Mutex
	keys map[attendance.PunchKey]struct{}
	err  error
}

func (m *mockIngest) Ingest(ctx context.Context, punches []attendance.RawPunch) (attendance.IngestResult, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return attendance.IngestResult{}, m.err
	}
	if m.keys == nil {
		m.keys = make(map[attendance.PunchKey]struct{})
	}
	res := attendance.IngestResult{Received: len(punches)}
	for _, p := range punches {
		if _, ok := m.keys[p.Key()]; ok {
			res.Duplicates++
			continue
		}
		m.keys[p.Key()] = struct{}{}
		res.Stored++
	}
	return res, nil
}

func devicePunch(deviceID, user string, ts time.Time, dir attendance.Direction) attendance.RawPunch {
	return attendance.RawPunch{
		EmployeeIdentifier: user,
		Timestamp:          ts,
		Direction:          dir,
		Source:             attendance.DeviceSource(deviceID),
	}
}

type fixture struct {
	svc    *DeviceServiceImpl
	states *mockStateRepo
	link   *fakeLink
	ingest *mockIngest
}

func newFixture(devices ...device.Device) *fixture {
	f := &fixture{
		states: newMockStateRepo(),
		link: &fakeLink{
			logs: map[string][]attendance.RawPunch{
				"d1": {
					devicePunch("d1", "101", at(15, 8), attendance.DirectionIn),
					devicePunch("d1", "101", at(15, 17), attendance.DirectionOut),
				},
			},
			connectErrs: make(map[string][]error),
		},
		ingest: &mockIngest{},
	}
	if len(devices) == 0 {
		devices = []device.Device{{ID: "d1", Name: "Lobby", Address: "10.0.0.5", IsActive: true}}
	}
	f.svc = NewDeviceService(mockDeviceRepo(devices), f.states, f.link, NewLocalLocker(), f.ingest,
		Config{Workers: 2}, zap.NewNop()).(*DeviceServiceImpl)
	f.svc.now = func() time.Time { return at(20, 9) }
	return f
}

func TestSync_CommitsCursorAfterIngest(t *testing.T) {
	f := newFixture()
	ctx := context.Background()

	res, err := f.svc.Sync(ctx, "d1")
	require.NoError(t, err)
	assert.True(t, res.Success)
	assert.Equal(t, 2, res.Pulled)
	assert.Equal(t, 2, res.Stored)
	require.NotNil(t, res.Cursor)
	assert.Equal(t, "2024-01-15T17:00:00Z", *res.Cursor)

	st := f.states.states["d1"]
	assert.True(t, st.Cursor.Watermark.Equal(at(15, 17)))
	assert.Equal(t, 2, st.LastCount)

	// The record at the watermark comes back and is absorbed as a duplicate.
	again, err := f.svc.Sync(ctx, "d1")
	require.NoError(t, err)
	assert.Equal(t, 1, again.Pulled)
	assert.Equal(t, 0, again.Stored)
	assert.Equal(t, 1, again.Duplicates)
	assert.True(t, f.link.pulledSince[1].Watermark.Equal(at(15, 17)))
}

func TestSync_ConnectionErrorKeepsCursor(t *testing.T) {
	f := newFixture()
	ctx := context.Background()
	f.link.connectErrs["d1"] = []error{
		&device.ConnectionError{Address: "10.0.0.5", Op: "dial", Err: errors.New("connection refused")},
	}

	res, err := f.svc.Sync(ctx, "d1")
	require.Error(t, err)
	assert.True(t, device.IsConnectionError(err))
	assert.False(t, res.Success)
	assert.Contains(t, res.Error, "connection refused")

	st := f.states.states["d1"]
	assert.True(t, st.Cursor.IsZero())
	require.NotNil(t, st.LastError)
	assert.False(t, st.LastSuccess)
	assert.Zero(t, f.states.commits)

	res, err = f.svc.Sync(ctx, "d1")
	require.NoError(t, err)
	assert.Equal(t, 2, res.Stored)
	assert.Equal(t, 1, f.states.commits)
	assert.Nil(t, f.states.states["d1"].LastError)
}

func TestSync_ProtocolErrorKeepsCursor(t *testing.T) {
	f := newFixture()
	f.link.pullErr = &device.ProtocolError{Address: "10.0.0.5", Command: 13, Reason: "short record"}

	_, err := f.svc.Sync(context.Background(), "d1")
	require.Error(t, err)
	assert.True(t, device.IsProtocolError(err))
	assert.Zero(t, f.states.commits)
	assert.Equal(t, 1, f.states.failures)
	assert.Empty(t, f.ingest.keys)
}

func TestSync_IngestFailureKeepsCursor(t *testing.T) {
	f := newFixture()
	f.ingest.err = errors.New("db down")

	_, err := f.svc.Sync(context.Background(), "d1")
	require.Error(t, err)
	assert.Zero(t, f.states.commits)
	assert.Equal(t, 1, f.states.failures)
}

func TestSync_ReloadWindowIgnoresCursor(t *testing.T) {
	start, end := at(15, 0), at(15, 12)
	f := newFixture(device.Device{ID: "d1", IsActive: true, PullStart: &start, PullEnd: &end})
	f.states.states["d1"] = device.State{DeviceID: "d1", Cursor: device.Cursor{Watermark: at(16, 0)}}

	res, err := f.svc.Sync(context.Background(), "d1")
	require.NoError(t, err)
	assert.Equal(t, 1, res.Pulled, "punches after the window end are left out")
	assert.True(t, f.link.pulledSince[0].Watermark.Equal(start))
	assert.True(t, f.states.states["d1"].Cursor.Watermark.Equal(at(16, 0)), "reload never rewinds the cursor")
}

func TestSync_DeviceErrors(t *testing.T) {
	f := newFixture(device.Device{ID: "d2", IsActive: false})

	_, err := f.svc.Sync(context.Background(), "d2")
	assert.ErrorIs(t, err, device.ErrDeviceInactive)

	_, err = f.svc.Sync(context.Background(), "nope")
	assert.ErrorIs(t, err, device.ErrDeviceNotFound)
}

func TestSync_LockedDevice(t *testing.T) {
	f := newFixture()
	release, err := f.svc.locker.Acquire(context.Background(), "d1")
	require.NoError(t, err)

	_, err = f.svc.Sync(context.Background(), "d1")
	assert.ErrorIs(t, err, device.ErrSyncInProgress)

	release()
	_, err = f.svc.Sync(context.Background(), "d1")
	assert.NoError(t, err)
}

func TestSyncAll_ReportsPerDevice(t *testing.T) {
	f := newFixture(
		device.Device{ID: "d1", Name: "Lobby", IsActive: true},
		device.Device{ID: "d2", Name: "Warehouse", IsActive: true},
		device.Device{ID: "d3", Name: "Old", IsActive: false},
	)
	f.link.logs["d2"] = []attendance.RawPunch{devicePunch("d2", "102", at(15, 9), attendance.DirectionIn)}
	f.link.connectErrs["d2"] = []error{&device.ConnectionError{Address: "10.0.0.6", Op: "dial", Err: errors.New("timeout")}}

	results, err := f.svc.SyncAll(context.Background())
	require.NoError(t, err)
	require.Len(t, results, 2)

	assert.Equal(t, "d1", results[0].DeviceID)
	assert.True(t, results[0].Success)
	assert.Equal(t, "d2", results[1].DeviceID)
	assert.False(t, results[1].Success)
	assert.NotEmpty(t, results[1].Error)
}

func TestStatus(t *testing.T) {
	f := newFixture(
		device.Device{ID: "d2", Name: "Warehouse", IsActive: true},
		device.Device{ID: "d1", Name: "Lobby", IsActive: true},
	)
	_, err := f.svc.Sync(context.Background(), "d1")
	require.NoError(t, err)

	status, err := f.svc.Status(context.Background())
	require.NoError(t, err)
	require.Len(t, status, 2)
	assert.Equal(t, "d1", status[0].DeviceID)
	assert.True(t, status[0].LastSuccess)
	require.NotNil(t, status[0].Cursor)
	assert.Nil(t, status[1].Cursor)
	assert.Nil(t, status[1].LastRunAt)
}
