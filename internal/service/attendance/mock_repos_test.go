package attendance

import (
	"bytes"
	"context"
	"io"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/cmlabs-hris/attendance-sync/internal/domain/attendance"
	"github.com/cmlabs-hris/attendance-sync/internal/pkg/storage"
	"github.com/cmlabs-hris/attendance-sync/internal/pkg/workflow"
)

type passthroughTx struct{ calls int }

func (p *passthroughTx) WithinTransaction(ctx context.Context, fn func(ctx context.Context) error) error {
	p.calls++
	return fn(ctx)
}

type mockPunchRepo struct {
	mu       sync.Mutex
	punches  []attendance.RawPunch
	keys     map[attendance.PunchKey]int
	rejected []attendance.RejectedPunch
	nextID   int64
}

func newMockPunchRepo() *mockPunchRepo {
	return &mockPunchRepo{keys: make(map[attendance.PunchKey]int)}
}

func (m *mockPunchRepo) InsertBatch(ctx context.Context, punches []attendance.RawPunch) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	for _, p := range punches {
		if i, ok := m.keys[p.Key()]; ok {
			if comparePunches(p, m.punches[i]) < 0 {
				m.punches[i] = p
			}
			continue
		}
		m.keys[p.Key()] = len(m.punches)
		m.punches = append(m.punches, p)
		n++
	}
	return n, nil
}

func (m *mockPunchRepo) ListByEmployeeRange(ctx context.Context, employeeID string, from, to time.Time) ([]attendance.RawPunch, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []attendance.RawPunch
	for _, p := range m.punches {
		if p.EmployeeIdentifier == employeeID && !p.Timestamp.Before(from) && p.Timestamp.Before(to) {
			out = append(out, p)
		}
	}
	return out, nil
}

func (m *mockPunchRepo) SaveRejected(ctx context.Context, rejected []attendance.RejectedPunch) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, rj := range rejected {
		m.nextID++
		rj.ID = m.nextID
		rj.CreatedAt = time.Date(2024, 1, 15, 0, 0, 0, int(m.nextID), time.UTC)
		m.rejected = append(m.rejected, rj)
	}
	return nil
}

func (m *mockPunchRepo) ListRejected(ctx context.Context, filter attendance.RejectedFilter) ([]attendance.RejectedPunch, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []attendance.RejectedPunch
	for _, rj := range m.rejected {
		if filter.BatchID != "" && rj.Punch.BatchID != filter.BatchID {
			continue
		}
		if len(filter.IDs) > 0 && !slices.Contains(filter.IDs, rj.ID) {
			continue
		}
		if filter.Limit > 0 && len(out) == filter.Limit {
			break
		}
		out = append(out, rj)
	}
	return out, nil
}

func (m *mockPunchRepo) DeleteRejected(ctx context.Context, ids []int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.rejected = slices.DeleteFunc(m.rejected, func(rj attendance.RejectedPunch) bool {
		return slices.Contains(ids, rj.ID)
	})
	return nil
}

type mockSegmentRepo struct {
	mu    sync.Mutex
	days  map[attendance.DayKey][]attendance.DaySegment
	locks int
}

func newMockSegmentRepo() *mockSegmentRepo {
	return &mockSegmentRepo{days: make(map[attendance.DayKey][]attendance.DaySegment)}
}

func dayKey(employeeID string, date time.Time) attendance.DayKey {
	return attendance.DayKey{EmployeeID: employeeID, Date: date.Format(attendance.DateLayout)}
}

func (m *mockSegmentRepo) LockDay(ctx context.Context, employeeID string, date time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.locks++
	return nil
}

func (m *mockSegmentRepo) ListByDay(ctx context.Context, employeeID string, date time.Time) ([]attendance.DaySegment, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return slices.Clone(m.days[dayKey(employeeID, date)]), nil
}

func (m *mockSegmentRepo) ReplaceDay(ctx context.Context, employeeID string, date time.Time, segments []attendance.DaySegment) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.days[dayKey(employeeID, date)] = slices.Clone(segments)
	return nil
}

func (m *mockSegmentRepo) ListByRange(ctx context.Context, from, to time.Time) ([]attendance.DaySegment, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []attendance.DaySegment
	for _, segs := range m.days {
		for _, s := range segs {
			if !s.Date.Before(from) && !s.Date.After(to) {
				out = append(out, s)
			}
		}
	}
	slices.SortFunc(out, compareSegments)
	return out, nil
}

type mockDayRepo struct {
	mu   sync.Mutex
	days map[attendance.DayKey]attendance.ClassifiedDay
}

func newMockDayRepo() *mockDayRepo {
	return &mockDayRepo{days: make(map[attendance.DayKey]attendance.ClassifiedDay)}
}

func (m *mockDayRepo) Upsert(ctx context.Context, day attendance.ClassifiedDay) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.days[day.Key()] = day
	return nil
}

func (m *mockDayRepo) List(ctx context.Context, filter attendance.DayFilter) ([]attendance.ClassifiedDay, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []attendance.ClassifiedDay
	for _, d := range m.days {
		if filter.EmployeeID != "" && d.EmployeeID != filter.EmployeeID {
			continue
		}
		if filter.Status != nil && d.Status != *filter.Status {
			continue
		}
		out = append(out, d)
	}
	slices.SortFunc(out, func(a, b attendance.ClassifiedDay) int {
		return strings.Compare(a.Key().EmployeeID+a.Key().Date, b.Key().EmployeeID+b.Key().Date)
	})
	return out, nil
}

func (m *mockDayRepo) get(employeeID, date string) (attendance.ClassifiedDay, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	d, ok := m.days[attendance.DayKey{EmployeeID: employeeID, Date: date}]
	return d, ok
}

// mockDirectory knows employee codes, device user ids and per-employee schedules.
type mockDirectory struct {
	mu        sync.Mutex
	ids       map[string]string
	schedules map[string]attendance.Schedule
}

func (m *mockDirectory) add(identifier, code string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.ids[identifier] = code
}

func (m *mockDirectory) Resolve(ctx context.Context, identifiers []string) (map[string]string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make(map[string]string)
	for _, id := range identifiers {
		if code, ok := m.ids[id]; ok {
			out[id] = code
		}
	}
	return out, nil
}

func (m *mockDirectory) Schedules(ctx context.Context, employeeIDs []string) (map[string]attendance.Schedule, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make(map[string]attendance.Schedule)
	for _, id := range employeeIDs {
		if sch, ok := m.schedules[id]; ok {
			out[id] = sch
		}
	}
	return out, nil
}

type mockProcessor struct {
	calls  [][]attendance.ClassifiedDay
	frozen []*workflow.ReconciliationConflict
}

func (m *mockProcessor) ProcessDays(ctx context.Context, days []attendance.ClassifiedDay) ([]*workflow.ReconciliationConflict, error) {
	m.calls = append(m.calls, days)
	return m.frozen, nil
}

type mockFiles struct {
	archived map[string][]byte
	deleted  []string
}

func (m *mockFiles) ArchiveImport(ctx context.Context, batchID, filename string, data []byte) (string, error) {
	if m.archived == nil {
		m.archived = make(map[string][]byte)
	}
	m.archived[batchID] = data
	return "imports/" + batchID, nil
}

func (m *mockFiles) OpenImport(ctx context.Context, path string) (io.ReadCloser, error) {
	data, ok := m.archived[strings.TrimPrefix(path, "imports/")]
	if !ok {
		return nil, storage.ErrNotFound
	}
	return io.NopCloser(bytes.NewReader(data)), nil
}

func (m *mockFiles) DeleteFile(ctx context.Context, path string) error {
	m.deleted = append(m.deleted, path)
	delete(m.archived, strings.TrimPrefix(path, "imports/"))
	return nil
}

type mockBatchRepo struct {
	batches   map[string]attendance.ImportBatch
	createErr error
}

func newMockBatchRepo() *mockBatchRepo {
	return &mockBatchRepo{batches: make(map[string]attendance.ImportBatch)}
}

func (m *mockBatchRepo) Create(ctx context.Context, batch attendance.ImportBatch) error {
	if m.createErr != nil {
		return m.createErr
	}
	m.batches[batch.BatchID] = batch
	return nil
}

func (m *mockBatchRepo) GetByID(ctx context.Context, batchID string) (attendance.ImportBatch, error) {
	b, ok := m.batches[batchID]
	if !ok {
		return attendance.ImportBatch{}, attendance.ErrImportBatchNotFound
	}
	return b, nil
}

func (m *mockBatchRepo) RecordAttempt(ctx context.Context, batchID string, counts attendance.ImportCounts, lastError string, at time.Time) error {
	b, ok := m.batches[batchID]
	if !ok {
		return attendance.ErrImportBatchNotFound
	}
	b.Attempts++
	b.Counts = counts
	b.LastError = lastError
	b.UpdatedAt = at
	m.batches[batchID] = b
	return nil
}
