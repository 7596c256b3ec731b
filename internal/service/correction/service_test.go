package correction

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/cmlabs-hris/attendance-sync/internal/domain/attendance"
	"github.com/cmlabs-hris/attendance-sync/internal/domain/correction"
	"github.com/cmlabs-hris/attendance-sync/internal/pkg/validator"
	"github.com/cmlabs-hris/attendance-sync/internal/pkg/workflow"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type passthroughTx struct{}

func (passthroughTx) WithinTransaction(ctx context.Context, fn func(ctx context.Context) error) error {
	return fn(ctx)
}

type mockRequestRepo struct {
	requests map[string]correction.Request
}

func newMockRequestRepo() *mockRequestRepo {
	return &mockRequestRepo{requests: make(map[string]correction.Request)}
}

func (m *mockRequestRepo) Create(ctx context.Context, req correction.Request) error {
	for _, r := range m.requests {
		if r.State == correction.StatePending && r.EmployeeID == req.EmployeeID && r.Date.Equal(req.Date) && r.Kind == req.Kind {
			return fmt.Errorf("failed to create correction request: %w", &pgconn.PgError{Code: "23505"})
		}
	}
	m.requests[req.ID] = req
	return nil
}

func (m *mockRequestRepo) GetByIDForUpdate(ctx context.Context, id string) (correction.Request, error) {
	r, ok := m.requests[id]
	if !ok {
		return correction.Request{}, correction.ErrRequestNotFound
	}
	return r, nil
}

func (m *mockRequestRepo) UpdateState(ctx context.Context, id string, state correction.State, reviewedBy string, reviewNote string, punchTime *time.Time, at time.Time) error {
	r := m.requests[id]
	r.State = state
	r.ReviewedBy = &reviewedBy
	r.ReviewedAt = &at
	r.ReviewNote = reviewNote
	r.PunchTime = punchTime
	m.requests[id] = r
	return nil
}

func (m *mockRequestRepo) List(ctx context.Context, filter correction.Filter) ([]correction.Request, error) {
	var out []correction.Request
	for _, r := range m.requests {
		if filter.State != nil && r.State != *filter.State {
			continue
		}
		out = append(out, r)
	}
	return out, nil
}

type stubSegments struct {
	attendance.SegmentRepository
	days map[string][]attendance.DaySegment
}

func (s stubSegments) ListByDay(ctx context.Context, employeeID string, date time.Time) ([]attendance.DaySegment, error) {
	return s.days[employeeID+"/"+date.Format(attendance.DateLayout)], nil
}

type stubAttendance struct {
	attendance.AttendanceService
	ingested [][]attendance.RawPunch
	reject   bool
	frozen   []*workflow.ReconciliationConflict
}

func (s *stubAttendance) Ingest(ctx context.Context, punches []attendance.RawPunch) (attendance.IngestResult, error) {
	s.ingested = append(s.ingested, punches)
	res := attendance.IngestResult{Received: len(punches), Frozen: s.frozen}
	if s.reject {
		res.Rejected = []attendance.RejectedPunch{{Punch: punches[0], Reason: "unknown employee identifier"}}
	}
	return res, nil
}

func day(d int) time.Time {
	return time.Date(2024, 1, d, 0, 0, 0, 0, time.UTC)
}

type testService struct {
	svc      correction.CorrectionService
	repo     *mockRequestRepo
	attend   *stubAttendance
	segments stubSegments
}

func newTestService(t *testing.T) *testService {
	t.Helper()
	in := time.Date(2024, 1, 15, 8, 0, 0, 0, time.UTC)
	out := time.Date(2024, 1, 16, 17, 0, 0, 0, time.UTC)
	ts := &testService{
		repo:   newMockRequestRepo(),
		attend: &stubAttendance{},
		segments: stubSegments{days: map[string][]attendance.DaySegment{
			"EMP001/2024-01-15": {{EmployeeID: "EMP001", Date: day(15), CheckIn: &in, IsOpen: true}},
			"EMP001/2024-01-16": {{EmployeeID: "EMP001", Date: day(16), CheckOut: &out, MissingCheckIn: true}},
		}},
	}
	ts.svc = NewCorrectionService(passthroughTx{}, ts.repo, ts.segments, ts.attend, Config{Location: time.UTC}, zap.NewNop())
	return ts
}

func TestCreate_PendingRequest(t *testing.T) {
	ts := newTestService(t)

	resp, err := ts.svc.Create(context.Background(), correction.CreateRequest{
		EmployeeID:  "EMP001",
		Date:        "2024-01-15",
		Kind:        correction.KindMissingCheckOut,
		PunchTime:   "2024-01-15T17:30:00Z",
		Note:        "forgot to tap out",
		RequestedBy: "EMP001",
	})
	require.NoError(t, err)

	assert.NotEmpty(t, resp.ID)
	assert.Equal(t, correction.StatePending, resp.State)
	require.NotNil(t, resp.PunchTime)
	assert.Equal(t, "2024-01-15T17:30:00Z", *resp.PunchTime)
	assert.Nil(t, resp.ReviewedBy)
	assert.Empty(t, ts.attend.ingested, "nothing is ingested before approval")
}

func TestCreate_Errors(t *testing.T) {
	ts := newTestService(t)
	base := correction.CreateRequest{
		EmployeeID: "EMP001", Date: "2024-01-15", Kind: correction.KindMissingCheckOut,
		Note: "forgot", RequestedBy: "EMP001",
	}

	t.Run("validation", func(t *testing.T) {
		req := base
		req.Kind = "missing_lunch"
		req.Note = ""
		_, err := ts.svc.Create(context.Background(), req)
		var verrs validator.ValidationErrors
		require.ErrorAs(t, err, &verrs)
		assert.Contains(t, verrs.ToMap(), "kind")
		assert.Contains(t, verrs.ToMap(), "note")
	})

	t.Run("day has a check-out", func(t *testing.T) {
		req := base
		req.Kind = correction.KindMissingCheckIn
		_, err := ts.svc.Create(context.Background(), req)
		assert.ErrorIs(t, err, correction.ErrDayNotMissing)
	})

	t.Run("punch on another day", func(t *testing.T) {
		req := base
		req.PunchTime = "2024-01-16T17:00:00Z"
		_, err := ts.svc.Create(context.Background(), req)
		assert.ErrorIs(t, err, correction.ErrPunchOutsideDay)
	})

	t.Run("one pending request per day and kind", func(t *testing.T) {
		_, err := ts.svc.Create(context.Background(), base)
		require.NoError(t, err)
		_, err = ts.svc.Create(context.Background(), base)
		assert.ErrorIs(t, err, correction.ErrRequestPending)
	})
}

func TestReview_ApproveIngestsCorrectionPunch(t *testing.T) {
	ts := newTestService(t)
	created, err := ts.svc.Create(context.Background(), correction.CreateRequest{
		EmployeeID: "EMP001", Date: "2024-01-16", Kind: correction.KindMissingCheckIn,
		PunchTime: "2024-01-16T08:05:00Z", Note: "card reader down", RequestedBy: "EMP001",
	})
	require.NoError(t, err)

	resp, err := ts.svc.Review(context.Background(), correction.ReviewRequest{
		ID: created.ID, Action: correction.ActionApprove, Actor: "mgr-1",
		PunchTime: "2024-01-16T08:00:00Z",
	})
	require.NoError(t, err)

	assert.Equal(t, correction.StateApproved, resp.State)
	require.NotNil(t, resp.ReviewedBy)
	assert.Equal(t, "mgr-1", *resp.ReviewedBy)
	assert.NotNil(t, resp.ReviewedAt)

	require.Len(t, ts.attend.ingested, 1)
	p := ts.attend.ingested[0][0]
	assert.Equal(t, "EMP001", p.EmployeeIdentifier)
	assert.Equal(t, attendance.DirectionIn, p.Direction)
	assert.Equal(t, attendance.SourceCorrection, p.Source)
	assert.Equal(t, created.ID, p.BatchID)
	assert.True(t, p.Timestamp.Equal(time.Date(2024, 1, 16, 8, 0, 0, 0, time.UTC)), "the reviewer's time wins")

	_, err = ts.svc.Review(context.Background(), correction.ReviewRequest{ID: created.ID, Action: correction.ActionReject, Actor: "mgr-1"})
	var transitionErr *workflow.InvalidTransitionError
	assert.ErrorAs(t, err, &transitionErr)
}

func TestReview_RejectStoresNothing(t *testing.T) {
	ts := newTestService(t)
	created, err := ts.svc.Create(context.Background(), correction.CreateRequest{
		EmployeeID: "EMP001", Date: "2024-01-15", Kind: correction.KindMissingCheckOut,
		PunchTime: "2024-01-15T17:00:00Z", Note: "left early", RequestedBy: "EMP001",
	})
	require.NoError(t, err)

	resp, err := ts.svc.Review(context.Background(), correction.ReviewRequest{
		ID: created.ID, Action: correction.ActionReject, Actor: "mgr-1", Note: "no evidence",
	})
	require.NoError(t, err)
	assert.Equal(t, correction.StateRejected, resp.State)
	assert.Equal(t, "no evidence", resp.ReviewNote)
	assert.Empty(t, ts.attend.ingested)

	// A rejected day can be requested again.
	_, err = ts.svc.Create(context.Background(), correction.CreateRequest{
		EmployeeID: "EMP001", Date: "2024-01-15", Kind: correction.KindMissingCheckOut,
		Note: "badge log attached", RequestedBy: "EMP001",
	})
	assert.NoError(t, err)
}

func TestReview_ApproveWithoutTime(t *testing.T) {
	ts := newTestService(t)
	created, err := ts.svc.Create(context.Background(), correction.CreateRequest{
		EmployeeID: "EMP001", Date: "2024-01-15", Kind: correction.KindMissingCheckOut,
		Note: "field visit", RequestedBy: "EMP001",
	})
	require.NoError(t, err)

	resp, err := ts.svc.Review(context.Background(), correction.ReviewRequest{ID: created.ID, Action: correction.ActionApprove, Actor: "mgr-1"})
	require.NoError(t, err)
	assert.Equal(t, correction.StateApproved, resp.State)
	assert.Empty(t, ts.attend.ingested)
}

func TestReview_Errors(t *testing.T) {
	ts := newTestService(t)

	_, err := ts.svc.Review(context.Background(), correction.ReviewRequest{ID: "nope", Action: correction.ActionApprove, Actor: "mgr-1"})
	assert.ErrorIs(t, err, correction.ErrRequestNotFound)

	_, err = ts.svc.Review(context.Background(), correction.ReviewRequest{ID: "x", Action: "escalate"})
	var verrs validator.ValidationErrors
	require.ErrorAs(t, err, &verrs)
	assert.Contains(t, verrs.ToMap(), "action")

	_, err = ts.svc.Review(context.Background(), correction.ReviewRequest{ID: "x", Action: correction.ActionReject, PunchTime: "2024-01-15T17:00:00Z"})
	require.ErrorAs(t, err, &verrs)
	assert.Contains(t, verrs.ToMap(), "punch_time")

	created, err := ts.svc.Create(context.Background(), correction.CreateRequest{
		EmployeeID: "EMP001", Date: "2024-01-15", Kind: correction.KindMissingCheckOut,
		Note: "forgot", RequestedBy: "EMP001",
	})
	require.NoError(t, err)

	t.Run("approval time on another day", func(t *testing.T) {
		_, err := ts.svc.Review(context.Background(), correction.ReviewRequest{
			ID: created.ID, Action: correction.ActionApprove, Actor: "mgr-1", PunchTime: "2024-01-17T17:00:00Z",
		})
		assert.ErrorIs(t, err, correction.ErrPunchOutsideDay)
		assert.Equal(t, correction.StatePending, ts.repo.requests[created.ID].State)
	})

	t.Run("employee unknown to the pipeline", func(t *testing.T) {
		ts.attend.reject = true
		_, err := ts.svc.Review(context.Background(), correction.ReviewRequest{
			ID: created.ID, Action: correction.ActionApprove, Actor: "mgr-1", PunchTime: "2024-01-15T17:00:00Z",
		})
		assert.True(t, errors.Is(err, attendance.ErrUnknownEmployee))
		assert.Equal(t, correction.StatePending, ts.repo.requests[created.ID].State)
	})
}

func TestList(t *testing.T) {
	ts := newTestService(t)
	_, err := ts.svc.Create(context.Background(), correction.CreateRequest{
		EmployeeID: "EMP001", Date: "2024-01-15", Kind: correction.KindMissingCheckOut,
		Note: "forgot", RequestedBy: "EMP001",
	})
	require.NoError(t, err)

	pending := correction.StatePending
	got, err := ts.svc.List(context.Background(), correction.Filter{State: &pending})
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "2024-01-15", got[0].Date)

	approved := correction.StateApproved
	got, err = ts.svc.List(context.Background(), correction.Filter{State: &approved})
	require.NoError(t, err)
	assert.Empty(t, got)
}
