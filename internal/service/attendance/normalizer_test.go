package attendance

import (
	"testing"
	"time"

	"github.com/cmlabs-hris/attendance-sync/internal/domain/attendance"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func at(hour, minute int) time.Time {
	return time.Date(2024, 1, 15, hour, minute, 0, 0, time.UTC)
}

func punch(emp string, ts time.Time, dir attendance.Direction) attendance.RawPunch {
	return attendance.RawPunch{EmployeeIdentifier: emp, Timestamp: ts, Direction: dir, Source: "device:d1"}
}

func TestNormalize_PairsInAndOut(t *testing.T) {
	res := Normalize(nil, []attendance.RawPunch{
		punch("E1", at(17, 0), attendance.DirectionOut),
		punch("E1", at(8, 0), attendance.DirectionIn),
	}, NormalizeOptions{})

	require.Len(t, res.Segments, 1)
	seg := res.Segments[0]
	assert.Equal(t, "E1", seg.EmployeeID)
	assert.Equal(t, "2024-01-15", seg.Date.Format(attendance.DateLayout))
	assert.True(t, seg.CheckIn.Equal(at(8, 0)))
	assert.True(t, seg.CheckOut.Equal(at(17, 0)))
	assert.Equal(t, 540, seg.WorkedMinutes)
	assert.False(t, seg.IsOpen)
	require.Len(t, res.Days, 1)
	assert.Empty(t, res.Rejected)
}

func TestNormalize_LoneCheckInIsOpen(t *testing.T) {
	res := Normalize(nil, []attendance.RawPunch{punch("E2", at(8, 0), attendance.DirectionIn)}, NormalizeOptions{})

	require.Len(t, res.Segments, 1)
	assert.True(t, res.Segments[0].IsOpen)
	assert.Nil(t, res.Segments[0].CheckOut)
	assert.Equal(t, 0, res.Segments[0].WorkedMinutes)
}

func TestNormalize_LoneCheckOutIsMissingCheckIn(t *testing.T) {
	res := Normalize(nil, []attendance.RawPunch{punch("E2", at(17, 0), attendance.DirectionOut)}, NormalizeOptions{})

	require.Len(t, res.Segments, 1)
	assert.True(t, res.Segments[0].MissingCheckIn)
	assert.Nil(t, res.Segments[0].CheckIn)
	assert.False(t, res.Segments[0].IsOpen)
}

func TestNormalize_DedupKey(t *testing.T) {
	in := punch("E1", at(8, 0), attendance.DirectionIn)
	out := punch("E1", at(17, 0), attendance.DirectionOut)

	res := Normalize(nil, []attendance.RawPunch{in, in, out, out}, NormalizeOptions{})
	require.Len(t, res.Segments, 1)
	assert.False(t, res.Segments[0].IsOpen)
}

func TestNormalize_OrderIndependentAndIdempotent(t *testing.T) {
	punches := []attendance.RawPunch{
		punch("E1", at(8, 0), attendance.DirectionIn),
		punch("E1", at(12, 0), attendance.DirectionOut),
		punch("E1", at(13, 0), attendance.DirectionIn),
		punch("E1", at(17, 30), attendance.DirectionOut),
		punch("E2", at(9, 0), attendance.DirectionIn),
	}
	reversed := make([]attendance.RawPunch, len(punches))
	for i, p := range punches {
		reversed[len(punches)-1-i] = p
	}

	first := Normalize(nil, punches, NormalizeOptions{})
	second := Normalize(nil, reversed, NormalizeOptions{})
	assert.Equal(t, first.Segments, second.Segments)

	again := Normalize(first.Segments, punches, NormalizeOptions{})
	assert.Equal(t, first.Segments, again.Segments)

	require.Len(t, first.Segments, 3)
	assert.Equal(t, 240, first.Segments[0].WorkedMinutes)
	assert.Equal(t, 270, first.Segments[1].WorkedMinutes)
	assert.Equal(t, "E2", first.Segments[2].EmployeeID)
}

func TestNormalize_UntouchedDaysPassThrough(t *testing.T) {
	prev := Normalize(nil, []attendance.RawPunch{
		punch("E1", at(8, 0), attendance.DirectionIn),
		punch("E1", at(17, 0), attendance.DirectionOut),
	}, NormalizeOptions{})

	next := Normalize(prev.Segments, []attendance.RawPunch{
		punch("E1", at(8, 0).AddDate(0, 0, 1), attendance.DirectionIn),
	}, NormalizeOptions{})

	require.Len(t, next.Segments, 2)
	assert.Equal(t, prev.Segments[0], next.Segments[0])
	require.Len(t, next.Days, 1, "only the new day is touched")
	assert.Equal(t, "2024-01-16", next.Days[0].Date.Format(attendance.DateLayout))
}

func TestNormalize_RejectsUnknownEmployee(t *testing.T) {
	resolve := func(id string) (string, bool) {
		if id == "101" {
			return "EMP001", true
		}
		return "", false
	}

	res := Normalize(nil, []attendance.RawPunch{
		punch("101", at(8, 0), attendance.DirectionIn),
		punch("999", at(8, 5), attendance.DirectionIn),
		{Timestamp: at(8, 10), Source: "api"},
	}, NormalizeOptions{Resolve: resolve})

	require.Len(t, res.Segments, 1)
	assert.Equal(t, "EMP001", res.Segments[0].EmployeeID)
	require.Len(t, res.Rejected, 2)
	assert.Contains(t, res.Rejected[0].Reason, "999")
	assert.Equal(t, "missing employee identifier", res.Rejected[1].Reason)
}

func TestNormalize_DirectionPolicies(t *testing.T) {
	// Device flags claim in/in/out/out; the clock says two short sessions.
	punches := []attendance.RawPunch{
		punch("E1", at(8, 0), attendance.DirectionIn),
		punch("E1", at(12, 0), attendance.DirectionIn),
		punch("E1", at(13, 0), attendance.DirectionOut),
		punch("E1", at(17, 0), attendance.DirectionOut),
	}

	t.Run("trusted keeps the flags", func(t *testing.T) {
		res := Normalize(nil, punches, NormalizeOptions{Policy: attendance.DirectionTrusted})
		require.Len(t, res.Segments, 3)
		assert.True(t, res.Segments[0].IsOpen, "first check-in is superseded")
		assert.Equal(t, 60, res.Segments[1].WorkedMinutes)
		assert.True(t, res.Segments[2].MissingCheckIn)
	})

	t.Run("alternate ignores the flags", func(t *testing.T) {
		res := Normalize(nil, punches, NormalizeOptions{Policy: attendance.DirectionAlternate})
		require.Len(t, res.Segments, 2)
		assert.Equal(t, 240, res.Segments[0].WorkedMinutes)
		assert.Equal(t, 240, res.Segments[1].WorkedMinutes)
	})

	t.Run("source override", func(t *testing.T) {
		res := Normalize(nil, punches, NormalizeOptions{
			Policy:         attendance.DirectionTrusted,
			SourcePolicies: map[string]attendance.DirectionPolicy{"device:d1": attendance.DirectionAlternate},
		})
		require.Len(t, res.Segments, 2)
	})
}

func TestNormalize_TimeOfDayPolicy(t *testing.T) {
	res := Normalize(nil, []attendance.RawPunch{
		punch("E1", at(8, 0), attendance.DirectionUnknown),
		punch("E1", at(16, 0), attendance.DirectionUnknown),
	}, NormalizeOptions{Policy: attendance.DirectionTimeOfDay})

	require.Len(t, res.Segments, 1)
	assert.Equal(t, 480, res.Segments[0].WorkedMinutes)
}

func TestNormalize_TieBreakBySequenceThenDirection(t *testing.T) {
	s0, s1 := int64(0), int64(1)
	out := punch("E1", at(12, 0), attendance.DirectionOut)
	out.SequenceHint = &s0
	in := punch("E1", at(12, 0), attendance.DirectionIn)
	in.Source = "device:d2"
	in.SequenceHint = &s1

	res := Normalize(nil, []attendance.RawPunch{
		punch("E1", at(8, 0), attendance.DirectionIn),
		in, out,
		punch("E1", at(17, 0), attendance.DirectionOut),
	}, NormalizeOptions{})

	require.Len(t, res.Segments, 2)
	assert.True(t, res.Segments[0].CheckOut.Equal(at(12, 0)))
	assert.True(t, res.Segments[1].CheckIn.Equal(at(12, 0)))
	assert.Equal(t, "device:d2", res.Segments[1].CheckInSource)
}

func TestNormalize_LocalCalendarDate(t *testing.T) {
	jakarta := time.FixedZone("WIB", 7*3600)
	// 18:00 UTC on the 14th is 01:00 on the 15th in Jakarta.
	p := punch("E1", time.Date(2024, 1, 14, 18, 0, 0, 0, time.UTC), attendance.DirectionIn)

	res := Normalize(nil, []attendance.RawPunch{p}, NormalizeOptions{Location: jakarta})
	require.Len(t, res.Segments, 1)
	assert.Equal(t, "2024-01-15", res.Segments[0].Date.Format(attendance.DateLayout))
	assert.Equal(t, time.UTC, res.Segments[0].CheckIn.Location())
}

func TestNormalize_IncrementalMatchesBatch(t *testing.T) {
	p1 := punch("E1", at(8, 0), attendance.DirectionUnknown)
	p2 := punch("E1", at(12, 0), attendance.DirectionUnknown)
	p3 := punch("E1", at(17, 0), attendance.DirectionUnknown)

	batch := Normalize(nil, []attendance.RawPunch{p1, p2, p3}, NormalizeOptions{})
	require.Len(t, batch.Segments, 2)
	assert.Equal(t, 240, batch.Segments[0].WorkedMinutes)
	assert.True(t, batch.Segments[1].IsOpen)
	assert.True(t, batch.Segments[1].CheckIn.Equal(at(17, 0)))

	splits := [][2][]attendance.RawPunch{
		{{p1, p3}, {p2}},
		{{p2}, {p1, p3}},
		{{p3}, {p1, p2}},
		{{p1}, {p2, p3}},
	}
	for _, split := range splits {
		first := Normalize(nil, split[0], NormalizeOptions{})
		second := Normalize(first.Segments, split[1], NormalizeOptions{})
		assert.Equal(t, batch.Segments, second.Segments)
	}

	t.Run("one punch at a time", func(t *testing.T) {
		var segs []attendance.DaySegment
		for _, p := range []attendance.RawPunch{p3, p1, p2} {
			segs = Normalize(segs, []attendance.RawPunch{p}, NormalizeOptions{}).Segments
		}
		assert.Equal(t, batch.Segments, segs)
	})
}

func TestNormalize_SegmentsWithoutRecordedDirection(t *testing.T) {
	in, out := at(8, 0), at(17, 0)
	legacy := []attendance.DaySegment{{
		EmployeeID:     "E1",
		Date:           CivilDate(in, time.UTC),
		CheckIn:        &in,
		CheckOut:       &out,
		CheckInSource:  "device:d1",
		CheckOutSource: "device:d1",
		WorkedMinutes:  540,
	}}

	res := Normalize(legacy, []attendance.RawPunch{punch("E1", at(12, 0), attendance.DirectionUnknown)}, NormalizeOptions{})
	require.Len(t, res.Segments, 2)
	assert.Equal(t, 240, res.Segments[0].WorkedMinutes, "unknown 12:00 closes the 08:00 check-in")
	assert.True(t, res.Segments[1].MissingCheckIn, "stored check-out keeps its side")
}

func TestNormalize_DuplicateKeySurvivorIgnoresOrder(t *testing.T) {
	in := punch("E1", at(8, 0), attendance.DirectionIn)
	out := punch("E1", at(8, 0), attendance.DirectionOut)

	a := Normalize(nil, []attendance.RawPunch{in, out}, NormalizeOptions{})
	b := Normalize(nil, []attendance.RawPunch{out, in}, NormalizeOptions{})

	assert.Equal(t, a.Segments, b.Segments)
	require.Len(t, a.Segments, 1)
	assert.True(t, a.Segments[0].IsOpen, "the check-in wins the tie")
	assert.Equal(t, attendance.DirectionIn, a.Segments[0].CheckInDirection)

	t.Run("sequence hint decides before direction", func(t *testing.T) {
		s0, s1 := int64(0), int64(1)
		early, late := out, in
		early.SequenceHint = &s0
		late.SequenceHint = &s1

		x := Normalize(nil, []attendance.RawPunch{late, early}, NormalizeOptions{})
		y := Normalize(nil, []attendance.RawPunch{early, late}, NormalizeOptions{})
		assert.Equal(t, x.Segments, y.Segments)
		require.Len(t, x.Segments, 1)
		assert.True(t, x.Segments[0].MissingCheckIn)
	})
}
