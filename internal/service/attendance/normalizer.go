package attendance

import (
	"cmp"
	"fmt"
	"slices"
	"strings"
	"time"

	"github.com/cmlabs-hris/attendance-sync/internal/domain/attendance"
)

// NormalizeOptions configures a normalization pass.
type NormalizeOptions struct {
	// Location derives calendar dates from punch instants. Defaults to UTC.
	Location *time.Location
	// Policy decides how direction flags are used. Defaults to trusted.
	Policy attendance.DirectionPolicy
	// SourcePolicies overrides Policy for punches from specific sources.
	SourcePolicies map[string]attendance.DirectionPolicy
	// Resolve maps raw identifiers to employee codes. Nil treats identifiers as codes.
	Resolve func(identifier string) (string, bool)
}

// DayGroup is the new segment set of one touched employee-day.
type DayGroup struct {
	EmployeeID string
	Date       time.Time
	Segments   []attendance.DaySegment
}

// NormalizeResult holds the full updated segment set, the touched days and the
// punches that could not be attributed.
type NormalizeResult struct {
	Segments []attendance.DaySegment
	Days     []DayGroup
	Rejected []attendance.RejectedPunch
}

// CivilDate returns the calendar date of t in loc as midnight UTC.
func CivilDate(t time.Time, loc *time.Location) time.Time {
	if loc == nil {
		loc = time.UTC
	}
	l := t.In(loc)
	return time.Date(l.Year(), l.Month(), l.Day(), 0, 0, 0, 0, time.UTC)
}

// Attribute resolves punch identifiers to employee codes. Punches without a
// resolvable employee or timestamp are rejected with a reason.
func Attribute(punches []attendance.RawPunch, resolve func(string) (string, bool)) ([]attendance.RawPunch, []attendance.RejectedPunch) {
	known := make([]attendance.RawPunch, 0, len(punches))
	var rejected []attendance.RejectedPunch

	for _, p := range punches {
		id := strings.TrimSpace(p.EmployeeIdentifier)
		switch {
		case id == "":
			rejected = append(rejected, attendance.RejectedPunch{Punch: p, Reason: "missing employee identifier"})
			continue
		case p.Timestamp.IsZero():
			rejected = append(rejected, attendance.RejectedPunch{Punch: p, Reason: "missing timestamp"})
			continue
		}
		if resolve != nil {
			code, ok := resolve(id)
			if !ok {
				rejected = append(rejected, attendance.RejectedPunch{
					Punch:  p,
					Reason: fmt.Sprintf("%s: %q", attendance.ErrUnknownEmployee, id),
				})
				continue
			}
			id = code
		}
		p.EmployeeIdentifier = id
		if p.Direction == "" {
			p.Direction = attendance.DirectionUnknown
		}
		known = append(known, p)
	}
	return known, rejected
}

// Normalize turns punches into day segments. Days touched by punches are
// rebuilt from the punches plus the punches implied by their existing
// segments; other existing segments pass through unchanged. The output depends
// only on the set of inputs, never on their order.
func Normalize(existing []attendance.DaySegment, punches []attendance.RawPunch, opts NormalizeOptions) NormalizeResult {
	loc := opts.Location
	if loc == nil {
		loc = time.UTC
	}
	policy := opts.Policy
	if policy == "" {
		policy = attendance.DirectionTrusted
	}
	policyFor := func(source string) attendance.DirectionPolicy {
		if p, ok := opts.SourcePolicies[source]; ok && p.IsValid() {
			return p
		}
		return policy
	}

	known, rejected := Attribute(punches, opts.Resolve)

	groups := make(map[attendance.DayKey][]attendance.RawPunch)
	for _, p := range known {
		key := attendance.DayKey{EmployeeID: p.EmployeeIdentifier, Date: CivilDate(p.Timestamp, loc).Format(attendance.DateLayout)}
		groups[key] = append(groups[key], p)
	}

	var kept []attendance.DaySegment
	for _, seg := range existing {
		key := seg.Key()
		if _, touched := groups[key]; touched {
			groups[key] = append(groups[key], segmentPunches(seg)...)
			continue
		}
		kept = append(kept, seg)
	}

	keys := make([]attendance.DayKey, 0, len(groups))
	for k := range groups {
		keys = append(keys, k)
	}
	slices.SortFunc(keys, func(a, b attendance.DayKey) int {
		return cmp.Or(cmp.Compare(a.EmployeeID, b.EmployeeID), cmp.Compare(a.Date, b.Date))
	})

	result := NormalizeResult{Rejected: rejected}
	segments := kept
	for _, key := range keys {
		date, _ := time.Parse(attendance.DateLayout, key.Date)
		daySegs := pairDay(key.EmployeeID, date, dedupAndSort(groups[key]), policyFor, loc)
		result.Days = append(result.Days, DayGroup{EmployeeID: key.EmployeeID, Date: date, Segments: daySegs})
		segments = append(segments, daySegs...)
	}

	slices.SortStableFunc(segments, compareSegments)
	result.Segments = segments
	return result
}

// segmentPunches reconstructs the punches a stored segment was built from,
// including the direction each punch arrived with. Segments stored without a
// recorded direction fall back to the side of the pair they occupy.
func segmentPunches(seg attendance.DaySegment) []attendance.RawPunch {
	var out []attendance.RawPunch
	if seg.CheckIn != nil {
		out = append(out, attendance.RawPunch{
			EmployeeIdentifier: seg.EmployeeID,
			Timestamp:          *seg.CheckIn,
			Direction:          cmp.Or(seg.CheckInDirection, attendance.DirectionIn),
			Source:             seg.CheckInSource,
			SequenceHint:       seg.CheckInSequence,
		})
	}
	if seg.CheckOut != nil {
		out = append(out, attendance.RawPunch{
			EmployeeIdentifier: seg.EmployeeID,
			Timestamp:          *seg.CheckOut,
			Direction:          cmp.Or(seg.CheckOutDirection, attendance.DirectionOut),
			Source:             seg.CheckOutSource,
			SequenceHint:       seg.CheckOutSequence,
		})
	}
	return out
}

// dedupAndSort orders punches by timestamp, sequence hint, direction and
// source, then keeps the first punch per dedup key. Sorting first makes the
// survivor of a duplicate independent of arrival order.
func dedupAndSort(punches []attendance.RawPunch) []attendance.RawPunch {
	sorted := slices.Clone(punches)
	slices.SortFunc(sorted, comparePunches)

	seen := make(map[attendance.PunchKey]struct{}, len(sorted))
	out := sorted[:0]
	for _, p := range sorted {
		k := p.Key()
		if _, dup := seen[k]; dup {
			continue
		}
		seen[k] = struct{}{}
		out = append(out, p)
	}
	return out
}

func comparePunches(a, b attendance.RawPunch) int {
	if c := a.Timestamp.Compare(b.Timestamp); c != 0 {
		return c
	}
	if c := compareSequence(a.SequenceHint, b.SequenceHint); c != 0 {
		return c
	}
	switch {
	case a.Direction.Less(b.Direction):
		return -1
	case b.Direction.Less(a.Direction):
		return 1
	}
	return cmp.Compare(a.Source, b.Source)
}

// compareSequence orders punches with a hint before punches without one.
func compareSequence(a, b *int64) int {
	switch {
	case a != nil && b != nil:
		return cmp.Compare(*a, *b)
	case a != nil:
		return -1
	case b != nil:
		return 1
	}
	return 0
}

func compareSegments(a, b attendance.DaySegment) int {
	if c := cmp.Compare(a.EmployeeID, b.EmployeeID); c != 0 {
		return c
	}
	if c := a.Date.Compare(b.Date); c != 0 {
		return c
	}
	return segmentStart(a).Compare(segmentStart(b))
}

func segmentStart(s attendance.DaySegment) time.Time {
	if s.CheckIn != nil {
		return *s.CheckIn
	}
	if s.CheckOut != nil {
		return *s.CheckOut
	}
	return time.Time{}
}

// direction decides how a punch is read given the walk state.
func direction(p attendance.RawPunch, policy attendance.DirectionPolicy, loc *time.Location, awaitingOut bool) attendance.Direction {
	alternate := attendance.DirectionIn
	if awaitingOut {
		alternate = attendance.DirectionOut
	}

	switch policy {
	case attendance.DirectionAlternate:
		return alternate
	case attendance.DirectionTimeOfDay:
		if p.Direction == attendance.DirectionIn || p.Direction == attendance.DirectionOut {
			return p.Direction
		}
		if p.Timestamp.In(loc).Hour() < 12 {
			return attendance.DirectionIn
		}
		return attendance.DirectionOut
	default:
		if p.Direction == attendance.DirectionIn || p.Direction == attendance.DirectionOut {
			return p.Direction
		}
		return alternate
	}
}

// pairDay walks sorted punches through awaiting-in / awaiting-out.
func pairDay(employeeID string, date time.Time, punches []attendance.RawPunch, policyFor func(string) attendance.DirectionPolicy, loc *time.Location) []attendance.DaySegment {
	var segments []attendance.DaySegment
	var open *attendance.RawPunch

	for i := range punches {
		p := punches[i]
		dir := direction(p, policyFor(p.Source), loc, open != nil)

		switch {
		case open == nil && dir == attendance.DirectionIn:
			open = &p
		case open == nil:
			out := p.Timestamp.UTC()
			segments = append(segments, attendance.DaySegment{
				EmployeeID:        employeeID,
				Date:              date,
				CheckOut:          &out,
				CheckOutSource:    p.Source,
				CheckOutDirection: p.Direction,
				CheckOutSequence:  p.SequenceHint,
				MissingCheckIn:    true,
			})
		case dir == attendance.DirectionOut:
			segments = append(segments, closedSegment(employeeID, date, *open, p))
			open = nil
		default:
			// A second check-in leaves the first one without a check-out.
			segments = append(segments, openSegment(employeeID, date, *open))
			open = &p
		}
	}
	if open != nil {
		segments = append(segments, openSegment(employeeID, date, *open))
	}
	return segments
}

func openSegment(employeeID string, date time.Time, in attendance.RawPunch) attendance.DaySegment {
	checkIn := in.Timestamp.UTC()
	return attendance.DaySegment{
		EmployeeID:       employeeID,
		Date:             date,
		CheckIn:          &checkIn,
		CheckInSource:    in.Source,
		CheckInDirection: in.Direction,
		CheckInSequence:  in.SequenceHint,
		IsOpen:           true,
	}
}

func closedSegment(employeeID string, date time.Time, in, out attendance.RawPunch) attendance.DaySegment {
	checkIn := in.Timestamp.UTC()
	checkOut := out.Timestamp.UTC()
	return attendance.DaySegment{
		EmployeeID:        employeeID,
		Date:              date,
		CheckIn:           &checkIn,
		CheckOut:          &checkOut,
		CheckInSource:     in.Source,
		CheckOutSource:    out.Source,
		CheckInDirection:  in.Direction,
		CheckOutDirection: out.Direction,
		CheckInSequence:   in.SequenceHint,
		CheckOutSequence:  out.SequenceHint,
		WorkedMinutes:     int(checkOut.Sub(checkIn) / time.Minute),
	}
}
