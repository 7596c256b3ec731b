package attendance

import (
	"time"
)

// Direction is the in/out hint carried by a punch.
type Direction string

const (
	DirectionIn      Direction = "in"
	DirectionOut     Direction = "out"
	DirectionUnknown Direction = "unknown"
)

// rank orders directions for tie-breaking: in before out before unknown.
func (d Direction) rank() int {
	switch d {
	case DirectionIn:
		return 0
	case DirectionOut:
		return 1
	default:
		return 2
	}
}

// Less reports whether d sorts before other when timestamps and sequence hints tie.
func (d Direction) Less(other Direction) bool {
	return d.rank() < other.rank()
}

// Punch sources. Device sources are suffixed with the device id.
const (
	SourceAPI        = "api"
	SourceFile       = "file"
	SourceCorrection = "correction"
	SourceDevicePref = "device:"
)

// DeviceSource returns the punch source for a terminal.
func DeviceSource(deviceID string) string {
	return SourceDevicePref + deviceID
}

// RawPunch is a single timestamped event from a terminal, a file row or the API.
// It is immutable once produced.
type RawPunch struct {
	EmployeeIdentifier string
	Timestamp          time.Time
	Direction          Direction
	Source             string
	SequenceHint       *int64

	VerifyMode int
	WorkCode   string
	BatchID    string
}

// PunchKey is the deduplication key of a RawPunch.
type PunchKey struct {
	EmployeeIdentifier string
	Timestamp          int64
	Source             string
}

// Key returns the deduplication key of the punch.
func (p RawPunch) Key() PunchKey {
	return PunchKey{
		EmployeeIdentifier: p.EmployeeIdentifier,
		Timestamp:          p.Timestamp.UnixNano(),
		Source:             p.Source,
	}
}

// RejectedPunch is a punch the pipeline could not attribute. Rejections are
// returned to the caller and stored for operator review. ID and CreatedAt are
// set once the rejection has been stored.
type RejectedPunch struct {
	ID        int64     `json:"id,omitempty"`
	Punch     RawPunch  `json:"punch"`
	Reason    string    `json:"reason"`
	CreatedAt time.Time `json:"created_at,omitempty"`
}

// DayKey identifies one employee on one calendar date.
type DayKey struct {
	EmployeeID string
	Date       string // YYYY-MM-DD in the pipeline's local time zone
}

// DaySegment is a reconciled check-in/check-out pair for one employee on one date.
// The punch directions and sequence hints are kept as received so a day can be
// re-paired from its segments exactly as it was from the original punches.
type DaySegment struct {
	EmployeeID     string
	Date           time.Time
	CheckIn        *time.Time
	CheckOut       *time.Time
	CheckInSource  string
	CheckOutSource string
	WorkedMinutes  int
	IsOpen         bool
	MissingCheckIn bool

	CheckInDirection  Direction
	CheckOutDirection Direction
	CheckInSequence   *int64
	CheckOutSequence  *int64
}

// Key returns the employee-day the segment belongs to.
func (s DaySegment) Key() DayKey {
	return DayKey{EmployeeID: s.EmployeeID, Date: s.Date.Format(DateLayout)}
}

// DateLayout is the calendar date format used across the pipeline.
const DateLayout = "2006-01-02"

// Status is the single resolved label of a classified day.
type Status string

const (
	StatusNormal          Status = "normal"
	StatusMissingCheckout Status = "missing_checkout"
	StatusMissingCheckin  Status = "missing_checkin"
	StatusLate            Status = "late"
	StatusEarlyDeparture  Status = "early_departure"
	StatusOvertime        Status = "overtime"
)

func (s Status) IsValid() bool {
	switch s {
	case StatusNormal, StatusMissingCheckout, StatusMissingCheckin, StatusLate, StatusEarlyDeparture, StatusOvertime:
		return true
	}
	return false
}

// ClassifiedDay is the per-day result of the status classifier.
type ClassifiedDay struct {
	EmployeeID      string
	Date            time.Time
	Status          Status
	FirstCheckIn    *time.Time
	LastCheckOut    *time.Time
	WorkedMinutes   int
	LateMinutes     int
	EarlyMinutes    int
	OvertimeMinutes int
	SegmentCount    int
}

// Key returns the employee-day the classification belongs to.
func (d ClassifiedDay) Key() DayKey {
	return DayKey{EmployeeID: d.EmployeeID, Date: d.Date.Format(DateLayout)}
}

// DirectionPolicy decides how the normalizer treats device direction flags.
type DirectionPolicy string

const (
	// DirectionTrusted uses in/out flags to correct the pairing.
	DirectionTrusted DirectionPolicy = "trusted"
	// DirectionAlternate ignores flags and pairs by strict alternation.
	DirectionAlternate DirectionPolicy = "alternate"
	// DirectionTimeOfDay infers unknown flags from the clock: before noon is in.
	DirectionTimeOfDay DirectionPolicy = "time_of_day"
)

// IsValid reports whether p is a known policy.
func (p DirectionPolicy) IsValid() bool {
	switch p {
	case DirectionTrusted, DirectionAlternate, DirectionTimeOfDay:
		return true
	}
	return false
}

// ClassifierConfig holds the thresholds the status classifier evaluates.
// ExpectedStart and ExpectedEnd are offsets from local midnight.
type ClassifierConfig struct {
	StandardMinutes          int
	OvertimeThresholdMinutes int
	LateGraceMinutes         int
	EarlyGraceMinutes        int
	ExpectedStart            time.Duration
	ExpectedEnd              time.Duration
	Location                 *time.Location
}

// Schedule is an employee's own expected start and end, as offsets from local midnight.
type Schedule struct {
	Start time.Duration
	End   time.Duration
}

// Apply returns cfg with the expected start and end taken from the schedule.
func (s Schedule) Apply(cfg ClassifierConfig) ClassifierConfig {
	cfg.ExpectedStart = s.Start
	cfg.ExpectedEnd = s.End
	return cfg
}

// ImportCounts are the row tallies of an import file.
type ImportCounts struct {
	TotalRows  int `json:"total_rows"`
	Imported   int `json:"imported"`
	Duplicates int `json:"duplicates"`
	Failed     int `json:"failed"`
}

// ImportOptions are the parse settings an archived file was imported with.
type ImportOptions struct {
	Profile    Profile       `json:"profile"`
	Delimiter  string        `json:"delimiter,omitempty"`
	DateFormat string        `json:"date_format,omitempty"`
	HasHeader  bool          `json:"has_header"`
	DateFrom   string        `json:"date_from,omitempty"`
	DateTo     string        `json:"date_to,omitempty"`
	Columns    CustomColumns `json:"columns"`
}

// ImportBatch is an archived import file and the outcome of its last ingest.
type ImportBatch struct {
	BatchID     string
	FileName    string
	ArchivePath string
	Options     ImportOptions
	Counts      ImportCounts
	Attempts    int
	LastError   string
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// DirectionFromStatus maps a terminal status code to a direction:
// 1 check-in, 0 check-out, 2 break-out, 3 break-in.
func DirectionFromStatus(code int) Direction {
	switch code {
	case 1, 3:
		return DirectionIn
	case 0, 2:
		return DirectionOut
	}
	return DirectionUnknown
}
