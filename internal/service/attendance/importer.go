package attendance

import (
	"bytes"
	"encoding/csv"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/cmlabs-hris/attendance-sync/internal/domain/attendance"
	"github.com/cmlabs-hris/attendance-sync/internal/pkg/validator"
	"github.com/extrame/xls"
	"github.com/xuri/excelize/v2"
)

// maxSpreadsheetRows bounds how many rows are read from a legacy .xls sheet.
const maxSpreadsheetRows = 100000

// ParseOptions configures how rows are turned into punches.
type ParseOptions struct {
	Delimiter rune
	Layouts   []string
	HasHeader bool
	Location  *time.Location
	Source    string
	BatchID   string
	// DateFrom and DateTo bound check-in dates (inclusive). Rows outside are skipped.
	DateFrom *time.Time
	DateTo   *time.Time
	Columns  attendance.CustomColumns
	// Resolve turns unknown employee codes into row errors. Nil accepts every code.
	Resolve func(identifier string) (string, bool)
	// SpreadsheetSerials accepts numeric date cells. Only spreadsheet files carry them.
	SpreadsheetSerials bool
}

// ParseResult holds the punches of every row that parsed and the errors of
// every row that did not.
type ParseResult struct {
	Punches   []attendance.RawPunch
	Errors    []*attendance.ValidationError
	TotalRows int
	Parsed    int
	Skipped   int
}

// Failed is the number of data rows that produced an error.
func (r ParseResult) Failed() int {
	rows := make(map[int]struct{}, len(r.Errors))
	for _, e := range r.Errors {
		rows[e.Row] = struct{}{}
	}
	return len(rows)
}

// ReadRows extracts the cells of a csv, xlsx or xls upload.
func ReadRows(fileName string, data []byte, delimiter rune) ([][]string, error) {
	if len(data) == 0 {
		return nil, attendance.ErrEmptyFile
	}

	switch fileExt(fileName) {
	case ".csv", ".txt":
		if delimiter == 0 {
			delimiter = ','
		}
		r := csv.NewReader(bytes.NewReader(bytes.TrimPrefix(data, []byte("\xef\xbb\xbf"))))
		r.Comma = delimiter
		r.FieldsPerRecord = -1
		r.LazyQuotes = true
		r.TrimLeadingSpace = true
		rows, err := r.ReadAll()
		if err != nil {
			return nil, fmt.Errorf("failed to read csv: %w", err)
		}
		return rows, nil
	case ".xlsx":
		f, err := excelize.OpenReader(bytes.NewReader(data))
		if err != nil {
			return nil, fmt.Errorf("failed to open xlsx: %w", err)
		}
		defer func() { _ = f.Close() }()

		sheet := f.GetSheetName(0)
		if sheet == "" {
			return nil, fmt.Errorf("no worksheet found: %w", attendance.ErrEmptyFile)
		}
		rows, err := f.GetRows(sheet)
		if err != nil {
			return nil, fmt.Errorf("failed to read xlsx rows: %w", err)
		}
		return rows, nil
	case ".xls":
		wb, err := xls.OpenReader(bytes.NewReader(data), "utf-8")
		if err != nil {
			return nil, fmt.Errorf("failed to open xls: %w", err)
		}
		if wb.NumSheets() == 0 {
			return nil, fmt.Errorf("no worksheet found: %w", attendance.ErrEmptyFile)
		}
		return wb.ReadAllCells(maxSpreadsheetRows), nil
	}
	return nil, attendance.ErrUnsupportedFile
}

// IsSpreadsheet reports whether a file name is an xlsx or xls workbook.
func IsSpreadsheet(fileName string) bool {
	switch fileExt(fileName) {
	case ".xlsx", ".xls":
		return true
	}
	return false
}

func fileExt(name string) string {
	idx := strings.LastIndex(name, ".")
	if idx < 0 {
		return ""
	}
	return strings.ToLower(name[idx:])
}

// column names per profile, in their default positional order
var profileColumns = map[attendance.Profile][]string{
	attendance.ProfileStandard:     {"employee code", "check in", "check out"},
	attendance.ProfileDeviceExport: {"user id", "datetime", "status", "verify", "workcode"},
}

// required columns per profile
var profileRequired = map[attendance.Profile][]string{
	attendance.ProfileStandard:     {"employee code", "check in"},
	attendance.ProfileDeviceExport: {"user id", "datetime", "status"},
}

// ParseRows parses rows under a format profile. Each row is independent: a bad
// row is reported with its 1-based row number and parsing continues.
func ParseRows(rows [][]string, profile attendance.Profile, opts ParseOptions) (ParseResult, error) {
	if opts.Location == nil {
		opts.Location = time.UTC
	}
	if opts.Source == "" {
		opts.Source = attendance.SourceFile
	}

	var result ParseResult
	start := 0
	var index map[string]int

	switch profile {
	case attendance.ProfileStandard, attendance.ProfileDeviceExport:
		index = positionalIndex(profileColumns[profile])
		if opts.HasHeader {
			if len(rows) == 0 {
				return result, attendance.ErrEmptyFile
			}
			index = headerIndex(rows[0])
			start = 1
			var missing []string
			for _, col := range profileRequired[profile] {
				if _, ok := index[col]; !ok {
					missing = append(missing, col)
				}
			}
			if len(missing) > 0 {
				result.Errors = append(result.Errors, &attendance.ValidationError{
					Row:     1,
					Field:   strings.Join(missing, ", "),
					Message: attendance.ErrMissingHeaderField.Error(),
				})
				result.TotalRows = countDataRows(rows[1:])
				return result, nil
			}
		}
	case attendance.ProfileCustom:
		if opts.Columns.Employee < 1 || (opts.Columns.DateTime < 1 && opts.Columns.CheckIn < 1) {
			return result, fmt.Errorf("%w: custom profile needs employee and datetime or check-in columns", attendance.ErrUnknownProfile)
		}
		if opts.HasHeader {
			start = 1
		}
	default:
		return result, fmt.Errorf("%w: %q", attendance.ErrUnknownProfile, profile)
	}

	for i := start; i < len(rows); i++ {
		row := rows[i]
		if isBlank(row) {
			continue
		}
		result.TotalRows++
		rowNum := i + 1

		var punches []attendance.RawPunch
		var err *attendance.ValidationError
		switch profile {
		case attendance.ProfileStandard:
			punches, err = parseStandardRow(row, rowNum, index, opts)
		case attendance.ProfileDeviceExport:
			punches, err = parseDeviceExportRow(row, rowNum, index, opts)
		case attendance.ProfileCustom:
			punches, err = parseCustomRow(row, rowNum, opts)
		}
		if err != nil {
			result.Errors = append(result.Errors, err)
			continue
		}
		if !inWindow(punches[0].Timestamp, opts) {
			result.Skipped++
			continue
		}

		result.Parsed++
		result.Punches = append(result.Punches, punches...)
	}
	return result, nil
}

// ParseFile reads an upload and parses it under profile.
func ParseFile(fileName string, data []byte, profile attendance.Profile, opts ParseOptions) (ParseResult, error) {
	rows, err := ReadRows(fileName, data, opts.Delimiter)
	if err != nil {
		return ParseResult{}, err
	}
	opts.SpreadsheetSerials = IsSpreadsheet(fileName)
	return ParseRows(rows, profile, opts)
}

func parseStandardRow(row []string, rowNum int, index map[string]int, opts ParseOptions) ([]attendance.RawPunch, *attendance.ValidationError) {
	code := cell(row, index, "employee code")
	if code == "" {
		return nil, rowError(rowNum, "employee_code", "", "employee code is required")
	}
	if verr := checkEmployee(code, rowNum, "employee_code", opts); verr != nil {
		return nil, verr
	}

	rawIn := cell(row, index, "check in")
	if rawIn == "" {
		return nil, rowError(rowNum, "check_in", "", "check in is required")
	}
	checkIn, ok := parseCellTime(rawIn, opts)
	if !ok {
		return nil, rowError(rowNum, "check_in", rawIn, "invalid datetime, expected YYYY-MM-DD HH:MM:SS")
	}

	punches := []attendance.RawPunch{newFilePunch(code, checkIn, attendance.DirectionIn, opts)}

	if rawOut := cell(row, index, "check out"); rawOut != "" {
		checkOut, ok := parseCellTime(rawOut, opts)
		if !ok {
			return nil, rowError(rowNum, "check_out", rawOut, "invalid datetime, expected YYYY-MM-DD HH:MM:SS")
		}
		if !checkOut.After(checkIn) {
			return nil, rowError(rowNum, "check_out", rawOut, "check out must be after check in")
		}
		punches = append(punches, newFilePunch(code, checkOut, attendance.DirectionOut, opts))
	}
	return punches, nil
}

func parseDeviceExportRow(row []string, rowNum int, index map[string]int, opts ParseOptions) ([]attendance.RawPunch, *attendance.ValidationError) {
	userID := cell(row, index, "user id")
	if userID == "" {
		return nil, rowError(rowNum, "user_id", "", "user id is required")
	}
	if !validator.IsNumeric(userID) {
		return nil, rowError(rowNum, "user_id", userID, "user id must be numeric")
	}
	if verr := checkEmployee(userID, rowNum, "user_id", opts); verr != nil {
		return nil, verr
	}

	rawTime := cell(row, index, "datetime")
	if rawTime == "" {
		return nil, rowError(rowNum, "datetime", "", "datetime is required")
	}
	ts, ok := parseCellTime(rawTime, opts)
	if !ok {
		return nil, rowError(rowNum, "datetime", rawTime, "invalid datetime, expected YYYY-MM-DD HH:MM:SS")
	}

	rawStatus := cell(row, index, "status")
	if rawStatus == "" {
		return nil, rowError(rowNum, "status", "", "status is required")
	}
	code, err := strconv.Atoi(rawStatus)
	if err != nil || code < 0 || code > 3 {
		return nil, rowError(rowNum, "status", rawStatus, "status must be 0, 1, 2 or 3")
	}

	p := newFilePunch(userID, ts, attendance.DirectionFromStatus(code), opts)
	if rawVerify := cell(row, index, "verify"); rawVerify != "" {
		verify, err := strconv.Atoi(rawVerify)
		if err != nil {
			return nil, rowError(rowNum, "verify", rawVerify, "verify must be a number")
		}
		p.VerifyMode = verify
	}
	p.WorkCode = cell(row, index, "workcode")
	return []attendance.RawPunch{p}, nil
}

func parseCustomRow(row []string, rowNum int, opts ParseOptions) ([]attendance.RawPunch, *attendance.ValidationError) {
	cols := opts.Columns
	code := cellAt(row, cols.Employee)
	if code == "" {
		return nil, rowError(rowNum, "employee", "", "employee is required")
	}
	if verr := checkEmployee(code, rowNum, "employee", opts); verr != nil {
		return nil, verr
	}

	if cols.DateTime >= 1 {
		raw := cellAt(row, cols.DateTime)
		ts, ok := parseCellTime(raw, opts)
		if !ok {
			return nil, rowError(rowNum, "datetime", raw, "invalid datetime")
		}
		dir := attendance.DirectionUnknown
		if cols.Direction >= 1 {
			dir = parseDirection(cellAt(row, cols.Direction))
		}
		return []attendance.RawPunch{newFilePunch(code, ts, dir, opts)}, nil
	}

	// Pair columns behave like the standard profile.
	index := map[string]int{"employee code": cols.Employee - 1, "check in": cols.CheckIn - 1}
	if cols.CheckOut >= 1 {
		index["check out"] = cols.CheckOut - 1
	}
	return parseStandardRow(row, rowNum, index, opts)
}

func checkEmployee(identifier string, rowNum int, field string, opts ParseOptions) *attendance.ValidationError {
	if opts.Resolve == nil {
		return nil
	}
	if _, ok := opts.Resolve(identifier); !ok {
		return rowError(rowNum, field, identifier, fmt.Sprintf("unknown employee %s", identifier))
	}
	return nil
}

func newFilePunch(identifier string, ts time.Time, dir attendance.Direction, opts ParseOptions) attendance.RawPunch {
	return attendance.RawPunch{
		EmployeeIdentifier: identifier,
		Timestamp:          ts,
		Direction:          dir,
		Source:             opts.Source,
		BatchID:            opts.BatchID,
	}
}

func rowError(row int, field, value, msg string) *attendance.ValidationError {
	return &attendance.ValidationError{Row: row, Field: field, Value: value, Message: msg}
}

// parseCellTime accepts text datetimes and spreadsheet date serials.
// Spreadsheet date serials accepted as attendance times: 1990-01-01 up to 2100-01-01.
const (
	minDateSerial = 32874
	maxDateSerial = 73051
)

func parseCellTime(value string, opts ParseOptions) (time.Time, bool) {
	if t, ok := attendance.ParseDateTime(value, opts.Layouts, opts.Location); ok {
		return t, true
	}
	if !opts.SpreadsheetSerials {
		return time.Time{}, false
	}
	serial, err := strconv.ParseFloat(strings.TrimSpace(value), 64)
	if err != nil || serial < minDateSerial || serial >= maxDateSerial {
		return time.Time{}, false
	}
	t, err := excelize.ExcelDateToTime(serial, false)
	if err != nil {
		return time.Time{}, false
	}
	// Serials carry wall-clock time without a zone.
	t = t.Round(time.Second)
	return time.Date(t.Year(), t.Month(), t.Day(), t.Hour(), t.Minute(), t.Second(), 0, opts.Location), true
}

func parseDirection(value string) attendance.Direction {
	v := strings.ToLower(strings.TrimSpace(value))
	if code, err := strconv.Atoi(v); err == nil {
		return attendance.DirectionFromStatus(code)
	}
	switch strings.NewReplacer(" ", "", "-", "", "_", "", "/", "").Replace(v) {
	case "in", "i", "checkin", "cin", "breakin", "masuk":
		return attendance.DirectionIn
	case "out", "o", "checkout", "cout", "breakout", "keluar", "pulang":
		return attendance.DirectionOut
	}
	return attendance.DirectionUnknown
}

func inWindow(ts time.Time, opts ParseOptions) bool {
	date := CivilDate(ts, opts.Location)
	if opts.DateFrom != nil && date.Before(*opts.DateFrom) {
		return false
	}
	if opts.DateTo != nil && date.After(*opts.DateTo) {
		return false
	}
	return true
}

func normalizeHeader(h string) string {
	h = strings.ToLower(strings.TrimSpace(strings.TrimPrefix(h, "\uFEFF")))
	return strings.NewReplacer("_", " ", "-", " ").Replace(h)
}

func headerIndex(header []string) map[string]int {
	index := make(map[string]int, len(header))
	for i, h := range header {
		name := normalizeHeader(h)
		if name == "work code" {
			name = "workcode"
		}
		if name == "date time" {
			name = "datetime"
		}
		if _, exists := index[name]; !exists {
			index[name] = i
		}
	}
	return index
}

func positionalIndex(cols []string) map[string]int {
	index := make(map[string]int, len(cols))
	for i, c := range cols {
		index[c] = i
	}
	return index
}

func cell(row []string, index map[string]int, name string) string {
	idx, ok := index[name]
	if !ok || idx < 0 || idx >= len(row) {
		return ""
	}
	return strings.TrimSpace(row[idx])
}

// cellAt reads a 1-based column.
func cellAt(row []string, col int) string {
	if col < 1 || col > len(row) {
		return ""
	}
	return strings.TrimSpace(row[col-1])
}

func isBlank(row []string) bool {
	for _, c := range row {
		if strings.TrimSpace(c) != "" {
			return false
		}
	}
	return true
}

func countDataRows(rows [][]string) int {
	n := 0
	for _, r := range rows {
		if !isBlank(r) {
			n++
		}
	}
	return n
}

// DelimiterRune converts a configured delimiter name to its rune.
func DelimiterRune(s string) (rune, error) {
	switch s {
	case "", ",":
		return ',', nil
	case ";":
		return ';', nil
	case "\t", "tab", `\t`:
		return '\t', nil
	case "|":
		return '|', nil
	}
	return 0, errors.New("delimiter must be one of , ; tab |")
}

// GoLayout turns a date format such as "DD/MM/YYYY HH:mm:ss" into a Go layout.
// Formats that already use Go reference values pass through unchanged.
func GoLayout(format string) string {
	return strings.NewReplacer(
		"YYYY", "2006",
		"YY", "06",
		"MM", "01",
		"DD", "02",
		"HH", "15",
		"mm", "04",
		"ss", "05",
	).Replace(format)
}
