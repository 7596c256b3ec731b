package attendance

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"strings"
	"time"

	"github.com/cmlabs-hris/attendance-sync/internal/domain/attendance"
	"github.com/cmlabs-hris/attendance-sync/internal/pkg/database"
	"github.com/cmlabs-hris/attendance-sync/internal/pkg/validator"
	"github.com/cmlabs-hris/attendance-sync/internal/service/file"
	"github.com/segmentio/ksuid"
	"go.uber.org/zap"
)

// Config holds the pipeline settings shared by every ingest path.
type Config struct {
	Location   *time.Location
	Policy     attendance.DirectionPolicy
	Layouts    []string
	Classifier attendance.ClassifierConfig
}

type AttendanceServiceImpl struct {
	tx         database.Transactor
	punches    attendance.PunchRepository
	segments   attendance.SegmentRepository
	days       attendance.ClassifiedDayRepository
	directory  attendance.EmployeeDirectory
	policies   attendance.PolicySource
	files      file.FileService
	batches    attendance.ImportBatchRepository
	processors []attendance.DayProcessor
	cfg        Config
	logger     *zap.Logger
	now        func() time.Time
}

// NewAttendanceService wires the pipeline. policies, files and batches may be nil.
func NewAttendanceService(
	tx database.Transactor,
	punches attendance.PunchRepository,
	segments attendance.SegmentRepository,
	days attendance.ClassifiedDayRepository,
	directory attendance.EmployeeDirectory,
	policies attendance.PolicySource,
	files file.FileService,
	batches attendance.ImportBatchRepository,
	processors []attendance.DayProcessor,
	cfg Config,
	logger *zap.Logger,
) attendance.AttendanceService {
	if cfg.Location == nil {
		cfg.Location = time.UTC
	}
	if cfg.Classifier.Location == nil {
		cfg.Classifier.Location = cfg.Location
	}
	if cfg.Policy == "" {
		cfg.Policy = attendance.DirectionTrusted
	}
	return &AttendanceServiceImpl{
		tx:         tx,
		punches:    punches,
		segments:   segments,
		days:       days,
		directory:  directory,
		policies:   policies,
		files:      files,
		batches:    batches,
		processors: processors,
		cfg:        cfg,
		logger:     logger,
		now:        time.Now,
	}
}

// Ingest implements attendance.AttendanceService.
func (s *AttendanceServiceImpl) Ingest(ctx context.Context, punches []attendance.RawPunch) (attendance.IngestResult, error) {
	result := attendance.IngestResult{Received: len(punches)}
	if len(punches) == 0 {
		return result, nil
	}

	resolved, err := s.resolve(ctx, punches)
	if err != nil {
		return result, err
	}
	known, rejected := Attribute(punches, lookup(resolved))
	result.Rejected = rejected

	if len(rejected) > 0 {
		if err := s.punches.SaveRejected(ctx, rejected); err != nil {
			return result, fmt.Errorf("failed to save rejected punches: %w", err)
		}
		s.logger.Warn("punches rejected",
			zap.Int("count", len(rejected)),
			zap.String("first_reason", rejected[0].Reason),
		)
	}
	if err := s.store(ctx, known, &result); err != nil {
		return result, err
	}

	s.logger.Info("punches ingested",
		zap.Int("received", result.Received),
		zap.Int("stored", result.Stored),
		zap.Int("duplicates", result.Duplicates),
		zap.Int("rejected", len(result.Rejected)),
		zap.Int("days", len(result.Days)),
		zap.Int("frozen", len(result.Frozen)),
	)
	return result, nil
}

// store inserts attributed punches and rebuilds every employee-day they touch.
func (s *AttendanceServiceImpl) store(ctx context.Context, known []attendance.RawPunch, result *attendance.IngestResult) error {
	if len(known) == 0 {
		return nil
	}

	stored, err := s.punches.InsertBatch(ctx, known)
	if err != nil {
		return fmt.Errorf("failed to store punches: %w", err)
	}
	result.Stored += stored
	result.Duplicates += len(known) - stored

	keys := make(map[attendance.DayKey]struct{})
	for _, p := range known {
		keys[attendance.DayKey{
			EmployeeID: p.EmployeeIdentifier,
			Date:       CivilDate(p.Timestamp, s.cfg.Location).Format(attendance.DateLayout),
		}] = struct{}{}
	}
	return s.rebuild(ctx, keys, result)
}

// rebuild re-normalizes and re-classifies each employee-day from its full
// stored punch set, then runs the day processors on the new classifications.
func (s *AttendanceServiceImpl) rebuild(ctx context.Context, keys map[attendance.DayKey]struct{}, result *attendance.IngestResult) error {
	ordered := make([]attendance.DayKey, 0, len(keys))
	for k := range keys {
		ordered = append(ordered, k)
	}
	slices.SortFunc(ordered, func(a, b attendance.DayKey) int {
		if c := strings.Compare(a.EmployeeID, b.EmployeeID); c != 0 {
			return c
		}
		return strings.Compare(a.Date, b.Date)
	})

	opts := NormalizeOptions{Location: s.cfg.Location, Policy: s.cfg.Policy}
	if s.policies != nil {
		policies, err := s.policies.DirectionPolicies(ctx)
		if err != nil {
			return fmt.Errorf("failed to load direction policies: %w", err)
		}
		opts.SourcePolicies = policies
	}

	employees := make([]string, 0, len(ordered))
	for _, k := range ordered {
		employees = append(employees, k.EmployeeID)
	}
	schedules, err := s.directory.Schedules(ctx, slices.Compact(employees))
	if err != nil {
		return fmt.Errorf("failed to load employee schedules: %w", err)
	}

	for _, key := range ordered {
		if err := ctx.Err(); err != nil {
			return err
		}

		date, err := time.Parse(attendance.DateLayout, key.Date)
		if err != nil {
			return fmt.Errorf("invalid day key %q: %w", key.Date, err)
		}

		var day attendance.ClassifiedDay
		var segments []attendance.DaySegment
		err = s.tx.WithinTransaction(ctx, func(txCtx context.Context) error {
			if err := s.segments.LockDay(txCtx, key.EmployeeID, date); err != nil {
				return fmt.Errorf("failed to lock day: %w", err)
			}

			from := time.Date(date.Year(), date.Month(), date.Day(), 0, 0, 0, 0, s.cfg.Location)
			to := from.AddDate(0, 0, 1)
			stored, err := s.punches.ListByEmployeeRange(txCtx, key.EmployeeID, from, to)
			if err != nil {
				return fmt.Errorf("failed to load punches: %w", err)
			}
			existing, err := s.segments.ListByDay(txCtx, key.EmployeeID, date)
			if err != nil {
				return fmt.Errorf("failed to load segments: %w", err)
			}

			normalized := Normalize(existing, stored, opts)
			for _, g := range normalized.Days {
				if g.EmployeeID == key.EmployeeID && g.Date.Equal(date) {
					segments = g.Segments
				}
			}

			if err := s.segments.ReplaceDay(txCtx, key.EmployeeID, date, segments); err != nil {
				return fmt.Errorf("failed to replace segments: %w", err)
			}

			classifier := s.cfg.Classifier
			if sch, ok := schedules[key.EmployeeID]; ok {
				classifier = sch.Apply(classifier)
			}
			day = Classify(key.EmployeeID, date, segments, classifier)
			if err := s.days.Upsert(txCtx, day); err != nil {
				return fmt.Errorf("failed to save classified day: %w", err)
			}
			return nil
		})
		if err != nil {
			return fmt.Errorf("employee %s on %s: %w", key.EmployeeID, key.Date, err)
		}

		result.Segments = append(result.Segments, segments...)
		result.Days = append(result.Days, day)
	}

	for _, p := range s.processors {
		if err := ctx.Err(); err != nil {
			return err
		}
		frozen, err := p.ProcessDays(ctx, result.Days)
		if err != nil {
			return err
		}
		result.Frozen = append(result.Frozen, frozen...)
	}
	return nil
}

// resolve looks up every distinct identifier in one directory call.
func (s *AttendanceServiceImpl) resolve(ctx context.Context, punches []attendance.RawPunch) (map[string]string, error) {
	seen := make(map[string]struct{})
	var ids []string
	for _, p := range punches {
		id := strings.TrimSpace(p.EmployeeIdentifier)
		if id == "" {
			continue
		}
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		ids = append(ids, id)
	}
	return s.resolveIdentifiers(ctx, ids)
}

func (s *AttendanceServiceImpl) resolveIdentifiers(ctx context.Context, ids []string) (map[string]string, error) {
	if len(ids) == 0 {
		return map[string]string{}, nil
	}
	resolved, err := s.directory.Resolve(ctx, ids)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve employees: %w", err)
	}
	return resolved, nil
}

func lookup(resolved map[string]string) func(string) (string, bool) {
	return func(id string) (string, bool) {
		code, ok := resolved[strings.TrimSpace(id)]
		return code, ok
	}
}

// ImportRecord implements attendance.AttendanceService.
func (s *AttendanceServiceImpl) ImportRecord(ctx context.Context, req attendance.ImportRecordRequest) (attendance.ImportRecordResponse, error) {
	if err := req.Validate(); err != nil {
		return attendance.ImportRecordResponse{}, err
	}

	code := strings.TrimSpace(req.EmployeeCode)
	resolved, err := s.resolveIdentifiers(ctx, []string{code})
	if err != nil {
		return attendance.ImportRecordResponse{}, err
	}
	if _, ok := resolved[code]; !ok {
		return attendance.ImportRecordResponse{}, fmt.Errorf("%w: %s", attendance.ErrUnknownEmployee, code)
	}

	punches, err := req.Punches(s.cfg.Layouts, s.cfg.Location, attendance.SourceAPI, ksuid.New().String())
	if err != nil {
		return attendance.ImportRecordResponse{}, err
	}

	result, err := s.Ingest(ctx, punches)
	if err != nil {
		return attendance.ImportRecordResponse{}, err
	}

	resp := attendance.ImportRecordResponse{
		EmployeeCode: code,
		Stored:       result.Stored,
		Duplicates:   result.Duplicates,
		Days:         make([]attendance.ClassifiedDayResponse, 0, len(result.Days)),
		Frozen:       result.Frozen,
	}
	for _, d := range result.Days {
		resp.Days = append(resp.Days, attendance.NewClassifiedDayResponse(d))
	}
	return resp, nil
}

// BulkImport implements attendance.AttendanceService. Items are validated
// independently; every valid item is ingested in one pipeline pass.
func (s *AttendanceServiceImpl) BulkImport(ctx context.Context, req attendance.BulkImportRequest) (attendance.BulkImportResponse, error) {
	if err := req.Validate(); err != nil {
		return attendance.BulkImportResponse{}, err
	}

	resp := attendance.BulkImportResponse{
		Total: len(req.Records),
		Items: make([]attendance.BulkImportItemResult, len(req.Records)),
	}

	codes := make([]string, 0, len(req.Records))
	for _, rec := range req.Records {
		if code := strings.TrimSpace(rec.EmployeeCode); code != "" {
			codes = append(codes, code)
		}
	}
	slices.Sort(codes)
	resolved, err := s.resolveIdentifiers(ctx, slices.Compact(codes))
	if err != nil {
		return attendance.BulkImportResponse{}, err
	}

	batchID := ksuid.New().String()
	var punches []attendance.RawPunch
	for i, rec := range req.Records {
		item := attendance.BulkImportItemResult{Index: i, EmployeeCode: rec.EmployeeCode}

		if err := rec.Validate(); err != nil {
			item.Error = "validation failed"
			var verrs validator.ValidationErrors
			if errors.As(err, &verrs) {
				item.Errors = verrs.ToMap()
			}
			resp.Items[i] = item
			continue
		}
		if _, ok := resolved[strings.TrimSpace(rec.EmployeeCode)]; !ok {
			item.Error = fmt.Sprintf("%s: %s", attendance.ErrUnknownEmployee, rec.EmployeeCode)
			resp.Items[i] = item
			continue
		}

		p, err := rec.Punches(s.cfg.Layouts, s.cfg.Location, attendance.SourceAPI, batchID)
		if err != nil {
			item.Error = err.Error()
			resp.Items[i] = item
			continue
		}
		item.Success = true
		resp.Items[i] = item
		punches = append(punches, p...)
	}

	for _, item := range resp.Items {
		if item.Success {
			resp.Succeeded++
		} else {
			resp.Failed++
		}
	}

	if len(punches) > 0 {
		result, err := s.Ingest(ctx, punches)
		if err != nil {
			return attendance.BulkImportResponse{}, err
		}
		resp.Frozen = result.Frozen
	}
	return resp, nil
}

// ImportFile implements attendance.AttendanceService.
func (s *AttendanceServiceImpl) ImportFile(ctx context.Context, req attendance.ImportFileRequest) (attendance.ImportFileResponse, error) {
	if err := req.Validate(); err != nil {
		return attendance.ImportFileResponse{}, err
	}

	batchID := ksuid.New().String()
	options := req.Options()
	parsed, err := s.parseImport(ctx, req.FileName, req.Data, batchID, options)
	if err != nil {
		return attendance.ImportFileResponse{}, err
	}

	resp := attendance.ImportFileResponse{
		BatchID:      batchID,
		Profile:      req.Profile,
		ValidateOnly: req.ValidateOnly,
		TotalRows:    parsed.TotalRows,
		Skipped:      parsed.Skipped,
		Failed:       parsed.Failed(),
		Errors:       parsed.Errors,
	}
	if resp.Errors == nil {
		resp.Errors = []*attendance.ValidationError{}
	}

	if req.ValidateOnly || len(parsed.Punches) == 0 {
		resp.Imported = parsed.Parsed
		return resp, nil
	}

	recorded := s.archiveImport(ctx, batchID, req.FileName, req.Data, options)

	result, err := s.Ingest(ctx, parsed.Punches)
	counts := attendance.ImportCounts{TotalRows: parsed.TotalRows, Imported: parsed.Parsed, Duplicates: result.Duplicates, Failed: parsed.Failed()}
	if recorded {
		s.recordAttempt(ctx, batchID, counts, err)
	}
	if err != nil {
		return attendance.ImportFileResponse{}, err
	}
	resp.Imported = parsed.Parsed
	resp.Duplicates = result.Duplicates
	resp.Rejected = result.Rejected
	resp.Frozen = result.Frozen

	s.logger.Info("attendance file imported",
		zap.String("batch_id", batchID),
		zap.String("profile", string(req.Profile)),
		zap.Int("total_rows", resp.TotalRows),
		zap.Int("imported", resp.Imported),
		zap.Int("failed", resp.Failed),
		zap.Int("skipped", resp.Skipped),
	)
	return resp, nil
}

// parseImport reads and parses a file under stored import options. The rows
// are parsed twice: the first pass collects identifiers, the second turns
// unknown ones into row errors.
func (s *AttendanceServiceImpl) parseImport(ctx context.Context, fileName string, data []byte, batchID string, options attendance.ImportOptions) (ParseResult, error) {
	delimiter, err := DelimiterRune(options.Delimiter)
	if err != nil {
		return ParseResult{}, err
	}

	opts := ParseOptions{
		Delimiter:          delimiter,
		Layouts:            s.cfg.Layouts,
		HasHeader:          options.HasHeader,
		Location:           s.cfg.Location,
		Source:             attendance.SourceFile,
		BatchID:            batchID,
		Columns:            options.Columns,
		SpreadsheetSerials: IsSpreadsheet(fileName),
	}
	if options.DateFormat != "" {
		opts.Layouts = []string{GoLayout(options.DateFormat)}
	}
	if options.DateFrom != "" {
		from, _ := validator.IsValidDate(options.DateFrom)
		opts.DateFrom = &from
	}
	if options.DateTo != "" {
		to, _ := validator.IsValidDate(options.DateTo)
		opts.DateTo = &to
	}

	rows, err := ReadRows(fileName, data, delimiter)
	if err != nil {
		return ParseResult{}, err
	}

	firstPass, err := ParseRows(rows, options.Profile, opts)
	if err != nil {
		return ParseResult{}, err
	}
	resolved, err := s.resolve(ctx, firstPass.Punches)
	if err != nil {
		return ParseResult{}, err
	}
	opts.Resolve = lookup(resolved)

	return ParseRows(rows, options.Profile, opts)
}

// Reconcile implements attendance.AttendanceService. Every employee-day with
// stored segments in the range is rebuilt from its punches.
func (s *AttendanceServiceImpl) Reconcile(ctx context.Context, req attendance.ReconcileRequest) (attendance.IngestResult, error) {
	if err := req.Validate(); err != nil {
		return attendance.IngestResult{}, err
	}
	from, _ := validator.IsValidDate(req.DateFrom)
	to, _ := validator.IsValidDate(req.DateTo)

	segments, err := s.segments.ListByRange(ctx, from, to)
	if err != nil {
		return attendance.IngestResult{}, fmt.Errorf("failed to list segments: %w", err)
	}

	keys := make(map[attendance.DayKey]struct{})
	for _, seg := range segments {
		keys[seg.Key()] = struct{}{}
	}

	var result attendance.IngestResult
	if err := s.rebuild(ctx, keys, &result); err != nil {
		return result, err
	}

	s.logger.Info("attendance reconciled",
		zap.String("date_from", req.DateFrom),
		zap.String("date_to", req.DateTo),
		zap.Int("days", len(result.Days)),
		zap.Int("frozen", len(result.Frozen)),
	)
	return result, nil
}

// ListDays implements attendance.AttendanceService.
func (s *AttendanceServiceImpl) ListDays(ctx context.Context, filter attendance.DayFilter) ([]attendance.ClassifiedDayResponse, error) {
	days, err := s.days.List(ctx, filter)
	if err != nil {
		return nil, fmt.Errorf("failed to list classified days: %w", err)
	}
	resp := make([]attendance.ClassifiedDayResponse, 0, len(days))
	for _, d := range days {
		resp = append(resp, attendance.NewClassifiedDayResponse(d))
	}
	return resp, nil
}
