package postgresql

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/cmlabs-hris/attendance-sync/internal/domain/attendance"
	"github.com/cmlabs-hris/attendance-sync/internal/pkg/database"
	"github.com/jackc/pgx/v5"
)

type punchRepositoryImpl struct {
	db *database.DB
}

func NewPunchRepository(db *database.DB) attendance.PunchRepository {
	return &punchRepositoryImpl{db: db}
}

// directionRank mirrors attendance.Direction ordering: in, out, then anything else.
func directionRank(col string) string {
	return `CASE ` + col + ` WHEN 'in' THEN 0 WHEN 'out' THEN 1 ELSE 2 END`
}

// InsertBatch implements attendance.PunchRepository. A punch whose key is
// already stored replaces the stored row when it has a lower sequence hint, or
// an equal hint and an earlier direction. Only newly inserted keys are counted.
func (r *punchRepositoryImpl) InsertBatch(ctx context.Context, punches []attendance.RawPunch) (int, error) {
	if len(punches) == 0 {
		return 0, nil
	}
	q := GetQuerier(ctx, r.db)

	query := `
		INSERT INTO raw_punches (
			employee_identifier, punched_at, direction, source, sequence_hint,
			verify_mode, work_code, batch_id
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		ON CONFLICT ON CONSTRAINT uq_raw_punches_key DO UPDATE SET
			direction = EXCLUDED.direction,
			sequence_hint = EXCLUDED.sequence_hint,
			verify_mode = EXCLUDED.verify_mode,
			work_code = EXCLUDED.work_code,
			batch_id = EXCLUDED.batch_id
		WHERE (EXCLUDED.sequence_hint IS NOT NULL AND raw_punches.sequence_hint IS NULL)
		   OR EXCLUDED.sequence_hint < raw_punches.sequence_hint
		   OR (EXCLUDED.sequence_hint IS NOT DISTINCT FROM raw_punches.sequence_hint
		       AND ` + directionRank("EXCLUDED.direction") + ` < ` + directionRank("raw_punches.direction") + `)
		RETURNING (xmax = 0)
	`

	batch := &pgx.Batch{}
	for _, p := range punches {
		batch.Queue(query,
			p.EmployeeIdentifier,
			p.Timestamp.UTC(),
			string(p.Direction),
			p.Source,
			p.SequenceHint,
			p.VerifyMode,
			p.WorkCode,
			p.BatchID,
		)
	}

	results := q.SendBatch(ctx, batch)
	defer results.Close()

	inserted := 0
	for range punches {
		var isNew bool
		err := results.QueryRow().Scan(&isNew)
		switch {
		case errors.Is(err, pgx.ErrNoRows):
			// stored punch kept
		case err != nil:
			return inserted, fmt.Errorf("failed to insert punch: %w", err)
		case isNew:
			inserted++
		}
	}
	return inserted, nil
}

// ListByEmployeeRange implements attendance.PunchRepository.
func (r *punchRepositoryImpl) ListByEmployeeRange(ctx context.Context, employeeID string, from, to time.Time) ([]attendance.RawPunch, error) {
	q := GetQuerier(ctx, r.db)

	query := `
		SELECT employee_identifier, punched_at, direction, source, sequence_hint,
			   verify_mode, work_code, batch_id
		FROM raw_punches
		WHERE employee_identifier = $1
		  AND punched_at >= $2
		  AND punched_at < $3
		ORDER BY punched_at, id
	`

	rows, err := q.Query(ctx, query, employeeID, from, to)
	if err != nil {
		return nil, fmt.Errorf("failed to list punches: %w", err)
	}
	defer rows.Close()

	var punches []attendance.RawPunch
	for rows.Next() {
		var p attendance.RawPunch
		if err := rows.Scan(
			&p.EmployeeIdentifier, &p.Timestamp, &p.Direction, &p.Source, &p.SequenceHint,
			&p.VerifyMode, &p.WorkCode, &p.BatchID,
		); err != nil {
			return nil, fmt.Errorf("failed to scan punch: %w", err)
		}
		p.Timestamp = p.Timestamp.UTC()
		punches = append(punches, p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating punches: %w", err)
	}
	return punches, nil
}

// SaveRejected implements attendance.PunchRepository.
func (r *punchRepositoryImpl) SaveRejected(ctx context.Context, rejected []attendance.RejectedPunch) error {
	if len(rejected) == 0 {
		return nil
	}
	q := GetQuerier(ctx, r.db)

	rows := make([][]any, 0, len(rejected))
	for _, rj := range rejected {
		var ts *time.Time
		if !rj.Punch.Timestamp.IsZero() {
			t := rj.Punch.Timestamp.UTC()
			ts = &t
		}
		rows = append(rows, []any{
			rj.Punch.EmployeeIdentifier, ts, string(rj.Punch.Direction), rj.Punch.Source, rj.Punch.SequenceHint,
			rj.Punch.VerifyMode, rj.Punch.WorkCode, rj.Punch.BatchID, rj.Reason,
		})
	}

	_, err := q.CopyFrom(ctx,
		pgx.Identifier{"rejected_punches"},
		[]string{
			"employee_identifier", "punched_at", "direction", "source", "sequence_hint",
			"verify_mode", "work_code", "batch_id", "reason",
		},
		pgx.CopyFromRows(rows),
	)
	if err != nil {
		return fmt.Errorf("failed to save rejected punches: %w", err)
	}
	return nil
}

// ListRejected implements attendance.PunchRepository.
func (r *punchRepositoryImpl) ListRejected(ctx context.Context, filter attendance.RejectedFilter) ([]attendance.RejectedPunch, error) {
	q := GetQuerier(ctx, r.db)

	query := `
		SELECT id, employee_identifier, punched_at, direction, source, sequence_hint,
			   verify_mode, work_code, batch_id, reason, created_at
		FROM rejected_punches
		WHERE 1=1
	`
	var args []any
	argIdx := 1

	if filter.BatchID != "" {
		query += fmt.Sprintf(" AND batch_id = $%d", argIdx)
		args = append(args, filter.BatchID)
		argIdx++
	}
	if len(filter.IDs) > 0 {
		query += fmt.Sprintf(" AND id = ANY($%d)", argIdx)
		args = append(args, filter.IDs)
		argIdx++
	}
	query += " ORDER BY created_at, id"
	if filter.Limit > 0 {
		query += fmt.Sprintf(" LIMIT $%d", argIdx)
		args = append(args, filter.Limit)
	}

	rows, err := q.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list rejected punches: %w", err)
	}
	defer rows.Close()

	var out []attendance.RejectedPunch
	for rows.Next() {
		var rj attendance.RejectedPunch
		var ts *time.Time
		if err := rows.Scan(
			&rj.ID, &rj.Punch.EmployeeIdentifier, &ts, &rj.Punch.Direction, &rj.Punch.Source, &rj.Punch.SequenceHint,
			&rj.Punch.VerifyMode, &rj.Punch.WorkCode, &rj.Punch.BatchID, &rj.Reason, &rj.CreatedAt,
		); err != nil {
			return nil, fmt.Errorf("failed to scan rejected punch: %w", err)
		}
		if ts != nil {
			rj.Punch.Timestamp = ts.UTC()
		}
		out = append(out, rj)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating rejected punches: %w", err)
	}
	return out, nil
}

// DeleteRejected implements attendance.PunchRepository.
func (r *punchRepositoryImpl) DeleteRejected(ctx context.Context, ids []int64) error {
	if len(ids) == 0 {
		return nil
	}
	q := GetQuerier(ctx, r.db)

	if _, err := q.Exec(ctx, `DELETE FROM rejected_punches WHERE id = ANY($1)`, ids); err != nil {
		return fmt.Errorf("failed to delete rejected punches: %w", err)
	}
	return nil
}
