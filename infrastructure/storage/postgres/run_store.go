package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/felixgeelhaar/recon-go/domain/run"
)

// RunStore is a PostgreSQL-backed implementation of run.Store. Indexed
// columns are kept beside the full record in a JSONB column.
type RunStore struct {
	pool   *pgxpool.Pool
	schema string
}

// NewRunStore creates a new PostgreSQL run store.
func NewRunStore(pool *pgxpool.Pool, schema string) *RunStore {
	if schema == "" {
		schema = "public"
	}
	return &RunStore{
		pool:   pool,
		schema: schema,
	}
}

func (s *RunStore) tableName() string {
	return pgx.Identifier{s.schema, "scan_runs"}.Sanitize()
}

// Migrate creates the table and indexes if they do not exist.
func (s *RunStore) Migrate(ctx context.Context) error {
	table := s.tableName()
	stmts := []string{
		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
			id TEXT PRIMARY KEY,
			target TEXT NOT NULL,
			goal_id TEXT NOT NULL,
			status TEXT NOT NULL,
			record JSONB NOT NULL,
			start_time TIMESTAMPTZ NOT NULL,
			end_time TIMESTAMPTZ,
			updated_at TIMESTAMPTZ NOT NULL DEFAULT now()
		)`, table),
		fmt.Sprintf(`CREATE INDEX IF NOT EXISTS scan_runs_status_idx ON %s (status)`, table),
		fmt.Sprintf(`CREATE INDEX IF NOT EXISTS scan_runs_start_time_idx ON %s (start_time)`, table),
	}
	for _, stmt := range stmts {
		if _, err := s.pool.Exec(ctx, stmt); err != nil {
			return s.wrapError(err)
		}
	}
	return nil
}

// Save persists a new run.
func (s *RunStore) Save(ctx context.Context, rec *run.Record) error {
	if rec.ID == "" {
		return run.ErrInvalidRunID
	}

	data, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("marshal record: %w", err)
	}

	query := fmt.Sprintf(`
		INSERT INTO %s (id, target, goal_id, status, record, start_time, end_time)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`, s.tableName())

	_, err = s.pool.Exec(ctx, query,
		rec.ID, rec.Target, rec.GoalID, string(rec.Status), data, rec.StartTime, endTime(rec))
	if err != nil {
		if strings.Contains(err.Error(), "duplicate key") {
			return run.ErrRunExists
		}
		return s.wrapError(err)
	}
	return nil
}

// Get retrieves a run by ID.
func (s *RunStore) Get(ctx context.Context, id string) (*run.Record, error) {
	if id == "" {
		return nil, run.ErrInvalidRunID
	}

	query := fmt.Sprintf(`SELECT record FROM %s WHERE id = $1`, s.tableName())

	var data []byte
	if err := s.pool.QueryRow(ctx, query, id).Scan(&data); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, run.ErrRunNotFound
		}
		return nil, s.wrapError(err)
	}
	return decode(data)
}

// Update updates an existing run.
func (s *RunStore) Update(ctx context.Context, rec *run.Record) error {
	if rec.ID == "" {
		return run.ErrInvalidRunID
	}

	data, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("marshal record: %w", err)
	}

	query := fmt.Sprintf(`
		UPDATE %s
		SET target = $2, goal_id = $3, status = $4, record = $5, end_time = $6, updated_at = now()
		WHERE id = $1
	`, s.tableName())

	tag, err := s.pool.Exec(ctx, query, rec.ID, rec.Target, rec.GoalID, string(rec.Status), data, endTime(rec))
	if err != nil {
		return s.wrapError(err)
	}
	if tag.RowsAffected() == 0 {
		return run.ErrRunNotFound
	}
	return nil
}

// Delete removes a run by ID.
func (s *RunStore) Delete(ctx context.Context, id string) error {
	if id == "" {
		return run.ErrInvalidRunID
	}

	tag, err := s.pool.Exec(ctx, fmt.Sprintf(`DELETE FROM %s WHERE id = $1`, s.tableName()), id)
	if err != nil {
		return s.wrapError(err)
	}
	if tag.RowsAffected() == 0 {
		return run.ErrRunNotFound
	}
	return nil
}

// List returns runs matching the filter.
func (s *RunStore) List(ctx context.Context, filter run.ListFilter) ([]*run.Record, error) {
	where, args := buildWhereClause(filter)
	query := fmt.Sprintf(`SELECT record FROM %s %s ORDER BY %s`, s.tableName(), where, orderColumn(filter))
	if filter.Descending {
		query += " DESC"
	}
	if filter.Limit > 0 {
		args = append(args, filter.Limit)
		query += fmt.Sprintf(" LIMIT $%d", len(args))
	}
	if filter.Offset > 0 {
		args = append(args, filter.Offset)
		query += fmt.Sprintf(" OFFSET $%d", len(args))
	}

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, s.wrapError(err)
	}
	defer rows.Close()

	records := []*run.Record{}
	for rows.Next() {
		var data []byte
		if err := rows.Scan(&data); err != nil {
			return nil, s.wrapError(err)
		}
		r, err := decode(data)
		if err != nil {
			return nil, err
		}
		records = append(records, r)
	}
	return records, s.wrapError(rows.Err())
}

// Count returns the number of runs matching the filter.
func (s *RunStore) Count(ctx context.Context, filter run.ListFilter) (int64, error) {
	where, args := buildWhereClause(filter)
	query := fmt.Sprintf(`SELECT COUNT(*) FROM %s %s`, s.tableName(), where)

	var count int64
	if err := s.pool.QueryRow(ctx, query, args...).Scan(&count); err != nil {
		return 0, s.wrapError(err)
	}
	return count, nil
}

// Summary returns aggregate statistics.
func (s *RunStore) Summary(ctx context.Context, filter run.ListFilter) (run.Summary, error) {
	where, args := buildWhereClause(filter)
	query := fmt.Sprintf(`
		SELECT
			COUNT(*),
			COUNT(*) FILTER (WHERE status = 'done'),
			COUNT(*) FILTER (WHERE status = 'budget'),
			COUNT(*) FILTER (WHERE status = 'error'),
			COUNT(*) FILTER (WHERE status = 'running'),
			COALESCE(AVG(EXTRACT(EPOCH FROM (end_time - start_time))) FILTER (WHERE end_time IS NOT NULL), 0)
		FROM %s %s
	`, s.tableName(), where)

	var summary run.Summary
	var avgSeconds float64
	err := s.pool.QueryRow(ctx, query, args...).Scan(
		&summary.TotalRuns,
		&summary.DoneRuns,
		&summary.BudgetRuns,
		&summary.FailedRuns,
		&summary.RunningRuns,
		&avgSeconds,
	)
	if err != nil {
		return run.Summary{}, s.wrapError(err)
	}
	summary.AverageDuration = time.Duration(avgSeconds * float64(time.Second))
	return summary, nil
}

func orderColumn(filter run.ListFilter) string {
	switch filter.OrderBy {
	case run.OrderByEndTime:
		return "end_time"
	case run.OrderByID:
		return "id"
	case run.OrderByStatus:
		return "status"
	default:
		return "start_time"
	}
}

func buildWhereClause(filter run.ListFilter) (string, []any) {
	var conditions []string
	var args []any

	if len(filter.Status) > 0 {
		statuses := make([]string, len(filter.Status))
		for i, st := range filter.Status {
			statuses[i] = string(st)
		}
		args = append(args, statuses)
		conditions = append(conditions, fmt.Sprintf("status = ANY($%d)", len(args)))
	}
	if filter.Target != "" {
		args = append(args, filter.Target)
		conditions = append(conditions, fmt.Sprintf("target = $%d", len(args)))
	}
	if filter.GoalID != "" {
		args = append(args, filter.GoalID)
		conditions = append(conditions, fmt.Sprintf("goal_id = $%d", len(args)))
	}
	if !filter.FromTime.IsZero() {
		args = append(args, filter.FromTime)
		conditions = append(conditions, fmt.Sprintf("start_time >= $%d", len(args)))
	}
	if !filter.ToTime.IsZero() {
		args = append(args, filter.ToTime)
		conditions = append(conditions, fmt.Sprintf("start_time < $%d", len(args)))
	}

	if len(conditions) == 0 {
		return "", args
	}
	return "WHERE " + strings.Join(conditions, " AND "), args
}

func endTime(rec *run.Record) *time.Time {
	if rec.EndTime.IsZero() {
		return nil
	}
	t := rec.EndTime
	return &t
}

func decode(data []byte) (*run.Record, error) {
	var r run.Record
	if err := json.Unmarshal(data, &r); err != nil {
		return nil, fmt.Errorf("unmarshal record: %w", err)
	}
	return &r, nil
}

// wrapError wraps database errors with domain errors.
func (s *RunStore) wrapError(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return errors.Join(run.ErrOperationTimeout, err)
	}
	return errors.Join(run.ErrConnectionFailed, err)
}

var (
	_ run.Store           = (*RunStore)(nil)
	_ run.SummaryProvider = (*RunStore)(nil)
)
