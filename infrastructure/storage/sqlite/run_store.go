package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"strings"
	"time"

	"github.com/felixgeelhaar/recon-go/domain/run"
)

// RunStore is a SQLite-backed implementation of run.Store.
type RunStore struct {
	db *sql.DB
}

// NewRunStore creates a new SQLite run store with the given configuration.
func NewRunStore(cfg Config) (*RunStore, error) {
	db, err := openDB(cfg)
	if err != nil {
		return nil, err
	}

	s := &RunStore{db: db}
	if err := s.migrate(); err != nil {
		_ = db.Close()
		return nil, err
	}
	return s, nil
}

// NewRunStoreFromDB creates a run store from an existing database connection.
func NewRunStoreFromDB(db *sql.DB) (*RunStore, error) {
	s := &RunStore{db: db}
	if err := s.migrate(); err != nil {
		return nil, err
	}
	return s, nil
}

func (s *RunStore) migrate() error {
	schema := `
		CREATE TABLE IF NOT EXISTS scan_runs (
			id TEXT PRIMARY KEY,
			target TEXT NOT NULL,
			goal_id TEXT NOT NULL,
			status TEXT NOT NULL,
			data BLOB NOT NULL,
			start_time INTEGER NOT NULL,
			end_time INTEGER,
			updated_at INTEGER NOT NULL
		);
		CREATE INDEX IF NOT EXISTS idx_scan_runs_status ON scan_runs(status);
		CREATE INDEX IF NOT EXISTS idx_scan_runs_target ON scan_runs(target);
		CREATE INDEX IF NOT EXISTS idx_scan_runs_start_time ON scan_runs(start_time);
	`
	if _, err := s.db.Exec(schema); err != nil {
		return errors.Join(ErrMigrationFailed, err)
	}
	return nil
}

// Save persists a new run.
func (s *RunStore) Save(ctx context.Context, rec *run.Record) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if rec.ID == "" {
		return run.ErrInvalidRunID
	}

	data, err := json.Marshal(rec)
	if err != nil {
		return err
	}

	_, err = s.db.ExecContext(ctx,
		`INSERT INTO scan_runs (id, target, goal_id, status, data, start_time, end_time, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		rec.ID, rec.Target, rec.GoalID, string(rec.Status), data,
		rec.StartTime.UnixNano(), endTime(rec), time.Now().UnixNano(),
	)
	if err != nil {
		if isUniqueViolation(err) {
			return run.ErrRunExists
		}
		return err
	}
	return nil
}

// Get retrieves a run by ID.
func (s *RunStore) Get(ctx context.Context, id string) (*run.Record, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if id == "" {
		return nil, run.ErrInvalidRunID
	}

	var data []byte
	err := s.db.QueryRowContext(ctx, "SELECT data FROM scan_runs WHERE id = ?", id).Scan(&data)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, run.ErrRunNotFound
	}
	if err != nil {
		return nil, err
	}

	var r run.Record
	if err := json.Unmarshal(data, &r); err != nil {
		return nil, err
	}
	return &r, nil
}

// Update updates an existing run.
func (s *RunStore) Update(ctx context.Context, rec *run.Record) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if rec.ID == "" {
		return run.ErrInvalidRunID
	}

	data, err := json.Marshal(rec)
	if err != nil {
		return err
	}

	result, err := s.db.ExecContext(ctx,
		`UPDATE scan_runs SET target = ?, goal_id = ?, status = ?, data = ?, end_time = ?, updated_at = ?
		 WHERE id = ?`,
		rec.Target, rec.GoalID, string(rec.Status), data, endTime(rec), time.Now().UnixNano(), rec.ID,
	)
	if err != nil {
		return err
	}
	return requireRow(result)
}

// Delete removes a run by ID.
func (s *RunStore) Delete(ctx context.Context, id string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if id == "" {
		return run.ErrInvalidRunID
	}

	result, err := s.db.ExecContext(ctx, "DELETE FROM scan_runs WHERE id = ?", id)
	if err != nil {
		return err
	}
	return requireRow(result)
}

// List returns runs matching the filter.
func (s *RunStore) List(ctx context.Context, filter run.ListFilter) ([]*run.Record, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	query, args := buildListQuery(filter, false)
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	records := []*run.Record{}
	for rows.Next() {
		var data []byte
		if err := rows.Scan(&data); err != nil {
			return nil, err
		}
		var r run.Record
		if err := json.Unmarshal(data, &r); err != nil {
			continue // Skip malformed entries
		}
		records = append(records, &r)
	}
	return records, rows.Err()
}

// Count returns the number of runs matching the filter.
func (s *RunStore) Count(ctx context.Context, filter run.ListFilter) (int64, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}

	query, args := buildListQuery(filter, true)
	var count int64
	err := s.db.QueryRowContext(ctx, query, args...).Scan(&count)
	return count, err
}

// Summary returns aggregate statistics.
func (s *RunStore) Summary(ctx context.Context, filter run.ListFilter) (run.Summary, error) {
	if err := ctx.Err(); err != nil {
		return run.Summary{}, err
	}

	query := `
		SELECT
			COUNT(*),
			COALESCE(SUM(CASE WHEN status = 'done' THEN 1 ELSE 0 END), 0),
			COALESCE(SUM(CASE WHEN status = 'budget' THEN 1 ELSE 0 END), 0),
			COALESCE(SUM(CASE WHEN status = 'error' THEN 1 ELSE 0 END), 0),
			COALESCE(SUM(CASE WHEN status = 'running' THEN 1 ELSE 0 END), 0),
			COALESCE(AVG(CASE WHEN end_time IS NOT NULL THEN end_time - start_time ELSE NULL END), 0)
		FROM scan_runs`
	where, args := buildWhereClause(filter)
	if where != "" {
		query += " WHERE " + where
	}

	var summary run.Summary
	var avgNanos float64
	err := s.db.QueryRowContext(ctx, query, args...).Scan(
		&summary.TotalRuns,
		&summary.DoneRuns,
		&summary.BudgetRuns,
		&summary.FailedRuns,
		&summary.RunningRuns,
		&avgNanos,
	)
	if err != nil {
		return run.Summary{}, err
	}
	summary.AverageDuration = time.Duration(avgNanos)
	return summary, nil
}

func buildListQuery(filter run.ListFilter, countOnly bool) (string, []any) {
	query := "SELECT data FROM scan_runs"
	if countOnly {
		query = "SELECT COUNT(*) FROM scan_runs"
	}

	where, args := buildWhereClause(filter)
	if where != "" {
		query += " WHERE " + where
	}
	if countOnly {
		return query, args
	}

	orderBy := "start_time"
	switch filter.OrderBy {
	case run.OrderByEndTime:
		orderBy = "end_time"
	case run.OrderByID:
		orderBy = "id"
	case run.OrderByStatus:
		orderBy = "status"
	}
	query += " ORDER BY " + orderBy
	if filter.Descending {
		query += " DESC"
	}

	// SQLite only accepts OFFSET after LIMIT; -1 means no limit.
	if filter.Limit > 0 || filter.Offset > 0 {
		limit := filter.Limit
		if limit <= 0 {
			limit = -1
		}
		query += " LIMIT ? OFFSET ?"
		args = append(args, limit, filter.Offset)
	}
	return query, args
}

func buildWhereClause(filter run.ListFilter) (string, []any) {
	var conditions []string
	var args []any

	if len(filter.Status) > 0 {
		placeholders := make([]string, len(filter.Status))
		for i, status := range filter.Status {
			placeholders[i] = "?"
			args = append(args, string(status))
		}
		conditions = append(conditions, "status IN ("+strings.Join(placeholders, ", ")+")")
	}
	if filter.Target != "" {
		conditions = append(conditions, "target = ?")
		args = append(args, filter.Target)
	}
	if filter.GoalID != "" {
		conditions = append(conditions, "goal_id = ?")
		args = append(args, filter.GoalID)
	}
	if !filter.FromTime.IsZero() {
		conditions = append(conditions, "start_time >= ?")
		args = append(args, filter.FromTime.UnixNano())
	}
	if !filter.ToTime.IsZero() {
		conditions = append(conditions, "start_time < ?")
		args = append(args, filter.ToTime.UnixNano())
	}

	return strings.Join(conditions, " AND "), args
}

// Close closes the database connection.
func (s *RunStore) Close() error {
	return s.db.Close()
}

// DB returns the underlying database connection.
func (s *RunStore) DB() *sql.DB {
	return s.db
}

func endTime(rec *run.Record) sql.NullInt64 {
	if rec.EndTime.IsZero() {
		return sql.NullInt64{}
	}
	return sql.NullInt64{Int64: rec.EndTime.UnixNano(), Valid: true}
}

func requireRow(result sql.Result) error {
	rows, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if rows == 0 {
		return run.ErrRunNotFound
	}
	return nil
}

func isUniqueViolation(err error) bool {
	return err != nil && strings.Contains(err.Error(), "UNIQUE constraint failed")
}

var (
	_ run.Store           = (*RunStore)(nil)
	_ run.SummaryProvider = (*RunStore)(nil)
)
