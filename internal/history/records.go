package history

import (
	"context"
	"database/sql"
	"fmt"
	"time"
)

// Run is one batch run.
type Run struct {
	ID           string
	StartedAt    time.Time
	FinishedAt   time.Time
	Jobs         int
	Completed    int
	Failed       int
	Cancelled    int
	WasCancelled bool
}

// Finished reports whether the run recorded its summary.
func (r Run) Finished() bool { return !r.FinishedAt.IsZero() }

// Outcome is the terminal state of one job within a run.
type Outcome struct {
	RunID           string
	JobID           string
	SourcePath      string
	Status          string
	Reason          string
	Kind            string
	FromCache       bool
	DurationSeconds float64
	FinishedAt      time.Time
}

// BeginRun inserts a run row.
func (s *Store) BeginRun(ctx context.Context, id string, jobs int, started time.Time) error {
	if err := s.exec(ctx,
		`INSERT INTO runs (id, started_at, jobs) VALUES (?, ?, ?)`,
		id, formatTime(started), jobs,
	); err != nil {
		return fmt.Errorf("insert run: %w", err)
	}
	return nil
}

// AddOutcome records a terminal job state under its run.
func (s *Store) AddOutcome(ctx context.Context, o Outcome) error {
	if err := s.exec(ctx,
		`INSERT INTO outcomes (
            run_id, job_id, source_path, status, reason, kind,
            from_cache, duration_seconds, finished_at
        ) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		o.RunID, o.JobID, o.SourcePath, o.Status,
		nullableString(o.Reason), nullableString(o.Kind),
		boolInt(o.FromCache), o.DurationSeconds, formatTime(o.FinishedAt),
	); err != nil {
		return fmt.Errorf("insert outcome: %w", err)
	}
	return nil
}

// FinishRun stores the final counts of a run.
func (s *Store) FinishRun(ctx context.Context, r Run) error {
	if err := s.exec(ctx,
		`UPDATE runs SET finished_at = ?, completed = ?, failed = ?, cancelled = ?, was_cancelled = ?
         WHERE id = ?`,
		formatTime(r.FinishedAt), r.Completed, r.Failed, r.Cancelled, boolInt(r.WasCancelled), r.ID,
	); err != nil {
		return fmt.Errorf("update run: %w", err)
	}
	return nil
}

// Runs returns the most recent runs, newest first. A limit <= 0 returns all.
func (s *Store) Runs(ctx context.Context, limit int) ([]Run, error) {
	ctx = ensureContext(ctx)
	query := `SELECT id, started_at, finished_at, jobs, completed, failed, cancelled, was_cancelled
        FROM runs ORDER BY started_at DESC`
	args := []any{}
	if limit > 0 {
		query += " LIMIT ?"
		args = append(args, limit)
	}
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query runs: %w", err)
	}
	defer rows.Close()

	var runs []Run
	for rows.Next() {
		var (
			r            Run
			started      sql.NullString
			finished     sql.NullString
			wasCancelled int
		)
		if err := rows.Scan(&r.ID, &started, &finished, &r.Jobs, &r.Completed, &r.Failed, &r.Cancelled, &wasCancelled); err != nil {
			return nil, fmt.Errorf("scan run: %w", err)
		}
		r.StartedAt = parseTime(started)
		r.FinishedAt = parseTime(finished)
		r.WasCancelled = wasCancelled != 0
		runs = append(runs, r)
	}
	return runs, rows.Err()
}

// Outcomes lists the job outcomes of a run in completion order.
func (s *Store) Outcomes(ctx context.Context, runID string) ([]Outcome, error) {
	ctx = ensureContext(ctx)
	rows, err := s.db.QueryContext(ctx,
		`SELECT run_id, job_id, source_path, status, reason, kind, from_cache, duration_seconds, finished_at
         FROM outcomes WHERE run_id = ? ORDER BY id`, runID)
	if err != nil {
		return nil, fmt.Errorf("query outcomes: %w", err)
	}
	defer rows.Close()

	var outcomes []Outcome
	for rows.Next() {
		var (
			o         Outcome
			reason    sql.NullString
			kind      sql.NullString
			fromCache int
			finished  sql.NullString
		)
		if err := rows.Scan(&o.RunID, &o.JobID, &o.SourcePath, &o.Status, &reason, &kind, &fromCache, &o.DurationSeconds, &finished); err != nil {
			return nil, fmt.Errorf("scan outcome: %w", err)
		}
		o.Reason = reason.String
		o.Kind = kind.String
		o.FromCache = fromCache != 0
		o.FinishedAt = parseTime(finished)
		outcomes = append(outcomes, o)
	}
	return outcomes, rows.Err()
}

// Prune deletes runs that started before cutoff along with their outcomes.
func (s *Store) Prune(ctx context.Context, cutoff time.Time) (int64, error) {
	ctx = ensureContext(ctx)
	var res sql.Result
	err := retryOnBusy(ctx, func() error {
		var execErr error
		res, execErr = s.db.ExecContext(ctx, `DELETE FROM runs WHERE started_at < ?`, formatTime(cutoff))
		return execErr
	})
	if err != nil {
		return 0, fmt.Errorf("prune runs: %w", err)
	}
	return res.RowsAffected()
}
