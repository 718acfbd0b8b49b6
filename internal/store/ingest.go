package store

import (
	"context"
	"database/sql"
	"time"
)

// IngestRun records a single upstream fetch for auditing.
type IngestRun struct {
	ID            int64
	StartedAt     time.Time
	FinishedAt    sql.NullTime
	Source        string // "snotel", "routes"
	Target        string // station or route id
	RecordsStored sql.NullInt64
	Success       bool
	ErrorMessage  sql.NullString
}

// StartIngestRun creates a new ingest run record and returns it.
func (s *Store) StartIngestRun(ctx context.Context, source, target string) (*IngestRun, error) {
	run := &IngestRun{
		StartedAt: time.Now().UTC(),
		Source:    source,
		Target:    target,
	}

	result, err := s.db.ExecContext(ctx, `
		INSERT INTO ingest_runs (started_at, source, target, success)
		VALUES (?, ?, ?, FALSE)
	`, formatTime(run.StartedAt), run.Source, run.Target)
	if err != nil {
		return nil, unavailable("start ingest run", err)
	}

	run.ID, err = result.LastInsertId()
	if err != nil {
		return nil, unavailable("start ingest run", err)
	}
	return run, nil
}

// CompleteIngestRun updates the ingest run with results.
func (s *Store) CompleteIngestRun(ctx context.Context, run *IngestRun) error {
	if run == nil {
		return nil
	}

	run.FinishedAt = sql.NullTime{Time: time.Now().UTC(), Valid: true}

	_, err := s.db.ExecContext(ctx, `
		UPDATE ingest_runs SET
			finished_at = ?,
			records_stored = ?,
			success = ?,
			error_message = ?
		WHERE id = ?
	`, nullTimeArg(run.FinishedAt), run.RecordsStored, run.Success, run.ErrorMessage, run.ID)
	if err != nil {
		return unavailable("complete ingest run", err)
	}
	return nil
}

// RecentIngestErrors returns recent failed ingest runs, newest first.
func (s *Store) RecentIngestErrors(ctx context.Context, limit int) ([]IngestRun, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, started_at, finished_at, source, target, records_stored, success, error_message
		FROM ingest_runs
		WHERE success = FALSE AND finished_at IS NOT NULL
		ORDER BY started_at DESC
		LIMIT ?
	`, limit)
	if err != nil {
		return nil, unavailable("recent ingest errors", err)
	}
	defer rows.Close()

	var results []IngestRun
	for rows.Next() {
		var r IngestRun
		if err := rows.Scan(&r.ID, scanTime(&r.StartedAt), scanNullTime(&r.FinishedAt), &r.Source, &r.Target,
			&r.RecordsStored, &r.Success, &r.ErrorMessage); err != nil {
			return nil, unavailable("scan ingest run", err)
		}
		results = append(results, r)
	}
	if err := rows.Err(); err != nil {
		return nil, unavailable("recent ingest errors", err)
	}
	return results, nil
}
