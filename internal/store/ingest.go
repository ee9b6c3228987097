package store

import (
	"database/sql"
	"time"
)

// IngestRun records one acquisition or cache build step for auditing.
type IngestRun struct {
	ID            int64
	StartedAt     time.Time
	FinishedAt    sql.NullTime
	Source        string // URL, or "cache" for cache builds
	Target        string // local path, or partition name for cache builds
	HTTPStatus    sql.NullInt64
	BytesFetched  sql.NullInt64
	RecordsStored sql.NullInt64
	Success       bool
	ErrorMessage  sql.NullString
}

// StartIngestRun creates a new ingest run record and returns it.
func (s *Store) StartIngestRun(source, target string) (*IngestRun, error) {
	run := &IngestRun{
		StartedAt: time.Now().UTC(),
		Source:    source,
		Target:    target,
	}

	result, err := s.db.Exec(`
		INSERT INTO ingest_runs (started_at, source, target, success)
		VALUES (?, ?, ?, FALSE)
	`, run.StartedAt, run.Source, run.Target)
	if err != nil {
		return nil, err
	}

	run.ID, err = result.LastInsertId()
	if err != nil {
		return nil, err
	}

	return run, nil
}

// CompleteIngestRun updates the ingest run with results.
func (s *Store) CompleteIngestRun(run *IngestRun) error {
	if run == nil {
		return nil
	}

	run.FinishedAt = sql.NullTime{Time: time.Now().UTC(), Valid: true}

	_, err := s.db.Exec(`
		UPDATE ingest_runs SET
			finished_at = ?,
			http_status = ?,
			bytes_fetched = ?,
			records_stored = ?,
			success = ?,
			error_message = ?
		WHERE id = ?
	`, run.FinishedAt, run.HTTPStatus, run.BytesFetched, run.RecordsStored,
		run.Success, run.ErrorMessage, run.ID)
	return err
}

// GetRecentIngestRuns returns the latest ingest runs, newest first.
func (s *Store) GetRecentIngestRuns(limit int, failedOnly bool) ([]IngestRun, error) {
	rows, err := s.db.Query(`
		SELECT id, started_at, finished_at, source, target,
			   http_status, bytes_fetched, records_stored, success, error_message
		FROM ingest_runs
		WHERE (? = FALSE OR success = FALSE)
		ORDER BY started_at DESC, id DESC
		LIMIT ?
	`, failedOnly, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var results []IngestRun
	for rows.Next() {
		var r IngestRun
		if err := rows.Scan(&r.ID, &r.StartedAt, &r.FinishedAt, &r.Source, &r.Target,
			&r.HTTPStatus, &r.BytesFetched, &r.RecordsStored, &r.Success, &r.ErrorMessage); err != nil {
			return nil, err
		}
		results = append(results, r)
	}
	return results, rows.Err()
}
