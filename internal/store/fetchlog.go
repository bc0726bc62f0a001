package store

import (
	"database/sql"
	"time"

	"github.com/ujung/wetter/internal/dwd"
)

// FetchRun is one audited archive retrieval.
type FetchRun struct {
	ID                int64
	SessionID         sql.NullString
	StationID         string
	Transport         string // "http", "ftp"
	Archive           string
	StartedAt         time.Time
	FinishedAt        sql.NullTime
	ResponseSizeBytes sql.NullInt64
	RowsParsed        sql.NullInt64
	ProductFound      bool
	Success           bool
	ErrorMessage      sql.NullString
}

// RecordFetch stores a completed retrieval. It satisfies dwd.FetchRecorder.
func (s *Store) RecordFetch(rec dwd.FetchRecord) error {
	run := FetchRun{
		StationID:    rec.StationID,
		Transport:    rec.Transport,
		Archive:      rec.Archive,
		StartedAt:    rec.StartedAt.UTC(),
		ProductFound: rec.Found,
		Success:      rec.Err == nil,
	}
	if rec.SessionID != "" {
		run.SessionID = sql.NullString{String: rec.SessionID, Valid: true}
	}
	if !rec.FinishedAt.IsZero() {
		run.FinishedAt = sql.NullTime{Time: rec.FinishedAt.UTC(), Valid: true}
	}
	if rec.Bytes > 0 {
		run.ResponseSizeBytes = sql.NullInt64{Int64: int64(rec.Bytes), Valid: true}
	}
	if rec.Found {
		run.RowsParsed = sql.NullInt64{Int64: int64(rec.Rows), Valid: true}
	}
	if rec.Err != nil {
		run.ErrorMessage = sql.NullString{String: rec.Err.Error(), Valid: true}
	}

	_, err := s.db.Exec(`
		INSERT INTO fetch_runs (session_id, station_id, transport, archive, started_at, finished_at,
			response_size_bytes, rows_parsed, product_found, success, error_message)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, run.SessionID, run.StationID, run.Transport, run.Archive, run.StartedAt, run.FinishedAt,
		run.ResponseSizeBytes, run.RowsParsed, run.ProductFound, run.Success, run.ErrorMessage)
	return err
}

// FetchHealthSummary aggregates retrievals per day and transport.
type FetchHealthSummary struct {
	Date        string
	Transport   string
	TotalRuns   int
	SuccessRuns int
	FailedRuns  int
	TotalBytes  int64
	TotalRows   int64
}

// GetFetchHealth returns fetch health summaries for the last N days.
func (s *Store) GetFetchHealth(days int) ([]FetchHealthSummary, error) {
	rows, err := s.db.Query(`
		SELECT
			DATE(SUBSTR(started_at, 1, 19)) as date,
			transport,
			COUNT(*) as total_runs,
			SUM(CASE WHEN success THEN 1 ELSE 0 END) as success_runs,
			SUM(CASE WHEN NOT success THEN 1 ELSE 0 END) as failed_runs,
			COALESCE(SUM(response_size_bytes), 0) as total_bytes,
			COALESCE(SUM(rows_parsed), 0) as total_rows
		FROM fetch_runs
		WHERE SUBSTR(started_at, 1, 19) > datetime('now', '-' || ? || ' days')
		GROUP BY date, transport
		ORDER BY date DESC, transport
	`, days)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var results []FetchHealthSummary
	for rows.Next() {
		var h FetchHealthSummary
		if err := rows.Scan(&h.Date, &h.Transport, &h.TotalRuns, &h.SuccessRuns,
			&h.FailedRuns, &h.TotalBytes, &h.TotalRows); err != nil {
			return nil, err
		}
		results = append(results, h)
	}
	return results, rows.Err()
}

// GetRecentFetchErrors returns the most recent failed retrievals.
func (s *Store) GetRecentFetchErrors(limit int) ([]FetchRun, error) {
	rows, err := s.db.Query(`
		SELECT id, session_id, station_id, transport, archive, started_at, finished_at,
		       response_size_bytes, rows_parsed, product_found, success, error_message
		FROM fetch_runs
		WHERE success = FALSE
		ORDER BY started_at DESC, id DESC
		LIMIT ?
	`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var results []FetchRun
	for rows.Next() {
		var r FetchRun
		if err := rows.Scan(&r.ID, &r.SessionID, &r.StationID, &r.Transport, &r.Archive,
			&r.StartedAt, &r.FinishedAt, &r.ResponseSizeBytes, &r.RowsParsed,
			&r.ProductFound, &r.Success, &r.ErrorMessage); err != nil {
			return nil, err
		}
		results = append(results, r)
	}
	return results, rows.Err()
}

// GetSessionFetches returns the retrievals made on behalf of one session.
func (s *Store) GetSessionFetches(sessionID string) ([]FetchRun, error) {
	rows, err := s.db.Query(`
		SELECT id, session_id, station_id, transport, archive, started_at, finished_at,
		       response_size_bytes, rows_parsed, product_found, success, error_message
		FROM fetch_runs
		WHERE session_id = ?
		ORDER BY id
	`, sessionID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var results []FetchRun
	for rows.Next() {
		var r FetchRun
		if err := rows.Scan(&r.ID, &r.SessionID, &r.StationID, &r.Transport, &r.Archive,
			&r.StartedAt, &r.FinishedAt, &r.ResponseSizeBytes, &r.RowsParsed,
			&r.ProductFound, &r.Success, &r.ErrorMessage); err != nil {
			return nil, err
		}
		results = append(results, r)
	}
	return results, rows.Err()
}

// CleanupOldFetchRuns deletes fetch runs older than retentionDays and
// returns the number removed.
func (s *Store) CleanupOldFetchRuns(retentionDays int) (int64, error) {
	result, err := s.db.Exec(`
		DELETE FROM fetch_runs
		WHERE started_at < DATE('now', '-' || ? || ' days')
	`, retentionDays)
	if err != nil {
		return 0, err
	}
	return result.RowsAffected()
}
