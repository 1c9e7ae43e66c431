package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"
	_ "modernc.org/sqlite"

	"github.com/sells-group/techpack-cli/internal/model"
)

// SQLiteStore implements Store using modernc.org/sqlite.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLite opens a SQLite database at the given path and configures WAL mode.
func NewSQLite(dsn string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: open")
	}
	for _, pragma := range []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout=5000",
		"PRAGMA synchronous=NORMAL",
	} {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, eris.Wrapf(err, "sqlite: exec %s", pragma)
		}
	}
	return &SQLiteStore{db: db}, nil
}

const sqliteMigration = `
CREATE TABLE IF NOT EXISTS jobs (
	id               TEXT PRIMARY KEY,
	status           TEXT NOT NULL DEFAULT 'queued',
	input_file       TEXT NOT NULL,
	style_count      INTEGER NOT NULL DEFAULT 0,
	progress_percent INTEGER NOT NULL DEFAULT 0,
	current_style    TEXT NOT NULL DEFAULT '',
	successful_count INTEGER NOT NULL DEFAULT 0,
	failed_count     INTEGER NOT NULL DEFAULT 0,
	error_message    TEXT NOT NULL DEFAULT '',
	extracted_data   TEXT,
	created_at       DATETIME NOT NULL DEFAULT (datetime('now')),
	updated_at       DATETIME NOT NULL DEFAULT (datetime('now'))
);

CREATE TABLE IF NOT EXISTS job_items (
	job_id     TEXT NOT NULL REFERENCES jobs(id),
	item_key   TEXT NOT NULL,
	downloaded INTEGER NOT NULL DEFAULT 0,
	extracted  INTEGER NOT NULL DEFAULT 0,
	extraction TEXT,
	updated_at DATETIME NOT NULL DEFAULT (datetime('now')),
	PRIMARY KEY (job_id, item_key)
);

CREATE INDEX IF NOT EXISTS idx_jobs_status ON jobs(status);
CREATE INDEX IF NOT EXISTS idx_jobs_status_updated ON jobs(status, updated_at);
`

func (s *SQLiteStore) Migrate(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, sqliteMigration)
	return eris.Wrap(err, "sqlite: migrate")
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

func (s *SQLiteStore) CreateJob(ctx context.Context, inputFile string) (*model.Job, error) {
	id := uuid.New().String()
	now := time.Now().UTC()

	_, err := s.db.ExecContext(ctx,
		`INSERT INTO jobs (id, status, input_file, created_at, updated_at) VALUES (?, ?, ?, ?, ?)`,
		id, string(model.JobStatusQueued), inputFile, now, now,
	)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: insert job")
	}

	return &model.Job{
		ID:                   id,
		Status:               model.JobStatusQueued,
		InputFile:            inputFile,
		CompletedDownloads:   []string{},
		CompletedExtractions: []string{},
		PartialExtractions:   map[string]model.ExtractionResult{},
		CreatedAt:            now,
		UpdatedAt:            now,
	}, nil
}

const sqliteJobColumns = `id, status, input_file, style_count, progress_percent, current_style,
	successful_count, failed_count, error_message, extracted_data, created_at, updated_at`

func (s *SQLiteStore) GetJob(ctx context.Context, jobID string) (*model.Job, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+sqliteJobColumns+` FROM jobs WHERE id = ?`,
		jobID,
	)
	j, err := scanJob(row)
	if err != nil {
		return nil, eris.Wrapf(err, "sqlite: get job %s", jobID)
	}

	rows, err := s.db.QueryContext(ctx,
		`SELECT item_key, downloaded, extracted, extraction FROM job_items WHERE job_id = ? ORDER BY item_key`,
		jobID,
	)
	if err != nil {
		return nil, eris.Wrapf(err, "sqlite: get job items %s", jobID)
	}
	defer rows.Close()

	var items []itemState
	for rows.Next() {
		var it itemState
		var extraction sql.NullString
		if err := rows.Scan(&it.key, &it.downloaded, &it.extracted, &extraction); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan job item")
		}
		if extraction.Valid {
			it.extraction = []byte(extraction.String)
		}
		items = append(items, it)
	}
	if err := rows.Err(); err != nil {
		return nil, eris.Wrap(err, "sqlite: iterate job items")
	}

	if err := applyItems(j, items); err != nil {
		return nil, err
	}
	return j, nil
}

func (s *SQLiteStore) ListJobs(ctx context.Context, filter JobFilter) ([]model.Job, error) {
	query := `SELECT ` + sqliteJobColumns + ` FROM jobs WHERE 1=1`
	var args []any

	if filter.Status != "" {
		query += ` AND status = ?`
		args = append(args, string(filter.Status))
	}
	if !filter.UpdatedBefore.IsZero() {
		query += ` AND updated_at < ?`
		args = append(args, filter.UpdatedBefore.UTC())
	}
	if !filter.UpdatedAfter.IsZero() {
		query += ` AND updated_at >= ?`
		args = append(args, filter.UpdatedAfter.UTC())
	}
	query += ` ORDER BY updated_at DESC`

	limit := filter.Limit
	if limit <= 0 {
		limit = 100
	}
	query += ` LIMIT ?`
	args = append(args, limit)

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: list jobs")
	}
	defer rows.Close()

	var jobs []model.Job
	for rows.Next() {
		j, err := scanJob(rows)
		if err != nil {
			return nil, err
		}
		jobs = append(jobs, *j)
	}
	return jobs, eris.Wrap(rows.Err(), "sqlite: list jobs iterate")
}

func (s *SQLiteStore) UpdateJob(ctx context.Context, jobID string, patch JobPatch) error {
	sets, args, err := buildPatch(patch, time.Now().UTC(), func(int) string { return "?" })
	if err != nil {
		return err
	}
	args = append(args, jobID)

	res, err := s.db.ExecContext(ctx, `UPDATE jobs SET `+sets+` WHERE id = ?`, args...)
	if err != nil {
		return eris.Wrapf(err, "sqlite: update job %s", jobID)
	}
	return checkRowsAffected(res, jobID)
}

func (s *SQLiteStore) Touch(ctx context.Context, jobID string) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE jobs SET updated_at = ? WHERE id = ?`,
		time.Now().UTC(), jobID,
	)
	if err != nil {
		return eris.Wrapf(err, "sqlite: touch job %s", jobID)
	}
	return checkRowsAffected(res, jobID)
}

func (s *SQLiteStore) AddCompletedDownload(ctx context.Context, jobID, key string) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO job_items (job_id, item_key, downloaded, updated_at) VALUES (?, ?, 1, ?)
		 ON CONFLICT (job_id, item_key) DO UPDATE SET downloaded = 1, updated_at = excluded.updated_at`,
		jobID, key, time.Now().UTC(),
	)
	return eris.Wrapf(err, "sqlite: add completed download %s/%s", jobID, key)
}

func (s *SQLiteStore) RemoveCompletedDownloads(ctx context.Context, jobID string, keys []string) error {
	if len(keys) == 0 {
		return nil
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return eris.Wrap(err, "sqlite: begin tx")
	}
	defer tx.Rollback() //nolint:errcheck

	now := time.Now().UTC()
	for _, key := range keys {
		if _, err := tx.ExecContext(ctx,
			`UPDATE job_items SET downloaded = 0, updated_at = ? WHERE job_id = ? AND item_key = ? AND extracted = 0`,
			now, jobID, key,
		); err != nil {
			return eris.Wrapf(err, "sqlite: remove completed download %s/%s", jobID, key)
		}
	}
	return eris.Wrap(tx.Commit(), "sqlite: commit remove downloads")
}

func (s *SQLiteStore) RecordExtraction(ctx context.Context, jobID, key string, result model.ExtractionResult) error {
	data, err := json.Marshal(result)
	if err != nil {
		return eris.Wrap(err, "sqlite: marshal extraction")
	}

	// The extraction bundle and the completed flag land in one statement.
	res, err := s.db.ExecContext(ctx,
		`UPDATE job_items SET extracted = 1, extraction = ?, updated_at = ?
		 WHERE job_id = ? AND item_key = ? AND downloaded = 1`,
		string(data), time.Now().UTC(), jobID, key,
	)
	if err != nil {
		return eris.Wrapf(err, "sqlite: record extraction %s/%s", jobID, key)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return eris.Wrap(err, "sqlite: rows affected")
	}
	if n == 0 {
		return eris.Wrapf(ErrNotDownloaded, "sqlite: record extraction %s/%s", jobID, key)
	}
	return nil
}

// helpers

func checkRowsAffected(res sql.Result, jobID string) error {
	n, err := res.RowsAffected()
	if err != nil {
		return eris.Wrap(err, "rows affected")
	}
	if n == 0 {
		return eris.Wrapf(ErrJobNotFound, "job %s", jobID)
	}
	return nil
}

type scannable interface {
	Scan(dest ...any) error
}

func scanJob(row scannable) (*model.Job, error) {
	var j model.Job
	var extracted sql.NullString

	err := row.Scan(&j.ID, &j.Status, &j.InputFile, &j.StyleCount, &j.ProgressPercent, &j.CurrentStyle,
		&j.SuccessfulCount, &j.FailedCount, &j.ErrorMessage, &extracted, &j.CreatedAt, &j.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrJobNotFound
	}
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: scan job")
	}

	if extracted.Valid && extracted.String != "" {
		j.ExtractedData = &model.JobOutput{}
		if err := json.Unmarshal([]byte(extracted.String), j.ExtractedData); err != nil {
			return nil, eris.Wrap(err, "sqlite: unmarshal extracted data")
		}
	}
	return &j, nil
}
