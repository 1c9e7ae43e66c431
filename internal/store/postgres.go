package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rotisserie/eris"

	"github.com/sells-group/techpack-cli/internal/db"
	"github.com/sells-group/techpack-cli/internal/model"
)

// PostgresStore implements Store using pgxpool.
type PostgresStore struct {
	pool    db.Pool
	closeFn func()
}

// PoolConfig holds optional connection pool tuning parameters.
type PoolConfig struct {
	MaxConns int32 `yaml:"max_conns" mapstructure:"max_conns"`
	MinConns int32 `yaml:"min_conns" mapstructure:"min_conns"`
}

// NewPostgres creates a PostgresStore with a connection pool.
func NewPostgres(ctx context.Context, connString string, poolCfg *PoolConfig) (*PostgresStore, error) {
	pgxCfg, err := pgxpool.ParseConfig(connString)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: parse config")
	}

	maxConns := int32(10)
	minConns := int32(2)
	if poolCfg != nil {
		if poolCfg.MaxConns > 0 {
			maxConns = poolCfg.MaxConns
		}
		if poolCfg.MinConns > 0 {
			minConns = poolCfg.MinConns
		}
	}
	pgxCfg.MaxConns = maxConns
	pgxCfg.MinConns = minConns
	pgxCfg.MaxConnLifetime = 30 * time.Minute
	pgxCfg.MaxConnIdleTime = 5 * time.Minute

	pool, err := pgxpool.NewWithConfig(ctx, pgxCfg)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: create pool")
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, eris.Wrap(err, "postgres: ping")
	}
	return &PostgresStore{pool: pool, closeFn: pool.Close}, nil
}

const postgresMigration = `
CREATE TABLE IF NOT EXISTS jobs (
	id               TEXT PRIMARY KEY DEFAULT gen_random_uuid()::text,
	status           TEXT NOT NULL DEFAULT 'queued',
	input_file       TEXT NOT NULL,
	style_count      INTEGER NOT NULL DEFAULT 0,
	progress_percent INTEGER NOT NULL DEFAULT 0,
	current_style    TEXT NOT NULL DEFAULT '',
	successful_count INTEGER NOT NULL DEFAULT 0,
	failed_count     INTEGER NOT NULL DEFAULT 0,
	error_message    TEXT NOT NULL DEFAULT '',
	extracted_data   JSONB,
	created_at       TIMESTAMPTZ NOT NULL DEFAULT now(),
	updated_at       TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE TABLE IF NOT EXISTS job_items (
	job_id     TEXT NOT NULL REFERENCES jobs(id) ON DELETE CASCADE,
	item_key   TEXT NOT NULL,
	downloaded BOOLEAN NOT NULL DEFAULT false,
	extracted  BOOLEAN NOT NULL DEFAULT false,
	extraction JSONB,
	updated_at TIMESTAMPTZ NOT NULL DEFAULT now(),
	PRIMARY KEY (job_id, item_key)
);

CREATE INDEX IF NOT EXISTS idx_jobs_status ON jobs(status);
CREATE INDEX IF NOT EXISTS idx_jobs_status_updated ON jobs(status, updated_at);
`

func (s *PostgresStore) Migrate(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, postgresMigration)
	return eris.Wrap(err, "postgres: migrate")
}

func (s *PostgresStore) Close() error {
	if s.closeFn != nil {
		s.closeFn()
	}
	return nil
}

func (s *PostgresStore) CreateJob(ctx context.Context, inputFile string) (*model.Job, error) {
	id := uuid.New().String()
	now := time.Now().UTC()

	_, err := s.pool.Exec(ctx,
		`INSERT INTO jobs (id, status, input_file, created_at, updated_at) VALUES ($1, $2, $3, $4, $5)`,
		id, string(model.JobStatusQueued), inputFile, now, now,
	)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: insert job")
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

const postgresJobColumns = `id, status, input_file, style_count, progress_percent, current_style, successful_count, failed_count, error_message, extracted_data, created_at, updated_at`

func (s *PostgresStore) GetJob(ctx context.Context, jobID string) (*model.Job, error) {
	j, err := scanPgJob(s.pool.QueryRow(ctx,
		`SELECT `+postgresJobColumns+` FROM jobs WHERE id = $1`,
		jobID,
	))
	if err != nil {
		return nil, eris.Wrapf(err, "postgres: get job %s", jobID)
	}

	rows, err := s.pool.Query(ctx,
		`SELECT item_key, downloaded, extracted, extraction FROM job_items WHERE job_id = $1 ORDER BY item_key`,
		jobID,
	)
	if err != nil {
		return nil, eris.Wrapf(err, "postgres: get job items %s", jobID)
	}
	defer rows.Close()

	var items []itemState
	for rows.Next() {
		var it itemState
		if err := rows.Scan(&it.key, &it.downloaded, &it.extracted, &it.extraction); err != nil {
			return nil, eris.Wrap(err, "postgres: scan job item")
		}
		items = append(items, it)
	}
	if err := rows.Err(); err != nil {
		return nil, eris.Wrap(err, "postgres: iterate job items")
	}

	if err := applyItems(j, items); err != nil {
		return nil, err
	}
	return j, nil
}

func (s *PostgresStore) ListJobs(ctx context.Context, filter JobFilter) ([]model.Job, error) {
	query := `SELECT ` + postgresJobColumns + ` FROM jobs WHERE true`
	args := []any{}
	argIdx := 1

	if filter.Status != "" {
		query += fmt.Sprintf(` AND status = $%d`, argIdx)
		args = append(args, string(filter.Status))
		argIdx++
	}
	if !filter.UpdatedBefore.IsZero() {
		query += fmt.Sprintf(` AND updated_at < $%d`, argIdx)
		args = append(args, filter.UpdatedBefore.UTC())
		argIdx++
	}
	if !filter.UpdatedAfter.IsZero() {
		query += fmt.Sprintf(` AND updated_at >= $%d`, argIdx)
		args = append(args, filter.UpdatedAfter.UTC())
		argIdx++
	}
	query += ` ORDER BY updated_at DESC`

	limit := filter.Limit
	if limit <= 0 {
		limit = 100
	}
	query += fmt.Sprintf(` LIMIT $%d`, argIdx)
	args = append(args, limit)

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: list jobs")
	}
	defer rows.Close()

	var jobs []model.Job
	for rows.Next() {
		j, err := scanPgJob(rows)
		if err != nil {
			return nil, err
		}
		jobs = append(jobs, *j)
	}
	return jobs, eris.Wrap(rows.Err(), "postgres: list jobs iterate")
}

func (s *PostgresStore) UpdateJob(ctx context.Context, jobID string, patch JobPatch) error {
	sets, args, err := buildPatch(patch, time.Now().UTC(), func(n int) string { return fmt.Sprintf("$%d", n) })
	if err != nil {
		return err
	}
	args = append(args, jobID)

	tag, err := s.pool.Exec(ctx,
		fmt.Sprintf(`UPDATE jobs SET %s WHERE id = $%d`, sets, len(args)),
		args...,
	)
	if err != nil {
		return eris.Wrapf(err, "postgres: update job %s", jobID)
	}
	if tag.RowsAffected() == 0 {
		return eris.Wrapf(ErrJobNotFound, "job %s", jobID)
	}
	return nil
}

func (s *PostgresStore) Touch(ctx context.Context, jobID string) error {
	tag, err := s.pool.Exec(ctx,
		`UPDATE jobs SET updated_at = $1 WHERE id = $2`,
		time.Now().UTC(), jobID,
	)
	if err != nil {
		return eris.Wrapf(err, "postgres: touch job %s", jobID)
	}
	if tag.RowsAffected() == 0 {
		return eris.Wrapf(ErrJobNotFound, "job %s", jobID)
	}
	return nil
}

func (s *PostgresStore) AddCompletedDownload(ctx context.Context, jobID, key string) error {
	_, err := s.pool.Exec(ctx,
		`INSERT INTO job_items (job_id, item_key, downloaded, updated_at) VALUES ($1, $2, true, $3)
		 ON CONFLICT (job_id, item_key) DO UPDATE SET downloaded = true, updated_at = EXCLUDED.updated_at`,
		jobID, key, time.Now().UTC(),
	)
	return eris.Wrapf(err, "postgres: add completed download %s/%s", jobID, key)
}

func (s *PostgresStore) RemoveCompletedDownloads(ctx context.Context, jobID string, keys []string) error {
	if len(keys) == 0 {
		return nil
	}
	_, err := s.pool.Exec(ctx,
		`UPDATE job_items SET downloaded = false, updated_at = $1
		 WHERE job_id = $2 AND item_key = ANY($3) AND NOT extracted`,
		time.Now().UTC(), jobID, keys,
	)
	return eris.Wrapf(err, "postgres: remove completed downloads %s", jobID)
}

func (s *PostgresStore) RecordExtraction(ctx context.Context, jobID, key string, result model.ExtractionResult) error {
	data, err := json.Marshal(result)
	if err != nil {
		return eris.Wrap(err, "postgres: marshal extraction")
	}

	tag, err := s.pool.Exec(ctx,
		`UPDATE job_items SET extracted = true, extraction = $1, updated_at = $2
		 WHERE job_id = $3 AND item_key = $4 AND downloaded`,
		data, time.Now().UTC(), jobID, key,
	)
	if err != nil {
		return eris.Wrapf(err, "postgres: record extraction %s/%s", jobID, key)
	}
	if tag.RowsAffected() == 0 {
		return eris.Wrapf(ErrNotDownloaded, "postgres: record extraction %s/%s", jobID, key)
	}
	return nil
}

func scanPgJob(row pgx.Row) (*model.Job, error) {
	var j model.Job
	var status string
	var extracted []byte

	err := row.Scan(&j.ID, &status, &j.InputFile, &j.StyleCount, &j.ProgressPercent, &j.CurrentStyle,
		&j.SuccessfulCount, &j.FailedCount, &j.ErrorMessage, &extracted, &j.CreatedAt, &j.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrJobNotFound
	}
	if err != nil {
		return nil, eris.Wrap(err, "postgres: scan job")
	}
	j.Status = model.JobStatus(status)

	if len(extracted) > 0 {
		j.ExtractedData = &model.JobOutput{}
		if err := json.Unmarshal(extracted, j.ExtractedData); err != nil {
			return nil, eris.Wrap(err, "postgres: unmarshal extracted data")
		}
	}
	return &j, nil
}
