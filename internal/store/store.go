// Package store persists the history of task runs in PostgreSQL.
package store

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"go.uber.org/zap"

	"github.com/xkilldash9x/autonote/api/schemas"
)

// DefaultHistoryLimit is used when a non-positive limit is requested.
const DefaultHistoryLimit = 10

// maxHistoryLimit caps a single history read.
const maxHistoryLimit = 100

// DBPool is an interface that abstracts the pgxpool.Pool to allow for mocking in tests.
type DBPool interface {
	Ping(ctx context.Context) error
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
}

// Store records task runs.
type Store struct {
	pool DBPool
	log  *zap.Logger
}

// New creates a new store instance and verifies the connection.
func New(ctx context.Context, pool DBPool, logger *zap.Logger) (*Store, error) {
	if err := pool.Ping(ctx); err != nil {
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	return &Store{
		pool: pool,
		log:  logger.Named("store"),
	}, nil
}

const sqlCreateTaskRuns = `
    CREATE TABLE IF NOT EXISTS task_runs (
        id          TEXT PRIMARY KEY,
        task        TEXT NOT NULL,
        status      TEXT NOT NULL,
        title       TEXT NOT NULL DEFAULT '',
        url         TEXT NOT NULL DEFAULT '',
        error       TEXT NOT NULL DEFAULT '',
        started_at  TIMESTAMPTZ NOT NULL,
        finished_at TIMESTAMPTZ NOT NULL
    );
`

const sqlCreateTaskRunsIndex = `
    CREATE INDEX IF NOT EXISTS task_runs_started_at_idx ON task_runs (started_at DESC);
`

// EnsureSchema creates the task_runs table when it does not exist.
func (s *Store) EnsureSchema(ctx context.Context) error {
	for _, stmt := range []string{sqlCreateTaskRuns, sqlCreateTaskRunsIndex} {
		if _, err := s.pool.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("failed to create schema: %w", err)
		}
	}
	return nil
}

const sqlInsertRun = `
    INSERT INTO task_runs (id, task, status, title, url, error, started_at, finished_at)
    VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
    ON CONFLICT (id) DO UPDATE SET
        status = EXCLUDED.status,
        title = EXCLUDED.title,
        url = EXCLUDED.url,
        error = EXCLUDED.error,
        finished_at = EXCLUDED.finished_at;
`

// RecordRun inserts or updates one run. Timestamps are stored in UTC.
func (s *Store) RecordRun(ctx context.Context, run schemas.TaskRun) error {
	_, err := s.pool.Exec(ctx, sqlInsertRun,
		run.ID, string(run.Task), string(run.Status),
		run.Title, run.URL, run.Error,
		run.StartedAt.UTC(), run.FinishedAt.UTC(),
	)
	if err != nil {
		return fmt.Errorf("failed to record task run %s: %w", run.ID, err)
	}
	return nil
}

const sqlRecentRuns = `
    SELECT id, task, status, title, url, error, started_at, finished_at
    FROM task_runs
    ORDER BY started_at DESC
    LIMIT $1;
`

// RecentRuns returns up to limit runs, newest first. The result is never nil.
func (s *Store) RecentRuns(ctx context.Context, limit int) ([]schemas.TaskRun, error) {
	if limit <= 0 {
		limit = DefaultHistoryLimit
	}
	if limit > maxHistoryLimit {
		limit = maxHistoryLimit
	}

	rows, err := s.pool.Query(ctx, sqlRecentRuns, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query task runs: %w", err)
	}
	defer rows.Close()

	runs := []schemas.TaskRun{}
	for rows.Next() {
		var r schemas.TaskRun
		var task, status string
		if err := rows.Scan(&r.ID, &task, &status, &r.Title, &r.URL, &r.Error, &r.StartedAt, &r.FinishedAt); err != nil {
			return nil, fmt.Errorf("failed to scan task run row: %w", err)
		}
		r.Task = schemas.TaskType(task)
		r.Status = schemas.TaskStatus(status)
		runs = append(runs, r)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error during row iteration: %w", err)
	}
	return runs, nil
}
