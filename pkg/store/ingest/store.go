package ingest

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/de-tools/variance-atlas/pkg/models/store"
	"github.com/de-tools/variance-atlas/pkg/store/warehouse"
	"github.com/rs/zerolog"
)

// timeLayout is fixed width so that text ordering matches time ordering on
// every backend.
const timeLayout = "2006-01-02T15:04:05.000000Z"

const createTable = `CREATE TABLE IF NOT EXISTS ingest_runs (
	id VARCHAR(36) NOT NULL,
	table_name VARCHAR(255) NOT NULL,
	source VARCHAR(1024) NOT NULL,
	mode VARCHAR(16) NOT NULL,
	row_count BIGINT NOT NULL,
	status VARCHAR(16) NOT NULL,
	error VARCHAR(4096),
	started_at VARCHAR(32) NOT NULL,
	finished_at VARCHAR(32)
)`

// Store records ingestion runs in the warehouse itself.
type Store interface {
	Init(ctx context.Context) error
	Create(ctx context.Context, run *store.IngestRun) error
	Finish(ctx context.Context, id string, rows int64, status store.IngestStatus, runErr *string) error
	// ListRuns returns at most limit runs, newest first. A non-positive
	// limit returns every run.
	ListRuns(ctx context.Context, limit int) ([]store.IngestRun, error)
}

type runStore struct {
	db      *sql.DB
	dialect warehouse.Dialect
}

func NewStore(db *sql.DB, dialect warehouse.Dialect) (Store, error) {
	if db == nil {
		return nil, fmt.Errorf("database connection is nil")
	}
	return &runStore{db: db, dialect: dialect}, nil
}

func (s *runStore) Init(ctx context.Context) error {
	if _, err := warehouse.ExecutorFor(ctx, s.db).ExecContext(ctx, createTable); err != nil {
		return fmt.Errorf("create ingest_runs: %w", err)
	}
	return nil
}

func (s *runStore) Create(ctx context.Context, run *store.IngestRun) error {
	query := fmt.Sprintf(`INSERT INTO ingest_runs
		(id, table_name, source, mode, row_count, status, error, started_at, finished_at)
		VALUES (%s)`, s.dialect.Placeholders(1, 9))

	_, err := warehouse.ExecutorFor(ctx, s.db).ExecContext(ctx, query,
		run.ID,
		run.Table,
		run.Source,
		run.Mode,
		run.Rows,
		string(run.Status),
		nullString(run.Error),
		run.StartedAt.UTC().Format(timeLayout),
		nullTime(run.FinishedAt),
	)
	if err != nil {
		return fmt.Errorf("insert ingest run: %w", err)
	}
	return nil
}

func (s *runStore) Finish(ctx context.Context, id string, rows int64, status store.IngestStatus, runErr *string) error {
	d := s.dialect
	query := fmt.Sprintf(`UPDATE ingest_runs
		SET row_count = %s, status = %s, error = %s, finished_at = %s
		WHERE id = %s`,
		d.Placeholder(1), d.Placeholder(2), d.Placeholder(3), d.Placeholder(4), d.Placeholder(5))

	now := time.Now()
	res, err := warehouse.ExecutorFor(ctx, s.db).ExecContext(ctx, query,
		rows, string(status), nullString(runErr), nullTime(&now), id)
	if err != nil {
		return fmt.Errorf("update ingest run: %w", err)
	}

	n, err := res.RowsAffected()
	if err != nil {
		zerolog.Ctx(ctx).Warn().Err(err).Msg("rows affected unavailable")
		return nil
	}
	if n == 0 {
		return fmt.Errorf("ingest run %s not found", id)
	}
	return nil
}

func (s *runStore) ListRuns(ctx context.Context, limit int) ([]store.IngestRun, error) {
	logger := zerolog.Ctx(ctx)

	query := `SELECT id, table_name, source, mode, row_count, status, error, started_at, finished_at
		FROM ingest_runs
		ORDER BY started_at DESC, id`
	var args []any
	if limit > 0 {
		query += " LIMIT " + s.dialect.Placeholder(1)
		args = append(args, limit)
	}

	rows, err := warehouse.ExecutorFor(ctx, s.db).QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query ingest runs: %w", err)
	}
	defer func() {
		if err := rows.Close(); err != nil {
			logger.Warn().Err(err).Msg("failed to close rows")
		}
	}()

	var runs []store.IngestRun
	for rows.Next() {
		var (
			run        store.IngestRun
			status     string
			runErr     sql.NullString
			startedAt  string
			finishedAt sql.NullString
		)
		if err := rows.Scan(&run.ID, &run.Table, &run.Source, &run.Mode, &run.Rows,
			&status, &runErr, &startedAt, &finishedAt); err != nil {
			return nil, fmt.Errorf("scan ingest run: %w", err)
		}

		run.Status = store.IngestStatus(status)
		if runErr.Valid {
			run.Error = &runErr.String
		}
		if run.StartedAt, err = time.Parse(timeLayout, startedAt); err != nil {
			return nil, fmt.Errorf("parse started_at: %w", err)
		}
		if finishedAt.Valid {
			t, err := time.Parse(timeLayout, finishedAt.String)
			if err != nil {
				return nil, fmt.Errorf("parse finished_at: %w", err)
			}
			run.FinishedAt = &t
		}
		runs = append(runs, run)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate ingest runs: %w", err)
	}
	return runs, nil
}

func nullString(s *string) sql.NullString {
	if s == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: *s, Valid: true}
}

func nullTime(t *time.Time) sql.NullString {
	if t == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: t.UTC().Format(timeLayout), Valid: true}
}
