package warehouse

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/de-tools/variance-atlas/pkg/models/domain"
	"github.com/rs/zerolog"
)

const defaultMaxRows = 10000

// DataSource is the read side of a SQL warehouse.
type DataSource interface {
	// Run executes query with bound args and returns at most the configured
	// number of rows.
	Run(ctx context.Context, query string, args ...any) (*domain.ResultSet, error)
	// DistinctValues returns the distinct non-null values of column in table.
	DistinctValues(ctx context.Context, table, column string) ([]string, error)
	// Columns lists the column names of table.
	Columns(ctx context.Context, table string) ([]string, error)
	Dialect() Dialect
}

type sqlSource struct {
	db      *sql.DB
	dialect Dialect
	maxRows int
}

type Option func(*sqlSource)

func WithMaxRows(n int) Option {
	return func(s *sqlSource) {
		if n > 0 {
			s.maxRows = n
		}
	}
}

func NewDataSource(db *sql.DB, dialect Dialect, opts ...Option) (DataSource, error) {
	if db == nil {
		return nil, fmt.Errorf("database connection is nil")
	}

	s := &sqlSource{
		db:      db,
		dialect: dialect,
		maxRows: defaultMaxRows,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

func (s *sqlSource) Dialect() Dialect {
	return s.dialect
}

func (s *sqlSource) Run(ctx context.Context, query string, args ...any) (*domain.ResultSet, error) {
	logger := zerolog.Ctx(ctx)

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, &domain.QueryExecutionError{Query: query, Err: err}
	}
	defer func() {
		if err := rows.Close(); err != nil {
			logger.Warn().Err(err).Msg("failed to close rows")
		}
	}()

	columns, err := rows.Columns()
	if err != nil {
		return nil, &domain.QueryExecutionError{Query: query, Err: err}
	}

	result := &domain.ResultSet{Columns: columns}
	for rows.Next() {
		if len(result.Rows) >= s.maxRows {
			result.Truncated = true
			break
		}

		values := make([]any, len(columns))
		dest := make([]any, len(columns))
		for i := range values {
			dest[i] = &values[i]
		}
		if err := rows.Scan(dest...); err != nil {
			return nil, &domain.QueryExecutionError{Query: query, Err: err}
		}
		for i, v := range values {
			if b, ok := v.([]byte); ok {
				values[i] = string(b)
			}
		}
		result.Rows = append(result.Rows, values)
	}

	if err := rows.Err(); err != nil {
		return nil, &domain.QueryExecutionError{Query: query, Err: err}
	}

	logger.Debug().
		Int("rows", len(result.Rows)).
		Bool("truncated", result.Truncated).
		Msg("query executed")
	return result, nil
}

func (s *sqlSource) DistinctValues(ctx context.Context, table, column string) ([]string, error) {
	logger := zerolog.Ctx(ctx)

	tbl, err := s.dialect.QuoteTable(table)
	if err != nil {
		return nil, err
	}
	col, err := s.dialect.Quote(column)
	if err != nil {
		return nil, err
	}
	query := fmt.Sprintf("SELECT DISTINCT %[2]s FROM %[1]s WHERE %[2]s IS NOT NULL", tbl, col)

	rows, err := s.db.QueryContext(ctx, query)
	if err != nil {
		return nil, &domain.QueryExecutionError{Query: query, Err: err}
	}
	defer func() {
		if err := rows.Close(); err != nil {
			logger.Warn().Err(err).Msg("failed to close rows")
		}
	}()

	var values []string
	for rows.Next() {
		var v sql.NullString
		if err := rows.Scan(&v); err != nil {
			return nil, &domain.QueryExecutionError{Query: query, Err: err}
		}
		if v.Valid {
			values = append(values, v.String)
		}
	}
	if err := rows.Err(); err != nil {
		return nil, &domain.QueryExecutionError{Query: query, Err: err}
	}

	return values, nil
}

func (s *sqlSource) Columns(ctx context.Context, table string) ([]string, error) {
	logger := zerolog.Ctx(ctx)

	quoted, err := s.dialect.QuoteTable(table)
	if err != nil {
		return nil, err
	}
	query := fmt.Sprintf("SELECT * FROM %s WHERE 1 = 0", quoted)

	rows, err := s.db.QueryContext(ctx, query)
	if err != nil {
		return nil, &domain.QueryExecutionError{Query: query, Err: err}
	}
	defer func() {
		if err := rows.Close(); err != nil {
			logger.Warn().Err(err).Msg("failed to close rows")
		}
	}()

	columns, err := rows.Columns()
	if err != nil {
		return nil, &domain.QueryExecutionError{Query: query, Err: err}
	}
	return columns, nil
}
