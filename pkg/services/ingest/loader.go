package ingest

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/de-tools/variance-atlas/pkg/models/store"
	ingeststore "github.com/de-tools/variance-atlas/pkg/store/ingest"
	"github.com/de-tools/variance-atlas/pkg/store/warehouse"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

type Mode string

const (
	ModeAppend  Mode = "append"
	ModeReplace Mode = "replace"
	ModeFail    Mode = "fail"
)

func ParseMode(s string) (Mode, error) {
	switch m := Mode(strings.ToLower(s)); m {
	case "":
		return ModeAppend, nil
	case ModeAppend, ModeReplace, ModeFail:
		return m, nil
	default:
		return "", fmt.Errorf("unknown ingest mode %q, expected append, replace or fail", s)
	}
}

const (
	DefaultChunkSize = 10000
	defaultAttempts  = 3
	defaultDelay     = time.Second
	// maxParams stays under the bind parameter limits of SQLite and
	// Postgres.
	maxParams = 30000
)

var ErrTableExists = errors.New("table already exists")

type Request struct {
	// Source is a local path or an s3://bucket/key location of a .csv or
	// .xlsx file.
	Source       string
	Table        string
	Mode         Mode
	AmountColumn string
}

type Result struct {
	RunID   string
	Rows    int64
	Columns []string
}

// Loader copies spreadsheet ledgers into a warehouse table.
type Loader struct {
	db        *sql.DB
	dialect   warehouse.Dialect
	runs      ingeststore.Store
	objects   ObjectGetter
	chunkSize int
	attempts  int
	delay     time.Duration
}

type Option func(*Loader)

func WithObjectGetter(objects ObjectGetter) Option {
	return func(l *Loader) {
		l.objects = objects
	}
}

func WithChunkSize(n int) Option {
	return func(l *Loader) {
		if n > 0 {
			l.chunkSize = n
		}
	}
}

// WithRetry sets how many times a chunk is attempted and the pause between
// attempts.
func WithRetry(attempts int, delay time.Duration) Option {
	return func(l *Loader) {
		if attempts > 0 {
			l.attempts = attempts
		}
		if delay >= 0 {
			l.delay = delay
		}
	}
}

func NewLoader(db *sql.DB, dialect warehouse.Dialect, runs ingeststore.Store, opts ...Option) (*Loader, error) {
	if db == nil {
		return nil, fmt.Errorf("database connection is nil")
	}
	if runs == nil {
		return nil, fmt.Errorf("ingest run store is nil")
	}

	l := &Loader{
		db:        db,
		dialect:   dialect,
		runs:      runs,
		chunkSize: DefaultChunkSize,
		attempts:  defaultAttempts,
		delay:     defaultDelay,
	}
	for _, opt := range opts {
		opt(l)
	}
	return l, nil
}

// Load reads req.Source and writes it to req.Table. Every call is recorded as
// an ingest run, including failed ones.
func (l *Loader) Load(ctx context.Context, req Request) (Result, error) {
	mode, err := ParseMode(string(req.Mode))
	if err != nil {
		return Result{}, err
	}
	if req.Table == "" {
		return Result{}, fmt.Errorf("target table is required")
	}
	if _, err := l.dialect.QuoteTable(req.Table); err != nil {
		return Result{}, err
	}

	if err := l.runs.Init(ctx); err != nil {
		return Result{}, err
	}

	run := &store.IngestRun{
		ID:        uuid.NewString(),
		Table:     req.Table,
		Source:    req.Source,
		Mode:      string(mode),
		Status:    store.IngestStatusRunning,
		StartedAt: time.Now(),
	}
	if err := l.runs.Create(ctx, run); err != nil {
		return Result{}, err
	}

	logger := zerolog.Ctx(ctx).With().Str("run_id", run.ID).Str("table", req.Table).Logger()
	ctx = logger.WithContext(ctx)
	logger.Info().Str("source", req.Source).Str("mode", string(mode)).Msg("ingest started")

	result, loadErr := l.load(ctx, req, mode)
	result.RunID = run.ID

	status := store.IngestStatusSucceeded
	var msg *string
	if loadErr != nil {
		status = store.IngestStatusFailed
		s := loadErr.Error()
		msg = &s
	}
	// The run is closed even when the caller's context is gone.
	if err := l.runs.Finish(context.WithoutCancel(ctx), run.ID, result.Rows, status, msg); err != nil {
		logger.Error().Err(err).Msg("failed to record ingest run")
	}

	if loadErr != nil {
		logger.Error().Err(loadErr).Int64("rows", result.Rows).Msg("ingest failed")
		return result, loadErr
	}
	logger.Info().Int64("rows", result.Rows).Msg("ingest finished")
	return result, nil
}

func (l *Loader) load(ctx context.Context, req Request, mode Mode) (Result, error) {
	path, cleanup, err := l.localize(ctx, req.Source)
	if err != nil {
		return Result{}, err
	}
	defer cleanup()

	header, rows, err := readTable(path)
	if err != nil {
		return Result{}, err
	}
	result := Result{Columns: header}

	amountIdx := -1
	for i, h := range header {
		if h == req.AmountColumn {
			amountIdx = i
		}
	}
	if req.AmountColumn != "" && amountIdx < 0 {
		return result, fmt.Errorf("amount column %q not found in %v", req.AmountColumn, header)
	}

	values, err := toValues(rows, amountIdx)
	if err != nil {
		return result, err
	}

	if err := l.prepareTable(ctx, req.Table, header, amountIdx, mode); err != nil {
		return result, err
	}

	for start := 0; start < len(values); start += l.chunkSize {
		end := min(start+l.chunkSize, len(values))
		if err := l.writeChunk(ctx, req.Table, header, values[start:end]); err != nil {
			return result, fmt.Errorf("rows %d-%d: %w", start+1, end, err)
		}
		result.Rows += int64(end - start)
	}
	return result, nil
}

// toValues converts the amount column to numbers and empty amounts to NULL.
func toValues(rows [][]string, amountIdx int) ([][]any, error) {
	values := make([][]any, len(rows))
	for i, row := range rows {
		vals := make([]any, len(row))
		for j, cell := range row {
			if j != amountIdx {
				vals[j] = cell
				continue
			}
			v, err := parseAmount(cell)
			if err != nil {
				return nil, fmt.Errorf("row %d: %w", i+2, err)
			}
			vals[j] = v
		}
		values[i] = vals
	}
	return values, nil
}

func parseAmount(s string) (any, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil, nil
	}

	negative := strings.HasPrefix(s, "(") && strings.HasSuffix(s, ")")
	s = strings.Trim(s, "()")
	s = strings.NewReplacer(",", "", "$", "", " ", "").Replace(s)

	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return nil, fmt.Errorf("invalid amount %q", s)
	}
	if negative {
		v = -v
	}
	return v, nil
}

func (l *Loader) prepareTable(ctx context.Context, table string, header []string, amountIdx int, mode Mode) error {
	exists, err := l.tableExists(ctx, table)
	if err != nil {
		return err
	}
	tbl, _ := l.dialect.QuoteTable(table)

	switch {
	case exists && mode == ModeFail:
		return fmt.Errorf("%w: %s", ErrTableExists, table)
	case exists && mode == ModeReplace:
		if _, err := l.db.ExecContext(ctx, "DROP TABLE "+tbl); err != nil {
			return fmt.Errorf("drop %s: %w", table, err)
		}
	case exists:
		return nil
	}

	cols := make([]string, len(header))
	for i, h := range header {
		q, err := l.dialect.Quote(h)
		if err != nil {
			return fmt.Errorf("column %q: %w", h, err)
		}
		typ := textType(l.dialect)
		if i == amountIdx {
			typ = doubleType(l.dialect)
		}
		cols[i] = q + " " + typ
	}

	ddl := fmt.Sprintf("CREATE TABLE %s (%s)", tbl, strings.Join(cols, ", "))
	if _, err := l.db.ExecContext(ctx, ddl); err != nil {
		return fmt.Errorf("create %s: %w", table, err)
	}
	zerolog.Ctx(ctx).Debug().Str("ddl", ddl).Msg("created table")
	return nil
}

func (l *Loader) tableExists(ctx context.Context, table string) (bool, error) {
	tbl, err := l.dialect.QuoteTable(table)
	if err != nil {
		return false, err
	}

	rows, err := l.db.QueryContext(ctx, "SELECT 1 FROM "+tbl+" WHERE 1 = 0")
	if err != nil {
		// Drivers report a missing table differently; any failure to probe is
		// treated as absence and CREATE TABLE surfaces the real problem.
		return false, nil
	}
	if err := rows.Close(); err != nil {
		zerolog.Ctx(ctx).Warn().Err(err).Msg("failed to close rows")
	}
	return true, nil
}

// writeChunk inserts rows in one transaction, retrying the whole chunk on
// failure.
func (l *Loader) writeChunk(ctx context.Context, table string, header []string, rows [][]any) error {
	logger := zerolog.Ctx(ctx)

	var err error
	for attempt := 1; attempt <= l.attempts; attempt++ {
		if err = l.insertTx(ctx, table, header, rows); err == nil {
			return nil
		}
		if ctx.Err() != nil || attempt == l.attempts {
			break
		}

		logger.Warn().Err(err).Int("attempt", attempt).Dur("delay", l.delay).Msg("chunk failed, retrying")
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(l.delay):
		}
	}
	return err
}

func (l *Loader) insertTx(ctx context.Context, table string, header []string, rows [][]any) (err error) {
	tx, err := l.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	defer func() {
		if err != nil {
			if rbErr := tx.Rollback(); rbErr != nil {
				zerolog.Ctx(ctx).Warn().Err(rbErr).Msg("rollback failed")
			}
		}
	}()

	txCtx := warehouse.WithTransaction(ctx, tx)
	perStatement := max(maxParams/len(header), 1)
	for start := 0; start < len(rows); start += perStatement {
		end := min(start+perStatement, len(rows))
		if err = l.insert(txCtx, table, header, rows[start:end]); err != nil {
			return err
		}
	}

	if err = tx.Commit(); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	return nil
}

func (l *Loader) insert(ctx context.Context, table string, header []string, rows [][]any) error {
	tbl, err := l.dialect.QuoteTable(table)
	if err != nil {
		return err
	}
	cols, err := l.dialect.QuoteAll(header...)
	if err != nil {
		return err
	}

	width := len(header)
	tuples := make([]string, len(rows))
	args := make([]any, 0, len(rows)*width)
	for i, row := range rows {
		tuples[i] = "(" + l.dialect.Placeholders(i*width+1, width) + ")"
		args = append(args, row...)
	}

	query := fmt.Sprintf("INSERT INTO %s (%s) VALUES %s",
		tbl, strings.Join(cols, ", "), strings.Join(tuples, ", "))
	if _, err := warehouse.ExecutorFor(ctx, l.db).ExecContext(ctx, query, args...); err != nil {
		return fmt.Errorf("insert: %w", err)
	}
	return nil
}

func textType(d warehouse.Dialect) string {
	switch d.Name {
	case warehouse.DialectDatabricks.Name:
		return "STRING"
	case warehouse.DialectPostgres.Name, warehouse.DialectSQLite.Name:
		return "TEXT"
	default:
		return "VARCHAR"
	}
}

func doubleType(d warehouse.Dialect) string {
	if d.Name == warehouse.DialectPostgres.Name {
		return "DOUBLE PRECISION"
	}
	return "DOUBLE"
}

// Runs lists recorded ingest runs, newest first.
func (l *Loader) Runs(ctx context.Context, limit int) ([]store.IngestRun, error) {
	if err := l.runs.Init(ctx); err != nil {
		return nil, err
	}
	return l.runs.ListRuns(ctx, limit)
}
