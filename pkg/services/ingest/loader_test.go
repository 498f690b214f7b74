package ingest

import (
	"context"
	"database/sql"
	"errors"
	"io"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/de-tools/variance-atlas/pkg/models/store"
	ingeststore "github.com/de-tools/variance-atlas/pkg/store/ingest"
	"github.com/de-tools/variance-atlas/pkg/store/warehouse"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tealeg/xlsx/v2"
	_ "modernc.org/sqlite"
)

const ledgerCSV = `Date,Reason_Code,Customer,Amount
2024Q1,Tax,Acme,"1,200.50"
2024Q2,Tax,Acme,(300)

2024Q2,FX,Globex,
`

type fixture struct {
	db     *sql.DB
	runs   ingeststore.Store
	loader *Loader
	dir    string
}

func setupFixture(t *testing.T, opts ...Option) *fixture {
	dir := t.TempDir()
	db, err := sql.Open("sqlite", filepath.Join(dir, "warehouse.db"))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	runs, err := ingeststore.NewStore(db, warehouse.DialectSQLite)
	require.NoError(t, err)
	loader, err := NewLoader(db, warehouse.DialectSQLite, runs, opts...)
	require.NoError(t, err)

	return &fixture{db: db, runs: runs, loader: loader, dir: dir}
}

func (f *fixture) write(t *testing.T, name, content string) string {
	path := filepath.Join(f.dir, name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func (f *fixture) count(t *testing.T, table string) int {
	var n int
	require.NoError(t, f.db.QueryRow(`SELECT COUNT(*) FROM "`+table+`"`).Scan(&n))
	return n
}

func TestLoader_LoadCSV(t *testing.T) {
	f := setupFixture(t, WithChunkSize(2))
	ctx := context.Background()

	res, err := f.loader.Load(ctx, Request{
		Source:       f.write(t, "ledger.csv", ledgerCSV),
		Table:        "ledger",
		AmountColumn: "Amount",
	})
	require.NoError(t, err)
	assert.Equal(t, int64(3), res.Rows)
	assert.Equal(t, []string{"Date", "Reason_Code", "Customer", "Amount"}, res.Columns)
	assert.NotEmpty(t, res.RunID)

	var total float64
	require.NoError(t, f.db.QueryRow(`SELECT SUM("Amount") FROM "ledger"`).Scan(&total))
	assert.InDelta(t, 900.5, total, 1e-9)

	var nulls int
	require.NoError(t, f.db.QueryRow(`SELECT COUNT(*) FROM "ledger" WHERE "Amount" IS NULL`).Scan(&nulls))
	assert.Equal(t, 1, nulls)

	runs, err := f.loader.Runs(ctx, 10)
	require.NoError(t, err)
	require.Len(t, runs, 1)
	assert.Equal(t, res.RunID, runs[0].ID)
	assert.Equal(t, store.IngestStatusSucceeded, runs[0].Status)
	assert.Equal(t, int64(3), runs[0].Rows)
}

func TestLoader_Modes(t *testing.T) {
	f := setupFixture(t)
	ctx := context.Background()
	src := f.write(t, "ledger.csv", ledgerCSV)

	_, err := f.loader.Load(ctx, Request{Source: src, Table: "ledger", AmountColumn: "Amount"})
	require.NoError(t, err)

	_, err = f.loader.Load(ctx, Request{Source: src, Table: "ledger", Mode: ModeAppend, AmountColumn: "Amount"})
	require.NoError(t, err)
	assert.Equal(t, 6, f.count(t, "ledger"))

	_, err = f.loader.Load(ctx, Request{Source: src, Table: "ledger", Mode: ModeReplace, AmountColumn: "Amount"})
	require.NoError(t, err)
	assert.Equal(t, 3, f.count(t, "ledger"))

	_, err = f.loader.Load(ctx, Request{Source: src, Table: "ledger", Mode: ModeFail, AmountColumn: "Amount"})
	assert.ErrorIs(t, err, ErrTableExists)

	runs, err := f.loader.Runs(ctx, 0)
	require.NoError(t, err)
	require.Len(t, runs, 4)
	var failed int
	for _, r := range runs {
		if r.Status == store.IngestStatusFailed {
			failed++
			require.NotNil(t, r.Error)
			assert.Contains(t, *r.Error, "already exists")
		}
	}
	assert.Equal(t, 1, failed)
}

func TestLoader_LoadXLSX(t *testing.T) {
	f := setupFixture(t)
	path := filepath.Join(f.dir, "ledger.xlsx")

	book := xlsx.NewFile()
	sheet, err := book.AddSheet("Sheet1")
	require.NoError(t, err)
	for _, record := range [][]string{
		{"Date", "Reason_Code", "Amount"},
		{"2024Q1", "Tax", "10"},
		{"2024Q2", "Tax", "12.5"},
	} {
		row := sheet.AddRow()
		for _, v := range record {
			row.AddCell().SetString(v)
		}
	}
	require.NoError(t, book.Save(path))

	res, err := f.loader.Load(context.Background(), Request{Source: path, Table: "xl", AmountColumn: "Amount"})
	require.NoError(t, err)
	assert.Equal(t, int64(2), res.Rows)
	assert.Equal(t, 2, f.count(t, "xl"))
}

type fakeObjects struct {
	body   string
	bucket string
	key    string
}

func (f *fakeObjects) GetObject(_ context.Context, in *s3.GetObjectInput, _ ...func(*s3.Options)) (*s3.GetObjectOutput, error) {
	f.bucket, f.key = *in.Bucket, *in.Key
	return &s3.GetObjectOutput{Body: io.NopCloser(strings.NewReader(f.body))}, nil
}

func TestLoader_LoadFromS3(t *testing.T) {
	objects := &fakeObjects{body: ledgerCSV}
	f := setupFixture(t, WithObjectGetter(objects))

	res, err := f.loader.Load(context.Background(), Request{
		Source:       "s3://finance-drop/2024/ledger.csv",
		Table:        "ledger",
		AmountColumn: "Amount",
	})
	require.NoError(t, err)
	assert.Equal(t, int64(3), res.Rows)
	assert.Equal(t, "finance-drop", objects.bucket)
	assert.Equal(t, "2024/ledger.csv", objects.key)
}

func TestLoader_InvalidRequests(t *testing.T) {
	f := setupFixture(t)
	ctx := context.Background()

	_, err := f.loader.Load(ctx, Request{Source: "x.csv", Table: "t", Mode: "upsert"})
	assert.ErrorContains(t, err, "unknown ingest mode")

	_, err = f.loader.Load(ctx, Request{Source: f.write(t, "notes.txt", "a"), Table: "t"})
	assert.ErrorContains(t, err, "unsupported file type")

	_, err = f.loader.Load(ctx, Request{Source: "s3://bucket-only", Table: "t"})
	assert.Error(t, err)

	_, err = f.loader.Load(ctx, Request{Source: f.write(t, "bad.csv", "Amount\nabc\n"), Table: "t", AmountColumn: "Amount"})
	assert.ErrorContains(t, err, `row 2: invalid amount "abc"`)
}

// fakeRuns keeps runs in memory so the warehouse mock only sees ledger
// statements.
type fakeRuns struct {
	runs []store.IngestRun
}

func (f *fakeRuns) Init(context.Context) error { return nil }

func (f *fakeRuns) Create(_ context.Context, run *store.IngestRun) error {
	f.runs = append(f.runs, *run)
	return nil
}

func (f *fakeRuns) Finish(_ context.Context, id string, rows int64, status store.IngestStatus, runErr *string) error {
	for i := range f.runs {
		if f.runs[i].ID == id {
			f.runs[i].Rows, f.runs[i].Status, f.runs[i].Error = rows, status, runErr
			return nil
		}
	}
	return errors.New("not found")
}

func (f *fakeRuns) ListRuns(context.Context, int) ([]store.IngestRun, error) {
	return f.runs, nil
}

func TestLoader_RetriesFailedChunk(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	runs := &fakeRuns{}
	loader, err := NewLoader(db, warehouse.DialectSQLite, runs, WithRetry(3, time.Millisecond))
	require.NoError(t, err)

	insert := regexp.QuoteMeta(`INSERT INTO "ledger" ("Date", "Amount") VALUES (?, ?), (?, ?)`)
	mock.ExpectQuery(regexp.QuoteMeta(`SELECT 1 FROM "ledger" WHERE 1 = 0`)).
		WillReturnRows(sqlmock.NewRows([]string{"1"}))
	mock.ExpectBegin()
	mock.ExpectExec(insert).WillReturnError(errors.New("database is locked"))
	mock.ExpectRollback()
	mock.ExpectBegin()
	mock.ExpectExec(insert).
		WithArgs("2024Q1", 1.0, "2024Q2", 2.0).
		WillReturnResult(sqlmock.NewResult(0, 2))
	mock.ExpectCommit()

	dir := t.TempDir()
	src := filepath.Join(dir, "l.csv")
	require.NoError(t, os.WriteFile(src, []byte("Date,Amount\n2024Q1,1\n2024Q2,2\n"), 0o600))

	res, err := loader.Load(context.Background(), Request{Source: src, Table: "ledger", AmountColumn: "Amount"})
	require.NoError(t, err)
	assert.Equal(t, int64(2), res.Rows)
	assert.NoError(t, mock.ExpectationsWereMet())
	require.Len(t, runs.runs, 1)
	assert.Equal(t, store.IngestStatusSucceeded, runs.runs[0].Status)
}

func TestLoader_GivesUpAfterAttempts(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	runs := &fakeRuns{}
	loader, err := NewLoader(db, warehouse.DialectSQLite, runs, WithRetry(2, 0))
	require.NoError(t, err)

	mock.ExpectQuery(`SELECT 1 FROM`).WillReturnRows(sqlmock.NewRows([]string{"1"}))
	for range 2 {
		mock.ExpectBegin()
		mock.ExpectExec(`INSERT INTO`).WillReturnError(errors.New("disk full"))
		mock.ExpectRollback()
	}

	src := filepath.Join(t.TempDir(), "l.csv")
	require.NoError(t, os.WriteFile(src, []byte("Date,Amount\n2024Q1,1\n"), 0o600))

	_, err = loader.Load(context.Background(), Request{Source: src, Table: "ledger", AmountColumn: "Amount"})
	assert.ErrorContains(t, err, "disk full")
	assert.NoError(t, mock.ExpectationsWereMet())
	require.Len(t, runs.runs, 1)
	assert.Equal(t, store.IngestStatusFailed, runs.runs[0].Status)
}

func TestParseAmount(t *testing.T) {
	tests := map[string]any{
		"":          nil,
		"12":        12.0,
		"-3.5":      -3.5,
		"$1,000":    1000.0,
		"(250.25)":  -250.25,
		" 7 ":       7.0,
		"1e3":       1000.0,
		"(1,234.5)": -1234.5,
	}
	for in, want := range tests {
		got, err := parseAmount(in)
		require.NoError(t, err, in)
		assert.Equal(t, want, got, in)
	}
}
