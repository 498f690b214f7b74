package query

import (
	"context"
	"errors"
	"testing"

	"github.com/de-tools/variance-atlas/pkg/models/domain"
	"github.com/de-tools/variance-atlas/pkg/store/warehouse"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

type mockLLM struct {
	mock.Mock
}

func (m *mockLLM) Complete(ctx context.Context, prompt string) (string, error) {
	args := m.Called(ctx, prompt)
	return args.String(0), args.Error(1)
}

type mockExplainer struct {
	mock.Mock
}

func (m *mockExplainer) ExplainFailure(ctx context.Context, question string, attempts int, lastQuery string, lastErr error) (string, error) {
	args := m.Called(ctx, question, attempts, lastQuery, lastErr)
	return args.String(0), args.Error(1)
}

// fakeSource fails every query listed in failing and records what it ran.
type fakeSource struct {
	failing map[string]error
	columns map[string][]string
	ran     []string
}

func (f *fakeSource) Run(_ context.Context, query string, _ ...any) (*domain.ResultSet, error) {
	f.ran = append(f.ran, query)
	if err, ok := f.failing[query]; ok {
		return nil, &domain.QueryExecutionError{Query: query, Err: err}
	}
	return &domain.ResultSet{Columns: []string{"total"}, Rows: [][]any{{42.0}}}, nil
}

func (f *fakeSource) DistinctValues(context.Context, string, string) ([]string, error) {
	return nil, nil
}

func (f *fakeSource) Columns(_ context.Context, table string) ([]string, error) {
	cols, ok := f.columns[table]
	if !ok {
		return nil, errors.New("no such table: " + table)
	}
	return cols, nil
}

func (f *fakeSource) Dialect() warehouse.Dialect {
	return warehouse.DialectSQLite
}

func TestLoop_AlwaysFailingExhaustsRetries(t *testing.T) {
	// Given a warehouse rejecting the only query the model produces
	llmSvc := new(mockLLM)
	llmSvc.On("Complete", mock.Anything, mock.Anything).Return("SELECT nope FROM ledger", nil)
	source := &fakeSource{failing: map[string]error{"SELECT nope FROM ledger": errors.New("no such column: nope")}}
	explainer := new(mockExplainer)
	explainer.On("ExplainFailure", mock.Anything, "total?", 3, "SELECT nope FROM ledger", mock.Anything).
		Return("I could not find that column.", nil)

	loop, err := NewLoop(llmSvc, source, explainer, WithMaxRetries(3))
	require.NoError(t, err)

	// When
	outcome := loop.Process(context.Background(), "total?")

	// Then
	assert.False(t, outcome.Succeeded())
	assert.Equal(t, 3, outcome.AttemptCount)
	assert.Len(t, outcome.Attempts, 3)
	assert.ErrorIs(t, outcome.Err, domain.ErrRetriesExhausted)
	assert.ErrorIs(t, outcome.Err, domain.ErrQueryExecution)
	assert.Contains(t, outcome.Err.Error(), "max retries (3) exceeded")
	assert.Equal(t, "I could not find that column.", outcome.Explanation)
	llmSvc.AssertNumberOfCalls(t, "Complete", 3)
	explainer.AssertExpectations(t)
}

func TestLoop_SucceedsOnSecondAttempt(t *testing.T) {
	llmSvc := new(mockLLM)
	var retryPrompt string
	llmSvc.On("Complete", mock.Anything, mock.Anything).Return("```sql\nSELECT amount FROM ledger;\n```", nil).Once()
	llmSvc.On("Complete", mock.Anything, mock.Anything).
		Run(func(args mock.Arguments) { retryPrompt = args.String(1) }).
		Return("SELECT SUM(Amount) FROM ledger", nil).Once()
	source := &fakeSource{failing: map[string]error{"SELECT amount FROM ledger": errors.New("no such column: amount")}}

	loop, err := NewLoop(llmSvc, source, new(mockExplainer))
	require.NoError(t, err)

	outcome := loop.Process(context.Background(), "total amount?")
	require.True(t, outcome.Succeeded())
	assert.Equal(t, 2, outcome.AttemptCount)
	assert.Equal(t, "SELECT SUM(Amount) FROM ledger", outcome.Query)
	assert.Equal(t, []string{"SELECT amount FROM ledger", "SELECT SUM(Amount) FROM ledger"}, source.ran)

	// The retry prompt carries the failing query and the raw error.
	assert.Contains(t, retryPrompt, "SELECT amount FROM ledger")
	assert.Contains(t, retryPrompt, "no such column: amount")
	assert.Contains(t, retryPrompt, "Fix this SQL query")
}

func TestLoop_GenerationFailuresCountAsAttempts(t *testing.T) {
	llmSvc := new(mockLLM)
	llmSvc.On("Complete", mock.Anything, mock.Anything).Return("", errors.New("overloaded")).Once()
	llmSvc.On("Complete", mock.Anything, mock.Anything).Return("DELETE FROM ledger", nil).Once()
	llmSvc.On("Complete", mock.Anything, mock.Anything).Return("SELECT 1", nil).Once()
	source := &fakeSource{}

	loop, err := NewLoop(llmSvc, source, nil)
	require.NoError(t, err)

	outcome := loop.Process(context.Background(), "q")
	require.True(t, outcome.Succeeded())
	assert.Equal(t, 3, outcome.AttemptCount)
	assert.ErrorContains(t, outcome.Attempts[0].Err, "overloaded")
	assert.ErrorContains(t, outcome.Attempts[1].Err, "read-only")
	// The rejected statement never reaches the warehouse.
	assert.Equal(t, []string{"SELECT 1"}, source.ran)
}

func TestLoop_FailedExplanationJoinsFormattingError(t *testing.T) {
	llmSvc := new(mockLLM)
	llmSvc.On("Complete", mock.Anything, mock.Anything).Return("SELECT x", nil)
	source := &fakeSource{failing: map[string]error{"SELECT x": errors.New("boom")}}
	explainer := new(mockExplainer)
	explainer.On("ExplainFailure", mock.Anything, mock.Anything, mock.Anything, mock.Anything, mock.Anything).
		Return("", &domain.FormattingError{Err: errors.New("rate limited")})

	loop, err := NewLoop(llmSvc, source, explainer, WithMaxRetries(0))
	require.NoError(t, err)
	assert.Equal(t, 1, loop.MaxRetries())

	outcome := loop.Process(context.Background(), "q")
	assert.ErrorIs(t, outcome.Err, domain.ErrRetriesExhausted)
	assert.ErrorIs(t, outcome.Err, domain.ErrFormatting)
	assert.Empty(t, outcome.Explanation)
}

func TestLoop_CancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	llmSvc := new(mockLLM)
	loop, err := NewLoop(llmSvc, &fakeSource{}, new(mockExplainer))
	require.NoError(t, err)

	outcome := loop.Process(ctx, "q")
	assert.ErrorIs(t, outcome.Err, domain.ErrRetriesExhausted)
	assert.ErrorIs(t, outcome.Err, context.Canceled)
	llmSvc.AssertNotCalled(t, "Complete", mock.Anything, mock.Anything)
}

func TestSanitize(t *testing.T) {
	assert.Equal(t, "SELECT 1", Sanitize("  SELECT 1;;  "))
	assert.Equal(t, "SELECT a\nFROM t", Sanitize("```sql\nSELECT a\nFROM t;\n```"))
	assert.Equal(t, "WITH x AS (SELECT 1) SELECT * FROM x", Sanitize("```\nWITH x AS (SELECT 1) SELECT * FROM x\n```"))
}

func TestCheckReadOnly(t *testing.T) {
	assert.NoError(t, checkReadOnly("select * from ledger"))
	assert.NoError(t, checkReadOnly("WITH t AS (SELECT 1) SELECT * FROM t"))
	assert.Error(t, checkReadOnly(""))
	assert.Error(t, checkReadOnly("DROP TABLE ledger"))
	assert.Error(t, checkReadOnly("SELECT 1; DROP TABLE ledger"))
	assert.Error(t, checkReadOnly("selection"))
}

func TestDescribeTables(t *testing.T) {
	source := &fakeSource{columns: map[string][]string{"ledger": {"Date", "Amount"}}}

	got, err := DescribeTables(context.Background(), source, []TableSpec{{
		Name:         "ledger",
		Descriptions: map[string]string{"Amount": "signed amount in USD", "Region": "sales region"},
	}})
	require.NoError(t, err)
	assert.Contains(t, got, "Table ledger:")
	assert.Contains(t, got, `- "Date"`)
	assert.Contains(t, got, `- "Amount": signed amount in USD`)
	assert.Contains(t, got, "described but missing: Region")

	_, err = DescribeTables(context.Background(), source, []TableSpec{{Name: "missing"}})
	assert.Error(t, err)
}
