package app

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/de-tools/variance-atlas/pkg/models/domain"
	"github.com/de-tools/variance-atlas/pkg/services/config"
	"github.com/de-tools/variance-atlas/pkg/services/ingest"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const ledgerCSV = `Date,Reason_Code,Amount,Sales
2023Q3,FX,10,A
2024Q2,FX,20,A
2024Q3,FX,35,B
2023Q3,Tax,5,C
2024Q2,Tax,5,C
2024Q3,Tax,2,C
`

func newApp(t *testing.T) *App {
	dir := t.TempDir()
	cfgPath := filepath.Join(dir, "atlas.yaml")
	require.NoError(t, os.WriteFile(cfgPath, []byte(`
warehouse:
  driver: sqlite
  path: `+filepath.Join(dir, "ledger.db")+`
reports:
  - name: cmdm
    table: ledger
    contributing_columns: [Sales]
    top_n: 2
`), 0o600))

	cfg, err := config.Load(cfgPath)
	require.NoError(t, err)

	a, err := New(context.Background(), cfg)
	require.NoError(t, err)
	t.Cleanup(func() { _ = a.Close() })
	return a
}

func TestNew_IngestThenSummarize(t *testing.T) {
	// Given an application without model credentials
	a := newApp(t)
	ctx := context.Background()

	src := filepath.Join(t.TempDir(), "ledger.csv")
	require.NoError(t, os.WriteFile(src, []byte(ledgerCSV), 0o600))

	// When a ledger file is ingested
	res, err := a.Ingest.Load(ctx, ingest.Request{Source: src, Table: "ledger", AmountColumn: "Amount"})
	require.NoError(t, err)
	assert.Equal(t, int64(6), res.Rows)

	// Then the data side works end to end
	periods, err := a.Commentary.Periods(ctx, "cmdm")
	require.NoError(t, err)
	assert.Equal(t, "2024Q3", periods.Current)
	assert.Equal(t, "2023Q3", periods.YearAgo)

	table, err := a.Commentary.Summary(ctx, "cmdm")
	require.NoError(t, err)
	total, ok := table.Cell(domain.TotalRow, domain.ColumnQoQ)
	require.True(t, ok)
	assert.InDelta(t, 12.0, *total, 1e-9)

	attributions, err := a.Commentary.Attribute(ctx, "cmdm",
		[]domain.Selection{{RowKey: "FX", ColumnKey: domain.ColumnQoQ}}, nil, 0)
	require.NoError(t, err)
	require.Len(t, attributions, 1)
	require.Len(t, attributions[0].Deltas, 2)
	assert.Equal(t, "B", attributions[0].Deltas[0].Attribute)

	runs, err := a.Ingest.Runs(ctx, 10)
	require.NoError(t, err)
	assert.Len(t, runs, 1)

	// And model backed operations fail with a formatting error
	_, err = a.Commentary.GenerateInitial(ctx, "cmdm", nil)
	assert.ErrorIs(t, err, domain.ErrFormatting)
}

func TestNew_UnknownWarehouse(t *testing.T) {
	_, err := New(context.Background(), &config.Config{})
	assert.Error(t, err)
}

func TestNewLogger(t *testing.T) {
	var buf bytes.Buffer
	logger, err := NewLogger(config.LogConfig{Level: "warn", Format: "json"}, &buf)
	require.NoError(t, err)

	logger.Info().Msg("hidden")
	logger.Warn().Msg("shown")
	assert.NotContains(t, buf.String(), "hidden")
	assert.Contains(t, buf.String(), `"message":"shown"`)
	assert.Equal(t, zerolog.WarnLevel, logger.GetLevel())

	_, err = NewLogger(config.LogConfig{Level: "loud"}, &buf)
	assert.Error(t, err)
}
