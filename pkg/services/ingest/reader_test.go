package ingest

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeCSV(t *testing.T, content string) string {
	path := filepath.Join(t.TempDir(), "ledger.csv")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func TestReadTable_RowWidths(t *testing.T) {
	t.Run("short rows are padded and trailing empty cells dropped", func(t *testing.T) {
		path := writeCSV(t, "Date,Reason_Code,Amount\n2024Q1,Tax\n2024Q2,FX,3,,\n")

		header, rows, err := readTable(path)
		require.NoError(t, err)
		assert.Equal(t, []string{"Date", "Reason_Code", "Amount"}, header)
		assert.Equal(t, [][]string{{"2024Q1", "Tax", ""}, {"2024Q2", "FX", "3"}}, rows)
	})

	t.Run("extra values are rejected with the row number", func(t *testing.T) {
		path := writeCSV(t, "Date,Reason_Code,Amount\n2024Q1,Tax,1\n\n2024Q2,FX,3,Globex\n")

		_, _, err := readTable(path)
		assert.ErrorContains(t, err, "row 4: 4 cells for 3 header columns")
	})
}
