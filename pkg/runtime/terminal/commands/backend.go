package commands

import (
	"context"
	"fmt"
	"strings"

	"github.com/de-tools/variance-atlas/pkg/models/domain"
	"github.com/de-tools/variance-atlas/pkg/models/store"
	"github.com/de-tools/variance-atlas/pkg/services/ingest"
	"github.com/spf13/cobra"
)

// Commentary is the report workflow driven from the terminal.
type Commentary interface {
	Reports() []domain.Report
	Periods(ctx context.Context, report string) (domain.PeriodSet, error)
	Summary(ctx context.Context, report string) (domain.SummaryTable, error)
	Attribute(ctx context.Context, report string, selections []domain.Selection, columns []string, topN int) ([]domain.Attribution, error)
	GenerateInitial(ctx context.Context, report string, hint []domain.Selection) (domain.Commentary, error)
	Refresh(ctx context.Context, report string, selections []domain.Selection, columns []string, topN int) (domain.Commentary, error)
	Modify(ctx context.Context, instruction, current string, selections []domain.Selection) (string, error)
	Ask(ctx context.Context, question string) (domain.Answer, error)
}

type Ingester interface {
	Load(ctx context.Context, req ingest.Request) (ingest.Result, error)
	Runs(ctx context.Context, limit int) ([]store.IngestRun, error)
}

type Backend struct {
	Commentary Commentary
	Ingest     Ingester
}

// Connect returns the backend for a command, building it on first use.
type Connect func(cmd *cobra.Command) (*Backend, error)

// parseSelections reads row=column pairs such as "Tax=Q/Q $".
func parseSelections(values []string) ([]domain.Selection, error) {
	selections := make([]domain.Selection, 0, len(values))
	for _, v := range values {
		row, col, ok := strings.Cut(v, "=")
		row, col = strings.TrimSpace(row), strings.TrimSpace(col)
		if !ok || row == "" || col == "" {
			return nil, fmt.Errorf("invalid selection %q: expected reason_code=column", v)
		}
		selections = append(selections, domain.Selection{RowKey: row, ColumnKey: col})
	}
	return selections, nil
}
