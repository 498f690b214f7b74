package reasoncode

import (
	"context"
	"math"
	"sort"

	"github.com/de-tools/variance-atlas/pkg/models/domain"
)

// Identifier picks the summary cells worth explaining when the caller did
// not select any.
type Identifier interface {
	Identify(ctx context.Context, table domain.SummaryTable) ([]domain.Selection, error)
}

const defaultPerColumn = 2

// TopMovers selects, for each comparison column, the PerColumn reason codes
// with the largest absolute change. The Total row is never selected.
type TopMovers struct {
	PerColumn int
}

func (m TopMovers) Identify(_ context.Context, table domain.SummaryTable) ([]domain.Selection, error) {
	n := m.PerColumn
	if n <= 0 {
		n = defaultPerColumn
	}

	var selections []domain.Selection
	for _, ct := range []domain.ComparisonType{domain.YearOverYear, domain.QuarterOverQuarter} {
		var candidates []domain.Selection
		for _, row := range table.Rows {
			if row.ReasonCode == domain.TotalRow {
				continue
			}
			v, ok := table.Cell(row.ReasonCode, string(ct))
			if !ok || v == nil || *v == 0 {
				continue
			}
			candidates = append(candidates, domain.Selection{RowKey: row.ReasonCode, ColumnKey: string(ct), Value: *v})
		}

		sort.SliceStable(candidates, func(i, j int) bool {
			return math.Abs(candidates[i].Value) > math.Abs(candidates[j].Value)
		})
		if len(candidates) > n {
			candidates = candidates[:n]
		}
		selections = append(selections, candidates...)
	}
	return selections, nil
}
