package summary

import (
	"context"
	"fmt"
	"sort"

	"github.com/de-tools/variance-atlas/pkg/models/domain"
	"github.com/de-tools/variance-atlas/pkg/store/ledger"
	"github.com/rs/zerolog"
)

// Layout picks the period labels a summary kind shows.
type Layout func(periods domain.PeriodSet) []string

var layouts = map[domain.SummaryKind]Layout{
	domain.SummaryPivot: func(p domain.PeriodSet) []string {
		return append([]string(nil), p.Labels...)
	},
	domain.SummaryWindow: func(p domain.PeriodSet) []string {
		var labels []string
		if p.HasYearAgo() {
			labels = append(labels, p.YearAgo)
		}
		return append(labels, p.Previous, p.Current)
	},
}

// Builder computes the per reason code summary table of a report.
type Builder struct {
	ledger ledger.Store
}

func NewBuilder(store ledger.Store) *Builder {
	return &Builder{ledger: store}
}

func (b *Builder) Build(ctx context.Context, report domain.Report, periods domain.PeriodSet) (domain.SummaryTable, error) {
	kind := report.Summary
	if kind == "" {
		kind = domain.SummaryPivot
	}
	layout, ok := layouts[kind]
	if !ok {
		return domain.SummaryTable{}, fmt.Errorf("unknown summary kind %q", kind)
	}

	amounts, err := b.ledger.AmountsByReason(ctx, report.Table)
	if err != nil {
		return domain.SummaryTable{}, fmt.Errorf("failed to aggregate %s: %w", report.Name, err)
	}

	scale := report.Scale
	if scale == 0 {
		scale = 1
	}

	byReason := make(map[string]map[string]float64)
	for _, a := range amounts {
		m, ok := byReason[a.ReasonCode]
		if !ok {
			m = make(map[string]float64)
			byReason[a.ReasonCode] = m
		}
		m[a.Period] += a.Amount * scale
	}

	reasons := make([]string, 0, len(byReason))
	for r := range byReason {
		reasons = append(reasons, r)
	}
	sort.Strings(reasons)

	labels := layout(periods)
	table := domain.SummaryTable{
		Report:  report.Name,
		Periods: periods,
		Columns: append(append([]string(nil), labels...),
			domain.ColumnYoY, domain.ColumnYoYPct, domain.ColumnQoQ, domain.ColumnQoQPct),
		Rows: make([]domain.SummaryRow, 0, len(reasons)+1),
	}

	total := make(map[string]float64)
	for _, r := range reasons {
		for p, v := range byReason[r] {
			total[p] += v
		}
		table.Rows = append(table.Rows, buildRow(r, byReason[r], labels, periods))
	}
	table.Rows = append(table.Rows, buildRow(domain.TotalRow, total, labels, periods))

	zerolog.Ctx(ctx).Debug().
		Str("report", report.Name).
		Str("kind", string(kind)).
		Int("rows", len(table.Rows)).
		Msg("built summary")
	return table, nil
}

func buildRow(reason string, amounts map[string]float64, labels []string, periods domain.PeriodSet) domain.SummaryRow {
	row := domain.SummaryRow{ReasonCode: reason, Amounts: make([]float64, len(labels))}
	for i, l := range labels {
		row.Amounts[i] = amounts[l]
	}

	// a period with no rows for the reason counts as 0, the same as Diff
	row.QoQ, row.QoQPct = change(amounts[periods.Previous], amounts[periods.Current])
	if periods.HasYearAgo() {
		row.YoY, row.YoYPct = change(amounts[periods.YearAgo], amounts[periods.Current])
	}
	return row
}

// change returns compare-base and the same as a percentage of base. The
// percentage is nil when base is zero.
func change(base, compare float64) (*float64, *float64) {
	diff := compare - base
	if base == 0 {
		return &diff, nil
	}
	pct := diff / base * 100
	return &diff, &pct
}
