package domain

// Table describes the ledger table a report is computed from
type Table struct {
	Name         string
	PeriodColumn string
	ReasonColumn string
	AmountColumn string
}

// Report represents a configured variance report
type Report struct {
	Name                string
	Table               Table
	ContributingColumns []string
	TopN                int
	Summary             SummaryKind
	// Scale multiplies summary amounts, e.g. 1e-6 to report in millions.
	Scale float64
	// Movers is the number of selections picked per comparison column when
	// none are supplied.
	Movers   int
	Metadata map[string]string
}

// ColumnNames returns every column the report touches, deduplicated.
func (r Report) ColumnNames() []string {
	seen := make(map[string]struct{})
	var cols []string
	add := func(c string) {
		if _, ok := seen[c]; ok || c == "" {
			return
		}
		seen[c] = struct{}{}
		cols = append(cols, c)
	}

	add(r.Table.PeriodColumn)
	add(r.Table.ReasonColumn)
	add(r.Table.AmountColumn)
	for _, c := range r.ContributingColumns {
		add(c)
	}
	return cols
}
