package domain

import "fmt"

type SummaryKind string

const (
	SummaryPivot  SummaryKind = "pivot"
	SummaryWindow SummaryKind = "window"
)

func ParseSummaryKind(s string) (SummaryKind, error) {
	switch k := SummaryKind(s); k {
	case SummaryPivot, SummaryWindow:
		return k, nil
	default:
		return "", fmt.Errorf("unknown summary kind %q", s)
	}
}

const (
	TotalRow     = "Total"
	ColumnYoY    = "Y/Y $"
	ColumnYoYPct = "Y/Y %"
	ColumnQoQ    = "Q/Q $"
	ColumnQoQPct = "Q/Q %"
)

// SummaryRow is one reason code of the summary table. Comparison cells are
// nil when they cannot be computed.
type SummaryRow struct {
	ReasonCode string
	Amounts    []float64
	YoY        *float64
	YoYPct     *float64
	QoQ        *float64
	QoQPct     *float64
}

// SummaryTable is the per reason code pivot users select cells from
type SummaryTable struct {
	Report  string
	Periods PeriodSet
	// Columns lists the period labels shown, followed by the comparison
	// columns.
	Columns []string
	Rows    []SummaryRow
}

// PeriodColumns returns the period labels shown in the table.
func (t SummaryTable) PeriodColumns() []string {
	n := len(t.Columns) - 4
	if n < 0 {
		return nil
	}
	return t.Columns[:n]
}

// Cell looks up a value by reason code and column label. ok is false when
// the row or column does not exist.
func (t SummaryTable) Cell(row, column string) (value *float64, ok bool) {
	periods := t.PeriodColumns()
	for _, r := range t.Rows {
		if r.ReasonCode != row {
			continue
		}
		switch column {
		case ColumnYoY:
			return r.YoY, true
		case ColumnYoYPct:
			return r.YoYPct, true
		case ColumnQoQ:
			return r.QoQ, true
		case ColumnQoQPct:
			return r.QoQPct, true
		}
		for i, p := range periods {
			if p == column && i < len(r.Amounts) {
				v := r.Amounts[i]
				return &v, true
			}
		}
		return nil, false
	}
	return nil, false
}
