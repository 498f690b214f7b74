package adapters

import (
	"github.com/de-tools/variance-atlas/pkg/models/api"
	"github.com/de-tools/variance-atlas/pkg/models/domain"
	"github.com/de-tools/variance-atlas/pkg/models/store"
)

func MapDomainReportToAPI(r domain.Report) api.Report {
	return api.Report{
		Name:                r.Name,
		Table:               r.Table.Name,
		PeriodColumn:        r.Table.PeriodColumn,
		ReasonColumn:        r.Table.ReasonColumn,
		AmountColumn:        r.Table.AmountColumn,
		ContributingColumns: r.ContributingColumns,
		TopN:                r.TopN,
		Summary:             string(r.Summary),
		Metadata:            r.Metadata,
	}
}

func MapDomainPeriodsToAPI(p domain.PeriodSet) api.PeriodSet {
	out := api.PeriodSet{
		Labels:   p.Labels,
		Current:  p.Current,
		Previous: p.Previous,
	}
	if p.HasYearAgo() {
		yearAgo := p.YearAgo
		out.YearAgo = &yearAgo
	}
	return out
}

func MapDomainSummaryToAPI(t domain.SummaryTable) api.SummaryTable {
	out := api.SummaryTable{
		Report:  t.Report,
		Periods: MapDomainPeriodsToAPI(t.Periods),
		Columns: t.Columns,
		Rows:    make([]api.SummaryRow, 0, len(t.Rows)),
	}
	for _, r := range t.Rows {
		values := make([]*float64, 0, len(t.Columns))
		for _, c := range t.Columns {
			v, _ := t.Cell(r.ReasonCode, c)
			values = append(values, v)
		}
		out.Rows = append(out.Rows, api.SummaryRow{ReasonCode: r.ReasonCode, Values: values})
	}
	return out
}

func MapAPISelectionsToDomain(selections []api.Selection) []domain.Selection {
	out := make([]domain.Selection, 0, len(selections))
	for _, s := range selections {
		out = append(out, domain.Selection{RowKey: s.RowKey, ColumnKey: s.ColumnKey, Value: s.Value})
	}
	return out
}

func MapDomainSelectionsToAPI(selections []domain.Selection) []api.Selection {
	out := make([]api.Selection, 0, len(selections))
	for _, s := range selections {
		out = append(out, api.Selection{RowKey: s.RowKey, ColumnKey: s.ColumnKey, Value: s.Value})
	}
	return out
}

func MapDomainAttributionsToAPI(attributions []domain.Attribution) []api.Attribution {
	out := make([]api.Attribution, 0, len(attributions))
	for _, a := range attributions {
		deltas := make([]api.AttributeDelta, 0, len(a.Deltas))
		for _, d := range a.Deltas {
			deltas = append(deltas, api.AttributeDelta{
				Column:     d.Column,
				Attribute:  d.Attribute,
				Base:       d.Base,
				Compare:    d.Compare,
				Difference: d.Difference,
			})
		}
		out = append(out, api.Attribution{
			ReasonCode:    a.Spec.ReasonCode,
			Comparison:    string(a.Spec.Comparison),
			BasePeriod:    a.BasePeriod,
			ComparePeriod: a.ComparePeriod,
			Available:     a.Available,
			Deltas:        deltas,
		})
	}
	return out
}

func MapDomainCommentaryToAPI(c domain.Commentary) api.Commentary {
	return api.Commentary{
		Report:       c.Report,
		Text:         c.Text,
		Periods:      MapDomainPeriodsToAPI(c.Periods),
		Selections:   MapDomainSelectionsToAPI(c.Selections),
		Attributions: MapDomainAttributionsToAPI(c.Attributions),
	}
}

func MapDomainAnswerToAPI(a domain.Answer) api.Answer {
	o := a.Outcome
	out := api.Answer{
		Text:     a.Text,
		Answered: o.Succeeded(),
		Query:    o.Query,
		Attempts: make([]api.QueryAttempt, 0, len(o.Attempts)),
	}
	if o.Result != nil {
		out.Columns = o.Result.Columns
		out.Rows = o.Result.Rows
		out.Truncated = o.Result.Truncated
	}
	if o.Err != nil {
		out.Error = o.Err.Error()
	}
	for _, at := range o.Attempts {
		qa := api.QueryAttempt{Index: at.Index, Query: at.Query}
		if at.Err != nil {
			qa.Error = at.Err.Error()
		}
		out.Attempts = append(out.Attempts, qa)
	}
	return out
}

func MapStoreIngestRunToAPI(r store.IngestRun) api.IngestRun {
	return api.IngestRun{
		ID:         r.ID,
		Table:      r.Table,
		Source:     r.Source,
		Mode:       r.Mode,
		Rows:       r.Rows,
		Status:     string(r.Status),
		Error:      r.Error,
		StartedAt:  r.StartedAt,
		FinishedAt: r.FinishedAt,
	}
}
