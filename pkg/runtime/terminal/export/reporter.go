package export

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"
	"text/template"

	"github.com/de-tools/variance-atlas/pkg/models/domain"
	"github.com/de-tools/variance-atlas/pkg/models/store"
	"github.com/de-tools/variance-atlas/pkg/services/ingest"
)

type TableConfig struct {
	LabelWidth int
	ValueWidth int
	// MaxRows caps the rows printed for ad hoc query results.
	MaxRows int
}

func DefaultTableConfig() TableConfig {
	return TableConfig{
		LabelWidth: 24,
		ValueWidth: 14,
		MaxRows:    50,
	}
}

// Reporter renders workflow results for the terminal.
type Reporter struct {
	writer io.Writer
	config TableConfig
	tmpl   *template.Template
}

func NewReporter(writer io.Writer) *Reporter {
	if writer == nil {
		writer = os.Stdout
	}
	c := &Reporter{
		writer: writer,
		config: DefaultTableConfig(),
	}
	c.tmpl = template.Must(template.New("export").Funcs(c.funcs()).Parse(templates))
	return c
}

func (c *Reporter) funcs() template.FuncMap {
	cell := func(v any) string {
		switch x := v.(type) {
		case *float64:
			if x == nil {
				return "-"
			}
			return fmt.Sprintf("%.2f", *x)
		case float64:
			return fmt.Sprintf("%.2f", x)
		default:
			return fmt.Sprint(v)
		}
	}
	return template.FuncMap{
		"label": func(s string) string {
			return fmt.Sprintf("%-*s", c.config.LabelWidth, s)
		},
		"value": func(v any) string {
			return fmt.Sprintf("%*s", c.config.ValueWidth, cell(v))
		},
		"separator": func(columns int) string {
			return strings.Repeat("-", c.config.LabelWidth+columns*(c.config.ValueWidth+1))
		},
		"cells": func(t domain.SummaryTable, row string) []*float64 {
			out := make([]*float64, 0, len(t.Columns))
			for _, col := range t.Columns {
				v, _ := t.Cell(row, col)
				out = append(out, v)
			}
			return out
		},
		"join": strings.Join,
		"deref": func(s *string) string {
			if s == nil {
				return ""
			}
			return *s
		},
		"resultText": func(r *domain.ResultSet) string {
			return r.Text(c.config.MaxRows)
		},
	}
}

const templates = `
{{define "reports"}}{{range .}}{{.Name}}
  table:        {{.Table.Name}}
  columns:      {{.Table.PeriodColumn}}, {{.Table.ReasonColumn}}, {{.Table.AmountColumn}}
  contributing: {{join .ContributingColumns ", "}}
  top n:        {{.TopN}}
  summary:      {{.Summary}}
{{end}}{{end}}

{{define "periods"}}Periods:  {{join .Labels ", "}}
Current:  {{.Current}}
Previous: {{.Previous}}
Year ago: {{if .HasYearAgo}}{{.YearAgo}}{{else}}(none){{end}}
{{end}}

{{define "summary"}}{{$t := .}}{{label "Reason Code"}}{{range .Columns}} {{value .}}{{end}}
{{separator (len .Columns)}}
{{range .Rows}}{{label .ReasonCode}}{{range cells $t .ReasonCode}} {{value .}}{{end}}
{{end}}{{end}}

{{define "attributions"}}{{range .}}
=== {{.Spec}} ({{.BasePeriod}} -> {{.ComparePeriod}}) ===
{{if not .Available}}  comparison unavailable: no data for the base period
{{else if not .Deltas}}  no movement
{{else}}{{label "Attribute"}} {{value "Base"}} {{value "Compare"}} {{value "Change"}}
{{range .Deltas}}{{label (printf "%s: %s" .Column .Attribute)}} {{value .Base}} {{value .Compare}} {{value .Difference}}
{{end}}{{end}}{{end}}{{end}}

{{define "commentary"}}{{.Text}}
{{if .Selections}}
Selections:
{{range .Selections}}  - {{.}}
{{end}}{{end}}{{end}}

{{define "answer"}}{{.Text}}
{{with .Outcome}}{{if .Query}}
Query:
  {{.Query}}
{{end}}{{if .Result}}
{{resultText .Result}}{{end}}{{if .Err}}
Attempts: {{.AttemptCount}}
Error: {{.Err}}
{{end}}{{end}}{{end}}

{{define "ingested"}}Loaded {{.Rows}} rows into {{join .Columns ", "}} (run {{.RunID}})
{{end}}

{{define "runs"}}{{range .}}{{.StartedAt.Format "2006-01-02 15:04:05"}}  {{printf "%-9s" .Status}} {{printf "%-20s" .Table}} {{printf "%8d" .Rows}}  {{.Source}}{{with deref .Error}}
    error: {{.}}{{end}}
{{end}}{{end}}
`

func (c *Reporter) render(name string, data any) error {
	if err := c.tmpl.ExecuteTemplate(c.writer, name, data); err != nil {
		return fmt.Errorf("failed to render %s: %w", name, err)
	}
	return nil
}

func (c *Reporter) Reports(reports []domain.Report) error { return c.render("reports", reports) }

func (c *Reporter) Periods(p domain.PeriodSet) error { return c.render("periods", p) }

func (c *Reporter) Summary(t domain.SummaryTable) error { return c.render("summary", t) }

func (c *Reporter) Attributions(a []domain.Attribution) error { return c.render("attributions", a) }

func (c *Reporter) Commentary(cm domain.Commentary) error { return c.render("commentary", cm) }

func (c *Reporter) Answer(a domain.Answer) error { return c.render("answer", a) }

func (c *Reporter) Ingested(r ingest.Result) error { return c.render("ingested", r) }

func (c *Reporter) Runs(runs []store.IngestRun) error { return c.render("runs", runs) }

// Text prints s followed by a newline.
func (c *Reporter) Text(s string) error {
	_, err := fmt.Fprintln(c.writer, s)
	return err
}

// JSON writes v indented.
func (c *Reporter) JSON(v any) error {
	enc := json.NewEncoder(c.writer)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
