package query

import (
	"bytes"
	"context"
	"fmt"
	"regexp"
	"slices"
	"sort"
	"strings"
	"text/template"

	"github.com/de-tools/variance-atlas/pkg/store/warehouse"
)

const generateTemplate = `You are an assistant that translates questions about a financial ledger into SQL.
Generate one {{.Dialect}} SQL query that answers the user's question.

Available tables:
{{.Schema}}
Rules:
- Only provide the SQL query and nothing else, no explanation and no markdown.
- Only read data: a single SELECT (or WITH ... SELECT) statement.
- Quote column names that contain spaces or mixed case.
{{if .LastError}}
The previous query failed. Fix this SQL query that gave an error and produce a corrected query.
Failing query:
{{.LastQuery}}
Error:
{{.LastError}}
{{end}}
User Question: {{.Question}}

SQL Query:`

var generatePrompt = template.Must(template.New("generate").Parse(generateTemplate))

type promptData struct {
	Dialect   string
	Schema    string
	Question  string
	LastQuery string
	LastError string
}

func renderPrompt(data promptData) (string, error) {
	var buf bytes.Buffer
	if err := generatePrompt.Execute(&buf, data); err != nil {
		return "", err
	}
	return buf.String(), nil
}

var fence = regexp.MustCompile("(?s)^```[a-zA-Z]*\\s*(.*?)\\s*```$")

// Sanitize strips markdown fences, whitespace and trailing semicolons from
// a generated query.
func Sanitize(text string) string {
	q := strings.TrimSpace(text)
	if m := fence.FindStringSubmatch(q); m != nil {
		q = m[1]
	}
	q = strings.TrimSpace(q)
	for strings.HasSuffix(q, ";") {
		q = strings.TrimSpace(strings.TrimSuffix(q, ";"))
	}
	return q
}

var readOnly = regexp.MustCompile(`(?i)^\s*(select|with)\b`)

// checkReadOnly rejects anything that is not a single SELECT statement.
func checkReadOnly(q string) error {
	if q == "" {
		return fmt.Errorf("empty query")
	}
	if !readOnly.MatchString(q) {
		return fmt.Errorf("only read-only SELECT statements are allowed")
	}
	if strings.Contains(q, ";") {
		return fmt.Errorf("multiple statements are not allowed")
	}
	return nil
}

// TableSpec names a table and optional column descriptions for the schema
// section of the prompt.
type TableSpec struct {
	Name         string
	Descriptions map[string]string
}

// DescribeTables lists the columns of every table using the data source.
func DescribeTables(ctx context.Context, source warehouse.DataSource, tables []TableSpec) (string, error) {
	var b strings.Builder
	for _, t := range tables {
		cols, err := source.Columns(ctx, t.Name)
		if err != nil {
			return "", fmt.Errorf("failed to describe %s: %w", t.Name, err)
		}

		fmt.Fprintf(&b, "Table %s:\n", t.Name)
		for _, c := range cols {
			if desc, ok := t.Descriptions[c]; ok && desc != "" {
				fmt.Fprintf(&b, "  - %q: %s\n", c, desc)
				continue
			}
			fmt.Fprintf(&b, "  - %q\n", c)
		}

		var unknown []string
		for c := range t.Descriptions {
			if !slices.Contains(cols, c) {
				unknown = append(unknown, c)
			}
		}
		if len(unknown) > 0 {
			sort.Strings(unknown)
			fmt.Fprintf(&b, "  (described but missing: %s)\n", strings.Join(unknown, ", "))
		}
	}
	return b.String(), nil
}
