package warehouse

import (
	"fmt"
	"strconv"
	"strings"
)

// Dialect captures the identifier quoting and bind parameter style of a
// SQL engine.
type Dialect struct {
	Name     string
	quote    byte
	numbered bool
}

var (
	DialectDatabricks = Dialect{Name: "databricks", quote: '`'}
	DialectSnowflake  = Dialect{Name: "snowflake", quote: '"'}
	DialectPostgres   = Dialect{Name: "postgres", quote: '"', numbered: true}
	DialectSQLite     = Dialect{Name: "sqlite", quote: '"'}
	DialectDuckDB     = Dialect{Name: "duckdb", quote: '"'}
)

// Quote returns ident as a single quoted identifier. Dots are part of the
// name, so a column called "Net.Sales" stays one column.
func (d Dialect) Quote(ident string) (string, error) {
	if strings.TrimSpace(ident) == "" {
		return "", fmt.Errorf("empty identifier")
	}
	for _, r := range ident {
		if r == rune(d.quote) || r == '"' || r == '`' || r < 0x20 {
			return "", fmt.Errorf("invalid character in identifier %q", ident)
		}
	}
	return string(d.quote) + ident + string(d.quote), nil
}

// QuoteTable quotes a possibly schema qualified table name part by part.
func (d Dialect) QuoteTable(name string) (string, error) {
	if strings.TrimSpace(name) == "" {
		return "", fmt.Errorf("empty table name")
	}

	parts := strings.Split(name, ".")
	quoted := make([]string, len(parts))
	for i, p := range parts {
		if p == "" {
			return "", fmt.Errorf("invalid table name %q", name)
		}
		q, err := d.Quote(p)
		if err != nil {
			return "", err
		}
		quoted[i] = q
	}
	return strings.Join(quoted, "."), nil
}

// QuoteAll quotes every column identifier, stopping at the first invalid one.
func (d Dialect) QuoteAll(idents ...string) ([]string, error) {
	out := make([]string, len(idents))
	for i, id := range idents {
		q, err := d.Quote(id)
		if err != nil {
			return nil, err
		}
		out[i] = q
	}
	return out, nil
}

// Placeholder returns the bind marker for the n-th (1 based) parameter.
func (d Dialect) Placeholder(n int) string {
	if d.numbered {
		return "$" + strconv.Itoa(n)
	}
	return "?"
}

// Placeholders returns count comma separated markers starting at start.
func (d Dialect) Placeholders(start, count int) string {
	markers := make([]string, count)
	for i := range markers {
		markers[i] = d.Placeholder(start + i)
	}
	return strings.Join(markers, ", ")
}
