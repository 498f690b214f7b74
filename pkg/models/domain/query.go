package domain

import (
	"fmt"
	"strings"
)

type QueryState string

const (
	QueryStateGenerating      QueryState = "GENERATING"
	QueryStateExecuting       QueryState = "EXECUTING"
	QueryStateSucceeded       QueryState = "SUCCEEDED"
	QueryStateFailedRetryable QueryState = "FAILED_RETRYABLE"
	QueryStateFailedTerminal  QueryState = "FAILED_TERMINAL"
)

// ResultSet is a tabular query result
type ResultSet struct {
	Columns   []string
	Rows      [][]any
	Truncated bool
}

// Text renders at most maxRows rows as a pipe separated table.
func (r *ResultSet) Text(maxRows int) string {
	if r == nil {
		return "(no result)"
	}

	var b strings.Builder
	b.WriteString(strings.Join(r.Columns, " | "))
	b.WriteString("\n")

	for i, row := range r.Rows {
		if maxRows > 0 && i >= maxRows {
			fmt.Fprintf(&b, "... %d more rows\n", len(r.Rows)-maxRows)
			break
		}
		cells := make([]string, len(row))
		for j, v := range row {
			if v == nil {
				cells[j] = "NULL"
				continue
			}
			cells[j] = fmt.Sprint(v)
		}
		b.WriteString(strings.Join(cells, " | "))
		b.WriteString("\n")
	}

	if r.Truncated {
		b.WriteString("(result truncated)\n")
	}
	return b.String()
}

type QueryAttempt struct {
	Index int
	Query string
	Err   error
}

// QueryOutcome is what the translation loop hands back for one question.
// Exactly one of Result or Err is set.
type QueryOutcome struct {
	Question     string
	Query        string
	Result       *ResultSet
	Explanation  string
	Err          error
	Attempts     []QueryAttempt
	AttemptCount int
}

func (o QueryOutcome) Succeeded() bool {
	return o.Err == nil && o.Result != nil
}

// Answer is a formatted reply to a free text question.
type Answer struct {
	Text    string
	Outcome QueryOutcome
}
