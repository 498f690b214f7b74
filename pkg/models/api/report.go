package api

import "time"

type Report struct {
	Name                string            `json:"name"`
	Table               string            `json:"table"`
	PeriodColumn        string            `json:"period_column"`
	ReasonColumn        string            `json:"reason_column"`
	AmountColumn        string            `json:"amount_column"`
	ContributingColumns []string          `json:"contributing_columns"`
	TopN                int               `json:"top_n"`
	Summary             string            `json:"summary"`
	Metadata            map[string]string `json:"metadata,omitempty"`
}

type PeriodSet struct {
	Labels   []string `json:"labels"`
	Current  string   `json:"current"`
	Previous string   `json:"previous"`
	YearAgo  *string  `json:"year_ago"`
}

// SummaryRow holds one value per column of the enclosing table, null where
// the value cannot be computed.
type SummaryRow struct {
	ReasonCode string     `json:"reason_code"`
	Values     []*float64 `json:"values"`
}

type SummaryTable struct {
	Report  string       `json:"report"`
	Periods PeriodSet    `json:"periods"`
	Columns []string     `json:"columns"`
	Rows    []SummaryRow `json:"rows"`
}

type Selection struct {
	RowKey    string  `json:"row_key"`
	ColumnKey string  `json:"column_key"`
	Value     float64 `json:"value"`
}

type AttributeDelta struct {
	Column     string  `json:"column"`
	Attribute  string  `json:"attribute"`
	Base       float64 `json:"base"`
	Compare    float64 `json:"compare"`
	Difference float64 `json:"difference"`
}

type Attribution struct {
	ReasonCode    string           `json:"reason_code"`
	Comparison    string           `json:"comparison"`
	BasePeriod    string           `json:"base_period"`
	ComparePeriod string           `json:"compare_period"`
	Available     bool             `json:"available"`
	Deltas        []AttributeDelta `json:"deltas"`
}

type Commentary struct {
	Report       string        `json:"report"`
	Text         string        `json:"text"`
	Periods      PeriodSet     `json:"periods"`
	Selections   []Selection   `json:"selections"`
	Attributions []Attribution `json:"attributions"`
}

type AttributionRequest struct {
	Selections          []Selection `json:"selections"`
	ContributingColumns []string    `json:"contributing_columns"`
	TopN                int         `json:"top_n"`
}

type CommentaryRequest struct {
	Selections []Selection `json:"selections"`
}

type ModifyRequest struct {
	Instruction string      `json:"instruction"`
	Commentary  string      `json:"commentary"`
	Selections  []Selection `json:"selections"`
}

type ModifyResponse struct {
	Text string `json:"text"`
}

type AskRequest struct {
	Question string `json:"question"`
}

type QueryAttempt struct {
	Index int    `json:"index"`
	Query string `json:"query"`
	Error string `json:"error,omitempty"`
}

type Answer struct {
	Text      string         `json:"text"`
	Answered  bool           `json:"answered"`
	Query     string         `json:"query,omitempty"`
	Columns   []string       `json:"columns,omitempty"`
	Rows      [][]any        `json:"rows,omitempty"`
	Truncated bool           `json:"truncated,omitempty"`
	Attempts  []QueryAttempt `json:"attempts"`
	Error     string         `json:"error,omitempty"`
}

type IngestRun struct {
	ID         string     `json:"id"`
	Table      string     `json:"table"`
	Source     string     `json:"source"`
	Mode       string     `json:"mode"`
	Rows       int64      `json:"rows"`
	Status     string     `json:"status"`
	Error      *string    `json:"error,omitempty"`
	StartedAt  time.Time  `json:"started_at"`
	FinishedAt *time.Time `json:"finished_at,omitempty"`
}

type Health struct {
	Status string `json:"status"`
}

type Error struct {
	Error string `json:"error"`
}
