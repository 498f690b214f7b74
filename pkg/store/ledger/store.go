package ledger

import (
	"context"
	"errors"
	"fmt"

	"github.com/de-tools/variance-atlas/pkg/models/domain"
	"github.com/de-tools/variance-atlas/pkg/models/store"
	"github.com/de-tools/variance-atlas/pkg/store/warehouse"
)

// NullAttribute labels rows whose contributing column is NULL.
const NullAttribute = "(null)"

var errRowLimit = errors.New("aggregate exceeded the warehouse row limit, raise warehouse.max_rows")

// Store aggregates ledger amounts. Literal values are always bound as
// parameters; identifiers go through the dialect's quoting.
type Store interface {
	// AmountsByAttribute sums the amount of reasonCode grouped by period and
	// by the values of column, restricted to periods. Rows are ordered by
	// attribute then period.
	AmountsByAttribute(
		ctx context.Context,
		table domain.Table,
		reasonCode, column string,
		periods []string,
	) ([]store.AttributeAmount, error)
	// AmountsByReason sums the amount grouped by reason code and period.
	AmountsByReason(ctx context.Context, table domain.Table) ([]store.ReasonAmount, error)
}

type ledgerStore struct {
	source warehouse.DataSource
}

func NewStore(source warehouse.DataSource) (Store, error) {
	if source == nil {
		return nil, fmt.Errorf("data source is nil")
	}
	return &ledgerStore{source: source}, nil
}

func (s *ledgerStore) AmountsByAttribute(
	ctx context.Context,
	table domain.Table,
	reasonCode, column string,
	periods []string,
) ([]store.AttributeAmount, error) {
	if len(periods) == 0 {
		return nil, nil
	}

	d := s.source.Dialect()
	tbl, err := d.QuoteTable(table.Name)
	if err != nil {
		return nil, err
	}
	idents, err := d.QuoteAll(table.PeriodColumn, table.ReasonColumn, table.AmountColumn, column)
	if err != nil {
		return nil, err
	}
	period, reason, amount, attr := idents[0], idents[1], idents[2], idents[3]

	query := fmt.Sprintf(`SELECT %[1]s, %[2]s, SUM(%[3]s)
		FROM %[4]s
		WHERE %[5]s = %[6]s AND %[1]s IN (%[7]s)
		GROUP BY %[1]s, %[2]s
		ORDER BY %[2]s, %[1]s`,
		period, attr, amount, tbl, reason, d.Placeholder(1), d.Placeholders(2, len(periods)))

	args := make([]any, 0, len(periods)+1)
	args = append(args, reasonCode)
	for _, p := range periods {
		args = append(args, p)
	}

	result, err := s.source.Run(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	if result.Truncated {
		return nil, &domain.QueryExecutionError{Query: query, Err: errRowLimit}
	}

	amounts := make([]store.AttributeAmount, 0, len(result.Rows))
	for _, row := range result.Rows {
		if len(row) != 3 {
			return nil, &domain.QueryExecutionError{Query: query, Err: fmt.Errorf("expected 3 columns, got %d", len(row))}
		}
		p, _ := warehouse.AsString(row[0])
		a, ok := warehouse.AsString(row[1])
		if !ok {
			a = NullAttribute
		}
		v, err := warehouse.AsFloat(row[2])
		if err != nil {
			return nil, &domain.QueryExecutionError{Query: query, Err: err}
		}
		amounts = append(amounts, store.AttributeAmount{Period: p, Attribute: a, Amount: v})
	}
	return amounts, nil
}

func (s *ledgerStore) AmountsByReason(ctx context.Context, table domain.Table) ([]store.ReasonAmount, error) {
	d := s.source.Dialect()
	tbl, err := d.QuoteTable(table.Name)
	if err != nil {
		return nil, err
	}
	idents, err := d.QuoteAll(table.PeriodColumn, table.ReasonColumn, table.AmountColumn)
	if err != nil {
		return nil, err
	}
	period, reason, amount := idents[0], idents[1], idents[2]

	query := fmt.Sprintf(`SELECT %[1]s, %[2]s, SUM(%[3]s)
		FROM %[4]s
		WHERE %[1]s IS NOT NULL AND %[2]s IS NOT NULL
		GROUP BY %[1]s, %[2]s
		ORDER BY %[1]s, %[2]s`,
		reason, period, amount, tbl)

	result, err := s.source.Run(ctx, query)
	if err != nil {
		return nil, err
	}
	if result.Truncated {
		return nil, &domain.QueryExecutionError{Query: query, Err: errRowLimit}
	}

	amounts := make([]store.ReasonAmount, 0, len(result.Rows))
	for _, row := range result.Rows {
		if len(row) != 3 {
			return nil, &domain.QueryExecutionError{Query: query, Err: fmt.Errorf("expected 3 columns, got %d", len(row))}
		}
		r, _ := warehouse.AsString(row[0])
		p, _ := warehouse.AsString(row[1])
		v, err := warehouse.AsFloat(row[2])
		if err != nil {
			return nil, &domain.QueryExecutionError{Query: query, Err: err}
		}
		amounts = append(amounts, store.ReasonAmount{ReasonCode: r, Period: p, Amount: v})
	}
	return amounts, nil
}
