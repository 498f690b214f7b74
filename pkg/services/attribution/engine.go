package attribution

import (
	"context"
	"fmt"
	"math"
	"sort"

	"github.com/de-tools/variance-atlas/pkg/models/domain"
	"github.com/de-tools/variance-atlas/pkg/models/store"
	"github.com/de-tools/variance-atlas/pkg/services/period"
	"github.com/de-tools/variance-atlas/pkg/store/ledger"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"
)

const defaultWorkers = 4

// Engine decomposes reason code movements into contributing attribute
// deltas.
type Engine struct {
	resolver period.Resolver
	ledger   ledger.Store
	workers  int
}

type Option func(*Engine)

// WithWorkers bounds the number of contributing columns aggregated
// concurrently.
func WithWorkers(n int) Option {
	return func(e *Engine) {
		if n > 0 {
			e.workers = n
		}
	}
}

func NewEngine(resolver period.Resolver, ledger ledger.Store, opts ...Option) *Engine {
	e := &Engine{
		resolver: resolver,
		ledger:   ledger,
		workers:  defaultWorkers,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// TopAttributes returns one Attribution per distinct spec, in input order.
// Each carries at most topN deltas sorted by descending absolute difference.
func (e *Engine) TopAttributes(
	ctx context.Context,
	table domain.Table,
	specs []domain.ComparisonSpec,
	columns []string,
	topN int,
) ([]domain.Attribution, error) {
	for _, spec := range specs {
		if !spec.Comparison.Valid() {
			return nil, &domain.UnknownComparisonTypeError{Value: string(spec.Comparison)}
		}
	}

	periods, err := e.resolver.Resolve(ctx, table)
	if err != nil {
		return nil, err
	}

	return e.attribute(ctx, table, periods, specs, columns, topN)
}

// TopAttributesFor is TopAttributes with periods already resolved.
func (e *Engine) TopAttributesFor(
	ctx context.Context,
	table domain.Table,
	periods domain.PeriodSet,
	specs []domain.ComparisonSpec,
	columns []string,
	topN int,
) ([]domain.Attribution, error) {
	for _, spec := range specs {
		if !spec.Comparison.Valid() {
			return nil, &domain.UnknownComparisonTypeError{Value: string(spec.Comparison)}
		}
	}
	return e.attribute(ctx, table, periods, specs, columns, topN)
}

func (e *Engine) attribute(
	ctx context.Context,
	table domain.Table,
	periods domain.PeriodSet,
	specs []domain.ComparisonSpec,
	columns []string,
	topN int,
) ([]domain.Attribution, error) {
	logger := zerolog.Ctx(ctx)

	seen := make(map[domain.ComparisonSpec]struct{}, len(specs))
	results := make([]domain.Attribution, 0, len(specs))
	for _, spec := range specs {
		if _, ok := seen[spec]; ok {
			continue
		}
		seen[spec] = struct{}{}

		base, compare, available, err := periods.Window(spec.Comparison)
		if err != nil {
			return nil, err
		}

		attr := domain.Attribution{
			Spec:          spec,
			BasePeriod:    base,
			ComparePeriod: compare,
			Available:     available,
		}
		if !available {
			logger.Info().
				Str("reason_code", spec.ReasonCode).
				Str("comparison", string(spec.Comparison)).
				Msg("no year-ago period, comparison unavailable")
			results = append(results, attr)
			continue
		}

		deltas, err := e.collect(ctx, table, spec.ReasonCode, base, compare, columns)
		if err != nil {
			return nil, fmt.Errorf("failed to attribute %s: %w", spec, err)
		}
		attr.Deltas = Rank(deltas, topN)
		results = append(results, attr)
	}

	return results, nil
}

// collect aggregates every column concurrently and merges the deltas in
// column order once all of them are done.
func (e *Engine) collect(
	ctx context.Context,
	table domain.Table,
	reasonCode, base, compare string,
	columns []string,
) ([]domain.AttributeDelta, error) {
	perColumn := make([][]domain.AttributeDelta, len(columns))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(e.workers)
	for i, column := range columns {
		g.Go(func() error {
			amounts, err := e.ledger.AmountsByAttribute(gctx, table, reasonCode, column, []string{base, compare})
			if err != nil {
				return err
			}
			perColumn[i] = Diff(column, amounts, base, compare)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	var merged []domain.AttributeDelta
	for _, deltas := range perColumn {
		merged = append(merged, deltas...)
	}
	return merged, nil
}

// Diff pairs base and compare amounts per attribute in first-seen order. An
// attribute missing from one period counts as zero there.
func Diff(column string, amounts []store.AttributeAmount, base, compare string) []domain.AttributeDelta {
	index := make(map[string]int)
	var deltas []domain.AttributeDelta

	for _, a := range amounts {
		if a.Period != base && a.Period != compare {
			continue
		}

		i, ok := index[a.Attribute]
		if !ok {
			i = len(deltas)
			index[a.Attribute] = i
			deltas = append(deltas, domain.AttributeDelta{Column: column, Attribute: a.Attribute})
		}

		if a.Period == base {
			deltas[i].Base += a.Amount
		} else {
			deltas[i].Compare += a.Amount
		}
	}

	for i := range deltas {
		deltas[i].Difference = deltas[i].Compare - deltas[i].Base
	}
	return deltas
}

// Rank drops zero differences, orders by absolute difference descending and
// keeps at most topN. Ties keep their input order.
func Rank(deltas []domain.AttributeDelta, topN int) []domain.AttributeDelta {
	if topN <= 0 {
		return []domain.AttributeDelta{}
	}

	ranked := make([]domain.AttributeDelta, 0, len(deltas))
	for _, d := range deltas {
		if d.Difference != 0 {
			ranked = append(ranked, d)
		}
	}

	sort.SliceStable(ranked, func(i, j int) bool {
		return math.Abs(ranked[i].Difference) > math.Abs(ranked[j].Difference)
	})

	if len(ranked) > topN {
		ranked = ranked[:topN]
	}
	return ranked
}
