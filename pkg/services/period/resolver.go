package period

import (
	"context"
	"fmt"
	"sort"
	"strconv"

	"github.com/de-tools/variance-atlas/pkg/models/domain"
	"github.com/de-tools/variance-atlas/pkg/store/warehouse"
	"github.com/rs/zerolog"
)

// minLabelLen is the shortest label carrying both a 4 digit year and a 2
// character sub-period marker, e.g. "2024Q1".
const minLabelLen = 6

type Resolver interface {
	Resolve(ctx context.Context, table domain.Table) (domain.PeriodSet, error)
}

type resolver struct {
	source warehouse.DataSource
}

func NewResolver(source warehouse.DataSource) Resolver {
	return &resolver{source: source}
}

func (r *resolver) Resolve(ctx context.Context, table domain.Table) (domain.PeriodSet, error) {
	labels, err := r.source.DistinctValues(ctx, table.Name, table.PeriodColumn)
	if err != nil {
		return domain.PeriodSet{}, fmt.Errorf("failed to list periods of %s: %w", table.Name, err)
	}

	periods, err := Derive(labels)
	if err != nil {
		return domain.PeriodSet{}, fmt.Errorf("table %s: %w", table.Name, err)
	}

	zerolog.Ctx(ctx).Debug().
		Str("table", table.Name).
		Str("current", periods.Current).
		Str("previous", periods.Previous).
		Str("year_ago", periods.YearAgo).
		Msg("resolved periods")
	return periods, nil
}

// Derive sorts the distinct labels and picks the comparison periods. Labels
// must sort lexicographically in time order.
func Derive(labels []string) (domain.PeriodSet, error) {
	seen := make(map[string]struct{}, len(labels))
	sorted := make([]string, 0, len(labels))
	for _, l := range labels {
		if _, ok := seen[l]; ok {
			continue
		}
		seen[l] = struct{}{}
		sorted = append(sorted, l)
	}
	sort.Strings(sorted)

	if len(sorted) < 2 {
		return domain.PeriodSet{}, fmt.Errorf("%w: found %d distinct periods, need at least 2",
			domain.ErrInsufficientData, len(sorted))
	}

	set := domain.PeriodSet{
		Labels:   sorted,
		Current:  sorted[len(sorted)-1],
		Previous: sorted[len(sorted)-2],
	}
	set.YearAgo = yearAgo(sorted, set.Current)
	return set, nil
}

func yearAgo(sorted []string, current string) string {
	year, marker, ok := split(current)
	if !ok {
		return ""
	}

	for i := len(sorted) - 1; i >= 0; i-- {
		y, m, ok := split(sorted[i])
		if ok && y == year-1 && m == marker {
			return sorted[i]
		}
	}
	return ""
}

// split returns the leading year and the trailing sub-period marker.
func split(label string) (year int, marker string, ok bool) {
	if len(label) < minLabelLen {
		return 0, "", false
	}
	year, err := strconv.Atoi(label[:4])
	if err != nil {
		return 0, "", false
	}
	return year, label[len(label)-2:], true
}
