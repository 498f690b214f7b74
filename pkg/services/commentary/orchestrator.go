package commentary

import (
	"context"
	"fmt"

	"github.com/de-tools/variance-atlas/pkg/models/domain"
	"github.com/de-tools/variance-atlas/pkg/services/formatter"
	"github.com/de-tools/variance-atlas/pkg/services/period"
	"github.com/de-tools/variance-atlas/pkg/services/reasoncode"
	"github.com/rs/zerolog"
)

type Attributor interface {
	TopAttributesFor(
		ctx context.Context,
		table domain.Table,
		periods domain.PeriodSet,
		specs []domain.ComparisonSpec,
		columns []string,
		topN int,
	) ([]domain.Attribution, error)
}

type Summarizer interface {
	Build(ctx context.Context, report domain.Report, periods domain.PeriodSet) (domain.SummaryTable, error)
}

type Writer interface {
	FormatAnswer(ctx context.Context, question, query string, result *domain.ResultSet) (string, error)
	FormatCommentary(ctx context.Context, in formatter.CommentaryInput) (string, error)
	Revise(ctx context.Context, instruction, current string, selections []domain.Selection) (string, error)
}

type Asker interface {
	Process(ctx context.Context, question string) domain.QueryOutcome
}

// Deps groups the services an Orchestrator drives.
type Deps struct {
	Resolver   period.Resolver
	Engine     Attributor
	Summaries  Summarizer
	// Identifier defaults to the report's TopMovers when nil.
	Identifier reasoncode.Identifier
	Writer     Writer
	Loop       Asker
}

// Orchestrator sequences period resolution, summary, attribution and
// formatting into commentary for a catalogue of reports. It keeps no state
// between calls.
type Orchestrator struct {
	deps    Deps
	reports map[string]domain.Report
	order   []string
}

func New(deps Deps, reports []domain.Report) (*Orchestrator, error) {
	switch {
	case deps.Resolver == nil:
		return nil, fmt.Errorf("period resolver is nil")
	case deps.Engine == nil:
		return nil, fmt.Errorf("attribution engine is nil")
	case deps.Summaries == nil:
		return nil, fmt.Errorf("summary builder is nil")
	case deps.Writer == nil:
		return nil, fmt.Errorf("formatter is nil")
	}
	o := &Orchestrator{deps: deps, reports: make(map[string]domain.Report, len(reports))}
	for _, r := range reports {
		if _, exists := o.reports[r.Name]; exists {
			return nil, fmt.Errorf("report %q is defined twice", r.Name)
		}
		o.reports[r.Name] = r
		o.order = append(o.order, r.Name)
	}
	return o, nil
}

// Reports lists the catalogue in configuration order.
func (o *Orchestrator) Reports() []domain.Report {
	reports := make([]domain.Report, 0, len(o.order))
	for _, name := range o.order {
		reports = append(reports, o.reports[name])
	}
	return reports
}

func (o *Orchestrator) Report(name string) (domain.Report, error) {
	r, ok := o.reports[name]
	if !ok {
		return domain.Report{}, fmt.Errorf("%w: %q", domain.ErrReportNotFound, name)
	}
	return r, nil
}

func (o *Orchestrator) Periods(ctx context.Context, name string) (domain.PeriodSet, error) {
	r, err := o.Report(name)
	if err != nil {
		return domain.PeriodSet{}, err
	}
	return o.deps.Resolver.Resolve(ctx, r.Table)
}

func (o *Orchestrator) Summary(ctx context.Context, name string) (domain.SummaryTable, error) {
	r, err := o.Report(name)
	if err != nil {
		return domain.SummaryTable{}, err
	}
	periods, err := o.deps.Resolver.Resolve(ctx, r.Table)
	if err != nil {
		return domain.SummaryTable{}, err
	}
	return o.deps.Summaries.Build(ctx, r, periods)
}

// Attribute ranks contributing attributes for the given selections without
// producing commentary. Empty columns or a non-positive topN use the report
// defaults.
func (o *Orchestrator) Attribute(
	ctx context.Context,
	name string,
	selections []domain.Selection,
	columns []string,
	topN int,
) ([]domain.Attribution, error) {
	r, err := o.Report(name)
	if err != nil {
		return nil, err
	}
	specs, err := domain.SpecsFromSelections(selections)
	if err != nil {
		return nil, err
	}
	periods, err := o.deps.Resolver.Resolve(ctx, r.Table)
	if err != nil {
		return nil, err
	}
	columns, topN = defaults(r, columns, topN)
	return o.deps.Engine.TopAttributesFor(ctx, r.Table, periods, specs, columns, topN)
}

// GenerateInitial produces the first commentary of a report. Selections come
// from hint when given, otherwise from the reason code identifier.
func (o *Orchestrator) GenerateInitial(ctx context.Context, name string, hint []domain.Selection) (domain.Commentary, error) {
	r, err := o.Report(name)
	if err != nil {
		return domain.Commentary{}, err
	}
	if _, err := domain.SpecsFromSelections(hint); err != nil {
		return domain.Commentary{}, err
	}
	return o.run(ctx, r, hint, r.ContributingColumns, r.TopN)
}

// Refresh recomputes commentary for caller supplied selections from scratch.
func (o *Orchestrator) Refresh(
	ctx context.Context,
	name string,
	selections []domain.Selection,
	columns []string,
	topN int,
) (domain.Commentary, error) {
	r, err := o.Report(name)
	if err != nil {
		return domain.Commentary{}, err
	}
	if _, err := domain.SpecsFromSelections(selections); err != nil {
		return domain.Commentary{}, err
	}
	columns, topN = defaults(r, columns, topN)
	return o.run(ctx, r, selections, columns, topN)
}

// Modify rewrites commentary following a free text instruction. The result
// is not re-validated against the data.
func (o *Orchestrator) Modify(ctx context.Context, instruction, current string, selections []domain.Selection) (string, error) {
	if instruction == "" {
		return "", fmt.Errorf("instruction is empty")
	}
	return o.deps.Writer.Revise(ctx, instruction, current, selections)
}

// Ask answers a free text question through the query translation loop. A
// question the loop could not answer is not an error: the answer carries the
// explanation and the failed outcome.
func (o *Orchestrator) Ask(ctx context.Context, question string) (domain.Answer, error) {
	if o.deps.Loop == nil {
		return domain.Answer{}, fmt.Errorf("question answering is not configured")
	}

	outcome := o.deps.Loop.Process(ctx, question)
	if !outcome.Succeeded() {
		zerolog.Ctx(ctx).Info().
			Err(outcome.Err).
			Int("attempts", outcome.AttemptCount).
			Msg("question could not be answered")
		return domain.Answer{Text: outcome.Explanation, Outcome: outcome}, nil
	}

	text, err := o.deps.Writer.FormatAnswer(ctx, question, outcome.Query, outcome.Result)
	if err != nil {
		return domain.Answer{Outcome: outcome}, err
	}
	return domain.Answer{Text: text, Outcome: outcome}, nil
}

func (o *Orchestrator) run(
	ctx context.Context,
	r domain.Report,
	selections []domain.Selection,
	columns []string,
	topN int,
) (domain.Commentary, error) {
	logger := zerolog.Ctx(ctx).With().Str("report", r.Name).Logger()

	periods, err := o.deps.Resolver.Resolve(ctx, r.Table)
	if err != nil {
		return domain.Commentary{}, err
	}

	summary, err := o.deps.Summaries.Build(ctx, r, periods)
	if err != nil {
		return domain.Commentary{}, err
	}

	if len(selections) == 0 {
		var identifier reasoncode.Identifier = reasoncode.TopMovers{PerColumn: r.Movers}
		if o.deps.Identifier != nil {
			identifier = o.deps.Identifier
		}
		selections, err = identifier.Identify(ctx, summary)
		if err != nil {
			return domain.Commentary{}, fmt.Errorf("failed to identify reason codes: %w", err)
		}
		logger.Debug().Int("selections", len(selections)).Msg("identified reason codes")
	}

	selections = withObservedValues(selections, summary)

	specs, err := domain.SpecsFromSelections(selections)
	if err != nil {
		return domain.Commentary{}, err
	}

	attributions, err := o.deps.Engine.TopAttributesFor(ctx, r.Table, periods, specs, columns, topN)
	if err != nil {
		return domain.Commentary{}, err
	}

	in := formatter.CommentaryInput{
		Report:       r.Name,
		Periods:      periods,
		Selections:   selections,
		Attributions: attributions,
	}
	in.TotalYoY, _ = summary.Cell(domain.TotalRow, domain.ColumnYoY)
	in.TotalQoQ, _ = summary.Cell(domain.TotalRow, domain.ColumnQoQ)

	text, err := o.deps.Writer.FormatCommentary(ctx, in)
	if err != nil {
		return domain.Commentary{}, err
	}

	logger.Info().Int("attributions", len(attributions)).Msg("generated commentary")
	return domain.Commentary{
		Report:       r.Name,
		Text:         text,
		Periods:      periods,
		Selections:   selections,
		Attributions: attributions,
	}, nil
}

// withObservedValues copies the summary cell into selections that arrive
// without a value, such as those parsed from the command line.
func withObservedValues(selections []domain.Selection, summary domain.SummaryTable) []domain.Selection {
	filled := make([]domain.Selection, len(selections))
	for i, sel := range selections {
		if sel.Value == 0 {
			if v, ok := summary.Cell(sel.RowKey, sel.ColumnKey); ok && v != nil {
				sel.Value = *v
			}
		}
		filled[i] = sel
	}
	return filled
}

func defaults(r domain.Report, columns []string, topN int) ([]string, int) {
	if len(columns) == 0 {
		columns = r.ContributingColumns
	}
	if topN <= 0 {
		topN = r.TopN
	}
	return columns, topN
}
