package formatter

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"strings"
	"text/template"

	"github.com/de-tools/variance-atlas/pkg/llm"
	"github.com/de-tools/variance-atlas/pkg/models/domain"
	"github.com/rs/zerolog"
)

// promptRows caps the result rows rendered into an answer prompt.
const promptRows = 50

var errEmptyResponse = errors.New("llm returned an empty response")

// Formatter turns structured results into text with exactly one LLM call
// per method. Failures are never retried.
type Formatter struct {
	llm       llm.Service
	templates *template.Template
}

// CommentaryInput is everything the commentary prompt explains.
type CommentaryInput struct {
	Report       string
	Periods      domain.PeriodSet
	Selections   []domain.Selection
	Attributions []domain.Attribution
	// TotalYoY and TotalQoQ come from the summary Total row; nil when
	// unknown.
	TotalYoY *float64
	TotalQoQ *float64
}

func New(llmSvc llm.Service) *Formatter {
	funcs := template.FuncMap{
		"amount": func(v *float64) string {
			if v == nil {
				return "not available"
			}
			return fmt.Sprintf("%.2f", *v)
		},
		"signed": func(v float64) string {
			return fmt.Sprintf("%+.2f", v)
		},
		// a selection value of zero was never observed
		"observed": func(v float64) string {
			if v == 0 {
				return "not available"
			}
			return fmt.Sprintf("%+.2f", v)
		},
	}

	t := template.New("prompts").Funcs(funcs)
	template.Must(t.New("answer").Parse(answerTemplate))
	template.Must(t.New("failure").Parse(failureTemplate))
	template.Must(t.New("commentary").Parse(commentaryTemplate))
	template.Must(t.New("revise").Parse(reviseTemplate))

	return &Formatter{llm: llmSvc, templates: t}
}

func (f *Formatter) FormatAnswer(ctx context.Context, question, query string, result *domain.ResultSet) (string, error) {
	return f.complete(ctx, "answer", map[string]any{
		"Question": question,
		"Query":    query,
		"Result":   result.Text(promptRows),
	})
}

// ExplainFailure writes a user facing explanation of a query that could not
// be produced. The prompt always carries the attempt count and last error.
func (f *Formatter) ExplainFailure(
	ctx context.Context,
	question string,
	attempts int,
	lastQuery string,
	lastErr error,
) (string, error) {
	errText := "unknown error"
	if lastErr != nil {
		errText = lastErr.Error()
	}
	if lastQuery == "" {
		lastQuery = "(none generated)"
	}

	return f.complete(ctx, "failure", map[string]any{
		"Question":  question,
		"Attempts":  attempts,
		"LastQuery": lastQuery,
		"LastError": errText,
	})
}

type commentarySection struct {
	Reason     string
	Comparison domain.ComparisonType
	Periods    string
	Value      *float64
	Available  bool
	Deltas     []domain.AttributeDelta
}

func (f *Formatter) FormatCommentary(ctx context.Context, in CommentaryInput) (string, error) {
	values := make(map[domain.ComparisonSpec]float64, len(in.Selections))
	for _, sel := range in.Selections {
		if spec, err := sel.ComparisonSpec(); err == nil {
			values[spec] = sel.Value
		}
	}

	// Y/Y sections first, matching the order the commentary is written in.
	var sections []commentarySection
	for _, ct := range []domain.ComparisonType{domain.YearOverYear, domain.QuarterOverQuarter} {
		for _, a := range in.Attributions {
			if a.Spec.Comparison != ct {
				continue
			}
			s := commentarySection{
				Reason:     a.Spec.ReasonCode,
				Comparison: ct,
				Periods:    fmt.Sprintf("%s vs %s", a.ComparePeriod, a.BasePeriod),
				Available:  a.Available,
				Deltas:     a.Deltas,
			}
			if v, ok := values[a.Spec]; ok && v != 0 {
				s.Value = &v
			}
			sections = append(sections, s)
		}
	}

	return f.complete(ctx, "commentary", map[string]any{
		"Report":   in.Report,
		"Periods":  in.Periods,
		"TotalYoY": in.TotalYoY,
		"TotalQoQ": in.TotalQoQ,
		"Sections": sections,
	})
}

// Revise rewrites current according to a free text instruction. The output
// is not validated against the original figures.
func (f *Formatter) Revise(ctx context.Context, instruction, current string, selections []domain.Selection) (string, error) {
	return f.complete(ctx, "revise", map[string]any{
		"Instruction": instruction,
		"Current":     current,
		"Selections":  selections,
	})
}

func (f *Formatter) complete(ctx context.Context, name string, data any) (string, error) {
	var buf bytes.Buffer
	if err := f.templates.ExecuteTemplate(&buf, name, data); err != nil {
		return "", &domain.FormattingError{Err: fmt.Errorf("failed to render %s prompt: %w", name, err)}
	}

	text, err := f.llm.Complete(ctx, buf.String())
	if err != nil {
		zerolog.Ctx(ctx).Error().Err(err).Str("prompt", name).Msg("formatting failed")
		return "", &domain.FormattingError{Err: err}
	}

	text = strings.TrimSpace(text)
	if text == "" {
		return "", &domain.FormattingError{Err: errEmptyResponse}
	}
	return text, nil
}
