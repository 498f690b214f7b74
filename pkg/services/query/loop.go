package query

import (
	"context"
	"errors"
	"fmt"

	"github.com/de-tools/variance-atlas/pkg/llm"
	"github.com/de-tools/variance-atlas/pkg/models/domain"
	"github.com/de-tools/variance-atlas/pkg/store/warehouse"
	"github.com/rs/zerolog"
)

const DefaultMaxRetries = 10

// Explainer writes the user facing reply for a question that could not be
// answered.
type Explainer interface {
	ExplainFailure(ctx context.Context, question string, attempts int, lastQuery string, lastErr error) (string, error)
}

// Loop turns a natural language question into an executed SQL query,
// regenerating the query with the previous failure as feedback until it runs
// or the attempt budget is spent.
type Loop struct {
	llm        llm.Service
	source     warehouse.DataSource
	explainer  Explainer
	maxRetries int
	schema     func(ctx context.Context) (string, error)
}

type Option func(*Loop)

// WithMaxRetries bounds the number of attempts. Values below one mean a
// single attempt.
func WithMaxRetries(n int) Option {
	return func(l *Loop) {
		l.maxRetries = max(n, 1)
	}
}

// WithSchema sets the function producing the table description embedded in
// every generation prompt. It is evaluated once per question.
func WithSchema(schema func(ctx context.Context) (string, error)) Option {
	return func(l *Loop) {
		l.schema = schema
	}
}

func NewLoop(llmSvc llm.Service, source warehouse.DataSource, explainer Explainer, opts ...Option) (*Loop, error) {
	if llmSvc == nil {
		return nil, fmt.Errorf("llm service is nil")
	}
	if source == nil {
		return nil, fmt.Errorf("data source is nil")
	}

	l := &Loop{
		llm:        llmSvc,
		source:     source,
		explainer:  explainer,
		maxRetries: DefaultMaxRetries,
	}
	for _, opt := range opts {
		opt(l)
	}
	return l, nil
}

func (l *Loop) MaxRetries() int {
	return l.maxRetries
}

// Process runs the loop for one question. The returned outcome always
// carries every attempt made; on failure Err wraps domain.ErrRetriesExhausted.
func (l *Loop) Process(ctx context.Context, question string) domain.QueryOutcome {
	logger := zerolog.Ctx(ctx).With().Str("component", "query_loop").Logger()
	outcome := domain.QueryOutcome{Question: question}

	schema, err := l.describe(ctx)
	if err != nil {
		logger.Warn().Err(err).Msg("schema description unavailable")
	}

	var lastQuery string
	var lastErr error

	for attempt := 1; attempt <= l.maxRetries; attempt++ {
		if err := ctx.Err(); err != nil {
			lastErr = err
			break
		}

		state := domain.QueryStateGenerating
		query, err := l.generate(ctx, promptData{
			Dialect:   l.source.Dialect().Name,
			Schema:    schema,
			Question:  question,
			LastQuery: lastQuery,
			LastError: errText(lastErr),
		})
		if err == nil {
			state = domain.QueryStateExecuting
			var result *domain.ResultSet
			if result, err = l.source.Run(ctx, query); err == nil {
				outcome.Attempts = append(outcome.Attempts, domain.QueryAttempt{Index: attempt, Query: query})
				outcome.AttemptCount = attempt
				outcome.Query = query
				outcome.Result = result
				logger.Info().Int("attempt", attempt).Str("state", string(domain.QueryStateSucceeded)).Msg("query succeeded")
				return outcome
			}
		}

		outcome.Attempts = append(outcome.Attempts, domain.QueryAttempt{Index: attempt, Query: query, Err: err})
		outcome.AttemptCount = attempt
		if query != "" {
			lastQuery = query
		}
		lastErr = err

		next := domain.QueryStateFailedRetryable
		if attempt == l.maxRetries {
			next = domain.QueryStateFailedTerminal
		}
		logger.Warn().
			Err(err).
			Int("attempt", attempt).
			Str("failed_in", string(state)).
			Str("state", string(next)).
			Msg("query attempt failed")
	}

	outcome.Query = lastQuery
	outcome.Err = &domain.RetriesExhaustedError{Attempts: outcome.AttemptCount, LastQuery: lastQuery, Err: lastErr}
	return l.explain(ctx, outcome, lastErr)
}

func (l *Loop) describe(ctx context.Context) (string, error) {
	if l.schema == nil {
		return "", nil
	}
	return l.schema(ctx)
}

func (l *Loop) generate(ctx context.Context, data promptData) (string, error) {
	prompt, err := renderPrompt(data)
	if err != nil {
		return "", fmt.Errorf("failed to render prompt: %w", err)
	}

	text, err := l.llm.Complete(ctx, prompt)
	if err != nil {
		return "", fmt.Errorf("failed to generate query: %w", err)
	}

	query := Sanitize(text)
	if err := checkReadOnly(query); err != nil {
		return query, fmt.Errorf("rejected generated query: %w", err)
	}
	return query, nil
}

func (l *Loop) explain(ctx context.Context, outcome domain.QueryOutcome, lastErr error) domain.QueryOutcome {
	if l.explainer == nil || errors.Is(lastErr, context.Canceled) || errors.Is(lastErr, context.DeadlineExceeded) {
		return outcome
	}

	text, err := l.explainer.ExplainFailure(ctx, outcome.Question, outcome.AttemptCount, outcome.Query, lastErr)
	if err != nil {
		outcome.Err = errors.Join(outcome.Err, err)
		return outcome
	}
	outcome.Explanation = text
	return outcome
}

func errText(err error) string {
	if err == nil {
		return ""
	}
	return err.Error()
}
