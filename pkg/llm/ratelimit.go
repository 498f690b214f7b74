package llm

import (
	"context"
	"errors"
	"fmt"

	"golang.org/x/time/rate"
)

type limitedService struct {
	next    Service
	limiter *rate.Limiter
}

// WithRateLimit delays calls to next so they respect limiter.
func WithRateLimit(next Service, limiter *rate.Limiter) Service {
	return &limitedService{next: next, limiter: limiter}
}

func (s *limitedService) Complete(ctx context.Context, prompt string) (string, error) {
	if err := s.limiter.Wait(ctx); err != nil {
		return "", fmt.Errorf("llm rate limit: %w", err)
	}
	return s.next.Complete(ctx, prompt)
}

var ErrNotConfigured = errors.New("llm is not configured")

type disabledService struct {
	reason error
}

// Disabled returns a Service that fails every call with ErrNotConfigured.
// It lets the data side of the application run without model credentials.
func Disabled(reason error) Service {
	return disabledService{reason: reason}
}

func (s disabledService) Complete(context.Context, string) (string, error) {
	return "", fmt.Errorf("%w: %v", ErrNotConfigured, s.reason)
}
