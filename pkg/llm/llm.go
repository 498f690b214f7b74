package llm

import (
	"context"
	"fmt"

	"golang.org/x/time/rate"
)

// Service is a stateless text completion endpoint. Every call carries its
// full context in the prompt.
type Service interface {
	Complete(ctx context.Context, prompt string) (string, error)
}

type Provider string

const (
	ProviderAnthropic Provider = "anthropic"
	ProviderGemini    Provider = "gemini"
)

const (
	DefaultAnthropicModel = "claude-sonnet-4-5-20250929"
	DefaultGeminiModel    = "gemini-2.0-flash"
	defaultMaxTokens      = 2048
)

type Config struct {
	Provider          Provider `mapstructure:"provider"`
	Model             string   `mapstructure:"model"`
	APIKey            string   `mapstructure:"api_key"`
	System            string   `mapstructure:"system"`
	MaxTokens         int64    `mapstructure:"max_tokens"`
	Temperature       *float64 `mapstructure:"temperature"`
	RequestsPerMinute float64  `mapstructure:"requests_per_minute"`
}

func (c Config) Validate() error {
	switch c.Provider {
	case ProviderAnthropic, ProviderGemini:
	default:
		return fmt.Errorf("unknown llm provider %q", c.Provider)
	}
	if c.APIKey == "" {
		return fmt.Errorf("llm api key is required for provider %s", c.Provider)
	}
	return nil
}

// New builds the configured provider, rate limited when RequestsPerMinute is
// set.
func New(ctx context.Context, cfg Config) (Service, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	var (
		svc Service
		err error
	)
	switch cfg.Provider {
	case ProviderAnthropic:
		svc = NewAnthropic(cfg)
	case ProviderGemini:
		svc, err = NewGemini(ctx, cfg)
	}
	if err != nil {
		return nil, err
	}

	if cfg.RequestsPerMinute > 0 {
		limit := rate.Limit(cfg.RequestsPerMinute / 60)
		svc = WithRateLimit(svc, rate.NewLimiter(limit, 1))
	}
	return svc, nil
}
