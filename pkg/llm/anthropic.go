package llm

import (
	"context"
	"fmt"
	"strings"

	sdk "github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
	"github.com/rs/zerolog"
)

type messageCreator interface {
	New(ctx context.Context, params sdk.MessageNewParams, opts ...option.RequestOption) (*sdk.Message, error)
}

type anthropicService struct {
	messages    messageCreator
	model       string
	system      string
	maxTokens   int64
	temperature *float64
}

func NewAnthropic(cfg Config) Service {
	client := sdk.NewClient(
		option.WithAPIKey(cfg.APIKey),
	)
	return newAnthropic(&client.Messages, cfg)
}

func newAnthropic(messages messageCreator, cfg Config) *anthropicService {
	model := cfg.Model
	if model == "" {
		model = DefaultAnthropicModel
	}
	maxTokens := cfg.MaxTokens
	if maxTokens <= 0 {
		maxTokens = defaultMaxTokens
	}

	return &anthropicService{
		messages:    messages,
		model:       model,
		system:      cfg.System,
		maxTokens:   maxTokens,
		temperature: cfg.Temperature,
	}
}

func (s *anthropicService) Complete(ctx context.Context, prompt string) (string, error) {
	params := sdk.MessageNewParams{
		Model:     sdk.Model(s.model),
		MaxTokens: s.maxTokens,
		Messages: []sdk.MessageParam{
			sdk.NewUserMessage(sdk.NewTextBlock(prompt)),
		},
	}
	if s.system != "" {
		params.System = []sdk.TextBlockParam{{Text: s.system}}
	}
	if s.temperature != nil {
		params.Temperature = sdk.Float(*s.temperature)
	}

	msg, err := s.messages.New(ctx, params)
	if err != nil {
		return "", fmt.Errorf("anthropic: create message: %w", err)
	}

	var b strings.Builder
	for _, block := range msg.Content {
		if block.Type == "text" {
			b.WriteString(block.Text)
		}
	}

	zerolog.Ctx(ctx).Debug().
		Str("model", s.model).
		Int64("input_tokens", msg.Usage.InputTokens).
		Int64("output_tokens", msg.Usage.OutputTokens).
		Msg("llm completion")
	return b.String(), nil
}
