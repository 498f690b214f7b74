package llm

import (
	"context"
	"errors"
	"testing"
	"time"

	sdk "github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"golang.org/x/time/rate"
	"google.golang.org/genai"
)

type mockMessages struct {
	mock.Mock
}

func (m *mockMessages) New(ctx context.Context, params sdk.MessageNewParams, _ ...option.RequestOption) (*sdk.Message, error) {
	args := m.Called(ctx, params)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*sdk.Message), args.Error(1)
}

type mockGenerator struct {
	mock.Mock
}

func (m *mockGenerator) GenerateContent(
	ctx context.Context,
	model string,
	contents []*genai.Content,
	config *genai.GenerateContentConfig,
) (*genai.GenerateContentResponse, error) {
	args := m.Called(ctx, model, contents, config)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*genai.GenerateContentResponse), args.Error(1)
}

type stubService struct {
	calls int
}

func (s *stubService) Complete(context.Context, string) (string, error) {
	s.calls++
	return "ok", nil
}

func TestAnthropic_Complete(t *testing.T) {
	messages := new(mockMessages)
	temp := 0.2
	svc := newAnthropic(messages, Config{System: "You write financial commentary.", Temperature: &temp})

	messages.On("New", mock.Anything, mock.MatchedBy(func(p sdk.MessageNewParams) bool {
		return p.Model == sdk.Model(DefaultAnthropicModel) &&
			p.MaxTokens == defaultMaxTokens &&
			len(p.Messages) == 1 &&
			len(p.System) == 1 && p.System[0].Text == "You write financial commentary."
	})).Return(&sdk.Message{
		Content: []sdk.ContentBlockUnion{
			{Type: "text", Text: "SELECT 1"},
			{Type: "thinking"},
			{Type: "text", Text: " FROM dual"},
		},
	}, nil)

	got, err := svc.Complete(context.Background(), "question")
	require.NoError(t, err)
	assert.Equal(t, "SELECT 1 FROM dual", got)
	messages.AssertExpectations(t)
}

func TestAnthropic_CompleteError(t *testing.T) {
	messages := new(mockMessages)
	messages.On("New", mock.Anything, mock.Anything).Return(nil, errors.New("overloaded"))

	_, err := newAnthropic(messages, Config{Model: "claude-haiku-4-5-20251001"}).Complete(context.Background(), "q")
	assert.ErrorContains(t, err, "anthropic: create message: overloaded")
}

func TestGemini_Complete(t *testing.T) {
	gen := new(mockGenerator)
	svc := newGemini(gen, Config{MaxTokens: 512})

	gen.On("GenerateContent", mock.Anything, DefaultGeminiModel, genai.Text("question"),
		mock.MatchedBy(func(c *genai.GenerateContentConfig) bool { return c.MaxOutputTokens == 512 })).
		Return(&genai.GenerateContentResponse{
			Candidates: []*genai.Candidate{{
				Content: &genai.Content{Parts: []*genai.Part{{Text: "Revenue grew."}}},
			}},
		}, nil)

	got, err := svc.Complete(context.Background(), "question")
	require.NoError(t, err)
	assert.Equal(t, "Revenue grew.", got)
}

func TestConfig_Validate(t *testing.T) {
	assert.NoError(t, Config{Provider: ProviderAnthropic, APIKey: "k"}.Validate())
	assert.NoError(t, Config{Provider: ProviderGemini, APIKey: "k"}.Validate())
	assert.Error(t, Config{Provider: "openai", APIKey: "k"}.Validate())
	assert.Error(t, Config{Provider: ProviderAnthropic}.Validate())
}

func TestWithRateLimit(t *testing.T) {
	next := &stubService{}
	svc := WithRateLimit(next, rate.NewLimiter(rate.Every(time.Hour), 1))

	_, err := svc.Complete(context.Background(), "first")
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	_, err = svc.Complete(ctx, "second")
	assert.Error(t, err)
	assert.Equal(t, 1, next.calls)
}

func TestDisabled(t *testing.T) {
	svc := Disabled(errors.New("llm api key is required"))
	_, err := svc.Complete(context.Background(), "hello")
	assert.ErrorIs(t, err, ErrNotConfigured)
	assert.ErrorContains(t, err, "api key")
}
