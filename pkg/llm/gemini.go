package llm

import (
	"context"
	"fmt"

	"github.com/rs/zerolog"
	"google.golang.org/genai"
)

type contentGenerator interface {
	GenerateContent(
		ctx context.Context,
		model string,
		contents []*genai.Content,
		config *genai.GenerateContentConfig,
	) (*genai.GenerateContentResponse, error)
}

type geminiService struct {
	models contentGenerator
	model  string
	config *genai.GenerateContentConfig
}

func NewGemini(ctx context.Context, cfg Config) (Service, error) {
	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  cfg.APIKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create GenAI client: %w", err)
	}
	return newGemini(client.Models, cfg), nil
}

func newGemini(models contentGenerator, cfg Config) *geminiService {
	model := cfg.Model
	if model == "" {
		model = DefaultGeminiModel
	}

	config := &genai.GenerateContentConfig{}
	if cfg.MaxTokens > 0 {
		config.MaxOutputTokens = int32(cfg.MaxTokens)
	}
	if cfg.Temperature != nil {
		config.Temperature = genai.Ptr(float32(*cfg.Temperature))
	}
	if cfg.System != "" {
		config.SystemInstruction = &genai.Content{
			Parts: []*genai.Part{{Text: cfg.System}},
		}
	}

	return &geminiService{models: models, model: model, config: config}
}

func (s *geminiService) Complete(ctx context.Context, prompt string) (string, error) {
	result, err := s.models.GenerateContent(ctx, s.model, genai.Text(prompt), s.config)
	if err != nil {
		return "", fmt.Errorf("gemini generation failed: %w", err)
	}

	zerolog.Ctx(ctx).Debug().Str("model", s.model).Msg("llm completion")
	return result.Text(), nil
}
