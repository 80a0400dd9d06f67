package llm

import (
	"context"
	"fmt"

	"go.uber.org/zap"
	"google.golang.org/genai"

	"github.com/tutorline/server/domain/repositories"
)

const (
	defaultModel          = "gemini-2.0-flash"
	defaultTemperature    = 0.7
	defaultTopP           = 0.95
	defaultTopK           = 40
	defaultMaxTokens      = 512
	defaultTimeoutSeconds = 30
	defaultMaxAttempts    = 1
)

// GeminiConfig holds the generation settings for Gemini chat sessions
type GeminiConfig struct {
	APIKey          string
	Model           string
	Temperature     float32
	TopP            float32
	TopK            float32
	MaxOutputTokens int
	TimeoutSeconds  int
	// MaxAttempts bounds calls per message. One means no retry.
	MaxAttempts int
}

// ValidateGeminiConfig validates the GeminiConfig
func ValidateGeminiConfig(config GeminiConfig) error {
	if config.APIKey == "" {
		return fmt.Errorf("gemini API key is required")
	}
	if config.Temperature < 0 || config.Temperature > 2 {
		return fmt.Errorf("temperature must be between 0 and 2, got %f", config.Temperature)
	}
	if config.TopP < 0 || config.TopP > 1 {
		return fmt.Errorf("topP must be between 0 and 1, got %f", config.TopP)
	}
	if config.TopK < 0 {
		return fmt.Errorf("topK must be positive, got %f", config.TopK)
	}
	if config.TimeoutSeconds < 0 {
		return fmt.Errorf("timeout must be positive, got %d", config.TimeoutSeconds)
	}
	if config.MaxAttempts < 0 {
		return fmt.Errorf("max attempts must be positive, got %d", config.MaxAttempts)
	}
	return nil
}

// withDefaults fills zero values
func (c GeminiConfig) withDefaults() GeminiConfig {
	if c.Model == "" {
		c.Model = defaultModel
	}
	if c.Temperature == 0 {
		c.Temperature = defaultTemperature
	}
	if c.TopP == 0 {
		c.TopP = defaultTopP
	}
	if c.TopK == 0 {
		c.TopK = defaultTopK
	}
	if c.MaxOutputTokens == 0 {
		c.MaxOutputTokens = defaultMaxTokens
	}
	if c.TimeoutSeconds == 0 {
		c.TimeoutSeconds = defaultTimeoutSeconds
	}
	if c.MaxAttempts == 0 {
		c.MaxAttempts = defaultMaxAttempts
	}
	return c
}

// tutorSafetySettings are applied to every request; learners may be minors.
var tutorSafetySettings = []*genai.SafetySetting{
	{Category: genai.HarmCategoryHarassment, Threshold: genai.HarmBlockThresholdBlockLowAndAbove},
	{Category: genai.HarmCategoryHateSpeech, Threshold: genai.HarmBlockThresholdBlockLowAndAbove},
	{Category: genai.HarmCategorySexuallyExplicit, Threshold: genai.HarmBlockThresholdBlockLowAndAbove},
	{Category: genai.HarmCategoryDangerousContent, Threshold: genai.HarmBlockThresholdBlockMediumAndAbove},
}

// GeminiLLM implements the LargeLanguageModel interface using Google's Gemini API
type GeminiLLM struct {
	client *genai.Client
	config GeminiConfig
	logger *zap.Logger
}

var _ repositories.LargeLanguageModel = (*GeminiLLM)(nil)

// NewGeminiLLM creates a new Gemini LLM instance
func NewGeminiLLM(ctx context.Context, config GeminiConfig, logger *zap.Logger) (*GeminiLLM, error) {
	if err := ValidateGeminiConfig(config); err != nil {
		return nil, err
	}

	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  config.APIKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create Gemini client: %w", err)
	}

	config = config.withDefaults()
	logger.Info("Gemini LLM initialized",
		zap.String("model", config.Model),
		zap.Int("maxAttempts", config.MaxAttempts))

	return &GeminiLLM{
		client: client,
		config: config,
		logger: logger,
	}, nil
}

// GenerateChat creates a chat session seeded with tutor instructions and history
func (g *GeminiLLM) GenerateChat(ctx context.Context, instructions string, history []repositories.ChatMessage) (repositories.ChatSession, error) {
	return newGeminiChatSession(g.client, g.config, g.logger, instructions, history), nil
}
