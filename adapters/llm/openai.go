package llm

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
	"go.uber.org/zap"

	"github.com/tutorline/server/domain/repositories"
)

const defaultOpenAIModel = "gpt-4o-mini"

// OpenAIConfig configures the OpenAI chat completion adapter
type OpenAIConfig struct {
	APIKey         string
	BaseURL        string
	Model          string
	MaxTokens      int
	TimeoutSeconds int
}

// ValidateOpenAIConfig validates the OpenAIConfig
func ValidateOpenAIConfig(config OpenAIConfig) error {
	if config.APIKey == "" {
		return fmt.Errorf("openai API key is required")
	}
	if config.MaxTokens < 0 {
		return fmt.Errorf("max tokens must be positive, got %d", config.MaxTokens)
	}
	if config.TimeoutSeconds < 0 {
		return fmt.Errorf("timeout must be positive, got %d", config.TimeoutSeconds)
	}
	return nil
}

// OpenAILLM implements LargeLanguageModel with chat completions
type OpenAILLM struct {
	client *openai.Client
	config OpenAIConfig
	logger *zap.Logger
}

var _ repositories.LargeLanguageModel = (*OpenAILLM)(nil)

// NewOpenAILLM creates the adapter. No request is made until a message is sent.
func NewOpenAILLM(config OpenAIConfig, logger *zap.Logger) (*OpenAILLM, error) {
	if err := ValidateOpenAIConfig(config); err != nil {
		return nil, err
	}
	if config.Model == "" {
		config.Model = defaultOpenAIModel
	}
	if config.TimeoutSeconds == 0 {
		config.TimeoutSeconds = defaultTimeoutSeconds
	}

	opts := []option.RequestOption{
		option.WithAPIKey(config.APIKey),
		// proxy calls carry no retry wrapper
		option.WithMaxRetries(0),
	}
	if config.BaseURL != "" {
		opts = append(opts, option.WithBaseURL(config.BaseURL))
	}
	client := openai.NewClient(opts...)

	logger.Info("OpenAI LLM initialized", zap.String("model", config.Model))
	return &OpenAILLM{client: &client, config: config, logger: logger}, nil
}

func (o *OpenAILLM) GenerateChat(ctx context.Context, instructions string, history []repositories.ChatMessage) (repositories.ChatSession, error) {
	return &OpenAIChatSession{
		llm:          o,
		instructions: instructions,
		history:      append([]repositories.ChatMessage(nil), history...),
	}, nil
}

// OpenAIChatSession keeps history locally and replays it on every completion
type OpenAIChatSession struct {
	llm          *OpenAILLM
	instructions string
	history      []repositories.ChatMessage
}

func (s *OpenAIChatSession) SendMessage(ctx context.Context, message repositories.ChatMessage) (repositories.ChatMessage, error) {
	messages := buildOpenAIMessages(s.instructions, s.history, message)

	params := openai.ChatCompletionNewParams{
		Model:    s.llm.config.Model,
		Messages: messages,
	}
	if s.llm.config.MaxTokens > 0 {
		params.MaxTokens = openai.Int(int64(s.llm.config.MaxTokens))
	}

	ctx, cancel := context.WithTimeout(ctx, time.Duration(s.llm.config.TimeoutSeconds)*time.Second)
	defer cancel()

	resp, err := s.llm.client.Chat.Completions.New(ctx, params)
	if err != nil {
		return repositories.ChatMessage{}, fmt.Errorf("openai chat: %w", err)
	}
	if len(resp.Choices) == 0 {
		return repositories.ChatMessage{}, ErrEmptyCompletion
	}
	text := strings.TrimSpace(resp.Choices[0].Message.Content)
	if text == "" {
		return repositories.ChatMessage{}, ErrEmptyCompletion
	}

	reply := repositories.ChatMessage{Role: repositories.AssistantRole, Content: text}
	s.history = append(s.history, message, reply)

	s.llm.logger.Debug("OpenAI completion",
		zap.String("model", resp.Model),
		zap.Int64("promptTokens", resp.Usage.PromptTokens),
		zap.Int64("completionTokens", resp.Usage.CompletionTokens))
	return reply, nil
}

func (s *OpenAIChatSession) History() ([]repositories.ChatMessage, error) {
	return append([]repositories.ChatMessage(nil), s.history...), nil
}

func buildOpenAIMessages(instructions string, history []repositories.ChatMessage, next repositories.ChatMessage) []openai.ChatCompletionMessageParamUnion {
	params := make([]openai.ChatCompletionMessageParamUnion, 0, len(history)+2)
	if instructions != "" {
		params = append(params, openai.SystemMessage(instructions))
	}
	all := make([]repositories.ChatMessage, 0, len(history)+1)
	all = append(all, history...)
	all = append(all, next)
	for _, msg := range all {
		switch msg.Role {
		case repositories.SystemRole:
			params = append(params, openai.SystemMessage(msg.Content))
		case repositories.AssistantRole:
			params = append(params, openai.AssistantMessage(msg.Content))
		default:
			params = append(params, openai.UserMessage(msg.Content))
		}
	}
	return params
}
