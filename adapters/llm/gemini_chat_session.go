package llm

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"
	"google.golang.org/genai"

	"github.com/tutorline/server/domain/repositories"
)

// ErrEmptyCompletion is returned when the provider answered without text
var ErrEmptyCompletion = errors.New("model returned no text")

// GeminiChatSession implements the ChatSession interface
type GeminiChatSession struct {
	client       *genai.Client
	config       GeminiConfig
	logger       *zap.Logger
	instructions string
	history      []*genai.Content
}

func newGeminiChatSession(client *genai.Client, config GeminiConfig, logger *zap.Logger, instructions string, history []repositories.ChatMessage) *GeminiChatSession {
	return &GeminiChatSession{
		client:       client,
		config:       config,
		logger:       logger,
		instructions: instructions,
		history:      convertRepositoryToGeminiFormat(history),
	}
}

// SendMessage sends a message and gets a response. History only grows on success.
func (s *GeminiChatSession) SendMessage(ctx context.Context, message repositories.ChatMessage) (repositories.ChatMessage, error) {
	userContent := genai.NewContentFromText(message.Content, genai.RoleUser)

	contents := make([]*genai.Content, 0, len(s.history)+1)
	contents = append(contents, s.history...)
	contents = append(contents, userContent)

	config := &genai.GenerateContentConfig{
		SafetySettings:  tutorSafetySettings,
		Temperature:     genai.Ptr(s.config.Temperature),
		TopP:            genai.Ptr(s.config.TopP),
		TopK:            genai.Ptr(s.config.TopK),
		MaxOutputTokens: int32(s.config.MaxOutputTokens),
	}
	if s.instructions != "" {
		config.SystemInstruction = genai.NewContentFromText(s.instructions, genai.RoleUser)
	}

	ctx, cancel := context.WithTimeout(ctx, time.Duration(s.config.TimeoutSeconds)*time.Second)
	defer cancel()

	var response *genai.GenerateContentResponse
	var err error
	for attempt := 1; attempt <= s.config.MaxAttempts; attempt++ {
		response, err = s.client.Models.GenerateContent(ctx, s.config.Model, contents, config)
		if err == nil {
			break
		}
		if attempt < s.config.MaxAttempts {
			s.logger.Warn("Failed to generate content, retrying",
				zap.Int("attempt", attempt),
				zap.Error(err))
			time.Sleep(time.Duration(attempt) * time.Second)
		}
	}
	if err != nil {
		return repositories.ChatMessage{}, fmt.Errorf("gemini generate content: %w", err)
	}

	responseText := extractText(response)
	if responseText == "" {
		return repositories.ChatMessage{}, ErrEmptyCompletion
	}

	s.history = append(s.history, userContent, genai.NewContentFromText(responseText, genai.RoleModel))

	s.logger.Debug("Chat session message processed",
		zap.String("userMessage", preview(message.Content)),
		zap.String("responsePreview", preview(responseText)),
		zap.Int("historyLength", len(s.history)))

	return repositories.ChatMessage{
		Role:    repositories.AssistantRole,
		Content: responseText,
	}, nil
}

// History returns the current conversation history
func (s *GeminiChatSession) History() ([]repositories.ChatMessage, error) {
	return convertGeminiToRepositoryFormat(s.history), nil
}

func extractText(response *genai.GenerateContentResponse) string {
	if response == nil || len(response.Candidates) == 0 || response.Candidates[0].Content == nil {
		return ""
	}
	var sb strings.Builder
	for _, part := range response.Candidates[0].Content.Parts {
		if part != nil && part.Text != "" {
			sb.WriteString(part.Text)
		}
	}
	return strings.TrimSpace(sb.String())
}

func preview(s string) string {
	if len(s) > 50 {
		return s[:50]
	}
	return s
}

// convertRepositoryToGeminiFormat converts repository messages to Gemini format.
// System messages are folded into user turns; Gemini takes instructions separately.
func convertRepositoryToGeminiFormat(messages []repositories.ChatMessage) []*genai.Content {
	var contents []*genai.Content
	for _, msg := range messages {
		role := genai.RoleUser
		if msg.Role == repositories.AssistantRole {
			role = genai.RoleModel
		}
		contents = append(contents, genai.NewContentFromText(msg.Content, role))
	}
	return contents
}

// convertGeminiToRepositoryFormat converts Gemini content to repository messages
func convertGeminiToRepositoryFormat(contents []*genai.Content) []repositories.ChatMessage {
	var messages []repositories.ChatMessage
	for _, content := range contents {
		role := repositories.UserRole
		if genai.Role(content.Role) == genai.RoleModel {
			role = repositories.AssistantRole
		}

		var text string
		for _, part := range content.Parts {
			if part != nil && part.Text != "" {
				text += part.Text
			}
		}
		if text != "" {
			messages = append(messages, repositories.ChatMessage{Role: role, Content: text})
		}
	}
	return messages
}
