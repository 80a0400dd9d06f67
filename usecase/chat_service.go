package usecase

import (
	"context"
	"errors"
	"strings"
	"sync/atomic"

	"go.uber.org/zap"

	"github.com/tutorline/server/domain/entities"
	"github.com/tutorline/server/domain/repositories"
)

// ErrEmptyMessage is returned when there is nothing to reply to
var ErrEmptyMessage = errors.New("message is empty")

var fallbackReplies = []string{
	"Sorry, I lost my train of thought for a second. Could you say that again?",
	"Hmm, I didn't quite catch that. Can you repeat your question?",
	"Let me think about that differently. Could you ask it another way?",
}

// ChatReply is one tutor answer. Fallback is set when the model failed and a
// canned reply was substituted; Cause then holds the provider error.
type ChatReply struct {
	Text     string
	Fallback bool
	Cause    error
}

// ChatService handles conversation logic
type ChatService struct {
	llm    repositories.LargeLanguageModel
	logger *zap.Logger
	next   atomic.Uint32
}

// NewChatService creates a new chat service
func NewChatService(llm repositories.LargeLanguageModel, logger *zap.Logger) *ChatService {
	return &ChatService{llm: llm, logger: logger}
}

// Reply answers text as subject's tutor given the prior history. Provider
// failures degrade to a fallback reply instead of an error; only an empty
// message or a cancelled ctx is returned as error.
func (s *ChatService) Reply(ctx context.Context, subject entities.Subject, history []repositories.ChatMessage, text string) (ChatReply, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return ChatReply{}, ErrEmptyMessage
	}

	chat, err := s.llm.GenerateChat(ctx, subject.Instructions, history)
	if err == nil {
		var reply repositories.ChatMessage
		reply, err = chat.SendMessage(ctx, repositories.ChatMessage{Role: repositories.UserRole, Content: text})
		if err == nil {
			return ChatReply{Text: reply.Content}, nil
		}
	}

	if ctx.Err() != nil {
		return ChatReply{}, ctx.Err()
	}
	s.logger.Warn("LLM reply failed, using fallback",
		zap.String("subject", subject.Key),
		zap.Error(err))
	return ChatReply{Text: s.fallback(), Fallback: true, Cause: err}, nil
}

func (s *ChatService) fallback() string {
	i := s.next.Add(1) - 1
	return fallbackReplies[int(i)%len(fallbackReplies)]
}

// HistoryFromSession converts the session log into chat history
func HistoryFromSession(messages []entities.ConversationMessage) []repositories.ChatMessage {
	history := make([]repositories.ChatMessage, 0, len(messages))
	for _, m := range messages {
		role := repositories.UserRole
		if m.Role == entities.MessageRoleAssistant {
			role = repositories.AssistantRole
		}
		history = append(history, repositories.ChatMessage{Role: role, Content: m.Content})
	}
	return history
}
