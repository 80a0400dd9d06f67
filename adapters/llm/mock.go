package llm

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/tutorline/server/domain/repositories"
)

// MockLLM is an offline tutor used for local runs and tests
type MockLLM struct {
	mu   sync.Mutex
	fail error
}

var _ repositories.LargeLanguageModel = (*MockLLM)(nil)

// NewMockLLM creates a new mock LLM
func NewMockLLM() *MockLLM {
	return &MockLLM{}
}

// FailWith makes every subsequent SendMessage return err. Nil restores replies.
func (m *MockLLM) FailWith(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.fail = err
}

func (m *MockLLM) failure() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.fail
}

// GenerateChat implements repositories.LargeLanguageModel
func (m *MockLLM) GenerateChat(ctx context.Context, instructions string, history []repositories.ChatMessage) (repositories.ChatSession, error) {
	return &MockChatSession{
		llm:     m,
		history: append([]repositories.ChatMessage(nil), history...),
	}, nil
}

// MockChatSession echoes the student with a follow-up question
type MockChatSession struct {
	llm     *MockLLM
	history []repositories.ChatMessage
}

// SendMessage implements repositories.ChatSession
func (s *MockChatSession) SendMessage(ctx context.Context, message repositories.ChatMessage) (repositories.ChatMessage, error) {
	if err := s.llm.failure(); err != nil {
		return repositories.ChatMessage{}, err
	}
	if err := ctx.Err(); err != nil {
		return repositories.ChatMessage{}, err
	}

	content := strings.TrimSpace(message.Content)
	if content == "" {
		return repositories.ChatMessage{}, errors.New("mock llm: empty message")
	}

	reply := repositories.ChatMessage{
		Role:    repositories.AssistantRole,
		Content: fmt.Sprintf("Good question about %q. What do you already know about it?", content),
	}
	s.history = append(s.history, message, reply)
	return reply, nil
}

// History implements repositories.ChatSession
func (s *MockChatSession) History() ([]repositories.ChatMessage, error) {
	return append([]repositories.ChatMessage(nil), s.history...), nil
}
