package entities

import (
	"errors"
	"time"

	"github.com/google/uuid"
)

// SessionStatus represents the status of a tutoring session
type SessionStatus string

const (
	SessionStatusActive SessionStatus = "active"
	SessionStatusEnded  SessionStatus = "ended"
)

// MessageRole represents the role of a message sender
type MessageRole string

const (
	MessageRoleUser      MessageRole = "user"
	MessageRoleAssistant MessageRole = "assistant"
)

// DefaultSessionCeiling is the wall-clock lifetime of a tutoring session.
const DefaultSessionCeiling = 30 * time.Minute

// SwitchPromptEvery is the number of completed responses between subject switch prompts.
const SwitchPromptEvery = 3

// ConversationMessage is a single entry of the append-only session log
type ConversationMessage struct {
	Role      MessageRole `json:"role" bson:"role"`
	Content   string      `json:"content" bson:"content"`
	Timestamp time.Time   `json:"timestamp" bson:"timestamp"`
}

// Session represents one tutoring conversation scoped to a subject
type Session struct {
	ID           string                `json:"id" bson:"_id"`
	Subject      string                `json:"subject" bson:"subject"`
	StartTime    time.Time             `json:"start_time" bson:"start_time"`
	EndTime      *time.Time            `json:"end_time" bson:"end_time"`
	Interactions int                   `json:"interactions" bson:"interactions"`
	Status       SessionStatus         `json:"status" bson:"status"`
	Messages     []ConversationMessage `json:"messages" bson:"messages"`
	UpdatedAt    time.Time             `json:"updated_at" bson:"updated_at"`
}

// NewSession creates a new active session for a subject
func NewSession(subject string) *Session {
	now := time.Now()
	return &Session{
		ID:        uuid.New().String(),
		Subject:   subject,
		StartTime: now,
		Status:    SessionStatusActive,
		Messages:  make([]ConversationMessage, 0),
		UpdatedAt: now,
	}
}

// AppendMessage adds a message to the log. Messages are never edited after this.
func (s *Session) AppendMessage(role MessageRole, content string) ConversationMessage {
	msg := ConversationMessage{
		Role:      role,
		Content:   content,
		Timestamp: time.Now(),
	}
	s.Messages = append(s.Messages, msg)
	s.UpdatedAt = msg.Timestamp
	return msg
}

// RecordInteraction counts one completed response. It reports whether the new
// count landed on a multiple of SwitchPromptEvery. Ended sessions are not counted.
func (s *Session) RecordInteraction() (count int, promptSwitch bool) {
	if s.Status != SessionStatusActive {
		return s.Interactions, false
	}
	s.Interactions++
	s.UpdatedAt = time.Now()
	return s.Interactions, s.Interactions%SwitchPromptEvery == 0
}

// SwitchSubject resets the conversation for a new subject and keeps the session
func (s *Session) SwitchSubject(subject string) {
	s.Subject = subject
	s.Messages = make([]ConversationMessage, 0)
	s.UpdatedAt = time.Now()
}

// End marks the session ended. It reports false if the session was already ended.
func (s *Session) End() bool {
	if s.Status == SessionStatusEnded {
		return false
	}
	now := time.Now()
	s.Status = SessionStatusEnded
	s.EndTime = &now
	s.UpdatedAt = now
	return true
}

// IsActive reports whether the session is still running
func (s *Session) IsActive() bool {
	return s.Status == SessionStatusActive
}

// ExceededCeiling reports whether the session has outlived the given ceiling
func (s *Session) ExceededCeiling(ceiling time.Duration) bool {
	return time.Since(s.StartTime) > ceiling
}

// Snapshot returns a deep copy safe to hand to other goroutines
func (s *Session) Snapshot() Session {
	cp := *s
	cp.Messages = append([]ConversationMessage(nil), s.Messages...)
	if s.EndTime != nil {
		t := *s.EndTime
		cp.EndTime = &t
	}
	return cp
}

// Validate validates the session data
func (s *Session) Validate() error {
	if s.ID == "" {
		return errors.New("id is required")
	}
	if s.Subject == "" {
		return errors.New("subject is required")
	}
	if s.Status != SessionStatusActive && s.Status != SessionStatusEnded {
		return errors.New("invalid session status")
	}
	if s.Interactions < 0 {
		return errors.New("interactions cannot be negative")
	}
	return nil
}
