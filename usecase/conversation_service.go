package usecase

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/tutorline/server/domain/entities"
	"github.com/tutorline/server/domain/repositories"
)

// ErrSessionEnded is returned for turns on an ended session
var ErrSessionEnded = errors.New("session has ended")

// Turn is the outcome of one answered student utterance
type Turn struct {
	UserText     string
	Reply        ChatReply
	Interactions int
}

// ConversationService orchestrates the voice turn pipeline and persists the
// tutoring-session record. A session value is owned by one caller at a time.
type ConversationService struct {
	speechToText repositories.SpeechToText
	textToSpeech repositories.TextToSpeech
	chatService  *ChatService
	sessions     repositories.SessionRepository
	logger       *zap.Logger
}

// NewConversationService creates a new conversation service
func NewConversationService(
	stt repositories.SpeechToText,
	tts repositories.TextToSpeech,
	chatService *ChatService,
	sessions repositories.SessionRepository,
	logger *zap.Logger,
) *ConversationService {
	return &ConversationService{
		speechToText: stt,
		textToSpeech: tts,
		chatService:  chatService,
		sessions:     sessions,
		logger:       logger,
	}
}

// StartSession creates and stores a fresh record for subject
func (s *ConversationService) StartSession(ctx context.Context, subject string) (*entities.Session, error) {
	session := entities.NewSession(entities.LookupSubject(subject).Key)
	if err := s.sessions.Create(ctx, session); err != nil {
		return nil, fmt.Errorf("create session: %w", err)
	}
	s.logger.Info("Tutoring session started",
		zap.String("sessionID", session.ID),
		zap.String("subject", session.Subject))
	return session, nil
}

// OpenTranscription starts a streaming recognizer for one utterance
func (s *ConversationService) OpenTranscription(ctx context.Context, config repositories.AudioConfig) (repositories.SpeechToTextStreaming, error) {
	return s.speechToText.InitTranscribeStreaming(ctx, config)
}

// Transcribe converts a complete utterance to text
func (s *ConversationService) Transcribe(ctx context.Context, audio []byte, config repositories.AudioConfig) (string, error) {
	return s.speechToText.TranscribeAudio(ctx, audio, config)
}

// Speak synthesizes text as mono PCM16 chunks
func (s *ConversationService) Speak(ctx context.Context, text string) (<-chan []byte, error) {
	return s.textToSpeech.ConvertTextToSpeech(ctx, text)
}

// AppendScripted logs a scripted assistant line. Scripted lines never count
// as interactions.
func (s *ConversationService) AppendScripted(ctx context.Context, session *entities.Session, text string) error {
	session.AppendMessage(entities.MessageRoleAssistant, text)
	return s.save(ctx, session)
}

// Respond answers userText within session. The user line and the reply are
// appended to the log and the interaction counter advances by one.
func (s *ConversationService) Respond(ctx context.Context, session *entities.Session, userText string) (Turn, error) {
	if !session.IsActive() {
		return Turn{}, ErrSessionEnded
	}

	history := HistoryFromSession(session.Messages)
	reply, err := s.chatService.Reply(ctx, entities.LookupSubject(session.Subject), history, userText)
	if err != nil {
		return Turn{}, err
	}

	session.AppendMessage(entities.MessageRoleUser, userText)
	session.AppendMessage(entities.MessageRoleAssistant, reply.Text)
	count, _ := session.RecordInteraction()

	if err := s.save(ctx, session); err != nil {
		return Turn{}, err
	}
	return Turn{UserText: userText, Reply: reply, Interactions: count}, nil
}

// SwitchSubject clears the log for the new subject. The counter is kept;
// the new welcome arrives as a scripted line.
func (s *ConversationService) SwitchSubject(ctx context.Context, session *entities.Session, subject string) (entities.Subject, error) {
	next := entities.LookupSubject(subject)
	session.SwitchSubject(next.Key)
	if err := s.save(ctx, session); err != nil {
		return next, err
	}
	s.logger.Info("Subject switched",
		zap.String("sessionID", session.ID),
		zap.String("subject", next.Key))
	return next, nil
}

// EndSession marks the record ended. Ending twice is a no-op.
func (s *ConversationService) EndSession(ctx context.Context, session *entities.Session) error {
	if !session.End() {
		return nil
	}
	s.logger.Info("Tutoring session ended",
		zap.String("sessionID", session.ID),
		zap.Int("interactions", session.Interactions),
		zap.Duration("duration", session.EndTime.Sub(session.StartTime)))
	return s.save(ctx, session)
}

// GetSession loads a stored record
func (s *ConversationService) GetSession(ctx context.Context, id string) (*entities.Session, error) {
	return s.sessions.GetByID(ctx, id)
}

// EndExpiredSessions ends active records older than maxDuration
func (s *ConversationService) EndExpiredSessions(ctx context.Context, maxDuration time.Duration) (int64, error) {
	return s.sessions.EndExpired(ctx, time.Now().Add(-maxDuration))
}

func (s *ConversationService) save(ctx context.Context, session *entities.Session) error {
	if err := s.sessions.Update(ctx, session); err != nil {
		return fmt.Errorf("save session: %w", err)
	}
	return nil
}
