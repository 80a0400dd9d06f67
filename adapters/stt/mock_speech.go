package stt

import (
	"context"
	"errors"
	"sync"

	"go.uber.org/zap"

	"github.com/tutorline/server/domain/repositories"
)

// MockSpeechToText transcribes by audio size. Used offline and in tests.
type MockSpeechToText struct {
	logger *zap.Logger

	mu   sync.Mutex
	fail error
}

var _ repositories.SpeechToText = (*MockSpeechToText)(nil)

// NewMockSpeechToText creates a new mock speech-to-text service
func NewMockSpeechToText(logger *zap.Logger) *MockSpeechToText {
	return &MockSpeechToText{logger: logger}
}

// FailWith makes every subsequent transcription return err. Nil restores it.
func (s *MockSpeechToText) FailWith(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.fail = err
}

func (s *MockSpeechToText) failure() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.fail
}

// InitTranscribeStreaming creates a new mock streaming session
func (s *MockSpeechToText) InitTranscribeStreaming(ctx context.Context, config repositories.AudioConfig) (repositories.SpeechToTextStreaming, error) {
	if err := s.failure(); err != nil {
		return nil, err
	}
	s.logger.Debug("Initializing mock streaming transcription",
		zap.Int("sampleRate", config.SampleRate),
		zap.String("encoding", config.Encoding),
		zap.String("language", config.Language))
	return &MockSpeechToTextStream{owner: s}, nil
}

// TranscribeAudio implements repositories.SpeechToText
func (s *MockSpeechToText) TranscribeAudio(ctx context.Context, audioData []byte, config repositories.AudioConfig) (string, error) {
	if err := s.failure(); err != nil {
		return "", err
	}
	s.logger.Debug("Processing speech-to-text",
		zap.Int("audioSize", len(audioData)),
		zap.Int("sampleRate", config.SampleRate))
	return mockTranscript(len(audioData))
}

// MockSpeechToTextStream accumulates byte counts until End
type MockSpeechToTextStream struct {
	owner *MockSpeechToText

	mu      sync.Mutex
	size    int
	ended   bool
	aborted bool
}

// Stream implements mock streaming audio processing
func (m *MockSpeechToTextStream) Stream(data []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.ended {
		return errors.New("stream already ended")
	}
	m.size += len(data)
	return nil
}

// End returns the mock transcription result
func (m *MockSpeechToTextStream) End() (string, error) {
	m.mu.Lock()
	if m.ended {
		m.mu.Unlock()
		return "", errors.New("stream already ended")
	}
	m.ended = true
	size := m.size
	m.mu.Unlock()

	if err := m.owner.failure(); err != nil {
		return "", err
	}
	return mockTranscript(size)
}

// Abort implements repositories.SpeechToTextStreaming
func (m *MockSpeechToTextStream) Abort() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.ended = true
	m.aborted = true
}

// Aborted reports whether Abort was called
func (m *MockSpeechToTextStream) Aborted() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.aborted
}

func mockTranscript(size int) (string, error) {
	switch {
	case size == 0:
		return "", repositories.ErrNoSpeech
	case size > 10000:
		return "Can you explain how fractions work? I always get confused with the denominator.", nil
	case size > 5000:
		return "Thank you, that makes sense.", nil
	case size > 1000:
		return "Hello tutor!", nil
	default:
		return "Hi", nil
	}
}
