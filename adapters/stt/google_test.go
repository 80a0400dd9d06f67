package stt_test

import (
	"context"
	"errors"
	"testing"

	"go.uber.org/zap/zaptest"

	"github.com/tutorline/server/adapters/stt"
	"github.com/tutorline/server/domain/repositories"
)

var (
	_ repositories.SpeechToText          = &stt.GoogleSpeechToText{}
	_ repositories.SpeechToTextStreaming = &stt.GoogleSpeechToTextStream{}
	_ repositories.SpeechToTextStreaming = &stt.MockSpeechToTextStream{}
)

func TestMockSpeechToText_Transcribe(t *testing.T) {
	m := stt.NewMockSpeechToText(zaptest.NewLogger(t))
	cfg := repositories.AudioConfig{SampleRate: 24000, Encoding: "LINEAR16"}

	tests := []struct {
		size int
		want string
	}{
		{200, "Hi"},
		{2000, "Hello tutor!"},
		{6000, "Thank you, that makes sense."},
	}
	for _, tt := range tests {
		got, err := m.TranscribeAudio(context.Background(), make([]byte, tt.size), cfg)
		if err != nil {
			t.Fatalf("TranscribeAudio(%d): %v", tt.size, err)
		}
		if got != tt.want {
			t.Errorf("TranscribeAudio(%d) = %q, want %q", tt.size, got, tt.want)
		}
	}

	if _, err := m.TranscribeAudio(context.Background(), nil, cfg); !errors.Is(err, repositories.ErrNoSpeech) {
		t.Errorf("expected ErrNoSpeech for empty audio, got %v", err)
	}
}

func TestMockSpeechToText_Streaming(t *testing.T) {
	m := stt.NewMockSpeechToText(zaptest.NewLogger(t))
	stream, err := m.InitTranscribeStreaming(context.Background(), repositories.AudioConfig{SampleRate: 24000})
	if err != nil {
		t.Fatal(err)
	}
	for i := 0; i < 3; i++ {
		if err := stream.Stream(make([]byte, 800)); err != nil {
			t.Fatalf("Stream: %v", err)
		}
	}
	got, err := stream.End()
	if err != nil || got != "Hello tutor!" {
		t.Errorf("End() = %q, %v", got, err)
	}
	if _, err := stream.End(); err == nil {
		t.Error("second End should fail")
	}
	if err := stream.Stream([]byte{1}); err == nil {
		t.Error("Stream after End should fail")
	}
}

func TestMockSpeechToText_AbortAndFailure(t *testing.T) {
	m := stt.NewMockSpeechToText(zaptest.NewLogger(t))
	s, _ := m.InitTranscribeStreaming(context.Background(), repositories.AudioConfig{})
	s.Abort()
	if !s.(*stt.MockSpeechToTextStream).Aborted() {
		t.Error("expected stream to be aborted")
	}

	boom := errors.New("stt down")
	m.FailWith(boom)
	if _, err := m.InitTranscribeStreaming(context.Background(), repositories.AudioConfig{}); !errors.Is(err, boom) {
		t.Errorf("expected injected failure, got %v", err)
	}
}
