package repositories

import (
	"context"
	"errors"
)

// ErrNoSpeech is returned when a transcription finished without recognizable speech
var ErrNoSpeech = errors.New("no speech detected in audio")

// SpeechToText abstracts speech recognition services
type SpeechToText interface {
	// TranscribeAudio converts audio data to text
	TranscribeAudio(ctx context.Context, audioData []byte, config AudioConfig) (string, error)
	// InitTranscribeStreaming initializes a streaming transcription session
	InitTranscribeStreaming(ctx context.Context, config AudioConfig) (SpeechToTextStreaming, error)
}

// AudioConfig represents audio configuration for speech recognition
type AudioConfig struct {
	SampleRate int    `json:"sample_rate"`
	Encoding   string `json:"encoding"`
	Language   string `json:"language"`
}

// SpeechToTextStreaming receives audio incrementally. End returns the final
// transcript; Abort releases the stream without waiting for a result.
type SpeechToTextStreaming interface {
	Stream(data []byte) error
	End() (string, error)
	Abort()
}
