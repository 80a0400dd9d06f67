package tts

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/tutorline/server/domain/repositories"
)

const (
	defaultAPIBaseURL   = "https://api.elevenlabs.io/v1"
	defaultVoiceID      = "21m00Tcm4TlvDq8ikWAM"   // Rachel voice
	defaultChunkSize    = 4096                     // bytes, always even
	defaultOutputFormat = "pcm_24000"              // matches the realtime sample rate
	defaultModelID      = "eleven_multilingual_v2" // Default model ID
	defaultStability    = 0.5
	defaultClarity      = 0.75
	defaultTimeout      = 60 * time.Second
)

// ErrEmptyText is returned for blank synthesis requests
var ErrEmptyText = errors.New("text cannot be empty")

// ElevenLabsConfig holds configuration for the ElevenLabsTTS adapter.
// Only APIKey is required.
type ElevenLabsConfig struct {
	APIKey       string
	APIBaseURL   string
	VoiceID      string
	ModelID      string
	OutputFormat string
	ChunkSize    int
	Stability    float64
	Clarity      float64
	Timeout      time.Duration
}

// ElevenLabsTTS implements TextToSpeech interface using Eleven Labs API
type ElevenLabsTTS struct {
	config ElevenLabsConfig
	client *http.Client
	logger *zap.Logger
}

var _ repositories.TextToSpeech = (*ElevenLabsTTS)(nil)

// ElevenLabsVoiceSettings represents voice settings for Eleven Labs API
type ElevenLabsVoiceSettings struct {
	Stability       float64 `json:"stability"`
	SimilarityBoost float64 `json:"similarity_boost"`
	Style           float64 `json:"style,omitempty"`
	UseSpeakerBoost bool    `json:"use_speaker_boost,omitempty"`
}

// ElevenLabsRequest represents the request payload for Eleven Labs TTS API
type ElevenLabsRequest struct {
	Text                   string                  `json:"text"`
	ModelID                string                  `json:"model_id"`
	LanguageCode           string                  `json:"language_code,omitempty"`
	VoiceSettings          ElevenLabsVoiceSettings `json:"voice_settings"`
	ApplyTextNormalization string                  `json:"apply_text_normalization,omitempty"`
}

// ValidateElevenLabsConfig validates the ElevenLabsConfig
func ValidateElevenLabsConfig(config ElevenLabsConfig) error {
	if config.APIKey == "" {
		return fmt.Errorf("eleven labs API key is required")
	}
	if config.Stability < 0 || config.Stability > 1 {
		return fmt.Errorf("stability must be between 0 and 1, got %f", config.Stability)
	}
	if config.Clarity < 0 || config.Clarity > 1 {
		return fmt.Errorf("clarity must be between 0 and 1, got %f", config.Clarity)
	}
	if config.ChunkSize < 0 {
		return fmt.Errorf("chunk size must be positive, got %d", config.ChunkSize)
	}
	if config.OutputFormat != "" && !strings.HasPrefix(config.OutputFormat, "pcm_") {
		return fmt.Errorf("output format must be raw PCM, got %q", config.OutputFormat)
	}
	return nil
}

// NewElevenLabsTTS creates a new Eleven Labs TTS instance
func NewElevenLabsTTS(config ElevenLabsConfig, logger *zap.Logger) (*ElevenLabsTTS, error) {
	if err := ValidateElevenLabsConfig(config); err != nil {
		return nil, err
	}

	if config.APIBaseURL == "" {
		config.APIBaseURL = defaultAPIBaseURL
	}
	config.APIBaseURL = strings.TrimRight(config.APIBaseURL, "/")
	if config.VoiceID == "" {
		config.VoiceID = defaultVoiceID
	}
	if config.ModelID == "" {
		config.ModelID = defaultModelID
	}
	if config.OutputFormat == "" {
		config.OutputFormat = defaultOutputFormat
	}
	if config.ChunkSize == 0 {
		config.ChunkSize = defaultChunkSize
	}
	// samples are 2 bytes; odd chunks would split one
	config.ChunkSize += config.ChunkSize % 2
	if config.Stability == 0 {
		config.Stability = defaultStability
	}
	if config.Clarity == 0 {
		config.Clarity = defaultClarity
	}
	if config.Timeout == 0 {
		config.Timeout = defaultTimeout
	}

	logger.Info("ElevenLabs TTS initialized",
		zap.String("voiceID", config.VoiceID),
		zap.String("modelID", config.ModelID),
		zap.String("outputFormat", config.OutputFormat))

	return &ElevenLabsTTS{
		config: config,
		client: &http.Client{Timeout: config.Timeout},
		logger: logger,
	}, nil
}

// ConvertTextToSpeech starts synthesis. Request failures are returned
// directly; once the channel is handed out it only carries audio.
func (e *ElevenLabsTTS) ConvertTextToSpeech(ctx context.Context, text string) (<-chan []byte, error) {
	if strings.TrimSpace(text) == "" {
		return nil, ErrEmptyText
	}

	request := ElevenLabsRequest{
		Text:                   text,
		ModelID:                e.config.ModelID,
		ApplyTextNormalization: "auto",
		VoiceSettings: ElevenLabsVoiceSettings{
			Stability:       e.config.Stability,
			SimilarityBoost: e.config.Clarity,
			UseSpeakerBoost: true,
		},
	}
	requestBody, err := json.Marshal(request)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	url := fmt.Sprintf("%s/text-to-speech/%s/stream?output_format=%s&enable_logging=false",
		e.config.APIBaseURL, e.config.VoiceID, e.config.OutputFormat)
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(requestBody))
	if err != nil {
		return nil, fmt.Errorf("failed to create HTTP request: %w", err)
	}
	httpReq.Header.Set("Accept", "audio/pcm")
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("xi-api-key", e.config.APIKey)

	e.logger.Debug("Converting text to speech", zap.Int("textLength", len(text)))

	resp, err := e.client.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("eleven labs request: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		defer resp.Body.Close()
		errorBody, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return nil, fmt.Errorf("eleven labs returned %d: %s", resp.StatusCode, strings.TrimSpace(string(errorBody)))
	}

	audioChan := make(chan []byte, 10)
	go e.stream(ctx, resp.Body, audioChan)
	return audioChan, nil
}

func (e *ElevenLabsTTS) stream(ctx context.Context, body io.ReadCloser, out chan<- []byte) {
	defer close(out)
	defer body.Close()

	totalBytes := 0
	chunkCount := 0
	for {
		buffer := make([]byte, e.config.ChunkSize)
		n, err := io.ReadFull(body, buffer)
		if n > 0 {
			chunk := buffer[:n-n%2]
			if len(chunk) > 0 {
				select {
				case out <- chunk:
					totalBytes += len(chunk)
					chunkCount++
				case <-ctx.Done():
					e.logger.Warn("Context cancelled while sending audio chunk")
					return
				}
			}
		}
		if err == io.EOF || err == io.ErrUnexpectedEOF {
			e.logger.Debug("Finished streaming audio data",
				zap.Int("totalChunks", chunkCount),
				zap.Int("totalBytes", totalBytes))
			return
		}
		if err != nil {
			e.logger.Error("Error reading response body", zap.Error(err))
			return
		}
	}
}
