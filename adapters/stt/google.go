package stt

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"sync"

	speech "cloud.google.com/go/speech/apiv1"
	"cloud.google.com/go/speech/apiv1/speechpb"
	"go.uber.org/zap"

	"github.com/tutorline/server/domain/repositories"
)

const defaultLanguage = "en-US"

// GoogleSpeechToText implements SpeechToText for Google Cloud
type GoogleSpeechToText struct {
	client *speech.Client
	logger *zap.Logger
}

var _ repositories.SpeechToText = (*GoogleSpeechToText)(nil)

// NewGoogleSpeechToText creates a client using application default credentials
func NewGoogleSpeechToText(ctx context.Context, logger *zap.Logger) (*GoogleSpeechToText, error) {
	client, err := speech.NewClient(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to create speech client: %w", err)
	}
	return &GoogleSpeechToText{client: client, logger: logger}, nil
}

// Close releases the underlying gRPC connection
func (g *GoogleSpeechToText) Close() error {
	return g.client.Close()
}

func (g *GoogleSpeechToText) InitTranscribeStreaming(ctx context.Context, config repositories.AudioConfig) (repositories.SpeechToTextStreaming, error) {
	encoding, err := getAudioEncoding(config.Encoding)
	if err != nil {
		return nil, err
	}
	language := config.Language
	if language == "" {
		language = defaultLanguage
	}

	ctx, cancel := context.WithCancel(ctx)
	stream, err := g.client.StreamingRecognize(ctx)
	if err != nil {
		cancel()
		return nil, fmt.Errorf("failed to create streaming recognize: %w", err)
	}

	if err := stream.Send(&speechpb.StreamingRecognizeRequest{
		StreamingRequest: &speechpb.StreamingRecognizeRequest_StreamingConfig{
			StreamingConfig: &speechpb.StreamingRecognitionConfig{
				Config: &speechpb.RecognitionConfig{
					Encoding:                   encoding,
					SampleRateHertz:            int32(config.SampleRate),
					LanguageCode:               language,
					EnableAutomaticPunctuation: true,
				},
				InterimResults: false,
			},
		},
	}); err != nil {
		cancel()
		return nil, fmt.Errorf("failed to send streaming config: %w", err)
	}

	s := &GoogleSpeechToTextStream{
		stream: stream,
		ctx:    ctx,
		cancel: cancel,
		result: make(chan transcription, 1),
		logger: g.logger,
	}
	go s.receiveResults()
	return s, nil
}

type transcription struct {
	text string
	err  error
}

// GoogleSpeechToTextStream is one recognition stream
type GoogleSpeechToTextStream struct {
	stream speechpb.Speech_StreamingRecognizeClient
	ctx    context.Context
	cancel context.CancelFunc
	result chan transcription
	logger *zap.Logger

	mu            sync.Mutex
	audioReceived bool
	ended         bool
}

func (g *GoogleSpeechToTextStream) Stream(data []byte) error {
	if len(data) == 0 {
		return nil
	}

	g.mu.Lock()
	defer g.mu.Unlock()
	if g.ended {
		return errors.New("stream already ended")
	}
	g.audioReceived = true

	if err := g.stream.Send(&speechpb.StreamingRecognizeRequest{
		StreamingRequest: &speechpb.StreamingRecognizeRequest_AudioContent{
			AudioContent: data,
		},
	}); err != nil {
		return fmt.Errorf("failed to send audio data: %w", err)
	}
	return nil
}

func (g *GoogleSpeechToTextStream) End() (string, error) {
	g.mu.Lock()
	if g.ended {
		g.mu.Unlock()
		return "", errors.New("stream already ended")
	}
	g.ended = true
	received := g.audioReceived
	g.mu.Unlock()
	defer g.cancel()

	if !received {
		return "", repositories.ErrNoSpeech
	}
	if err := g.stream.CloseSend(); err != nil {
		return "", fmt.Errorf("failed to close send stream: %w", err)
	}

	select {
	case <-g.ctx.Done():
		return "", fmt.Errorf("context cancelled while waiting for result: %w", g.ctx.Err())
	case res := <-g.result:
		if res.err != nil {
			return "", res.err
		}
		if res.text == "" {
			return "", repositories.ErrNoSpeech
		}
		return res.text, nil
	}
}

// Abort drops the stream without waiting for a transcript
func (g *GoogleSpeechToTextStream) Abort() {
	g.mu.Lock()
	g.ended = true
	g.mu.Unlock()
	g.cancel()
}

func (g *GoogleSpeechToTextStream) receiveResults() {
	var parts []string
	for {
		resp, err := g.stream.Recv()
		if err == io.EOF {
			g.result <- transcription{text: strings.TrimSpace(strings.Join(parts, " "))}
			return
		}
		if err != nil {
			if g.ctx.Err() == nil {
				g.logger.Warn("Speech recognition stream failed", zap.Error(err))
			}
			g.result <- transcription{err: fmt.Errorf("failed to receive response: %w", err)}
			return
		}

		for _, result := range resp.Results {
			if result.IsFinal && len(result.Alternatives) > 0 {
				parts = append(parts, result.Alternatives[0].Transcript)
			}
		}
	}
}

// TranscribeAudio converts a complete utterance to text
func (g *GoogleSpeechToText) TranscribeAudio(ctx context.Context, audioData []byte, config repositories.AudioConfig) (string, error) {
	stream, err := g.InitTranscribeStreaming(ctx, config)
	if err != nil {
		return "", fmt.Errorf("failed to initialize streaming: %w", err)
	}
	if err := stream.Stream(audioData); err != nil {
		stream.Abort()
		return "", fmt.Errorf("failed to stream audio data: %w", err)
	}
	return stream.End()
}

// getAudioEncoding converts string encoding to Google Speech API enum
func getAudioEncoding(encoding string) (speechpb.RecognitionConfig_AudioEncoding, error) {
	switch strings.ToUpper(encoding) {
	case "", "PCM16", "WAV", "LINEAR16":
		return speechpb.RecognitionConfig_LINEAR16, nil
	case "FLAC":
		return speechpb.RecognitionConfig_FLAC, nil
	case "MULAW":
		return speechpb.RecognitionConfig_MULAW, nil
	case "OGG_OPUS":
		return speechpb.RecognitionConfig_OGG_OPUS, nil
	case "WEBM_OPUS":
		return speechpb.RecognitionConfig_WEBM_OPUS, nil
	default:
		return speechpb.RecognitionConfig_ENCODING_UNSPECIFIED, fmt.Errorf("unsupported audio encoding: %s", encoding)
	}
}
