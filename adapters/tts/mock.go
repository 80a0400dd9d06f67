package tts

import (
	"context"
	"math"
	"strings"
	"sync"

	"github.com/tutorline/server/domain/repositories"
	"github.com/tutorline/server/internal/audio"
)

// samples of tone per character of text
const mockSamplesPerRune = 240

// MockTTS renders a quiet tone whose length follows the text length
type MockTTS struct {
	ChunkSize int

	mu   sync.Mutex
	fail error
}

var _ repositories.TextToSpeech = (*MockTTS)(nil)

// NewMockTTS creates a mock speaker emitting 24kHz PCM16
func NewMockTTS() *MockTTS {
	return &MockTTS{ChunkSize: defaultChunkSize}
}

// FailWith makes every subsequent conversion return err
func (m *MockTTS) FailWith(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.fail = err
}

func (m *MockTTS) ConvertTextToSpeech(ctx context.Context, text string) (<-chan []byte, error) {
	m.mu.Lock()
	fail := m.fail
	m.mu.Unlock()
	if fail != nil {
		return nil, fail
	}
	if strings.TrimSpace(text) == "" {
		return nil, ErrEmptyText
	}

	n := len([]rune(text)) * mockSamplesPerRune
	samples := make([]float32, n)
	for i := range samples {
		samples[i] = 0.1 * float32(math.Sin(2*math.Pi*440*float64(i)/audio.DefaultSampleRate))
	}
	pcm := audio.Int16ToBytes(audio.Float32ToInt16(samples))

	size := m.ChunkSize
	if size <= 0 {
		size = defaultChunkSize
	}
	size += size % 2

	out := make(chan []byte)
	go func() {
		defer close(out)
		for start := 0; start < len(pcm); start += size {
			end := min(start+size, len(pcm))
			select {
			case out <- pcm[start:end]:
			case <-ctx.Done():
				return
			}
		}
	}()
	return out, nil
}
