package repositories

import "context"

// TextToSpeech streams synthesized speech as mono PCM16 chunks
type TextToSpeech interface {
	ConvertTextToSpeech(ctx context.Context, text string) (<-chan []byte, error)
}
