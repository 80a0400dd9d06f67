package websocket

import (
	"math"
	"testing"
	"time"

	"github.com/tutorline/server/internal/audio"
)

// pcmFrame renders n samples of a sine at amplitude amp as PCM16 bytes
func pcmFrame(n int, amp float64) []byte {
	samples := make([]float32, n)
	for i := range samples {
		samples[i] = float32(amp * math.Sin(2*math.Pi*440*float64(i)/float64(audio.DefaultSampleRate)))
	}
	return audio.Int16ToBytes(audio.Float32ToInt16(samples))
}

func TestVAD_DetectsTurn(t *testing.T) {
	v := newVAD(DefaultVADConfig())

	// 2400 samples is 100ms at 24kHz
	if got := v.process(pcmFrame(2400, 0)); got != vadNone {
		t.Fatalf("silence: got %v", got)
	}
	if got := v.process(pcmFrame(2400, 0.5)); got != vadStarted {
		t.Fatalf("speech onset: got %v", got)
	}
	if v.startMs() != 100 {
		t.Errorf("startMs = %d, want 100", v.startMs())
	}
	for i := 0; i < 3; i++ {
		if got := v.process(pcmFrame(2400, 0.5)); got != vadNone {
			t.Fatalf("continued speech: got %v", got)
		}
	}
	for i := 0; i < 4; i++ {
		if got := v.process(pcmFrame(2400, 0)); got != vadNone {
			t.Fatalf("short pause %d: got %v", i, got)
		}
	}
	if got := v.process(pcmFrame(2400, 0)); got != vadStopped {
		t.Fatalf("end of speech: got %v", got)
	}
	if v.endMs() != 1000 {
		t.Errorf("endMs = %d, want 1000", v.endMs())
	}
}

func TestVAD_DiscardsClicks(t *testing.T) {
	v := newVAD(VADConfig{
		Threshold:       0.02,
		SilenceDuration: 200 * time.Millisecond,
		MinSpeech:       150 * time.Millisecond,
		SampleRate:      audio.DefaultSampleRate,
	})

	if got := v.process(pcmFrame(1200, 0.8)); got != vadStarted {
		t.Fatalf("click onset: got %v", got)
	}
	v.process(pcmFrame(2400, 0))
	if got := v.process(pcmFrame(2400, 0)); got != vadDiscarded {
		t.Fatalf("50ms burst should be discarded, got %v", got)
	}
}

func TestVAD_ResetAndEmpty(t *testing.T) {
	v := newVAD(DefaultVADConfig())
	if got := v.process(nil); got != vadNone {
		t.Errorf("empty chunk: got %v", got)
	}
	v.process(pcmFrame(2400, 0.5))
	v.reset()
	if got := v.process(pcmFrame(2400, 0.5)); got != vadStarted {
		t.Errorf("after reset a loud frame starts a new turn, got %v", got)
	}
}
