package websocket

import (
	"math"
	"time"

	"github.com/tutorline/server/internal/audio"
)

// VADConfig tunes the energy based turn detector
type VADConfig struct {
	// Threshold is the RMS level in [0,1] that counts as speech.
	Threshold float64
	// SilenceDuration of quiet audio ends a turn.
	SilenceDuration time.Duration
	// MinSpeech shorter bursts are discarded as noise.
	MinSpeech  time.Duration
	SampleRate int
}

// DefaultVADConfig suits 24kHz mono speech from a laptop microphone
func DefaultVADConfig() VADConfig {
	return VADConfig{
		Threshold:       0.02,
		SilenceDuration: 500 * time.Millisecond,
		MinSpeech:       150 * time.Millisecond,
		SampleRate:      audio.DefaultSampleRate,
	}
}

type vadResult int

const (
	vadNone vadResult = iota
	vadStarted
	vadStopped
	vadDiscarded
)

// vad tracks speech boundaries across appended PCM16 chunks. Not safe for
// concurrent use.
type vad struct {
	cfg VADConfig

	elapsed  time.Duration
	speaking bool
	startAt  time.Duration
	speech   time.Duration
	silence  time.Duration
}

func newVAD(cfg VADConfig) *vad {
	return &vad{cfg: cfg}
}

// process consumes one chunk and reports a boundary crossed by it
func (v *vad) process(pcm []byte) vadResult {
	samples := audio.BytesToInt16(pcm)
	if len(samples) == 0 {
		return vadNone
	}
	d := audio.Duration(len(samples), v.cfg.SampleRate)
	loud := rms(samples) >= v.cfg.Threshold
	defer func() { v.elapsed += d }()

	if !v.speaking {
		if !loud {
			return vadNone
		}
		v.speaking = true
		v.startAt = v.elapsed
		v.speech = d
		v.silence = 0
		return vadStarted
	}

	if loud {
		v.speech += d
		v.silence = 0
		return vadNone
	}
	v.silence += d
	if v.silence < v.cfg.SilenceDuration {
		return vadNone
	}

	v.speaking = false
	if v.speech < v.cfg.MinSpeech {
		return vadDiscarded
	}
	return vadStopped
}

func (v *vad) reset() {
	v.speaking = false
	v.speech = 0
	v.silence = 0
}

// startMs and endMs locate the current or last turn on the input timeline
func (v *vad) startMs() int { return int(v.startAt / time.Millisecond) }
func (v *vad) endMs() int   { return int(v.elapsed / time.Millisecond) }

func rms(samples []int16) float64 {
	var sum float64
	for _, s := range samples {
		f := float64(s) / 32768
		sum += f * f
	}
	return math.Sqrt(sum / float64(len(samples)))
}
