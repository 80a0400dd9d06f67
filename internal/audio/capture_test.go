package audio

import (
	"bytes"
	"context"
	"encoding/binary"
	"errors"
	"io"
	"math"
	"sync"
	"testing"
	"time"

	"go.uber.org/zap/zaptest"
)

type deniedMicrophone struct{}

func (deniedMicrophone) Open(context.Context, CaptureConfig) (FrameReader, error) {
	return nil, ErrMicrophoneDenied
}

// endlessReader yields silence until closed.
type endlessReader struct {
	mu     sync.Mutex
	closed bool
}

func (r *endlessReader) Read(p []byte) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return 0, io.ErrClosedPipe
	}
	for i := range p {
		p[i] = 0
	}
	time.Sleep(time.Millisecond)
	return len(p), nil
}

func (r *endlessReader) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.closed = true
	return nil
}

func TestDefaultCaptureConfig(t *testing.T) {
	cfg := DefaultCaptureConfig()
	if cfg.SampleRate != 24000 || cfg.Channels != 1 || cfg.FrameSize != 4096 {
		t.Errorf("unexpected defaults %+v", cfg)
	}
	if !cfg.EchoCancellation || !cfg.NoiseSuppression || !cfg.AutoGainControl {
		t.Error("processing flags should default to enabled")
	}
}

func TestCapture_S16Frames(t *testing.T) {
	samples := make([]int16, 10)
	for i := range samples {
		samples[i] = int16(i * 1000)
	}
	mic := &ReaderMicrophone{Source: bytes.NewReader(Int16ToBytes(samples)), Format: FormatS16LE}

	cfg := DefaultCaptureConfig()
	cfg.FrameSize = 4
	capture := NewCapture(mic, cfg, zaptest.NewLogger(t))

	var mu sync.Mutex
	var got []float32
	var sizes []int
	err := capture.Start(context.Background(), func(frame []float32) {
		mu.Lock()
		defer mu.Unlock()
		sizes = append(sizes, len(frame))
		got = append(got, frame...)
	})
	if err != nil {
		t.Fatalf("Start: %v", err)
	}

	select {
	case <-capture.Done():
	case <-time.After(time.Second):
		t.Fatal("capture did not reach end of source")
	}
	capture.Stop()

	mu.Lock()
	defer mu.Unlock()
	if len(sizes) != 3 || sizes[0] != 4 || sizes[1] != 4 || sizes[2] != 2 {
		t.Errorf("unexpected frame sizes %v", sizes)
	}
	want := Int16ToFloat32(samples)
	if len(got) != len(want) {
		t.Fatalf("got %d samples, want %d", len(got), len(want))
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("sample %d: got %v, want %v", i, got[i], want[i])
		}
	}
}

func TestCapture_F32Frames(t *testing.T) {
	var buf bytes.Buffer
	for _, v := range []float32{0.25, -0.25} {
		_ = binary.Write(&buf, binary.LittleEndian, math.Float32bits(v))
	}
	mic := &ReaderMicrophone{Source: &buf, Format: FormatF32LE}
	capture := NewCapture(mic, DefaultCaptureConfig(), nil)

	frames := make(chan []float32, 1)
	if err := capture.Start(context.Background(), func(frame []float32) {
		frames <- append([]float32(nil), frame...)
	}); err != nil {
		t.Fatalf("Start: %v", err)
	}
	defer capture.Stop()

	select {
	case f := <-frames:
		if len(f) != 2 || f[0] != 0.25 || f[1] != -0.25 {
			t.Errorf("unexpected frame %v", f)
		}
	case <-time.After(time.Second):
		t.Fatal("no frame delivered")
	}
}

func TestCapture_DeniedIsReturned(t *testing.T) {
	capture := NewCapture(deniedMicrophone{}, DefaultCaptureConfig(), zaptest.NewLogger(t))
	err := capture.Start(context.Background(), func([]float32) {})
	if !errors.Is(err, ErrMicrophoneDenied) {
		t.Fatalf("expected ErrMicrophoneDenied, got %v", err)
	}
	capture.Stop()
}

func TestCapture_Unavailable(t *testing.T) {
	err := NewCapture(nil, DefaultCaptureConfig(), nil).Start(context.Background(), func([]float32) {})
	if !errors.Is(err, ErrMicrophoneUnavailable) {
		t.Errorf("nil microphone: expected ErrMicrophoneUnavailable, got %v", err)
	}

	err = NewCapture(&ReaderMicrophone{}, DefaultCaptureConfig(), nil).Start(context.Background(), func([]float32) {})
	if !errors.Is(err, ErrMicrophoneUnavailable) {
		t.Errorf("nil source: expected ErrMicrophoneUnavailable, got %v", err)
	}
}

func TestCapture_StopReleasesAndIsIdempotent(t *testing.T) {
	src := &endlessReader{}
	capture := NewCapture(&ReaderMicrophone{Source: src}, DefaultCaptureConfig(), zaptest.NewLogger(t))

	// never started
	capture.Stop()

	delivered := make(chan struct{}, 1)
	if err := capture.Start(context.Background(), func([]float32) {
		select {
		case delivered <- struct{}{}:
		default:
		}
	}); err != nil {
		t.Fatalf("Start: %v", err)
	}
	if err := capture.Start(context.Background(), func([]float32) {}); !errors.Is(err, ErrAlreadyCapturing) {
		t.Errorf("expected ErrAlreadyCapturing, got %v", err)
	}

	<-delivered
	capture.Stop()
	capture.Stop()

	src.mu.Lock()
	closed := src.closed
	src.mu.Unlock()
	if !closed {
		t.Error("Stop did not release the source")
	}
	if capture.Done() != nil {
		t.Error("Done should be nil after Stop")
	}
}
