package audio

import (
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"math"
	"sync"

	"go.uber.org/zap"
)

var (
	// ErrMicrophoneDenied is returned when the device refuses access.
	ErrMicrophoneDenied = errors.New("audio: microphone access denied")
	// ErrMicrophoneUnavailable is returned when no capture device exists.
	ErrMicrophoneUnavailable = errors.New("audio: microphone unavailable")
	// ErrAlreadyCapturing is returned by Start on a running capture.
	ErrAlreadyCapturing = errors.New("audio: capture already started")
)

// CaptureConfig is the constraint set requested from the microphone.
type CaptureConfig struct {
	SampleRate       int
	Channels         int
	FrameSize        int
	EchoCancellation bool
	NoiseSuppression bool
	AutoGainControl  bool
}

// DefaultCaptureConfig returns mono 24 kHz capture with all processing enabled.
func DefaultCaptureConfig() CaptureConfig {
	return CaptureConfig{
		SampleRate:       DefaultSampleRate,
		Channels:         1,
		FrameSize:        DefaultFrameSize,
		EchoCancellation: true,
		NoiseSuppression: true,
		AutoGainControl:  true,
	}
}

// Microphone opens a stream of raw samples. The reader format is defined by
// the implementation; ReaderMicrophone documents the formats it accepts.
type Microphone interface {
	Open(ctx context.Context, cfg CaptureConfig) (FrameReader, error)
}

// FrameReader yields normalized mono frames until io.EOF.
type FrameReader interface {
	ReadFrame(frame []float32) (int, error)
	io.Closer
}

// FrameHandler receives each captured frame. The slice is reused after return.
type FrameHandler func(frame []float32)

// Capture pulls frames from a Microphone and forwards them to a handler.
type Capture struct {
	mic    Microphone
	cfg    CaptureConfig
	logger *zap.Logger

	mu     sync.Mutex
	reader FrameReader
	cancel context.CancelFunc
	done   chan struct{}
}

// NewCapture creates an idle capture adapter.
func NewCapture(mic Microphone, cfg CaptureConfig, logger *zap.Logger) *Capture {
	if cfg.FrameSize <= 0 {
		cfg.FrameSize = DefaultFrameSize
	}
	if cfg.SampleRate <= 0 {
		cfg.SampleRate = DefaultSampleRate
	}
	if cfg.Channels <= 0 {
		cfg.Channels = 1
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Capture{mic: mic, cfg: cfg, logger: logger}
}

// Config returns the constraints used when opening the microphone.
func (c *Capture) Config() CaptureConfig {
	return c.cfg
}

// Start opens the microphone and begins delivering frames to onFrame. Device
// errors are returned as-is; nothing is retried.
func (c *Capture) Start(ctx context.Context, onFrame FrameHandler) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.reader != nil {
		return ErrAlreadyCapturing
	}
	if c.mic == nil {
		return ErrMicrophoneUnavailable
	}

	reader, err := c.mic.Open(ctx, c.cfg)
	if err != nil {
		return fmt.Errorf("open microphone: %w", err)
	}

	runCtx, cancel := context.WithCancel(context.Background())
	c.reader = reader
	c.cancel = cancel
	c.done = make(chan struct{})

	go c.readLoop(runCtx, reader, onFrame, c.done)

	c.logger.Info("Audio capture started",
		zap.Int("sampleRate", c.cfg.SampleRate),
		zap.Int("frameSize", c.cfg.FrameSize))
	return nil
}

func (c *Capture) readLoop(ctx context.Context, reader FrameReader, onFrame FrameHandler, done chan struct{}) {
	defer close(done)

	frame := make([]float32, c.cfg.FrameSize)
	for {
		if ctx.Err() != nil {
			return
		}
		n, err := reader.ReadFrame(frame)
		if n > 0 && ctx.Err() == nil {
			onFrame(frame[:n])
		}
		if err != nil {
			if !errors.Is(err, io.EOF) && ctx.Err() == nil {
				c.logger.Warn("Audio capture read failed", zap.Error(err))
			}
			return
		}
	}
}

// Done is closed when the current capture's read loop exits, or nil when idle.
func (c *Capture) Done() <-chan struct{} {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.done
}

// Stop releases the microphone. Safe to call repeatedly or before Start.
func (c *Capture) Stop() {
	c.mu.Lock()
	reader, cancel, done := c.reader, c.cancel, c.done
	c.reader, c.cancel, c.done = nil, nil, nil
	c.mu.Unlock()

	if reader == nil {
		return
	}
	cancel()
	if err := reader.Close(); err != nil {
		c.logger.Warn("Failed to close microphone", zap.Error(err))
	}
	<-done
	c.logger.Info("Audio capture stopped")
}

// SampleFormat is the raw encoding read by ReaderMicrophone.
type SampleFormat string

const (
	FormatF32LE SampleFormat = "f32le"
	FormatS16LE SampleFormat = "s16le"
)

// ReaderMicrophone serves capture from an io.Reader, e.g. a raw file or pipe.
type ReaderMicrophone struct {
	Source io.Reader
	Format SampleFormat
}

var _ Microphone = (*ReaderMicrophone)(nil)

// Open wraps the source. The source is consumed once; a nil source is unavailable.
func (m *ReaderMicrophone) Open(_ context.Context, cfg CaptureConfig) (FrameReader, error) {
	if m.Source == nil {
		return nil, ErrMicrophoneUnavailable
	}
	if cfg.Channels != 1 {
		return nil, fmt.Errorf("%w: only mono capture is supported", ErrMicrophoneUnavailable)
	}
	switch m.Format {
	case FormatF32LE, FormatS16LE, "":
	default:
		return nil, fmt.Errorf("unsupported sample format %q", m.Format)
	}
	format := m.Format
	if format == "" {
		format = FormatS16LE
	}
	return &readerFrames{src: m.Source, format: format}, nil
}

type readerFrames struct {
	src    io.Reader
	format SampleFormat
	buf    []byte

	closeOnce sync.Once
}

func (r *readerFrames) ReadFrame(frame []float32) (int, error) {
	width := 2
	if r.format == FormatF32LE {
		width = 4
	}
	need := len(frame) * width
	if cap(r.buf) < need {
		r.buf = make([]byte, need)
	}
	buf := r.buf[:need]

	n, err := io.ReadFull(r.src, buf)
	samples := n / width
	for i := 0; i < samples; i++ {
		b := buf[i*width:]
		if r.format == FormatF32LE {
			frame[i] = math.Float32frombits(binary.LittleEndian.Uint32(b))
		} else {
			frame[i] = int16ToUnit(int16(binary.LittleEndian.Uint16(b)))
		}
	}
	if errors.Is(err, io.ErrUnexpectedEOF) {
		err = io.EOF
	}
	return samples, err
}

func (r *readerFrames) Close() error {
	var err error
	r.closeOnce.Do(func() {
		if c, ok := r.src.(io.Closer); ok {
			err = c.Close()
		}
	})
	return err
}
