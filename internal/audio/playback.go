package audio

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync"
	"time"

	"go.uber.org/zap"
)

// ErrQueueStopped is returned by Enqueue after Stop.
var ErrQueueStopped = errors.New("audio: playback queue stopped")

// Player decodes one WAV buffer and blocks until it has finished playing.
type Player interface {
	Play(ctx context.Context, wav []byte) error
}

// Queue plays PCM chunks strictly in arrival order, one at a time.
type Queue struct {
	player     Player
	sampleRate int
	logger     *zap.Logger

	mu      sync.Mutex
	pending [][]byte
	playing bool
	stopped bool
	idle    chan struct{}

	ctx    context.Context
	cancel context.CancelFunc
}

// NewQueue creates an idle queue that hands wrapped chunks to player.
func NewQueue(player Player, sampleRate int, logger *zap.Logger) *Queue {
	if sampleRate <= 0 {
		sampleRate = DefaultSampleRate
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	ctx, cancel := context.WithCancel(context.Background())
	idle := make(chan struct{})
	close(idle)
	return &Queue{
		player:     player,
		sampleRate: sampleRate,
		logger:     logger,
		idle:       idle,
		ctx:        ctx,
		cancel:     cancel,
	}
}

// Enqueue appends a chunk of raw PCM16 and starts draining if idle.
func (q *Queue) Enqueue(chunk []byte) error {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.stopped {
		return ErrQueueStopped
	}
	q.pending = append(q.pending, chunk)
	if !q.playing {
		q.playing = true
		q.idle = make(chan struct{})
		go q.drain(q.idle)
	}
	return nil
}

// EnqueueBase64 decodes a transport audio delta and enqueues it.
func (q *Queue) EnqueueBase64(b64 string) error {
	chunk, err := DecodeChunk(b64)
	if err != nil {
		return err
	}
	return q.Enqueue(chunk)
}

func (q *Queue) drain(idle chan struct{}) {
	defer close(idle)

	for {
		q.mu.Lock()
		if len(q.pending) == 0 || q.stopped {
			q.pending = nil
			q.playing = false
			q.mu.Unlock()
			return
		}
		chunk := q.pending[0]
		q.pending[0] = nil
		q.pending = q.pending[1:]
		q.mu.Unlock()

		if err := q.player.Play(q.ctx, WrapWAV(chunk, q.sampleRate)); err != nil {
			if q.ctx.Err() != nil {
				continue
			}
			q.logger.Warn("Skipping audio chunk", zap.Int("bytes", len(chunk)), zap.Error(err))
		}
	}
}

// Len returns the number of chunks waiting behind the one playing.
func (q *Queue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.pending)
}

// Playing reports whether a drain is in progress.
func (q *Queue) Playing() bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.playing
}

// Wait blocks until the queue is idle or ctx is done.
func (q *Queue) Wait(ctx context.Context) error {
	q.mu.Lock()
	idle := q.idle
	q.mu.Unlock()

	select {
	case <-idle:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Stop drops pending chunks and cancels the chunk in flight. Idempotent.
func (q *Queue) Stop() {
	q.mu.Lock()
	if q.stopped {
		q.mu.Unlock()
		return
	}
	q.stopped = true
	q.pending = nil
	idle := q.idle
	q.mu.Unlock()

	q.cancel()
	<-idle
}

// WAVSink is a Player that validates each buffer and writes its samples to W.
// With Realtime set it also sleeps for the chunk's duration.
type WAVSink struct {
	W        io.Writer
	Realtime bool
}

var _ Player = (*WAVSink)(nil)

func (s *WAVSink) Play(ctx context.Context, wav []byte) error {
	info, data, err := ParseWAV(wav)
	if err != nil {
		return err
	}
	if info.Channels != 1 || info.BitsPerSample != BitDepth {
		return fmt.Errorf("%w: %d channels at %d bits", ErrInvalidWAV, info.Channels, info.BitsPerSample)
	}
	if s.W != nil {
		if _, err := s.W.Write(data); err != nil {
			return fmt.Errorf("write samples: %w", err)
		}
	}
	if !s.Realtime {
		return ctx.Err()
	}

	timer := time.NewTimer(Duration(len(data), info.SampleRate))
	defer timer.Stop()
	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
