package realtime

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/tutorline/server/domain/entities"
	"github.com/tutorline/server/internal/audio"
)

// State is the lifecycle state of a Session.
type State string

const (
	StateDisconnected State = "disconnected"
	StateConnecting   State = "connecting"
	StateConnected    State = "connected"
	StateEnded        State = "ended"
)

var (
	// ErrNotConnected is returned by operations that need an open channel.
	ErrNotConnected = errors.New("realtime: session not connected")
	// ErrSessionBusy is returned by Init when the session is not disconnected.
	ErrSessionBusy = errors.New("realtime: session already started")
)

// Config wires the collaborators of a Session. Microphone and Player are
// optional; without them the session runs text-only.
type Config struct {
	Dialer     Dialer
	Microphone audio.Microphone
	Capture    audio.CaptureConfig
	Player     audio.Player
	Voice      string
	// Ceiling ends the session automatically. Zero means the default.
	Ceiling time.Duration
	Logger  *zap.Logger
}

// Session is one tutoring conversation over a realtime transport. Create it
// with NewSession and dispose of it with EndSession or Disconnect.
type Session struct {
	cfg    Config
	logger *zap.Logger

	mu        sync.Mutex
	state     State
	record    *entities.Session
	subject   entities.Subject
	transport Transport
	capture   *audio.Capture
	playback  *audio.Queue
	timer     *time.Timer
	prompted  int
	scripted  map[string]string

	subsMu  sync.Mutex
	subs    map[int]*mailbox
	nextSub int
}

// NewSession creates a disconnected session.
func NewSession(cfg Config) *Session {
	if cfg.Ceiling <= 0 {
		cfg.Ceiling = entities.DefaultSessionCeiling
	}
	if cfg.Logger == nil {
		cfg.Logger = zap.NewNop()
	}
	if cfg.Capture.SampleRate == 0 {
		cfg.Capture = audio.DefaultCaptureConfig()
	}
	return &Session{
		cfg:    cfg,
		logger: cfg.Logger,
		state:  StateDisconnected,
		subs:   make(map[int]*mailbox),
	}
}

// Subscribe returns a channel of every inbound event plus local state changes.
// The channel is closed by the returned func or when the session ends.
func (s *Session) Subscribe() (<-chan Event, func()) {
	s.subsMu.Lock()
	defer s.subsMu.Unlock()

	id := s.nextSub
	s.nextSub++
	m := newMailbox()
	if s.subs == nil {
		// session already ended
		m.close()
		return m.out, func() {}
	}
	s.subs[id] = m

	return m.out, func() {
		s.subsMu.Lock()
		delete(s.subs, id)
		s.subsMu.Unlock()
		m.drop()
	}
}

func (s *Session) emit(ev Event) {
	s.subsMu.Lock()
	defer s.subsMu.Unlock()
	for _, m := range s.subs {
		m.push(ev)
	}
}

func (s *Session) closeSubscribers() {
	s.subsMu.Lock()
	defer s.subsMu.Unlock()
	for _, m := range s.subs {
		m.close()
	}
	s.subs = nil
}

func (s *Session) setState(st State) {
	s.mu.Lock()
	changed := s.state != st
	s.state = st
	s.mu.Unlock()
	if changed {
		s.emit(Event{Type: EventSessionState, State: st})
	}
}

// State returns the lifecycle state.
func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Record returns a copy of the session record, or false before Init.
func (s *Session) Record() (entities.Session, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.record == nil {
		return entities.Session{}, false
	}
	return s.record.Snapshot(), true
}

// Subject returns the active tutoring persona.
func (s *Session) Subject() entities.Subject {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.subject
}

// Init connects the transport for subject, starts capture and sends the welcome.
func (s *Session) Init(ctx context.Context, subject string) error {
	if s.cfg.Dialer == nil {
		return errors.New("realtime: no dialer configured")
	}

	s.mu.Lock()
	if s.state != StateDisconnected {
		s.mu.Unlock()
		return ErrSessionBusy
	}
	s.state = StateConnecting
	s.mu.Unlock()
	s.emit(Event{Type: EventSessionState, State: StateConnecting})

	persona := entities.LookupSubject(subject)
	t, err := s.cfg.Dialer.Dial(ctx, persona.Key)
	if err != nil {
		s.setState(StateDisconnected)
		return fmt.Errorf("dial realtime transport: %w", err)
	}

	var playback *audio.Queue
	if s.cfg.Player != nil {
		playback = audio.NewQueue(s.cfg.Player, s.cfg.Capture.SampleRate, s.logger)
	}
	var capture *audio.Capture
	if s.cfg.Microphone != nil {
		capture = audio.NewCapture(s.cfg.Microphone, s.cfg.Capture, s.logger)
	}

	s.mu.Lock()
	s.record = entities.NewSession(persona.Key)
	s.subject = persona
	s.transport = t
	s.playback = playback
	s.capture = capture
	s.prompted = 0
	s.scripted = make(map[string]string)
	s.timer = time.AfterFunc(s.cfg.Ceiling, s.onCeiling)
	s.mu.Unlock()

	go s.readLoop(t)

	if capture != nil {
		if err := capture.Start(ctx, s.onFrame); err != nil {
			s.teardown(StateDisconnected)
			return err
		}
	}

	s.mu.Lock()
	if s.state != StateConnecting || s.transport != t {
		// torn down while starting
		s.mu.Unlock()
		return ErrNotConnected
	}
	s.state = StateConnected
	s.mu.Unlock()
	s.emit(Event{Type: EventSessionState, State: StateConnected})
	s.logger.Info("Realtime session connected",
		zap.String("sessionID", s.recordID()),
		zap.String("subject", persona.Key))

	if err := t.Send(Event{Type: EventSessionUpdate, Session: s.sessionConfig(persona)}); err != nil {
		s.logger.Warn("Failed to send session update", zap.Error(err))
	}
	s.sendScripted(t, PurposeWelcome, persona.Welcome)
	return nil
}

func (s *Session) sessionConfig(persona entities.Subject) *SessionConfig {
	return &SessionConfig{
		Subject:           persona.Key,
		Instructions:      persona.Instructions,
		Voice:             s.cfg.Voice,
		Modalities:        []string{"audio", "text"},
		InputAudioFormat:  AudioFormatPCM16,
		OutputAudioFormat: AudioFormatPCM16,
		SampleRate:        s.cfg.Capture.SampleRate,
	}
}

func (s *Session) recordID() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.record == nil {
		return ""
	}
	return s.record.ID
}

// sendScripted appends text as an assistant message and asks the server to speak it.
func (s *Session) sendScripted(t Transport, purpose, text string) {
	s.mu.Lock()
	if s.record != nil {
		s.record.AppendMessage(entities.MessageRoleAssistant, text)
	}
	s.mu.Unlock()

	s.speak(t, purpose, text)
}

func (s *Session) speak(t Transport, purpose, text string) {
	if t == nil {
		return
	}
	if err := t.Send(ScriptedResponse(purpose, text)); err != nil {
		s.logger.Warn("Failed to send scripted response",
			zap.String("purpose", purpose),
			zap.Error(err))
	}
}

func (s *Session) onFrame(frame []float32) {
	s.mu.Lock()
	t := s.transport
	s.mu.Unlock()
	if t == nil {
		return
	}
	if err := t.Send(Event{Type: EventInputAudioBufferAppend, Audio: audio.EncodeFrame(frame)}); err != nil {
		s.logger.Debug("Dropped audio frame", zap.Error(err))
	}
}

func (s *Session) onCeiling() {
	s.logger.Info("Realtime session reached its time ceiling", zap.String("sessionID", s.recordID()))
	if err := s.EndSession(context.Background()); err != nil {
		s.logger.Warn("Failed to end session at ceiling", zap.Error(err))
	}
}

func (s *Session) readLoop(t Transport) {
	for ev := range t.Events() {
		s.handleEvent(t, ev)
	}

	err := t.Err()
	s.mu.Lock()
	current := s.transport == t
	s.mu.Unlock()
	if !current || err == nil {
		return
	}

	s.logger.Warn("Realtime transport failed", zap.Error(err))
	s.emit(NewErrorEvent(ErrorTypeTransport, "connection_lost", err.Error()))
	s.teardown(StateDisconnected)
}

func (s *Session) handleEvent(t Transport, ev Event) {
	var prompt string

	s.mu.Lock()
	if s.transport != t {
		s.mu.Unlock()
		return
	}
	switch ev.Type {
	case EventResponseCreated:
		if purpose := ev.Response.Purpose(); purpose != "" && ev.Response.ID != "" {
			s.scripted[ev.Response.ID] = purpose
		}
	case EventInputTranscriptionCompleted:
		if ev.Transcript != "" {
			s.record.AppendMessage(entities.MessageRoleUser, ev.Transcript)
		}
	case EventResponseTranscriptDone:
		// scripted text was appended when it was sent
		if _, ok := s.scripted[ev.ResponseID]; !ok && ev.Transcript != "" {
			s.record.AppendMessage(entities.MessageRoleAssistant, ev.Transcript)
		}
	case EventResponseDone:
		if ev.Response != nil {
			delete(s.scripted, ev.Response.ID)
		}
		if ev.Response != nil && ev.Response.Purpose() == "" && ev.Response.Status == ResponseStatusCompleted {
			count, promptSwitch := s.record.RecordInteraction()
			if promptSwitch && count > s.prompted {
				s.prompted = count
				prompt = s.subject.SwitchPrompt()
				s.record.AppendMessage(entities.MessageRoleAssistant, prompt)
			}
		}
	}
	playback := s.playback
	s.mu.Unlock()

	if ev.Type == EventResponseAudioDelta && playback != nil {
		if err := playback.EnqueueBase64(ev.Delta); err != nil {
			s.logger.Warn("Dropping audio delta", zap.Error(err))
		}
	}

	s.emit(ev)

	if prompt != "" {
		s.speak(t, PurposeSwitchPrompt, prompt)
	}
}

// SendMessage sends a typed user message and requests a reply.
func (s *Session) SendMessage(ctx context.Context, text string) error {
	s.mu.Lock()
	if s.state != StateConnected || s.transport == nil {
		s.mu.Unlock()
		return ErrNotConnected
	}
	t := s.transport
	s.record.AppendMessage(entities.MessageRoleUser, text)
	s.mu.Unlock()

	if err := t.Send(Event{Type: EventConversationItemCreate, Item: UserTextItem(text)}); err != nil {
		return err
	}
	return t.Send(Event{Type: EventResponseCreate})
}

// SwitchSubject resets the conversation for subject and sends its welcome.
// The session record and its interaction count are kept.
func (s *Session) SwitchSubject(ctx context.Context, subject string) error {
	persona := entities.LookupSubject(subject)

	s.mu.Lock()
	if s.state != StateConnected || s.transport == nil {
		s.mu.Unlock()
		return ErrNotConnected
	}
	t := s.transport
	s.record.SwitchSubject(persona.Key)
	s.subject = persona
	s.mu.Unlock()

	if err := t.Send(Event{Type: EventResponseCancel}); err != nil {
		s.logger.Debug("Failed to cancel in-flight response", zap.Error(err))
	}
	if err := t.Send(Event{Type: EventSessionUpdate, Session: s.sessionConfig(persona)}); err != nil {
		return err
	}
	s.sendScripted(t, PurposeWelcome, persona.Welcome)
	return nil
}

// EndSession ends the record, attempts a goodbye and tears everything down.
// Safe to call repeatedly and after the transport has failed.
func (s *Session) EndSession(ctx context.Context) error {
	s.mu.Lock()
	if s.state == StateEnded {
		s.mu.Unlock()
		return nil
	}
	t := s.transport
	goodbye := s.subject.Goodbye
	if s.record != nil {
		s.record.End()
	}
	s.mu.Unlock()

	if goodbye != "" {
		s.sendScripted(t, PurposeGoodbye, goodbye)
	}

	s.teardown(StateEnded)
	s.closeSubscribers()
	return nil
}

// Disconnect releases capture, playback, transport and timers. The record is
// kept and Init may be called again. Idempotent.
func (s *Session) Disconnect() {
	s.teardown(StateDisconnected)
}

func (s *Session) teardown(final State) {
	s.mu.Lock()
	t, capture, playback, timer := s.transport, s.capture, s.playback, s.timer
	s.transport, s.capture, s.playback, s.timer = nil, nil, nil, nil
	prev := s.state
	if prev != StateEnded {
		s.state = final
	}
	st := s.state
	s.mu.Unlock()

	if timer != nil {
		timer.Stop()
	}
	if capture != nil {
		capture.Stop()
	}
	if playback != nil {
		playback.Stop()
	}
	if t != nil {
		if err := t.Close(); err != nil {
			s.logger.Debug("Transport close returned error", zap.Error(err))
		}
	}

	if prev != st {
		s.emit(Event{Type: EventSessionState, State: st})
		s.logger.Info("Realtime session state changed",
			zap.String("from", string(prev)),
			zap.String("to", string(st)))
	}
}
