package realtime

import (
	"bytes"
	"context"
	"encoding/base64"
	"errors"
	"sync"
	"testing"
	"time"

	"go.uber.org/zap/zaptest"

	"github.com/tutorline/server/domain/entities"
	"github.com/tutorline/server/internal/audio"
)

// fakeTransport records sent events and lets the test inject inbound ones.
type fakeTransport struct {
	mu      sync.Mutex
	sent    []Event
	closed  bool
	sendErr error

	events    chan Event
	err       error
	closeOnce sync.Once
}

func newFakeTransport() *fakeTransport {
	return &fakeTransport{events: make(chan Event, 64)}
}

func (f *fakeTransport) Send(ev Event) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.closed {
		return ErrTransportClosed
	}
	if f.sendErr != nil {
		return f.sendErr
	}
	f.sent = append(f.sent, ev)
	return nil
}

func (f *fakeTransport) Events() <-chan Event { return f.events }

func (f *fakeTransport) Err() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.err
}

func (f *fakeTransport) Close() error {
	f.closeOnce.Do(func() {
		f.mu.Lock()
		f.closed = true
		f.mu.Unlock()
		close(f.events)
	})
	return nil
}

// fail simulates a remote read error.
func (f *fakeTransport) fail(err error) {
	f.mu.Lock()
	f.err = err
	f.mu.Unlock()
	f.closeOnce.Do(func() {
		f.mu.Lock()
		f.closed = true
		f.mu.Unlock()
		close(f.events)
	})
}

func (f *fakeTransport) isClosed() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.closed
}

func (f *fakeTransport) sentOfType(typ string) []Event {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []Event
	for _, ev := range f.sent {
		if ev.Type == typ {
			out = append(out, ev)
		}
	}
	return out
}

func setupSession(t *testing.T, cfg Config) (*Session, *fakeTransport) {
	t.Helper()
	ft := newFakeTransport()
	cfg.Dialer = DialerFunc(func(context.Context, string) (Transport, error) {
		return ft, nil
	})
	cfg.Logger = zaptest.NewLogger(t)
	s := NewSession(cfg)
	t.Cleanup(func() { s.Disconnect() })
	return s, ft
}

// waitFor reads events until one of the given type arrives.
func waitFor(t *testing.T, ch <-chan Event, typ string) Event {
	t.Helper()
	timeout := time.After(2 * time.Second)
	for {
		select {
		case ev, ok := <-ch:
			if !ok {
				t.Fatalf("event channel closed while waiting for %s", typ)
			}
			if ev.Type == typ {
				return ev
			}
		case <-timeout:
			t.Fatalf("timed out waiting for %s", typ)
		}
	}
}

func completedResponse(id string) Event {
	return Event{
		Type:     EventResponseDone,
		Response: &Response{ID: id, Status: ResponseStatusCompleted},
	}
}

func TestSession_InitSendsWelcome(t *testing.T) {
	s, ft := setupSession(t, Config{})

	if err := s.Init(context.Background(), "english"); err != nil {
		t.Fatalf("Init: %v", err)
	}
	if s.State() != StateConnected {
		t.Fatalf("expected connected, got %s", s.State())
	}

	rec, ok := s.Record()
	if !ok {
		t.Fatal("expected a session record after Init")
	}
	welcome := entities.LookupSubject("english").Welcome
	if rec.Interactions != 0 {
		t.Errorf("expected 0 interactions, got %d", rec.Interactions)
	}
	if len(rec.Messages) != 1 || rec.Messages[0].Content != welcome {
		t.Errorf("expected messages == [welcome], got %+v", rec.Messages)
	}

	updates := ft.sentOfType(EventSessionUpdate)
	if len(updates) != 1 || updates[0].Session.Subject != "english" {
		t.Errorf("expected one session.update for english, got %+v", updates)
	}
	creates := ft.sentOfType(EventResponseCreate)
	if len(creates) != 1 || creates[0].Response.Purpose() != PurposeWelcome || creates[0].Response.Script != welcome {
		t.Errorf("expected scripted welcome, got %+v", creates)
	}

	if err := s.Init(context.Background(), "math"); !errors.Is(err, ErrSessionBusy) {
		t.Errorf("expected ErrSessionBusy on second Init, got %v", err)
	}
}

func TestSession_DialFailureLeavesDisconnected(t *testing.T) {
	s := NewSession(Config{
		Dialer: DialerFunc(func(context.Context, string) (Transport, error) {
			return nil, errors.New("connection refused")
		}),
		Logger: zaptest.NewLogger(t),
	})

	if err := s.Init(context.Background(), "math"); err == nil {
		t.Fatal("expected dial error")
	}
	if s.State() != StateDisconnected {
		t.Errorf("expected disconnected, got %s", s.State())
	}
}

func TestSession_NotConnectedOperations(t *testing.T) {
	s, _ := setupSession(t, Config{})

	if err := s.SendMessage(context.Background(), "hi"); !errors.Is(err, ErrNotConnected) {
		t.Errorf("SendMessage before Init: expected ErrNotConnected, got %v", err)
	}
	if err := s.SwitchSubject(context.Background(), "math"); !errors.Is(err, ErrNotConnected) {
		t.Errorf("SwitchSubject before Init: expected ErrNotConnected, got %v", err)
	}

	if err := s.Init(context.Background(), "math"); err != nil {
		t.Fatal(err)
	}
	s.Disconnect()
	if err := s.SendMessage(context.Background(), "hi"); !errors.Is(err, ErrNotConnected) {
		t.Errorf("SendMessage after Disconnect: expected ErrNotConnected, got %v", err)
	}
}

func TestSession_SwitchPromptEveryThirdResponse(t *testing.T) {
	s, ft := setupSession(t, Config{})
	events, unsubscribe := s.Subscribe()
	defer unsubscribe()

	if err := s.Init(context.Background(), "english"); err != nil {
		t.Fatal(err)
	}

	// scripted responses are not counted
	ft.events <- Event{Type: EventResponseDone, Response: &Response{
		ID: "resp_welcome", Status: ResponseStatusCompleted,
		Metadata: map[string]string{MetadataPurpose: PurposeWelcome},
	}}
	waitFor(t, events, EventResponseDone)

	for i := 0; i < 3; i++ {
		ft.events <- Event{Type: EventResponseTranscriptDone, ResponseID: "r", Transcript: "answer"}
		ft.events <- completedResponse("r")
		waitFor(t, events, EventResponseDone)
	}

	rec, _ := s.Record()
	if rec.Interactions != 3 {
		t.Fatalf("expected 3 interactions, got %d", rec.Interactions)
	}
	prompt := entities.LookupSubject("english").SwitchPrompt()
	last := rec.Messages[len(rec.Messages)-1]
	if last.Content != prompt {
		t.Errorf("expected switch prompt appended, last message %q", last.Content)
	}

	// cancelled responses do not count, and the prompt is not repeated
	ft.events <- Event{Type: EventResponseDone, Response: &Response{ID: "x", Status: ResponseStatusCancelled}}
	waitFor(t, events, EventResponseDone)

	deadline := time.Now().Add(time.Second)
	for {
		var prompts int
		for _, ev := range ft.sentOfType(EventResponseCreate) {
			if ev.Response.Purpose() == PurposeSwitchPrompt {
				prompts++
			}
		}
		if prompts == 1 {
			break
		}
		if prompts > 1 || time.Now().After(deadline) {
			t.Fatalf("expected exactly one switch prompt, got %d", prompts)
		}
		time.Sleep(5 * time.Millisecond)
	}

	rec, _ = s.Record()
	if rec.Interactions != 3 {
		t.Errorf("interactions changed on cancelled response: %d", rec.Interactions)
	}
}

func TestSession_SwitchSubjectResetsLog(t *testing.T) {
	s, ft := setupSession(t, Config{})
	if err := s.Init(context.Background(), "english"); err != nil {
		t.Fatal(err)
	}
	if err := s.SendMessage(context.Background(), "hello"); err != nil {
		t.Fatal(err)
	}

	if err := s.SwitchSubject(context.Background(), "math"); err != nil {
		t.Fatalf("SwitchSubject: %v", err)
	}

	rec, _ := s.Record()
	welcome := entities.LookupSubject("math").Welcome
	if rec.Subject != "math" {
		t.Errorf("expected subject math, got %s", rec.Subject)
	}
	if len(rec.Messages) != 1 || rec.Messages[0].Content != welcome {
		t.Errorf("expected log == [math welcome], got %+v", rec.Messages)
	}
	if s.Subject().Key != "math" {
		t.Errorf("expected active persona math, got %s", s.Subject().Key)
	}

	updates := ft.sentOfType(EventSessionUpdate)
	if len(updates) != 2 || updates[1].Session.Subject != "math" {
		t.Errorf("expected a session.update for math, got %+v", updates)
	}
}

func TestSession_SendMessage(t *testing.T) {
	s, ft := setupSession(t, Config{})
	if err := s.Init(context.Background(), "science"); err != nil {
		t.Fatal(err)
	}
	if err := s.SendMessage(context.Background(), "why is the sky blue?"); err != nil {
		t.Fatalf("SendMessage: %v", err)
	}

	items := ft.sentOfType(EventConversationItemCreate)
	if len(items) != 1 || items[0].Item.Text() != "why is the sky blue?" || items[0].Item.Role != "user" {
		t.Errorf("unexpected conversation items %+v", items)
	}
	creates := ft.sentOfType(EventResponseCreate)
	if len(creates) != 2 || creates[1].Response != nil {
		t.Errorf("expected a plain response.create after the welcome, got %+v", creates)
	}

	rec, _ := s.Record()
	if rec.Messages[len(rec.Messages)-1].Role != entities.MessageRoleUser {
		t.Error("user message not appended to the log")
	}
}

func TestSession_EndSession(t *testing.T) {
	s, ft := setupSession(t, Config{})
	events, _ := s.Subscribe()

	if err := s.Init(context.Background(), "history"); err != nil {
		t.Fatal(err)
	}
	if err := s.EndSession(context.Background()); err != nil {
		t.Fatalf("EndSession: %v", err)
	}
	if err := s.EndSession(context.Background()); err != nil {
		t.Fatalf("second EndSession: %v", err)
	}
	s.Disconnect()

	if s.State() != StateEnded {
		t.Errorf("expected ended, got %s", s.State())
	}
	rec, _ := s.Record()
	if rec.Status != entities.SessionStatusEnded || rec.EndTime == nil {
		t.Errorf("record not ended: %+v", rec)
	}

	var goodbye bool
	for _, ev := range ft.sentOfType(EventResponseCreate) {
		if ev.Response.Purpose() == PurposeGoodbye {
			goodbye = true
		}
	}
	if !goodbye {
		t.Error("expected a goodbye attempt")
	}
	if !ft.isClosed() {
		t.Error("transport not closed")
	}

	// subscribers see the final state and then a closed channel
	waitFor(t, events, EventSessionState)
	for range events {
	}
}

func TestSession_EndSessionAfterTransportFailure(t *testing.T) {
	s, ft := setupSession(t, Config{})
	events, unsubscribe := s.Subscribe()
	defer unsubscribe()

	if err := s.Init(context.Background(), "coding"); err != nil {
		t.Fatal(err)
	}

	ft.fail(errors.New("connection reset"))
	ev := waitFor(t, events, EventError)
	if ev.Error == nil || ev.Error.Type != ErrorTypeTransport {
		t.Errorf("expected transport error event, got %+v", ev)
	}

	deadline := time.Now().Add(time.Second)
	for s.State() != StateDisconnected {
		if time.Now().After(deadline) {
			t.Fatalf("expected disconnected after transport failure, got %s", s.State())
		}
		time.Sleep(5 * time.Millisecond)
	}

	if err := s.EndSession(context.Background()); err != nil {
		t.Fatalf("EndSession after failure must not fail: %v", err)
	}
	rec, _ := s.Record()
	if rec.Status != entities.SessionStatusEnded {
		t.Error("record not ended")
	}
	goodbye := entities.LookupSubject("coding").Goodbye
	if rec.Messages[len(rec.Messages)-1].Content != goodbye {
		t.Error("expected goodbye appended to the log")
	}
}

func TestSession_DisconnectIsIdempotent(t *testing.T) {
	s, ft := setupSession(t, Config{})
	s.Disconnect()

	if err := s.Init(context.Background(), "math"); err != nil {
		t.Fatal(err)
	}
	s.Disconnect()
	s.Disconnect()

	if s.State() != StateDisconnected {
		t.Errorf("expected disconnected, got %s", s.State())
	}
	if !ft.isClosed() {
		t.Error("transport not closed")
	}
}

func TestSession_CeilingEndsSession(t *testing.T) {
	s, _ := setupSession(t, Config{Ceiling: 20 * time.Millisecond})
	if err := s.Init(context.Background(), "math"); err != nil {
		t.Fatal(err)
	}

	deadline := time.Now().Add(2 * time.Second)
	for s.State() != StateEnded {
		if time.Now().After(deadline) {
			t.Fatalf("session not ended by ceiling, state %s", s.State())
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func TestSession_AudioFlow(t *testing.T) {
	var played bytes.Buffer
	var mu sync.Mutex
	player := playerFunc(func(ctx context.Context, wav []byte) error {
		_, data, err := audio.ParseWAV(wav)
		if err != nil {
			return err
		}
		mu.Lock()
		played.Write(data)
		mu.Unlock()
		return nil
	})

	samples := make([]int16, 8)
	for i := range samples {
		samples[i] = int16(i * 100)
	}
	mic := &audio.ReaderMicrophone{Source: bytes.NewReader(audio.Int16ToBytes(samples))}
	capCfg := audio.DefaultCaptureConfig()
	capCfg.FrameSize = 4

	s, ft := setupSession(t, Config{Microphone: mic, Capture: capCfg, Player: player})
	events, unsubscribe := s.Subscribe()
	defer unsubscribe()

	if err := s.Init(context.Background(), "english"); err != nil {
		t.Fatal(err)
	}

	chunk := audio.Int16ToBytes([]int16{7, 8, 9})
	ft.events <- Event{Type: EventResponseAudioDelta, Delta: base64.StdEncoding.EncodeToString(chunk)}
	waitFor(t, events, EventResponseAudioDelta)

	deadline := time.Now().Add(2 * time.Second)
	for {
		mu.Lock()
		got := append([]byte(nil), played.Bytes()...)
		mu.Unlock()
		if bytes.Equal(got, chunk) {
			break
		}
		if time.Now().After(deadline) {
			t.Fatalf("played %x, want %x", got, chunk)
		}
		time.Sleep(5 * time.Millisecond)
	}

	// eight samples in frames of four
	deadline = time.Now().Add(2 * time.Second)
	for len(ft.sentOfType(EventInputAudioBufferAppend)) < 2 {
		if time.Now().After(deadline) {
			t.Fatalf("expected 2 audio appends, got %d", len(ft.sentOfType(EventInputAudioBufferAppend)))
		}
		time.Sleep(5 * time.Millisecond)
	}
	var sent []byte
	for _, ev := range ft.sentOfType(EventInputAudioBufferAppend) {
		data, err := audio.DecodeChunk(ev.Audio)
		if err != nil {
			t.Fatalf("append carries invalid audio: %v", err)
		}
		sent = append(sent, data...)
	}
	got := audio.BytesToInt16(sent)
	if len(got) != len(samples) {
		t.Fatalf("captured %d samples, want %d", len(got), len(samples))
	}
	for i := range samples {
		// float scaling may truncate by one step
		if d := int(got[i]) - int(samples[i]); d < -1 || d > 1 {
			t.Errorf("sample %d: got %d, want %d", i, got[i], samples[i])
		}
	}
}

type playerFunc func(ctx context.Context, wav []byte) error

func (f playerFunc) Play(ctx context.Context, wav []byte) error { return f(ctx, wav) }

func TestSubscribe_UnsubscribeClosesChannel(t *testing.T) {
	s, _ := setupSession(t, Config{})
	events, unsubscribe := s.Subscribe()
	unsubscribe()
	unsubscribe()

	select {
	case _, ok := <-events:
		if ok {
			// a buffered state event may still be in flight; drain
			for range events {
			}
		}
	case <-time.After(time.Second):
		t.Fatal("channel not closed after unsubscribe")
	}
}
