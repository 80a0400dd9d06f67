package websocket

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/tutorline/server/domain/entities"
	"github.com/tutorline/server/domain/repositories"
	"github.com/tutorline/server/internal/audio"
	"github.com/tutorline/server/internal/realtime"
)

const jobQueueSize = 32

// Client is a middleman between the websocket connection and the hub.
type Client struct {
	hub *Hub

	// The websocket connection.
	conn *websocket.Conn

	// Buffered channel of outbound messages.
	send chan []byte

	// done is closed once the connection is going away
	done      chan struct{}
	closeOnce sync.Once

	id     string
	logger *zap.Logger

	ctx    context.Context
	cancel context.CancelFunc

	// work for the worker goroutine, which owns the fields below
	jobs        chan job
	initSubject string
	session     *entities.Session
	subject     entities.Subject
	pending     []string

	// guarded by mu; touched by readPump and worker
	mu         sync.Mutex
	stream     repositories.SpeechToTextStreaming
	itemID     string
	detector   *vad
	sampleRate int
	respCancel context.CancelFunc
}

func newClient(hub *Hub, conn *websocket.Conn, subject string) *Client {
	ctx, cancel := context.WithCancel(context.Background())
	id := uuid.New().String()
	return &Client{
		hub:         hub,
		conn:        conn,
		send:        make(chan []byte, 256),
		done:        make(chan struct{}),
		id:          id,
		logger:      hub.logger.With(zap.String("clientID", id)),
		ctx:         ctx,
		cancel:      cancel,
		jobs:        make(chan job, jobQueueSize),
		initSubject: subject,
		detector:    newVAD(hub.config.VAD),
		sampleRate:  hub.config.VAD.SampleRate,
	}
}

// close tears the connection down. Safe from any goroutine, repeatedly.
func (c *Client) close() {
	c.closeOnce.Do(func() {
		c.cancel()
		close(c.done)

		c.mu.Lock()
		if c.stream != nil {
			c.stream.Abort()
			c.stream = nil
		}
		c.mu.Unlock()

		c.conn.Close()
	})
}

// readPump pumps messages from the websocket connection to the worker.
func (c *Client) readPump() {
	defer func() {
		c.hub.unregisterClient(c)
		c.close()
	}()

	c.conn.SetReadLimit(maxMessageSize * 2)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		messageType, message, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure, websocket.CloseAbnormalClosure) {
				c.logger.Error("WebSocket error", zap.Error(err))
			}
			return
		}
		if messageType != websocket.TextMessage {
			c.sendEvent(realtime.NewErrorEvent(realtime.ErrorTypeInvalidRequest, CodeInvalidEvent, "binary frames are not supported"))
			continue
		}

		c.processMessage(message)
	}
}

// writePump pumps messages from the client to the websocket connection.
func (c *Client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case message := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.TextMessage, message); err != nil {
				c.logger.Debug("Failed to write message", zap.Error(err))
				c.close()
				return
			}

		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				c.close()
				return
			}

		case <-c.done:
			c.conn.WriteControl(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
				time.Now().Add(time.Second))
			return
		}
	}
}

// sendEvent queues ev for the write pump. Dropped once the client is closing.
func (c *Client) sendEvent(ev realtime.Event) {
	if ev.EventID == "" {
		ev.EventID = realtime.NewEventID()
	}
	payload, err := json.Marshal(ev)
	if err != nil {
		c.logger.Error("Failed to marshal event", zap.String("type", ev.Type), zap.Error(err))
		return
	}
	select {
	case c.send <- payload:
	case <-c.done:
	}
}

func (c *Client) sendError(errType, code, message string) {
	c.sendEvent(realtime.NewErrorEvent(errType, code, message))
}

func (c *Client) enqueue(j job) {
	select {
	case c.jobs <- j:
	case <-c.done:
	default:
		c.sendError(realtime.ErrorTypeInvalidRequest, CodeBusy, "too many pending requests")
	}
}

// processMessage validates and dispatches one client event
func (c *Client) processMessage(message []byte) {
	ev, detail := c.hub.validator.ValidateMessage(message)
	if detail != nil {
		c.logger.Debug("Rejected client event", zap.String("code", detail.Code), zap.String("message", detail.Message))
		c.sendEvent(realtime.Event{Type: realtime.EventError, Error: detail})
		return
	}

	switch ev.Type {
	case realtime.EventSessionUpdate:
		c.enqueue(job{kind: jobUpdate, config: ev.Session})
	case realtime.EventInputAudioBufferAppend:
		c.appendAudio(ev.Audio)
	case realtime.EventInputAudioBufferCommit:
		c.commitAudio(ev.EventID)
	case realtime.EventInputAudioBufferClear:
		c.clearAudio()
	case realtime.EventConversationItemCreate:
		c.enqueue(job{kind: jobUserText, text: ev.Item.Text()})
	case realtime.EventResponseCreate:
		c.enqueue(job{kind: jobRespond, response: ev.Response})
	case realtime.EventResponseCancel:
		c.cancelResponse()
	}
}

func (c *Client) audioConfig() repositories.AudioConfig {
	return repositories.AudioConfig{
		SampleRate: c.sampleRate,
		Encoding:   "LINEAR16",
		Language:   c.hub.config.Language,
	}
}

// appendAudio feeds the turn detector and the recognizer. A detected end of
// speech commits the turn and asks for a reply.
func (c *Client) appendAudio(b64 string) {
	pcm, err := audio.DecodeChunk(b64)
	if err != nil {
		c.sendError(realtime.ErrorTypeInvalidRequest, CodeInvalidEvent, err.Error())
		return
	}

	var out []realtime.Event
	c.mu.Lock()
	switch c.detector.process(pcm) {
	case vadStarted:
		stream, err := c.hub.conversation.OpenTranscription(c.ctx, c.audioConfig())
		if err != nil {
			c.detector.reset()
			c.mu.Unlock()
			c.logger.Warn("Failed to open transcription stream", zap.Error(err))
			c.sendError(realtime.ErrorTypeServer, CodeSTTUnavailable, "speech recognition is unavailable")
			return
		}
		c.stream = stream
		c.itemID = newItemID()
		c.streamLocked(pcm)
		out = append(out, realtime.Event{
			Type:         realtime.EventSpeechStarted,
			ItemID:       c.itemID,
			AudioStartMs: c.detector.startMs(),
		})

	case vadNone:
		c.streamLocked(pcm)

	case vadStopped:
		c.streamLocked(pcm)
		stream, itemID := c.stream, c.itemID
		c.stream, c.itemID = nil, ""
		out = append(out,
			realtime.Event{Type: realtime.EventSpeechStopped, ItemID: itemID, AudioEndMs: c.detector.endMs()},
			realtime.Event{Type: realtime.EventInputAudioBufferCommitted, ItemID: itemID},
		)
		if stream != nil {
			defer c.enqueue(job{kind: jobTranscribe, stream: stream, itemID: itemID, autoRespond: true})
		}

	case vadDiscarded:
		if c.stream != nil {
			c.stream.Abort()
		}
		c.stream, c.itemID = nil, ""
	}
	c.mu.Unlock()

	for _, ev := range out {
		c.sendEvent(ev)
	}
}

func (c *Client) streamLocked(pcm []byte) {
	if c.stream == nil {
		return
	}
	if err := c.stream.Stream(pcm); err != nil {
		c.logger.Warn("Failed to stream audio", zap.Error(err))
	}
}

// commitAudio ends the current utterance on request. The transcript is added
// to the pending input; the client asks for the reply itself.
func (c *Client) commitAudio(eventID string) {
	c.mu.Lock()
	stream, itemID := c.stream, c.itemID
	c.stream, c.itemID = nil, ""
	c.detector.reset()
	c.mu.Unlock()

	if stream == nil {
		c.sendEvent(realtime.Event{Type: realtime.EventError, Error: invalid(CodeCommitEmpty, eventID, "input audio buffer is empty")})
		return
	}
	c.sendEvent(realtime.Event{Type: realtime.EventInputAudioBufferCommitted, ItemID: itemID})
	c.enqueue(job{kind: jobTranscribe, stream: stream, itemID: itemID})
}

func (c *Client) clearAudio() {
	c.mu.Lock()
	if c.stream != nil {
		c.stream.Abort()
	}
	c.stream, c.itemID = nil, ""
	c.detector.reset()
	c.mu.Unlock()
	c.sendEvent(realtime.Event{Type: realtime.EventInputAudioBufferCleared})
}

func (c *Client) cancelResponse() {
	c.mu.Lock()
	cancel := c.respCancel
	c.mu.Unlock()
	if cancel != nil {
		cancel()
	}
}

func (c *Client) setResponseCancel(cancel context.CancelFunc) {
	c.mu.Lock()
	c.respCancel = cancel
	c.mu.Unlock()
}

func newItemID() string {
	return "item_" + uuid.New().String()[:12]
}

func newResponseID() string {
	return "resp_" + uuid.New().String()[:12]
}
