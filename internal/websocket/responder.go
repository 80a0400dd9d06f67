package websocket

import (
	"context"
	"encoding/base64"
	"errors"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/tutorline/server/domain/entities"
	"github.com/tutorline/server/domain/repositories"
	"github.com/tutorline/server/internal/realtime"
	"github.com/tutorline/server/usecase"
)

type jobKind int

const (
	jobUpdate jobKind = iota
	jobTranscribe
	jobUserText
	jobRespond
)

// job is one unit of ordered work for a connection
type job struct {
	kind jobKind

	config      *realtime.SessionConfig
	stream      repositories.SpeechToTextStreaming
	itemID      string
	text        string
	response    *realtime.Response
	autoRespond bool
}

const endSessionTimeout = 5 * time.Second

// worker owns the tutoring session record. Jobs run one at a time in arrival
// order so replies never interleave.
func (c *Client) worker() {
	if !c.start() {
		c.close()
		return
	}
	defer c.finish()

	for {
		select {
		case <-c.ctx.Done():
			return
		case j := <-c.jobs:
			c.run(j)
		}
	}
}

func (c *Client) start() bool {
	session, err := c.hub.conversation.StartSession(c.ctx, c.initSubject)
	if err != nil {
		c.logger.Error("Failed to start tutoring session", zap.Error(err))
		c.sendError(realtime.ErrorTypeServer, "session_unavailable", "failed to start session")
		return false
	}
	c.session = session
	c.subject = entities.LookupSubject(session.Subject)
	c.logger.Info("Tutoring session started",
		zap.String("sessionID", session.ID),
		zap.String("subject", session.Subject))

	c.sendEvent(realtime.Event{Type: realtime.EventSessionCreated, Session: c.sessionConfig()})
	return true
}

func (c *Client) finish() {
	ctx, cancel := context.WithTimeout(context.Background(), endSessionTimeout)
	defer cancel()
	if err := c.hub.conversation.EndSession(ctx, c.session); err != nil {
		c.logger.Warn("Failed to end tutoring session", zap.Error(err))
	}
}

func (c *Client) sessionConfig() *realtime.SessionConfig {
	c.mu.Lock()
	rate := c.sampleRate
	c.mu.Unlock()
	return &realtime.SessionConfig{
		ID:                c.session.ID,
		Subject:           c.subject.Key,
		Instructions:      c.subject.Instructions,
		Modalities:        []string{"audio", "text"},
		InputAudioFormat:  realtime.AudioFormatPCM16,
		OutputAudioFormat: realtime.AudioFormatPCM16,
		SampleRate:        rate,
	}
}

func (c *Client) run(j job) {
	switch j.kind {
	case jobUpdate:
		c.updateSession(j.config)
	case jobTranscribe:
		c.transcribe(j)
	case jobUserText:
		c.addUserText(j.text)
	case jobRespond:
		c.respond(j.response)
	}
}

func (c *Client) updateSession(cfg *realtime.SessionConfig) {
	if cfg.SampleRate != 0 {
		c.mu.Lock()
		if cfg.SampleRate != c.sampleRate {
			c.sampleRate = cfg.SampleRate
			vadCfg := c.hub.config.VAD
			vadCfg.SampleRate = cfg.SampleRate
			c.detector = newVAD(vadCfg)
		}
		c.mu.Unlock()
	}

	if cfg.Subject != "" && entities.LookupSubject(cfg.Subject).Key != c.subject.Key {
		next, err := c.hub.conversation.SwitchSubject(c.ctx, c.session, cfg.Subject)
		if err != nil {
			c.logger.Warn("Failed to persist subject switch", zap.Error(err))
		}
		c.subject = next
		c.pending = nil
	}

	c.sendEvent(realtime.Event{Type: realtime.EventSessionUpdated, Session: c.sessionConfig()})
}

func (c *Client) transcribe(j job) {
	text, err := j.stream.End()
	if err != nil {
		msg := "transcription failed"
		if errors.Is(err, repositories.ErrNoSpeech) {
			msg = "no speech detected"
		} else {
			c.logger.Warn("Transcription failed", zap.Error(err))
		}
		c.sendEvent(realtime.Event{
			Type:   realtime.EventInputTranscriptionFailed,
			ItemID: j.itemID,
			Error: &realtime.ErrorDetail{
				Type:    realtime.ErrorTypeServer,
				Code:    CodeSTTUnavailable,
				Message: msg,
			},
		})
		return
	}

	c.pending = append(c.pending, text)
	c.sendEvent(realtime.Event{
		Type:       realtime.EventInputTranscriptionCompleted,
		ItemID:     j.itemID,
		Transcript: text,
	})

	if j.autoRespond {
		c.respond(nil)
	}
}

func (c *Client) addUserText(text string) {
	text = strings.TrimSpace(text)
	c.pending = append(c.pending, text)

	item := realtime.UserTextItem(text)
	item.ID = newItemID()
	c.sendEvent(realtime.Event{Type: realtime.EventConversationItemCreated, Item: item})
}

// respond answers the pending user input, or speaks req.Script verbatim
func (c *Client) respond(req *realtime.Response) {
	if !c.session.IsActive() {
		c.sendError(realtime.ErrorTypeInvalidRequest, CodeSessionEnded, "session has ended")
		return
	}

	resp := &realtime.Response{ID: newResponseID(), Status: realtime.ResponseStatusInProgress}
	if req != nil {
		resp.Metadata = req.Metadata
	}

	if req != nil && req.Script != "" {
		ctx, cancel := c.responseContext()
		defer cancel()

		c.sendEvent(realtime.Event{Type: realtime.EventResponseCreated, Response: resp})
		if err := c.hub.conversation.AppendScripted(ctx, c.session, req.Script); err != nil {
			c.logger.Warn("Failed to persist scripted line", zap.Error(err))
		}
		c.deliver(ctx, resp, req.Script)
		return
	}

	text := strings.TrimSpace(strings.Join(c.pending, " "))
	if text == "" {
		c.sendError(realtime.ErrorTypeInvalidRequest, CodeNoInput, "no user input to respond to")
		return
	}
	c.pending = nil

	ctx, cancel := c.responseContext()
	defer cancel()

	c.sendEvent(realtime.Event{Type: realtime.EventResponseCreated, Response: resp})
	turn, err := c.hub.conversation.Respond(ctx, c.session, text)
	if err != nil {
		resp.Status = realtime.ResponseStatusFailed
		switch {
		case ctx.Err() != nil:
			resp.Status = realtime.ResponseStatusCancelled
		case errors.Is(err, usecase.ErrSessionEnded):
			c.sendError(realtime.ErrorTypeInvalidRequest, CodeSessionEnded, "session has ended")
		default:
			c.logger.Error("Failed to respond", zap.Error(err))
			c.sendError(realtime.ErrorTypeServer, CodeLLMUnavailable, "failed to generate a reply")
		}
		c.sendEvent(realtime.Event{Type: realtime.EventResponseDone, Response: resp})
		return
	}

	if turn.Reply.Fallback {
		c.sendError(realtime.ErrorTypeServer, CodeLLMUnavailable, "tutor is unavailable, using a fallback reply")
	}
	c.logger.Debug("Turn completed", zap.Int("interactions", turn.Interactions))
	c.deliver(ctx, resp, turn.Reply.Text)
}

func (c *Client) responseContext() (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithCancel(c.ctx)
	c.setResponseCancel(cancel)
	return ctx, func() {
		c.setResponseCancel(nil)
		cancel()
	}
}

// deliver streams the transcript and synthesized audio of one response and
// closes it with response.done
func (c *Client) deliver(ctx context.Context, resp *realtime.Response, text string) {
	c.sendEvent(realtime.Event{Type: realtime.EventResponseTranscriptDelta, ResponseID: resp.ID, Delta: text})
	c.sendEvent(realtime.Event{Type: realtime.EventResponseTranscriptDone, ResponseID: resp.ID, Transcript: text})

	chunks, err := c.hub.conversation.Speak(ctx, text)
	if err != nil {
		c.logger.Warn("Speech synthesis failed", zap.Error(err))
		c.sendError(realtime.ErrorTypeServer, CodeTTSUnavailable, "speech synthesis is unavailable")
	} else {
		c.streamAudio(ctx, resp.ID, chunks)
	}

	resp.Status = realtime.ResponseStatusCompleted
	if ctx.Err() != nil {
		resp.Status = realtime.ResponseStatusCancelled
	}
	c.sendEvent(realtime.Event{Type: realtime.EventResponseDone, Response: resp})
}

func (c *Client) streamAudio(ctx context.Context, responseID string, chunks <-chan []byte) {
	defer c.sendEvent(realtime.Event{Type: realtime.EventResponseAudioDone, ResponseID: responseID})
	for {
		select {
		case <-ctx.Done():
			// let the producer finish into the void
			go func() {
				for range chunks {
				}
			}()
			return
		case chunk, ok := <-chunks:
			if !ok {
				return
			}
			if len(chunk) == 0 {
				continue
			}
			c.sendEvent(realtime.Event{
				Type:       realtime.EventResponseAudioDelta,
				ResponseID: responseID,
				Delta:      base64.StdEncoding.EncodeToString(chunk),
			})
		}
	}
}
