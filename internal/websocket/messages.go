package websocket

import (
	"encoding/base64"
	"fmt"

	"github.com/tutorline/server/internal/realtime"
)

// Error codes sent back in error events
const (
	CodeInvalidEvent   = "invalid_event"
	CodeUnknownEvent   = "unknown_event"
	CodeCommitEmpty    = "input_audio_buffer_commit_empty"
	CodeNoInput        = "no_input"
	CodeBusy           = "session_busy"
	CodeSTTUnavailable = "transcription_unavailable"
	CodeLLMUnavailable = "llm_unavailable"
	CodeTTSUnavailable = "tts_unavailable"
	CodeSessionEnded   = "session_ended"
)

// MessageValidator checks client events before they are dispatched
type MessageValidator struct {
	maxAudioBytes int
}

// NewMessageValidator creates a new message validator
func NewMessageValidator() *MessageValidator {
	return &MessageValidator{maxAudioBytes: maxMessageSize}
}

// ValidateMessage decodes and validates one client event. The returned
// detail is ready to send as an error event.
func (v *MessageValidator) ValidateMessage(messageBytes []byte) (realtime.Event, *realtime.ErrorDetail) {
	ev, err := realtime.ParseEvent(messageBytes)
	if err != nil {
		return realtime.Event{}, invalid(CodeInvalidEvent, "", err.Error())
	}

	switch ev.Type {
	case realtime.EventSessionUpdate:
		if ev.Session == nil {
			return ev, invalid(CodeInvalidEvent, ev.EventID, "session is required")
		}
		if ev.Session.InputAudioFormat != "" && ev.Session.InputAudioFormat != realtime.AudioFormatPCM16 {
			return ev, invalid(CodeInvalidEvent, ev.EventID, "input_audio_format must be pcm16")
		}
		if ev.Session.SampleRate != 0 && (ev.Session.SampleRate < 8000 || ev.Session.SampleRate > 48000) {
			return ev, invalid(CodeInvalidEvent, ev.EventID, "sample_rate must be between 8000 and 48000")
		}

	case realtime.EventInputAudioBufferAppend:
		if ev.Audio == "" {
			return ev, invalid(CodeInvalidEvent, ev.EventID, "audio is required")
		}
		if base64.StdEncoding.DecodedLen(len(ev.Audio)) > v.maxAudioBytes {
			return ev, invalid(CodeInvalidEvent, ev.EventID, "audio chunk too large")
		}
		if _, err := base64.StdEncoding.DecodeString(ev.Audio); err != nil {
			return ev, invalid(CodeInvalidEvent, ev.EventID, "audio must be base64")
		}

	case realtime.EventConversationItemCreate:
		if ev.Item == nil || ev.Item.Text() == "" {
			return ev, invalid(CodeInvalidEvent, ev.EventID, "item with text content is required")
		}
		if ev.Item.Role != "" && ev.Item.Role != "user" {
			return ev, invalid(CodeInvalidEvent, ev.EventID, fmt.Sprintf("role %q cannot be created by clients", ev.Item.Role))
		}

	case realtime.EventInputAudioBufferCommit,
		realtime.EventInputAudioBufferClear,
		realtime.EventResponseCreate,
		realtime.EventResponseCancel:

	default:
		return ev, invalid(CodeUnknownEvent, ev.EventID, fmt.Sprintf("unsupported event type: %s", ev.Type))
	}
	return ev, nil
}

func invalid(code, eventID, message string) *realtime.ErrorDetail {
	return &realtime.ErrorDetail{
		Type:    realtime.ErrorTypeInvalidRequest,
		Code:    code,
		Message: message,
		EventID: eventID,
	}
}
