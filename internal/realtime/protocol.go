// Package realtime is the client side of a voice tutoring session: a websocket
// transport speaking the realtime event vocabulary and the session object that
// wires capture, playback and subject state around it.
package realtime

import (
	"encoding/json"
	"fmt"

	"github.com/google/uuid"
)

// Client event types.
const (
	EventSessionUpdate          = "session.update"
	EventInputAudioBufferAppend = "input_audio_buffer.append"
	EventInputAudioBufferCommit = "input_audio_buffer.commit"
	EventInputAudioBufferClear  = "input_audio_buffer.clear"
	EventConversationItemCreate = "conversation.item.create"
	EventResponseCreate         = "response.create"
	EventResponseCancel         = "response.cancel"
)

// Server event types.
const (
	EventError                       = "error"
	EventSessionCreated              = "session.created"
	EventSessionUpdated              = "session.updated"
	EventConversationItemCreated     = "conversation.item.created"
	EventInputTranscriptionCompleted = "conversation.item.input_audio_transcription.completed"
	EventInputTranscriptionFailed    = "conversation.item.input_audio_transcription.failed"
	EventInputAudioBufferCommitted   = "input_audio_buffer.committed"
	EventInputAudioBufferCleared     = "input_audio_buffer.cleared"
	EventSpeechStarted               = "input_audio_buffer.speech_started"
	EventSpeechStopped               = "input_audio_buffer.speech_stopped"
	EventResponseCreated             = "response.created"
	EventResponseDone                = "response.done"
	EventResponseAudioDelta          = "response.audio.delta"
	EventResponseAudioDone           = "response.audio.done"
	EventResponseTranscriptDelta     = "response.audio_transcript.delta"
	EventResponseTranscriptDone      = "response.audio_transcript.done"
)

// EventSessionState is emitted locally by Session when its lifecycle state changes.
// It never crosses the wire.
const EventSessionState = "session.state"

// Scripted response purposes, carried in response metadata under MetadataPurpose.
// Responses with a purpose are not counted as interactions.
const (
	MetadataPurpose     = "purpose"
	PurposeWelcome      = "welcome"
	PurposeSwitchPrompt = "switch_prompt"
	PurposeGoodbye      = "goodbye"
)

// Response statuses.
const (
	ResponseStatusInProgress = "in_progress"
	ResponseStatusCompleted  = "completed"
	ResponseStatusCancelled  = "cancelled"
	ResponseStatusFailed     = "failed"
)

// AudioFormatPCM16 is the only audio format carried by the transport.
const AudioFormatPCM16 = "pcm16"

// Event is one message of the realtime vocabulary in either direction.
type Event struct {
	Type    string `json:"type"`
	EventID string `json:"event_id,omitempty"`

	Session  *SessionConfig `json:"session,omitempty"`
	Item     *Item          `json:"item,omitempty"`
	Response *Response      `json:"response,omitempty"`

	// Audio is base64 PCM16 for input_audio_buffer.append.
	Audio string `json:"audio,omitempty"`

	ItemID       string `json:"item_id,omitempty"`
	ResponseID   string `json:"response_id,omitempty"`
	AudioStartMs int    `json:"audio_start_ms,omitempty"`
	AudioEndMs   int    `json:"audio_end_ms,omitempty"`

	// Delta is base64 audio for response.audio.delta and text otherwise.
	Delta      string `json:"delta,omitempty"`
	Transcript string `json:"transcript,omitempty"`

	Error *ErrorDetail `json:"error,omitempty"`

	// State is set on local session.state events only.
	State State `json:"state,omitempty"`
}

// SessionConfig configures the remote conversation.
type SessionConfig struct {
	ID                string   `json:"id,omitempty"`
	Subject           string   `json:"subject,omitempty"`
	Instructions      string   `json:"instructions,omitempty"`
	Voice             string   `json:"voice,omitempty"`
	Modalities        []string `json:"modalities,omitempty"`
	InputAudioFormat  string   `json:"input_audio_format,omitempty"`
	OutputAudioFormat string   `json:"output_audio_format,omitempty"`
	SampleRate        int      `json:"sample_rate,omitempty"`
}

// Item is a conversation item.
type Item struct {
	ID      string        `json:"id,omitempty"`
	Type    string        `json:"type"`
	Role    string        `json:"role,omitempty"`
	Content []ContentPart `json:"content,omitempty"`
}

// ContentPart is one piece of an item's content.
type ContentPart struct {
	Type       string `json:"type"`
	Text       string `json:"text,omitempty"`
	Transcript string `json:"transcript,omitempty"`
}

// Text concatenates the textual content of the item.
func (i *Item) Text() string {
	if i == nil {
		return ""
	}
	var out string
	for _, p := range i.Content {
		switch {
		case p.Text != "":
			out += p.Text
		case p.Transcript != "":
			out += p.Transcript
		}
	}
	return out
}

// Response describes a response request or a response resource.
type Response struct {
	ID           string `json:"id,omitempty"`
	Status       string `json:"status,omitempty"`
	Instructions string `json:"instructions,omitempty"`

	// Script makes the server speak the text verbatim instead of generating a reply.
	Script   string            `json:"script,omitempty"`
	Metadata map[string]string `json:"metadata,omitempty"`
}

// Purpose returns the scripted purpose of the response, or "" for generated replies.
func (r *Response) Purpose() string {
	if r == nil {
		return ""
	}
	return r.Metadata[MetadataPurpose]
}

// ErrorDetail is the payload of an error event.
type ErrorDetail struct {
	Type    string `json:"type"`
	Code    string `json:"code,omitempty"`
	Message string `json:"message"`
	EventID string `json:"event_id,omitempty"`
}

func (e *ErrorDetail) Error() string {
	if e.Code != "" {
		return fmt.Sprintf("%s (%s): %s", e.Type, e.Code, e.Message)
	}
	return fmt.Sprintf("%s: %s", e.Type, e.Message)
}

// Error types.
const (
	ErrorTypeInvalidRequest = "invalid_request_error"
	ErrorTypeServer         = "server_error"
	ErrorTypeTransport      = "transport_error"
)

// NewEventID returns a unique event identifier.
func NewEventID() string {
	return "evt_" + uuid.New().String()[:12]
}

// NewErrorEvent builds an error event.
func NewErrorEvent(errType, code, message string) Event {
	return Event{
		Type:    EventError,
		EventID: NewEventID(),
		Error:   &ErrorDetail{Type: errType, Code: code, Message: message},
	}
}

// UserTextItem builds a user message item.
func UserTextItem(text string) *Item {
	return &Item{
		Type:    "message",
		Role:    "user",
		Content: []ContentPart{{Type: "input_text", Text: text}},
	}
}

// ScriptedResponse builds a response.create that speaks text verbatim.
func ScriptedResponse(purpose, text string) Event {
	return Event{
		Type:    EventResponseCreate,
		EventID: NewEventID(),
		Response: &Response{
			Script:   text,
			Metadata: map[string]string{MetadataPurpose: purpose},
		},
	}
}

// ParseEvent decodes one wire message.
func ParseEvent(data []byte) (Event, error) {
	var ev Event
	if err := json.Unmarshal(data, &ev); err != nil {
		return Event{}, fmt.Errorf("realtime: decode event: %w", err)
	}
	if ev.Type == "" {
		return Event{}, fmt.Errorf("realtime: event has no type")
	}
	return ev, nil
}
