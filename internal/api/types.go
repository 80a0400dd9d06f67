package api

import (
	"time"

	"github.com/tutorline/server/domain/entities"
	"github.com/tutorline/server/domain/repositories"
)

// ErrorResponse represents an error response
type ErrorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message,omitempty"`
}

// SpeechToTextRequest carries one base64 encoded utterance
type SpeechToTextRequest struct {
	Audio      string `json:"audio"`
	SampleRate int    `json:"sample_rate"`
	Encoding   string `json:"encoding"`
	Language   string `json:"language"`
}

type SpeechToTextResponse struct {
	Text string `json:"text"`
}

type TextToSpeechRequest struct {
	Text string `json:"text"`
}

// TextToSpeechResponse carries base64 PCM16 audio
type TextToSpeechResponse struct {
	Audio      string `json:"audio"`
	Format     string `json:"format"`
	SampleRate int    `json:"sample_rate"`
}

// ChatRequest is a subject plus the conversation so far. The last message
// must come from the user.
type ChatRequest struct {
	Subject  string                     `json:"subject"`
	Messages []repositories.ChatMessage `json:"messages"`
}

type ChatResponse struct {
	Message  repositories.ChatMessage `json:"message"`
	Fallback bool                     `json:"fallback,omitempty"`
}

type RealtimeSessionRequest struct {
	Subject string `json:"subject"`
}

// RealtimeSessionResponse is what the realtime client exchanges for a websocket URL
type RealtimeSessionResponse struct {
	Token     string    `json:"token"`
	ExpiresAt time.Time `json:"expires_at"`
	URL       string    `json:"url"`
	Subject   string    `json:"subject"`
}

// SubmissionRequest is the body of every public form
type SubmissionRequest struct {
	Name          string     `json:"name"`
	Email         string     `json:"email"`
	Phone         string     `json:"phone"`
	Organization  string     `json:"organization"`
	Role          string     `json:"role"`
	Message       string     `json:"message"`
	PreferredTime *time.Time `json:"preferred_time"`
}

func (r SubmissionRequest) toEntity(kind entities.SubmissionKind) entities.Submission {
	return entities.Submission{
		Kind:          kind,
		Name:          r.Name,
		Email:         r.Email,
		Phone:         r.Phone,
		Organization:  r.Organization,
		Role:          r.Role,
		Message:       r.Message,
		PreferredTime: r.PreferredTime,
	}
}

type AdminLoginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type AdminLoginResponse struct {
	Token     string    `json:"token"`
	ExpiresAt time.Time `json:"expires_at"`
}

type SubmissionListResponse struct {
	Submissions []*entities.Submission `json:"submissions"`
	Count       int                    `json:"count"`
}

// SubmissionPatchRequest changes status and/or notes
type SubmissionPatchRequest struct {
	Status *entities.SubmissionStatus `json:"status"`
	Notes  *string                    `json:"notes"`
}
