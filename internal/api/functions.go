package api

import (
	"bytes"
	"encoding/base64"
	"errors"
	"net/http"
	"strings"

	"github.com/labstack/echo/v4"
	"go.uber.org/zap"

	"github.com/tutorline/server/domain/entities"
	"github.com/tutorline/server/domain/repositories"
	"github.com/tutorline/server/internal/audio"
	"github.com/tutorline/server/internal/realtime"
	"github.com/tutorline/server/usecase"
)

func badRequest(c echo.Context, code, message string) error {
	return c.JSON(http.StatusBadRequest, ErrorResponse{Error: code, Message: message})
}

func speechToText(c echo.Context, deps Dependencies, logger *zap.Logger) error {
	var req SpeechToTextRequest
	if err := c.Bind(&req); err != nil {
		return badRequest(c, "invalid_request", "Invalid request format")
	}
	if req.Audio == "" {
		return badRequest(c, "missing_fields", "audio is required")
	}
	data, err := base64.StdEncoding.DecodeString(req.Audio)
	if err != nil {
		return badRequest(c, "invalid_audio", "audio must be base64")
	}

	config := repositories.AudioConfig{
		SampleRate: req.SampleRate,
		Encoding:   req.Encoding,
		Language:   req.Language,
	}
	if config.SampleRate == 0 {
		config.SampleRate = audio.DefaultSampleRate
	}
	if config.Language == "" {
		config.Language = deps.STTLanguage
	}
	// WAV uploads carry their own rate
	if info, pcm, err := audio.ParseWAV(data); err == nil {
		config.SampleRate = info.SampleRate
		config.Encoding = "LINEAR16"
		data = pcm
	}

	text, err := deps.Conversation.Transcribe(c.Request().Context(), data, config)
	if err != nil {
		if errors.Is(err, repositories.ErrNoSpeech) {
			return c.JSON(http.StatusOK, SpeechToTextResponse{})
		}
		logger.Error("Speech-to-text proxy failed", zap.Error(err))
		return c.JSON(http.StatusBadGateway, ErrorResponse{
			Error:   "stt_failed",
			Message: "Speech recognition failed",
		})
	}
	return c.JSON(http.StatusOK, SpeechToTextResponse{Text: text})
}

func textToSpeech(c echo.Context, deps Dependencies, logger *zap.Logger) error {
	var req TextToSpeechRequest
	if err := c.Bind(&req); err != nil {
		return badRequest(c, "invalid_request", "Invalid request format")
	}
	if strings.TrimSpace(req.Text) == "" {
		return badRequest(c, "missing_fields", "text is required")
	}

	chunks, err := deps.Conversation.Speak(c.Request().Context(), req.Text)
	if err != nil {
		logger.Error("Text-to-speech proxy failed", zap.Error(err))
		return c.JSON(http.StatusBadGateway, ErrorResponse{
			Error:   "tts_failed",
			Message: "Speech synthesis failed",
		})
	}

	var buf bytes.Buffer
	for chunk := range chunks {
		buf.Write(chunk)
	}
	return c.JSON(http.StatusOK, TextToSpeechResponse{
		Audio:      base64.StdEncoding.EncodeToString(buf.Bytes()),
		Format:     realtime.AudioFormatPCM16,
		SampleRate: audio.DefaultSampleRate,
	})
}

func chat(c echo.Context, deps Dependencies, logger *zap.Logger) error {
	var req ChatRequest
	if err := c.Bind(&req); err != nil {
		return badRequest(c, "invalid_request", "Invalid request format")
	}
	if len(req.Messages) == 0 {
		return badRequest(c, "missing_fields", "messages are required")
	}
	last := req.Messages[len(req.Messages)-1]
	if last.Role != repositories.UserRole {
		return badRequest(c, "invalid_messages", "the last message must come from the user")
	}

	subject := entities.LookupSubject(req.Subject)
	reply, err := deps.Chat.Reply(c.Request().Context(), subject, req.Messages[:len(req.Messages)-1], last.Content)
	if err != nil {
		if errors.Is(err, usecase.ErrEmptyMessage) {
			return badRequest(c, "missing_fields", "message content is required")
		}
		logger.Warn("Chat proxy aborted", zap.Error(err))
		return c.JSON(http.StatusServiceUnavailable, ErrorResponse{
			Error:   "chat_aborted",
			Message: err.Error(),
		})
	}

	return c.JSON(http.StatusOK, ChatResponse{
		Message:  repositories.ChatMessage{Role: repositories.AssistantRole, Content: reply.Text},
		Fallback: reply.Fallback,
	})
}

func realtimeSession(c echo.Context, deps Dependencies, logger *zap.Logger) error {
	var req RealtimeSessionRequest
	if err := c.Bind(&req); err != nil {
		return badRequest(c, "invalid_request", "Invalid request format")
	}
	subject := entities.LookupSubject(req.Subject)

	token, expiresAt, err := deps.Issuer.GenerateRealtimeToken(subject.Key)
	if err != nil {
		logger.Error("Failed to generate realtime token", zap.Error(err))
		return c.JSON(http.StatusInternalServerError, ErrorResponse{
			Error:   "token_generation_failed",
			Message: "Failed to generate session token",
		})
	}

	wsURL := deps.PublicWSURL
	if wsURL == "" {
		scheme := "ws"
		if c.Scheme() == "https" {
			scheme = "wss"
		}
		wsURL = scheme + "://" + c.Request().Host + "/ws"
	}

	logger.Info("Realtime session token issued", zap.String("subject", subject.Key))
	return c.JSON(http.StatusOK, RealtimeSessionResponse{
		Token:     token,
		ExpiresAt: expiresAt,
		URL:       wsURL,
		Subject:   subject.Key,
	})
}
