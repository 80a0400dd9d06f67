package api

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/labstack/echo/v4"
	"go.uber.org/zap"

	"github.com/tutorline/server/internal/auth"
	"github.com/tutorline/server/internal/websocket"
	"github.com/tutorline/server/usecase"
)

// Dependencies are the services the HTTP surface is built on
type Dependencies struct {
	Hub          *websocket.Hub
	Conversation *usecase.ConversationService
	Chat         *usecase.ChatService
	Submissions  *usecase.SubmissionService
	Issuer       *auth.Issuer

	AdminEmail    string
	AdminPassword string

	// PublicWSURL is handed to realtime clients. Derived from the request when empty.
	PublicWSURL string
	// STTLanguage is used when a transcription request names none
	STTLanguage string

	// Ping checks the store for /health. Optional.
	Ping func(ctx context.Context) error
}

// InitRoutes initializes all API routes
func InitRoutes(e *echo.Echo, deps Dependencies, logger *zap.Logger) {
	e.GET("/health", func(c echo.Context) error {
		return health(c, deps)
	})

	v1 := e.Group("/api/v1")

	// Function proxies
	fn := v1.Group("/functions")
	fn.POST("/speech-to-text", func(c echo.Context) error {
		return speechToText(c, deps, logger)
	})
	fn.POST("/text-to-speech", func(c echo.Context) error {
		return textToSpeech(c, deps, logger)
	})
	fn.POST("/chat", func(c echo.Context) error {
		return chat(c, deps, logger)
	})
	fn.POST("/realtime-session", func(c echo.Context) error {
		return realtimeSession(c, deps, logger)
	})

	// Public forms
	v1.POST("/contact", submitHandler(deps, contactKind, logger))
	v1.POST("/waitlist", submitHandler(deps, waitlistKind, logger))
	v1.POST("/demo-requests", submitHandler(deps, demoKind, logger))

	// Back-office
	v1.POST("/admin/login", func(c echo.Context) error {
		return adminLogin(c, deps, logger)
	})
	admin := v1.Group("/admin", requireRole(deps.Issuer, auth.RoleAdmin, logger))
	admin.GET("/submissions", func(c echo.Context) error {
		return listSubmissions(c, deps, logger)
	})
	admin.GET("/submissions/:id", func(c echo.Context) error {
		return getSubmission(c, deps, logger)
	})
	admin.PATCH("/submissions/:id", func(c echo.Context) error {
		return updateSubmission(c, deps, logger)
	})

	// WebSocket endpoint with JWT validation
	e.GET("/ws", func(c echo.Context) error {
		return websocketWithAuth(c, deps, logger)
	})
}

func health(c echo.Context, deps Dependencies) error {
	body := map[string]interface{}{
		"status":  "ok",
		"service": "tutorline-server",
	}
	if deps.Hub != nil {
		body["clients"] = deps.Hub.ClientCount()
	}
	if deps.Ping != nil {
		if err := deps.Ping(c.Request().Context()); err != nil {
			body["status"] = "degraded"
			body["store"] = err.Error()
			return c.JSON(http.StatusServiceUnavailable, body)
		}
	}
	return c.JSON(http.StatusOK, body)
}

// bearerToken extracts the token from "Authorization: Bearer <token>"
func bearerToken(c echo.Context) string {
	header := c.Request().Header.Get("Authorization")
	if len(header) > 7 && strings.EqualFold(header[:7], "Bearer ") {
		return strings.TrimSpace(header[7:])
	}
	return ""
}

// websocketWithAuth handles WebSocket connections with JWT authentication.
// Browsers cannot set headers on upgrades, so the token may also be a query parameter.
func websocketWithAuth(c echo.Context, deps Dependencies, logger *zap.Logger) error {
	token := c.QueryParam("token")
	if token == "" {
		token = bearerToken(c)
	}
	if token == "" {
		logger.Warn("WebSocket connection rejected: missing token")
		return c.JSON(http.StatusUnauthorized, ErrorResponse{
			Error:   "missing_token",
			Message: "A realtime session token is required",
		})
	}

	claims, err := deps.Issuer.ValidateRole(token, auth.RoleRealtime)
	if err != nil {
		if errors.Is(err, auth.ErrWrongRole) {
			logger.Warn("WebSocket connection rejected: invalid role")
			return c.JSON(http.StatusForbidden, ErrorResponse{
				Error:   "invalid_role",
				Message: "Only realtime session tokens are allowed for WebSocket connections",
			})
		}
		logger.Warn("WebSocket connection rejected: invalid token", zap.Error(err))
		return c.JSON(http.StatusUnauthorized, ErrorResponse{
			Error:   "invalid_token",
			Message: "Invalid or expired token",
		})
	}

	logger.Info("WebSocket connection authenticated", zap.String("subject", claims.Subject))
	return websocket.HandleWebSocketWithAuth(deps.Hub, c, claims.Subject)
}
