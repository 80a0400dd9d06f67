package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/tutorline/server/adapters/llm"
	"github.com/tutorline/server/adapters/memory"
	"github.com/tutorline/server/adapters/mongo"
	"github.com/tutorline/server/adapters/sqlite"
	"github.com/tutorline/server/adapters/stt"
	"github.com/tutorline/server/adapters/tts"
	"github.com/tutorline/server/domain/repositories"
	"github.com/tutorline/server/internal/api"
	"github.com/tutorline/server/internal/auth"
	"github.com/tutorline/server/internal/config"
	"github.com/tutorline/server/internal/websocket"
	"github.com/tutorline/server/usecase"
)

func newServeCmd(verbose *bool) *cobra.Command {
	var port string

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API and realtime websocket server",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load()
			if err != nil {
				return err
			}
			if port != "" {
				cfg.Port = port
			}

			logger, err := newLogger(*verbose)
			if err != nil {
				return err
			}
			defer logger.Sync()

			return serve(cmd.Context(), cfg, logger)
		},
	}
	cmd.Flags().StringVar(&port, "port", "", "listen port (overrides PORT)")
	return cmd
}

func serve(ctx context.Context, cfg *config.Config, logger *zap.Logger) error {
	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	store, err := openStore(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer store.close()

	// Initialize adapters
	model, err := newLLM(ctx, cfg, logger)
	if err != nil {
		return err
	}
	recognizer, closeSTT, err := newSTT(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer closeSTT()
	speaker, err := newTTS(cfg, logger)
	if err != nil {
		return err
	}

	// Initialize usecase services
	chatService := usecase.NewChatService(model, logger)
	conversationService := usecase.NewConversationService(recognizer, speaker, chatService, store.sessions, logger)
	submissionService := usecase.NewSubmissionService(store.submissions, logger)

	// Initialize WebSocket hub with conversation service
	hub := websocket.NewHub(conversationService, websocket.HubConfig{
		AllowedOrigins: cfg.AllowedOrigins,
		Language:       cfg.STTLanguage,
	}, logger)
	hubCtx, stopHub := context.WithCancel(context.Background())
	defer stopHub()
	go hub.Run(hubCtx)

	cleanup := websocket.NewSessionCleanupService(conversationService, cfg.SessionDuration, logger)
	cleanup.Start()
	defer cleanup.Stop()

	e := echo.New()
	e.HideBanner = true
	e.Use(middleware.Logger())
	e.Use(middleware.Recover())
	e.Use(middleware.CORSWithConfig(middleware.CORSConfig{
		AllowOrigins: cfg.AllowedOrigins,
		AllowMethods: []string{http.MethodGet, http.MethodPost, http.MethodPatch, http.MethodOptions},
		AllowHeaders: []string{echo.HeaderContentType, echo.HeaderAuthorization},
	}))

	api.InitRoutes(e, api.Dependencies{
		Hub:           hub,
		Conversation:  conversationService,
		Chat:          chatService,
		Submissions:   submissionService,
		Issuer:        auth.NewIssuer(cfg.JWTSecret),
		AdminEmail:    cfg.AdminEmail,
		AdminPassword: cfg.AdminPassword,
		PublicWSURL:   cfg.PublicWSURL,
		STTLanguage:   cfg.STTLanguage,
		Ping:          store.ping,
	}, logger)

	errCh := make(chan error, 1)
	go func() {
		if err := e.Start(":" + cfg.Port); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	logger.Info("Server started",
		zap.String("port", cfg.Port),
		zap.String("store", cfg.StoreDriver),
		zap.String("llm", cfg.LLMProvider),
		zap.String("stt", cfg.STTProvider),
		zap.String("tts", cfg.TTSProvider))

	select {
	case <-ctx.Done():
	case err := <-errCh:
		return fmt.Errorf("server failed: %w", err)
	}

	logger.Info("Server is shutting down...")

	// close live sessions first so their records are ended in the store
	stopHub()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := e.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server forced to shutdown: %w", err)
	}

	logger.Info("Server exited")
	return nil
}

type stores struct {
	sessions    repositories.SessionRepository
	submissions repositories.SubmissionRepository
	ping        func(ctx context.Context) error
	close       func()
}

func openStore(ctx context.Context, cfg *config.Config, logger *zap.Logger) (*stores, error) {
	switch cfg.StoreDriver {
	case config.StoreSQLite:
		db, err := sqlite.Open(cfg.SQLitePath, logger)
		if err != nil {
			return nil, err
		}
		return &stores{
			sessions:    db.Sessions(),
			submissions: db.Submissions(),
			ping:        db.Ping,
			close: func() {
				if err := db.Close(); err != nil {
					logger.Warn("Failed to close sqlite store", zap.Error(err))
				}
			},
		}, nil

	case config.StoreMongo:
		client, err := mongo.NewClient(ctx, cfg.MongoURI, cfg.MongoDatabase, logger)
		if err != nil {
			return nil, err
		}
		closeClient := func() {
			closeCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			if err := client.Close(closeCtx); err != nil {
				logger.Warn("Failed to close MongoDB client", zap.Error(err))
			}
		}
		sessions, err := mongo.NewSessionRepository(ctx, client.Database, logger)
		if err != nil {
			closeClient()
			return nil, err
		}
		submissions, err := mongo.NewSubmissionRepository(ctx, client.Database, logger)
		if err != nil {
			closeClient()
			return nil, err
		}
		return &stores{
			sessions:    sessions,
			submissions: submissions,
			ping: func(ctx context.Context) error {
				return client.Ping(ctx, nil)
			},
			close: closeClient,
		}, nil

	default:
		logger.Warn("Using in-memory store; records are lost on restart")
		return &stores{
			sessions:    memory.NewSessionRepository(),
			submissions: memory.NewSubmissionRepository(),
			close:       func() {},
		}, nil
	}
}

func newLLM(ctx context.Context, cfg *config.Config, logger *zap.Logger) (repositories.LargeLanguageModel, error) {
	switch cfg.LLMProvider {
	case config.ProviderGemini:
		return llm.NewGeminiLLM(ctx, llm.GeminiConfig{
			APIKey: cfg.GeminiAPIKey,
			Model:  cfg.GeminiModel,
		}, logger)
	case config.ProviderOpenAI:
		return llm.NewOpenAILLM(llm.OpenAIConfig{
			APIKey:  cfg.OpenAIAPIKey,
			BaseURL: cfg.OpenAIURL,
			Model:   cfg.OpenAIModel,
		}, logger)
	default:
		return llm.NewMockLLM(), nil
	}
}

func newSTT(ctx context.Context, cfg *config.Config, logger *zap.Logger) (repositories.SpeechToText, func(), error) {
	if cfg.STTProvider == config.ProviderGoogle {
		g, err := stt.NewGoogleSpeechToText(ctx, logger)
		if err != nil {
			return nil, nil, err
		}
		return g, func() {
			if err := g.Close(); err != nil {
				logger.Warn("Failed to close speech client", zap.Error(err))
			}
		}, nil
	}
	return stt.NewMockSpeechToText(logger), func() {}, nil
}

func newTTS(cfg *config.Config, logger *zap.Logger) (repositories.TextToSpeech, error) {
	if cfg.TTSProvider == config.ProviderElevenLabs {
		return tts.NewElevenLabsTTS(tts.ElevenLabsConfig{
			APIKey:     cfg.ElevenLabs.APIKey,
			APIBaseURL: cfg.ElevenLabs.APIBaseURL,
			VoiceID:    cfg.ElevenLabs.VoiceID,
			ModelID:    cfg.ElevenLabs.ModelID,
			ChunkSize:  cfg.ElevenLabs.ChunkSize,
			Stability:  cfg.ElevenLabs.Stability,
			Clarity:    cfg.ElevenLabs.Clarity,
		}, logger)
	}
	return tts.NewMockTTS(), nil
}
