// Package config loads server configuration from the environment.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"

	"github.com/tutorline/server/domain/entities"
)

// Store drivers
const (
	StoreMemory = "memory"
	StoreSQLite = "sqlite"
	StoreMongo  = "mongo"
)

// Provider names shared by the LLM, STT and TTS switches
const (
	ProviderMock       = "mock"
	ProviderGemini     = "gemini"
	ProviderOpenAI     = "openai"
	ProviderGoogle     = "google"
	ProviderElevenLabs = "elevenlabs"
)

// Config holds all server configuration.
type Config struct {
	Port           string
	PublicWSURL    string
	AllowedOrigins []string

	JWTSecret     string
	AdminEmail    string
	AdminPassword string

	StoreDriver     string
	SQLitePath      string
	MongoURI        string
	MongoDatabase   string
	SessionDuration time.Duration

	LLMProvider  string
	GeminiAPIKey string
	GeminiModel  string
	OpenAIAPIKey string
	OpenAIModel  string
	OpenAIURL    string

	STTProvider string
	STTLanguage string

	TTSProvider string
	ElevenLabs  ElevenLabsConfig
}

// ElevenLabsConfig mirrors the ELEVEN_LABS_* keys
type ElevenLabsConfig struct {
	APIKey     string
	APIBaseURL string
	VoiceID    string
	ModelID    string
	ChunkSize  int
	Stability  float64
	Clarity    float64
}

// Load reads .env (when present) and then the environment.
func Load() (*Config, error) {
	// a missing .env is normal outside development
	_ = godotenv.Load()

	cfg := &Config{
		Port:           getEnv("PORT", "8080"),
		PublicWSURL:    getEnv("PUBLIC_WS_URL", "ws://localhost:8080/ws"),
		AllowedOrigins: getEnvList("ALLOWED_ORIGINS", []string{"*"}),

		JWTSecret:     getEnv("JWT_SECRET", ""),
		AdminEmail:    strings.ToLower(getEnv("ADMIN_EMAIL", "")),
		AdminPassword: getEnv("ADMIN_PASSWORD", ""),

		StoreDriver:     strings.ToLower(getEnv("STORE_DRIVER", StoreMemory)),
		SQLitePath:      getEnv("SQLITE_PATH", "./data/tutorline.db"),
		MongoURI:        getEnv("MONGODB_URI", "mongodb://localhost:27017"),
		MongoDatabase:   getEnv("MONGODB_DATABASE", "tutorline"),
		SessionDuration: getEnvDuration("SESSION_MAX_DURATION", entities.DefaultSessionCeiling),

		LLMProvider:  strings.ToLower(getEnv("LLM_PROVIDER", ProviderMock)),
		GeminiAPIKey: getEnv("GEMINI_API_KEY", ""),
		GeminiModel:  getEnv("GEMINI_MODEL", ""),
		OpenAIAPIKey: getEnv("OPENAI_API_KEY", ""),
		OpenAIModel:  getEnv("OPENAI_MODEL", ""),
		OpenAIURL:    getEnv("OPENAI_BASE_URL", ""),

		STTProvider: strings.ToLower(getEnv("STT_PROVIDER", ProviderMock)),
		STTLanguage: getEnv("STT_LANGUAGE", "en-US"),

		TTSProvider: strings.ToLower(getEnv("TTS_PROVIDER", ProviderMock)),
		ElevenLabs: ElevenLabsConfig{
			APIKey:     getEnv("ELEVEN_LABS_API_KEY", ""),
			APIBaseURL: getEnv("ELEVEN_LABS_API_BASE_URL", ""),
			VoiceID:    getEnv("ELEVEN_LABS_VOICE_ID", ""),
			ModelID:    getEnv("ELEVEN_LABS_MODEL_ID", ""),
			ChunkSize:  getEnvInt("ELEVEN_LABS_CHUNK_SIZE", 0),
			Stability:  getEnvFloat("ELEVEN_LABS_STABILITY", 0),
			Clarity:    getEnvFloat("ELEVEN_LABS_CLARITY", 0),
		},
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

// Validate checks that required fields are set and switches name known values.
func (c *Config) Validate() error {
	if c.Port == "" {
		return fmt.Errorf("PORT cannot be empty")
	}
	if len(c.JWTSecret) < 16 {
		return fmt.Errorf("JWT_SECRET must be at least 16 characters")
	}
	if c.SessionDuration <= 0 {
		return fmt.Errorf("SESSION_MAX_DURATION must be > 0")
	}

	switch c.StoreDriver {
	case StoreMemory:
	case StoreSQLite:
		if c.SQLitePath == "" {
			return fmt.Errorf("SQLITE_PATH cannot be empty")
		}
	case StoreMongo:
		if c.MongoURI == "" || c.MongoDatabase == "" {
			return fmt.Errorf("MONGODB_URI and MONGODB_DATABASE are required for the mongo store")
		}
	default:
		return fmt.Errorf("unknown STORE_DRIVER %q", c.StoreDriver)
	}

	switch c.LLMProvider {
	case ProviderMock:
	case ProviderGemini:
		if c.GeminiAPIKey == "" {
			return fmt.Errorf("GEMINI_API_KEY is required for the gemini provider")
		}
	case ProviderOpenAI:
		if c.OpenAIAPIKey == "" {
			return fmt.Errorf("OPENAI_API_KEY is required for the openai provider")
		}
	default:
		return fmt.Errorf("unknown LLM_PROVIDER %q", c.LLMProvider)
	}

	if c.STTProvider != ProviderMock && c.STTProvider != ProviderGoogle {
		return fmt.Errorf("unknown STT_PROVIDER %q", c.STTProvider)
	}

	switch c.TTSProvider {
	case ProviderMock:
	case ProviderElevenLabs:
		if c.ElevenLabs.APIKey == "" {
			return fmt.Errorf("ELEVEN_LABS_API_KEY is required for the elevenlabs provider")
		}
	default:
		return fmt.Errorf("unknown TTS_PROVIDER %q", c.TTSProvider)
	}
	return nil
}

// AdminEnabled reports whether admin login is configured
func (c *Config) AdminEnabled() bool {
	return c.AdminEmail != "" && c.AdminPassword != ""
}

func getEnv(key, fallback string) string {
	if value, ok := os.LookupEnv(key); ok {
		return value
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	value, ok := os.LookupEnv(key)
	if !ok {
		return fallback
	}
	n, err := strconv.Atoi(strings.TrimSpace(value))
	if err != nil {
		return fallback
	}
	return n
}

func getEnvFloat(key string, fallback float64) float64 {
	value, ok := os.LookupEnv(key)
	if !ok {
		return fallback
	}
	f, err := strconv.ParseFloat(strings.TrimSpace(value), 64)
	if err != nil {
		return fallback
	}
	return f
}

func getEnvDuration(key string, fallback time.Duration) time.Duration {
	value, ok := os.LookupEnv(key)
	if !ok {
		return fallback
	}
	d, err := time.ParseDuration(strings.TrimSpace(value))
	if err != nil {
		return fallback
	}
	return d
}

func getEnvList(key string, fallback []string) []string {
	value, ok := os.LookupEnv(key)
	if !ok || strings.TrimSpace(value) == "" {
		return fallback
	}
	var out []string
	for _, part := range strings.Split(value, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
