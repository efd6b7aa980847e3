package config

import (
	"os"
	"strconv"
)

const defaultPort = "8080"

type Config struct {
	Port          string
	Production    bool
	JWTSecret     string
	ModelProvider string
	// MaxHistoryMessages caps how many messages the session list endpoint
	// returns per session. Full history stays persisted.
	MaxHistoryMessages int
}

// Load reads configuration from the environment. godotenv is expected to
// have been loaded by the caller before this runs.
func Load() *Config {
	port := os.Getenv("PORT")
	if port == "" {
		port = defaultPort
	}

	provider := os.Getenv("MODEL_PROVIDER")
	if provider == "" {
		provider = "gemini"
	}

	maxHistory := 50
	if v := os.Getenv("MAX_HISTORY_MESSAGES"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			maxHistory = n
		}
	}

	return &Config{
		Port:               port,
		Production:         os.Getenv("PRODUCTION") != "",
		JWTSecret:          os.Getenv("JWT_SECRET"),
		ModelProvider:      provider,
		MaxHistoryMessages: maxHistory,
	}
}
