// Package config loads runtime settings from the environment, with a .env
// file picked up when present.
package config

import (
	"os"

	"github.com/joho/godotenv"
)

type Config struct {
	// ListenAddr is the server bind address.
	ListenAddr string
	// APIBaseURL is where the client sends request/response calls.
	APIBaseURL string
	// WSBaseURL is where the client dials the streaming channel.
	WSBaseURL string
	// LogLevel is debug, info, warn, or error.
	LogLevel string
}

func Load() Config {
	_ = godotenv.Load()

	return Config{
		ListenAddr: getenv("STORYGUESS_LISTEN_ADDR", ":8080"),
		APIBaseURL: getenv("STORYGUESS_API_URL", "http://localhost:8080"),
		WSBaseURL:  getenv("STORYGUESS_WS_URL", "ws://localhost:8080"),
		LogLevel:   getenv("STORYGUESS_LOG_LEVEL", "info"),
	}
}

func getenv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
