// Package config provides configuration for the chat service.
package config

import (
	"os"
	"strconv"
	"time"
)

// Config holds the service configuration.
type Config struct {
	// Server settings
	HTTPPort int

	// Database
	DatabaseURL string

	// Ollama
	OllamaBaseURL string
	OllamaTimeout time.Duration

	// DefaultModel is used for new sessions and is protected from deletion
	// by the model policy.
	DefaultModel string

	// Logging
	LogLevel    string
	Environment string
}

// Load loads configuration from environment variables.
func Load() *Config {
	cfg := &Config{
		HTTPPort:      getEnvInt("HTTP_PORT", 8080),
		DatabaseURL:   getEnv("DATABASE_URL", "file:ollamachat.db?cache=shared&mode=rwc"),
		OllamaBaseURL: getEnv("OLLAMA_BASE_URL", "http://localhost:11434"),
		OllamaTimeout: time.Duration(getEnvInt("OLLAMA_TIMEOUT_MS", 60000)) * time.Millisecond,
		DefaultModel:  getEnv("DEFAULT_MODEL", "llama2"),
		LogLevel:      getEnv("LOG_LEVEL", "info"),
		Environment:   getEnv("ENVIRONMENT", "development"),
	}
	return cfg
}

func getEnv(key, defaultVal string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return defaultVal
}

func getEnvInt(key string, defaultVal int) int {
	if val := os.Getenv(key); val != "" {
		if intVal, err := strconv.Atoi(val); err == nil {
			return intVal
		}
	}
	return defaultVal
}
