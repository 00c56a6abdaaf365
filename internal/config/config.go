package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	// Server
	Port     string
	Env      string
	LogLevel string

	// OpenRouter
	OpenRouterAPIKey  string
	OpenRouterModel   string
	OpenRouterBaseURL string
	UpstreamTimeout   time.Duration

	// CORS
	AllowedOrigin string
}

func Load() *Config {
	// Load .env file if it exists
	godotenv.Load()

	env := getEnvOrDefault("ENV", "development")
	defaultLevel := "info"
	if env == "development" {
		defaultLevel = "debug"
	}

	cfg := &Config{
		Port:              getEnvOrDefault("PORT", "5000"),
		Env:               env,
		LogLevel:          getEnvOrDefault("LOG_LEVEL", defaultLevel),
		OpenRouterAPIKey:  mustGetEnv("OPENROUTER_API_KEY"),
		OpenRouterModel:   getEnvOrDefault("OPENROUTER_MODEL", "mistralai/mistral-7b-instruct"),
		OpenRouterBaseURL: getEnvOrDefault("OPENROUTER_BASE_URL", "https://openrouter.ai/api/v1"),
		UpstreamTimeout:   time.Duration(getEnvAsIntOrDefault("UPSTREAM_TIMEOUT_SECONDS", 0)) * time.Second,
		AllowedOrigin:     getEnvOrDefault("CORS_ALLOWED_ORIGIN", "*"),
	}

	return cfg
}

func mustGetEnv(key string) string {
	val := os.Getenv(key)
	if val == "" {
		panic(fmt.Sprintf("required environment variable %s is not set", key))
	}
	return val
}

func getEnvOrDefault(key, defaultVal string) string {
	val := os.Getenv(key)
	if val == "" {
		return defaultVal
	}
	return val
}

func getEnvAsIntOrDefault(key string, defaultVal int) int {
	val := os.Getenv(key)
	if val == "" {
		return defaultVal
	}
	n, err := strconv.Atoi(val)
	if err != nil || n < 0 {
		return defaultVal
	}
	return n
}
