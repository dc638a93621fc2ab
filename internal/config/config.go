package config

import (
	"os"
	"strconv"
	"time"
)

type Config struct {
	Port        string
	Environment string
	CORSOrigins string
	LogDir      string

	// Persistence. DatabaseURL selects the Postgres store; when empty the
	// file store under DataDir is used.
	DataDir     string
	UploadDir   string
	DatabaseURL string
	TablePrefix string

	// Identity. JWKSURL enables bearer-token verification; when empty all
	// callers are anonymous.
	JWKSURL string

	// Model gateway.
	LLMProvider    string
	LLMModel       string
	LLMImageModel  string
	LLMAPIKey      string
	LLMBaseURL     string
	LLMMaxTokens   int
	LLMTemperature float32
	LLMTimeout     time.Duration

	OCREnabled bool
}

func Load() *Config {
	env := getEnv("ENVIRONMENT", "dev")

	return &Config{
		Port:        getEnv("PORT", "8080"),
		Environment: env,
		CORSOrigins: getEnv("CORS_ORIGINS", "http://localhost:3000"),
		LogDir:      getEnv("LOG_DIR", ""),

		DataDir:     getEnv("DATA_DIR", "data/chats"),
		UploadDir:   getEnv("UPLOAD_DIR", "data/uploads"),
		DatabaseURL: getEnv("DATABASE_URL", ""),
		TablePrefix: getTablePrefix(env),

		JWKSURL: getEnv("JWKS_URL", ""),

		LLMProvider:    getEnv("LLM_PROVIDER", "gemini"),
		LLMModel:       getEnv("LLM_MODEL", "gemini-2.0-flash"),
		LLMImageModel:  getEnv("LLM_IMAGE_MODEL", "gemini-2.0-flash-exp-image-generation"),
		LLMAPIKey:      getEnv("LLM_API_KEY", ""),
		LLMBaseURL:     getEnv("LLM_BASE_URL", ""),
		LLMMaxTokens:   getEnvInt("LLM_MAX_TOKENS", 1024),
		LLMTemperature: float32(getEnvFloat("LLM_TEMPERATURE", 0.7)),
		LLMTimeout:     time.Duration(getEnvInt("LLM_TIMEOUT_SECONDS", 60)) * time.Second,

		OCREnabled: getEnv("OCR_ENABLED", "true") == "true",
	}
}

// getTablePrefix returns the table prefix based on environment.
func getTablePrefix(env string) string {
	// Allow manual override via TABLE_PREFIX env var
	if prefix := os.Getenv("TABLE_PREFIX"); prefix != "" {
		return prefix
	}

	switch env {
	case "prod":
		return "prod_"
	case "test":
		return "test_"
	default:
		return "dev_"
	}
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	n, err := strconv.Atoi(value)
	if err != nil {
		return defaultValue
	}
	return n
}

func getEnvFloat(key string, defaultValue float64) float64 {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	f, err := strconv.ParseFloat(value, 64)
	if err != nil {
		return defaultValue
	}
	return f
}
