package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/charmbracelet/log"
	"github.com/joho/godotenv"
)

type Config struct {
	CompletionsAPIURL string
	CompletionsAPIKey string
	CompletionsModel  string

	DBPath      string
	ChatLogPath string

	HTTPPort string

	// Memory engine knobs.
	ContextBudget     int
	ExtractionTimeout time.Duration
	SummaryTimeout    time.Duration
	ExtractionWorkers int

	EmbedNATS bool
	NATSURL   string
}

func getEnv(key, defaultValue string, printEnv bool) string {
	logger := log.Default()
	value := os.Getenv(key)
	if printEnv {
		logger.Info("Env", "key", key, "value", value)
	}
	if value == "" {
		return defaultValue
	}
	return value
}

func getEnvInt(key string, defaultValue int, printEnv bool) int {
	raw := getEnv(key, "", printEnv)
	if raw == "" {
		return defaultValue
	}
	value, err := strconv.Atoi(raw)
	if err != nil {
		log.Default().Warn("Invalid integer env, using default", "key", key, "value", raw, "default", defaultValue)
		return defaultValue
	}
	return value
}

func getEnvDuration(key string, defaultValue time.Duration, printEnv bool) time.Duration {
	raw := getEnv(key, "", printEnv)
	if raw == "" {
		return defaultValue
	}
	value, err := time.ParseDuration(raw)
	if err != nil {
		log.Default().Warn("Invalid duration env, using default", "key", key, "value", raw, "default", defaultValue)
		return defaultValue
	}
	return value
}

func getEnvOrPanic(key string, printEnv bool) string {
	value := getEnv(key, "", printEnv)
	if value == "" {
		panic(fmt.Sprintf("Environment variable %s is not set", key))
	}
	return value
}

func LoadConfig(printEnv bool) (*Config, error) {
	_ = godotenv.Load()

	conf := &Config{
		CompletionsAPIURL: getEnv("COMPLETIONS_API_URL", "https://api.openai.com/v1", printEnv),
		CompletionsAPIKey: getEnvOrPanic("COMPLETIONS_API_KEY", printEnv),
		CompletionsModel:  getEnv("COMPLETIONS_MODEL", "gpt-4.1-mini", printEnv),
		DBPath:            getEnv("DB_PATH", "./output/sqlite/memory.db", printEnv),
		ChatLogPath:       getEnv("CHAT_LOG_PATH", "./output/chat-logs", printEnv),
		HTTPPort:          getEnv("HTTP_PORT", "44810", printEnv),
		ContextBudget:     getEnvInt("CONTEXT_BUDGET", 4000, printEnv),
		ExtractionTimeout: getEnvDuration("EXTRACTION_TIMEOUT", 30*time.Second, printEnv),
		SummaryTimeout:    getEnvDuration("SUMMARY_TIMEOUT", 60*time.Second, printEnv),
		ExtractionWorkers: getEnvInt("EXTRACTION_WORKERS", 8, printEnv),
		EmbedNATS:         getEnv("EMBED_NATS", "true", printEnv) == "true",
		NATSURL:           getEnv("NATS_URL", "nats://127.0.0.1:4222", printEnv),
	}

	return conf, nil
}
