package config

import (
	"log/slog"
	"os"
	"strconv"
	"strings"
)

// Provider identifies the LLM backend used for the ranking oracle.
type Provider string

const (
	ProviderOllama    Provider = "ollama"
	ProviderOpenAI    Provider = "openai"
	ProviderAnthropic Provider = "anthropic"

	// ProviderNone disables the oracle entirely; discovery always uses
	// the deterministic scorer.
	ProviderNone Provider = "none"
)

// Config holds all configuration values.
type Config struct {
	// SurrealDB connection
	SurrealDBURL       string
	SurrealDBNamespace string
	SurrealDBDatabase  string
	SurrealDBUser      string
	SurrealDBPass      string
	SurrealDBAuthLevel string

	// Ranking oracle
	LLMProvider     Provider
	LLMModel        string
	OllamaHost      string
	OpenAIAPIKey    string
	AnthropicAPIKey string

	// HTTP server
	ListenAddr string

	// Discovery
	DiscoveryTime     string // "HH:MM", local time of the daily run
	DiscoveryMaxTerms int
	DiscoveryDelaySec int // inter-store delay, rate-limits oracle calls

	// Logging
	LogFile  string
	LogLevel slog.Level
}

// Load reads configuration from environment variables.
func Load() Config {
	return Config{
		SurrealDBURL:       getEnv("SURREALDB_URL", "ws://localhost:8000/rpc"),
		SurrealDBNamespace: getEnv("SURREALDB_NAMESPACE", "catosphere"),
		SurrealDBDatabase:  getEnv("SURREALDB_DATABASE", "main"),
		SurrealDBUser:      getEnv("SURREALDB_USER", "root"),
		SurrealDBPass:      getEnv("SURREALDB_PASS", "root"),
		SurrealDBAuthLevel: getEnv("SURREALDB_AUTH_LEVEL", "root"),

		LLMProvider:     Provider(getEnv("CATOSPHERE_LLM_PROVIDER", string(ProviderOllama))),
		LLMModel:        getEnv("CATOSPHERE_LLM_MODEL", "llama3.2"),
		OllamaHost:      getEnv("OLLAMA_HOST", "http://localhost:11434"),
		OpenAIAPIKey:    getEnv("OPENAI_API_KEY", ""),
		AnthropicAPIKey: getEnv("ANTHROPIC_API_KEY", ""),

		ListenAddr: getEnv("CATOSPHERE_LISTEN_ADDR", ":8686"),

		DiscoveryTime:     getEnv("CATOSPHERE_DISCOVERY_TIME", "03:30"),
		DiscoveryMaxTerms: getEnvInt("CATOSPHERE_DISCOVERY_MAX_TERMS", 5),
		DiscoveryDelaySec: getEnvInt("CATOSPHERE_DISCOVERY_DELAY_SEC", 2),

		LogFile:  getEnv("CATOSPHERE_LOG_FILE", "/tmp/catosphere.log"),
		LogLevel: parseLogLevel(getEnv("CATOSPHERE_LOG_LEVEL", "INFO")),
	}
}

func getEnv(key, defaultVal string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return defaultVal
}

func getEnvInt(key string, defaultVal int) int {
	val := os.Getenv(key)
	if val == "" {
		return defaultVal
	}
	n, err := strconv.Atoi(val)
	if err != nil {
		return defaultVal
	}
	return n
}

func parseLogLevel(s string) slog.Level {
	switch strings.ToUpper(s) {
	case "DEBUG":
		return slog.LevelDebug
	case "INFO":
		return slog.LevelInfo
	case "WARN", "WARNING":
		return slog.LevelWarn
	case "ERROR":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
