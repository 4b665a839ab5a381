package config

import (
	"log"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

// EmbeddingProviderKind selects which embedclient variant the service wires up.
type EmbeddingProviderKind string

const (
	ProviderOpenAI EmbeddingProviderKind = "openai"
	ProviderGoogle EmbeddingProviderKind = "google"
)

// Config holds every DOCS_*/EMBEDDING_* option recognized by the service (spec §6).
type Config struct {
	DatabaseURL string

	MaxPages       int
	Concurrency    int
	TimeoutMs      int
	UserAgent      string
	IncludeRegex   string
	ExcludeRegex   string
	EmbedBatchSize int

	EmbedRPM int
	EmbedTPM int
	EmbedTPD int

	EmbedMaxRetries       int
	EmbedInitialBackoffMs int

	EmbedDistributed bool

	EmbeddingProvider EmbeddingProviderKind
	EmbeddingAPIKey   string
	EmbeddingModel    string
	EmbeddingDim      int
}

// LoadConfig loads environment variables (optionally from a .env file) and
// returns a populated Config. It fails fast (spec §7 error kind 4) when the
// vector store DSN is missing.
func LoadConfig() *Config {
	_ = godotenv.Load()

	cfg := &Config{
		DatabaseURL: getEnv("DATABASE_URL", ""),

		MaxPages:       getEnvInt("DOCS_MAX_PAGES", 10000),
		Concurrency:    getEnvInt("DOCS_CONCURRENCY", 0),
		TimeoutMs:      getEnvInt("DOCS_TIMEOUT_MS", 15000),
		UserAgent:      getEnv("DOCS_USER_AGENT", "docsearch-bot/1.0"),
		IncludeRegex:   getEnv("DOCS_INCLUDE_REGEX", ""),
		ExcludeRegex:   getEnv("DOCS_EXCLUDE_REGEX", ""),
		EmbedBatchSize: getEnvInt("DOCS_EMBED_BATCH_SIZE", 32),

		EmbedRPM: getEnvInt("DOCS_EMBED_RPM", 3000),
		EmbedTPM: getEnvInt("DOCS_EMBED_TPM", 1000000),
		EmbedTPD: getEnvInt("DOCS_EMBED_TPD", 0),

		EmbedMaxRetries:       getEnvInt("DOCS_EMBED_MAX_RETRIES", 5),
		EmbedInitialBackoffMs: getEnvInt("DOCS_EMBED_INITIAL_BACKOFF_MS", 500),

		EmbedDistributed: getEnvBool("DOCS_EMBED_DISTRIBUTED", false),

		EmbeddingProvider: EmbeddingProviderKind(getEnv("EMBEDDING_PROVIDER", string(ProviderOpenAI))),
		EmbeddingAPIKey:   getEnv("EMBEDDING_API_KEY", ""),
		EmbeddingModel:    getEnv("EMBEDDING_MODEL", "text-embedding-3-small"),
		EmbeddingDim:      getEnvInt("EMBEDDING_DIMENSIONS", 1536),
	}

	if cfg.DatabaseURL == "" {
		log.Fatal("DATABASE_URL not set")
	}
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = defaultConcurrency()
	}

	return cfg
}

// Timeout returns the per-HTTP-request timeout as a time.Duration.
func (c *Config) Timeout() time.Duration {
	return time.Duration(c.TimeoutMs) * time.Millisecond
}

func defaultConcurrency() int {
	n := numCPU()
	if n < 4 {
		n = 4
	}
	if n > 16 {
		n = 16
	}
	return n
}

func getEnv(key, fallback string) string {
	if value, exists := os.LookupEnv(key); exists {
		return value
	}
	return fallback
}

func getEnvInt(key string, def int) int {
	v := getEnv(key, "")
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		log.Printf("WARN: %s=%q not an int, using default %d", key, v, def)
		return def
	}
	return n
}

func getEnvBool(key string, def bool) bool {
	v := getEnv(key, "")
	if v == "" {
		return def
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		log.Printf("WARN: %s=%q not a bool, using default %v", key, v, def)
		return def
	}
	return b
}
