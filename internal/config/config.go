// Package config loads the memory service configuration from the process
// environment.
package config

import (
	"os"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
)

// Config holds every tunable enumerated in the service's environment
// variable table. Zero values are replaced with documented defaults by
// applyDefaults after the raw env read.
type Config struct {
	// Embedding provider
	GeminiAPIKey        string
	EmbeddingModel      string
	EmbeddingBatchSize  int
	SimilarityThreshold float64

	// Store
	DatabaseType              string
	DatabaseJSONFileDirectory string
	DatabasePostgresDSN       string

	// Background maintainer
	BGMaxOperations          int
	BGMaxTimeMs              int
	BGEnableEmbeddingBackfill bool
	BGEnableImportanceDecay   bool
	BGEnableOrphanCleanup     bool
	BGEnableDanglingSweep     bool

	// Response composer
	MCPTokenLimit                int
	MCPTokenBuffer                int
	MCPFullMemoryTokenThreshold float64

	// Ambient
	LogPath  string
	LogLevel string
}

// Load reads configuration from environment variables (optionally .env).
// Grounded on internal/config/loader.go's godotenv.Overload() + TrimSpace(os.Getenv(...))
// two-pass "read raw, then default" idiom.
func Load() (Config, error) {
	_ = godotenv.Overload()

	cfg := Config{}
	cfg.GeminiAPIKey = trimEnv("GEMINI_API_KEY")
	cfg.EmbeddingModel = trimEnv("EMBEDDING_MODEL")
	cfg.DatabaseType = trimEnv("DATABASE_TYPE")
	cfg.DatabaseJSONFileDirectory = trimEnv("DATABASE_JSON_FILE_DIRECTORY")
	cfg.DatabasePostgresDSN = trimEnv("DATABASE_DSN")
	cfg.LogPath = trimEnv("LOG_PATH")
	cfg.LogLevel = trimEnv("LOG_LEVEL")

	if v := trimEnv("EMBEDDING_BATCH_SIZE"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.EmbeddingBatchSize = n
		}
	}
	if v := trimEnv("SIMILARITY_THRESHOLD"); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			cfg.SimilarityThreshold = f
		}
	}
	if v := trimEnv("BG_MAX_OPERATIONS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.BGMaxOperations = n
		}
	}
	if v := trimEnv("BG_MAX_TIME_MS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.BGMaxTimeMs = n
		}
	}
	cfg.BGEnableEmbeddingBackfill = boolEnvOrDefault("BG_ENABLE_EMBEDDING_BACKFILL", true)
	cfg.BGEnableImportanceDecay = boolEnvOrDefault("BG_ENABLE_IMPORTANCE_DECAY", true)
	cfg.BGEnableOrphanCleanup = boolEnvOrDefault("BG_ENABLE_ORPHAN_CLEANUP", true)
	cfg.BGEnableDanglingSweep = boolEnvOrDefault("BG_ENABLE_DANGLING_SWEEP", true)

	if v := trimEnv("MCP_TOKEN_LIMIT"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.MCPTokenLimit = n
		}
	}
	if v := trimEnv("MCP_TOKEN_BUFFER"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.MCPTokenBuffer = n
		}
	}
	if v := trimEnv("MCP_FULL_MEMORY_TOKEN_THRESHOLD"); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			cfg.MCPFullMemoryTokenThreshold = f
		}
	}

	applyDefaults(&cfg)
	return cfg, nil
}

// applyDefaults fills in the defaults documented in SPEC_FULL.md §6's table.
func applyDefaults(cfg *Config) {
	if cfg.EmbeddingModel == "" {
		cfg.EmbeddingModel = "text-embedding-004"
	}
	if cfg.EmbeddingBatchSize <= 0 {
		cfg.EmbeddingBatchSize = 10
	}
	if cfg.SimilarityThreshold <= 0 {
		cfg.SimilarityThreshold = 0.7
	}
	if cfg.DatabaseType == "" {
		cfg.DatabaseType = "json-file"
	}
	if cfg.DatabaseJSONFileDirectory == "" {
		cfg.DatabaseJSONFileDirectory = "./data"
	}
	if cfg.BGMaxOperations <= 0 {
		cfg.BGMaxOperations = 5
	}
	if cfg.BGMaxTimeMs <= 0 {
		cfg.BGMaxTimeMs = 2000
	}
	if cfg.MCPTokenLimit <= 0 {
		cfg.MCPTokenLimit = 25000
	}
	if cfg.MCPTokenBuffer <= 0 {
		cfg.MCPTokenBuffer = 2000
	}
	if cfg.MCPFullMemoryTokenThreshold <= 0 {
		cfg.MCPFullMemoryTokenThreshold = 0.7
	}
	if cfg.LogLevel == "" {
		cfg.LogLevel = "info"
	}
}

func trimEnv(name string) string {
	return strings.TrimSpace(os.Getenv(name))
}

func boolEnvOrDefault(name string, def bool) bool {
	v := trimEnv(name)
	if v == "" {
		return def
	}
	return strings.EqualFold(v, "true") || v == "1" || strings.EqualFold(v, "yes")
}
