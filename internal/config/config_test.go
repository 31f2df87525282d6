package config

import (
	"os"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestLoad_Defaults(t *testing.T) {
	for _, k := range []string{
		"EMBEDDING_MODEL", "EMBEDDING_BATCH_SIZE", "SIMILARITY_THRESHOLD",
		"DATABASE_TYPE", "DATABASE_JSON_FILE_DIRECTORY",
		"BG_MAX_OPERATIONS", "BG_MAX_TIME_MS",
		"MCP_TOKEN_LIMIT", "MCP_TOKEN_BUFFER", "MCP_FULL_MEMORY_TOKEN_THRESHOLD",
	} {
		t.Setenv(k, "")
	}

	cfg, err := Load()
	require.NoError(t, err)
	require.Equal(t, "text-embedding-004", cfg.EmbeddingModel)
	require.Equal(t, 10, cfg.EmbeddingBatchSize)
	require.Equal(t, 0.7, cfg.SimilarityThreshold)
	require.Equal(t, "json-file", cfg.DatabaseType)
	require.Equal(t, "./data", cfg.DatabaseJSONFileDirectory)
	require.Equal(t, 5, cfg.BGMaxOperations)
	require.Equal(t, 2000, cfg.BGMaxTimeMs)
	require.Equal(t, 25000, cfg.MCPTokenLimit)
	require.Equal(t, 2000, cfg.MCPTokenBuffer)
	require.Equal(t, 0.7, cfg.MCPFullMemoryTokenThreshold)
	require.True(t, cfg.BGEnableEmbeddingBackfill)
	require.True(t, cfg.BGEnableImportanceDecay)
	require.True(t, cfg.BGEnableOrphanCleanup)
	require.True(t, cfg.BGEnableDanglingSweep)
}

func TestLoad_OverridesFromEnv(t *testing.T) {
	t.Setenv("EMBEDDING_MODEL", "custom-model")
	t.Setenv("SIMILARITY_THRESHOLD", "0.5")
	t.Setenv("BG_ENABLE_IMPORTANCE_DECAY", "false")
	t.Setenv("DATABASE_TYPE", "postgres")

	cfg, err := Load()
	require.NoError(t, err)
	require.Equal(t, "custom-model", cfg.EmbeddingModel)
	require.Equal(t, 0.5, cfg.SimilarityThreshold)
	require.False(t, cfg.BGEnableImportanceDecay)
	require.Equal(t, "postgres", cfg.DatabaseType)
}

func TestBoolEnvOrDefault(t *testing.T) {
	os.Unsetenv("TEST_FLAG_X")
	require.True(t, boolEnvOrDefault("TEST_FLAG_X", true))
	t.Setenv("TEST_FLAG_X", "0")
	require.False(t, boolEnvOrDefault("TEST_FLAG_X", true))
	t.Setenv("TEST_FLAG_X", "yes")
	require.True(t, boolEnvOrDefault("TEST_FLAG_X", false))
}
