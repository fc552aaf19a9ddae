package config

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	t.Setenv("EMBEDDING_API_KEY", "embed-key")
	t.Setenv("LLM_API_KEY", "llm-key")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, 8080, cfg.Server.Port)
	assert.Equal(t, "paperchat", cfg.Database.Database)
	assert.Equal(t, 1000, cfg.Ingest.ChunkSize)
	assert.Equal(t, 200, cfg.Ingest.ChunkOverlap)
	assert.Equal(t, 2500, cfg.Ingest.ArxivChunkSize)
	assert.Equal(t, 500, cfg.Ingest.ArxivOverlap)
	assert.Equal(t, 1024, cfg.Embedding.Dimensions)
	assert.Equal(t, 10, cfg.Embedding.BatchSize)
	assert.Equal(t, 100000, cfg.Chat.ContextTokenBudget)
	assert.InDelta(t, 0.1, cfg.Chat.SimilarityFloor, 0.0001)
	assert.Equal(t, 15, cfg.Chat.SimilarityTopK)
}

func TestLoadOverrides(t *testing.T) {
	t.Setenv("EMBEDDING_API_KEY", "k")
	t.Setenv("LLM_API_KEY", "k")
	t.Setenv("PORT", "9999")
	t.Setenv("CHUNK_SIZE", "2000")
	t.Setenv("CHUNK_OVERLAP", "400")
	t.Setenv("LOG_LEVEL", "debug")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, 9999, cfg.Server.Port)
	assert.Equal(t, 2000, cfg.Ingest.ChunkSize)
	assert.Equal(t, 400, cfg.Ingest.ChunkOverlap)
	assert.Equal(t, "debug", cfg.Log.Level)
}

func TestLoadRequiresCredentials(t *testing.T) {
	t.Setenv("EMBEDDING_API_KEY", "")
	t.Setenv("LLM_API_KEY", "k")

	_, err := Load()
	assert.Error(t, err)
}

func TestValidateRejectsBadOverlap(t *testing.T) {
	t.Setenv("EMBEDDING_API_KEY", "k")
	t.Setenv("LLM_API_KEY", "k")
	t.Setenv("CHUNK_SIZE", "100")
	t.Setenv("CHUNK_OVERLAP", "100")

	_, err := Load()
	assert.Error(t, err)
}

func TestDSN(t *testing.T) {
	db := DatabaseConfig{
		Host: "db.local", Port: 5432, User: "u", Password: "p",
		Database: "paperchat", SSLMode: "disable",
	}
	assert.Equal(t, "host=db.local port=5432 user=u password=p dbname=paperchat sslmode=disable", db.DSN())
}
