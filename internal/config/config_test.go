package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setRequired(t *testing.T) {
	t.Helper()
	t.Setenv("DATABASE_URL", "postgres://localhost/recall")
	t.Setenv("JWT_SECRET", "secret")
	t.Setenv("GEMINI_API_KEY", "key")
}

func TestLoad_Defaults(t *testing.T) {
	setRequired(t)

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, ":8080", cfg.HTTPAddr)
	assert.Equal(t, "neo4j", cfg.GraphBackend)
	assert.Equal(t, 500, cfg.ChunkSize)
	assert.Equal(t, 50, cfg.ChunkOverlap)
	assert.Equal(t, 2, cfg.WorkerCount)
	assert.Equal(t, 800*time.Millisecond, cfg.WorkerPollInterval)
	assert.Empty(t, cfg.CORSAllowedOrigins)
}

func TestLoad_Overrides(t *testing.T) {
	setRequired(t)
	t.Setenv("CORS_ALLOWED_ORIGINS", "http://a.test, ,http://b.test")
	t.Setenv("WORKER_COUNT", "4")
	t.Setenv("RETRIEVAL_TIMEOUT", "1500")
	t.Setenv("WORKER_POLL_INTERVAL", "2s")
	t.Setenv("CHUNK_SIZE", "not-a-number")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, []string{"http://a.test", "http://b.test"}, cfg.CORSAllowedOrigins)
	assert.Equal(t, 4, cfg.WorkerCount)
	assert.Equal(t, 1500*time.Millisecond, cfg.RetrievalTimeout)
	assert.Equal(t, 2*time.Second, cfg.WorkerPollInterval)
	assert.Equal(t, 500, cfg.ChunkSize)
}

func TestLoad_ChunkOverlapCanBeDisabled(t *testing.T) {
	setRequired(t)
	t.Setenv("CHUNK_OVERLAP", "0")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, 0, cfg.ChunkOverlap)

	t.Setenv("CHUNK_OVERLAP", "-5")
	cfg, err = Load()
	require.NoError(t, err)
	assert.Equal(t, 50, cfg.ChunkOverlap)
}

func TestLoad_MissingSecretPanics(t *testing.T) {
	t.Setenv("DATABASE_URL", "postgres://localhost/recall")
	t.Setenv("JWT_SECRET", "")

	assert.Panics(t, func() { _, _ = Load() })
}
