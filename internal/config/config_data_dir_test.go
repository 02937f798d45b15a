package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewFromEnv_DataDirDefault(t *testing.T) {
	t.Setenv("LLM_API_KEY", "test-key")
	t.Setenv("DATA_DIR", "")

	cfg, err := NewFromEnv()
	require.NoError(t, err)

	assert.Equal(t, "/app/data", cfg.System.DataDir)
	assert.Equal(t, filepath.Join("/app/data", "contentflow.db"), cfg.DBPath())
}

func TestNewFromEnv_DataDirFromEnv(t *testing.T) {
	t.Setenv("LLM_API_KEY", "test-key")
	t.Setenv("DATA_DIR", "/tmp/content-data")

	cfg, err := NewFromEnv()
	require.NoError(t, err)

	assert.Equal(t, "/tmp/content-data", cfg.System.DataDir)
	assert.Equal(t, filepath.Join("/tmp/content-data", "contentflow.db"), cfg.DBPath())
}

func TestNewFromEnv_RequiresAPIKey(t *testing.T) {
	t.Setenv("LLM_API_KEY", "")

	_, err := NewFromEnv()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "LLM_API_KEY")
}

func TestNewFromEnv_RejectsUnknownProvider(t *testing.T) {
	t.Setenv("LLM_API_KEY", "test-key")
	t.Setenv("LLM_PROVIDER", "carrier-pigeon")

	_, err := NewFromEnv()
	require.Error(t, err)
}

func TestLoad_ReadsEnvFile(t *testing.T) {
	envFile := filepath.Join(t.TempDir(), ".env")
	require.NoError(t, os.WriteFile(envFile, []byte("LLM_API_KEY=from-file\nQUEUE_WORKERS=7\n"), 0o600))
	t.Setenv("LLM_API_KEY", "")
	t.Setenv("QUEUE_WORKERS", "")
	// godotenv does not override variables that are already set, so clear them for the process
	require.NoError(t, os.Unsetenv("LLM_API_KEY"))
	require.NoError(t, os.Unsetenv("QUEUE_WORKERS"))

	cfg, err := Load(envFile)
	require.NoError(t, err)
	assert.Equal(t, "from-file", cfg.LLM.APIKey)
	assert.Equal(t, 7, cfg.Queue.Workers)
}
