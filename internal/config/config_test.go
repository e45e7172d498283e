package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ramble-labs/lectern/internal/core/domain"
)

func TestDefault_IsValid(t *testing.T) {
	cfg := Default()
	assert.NoError(t, cfg.Validate())
	assert.Equal(t, StorageFile, cfg.Storage.Backend)
	assert.Equal(t, 512, cfg.Chunking.ChunkSize)
	assert.Equal(t, 50, cfg.Chunking.ChunkOverlap)
	assert.Equal(t, 24*time.Hour, cfg.Sessions.IdleTimeout.Std())
}

func TestLoad_MissingFileUsesDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "absent.toml"))
	require.NoError(t, err)
	assert.Equal(t, Default().Chunking, cfg.Chunking)
}

func TestLoad_FileOverridesDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.toml")
	content := `
data_dir = "/tmp/lectern-test"

[chunking]
chunk_size = 256
chunk_overlap = 32

[sessions]
idle_timeout = "1h30m"

[storage]
backend = "sqlite"
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "/tmp/lectern-test", cfg.DataDir)
	assert.Equal(t, 256, cfg.Chunking.ChunkSize)
	assert.Equal(t, 32, cfg.Chunking.ChunkOverlap)
	assert.Equal(t, 90*time.Minute, cfg.Sessions.IdleTimeout.Std())
	assert.Equal(t, StorageSQLite, cfg.Storage.Backend)

	// Unspecified sections keep their defaults.
	assert.Equal(t, Default().Retrieval.TopK, cfg.Retrieval.TopK)
}

func TestLoad_RejectsInvalidFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.toml")
	require.NoError(t, os.WriteFile(path, []byte(`[chunking]
chunk_size = 10
chunk_overlap = 10
`), 0o600))

	_, err := Load(path)
	assert.ErrorIs(t, err, domain.ErrInvalidConfig)
}

func TestLoad_RejectsMalformedTOML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.toml")
	require.NoError(t, os.WriteFile(path, []byte("not toml ["), 0o600))

	_, err := Load(path)
	assert.Error(t, err)
}

func TestLoad_EnvOverrides(t *testing.T) {
	t.Setenv("LECTERN_DATA_DIR", "/tmp/from-env")
	t.Setenv("LECTERN_STORAGE_BACKEND", "sqlite")
	t.Setenv("LECTERN_OLLAMA_BASE_URL", "http://ollama:11434")
	t.Setenv("LECTERN_VERBOSE", "true")

	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, "/tmp/from-env", cfg.DataDir)
	assert.Equal(t, StorageSQLite, cfg.Storage.Backend)
	assert.Equal(t, "http://ollama:11434", cfg.Embedding.BaseURL)
	assert.Equal(t, "http://ollama:11434", cfg.LLM.BaseURL)
	assert.True(t, cfg.Verbose)
}

func TestValidate_BadBackend(t *testing.T) {
	cfg := Default()
	cfg.Storage.Backend = "postgres"
	assert.ErrorIs(t, cfg.Validate(), domain.ErrInvalidConfig)
}

func TestValidate_BadLimits(t *testing.T) {
	cfg := Default()
	cfg.Limits.RequestsPerSecond = 0
	assert.ErrorIs(t, cfg.Validate(), domain.ErrInvalidConfig)

	cfg = Default()
	cfg.Limits.Burst = 0
	assert.ErrorIs(t, cfg.Validate(), domain.ErrInvalidConfig)
}

func TestDuration_TextRoundtrip(t *testing.T) {
	var d Duration
	require.NoError(t, d.UnmarshalText([]byte("45s")))
	assert.Equal(t, 45*time.Second, d.Std())

	text, err := d.MarshalText()
	require.NoError(t, err)
	assert.Equal(t, "45s", string(text))
}

func TestDirsDeriveFromDataDir(t *testing.T) {
	cfg := Default()
	cfg.DataDir = "/data/lectern"
	assert.Equal(t, filepath.Join("/data/lectern", "metadata"), cfg.MetadataDir())
	assert.Equal(t, filepath.Join("/data/lectern", "indices"), cfg.IndexDir())
}
