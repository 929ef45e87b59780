package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	t.Setenv("LUDOLENS_CONFIG_FILE", "")
	t.Setenv("LUDOLENS_CHUNK_SIZE", "")
	cfg, err := Load()
	require.NoError(t, err)
	require.Equal(t, 1000, cfg.ChunkSize)
	require.Equal(t, 200, cfg.ChunkOverlap)
	require.Equal(t, 3, cfg.RetrievalTopK)
	require.Equal(t, 10<<20, cfg.MaxUploadBytes)
	require.Equal(t, ProcessorLocal, cfg.Processor)
}

func TestLoadFileThenEnv(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "ludolens.yaml")
	require.NoError(t, os.WriteFile(path, []byte("chunk_size: 800\nchunk_overlap: 100\nanswer_language: English\n"), 0o644))

	t.Setenv("LUDOLENS_CONFIG_FILE", path)
	t.Setenv("LUDOLENS_CHUNK_OVERLAP", "50")

	cfg, err := Load()
	require.NoError(t, err)
	require.Equal(t, 800, cfg.ChunkSize)
	require.Equal(t, 50, cfg.ChunkOverlap)
	require.Equal(t, "English", cfg.AnswerLanguage)
}

func TestLoadMissingFile(t *testing.T) {
	t.Setenv("LUDOLENS_CONFIG_FILE", filepath.Join(t.TempDir(), "nope.yaml"))
	_, err := Load()
	require.Error(t, err)
}

func TestValidate(t *testing.T) {
	cfg := Defaults()
	require.NoError(t, cfg.Validate())

	cfg.ChunkOverlap = cfg.ChunkSize
	require.Error(t, cfg.Validate())

	cfg = Defaults()
	cfg.LLMProviders = "gemini"
	cfg.GeminiAPIKey = ""
	require.ErrorContains(t, cfg.Validate(), "gemini")

	cfg.GeminiAPIKey = "k"
	cfg.Processor = "celery"
	require.ErrorContains(t, cfg.Validate(), "unknown processor")
}

func TestOrigins(t *testing.T) {
	cfg := Defaults()
	require.Equal(t, []string{"*"}, cfg.Origins())

	cfg.CORSOrigins = " http://localhost:5173, ,https://ludolens.app "
	require.Equal(t, []string{"http://localhost:5173", "https://ludolens.app"}, cfg.Origins())
}
