package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEnvOverrides_LLM(t *testing.T) {
	t.Run("OPENAI_API_KEY sets key and provider", func(t *testing.T) {
		clearLLMEnv(t)
		t.Setenv("OPENAI_API_KEY", "oa-key")

		cfg := &Config{LLM: LLMConfig{Provider: "initial"}}
		cfg.applyEnvOverrides()

		assert.Equal(t, "oa-key", cfg.LLM.APIKey)
		assert.Equal(t, "openai", cfg.LLM.Provider)
	})

	t.Run("empty env leaves config alone", func(t *testing.T) {
		clearLLMEnv(t)

		cfg := DefaultConfig()
		cfg.LLM.APIKey = "from-file"
		cfg.applyEnvOverrides()

		assert.Equal(t, "from-file", cfg.LLM.APIKey)
	})

	t.Run("model, base url and max tokens", func(t *testing.T) {
		clearLLMEnv(t)
		t.Setenv("CODESMITH_MODEL", "gpt-4o-mini")
		t.Setenv("OPENAI_BASE_URL", "http://localhost:9999/v1")
		t.Setenv("CODESMITH_MAX_TOKENS", "2048")

		cfg := DefaultConfig()
		cfg.applyEnvOverrides()

		assert.Equal(t, "gpt-4o-mini", cfg.LLM.Model)
		assert.Equal(t, "http://localhost:9999/v1", cfg.LLM.BaseURL)
		assert.Equal(t, 2048, cfg.LLM.MaxTokens)
	})

	t.Run("invalid max tokens ignored", func(t *testing.T) {
		clearLLMEnv(t)
		t.Setenv("CODESMITH_MAX_TOKENS", "lots")

		cfg := DefaultConfig()
		cfg.applyEnvOverrides()

		assert.Equal(t, 1000, cfg.LLM.MaxTokens)
	})
}

func TestEnvOverrides_History(t *testing.T) {
	clearLLMEnv(t)
	t.Setenv("CODESMITH_HISTORY_DB", "/tmp/runs.db")

	cfg := DefaultConfig()
	cfg.applyEnvOverrides()

	assert.True(t, cfg.History.Enabled)
	assert.Equal(t, "/tmp/runs.db", cfg.History.Path)
}

func TestLoadEnvFile(t *testing.T) {
	t.Run("loads key from dotenv", func(t *testing.T) {
		clearLLMEnv(t)
		require.NoError(t, os.Unsetenv("OPENAI_API_KEY"))
		path := filepath.Join(t.TempDir(), ".env")
		require.NoError(t, os.WriteFile(path, []byte("OPENAI_API_KEY=sk-from-dotenv\n"), 0600))

		require.NoError(t, LoadEnvFile(path))
		t.Cleanup(func() { os.Unsetenv("OPENAI_API_KEY") })

		cfg, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
		require.NoError(t, err)
		assert.Equal(t, "sk-from-dotenv", cfg.LLM.APIKey)
	})

	t.Run("process environment wins", func(t *testing.T) {
		t.Setenv("OPENAI_API_KEY", "sk-from-shell")
		path := filepath.Join(t.TempDir(), ".env")
		require.NoError(t, os.WriteFile(path, []byte("OPENAI_API_KEY=sk-from-dotenv\n"), 0600))

		require.NoError(t, LoadEnvFile(path))
		assert.Equal(t, "sk-from-shell", os.Getenv("OPENAI_API_KEY"))
	})

	t.Run("missing file is fine", func(t *testing.T) {
		assert.NoError(t, LoadEnvFile(filepath.Join(t.TempDir(), ".env")))
		assert.NoError(t, LoadEnvFile(""))
	})
}
