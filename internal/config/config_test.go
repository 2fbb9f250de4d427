package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func clearEnv(t *testing.T) {
	t.Helper()
	for _, key := range []string{
		"TRANSHOT_CONFIG", "OPENAI_API_KEY", "OPENAI_BASE_URL", "TRANSHOT_MODEL",
		"TRANSHOT_CONTEXT_MODEL", "TRANSHOT_CONTEXT_ENABLED", "TRANSHOT_TARGET_LANGUAGE",
		"GOOGLE_VISION_API_KEY", "GOOGLE_CREDENTIALS", "GOOGLE_APPLICATION_CREDENTIALS",
		"VISION_ENDPOINT", "VISION_TRANSPORT", "TRANSHOT_STORE", "TRANSHOT_DB_PATH",
		"REDIS_ADDR", "REDIS_PASSWORD", "REDIS_DB", "TRANSHOT_ARCHIVE_DIR",
	} {
		t.Setenv(key, "")
	}
}

func TestLoadDefaults(t *testing.T) {
	clearEnv(t)

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, DefaultModel, cfg.Model)
	assert.Equal(t, DefaultModel, cfg.ContextModel)
	assert.Equal(t, "sqlite", cfg.StoreBackend)
	assert.Equal(t, "rest", cfg.VisionTransport)
	assert.False(t, cfg.ContextEnabled)
}

func TestLoadYAMLThenEnv(t *testing.T) {
	clearEnv(t)

	path := filepath.Join(t.TempDir(), "transhot.yaml")
	require.NoError(t, os.WriteFile(path, []byte("model: gpt-4o-mini\ncontext_enabled: true\nstore: memory\ntarget_language: German\n"), 0o600))
	t.Setenv("TRANSHOT_CONFIG", path)
	t.Setenv("TRANSHOT_TARGET_LANGUAGE", "French")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, "gpt-4o-mini", cfg.Model)
	assert.True(t, cfg.ContextEnabled)
	assert.Equal(t, "memory", cfg.StoreBackend)
	assert.Equal(t, "French", cfg.TargetLanguage)
}

func TestLoadReadsCredentialsFile(t *testing.T) {
	clearEnv(t)

	path := filepath.Join(t.TempDir(), "sa.json")
	require.NoError(t, os.WriteFile(path, []byte(`{"apiKey":"k"}`), 0o600))
	t.Setenv("GOOGLE_APPLICATION_CREDENTIALS", path)

	cfg, err := Load()
	require.NoError(t, err)
	assert.JSONEq(t, `{"apiKey":"k"}`, cfg.VisionCredentials)
}

func TestLoadRejectsUnknownStore(t *testing.T) {
	clearEnv(t)
	t.Setenv("TRANSHOT_STORE", "etcd")

	_, err := Load()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "TRANSHOT_STORE")
}

func TestSettingsWithDefaults(t *testing.T) {
	fallback := Settings{ChatAPIKey: "env-key", Model: "m1", TargetLanguage: "Russian"}

	got := Settings{Model: "stored"}.WithDefaults(fallback)
	assert.Equal(t, "env-key", got.ChatAPIKey)
	assert.Equal(t, "stored", got.Model)
	assert.Equal(t, "stored", got.ContextModel)
	assert.Equal(t, "Russian", got.TargetLanguage)
}
