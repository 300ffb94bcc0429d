package shared

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func clearConfigEnv(t *testing.T) {
	t.Helper()
	for _, key := range []string{"OPENAI_API_KEY", "OPENAI_REALTIME_URL", "WEBHOOK_URL", "PORT"} {
		t.Setenv(key, "")
	}
}

func TestLoadConfigDefaults(t *testing.T) {
	clearConfigEnv(t)
	t.Setenv("OPENAI_API_KEY", "sk-test")

	cfg, err := LoadConfig("")
	require.NoError(t, err)
	assert.Equal(t, ":8000", cfg.Listen)
	assert.Equal(t, "sk-test", cfg.APIKey)
	assert.Equal(t, DefaultUpstreamURL, cfg.UpstreamURL)
	assert.NotEmpty(t, cfg.WebhookURL)
}

func TestLoadConfigFromFile(t *testing.T) {
	clearConfigEnv(t)
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
listen: ":9000"
openai_api_key: "sk-file"
webhook_url: "https://hooks.example.com/relay"
log:
  file: "relay.log"
  max_size_mb: 10
`), 0o600))

	cfg, err := LoadConfig(path)
	require.NoError(t, err)
	assert.Equal(t, ":9000", cfg.Listen)
	assert.Equal(t, "sk-file", cfg.APIKey)
	assert.Equal(t, "https://hooks.example.com/relay", cfg.WebhookURL)
	assert.Equal(t, "relay.log", cfg.Log.File)
	assert.Equal(t, 10, cfg.Log.MaxSizeMB)
}

func TestLoadConfigEnvOverridesFile(t *testing.T) {
	clearConfigEnv(t)
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
openai_api_key: "sk-file"
webhook_url: "https://hooks.example.com/relay"
`), 0o600))

	t.Setenv("OPENAI_API_KEY", "sk-env")
	t.Setenv("WEBHOOK_URL", "https://hooks.example.com/override")
	t.Setenv("PORT", "7000")

	cfg, err := LoadConfig(path)
	require.NoError(t, err)
	assert.Equal(t, "sk-env", cfg.APIKey)
	assert.Equal(t, "https://hooks.example.com/override", cfg.WebhookURL)
	assert.Equal(t, ":7000", cfg.Listen)
}

func TestLoadConfigMissingFile(t *testing.T) {
	clearConfigEnv(t)
	_, err := LoadConfig(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.ErrorContains(t, err, "reading config file")
}

func TestLoadConfigBadYAML(t *testing.T) {
	clearConfigEnv(t)
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("listen: [unterminated"), 0o600))
	_, err := LoadConfig(path)
	assert.ErrorContains(t, err, "parsing config file")
}

func TestConfigValidate(t *testing.T) {
	cfg := &Config{WebhookURL: "https://hooks.example.com"}
	assert.ErrorIs(t, cfg.Validate(), ErrNoAPIKey)

	cfg = &Config{APIKey: "sk-test"}
	assert.ErrorIs(t, cfg.Validate(), ErrNoWebhookURL)

	cfg = &Config{APIKey: "sk-test", WebhookURL: "https://hooks.example.com"}
	require.NoError(t, cfg.Validate())
	assert.Equal(t, DefaultUpstreamURL, cfg.UpstreamURL)
	assert.Equal(t, ":8000", cfg.Listen)
}
