package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSaveLoadRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	cfg := &Config{
		GitHubToken: "ghp_abc",
		DevinAPIKey: "devin_xyz",
		WebhookURL:  "https://discord.com/api/webhooks/1",
	}
	require.NoError(t, cfg.saveTo(path))

	info, err := os.Stat(path)
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0600), info.Mode().Perm(), "credentials are owner-only")

	loaded, err := loadFrom(path)
	require.NoError(t, err)
	assert.Equal(t, cfg, loaded)
}

func TestLoadMissingFileIsEmpty(t *testing.T) {
	loaded, err := loadFrom(filepath.Join(t.TempDir(), "nope.yaml"))
	require.NoError(t, err)
	assert.Empty(t, loaded.GitHubToken)
}

func TestEnvOverridesFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, (&Config{GitHubToken: "from-file", DevinAPIKey: "file-key"}).saveTo(path))

	t.Setenv(EnvGitHubToken, "from-env")
	t.Setenv(EnvWebhookURL, "https://hooks.slack.com/services/T0")

	loaded, err := loadFrom(path)
	require.NoError(t, err)
	assert.Equal(t, "from-env", loaded.GitHubToken)
	assert.Equal(t, "file-key", loaded.DevinAPIKey, "env unset keeps file value")
	assert.Equal(t, "https://hooks.slack.com/services/T0", loaded.WebhookURL)
}

func TestValidateNamesMissingFields(t *testing.T) {
	err := (&Config{}).Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "github_token")
	assert.Contains(t, err.Error(), "devin_api_key")

	assert.NoError(t, (&Config{GitHubToken: "t", DevinAPIKey: "k"}).Validate())
}
