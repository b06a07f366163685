package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_DefaultsAreValid(t *testing.T) {
	t.Setenv("XDG_CONFIG_HOME", t.TempDir())
	t.Setenv("SC_CONFIG", "")

	cfg, err := Load("")
	require.NoError(t, err)
	require.NoError(t, cfg.Validate())

	assert.Equal(t, DefaultBaseURL, cfg.API.BaseURL)
	assert.Equal(t, "ws://localhost:5000/socket", cfg.API.SocketURL)
	assert.Equal(t, []string{DefaultBaseURL}, cfg.Media.BaseURLs)
	assert.Equal(t, 500*time.Millisecond, cfg.Search.Debounce)
	assert.Equal(t, filepath.Join(os.Getenv("XDG_CONFIG_HOME"), "social-client"), cfg.Session.Dir)
}

func TestLoad_YAMLThenEnv(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "sc.yml")
	yml := `
api:
  base_url: https://api.example.com
  max_retries: 2
media:
  base_urls: [https://cdn1.example.com, https://cdn2.example.com]
chat:
  typing_ttl: 5s
  page_limit: 50
feed:
  page_limit: 15
logging:
  level: debug
`
	require.NoError(t, os.WriteFile(path, []byte(yml), 0o600))
	t.Setenv("SC_API_MAX_RETRIES", "7")
	t.Setenv("SC_SESSION_PASSPHRASE", "pw")

	cfg, err := Load(path)
	require.NoError(t, err)
	require.NoError(t, cfg.Validate())

	assert.Equal(t, "https://api.example.com", cfg.API.BaseURL)
	assert.Equal(t, "wss://api.example.com/socket", cfg.API.SocketURL)
	assert.Equal(t, 7, cfg.API.MaxRetries)
	assert.Equal(t, 5*time.Second, cfg.Chat.TypingTTL)
	assert.Equal(t, 50, cfg.Chat.PageLimit)
	assert.Equal(t, 15, cfg.Feed.PageLimit)
	assert.Equal(t, DefaultNotificationsPageLimit, cfg.Notifications.PageLimit)
	assert.Equal(t, "debug", cfg.Logging.Level)
	assert.Equal(t, "pw", cfg.Session.Passphrase)
	assert.Len(t, cfg.Media.BaseURLs, 2)
}

func TestLoad_BadEnv(t *testing.T) {
	t.Setenv("SC_API_TIMEOUT", "soon")
	_, err := Load("")
	require.Error(t, err)
}

func TestLoad_MissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.yml"))
	require.Error(t, err)
}

func TestValidate_CollectsProblems(t *testing.T) {
	cfg := Default()
	cfg.API.BaseURL = "not a url"
	cfg.Chat.PageLimit = 0
	cfg.Feed.PageLimit = -1
	cfg.Logging.Level = "loud"

	err := cfg.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "api.base_url")
	assert.Contains(t, err.Error(), "chat.page_limit")
	assert.Contains(t, err.Error(), "feed.page_limit")
	assert.Contains(t, err.Error(), "logging.level")
}
