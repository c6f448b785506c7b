package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadConfigDefaults(t *testing.T) {
	// No config.yaml and no .env in an empty directory.
	wd, err := os.Getwd()
	require.NoError(t, err)
	require.NoError(t, os.Chdir(t.TempDir()))
	t.Cleanup(func() { _ = os.Chdir(wd) })

	cfg, err := LoadConfig("")
	require.NoError(t, err)

	assert.Equal(t, "http://localhost:8080", cfg.Server.BaseURL)
	assert.Equal(t, "/ws", cfg.Server.WebSocketPath)
	assert.Equal(t, DefaultWebSocketConfig(), cfg.WebSocket)
	assert.Equal(t, "sqlite", cfg.Database.Type)
	assert.True(t, cfg.LocalAPI.Enabled)
	assert.Empty(t, cfg.LocalAPI.AccessKey)
}

func TestLoadConfigFromFileAndEnv(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
SERVER:
  BASE_URL: https://chat.example.com
  WEBSOCKET_PATH: /realtime
WEBSOCKET:
  RECONNECT_DELAY: 5s
  SEND_BUFFER_SIZE: 16
LOCAL_API:
  ACCESS_KEY: from-file
`), 0600))

	t.Setenv("LOCAL_API_ACCESS_KEY", "from-env")
	t.Setenv("IDENTITY_TOKEN", "alice@example.com")

	cfg, err := LoadConfig(path)
	require.NoError(t, err)

	assert.Equal(t, "https://chat.example.com", cfg.Server.BaseURL)
	assert.Equal(t, "/realtime", cfg.Server.WebSocketPath)
	assert.Equal(t, 5*time.Second, cfg.WebSocket.ReconnectDelay)
	assert.Equal(t, 16, cfg.WebSocket.SendBufferSize)
	assert.Equal(t, "from-env", cfg.LocalAPI.AccessKey)
	assert.Equal(t, "alice@example.com", cfg.Identity.Token)

	// Untouched keys keep their defaults.
	def := DefaultWebSocketConfig()
	assert.Equal(t, def.PongWaitSeconds, cfg.WebSocket.PongWaitSeconds)
	assert.Equal(t, "bolt", cfg.TokenStore.Type)
	assert.False(t, cfg.Kafka.Enabled)
	assert.Equal(t, "im-sync-outbox", cfg.Kafka.GroupID)
}
