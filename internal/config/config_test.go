package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaultsWhenFileMissing(t *testing.T) {
	t.Setenv("WORDLLM_API_URL", "")
	t.Setenv("WORDLLM_TIMEOUT", "")

	cfg, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	require.NoError(t, err)

	assert.Equal(t, "http://localhost:5000/api", cfg.APIBaseURL)
	assert.Equal(t, 15*time.Second, cfg.RequestTimeout)
	assert.Equal(t, 5*time.Second, cfg.ReconnectDelay)
	assert.Equal(t, 4*time.Second, cfg.HeartbeatIncoming)
	assert.Equal(t, 4*time.Second, cfg.HeartbeatOutgoing)
	assert.Equal(t, time.Second, cfg.GenerationDelay)
	assert.Equal(t, StoreDriverFile, cfg.StoreDriver)
}

func TestLoadFileThenEnv(t *testing.T) {
	path := filepath.Join(t.TempDir(), "wordllm.yaml")
	content := "api_base_url: http://backend:9000/api\nrequest_timeout: 30s\nstore_driver: sqlite\n"
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))

	t.Run("file values applied", func(t *testing.T) {
		t.Setenv("WORDLLM_API_URL", "")
		cfg, err := Load(path)
		require.NoError(t, err)
		assert.Equal(t, "http://backend:9000/api", cfg.APIBaseURL)
		assert.Equal(t, 30*time.Second, cfg.RequestTimeout)
		assert.Equal(t, StoreDriverSQLite, cfg.StoreDriver)
	})

	t.Run("env overrides file", func(t *testing.T) {
		t.Setenv("WORDLLM_API_URL", "http://env:1/api")
		t.Setenv("WORDLLM_TIMEOUT", "2500")
		cfg, err := Load(path)
		require.NoError(t, err)
		assert.Equal(t, "http://env:1/api", cfg.APIBaseURL)
		assert.Equal(t, 2500*time.Millisecond, cfg.RequestTimeout)
	})
}

func TestValidate(t *testing.T) {
	cfg := DefaultConfig()
	require.NoError(t, cfg.Validate())

	cfg.APIBaseURL = "  "
	assert.Error(t, cfg.Validate())

	cfg = DefaultConfig()
	cfg.RequestTimeout = 0
	assert.Error(t, cfg.Validate())

	cfg = DefaultConfig()
	cfg.StoreDriver = "redis"
	assert.Error(t, cfg.Validate())
}

func TestSaveRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "wordllm.yaml")
	cfg := DefaultConfig()
	cfg.APIBaseURL = "http://saved/api"
	cfg.GenerationDelay = 250 * time.Millisecond
	require.NoError(t, cfg.Save(path))

	t.Setenv("WORDLLM_API_URL", "")
	t.Setenv("WORDLLM_GENERATION_DELAY", "")
	loaded, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "http://saved/api", loaded.APIBaseURL)
	assert.Equal(t, 250*time.Millisecond, loaded.GenerationDelay)
}

func TestRealtimeEndpoint(t *testing.T) {
	cfg := DefaultConfig()
	cfg.WSURL = "ws://host/api/ws/"
	assert.Equal(t, "ws://host/api/ws/ws/websocket", cfg.RealtimeEndpoint())

	cfg.SockJSPath = false
	assert.Equal(t, "ws://host/api/ws", cfg.RealtimeEndpoint())
}
