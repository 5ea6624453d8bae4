package common

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfigFile(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "relay.toml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))
	return path
}

func TestNewDefaultConfig(t *testing.T) {
	config := NewDefaultConfig()

	assert.Equal(t, "development", config.Environment)
	assert.Equal(t, 8085, config.Server.Port)
	assert.Equal(t, 100, config.Queue.MaxSize)
	assert.Equal(t, 5, config.Breaker.FailureThreshold)
	assert.Equal(t, 2, config.Breaker.SuccessThreshold)
	assert.Equal(t, time.Second, config.PollInterval())
	assert.Equal(t, 30*time.Second, config.OpenTimeout())
	assert.Equal(t, 24*time.Hour, config.Retention())
	assert.NoError(t, config.Validate())
}

func TestLoadFromFiles_Overrides(t *testing.T) {
	path := writeConfigFile(t, `
environment = "production"

[server]
port = 9090

[queue]
max_size = 25
poll_interval = "250ms"

[breaker]
failure_threshold = 3
open_timeout = "5s"

[backends.entries.vision]
type = "http"
base_url = "http://gpu-host:9000"
timeout = "10s"

[backends.entries.text]
type = "echo"
`)

	config, err := LoadFromFiles(path)
	require.NoError(t, err)

	assert.Equal(t, "production", config.Environment)
	assert.Equal(t, 9090, config.Server.Port)
	// Unset fields keep their defaults
	assert.Equal(t, "0.0.0.0", config.Server.Host)
	assert.Equal(t, 25, config.Queue.MaxSize)
	assert.Equal(t, 250*time.Millisecond, config.PollInterval())
	assert.Equal(t, 3, config.Breaker.FailureThreshold)
	assert.Equal(t, 2, config.Breaker.SuccessThreshold)
	assert.Equal(t, 5*time.Second, config.OpenTimeout())

	require.Len(t, config.Backends.Entries, 2)
	vision := config.Backends.Entries["vision"]
	assert.Equal(t, "http", vision.Type)
	assert.Equal(t, "http://gpu-host:9000", vision.BaseURL)
}

func TestLoadFromFiles_LaterFileWins(t *testing.T) {
	first := writeConfigFile(t, `
[server]
port = 7000
`)
	second := writeConfigFile(t, `
[server]
port = 7001
`)

	config, err := LoadFromFiles(first, second)
	require.NoError(t, err)
	assert.Equal(t, 7001, config.Server.Port)
}

func TestLoadFromFiles_MissingFile(t *testing.T) {
	_, err := LoadFromFiles("/nonexistent/relay.toml")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to read config file")
}

func TestLoadFromFiles_EnvOverrides(t *testing.T) {
	t.Setenv("RELAY_SERVER_PORT", "9999")
	t.Setenv("RELAY_QUEUE_MAX_SIZE", "42")
	t.Setenv("RELAY_BREAKER_OPEN_TIMEOUT", "90s")
	t.Setenv("RELAY_LOG_OUTPUT", "stdout, file")

	config, err := LoadFromFiles()
	require.NoError(t, err)

	assert.Equal(t, 9999, config.Server.Port)
	assert.Equal(t, 42, config.Queue.MaxSize)
	assert.Equal(t, 90*time.Second, config.OpenTimeout())
	assert.Equal(t, []string{"stdout", "file"}, config.Logging.Output)
}

func TestApplyFlagOverrides(t *testing.T) {
	config := NewDefaultConfig()

	ApplyFlagOverrides(config, 8200, "127.0.0.1")
	assert.Equal(t, 8200, config.Server.Port)
	assert.Equal(t, "127.0.0.1", config.Server.Host)

	// Zero values leave config untouched
	ApplyFlagOverrides(config, 0, "")
	assert.Equal(t, 8200, config.Server.Port)
	assert.Equal(t, "127.0.0.1", config.Server.Host)
}

func TestValidate_BadDuration(t *testing.T) {
	config := NewDefaultConfig()
	config.Queue.PollInterval = "soon"

	err := config.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "queue.poll_interval")
}

func TestValidate_HTTPBackendRequiresBaseURL(t *testing.T) {
	config := NewDefaultConfig()
	config.Backends.Entries["vision"] = BackendEntry{Type: "http"}

	err := config.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "base_url is required")
}

func TestValidate_BadBackendTimeout(t *testing.T) {
	config := NewDefaultConfig()
	config.Backends.Entries["voice"] = BackendEntry{
		Type:    "http",
		BaseURL: "http://gpu-host:9000",
		Timeout: "whenever",
	}

	err := config.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid timeout")
}

func TestValidate_BadPort(t *testing.T) {
	config := NewDefaultConfig()
	config.Server.Port = -1

	assert.Error(t, config.Validate())
}
