package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadMissingFileUsesDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "nope.toml"))
	require.NoError(t, err)
	assert.Equal(t, DefaultHTTPAddr, cfg.Server.Addr)
	assert.Equal(t, "info", cfg.Log.Level)
	assert.Equal(t, DefaultBackendTimeout, cfg.Backend.TimeoutSeconds)
	assert.Equal(t, DefaultTestStatus, cfg.Server.TestStatus)
}

func TestLoadOverlay(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.toml")
	data := `
[log]
level = "debug"

[server]
addr = ":9090"
media_home = "https://bridge.example.com"

[backend]
base_url = "https://backend.example.com/v3"
secret = "s3cret"
bot_id = "assistant"

[gateway]
api_key = "gs-key"
source = "551132320000"
app_name = "mybot"
`
	require.NoError(t, os.WriteFile(path, []byte(data), 0o600))

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, ":9090", cfg.Server.Addr)
	assert.Equal(t, "debug", cfg.Log.Level)
	assert.Equal(t, "assistant", cfg.Backend.BotID)
	// Untouched sections keep their defaults.
	assert.Equal(t, DefaultGatewayAPIURL, cfg.Gateway.APIURL)
	assert.Equal(t, DefaultSendBurst, cfg.Gateway.SendBurst)

	assert.NoError(t, cfg.Validate())
}

func TestValidateRejectsIncomplete(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "nope.toml"))
	require.NoError(t, err)
	// Defaults alone miss the backend and gateway credentials.
	assert.Error(t, cfg.Validate())
}

func TestLoadBadTOML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.toml")
	require.NoError(t, os.WriteFile(path, []byte("[server\naddr=1"), 0o600))
	_, err := Load(path)
	assert.Error(t, err)
}
