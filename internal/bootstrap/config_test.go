package bootstrap

import (
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSetLogLevel(t *testing.T) {
	t.Cleanup(func() { logLevel.Set(slog.LevelInfo) })

	require.NoError(t, SetLogLevel("debug"))
	assert.Equal(t, slog.LevelDebug, logLevel.Level())

	require.NoError(t, SetLogLevel("WARN"))
	assert.Equal(t, slog.LevelWarn, logLevel.Level())

	require.Error(t, SetLogLevel("loud"))
	assert.Equal(t, slog.LevelInfo, logLevel.Level())
}

func TestLoadConfig_Defaults(t *testing.T) {
	t.Setenv("AUTH_MODE", "mock")
	t.Setenv("CLIENT_COOKIE_NAME", "cmk_test")

	cfg, err := LoadConfig()
	require.NoError(t, err)
	assert.Equal(t, "mock", string(cfg.Auth.Mode))
	assert.Equal(t, "cmk_test", cfg.Clients.CookieName)
	assert.Equal(t, "info", cfg.LogLevel)
}
