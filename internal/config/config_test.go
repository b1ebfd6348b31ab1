package config

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, "info", cfg.Logger.Level)
	assert.Equal(t, "puppetd", cfg.Logger.ServiceName)
	assert.Equal(t, 1500*time.Millisecond, cfg.Server.RetryInterval)
	assert.Equal(t, 15*time.Second, cfg.Server.ShutdownTimeout)
	assert.Equal(t, 3*time.Second, cfg.Reaper.PollInterval)
	assert.Equal(t, 10*time.Second, cfg.Reaper.HTTPTimeout)
}

func TestSocketPath(t *testing.T) {
	t.Run("explicit directory", func(t *testing.T) {
		cfg := &Config{Server: ServerConfig{SocketDir: "/var/run/puppetd"}}
		path, err := cfg.SocketPath()
		require.NoError(t, err)
		assert.Equal(t, filepath.Join("/var/run/puppetd", "puppeteer.sock"), path)
	})

	t.Run("defaults under the home directory", func(t *testing.T) {
		cfg := &Config{}
		path, err := cfg.SocketPath()
		require.NoError(t, err)
		assert.Contains(t, path, ".puppetd")
		assert.Equal(t, "puppeteer.sock", filepath.Base(path))
	})
}
