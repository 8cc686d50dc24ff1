package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_Defaults(t *testing.T) {
	home := t.TempDir()
	t.Setenv("PTTADMIN_HOME", home)

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "http://localhost:5000", cfg.ServerURL)
	assert.Equal(t, home, cfg.Home)
	assert.Equal(t, "info", cfg.LogLevel)
	assert.False(t, cfg.Debug)
}

func TestLoad_EnvOverrides(t *testing.T) {
	home := t.TempDir()
	t.Setenv("PTTADMIN_HOME", home)
	t.Setenv("PTTADMIN_SERVER_URL", "https://ptt.example.com")
	t.Setenv("PTTADMIN_LOG_LEVEL", "debug")
	t.Setenv("PTTADMIN_DEBUG", "true")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "https://ptt.example.com", cfg.ServerURL)
	assert.Equal(t, "debug", cfg.LogLevel)
	assert.True(t, cfg.Debug)
}

func TestLoad_CreatesHomeDirectory(t *testing.T) {
	home := filepath.Join(t.TempDir(), "nested", "pttadmin")
	t.Setenv("PTTADMIN_HOME", home)

	_, err := Load()
	require.NoError(t, err)

	info, err := os.Stat(home)
	require.NoError(t, err)
	assert.True(t, info.IsDir())
}

func TestLoad_ConfigFile(t *testing.T) {
	home := t.TempDir()
	t.Setenv("PTTADMIN_HOME", home)

	err := os.WriteFile(filepath.Join(home, "config.yaml"),
		[]byte("server_url: https://file.example.com\nlog_level: warn\n"), 0600)
	require.NoError(t, err)

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, "https://file.example.com", cfg.ServerURL)
	assert.Equal(t, "warn", cfg.LogLevel)
}
