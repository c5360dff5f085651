package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadServer_Defaults(t *testing.T) {
	cfg, err := LoadServer()
	require.NoError(t, err)
	assert.Equal(t, ":8080", cfg.Addr)
	assert.Equal(t, 5*time.Second, cfg.ShutdownTimeout)
	assert.Equal(t, "info", cfg.LogLevel)
}

func TestLoadParticipant_FromEnv(t *testing.T) {
	t.Setenv("NAVALSIM_SIGNAL_URL", "ws://rendezvous:9000/ws")
	t.Setenv("NAVALSIM_ICE_SERVERS", "stun:a.example:3478,stun:b.example:3478")
	t.Setenv("NAVALSIM_SIGNALING_TIMEOUT", "2s")

	cfg, err := LoadParticipant()
	require.NoError(t, err)
	assert.Equal(t, "ws://rendezvous:9000/ws", cfg.SignalURL)
	assert.Equal(t, []string{"stun:a.example:3478", "stun:b.example:3478"}, cfg.ICEServers)
	assert.Equal(t, 2*time.Second, cfg.SignalingTimeout)
}

func TestParseEnv_BadDuration(t *testing.T) {
	t.Setenv("NAVALSIM_SHUTDOWN_TIMEOUT", "soon")

	var cfg Server
	require.Error(t, ParseEnv(&cfg))
}

func TestLoadDotEnv_DoesNotOverride(t *testing.T) {
	path := filepath.Join(t.TempDir(), "test.env")
	require.NoError(t, os.WriteFile(path, []byte("NAVALSIM_NAME=FromFile\nNAVALSIM_ADDR=:9999\n"), 0o600))
	t.Setenv("NAVALSIM_NAME", "FromEnv")
	t.Setenv("NAVALSIM_ADDR", "")
	os.Unsetenv("NAVALSIM_ADDR")

	require.NoError(t, LoadDotEnv(path))
	assert.Equal(t, "FromEnv", os.Getenv("NAVALSIM_NAME"))
	assert.Equal(t, ":9999", os.Getenv("NAVALSIM_ADDR"))
}

func TestLoadDotEnv_MissingFileIsFine(t *testing.T) {
	require.NoError(t, LoadDotEnv(filepath.Join(t.TempDir(), "absent.env")))
}
