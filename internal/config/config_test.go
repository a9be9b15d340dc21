package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/dkeye/spatialvoice/internal/domain"
	"github.com/spf13/pflag"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// inTempDir runs the test from an empty working directory so no config or
// .env file from the repository leaks in.
func inTempDir(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	wd, err := os.Getwd()
	require.NoError(t, err)
	require.NoError(t, os.Chdir(dir))
	t.Cleanup(func() { _ = os.Chdir(wd) })
	return dir
}

func TestLoadDefaults(t *testing.T) {
	inTempDir(t)
	t.Setenv("CONFIG_ENV", "none")

	cfg, err := Load(nil)
	require.NoError(t, err)
	assert.Equal(t, "release", cfg.Mode)
	assert.Equal(t, 8080, cfg.Port)
	assert.Equal(t, 10*time.Second, cfg.JoinTimeout)
	assert.Equal(t, 20*time.Millisecond, cfg.Client.TickInterval)
	assert.Equal(t, 30*time.Second, cfg.Client.NegotiationTimeout)
	assert.Equal(t, 3, cfg.Client.ReconnectAttempts)
	assert.Equal(t, float32(20), cfg.Client.MaxVoiceDistance)
	assert.Equal(t, 48000, cfg.Client.SampleRate)
	assert.Equal(t, []string{"stun:stun.l.google.com:19302"}, cfg.Client.ICEServers)
	assert.False(t, cfg.Client.Mesh)
}

func TestLoadFileEnvAndFlags(t *testing.T) {
	dir := inTempDir(t)
	require.NoError(t, os.MkdirAll(filepath.Join(dir, "config"), 0o755))
	yaml := []byte("mode: debug\nport: 9000\nclient:\n  lobby: plaza\n  position: [1, 2, 3]\n")
	require.NoError(t, os.WriteFile(filepath.Join(dir, "config", "config.test.yaml"), yaml, 0o644))
	t.Setenv("CONFIG_ENV", "test")
	t.Setenv("SPATIALVOICE_CLIENT_MESH", "true")

	fs := pflag.NewFlagSet("test", pflag.ContinueOnError)
	RegisterFlags(fs)
	require.NoError(t, fs.Parse([]string{"--port=9100"}))

	cfg, err := Load(fs)
	require.NoError(t, err)
	assert.Equal(t, "debug", cfg.Mode)
	assert.Equal(t, 9100, cfg.Port)
	assert.Equal(t, "plaza", cfg.Client.Lobby)
	assert.True(t, cfg.Client.Mesh)
	assert.Equal(t, domain.Vec3{X: 1, Y: 2, Z: 3}, cfg.Client.Pose())
}

func TestDotEnvIsLoaded(t *testing.T) {
	dir := inTempDir(t)
	t.Setenv("CONFIG_ENV", "none")
	t.Setenv("SPATIALVOICE_CLIENT_LOBBY", "")
	os.Unsetenv("SPATIALVOICE_CLIENT_LOBBY")
	require.NoError(t, os.WriteFile(filepath.Join(dir, ".env"), []byte("SPATIALVOICE_CLIENT_LOBBY=from-dotenv\n"), 0o644))
	t.Cleanup(func() { os.Unsetenv("SPATIALVOICE_CLIENT_LOBBY") })

	cfg, err := Load(nil)
	require.NoError(t, err)
	assert.Equal(t, "from-dotenv", cfg.Client.Lobby)
}

func TestValidate(t *testing.T) {
	cfg := &Config{Port: 8080, JoinRateLimit: 1, Client: ClientConfig{TickInterval: time.Millisecond, MaxVoiceDistance: 1, SampleRate: 8000}}
	assert.NoError(t, cfg.Validate())

	cfg.Client.MaxVoiceDistance = 0
	cfg.Client.TickInterval = 0
	err := cfg.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "max_voice_distance")
	assert.Contains(t, err.Error(), "tick_interval")
}

func TestPoseShortPosition(t *testing.T) {
	assert.Equal(t, domain.Vec3{X: 4}, ClientConfig{Position: []float32{4}}.Pose())
	assert.Equal(t, domain.Vec3{}, ClientConfig{}.Pose())
}
