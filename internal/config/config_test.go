package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConf(t *testing.T, contents string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "test.conf")
	require.NoError(t, os.WriteFile(path, []byte(contents), 0o644))
	return path
}

func TestLoadRelayAppliesDefaults(t *testing.T) {
	path := writeConf(t, "listener_address: :8080\nstreamer_address: :8081\n")
	r, err := LoadRelay(path)
	require.NoError(t, err)
	assert.Equal(t, ":8080", r.ListenerAddress)
	assert.Equal(t, ":8081", r.StreamerAddress)
	assert.EqualValues(t, 50, r.Latency)
	assert.False(t, r.TLS)
}

func TestLoadRelayRequiresAddresses(t *testing.T) {
	path := writeConf(t, "latency: 100\n")
	_, err := LoadRelay(path)
	assert.Error(t, err)
}

func TestLoadRelaySkipsCommentsAndBlankLines(t *testing.T) {
	path := writeConf(t, "# comment\n\nlistener_address: :9000\nstreamer_address: :9001\ntls: true\n")
	r, err := LoadRelay(path)
	require.NoError(t, err)
	assert.True(t, r.TLS)
}

func TestLoadStreamerAppliesDefaults(t *testing.T) {
	path := writeConf(t, "address: relay.example.com:8080\n")
	s, err := LoadStreamer(path)
	require.NoError(t, err)
	assert.EqualValues(t, 4, s.Quality)
	assert.EqualValues(t, 50, s.Latency)
	assert.Equal(t, float32(1.0), s.MicGain)
	assert.Equal(t, float32(1.0), s.AudioGain)
}

func TestLoadStreamerRejectsOutOfRangeQuality(t *testing.T) {
	path := writeConf(t, "address: relay.example.com:8080\nquality: 20\n")
	_, err := LoadStreamer(path)
	assert.Error(t, err)
}

func TestLoadStreamerRequiresAddress(t *testing.T) {
	path := writeConf(t, "quality: 5\n")
	_, err := LoadStreamer(path)
	assert.Error(t, err)
}

func TestLoadStreamerParsesGains(t *testing.T) {
	path := writeConf(t, "address: relay.example.com:8080\nmic_gain: 0.5\naudio_gain: 0.8\n")
	s, err := LoadStreamer(path)
	require.NoError(t, err)
	assert.Equal(t, float32(0.5), s.MicGain)
	assert.Equal(t, float32(0.8), s.AudioGain)
}
