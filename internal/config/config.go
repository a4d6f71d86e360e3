// Package config loads the flat "key: value" text configuration files for
// the relay and streamer processes. The file format is a fixed external
// contract — one entry per line, parsed in order — so this package is a
// small line scanner rather than a general config library.
package config

import (
	"bufio"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/arung-agamani/wavecast/internal/wire"
)

// Relay holds the relay role's settings, including the optional
// streamer-ingress auth credentials.
type Relay struct {
	AxumAddress          string
	ListenerAddress      string
	StreamerAddress      string
	Latency              uint16
	TLS                  bool
	StreamerAuthUsername string
	StreamerAuthPassword string
}

// Streamer holds the streamer role's settings, including the initial gain
// values and the optional gain-control auth secret.
type Streamer struct {
	Address        string
	Quality        uint8
	Latency        uint16
	TLS            bool
	MicGain        float32
	AudioGain      float32
	GainAuthSecret string
}

// LoadRelay reads a flat key/value file and returns a Relay config. Unknown
// keys are ignored; missing or malformed required keys produce errors
// wrapping wire.ErrConfigInvalid, which is fatal at startup.
func LoadRelay(path string) (*Relay, error) {
	values, err := readKeyValues(path)
	if err != nil {
		return nil, err
	}

	r := &Relay{
		AxumAddress:          values["axum_address"],
		ListenerAddress:      values["listener_address"],
		StreamerAddress:      values["streamer_address"],
		StreamerAuthUsername: values["streamer_auth_username"],
		StreamerAuthPassword: values["streamer_auth_password"],
	}

	latency, err := parseUint16(values, "latency", 50)
	if err != nil {
		return nil, err
	}
	r.Latency = latency

	r.TLS = parseBool(values, "tls", false)

	if r.ListenerAddress == "" || r.StreamerAddress == "" {
		return nil, fmt.Errorf("%w: relay requires listener_address and streamer_address", wire.ErrConfigInvalid)
	}

	return r, nil
}

// LoadStreamer reads a flat key/value file and returns a Streamer config.
func LoadStreamer(path string) (*Streamer, error) {
	values, err := readKeyValues(path)
	if err != nil {
		return nil, err
	}

	s := &Streamer{
		Address:        values["address"],
		GainAuthSecret: values["gain_auth_secret"],
	}

	quality, err := parseUint8(values, "quality", 4)
	if err != nil {
		return nil, err
	}
	if quality < 1 || quality > 9 {
		return nil, fmt.Errorf("%w: quality must be in [1..9], got %d", wire.ErrConfigInvalid, quality)
	}
	s.Quality = quality

	latency, err := parseUint16(values, "latency", 50)
	if err != nil {
		return nil, err
	}
	s.Latency = latency

	s.TLS = parseBool(values, "tls", false)
	s.MicGain = parseFloat32(values, "mic_gain", 1.0)
	s.AudioGain = parseFloat32(values, "audio_gain", 1.0)

	if s.Address == "" {
		return nil, fmt.Errorf("%w: streamer requires address", wire.ErrConfigInvalid)
	}

	return s, nil
}

// readKeyValues parses "key: value" lines in order, last-write-wins for
// duplicate keys, skipping blank lines and lines starting with '#'.
func readKeyValues(path string) (map[string]string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("config: %w", err)
	}
	defer f.Close()

	values := make(map[string]string)
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		key, value, found := strings.Cut(line, ":")
		if !found {
			continue
		}
		values[strings.TrimSpace(key)] = strings.TrimSpace(value)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("config: %w", err)
	}
	return values, nil
}

func parseUint16(values map[string]string, key string, def uint16) (uint16, error) {
	raw, ok := values[key]
	if !ok || raw == "" {
		return def, nil
	}
	n, err := strconv.ParseUint(raw, 10, 16)
	if err != nil {
		return 0, fmt.Errorf("%w: invalid %s: %v", wire.ErrConfigInvalid, key, err)
	}
	return uint16(n), nil
}

func parseUint8(values map[string]string, key string, def uint8) (uint8, error) {
	raw, ok := values[key]
	if !ok || raw == "" {
		return def, nil
	}
	n, err := strconv.ParseUint(raw, 10, 8)
	if err != nil {
		return 0, fmt.Errorf("%w: invalid %s: %v", wire.ErrConfigInvalid, key, err)
	}
	return uint8(n), nil
}

func parseBool(values map[string]string, key string, def bool) bool {
	raw, ok := values[key]
	if !ok || raw == "" {
		return def
	}
	b, err := strconv.ParseBool(raw)
	if err != nil {
		return def
	}
	return b
}

func parseFloat32(values map[string]string, key string, def float32) float32 {
	raw, ok := values[key]
	if !ok || raw == "" {
		return def
	}
	f, err := strconv.ParseFloat(raw, 32)
	if err != nil {
		return def
	}
	return float32(f)
}
