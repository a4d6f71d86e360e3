package auth

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStreamerGateAcceptsConfiguredCredentials(t *testing.T) {
	g := NewStreamerGate("dj", "hunter2")
	assert.NoError(t, g.Allow("dj", "hunter2", "10.0.0.1:5000"))
}

func TestStreamerGateRejectsWrongPassword(t *testing.T) {
	g := NewStreamerGate("dj", "hunter2")
	assert.ErrorIs(t, g.Allow("dj", "wrong", "10.0.0.1:5000"), ErrBadCredentials)
}

func TestStreamerGateRejectsWrongUsername(t *testing.T) {
	g := NewStreamerGate("dj", "hunter2")
	assert.ErrorIs(t, g.Allow("intruder", "hunter2", "10.0.0.1:5000"), ErrBadCredentials)
}

func TestStreamerGateThrottlesAfterRepeatedFailures(t *testing.T) {
	g := NewStreamerGate("dj", "hunter2")
	for i := 0; i < maxFailures; i++ {
		require.ErrorIs(t, g.Allow("dj", "wrong", "10.0.0.2:5000"), ErrBadCredentials)
	}
	// Even the correct pair is refused while the IP is throttled.
	assert.ErrorIs(t, g.Allow("dj", "hunter2", "10.0.0.2:5000"), ErrThrottled)
}

func TestStreamerGateThrottleIsPerIP(t *testing.T) {
	g := NewStreamerGate("dj", "hunter2")
	for i := 0; i < maxFailures; i++ {
		require.Error(t, g.Allow("dj", "wrong", "10.0.0.3:5000"))
	}
	assert.NoError(t, g.Allow("dj", "hunter2", "10.0.0.4:5000"))
}

func TestStreamerGateSuccessClearsFailureHistory(t *testing.T) {
	g := NewStreamerGate("dj", "hunter2")
	for i := 0; i < maxFailures-1; i++ {
		require.ErrorIs(t, g.Allow("dj", "wrong", "10.0.0.5:5000"), ErrBadCredentials)
	}
	require.NoError(t, g.Allow("dj", "hunter2", "10.0.0.5:5000"))

	// The slate is clean: another failure is a credential error, not a
	// throttle.
	assert.ErrorIs(t, g.Allow("dj", "wrong", "10.0.0.5:5000"), ErrBadCredentials)
}

func TestGainGateAcceptsSharedSecret(t *testing.T) {
	g := NewGainGate("sekrit")
	assert.NoError(t, g.Allow("sekrit"))
}

func TestGainGateRejectsWrongToken(t *testing.T) {
	g := NewGainGate("sekrit")
	assert.ErrorIs(t, g.Allow("guess"), ErrBadToken)
	assert.ErrorIs(t, g.Allow(""), ErrBadToken)
}
