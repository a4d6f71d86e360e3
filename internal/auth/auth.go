// Package auth gates the two control-plane entry points: the relay's
// streamer-ingress accept (a single fixed credential pair checked over HTTP
// Basic auth) and the streamer's gain endpoint (a single shared Bearer
// secret). There are no user accounts and no session issuance — one
// streamer identity exists per deployment — so the whole surface reduces to
// two constant-time checks and a failure throttle.
package auth

import (
	"crypto/hmac"
	"crypto/sha256"
	"errors"
	"log/slog"
	"net"
	"sync"
	"time"

	"golang.org/x/crypto/bcrypt"
)

var (
	ErrBadCredentials = errors.New("auth: invalid streamer credentials")
	ErrThrottled      = errors.New("auth: too many failed connect attempts")
	ErrBadToken       = errors.New("auth: invalid gain token")
)

const (
	maxFailures   = 5
	failureWindow = 15 * time.Minute
)

// StreamerGate decides who may occupy the streamer slot. It holds exactly
// one credential pair — the password only as a bcrypt hash — and a per-IP
// record of recent failures so a peer hammering the connect endpoint is
// refused before the bcrypt comparison runs.
type StreamerGate struct {
	username     string
	passwordHash []byte

	mu       sync.Mutex
	failures map[string][]time.Time
}

// NewStreamerGate hashes password and returns a ready gate. The plaintext
// is not retained.
func NewStreamerGate(username, password string) *StreamerGate {
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		// bcrypt only fails on absurd input lengths; a nil hash can never
		// match, which keeps the relay up while refusing every connect.
		slog.Error("auth: failed to hash streamer password", "error", err)
		hash = nil
	}
	return &StreamerGate{
		username:     username,
		passwordHash: hash,
		failures:     make(map[string][]time.Time),
	}
}

// Allow checks one connect attempt against the configured credential pair.
// Failures count against remoteAddr's IP; once maxFailures accumulate
// within failureWindow, further attempts from that IP are refused until the
// window slides, and a success clears the IP's history.
func (g *StreamerGate) Allow(username, password, remoteAddr string) error {
	ip := clientIP(remoteAddr)

	g.mu.Lock()
	recent := len(g.prune(ip))
	g.mu.Unlock()
	if recent >= maxFailures {
		slog.Warn("auth: streamer connect throttled", "ip", ip)
		return ErrThrottled
	}

	// Check both halves unconditionally so a wrong username costs the same
	// as a wrong password.
	userOK := digestEqual(username, g.username)
	passOK := bcrypt.CompareHashAndPassword(g.passwordHash, []byte(password)) == nil
	if !userOK || !passOK {
		g.mu.Lock()
		g.failures[ip] = append(g.prune(ip), time.Now())
		g.mu.Unlock()
		return ErrBadCredentials
	}

	g.mu.Lock()
	delete(g.failures, ip)
	g.mu.Unlock()
	return nil
}

// prune drops failure records older than the window, removing the IP's
// entry entirely when none remain so the map never outgrows the set of
// currently-misbehaving peers. Caller holds the mutex.
func (g *StreamerGate) prune(ip string) []time.Time {
	cutoff := time.Now().Add(-failureWindow)
	kept := g.failures[ip][:0]
	for _, t := range g.failures[ip] {
		if t.After(cutoff) {
			kept = append(kept, t)
		}
	}
	if len(kept) == 0 {
		delete(g.failures, ip)
		return nil
	}
	g.failures[ip] = kept
	return kept
}

// GainGate guards the streamer's gain endpoint with one shared secret,
// presented verbatim as a Bearer token. The secret is held only as a
// SHA-256 digest, and tokens are compared as digests so the check is
// constant-time and independent of token length.
type GainGate struct {
	digest [sha256.Size]byte
}

// NewGainGate returns a gate accepting exactly the given secret.
func NewGainGate(secret string) *GainGate {
	return &GainGate{digest: sha256.Sum256([]byte(secret))}
}

// Allow reports whether token matches the shared secret.
func (g *GainGate) Allow(token string) error {
	sum := sha256.Sum256([]byte(token))
	if !hmac.Equal(sum[:], g.digest[:]) {
		return ErrBadToken
	}
	return nil
}

// digestEqual compares two strings in constant time via their SHA-256
// digests, so neither content nor length leaks through timing.
func digestEqual(a, b string) bool {
	x := sha256.Sum256([]byte(a))
	y := sha256.Sum256([]byte(b))
	return hmac.Equal(x[:], y[:])
}

// clientIP strips the port from a RemoteAddr, falling back to the raw
// string for addresses without one.
func clientIP(remoteAddr string) string {
	host, _, err := net.SplitHostPort(remoteAddr)
	if err != nil {
		return remoteAddr
	}
	return host
}
