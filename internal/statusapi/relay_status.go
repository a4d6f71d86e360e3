// Package statusapi exposes a read-only HTTP status surface for the relay
// and streamer processes, and a Bearer-gated gain control endpoint on the
// streamer.
package statusapi

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/arung-agamani/wavecast/internal/relay"
)

// jsonAPIHeaders marks every response as non-cacheable machine-readable
// JSON. Nothing on this surface serves HTML, so content may never be
// sniffed, framed, or used as a script or style source.
func jsonAPIHeaders() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Header("X-Content-Type-Options", "nosniff")
		c.Header("X-Frame-Options", "DENY")
		c.Header("Cache-Control", "no-store")
		c.Header("Content-Security-Policy", "default-src 'none'")
		c.Next()
	}
}

// RelayStatusProvider is the subset of *relay.Pipeline the status endpoint
// needs, kept as an interface so the handler is independently testable.
type RelayStatusProvider interface {
	Status() relay.Status
}

// NewRelayRouter builds the relay's read-only status surface: GET /status
// reporting streamer_connected, listener_count, bottleneck, and
// epoch_started_at.
func NewRelayRouter(p RelayStatusProvider) *gin.Engine {
	gin.SetMode(gin.ReleaseMode)
	r := gin.New()
	r.Use(gin.Recovery(), jsonAPIHeaders())

	r.GET("/status", func(c *gin.Context) {
		c.JSON(http.StatusOK, p.Status())
	})

	return r
}
