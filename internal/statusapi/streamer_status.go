package statusapi

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/arung-agamani/wavecast/internal/auth"
)

// StreamerStatus is the JSON body GET /status returns on the streamer.
type StreamerStatus struct {
	Connected    bool    `json:"connected"`
	Finished     bool    `json:"finished"`
	Stopped      bool    `json:"stopped"`
	MicGain      float32 `json:"mic_gain"`
	AudioGain    float32 `json:"audio_gain"`
	CurrentTrack string  `json:"current_track"`
}

// StreamerStatusProvider is the subset of *streamer.Pipeline this router
// needs, kept as an interface to avoid an import cycle and to ease testing.
type StreamerStatusProvider interface {
	StreamerStatus() StreamerStatus
	SetMicGain(float32)
	SetAudioGain(float32)
}

type gainRequest struct {
	MicGain   *float32 `json:"mic_gain"`
	AudioGain *float32 `json:"audio_gain"`
}

// requireGainToken gates a route behind the shared gain secret, presented
// as a Bearer token.
func requireGainToken(g *auth.GainGate) gin.HandlerFunc {
	return func(c *gin.Context) {
		scheme, token, ok := strings.Cut(c.GetHeader("Authorization"), " ")
		if !ok || !strings.EqualFold(scheme, "Bearer") || g.Allow(strings.TrimSpace(token)) != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"status": "error", "error": "authentication required"})
			return
		}
		c.Next()
	}
}

// NewStreamerRouter builds the streamer's status surface: a public GET
// /status, and a POST /gain for live volume control, gated behind g when
// one is supplied.
func NewStreamerRouter(p StreamerStatusProvider, g *auth.GainGate) *gin.Engine {
	gin.SetMode(gin.ReleaseMode)
	r := gin.New()
	r.Use(gin.Recovery(), jsonAPIHeaders())

	r.GET("/status", func(c *gin.Context) {
		c.JSON(http.StatusOK, p.StreamerStatus())
	})

	gainGroup := r.Group("/gain")
	if g != nil {
		gainGroup.Use(requireGainToken(g))
	}
	gainGroup.POST("", func(c *gin.Context) {
		var req gainRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"status": "error", "error": err.Error()})
			return
		}
		if req.MicGain != nil {
			p.SetMicGain(*req.MicGain)
		}
		if req.AudioGain != nil {
			p.SetAudioGain(*req.AudioGain)
		}
		c.JSON(http.StatusOK, p.StreamerStatus())
	})

	return r
}
