package audio

import (
	"math"
	"sync/atomic"
)

// Gain is a live-mutable volume control shared between one writer (a
// control-plane caller, e.g. the status HTTP API's POST /gain) and many
// readers (Mixer, each mix tick). Reads and writes are a single atomic
// word, so the hot path never takes a lock.
type Gain struct {
	bits atomic.Uint32
}

// NewGain constructs a Gain clamped to [0,1].
func NewGain(initial float32) *Gain {
	g := &Gain{}
	g.Set(initial)
	return g
}

// Set stores a new gain value, clamped to [0,1].
func (g *Gain) Set(v float32) {
	if v < 0 {
		v = 0
	}
	if v > 1 {
		v = 1
	}
	g.bits.Store(math.Float32bits(v))
}

// Value returns the current gain.
func (g *Gain) Value() float32 {
	return math.Float32frombits(g.bits.Load())
}
