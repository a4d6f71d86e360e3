// Package mixer implements the Mixer stage: it combines a mic subscription
// and an audio subscription, each gated by an independent Gain, into one
// flow published to a downstream bus, on a fixed pacing timer.
package mixer

import (
	"context"
	"math"
	"time"

	"github.com/arung-agamani/wavecast/internal/audio"
	"github.com/arung-agamani/wavecast/internal/bus"
)

const noiseGateThreshold = 0.01

// Mixer runs the seven-step per-tick algorithm over two sample sources,
// publishing the combined flow to out.
type Mixer struct {
	Mic   audio.Source
	Audio audio.Source

	MicGain   *audio.Gain
	AudioGain *audio.Gain

	Out *bus.Bus[float32]

	// Latency is the pacing period between ticks, in milliseconds.
	Latency time.Duration

	// BatchSize bounds how many samples are drained from each source per
	// tick when both sources have more than that much queued.
	BatchSize int
}

// New constructs a Mixer with sane batch defaults.
func New(mic, aud audio.Source, micGain, audioGain *audio.Gain, out *bus.Bus[float32], latencyMs uint16) *Mixer {
	return &Mixer{
		Mic:       mic,
		Audio:     aud,
		MicGain:   micGain,
		AudioGain: audioGain,
		Out:       out,
		Latency:   time.Duration(latencyMs) * time.Millisecond,
		BatchSize: 4096,
	}
}

// Run drives the tick loop until ctx is cancelled or a source goes
// terminal (NextBatch returns live=false).
func (m *Mixer) Run(ctx context.Context) error {
	ticker := time.NewTicker(m.Latency)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}

		micBatch, micLive := m.Mic.NextBatch(ctx, m.BatchSize)
		audBatch, audLive := m.Audio.NextBatch(ctx, m.BatchSize)
		if !micLive || !audLive {
			return nil
		}

		mixed := mix(micBatch, audBatch, m.MicGain.Value(), m.AudioGain.Value())
		for _, s := range mixed {
			m.Out.Publish(s)
		}
	}
}

// mix implements the tick algorithm: resync to the shorter batch, apply
// gain, noise-gate the mic, sum element-wise (mic first, audio appended
// where mic is shorter), then soft-clip.
func mix(mic, aud []float32, micGain, audGain float32) []float32 {
	k := len(mic)
	if len(aud) < k {
		k = len(aud)
	}

	out := make([]float32, 0, max(len(mic), len(aud)))
	for i := 0; i < k; i++ {
		m := mic[i] * micGain
		if absf32(m) < noiseGateThreshold {
			m = 0
		}
		a := aud[i] * audGain
		out = append(out, softClip(m+a))
	}

	if len(mic) > k {
		for i := k; i < len(mic); i++ {
			m := mic[i] * micGain
			if absf32(m) < noiseGateThreshold {
				m = 0
			}
			out = append(out, softClip(m))
		}
	}
	if len(aud) > k {
		for i := k; i < len(aud); i++ {
			out = append(out, softClip(aud[i]*audGain))
		}
	}

	return out
}

// softClip is a heuristic compressor: values within [-1, 1] pass through
// unchanged; values outside it are rescaled by 0.5 * (x / trunc(x) * 10).
// x / trunc(x) is always positive, so the result is positive for negative
// overloads too: the sign is not preserved. The formula can produce
// magnitudes above 1 — it is not a true limiter (see DESIGN.md for why it is
// kept as is).
func softClip(x float32) float32 {
	if absf32(x) <= 1 {
		return x
	}
	trunc := float32(math.Trunc(float64(x)))
	return 0.5 * (x / trunc * 10)
}

func absf32(x float32) float32 {
	if x < 0 {
		return -x
	}
	return x
}
