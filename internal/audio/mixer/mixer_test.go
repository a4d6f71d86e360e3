package mixer

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/arung-agamani/wavecast/internal/audio"
	"github.com/arung-agamani/wavecast/internal/bus"
)

func TestGainLawMicMutedPassesAudioThrough(t *testing.T) {
	// With mic_gain=0, output equals audio stream * audio_gain, within clip.
	out := mix([]float32{0.9, 0.8}, []float32{0.3, 0.2}, 0, 1.0)
	assert.InDelta(t, float32(0.3), out[0], 1e-6)
	assert.InDelta(t, float32(0.2), out[1], 1e-6)
}

func TestNoiseGateDropsQuietMic(t *testing.T) {
	out := mix([]float32{0.005}, []float32{0}, 1.0, 1.0)
	assert.Equal(t, float32(0), out[0])
}

func TestNoiseGateAtThresholdPassesThrough(t *testing.T) {
	out := mix([]float32{0.01}, []float32{0}, 1.0, 1.0)
	assert.InDelta(t, float32(0.01), out[0], 1e-6)
}

func TestSoftClipOverloadScenarioE3(t *testing.T) {
	// mic=0.7*1.0, audio=0.6*1.0 -> pre-clip 1.3 -> post-clip 6.5.
	out := mix([]float32{0.7}, []float32{0.6}, 1.0, 1.0)
	assert.InDelta(t, float32(6.5), out[0], 1e-4)
}

func TestSoftClipPassesThroughWithinUnitRange(t *testing.T) {
	out := mix([]float32{0.3}, []float32{0.2}, 1.0, 1.0)
	assert.InDelta(t, float32(0.5), out[0], 1e-6)
}

func TestMixResyncsToShorterBatchThenAppendsRemainder(t *testing.T) {
	mic := []float32{0.1, 0.1, 0.1}
	aud := []float32{0.1}
	out := mix(mic, aud, 1.0, 1.0)
	assert.Len(t, out, 3)
	assert.InDelta(t, float32(0.2), out[0], 1e-6)
	assert.InDelta(t, float32(0.1), out[1], 1e-6)
	assert.InDelta(t, float32(0.1), out[2], 1e-6)
}

// stubSource yields one fixed sample per NextBatch call, so the published
// sample count equals the number of ticks Run completed.
type stubSource struct{ sample float32 }

func (s *stubSource) NextBatch(_ context.Context, _ int) ([]float32, bool) {
	return []float32{s.sample}, true
}

func TestRunPacesTicksAtConfiguredLatency(t *testing.T) {
	out := bus.New[float32](1000)
	sub := out.Subscribe()

	m := New(&stubSource{0.5}, &stubSource{0.2}, audio.NewGain(1), audio.NewGain(1), out, 50)

	ctx, cancel := context.WithTimeout(context.Background(), 525*time.Millisecond)
	defer cancel()
	_ = m.Run(ctx)

	// ~10 ticks expected at 50 ms pacing; generous bounds keep the test
	// stable on a loaded machine.
	ticks := sub.Len()
	assert.GreaterOrEqual(t, ticks, 7)
	assert.LessOrEqual(t, ticks, 13)
}
