package audio

import "sync"

// bufferLimit is the listener playback ring's drop-all-on-overflow
// threshold.
const bufferLimit = 900_000

// PlaybackRing is the reference listener's playback buffer: parsed f32
// samples queue here for the output device callback to drain. Once the
// backlog exceeds bufferLimit the entire backlog is dropped rather than
// evicting the oldest samples one at a time — the policy is "drop all",
// not "drop oldest".
type PlaybackRing struct {
	mu      sync.Mutex
	samples []float32
}

// NewPlaybackRing constructs an empty PlaybackRing.
func NewPlaybackRing() *PlaybackRing {
	return &PlaybackRing{}
}

// Push appends decoded samples, dropping the entire backlog first if it
// would otherwise exceed bufferLimit.
func (r *PlaybackRing) Push(samples []float32) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(r.samples)+len(samples) > bufferLimit {
		r.samples = r.samples[:0]
	}
	r.samples = append(r.samples, samples...)
}

// Pull drains up to max samples for playback, zero-padding the remainder
// if fewer are available (silence on underrun).
func (r *PlaybackRing) Pull(max int) []float32 {
	r.mu.Lock()
	defer r.mu.Unlock()

	n := len(r.samples)
	if n > max {
		n = max
	}
	out := make([]float32, max)
	copy(out, r.samples[:n])
	r.samples = r.samples[n:]
	return out
}

// Len reports how many samples are currently queued.
func (r *PlaybackRing) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.samples)
}
