// Package audio implements the SampleSource and Mixer layers of the
// pipeline: abstract pull of monaural f32 samples from a capture device or
// a decoded file (source.go, capture.go, file_source.go), combined by the
// Mixer (mixer/) and quantized/compressed (pack/, compress/) downstream.
package audio

import "context"

// Source is the SampleSource contract: NextBatch yields up to max samples
// and reports whether the source is still live. CaptureSource and FileSource
// return whatever is buffered at the time of the call without waiting, so a
// live source can return an empty batch. A false return is the terminal marker —
// the owning pipeline task reports it and stops pulling from this source.
type Source interface {
	NextBatch(ctx context.Context, max int) (samples []float32, live bool)
}

// TrackReporter is implemented by Source implementations backed by a
// playlist, letting StreamerStatus report a current_track without widening
// the Source contract itself. FileSource is the only implementer.
type TrackReporter interface {
	CurrentTrack() (track string, ok bool)
}

// ring is a small bounded SPSC buffer used by CaptureSource and FileSource
// to decouple the producing side (a capture callback that must never block,
// or the decode goroutine) from the cooperative task pulling samples
// downstream. A full ring drops incoming samples rather than blocking the
// producer.
type ring struct {
	ch chan float32
}

func newRing(capacity int) *ring {
	return &ring{ch: make(chan float32, capacity)}
}

// push is called from the capture callback; it must never block, so a full
// ring simply drops the incoming sample.
func (r *ring) push(sample float32) {
	select {
	case r.ch <- sample:
	default:
	}
}

// drain pulls up to max buffered samples without blocking.
func (r *ring) drain(max int) []float32 {
	out := make([]float32, 0, max)
	for len(out) < max {
		select {
		case s := <-r.ch:
			out = append(out, s)
		default:
			return out
		}
	}
	return out
}

// len reports how many samples are currently queued, used by FileSource's
// maybeThrottle half-full throttle.
func (r *ring) len() int {
	return len(r.ch)
}

// cap reports the ring's fixed capacity.
func (r *ring) cap() int {
	return cap(r.ch)
}
