package audio

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/gordonklaus/portaudio"
)

// CaptureSource is a Source backed by a live microphone input stream. The
// portaudio callback runs on a dedicated realtime thread and must never
// block, so it only ever pushes into a ring; NextBatch drains that ring
// cooperatively.
type CaptureSource struct {
	stream *portaudio.Stream
	ring   *ring
}

// NewCaptureSource opens the system's default input device at sampleRate,
// mono, and starts streaming immediately.
func NewCaptureSource(sampleRate int) (*CaptureSource, error) {
	if err := portaudio.Initialize(); err != nil {
		return nil, fmt.Errorf("capture source: portaudio init: %w", err)
	}

	cs := &CaptureSource{ring: newRing(sampleRate * 4)}

	stream, err := portaudio.OpenDefaultStream(1, 0, float64(sampleRate), 0, cs.onSamples)
	if err != nil {
		portaudio.Terminate()
		return nil, fmt.Errorf("capture source: open stream: %w", err)
	}
	cs.stream = stream

	if err := stream.Start(); err != nil {
		stream.Close()
		portaudio.Terminate()
		return nil, fmt.Errorf("capture source: start stream: %w", err)
	}

	slog.Info("capture source: started", "sample_rate", sampleRate)
	return cs, nil
}

// onSamples is the portaudio callback: real-time, must not block or allocate
// more than necessary.
func (cs *CaptureSource) onSamples(in []float32) {
	for _, s := range in {
		cs.ring.push(s)
	}
}

// NextBatch implements Source.
func (cs *CaptureSource) NextBatch(ctx context.Context, max int) ([]float32, bool) {
	select {
	case <-ctx.Done():
		return nil, false
	default:
	}
	return cs.ring.drain(max), true
}

// Close stops the stream and releases portaudio resources.
func (cs *CaptureSource) Close() error {
	if err := cs.stream.Stop(); err != nil {
		slog.Warn("capture source: stop error", "error", err)
	}
	if err := cs.stream.Close(); err != nil {
		slog.Warn("capture source: close error", "error", err)
	}
	return portaudio.Terminate()
}
