// Package streamer implements the outbound side of the pipeline: it mixes
// mic and audio sources, packs and compresses the result, and sends it over
// an outbound WebSocket connection to a relay, with a Control a caller can
// use to request disconnect and to learn how the session ended.
package streamer

import (
	"context"
	"crypto/tls"
	"fmt"
	"log/slog"
	"net/url"
	"time"

	"github.com/gorilla/websocket"
	"golang.org/x/sync/errgroup"

	"github.com/arung-agamani/wavecast/internal/audio"
	"github.com/arung-agamani/wavecast/internal/audio/compress"
	"github.com/arung-agamani/wavecast/internal/audio/mixer"
	"github.com/arung-agamani/wavecast/internal/audio/pack"
	"github.com/arung-agamani/wavecast/internal/bus"
	"github.com/arung-agamani/wavecast/internal/statusapi"
	"github.com/arung-agamani/wavecast/internal/wire"
)

const maxToleratedMessageCount = 10

// Pipeline drives one outbound streaming session.
type Pipeline struct {
	Address   string
	TLS       bool
	Quality   int
	Latency   uint16
	MicGain   *audio.Gain
	AudioGain *audio.Gain
	Mic       audio.Source
	Audio     audio.Source

	Control *Control
}

// New constructs a Pipeline ready to Run.
func New(address string, useTLS bool, quality int, latencyMs uint16, mic, aud audio.Source, micGain, audioGain *audio.Gain) *Pipeline {
	return &Pipeline{
		Address:   address,
		TLS:       useTLS,
		Quality:   quality,
		Latency:   latencyMs,
		MicGain:   micGain,
		AudioGain: audioGain,
		Mic:       mic,
		Audio:     aud,
		Control:   NewControl(),
	}
}

// Run connects to the relay and drives Mixer -> Quantizer/Packer ->
// Compressor -> outbound send until Control.Stop() is called, ctx is
// cancelled, or a sub-task exits unexpectedly.
func (p *Pipeline) Run(ctx context.Context) error {
	scheme := "ws"
	if p.TLS {
		scheme = "wss"
	}
	u := url.URL{Scheme: scheme, Host: p.Address, Path: "/"}

	dialer := websocket.DefaultDialer
	if p.TLS {
		dialer = &websocket.Dialer{TLSClientConfig: &tls.Config{}}
	}

	ws, _, err := dialer.DialContext(ctx, u.String(), nil)
	if err != nil {
		return fmt.Errorf("streamer: connect: %w", err)
	}
	defer ws.Close()

	slog.Info("streamer: connected", "address", p.Address)

	flowBus := bus.New[float32](1_000_000)
	sendQueue := make(chan wire.Message, maxToleratedMessageCount*2)

	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	go func() {
		select {
		case <-p.Control.Done():
			cancel()
		case <-runCtx.Done():
		}
	}()

	mx := mixer.New(p.Mic, p.Audio, p.MicGain, p.AudioGain, flowBus, p.Latency)

	g, gctx := errgroup.WithContext(runCtx)
	g.Go(func() error { return mx.Run(gctx) })
	g.Go(func() error { return p.packAndCompress(gctx, flowBus, sendQueue) })
	g.Go(func() error { return p.send(gctx, ws, sendQueue) })

	err = g.Wait()
	if p.Control.IsStopped() {
		return nil
	}
	p.Control.markFinished()
	return err
}

// packAndCompress is the Quantizer/Packer + Compressor stage: it drains the
// mixer's flow bus each tick, packs the batch, compresses it, and enqueues
// the result for sending.
func (p *Pipeline) packAndCompress(ctx context.Context, flow *bus.Bus[float32], out chan<- wire.Message) error {
	sub := flow.Subscribe()
	ticker := time.NewTicker(time.Duration(p.Latency) * time.Millisecond)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}

		var samples []float32
		for sub.Len() > 0 {
			s, err := sub.Recv(ctx)
			if err != nil {
				break
			}
			samples = append(samples, s)
		}
		if len(samples) == 0 {
			continue
		}

		packed := pack.EncodeBatch(samples, p.Quality)
		compressed, ok := compress.Compress(packed)
		if !ok {
			continue
		}

		select {
		case out <- compressed:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

// StreamerStatus reports this session's connection and gain state for
// internal/statusapi's GET /status endpoint.
func (p *Pipeline) StreamerStatus() statusapi.StreamerStatus {
	connected := p.Control != nil && !p.Control.IsFinished() && !p.Control.IsStopped()
	status := statusapi.StreamerStatus{
		Connected: connected,
		Finished:  p.Control != nil && p.Control.IsFinished(),
		Stopped:   p.Control != nil && p.Control.IsStopped(),
		MicGain:   p.MicGain.Value(),
		AudioGain: p.AudioGain.Value(),
	}
	if tr, ok := p.Audio.(audio.TrackReporter); ok {
		if track, ok := tr.CurrentTrack(); ok {
			status.CurrentTrack = track
		}
	}
	return status
}

// SetMicGain updates the live mic gain, e.g. from a POST /gain request.
func (p *Pipeline) SetMicGain(v float32) { p.MicGain.Set(v) }

// SetAudioGain updates the live audio gain, e.g. from a POST /gain request.
func (p *Pipeline) SetAudioGain(v float32) { p.AudioGain.Set(v) }

// send is the outbound WS writer. Backpressure at the outbound queue
// terminates the send loop, surfaced as an unexpected exit.
func (p *Pipeline) send(ctx context.Context, ws *websocket.Conn, in <-chan wire.Message) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case msg := <-in:
			if len(in) > maxToleratedMessageCount {
				return fmt.Errorf("streamer: send backlog exceeded tolerated message count")
			}
			if err := ws.WriteMessage(websocket.BinaryMessage, msg); err != nil {
				return fmt.Errorf("%w: send: %v", wire.ErrPeerGone, err)
			}
		}
	}
}
