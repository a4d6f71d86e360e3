// Command listener is a reference headless listener: it connects to a
// relay's egress WS, decompresses and decodes each message, and plays the
// result back through the default output device.
package main

import (
	"context"
	"crypto/tls"
	"flag"
	"log/slog"
	"net/url"
	"os"
	"os/signal"
	"syscall"

	"github.com/gordonklaus/portaudio"
	"github.com/gorilla/websocket"

	"github.com/arung-agamani/wavecast/internal/audio"
	"github.com/arung-agamani/wavecast/internal/audio/compress"
	"github.com/arung-agamani/wavecast/internal/audio/pack"
)

const outputSampleRate = 48000

func main() {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelInfo}))
	slog.SetDefault(logger)

	address := flag.String("address", "localhost:8080", "relay listener-egress address")
	useTLS := flag.Bool("tls", false, "connect with wss instead of ws")
	flag.Parse()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	go func() {
		sigChan := make(chan os.Signal, 1)
		signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
		<-sigChan
		slog.Info("listener: shutdown signal received")
		cancel()
	}()

	scheme := "ws"
	dialer := websocket.DefaultDialer
	if *useTLS {
		scheme = "wss"
		dialer = &websocket.Dialer{TLSClientConfig: &tls.Config{}}
	}
	u := url.URL{Scheme: scheme, Host: *address, Path: "/"}

	ws, _, err := dialer.DialContext(ctx, u.String(), nil)
	if err != nil {
		slog.Error("listener: connect failed", "error", err)
		os.Exit(1)
	}
	defer ws.Close()

	ring := audio.NewPlaybackRing()

	if err := portaudio.Initialize(); err != nil {
		slog.Error("listener: portaudio init failed", "error", err)
		os.Exit(1)
	}
	defer portaudio.Terminate()

	stream, err := portaudio.OpenDefaultStream(0, 1, float64(outputSampleRate), 0, func(out []float32) {
		copy(out, ring.Pull(len(out)))
	})
	if err != nil {
		slog.Error("listener: failed to open output stream", "error", err)
		os.Exit(1)
	}
	defer stream.Close()

	if err := stream.Start(); err != nil {
		slog.Error("listener: failed to start output stream", "error", err)
		os.Exit(1)
	}
	defer stream.Stop()

	slog.Info("listener: playing", "address", *address)

	go func() {
		<-ctx.Done()
		ws.Close()
	}()

	for {
		_, data, err := ws.ReadMessage()
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			slog.Warn("listener: relay disconnected", "error", err)
			return
		}

		decompressed, err := compress.Decompress(data)
		if err != nil {
			slog.Warn("listener: decompress failed", "error", err)
			continue
		}

		ring.Push(pack.Decode(decompressed))
	}
}
