// Command streamer runs the StreamerPipeline: it captures microphone audio
// and mixes in a file playlist, then streams the result to a relay.
package main

import (
	"context"
	"errors"
	"flag"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"golang.org/x/sync/errgroup"

	"github.com/arung-agamani/wavecast/internal/audio"
	"github.com/arung-agamani/wavecast/internal/auth"
	"github.com/arung-agamani/wavecast/internal/config"
	"github.com/arung-agamani/wavecast/internal/statusapi"
	"github.com/arung-agamani/wavecast/internal/streamer"
)

const (
	pipelineSampleRate = 48000
	fileSampleRate     = 44100
)

func main() {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelInfo}))
	slog.SetDefault(logger)

	configPath := flag.String("config", "streamer.conf", "path to the streamer config file")
	musicDir := flag.String("music-dir", "./music", "directory of audio files mixed into the stream")
	statusAddr := flag.String("status-addr", ":9091", "address for the status HTTP API")
	flag.Parse()

	cfg, err := config.LoadStreamer(*configPath)
	if err != nil {
		slog.Error("streamer: failed to load config", "error", err)
		os.Exit(1)
	}

	slog.Info("streamer: starting",
		"address", cfg.Address,
		"quality", cfg.Quality,
		"latency", cfg.Latency,
		"tls", cfg.TLS,
	)

	mic, err := audio.NewCaptureSource(pipelineSampleRate)
	if err != nil {
		slog.Error("streamer: failed to open microphone", "error", err)
		os.Exit(1)
	}
	defer mic.Close()

	fileSource, err := audio.NewFileSource(*musicDir, fileSampleRate, pipelineSampleRate)
	if err != nil {
		slog.Error("streamer: failed to open music directory", "error", err)
		os.Exit(1)
	}

	micGain := audio.NewGain(cfg.MicGain)
	audioGain := audio.NewGain(cfg.AudioGain)

	pipeline := streamer.New(cfg.Address, cfg.TLS, int(cfg.Quality), cfg.Latency, mic, fileSource, micGain, audioGain)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	go func() {
		sigChan := make(chan os.Signal, 1)
		signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
		<-sigChan
		slog.Info("streamer: shutdown signal received")
		pipeline.Control.Stop()
		cancel()
	}()

	var gainGate *auth.GainGate
	if cfg.GainAuthSecret != "" {
		gainGate = auth.NewGainGate(cfg.GainAuthSecret)
	} else {
		slog.Warn("streamer: gain_auth_secret not set, POST /gain is unauthenticated")
	}

	statusSrv := &http.Server{Addr: *statusAddr, Handler: statusapi.NewStreamerRouter(pipeline, gainGate)}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { fileSource.Run(gctx); return nil })
	g.Go(func() error { return pipeline.Run(gctx) })
	g.Go(func() error {
		if err := statusSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		return statusSrv.Close()
	})

	if err := g.Wait(); err != nil && gctx.Err() == nil {
		slog.Error("streamer: fatal error", "error", err)
		os.Exit(1)
	}

	if pipeline.Control.IsFinished() {
		slog.Warn("streamer: session ended unexpectedly")
	} else {
		slog.Info("streamer: stopped")
	}
}
