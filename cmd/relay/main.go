// Command relay accepts one streamer at a time and fans its audio out to
// any number of listeners.
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

	"github.com/arung-agamani/wavecast/internal/auth"
	"github.com/arung-agamani/wavecast/internal/config"
	"github.com/arung-agamani/wavecast/internal/relay"
	"github.com/arung-agamani/wavecast/internal/statusapi"
)

func main() {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelInfo}))
	slog.SetDefault(logger)

	configPath := flag.String("config", "relay.conf", "path to the relay config file")
	statusAddr := flag.String("status-addr", ":9090", "fallback address for the status HTTP API when axum_address is unset")
	certPath := flag.String("cert", "certificates/fullchain.pem", "TLS certificate path, used when the config enables tls")
	keyPath := flag.String("key", "certificates/privkey.pem", "TLS key path, used when the config enables tls")
	flag.Parse()

	cfg, err := config.LoadRelay(*configPath)
	if err != nil {
		slog.Error("relay: failed to load config", "error", err)
		os.Exit(1)
	}

	slog.Info("relay: starting",
		"streamer_address", cfg.StreamerAddress,
		"listener_address", cfg.ListenerAddress,
		"latency", cfg.Latency,
		"tls", cfg.TLS,
	)

	var gate *auth.StreamerGate
	if cfg.StreamerAuthUsername != "" {
		gate = auth.NewStreamerGate(cfg.StreamerAuthUsername, cfg.StreamerAuthPassword)
	}

	var tlsFiles *relay.TLSFiles
	if cfg.TLS {
		tlsFiles = &relay.TLSFiles{CertPath: *certPath, KeyPath: *keyPath}
	}

	pipeline := relay.New(cfg.StreamerAddress, cfg.ListenerAddress, cfg.Latency, gate, tlsFiles)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	go func() {
		sigChan := make(chan os.Signal, 1)
		signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
		<-sigChan
		slog.Info("relay: shutdown signal received")
		cancel()
	}()

	statusAddress := cfg.AxumAddress
	if statusAddress == "" {
		statusAddress = *statusAddr
	}
	statusSrv := &http.Server{Addr: statusAddress, Handler: statusapi.NewRelayRouter(pipeline)}

	g, gctx := errgroup.WithContext(ctx)
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
		slog.Error("relay: fatal error", "error", err)
		os.Exit(1)
	}

	slog.Info("relay: stopped")
}
