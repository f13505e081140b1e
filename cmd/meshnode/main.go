// Command meshnode runs one mesh pub/sub node: it binds a control-plane
// listener, joins LAN discovery, and serves Prometheus metrics and a
// health endpoint until terminated.
package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"
	_ "go.uber.org/automaxprocs"

	"github.com/0790486/meshnode/internal/config"
	"github.com/0790486/meshnode/internal/discovery"
	"github.com/0790486/meshnode/internal/logging"
	"github.com/0790486/meshnode/internal/node"
	"github.com/0790486/meshnode/internal/nodeid"
	"github.com/0790486/meshnode/internal/ratelimit"
	"github.com/0790486/meshnode/internal/stats"
	"github.com/0790486/meshnode/internal/transport"
)

func main() {
	cfg, err := config.Load(nil)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	logger := logging.New(cfg)
	cfg.LogConfig(logger)

	uuid := nodeid.New()
	listenAddr, err := resolveListenAddr(cfg.BindHost, cfg.NodePortNode)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to resolve node listen address")
	}

	window := stats.NewWindow()
	collector := stats.NewCollector(window, nil)
	registry := prometheus.NewRegistry()
	registry.MustRegister(collector)

	disco := discovery.NewMulticast(discovery.MulticastConfig{
		GroupAddr:        cfg.DiscoveryGroupAddr,
		LocalNodeUUID:    uuid,
		LocalAdvertised:  listenAddr,
		AnnounceInterval: cfg.DiscoveryInterval,
		PeerTimeout:      cfg.DiscoveryTimeout,
	})

	n := node.New(node.Config{
		LocalUUID:  uuid,
		ListenAddr: listenAddr,
		AllowLocal: cfg.AllowLocal,
		Transport:  transport.TCP{},
		Discovery:  disco,
		SessionLimiter: ratelimit.NewPeerSessionLimiter(ratelimit.SessionLimiterConfig{
			PeerRate:    cfg.SessionPeerRate,
			PeerBurst:   cfg.SessionPeerBurst,
			GlobalRate:  cfg.SessionGlobalRate,
			GlobalBurst: cfg.SessionGlobalBurst,
			Logger:      logger,
		}),
		CommandLimiter:   ratelimit.NewCommandLimiter(cfg.CommandRate, cfg.CommandBurst),
		Stats:            window,
		Logger:           logger,
		NodeInfoInterval: cfg.NodeInfoInterval,
		TickInterval:     cfg.TickInterval,
	})

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	runErr := make(chan error, 1)
	go func() { runErr <- n.Run(ctx) }()

	httpErrCh := make(chan error, 1)
	go func() { httpErrCh <- runHTTPServer(ctx, cfg, n, registry, logger) }()

	logger.Info().Str("uuid", uuid).Str("addr", listenAddr).Msg("node started")

	select {
	case <-ctx.Done():
		logger.Info().Msg("shutdown signal received")
	case err := <-runErr:
		if err != nil {
			logger.Error().Err(err).Msg("node event loop exited")
		}
		stop()
	}

	if err := n.Shutdown(); err != nil {
		logger.Warn().Err(err).Msg("shutdown error")
	}
	<-runErr
}

// resolveListenAddr implements spec.md section 6's "0 = pick free port
// starting at 4242": when a port is configured explicitly it is used
// as-is; a zero port is resolved once via transport.BindFreePort and
// released immediately so the node's own Listen call can rebind it.
// This carries the same narrow bind-then-release race the original
// port-scan has, which is acceptable for a single-process LAN node.
func resolveListenAddr(host string, port int) (string, error) {
	if port != 0 {
		return fmt.Sprintf("%s:%d", host, port), nil
	}
	probe, resolved, err := transport.BindFreePort(host, transport.DefaultScanPort)
	if err != nil {
		return "", err
	}
	probe.Close()
	return fmt.Sprintf("%s:%d", host, resolved), nil
}

func runHTTPServer(ctx context.Context, cfg *config.Config, n *node.Node, registry *prometheus.Registry, logger zerolog.Logger) error {
	mux := http.NewServeMux()

	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprintf(w, `{"status":"healthy","timestamp":%q}`, time.Now().UTC().Format(time.RFC3339Nano))
	})
	mux.HandleFunc("/debug", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/plain")
		fmt.Fprint(w, n.Debug())
	})
	mux.Handle("/metrics", promhttp.HandlerFor(registry, promhttp.HandlerOpts{}))

	httpServer := &http.Server{
		Addr:         cfg.MetricsAddr,
		Handler:      mux,
		ReadTimeout:  5 * time.Second,
		WriteTimeout: 5 * time.Second,
		IdleTimeout:  30 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info().Str("addr", cfg.MetricsAddr).Msg("metrics http server starting")
		errCh <- httpServer.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			logger.Warn().Err(err).Msg("metrics http server shutdown error")
		}
		return nil
	case err := <-errCh:
		if err != nil && err != http.ErrServerClosed {
			return err
		}
		return nil
	}
}
