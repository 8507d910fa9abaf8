package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"log"
	"net"
	"net/http"
	"os"
	"os/signal"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/gobwas/ws"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"
	_ "go.uber.org/automaxprocs"

	"github.com/adred-codev/aldrin/internal/broker"
	"github.com/adred-codev/aldrin/internal/config"
	"github.com/adred-codev/aldrin/internal/logging"
	"github.com/adred-codev/aldrin/pkg/transport"
)

func main() {
	debug := flag.Bool("debug", false, "enable debug logging (overrides LOG_LEVEL)")
	flag.Parse()

	startup := log.New(os.Stdout, "[aldrin] ", log.LstdFlags)

	cfg, err := config.Load(nil)
	if err != nil {
		startup.Fatalf("failed to load configuration: %v", err)
	}
	if *debug {
		cfg.LogLevel = "debug"
	}

	logger := logging.New(logging.Options{Level: cfg.LogLevel, Format: cfg.LogFormat})
	cfg.LogConfig(logger)

	b := broker.New(broker.Options{
		Logger:            logger,
		EventQueueSize:    cfg.EventQueueSize,
		ConnSendQueueSize: cfg.ConnSendQueueSize,
	})
	go b.Run()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var currentConns atomic.Int64
	guard := broker.NewResourceGuard(broker.GuardConfig{
		MaxConnections:     cfg.MaxConnections,
		AcceptRate:         cfg.AcceptRate,
		AcceptBurst:        cfg.AcceptBurst,
		CPURejectThreshold: cfg.CPURejectThreshold,
	}, logger, &currentConns)
	guard.StartMonitoring(ctx, cfg.MetricsInterval)

	listener, err := net.Listen("tcp", cfg.Addr)
	if err != nil {
		startup.Fatalf("failed to listen on %s: %v", cfg.Addr, err)
	}
	logger.Info().Str("addr", cfg.Addr).Msg("broker listening")

	go acceptLoop(listener, b, guard, logger)
	go statsLoop(ctx, b, &currentConns, cfg.MetricsInterval, logger)

	httpSrv := newHTTPServer(b, guard, &currentConns, cfg.MaxConnections)
	go func() {
		logger.Info().Str("addr", cfg.HTTPAddr).Msg("http listening")
		if err := httpSrv(cfg.HTTPAddr); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error().Err(err).Msg("http server error")
		}
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	<-sigCh

	logger.Info().Msg("shutting down")
	_ = listener.Close()
	b.Shutdown()
	cancel()
	logger.Info().Msg("shutdown complete")
}

// acceptLoop admits raw TCP transports. Rejected connections are
// closed before the handshake.
func acceptLoop(listener net.Listener, b *broker.Broker, guard *broker.ResourceGuard, logger zerolog.Logger) {
	for {
		conn, err := listener.Accept()
		if err != nil {
			if errors.Is(err, net.ErrClosed) {
				return
			}
			logger.Error().Err(err).Msg("accept error")
			continue
		}

		if ok, reason := guard.ShouldAccept(); !ok {
			logger.Debug().Str("reason", reason).Msg("connection rejected")
			_ = conn.Close()
			continue
		}

		b.AddConnection(transport.NewStream(conn))
	}
}

// statsLoop samples broker statistics, feeds the guard's connection
// count and logs the interval counters.
func statsLoop(ctx context.Context, b *broker.Broker, conns *atomic.Int64, interval time.Duration, logger zerolog.Logger) {
	if interval <= 0 {
		interval = 15 * time.Second
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			stats := b.Statistics()
			conns.Store(int64(stats.CurrentConnections))

			var messages uint64
			for _, n := range stats.MessagesByKind {
				messages += n
			}

			logger.Info().
				Int("connections", stats.CurrentConnections).
				Int("objects", stats.CurrentObjects).
				Int("services", stats.CurrentServices).
				Int("channels", stats.CurrentChannels).
				Int("bus_listeners", stats.CurrentBusListeners).
				Uint64("connections_added", stats.ConnectionsAdded).
				Uint64("connections_shut_down", stats.ConnectionsShutDown).
				Uint64("messages", messages).
				Msg("broker statistics")
		}
	}
}

// newHTTPServer serves /ws (WebSocket transport), /health and
// /metrics.
func newHTTPServer(b *broker.Broker, guard *broker.ResourceGuard, conns *atomic.Int64, maxConns int) func(addr string) error {
	mux := http.NewServeMux()

	mux.HandleFunc("/ws", func(w http.ResponseWriter, r *http.Request) {
		if ok, reason := guard.ShouldAccept(); !ok {
			http.Error(w, reason, http.StatusServiceUnavailable)
			return
		}
		conn, _, _, err := ws.UpgradeHTTP(r, w)
		if err != nil {
			return
		}
		b.AddConnection(transport.NewServerWebSocket(conn))
	})

	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		current := conns.Load()
		healthy := maxConns <= 0 || current <= int64(maxConns)

		status := http.StatusOK
		if !healthy {
			status = http.StatusServiceUnavailable
		}

		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		_ = json.NewEncoder(w).Encode(map[string]any{
			"healthy":     healthy,
			"connections": current,
			"max":         maxConns,
			"cpu_percent": guard.CPUPercent(),
		})
	})

	mux.Handle("/metrics", promhttp.Handler())

	srv := &http.Server{
		Handler:        mux,
		ReadTimeout:    10 * time.Second,
		IdleTimeout:    120 * time.Second,
		MaxHeaderBytes: 1 << 20,
	}

	return func(addr string) error {
		srv.Addr = addr
		return srv.ListenAndServe()
	}
}
