package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"time"

	consentmetrics "pulse/internal/consent/metrics"
	"pulse/internal/consent/manager"
	"pulse/internal/consent/store"
	"pulse/internal/dispatch"
	"pulse/internal/platform/config"
	"pulse/internal/platform/errsink"
	"pulse/internal/platform/logger"
	"pulse/internal/queue"
	queuemetrics "pulse/internal/queue/metrics"
	"pulse/internal/relay"
	"pulse/internal/transport"
	transportmetrics "pulse/internal/transport/metrics"
)

// main wires high-level dependencies, exposes the HTTP router, and keeps the
// server lifecycle small. Pipeline behavior lives in the internal packages.
func main() {
	log := logger.New()

	cfg, err := config.FromEnv()
	if err != nil {
		log.Error("invalid configuration", "error", err)
		os.Exit(1)
	}

	log.Info("initializing pulse relay",
		"addr", cfg.Addr,
		"endpoint", cfg.Endpoint,
		"queue_capacity", cfg.QueueCapacity,
	)

	sink := errsink.NewSlog(log)

	var consentStore store.Store = store.NewInMemory()
	if cfg.ConsentFile != "" {
		consentStore = store.NewFile(cfg.ConsentFile)
	}

	// One consent manager shared by everything on this relay: explicit
	// injection, no package-level singleton.
	mgr := manager.NewManager(consentStore,
		manager.WithLogger(log),
		manager.WithMetrics(consentmetrics.New()),
		manager.WithSink(sink),
		manager.WithVersion(cfg.ConsentVersion),
	)

	q, err := queue.New(cfg.QueueCapacity,
		queue.WithLogger(log),
		queue.WithMetrics(queuemetrics.New()),
	)
	if err != nil {
		log.Error("invalid queue configuration", "error", err)
		os.Exit(1)
	}

	client := transport.New(
		transport.WithBeacon(transport.NewHTTPBeacon(nil)),
		transport.WithLogger(log),
		transport.WithMetrics(transportmetrics.New()),
	)

	dispatcher, err := dispatch.New(mgr, q, client, cfg.Endpoint,
		dispatch.WithLogger(log),
		dispatch.WithSink(sink),
		dispatch.WithRetryPolicy(cfg.RetryAttempts, cfg.RetryBackoff),
		dispatch.WithMaxBeaconBytes(cfg.MaxBeaconBytes),
		dispatch.WithCacheBust(cfg.CacheBust),
		dispatch.WithCompression(cfg.Compress),
	)
	if err != nil {
		log.Error("invalid dispatcher configuration", "error", err)
		os.Exit(1)
	}
	defer dispatcher.Close()

	runCtx, stopFlusher := context.WithCancel(context.Background())
	go dispatcher.Run(runCtx, cfg.FlushInterval)
	if err := dispatcher.SetReady(runCtx); err != nil {
		log.Warn("initial flush failed", "error", err)
	}

	handler := relay.NewHandler(dispatcher, mgr, q, log)
	router := relay.NewRouter(handler, log)

	srv := &http.Server{
		Addr:              cfg.Addr,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	log.Info("starting http server", "addr", cfg.Addr)

	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Error("server error", "error", err)
			os.Exit(1)
		}
	}()

	// Graceful shutdown on SIGINT
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, os.Interrupt)
	<-quit

	log.Info("shutting down server gracefully")

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		log.Error("graceful shutdown failed", "error", err)
		os.Exit(1)
	}

	// Stopping the flusher triggers its final drain so buffered events are
	// not stranded by the shutdown.
	stopFlusher()
	time.Sleep(100 * time.Millisecond)

	log.Info("server stopped")
}
