// Command server runs the sdnlb coordination service.
//
// # Usage
//
//	sdnlb-coordinator --bus redis://localhost:6379/0 --port 8080
//
// # Configuration
//
// The server can be configured via:
// - Config file (--config)
// - Environment variables (SDNLB_*)
// - Command-line flags
//
// The history store (--database) and topology cache (--cache) are optional.
package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/pilot-net/sdn-balance/control-plane/internal/api"
	"github.com/pilot-net/sdn-balance/control-plane/internal/buffer"
	"github.com/pilot-net/sdn-balance/control-plane/internal/cache"
	"github.com/pilot-net/sdn-balance/control-plane/internal/config"
	"github.com/pilot-net/sdn-balance/control-plane/internal/metrics"
	"github.com/pilot-net/sdn-balance/control-plane/internal/planner"
	"github.com/pilot-net/sdn-balance/control-plane/internal/service"
	"github.com/pilot-net/sdn-balance/control-plane/internal/store"
	"github.com/pilot-net/sdn-balance/control-plane/internal/worker"
	"github.com/pilot-net/sdn-balance/db/migrate"
	"github.com/pilot-net/sdn-balance/pkg/bus"
	"github.com/pilot-net/sdn-balance/pkg/secrets"
)

// Version is set at build time.
var Version = "dev"

func main() {
	var (
		configFile    = flag.String("config", "", "Path to config file")
		port          = flag.Int("port", 0, "HTTP server port")
		busURL        = flag.String("bus", "", "Message bus URL")
		dbURL         = flag.String("database", "", "History database URL (postgres://...)")
		cacheURL      = flag.String("cache", "", "Topology cache URL (redis://...)")
		windowTimeout = flag.Duration("window-timeout", 0, "Evaluate incomplete windows older than this (0 disables)")
		debug         = flag.Bool("debug", false, "Enable debug logging")
		version       = flag.Bool("version", false, "Print version and exit")
	)
	flag.Parse()

	if *version {
		fmt.Printf("sdnlb-coordinator %s\n", Version)
		os.Exit(0)
	}

	// Set up logging
	logLevel := slog.LevelInfo
	if *debug {
		logLevel = slog.LevelDebug
	}
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level: logLevel,
	}))

	// Load configuration
	cfg := config.DefaultConfig()
	if *configFile != "" {
		fileCfg, err := config.LoadFromFile(*configFile)
		if err != nil {
			logger.Error("failed to load config file", "error", err)
			os.Exit(1)
		}
		cfg = fileCfg
	}
	cfg.ApplyEnvOverrides()

	if *port > 0 {
		cfg.HTTP.Port = *port
	}
	if *busURL != "" {
		cfg.Bus.URL = *busURL
	}
	if *dbURL != "" {
		cfg.DatabaseURL = *dbURL
	}
	if *cacheURL != "" {
		cfg.CacheURL = *cacheURL
	}
	if *windowTimeout > 0 {
		cfg.WindowTimeout = *windowTimeout
	}

	if err := cfg.Validate(); err != nil {
		logger.Error("invalid configuration", "error", err)
		os.Exit(1)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Resolve secret references
	resolver, err := secrets.NewFromConfig(cfg.Secrets, logger)
	if err != nil {
		logger.Error("failed to initialize secrets", "error", err)
		os.Exit(1)
	}
	for _, ref := range []*string{&cfg.Bus.Password, &cfg.DatabaseURL, &cfg.CacheURL} {
		if *ref, err = resolver.Resolve(ctx, *ref); err != nil {
			logger.Error("failed to resolve secret", "error", err)
			os.Exit(1)
		}
	}

	// Message bus
	b, err := bus.New(cfg.Bus, logger)
	if err != nil {
		logger.Error("failed to connect to message bus", "error", err)
		os.Exit(1)
	}
	defer b.Close()

	m := metrics.New()
	deps := service.Deps{Bus: b, Metrics: m}
	pingers := map[string]metrics.Pinger{}
	stats := map[string]metrics.StatsFunc{}
	if q, ok := b.(bus.Depth); ok {
		stats["report_queue"] = func(ctx context.Context) (any, error) {
			return q.Len(ctx, bus.ChannelReports)
		}
	}
	opts := api.Options{
		Metrics:   m.Handler(),
		TokenHash: cfg.HTTP.TokenHash,
		Version:   Version,
	}

	// History store
	if cfg.DatabaseURL != "" {
		db, err := connectStore(ctx, cfg.DatabaseURL, logger)
		if err != nil {
			logger.Error("failed to open history store", "error", err)
			os.Exit(1)
		}
		defer db.Close()

		// Evaluation history is written behind the service
		history := buffer.NewHistoryBuffer(buffer.DefaultCapacity, logger)
		flusher := buffer.NewFlusher(history, db, buffer.DefaultFlushInterval, logger)
		flusher.Start()
		defer flusher.Stop()

		deps.Store = history
		opts.History = db
		pingers["database"] = db
		stats["database_pool"] = func(ctx context.Context) (any, error) {
			return db.GetPoolStats(), nil
		}
		stats["schema"] = func(ctx context.Context) (any, error) {
			st, err := migrate.GetStatus(ctx, db.Pool())
			if err != nil {
				return nil, err
			}
			return map[string]any{"version": st.Version(), "pending": len(st.Pending)}, nil
		}
		stats["history_buffer"] = func(ctx context.Context) (any, error) {
			return flusher.Stats(), nil
		}
	}

	// Topology cache
	if cfg.CacheURL != "" {
		c, err := cache.New(cfg.CacheURL, "", logger)
		if err != nil {
			logger.Error("failed to connect to topology cache", "error", err)
			os.Exit(1)
		}
		defer c.Close()

		// A view cached by a previous run may list directives this process
		// never dispatched
		if err := c.ClearTopology(ctx); err != nil {
			logger.Warn("failed to clear cached topology", "error", err)
		}
		deps.Cache = c
		opts.Cache = c
		pingers["cache"] = c
	}
	collector := metrics.NewCollector(pingers)
	for name, fn := range stats {
		collector.AddStats(name, fn)
	}
	opts.Health = collector

	svc, err := service.New(service.Config{
		Expected: cfg.Expected(),
		Thresholds: planner.Thresholds{
			Load:      cfg.Thresholds.Load,
			LatencyMs: cfg.Thresholds.LatencyMs,
		},
		MonitorPeriod: cfg.MonitorPeriod,
		WindowTimeout: cfg.WindowTimeout,
	}, deps, logger)
	if err != nil {
		logger.Error("failed to create service", "error", err)
		os.Exit(1)
	}

	// Partial window evaluation
	windowWorker := worker.NewWindowWorker(svc, worker.WindowWorkerConfig{
		Interval: cfg.MonitorPeriod,
		Timeout:  cfg.WindowTimeout,
	}, logger)
	windowWorker.Start(ctx)

	// Report consumer
	consumerDone := make(chan struct{})
	go func() {
		defer close(consumerDone)
		if err := svc.ConsumeReports(ctx, b); err != nil {
			logger.Error("report consumer exited", "error", err)
		}
	}()

	server := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.HTTP.Port),
		Handler:      api.NewServer(svc, opts, logger),
		ReadTimeout:  config.HTTPReadTimeout,
		WriteTimeout: config.HTTPWriteTimeout,
		IdleTimeout:  config.HTTPIdleTimeout,
	}

	go func() {
		logger.Info("starting coordinator",
			"port", cfg.HTTP.Port,
			"bus", cfg.Bus.Backend,
			"expected", cfg.ExpectedControllers,
			"window_timeout", cfg.WindowTimeout,
			"history", cfg.DatabaseURL != "",
			"cache", cfg.CacheURL != "")
		if err := server.ListenAndServe(); err != http.ErrServerClosed {
			logger.Error("server error", "error", err)
			os.Exit(1)
		}
	}()

	// Wait for shutdown signal
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	sig := <-sigCh
	logger.Info("shutting down", "signal", sig)

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), config.HTTPShutdownTimeout)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("shutdown error", "error", err)
	}

	cancel()
	windowWorker.Stop()
	<-consumerDone

	logger.Info("shutdown complete")
}

// connectStore opens the history store and applies pending migrations.
func connectStore(ctx context.Context, url string, logger *slog.Logger) (*store.Store, error) {
	connectCtx, cancel := context.WithTimeout(ctx, 2*config.DatabasePingTimeout)
	defer cancel()

	db, err := store.NewStoreFromURL(connectCtx, url)
	if err != nil {
		return nil, err
	}

	pingCtx, pingCancel := context.WithTimeout(ctx, config.DatabasePingTimeout)
	defer pingCancel()
	if err := db.Ping(pingCtx); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping: %w", err)
	}

	migrateCtx, migrateCancel := context.WithTimeout(ctx, time.Minute)
	defer migrateCancel()
	if err := migrate.Run(migrateCtx, db.Pool(), logger); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}

	logger.Info("connected to history store")
	return db, nil
}
