// Command agent runs the controller agent beside one SDN controller.
//
// # Usage
//
//	sdnlb-agent --id 1 --openflow-target tcp:127.0.0.1:6653 --bus redis://localhost:6379/0
//
// # Configuration
//
// Configuration can be provided via:
// - Command-line flags
// - Environment variables (SDNLB_*)
// - Config file (--config)
//
// # Examples
//
// Run with config file:
//
//	sdnlb-agent --config /etc/sdnlb/agent.yaml
//
// Run with environment variables:
//
//	SDNLB_CONTROLLER_ID=2 \
//	SDNLB_OPENFLOW_TARGET=tcp:127.0.0.1:6654 \
//	SDNLB_PEERS='{"1":"tcp:127.0.0.1:6653","3":"tcp:127.0.0.1:6655"}' \
//	sdnlb-agent
package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/pilot-net/sdn-balance/agent"
	"github.com/pilot-net/sdn-balance/agent/internal/config"
)

func main() {
	// Parse flags
	var (
		configFile     = flag.String("config", "", "Path to config file")
		id             = flag.String("id", "", "Controller id")
		openflowTarget = flag.String("openflow-target", "", "This controller's OpenFlow target (e.g. tcp:127.0.0.1:6653)")
		busBackend     = flag.String("bus-backend", "", "Message bus backend (redis, nats)")
		busURL         = flag.String("bus", "", "Message bus URL")
		period         = flag.Duration("period", 0, "Monitor period")
		debug          = flag.Bool("debug", false, "Enable debug logging")
		version        = flag.Bool("version", false, "Print version and exit")
	)
	flag.Parse()

	// Print version
	if *version {
		fmt.Printf("sdnlb-agent %s\n", agent.Version)
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

	// Load from file if specified
	if *configFile != "" {
		fileCfg, err := config.LoadFromFile(*configFile)
		if err != nil {
			logger.Error("failed to load config file", "error", err)
			os.Exit(1)
		}
		cfg = fileCfg
	}

	// Apply environment overrides
	cfg.ApplyEnvOverrides()

	// Apply flag overrides
	if *id != "" {
		cfg.Controller.ID = *id
	}
	if *openflowTarget != "" {
		cfg.Controller.OpenFlowTarget = *openflowTarget
	}
	if *busBackend != "" {
		cfg.Bus.Backend = *busBackend
	}
	if *busURL != "" {
		cfg.Bus.URL = *busURL
	}
	if *period > 0 {
		cfg.Monitor.Period = *period
	}

	// Validate configuration
	if err := cfg.Validate(); err != nil {
		logger.Error("invalid configuration", "error", err)
		os.Exit(1)
	}

	// Set up signal handling
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		sig := <-sigCh
		logger.Info("received shutdown signal", "signal", sig)
		cancel()
	}()

	// Create agent
	a, err := agent.Connect(ctx, cfg, logger)
	if err != nil {
		logger.Error("failed to create agent", "error", err)
		os.Exit(1)
	}
	defer a.Close()

	logger.Info("starting sdnlb agent",
		"controller", cfg.Controller.ID,
		"bus", cfg.Bus.Backend)

	if err := a.Run(ctx); err != nil && err != context.Canceled {
		logger.Error("agent exited with error", "error", err)
		a.Close()
		os.Exit(1)
	}

	logger.Info("agent shutdown complete")
}
