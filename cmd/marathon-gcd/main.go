// Command marathon-gcd runs the configuration store garbage collector as a
// standalone daemon.
package main

import (
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/teresy/marathon/internal/config"
	"github.com/teresy/marathon/internal/events"
	"github.com/teresy/marathon/internal/gc"
	"github.com/teresy/marathon/internal/logging"
	"github.com/teresy/marathon/internal/metrics"
	"github.com/teresy/marathon/internal/storage/memory"
	oxiastore "github.com/teresy/marathon/internal/storage/oxia"
)

var (
	version   = "dev"
	buildTime = "unknown"
)

func main() {
	if len(os.Args) < 2 {
		printUsage()
		os.Exit(1)
	}

	switch os.Args[1] {
	case "run":
		runDaemon(os.Args[2:])
	case "version", "--version", "-version":
		fmt.Printf("marathon-gcd version %s (built %s)\n", version, buildTime)
	case "help", "-h", "--help":
		printUsage()
	default:
		fmt.Fprintf(os.Stderr, "unknown command: %s\n\n", os.Args[1])
		printUsage()
		os.Exit(1)
	}
}

func printUsage() {
	fmt.Println(`Usage: marathon-gcd <command> [options]

Commands:
  run         Start the garbage collection daemon
  version     Print version information

Run 'marathon-gcd run --help' for daemon options.`)
}

func runDaemon(args []string) {
	fs := flag.NewFlagSet("run", flag.ExitOnError)
	configPath := fs.String("config", "", "Path to configuration file")
	metricsAddr := fs.String("metrics-addr", "", "Override metrics endpoint address (e.g. :9090)")
	logLevel := fs.String("log-level", "", "Override log level (debug|info|warn|error)")
	runOnStart := fs.Bool("run-on-start", false, "Send one collection trigger at startup (dropped unless the cleaning interval is zero, since the collector starts resting)")

	fs.Usage = func() {
		fmt.Println(`Usage: marathon-gcd run [options]

Start the garbage collection daemon. SIGUSR1 requests a collection cycle;
requests that arrive while the collector is resting are dropped.

Options:`)
		fs.PrintDefaults()
	}
	if err := fs.Parse(args); err != nil {
		os.Exit(1)
	}

	var cfg *config.Config
	var err error
	if *configPath != "" {
		cfg, err = config.LoadFromPath(*configPath)
	} else {
		cfg, err = config.Load()
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}
	if *metricsAddr != "" {
		cfg.Observability.MetricsAddr = *metricsAddr
	}
	if *logLevel != "" {
		cfg.Observability.LogLevel = *logLevel
	}

	logger := logging.New(logging.Config{
		Level:  logging.ParseLevel(cfg.Observability.LogLevel),
		Format: logging.ParseFormat(cfg.Observability.LogFormat),
	})
	logging.SetGlobal(logger)

	repos, cleanup, err := buildRepositories(cfg)
	if err != nil {
		logger.Errorf("failed to open storage backend", map[string]any{"error": err.Error()})
		os.Exit(1)
	}
	defer cleanup()

	var publisher events.Publisher = events.Nop{}
	if cfg.Events.Enabled {
		kafka, err := events.NewKafkaPublisher(events.KafkaConfig{
			Brokers: cfg.Events.Brokers,
			Topic:   cfg.Events.Topic,
		}, logger)
		if err != nil {
			logger.Errorf("failed to connect event publisher", map[string]any{"error": err.Error()})
			os.Exit(1)
		}
		defer kafka.Close()
		publisher = kafka
	}

	gcMetrics := metrics.NewGCMetrics()
	coordinator := gc.NewCoordinator(gc.Config{
		MaxVersions:      cfg.GC.MaxVersions,
		ScanBatchSize:    cfg.GC.ScanBatchSize,
		CleaningInterval: time.Duration(cfg.GC.CleaningIntervalMs) * time.Millisecond,
	}, repos, logger, gcMetrics, publisher)

	coordinator.Start()
	defer coordinator.Stop()

	metricsServer := &http.Server{
		Addr:    cfg.Observability.MetricsAddr,
		Handler: promhttp.Handler(),
	}
	go func() {
		if err := metricsServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Errorf("metrics server failed", map[string]any{"error": err.Error()})
		}
	}()
	defer metricsServer.Close()

	logger.Infof("marathon-gcd started", map[string]any{
		"backend":     cfg.Storage.Backend,
		"maxVersions": cfg.GC.MaxVersions,
		"metricsAddr": cfg.Observability.MetricsAddr,
	})

	if *runOnStart {
		coordinator.RunGC()
	}

	signals := make(chan os.Signal, 1)
	signal.Notify(signals, syscall.SIGINT, syscall.SIGTERM, syscall.SIGUSR1)
	for sig := range signals {
		if sig == syscall.SIGUSR1 {
			logger.Info("collection cycle requested")
			coordinator.RunGC()
			continue
		}
		logger.Infof("shutting down", map[string]any{"signal": sig.String()})
		return
	}
}

// buildRepositories opens the configured backend and returns the repository
// bundle plus a close function.
func buildRepositories(cfg *config.Config) (gc.Repositories, func(), error) {
	switch cfg.Storage.Backend {
	case "memory":
		store := memory.NewStore()
		return gc.Repositories{
			Apps:        store,
			Pods:        store.Pods(),
			Groups:      store,
			Deployments: store,
		}, func() { _ = store.Close() }, nil
	case "oxia":
		store, err := oxiastore.New(oxiastore.Config{
			ServiceAddress: cfg.Storage.Oxia.ServiceAddress,
			Namespace:      cfg.Storage.Oxia.Namespace,
			RequestTimeout: time.Duration(cfg.Storage.Oxia.RequestTimeoutMs) * time.Millisecond,
		})
		if err != nil {
			return gc.Repositories{}, nil, err
		}
		return gc.Repositories{
			Apps:        store,
			Pods:        store.Pods(),
			Groups:      store,
			Deployments: store,
		}, func() { _ = store.Close() }, nil
	default:
		return gc.Repositories{}, nil, fmt.Errorf("unknown storage backend %q", cfg.Storage.Backend)
	}
}
