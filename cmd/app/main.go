package main

import (
	"flag"
	"log"
	"os"

	"SigPulse/internal/di"
	"SigPulse/pkg/config"
)

func main() {
	// Parse flags
	configPath := flag.String("config", "config/config.yaml", "config file path")
	pollInterval := flag.Duration("interval", 0, "override engine poll interval")
	watchlistSize := flag.Int("watchlist-size", 0, "override watchlist max size")
	watchlistReload := flag.Duration("watchlist-reload", 0, "override watchlist reload interval")
	metricsPort := flag.Int("metrics-port", 0, "serve /metrics on a separate port")
	flag.Parse()

	// Load config
	cfg, err := config.LoadWithEnv(*configPath)
	if err != nil {
		log.Fatalf("config load failed: %v", err)
	}
	if *pollInterval > 0 {
		cfg.Engine.PollInterval = *pollInterval
	}
	if *watchlistSize > 0 {
		cfg.Watchlist.MaxSize = *watchlistSize
	}
	if *watchlistReload > 0 {
		cfg.Watchlist.ReloadInterval = *watchlistReload
	}
	if *metricsPort > 0 {
		cfg.Metrics.Port = *metricsPort
	}

	log.Printf("env=%s quotes=%s watchlist=%s", cfg.Environment, cfg.Quotes.Source, cfg.Watchlist.Source)

	// Wire DI: initialize all dependencies
	app, err := di.InitializeApp(cfg)
	if err != nil {
		log.Fatalf("app initialization failed: %v", err)
	}

	// Run application (blocks until signal)
	if err := app.Run(); err != nil {
		log.Printf("app error: %v", err)
		os.Exit(1)
	}
}
