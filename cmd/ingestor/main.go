package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"ignition-scanner/config"
	"ignition-scanner/internal/barstore"
	"ignition-scanner/internal/feed"
	"ignition-scanner/internal/ingest"
	"ignition-scanner/internal/metrics"
	"ignition-scanner/internal/notify"
	"ignition-scanner/internal/store/sqlite"
	"ignition-scanner/internal/tradingday"
)

func main() {
	log.SetFlags(log.LstdFlags | log.Lmicroseconds | log.Lshortfile)
	log.Println("[ingestor] starting...")

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("[ingestor] config: %v", err)
	}

	// ---- Setup context for graceful shutdown ----
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	// ---- Metrics & health ----
	prom := metrics.NewMetrics()
	health := metrics.NewHealthStatus(true)
	metricsSrv := metrics.NewServer(cfg.MetricsAddr, health)
	metricsSrv.Start()

	// ---- Universe source (SQLite) ----
	os.MkdirAll(filepath.Dir(cfg.DBPath), 0o755)
	db, err := sqlite.Open(cfg.DBPath)
	if err != nil {
		log.Fatalf("[ingestor] sqlite init failed: %v", err)
	}
	defer db.Close()
	log.Println("[ingestor] sqlite ready")

	// ---- Hot bar store (Redis) ----
	store, err := barstore.New(cfg.RedisURL)
	if err != nil {
		log.Fatalf("[ingestor] redis init failed: %v", err)
	}
	defer store.Close()
	health.SetRedisConnected(true)
	log.Println("[ingestor] redis ready")

	health.StartLivenessChecker(ctx, store.Client(), db.DB(), 10*time.Second)

	// ---- Resilient write path ----
	writer := barstore.NewResilientWriter(store, 5, 30*time.Second, 0)
	writer.OnSpill = func(buffered int) {
		prom.SpilledBars.Inc()
	}
	writer.OnReplay = func(written int) {
		prom.ReplayedBars.Add(float64(written))
	}

	go func() {
		ticker := time.NewTicker(5 * time.Second)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				prom.BreakerState.Set(float64(writer.BreakerState()))
			}
		}
	}()

	// ---- Bar feed ----
	var src feed.Feed
	switch cfg.Feed {
	case "alpaca":
		if cfg.AlpacaKey == "" || cfg.AlpacaSecret == "" {
			log.Fatalf("[ingestor] ALPACA_API_KEY and ALPACA_API_SECRET are required for the alpaca feed")
		}
		src = feed.NewAlpacaFeed(cfg.AlpacaKey, cfg.AlpacaSecret, cfg.AlpacaFeed)
		log.Printf("[ingestor] feed: alpaca (%s)", cfg.AlpacaFeed)
	case "sim":
		src = feed.NewSimFeed(0, 0)
		log.Println("[ingestor] feed: sim (synthetic ignition ramps)")
	case "replay":
		if cfg.ReplayFile == "" {
			log.Fatalf("[ingestor] SCANNER_REPLAY_FILE is required for the replay feed")
		}
		src = feed.NewReplayFeed(cfg.ReplayFile, 60)
		log.Printf("[ingestor] feed: replay from %s", cfg.ReplayFile)
	default:
		log.Fatalf("[ingestor] unknown feed %q (want alpaca, sim or replay)", cfg.Feed)
	}

	// ---- Alert sink for ingest stalls ----
	var alerter ingest.Alerter
	if cfg.AlertWebhook != "" {
		alerter = notify.NewWebhookAlerter(cfg.AlertWebhook)
		log.Printf("[ingestor] stall alerts -> webhook")
	} else {
		alerter = notify.NewLogAlerter()
	}

	// ---- Ingestor ----
	opts := ingest.DefaultOptions()
	opts.Keep = cfg.KeepBars
	ing := ingest.New(opts, db, writer, store, src, alerter)
	ing.OnBar = func(symbol string) {
		prom.BarsIngested.Inc()
		health.SetFeedConnected(true)
		health.SetLastBarTime(time.Now())
	}
	ing.OnReject = prom.BarsRejected.Inc

	errCh := make(chan error, 1)
	go func() {
		errCh <- ing.Run(ctx)
	}()

	log.Println("[ingestor] ╔══════════════════════════════════════════════════════════╗")
	log.Println("[ingestor] ║  Scanner Ingestor                                        ║")
	log.Println("[ingestor] ║                                                          ║")
	log.Println("[ingestor] ║  [Feed] → [1m bars] → [Redis rolling window + HOD]       ║")
	log.Printf("[ingestor] ║  Feed: %-49s ║", cfg.Feed)
	log.Printf("[ingestor] ║  Keep: %-4d bars/symbol                                  ║", cfg.KeepBars)
	log.Println("[ingestor] ╚══════════════════════════════════════════════════════════╝")
	log.Printf("[ingestor] %s", tradingday.StatusString(time.Now()))

	// ---- Wait for shutdown signal or fatal feed error ----
	select {
	case <-sigCh:
		log.Println("[ingestor] shutdown signal received, cleaning up...")
	case err := <-errCh:
		if err != nil && ctx.Err() == nil {
			log.Printf("[ingestor] ingest stopped: %v", err)
		}
	}
	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()
	metricsSrv.Stop(shutdownCtx)

	if n := writer.PendingCount(); n > 0 {
		log.Printf("[ingestor] WARNING: %d buffered bars not flushed to redis", n)
	}
	log.Printf("[ingestor] bars ingested=%d dropped=%d", ing.BarsIngested(), ing.DroppedBars())
	log.Println("[ingestor] shutdown complete.")
}
