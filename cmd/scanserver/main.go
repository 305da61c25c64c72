package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"ignition-scanner/config"
	"ignition-scanner/internal/api"
	"ignition-scanner/internal/auth"
	"ignition-scanner/internal/barstore"
	"ignition-scanner/internal/engine"
	"ignition-scanner/internal/gateway"
	"ignition-scanner/internal/metrics"
	"ignition-scanner/internal/notify"
	"ignition-scanner/internal/scheduler"
	"ignition-scanner/internal/store/sqlite"
	"ignition-scanner/internal/tradingday"
	"ignition-scanner/pkg/pushover"
)

func main() {
	log.SetFlags(log.LstdFlags | log.Lmicroseconds | log.Lshortfile)
	log.Println("[scanserver] starting...")

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("[scanserver] config: %v", err)
	}

	// ---- Setup context for graceful shutdown ----
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	// ---- Durable store (SQLite) ----
	os.MkdirAll(filepath.Dir(cfg.DBPath), 0o755)
	db, err := sqlite.Open(cfg.DBPath)
	if err != nil {
		log.Fatalf("[scanserver] sqlite init failed: %v", err)
	}
	defer db.Close()
	log.Println("[scanserver] sqlite ready")

	// ---- Hot state (Redis) ----
	hot, err := barstore.New(cfg.RedisURL)
	if err != nil {
		log.Fatalf("[scanserver] redis init failed: %v", err)
	}
	defer hot.Close()
	log.Println("[scanserver] redis ready")

	// ---- Metrics & health ----
	prom := metrics.NewMetrics()
	health := metrics.NewHealthStatus(false)
	health.SetRedisConnected(true)
	health.StartLivenessChecker(ctx, hot.Client(), db.DB(), 10*time.Second)
	metricsSrv := metrics.NewServer(cfg.MetricsAddr, health)
	metricsSrv.Start()

	// ---- Websocket fan-out ----
	verifier := auth.NewVerifier(cfg.JWTSecret)
	hub := gateway.NewHub(cfg.WSSendBuffer)
	metrics.RegisterClientGauge(hub.ClientCount)
	wsHandler := gateway.NewHandler(hub, verifier, db)

	bridge := gateway.NewBridge(hot, hub)
	go func() {
		for ctx.Err() == nil {
			if err := bridge.Run(ctx); err != nil && ctx.Err() == nil {
				log.Printf("[scanserver] bridge stopped: %v, resubscribing in 3s", err)
			}
			select {
			case <-ctx.Done():
				return
			case <-time.After(3 * time.Second):
			}
		}
	}()

	// ---- Delivery ----
	pub := gateway.NewPublisher(hot)

	if cfg.PushoverToken == "" {
		log.Println("[scanserver] WARNING: PUSHOVER_APP_TOKEN not set, pushes will fail until configured")
	}
	sender := pushover.New(pushover.Config{Token: cfg.PushoverToken})
	pusher := notify.NewPusher(db, db, hot, sender, 0)
	pusher.OnOutcome = func(outcome string) {
		prom.PushOutcomes.WithLabelValues(outcome).Inc()
	}
	pusher.Start(ctx, cfg.PushWorkers)
	log.Printf("[scanserver] push pipeline ready (%d workers)", cfg.PushWorkers)

	// ---- Rule engine & scheduler ----
	ticks := metrics.NewTickTracker(0)
	eng := engine.New(db, db, db, db, hot, hot, pub, pusher)
	eng.OnTickDone = func(d time.Duration, evaluated, created int) {
		prom.TicksTotal.Inc()
		prom.TickDur.Observe(d.Seconds())
		prom.SymbolsScanned.Set(float64(evaluated))
		if created > 0 {
			prom.TriggersCreated.Add(float64(created))
		}
		ticks.Record(d)
	}

	sched := scheduler.New(eng, hot, db, cfg.RetentionDays)
	sched.Start(ctx)
	log.Printf("[scanserver] scheduler started (retention %dd)", cfg.RetentionDays)

	// ---- REST API ----
	srv := api.NewServer(api.Config{
		Addr:       cfg.HTTPAddr,
		AdminEmail: cfg.AdminEmail,
		RedisURL:   cfg.RedisURL,
		Limits: api.Limits{
			ReadPerMin:     cfg.RateRead,
			TriggersPerMin: cfg.RateTriggers,
			WritePerMin:    cfg.RateWrite,
		},
		Verifier:  verifier,
		Configs:   db,
		Universe:  db,
		Events:    db,
		Prefs:     db,
		Publisher: pub,
		Push:      pusher,
		Hot:       hot,
		DB:        db,
		Ticks:     ticks,
		WSHandler: wsHandler,
	})
	go func() {
		if err := srv.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatalf("[scanserver] http server failed: %v", err)
		}
	}()

	log.Println("[scanserver] ╔══════════════════════════════════════════════════════════╗")
	log.Println("[scanserver] ║  Scanner Server                                          ║")
	log.Println("[scanserver] ║                                                          ║")
	log.Println("[scanserver] ║  [Engine tick] → [Triggers] → [WS fan-out + Pushover]    ║")
	log.Printf("[scanserver] ║  HTTP: %-10s  Metrics: %-10s                  ║", cfg.HTTPAddr, cfg.MetricsAddr)
	log.Printf("[scanserver] ║  Push workers: %-2d  WS buffer: %-4d                      ║", cfg.PushWorkers, cfg.WSSendBuffer)
	log.Println("[scanserver] ╚══════════════════════════════════════════════════════════╝")
	log.Printf("[scanserver] %s", tradingday.StatusString(time.Now()))

	// ---- Wait for shutdown signal ----
	<-sigCh
	log.Println("[scanserver] shutdown signal received, cleaning up...")
	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Printf("[scanserver] http shutdown: %v", err)
	}
	metricsSrv.Stop(shutdownCtx)

	// Drain queued pushes before the stores close underneath them.
	pusher.Wait()

	log.Println("[scanserver] shutdown complete.")
}
