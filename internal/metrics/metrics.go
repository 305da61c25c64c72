// Package metrics exposes Prometheus collectors and the JSON health
// endpoint for the scanner binaries.
package metrics

import (
	"context"
	"database/sql"
	"encoding/json"
	"log"
	"net/http"
	"sync"
	"time"

	goredis "github.com/go-redis/redis/v8"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds all Prometheus collectors for the scanner.
type Metrics struct {
	// Ingest path
	BarsIngested prometheus.Counter
	BarsRejected prometheus.Counter
	SpilledBars  prometheus.Counter
	ReplayedBars prometheus.Counter
	BreakerState prometheus.Gauge // 0=closed, 1=open, 2=half-open

	// Engine path
	TicksTotal      prometheus.Counter
	TickDur         prometheus.Histogram
	SymbolsScanned  prometheus.Gauge
	TriggersCreated prometheus.Counter

	// Delivery path
	PushOutcomes *prometheus.CounterVec // labels: outcome
}

// NewMetrics registers and returns all Prometheus collectors. Call once
// per process.
func NewMetrics() *Metrics {
	m := &Metrics{
		BarsIngested: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "scanner_bars_ingested_total",
			Help: "Total 1m bars written to the hot store",
		}),
		BarsRejected: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "scanner_bars_rejected_total",
			Help: "Bars rejected by ingest validation",
		}),
		SpilledBars: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "scanner_redis_spilled_bars_total",
			Help: "Bars buffered locally while the Redis circuit breaker was open",
		}),
		ReplayedBars: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "scanner_redis_replayed_bars_total",
			Help: "Buffered bars drained back into Redis after recovery",
		}),
		BreakerState: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "scanner_redis_breaker_state",
			Help: "Redis circuit breaker state (0=closed, 1=open, 2=half-open)",
		}),

		TicksTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "scanner_engine_ticks_total",
			Help: "Total engine scan ticks",
		}),
		TickDur: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "scanner_engine_tick_duration_seconds",
			Help:    "Engine tick latency (fetch, evaluate, fan out)",
			Buckets: []float64{0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5},
		}),
		SymbolsScanned: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "scanner_symbols_scanned",
			Help: "Symbols evaluated on the most recent tick",
		}),
		TriggersCreated: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "scanner_triggers_total",
			Help: "Trigger events created",
		}),

		PushOutcomes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "scanner_push_outcomes_total",
			Help: "Push notification outcomes (sent, failed, skipped, duplicate)",
		}, []string{"outcome"}),
	}

	prometheus.MustRegister(
		m.BarsIngested,
		m.BarsRejected,
		m.SpilledBars,
		m.ReplayedBars,
		m.BreakerState,
		m.TicksTotal,
		m.TickDur,
		m.SymbolsScanned,
		m.TriggersCreated,
		m.PushOutcomes,
	)

	return m
}

// RegisterClientGauge exposes a live websocket connection count.
func RegisterClientGauge(count func() int) {
	prometheus.MustRegister(prometheus.NewGaugeFunc(prometheus.GaugeOpts{
		Name: "scanner_ws_clients",
		Help: "Connected websocket clients",
	}, func() float64 { return float64(count()) }))
}

// HealthStatus tracks dependency health for the /health endpoint.
// trackFeed marks processes that own a market data feed; without it the
// feed fields are informational only.
type HealthStatus struct {
	mu sync.RWMutex

	trackFeed bool

	FeedConnected  bool
	LastBarTime    time.Time
	RedisConnected bool
	SQLiteOK       bool

	RedisLatencyMs  float64
	SQLiteLatencyMs float64
	LastCheckAt     time.Time
	StartedAt       time.Time
}

// NewHealthStatus returns a default health status.
func NewHealthStatus(trackFeed bool) *HealthStatus {
	return &HealthStatus{
		trackFeed: trackFeed,
		StartedAt: time.Now(),
	}
}

func (h *HealthStatus) SetFeedConnected(v bool) {
	h.mu.Lock()
	h.FeedConnected = v
	h.mu.Unlock()
}

func (h *HealthStatus) SetLastBarTime(t time.Time) {
	h.mu.Lock()
	h.LastBarTime = t
	h.mu.Unlock()
}

func (h *HealthStatus) SetRedisConnected(v bool) {
	h.mu.Lock()
	h.RedisConnected = v
	h.mu.Unlock()
}

// CheckRedis pings Redis and records latency + connectivity.
func (h *HealthStatus) CheckRedis(ctx context.Context, rdb *goredis.Client) {
	start := time.Now()
	err := rdb.Ping(ctx).Err()
	latency := time.Since(start)

	h.mu.Lock()
	h.RedisConnected = err == nil
	h.RedisLatencyMs = float64(latency.Microseconds()) / 1000.0
	h.LastCheckAt = time.Now()
	h.mu.Unlock()
}

// CheckSQLite pings the database and records latency + health.
func (h *HealthStatus) CheckSQLite(ctx context.Context, db *sql.DB) {
	start := time.Now()
	err := db.PingContext(ctx)
	latency := time.Since(start)

	h.mu.Lock()
	h.SQLiteOK = err == nil
	h.SQLiteLatencyMs = float64(latency.Microseconds()) / 1000.0
	h.LastCheckAt = time.Now()
	h.mu.Unlock()
}

// StartLivenessChecker runs periodic dependency checks.
func (h *HealthStatus) StartLivenessChecker(ctx context.Context, rdb *goredis.Client, sqlDB *sql.DB, interval time.Duration) {
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				probeCtx, cancel := context.WithTimeout(ctx, 3*time.Second)
				if rdb != nil {
					h.CheckRedis(probeCtx, rdb)
				}
				if sqlDB != nil {
					h.CheckSQLite(probeCtx, sqlDB)
				}
				cancel()
			}
		}
	}()
}

// ServeHTTP handles the /health endpoint.
func (h *HealthStatus) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	h.mu.RLock()
	defer h.mu.RUnlock()

	overallStatus := "healthy"
	httpCode := http.StatusOK

	if !h.RedisConnected || !h.SQLiteOK || (h.trackFeed && !h.FeedConnected) {
		overallStatus = "degraded"
		httpCode = http.StatusServiceUnavailable
	}
	if !h.RedisConnected && !h.SQLiteOK {
		overallStatus = "unhealthy"
	}

	barAge := ""
	if !h.LastBarTime.IsZero() {
		barAge = time.Since(h.LastBarTime).Round(time.Millisecond).String()
	}

	status := struct {
		Status          string  `json:"status"`
		Uptime          string  `json:"uptime"`
		FeedConnected   bool    `json:"feed_connected"`
		LastBarTime     string  `json:"last_bar_time"`
		BarAge          string  `json:"bar_age"`
		RedisConnected  bool    `json:"redis_connected"`
		RedisLatencyMs  float64 `json:"redis_latency_ms"`
		SQLiteOK        bool    `json:"sqlite_ok"`
		SQLiteLatencyMs float64 `json:"sqlite_latency_ms"`
		LastCheckAt     string  `json:"last_check_at"`
	}{
		Status:          overallStatus,
		Uptime:          time.Since(h.StartedAt).Round(time.Second).String(),
		FeedConnected:   h.FeedConnected,
		LastBarTime:     h.LastBarTime.Format(time.RFC3339),
		BarAge:          barAge,
		RedisConnected:  h.RedisConnected,
		RedisLatencyMs:  h.RedisLatencyMs,
		SQLiteOK:        h.SQLiteOK,
		SQLiteLatencyMs: h.SQLiteLatencyMs,
		LastCheckAt:     h.LastCheckAt.Format(time.RFC3339),
	}

	w.Header().Set("Content-Type", "application/json")
	if httpCode != http.StatusOK {
		w.WriteHeader(httpCode)
	}
	json.NewEncoder(w).Encode(status)
}

// Server runs an HTTP server exposing /metrics and /health.
type Server struct {
	health *HealthStatus
	addr   string
	srv    *http.Server
}

// NewServer creates a metrics and health server.
func NewServer(addr string, health *HealthStatus) *Server {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	mux.HandleFunc("/health", health.ServeHTTP)

	return &Server{
		health: health,
		addr:   addr,
		srv: &http.Server{
			Addr:    addr,
			Handler: mux,
		},
	}
}

// Start launches the HTTP server in a goroutine.
func (s *Server) Start() {
	go func() {
		log.Printf("[metrics] server listening on %s", s.addr)
		if err := s.srv.ListenAndServe(); err != http.ErrServerClosed {
			log.Printf("[metrics] server error: %v", err)
		}
	}()
}

// Stop gracefully shuts down the metrics server.
func (s *Server) Stop(ctx context.Context) {
	s.srv.Shutdown(ctx)
}
