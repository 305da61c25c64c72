// Package api serves the scanner REST surface: config, universe,
// trigger history, per-user preferences and admin operations. Paths
// keep their trailing slashes for compatibility with existing clients.
package api

import (
	"context"
	"log"
	"net/http"

	"github.com/gorilla/mux"

	"ignition-scanner/internal/model"
)

// Throttle scopes, one token bucket per user per scope.
const (
	scopeRead     = "scanner_read"
	scopeTriggers = "scanner_triggers"
	scopeWrite    = "scanner_write"
)

// TokenVerifier authenticates a request and returns the identity.
type TokenVerifier interface {
	FromRequest(r *http.Request) (model.User, error)
}

// HotProbes are the Redis-side liveness checks behind the admin status
// endpoint.
type HotProbes interface {
	Ping(ctx context.Context) error
	ChannelsCheck(ctx context.Context) error
	ReadHeartbeat(ctx context.Context) (string, error)
}

// DBPinger checks the durable store.
type DBPinger interface {
	Ping(ctx context.Context) error
}

// TickStats exposes engine tick timing for the admin status payload.
type TickStats interface {
	Percentiles() (p50, p95, p99 float64)
	Count() int
}

// Limits are per-user request budgets per minute; a zero or negative
// value disables that scope's throttle.
type Limits struct {
	ReadPerMin     int
	TriggersPerMin int
	WritePerMin    int
}

// Config wires the server. WSHandler, Hot, DB and Ticks may be nil; the
// affected endpoints then degrade instead of failing at startup.
type Config struct {
	Addr       string
	AdminEmail string
	RedisURL   string
	Limits     Limits

	Verifier  TokenVerifier
	Configs   model.ConfigStore
	Universe  model.UniverseStore
	Events    model.EventStore
	Prefs     model.PreferenceStore
	Publisher model.Publisher
	Push      model.PushEnqueuer

	Hot   HotProbes
	DB    DBPinger
	Ticks TickStats

	WSHandler http.Handler
}

// Server is the scanner HTTP API.
type Server struct {
	verifier   TokenVerifier
	adminEmail string
	redisURL   string

	configs  model.ConfigStore
	universe model.UniverseStore
	events   model.EventStore
	prefs    model.PreferenceStore
	pub      model.Publisher
	push     model.PushEnqueuer

	hot   HotProbes
	db    DBPinger
	ticks TickStats

	limiter    *scopeLimiter
	router     *mux.Router
	httpServer *http.Server
}

// NewServer builds the router and handlers; call Start to serve.
func NewServer(cfg Config) *Server {
	s := &Server{
		verifier:   cfg.Verifier,
		adminEmail: cfg.AdminEmail,
		redisURL:   cfg.RedisURL,
		configs:    cfg.Configs,
		universe:   cfg.Universe,
		events:     cfg.Events,
		prefs:      cfg.Prefs,
		pub:        cfg.Publisher,
		push:       cfg.Push,
		hot:        cfg.Hot,
		db:         cfg.DB,
		ticks:      cfg.Ticks,
		limiter:    newScopeLimiter(cfg.Limits),
	}

	r := mux.NewRouter().StrictSlash(true)
	r.Use(commonMiddleware)

	r.HandleFunc("/scanner/config/", s.protected(scopeRead, s.handleGetConfig)).Methods("GET", "OPTIONS")
	r.HandleFunc("/scanner/config/", s.adminOnly(scopeRead, s.handleUpdateConfig)).Methods("PUT", "PATCH")

	r.HandleFunc("/scanner/universe/", s.protected(scopeRead, s.handleListUniverse)).Methods("GET", "OPTIONS")
	r.HandleFunc("/scanner/universe/", s.adminOnly(scopeRead, s.handleAddTicker)).Methods("POST")
	r.HandleFunc("/scanner/universe/{id:[0-9]+}/", s.adminOnly(scopeRead, s.handleUpdateTicker)).Methods("PUT", "PATCH", "OPTIONS")
	r.HandleFunc("/scanner/universe/{id:[0-9]+}/", s.adminOnly(scopeRead, s.handleDeleteTicker)).Methods("DELETE")

	r.HandleFunc("/scanner/triggers/", s.protected(scopeTriggers, s.handleListTriggers)).Methods("GET", "OPTIONS")
	r.HandleFunc("/scanner/triggers/clear/", s.protected(scopeTriggers, s.handleClearTriggers)).Methods("POST", "OPTIONS")

	r.HandleFunc("/scanner/preferences/me/", s.protected(scopeRead, s.handleGetMySettings)).Methods("GET", "OPTIONS")
	r.HandleFunc("/scanner/preferences/me/", s.protected(scopeRead, s.handleUpdateMySettings)).Methods("PUT", "PATCH")

	r.HandleFunc("/scanner/admin/status/", s.adminOnly(scopeWrite, s.handleAdminStatus)).Methods("GET", "OPTIONS")
	r.HandleFunc("/scanner/admin/emit_test_event/", s.adminOnly(scopeWrite, s.handleEmitTestEvent)).Methods("POST", "OPTIONS")
	r.HandleFunc("/scanner/admin/emit_test_hot5/", s.adminOnly(scopeWrite, s.handleEmitTestHot5)).Methods("POST", "OPTIONS")

	if cfg.WSHandler != nil {
		r.Handle("/ws/scanner/triggers/", cfg.WSHandler).Methods("GET")
	}

	s.router = r
	s.httpServer = &http.Server{Addr: cfg.Addr, Handler: r}
	return s
}

// Handler exposes the router for tests and alternative listeners.
func (s *Server) Handler() http.Handler { return s.router }

// Start serves until Shutdown or a listener error.
func (s *Server) Start() error {
	log.Printf("[api] listening on %s", s.httpServer.Addr)
	return s.httpServer.ListenAndServe()
}

// Shutdown drains in-flight requests.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.httpServer.Shutdown(ctx)
}

func commonMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS, PUT, PATCH, DELETE")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")

		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusOK)
			return
		}

		next.ServeHTTP(w, r)
	})
}

// userHandler is a handler that runs with an authenticated identity.
type userHandler func(w http.ResponseWriter, r *http.Request, user model.User)

// protected authenticates, throttles, then runs h.
func (s *Server) protected(scope string, h userHandler) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		user, err := s.verifier.FromRequest(r)
		if err != nil {
			writeDetail(w, http.StatusUnauthorized, "authentication required")
			return
		}
		if !s.limiter.allow(scope, user.ID) {
			w.Header().Set("X-RateLimit-Limit", s.limiter.limitHeader(scope))
			writeDetail(w, http.StatusTooManyRequests, "request was throttled")
			return
		}
		h(w, r, user)
	}
}

// adminOnly is protected plus the scanner admin check (staff flag or the
// configured admin email).
func (s *Server) adminOnly(scope string, h userHandler) http.HandlerFunc {
	return s.protected(scope, func(w http.ResponseWriter, r *http.Request, user model.User) {
		if !user.IsAdmin(s.adminEmail) {
			writeDetail(w, http.StatusForbidden, "Not allowed.")
			return
		}
		h(w, r, user)
	})
}
