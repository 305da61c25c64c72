// Package ingest runs the long-lived bar ingestor: it keeps the feed
// subscribed to the enabled universe, pushes completed minute bars into the
// hot store, and writes the liveness heartbeat the admin status endpoint
// reports on.
package ingest

import (
	"context"
	"errors"
	"hash/fnv"
	"log"
	"sort"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"ignition-scanner/internal/feed"
	"ignition-scanner/internal/model"
	"ignition-scanner/internal/tradingday"
)

// UniverseSource yields the enabled symbol set.
type UniverseSource interface {
	EnabledSymbols(ctx context.Context) ([]string, error)
}

// BarApplier lands bars in the hot store. Wired to the resilient writer so
// Redis outages buffer instead of dropping.
type BarApplier interface {
	ApplyBar(ctx context.Context, bar model.Bar, keep int) error
	DeleteSymbol(ctx context.Context, symbol string) error
}

// HotState is the read/heartbeat slice of the bar store the ingestor uses.
type HotState interface {
	FetchAllBars(ctx context.Context, day, symbol string, limit int) ([]model.Bar, error)
	BarCount(ctx context.Context, day, symbol string) (int64, error)
	WriteHeartbeat(ctx context.Context, now time.Time) error
}

// Alerter receives operational alerts (feed down, no data). Optional.
type Alerter interface {
	Alert(ctx context.Context, subject, message string)
}

// Options tune the ingest loops. DefaultOptions matches production cadence.
type Options struct {
	Keep            int
	ReconnectDelay  time.Duration
	UniversePoll    time.Duration
	IdleSleep       time.Duration
	Heartbeat       time.Duration
	RedisDebugEvery time.Duration
	WarnNoData      time.Duration
	LogBars         bool
	Workers         int
	QueueSize       int
}

func DefaultOptions() Options {
	return Options{
		Keep:            180,
		ReconnectDelay:  3 * time.Second,
		UniversePoll:    10 * time.Second,
		IdleSleep:       5 * time.Second,
		Heartbeat:       30 * time.Second,
		RedisDebugEvery: 30 * time.Second,
		WarnNoData:      90 * time.Second,
		LogBars:         true,
		Workers:         2,
		QueueSize:       1024,
	}
}

// Ingestor owns one feed connection at a time and reconciles it against the
// universe. A session ends when the universe changes, the feed drops, or
// the context is cancelled; the outer loop then reconnects.
type Ingestor struct {
	opts     Options
	universe UniverseSource
	writer   BarApplier
	hot      HotState
	feed     feed.Feed
	alerter  Alerter

	bars      atomic.Int64
	dropped   atomic.Int64
	lastBarTS atomic.Int64

	mu         sync.Mutex
	current    map[string]struct{}
	lastPushed map[string]int64

	queues []chan model.Bar
	wg     sync.WaitGroup

	tick time.Duration

	// OnBar is an optional metrics hook invoked after each accepted bar.
	OnBar func(symbol string)
	// OnReject is an optional metrics hook invoked per malformed bar.
	OnReject func()
}

func New(opts Options, universe UniverseSource, writer BarApplier, hot HotState, f feed.Feed, alerter Alerter) *Ingestor {
	if opts.Workers <= 0 {
		opts.Workers = 1
	}
	if opts.QueueSize <= 0 {
		opts.QueueSize = 1024
	}
	if opts.Keep <= 0 {
		opts.Keep = 180
	}
	return &Ingestor{
		opts:       opts,
		universe:   universe,
		writer:     writer,
		hot:        hot,
		feed:       f,
		alerter:    alerter,
		current:    make(map[string]struct{}),
		lastPushed: make(map[string]int64),
		tick:       500 * time.Millisecond,
	}
}

// Run blocks until ctx is cancelled, reconnecting as needed.
func (in *Ingestor) Run(ctx context.Context) error {
	in.startWorkers(ctx)
	defer in.stopWorkers()

	for {
		if ctx.Err() != nil {
			return ctx.Err()
		}

		desired, err := in.loadUniverse(ctx)
		if err != nil {
			log.Printf("[ingest] loading universe: %v", err)
			if !sleepCtx(ctx, in.opts.IdleSleep) {
				return ctx.Err()
			}
			continue
		}

		if len(desired) == 0 {
			in.clearCurrent(ctx)
			log.Printf("[ingest] universe empty; sleeping")
			if !sleepCtx(ctx, in.opts.IdleSleep) {
				return ctx.Err()
			}
			continue
		}

		if !in.sameAsCurrent(desired) {
			in.dropRemoved(ctx, desired)
			in.setCurrent(desired)

			log.Printf("[ingest] (re)connecting feed symbols=%d keep=%d hb=%s universe_poll=%s",
				len(desired), in.opts.Keep, in.opts.Heartbeat, in.opts.UniversePoll)
			log.Printf("[ingest] subscribed symbols: %s", strings.Join(desired, ","))

			universeChanged, err := in.session(ctx, desired)
			if ctx.Err() != nil {
				return ctx.Err()
			}
			if universeChanged {
				log.Printf("[ingest] universe changed; reconnecting with updated subscriptions")
				sleepCtx(ctx, 500*time.Millisecond)
				continue
			}
			if err != nil {
				log.Printf("[ingest] stream stopped: %v; reconnecting in %s", err, in.opts.ReconnectDelay)
			} else {
				log.Printf("[ingest] stream stopped; reconnecting in %s", in.opts.ReconnectDelay)
			}
			// Force the reconnect branch on the next pass even though the
			// universe is unchanged.
			in.setCurrent(nil)
			sleepCtx(ctx, in.opts.ReconnectDelay)
			continue
		}

		if !sleepCtx(ctx, time.Second) {
			return ctx.Err()
		}
	}
}

// session connects, backfills, subscribes, then hands off to the monitor
// loop. It returns whether the universe changed and any terminal error.
func (in *Ingestor) session(ctx context.Context, symbols []string) (universeChanged bool, err error) {
	in.resetSessionState(symbols)

	if err := in.connectFeed(ctx); err != nil {
		in.alert(ctx, "ingestor: feed connect failed", err.Error())
		return false, err
	}
	defer func() {
		if uerr := in.feed.UnsubscribeBars(symbols...); uerr != nil {
			log.Printf("[ingest] unsubscribe during teardown: %v", uerr)
		}
		if cerr := in.feed.Close(); cerr != nil {
			log.Printf("[ingest] feed close during teardown: %v", cerr)
		}
	}()

	in.seedLastPushed(ctx, symbols)

	if bf, ok := in.feed.(feed.Backfiller); ok {
		if berr := bf.BackfillDay(ctx, in.handleBar, symbols); berr != nil {
			log.Printf("[ingest] backfill failed (continuing live): %v", berr)
		}
	}

	for _, sym := range symbols {
		if serr := in.feed.SubscribeBars(in.handleBar, sym); serr != nil {
			return false, serr
		}
		sleepCtx(ctx, 50*time.Millisecond)
	}

	return in.monitor(ctx, symbols)
}

// connectFeed tries up to 5 times with a growing pause between attempts.
func (in *Ingestor) connectFeed(ctx context.Context) error {
	var lastErr error
	for attempt := 1; attempt <= 5; attempt++ {
		log.Printf("[ingest] feed connect attempt %d/5", attempt)
		lastErr = in.feed.Connect(ctx)
		if lastErr == nil {
			return nil
		}
		log.Printf("[ingest] connect attempt %d failed: %v", attempt, lastErr)
		pause := time.Duration(attempt) * 2 * time.Second
		if pause > 10*time.Second {
			pause = 10 * time.Second
		}
		if !sleepCtx(ctx, pause) {
			return ctx.Err()
		}
	}
	return errors.New("feed connect failed after retries: " + lastErr.Error())
}

// seedLastPushed primes the monotonic guard from the newest stored bar per
// symbol so a backfill after reconnect does not re-push bars already in the
// hot store.
func (in *Ingestor) seedLastPushed(ctx context.Context, symbols []string) {
	day := tradingday.DayID(time.Now())
	in.mu.Lock()
	defer in.mu.Unlock()
	for _, sym := range symbols {
		bars, err := in.hot.FetchAllBars(ctx, day, sym, 1)
		if err != nil || len(bars) == 0 {
			continue
		}
		in.lastPushed[sym] = bars[len(bars)-1].TS
	}
}

// handleBar is the feed callback. It must stay non-blocking: accepted bars
// are handed to the writer pool through bounded queues.
func (in *Ingestor) handleBar(bar model.Bar) {
	if bar.TS <= 0 || bar.O <= 0 || bar.H <= 0 || bar.L <= 0 || bar.C <= 0 || bar.V < 0 {
		if in.OnReject != nil {
			in.OnReject()
		}
		return
	}
	sym := bar.Symbol

	in.mu.Lock()
	if _, ok := in.current[sym]; !ok {
		in.mu.Unlock()
		return
	}
	if prev, ok := in.lastPushed[sym]; ok && bar.TS <= prev {
		in.mu.Unlock()
		return
	}
	in.lastPushed[sym] = bar.TS
	in.mu.Unlock()

	in.bars.Add(1)
	in.lastBarTS.Store(bar.TS)
	if in.OnBar != nil {
		in.OnBar(sym)
	}

	if in.opts.LogBars {
		log.Printf("BAR %s %s O=%g H=%g L=%g C=%g V=%d",
			sym, bar.Time().Format(time.RFC3339), bar.O, bar.H, bar.L, bar.C, bar.V)
	}

	q := in.queues[in.route(sym)]
	select {
	case q <- bar:
	default:
		in.dropped.Add(1)
		log.Printf("[ingest] write queue full, dropping bar %s %d", sym, bar.TS)
	}
}

// startWorkers launches the symbol-sticky writer pool. Sticky routing keeps
// per-symbol bar order intact across workers. Queues are never closed; a
// late feed callback after shutdown just drops its bar.
func (in *Ingestor) startWorkers(ctx context.Context) {
	in.queues = make([]chan model.Bar, in.opts.Workers)
	for i := range in.queues {
		in.queues[i] = make(chan model.Bar, in.opts.QueueSize)
		in.wg.Add(1)
		go func(q chan model.Bar) {
			defer in.wg.Done()
			for {
				select {
				case <-ctx.Done():
					return
				case bar := <-q:
					if err := in.writer.ApplyBar(ctx, bar, in.opts.Keep); err != nil {
						log.Printf("[ingest] apply bar %s %d: %v", bar.Symbol, bar.TS, err)
					}
				}
			}
		}(in.queues[i])
	}
}

func (in *Ingestor) stopWorkers() {
	in.wg.Wait()
}

func (in *Ingestor) route(symbol string) int {
	h := fnv.New32a()
	h.Write([]byte(symbol))
	return int(h.Sum32() % uint32(len(in.queues)))
}

func (in *Ingestor) loadUniverse(ctx context.Context) ([]string, error) {
	raw, err := in.universe.EnabledSymbols(ctx)
	if err != nil {
		return nil, err
	}
	seen := make(map[string]struct{}, len(raw))
	out := make([]string, 0, len(raw))
	for _, s := range raw {
		sym := strings.ToUpper(strings.TrimSpace(s))
		if sym == "" {
			continue
		}
		if _, dup := seen[sym]; dup {
			continue
		}
		seen[sym] = struct{}{}
		out = append(out, sym)
	}
	sort.Strings(out)
	return out, nil
}

func (in *Ingestor) sameAsCurrent(desired []string) bool {
	in.mu.Lock()
	defer in.mu.Unlock()
	if len(desired) != len(in.current) {
		return false
	}
	for _, s := range desired {
		if _, ok := in.current[s]; !ok {
			return false
		}
	}
	return true
}

func (in *Ingestor) setCurrent(symbols []string) {
	in.mu.Lock()
	defer in.mu.Unlock()
	in.current = make(map[string]struct{}, len(symbols))
	for _, s := range symbols {
		in.current[s] = struct{}{}
	}
}

// clearCurrent deletes hot keys for every currently tracked symbol. Used
// when the universe empties out.
func (in *Ingestor) clearCurrent(ctx context.Context) {
	in.mu.Lock()
	syms := make([]string, 0, len(in.current))
	for s := range in.current {
		syms = append(syms, s)
	}
	in.mu.Unlock()
	if len(syms) == 0 {
		return
	}
	log.Printf("[ingest] universe became empty, clearing hot keys for %d symbols", len(syms))
	for _, s := range syms {
		if err := in.writer.DeleteSymbol(ctx, s); err != nil {
			log.Printf("[ingest] delete %s: %v", s, err)
		}
	}
	in.setCurrent(nil)
}

// dropRemoved deletes hot keys for symbols leaving the universe.
func (in *Ingestor) dropRemoved(ctx context.Context, desired []string) {
	want := make(map[string]struct{}, len(desired))
	for _, s := range desired {
		want[s] = struct{}{}
	}
	in.mu.Lock()
	var removed []string
	for s := range in.current {
		if _, keep := want[s]; !keep {
			removed = append(removed, s)
		}
	}
	in.mu.Unlock()
	for _, s := range removed {
		if err := in.writer.DeleteSymbol(ctx, s); err != nil {
			log.Printf("[ingest] delete removed %s: %v", s, err)
		}
	}
}

func (in *Ingestor) resetSessionState(symbols []string) {
	in.mu.Lock()
	defer in.mu.Unlock()
	in.lastPushed = make(map[string]int64, len(symbols))
}

func (in *Ingestor) alert(ctx context.Context, subject, msg string) {
	if in.alerter != nil {
		in.alerter.Alert(ctx, subject, msg)
	}
}

// BarsIngested reports the total bars accepted since start.
func (in *Ingestor) BarsIngested() int64 { return in.bars.Load() }

// DroppedBars reports bars discarded because the write queue was full.
func (in *Ingestor) DroppedBars() int64 { return in.dropped.Load() }

func sleepCtx(ctx context.Context, d time.Duration) bool {
	if d <= 0 {
		return ctx.Err() == nil
	}
	select {
	case <-ctx.Done():
		return false
	case <-time.After(d):
		return true
	}
}
