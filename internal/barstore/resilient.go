package barstore

import (
	"context"
	"errors"
	"log"
	"sync"
	"time"

	"ignition-scanner/internal/model"
	"ignition-scanner/internal/tradingday"
)

const defaultMaxPending = 10000

// pendingBar is a bar held in memory while the hot store is unreachable.
type pendingBar struct {
	bar  model.Bar
	keep int
}

// ResilientWriter shields the ingest path from Redis outages. Writes run
// through a circuit breaker; failed bars spill into a bounded in-memory
// buffer (drop-oldest past the cap). While a backlog exists, new bars queue
// behind it and every ApplyBar attempts a drain, so bars always reach the
// store oldest-first and per-symbol ordering survives an outage.
type ResilientWriter struct {
	next model.BarWriter
	br   *Breaker

	mu         sync.Mutex // guards pending
	drainMu    sync.Mutex // serializes drains
	pending    []pendingBar
	maxPending int

	// Optional metric hooks.
	OnSpill  func(buffered int)
	OnReplay func(written int)
}

// NewResilientWriter wraps next with a breaker and spill buffer.
// maxPending <= 0 uses the default cap.
func NewResilientWriter(next model.BarWriter, maxFailures int, cooldown time.Duration, maxPending int) *ResilientWriter {
	if maxPending <= 0 {
		maxPending = defaultMaxPending
	}
	w := &ResilientWriter{
		next:       next,
		br:         NewBreaker(maxFailures, cooldown),
		maxPending: maxPending,
	}
	w.br.OnChange = func(from, to BreakerState) {
		log.Printf("[barstore] write breaker %s -> %s", from, to)
	}
	return w
}

// ApplyBar pushes the bar and advances the HOD marker. While the store is
// down the bar is buffered and a nil error is returned once the breaker has
// opened; only the failures that trip it surface.
func (w *ResilientWriter) ApplyBar(ctx context.Context, bar model.Bar, keep int) error {
	if w.backlogged() {
		w.spill(bar, keep)
		w.drain(ctx)
		return nil
	}

	err := w.br.Do(func() error { return w.apply(ctx, bar, keep) })
	if err == nil {
		return nil
	}
	w.spill(bar, keep)
	if errors.Is(err, ErrBreakerOpen) {
		return nil
	}
	return err
}

func (w *ResilientWriter) apply(ctx context.Context, bar model.Bar, keep int) error {
	pushed, err := w.next.PushBar(ctx, bar, keep)
	if err != nil {
		return err
	}
	if !pushed {
		return nil
	}
	day := tradingday.DayID(bar.Time())
	return w.next.UpdateHOD(ctx, day, bar.Symbol, bar.H, bar.TS)
}

// DeleteSymbol clears the symbol's hot state and discards any of its
// buffered bars so they cannot replay after removal.
func (w *ResilientWriter) DeleteSymbol(ctx context.Context, symbol string) error {
	w.mu.Lock()
	kept := w.pending[:0]
	for _, p := range w.pending {
		if p.bar.Symbol != symbol {
			kept = append(kept, p)
		}
	}
	w.pending = kept
	w.mu.Unlock()

	return w.br.Do(func() error {
		return w.next.DeleteSymbol(ctx, symbol)
	})
}

// PendingCount returns the number of buffered bars.
func (w *ResilientWriter) PendingCount() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return len(w.pending)
}

// BreakerState exposes the breaker state for health reporting.
func (w *ResilientWriter) BreakerState() BreakerState {
	return w.br.State()
}

func (w *ResilientWriter) backlogged() bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	return len(w.pending) > 0
}

func (w *ResilientWriter) spill(bar model.Bar, keep int) {
	w.mu.Lock()
	w.pending = append(w.pending, pendingBar{bar: bar, keep: keep})
	if len(w.pending) > w.maxPending {
		dropped := len(w.pending) - w.maxPending
		w.pending = append([]pendingBar(nil), w.pending[dropped:]...)
		log.Printf("[barstore] spill buffer full, dropped %d oldest bars", dropped)
	}
	n := len(w.pending)
	w.mu.Unlock()
	if w.OnSpill != nil {
		w.OnSpill(n)
	}
}

// drain flushes the backlog oldest-first through the breaker, stopping at
// the first failure. While the breaker is open inside its cooldown this is
// a cheap no-op; once the cooldown elapses the oldest buffered bar doubles
// as the half-open probe. At most one drain runs at a time.
func (w *ResilientWriter) drain(ctx context.Context) {
	if !w.drainMu.TryLock() {
		return
	}
	defer w.drainMu.Unlock()

	written := 0
	for {
		w.mu.Lock()
		if len(w.pending) == 0 {
			w.mu.Unlock()
			break
		}
		p := w.pending[0]
		w.mu.Unlock()

		if err := w.br.Do(func() error { return w.apply(ctx, p.bar, p.keep) }); err != nil {
			break
		}

		w.mu.Lock()
		w.pending = w.pending[1:]
		w.mu.Unlock()
		written++
	}

	if written > 0 {
		log.Printf("[barstore] drained %d buffered bars", written)
		if w.OnReplay != nil {
			w.OnReplay(written)
		}
	}
}
