// Package engine runs the minute-cadence ignition scan: metrics over the
// hot bar window, cooldown and rule gates, durable trigger events, and the
// live hotlist.
package engine

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sort"
	"time"

	"github.com/google/uuid"

	"ignition-scanner/internal/model"
	"ignition-scanner/internal/tradingday"
)

const hotListSize = 5

// Engine evaluates the universe once per tick. RunOnce is not safe for
// concurrent calls; the scheduler serializes ticks.
type Engine struct {
	configs  model.ConfigStore
	universe model.UniverseStore
	events   model.EventStore
	prefs    model.PreferenceStore
	bars     model.BarReader
	hod      model.HODStore
	pub      model.Publisher
	push     model.PushEnqueuer

	stateKnown bool
	wasEnabled bool

	// OnTickDone is an optional metrics hook.
	OnTickDone func(d time.Duration, evaluated, created int)
}

func New(configs model.ConfigStore, universe model.UniverseStore, events model.EventStore,
	prefs model.PreferenceStore, bars model.BarReader, hod model.HODStore,
	pub model.Publisher, push model.PushEnqueuer) *Engine {
	return &Engine{
		configs:  configs,
		universe: universe,
		events:   events,
		prefs:    prefs,
		bars:     bars,
		hod:      hod,
		pub:      pub,
		push:     push,
	}
}

// RunOnce scans the whole universe against the current config and returns
// the number of trigger events created. Per-symbol failures are logged and
// skipped; only config, universe or bar-fetch failures abort the pass.
func (e *Engine) RunOnce(ctx context.Context, now time.Time) (int, error) {
	started := time.Now()
	now = now.UTC()

	cfg, err := e.configs.GetConfig(ctx)
	if err != nil {
		return 0, fmt.Errorf("loading config: %w", err)
	}
	if !e.stateKnown || e.wasEnabled != cfg.Enabled {
		if cfg.Enabled {
			log.Printf("[engine] scanner enabled")
		} else {
			log.Printf("[engine] scanner disabled, ticks idle")
		}
		e.stateKnown = true
		e.wasEnabled = cfg.Enabled
	}
	if !cfg.Enabled {
		return 0, nil
	}

	symbols, err := e.universe.EnabledSymbols(ctx)
	if err != nil {
		return 0, fmt.Errorf("loading universe: %w", err)
	}
	if len(symbols) == 0 {
		return 0, nil
	}

	day := tradingday.DayID(now)
	span := max(cfg.RvolLookbackMinutes, baseline5mCap)
	barsMap, err := e.bars.FetchBars(ctx, day, symbols, span)
	if err != nil {
		return 0, fmt.Errorf("fetching bars: %w", err)
	}

	// Fan-out lists load once per pass. Failures degrade delivery, never
	// event creation.
	followers, err := e.prefs.FollowerIDs(ctx)
	if err != nil {
		log.Printf("[engine] loading follower ids: %v", err)
	}
	liveIDs, err := e.prefs.LiveFeedUserIDs(ctx)
	if err != nil {
		log.Printf("[engine] loading live feed ids: %v", err)
	}

	var (
		created   int
		evaluated int
		hot       []model.Hot5Item
	)
	for _, sym := range symbols {
		m, made := e.evalSymbol(ctx, day, sym, barsMap[sym], cfg, now, followers)
		if m == nil {
			continue
		}
		evaluated++
		hot = append(hot, m.Hot5Item())
		if made {
			created++
		}
	}

	sort.SliceStable(hot, func(i, j int) bool { return hot[i].Score > hot[j].Score })
	if len(hot) > hotListSize {
		hot = hot[:hotListSize]
	}
	if len(hot) > 0 && len(liveIDs) > 0 {
		if err := e.pub.PublishHot5(ctx, hot, liveIDs); err != nil {
			log.Printf("[engine] publishing hot5: %v", err)
		}
	}

	d := time.Since(started)
	log.Printf("[engine] tick done in %s evaluated=%d created=%d", d.Round(time.Millisecond), evaluated, created)
	if e.OnTickDone != nil {
		e.OnTickDone(d, evaluated, created)
	}
	return created, nil
}

// evalSymbol runs the full per-symbol pipeline. It returns the computed
// metrics (nil when the symbol was skipped) and whether an event was
// created. A panic in the pipeline is confined to the symbol.
func (e *Engine) evalSymbol(ctx context.Context, day, sym string, bars []model.Bar,
	cfg model.ScannerConfig, now time.Time, followers []int64) (m *Metrics, created bool) {
	defer func() {
		if r := recover(); r != nil {
			log.Printf("[engine] %s: panic during evaluation: %v", sym, r)
			m, created = nil, false
		}
	}()

	if len(bars) < 6 {
		return nil, false
	}
	lastTS := bars[len(bars)-1].TS

	rec, ok, err := e.hod.GetHOD(ctx, day, sym)
	if err != nil {
		log.Printf("[engine] %s: reading hod: %v", sym, err)
		return nil, false
	}
	if !ok || rec.TS < lastTS {
		rec, ok, err = e.hod.RebuildHOD(ctx, day, sym)
		if err != nil {
			log.Printf("[engine] %s: rebuilding hod: %v", sym, err)
			return nil, false
		}
	}

	m = ComputeMetrics(sym, bars, rec, ok, cfg)
	if m == nil {
		return nil, false
	}

	last, err := e.events.LastEventForSymbol(ctx, sym)
	if err != nil {
		if !errors.Is(err, model.ErrNotFound) {
			log.Printf("[engine] %s: loading last event: %v", sym, err)
			return m, false
		}
		last = nil
	}
	allow, reason := AllowTrigger(m, cfg, last, now)
	if !allow {
		return m, false
	}
	pass, decisionTags := ShouldTrigger(m, cfg)
	if !pass {
		return m, false
	}

	ev := buildEvent(m, cfg, now, decisionTags)
	if err := e.events.AppendEvent(ctx, ev); err != nil {
		log.Printf("[engine] %s: appending event: %v", sym, err)
		return m, false
	}
	log.Printf("[engine] TRIGGER %s score=%.1f reason=%s tags=%v", sym, m.Score, reason, ev.ReasonTags)

	if err := e.pub.PublishTrigger(ctx, ev, followers); err != nil {
		log.Printf("[engine] %s: publishing trigger: %v", sym, err)
	}
	e.push.EnqueuePush(ev.ID)
	return m, true
}

func buildEvent(m *Metrics, cfg model.ScannerConfig, now time.Time, decisionTags []string) *model.TriggerEvent {
	tags := make([]string, 0, len(decisionTags)+len(m.ReasonTags))
	tags = append(tags, decisionTags...)
	tags = append(tags, m.ReasonTags...)
	return &model.TriggerEvent{
		ID:          uuid.NewString(),
		Symbol:      m.Symbol,
		TriggeredAt: now,
		ReasonTags:  dedupeTags(tags),

		O: m.Bar.O,
		H: m.Bar.H,
		L: m.Bar.L,
		C: m.Bar.C,
		V: m.Bar.V,

		LastPrice:        m.Bar.C,
		Vol1m:            int64(m.Vol1m),
		Vol5m:            int64(m.Vol5m),
		AvgVol1mLookback: m.AvgVol1mLookback,
		Rvol1m:           m.Rvol1m,
		Rvol5m:           m.Rvol5m,
		PctChange1m:      m.PctChange1m,
		PctChange5m:      m.PctChange5m,
		HOD:              m.HOD,
		BrokeHOD:         m.BrokeHOD,
		Score:            m.Score,

		ConfigSnapshot: cfg.Snapshot(),
	}
}
