package feed

import (
	"context"
	"errors"
	"hash/fnv"
	"sync"
	"time"

	"ignition-scanner/internal/model"
)

const (
	simRampVolume     = 1000
	simIgnitionVolume = 200000
	simIgnitionPct    = 1.02
)

// SimFeed synthesizes bars without market-data credentials: per symbol a
// flat low-volume ramp, then an ignition bar (+2% close on heavy volume),
// repeating. Bar timestamps march forward one minute per emitted bar from
// an anchor rampLen minutes in the past, so with a compressed interval the
// first ignition lands near wall-clock now and later bars run ahead of it.
type SimFeed struct {
	interval time.Duration
	rampLen  int

	mu      sync.Mutex
	handler Handler
	states  map[string]*simState
	cancel  context.CancelFunc
	done    chan error
	wg      sync.WaitGroup
}

type simState struct {
	price float64
	step  int
	ts    time.Time
}

// NewSimFeed emits one bar per symbol every interval, with rampLen flat
// bars before each ignition. Zero values fall back to 1s and 30.
func NewSimFeed(interval time.Duration, rampLen int) *SimFeed {
	if interval <= 0 {
		interval = time.Second
	}
	if rampLen <= 0 {
		rampLen = 30
	}
	return &SimFeed{interval: interval, rampLen: rampLen}
}

func (s *SimFeed) Connect(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.cancel != nil {
		return errors.New("sim feed already connected")
	}
	ctx, s.cancel = context.WithCancel(ctx)
	s.done = make(chan error, 1)
	s.states = make(map[string]*simState)
	s.wg.Add(1)
	go s.run(ctx)
	return nil
}

func (s *SimFeed) SubscribeBars(h Handler, symbols ...string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.states == nil {
		return errors.New("sim feed not connected")
	}
	if s.handler == nil {
		s.handler = h
	}
	anchor := time.Now().UTC().Truncate(time.Minute).Add(-time.Duration(s.rampLen) * time.Minute)
	for _, sym := range symbols {
		if _, ok := s.states[sym]; ok {
			continue
		}
		s.states[sym] = &simState{price: simBasePrice(sym), ts: anchor}
	}
	return nil
}

func (s *SimFeed) UnsubscribeBars(symbols ...string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, sym := range symbols {
		delete(s.states, sym)
	}
	return nil
}

func (s *SimFeed) Done() <-chan error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.done == nil {
		closed := make(chan error)
		close(closed)
		return closed
	}
	return s.done
}

func (s *SimFeed) Close() error {
	s.mu.Lock()
	cancel := s.cancel
	s.cancel = nil
	s.mu.Unlock()
	if cancel != nil {
		cancel()
		s.wg.Wait()
	}
	return nil
}

func (s *SimFeed) run(ctx context.Context) {
	defer s.wg.Done()
	t := time.NewTicker(s.interval)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			s.done <- nil
			close(s.done)
			return
		case <-t.C:
			s.emitAll()
		}
	}
}

func (s *SimFeed) emitAll() {
	s.mu.Lock()
	h := s.handler
	bars := make([]model.Bar, 0, len(s.states))
	for sym, st := range s.states {
		bars = append(bars, st.next(sym, s.rampLen))
	}
	s.mu.Unlock()
	if h == nil {
		return
	}
	for _, b := range bars {
		h(b)
	}
}

func (st *simState) next(symbol string, rampLen int) model.Bar {
	o := st.price
	c, hi, lo := o, o, o
	v := int64(simRampVolume)
	if st.step == rampLen {
		c = o * simIgnitionPct
		hi, lo = c, o
		v = simIgnitionVolume
		st.step = 0
		st.price = c
	} else {
		st.step++
	}
	bar := model.Bar{Symbol: symbol, TS: st.ts.Unix(), O: o, H: hi, L: lo, C: c, V: v}
	st.ts = st.ts.Add(time.Minute)
	return bar
}

// simBasePrice derives a stable per-symbol price in [10, 100).
func simBasePrice(symbol string) float64 {
	h := fnv.New32a()
	h.Write([]byte(symbol))
	return 10 + float64(h.Sum32()%9000)/100
}
