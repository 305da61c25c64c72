package feed

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"log"
	"os"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	"ignition-scanner/internal/model"
)

// ReplayFeed replays minute bars from a CSV file with rows
// symbol,ts,o,h,l,c,v (ts is RFC3339 or unix seconds, header row
// optional). Gaps between bar timestamps are slept scaled by speed;
// speed <= 0 replays without delay. The feed terminates at EOF.
type ReplayFeed struct {
	path  string
	speed float64

	mu      sync.Mutex
	rows    []model.Bar
	handler Handler
	subs    map[string]bool
	cancel  context.CancelFunc
	done    chan error
	started bool
	wg      sync.WaitGroup
}

// NewReplayFeed replays path at the given speed multiple (1 = real time,
// 60 = a minute per second, <= 0 = no delay).
func NewReplayFeed(path string, speed float64) *ReplayFeed {
	return &ReplayFeed{path: path, speed: speed, subs: make(map[string]bool)}
}

func (r *ReplayFeed) Connect(ctx context.Context) error {
	rows, err := readBarCSV(r.path)
	if err != nil {
		return err
	}
	sort.SliceStable(rows, func(i, j int) bool { return rows[i].TS < rows[j].TS })

	r.mu.Lock()
	defer r.mu.Unlock()
	if r.done != nil {
		return errors.New("replay feed already connected")
	}
	r.rows = rows
	r.done = make(chan error, 1)
	log.Printf("[feed] replay loaded %d bars from %s", len(rows), r.path)
	return nil
}

func (r *ReplayFeed) SubscribeBars(h Handler, symbols ...string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.done == nil {
		return errors.New("replay feed not connected")
	}
	if r.handler == nil {
		r.handler = h
	}
	for _, sym := range symbols {
		r.subs[sym] = true
	}
	if !r.started {
		r.started = true
		ctx, cancel := context.WithCancel(context.Background())
		r.cancel = cancel
		r.wg.Add(1)
		go r.run(ctx)
	}
	return nil
}

func (r *ReplayFeed) UnsubscribeBars(symbols ...string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, sym := range symbols {
		delete(r.subs, sym)
	}
	return nil
}

func (r *ReplayFeed) Done() <-chan error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.done == nil {
		closed := make(chan error)
		close(closed)
		return closed
	}
	return r.done
}

func (r *ReplayFeed) Close() error {
	r.mu.Lock()
	cancel := r.cancel
	r.cancel = nil
	r.mu.Unlock()
	if cancel != nil {
		cancel()
		r.wg.Wait()
	}
	return nil
}

func (r *ReplayFeed) run(ctx context.Context) {
	defer r.wg.Done()
	var prevTS int64
	for _, bar := range r.rows {
		if prevTS != 0 && r.speed > 0 {
			gap := time.Duration(float64(bar.TS-prevTS)/r.speed*1000) * time.Millisecond
			if gap > 0 {
				select {
				case <-ctx.Done():
					r.finish(ctx.Err())
					return
				case <-time.After(gap):
				}
			}
		}
		prevTS = bar.TS
		if ctx.Err() != nil {
			r.finish(ctx.Err())
			return
		}

		r.mu.Lock()
		h := r.handler
		want := r.subs[bar.Symbol]
		r.mu.Unlock()
		if want && h != nil {
			h(bar)
		}
	}
	log.Printf("[feed] replay finished after %d bars", len(r.rows))
	r.finish(nil)
}

func (r *ReplayFeed) finish(err error) {
	if err != nil && errors.Is(err, context.Canceled) {
		err = nil
	}
	r.done <- err
	close(r.done)
}

func readBarCSV(path string) ([]model.Bar, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open replay file: %w", err)
	}
	defer f.Close()

	cr := csv.NewReader(f)
	cr.FieldsPerRecord = 7
	cr.TrimLeadingSpace = true

	var rows []model.Bar
	line := 0
	for {
		rec, err := cr.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("replay file %s: %w", path, err)
		}
		line++
		if line == 1 && strings.EqualFold(rec[0], "symbol") {
			continue
		}
		bar, err := parseBarRow(rec)
		if err != nil {
			return nil, fmt.Errorf("replay file %s line %d: %w", path, line, err)
		}
		rows = append(rows, bar)
	}
	return rows, nil
}

func parseBarRow(rec []string) (model.Bar, error) {
	sym, err := model.NormalizeSymbol(rec[0])
	if err != nil {
		return model.Bar{}, err
	}
	ts, err := parseReplayTS(rec[1])
	if err != nil {
		return model.Bar{}, err
	}
	vals := make([]float64, 4)
	for i, field := range rec[2:6] {
		vals[i], err = strconv.ParseFloat(strings.TrimSpace(field), 64)
		if err != nil {
			return model.Bar{}, fmt.Errorf("bad price %q: %w", field, err)
		}
	}
	vol, err := strconv.ParseFloat(strings.TrimSpace(rec[6]), 64)
	if err != nil {
		return model.Bar{}, fmt.Errorf("bad volume %q: %w", rec[6], err)
	}
	return model.Bar{
		Symbol: sym,
		TS:     ts,
		O:      vals[0],
		H:      vals[1],
		L:      vals[2],
		C:      vals[3],
		V:      int64(vol),
	}, nil
}

func parseReplayTS(s string) (int64, error) {
	s = strings.TrimSpace(s)
	if n, err := strconv.ParseInt(s, 10, 64); err == nil {
		return n, nil
	}
	t, err := time.Parse(time.RFC3339, s)
	if err != nil {
		return 0, fmt.Errorf("bad timestamp %q: %w", s, err)
	}
	return t.UTC().Unix(), nil
}
