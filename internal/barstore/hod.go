package barstore

import (
	"context"
	"fmt"
	"log"

	"ignition-scanner/internal/model"

	goredis "github.com/go-redis/redis/v8"
)

// GetHOD reads the high-of-day marker. ok is false when no marker is stored;
// a marker that fails to decode is treated as missing so callers rebuild it.
func (s *Store) GetHOD(ctx context.Context, day, symbol string) (model.HOD, bool, error) {
	raw, err := s.client.Get(ctx, hodKey(day, symbol)).Result()
	if err == goredis.Nil {
		return model.HOD{}, false, nil
	}
	if err != nil {
		return model.HOD{}, false, fmt.Errorf("hod get %s: %w", symbol, err)
	}
	h, derr := decodeHOD(raw)
	if derr != nil {
		log.Printf("[barstore] malformed hod for %s %s: %v", day, symbol, derr)
		return model.HOD{}, false, nil
	}
	return h, true, nil
}

// UpdateHOD applies one bar to the marker: prev_hod takes the current hod,
// hod never decreases, ts records the applied bar. Runs on every accepted
// bar, so a marker whose ts lags the newest bar signals a missed update.
func (s *Store) UpdateHOD(ctx context.Context, day, symbol string, high float64, ts int64) error {
	cur, ok, err := s.GetHOD(ctx, day, symbol)
	if err != nil {
		return err
	}
	next := model.HOD{High: high, TS: ts}
	if ok {
		prev := cur.High
		next.PrevHOD = &prev
		if cur.High > next.High {
			next.High = cur.High
		}
	}
	return s.setHOD(ctx, day, symbol, next)
}

// RebuildHOD recomputes the marker from the stored bars and persists it:
// hod over all highs, prev_hod over all but the newest bar (nil with fewer
// than two bars), ts from the newest bar. Idempotent.
func (s *Store) RebuildHOD(ctx context.Context, day, symbol string) (model.HOD, bool, error) {
	bars, err := s.FetchAllBars(ctx, day, symbol, 0)
	if err != nil {
		return model.HOD{}, false, err
	}
	if len(bars) == 0 {
		return model.HOD{}, false, nil
	}

	h := model.HOD{TS: bars[len(bars)-1].TS, High: bars[0].H}
	for _, b := range bars {
		if b.H > h.High {
			h.High = b.H
		}
	}
	if len(bars) >= 2 {
		prev := bars[0].H
		for _, b := range bars[:len(bars)-1] {
			if b.H > prev {
				prev = b.H
			}
		}
		h.PrevHOD = &prev
	}

	if err := s.setHOD(ctx, day, symbol, h); err != nil {
		return model.HOD{}, false, err
	}
	log.Printf("[barstore] rebuilt hod for %s %s: %.4f over %d bars", day, symbol, h.High, len(bars))
	return h, true, nil
}

func (s *Store) setHOD(ctx context.Context, day, symbol string, h model.HOD) error {
	if err := s.client.Set(ctx, hodKey(day, symbol), encodeHOD(h), hotTTL).Err(); err != nil {
		return fmt.Errorf("hod set %s: %w", symbol, err)
	}
	return nil
}
