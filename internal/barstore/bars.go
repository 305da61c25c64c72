package barstore

import (
	"context"
	"fmt"
	"log"

	"ignition-scanner/internal/model"
	"ignition-scanner/internal/tradingday"

	goredis "github.com/go-redis/redis/v8"
)

// PushBar prepends the bar to its symbol's list for the trading day resolved
// from bar.TS, trims to keep entries and refreshes the TTL. A bar whose ts
// equals the current head's is silently dropped (pushed=false). Days never
// mix under one key.
func (s *Store) PushBar(ctx context.Context, bar model.Bar, keep int) (bool, error) {
	day := tradingday.DayID(bar.Time())
	key := barsKey(day, bar.Symbol)

	head, err := s.client.LIndex(ctx, key, 0).Result()
	if err != nil && err != goredis.Nil {
		return false, fmt.Errorf("bars head %s: %w", key, err)
	}
	if err == nil {
		if hb, derr := decodeBar(bar.Symbol, head); derr == nil && hb.TS == bar.TS {
			return false, nil
		}
	}

	pipe := s.client.Pipeline()
	pipe.LPush(ctx, key, encodeBar(bar))
	pipe.LTrim(ctx, key, 0, int64(keep-1))
	pipe.Expire(ctx, key, hotTTL)
	if _, err := pipe.Exec(ctx); err != nil {
		return false, fmt.Errorf("bars push %s: %w", key, err)
	}
	return true, nil
}

// FetchBars returns up to minutes+6 recent bars per symbol, oldest-first.
// Requests for all symbols go out in one pipeline. Malformed entries are
// skipped with a log line; a missing key yields an empty slice.
func (s *Store) FetchBars(ctx context.Context, day string, symbols []string, minutes int) (map[string][]model.Bar, error) {
	want := minutes + 6
	if want < 10 {
		want = 10
	}

	pipe := s.client.Pipeline()
	cmds := make(map[string]*goredis.StringSliceCmd, len(symbols))
	for _, sym := range symbols {
		cmds[sym] = pipe.LRange(ctx, barsKey(day, sym), 0, int64(want-1))
	}
	if _, err := pipe.Exec(ctx); err != nil && err != goredis.Nil {
		return nil, fmt.Errorf("bars fetch day %s: %w", day, err)
	}

	out := make(map[string][]model.Bar, len(symbols))
	for _, sym := range symbols {
		rows, err := cmds[sym].Result()
		if err != nil && err != goredis.Nil {
			log.Printf("[barstore] fetch %s: %v", sym, err)
			out[sym] = nil
			continue
		}
		out[sym] = decodeRows(sym, rows)
	}
	return out, nil
}

// FetchAllBars returns up to limit bars for one symbol, oldest-first.
// limit <= 0 reads the whole list. Used for HOD rebuilds.
func (s *Store) FetchAllBars(ctx context.Context, day, symbol string, limit int) ([]model.Bar, error) {
	stop := int64(-1)
	if limit > 0 {
		stop = int64(limit - 1)
	}
	rows, err := s.client.LRange(ctx, barsKey(day, symbol), 0, stop).Result()
	if err != nil && err != goredis.Nil {
		return nil, fmt.Errorf("bars fetch all %s: %w", symbol, err)
	}
	return decodeRows(symbol, rows), nil
}

// decodeRows reverses a newest-first LRANGE result into oldest-first bars,
// dropping entries that fail to decode.
func decodeRows(symbol string, rows []string) []model.Bar {
	bars := make([]model.Bar, 0, len(rows))
	for i := len(rows) - 1; i >= 0; i-- {
		b, err := decodeBar(symbol, rows[i])
		if err != nil {
			log.Printf("[barstore] skip malformed bar for %s: %v", symbol, err)
			continue
		}
		bars = append(bars, b)
	}
	return bars
}

// BarCount returns the list depth for one symbol and day.
func (s *Store) BarCount(ctx context.Context, day, symbol string) (int64, error) {
	n, err := s.client.LLen(ctx, barsKey(day, symbol)).Result()
	if err != nil && err != goredis.Nil {
		return 0, fmt.Errorf("bars llen %s: %w", symbol, err)
	}
	return n, nil
}

// DeleteSymbol removes the symbol's bar and HOD keys across all days.
func (s *Store) DeleteSymbol(ctx context.Context, symbol string) error {
	var firstErr error
	for _, pattern := range []string{
		barKeyPrefix + "*:" + symbol,
		hodKeyPrefix + "*:" + symbol,
	} {
		iter := s.client.Scan(ctx, 0, pattern, 100).Iterator()
		var keys []string
		for iter.Next(ctx) {
			keys = append(keys, iter.Val())
		}
		if err := iter.Err(); err != nil && firstErr == nil {
			firstErr = fmt.Errorf("scan %s: %w", pattern, err)
		}
		if len(keys) > 0 {
			if err := s.client.Del(ctx, keys...).Err(); err != nil && firstErr == nil {
				firstErr = fmt.Errorf("del %s: %w", pattern, err)
			}
		}
	}
	if firstErr == nil {
		log.Printf("[barstore] cleared hot state for %s", symbol)
	}
	return firstErr
}
