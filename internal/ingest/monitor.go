package ingest

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"ignition-scanner/internal/tradingday"
)

// monitor watches a live session: heartbeat, depth debug, no-data warning,
// universe polling and disconnect detection. It returns true when the
// universe changed, and an error when the feed dropped.
func (in *Ingestor) monitor(ctx context.Context, symbols []string) (universeChanged bool, err error) {
	started := time.Now()
	startBars := in.bars.Load()
	var lastHeartbeat, lastDepth, lastUniverseCheck, lastNoDataWarn time.Time

	t := time.NewTicker(in.tick)
	defer t.Stop()

	for {
		select {
		case <-ctx.Done():
			return false, ctx.Err()
		case derr := <-in.feed.Done():
			if derr != nil {
				return false, fmt.Errorf("feed disconnected: %w", derr)
			}
			return false, errors.New("feed disconnected")
		case <-t.C:
		}
		now := time.Now()

		if in.opts.Heartbeat > 0 && now.Sub(lastHeartbeat) >= in.opts.Heartbeat {
			lastHeartbeat = now
			in.writeHeartbeat(ctx, now)
		}

		if in.opts.RedisDebugEvery > 0 && now.Sub(lastDepth) >= in.opts.RedisDebugEvery {
			lastDepth = now
			in.depthDebug(ctx, symbols)
		}

		if in.opts.WarnNoData > 0 && now.Sub(started) >= in.opts.WarnNoData &&
			now.Sub(lastNoDataWarn) >= in.opts.WarnNoData {
			lastNoDataWarn = now
			if in.bars.Load() == startBars {
				msg := "no bar data received yet; market closed, missing entitlement, or feed not logged in"
				log.Printf("[ingest] %s", msg)
				in.alert(ctx, "ingestor: no data", msg)
			}
		}

		if in.opts.UniversePoll > 0 && now.Sub(lastUniverseCheck) >= in.opts.UniversePoll {
			lastUniverseCheck = now
			latest, lerr := in.loadUniverse(ctx)
			if lerr != nil {
				log.Printf("[ingest] universe poll: %v", lerr)
			} else if !in.sameAsCurrent(latest) {
				log.Printf("[ingest] universe changed %d -> %d symbols, stopping stream", len(symbols), len(latest))
				return true, nil
			}
		}
	}
}

func (in *Ingestor) writeHeartbeat(ctx context.Context, now time.Time) {
	lastBar := "never"
	if ts := in.lastBarTS.Load(); ts > 0 {
		lastBar = time.Unix(ts, 0).UTC().Format(time.RFC3339)
	}
	in.mu.Lock()
	subscribed := len(in.current)
	in.mu.Unlock()
	log.Printf("[ingest] heartbeat subscribed=%d last_bar=%s bars=%d dropped=%d",
		subscribed, lastBar, in.bars.Load(), in.dropped.Load())
	if err := in.hot.WriteHeartbeat(ctx, now); err != nil {
		log.Printf("[ingest] heartbeat write: %v", err)
	}
}

// depthDebug logs hot list depths for a small sample of symbols.
func (in *Ingestor) depthDebug(ctx context.Context, symbols []string) {
	sample := symbols
	if len(sample) > 5 {
		sample = sample[:5]
	}
	day := tradingday.DayID(time.Now())
	counts := make(map[string]int64, len(sample))
	for _, sym := range sample {
		n, err := in.hot.BarCount(ctx, day, sym)
		if err != nil {
			counts[sym] = -1
			continue
		}
		counts[sym] = n
	}
	log.Printf("[ingest] redis depth sample=%v counts=%v", sample, counts)
}
