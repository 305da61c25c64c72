// cmd/emitbar pushes synthetic 1m bars into the Redis hot store for one
// symbol, so a trigger can be exercised end to end without a live feed.
//
// Usage:
//
//	go run ./cmd/emitbar --symbol=TEST --n=8 --flat-volume=1000 --spike-volume=120000
package main

import (
	"context"
	"flag"
	"log"
	"math"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"

	"ignition-scanner/internal/barstore"
	"ignition-scanner/internal/model"
	"ignition-scanner/internal/tradingday"
)

func main() {
	log.SetFlags(log.LstdFlags | log.Lmicroseconds)
	_ = godotenv.Load()

	symbol := flag.String("symbol", "TEST", "Symbol to emit bars for")
	n := flag.Int("n", 8, "Number of 1m bars")
	startPrice := flag.Float64("start-price", 10.0, "Open of the first bar")
	step := flag.Float64("step", 0.12, "Close-to-close drift per bar")
	startVolume := flag.Int64("start-volume", 20000, "First bar volume, grows 20% per bar")
	flatVolume := flag.Int64("flat-volume", 0, "Fixed volume for all bars but the last (needs --spike-volume)")
	spikeVolume := flag.Int64("spike-volume", 0, "Volume for the final bar (needs --flat-volume)")
	minutesAgo := flag.Int("start-minutes-ago", 8, "Minutes before now for the first bar")
	keep := flag.Int("keep", 180, "Rolling bars kept per symbol")
	redisURL := flag.String("redis", envOr("REDIS_URL", "redis://localhost:6379/0"), "Redis URL")
	flag.Parse()

	sym, err := model.NormalizeSymbol(*symbol)
	if err != nil {
		log.Fatalf("[emitbar] invalid symbol %q: %v", *symbol, err)
	}

	store, err := barstore.New(*redisURL)
	if err != nil {
		log.Fatalf("[emitbar] redis init failed: %v", err)
	}
	defer store.Close()

	ctx := context.Background()

	// First bar lands minutesAgo back, aligned on the minute; with the
	// default spread the last bar is the freshest closed minute.
	start := time.Now().UTC().Add(-time.Duration(*minutesAgo) * time.Minute).Truncate(time.Minute)

	log.Printf("[emitbar] emitting %d synthetic 1m bars for %s starting at %.2f", *n, sym, *startPrice)

	prevClose := *startPrice
	for i := 0; i < *n; i++ {
		ts := start.Add(time.Duration(i) * time.Minute)

		o := prevClose
		c := o + *step
		h := math.Max(o, c) + *step*0.5
		l := math.Min(o, c) - *step*0.2

		var v int64
		if *flatVolume > 0 && *spikeVolume > 0 {
			v = *flatVolume
			if i == *n-1 {
				v = *spikeVolume
			}
		} else {
			v = int64(float64(*startVolume) * math.Pow(1.2, float64(i)))
		}

		bar := model.Bar{Symbol: sym, TS: ts.Unix(), O: o, H: h, L: l, C: c, V: v}
		pushed, err := store.PushBar(ctx, bar, *keep)
		if err != nil {
			log.Fatalf("[emitbar] push bar: %v", err)
		}
		if pushed {
			day := tradingday.DayID(ts)
			if err := store.UpdateHOD(ctx, day, sym, bar.H, bar.TS); err != nil {
				log.Fatalf("[emitbar] update hod: %v", err)
			}
		}

		log.Printf("[emitbar]   %s  O:%.2f H:%.2f L:%.2f C:%.2f V:%d", ts.Format("15:04:05"), o, h, l, c, v)
		prevClose = c
	}

	log.Println("[emitbar] ✅ done. the next engine tick should pick these up.")
}

func envOr(key, fallback string) string {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		return v
	}
	return fallback
}
