// Package scheduler drives the minute-cadence scan loop and the daily
// retention sweep. One instance runs per scanserver replica; a Redis
// lock keyed by the minute bucket ensures only one replica scans.
package scheduler

import (
	"context"
	"log"
	"time"

	"ignition-scanner/internal/model"
)

const (
	lockTTL           = 55 * time.Second
	sweepInterval     = 24 * time.Hour
	defaultRetention  = 30
	tickBucketLayout  = "200601021504"
	sweepCutoffLayout = "2006-01-02"
)

// TickLocker claims the per-minute scan slot.
type TickLocker interface {
	// AcquireTickLock returns false when another replica already holds
	// the bucket.
	AcquireTickLock(ctx context.Context, bucket string, ttl time.Duration) (bool, error)
}

// Runner runs one scan pass over the universe.
type Runner interface {
	RunOnce(ctx context.Context, now time.Time) (int, error)
}

// Scheduler aligns scan ticks to wall-clock minute boundaries and prunes
// old trigger events once per day.
type Scheduler struct {
	engine Runner
	locks  TickLocker
	events model.EventStore

	retentionDays int
}

// New builds a scheduler. retentionDays <= 0 falls back to the default
// 30-day window.
func New(engine Runner, locks TickLocker, events model.EventStore, retentionDays int) *Scheduler {
	if retentionDays <= 0 {
		retentionDays = defaultRetention
	}
	return &Scheduler{
		engine:        engine,
		locks:         locks,
		events:        events,
		retentionDays: retentionDays,
	}
}

// Start launches the tick and retention loops. It returns immediately;
// both loops run until ctx is cancelled.
func (s *Scheduler) Start(ctx context.Context) {
	go s.tickLoop(ctx)
	go s.retentionLoop(ctx)
	log.Printf("[scheduler] started, retention %dd", s.retentionDays)
}

// tickLoop realigns to the next minute boundary on every pass so the
// cadence self-corrects after clock drift or process suspension.
func (s *Scheduler) tickLoop(ctx context.Context) {
	for {
		now := time.Now().UTC()
		next := now.Truncate(time.Minute).Add(time.Minute)

		select {
		case <-ctx.Done():
			log.Printf("[scheduler] tick loop shutting down")
			return
		case <-time.After(next.Sub(now)):
		}

		// The boundary instant, not the post-wakeup clock, stamps the
		// scan so trigger times land on the minute.
		s.tick(ctx, next)
	}
}

// tick claims the minute bucket and runs one scan pass. A panicking
// pass is logged and the loop continues on the next boundary.
func (s *Scheduler) tick(ctx context.Context, now time.Time) {
	defer func() {
		if r := recover(); r != nil {
			log.Printf("[scheduler] panic in tick: %v", r)
		}
	}()

	bucket := now.UTC().Format(tickBucketLayout)
	ok, err := s.locks.AcquireTickLock(ctx, bucket, lockTTL)
	if err != nil {
		log.Printf("[scheduler] tick lock %s: %v", bucket, err)
		return
	}
	if !ok {
		log.Printf("[scheduler] tick %s claimed by another replica", bucket)
		return
	}

	if _, err := s.engine.RunOnce(ctx, now); err != nil {
		log.Printf("[scheduler] tick %s: %v", bucket, err)
	}
}

// retentionLoop sweeps at startup to catch up after downtime, then once
// per day.
func (s *Scheduler) retentionLoop(ctx context.Context) {
	s.sweep(ctx)

	ticker := time.NewTicker(sweepInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			log.Printf("[scheduler] retention loop shutting down")
			return
		case <-ticker.C:
			s.sweep(ctx)
		}
	}
}

// sweep deletes trigger events past the retention window. Pruning by
// cutoff is idempotent, so concurrent replicas need no lock here.
func (s *Scheduler) sweep(ctx context.Context) {
	defer func() {
		if r := recover(); r != nil {
			log.Printf("[scheduler] panic in retention sweep: %v", r)
		}
	}()

	cutoff := time.Now().UTC().AddDate(0, 0, -s.retentionDays)
	n, err := s.events.PruneEventsBefore(ctx, cutoff)
	if err != nil {
		log.Printf("[scheduler] retention sweep: %v", err)
		return
	}
	if n > 0 {
		log.Printf("[scheduler] retention sweep removed %d events older than %s", n, cutoff.Format(sweepCutoffLayout))
	}
}
