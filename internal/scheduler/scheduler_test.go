package scheduler

import (
	"context"
	"errors"
	"testing"
	"time"

	"ignition-scanner/internal/model"
)

type fakeLocker struct {
	buckets []string
	ttls    []time.Duration
	granted bool
	err     error
}

func (f *fakeLocker) AcquireTickLock(_ context.Context, bucket string, ttl time.Duration) (bool, error) {
	f.buckets = append(f.buckets, bucket)
	f.ttls = append(f.ttls, ttl)
	return f.granted, f.err
}

type fakeRunner struct {
	calls []time.Time
	err   error
	boom  bool
}

func (f *fakeRunner) RunOnce(_ context.Context, now time.Time) (int, error) {
	if f.boom {
		panic("runner exploded")
	}
	f.calls = append(f.calls, now)
	return 0, f.err
}

type fakePruner struct {
	model.EventStore
	cutoffs []time.Time
	removed int64
	err     error
}

func (f *fakePruner) PruneEventsBefore(_ context.Context, cutoff time.Time) (int64, error) {
	f.cutoffs = append(f.cutoffs, cutoff)
	return f.removed, f.err
}

func TestTickRunsWhenLockAcquired(t *testing.T) {
	locks := &fakeLocker{granted: true}
	runner := &fakeRunner{}
	s := New(runner, locks, &fakePruner{}, 30)

	at := time.Date(2026, 2, 25, 15, 4, 0, 0, time.UTC)
	s.tick(context.Background(), at)

	if len(runner.calls) != 1 || !runner.calls[0].Equal(at) {
		t.Fatalf("runner calls = %v, want one at %v", runner.calls, at)
	}
	if len(locks.buckets) != 1 || locks.buckets[0] != "202602251504" {
		t.Fatalf("lock buckets = %v, want [202602251504]", locks.buckets)
	}
	if locks.ttls[0] != 55*time.Second {
		t.Fatalf("lock ttl = %v, want 55s", locks.ttls[0])
	}
}

func TestTickSkipsWhenAnotherReplicaHoldsLock(t *testing.T) {
	locks := &fakeLocker{granted: false}
	runner := &fakeRunner{}
	s := New(runner, locks, &fakePruner{}, 30)

	s.tick(context.Background(), time.Date(2026, 2, 25, 15, 4, 0, 0, time.UTC))

	if len(runner.calls) != 0 {
		t.Fatalf("runner ran despite a held lock: %v", runner.calls)
	}
}

func TestTickSkipsOnLockError(t *testing.T) {
	locks := &fakeLocker{err: errors.New("redis down")}
	runner := &fakeRunner{}
	s := New(runner, locks, &fakePruner{}, 30)

	s.tick(context.Background(), time.Date(2026, 2, 25, 15, 4, 0, 0, time.UTC))

	if len(runner.calls) != 0 {
		t.Fatalf("runner ran without the lock: %v", runner.calls)
	}
}

func TestTickRecoversFromPanic(t *testing.T) {
	locks := &fakeLocker{granted: true}
	runner := &fakeRunner{boom: true}
	s := New(runner, locks, &fakePruner{}, 30)

	s.tick(context.Background(), time.Date(2026, 2, 25, 15, 4, 0, 0, time.UTC))

	// The next tick proceeds normally after a recovered panic.
	runner.boom = false
	s.tick(context.Background(), time.Date(2026, 2, 25, 15, 5, 0, 0, time.UTC))

	if len(runner.calls) != 1 {
		t.Fatalf("runner calls after recovery = %d, want 1", len(runner.calls))
	}
	if len(locks.buckets) != 2 {
		t.Fatalf("lock attempts = %d, want 2", len(locks.buckets))
	}
}

func TestSweepPrunesRetentionWindow(t *testing.T) {
	pruner := &fakePruner{removed: 12}
	s := New(&fakeRunner{}, &fakeLocker{granted: true}, pruner, 30)

	before := time.Now().UTC().AddDate(0, 0, -30)
	s.sweep(context.Background())
	after := time.Now().UTC().AddDate(0, 0, -30)

	if len(pruner.cutoffs) != 1 {
		t.Fatalf("prune calls = %d, want 1", len(pruner.cutoffs))
	}
	cutoff := pruner.cutoffs[0]
	if cutoff.Before(before) || cutoff.After(after) {
		t.Fatalf("cutoff %v outside [%v, %v]", cutoff, before, after)
	}
}

func TestSweepDefaultRetention(t *testing.T) {
	pruner := &fakePruner{}
	s := New(&fakeRunner{}, &fakeLocker{granted: true}, pruner, 0)

	s.sweep(context.Background())

	wantMin := time.Now().UTC().AddDate(0, 0, -30).Add(-time.Minute)
	if pruner.cutoffs[0].Before(wantMin) {
		t.Fatalf("default retention cutoff %v is older than 30 days", pruner.cutoffs[0])
	}
}

func TestSweepErrorDoesNotPanic(t *testing.T) {
	pruner := &fakePruner{err: errors.New("db locked")}
	s := New(&fakeRunner{}, &fakeLocker{granted: true}, pruner, 30)

	s.sweep(context.Background())

	if len(pruner.cutoffs) != 1 {
		t.Fatalf("prune calls = %d, want 1", len(pruner.cutoffs))
	}
}
