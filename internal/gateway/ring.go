package gateway

import (
	"sync"
	"time"
)

// replayEntry is one retained trigger frame.
type replayEntry struct {
	At    time.Time
	Frame []byte
}

// ReplayRing is a fixed-size circular buffer of recent trigger frames,
// replayed to clients on connect. Overwrites the oldest entry when full.
//
// Thread-safe for concurrent writes and reads.
type ReplayRing struct {
	mu   sync.RWMutex
	buf  []replayEntry
	cap  int
	pos  int // next write position
	full bool
}

// NewReplayRing creates a ring with the given capacity.
func NewReplayRing(capacity int) *ReplayRing {
	if capacity <= 0 {
		capacity = 64
	}
	return &ReplayRing{buf: make([]replayEntry, capacity), cap: capacity}
}

// Push retains a frame.
func (r *ReplayRing) Push(at time.Time, frame []byte) {
	r.mu.Lock()
	defer r.mu.Unlock()

	// Copy so the ring never aliases the caller's slice
	cp := make([]byte, len(frame))
	copy(cp, frame)

	r.buf[r.pos] = replayEntry{At: at, Frame: cp}
	r.pos = (r.pos + 1) % r.cap
	if r.pos == 0 && !r.full {
		r.full = true
	}
}

// Entries returns the retained frames oldest-first.
func (r *ReplayRing) Entries() []replayEntry {
	r.mu.RLock()
	defer r.mu.RUnlock()

	n := r.len()
	out := make([]replayEntry, 0, n)
	for i := 0; i < n; i++ {
		out = append(out, r.buf[r.index(i)])
	}
	return out
}

// Len returns the number of retained frames.
func (r *ReplayRing) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.len()
}

func (r *ReplayRing) len() int {
	if r.full {
		return r.cap
	}
	return r.pos
}

// index converts a logical index (0 = oldest) to a physical buffer index.
func (r *ReplayRing) index(logical int) int {
	if r.full {
		return (r.pos + logical) % r.cap
	}
	return logical
}
