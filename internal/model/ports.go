package model

import (
	"context"
	"time"
)

// ── Storage Port Interfaces ──
// These interfaces decouple the engine, API and workers from concrete
// storage implementations (Redis, SQLite). One concrete store may satisfy
// several of them.

// ConfigStore persists the singleton scanner configuration.
type ConfigStore interface {
	// GetConfig returns the active configuration, creating the defaults
	// row on first access.
	GetConfig(ctx context.Context) (ScannerConfig, error)

	// UpdateConfig persists cfg and returns the stored row with its
	// updated_at bumped.
	UpdateConfig(ctx context.Context, cfg ScannerConfig) (ScannerConfig, error)
}

// UniverseStore persists the scan universe.
type UniverseStore interface {
	// ListUniverse returns all tickers ordered by symbol.
	ListUniverse(ctx context.Context) ([]UniverseTicker, error)

	// EnabledSymbols returns the enabled symbols, uppercased, sorted,
	// deduplicated.
	EnabledSymbols(ctx context.Context) ([]string, error)

	// AddTicker inserts a new symbol. Duplicate symbols are rejected.
	AddTicker(ctx context.Context, symbol string, enabled bool) (UniverseTicker, error)

	// SetTickerEnabled flips the enabled flag for one ticker.
	SetTickerEnabled(ctx context.Context, id int64, enabled bool) (UniverseTicker, error)

	// DeleteTicker removes one ticker.
	DeleteTicker(ctx context.Context, id int64) error
}

// EventQuery filters and pages the trigger event list.
type EventQuery struct {
	Symbol string     // exact match, case-insensitive; empty matches all
	After  *time.Time // exclude events at or before this instant
	Limit  int
	Offset int
}

// EventStore persists trigger events. Events are append-only.
type EventStore interface {
	// AppendEvent stores a new event. The event id must be unique.
	AppendEvent(ctx context.Context, ev *TriggerEvent) error

	// EventByID loads one event. Returns ErrNotFound on a miss.
	EventByID(ctx context.Context, id string) (*TriggerEvent, error)

	// LastEventForSymbol returns the most recent event for symbol,
	// or ErrNotFound when the symbol never triggered.
	LastEventForSymbol(ctx context.Context, symbol string) (*TriggerEvent, error)

	// ListEvents returns one page of events newest-first plus the total
	// count matching the filter.
	ListEvents(ctx context.Context, q EventQuery) ([]TriggerEvent, int, error)

	// PruneEventsBefore deletes events older than cutoff, returning the
	// number removed.
	PruneEventsBefore(ctx context.Context, cutoff time.Time) (int64, error)
}

// PreferenceStore persists per-user delivery settings.
type PreferenceStore interface {
	// GetSettings returns the user's settings, creating the defaults row
	// on first access.
	GetSettings(ctx context.Context, userID int64) (UserScannerSettings, error)

	// UpdateSettings persists s and returns the stored row.
	UpdateSettings(ctx context.Context, s UserScannerSettings) (UserScannerSettings, error)

	// PushCandidates returns users eligible for push delivery:
	// follow_alerts and pushover_enabled set, user key present.
	PushCandidates(ctx context.Context) ([]UserScannerSettings, error)

	// FollowerIDs returns ids of all users following alerts. The clear
	// mark hides history and replay, not live delivery.
	FollowerIDs(ctx context.Context) ([]int64, error)

	// LiveFeedUserIDs returns ids of users with the live hotlist enabled.
	LiveFeedUserIDs(ctx context.Context) ([]int64, error)
}

// ── Hot State Port Interfaces ──

// BarWriter pushes bars into day-scoped hot state. Owned by the ingestor;
// there is exactly one writer per symbol.
type BarWriter interface {
	// PushBar prepends a bar to its symbol's list for the trading day
	// resolved from bar.TS. A bar whose ts equals the current head's is
	// ignored and pushed is false.
	PushBar(ctx context.Context, bar Bar, keep int) (pushed bool, err error)

	// UpdateHOD applies one bar to the high-of-day marker: prev_hod takes
	// the current hod, hod rises to max(hod, high), ts records the bar.
	UpdateHOD(ctx context.Context, day, symbol string, high float64, ts int64) error

	// DeleteSymbol removes the symbol's bar and HOD keys across all days.
	DeleteSymbol(ctx context.Context, symbol string) error
}

// BarReader reads bars from hot state, oldest-first.
type BarReader interface {
	// FetchBars returns up to minutes+6 recent bars per symbol.
	// Malformed entries are skipped.
	FetchBars(ctx context.Context, day string, symbols []string, minutes int) (map[string][]Bar, error)

	// FetchAllBars returns up to limit bars for one symbol, for rebuilds.
	FetchAllBars(ctx context.Context, day, symbol string, limit int) ([]Bar, error)
}

// HOD is the high-of-day marker. PrevHOD is the high as of before the bar
// recorded in TS, nil until a second bar arrives.
type HOD struct {
	High    float64
	PrevHOD *float64
	TS      int64
}

// HODStore reads and repairs the high-of-day marker.
type HODStore interface {
	// GetHOD reads the marker; ok is false when none is stored.
	GetHOD(ctx context.Context, day, symbol string) (HOD, bool, error)

	// RebuildHOD recomputes the marker from the stored bars and persists
	// it. ok is false when the symbol has no bars for the day.
	RebuildHOD(ctx context.Context, day, symbol string) (HOD, bool, error)
}

// ── Delivery Port Interfaces ──

// Publisher fans frames out to scanserver replicas.
type Publisher interface {
	// PublishTrigger sends a trigger frame addressed to userIDs.
	PublishTrigger(ctx context.Context, ev *TriggerEvent, userIDs []int64) error

	// PublishHot5 sends a hotlist frame addressed to userIDs.
	PublishHot5(ctx context.Context, items []Hot5Item, userIDs []int64) error
}

// PushEnqueuer hands trigger events to the push notification workers.
// Enqueue never blocks; a full queue drops the job.
type PushEnqueuer interface {
	EnqueuePush(eventID string)
}
