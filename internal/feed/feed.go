// Package feed abstracts the 1-minute bar sources the ingestor can run
// against: the live Alpaca stream, a synthetic generator, and a CSV replay.
package feed

import (
	"context"

	"ignition-scanner/internal/model"
)

// Handler receives each completed minute bar. Implementations must not
// block; the ingestor offloads writes to its own workers.
type Handler func(model.Bar)

// Feed is a stream of completed 1-minute bars for a symbol set. The
// ingestor owns the lifecycle: Connect, subscribe, watch Done, Close,
// reconnect.
type Feed interface {
	// Connect establishes the upstream connection. Must be called before
	// SubscribeBars.
	Connect(ctx context.Context) error

	// SubscribeBars registers the handler for the given symbols. Calling it
	// again adds symbols; the first handler wins.
	SubscribeBars(h Handler, symbols ...string) error

	// UnsubscribeBars stops delivery for the given symbols.
	UnsubscribeBars(symbols ...string) error

	// Done reports connection termination. The channel receives the
	// terminal error (possibly nil) and is closed afterwards.
	Done() <-chan error

	// Close tears the connection down. Safe to call more than once.
	Close() error
}

// Backfiller is implemented by feeds that can deliver the current trading
// day's bars through the handler before live streaming starts, so the
// engine has lookback context immediately after a restart.
type Backfiller interface {
	BackfillDay(ctx context.Context, h Handler, symbols []string) error
}
