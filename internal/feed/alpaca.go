package feed

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/alpacahq/alpaca-trade-api-go/v3/marketdata"
	"github.com/alpacahq/alpaca-trade-api-go/v3/marketdata/stream"

	"ignition-scanner/internal/model"
	"ignition-scanner/internal/tradingday"
)

// AlpacaFeed streams completed 1-minute bars from the Alpaca stocks
// websocket and backfills the current trading day from the historical bars
// API. SDK-internal reconnects are kept short so a dropped connection
// surfaces on Done and the ingestor can do a full teardown, reconnect and
// backfill (a silent in-SDK reconnect would lose the bars from the gap).
type AlpacaFeed struct {
	key    string
	secret string
	feed   marketdata.Feed

	stream *stream.StocksClient
	hist   *marketdata.Client
	cancel context.CancelFunc
}

// NewAlpacaFeed builds a feed against the named Alpaca data feed
// ("iex" or "sip"; anything else falls back to iex).
func NewAlpacaFeed(key, secret, feedName string) *AlpacaFeed {
	f := marketdata.IEX
	if strings.EqualFold(feedName, "sip") {
		f = marketdata.SIP
	}
	return &AlpacaFeed{
		key:    key,
		secret: secret,
		feed:   f,
		hist: marketdata.NewClient(marketdata.ClientOpts{
			APIKey:    key,
			APISecret: secret,
		}),
	}
}

func (a *AlpacaFeed) Connect(ctx context.Context) error {
	if a.key == "" || a.secret == "" {
		return errors.New("alpaca credentials missing")
	}
	ctx, a.cancel = context.WithCancel(ctx)
	a.stream = stream.NewStocksClient(a.feed,
		stream.WithCredentials(a.key, a.secret),
		stream.WithReconnectSettings(1, time.Second),
	)
	if err := a.stream.Connect(ctx); err != nil {
		a.cancel()
		return fmt.Errorf("alpaca connect (%s): %w", a.feed, err)
	}
	log.Printf("[feed] connected to alpaca %s stream", a.feed)
	return nil
}

func (a *AlpacaFeed) SubscribeBars(h Handler, symbols ...string) error {
	if a.stream == nil {
		return errors.New("alpaca feed not connected")
	}
	err := a.stream.SubscribeToBars(func(b stream.Bar) {
		h(fromStreamBar(b))
	}, symbols...)
	if err != nil {
		return fmt.Errorf("subscribe bars %v: %w", symbols, err)
	}
	return nil
}

func (a *AlpacaFeed) UnsubscribeBars(symbols ...string) error {
	if a.stream == nil || len(symbols) == 0 {
		return nil
	}
	if err := a.stream.UnsubscribeFromBars(symbols...); err != nil {
		return fmt.Errorf("unsubscribe bars: %w", err)
	}
	return nil
}

func (a *AlpacaFeed) Done() <-chan error {
	if a.stream == nil {
		closed := make(chan error)
		close(closed)
		return closed
	}
	return a.stream.Terminated()
}

func (a *AlpacaFeed) Close() error {
	if a.cancel != nil {
		a.cancel()
		a.cancel = nil
	}
	a.stream = nil
	return nil
}

// BackfillDay fetches the current trading day's minute bars for all symbols
// in one multi-bars request and replays them through the handler. The
// ingestor's monotonic timestamp guard makes this safe to interleave with
// live bars.
func (a *AlpacaFeed) BackfillDay(ctx context.Context, h Handler, symbols []string) error {
	if len(symbols) == 0 {
		return nil
	}
	day := tradingday.Current(time.Now())
	multi, err := a.hist.GetMultiBars(symbols, marketdata.GetBarsRequest{
		TimeFrame: marketdata.OneMin,
		Start:     day.StartUTC,
		End:       time.Now().UTC(),
		Feed:      a.feed,
	})
	if err != nil {
		return fmt.Errorf("backfill day bars: %w", err)
	}
	n := 0
	for symbol, bars := range multi {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		for _, b := range bars {
			h(fromHistBar(symbol, b))
			n++
		}
	}
	log.Printf("[feed] backfilled %d bars across %d symbols for day %s", n, len(symbols), day.DayID)
	return nil
}

func fromStreamBar(b stream.Bar) model.Bar {
	return model.Bar{
		Symbol: strings.ToUpper(b.Symbol),
		TS:     b.Timestamp.UTC().Unix(),
		O:      b.Open,
		H:      b.High,
		L:      b.Low,
		C:      b.Close,
		V:      int64(b.Volume),
	}
}

func fromHistBar(symbol string, b marketdata.Bar) model.Bar {
	return model.Bar{
		Symbol: strings.ToUpper(symbol),
		TS:     b.Timestamp.UTC().Unix(),
		O:      b.Open,
		H:      b.High,
		L:      b.Low,
		C:      b.Close,
		V:      int64(b.Volume),
	}
}
