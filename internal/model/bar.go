package model

import (
	"encoding/json"
	"time"
)

// Bar is a completed 1-minute OHLCV bar for a single symbol.
// TS is the bar start time in unix seconds (UTC, minute-aligned).
type Bar struct {
	Symbol string  `json:"symbol"`
	TS     int64   `json:"ts"`
	O      float64 `json:"o"`
	H      float64 `json:"h"`
	L      float64 `json:"l"`
	C      float64 `json:"c"`
	V      int64   `json:"v"`
}

// Time returns the bar start time in UTC.
func (b *Bar) Time() time.Time {
	return time.Unix(b.TS, 0).UTC()
}

// Green reports whether the bar closed at or above its open.
func (b *Bar) Green() bool {
	return b.C >= b.O
}

// JSON returns the JSON-encoded bar (ignoring errors for hot-path usage).
func (b *Bar) JSON() []byte {
	bs, _ := json.Marshal(b)
	return bs
}
