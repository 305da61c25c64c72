package model

import (
	"math"
	"time"
)

// Candle color labels used on the trigger wire format.
const (
	CandleGreen = "GREEN"
	CandleRed   = "RED"
	CandleDoji  = "DOJI"
)

// Reason tags attached to trigger events. The _THR tags mark crossed
// thresholds; the rest are informational.
const (
	TagRvol1mThr = "RVOL_1M_THR"
	TagRvol5mThr = "RVOL_5M_THR"
	TagPct1mThr  = "PCT_1M_THR"
	TagPct5mThr  = "PCT_5M_THR"
	TagHODBreak  = "HOD_BREAK"
	TagRvol1m    = "RVOL_1M"
	TagRvol5m    = "RVOL_5M"
	TagUp1m      = "UP_1M"
)

// TriggerEvent is one ignition detection, immutable once appended.
// It snapshots the triggering bar, the computed metrics and the config
// that was active at trigger time.
type TriggerEvent struct {
	ID          string    `json:"id"`
	Symbol      string    `json:"symbol"`
	TriggeredAt time.Time `json:"triggered_at"`
	ReasonTags  []string  `json:"reason_tags"`

	O float64 `json:"o"`
	H float64 `json:"h"`
	L float64 `json:"l"`
	C float64 `json:"c"`
	V int64   `json:"v"`

	LastPrice        float64 `json:"last_price"`
	Vol1m            int64   `json:"vol_1m"`
	Vol5m            int64   `json:"vol_5m"`
	AvgVol1mLookback float64 `json:"avg_vol_1m_lookback"`
	Rvol1m           float64 `json:"rvol_1m"`
	Rvol5m           float64 `json:"rvol_5m"`
	PctChange1m      float64 `json:"pct_change_1m"`
	PctChange5m      float64 `json:"pct_change_5m"`
	HOD              float64 `json:"hod"`
	BrokeHOD         bool    `json:"broke_hod"`
	Score            float64 `json:"score"`

	ConfigSnapshot map[string]any `json:"config_snapshot"`
}

// HasTag reports whether the event carries the given reason tag.
func (e *TriggerEvent) HasTag(tag string) bool {
	for _, t := range e.ReasonTags {
		if t == tag {
			return true
		}
	}
	return false
}

// EventWire is the REST and websocket representation of a trigger event.
// The embedded event fields stay flat; the extra fields are display values
// computed at serialization time, not stored.
type EventWire struct {
	TriggerEvent
	CandleColor       string   `json:"candle_color"`
	CandlePct         *float64 `json:"candle_pct"`
	HODDistancePct    *float64 `json:"hod_distance_pct"`
	TriggerAgeSeconds int64    `json:"trigger_age_seconds"`
}

// Wire builds the wire form of the event as of now.
func (e *TriggerEvent) Wire(now time.Time) EventWire {
	w := EventWire{
		TriggerEvent: *e,
		CandleColor:  candleColor(e.O, e.C),
	}
	if w.ReasonTags == nil {
		w.ReasonTags = []string{}
	}
	if math.Abs(e.O) >= 1e-9 {
		pct := (e.C - e.O) / e.O * 100
		w.CandlePct = &pct
	}
	last := e.LastPrice
	if last == 0 {
		last = e.C
	}
	if math.Abs(last) >= 1e-9 {
		dist := (e.HOD - last) / last * 100
		w.HODDistancePct = &dist
	}
	if age := int64(now.Sub(e.TriggeredAt).Seconds()); age > 0 {
		w.TriggerAgeSeconds = age
	}
	return w
}

// candleColor classifies a bar body. A body inside the doji band
// (0.01% of the open, floored at 1e-8) counts as neither green nor red.
func candleColor(o, c float64) string {
	band := math.Max(math.Abs(o)*1e-4, 1e-8)
	switch {
	case math.Abs(c-o) <= band:
		return CandleDoji
	case c > o:
		return CandleGreen
	default:
		return CandleRed
	}
}

// Hot5Item is one row of the live hotlist frame pushed each engine tick.
type Hot5Item struct {
	Symbol         string   `json:"symbol"`
	Score          float64  `json:"score"`
	LastPrice      float64  `json:"last_price"`
	PctChange1m    float64  `json:"pct_change_1m"`
	PctChange5m    float64  `json:"pct_change_5m"`
	Rvol1m         float64  `json:"rvol_1m"`
	Rvol5m         float64  `json:"rvol_5m"`
	Vol1m          int64    `json:"vol_1m"`
	Vol5m          int64    `json:"vol_5m"`
	HOD            float64  `json:"hod"`
	HODDistancePct *float64 `json:"hod_distance_pct"`
	BrokeHOD       bool     `json:"broke_hod"`
	BarTS          int64    `json:"bar_ts"`
	ReasonTags     []string `json:"reason_tags"`
}
