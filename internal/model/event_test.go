package model

import (
	"encoding/json"
	"math"
	"testing"
	"time"
)

func TestCandleColor(t *testing.T) {
	cases := []struct {
		name string
		o, c float64
		want string
	}{
		{"green", 10.0, 10.5, CandleGreen},
		{"red", 10.0, 9.5, CandleRed},
		{"exact doji", 10.0, 10.0, CandleDoji},
		{"inside band", 100.0, 100.005, CandleDoji},
		{"just outside band", 100.0, 100.02, CandleGreen},
		{"zero open zero close", 0, 0, CandleDoji},
	}
	for _, tc := range cases {
		if got := candleColor(tc.o, tc.c); got != tc.want {
			t.Errorf("%s: candleColor(%v, %v) = %s, want %s", tc.name, tc.o, tc.c, got, tc.want)
		}
	}
}

func TestEventWireComputedFields(t *testing.T) {
	now := time.Date(2026, 3, 2, 15, 30, 0, 0, time.UTC)
	ev := TriggerEvent{
		ID:          "11111111-1111-1111-1111-111111111111",
		Symbol:      "AAPL",
		TriggeredAt: now.Add(-90 * time.Second),
		ReasonTags:  []string{"RVOL_1M_THR", "UP_1M"},
		O:           100.0,
		H:           103.0,
		L:           99.5,
		C:           102.0,
		V:           250000,
		LastPrice:   102.0,
		HOD:         103.0,
	}
	w := ev.Wire(now)

	if w.CandleColor != CandleGreen {
		t.Errorf("candle color = %s, want GREEN", w.CandleColor)
	}
	if w.CandlePct == nil || math.Abs(*w.CandlePct-2.0) > 1e-9 {
		t.Errorf("candle pct = %v, want 2.0", w.CandlePct)
	}
	wantDist := (103.0 - 102.0) / 102.0 * 100
	if w.HODDistancePct == nil || math.Abs(*w.HODDistancePct-wantDist) > 1e-9 {
		t.Errorf("hod distance = %v, want %v", w.HODDistancePct, wantDist)
	}
	if w.TriggerAgeSeconds != 90 {
		t.Errorf("trigger age = %d, want 90", w.TriggerAgeSeconds)
	}
}

func TestEventWireEdgeCases(t *testing.T) {
	now := time.Now().UTC()

	// Zero open: candle_pct must be omitted, not Inf.
	ev := TriggerEvent{O: 0, C: 1, TriggeredAt: now.Add(time.Minute)}
	w := ev.Wire(now)
	if w.CandlePct != nil {
		t.Errorf("candle pct with zero open = %v, want nil", *w.CandlePct)
	}
	// Future trigger time clamps age to zero.
	if w.TriggerAgeSeconds != 0 {
		t.Errorf("trigger age = %d, want 0", w.TriggerAgeSeconds)
	}

	// Missing last price falls back to the close for hod distance.
	ev2 := TriggerEvent{C: 50, HOD: 51, TriggeredAt: now}
	w2 := ev2.Wire(now)
	if w2.HODDistancePct == nil || math.Abs(*w2.HODDistancePct-2.0) > 1e-9 {
		t.Errorf("hod distance with fallback = %v, want 2.0", w2.HODDistancePct)
	}

	// Zero close and last price: hod distance omitted.
	ev3 := TriggerEvent{TriggeredAt: now}
	if w3 := ev3.Wire(now); w3.HODDistancePct != nil {
		t.Errorf("hod distance with zero price = %v, want nil", *w3.HODDistancePct)
	}
}

func TestEventWireJSONShape(t *testing.T) {
	now := time.Now().UTC()
	ev := TriggerEvent{
		ID:             "id-1",
		Symbol:         "TSLA",
		TriggeredAt:    now,
		O:              10, H: 11, L: 9.9, C: 10.5, V: 1000,
		LastPrice:      10.5,
		ConfigSnapshot: map[string]any{"test": true},
	}
	raw, err := json.Marshal(ev.Wire(now))
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	var m map[string]any
	if err := json.Unmarshal(raw, &m); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	for _, key := range []string{
		"id", "symbol", "triggered_at", "reason_tags", "o", "h", "l", "c", "v",
		"last_price", "vol_1m", "vol_5m", "avg_vol_1m_lookback", "rvol_1m",
		"rvol_5m", "pct_change_1m", "pct_change_5m", "hod", "broke_hod",
		"score", "config_snapshot", "candle_color", "candle_pct",
		"hod_distance_pct", "trigger_age_seconds",
	} {
		if _, ok := m[key]; !ok {
			t.Errorf("wire JSON missing key %q", key)
		}
	}
	if _, nested := m["TriggerEvent"]; nested {
		t.Error("event fields must marshal flat, found nested TriggerEvent")
	}
	if tags, ok := m["reason_tags"].([]any); !ok || tags == nil {
		t.Errorf("reason_tags = %v, want empty array not null", m["reason_tags"])
	}
}
