package engine

import (
	"reflect"
	"testing"
	"time"

	"ignition-scanner/internal/model"
)

// gateMetrics builds a Metrics literal for rule-gate tests; the bar closes
// green unless changed by the case.
func gateMetrics(vol1m, rvol1, rvol5, pct1, pct5 float64, broke bool) *Metrics {
	return &Metrics{
		Symbol:      "AAPL",
		Bar:         model.Bar{O: 10.0, H: 10.25, L: 10.0, C: 10.20, V: int64(vol1m)},
		Vol1m:       vol1m,
		Rvol1m:      rvol1,
		Rvol5m:      rvol5,
		PctChange1m: pct1,
		PctChange5m: pct5,
		BrokeHOD:    broke,
	}
}

func TestShouldTriggerGates(t *testing.T) {
	cases := []struct {
		name string
		m    *Metrics
		mut  func(*model.ScannerConfig)
		want bool
		tags []string
	}{
		{
			name: "volume floor",
			m:    gateMetrics(49999, 10, 10, 2, 3, false),
			want: false,
		},
		{
			name: "rvol 1m alone",
			m:    gateMetrics(60000, 4.5, 0, 1.0, 0, false),
			want: true,
			tags: []string{model.TagRvol1mThr, model.TagPct1mThr},
		},
		{
			name: "rvol 5m alone",
			m:    gateMetrics(60000, 1.0, 3.0, 0, 2.5, false),
			want: true,
			tags: []string{model.TagRvol5mThr, model.TagPct5mThr},
		},
		{
			name: "both rvol below",
			m:    gateMetrics(60000, 3.9, 2.4, 2, 3, false),
			want: false,
		},
		{
			name: "price confirmation missing",
			m:    gateMetrics(60000, 5, 3, 0.5, 1.0, false),
			want: false,
		},
		{
			name: "hod break required and missing",
			m:    gateMetrics(60000, 5, 3, 2, 3, false),
			mut:  func(c *model.ScannerConfig) { c.RequireHODBreak = true },
			want: false,
		},
		{
			name: "hod break required and present",
			m:    gateMetrics(60000, 5, 3, 2, 3, true),
			mut:  func(c *model.ScannerConfig) { c.RequireHODBreak = true },
			want: true,
			tags: []string{model.TagRvol1mThr, model.TagRvol5mThr, model.TagPct1mThr, model.TagPct5mThr, model.TagHODBreak},
		},
		{
			name: "red candle rejected",
			m: func() *Metrics {
				m := gateMetrics(60000, 5, 3, 2, 3, false)
				m.Bar.C = m.Bar.O - 0.05
				return m
			}(),
			mut:  func(c *model.ScannerConfig) { c.RequireGreenCandle = true },
			want: false,
		},
		{
			name: "red candle allowed by default",
			m: func() *Metrics {
				m := gateMetrics(60000, 5, 3, 2, 3, false)
				m.Bar.C = m.Bar.O - 0.05
				return m
			}(),
			want: true,
			tags: []string{model.TagRvol1mThr, model.TagRvol5mThr, model.TagPct1mThr, model.TagPct5mThr},
		},
	}

	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			cfg := model.DefaultScannerConfig()
			if c.mut != nil {
				c.mut(&cfg)
			}
			got, tags := ShouldTrigger(c.m, cfg)
			if got != c.want {
				t.Fatalf("ShouldTrigger = %v, want %v", got, c.want)
			}
			if c.want && !reflect.DeepEqual(tags, c.tags) {
				t.Fatalf("tags = %v, want %v", tags, c.tags)
			}
		})
	}
}

func TestAllowTriggerCooldown(t *testing.T) {
	now := time.Date(2026, 2, 25, 15, 4, 0, 0, time.UTC)
	m := &Metrics{HOD: 10.5}

	event := func(age time.Duration, hod float64) *model.TriggerEvent {
		return &model.TriggerEvent{Symbol: "AAPL", TriggeredAt: now.Add(-age), HOD: hod}
	}

	cases := []struct {
		name    string
		last    *model.TriggerEvent
		realert bool
		want    bool
		reason  string
	}{
		{name: "no prior event", last: nil, realert: true, want: true, reason: ReasonNoPriorEvent},
		{name: "cooldown expired", last: event(20*time.Minute, 10.5), realert: true, want: true, reason: ReasonCooldownExpired},
		{name: "inside cooldown", last: event(5*time.Minute, 10.5), realert: true, want: false, reason: ReasonCooldownActive},
		{name: "exact boundary still active", last: event(15*time.Minute, 10.5), realert: true, want: false, reason: ReasonCooldownActive},
		{name: "new hod realert", last: event(5*time.Minute, 10.4), realert: true, want: true, reason: ReasonNewHOD},
		{name: "new hod realert disabled", last: event(5*time.Minute, 10.4), realert: false, want: false, reason: ReasonCooldownActive},
	}

	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			cfg := model.DefaultScannerConfig()
			cfg.RealertOnNewHOD = c.realert
			got, reason := AllowTrigger(m, cfg, c.last, now)
			if got != c.want || reason != c.reason {
				t.Fatalf("AllowTrigger = (%v, %s), want (%v, %s)", got, reason, c.want, c.reason)
			}
		})
	}
}

func TestDedupeTags(t *testing.T) {
	in := []string{"RVOL_1M_THR", "HOD_BREAK", "RVOL_1M_THR", "", "UP_1M", "HOD_BREAK"}
	want := []string{"RVOL_1M_THR", "HOD_BREAK", "UP_1M"}
	if got := dedupeTags(in); !reflect.DeepEqual(got, want) {
		t.Fatalf("dedupeTags = %v, want %v", got, want)
	}
}
