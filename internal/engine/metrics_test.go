package engine

import (
	"math"
	"testing"

	"ignition-scanner/internal/model"
)

const tsBase = int64(1772026200)

// barRun builds n identical flat bars spaced one minute apart.
func barRun(sym string, n int, price float64, vol, startTS int64) []model.Bar {
	out := make([]model.Bar, 0, n)
	for i := 0; i < n; i++ {
		out = append(out, model.Bar{
			Symbol: sym,
			TS:     startTS + int64(i)*60,
			O:      price,
			H:      price,
			L:      price,
			C:      price,
			V:      vol,
		})
	}
	return out
}

func ignitionBar(sym string, ts int64) model.Bar {
	return model.Bar{Symbol: sym, TS: ts, O: 10.0, H: 10.25, L: 10.0, C: 10.20, V: 200000}
}

func approx(t *testing.T, name string, got, want float64) {
	t.Helper()
	if math.Abs(got-want) > 1e-6 {
		t.Fatalf("%s = %v, want %v", name, got, want)
	}
}

func hasTag(tags []string, tag string) bool {
	for _, t := range tags {
		if t == tag {
			return true
		}
	}
	return false
}

func TestComputeMetricsNeedsSixBars(t *testing.T) {
	bars := barRun("AAPL", 5, 10.0, 1000, tsBase)
	if m := ComputeMetrics("AAPL", bars, model.HOD{}, false, model.DefaultScannerConfig()); m != nil {
		t.Fatalf("expected nil metrics for %d bars, got %+v", len(bars), m)
	}
}

func TestComputeMetricsIgnition(t *testing.T) {
	bars := barRun("AAPL", 7, 10.0, 1000, tsBase)
	last := ignitionBar("AAPL", tsBase+7*60)
	bars = append(bars, last)

	prev := 10.0
	hod := model.HOD{High: 10.25, PrevHOD: &prev, TS: last.TS}

	m := ComputeMetrics("AAPL", bars, hod, true, model.DefaultScannerConfig())
	if m == nil {
		t.Fatal("expected metrics")
	}

	approx(t, "Vol1m", m.Vol1m, 200000)
	approx(t, "Vol5m", m.Vol5m, 204000)
	approx(t, "AvgVol1mLookback", m.AvgVol1mLookback, 1000)
	approx(t, "Rvol1m", m.Rvol1m, 200)
	// 5m baseline: rolling 5-bar sums over the 7 prior bars, each 5000.
	approx(t, "Rvol5m", m.Rvol5m, 204000.0/5000.0)
	approx(t, "PctChange1m", m.PctChange1m, 2.0)
	approx(t, "PctChange5m", m.PctChange5m, 2.0)
	approx(t, "HOD", m.HOD, 10.25)
	if !m.BrokeHOD {
		t.Fatal("expected BrokeHOD")
	}
	// 20*5 for capped rvol, 2*4 for pct, 20 for the break.
	approx(t, "Score", m.Score, 128)

	for _, tag := range []string{model.TagRvol1m, model.TagRvol5m, model.TagUp1m, model.TagHODBreak} {
		if !hasTag(m.ReasonTags, tag) {
			t.Fatalf("missing tag %s in %v", tag, m.ReasonTags)
		}
	}
}

func TestComputeMetricsHODUnknown(t *testing.T) {
	bars := barRun("AAPL", 7, 10.0, 1000, tsBase)
	last := ignitionBar("AAPL", tsBase+7*60)
	bars = append(bars, last)

	m := ComputeMetrics("AAPL", bars, model.HOD{}, false, model.DefaultScannerConfig())
	if m == nil {
		t.Fatal("expected metrics")
	}
	approx(t, "HOD", m.HOD, last.H)
	if m.BrokeHOD {
		t.Fatal("BrokeHOD must stay false without a resolved marker")
	}
	approx(t, "Score", m.Score, 108)
	if hasTag(m.ReasonTags, model.TagHODBreak) {
		t.Fatalf("unexpected HOD tag in %v", m.ReasonTags)
	}
}

func TestComputeMetricsNoPrevHOD(t *testing.T) {
	bars := barRun("AAPL", 7, 10.0, 1000, tsBase)
	bars = append(bars, ignitionBar("AAPL", tsBase+7*60))

	// The marker exists but no prior high was ever recorded.
	m := ComputeMetrics("AAPL", bars, model.HOD{High: 10.60, TS: tsBase + 7*60}, true, model.DefaultScannerConfig())
	if m == nil {
		t.Fatal("expected metrics")
	}
	if m.BrokeHOD {
		t.Fatal("BrokeHOD must stay false without prev_hod")
	}
	approx(t, "HOD", m.HOD, 10.60)
}

func TestClampLookback(t *testing.T) {
	cases := []struct {
		lookback, capBars, avail int
		want                     int
	}{
		{180, 45, 100, 45},
		{180, 90, 100, 90},
		{180, 45, 30, 30},
		{10, 45, 100, 10},
		{3, 45, 100, 5},
		{0, 45, 3, 3},
	}
	for _, c := range cases {
		if got := clampLookback(c.lookback, c.capBars, c.avail); got != c.want {
			t.Errorf("clampLookback(%d, %d, %d) = %d, want %d", c.lookback, c.capBars, c.avail, got, c.want)
		}
	}
}

func TestRollingSumMean(t *testing.T) {
	bars := make([]model.Bar, 7)
	for i := range bars {
		bars[i].V = int64(i + 1)
	}
	// Window sums 15, 20, 25.
	approx(t, "mean", rollingSumMean(bars, 5), 20)

	if got := rollingSumMean(bars[:4], 5); got != 0 {
		t.Fatalf("short input: got %v, want 0", got)
	}
}

func TestHot5ItemProjection(t *testing.T) {
	m := &Metrics{
		Symbol:      "AAPL",
		Bar:         model.Bar{TS: tsBase, C: 10.0},
		Vol1m:       200000,
		Vol5m:       204000,
		Rvol1m:      200,
		Rvol5m:      40.8,
		PctChange1m: 2.0,
		HOD:         10.5,
		Score:       42,
		ReasonTags:  []string{model.TagRvol1m},
	}

	item := m.Hot5Item()
	if item.Symbol != "AAPL" || item.BarTS != tsBase || item.Vol1m != 200000 {
		t.Fatalf("bad projection: %+v", item)
	}
	if item.HODDistancePct == nil {
		t.Fatal("expected hod distance")
	}
	approx(t, "HODDistancePct", *item.HODDistancePct, 5.0)

	m.Bar.C = 0
	if got := m.Hot5Item(); got.HODDistancePct != nil {
		t.Fatalf("zero close: expected nil hod distance, got %v", *got.HODDistancePct)
	}
}
