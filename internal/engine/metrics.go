package engine

import (
	"math"

	"ignition-scanner/internal/model"
)

const epsilon = 1e-9

// Baseline caps: the 1m volume baseline averages at most 45 bars, the 5m
// baseline's rolling sums span at most 90. A smaller configured lookback
// shrinks both.
const (
	baseline1mCap = 45
	baseline5mCap = 90
	minLookback   = 5
)

// Metrics holds the per-symbol computations for the newest bar of a pass.
type Metrics struct {
	Symbol           string
	Bar              model.Bar
	Vol1m            float64
	Vol5m            float64
	AvgVol1mLookback float64
	Rvol1m           float64
	Rvol5m           float64
	PctChange1m      float64
	PctChange5m      float64
	HOD              float64
	BrokeHOD         bool
	Score            float64
	ReasonTags       []string
}

// ComputeMetrics evaluates the newest bar of an oldest-first window.
// Fewer than 6 bars returns nil: the 5-minute change needs a bar from 5
// minutes back. hodKnown marks whether the high-of-day record resolved;
// without it broke_hod stays false.
func ComputeMetrics(symbol string, bars []model.Bar, hod model.HOD, hodKnown bool, cfg model.ScannerConfig) *Metrics {
	if len(bars) < 6 {
		return nil
	}

	last := bars[len(bars)-1]
	prev := bars[len(bars)-2]
	last5 := bars[len(bars)-5:]
	prev5 := bars[len(bars)-6]

	vol1m := float64(last.V)
	var vol5m float64
	for _, b := range last5 {
		vol5m += float64(b.V)
	}

	// Both baselines exclude the newest bar so an ignition bar does not
	// inflate its own reference.
	lb1 := clampLookback(cfg.RvolLookbackMinutes, baseline1mCap, len(bars)-1)
	window1 := bars[len(bars)-1-lb1 : len(bars)-1]
	var sum1 float64
	for _, b := range window1 {
		sum1 += float64(b.V)
	}
	avgVol1m := sum1 / float64(max(len(window1), 1))
	rvol1m := vol1m / math.Max(avgVol1m, 1.0)

	lb5 := clampLookback(cfg.RvolLookbackMinutes, baseline5mCap, len(bars)-1)
	window5 := bars[len(bars)-1-lb5 : len(bars)-1]
	avgVol5m := rollingSumMean(window5, 5)
	if avgVol5m == 0 {
		avgVol5m = avgVol1m * 5
	}
	rvol5m := vol5m / math.Max(avgVol5m, 1.0)

	pct1 := (last.C - prev.C) / math.Max(prev.C, epsilon) * 100
	pct5 := (last.C - prev5.C) / math.Max(prev5.C, epsilon) * 100

	hodHigh := last.H
	brokeHOD := false
	if hodKnown {
		hodHigh = math.Max(hod.High, last.H)
		if hod.PrevHOD != nil {
			brokeHOD = last.H > *hod.PrevHOD
		}
	}

	score := math.Min(rvol1m, 20)*5 + math.Min(math.Max(pct1, 0), 10)*4
	if brokeHOD {
		score += 20
	}

	var tags []string
	if rvol1m >= 1 {
		tags = append(tags, model.TagRvol1m)
	}
	if rvol5m >= 1 {
		tags = append(tags, model.TagRvol5m)
	}
	if pct1 >= 0 {
		tags = append(tags, model.TagUp1m)
	}
	if brokeHOD {
		tags = append(tags, model.TagHODBreak)
	}

	return &Metrics{
		Symbol:           symbol,
		Bar:              last,
		Vol1m:            vol1m,
		Vol5m:            vol5m,
		AvgVol1mLookback: avgVol1m,
		Rvol1m:           rvol1m,
		Rvol5m:           rvol5m,
		PctChange1m:      pct1,
		PctChange5m:      pct5,
		HOD:              hodHigh,
		BrokeHOD:         brokeHOD,
		Score:            score,
		ReasonTags:       tags,
	}
}

func clampLookback(lookback, capBars, avail int) int {
	lb := max(lookback, minLookback)
	if lb > capBars {
		lb = capBars
	}
	if lb > avail {
		lb = avail
	}
	return lb
}

// rollingSumMean averages the sums of every w-bar window in bars. Returns
// 0 when bars is shorter than w.
func rollingSumMean(bars []model.Bar, w int) float64 {
	if len(bars) < w {
		return 0
	}
	var window float64
	for i := 0; i < w; i++ {
		window += float64(bars[i].V)
	}
	total := window
	count := 1
	for i := w; i < len(bars); i++ {
		window += float64(bars[i].V) - float64(bars[i-w].V)
		total += window
		count++
	}
	return total / float64(count)
}

// Hot5Item projects the metrics into a hotlist row.
func (m *Metrics) Hot5Item() model.Hot5Item {
	item := model.Hot5Item{
		Symbol:      m.Symbol,
		Score:       m.Score,
		LastPrice:   m.Bar.C,
		PctChange1m: m.PctChange1m,
		PctChange5m: m.PctChange5m,
		Rvol1m:      m.Rvol1m,
		Rvol5m:      m.Rvol5m,
		Vol1m:       int64(m.Vol1m),
		Vol5m:       int64(m.Vol5m),
		HOD:         m.HOD,
		BrokeHOD:    m.BrokeHOD,
		BarTS:       m.Bar.TS,
		ReasonTags:  append([]string(nil), m.ReasonTags...),
	}
	if last := m.Bar.C; math.Abs(last) >= epsilon {
		d := (m.HOD - last) / last * 100
		item.HODDistancePct = &d
	}
	return item
}
