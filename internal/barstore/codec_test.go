package barstore

import (
	"strings"
	"testing"
	"time"

	"ignition-scanner/internal/model"
)

func TestBarCodecRoundTrip(t *testing.T) {
	bar := model.Bar{
		Symbol: "AAPL",
		TS:     time.Date(2026, 3, 2, 15, 4, 0, 0, time.UTC).Unix(),
		O:      101.5, H: 102.25, L: 101.4, C: 102.0, V: 150000,
	}
	raw := encodeBar(bar)
	if !strings.Contains(string(raw), `"ts":"2026-03-02T15:04:00Z"`) {
		t.Fatalf("bar record must carry ISO-8601 ts, got %s", raw)
	}

	got, err := decodeBar("AAPL", string(raw))
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if got != bar {
		t.Errorf("round trip mismatch:\n got %+v\nwant %+v", got, bar)
	}
}

func TestDecodeBarNumericTS(t *testing.T) {
	got, err := decodeBar("TSLA", `{"ts":1767366240,"o":1,"h":2,"l":0.5,"c":1.5,"v":42}`)
	if err != nil {
		t.Fatalf("decode numeric ts: %v", err)
	}
	if got.TS != 1767366240 || got.V != 42 {
		t.Errorf("got %+v", got)
	}
}

func TestDecodeBarMalformed(t *testing.T) {
	for _, raw := range []string{
		"not json",
		`{"o":1,"h":2}`,
		`{"ts":true,"o":1}`,
		`{"ts":"soon","o":1}`,
	} {
		if _, err := decodeBar("X", raw); err == nil {
			t.Errorf("decodeBar(%q) expected error", raw)
		}
	}
}

func TestDecodeRowsOrderAndSkip(t *testing.T) {
	// Newest-first input, middle row malformed.
	rows := []string{
		`{"ts":"2026-03-02T15:06:00Z","o":3,"h":3,"l":3,"c":3,"v":3}`,
		`garbage`,
		`{"ts":"2026-03-02T15:04:00Z","o":1,"h":1,"l":1,"c":1,"v":1}`,
	}
	bars := decodeRows("ABC", rows)
	if len(bars) != 2 {
		t.Fatalf("got %d bars, want 2", len(bars))
	}
	if bars[0].V != 1 || bars[1].V != 3 {
		t.Errorf("rows not reversed to oldest-first: %+v", bars)
	}
	if bars[0].TS >= bars[1].TS {
		t.Errorf("timestamps not ascending: %d, %d", bars[0].TS, bars[1].TS)
	}
}

func TestHODCodecRoundTrip(t *testing.T) {
	prev := 101.0
	h := model.HOD{
		High:    102.5,
		PrevHOD: &prev,
		TS:      time.Date(2026, 3, 2, 15, 4, 0, 0, time.UTC).Unix(),
	}
	raw := encodeHOD(h)
	if !strings.Contains(string(raw), `"prev_hod":101`) {
		t.Fatalf("hod record missing prev_hod: %s", raw)
	}
	got, err := decodeHOD(string(raw))
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if got.High != h.High || got.TS != h.TS || got.PrevHOD == nil || *got.PrevHOD != prev {
		t.Errorf("round trip mismatch: %+v", got)
	}

	// First-bar marker has no prev.
	raw = encodeHOD(model.HOD{High: 10, TS: h.TS})
	got, err = decodeHOD(string(raw))
	if err != nil {
		t.Fatalf("decode no-prev: %v", err)
	}
	if got.PrevHOD != nil {
		t.Errorf("prev_hod = %v, want nil", *got.PrevHOD)
	}
}
