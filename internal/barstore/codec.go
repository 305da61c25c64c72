package barstore

import (
	"encoding/json"
	"fmt"
	"time"

	"ignition-scanner/internal/model"
)

// Cache wire forms. Timestamps are ISO-8601 UTC strings; decoding also
// accepts unix seconds so hand-injected records stay readable.

type barRecord struct {
	TS string  `json:"ts"`
	O  float64 `json:"o"`
	H  float64 `json:"h"`
	L  float64 `json:"l"`
	C  float64 `json:"c"`
	V  int64   `json:"v"`
}

func encodeBar(b model.Bar) []byte {
	raw, _ := json.Marshal(barRecord{
		TS: b.Time().Format(time.RFC3339),
		O:  b.O, H: b.H, L: b.L, C: b.C, V: b.V,
	})
	return raw
}

func decodeBar(symbol, raw string) (model.Bar, error) {
	var rec struct {
		TS any     `json:"ts"`
		O  float64 `json:"o"`
		H  float64 `json:"h"`
		L  float64 `json:"l"`
		C  float64 `json:"c"`
		V  int64   `json:"v"`
	}
	if err := json.Unmarshal([]byte(raw), &rec); err != nil {
		return model.Bar{}, fmt.Errorf("bar decode: %w", err)
	}
	ts, err := decodeTS(rec.TS)
	if err != nil {
		return model.Bar{}, fmt.Errorf("bar ts: %w", err)
	}
	return model.Bar{
		Symbol: symbol,
		TS:     ts,
		O:      rec.O, H: rec.H, L: rec.L, C: rec.C, V: rec.V,
	}, nil
}

type hodRecord struct {
	HOD     float64  `json:"hod"`
	PrevHOD *float64 `json:"prev_hod"`
	TS      string   `json:"ts"`
}

func encodeHOD(h model.HOD) []byte {
	raw, _ := json.Marshal(hodRecord{
		HOD:     h.High,
		PrevHOD: h.PrevHOD,
		TS:      time.Unix(h.TS, 0).UTC().Format(time.RFC3339),
	})
	return raw
}

func decodeHOD(raw string) (model.HOD, error) {
	var rec struct {
		HOD     float64  `json:"hod"`
		PrevHOD *float64 `json:"prev_hod"`
		TS      any      `json:"ts"`
	}
	if err := json.Unmarshal([]byte(raw), &rec); err != nil {
		return model.HOD{}, fmt.Errorf("hod decode: %w", err)
	}
	ts, err := decodeTS(rec.TS)
	if err != nil {
		return model.HOD{}, fmt.Errorf("hod ts: %w", err)
	}
	return model.HOD{High: rec.HOD, PrevHOD: rec.PrevHOD, TS: ts}, nil
}

func decodeTS(v any) (int64, error) {
	switch t := v.(type) {
	case string:
		parsed, err := time.Parse(time.RFC3339, t)
		if err != nil {
			return 0, err
		}
		return parsed.Unix(), nil
	case float64:
		return int64(t), nil
	default:
		return 0, fmt.Errorf("missing or unsupported ts %T", v)
	}
}
