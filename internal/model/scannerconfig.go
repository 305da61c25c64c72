package model

import "time"

// ScannerConfig is the singleton rule-engine configuration (row id 1).
// Timeframe is stored for forward compatibility; only "1m" is honored.
type ScannerConfig struct {
	ID                  int64     `json:"id"`
	Enabled             bool      `json:"enabled"`
	Timeframe           string    `json:"timeframe"`
	MinVol1m            int64     `json:"min_vol_1m"`
	RvolLookbackMinutes int       `json:"rvol_lookback_minutes"`
	Rvol1mThreshold     float64   `json:"rvol_1m_threshold"`
	Rvol5mThreshold     float64   `json:"rvol_5m_threshold"`
	MinPctChange1m      float64   `json:"min_pct_change_1m"`
	MinPctChange5m      float64   `json:"min_pct_change_5m"`
	RequireGreenCandle  bool      `json:"require_green_candle"`
	RequireHODBreak     bool      `json:"require_hod_break"`
	CooldownMinutes     int       `json:"cooldown_minutes"`
	RealertOnNewHOD     bool      `json:"realert_on_new_hod"`
	UpdatedAt           time.Time `json:"updated_at"`
}

// DefaultScannerConfig returns the configuration used until an admin edits it.
func DefaultScannerConfig() ScannerConfig {
	return ScannerConfig{
		ID:                  1,
		Enabled:             false,
		Timeframe:           "1m",
		MinVol1m:            50000,
		RvolLookbackMinutes: 180,
		Rvol1mThreshold:     4.0,
		Rvol5mThreshold:     2.5,
		MinPctChange1m:      0.8,
		MinPctChange5m:      2.0,
		RequireGreenCandle:  false,
		RequireHODBreak:     false,
		CooldownMinutes:     15,
		RealertOnNewHOD:     true,
	}
}

// Validate checks range constraints on the tunables.
func (c *ScannerConfig) Validate() error {
	if c.Timeframe != "1m" {
		return Verr("timeframe", "only \"1m\" is supported")
	}
	if c.MinVol1m < 0 {
		return Verr("min_vol_1m", "must be non-negative")
	}
	if c.RvolLookbackMinutes < 0 {
		return Verr("rvol_lookback_minutes", "must be non-negative")
	}
	if c.Rvol1mThreshold < 0 {
		return Verr("rvol_1m_threshold", "must be non-negative")
	}
	if c.Rvol5mThreshold < 0 {
		return Verr("rvol_5m_threshold", "must be non-negative")
	}
	if c.CooldownMinutes < 0 {
		return Verr("cooldown_minutes", "must be non-negative")
	}
	return nil
}

// Cooldown returns the cooldown window as a duration.
func (c *ScannerConfig) Cooldown() time.Duration {
	return time.Duration(c.CooldownMinutes) * time.Minute
}

// Snapshot returns the tunables map embedded into trigger events.
func (c *ScannerConfig) Snapshot() map[string]any {
	return map[string]any{
		"enabled":               c.Enabled,
		"timeframe":             c.Timeframe,
		"min_vol_1m":            c.MinVol1m,
		"rvol_lookback_minutes": c.RvolLookbackMinutes,
		"rvol_1m_threshold":     c.Rvol1mThreshold,
		"rvol_5m_threshold":     c.Rvol5mThreshold,
		"min_pct_change_1m":     c.MinPctChange1m,
		"min_pct_change_5m":     c.MinPctChange5m,
		"require_green_candle":  c.RequireGreenCandle,
		"require_hod_break":     c.RequireHODBreak,
		"cooldown_minutes":      c.CooldownMinutes,
		"realert_on_new_hod":    c.RealertOnNewHOD,
	}
}
