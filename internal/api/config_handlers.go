package api

import (
	"encoding/json"
	"net/http"

	"ignition-scanner/internal/model"
)

type configResponse struct {
	model.ScannerConfig
	CanEdit bool `json:"can_edit"`
}

func (s *Server) handleGetConfig(w http.ResponseWriter, r *http.Request, user model.User) {
	cfg, err := s.configs.GetConfig(r.Context())
	if err != nil {
		writeStoreError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, configResponse{ScannerConfig: cfg, CanEdit: user.IsAdmin(s.adminEmail)})
}

// configPatch carries the editable tunables as pointers so PATCH can
// change a subset without clobbering the rest.
type configPatch struct {
	Enabled             *bool    `json:"enabled"`
	Timeframe           *string  `json:"timeframe"`
	MinVol1m            *int64   `json:"min_vol_1m"`
	RvolLookbackMinutes *int     `json:"rvol_lookback_minutes"`
	Rvol1mThreshold     *float64 `json:"rvol_1m_threshold"`
	Rvol5mThreshold     *float64 `json:"rvol_5m_threshold"`
	MinPctChange1m      *float64 `json:"min_pct_change_1m"`
	MinPctChange5m      *float64 `json:"min_pct_change_5m"`
	RequireGreenCandle  *bool    `json:"require_green_candle"`
	RequireHODBreak     *bool    `json:"require_hod_break"`
	CooldownMinutes     *int     `json:"cooldown_minutes"`
	RealertOnNewHOD     *bool    `json:"realert_on_new_hod"`
}

func (p *configPatch) apply(cfg *model.ScannerConfig) {
	if p.Enabled != nil {
		cfg.Enabled = *p.Enabled
	}
	if p.Timeframe != nil {
		cfg.Timeframe = *p.Timeframe
	}
	if p.MinVol1m != nil {
		cfg.MinVol1m = *p.MinVol1m
	}
	if p.RvolLookbackMinutes != nil {
		cfg.RvolLookbackMinutes = *p.RvolLookbackMinutes
	}
	if p.Rvol1mThreshold != nil {
		cfg.Rvol1mThreshold = *p.Rvol1mThreshold
	}
	if p.Rvol5mThreshold != nil {
		cfg.Rvol5mThreshold = *p.Rvol5mThreshold
	}
	if p.MinPctChange1m != nil {
		cfg.MinPctChange1m = *p.MinPctChange1m
	}
	if p.MinPctChange5m != nil {
		cfg.MinPctChange5m = *p.MinPctChange5m
	}
	if p.RequireGreenCandle != nil {
		cfg.RequireGreenCandle = *p.RequireGreenCandle
	}
	if p.RequireHODBreak != nil {
		cfg.RequireHODBreak = *p.RequireHODBreak
	}
	if p.CooldownMinutes != nil {
		cfg.CooldownMinutes = *p.CooldownMinutes
	}
	if p.RealertOnNewHOD != nil {
		cfg.RealertOnNewHOD = *p.RealertOnNewHOD
	}
}

func (s *Server) handleUpdateConfig(w http.ResponseWriter, r *http.Request, user model.User) {
	var patch configPatch
	if err := json.NewDecoder(r.Body).Decode(&patch); err != nil {
		writeDetail(w, http.StatusBadRequest, "invalid JSON body")
		return
	}

	cfg, err := s.configs.GetConfig(r.Context())
	if err != nil {
		writeStoreError(w, err)
		return
	}
	patch.apply(&cfg)

	updated, err := s.configs.UpdateConfig(r.Context(), cfg)
	if err != nil {
		writeStoreError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, configResponse{ScannerConfig: updated, CanEdit: true})
}
