package engine

import (
	"time"

	"ignition-scanner/internal/model"
)

// Cooldown gate outcomes, logged with each decision.
const (
	ReasonNoPriorEvent    = "no_prior_event"
	ReasonCooldownExpired = "cooldown_expired"
	ReasonNewHOD          = "new_hod"
	ReasonCooldownActive  = "cooldown_active"
)

// ShouldTrigger applies the rule gate. On accept it returns the threshold
// tags explaining which conditions fired.
func ShouldTrigger(m *Metrics, cfg model.ScannerConfig) (bool, []string) {
	if m.Vol1m < float64(cfg.MinVol1m) {
		return false, nil
	}
	if m.Rvol1m < cfg.Rvol1mThreshold && m.Rvol5m < cfg.Rvol5mThreshold {
		return false, nil
	}

	priceOK := m.PctChange1m >= cfg.MinPctChange1m || m.PctChange5m >= cfg.MinPctChange5m
	if cfg.RequireHODBreak {
		priceOK = priceOK && m.BrokeHOD
	}
	if !priceOK {
		return false, nil
	}

	if cfg.RequireGreenCandle && m.Bar.C < m.Bar.O {
		return false, nil
	}

	var tags []string
	if m.Rvol1m >= cfg.Rvol1mThreshold {
		tags = append(tags, model.TagRvol1mThr)
	}
	if m.Rvol5m >= cfg.Rvol5mThreshold {
		tags = append(tags, model.TagRvol5mThr)
	}
	if m.PctChange1m >= cfg.MinPctChange1m {
		tags = append(tags, model.TagPct1mThr)
	}
	if m.PctChange5m >= cfg.MinPctChange5m {
		tags = append(tags, model.TagPct5mThr)
	}
	if m.BrokeHOD {
		tags = append(tags, model.TagHODBreak)
	}
	return true, tags
}

// AllowTrigger applies the cooldown gate against the symbol's most recent
// stored event (nil when the symbol never triggered). Inside the cooldown
// window a re-alert is allowed only on a strictly higher HOD, and only when
// configured.
func AllowTrigger(m *Metrics, cfg model.ScannerConfig, last *model.TriggerEvent, now time.Time) (bool, string) {
	if last == nil {
		return true, ReasonNoPriorEvent
	}
	if last.TriggeredAt.Before(now.Add(-cfg.Cooldown())) {
		return true, ReasonCooldownExpired
	}
	if cfg.RealertOnNewHOD && m.HOD > last.HOD {
		return true, ReasonNewHOD
	}
	return false, ReasonCooldownActive
}

// dedupeTags drops empty and repeated tags, keeping first-seen order.
func dedupeTags(tags []string) []string {
	out := make([]string, 0, len(tags))
	seen := make(map[string]struct{}, len(tags))
	for _, t := range tags {
		if t == "" {
			continue
		}
		if _, dup := seen[t]; dup {
			continue
		}
		seen[t] = struct{}{}
		out = append(out, t)
	}
	return out
}
