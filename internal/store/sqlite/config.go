package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"log"
	"time"

	"ignition-scanner/internal/model"
)

const configColumns = `enabled, timeframe, min_vol_1m, rvol_lookback_minutes,
	rvol_1m_threshold, rvol_5m_threshold, min_pct_change_1m, min_pct_change_5m,
	require_green_candle, require_hod_break, cooldown_minutes, realert_on_new_hod,
	updated_at`

// GetConfig returns the singleton config row, seeding the defaults on the
// first read of a fresh database.
func (s *Store) GetConfig(ctx context.Context) (model.ScannerConfig, error) {
	cfg := model.ScannerConfig{ID: 1}
	var updated int64
	err := s.db.QueryRowContext(ctx,
		`SELECT `+configColumns+` FROM scanner_config WHERE id = 1`,
	).Scan(
		&cfg.Enabled, &cfg.Timeframe, &cfg.MinVol1m, &cfg.RvolLookbackMinutes,
		&cfg.Rvol1mThreshold, &cfg.Rvol5mThreshold, &cfg.MinPctChange1m, &cfg.MinPctChange5m,
		&cfg.RequireGreenCandle, &cfg.RequireHODBreak, &cfg.CooldownMinutes, &cfg.RealertOnNewHOD,
		&updated,
	)
	if err == sql.ErrNoRows {
		return s.seedConfig(ctx)
	}
	if err != nil {
		return model.ScannerConfig{}, fmt.Errorf("sqlite read config: %w", err)
	}
	cfg.UpdatedAt = time.UnixMilli(updated).UTC()
	return cfg, nil
}

// UpdateConfig validates and persists cfg, bumping updated_at.
func (s *Store) UpdateConfig(ctx context.Context, cfg model.ScannerConfig) (model.ScannerConfig, error) {
	if err := cfg.Validate(); err != nil {
		return model.ScannerConfig{}, err
	}
	cfg.ID = 1
	cfg.UpdatedAt = time.Now().UTC().Truncate(time.Millisecond)
	if err := s.writeConfig(ctx, cfg); err != nil {
		return model.ScannerConfig{}, err
	}
	return cfg, nil
}

func (s *Store) seedConfig(ctx context.Context) (model.ScannerConfig, error) {
	cfg := model.DefaultScannerConfig()
	cfg.UpdatedAt = time.Now().UTC().Truncate(time.Millisecond)
	if err := s.writeConfig(ctx, cfg); err != nil {
		return model.ScannerConfig{}, err
	}
	log.Printf("[sqlite] seeded default scanner config")
	return cfg, nil
}

func (s *Store) writeConfig(ctx context.Context, cfg model.ScannerConfig) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO scanner_config (id, `+configColumns+`)
		VALUES (1, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			enabled               = excluded.enabled,
			timeframe             = excluded.timeframe,
			min_vol_1m            = excluded.min_vol_1m,
			rvol_lookback_minutes = excluded.rvol_lookback_minutes,
			rvol_1m_threshold     = excluded.rvol_1m_threshold,
			rvol_5m_threshold     = excluded.rvol_5m_threshold,
			min_pct_change_1m     = excluded.min_pct_change_1m,
			min_pct_change_5m     = excluded.min_pct_change_5m,
			require_green_candle  = excluded.require_green_candle,
			require_hod_break     = excluded.require_hod_break,
			cooldown_minutes      = excluded.cooldown_minutes,
			realert_on_new_hod    = excluded.realert_on_new_hod,
			updated_at            = excluded.updated_at
	`,
		cfg.Enabled, cfg.Timeframe, cfg.MinVol1m, cfg.RvolLookbackMinutes,
		cfg.Rvol1mThreshold, cfg.Rvol5mThreshold, cfg.MinPctChange1m, cfg.MinPctChange5m,
		cfg.RequireGreenCandle, cfg.RequireHODBreak, cfg.CooldownMinutes, cfg.RealertOnNewHOD,
		cfg.UpdatedAt.UnixMilli(),
	)
	if err != nil {
		return fmt.Errorf("sqlite write config: %w", err)
	}
	return nil
}
