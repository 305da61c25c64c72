package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"ignition-scanner/internal/model"
)

const settingsColumns = `user_id, follow_alerts, live_feed_enabled, cleared_until,
	pushover_enabled, pushover_user_key, pushover_device, pushover_sound,
	pushover_priority, notify_min_score, notify_only_hod_break, updated_at`

// GetSettings returns the user's settings, creating the defaults row on
// first access so the fan-out queries see every known user.
func (s *Store) GetSettings(ctx context.Context, userID int64) (model.UserScannerSettings, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+settingsColumns+` FROM user_scanner_settings WHERE user_id = ?`, userID)
	st, err := scanSettings(row)
	if err == sql.ErrNoRows {
		def := model.DefaultUserScannerSettings(userID)
		def.UpdatedAt = time.Now().UTC().Truncate(time.Millisecond)
		if err := s.writeSettings(ctx, def); err != nil {
			return model.UserScannerSettings{}, err
		}
		return def, nil
	}
	if err != nil {
		return model.UserScannerSettings{}, fmt.Errorf("sqlite read settings: %w", err)
	}
	return st, nil
}

// UpdateSettings validates and persists the settings row.
func (s *Store) UpdateSettings(ctx context.Context, st model.UserScannerSettings) (model.UserScannerSettings, error) {
	if err := st.Validate(); err != nil {
		return model.UserScannerSettings{}, err
	}
	st.UpdatedAt = time.Now().UTC().Truncate(time.Millisecond)
	if err := s.writeSettings(ctx, st); err != nil {
		return model.UserScannerSettings{}, err
	}
	return st, nil
}

// PushCandidates returns users eligible for push delivery. The per-event
// gates (clear mark, score, HOD filter) stay with the push worker.
func (s *Store) PushCandidates(ctx context.Context) ([]model.UserScannerSettings, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT `+settingsColumns+` FROM user_scanner_settings
		WHERE follow_alerts = 1 AND pushover_enabled = 1 AND pushover_user_key != ''
		ORDER BY user_id ASC
	`)
	if err != nil {
		return nil, fmt.Errorf("sqlite push candidates: %w", err)
	}
	defer rows.Close()

	var out []model.UserScannerSettings
	for rows.Next() {
		st, err := scanSettings(rows)
		if err != nil {
			return nil, fmt.Errorf("sqlite scan settings: %w", err)
		}
		out = append(out, st)
	}
	return out, rows.Err()
}

// FollowerIDs returns ids of users following alerts.
func (s *Store) FollowerIDs(ctx context.Context) ([]int64, error) {
	return s.userIDsWhere(ctx, "follow_alerts = 1")
}

// LiveFeedUserIDs returns ids of users with the live hotlist enabled.
func (s *Store) LiveFeedUserIDs(ctx context.Context) ([]int64, error) {
	return s.userIDsWhere(ctx, "live_feed_enabled = 1")
}

func (s *Store) userIDsWhere(ctx context.Context, cond string) ([]int64, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT user_id FROM user_scanner_settings WHERE `+cond+` ORDER BY user_id ASC`)
	if err != nil {
		return nil, fmt.Errorf("sqlite user ids: %w", err)
	}
	defer rows.Close()

	var out []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("sqlite scan user id: %w", err)
		}
		out = append(out, id)
	}
	return out, rows.Err()
}

func (s *Store) writeSettings(ctx context.Context, st model.UserScannerSettings) error {
	var cleared any
	if st.ClearedUntil != nil {
		cleared = st.ClearedUntil.UnixMilli()
	}
	var minScore any
	if st.NotifyMinScore != nil {
		minScore = *st.NotifyMinScore
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO user_scanner_settings (`+settingsColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(user_id) DO UPDATE SET
			follow_alerts         = excluded.follow_alerts,
			live_feed_enabled     = excluded.live_feed_enabled,
			cleared_until         = excluded.cleared_until,
			pushover_enabled      = excluded.pushover_enabled,
			pushover_user_key     = excluded.pushover_user_key,
			pushover_device       = excluded.pushover_device,
			pushover_sound        = excluded.pushover_sound,
			pushover_priority     = excluded.pushover_priority,
			notify_min_score      = excluded.notify_min_score,
			notify_only_hod_break = excluded.notify_only_hod_break,
			updated_at            = excluded.updated_at
	`,
		st.UserID, st.FollowAlerts, st.LiveFeedEnabled, cleared,
		st.PushoverEnabled, st.PushoverUserKey, st.PushoverDevice, st.PushoverSound,
		st.PushoverPriority, minScore, st.NotifyOnlyHODBreak, st.UpdatedAt.UnixMilli(),
	)
	if err != nil {
		return fmt.Errorf("sqlite write settings: %w", err)
	}
	return nil
}

func scanSettings(row rowScanner) (model.UserScannerSettings, error) {
	var st model.UserScannerSettings
	var cleared sql.NullInt64
	var minScore sql.NullFloat64
	var updated int64
	if err := row.Scan(
		&st.UserID, &st.FollowAlerts, &st.LiveFeedEnabled, &cleared,
		&st.PushoverEnabled, &st.PushoverUserKey, &st.PushoverDevice, &st.PushoverSound,
		&st.PushoverPriority, &minScore, &st.NotifyOnlyHODBreak, &updated,
	); err != nil {
		return model.UserScannerSettings{}, err
	}
	if cleared.Valid {
		t := time.UnixMilli(cleared.Int64).UTC()
		st.ClearedUntil = &t
	}
	if minScore.Valid {
		v := minScore.Float64
		st.NotifyMinScore = &v
	}
	st.UpdatedAt = time.UnixMilli(updated).UTC()
	return st, nil
}
