package model

import "time"

// UserScannerSettings are per-user delivery preferences. ClearedUntil hides
// triggers at or before that instant from the user's list, replay and push
// without deleting anything. The Pushover application token is server
// configuration and never appears here.
type UserScannerSettings struct {
	UserID             int64      `json:"-"`
	FollowAlerts       bool       `json:"follow_alerts"`
	LiveFeedEnabled    bool       `json:"live_feed_enabled"`
	ClearedUntil       *time.Time `json:"cleared_until"`
	PushoverEnabled    bool       `json:"pushover_enabled"`
	PushoverUserKey    string     `json:"pushover_user_key"`
	PushoverDevice     string     `json:"pushover_device"`
	PushoverSound      string     `json:"pushover_sound"`
	PushoverPriority   int        `json:"pushover_priority"`
	NotifyMinScore     *float64   `json:"notify_min_score"`
	NotifyOnlyHODBreak bool       `json:"notify_only_hod_break"`
	UpdatedAt          time.Time  `json:"updated_at"`
}

// DefaultUserScannerSettings returns the settings a user has before the
// first explicit update.
func DefaultUserScannerSettings(userID int64) UserScannerSettings {
	return UserScannerSettings{
		UserID:           userID,
		FollowAlerts:     true,
		LiveFeedEnabled:  true,
		PushoverEnabled:  false,
		PushoverPriority: 0,
	}
}

// Validate enforces Pushover key format and range limits.
func (s *UserScannerSettings) Validate() error {
	if key := s.PushoverUserKey; key != "" {
		if len(key) < 20 || len(key) > 40 {
			return Verr("pushover_user_key", "must be 20-40 characters")
		}
		for _, r := range key {
			if (r < 'a' || r > 'z') && (r < 'A' || r > 'Z') && (r < '0' || r > '9') {
				return Verr("pushover_user_key", "must be alphanumeric")
			}
		}
	}
	if s.PushoverEnabled && s.PushoverUserKey == "" {
		return Verr("pushover_user_key", "required when pushover is enabled")
	}
	if len(s.PushoverDevice) > 64 {
		return Verr("pushover_device", "must be at most 64 characters")
	}
	if len(s.PushoverSound) > 32 {
		return Verr("pushover_sound", "must be at most 32 characters")
	}
	if s.PushoverPriority < -2 || s.PushoverPriority > 2 {
		return Verr("pushover_priority", "must be between -2 and 2")
	}
	if s.NotifyMinScore != nil && (*s.NotifyMinScore < 0 || *s.NotifyMinScore > 1000) {
		return Verr("notify_min_score", "must be between 0 and 1000")
	}
	return nil
}

// ClearedBefore reports whether t falls at or before the user's clear mark.
func (s *UserScannerSettings) ClearedBefore(t time.Time) bool {
	return s.ClearedUntil != nil && !t.After(*s.ClearedUntil)
}
