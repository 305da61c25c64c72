package api

import (
	"encoding/json"
	"net/http"

	"ignition-scanner/internal/model"
)

func (s *Server) handleGetMySettings(w http.ResponseWriter, r *http.Request, user model.User) {
	st, err := s.prefs.GetSettings(r.Context(), user.ID)
	if err != nil {
		writeStoreError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, st)
}

// handleUpdateMySettings patches the caller's settings. The body is read
// key by key so that explicit nulls clear nullable fields while absent
// keys leave them untouched.
func (s *Server) handleUpdateMySettings(w http.ResponseWriter, r *http.Request, user model.User) {
	var body map[string]json.RawMessage
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeDetail(w, http.StatusBadRequest, "invalid JSON body")
		return
	}

	st, err := s.prefs.GetSettings(r.Context(), user.ID)
	if err != nil {
		writeStoreError(w, err)
		return
	}

	apply := func(key string, dst any) bool {
		raw, ok := body[key]
		if !ok {
			return true
		}
		if err := json.Unmarshal(raw, dst); err != nil {
			writeFieldError(w, key, "invalid value")
			return false
		}
		return true
	}
	if !apply("follow_alerts", &st.FollowAlerts) {
		return
	}
	if !apply("live_feed_enabled", &st.LiveFeedEnabled) {
		return
	}
	if !apply("cleared_until", &st.ClearedUntil) {
		return
	}
	if !apply("pushover_enabled", &st.PushoverEnabled) {
		return
	}
	if !apply("pushover_user_key", &st.PushoverUserKey) {
		return
	}
	if !apply("pushover_device", &st.PushoverDevice) {
		return
	}
	if !apply("pushover_sound", &st.PushoverSound) {
		return
	}
	if !apply("pushover_priority", &st.PushoverPriority) {
		return
	}
	if !apply("notify_min_score", &st.NotifyMinScore) {
		return
	}
	if !apply("notify_only_hod_break", &st.NotifyOnlyHODBreak) {
		return
	}

	updated, err := s.prefs.UpdateSettings(r.Context(), st)
	if err != nil {
		writeStoreError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, updated)
}
