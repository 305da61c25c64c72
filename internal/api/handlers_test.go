package api

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"testing"
	"time"

	"ignition-scanner/internal/model"
)

func TestConfigGetAndCanEdit(t *testing.T) {
	env := newTestEnv(nil)

	var got configResponse
	rec := env.do(t, "GET", "/scanner/config/", userToken(t, 1), nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d: %s", rec.Code, rec.Body.String())
	}
	decodeJSON(t, rec, &got)
	if got.Enabled || got.CooldownMinutes != 15 || got.Timeframe != "1m" {
		t.Fatalf("unexpected defaults: %+v", got.ScannerConfig)
	}
	if got.CanEdit {
		t.Fatal("plain user must not see can_edit")
	}

	rec = env.do(t, "GET", "/scanner/config/", adminToken(t, 2), nil)
	decodeJSON(t, rec, &got)
	if !got.CanEdit {
		t.Fatal("admin must see can_edit")
	}
}

func TestConfigUpdate(t *testing.T) {
	env := newTestEnv(nil)

	rec := env.do(t, "PATCH", "/scanner/config/", userToken(t, 1), map[string]any{"enabled": true})
	if rec.Code != http.StatusForbidden {
		t.Fatalf("non-admin update: status = %d", rec.Code)
	}

	admin := adminToken(t, 2)
	rec = env.do(t, "PATCH", "/scanner/config/", admin, map[string]any{
		"enabled":           true,
		"rvol_1m_threshold": 5.5,
	})
	if rec.Code != http.StatusOK {
		t.Fatalf("admin update: status = %d: %s", rec.Code, rec.Body.String())
	}
	var got configResponse
	decodeJSON(t, rec, &got)
	if !got.Enabled || got.Rvol1mThreshold != 5.5 {
		t.Fatalf("patch not applied: %+v", got.ScannerConfig)
	}
	if got.MinVol1m != 50000 {
		t.Fatalf("untouched field changed: min_vol_1m = %d", got.MinVol1m)
	}
	if !env.configs.cfg.Enabled {
		t.Fatal("update not persisted")
	}

	rec = env.do(t, "PATCH", "/scanner/config/", admin, map[string]any{"cooldown_minutes": -1})
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("invalid cooldown: status = %d", rec.Code)
	}
	var fieldErr map[string][]string
	decodeJSON(t, rec, &fieldErr)
	if len(fieldErr["cooldown_minutes"]) != 1 {
		t.Fatalf("field error = %v", fieldErr)
	}

	rec = env.doRaw(t, "PATCH", "/scanner/config/", admin, strings.NewReader(`{"enabled":`))
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("malformed body: status = %d", rec.Code)
	}
}

func TestUniverseCRUD(t *testing.T) {
	env := newTestEnv(nil)
	admin := adminToken(t, 1)

	rec := env.do(t, "POST", "/scanner/universe/", userToken(t, 9), map[string]any{"symbol": "AAPL"})
	if rec.Code != http.StatusForbidden {
		t.Fatalf("non-admin add: status = %d", rec.Code)
	}

	rec = env.do(t, "POST", "/scanner/universe/", admin, map[string]any{"symbol": " tsla "})
	if rec.Code != http.StatusCreated {
		t.Fatalf("add: status = %d: %s", rec.Code, rec.Body.String())
	}
	var ticker model.UniverseTicker
	decodeJSON(t, rec, &ticker)
	if ticker.Symbol != "TSLA" || !ticker.Enabled || ticker.ID == 0 {
		t.Fatalf("added ticker = %+v", ticker)
	}

	rec = env.do(t, "POST", "/scanner/universe/", admin, map[string]any{"symbol": "TSLA"})
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("duplicate add: status = %d", rec.Code)
	}
	var fieldErr map[string][]string
	decodeJSON(t, rec, &fieldErr)
	if len(fieldErr["symbol"]) != 1 {
		t.Fatalf("field error = %v", fieldErr)
	}

	rec = env.do(t, "POST", "/scanner/universe/", admin, map[string]any{"symbol": "lower case spaces"})
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("invalid symbol: status = %d", rec.Code)
	}

	rec = env.do(t, "GET", "/scanner/universe/", userToken(t, 9), nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("list: status = %d", rec.Code)
	}
	var list []model.UniverseTicker
	decodeJSON(t, rec, &list)
	if len(list) != 1 {
		t.Fatalf("list = %+v", list)
	}

	path := fmt.Sprintf("/scanner/universe/%d/", ticker.ID)
	rec = env.do(t, "PATCH", path, admin, map[string]any{"enabled": false})
	if rec.Code != http.StatusOK {
		t.Fatalf("disable: status = %d: %s", rec.Code, rec.Body.String())
	}
	decodeJSON(t, rec, &ticker)
	if ticker.Enabled {
		t.Fatal("ticker still enabled")
	}

	rec = env.do(t, "PATCH", path, admin, map[string]any{"symbol": "NVDA", "enabled": true})
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("symbol rename: status = %d", rec.Code)
	}
	decodeJSON(t, rec, &fieldErr)
	if fieldErr["symbol"][0] != "symbol is immutable" {
		t.Fatalf("field error = %v", fieldErr)
	}

	rec = env.do(t, "PATCH", path, admin, map[string]any{"note": "x"})
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("missing enabled: status = %d", rec.Code)
	}

	rec = env.do(t, "PATCH", "/scanner/universe/999/", admin, map[string]any{"enabled": true})
	if rec.Code != http.StatusNotFound {
		t.Fatalf("unknown id: status = %d", rec.Code)
	}

	rec = env.do(t, "DELETE", path, admin, nil)
	if rec.Code != http.StatusNoContent {
		t.Fatalf("delete: status = %d", rec.Code)
	}
	rec = env.do(t, "DELETE", path, admin, nil)
	if rec.Code != http.StatusNotFound {
		t.Fatalf("delete again: status = %d", rec.Code)
	}
}

type triggerPage struct {
	Count    int               `json:"count"`
	Next     *string           `json:"next"`
	Previous *string           `json:"previous"`
	Results  []model.EventWire `json:"results"`
}

func seedEvents(env *testEnv, n int) {
	base := time.Now().UTC().Add(-time.Hour)
	for i := 0; i < n; i++ {
		sym := "AAPL"
		if i >= n-2 {
			sym = "TSLA"
		}
		env.events.AppendEvent(context.Background(), &model.TriggerEvent{
			ID:          fmt.Sprintf("ev-%02d", i),
			Symbol:      sym,
			TriggeredAt: base.Add(time.Duration(i) * time.Minute),
			O:           10, H: 11, L: 9.5, C: 10.8, V: 1000,
			LastPrice: 10.8,
			Score:     float64(i),
		})
	}
}

func TestTriggersListPagination(t *testing.T) {
	env := newTestEnv(nil)
	seedEvents(env, 30)
	tok := userToken(t, 1)

	rec := env.do(t, "GET", "/scanner/triggers/", tok, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("page 1: status = %d: %s", rec.Code, rec.Body.String())
	}
	var page triggerPage
	decodeJSON(t, rec, &page)
	if page.Count != 30 || len(page.Results) != 25 {
		t.Fatalf("page 1: count = %d, results = %d", page.Count, len(page.Results))
	}
	if page.Results[0].ID != "ev-29" {
		t.Fatalf("newest first violated: %s", page.Results[0].ID)
	}
	if page.Results[0].CandleColor != model.CandleGreen {
		t.Fatalf("candle_color = %q", page.Results[0].CandleColor)
	}
	if page.Previous != nil {
		t.Fatalf("page 1 previous = %v", *page.Previous)
	}
	if page.Next == nil || !strings.Contains(*page.Next, "page=2") {
		t.Fatalf("page 1 next = %v", page.Next)
	}

	rec = env.do(t, "GET", "/scanner/triggers/?page=2", tok, nil)
	decodeJSON(t, rec, &page)
	if len(page.Results) != 5 || page.Next != nil {
		t.Fatalf("page 2: results = %d, next = %v", len(page.Results), page.Next)
	}
	if page.Previous == nil || strings.Contains(*page.Previous, "page=") {
		t.Fatalf("page 2 previous = %v", page.Previous)
	}

	rec = env.do(t, "GET", "/scanner/triggers/?page=3", tok, nil)
	if rec.Code != http.StatusNotFound {
		t.Fatalf("past last page: status = %d", rec.Code)
	}

	rec = env.do(t, "GET", "/scanner/triggers/?page=3&page_size=10", tok, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("page_size: status = %d", rec.Code)
	}
	decodeJSON(t, rec, &page)
	if len(page.Results) != 10 || page.Results[0].ID != "ev-09" {
		t.Fatalf("page_size window: results = %d, first = %s", len(page.Results), page.Results[0].ID)
	}

	rec = env.do(t, "GET", "/scanner/triggers/?symbol=tsla", tok, nil)
	decodeJSON(t, rec, &page)
	if page.Count != 2 {
		t.Fatalf("symbol filter: count = %d", page.Count)
	}
	for _, ev := range page.Results {
		if ev.Symbol != "TSLA" {
			t.Fatalf("filter leaked %s", ev.Symbol)
		}
	}

	rec = env.do(t, "GET", "/scanner/triggers/?page=zero", tok, nil)
	if rec.Code != http.StatusNotFound {
		t.Fatalf("bad page value: status = %d", rec.Code)
	}
}

func TestTriggersClear(t *testing.T) {
	env := newTestEnv(nil)
	seedEvents(env, 3)
	tok := userToken(t, 1)

	rec := env.do(t, "POST", "/scanner/triggers/clear/", tok, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("clear: status = %d: %s", rec.Code, rec.Body.String())
	}
	var cleared struct {
		Detail       string    `json:"detail"`
		ClearedUntil time.Time `json:"cleared_until"`
	}
	decodeJSON(t, rec, &cleared)
	if cleared.Detail != "cleared" || cleared.ClearedUntil.IsZero() {
		t.Fatalf("clear response = %+v", cleared)
	}

	var page triggerPage
	rec = env.do(t, "GET", "/scanner/triggers/", tok, nil)
	decodeJSON(t, rec, &page)
	if page.Count != 0 || len(page.Results) != 0 {
		t.Fatalf("after clear: count = %d", page.Count)
	}

	// New events come back; the mark only hides history.
	env.events.AppendEvent(context.Background(), &model.TriggerEvent{
		ID:          "ev-new",
		Symbol:      "NVDA",
		TriggeredAt: time.Now().UTC().Add(time.Minute),
	})
	rec = env.do(t, "GET", "/scanner/triggers/", tok, nil)
	decodeJSON(t, rec, &page)
	if page.Count != 1 || page.Results[0].ID != "ev-new" {
		t.Fatalf("post-clear event missing: %+v", page)
	}

	// The mark is per user.
	rec = env.do(t, "GET", "/scanner/triggers/", userToken(t, 2), nil)
	decodeJSON(t, rec, &page)
	if page.Count != 4 {
		t.Fatalf("other user count = %d", page.Count)
	}
}

func TestPreferencesMe(t *testing.T) {
	env := newTestEnv(nil)
	tok := userToken(t, 5)

	rec := env.do(t, "GET", "/scanner/preferences/me/", tok, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("get: status = %d", rec.Code)
	}
	var st model.UserScannerSettings
	decodeJSON(t, rec, &st)
	if !st.FollowAlerts || !st.LiveFeedEnabled || st.PushoverEnabled || st.ClearedUntil != nil {
		t.Fatalf("defaults = %+v", st)
	}

	rec = env.do(t, "PATCH", "/scanner/preferences/me/", tok, map[string]any{"pushover_enabled": true})
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("enable without key: status = %d", rec.Code)
	}
	var fieldErr map[string][]string
	decodeJSON(t, rec, &fieldErr)
	if fieldErr["pushover_user_key"][0] != "required when pushover is enabled" {
		t.Fatalf("field error = %v", fieldErr)
	}

	rec = env.do(t, "PATCH", "/scanner/preferences/me/", tok, map[string]any{
		"pushover_enabled":  true,
		"pushover_user_key": "abcDEF1234567890ghijk",
		"notify_min_score":  70.0,
	})
	if rec.Code != http.StatusOK {
		t.Fatalf("update: status = %d: %s", rec.Code, rec.Body.String())
	}
	decodeJSON(t, rec, &st)
	if !st.PushoverEnabled || st.NotifyMinScore == nil || *st.NotifyMinScore != 70 {
		t.Fatalf("update = %+v", st)
	}

	// Explicit null clears, absence keeps.
	rec = env.do(t, "PATCH", "/scanner/preferences/me/", tok, map[string]any{"notify_min_score": nil})
	decodeJSON(t, rec, &st)
	if st.NotifyMinScore != nil {
		t.Fatalf("null did not clear: %+v", st.NotifyMinScore)
	}
	if !st.PushoverEnabled {
		t.Fatal("absent key clobbered pushover_enabled")
	}

	mark := "2026-03-02T14:30:00Z"
	rec = env.do(t, "PATCH", "/scanner/preferences/me/", tok, map[string]any{"cleared_until": mark})
	decodeJSON(t, rec, &st)
	if st.ClearedUntil == nil || !st.ClearedUntil.Equal(time.Date(2026, 3, 2, 14, 30, 0, 0, time.UTC)) {
		t.Fatalf("cleared_until = %v", st.ClearedUntil)
	}
	rec = env.do(t, "PATCH", "/scanner/preferences/me/", tok, map[string]any{"cleared_until": nil})
	decodeJSON(t, rec, &st)
	if st.ClearedUntil != nil {
		t.Fatalf("cleared_until not cleared: %v", st.ClearedUntil)
	}

	rec = env.do(t, "PATCH", "/scanner/preferences/me/", tok, map[string]any{"follow_alerts": "yes"})
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("bad type: status = %d", rec.Code)
	}
	decodeJSON(t, rec, &fieldErr)
	if fieldErr["follow_alerts"][0] != "invalid value" {
		t.Fatalf("field error = %v", fieldErr)
	}

	rec = env.do(t, "PATCH", "/scanner/preferences/me/", tok, map[string]any{"pushover_priority": 7})
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("priority range: status = %d", rec.Code)
	}

	// Unknown keys are ignored.
	rec = env.do(t, "PATCH", "/scanner/preferences/me/", tok, map[string]any{"theme": "dark"})
	if rec.Code != http.StatusOK {
		t.Fatalf("unknown key: status = %d", rec.Code)
	}
}
