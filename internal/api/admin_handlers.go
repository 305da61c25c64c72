package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"math"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"

	"ignition-scanner/internal/barstore"
	"ignition-scanner/internal/model"
	"ignition-scanner/internal/tradingday"
)

// handleAdminStatus reports whether every moving part is reachable: the
// event database, Redis hot state, the pub/sub fan-out path and the
// ingestor heartbeat. It is the first page to load when the scanner
// looks dead.
func (s *Server) handleAdminStatus(w http.ResponseWriter, r *http.Request, user model.User) {
	ctx := r.Context()
	now := time.Now().UTC()

	errStr := func(err error) any {
		if err == nil {
			return nil
		}
		return err.Error()
	}

	dbOK := true
	var dbErr error
	var scannerEnabled any
	if s.db != nil {
		if err := s.db.Ping(ctx); err != nil {
			dbOK = false
			dbErr = err
		}
	}
	if dbOK {
		if cfg, err := s.configs.GetConfig(ctx); err != nil {
			dbOK = false
			dbErr = err
		} else {
			scannerEnabled = cfg.Enabled
		}
	}

	redisOK := true
	var redisErr error
	channelsOK := true
	var channelsErr error
	if s.hot == nil {
		redisOK = false
		redisErr = errors.New("hot state not configured")
		channelsOK = false
		channelsErr = redisErr
	} else {
		if err := s.hot.Ping(ctx); err != nil {
			redisOK = false
			redisErr = err
		}
		if err := s.hot.ChannelsCheck(ctx); err != nil {
			channelsOK = false
			channelsErr = err
		}
	}

	var hbRaw any
	var hbTS any
	var ageSeconds any
	var hbErr error
	if redisOK {
		raw, err := s.hot.ReadHeartbeat(ctx)
		if err != nil {
			hbErr = err
		} else if raw != "" {
			hbRaw = raw
			if ts, perr := time.Parse(time.RFC3339, raw); perr == nil {
				hbTS = ts.Format(time.RFC3339Nano)
				age := int64(now.Sub(ts).Seconds())
				if age < 0 {
					age = 0
				}
				ageSeconds = age
			}
		}
	}

	payload := map[string]any{
		"now":             now.Format(time.RFC3339Nano),
		"scanner_enabled": scannerEnabled,
		"db_ok":           dbOK,
		"redis_ok":        redisOK,
		"channels_ok":     channelsOK,
		"redis_url":       maskRedisURL(s.redisURL),
		"errors": map[string]any{
			"db":        errStr(dbErr),
			"redis":     errStr(redisErr),
			"channels":  errStr(channelsErr),
			"heartbeat": errStr(hbErr),
		},
		"ingestor": map[string]any{
			"heartbeat_key": barstore.HeartbeatKey,
			"heartbeat_raw": hbRaw,
			"heartbeat_ts":  hbTS,
			"age_seconds":   ageSeconds,
		},
		"market": map[string]any{
			"day_id": tradingday.DayID(now),
			"open":   tradingday.IsMarketOpen(now),
			"status": tradingday.StatusString(now),
		},
		"ok": dbOK && redisOK && channelsOK,
	}

	if s.ticks != nil && s.ticks.Count() > 0 {
		p50, p95, p99 := s.ticks.Percentiles()
		payload["engine"] = map[string]any{
			"ticks":       s.ticks.Count(),
			"tick_p50_ms": p50,
			"tick_p95_ms": p95,
			"tick_p99_ms": p99,
		}
	}

	writeJSON(w, http.StatusOK, payload)
}

// maskRedisURL hides the password portion of a redis URL so status
// responses never leak credentials.
func maskRedisURL(u string) string {
	scheme, rest, found := strings.Cut(u, "://")
	if !found || !strings.Contains(rest, "@") {
		return u
	}
	creds, hostpart, _ := strings.Cut(rest, "@")
	userName, _, found := strings.Cut(creds, ":")
	if !found {
		return u
	}
	return fmt.Sprintf("%s://%s:***@%s", scheme, userName, hostpart)
}

// handleEmitTestEvent appends a synthetic trigger and pushes it through
// the full delivery path so websocket and Pushover wiring can be checked
// while the market is closed.
func (s *Server) handleEmitTestEvent(w http.ResponseWriter, r *http.Request, user model.User) {
	var body struct {
		Symbol string `json:"symbol"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil && !errors.Is(err, io.EOF) {
		writeDetail(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	symbol := strings.ToUpper(strings.TrimSpace(body.Symbol))
	if symbol == "" {
		symbol = "TEST"
	}

	now := time.Now().UTC()
	ev := &model.TriggerEvent{
		ID:             uuid.NewString(),
		Symbol:         symbol,
		TriggeredAt:    now,
		ReasonTags:     []string{"TEST_EVENT"},
		Score:          0,
		ConfigSnapshot: map[string]any{"test": true},
	}
	if err := s.events.AppendEvent(r.Context(), ev); err != nil {
		writeStoreError(w, err)
		return
	}
	log.Printf("[api] test event %s emitted by user=%d", ev.ID, user.ID)

	// Delivery is best-effort once the event is stored.
	followers, err := s.prefs.FollowerIDs(r.Context())
	if err != nil {
		log.Printf("[api] follower ids: %v", err)
	}
	if s.pub != nil && len(followers) > 0 {
		if err := s.pub.PublishTrigger(r.Context(), ev, followers); err != nil {
			log.Printf("[api] publish test event: %v", err)
		}
	}
	if s.push != nil {
		s.push.EnqueuePush(ev.ID)
	}

	writeJSON(w, http.StatusCreated, ev.Wire(now))
}

// handleEmitTestHot5 publishes a synthetic hotlist frame to the calling
// admin only, so the live feed can be demoed with the market closed.
func (s *Server) handleEmitTestHot5(w http.ResponseWriter, r *http.Request, user model.User) {
	var body struct {
		Symbols []string `json:"symbols"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil && !errors.Is(err, io.EOF) {
		writeDetail(w, http.StatusBadRequest, "invalid JSON body")
		return
	}

	symbols := make([]string, 0, 5)
	for _, raw := range body.Symbols {
		if sym := strings.ToUpper(strings.TrimSpace(raw)); sym != "" {
			symbols = append(symbols, sym)
		}
	}
	if len(symbols) == 0 {
		symbols = []string{"AAPL", "TSLA", "NVDA", "AMD", "META"}
	}
	if len(symbols) > 5 {
		symbols = symbols[:5]
	}

	now := time.Now().UTC()
	items := make([]model.Hot5Item, 0, len(symbols))
	for i, sym := range symbols {
		px := 10.0 + float64(i)*7.25
		hod := px * 1.03
		r1 := 0.9 + float64(i)*0.8
		v1 := int64(15000 + i*22000)

		lastPrice := round4(px)
		hodVal := round4(hod)
		var hodDist *float64
		if math.Abs(lastPrice) >= 1e-9 {
			d := (hodVal - lastPrice) / lastPrice * 100
			hodDist = &d
		}

		items = append(items, model.Hot5Item{
			Symbol:         sym,
			Score:          round2(50 + float64(i)*17.5),
			LastPrice:      lastPrice,
			PctChange1m:    round2(0.8 + float64(i)*0.6),
			PctChange5m:    round2(2.0 + float64(i)*1.0),
			Rvol1m:         round2(r1),
			Rvol5m:         round2(math.Max(1.0, r1*0.95)),
			Vol1m:          v1,
			Vol5m:          int64(math.Round(float64(v1) * 4.2)),
			HOD:            hodVal,
			HODDistancePct: hodDist,
			BrokeHOD:       i == 0,
			BarTS:          now.Unix(),
			ReasonTags:     []string{"TEST_HOT5"},
		})
	}

	target := []int64{user.ID}
	if s.pub == nil {
		writeDetail(w, http.StatusServiceUnavailable, "publisher not configured")
		return
	}
	if err := s.pub.PublishHot5(r.Context(), items, target); err != nil {
		log.Printf("[api] publish test hot5: %v", err)
		writeDetail(w, http.StatusInternalServerError, "internal error")
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"detail":           "ok",
		"sent_to_user_ids": target,
		"items":            items,
	})
}

func round2(x float64) float64 { return math.Round(x*100) / 100 }

func round4(x float64) float64 { return math.Round(x*10000) / 10000 }
