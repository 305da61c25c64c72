package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"log"
	"strings"
	"time"

	"ignition-scanner/internal/model"
)

const eventColumns = `id, symbol, triggered_at, reason_tags, o, h, l, c, v,
	last_price, vol_1m, vol_5m, avg_vol_1m_lookback, rvol_1m, rvol_5m,
	pct_change_1m, pct_change_5m, hod, broke_hod, score, config_snapshot`

// AppendEvent stores one trigger event. Tags and the config snapshot are
// stored as JSON text columns.
func (s *Store) AppendEvent(ctx context.Context, ev *model.TriggerEvent) error {
	tags := ev.ReasonTags
	if tags == nil {
		tags = []string{}
	}
	tagsJSON, err := json.Marshal(tags)
	if err != nil {
		return fmt.Errorf("encode reason tags: %w", err)
	}
	snap := ev.ConfigSnapshot
	if snap == nil {
		snap = map[string]any{}
	}
	snapJSON, err := json.Marshal(snap)
	if err != nil {
		return fmt.Errorf("encode config snapshot: %w", err)
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO trigger_events (`+eventColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`,
		ev.ID, ev.Symbol, ev.TriggeredAt.UnixMilli(), string(tagsJSON),
		ev.O, ev.H, ev.L, ev.C, ev.V,
		ev.LastPrice, ev.Vol1m, ev.Vol5m, ev.AvgVol1mLookback, ev.Rvol1m, ev.Rvol5m,
		ev.PctChange1m, ev.PctChange5m, ev.HOD, ev.BrokeHOD, ev.Score, string(snapJSON),
	)
	if err != nil {
		return fmt.Errorf("sqlite append event: %w", err)
	}
	return nil
}

// EventByID loads one event by id.
func (s *Store) EventByID(ctx context.Context, id string) (*model.TriggerEvent, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+eventColumns+` FROM trigger_events WHERE id = ?`, id)
	ev, err := scanEvent(row)
	if err == sql.ErrNoRows {
		return nil, model.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("sqlite read event: %w", err)
	}
	return ev, nil
}

// LastEventForSymbol returns the newest event for symbol, for cooldown
// decisions.
func (s *Store) LastEventForSymbol(ctx context.Context, symbol string) (*model.TriggerEvent, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT `+eventColumns+` FROM trigger_events
		WHERE symbol = ?
		ORDER BY triggered_at DESC, id DESC
		LIMIT 1
	`, strings.ToUpper(strings.TrimSpace(symbol)))
	ev, err := scanEvent(row)
	if err == sql.ErrNoRows {
		return nil, model.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("sqlite last event: %w", err)
	}
	return ev, nil
}

// ListEvents returns one page newest-first plus the total matching count.
func (s *Store) ListEvents(ctx context.Context, q model.EventQuery) ([]model.TriggerEvent, int, error) {
	where := "1=1"
	var args []any
	if q.Symbol != "" {
		where += " AND symbol = ?"
		args = append(args, strings.ToUpper(strings.TrimSpace(q.Symbol)))
	}
	if q.After != nil {
		where += " AND triggered_at > ?"
		args = append(args, q.After.UnixMilli())
	}

	var total int
	if err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM trigger_events WHERE `+where, args...,
	).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("sqlite count events: %w", err)
	}

	limit := q.Limit
	if limit <= 0 {
		limit = -1 // no limit
	}
	offset := q.Offset
	if offset < 0 {
		offset = 0
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT `+eventColumns+` FROM trigger_events
		WHERE `+where+`
		ORDER BY triggered_at DESC, id DESC
		LIMIT ? OFFSET ?
	`, append(args, limit, offset)...)
	if err != nil {
		return nil, 0, fmt.Errorf("sqlite list events: %w", err)
	}
	defer rows.Close()

	var out []model.TriggerEvent
	for rows.Next() {
		ev, err := scanEvent(rows)
		if err != nil {
			return nil, 0, fmt.Errorf("sqlite scan event: %w", err)
		}
		out = append(out, *ev)
	}
	return out, total, rows.Err()
}

// PruneEventsBefore deletes events older than cutoff.
func (s *Store) PruneEventsBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	res, err := s.db.ExecContext(ctx,
		`DELETE FROM trigger_events WHERE triggered_at < ?`, cutoff.UnixMilli())
	if err != nil {
		return 0, fmt.Errorf("sqlite prune events: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("sqlite prune events: %w", err)
	}
	if n > 0 {
		log.Printf("[sqlite] pruned %d trigger events older than %s", n, cutoff.UTC().Format(time.RFC3339))
	}
	return n, nil
}

func scanEvent(row rowScanner) (*model.TriggerEvent, error) {
	var ev model.TriggerEvent
	var ts int64
	var tags, snap string
	if err := row.Scan(
		&ev.ID, &ev.Symbol, &ts, &tags,
		&ev.O, &ev.H, &ev.L, &ev.C, &ev.V,
		&ev.LastPrice, &ev.Vol1m, &ev.Vol5m, &ev.AvgVol1mLookback, &ev.Rvol1m, &ev.Rvol5m,
		&ev.PctChange1m, &ev.PctChange5m, &ev.HOD, &ev.BrokeHOD, &ev.Score, &snap,
	); err != nil {
		return nil, err
	}
	ev.TriggeredAt = time.UnixMilli(ts).UTC()
	if err := json.Unmarshal([]byte(tags), &ev.ReasonTags); err != nil {
		return nil, fmt.Errorf("decode reason tags: %w", err)
	}
	if err := json.Unmarshal([]byte(snap), &ev.ConfigSnapshot); err != nil {
		return nil, fmt.Errorf("decode config snapshot: %w", err)
	}
	return &ev, nil
}
