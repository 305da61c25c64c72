package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"ignition-scanner/internal/model"
)

// ListUniverse returns every ticker ordered by symbol.
func (s *Store) ListUniverse(ctx context.Context) ([]model.UniverseTicker, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, symbol, enabled, created_at FROM universe_tickers ORDER BY symbol ASC`)
	if err != nil {
		return nil, fmt.Errorf("sqlite list universe: %w", err)
	}
	defer rows.Close()

	var out []model.UniverseTicker
	for rows.Next() {
		t, err := scanTicker(rows)
		if err != nil {
			return nil, fmt.Errorf("sqlite scan ticker: %w", err)
		}
		out = append(out, t)
	}
	return out, rows.Err()
}

// EnabledSymbols returns the enabled symbols sorted ascending. Symbols are
// normalized on insert, so no post-processing is needed here.
func (s *Store) EnabledSymbols(ctx context.Context) ([]string, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT symbol FROM universe_tickers WHERE enabled = 1 ORDER BY symbol ASC`)
	if err != nil {
		return nil, fmt.Errorf("sqlite enabled symbols: %w", err)
	}
	defer rows.Close()

	var out []string
	for rows.Next() {
		var sym string
		if err := rows.Scan(&sym); err != nil {
			return nil, fmt.Errorf("sqlite scan symbol: %w", err)
		}
		out = append(out, sym)
	}
	return out, rows.Err()
}

// AddTicker normalizes and inserts a symbol. A duplicate symbol is a
// validation error, not a storage error.
func (s *Store) AddTicker(ctx context.Context, symbol string, enabled bool) (model.UniverseTicker, error) {
	sym, err := model.NormalizeSymbol(symbol)
	if err != nil {
		return model.UniverseTicker{}, err
	}
	now := time.Now().UTC().Truncate(time.Millisecond)

	res, err := s.db.ExecContext(ctx,
		`INSERT INTO universe_tickers (symbol, enabled, created_at) VALUES (?, ?, ?)`,
		sym, enabled, now.UnixMilli())
	if err != nil {
		if isUniqueViolation(err) {
			return model.UniverseTicker{}, model.Verr("symbol", "already in universe")
		}
		return model.UniverseTicker{}, fmt.Errorf("sqlite insert ticker: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return model.UniverseTicker{}, fmt.Errorf("sqlite insert ticker id: %w", err)
	}
	return model.UniverseTicker{ID: id, Symbol: sym, Enabled: enabled, CreatedAt: now}, nil
}

// SetTickerEnabled flips the enabled flag and returns the stored row.
func (s *Store) SetTickerEnabled(ctx context.Context, id int64, enabled bool) (model.UniverseTicker, error) {
	res, err := s.db.ExecContext(ctx,
		`UPDATE universe_tickers SET enabled = ? WHERE id = ?`, enabled, id)
	if err != nil {
		return model.UniverseTicker{}, fmt.Errorf("sqlite update ticker: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return model.UniverseTicker{}, fmt.Errorf("sqlite update ticker: %w", err)
	}
	if n == 0 {
		return model.UniverseTicker{}, model.ErrNotFound
	}
	return s.tickerByID(ctx, id)
}

// DeleteTicker removes one ticker by id.
func (s *Store) DeleteTicker(ctx context.Context, id int64) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM universe_tickers WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("sqlite delete ticker: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("sqlite delete ticker: %w", err)
	}
	if n == 0 {
		return model.ErrNotFound
	}
	return nil
}

func (s *Store) tickerByID(ctx context.Context, id int64) (model.UniverseTicker, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT id, symbol, enabled, created_at FROM universe_tickers WHERE id = ?`, id)
	t, err := scanTicker(row)
	if err == sql.ErrNoRows {
		return model.UniverseTicker{}, model.ErrNotFound
	}
	if err != nil {
		return model.UniverseTicker{}, fmt.Errorf("sqlite read ticker: %w", err)
	}
	return t, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanTicker(row rowScanner) (model.UniverseTicker, error) {
	var t model.UniverseTicker
	var created int64
	if err := row.Scan(&t.ID, &t.Symbol, &t.Enabled, &created); err != nil {
		return model.UniverseTicker{}, err
	}
	t.CreatedAt = time.UnixMilli(created).UTC()
	return t, nil
}
