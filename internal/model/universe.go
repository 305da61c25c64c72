package model

import (
	"strings"
	"time"
)

// UniverseTicker is one symbol in the scan universe.
type UniverseTicker struct {
	ID        int64     `json:"id"`
	Symbol    string    `json:"symbol"`
	Enabled   bool      `json:"enabled"`
	CreatedAt time.Time `json:"created_at"`
}

const maxSymbolLen = 16

// NormalizeSymbol trims, uppercases and validates a ticker symbol.
// Allowed characters after uppercasing: A-Z, 0-9, '.' and '-'.
func NormalizeSymbol(s string) (string, error) {
	sym := strings.ToUpper(strings.TrimSpace(s))
	if sym == "" {
		return "", Verr("symbol", "must not be empty")
	}
	if len(sym) > maxSymbolLen {
		return "", Verr("symbol", "must be at most 16 characters")
	}
	for _, r := range sym {
		if (r < 'A' || r > 'Z') && (r < '0' || r > '9') && r != '.' && r != '-' {
			return "", Verr("symbol", "contains invalid characters")
		}
	}
	return sym, nil
}
