package api

import (
	"encoding/json"
	"log"
	"net/http"
	"strconv"

	"github.com/gorilla/mux"

	"ignition-scanner/internal/model"
)

func (s *Server) handleListUniverse(w http.ResponseWriter, r *http.Request, user model.User) {
	tickers, err := s.universe.ListUniverse(r.Context())
	if err != nil {
		writeStoreError(w, err)
		return
	}
	if tickers == nil {
		tickers = []model.UniverseTicker{}
	}
	writeJSON(w, http.StatusOK, tickers)
}

func (s *Server) handleAddTicker(w http.ResponseWriter, r *http.Request, user model.User) {
	var body struct {
		Symbol  string `json:"symbol"`
		Enabled *bool  `json:"enabled"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeDetail(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	enabled := true
	if body.Enabled != nil {
		enabled = *body.Enabled
	}

	ticker, err := s.universe.AddTicker(r.Context(), body.Symbol, enabled)
	if err != nil {
		writeStoreError(w, err)
		return
	}
	log.Printf("[api] universe add %s by user=%d", ticker.Symbol, user.ID)
	writeJSON(w, http.StatusCreated, ticker)
}

func (s *Server) handleUpdateTicker(w http.ResponseWriter, r *http.Request, user model.User) {
	id, err := strconv.ParseInt(mux.Vars(r)["id"], 10, 64)
	if err != nil {
		writeDetail(w, http.StatusNotFound, "not found")
		return
	}

	var body map[string]json.RawMessage
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeDetail(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	// Symbols are keys into hot state; renames would orphan bars and HOD
	// markers, so the symbol field is immutable after creation.
	if _, ok := body["symbol"]; ok {
		writeFieldError(w, "symbol", "symbol is immutable")
		return
	}
	raw, ok := body["enabled"]
	if !ok {
		writeFieldError(w, "enabled", "this field is required")
		return
	}
	var enabled bool
	if err := json.Unmarshal(raw, &enabled); err != nil {
		writeFieldError(w, "enabled", "invalid value")
		return
	}

	ticker, err := s.universe.SetTickerEnabled(r.Context(), id, enabled)
	if err != nil {
		writeStoreError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, ticker)
}

func (s *Server) handleDeleteTicker(w http.ResponseWriter, r *http.Request, user model.User) {
	id, err := strconv.ParseInt(mux.Vars(r)["id"], 10, 64)
	if err != nil {
		writeDetail(w, http.StatusNotFound, "not found")
		return
	}
	if err := s.universe.DeleteTicker(r.Context(), id); err != nil {
		writeStoreError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
