package api

import (
	"encoding/json"
	"errors"
	"log"
	"net/http"

	"ignition-scanner/internal/model"
)

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if v == nil {
		return
	}
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Printf("[api] encode response: %v", err)
	}
}

func writeDetail(w http.ResponseWriter, status int, detail string) {
	writeJSON(w, status, map[string]string{"detail": detail})
}

// writeFieldError emits the field-keyed shape clients expect for
// rejected input: {"field": ["message"]}.
func writeFieldError(w http.ResponseWriter, field, msg string) {
	writeJSON(w, http.StatusBadRequest, map[string][]string{field: {msg}})
}

// writeStoreError maps store errors onto responses: validation failures
// become field-keyed 400s, missing rows 404s, the rest opaque 500s.
func writeStoreError(w http.ResponseWriter, err error) {
	var verr *model.ValidationError
	switch {
	case errors.As(err, &verr):
		writeFieldError(w, verr.Field, verr.Msg)
	case errors.Is(err, model.ErrNotFound):
		writeDetail(w, http.StatusNotFound, "not found")
	default:
		log.Printf("[api] %v", err)
		writeDetail(w, http.StatusInternalServerError, "internal error")
	}
}
