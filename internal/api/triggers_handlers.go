package api

import (
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"ignition-scanner/internal/model"
)

const (
	defaultPageSize = 25
	maxPageSize     = 100
)

func (s *Server) handleListTriggers(w http.ResponseWriter, r *http.Request, user model.User) {
	st, err := s.prefs.GetSettings(r.Context(), user.ID)
	if err != nil {
		writeStoreError(w, err)
		return
	}

	q := model.EventQuery{Symbol: strings.TrimSpace(r.URL.Query().Get("symbol"))}
	if st.ClearedUntil != nil {
		q.After = st.ClearedUntil
	}

	page := 1
	if v := r.URL.Query().Get("page"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 1 {
			writeDetail(w, http.StatusNotFound, "Invalid page.")
			return
		}
		page = n
	}
	pageSize := defaultPageSize
	if v := r.URL.Query().Get("page_size"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			pageSize = n
			if pageSize > maxPageSize {
				pageSize = maxPageSize
			}
		}
	}
	q.Limit = pageSize
	q.Offset = (page - 1) * pageSize

	events, total, err := s.events.ListEvents(r.Context(), q)
	if err != nil {
		writeStoreError(w, err)
		return
	}
	// Past the last page. Page one is always valid, even when empty.
	if page > 1 && q.Offset >= total {
		writeDetail(w, http.StatusNotFound, "Invalid page.")
		return
	}

	now := time.Now().UTC()
	results := make([]model.EventWire, 0, len(events))
	for i := range events {
		results = append(results, events[i].Wire(now))
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"count":    total,
		"next":     pageLink(r, page+1, page*pageSize < total),
		"previous": pageLink(r, page-1, page > 1),
		"results":  results,
	})
}

// pageLink builds the absolute URL for the given page, or nil when that
// page does not exist. Page one drops the page parameter.
func pageLink(r *http.Request, page int, ok bool) *string {
	if !ok {
		return nil
	}
	u := *r.URL
	vals := u.Query()
	if page <= 1 {
		vals.Del("page")
	} else {
		vals.Set("page", strconv.Itoa(page))
	}
	u.RawQuery = vals.Encode()

	scheme := "http"
	if r.TLS != nil {
		scheme = "https"
	}
	if proto := r.Header.Get("X-Forwarded-Proto"); proto != "" {
		scheme = proto
	}
	link := fmt.Sprintf("%s://%s%s", scheme, r.Host, u.RequestURI())
	return &link
}

func (s *Server) handleClearTriggers(w http.ResponseWriter, r *http.Request, user model.User) {
	st, err := s.prefs.GetSettings(r.Context(), user.ID)
	if err != nil {
		writeStoreError(w, err)
		return
	}
	now := time.Now().UTC()
	st.ClearedUntil = &now
	updated, err := s.prefs.UpdateSettings(r.Context(), st)
	if err != nil {
		writeStoreError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"detail":        "cleared",
		"cleared_until": updated.ClearedUntil,
	})
}
