package rpc

import (
	"net/http"
	"strconv"
	"strings"
)

const (
	defaultEventPage = 100
	maxEventPage     = 1000
)

type eventPageJSON struct {
	Events []eventJSON `json:"events"`
	// Next is the cursor to pass to fetch the following page.
	Next uint64 `json:"next"`
}

func parseCursor(r *http.Request) (uint64, error) {
	raw := strings.TrimSpace(r.URL.Query().Get("cursor"))
	if raw == "" {
		return 0, nil
	}
	return strconv.ParseUint(raw, 10, 64)
}

func (s *Server) handleListEvents(w http.ResponseWriter, r *http.Request) {
	cursor, err := parseCursor(r)
	if err != nil {
		writeBadRequest(w, "invalid cursor: %v", err)
		return
	}
	limit := defaultEventPage
	if raw := strings.TrimSpace(r.URL.Query().Get("limit")); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed <= 0 {
			writeBadRequest(w, "invalid limit %q", raw)
			return
		}
		limit = parsed
	}
	if limit > maxEventPage {
		limit = maxEventPage
	}
	records, err := s.node.EventsSince(cursor, limit)
	if err != nil {
		s.writeLedgerError(w, r, err)
		return
	}
	page := eventPageJSON{Events: make([]eventJSON, 0, len(records)), Next: cursor}
	for _, record := range records {
		page.Events = append(page.Events, eventJSONFrom(record))
		page.Next = record.Sequence
	}
	writeJSON(w, http.StatusOK, page)
}
