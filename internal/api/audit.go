package api

import (
	"net/http"
	"strconv"

	"github.com/elabx-org/hashivault/internal/audit"
)

func (s *Server) handleAudit(w http.ResponseWriter, r *http.Request) {
	if s.auditor == nil {
		writeJSON(w, http.StatusOK, map[string]any{"entries": []audit.Entry{}, "count": 0})
		return
	}

	q := r.URL.Query()
	opts := audit.QueryOptions{
		Path: q.Get("secret"),
		Key:  q.Get("key"),
	}
	if h := q.Get("hours"); h != "" {
		opts.Hours, _ = strconv.Atoi(h)
	}
	if l := q.Get("limit"); l != "" {
		opts.Limit, _ = strconv.Atoi(l)
	}
	if f := q.Get("failed"); f != "" {
		opts.Failed, _ = strconv.ParseBool(f)
	}

	entries, err := s.auditor.Query(opts)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	if entries == nil {
		entries = []audit.Entry{}
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"entries": entries,
		"count":   len(entries),
	})
}
