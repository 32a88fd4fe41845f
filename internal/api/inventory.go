package api

import (
	"net/http"
	"strings"
)

func (s *Server) handleInventory(w http.ResponseWriter, r *http.Request) {
	paths := s.index.All()
	keys := 0
	for _, info := range paths {
		keys += len(info.Keys)
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"paths": paths,
		"count": len(paths),
		"keys":  keys,
	})
}

// handleInventoryDelete forgets a path (?secret=). The secret in Vault is untouched.
func (s *Server) handleInventoryDelete(w http.ResponseWriter, r *http.Request) {
	path := strings.Trim(r.URL.Query().Get("secret"), "/")
	if path == "" {
		http.Error(w, "secret is required", http.StatusBadRequest)
		return
	}
	if !s.index.Delete(path) {
		http.Error(w, "not in inventory", http.StatusNotFound)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"status": "ok", "secret": path})
}
