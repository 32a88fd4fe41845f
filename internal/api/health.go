package api

import (
	"context"
	"net/http"
	"time"

	"github.com/elabx-org/hashivault/internal/config"
	"github.com/elabx-org/hashivault/internal/vault"
)

type HealthResponse struct {
	Status string       `json:"status"`
	Vault  *VaultStatus `json:"vault,omitempty"`
	Uptime int64        `json:"uptime_seconds"`
}

type VaultStatus struct {
	Address   string `json:"address"`
	Status    string `json:"status"` // ok, sealed, standby, uninitialized, unreachable
	Version   string `json:"version,omitempty"`
	LatencyMs int64  `json:"latency_ms,omitempty"`
	Error     string `json:"error,omitempty"`
}

var startTime = time.Now()

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	resp := HealthResponse{
		Status: "ok",
		Uptime: int64(time.Since(startTime).Seconds()),
	}
	if vs := s.vaultStatus(r.Context()); vs != nil {
		resp.Vault = vs
		if vs.Status != "ok" && vs.Status != "standby" {
			resp.Status = "degraded"
		}
	}
	writeJSON(w, http.StatusOK, resp)
}

// vaultStatus probes the configured default Vault, caching the answer for
// healthCacheTTL. It returns nil when no default address is configured.
func (s *Server) vaultStatus(ctx context.Context) *VaultStatus {
	conn := config.ResolveConnection(s.cfg.Vault, s.runner.Env)
	if conn.Address == "" {
		return nil
	}

	s.healthMu.RLock()
	cached, at := s.healthCached, s.healthCheckedAt
	s.healthMu.RUnlock()
	if cached != nil && time.Since(at) < healthCacheTTL {
		return cached
	}

	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	start := time.Now()
	vs := &VaultStatus{Address: conn.Address}
	h, err := vault.Health(ctx, conn)
	vs.LatencyMs = time.Since(start).Milliseconds()
	switch {
	case err != nil:
		vs.Status = "unreachable"
		vs.Error = err.Error()
	case !h.Initialized:
		vs.Status = "uninitialized"
	case h.Sealed:
		vs.Status = "sealed"
	case h.Standby:
		vs.Status = "standby"
	default:
		vs.Status = "ok"
	}
	if h != nil {
		vs.Version = h.Version
	}

	s.healthMu.Lock()
	s.healthCached, s.healthCheckedAt = vs, time.Now()
	s.healthMu.Unlock()
	return vs
}
