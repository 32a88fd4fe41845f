package api

import (
	"context"
	"time"

	"github.com/rs/zerolog/log"
)

// DefaultWatchInterval is how often StartVaultWatcher probes Vault.
const DefaultWatchInterval = 5 * time.Minute

// StartVaultWatcher probes the default Vault every interval, keeps the
// hashivault_vault_up gauge current and logs ok/degraded transitions. It
// blocks until ctx is done. No-op if no default Vault address is configured.
func (s *Server) StartVaultWatcher(ctx context.Context, interval time.Duration) {
	if s.vaultStatus(ctx) == nil {
		return
	}

	log.Info().Dur("interval", interval).Msg("vault watcher started")

	lastUp := true
	check := func() {
		s.healthMu.Lock()
		s.healthCached = nil
		s.healthMu.Unlock()

		vs := s.vaultStatus(ctx)
		up := vs.Status == "ok" || vs.Status == "standby"
		s.metrics.SetVaultUp(up)

		switch {
		case !up && lastUp:
			log.Warn().Str("vault", vs.Address).Str("status", vs.Status).Str("error", vs.Error).Msg("vault watcher: vault degraded")
		case up && !lastUp:
			log.Info().Str("vault", vs.Address).Int64("latency_ms", vs.LatencyMs).Msg("vault watcher: vault recovered")
		}
		lastUp = up
	}
	check()

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			check()
		}
	}
}
