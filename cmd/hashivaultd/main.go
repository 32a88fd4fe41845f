package main

import (
	"context"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/elabx-org/hashivault/internal/api"
	"github.com/elabx-org/hashivault/internal/audit"
	"github.com/elabx-org/hashivault/internal/config"
	"github.com/elabx-org/hashivault/internal/metrics"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	bolt "go.etcd.io/bbolt"
)

func main() {
	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})

	cfg, err := config.Load(os.Getenv("HASHIVAULTD_CONFIG"))
	if err != nil {
		log.Fatal().Err(err).Msg("failed to load config")
	}

	srv := api.NewServer(cfg, nil)
	srv.SetMetrics(metrics.New())

	if cfg.Index.DataPath != "" {
		db, err := openIndex(cfg.Index.DataPath)
		if err != nil {
			log.Fatal().Err(err).Str("path", cfg.Index.DataPath).Msg("failed to open inventory index")
		}
		defer db.Close()
		srv.Index().SetDB(db)
		log.Info().Str("path", cfg.Index.DataPath).Int("paths", len(srv.Index().All())).Msg("inventory index loaded")
	} else {
		log.Warn().Msg("index.data_path not set, inventory kept in memory only")
	}

	// Wire auditor
	if cfg.Audit.Enabled && cfg.Audit.Path != "" {
		auditor, err := audit.New(cfg.Audit.Path)
		if err != nil {
			log.Fatal().Err(err).Str("path", cfg.Audit.Path).Msg("failed to initialize auditor")
		}
		defer auditor.Close()
		if cfg.Audit.RetentionDays > 0 {
			if err := auditor.Prune(cfg.Audit.RetentionDays); err != nil {
				log.Warn().Err(err).Msg("audit prune failed")
			}
		}
		srv.SetAuditor(auditor)
		log.Info().Str("path", cfg.Audit.Path).Int("retention_days", cfg.Audit.RetentionDays).Msg("auditor initialized")
	}

	if cfg.APIToken == "" {
		log.Warn().Msg("HASHIVAULTD_API_TOKEN not set, write and query endpoints are unauthenticated")
	}
	if cfg.Vault.URL != "" {
		log.Info().Str("vault", cfg.Vault.URL).Msg("default vault address")
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	go srv.StartVaultWatcher(ctx, api.DefaultWatchInterval)

	if err := srv.Start(ctx); err != nil {
		log.Fatal().Err(err).Msg("server exited with error")
	}
}

func openIndex(path string) (*bolt.DB, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
		return nil, err
	}
	return bolt.Open(path, 0600, &bolt.Options{Timeout: 5 * time.Second})
}
