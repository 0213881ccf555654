// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 PaveTrack Systems

package main

import (
	"context"
	"encoding/hex"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"

	"github.com/pavetrack/field-sync/internal/adapter"
	"github.com/pavetrack/field-sync/internal/codec"
	"github.com/pavetrack/field-sync/internal/config"
	"github.com/pavetrack/field-sync/internal/logger"
	"github.com/pavetrack/field-sync/internal/netmon"
	"github.com/pavetrack/field-sync/internal/queue"
	"github.com/pavetrack/field-sync/internal/resolver"
	"github.com/pavetrack/field-sync/internal/service"
	"github.com/pavetrack/field-sync/internal/store"
	"github.com/pavetrack/field-sync/internal/telemetry"
	"github.com/pavetrack/field-sync/internal/workers"
	"github.com/pavetrack/field-sync/models"
)

var (
	buildVersion string
	buildDate    string
	buildCommit  string
)

func main() {
	printBuildInfo()

	log := logger.New("syncd", zerolog.InfoLevel)
	cfg, err := config.Load()
	if err != nil {
		log.Fatal().Err(err).Msg("error loading config")
	}

	log.Debug().Any("config", cfg).Msg("loaded config")

	ctx, stop := signal.NotifyContext(
		context.Background(),
		syscall.SIGTERM,
		syscall.SIGINT,
		syscall.SIGQUIT,
	)
	defer stop()

	db, err := store.Open(ctx, cfg.Store.DSN, log)
	if err != nil {
		log.Fatal().Err(err).Msg("error opening local store")
	}
	defer db.Close()

	records := store.NewRetryingStore(
		store.NewRecordRepository(db, log),
		time.Duration(cfg.Store.PutRetryBase),
		cfg.Store.PutRetryAttempts,
		log,
	)
	outbox := store.NewOutbox(db, log)

	keys := codec.NewKeyring()
	if err = loadKeyMaterial(keys); err != nil {
		log.Fatal().Err(err).Msg("error loading payload key")
	}
	pipeline := codec.NewPipeline(keys, cfg.Codec.MinCompressBytes, log)

	transport, err := adapter.NewHTTPTransport(cfg.Remote, log)
	if err != nil {
		log.Fatal().Err(err).Msg("error creating transport")
	}

	monitor := netmon.New(models.NetworkOffline, time.Duration(cfg.Netmon.Dwell), log)
	defer monitor.Stop()

	qm := queue.NewManager(queue.Config{
		BackoffBase:     time.Duration(cfg.Queue.BackoffBase),
		BackoffCap:      time.Duration(cfg.Queue.BackoffCap),
		MaxAttempts:     cfg.Queue.MaxAttempts,
		MeteredMaxBytes: cfg.Queue.MeteredMaxBytes,
	}, log)

	res := resolver.New(resolver.Config{
		Strategies:      cfg.Resolver.Strategies,
		DefaultStrategy: cfg.Resolver.DefaultStrategy,
		DeleteWins:      cfg.Resolver.DeleteWins,
	}, records, pipeline, log)

	metrics := telemetry.New()

	orch := service.NewOrchestrator(cfg.Sync, records, outbox, qm, res, transport, monitor, metrics, log)
	engine := service.NewEngine(pipeline, outbox, qm, res, orch, metrics, log)

	engine.SubscribeToConflicts(func(c models.ConflictCase) {
		log.Warn().
			Str("case_id", c.ID).
			Str("record_id", c.RecordID).
			Msg("conflict awaiting manual resolution")
	})

	go serveMetrics(metricsAddress(), metrics, log)

	// The host is expected to feed monitor.Report from its connectivity
	// signal; until then the daemon assumes the network is usable.
	monitor.Report(models.NetworkUnmetered)

	gc := workers.NewTombstoneGC(records, time.Duration(cfg.Store.TombstoneRetention), time.Hour, log)

	log.Info().Msg("sync daemon starting")
	if err = workers.NewWorkers(engine, gc).Run(ctx); err != nil {
		log.Fatal().Err(err).Msg("sync daemon failed")
	}
	log.Info().Msg("sync daemon stopped")
}

// loadKeyMaterial feeds the keyring from the environment. Key material is
// held by the host session, never by configuration files.
func loadKeyMaterial(keys *codec.Keyring) error {
	raw := os.Getenv("PAYLOAD_KEY")
	if raw == "" {
		return fmt.Errorf("PAYLOAD_KEY is not set")
	}

	material, err := hex.DecodeString(raw)
	if err != nil {
		// Accept non-hex material as-is; the keyring derives the AEAD
		// key either way.
		material = []byte(raw)
	}

	keyID := byte(1)
	if raw := os.Getenv("PAYLOAD_KEY_ID"); raw != "" {
		if _, err = fmt.Sscanf(raw, "%d", &keyID); err != nil {
			return fmt.Errorf("parse PAYLOAD_KEY_ID: %w", err)
		}
	}
	return keys.SetActive(keyID, material)
}

func metricsAddress() string {
	if addr := os.Getenv("METRICS_ADDRESS"); addr != "" {
		return addr
	}
	return "localhost:9190"
}

func serveMetrics(addr string, metrics *telemetry.Metrics, log *logger.Logger) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", metrics.Handler())

	srv := &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}
	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		log.Err(err).Msg("metrics server failed")
	}
}

func printBuildInfo() {
	if buildVersion == "" {
		buildVersion = "N/A"
	}
	if buildDate == "" {
		buildDate = "N/A"
	}
	if buildCommit == "" {
		buildCommit = "N/A"
	}

	fmt.Printf("Build version: %s\n", buildVersion)
	fmt.Printf("Build date: %s\n", buildDate)
	fmt.Printf("Build commit: %s\n", buildCommit)
}
