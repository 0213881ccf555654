// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 PaveTrack Systems

// Command syncserver runs the in-memory reference authority. It exists for
// local development and integration testing; state is lost on exit.
package main

import (
	"context"
	"flag"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"

	"github.com/pavetrack/field-sync/internal/authority"
	"github.com/pavetrack/field-sync/internal/logger"
)

func main() {
	address := flag.String("a", defaultAddress(), "listen address")
	flag.Parse()

	log := logger.New("syncserver", zerolog.InfoLevel)

	handler := authority.NewHandler(authority.New(), log)
	srv := &http.Server{
		Addr:              *address,
		Handler:           handler.Init(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	ctx, stop := signal.NotifyContext(
		context.Background(),
		syscall.SIGTERM,
		syscall.SIGINT,
		syscall.SIGQUIT,
	)
	defer stop()

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			log.Err(err).Msg("shutdown error")
		}
	}()

	log.Info().Str("address", *address).Msg("reference authority listening")
	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		log.Fatal().Err(err).Msg("listen error")
	}
	log.Info().Msg("reference authority stopped")
}

func defaultAddress() string {
	if addr := os.Getenv("AUTHORITY_ADDRESS"); addr != "" {
		return addr
	}
	return "localhost:8080"
}
