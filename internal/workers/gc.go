// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 PaveTrack Systems

package workers

import (
	"context"
	"time"

	"github.com/pavetrack/field-sync/internal/logger"
	"github.com/pavetrack/field-sync/internal/store"
)

// TombstoneGC periodically removes tombstones older than the retention
// window. Retention exists so late remote diffs can still reconcile a
// deletion; after the window the row is garbage.
type TombstoneGC struct {
	records   store.DurableStore
	retention time.Duration
	interval  time.Duration
	logger    *logger.Logger

	now func() time.Time
}

func NewTombstoneGC(records store.DurableStore, retention, interval time.Duration, log *logger.Logger) *TombstoneGC {
	if retention <= 0 {
		retention = 30 * 24 * time.Hour
	}
	if interval <= 0 {
		interval = time.Hour
	}
	return &TombstoneGC{
		records:   records,
		retention: retention,
		interval:  interval,
		logger:    log,
		now:       time.Now,
	}
}

// Run sweeps once immediately, then on every interval tick until ctx is
// canceled.
func (g *TombstoneGC) Run(ctx context.Context) error {
	g.sweep(ctx)

	t := time.NewTicker(g.interval)
	defer t.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-t.C:
			g.sweep(ctx)
		}
	}
}

func (g *TombstoneGC) sweep(ctx context.Context) {
	cutoff := g.now().UTC().Add(-g.retention)

	swept, err := g.records.SweepTombstones(ctx, cutoff)
	if err != nil {
		g.logger.Err(err).Msg("tombstone sweep failed")
		return
	}
	if swept > 0 {
		g.logger.Info().Int64("swept", swept).Time("cutoff", cutoff).Msg("tombstones collected")
	}
}
