// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 PaveTrack Systems

// Package resolver detects divergence between the local and remote copy of
// a record and produces either an automatic resolution or a pending
// conflict case for manual input. The resolver owns the ConflictCase
// lifecycle; resolutions are applied back through the durable store.
package resolver

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/pavetrack/field-sync/internal/codec"
	"github.com/pavetrack/field-sync/internal/logger"
	"github.com/pavetrack/field-sync/internal/store"
	"github.com/pavetrack/field-sync/models"
)

var (
	// ErrCaseNotFound is returned for an unknown or already closed case.
	ErrCaseNotFound = errors.New("conflict case not found")

	// ErrCaseNotPending is returned when Supply or Abandon target a case
	// that is no longer pending.
	ErrCaseNotPending = errors.New("conflict case is not pending")
)

// Detection is the outcome of comparing a local record with a remote copy.
type Detection int

const (
	// DetectionClean covers a duplicate delivery (remote not newer) or a
	// clean fast-forward (no unsynced local changes).
	DetectionClean Detection = iota

	// DetectionConflict means the remote chain advanced independently
	// while the local record holds unsynced changes.
	DetectionConflict
)

// MergeFunc combines two decoded payloads into one. Registered per entity
// type for payload structures that support partial merge.
type MergeFunc func(local, remote []byte) ([]byte, error)

// Config selects resolution strategies. Strategy choice is configuration,
// not engine policy.
type Config struct {
	// Strategies maps entity types to strategies; unmapped types use
	// DefaultStrategy.
	Strategies      map[string]models.Strategy
	DefaultStrategy models.Strategy

	// DeleteWins flips the deletion-conflict default. Out of the box an
	// update wins over a concurrent delete: resurrecting a record is
	// judged less harmful than silently discarding an edit.
	DeleteWins bool
}

// Resolver implements conflict detection and resolution.
type Resolver struct {
	cfg      Config
	records  store.DurableStore
	pipeline *codec.Pipeline
	logger   *logger.Logger

	mu       sync.RWMutex
	cases    map[string]*models.ConflictCase
	mergeFns map[string]MergeFunc
	subs     []func(models.ConflictCase)

	now func() time.Time
}

func New(cfg Config, records store.DurableStore, pipeline *codec.Pipeline, log *logger.Logger) *Resolver {
	if cfg.DefaultStrategy == "" {
		cfg.DefaultStrategy = models.StrategyLastWriteWins
	}
	return &Resolver{
		cfg:      cfg,
		records:  records,
		pipeline: pipeline,
		logger:   log,
		cases:    make(map[string]*models.ConflictCase),
		mergeFns: make(map[string]MergeFunc),
		now:      time.Now,
	}
}

// RegisterMerge installs a merge function for an entity type. Types using
// StrategyMerge without a registration fall back to the JSON object merge.
func (r *Resolver) RegisterMerge(entityType string, fn MergeFunc) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.mergeFns[entityType] = fn
}

// Detect compares the local record against the remote copy. A conflict
// exists when the remote version advanced independently of the local
// chain: it is neither equal to, nor a fast-forward of, the version the
// local record last synced against while local changes are pending.
func (r *Resolver) Detect(local, remote models.SyncRecord) Detection {
	if remote.RemoteVersion <= local.RemoteVersion {
		// Duplicate or stale delivery; idempotent apply short-circuits.
		return DetectionClean
	}
	if !local.HasPendingChanges() {
		// Remote is strictly ahead and nothing diverged locally.
		return DetectionClean
	}
	return DetectionConflict
}

// Strategy returns the configured strategy for an entity type.
func (r *Resolver) Strategy(entityType string) models.Strategy {
	if s, ok := r.cfg.Strategies[entityType]; ok {
		return s
	}
	return r.cfg.DefaultStrategy
}

// Open creates a ConflictCase for a detected divergence. Cases with an
// automatic strategy are expected to be resolved immediately by the
// caller; manual cases stay pending and subscribers are notified.
func (r *Resolver) Open(local, remote models.SyncRecord) models.ConflictCase {
	c := models.ConflictCase{
		ID:             uuid.NewString(),
		RecordID:       local.ID,
		EntityType:     local.EntityType,
		LocalSnapshot:  local,
		RemoteSnapshot: remote,
		DetectedAt:     r.now().UTC(),
		Strategy:       r.Strategy(local.EntityType),
		Status:         models.ConflictPending,
	}

	r.mu.Lock()
	r.cases[c.ID] = &c
	var subs []func(models.ConflictCase)
	if c.Strategy == models.StrategyManual {
		subs = append(subs, r.subs...)
	}
	r.mu.Unlock()

	r.logger.Info().
		Str("record_id", c.RecordID).
		Str("case_id", c.ID).
		Str("strategy", string(c.Strategy)).
		Msg("conflict case opened")

	for _, fn := range subs {
		fn(c)
	}
	return c
}

// Resolve applies the case's automatic strategy and writes the winner back
// through the durable store. Manual cases are left pending; the resolved
// record for them arrives later via Supply.
func (r *Resolver) Resolve(ctx context.Context, caseID string) (models.SyncRecord, bool, error) {
	r.mu.Lock()
	c, ok := r.cases[caseID]
	if !ok {
		r.mu.Unlock()
		return models.SyncRecord{}, false, fmt.Errorf("resolve case %s: %w", caseID, ErrCaseNotFound)
	}
	strategy := c.Strategy
	local, remote := c.LocalSnapshot, c.RemoteSnapshot
	r.mu.Unlock()

	if strategy == models.StrategyManual {
		return models.SyncRecord{}, false, nil
	}

	resolved, localWon, err := r.apply(strategy, local, remote)
	if err != nil {
		return models.SyncRecord{}, false, err
	}

	if err = r.records.Put(ctx, resolved); err != nil {
		return models.SyncRecord{}, false, fmt.Errorf("apply resolution for %s: %w", local.ID, err)
	}
	r.close(caseID, models.ConflictResolved)

	return resolved, localWon, nil
}

// apply produces the resolved record. The second return reports whether
// local changes survived (and therefore still need pushing).
func (r *Resolver) apply(strategy models.Strategy, local, remote models.SyncRecord) (models.SyncRecord, bool, error) {
	// Deletion conflicts are decided by policy before strategy.
	if local.Deleted != remote.Deleted {
		if r.cfg.DeleteWins {
			return r.pickDeleted(local, remote), local.Deleted, nil
		}
		if local.Deleted {
			// Remote edit wins over the local delete: resurrect.
			return converged(local, remote), false, nil
		}
		// Local edit wins over the remote delete: keep it pending.
		r.logger.Info().Str("record_id", local.ID).Msg("local edit resurrects remotely deleted record")
		return carriedForward(local, remote), true, nil
	}

	switch strategy {
	case models.StrategyLastWriteWins:
		if local.UpdatedAt.After(remote.UpdatedAt) {
			r.logger.Info().
				Str("record_id", local.ID).
				Time("discarded_remote_at", remote.UpdatedAt).
				Msg("last-write-wins kept local payload")
			return carriedForward(local, remote), true, nil
		}
		r.logger.Info().
			Str("record_id", local.ID).
			Time("discarded_local_at", local.UpdatedAt).
			Msg("last-write-wins discarded local payload")
		return converged(local, remote), false, nil

	case models.StrategyMerge:
		merged, err := r.merge(local, remote)
		if err != nil {
			return models.SyncRecord{}, false, fmt.Errorf("merge payloads for %s: %w", local.ID, err)
		}
		resolved := carriedForward(local, remote)
		resolved.Payload = merged
		return resolved, true, nil

	default:
		return models.SyncRecord{}, false, fmt.Errorf("unsupported strategy %q", strategy)
	}
}

func (r *Resolver) pickDeleted(local, remote models.SyncRecord) models.SyncRecord {
	if local.Deleted {
		resolved := carriedForward(local, remote)
		resolved.Deleted = true
		return resolved
	}
	resolved := converged(local, remote)
	resolved.Deleted = true
	return resolved
}

// merge decodes both payloads, runs the entity's merge function, and
// re-encodes the result.
func (r *Resolver) merge(local, remote models.SyncRecord) ([]byte, error) {
	localPlain, err := r.pipeline.Decode(local.Payload)
	if err != nil {
		return nil, fmt.Errorf("decode local payload: %w", err)
	}
	remotePlain, err := r.pipeline.Decode(remote.Payload)
	if err != nil {
		return nil, fmt.Errorf("decode remote payload: %w", err)
	}

	r.mu.RLock()
	fn, ok := r.mergeFns[local.EntityType]
	r.mu.RUnlock()
	if !ok {
		fn = mergeJSONObjects
	}

	merged, err := fn(localPlain, remotePlain)
	if err != nil {
		return nil, err
	}
	return r.pipeline.Encode(merged)
}

// Supply completes a pending manual case with a caller-provided merged
// payload (plaintext; it is encoded before persistence).
func (r *Resolver) Supply(ctx context.Context, caseID string, mergedPayload []byte) (models.SyncRecord, error) {
	r.mu.Lock()
	c, ok := r.cases[caseID]
	if !ok {
		r.mu.Unlock()
		return models.SyncRecord{}, fmt.Errorf("supply resolution for case %s: %w", caseID, ErrCaseNotFound)
	}
	if c.Status != models.ConflictPending {
		r.mu.Unlock()
		return models.SyncRecord{}, fmt.Errorf("supply resolution for case %s: %w", caseID, ErrCaseNotPending)
	}
	local, remote := c.LocalSnapshot, c.RemoteSnapshot
	r.mu.Unlock()

	encoded, err := r.pipeline.Encode(mergedPayload)
	if err != nil {
		return models.SyncRecord{}, fmt.Errorf("encode manual resolution for %s: %w", local.ID, err)
	}

	resolved := carriedForward(local, remote)
	resolved.Payload = encoded
	resolved.Deleted = false

	if err = r.records.Put(ctx, resolved); err != nil {
		return models.SyncRecord{}, fmt.Errorf("apply manual resolution for %s: %w", local.ID, err)
	}
	r.close(caseID, models.ConflictResolved)

	return resolved, nil
}

// Abandon closes a pending case without resolving it. Abandonment is an
// explicit caller action; the local record is left as-is and the remote
// copy wins on the next clean sync.
func (r *Resolver) Abandon(caseID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	c, ok := r.cases[caseID]
	if !ok {
		return fmt.Errorf("abandon case %s: %w", caseID, ErrCaseNotFound)
	}
	if c.Status != models.ConflictPending {
		return fmt.Errorf("abandon case %s: %w", caseID, ErrCaseNotPending)
	}
	c.Status = models.ConflictAbandoned
	return nil
}

// Case returns a snapshot of one case.
func (r *Resolver) Case(caseID string) (models.ConflictCase, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	c, ok := r.cases[caseID]
	if !ok {
		return models.ConflictCase{}, ErrCaseNotFound
	}
	return *c, nil
}

// Pending returns all pending cases.
func (r *Resolver) Pending() []models.ConflictCase {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var out []models.ConflictCase
	for _, c := range r.cases {
		if c.Status == models.ConflictPending {
			out = append(out, *c)
		}
	}
	return out
}

// PendingCount is the number of pending cases, for the host status surface.
func (r *Resolver) PendingCount() int {
	r.mu.RLock()
	defer r.mu.RUnlock()

	n := 0
	for _, c := range r.cases {
		if c.Status == models.ConflictPending {
			n++
		}
	}
	return n
}

// SubscribePending registers fn to fire when a manual case enters pending.
func (r *Resolver) SubscribePending(fn func(models.ConflictCase)) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.subs = append(r.subs, fn)
}

func (r *Resolver) close(caseID string, status models.ConflictStatus) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if c, ok := r.cases[caseID]; ok {
		c.Status = status
	}
}

// converged builds the resolved record when the remote payload won: both
// versions land on the remote chain and nothing is left pending.
func converged(local, remote models.SyncRecord) models.SyncRecord {
	return models.SyncRecord{
		ID:            local.ID,
		EntityType:    local.EntityType,
		Payload:       remote.Payload,
		LocalVersion:  remote.RemoteVersion,
		RemoteVersion: remote.RemoteVersion,
		UpdatedAt:     remote.UpdatedAt,
		Deleted:       remote.Deleted,
	}
}

// carriedForward builds the resolved record when local changes survived:
// the record acknowledges the remote chain but keeps one pending local
// version on top, so the queue pushes the resolution.
func carriedForward(local, remote models.SyncRecord) models.SyncRecord {
	return models.SyncRecord{
		ID:            local.ID,
		EntityType:    local.EntityType,
		Payload:       local.Payload,
		LocalVersion:  remote.RemoteVersion + 1,
		RemoteVersion: remote.RemoteVersion,
		UpdatedAt:     local.UpdatedAt,
		Deleted:       local.Deleted,
	}
}
