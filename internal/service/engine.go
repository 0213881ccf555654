// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 PaveTrack Systems

package service

import (
	"context"
	"errors"
	"fmt"

	"github.com/pavetrack/field-sync/internal/codec"
	"github.com/pavetrack/field-sync/internal/logger"
	"github.com/pavetrack/field-sync/internal/queue"
	"github.com/pavetrack/field-sync/internal/resolver"
	"github.com/pavetrack/field-sync/internal/store"
	"github.com/pavetrack/field-sync/internal/telemetry"
	"github.com/pavetrack/field-sync/models"
)

var (
	// ErrInvalidMutation is returned for mutations missing a record ID or
	// carrying an unknown operation.
	ErrInvalidMutation = errors.New("invalid mutation")
)

// Engine is the public surface of the sync engine. The embedding
// application enqueues mutations, listens for conflicts, and reads status;
// everything else happens behind the orchestrator.
type Engine struct {
	pipeline *codec.Pipeline
	outbox   store.Outbox
	queue    *queue.Manager
	resolver *resolver.Resolver
	orch     *Orchestrator
	metrics  *telemetry.Metrics
	logger   *logger.Logger
}

func NewEngine(
	pipeline *codec.Pipeline,
	outbox store.Outbox,
	qm *queue.Manager,
	res *resolver.Resolver,
	orch *Orchestrator,
	metrics *telemetry.Metrics,
	log *logger.Logger,
) *Engine {
	return &Engine{
		pipeline: pipeline,
		outbox:   outbox,
		queue:    qm,
		resolver: res,
		orch:     orch,
		metrics:  metrics,
		logger:   log,
	}
}

// Run starts the orchestrator loop and blocks until ctx is canceled.
func (e *Engine) Run(ctx context.Context) error {
	return e.orch.Run(ctx)
}

// EnqueueMutation encodes the payload, durably appends the mutation to the
// outbox, and admits it into the sync queue. When it returns nil the
// mutation is guaranteed to survive a restart; delivery happens later.
//
// A storage-full failure pauses the engine: accepting further mutations
// that cannot be persisted would silently break the durability guarantee.
func (e *Engine) EnqueueMutation(ctx context.Context, m models.Mutation) (models.QueueEntry, error) {
	if err := validateMutation(m); err != nil {
		return models.QueueEntry{}, err
	}

	var encoded []byte
	if m.Op != models.OpDelete {
		var err error
		encoded, err = e.pipeline.Encode(m.Payload)
		if err != nil {
			// Encryption failure aborts the enqueue; nothing is persisted.
			return models.QueueEntry{}, fmt.Errorf("encode mutation payload %s: %w", m.RecordID, err)
		}
	}

	entry, err := e.outbox.Append(ctx, m, encoded)
	if err != nil {
		e.metrics.RecordStorageFault()
		if errors.Is(err, store.ErrStorageFull) {
			e.Pause("local storage full")
		}
		return models.QueueEntry{}, fmt.Errorf("append mutation %s: %w", m.RecordID, err)
	}

	e.queue.Admit(entry)
	e.orch.notify(event{kind: evEnqueued})
	return entry, nil
}

func validateMutation(m models.Mutation) error {
	if m.RecordID == "" {
		return fmt.Errorf("%w: empty record id", ErrInvalidMutation)
	}
	switch m.Op {
	case models.OpCreate, models.OpUpdate, models.OpDelete:
	default:
		return fmt.Errorf("%w: unknown operation %q", ErrInvalidMutation, m.Op)
	}
	if m.Op != models.OpDelete && len(m.Payload) == 0 {
		return fmt.Errorf("%w: empty payload for %s", ErrInvalidMutation, m.Op)
	}
	return nil
}

// SubscribeToConflicts registers fn to fire whenever a conflict case
// requires manual input. fn must not block.
func (e *Engine) SubscribeToConflicts(fn func(models.ConflictCase)) {
	e.resolver.SubscribePending(fn)
}

// SupplyManualResolution completes a pending manual case with a merged
// plaintext payload and requeues the record for push.
func (e *Engine) SupplyManualResolution(ctx context.Context, caseID string, mergedPayload []byte) error {
	c, err := e.resolver.Case(caseID)
	if err != nil {
		return fmt.Errorf("supply resolution: %w", err)
	}

	if _, err = e.resolver.Supply(ctx, caseID, mergedPayload); err != nil {
		return fmt.Errorf("supply resolution: %w", err)
	}

	e.metrics.RecordConflictResolved(models.StrategyManual)
	e.orch.notify(event{kind: evResolved, record: c.RecordID, requeue: true})
	return nil
}

// AbandonConflict closes a pending case without resolving it. The local
// record is left alone; the remote copy wins on the next clean pull.
func (e *Engine) AbandonConflict(caseID string) error {
	c, err := e.resolver.Case(caseID)
	if err != nil {
		return fmt.Errorf("abandon conflict: %w", err)
	}

	if err = e.resolver.Abandon(caseID); err != nil {
		return fmt.Errorf("abandon conflict: %w", err)
	}

	e.orch.notify(event{kind: evResolved, record: c.RecordID, requeue: false})
	return nil
}

// Pause suspends all sync activity until Resume. Local enqueues keep
// accumulating in the outbox unless the pause reason is a storage fault.
func (e *Engine) Pause(reason string) {
	e.orch.notify(event{kind: evPause, reason: reason})
}

// Resume lifts a pause.
func (e *Engine) Resume() {
	e.orch.notify(event{kind: evResume})
}

// Status reports the orchestrator state. Informational; callers must not
// branch program logic on it.
func (e *Engine) Status() models.EngineStatus {
	return e.orch.Status()
}

// PauseReason reports why the engine is suspended, or "" when it is not.
func (e *Engine) PauseReason() string {
	return e.orch.PauseReason()
}

// PendingConflicts is the number of cases awaiting manual input.
func (e *Engine) PendingConflicts() int {
	return e.resolver.PendingCount()
}

// DeadLetters exposes the dead-letter set for host inspection.
func (e *Engine) DeadLetters() []models.QueueEntry {
	return e.queue.DeadLetters()
}

// Telemetry returns the cumulative counter snapshot.
func (e *Engine) Telemetry() telemetry.Snapshot {
	return e.metrics.Snapshot()
}
