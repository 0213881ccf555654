// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 PaveTrack Systems

// Package service hosts the sync orchestrator and the Engine facade the
// embedding application talks to. A single scheduler goroutine owns all
// network I/O and state transitions; every other component is driven from
// its event loop, so no callback ever re-enters the scheduler.
package service

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/pavetrack/field-sync/internal/adapter"
	"github.com/pavetrack/field-sync/internal/config"
	"github.com/pavetrack/field-sync/internal/logger"
	"github.com/pavetrack/field-sync/internal/netmon"
	"github.com/pavetrack/field-sync/internal/queue"
	"github.com/pavetrack/field-sync/internal/resolver"
	"github.com/pavetrack/field-sync/internal/store"
	"github.com/pavetrack/field-sync/internal/telemetry"
	"github.com/pavetrack/field-sync/models"

	"github.com/google/uuid"
)

type eventKind int

const (
	evEnqueued eventKind = iota
	evNetwork
	evResolved
	evPause
	evResume
)

type event struct {
	kind    eventKind
	class   models.NetworkClass
	record  string
	requeue bool
	reason  string
}

// Orchestrator drives the sync state machine:
//
//	Idle -> Draining            queue non-empty and network usable
//	Draining -> Idle            queue drained or nothing admissible
//	Draining -> AwaitingNetwork network lost mid-drain
//	AwaitingNetwork -> Draining network restored
//	any -> Suspended            Pause (host request or storage fault)
//	Suspended -> Idle           Resume
type Orchestrator struct {
	cfg config.Sync

	records   store.DurableStore
	outbox    store.Outbox
	queue     *queue.Manager
	resolver  *resolver.Resolver
	transport adapter.Transport
	netmon    *netmon.Monitor
	metrics   *telemetry.Metrics
	logger    *logger.Logger

	// events carries coalesced enqueue wakeups; dropping one is safe
	// because a pending wakeup already guarantees a drain. Control events
	// (pause, resume, resolutions, network transitions) must never be
	// lost, so they queue in ctrl and the loop drains them before it
	// blocks again.
	events  chan event
	wakeups chan struct{}
	ctrlMu  sync.Mutex
	ctrl    []event

	mu          sync.RWMutex
	status      models.EngineStatus
	paused      bool
	pauseReason string

	now func() time.Time
}

func NewOrchestrator(
	cfg config.Sync,
	records store.DurableStore,
	outbox store.Outbox,
	qm *queue.Manager,
	res *resolver.Resolver,
	transport adapter.Transport,
	monitor *netmon.Monitor,
	metrics *telemetry.Metrics,
	log *logger.Logger,
) *Orchestrator {
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = 50
	}
	if cfg.Interval <= 0 {
		cfg.Interval = config.Duration(5 * time.Minute)
	}

	return &Orchestrator{
		cfg:       cfg,
		records:   records,
		outbox:    outbox,
		queue:     qm,
		resolver:  res,
		transport: transport,
		netmon:    monitor,
		metrics:   metrics,
		logger:    log,
		events:    make(chan event, 64),
		wakeups:   make(chan struct{}, 1),
		status:    models.StatusIdle,
		now:       time.Now,
	}
}

// Run replays the outbox, subscribes to network transitions, and enters the
// scheduler loop. It blocks until ctx is canceled.
func (o *Orchestrator) Run(ctx context.Context) error {
	if err := o.replayOutbox(ctx); err != nil {
		return err
	}

	o.netmon.Subscribe(func(class models.NetworkClass) {
		o.notify(event{kind: evNetwork, class: class})
	})

	ticker := time.NewTicker(time.Duration(o.cfg.Interval))
	defer ticker.Stop()

	wake := time.NewTimer(time.Duration(o.cfg.Interval))
	defer wake.Stop()

	for {
		for _, ev := range o.takeControl() {
			o.handle(ctx, ev)
		}

		o.armWake(wake)

		select {
		case <-ctx.Done():
			o.setStatus(models.StatusIdle)
			return ctx.Err()

		case <-o.wakeups:
			// Control is drained at the top of the next iteration.

		case ev := <-o.events:
			o.handle(ctx, ev)

		case <-ticker.C:
			o.maybeDrain(ctx)

		case <-wake.C:
			o.maybeDrain(ctx)
		}
	}
}

// replayOutbox re-admits unconfirmed entries after a restart, in append
// order, so a crash between append and confirmation loses nothing.
func (o *Orchestrator) replayOutbox(ctx context.Context) error {
	pending, err := o.outbox.Pending(ctx)
	if err != nil {
		return err
	}
	for _, entry := range pending {
		o.queue.Admit(entry)
	}
	if len(pending) > 0 {
		o.logger.Info().Int("entries", len(pending)).Msg("outbox replayed into queue")
	}
	return nil
}

func (o *Orchestrator) handle(ctx context.Context, ev event) {
	switch ev.kind {
	case evEnqueued:
		o.maybeDrain(ctx)

	case evNetwork:
		o.logger.Info().Str("class", ev.class.String()).Msg("network class changed")
		if ev.class == models.NetworkOffline {
			if !o.isPaused() {
				o.setStatus(models.StatusAwaitingNetwork)
			}
			return
		}
		o.maybeDrain(ctx)

	case evResolved:
		if dropped, ok := o.queue.Resolve(ev.record, ev.requeue, o.now()); ok {
			o.ackDropped(ctx, dropped)
		}
		o.maybeDrain(ctx)

	case evPause:
		o.setPaused(true, ev.reason)
		o.setStatus(models.StatusSuspended)
		o.logger.Warn().Str("reason", ev.reason).Msg("engine paused")

	case evResume:
		o.setPaused(false, "")
		o.logger.Info().Msg("engine resumed")
		o.maybeDrain(ctx)
	}
}

func (o *Orchestrator) maybeDrain(ctx context.Context) {
	if o.isPaused() {
		o.setStatus(models.StatusSuspended)
		return
	}
	if o.netmon.Current() == models.NetworkOffline {
		if o.queue.Len() > 0 {
			o.setStatus(models.StatusAwaitingNetwork)
		} else {
			o.setStatus(models.StatusIdle)
		}
		return
	}
	o.drain(ctx)
	o.metrics.SetQueueDepth(o.queue.Len())
	o.metrics.SetPendingConflicts(o.resolver.PendingCount())
}

// drain runs one full sync pass: push admissible queue entries in pages of
// BatchSize, then pull and apply remote changes from the stored cursor.
// The session is folded into telemetry exactly once, when the pass ends.
func (o *Orchestrator) drain(ctx context.Context) {
	o.setStatus(models.StatusDraining)

	session := models.SyncSession{
		ID:           uuid.NewString(),
		StartedAt:    o.now().UTC(),
		NetworkClass: o.netmon.Current(),
	}
	defer func() {
		session.FinishedAt = o.now().UTC()
		o.metrics.RecordSession(session)
		o.logger.Info().
			Str("session_id", session.ID).
			Int64("attempted", session.Attempted).
			Int64("succeeded", session.Succeeded).
			Int64("failed", session.Failed).
			Int64("conflicts", session.Conflicts).
			Int64("bytes", session.BytesTransferred).
			Msg("sync session closed")
	}()

	o.pushLoop(ctx, &session)

	if ctx.Err() == nil && o.netmon.Current() != models.NetworkOffline {
		o.pullLoop(ctx, &session)
	}

	switch {
	case o.isPaused():
		o.setStatus(models.StatusSuspended)
	case o.queue.Len() > 0:
		// Entries remain but nothing is admissible right now: offline,
		// size-gated on a metered link, or waiting out a backoff.
		o.setStatus(models.StatusAwaitingNetwork)
	default:
		o.setStatus(models.StatusIdle)
	}
}

func (o *Orchestrator) pushLoop(ctx context.Context, session *models.SyncSession) {
	for {
		if ctx.Err() != nil {
			return
		}
		class := o.netmon.Current()
		if class == models.NetworkOffline {
			return
		}

		batch := o.nextBatch(class)
		if len(batch) == 0 {
			return
		}

		o.pushBatch(ctx, batch, session)
	}
}

// nextBatch pops up to BatchSize admissible entries. Entries whose backing
// record vanished (tombstone swept under them) are completed as permanent.
func (o *Orchestrator) nextBatch(class models.NetworkClass) []*models.QueueEntry {
	batch := make([]*models.QueueEntry, 0, o.cfg.BatchSize)
	for len(batch) < o.cfg.BatchSize {
		entry := o.queue.Next(o.now(), class)
		if entry == nil {
			break
		}
		batch = append(batch, entry)
	}
	return batch
}

func (o *Orchestrator) pushBatch(ctx context.Context, batch []*models.QueueEntry, session *models.SyncSession) {
	items := make([]models.PushItem, 0, len(batch))
	records := make([]models.SyncRecord, 0, len(batch))

	for _, entry := range batch {
		// The wire item is built from the current record state, not the
		// entry: a conflict resolution may have replaced the payload and
		// advanced the base version since the entry was appended.
		rec, err := o.records.Get(ctx, entry.RecordID)
		if err != nil {
			o.logger.Err(err).Str("record_id", entry.RecordID).Msg("record missing for queue entry")
			if o.queue.Complete(entry, models.OutcomePermanent, o.now()) {
				o.ackDropped(ctx, *entry)
			}
			o.metrics.RecordOutcome(models.OutcomePermanent)
			continue
		}

		op := entry.Op
		if rec.Deleted {
			op = models.OpDelete
		}
		item := models.PushItem{
			RecordID:    rec.ID,
			EntityType:  rec.EntityType,
			BaseVersion: rec.RemoteVersion,
			Op:          op,
		}
		if op != models.OpDelete {
			item.EncodedPayload = rec.Payload
		}
		items = append(items, item)
		records = append(records, rec)
		batch[len(items)-1] = entry
	}
	if len(items) == 0 {
		return
	}
	batch = batch[:len(items)]

	session.Attempted += int64(len(items))

	results, err := o.transport.Push(ctx, models.PushRequest{Items: items})
	if err != nil {
		o.completeBatch(ctx, batch, classifyPushError(ctx, err), session)
		return
	}

	for i, res := range results {
		o.completePush(ctx, batch[i], records[i], res, session)
	}
}

// classifyPushError maps a whole-batch transport failure to one outcome
// shared by every entry in the batch.
func classifyPushError(ctx context.Context, err error) models.Outcome {
	switch {
	case ctx.Err() != nil:
		return models.OutcomeCanceled
	case errors.Is(err, adapter.ErrPermanent):
		return models.OutcomePermanent
	default:
		return models.OutcomeTransient
	}
}

func (o *Orchestrator) completeBatch(ctx context.Context, batch []*models.QueueEntry, outcome models.Outcome, session *models.SyncSession) {
	for _, entry := range batch {
		if o.queue.Complete(entry, outcome, o.now()) {
			o.ackDropped(ctx, *entry)
		}
		o.metrics.RecordOutcome(outcome)
		if outcome != models.OutcomeCanceled {
			session.Failed++
		}
	}
}

// ackDropped retires the outbox backing of an entry that will never be
// pushed (dead-lettered or superseded by a conflict resolution), so a
// restart does not resurrect it through replay.
func (o *Orchestrator) ackDropped(ctx context.Context, entry models.QueueEntry) {
	if err := o.outbox.Ack(ctx, entry.RecordID, entry.Seq); err != nil {
		o.logger.Err(err).
			Str("record_id", entry.RecordID).
			Uint64("seq", entry.Seq).
			Msg("failed to retire dropped outbox entry")
	}
}

func (o *Orchestrator) completePush(ctx context.Context, entry *models.QueueEntry, local models.SyncRecord, res models.PushResult, session *models.SyncSession) {
	now := o.now()

	switch {
	case res.Applied:
		confirmed := local
		confirmed.RemoteVersion = res.NewRemoteVersion
		if confirmed.LocalVersion < confirmed.RemoteVersion {
			confirmed.LocalVersion = confirmed.RemoteVersion
		}
		if err := o.records.Put(ctx, confirmed); err != nil {
			// The push landed remotely; keep the entry retryable so the
			// local confirmation is reconciled on the next attempt.
			o.logger.Err(err).Str("record_id", local.ID).Msg("failed to confirm pushed record")
			if o.queue.Complete(entry, models.OutcomeTransient, now) {
				o.ackDropped(ctx, *entry)
			}
			o.metrics.RecordOutcome(models.OutcomeTransient)
			o.metrics.RecordStorageFault()
			session.Failed++
			return
		}
		if err := o.outbox.Ack(ctx, entry.RecordID, entry.Seq); err != nil {
			o.logger.Err(err).Str("record_id", entry.RecordID).Msg("failed to ack outbox entry")
		}
		o.queue.Complete(entry, models.OutcomeSuccess, now)
		o.metrics.RecordOutcome(models.OutcomeSuccess)
		session.Succeeded++
		session.BytesTransferred += entry.SizeBytes

	case res.Conflict:
		o.queue.Complete(entry, models.OutcomeVersionConflict, now)
		o.metrics.RecordOutcome(models.OutcomeVersionConflict)
		session.Conflicts++

		remote := models.SyncRecord{
			ID:            local.ID,
			EntityType:    local.EntityType,
			Payload:       res.CurrentPayload,
			LocalVersion:  res.CurrentRemote,
			RemoteVersion: res.CurrentRemote,
			UpdatedAt:     res.CurrentUpdatedAt,
			Deleted:       res.CurrentDeleted,
		}
		o.openConflict(ctx, local, remote)

	default:
		// Neither applied nor conflict is an authority bug; retry.
		o.logger.Warn().Str("record_id", entry.RecordID).Msg("push result carries no outcome")
		if o.queue.Complete(entry, models.OutcomeTransient, now) {
			o.ackDropped(ctx, *entry)
		}
		o.metrics.RecordOutcome(models.OutcomeTransient)
		session.Failed++
	}
}

// openConflict opens a case and, for automatic strategies, resolves it in
// place and lifts the queue suspension. Manual cases stay pending until
// the host supplies or abandons a resolution.
func (o *Orchestrator) openConflict(ctx context.Context, local, remote models.SyncRecord) {
	o.metrics.RecordConflictDetected()

	c := o.resolver.Open(local, remote)
	if c.Strategy == models.StrategyManual {
		return
	}

	resolved, localWon, err := o.resolver.Resolve(ctx, c.ID)
	if err != nil {
		o.logger.Err(err).Str("record_id", local.ID).Msg("automatic conflict resolution failed")
		if dropped, ok := o.queue.Resolve(local.ID, false, o.now()); ok {
			o.ackDropped(ctx, dropped)
		}
		return
	}
	o.metrics.RecordConflictResolved(c.Strategy)
	if dropped, ok := o.queue.Resolve(resolved.ID, localWon, o.now()); ok {
		o.ackDropped(ctx, dropped)
	}
}

func (o *Orchestrator) pullLoop(ctx context.Context, session *models.SyncSession) {
	cursor, err := o.records.Cursor(ctx)
	if err != nil {
		o.logger.Err(err).Msg("failed to load pull cursor")
		return
	}

	for {
		if ctx.Err() != nil || o.netmon.Current() == models.NetworkOffline {
			return
		}

		page, err := o.transport.Pull(ctx, cursor, o.cfg.BatchSize)
		if err != nil {
			o.logger.Err(err).Msg("pull failed")
			session.Failed++
			return
		}
		if len(page.Changes) == 0 {
			return
		}

		for _, change := range page.Changes {
			o.applyRemote(ctx, change, session)
		}

		cursor = page.Cursor
		if err = o.records.SetCursor(ctx, cursor); err != nil {
			o.logger.Err(err).Msg("failed to persist pull cursor")
			o.metrics.RecordStorageFault()
			return
		}
	}
}

// applyRemote applies one remote change idempotently: duplicates
// short-circuit, clean fast-forwards converge, and divergence opens a
// conflict case.
func (o *Orchestrator) applyRemote(ctx context.Context, change models.PullChange, session *models.SyncSession) {
	session.BytesTransferred += int64(len(change.EncodedPayload))

	remote := models.SyncRecord{
		ID:            change.RecordID,
		EntityType:    change.EntityType,
		Payload:       change.EncodedPayload,
		LocalVersion:  change.RemoteVersion,
		RemoteVersion: change.RemoteVersion,
		UpdatedAt:     change.UpdatedAt,
		Deleted:       change.Op == models.OpDelete,
	}

	local, err := o.records.Get(ctx, change.RecordID)
	if errors.Is(err, store.ErrNotFound) {
		if err = o.records.Put(ctx, remote); err != nil {
			o.logger.Err(err).Str("record_id", change.RecordID).Msg("failed to apply new remote record")
			o.metrics.RecordStorageFault()
		}
		return
	}
	if err != nil {
		o.logger.Err(err).Str("record_id", change.RecordID).Msg("failed to load record for remote change")
		o.metrics.RecordStorageFault()
		return
	}

	if change.RemoteVersion <= local.RemoteVersion {
		// Duplicate or stale delivery, typically an echo of our own push.
		return
	}
	if o.queue.Suspended(local.ID) {
		// A case for this record is already open; its resolution will
		// reconcile against the newest remote state on the next push.
		return
	}

	if o.resolver.Detect(local, remote) == resolver.DetectionClean {
		merged := remote
		if err = o.records.Put(ctx, merged); err != nil {
			o.logger.Err(err).Str("record_id", change.RecordID).Msg("failed to fast-forward record")
			o.metrics.RecordStorageFault()
		}
		return
	}

	// Divergence on the pull path: gate the record's queued entries and
	// run it through the resolver.
	session.Conflicts++
	o.queue.Suspend(local.ID)
	o.openConflict(ctx, local, remote)
}

func (o *Orchestrator) armWake(wake *time.Timer) {
	if !wake.Stop() {
		select {
		case <-wake.C:
		default:
		}
	}

	now := o.now()
	next, ok := o.queue.NextWake(now)
	if !ok {
		wake.Reset(time.Duration(o.cfg.Interval))
		return
	}
	d := next.Sub(now)
	if d < 0 {
		d = 0
	}
	wake.Reset(d)
}

// notify feeds the scheduler loop without ever blocking a caller. Enqueue
// wakeups coalesce through the buffered channel: if it is full a drain is
// already pending, so dropping is safe. Everything else is a control event
// and is queued losslessly; a dropped pause or resolution would strand the
// record or keep a suspended engine syncing.
func (o *Orchestrator) notify(ev event) {
	if ev.kind == evEnqueued {
		select {
		case o.events <- ev:
		default:
		}
		return
	}

	o.ctrlMu.Lock()
	o.ctrl = append(o.ctrl, ev)
	o.ctrlMu.Unlock()

	select {
	case o.wakeups <- struct{}{}:
	default:
	}
}

// takeControl hands the pending control events to the loop in post order.
func (o *Orchestrator) takeControl() []event {
	o.ctrlMu.Lock()
	defer o.ctrlMu.Unlock()
	ctrl := o.ctrl
	o.ctrl = nil
	return ctrl
}

func (o *Orchestrator) Status() models.EngineStatus {
	o.mu.RLock()
	defer o.mu.RUnlock()
	return o.status
}

// PauseReason reports why the engine is suspended, or "" when it is not.
func (o *Orchestrator) PauseReason() string {
	o.mu.RLock()
	defer o.mu.RUnlock()
	return o.pauseReason
}

func (o *Orchestrator) setStatus(status models.EngineStatus) {
	o.mu.Lock()
	changed := o.status != status
	o.status = status
	o.mu.Unlock()

	if changed {
		o.metrics.SetEngineStatus(status)
		o.logger.Debug().Str("status", status.String()).Msg("orchestrator state changed")
	}
}

func (o *Orchestrator) isPaused() bool {
	o.mu.RLock()
	defer o.mu.RUnlock()
	return o.paused
}

func (o *Orchestrator) setPaused(paused bool, reason string) {
	o.mu.Lock()
	o.paused = paused
	o.pauseReason = reason
	o.mu.Unlock()
}
