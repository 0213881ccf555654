// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 PaveTrack Systems

// Package queue implements the sync queue manager: a priority-ordered,
// retryable work queue derived from the outbox. The manager owns every
// QueueEntry from admission until confirmed success, dead-lettering, or
// promotion to a conflict case.
package queue

import (
	"math/rand"
	"sync"
	"time"

	"github.com/pavetrack/field-sync/internal/logger"
	"github.com/pavetrack/field-sync/models"
)

// Config carries the retry and gating policy. Exact constants are host
// configuration, not engine policy.
type Config struct {
	// BackoffBase and BackoffCap shape the retry schedule: attempt N
	// becomes eligible at now + BackoffBase * 2^(N-1), capped, plus
	// uniform jitter in [0, BackoffBase) to avoid a thundering herd on
	// reconnect.
	BackoffBase time.Duration
	BackoffCap  time.Duration

	// MaxAttempts is the retry budget; entries exceeding it are
	// dead-lettered instead of retried forever.
	MaxAttempts int

	// MeteredMaxBytes gates entries larger than this while the network is
	// metered, unless the entry is urgent.
	MeteredMaxBytes int64
}

// Manager is the sync queue manager. All methods are safe for concurrent
// use; the orchestrator is the only consumer of Next but admissions arrive
// from the outbox path.
type Manager struct {
	cfg    Config
	logger *logger.Logger

	mu        sync.Mutex
	entries   *entryHeap
	inflight  map[string]uint64             // recordID -> seq currently being attempted
	suspended map[string]bool               // records gated by an open conflict
	held      map[string]*models.QueueEntry // entries parked on a version conflict
	dead      []models.QueueEntry

	jitter func(time.Duration) time.Duration
}

func NewManager(cfg Config, log *logger.Logger) *Manager {
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = 8
	}
	if cfg.BackoffBase <= 0 {
		cfg.BackoffBase = 2 * time.Second
	}
	if cfg.BackoffCap < cfg.BackoffBase {
		cfg.BackoffCap = 5 * time.Minute
	}

	return &Manager{
		cfg:       cfg,
		logger:    log,
		entries:   newEntryHeap(),
		inflight:  make(map[string]uint64),
		suspended: make(map[string]bool),
		held:      make(map[string]*models.QueueEntry),
		jitter: func(base time.Duration) time.Duration {
			return time.Duration(rand.Int63n(int64(base)))
		},
	}
}

// Admit accepts an outbox entry draft into the active queue.
func (m *Manager) Admit(entry models.QueueEntry) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.entries.pushEntry(entry)
}

// Next returns the highest-priority admissible entry and marks it in
// flight, or nil when nothing is admissible. An entry is admissible when:
//
//   - its backoff gate has passed;
//   - its record has no earlier queued entry, no in-flight attempt, and no
//     open conflict (per-record order is preserved end to end);
//   - the network class admits its size: under Metered, entries above the
//     configured threshold wait for Unmetered unless urgent.
//
// Entries skipped for any of these reasons stay queued.
func (m *Manager) Next(now time.Time, class models.NetworkClass) *models.QueueEntry {
	if class == models.NetworkOffline {
		return nil
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	minSeqs := m.entries.minSeqs()
	picked := m.entries.popWhere(func(e *models.QueueEntry) bool {
		return m.admissibleLocked(e, minSeqs, now, class)
	})
	if picked == nil {
		return nil
	}

	m.inflight[picked.RecordID] = picked.Seq
	return picked
}

func (m *Manager) admissibleLocked(e *models.QueueEntry, minSeqs map[string]uint64, now time.Time, class models.NetworkClass) bool {
	if e.NextEligibleAt.After(now) {
		return false
	}
	if m.suspended[e.RecordID] {
		return false
	}
	if _, busy := m.inflight[e.RecordID]; busy {
		return false
	}
	if minSeqs[e.RecordID] < e.Seq {
		return false
	}
	if class == models.NetworkMetered && m.cfg.MeteredMaxBytes > 0 &&
		e.SizeBytes > m.cfg.MeteredMaxBytes && !e.Urgent {
		return false
	}
	return true
}

// Complete reports the outcome of an attempt on an entry previously
// returned by Next and decides its fate: done, backoff requeue,
// dead-letter, conflict hold, or cancellation requeue. It reports whether
// the entry was dead-lettered so the caller can retire its outbox backing;
// a dead-lettered entry must never be replayed after a restart.
func (m *Manager) Complete(entry *models.QueueEntry, outcome models.Outcome, now time.Time) (deadLettered bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	delete(m.inflight, entry.RecordID)

	switch outcome {
	case models.OutcomeSuccess:
		// Entry lifecycle ends here; the orchestrator acks the outbox.

	case models.OutcomeTransient:
		entry.Attempt++
		if entry.Attempt >= m.cfg.MaxAttempts {
			m.deadLetterLocked(entry, "retry budget exhausted")
			return true
		}
		entry.NextEligibleAt = now.Add(m.backoff(entry.Attempt))
		m.entries.pushEntry(*entry)

	case models.OutcomePermanent:
		m.deadLetterLocked(entry, "permanent failure")
		return true

	case models.OutcomeVersionConflict:
		// The record is handed to the conflict resolver; no further
		// attempts on it until the conflict resolves.
		m.suspended[entry.RecordID] = true
		m.held[entry.RecordID] = entry
		m.logger.Info().
			Str("record_id", entry.RecordID).
			Msg("record suspended pending conflict resolution")

	case models.OutcomeCanceled:
		// Canceled mid-flight (drain suspension): re-attemptable, not
		// counted against the budget, not double-counted as success.
		entry.NextEligibleAt = now
		m.entries.pushEntry(*entry)
	}
	return false
}

// backoff computes the delay before attempt+1. Strictly monotonic in the
// attempt number up to the cap.
func (m *Manager) backoff(attempt int) time.Duration {
	d := m.cfg.BackoffBase
	for i := 1; i < attempt; i++ {
		d *= 2
		if d >= m.cfg.BackoffCap {
			d = m.cfg.BackoffCap
			break
		}
	}
	return d + m.jitter(m.cfg.BackoffBase)
}

func (m *Manager) deadLetterLocked(entry *models.QueueEntry, reason string) {
	m.dead = append(m.dead, *entry)
	m.logger.Warn().
		Str("record_id", entry.RecordID).
		Uint64("seq", entry.Seq).
		Int("attempts", entry.Attempt).
		Str("reason", reason).
		Msg("queue entry dead-lettered")
}

// Suspend gates a record without holding an entry, for conflicts detected
// on the pull path. Queued entries for the record stay queued until
// Resolve lifts the gate.
func (m *Manager) Suspend(recordID string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.suspended[recordID] = true
}

// Resolve lifts the conflict suspension for a record. When requeue is true
// the held entry re-enters the queue immediately (the resolution kept the
// local change); otherwise the entry is dropped because the resolution
// superseded it, and the dropped entry is returned so the caller can
// retire its outbox backing.
func (m *Manager) Resolve(recordID string, requeue bool, now time.Time) (models.QueueEntry, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	delete(m.suspended, recordID)
	entry, ok := m.held[recordID]
	if !ok {
		return models.QueueEntry{}, false
	}
	delete(m.held, recordID)

	if requeue {
		entry.NextEligibleAt = now
		m.entries.pushEntry(*entry)
		return models.QueueEntry{}, false
	}
	return *entry, true
}

// Suspended reports whether a record is gated by an open conflict.
func (m *Manager) Suspended(recordID string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.suspended[recordID]
}

// DeadLetters returns a copy of the dead-letter set.
func (m *Manager) DeadLetters() []models.QueueEntry {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]models.QueueEntry, len(m.dead))
	copy(out, m.dead)
	return out
}

// Len is the number of queued (not in-flight, not dead-lettered) entries.
func (m *Manager) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.entries.Len()
}

// NextWake returns the earliest backoff expiry among queued entries, so the
// orchestrator can arm a timer instead of polling. ok is false when the
// queue holds nothing waiting on time.
func (m *Manager) NextWake(now time.Time) (time.Time, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var earliest time.Time
	found := false
	m.entries.forEach(func(e *models.QueueEntry) {
		if !e.NextEligibleAt.After(now) {
			return
		}
		if !found || e.NextEligibleAt.Before(earliest) {
			earliest = e.NextEligibleAt
			found = true
		}
	})
	return earliest, found
}
