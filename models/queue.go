// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 PaveTrack Systems

package models

import "time"

// Operation is the kind of mutation a queue entry carries.
type Operation string

const (
	OpCreate Operation = "create"
	OpUpdate Operation = "update"
	OpDelete Operation = "delete"
)

// Priority orders queue entries. Lower values drain first.
type Priority int

const (
	// PriorityInteractive marks mutations originating from direct user
	// action; they drain before everything else.
	PriorityInteractive Priority = iota

	// PriorityBackground marks mutations produced by background domain
	// activity (autosave, periodic captures).
	PriorityBackground

	// PriorityBulk marks imports and other high-volume traffic.
	PriorityBulk
)

func (p Priority) String() string {
	switch p {
	case PriorityInteractive:
		return "interactive"
	case PriorityBackground:
		return "background"
	case PriorityBulk:
		return "bulk"
	default:
		return "unknown"
	}
}

// Outcome classifies the result of one attempt on a queue entry.
type Outcome int

const (
	// OutcomeSuccess: the remote authority applied the entry.
	OutcomeSuccess Outcome = iota

	// OutcomeTransient: network timeout or 5xx-equivalent; the entry is
	// retried with exponential backoff.
	OutcomeTransient

	// OutcomePermanent: malformed payload or schema rejection; the entry
	// moves to dead-letter and is never retried.
	OutcomePermanent

	// OutcomeVersionConflict: the remote advanced independently; the
	// entry's record is handed to the conflict resolver and further
	// attempts are suspended until the conflict resolves.
	OutcomeVersionConflict

	// OutcomeCanceled: the attempt was canceled mid-flight (drain
	// suspension); the entry stays re-attemptable and the attempt does
	// not count against the retry budget.
	OutcomeCanceled
)

func (o Outcome) String() string {
	switch o {
	case OutcomeSuccess:
		return "success"
	case OutcomeTransient:
		return "transient"
	case OutcomePermanent:
		return "permanent"
	case OutcomeVersionConflict:
		return "version_conflict"
	case OutcomeCanceled:
		return "canceled"
	default:
		return "unknown"
	}
}

// QueueEntry is one pending synchronization task. Entries are created from
// outbox entries, owned exclusively by the queue manager, and destroyed on
// confirmed success or promotion to a conflict case.
type QueueEntry struct {
	RecordID   string    `json:"record_id"`
	EntityType string    `json:"entity_type"`
	Op         Operation `json:"op"`
	Priority   Priority  `json:"priority"`

	// Urgent entries bypass the metered-network size gate.
	Urgent bool `json:"urgent,omitempty"`

	// Attempt counts delivery attempts made so far.
	Attempt int `json:"attempt"`

	// NextEligibleAt is the backoff gate; the entry is not offered by the
	// queue before this instant.
	NextEligibleAt time.Time `json:"next_eligible_at"`

	// SizeBytes is the post-codec payload size, used for metered gating.
	SizeBytes int64 `json:"size_bytes"`

	// BaseVersion is the remote version this mutation was made against.
	BaseVersion int64 `json:"base_version"`

	EnqueuedAt time.Time `json:"enqueued_at"`

	// Seq is the outbox append sequence. It breaks FIFO ties inside a
	// priority tier and preserves per-record ordering.
	Seq uint64 `json:"seq"`
}
