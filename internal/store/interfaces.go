// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 PaveTrack Systems

// Package store implements the engine's local persistence: the durable
// record store (ground truth for what is known locally) and the outbox
// (ordered log of not-yet-confirmed local mutations). Both live in one
// sqlite database so an outbox append and its record upsert commit in a
// single transaction.
package store

import (
	"context"
	"time"

	"github.com/pavetrack/field-sync/models"
)

// DurableStore is the crash-consistent record store. Put is atomic per
// record: after it returns nil, the full record survives a process restart.
type DurableStore interface {
	Put(ctx context.Context, record models.SyncRecord) error
	Get(ctx context.Context, id string) (models.SyncRecord, error)

	// Delete tombstones the record: the row is kept, Deleted is set and
	// LocalVersion advances, so a late remote diff can still reconcile.
	Delete(ctx context.Context, id string, at time.Time) error

	// ScanPending returns records with unsynced local changes
	// (LocalVersion > RemoteVersion) in insertion order.
	ScanPending(ctx context.Context) ([]models.SyncRecord, error)

	// SweepTombstones removes tombstones older than the retention cutoff.
	// Returns the number of rows collected.
	SweepTombstones(ctx context.Context, olderThan time.Time) (int64, error)

	// Cursor and SetCursor persist the pull cursor so a restart resumes
	// the remote change stream where it left off.
	Cursor(ctx context.Context) (string, error)
	SetCursor(ctx context.Context, cursor string) error
}

// Outbox is the ordered change log of locally-originated mutations.
type Outbox interface {
	// Append durably records the mutation and upserts the backing record
	// (LocalVersion++) in the same transaction. Returning nil means
	// "durably queued", not "synced". encodedPayload is the post-codec
	// blob; it is what gets persisted and later transmitted.
	Append(ctx context.Context, m models.Mutation, encodedPayload []byte) (models.QueueEntry, error)

	// Ack removes the pending entry identified by its append sequence,
	// after the remote authority confirmed it.
	Ack(ctx context.Context, recordID string, seq uint64) error

	// Pending returns unconfirmed entries oldest-first for replay after a
	// restart. Entries for the same record are never reordered.
	Pending(ctx context.Context) ([]models.QueueEntry, error)
}
