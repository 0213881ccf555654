// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 PaveTrack Systems

package models

import "time"

// SyncRecord is the synchronizable state of one domain entity. The engine
// treats Payload as an opaque, domain-serialized blob; it never interprets
// payload semantics beyond what conflict comparison requires.
type SyncRecord struct {
	// ID is the stable, globally unique key of the record.
	ID string `json:"id"`

	// EntityType is an opaque tag supplied by the domain layer. It selects
	// the conflict-resolution strategy but carries no other meaning here.
	EntityType string `json:"entity_type"`

	// Payload is the domain-serialized record body. Stored encrypted; the
	// engine only ever sees it through the codec pipeline.
	Payload []byte `json:"payload"`

	// LocalVersion increments on every local mutation.
	LocalVersion int64 `json:"local_version"`

	// RemoteVersion is the last version confirmed by the remote authority.
	// Zero means the record has never been synced.
	RemoteVersion int64 `json:"remote_version"`

	// UpdatedAt is the local wall-clock time of the last mutation.
	UpdatedAt time.Time `json:"updated_at"`

	// Deleted marks the record as a tombstone. Tombstones are retained for
	// a retention window so late-arriving remote diffs can still be
	// reconciled, then garbage-collected.
	Deleted bool `json:"deleted"`
}

// HasPendingChanges reports whether the record carries local mutations the
// remote authority has not confirmed.
func (r *SyncRecord) HasPendingChanges() bool {
	return r.LocalVersion > r.RemoteVersion
}

// TableName returns the name of the database table backing SyncRecord.
func (r *SyncRecord) TableName() string {
	return "sync_records"
}
