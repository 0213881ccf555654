// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 PaveTrack Systems

// Package authority is an in-memory reference implementation of the remote
// side of the sync protocol. It evaluates pushes against per-record
// versions, answers pulls from an ordered change log, and stores payloads
// opaquely. It backs cmd/syncserver and the transport tests; it is not a
// production server.
package authority

import (
	"strconv"
	"sync"
	"time"

	"github.com/pavetrack/field-sync/models"
)

type record struct {
	entityType string
	payload    []byte
	version    int64
	deleted    bool
	updatedAt  time.Time
}

// Authority holds all remote state behind one mutex. Every accepted
// mutation appends to the change log; pull cursors are positions in it.
type Authority struct {
	mu      sync.Mutex
	records map[string]*record
	log     []models.PullChange

	now func() time.Time
}

func New() *Authority {
	return &Authority{
		records: make(map[string]*record),
		now:     time.Now,
	}
}

// ApplyPush evaluates each item independently against the stored version
// and returns one result per item, in batch order. An item applies when
// its base version matches the stored version (0 for a new record);
// otherwise the result carries the current remote state so the client can
// resolve without another round trip.
func (a *Authority) ApplyPush(items []models.PushItem) []models.PushResult {
	a.mu.Lock()
	defer a.mu.Unlock()

	results := make([]models.PushResult, 0, len(items))
	for _, item := range items {
		results = append(results, a.applyLocked(item))
	}
	return results
}

func (a *Authority) applyLocked(item models.PushItem) models.PushResult {
	cur := a.records[item.RecordID]

	var curVersion int64
	if cur != nil {
		curVersion = cur.version
	}

	if item.BaseVersion != curVersion {
		res := models.PushResult{
			RecordID:      item.RecordID,
			Conflict:      true,
			CurrentRemote: curVersion,
		}
		if cur != nil {
			res.CurrentPayload = cur.payload
			res.CurrentDeleted = cur.deleted
			res.CurrentUpdatedAt = cur.updatedAt
		}
		return res
	}

	now := a.now().UTC()
	next := &record{
		entityType: item.EntityType,
		payload:    item.EncodedPayload,
		version:    curVersion + 1,
		deleted:    item.Op == models.OpDelete,
		updatedAt:  now,
	}
	if next.deleted && cur != nil {
		// Tombstones keep the last payload, mirroring the client store.
		next.payload = cur.payload
		next.entityType = cur.entityType
	}
	a.records[item.RecordID] = next

	a.log = append(a.log, models.PullChange{
		RecordID:       item.RecordID,
		EntityType:     next.entityType,
		EncodedPayload: next.payload,
		RemoteVersion:  next.version,
		Op:             item.Op,
		UpdatedAt:      now,
	})

	return models.PushResult{
		RecordID:         item.RecordID,
		Applied:          true,
		NewRemoteVersion: next.version,
	}
}

// ChangesSince returns at most limit changes recorded after the cursor,
// plus the cursor to resume from. An empty cursor starts from the
// beginning of the log. Unknown cursors read as empty.
func (a *Authority) ChangesSince(cursor string, limit int) models.PullPage {
	a.mu.Lock()
	defer a.mu.Unlock()

	from, _ := strconv.Atoi(cursor)
	if from < 0 || from > len(a.log) {
		from = 0
	}
	if limit <= 0 {
		limit = 100
	}

	to := from + limit
	if to > len(a.log) {
		to = len(a.log)
	}

	page := models.PullPage{
		Changes: append([]models.PullChange(nil), a.log[from:to]...),
		Cursor:  strconv.Itoa(to),
	}
	return page
}

// Record returns the stored state of one record, for tests.
func (a *Authority) Record(recordID string) (payload []byte, version int64, deleted bool, ok bool) {
	a.mu.Lock()
	defer a.mu.Unlock()

	cur, ok := a.records[recordID]
	if !ok {
		return nil, 0, false, false
	}
	return cur.payload, cur.version, cur.deleted, true
}
