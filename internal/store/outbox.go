// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 PaveTrack Systems

package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/pavetrack/field-sync/internal/logger"
	"github.com/pavetrack/field-sync/models"
)

type sqliteOutbox struct {
	*DB
	logger *logger.Logger
	now    func() time.Time
}

// NewOutbox builds the Outbox over the shared sqlite handle.
func NewOutbox(db *DB, log *logger.Logger) Outbox {
	return &sqliteOutbox{DB: db, logger: log, now: time.Now}
}

// Append implements Outbox. The record upsert and the outbox insert commit
// in one transaction; this transaction is also the serialization point for
// concurrent local edits to the same record.
func (o *sqliteOutbox) Append(ctx context.Context, m models.Mutation, encodedPayload []byte) (models.QueueEntry, error) {
	now := o.now().UTC()

	tx, err := o.DB.BeginTx(ctx, nil)
	if err != nil {
		return models.QueueEntry{}, fmt.Errorf("begin append tx: %w", mapSQLiteError(err))
	}
	defer tx.Rollback()

	current, err := o.currentRecord(ctx, tx, m.RecordID)
	if err != nil && !errors.Is(err, sql.ErrNoRows) {
		return models.QueueEntry{}, fmt.Errorf("read current record %s: %w", m.RecordID, mapSQLiteError(err))
	}

	next := models.SyncRecord{
		ID:            m.RecordID,
		EntityType:    m.EntityType,
		Payload:       encodedPayload,
		LocalVersion:  current.LocalVersion + 1,
		RemoteVersion: current.RemoteVersion,
		UpdatedAt:     now,
		Deleted:       m.Op == models.OpDelete,
	}
	if m.Op == models.OpDelete {
		// A delete keeps the last known payload so a later conflict can
		// still compare content.
		next.Payload = current.Payload
	}

	if _, err = tx.ExecContext(ctx, upsertRecord,
		next.ID, next.EntityType, next.Payload,
		next.LocalVersion, next.RemoteVersion, next.UpdatedAt, next.Deleted,
	); err != nil {
		err = mapSQLiteError(err)
		o.logger.Err(err).Str("record_id", m.RecordID).Msg("failed to upsert record on append")
		return models.QueueEntry{}, fmt.Errorf("append record upsert %s: %w", m.RecordID, err)
	}

	query, args, err := insertOutboxEntry().
		Values(m.RecordID, m.EntityType, string(m.Op), int(m.Priority), m.Urgent,
			current.RemoteVersion, int64(len(encodedPayload)), now).
		ToSql()
	if err != nil {
		return models.QueueEntry{}, fmt.Errorf("build append query: %w", err)
	}

	res, err := tx.ExecContext(ctx, query, args...)
	if err != nil {
		err = mapSQLiteError(err)
		o.logger.Err(err).Str("record_id", m.RecordID).Msg("failed to append outbox entry")
		return models.QueueEntry{}, fmt.Errorf("append outbox entry %s: %w", m.RecordID, err)
	}

	seq, err := res.LastInsertId()
	if err != nil {
		return models.QueueEntry{}, fmt.Errorf("append outbox seq %s: %w", m.RecordID, err)
	}

	if err = tx.Commit(); err != nil {
		return models.QueueEntry{}, fmt.Errorf("commit append tx: %w", mapSQLiteError(err))
	}

	return models.QueueEntry{
		RecordID:    m.RecordID,
		EntityType:  m.EntityType,
		Op:          m.Op,
		Priority:    m.Priority,
		Urgent:      m.Urgent,
		BaseVersion: current.RemoteVersion,
		SizeBytes:   int64(len(encodedPayload)),
		EnqueuedAt:  now,
		Seq:         uint64(seq),
	}, nil
}

func (o *sqliteOutbox) Ack(ctx context.Context, recordID string, seq uint64) error {
	query, args, err := deleteOutboxEntry(recordID, seq).ToSql()
	if err != nil {
		return fmt.Errorf("build ack query: %w", err)
	}

	if _, err = o.DB.ExecContext(ctx, query, args...); err != nil {
		err = mapSQLiteError(err)
		o.logger.Err(err).Str("record_id", recordID).Uint64("seq", seq).Msg("failed to ack outbox entry")
		return fmt.Errorf("ack outbox entry %s/%d: %w", recordID, seq, err)
	}

	return nil
}

func (o *sqliteOutbox) Pending(ctx context.Context) ([]models.QueueEntry, error) {
	query, args, err := selectPendingOutbox().ToSql()
	if err != nil {
		return nil, fmt.Errorf("build pending query: %w", err)
	}

	rows, err := o.DB.QueryContext(ctx, query, args...)
	if err != nil {
		err = mapSQLiteError(err)
		o.logger.Err(err).Msg("failed to list pending outbox entries")
		return nil, fmt.Errorf("pending outbox entries: %w", err)
	}
	defer rows.Close()

	var entries []models.QueueEntry
	for rows.Next() {
		var e models.QueueEntry
		var op string
		var priority int
		if err = rows.Scan(&e.Seq, &e.RecordID, &e.EntityType, &op, &priority,
			&e.Urgent, &e.BaseVersion, &e.SizeBytes, &e.EnqueuedAt); err != nil {
			return nil, fmt.Errorf("scan pending outbox row: %w", mapSQLiteError(err))
		}
		e.Op = models.Operation(op)
		e.Priority = models.Priority(priority)
		entries = append(entries, e)
	}
	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("pending outbox rows: %w", mapSQLiteError(err))
	}

	return entries, nil
}

func (o *sqliteOutbox) currentRecord(ctx context.Context, tx *sql.Tx, id string) (models.SyncRecord, error) {
	query, args, err := selectRecord(id).ToSql()
	if err != nil {
		return models.SyncRecord{}, err
	}
	return scanRecord(tx.QueryRowContext(ctx, query, args...))
}
