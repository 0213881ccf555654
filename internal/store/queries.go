package store

import (
	sq "github.com/Masterminds/squirrel"
)

// sqlite uses ? placeholders; keep a single builder so every query agrees.
var qb = sq.StatementBuilder.PlaceholderFormat(sq.Question)

const recordColumns = "id, entity_type, payload, local_version, remote_version, updated_at, deleted"

const upsertRecord = `INSERT INTO sync_records
		(id, entity_type, payload, local_version, remote_version, updated_at, deleted)
	VALUES (?, ?, ?, ?, ?, ?, ?)
	ON CONFLICT(id) DO UPDATE SET
		entity_type    = excluded.entity_type,
		payload        = excluded.payload,
		local_version  = excluded.local_version,
		remote_version = excluded.remote_version,
		updated_at     = excluded.updated_at,
		deleted        = excluded.deleted;`

const tombstoneRecord = `UPDATE sync_records
	SET deleted = 1, local_version = local_version + 1, updated_at = ?
	WHERE id = ?;`

const setCursor = `INSERT INTO sync_cursor (id, cursor) VALUES (1, ?)
	ON CONFLICT(id) DO UPDATE SET cursor = excluded.cursor;`

func selectRecord(id string) sq.SelectBuilder {
	return qb.Select(recordColumns).
		From("sync_records").
		Where(sq.Eq{"id": id})
}

func selectPendingRecords() sq.SelectBuilder {
	return qb.Select(recordColumns).
		From("sync_records").
		Where(sq.Expr("local_version > remote_version")).
		OrderBy("rowid ASC")
}

func deleteExpiredTombstones(cutoff any) sq.DeleteBuilder {
	// Tombstones with an unsynced local version still have a delete to
	// push; they outlive the retention window until confirmed.
	return qb.Delete("sync_records").
		Where(sq.Eq{"deleted": 1}).
		Where(sq.Expr("remote_version >= local_version")).
		Where(sq.Lt{"updated_at": cutoff})
}

const outboxColumns = "seq, record_id, entity_type, op, priority, urgent, base_version, size_bytes, enqueued_at"

func insertOutboxEntry() sq.InsertBuilder {
	return qb.Insert("outbox_entries").
		Columns("record_id", "entity_type", "op", "priority", "urgent", "base_version", "size_bytes", "enqueued_at")
}

func selectPendingOutbox() sq.SelectBuilder {
	return qb.Select(outboxColumns).
		From("outbox_entries").
		OrderBy("seq ASC")
}

func deleteOutboxEntry(recordID string, seq uint64) sq.DeleteBuilder {
	return qb.Delete("outbox_entries").
		Where(sq.Eq{"record_id": recordID, "seq": seq})
}
