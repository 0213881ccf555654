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

type recordRepository struct {
	*DB
	logger *logger.Logger
}

// NewRecordRepository builds the DurableStore over the shared sqlite
// handle.
func NewRecordRepository(db *DB, log *logger.Logger) DurableStore {
	return &recordRepository{DB: db, logger: log}
}

func (r *recordRepository) Put(ctx context.Context, record models.SyncRecord) error {
	if record.LocalVersion < record.RemoteVersion {
		return fmt.Errorf("record %s violates version invariant: local %d < remote %d",
			record.ID, record.LocalVersion, record.RemoteVersion)
	}

	_, err := r.DB.ExecContext(ctx, upsertRecord,
		record.ID,
		record.EntityType,
		record.Payload,
		record.LocalVersion,
		record.RemoteVersion,
		record.UpdatedAt,
		record.Deleted,
	)
	if err != nil {
		err = mapSQLiteError(err)
		r.logger.Err(err).Str("record_id", record.ID).Msg("failed to upsert sync record")
		return fmt.Errorf("put record %s: %w", record.ID, err)
	}

	return nil
}

func (r *recordRepository) Get(ctx context.Context, id string) (models.SyncRecord, error) {
	query, args, err := selectRecord(id).ToSql()
	if err != nil {
		return models.SyncRecord{}, fmt.Errorf("build get query: %w", err)
	}

	row := r.DB.QueryRowContext(ctx, query, args...)
	record, err := scanRecord(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return models.SyncRecord{}, fmt.Errorf("get record %s: %w", id, ErrNotFound)
		}
		err = mapSQLiteError(err)
		r.logger.Err(err).Str("record_id", id).Msg("failed to read sync record")
		return models.SyncRecord{}, fmt.Errorf("get record %s: %w", id, err)
	}

	return record, nil
}

func (r *recordRepository) Delete(ctx context.Context, id string, at time.Time) error {
	res, err := r.DB.ExecContext(ctx, tombstoneRecord, at, id)
	if err != nil {
		err = mapSQLiteError(err)
		r.logger.Err(err).Str("record_id", id).Msg("failed to tombstone sync record")
		return fmt.Errorf("tombstone record %s: %w", id, err)
	}

	affected, err := res.RowsAffected()
	if err == nil && affected == 0 {
		return fmt.Errorf("tombstone record %s: %w", id, ErrNotFound)
	}

	return nil
}

func (r *recordRepository) ScanPending(ctx context.Context) ([]models.SyncRecord, error) {
	query, args, err := selectPendingRecords().ToSql()
	if err != nil {
		return nil, fmt.Errorf("build scan query: %w", err)
	}

	rows, err := r.DB.QueryContext(ctx, query, args...)
	if err != nil {
		err = mapSQLiteError(err)
		r.logger.Err(err).Msg("failed to scan pending records")
		return nil, fmt.Errorf("scan pending: %w", err)
	}
	defer rows.Close()

	var records []models.SyncRecord
	for rows.Next() {
		record, scanErr := scanRecord(rows)
		if scanErr != nil {
			return nil, fmt.Errorf("scan pending row: %w", mapSQLiteError(scanErr))
		}
		records = append(records, record)
	}
	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("scan pending rows: %w", mapSQLiteError(err))
	}

	return records, nil
}

func (r *recordRepository) SweepTombstones(ctx context.Context, olderThan time.Time) (int64, error) {
	query, args, err := deleteExpiredTombstones(olderThan).ToSql()
	if err != nil {
		return 0, fmt.Errorf("build sweep query: %w", err)
	}

	res, err := r.DB.ExecContext(ctx, query, args...)
	if err != nil {
		err = mapSQLiteError(err)
		r.logger.Err(err).Msg("failed to sweep tombstones")
		return 0, fmt.Errorf("sweep tombstones: %w", err)
	}

	collected, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("sweep tombstones affected rows: %w", err)
	}

	if collected > 0 {
		r.logger.Info().Int64("collected", collected).Msg("tombstones garbage-collected")
	}
	return collected, nil
}

func (r *recordRepository) Cursor(ctx context.Context) (string, error) {
	var cursor string
	err := r.DB.QueryRowContext(ctx, "SELECT cursor FROM sync_cursor WHERE id = 1;").Scan(&cursor)
	if errors.Is(err, sql.ErrNoRows) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("read pull cursor: %w", mapSQLiteError(err))
	}
	return cursor, nil
}

func (r *recordRepository) SetCursor(ctx context.Context, cursor string) error {
	if _, err := r.DB.ExecContext(ctx, setCursor, cursor); err != nil {
		return fmt.Errorf("store pull cursor: %w", mapSQLiteError(err))
	}
	return nil
}

// rowScanner covers both *sql.Row and *sql.Rows.
type rowScanner interface {
	Scan(dest ...any) error
}

func scanRecord(row rowScanner) (models.SyncRecord, error) {
	var record models.SyncRecord
	err := row.Scan(
		&record.ID,
		&record.EntityType,
		&record.Payload,
		&record.LocalVersion,
		&record.RemoteVersion,
		&record.UpdatedAt,
		&record.Deleted,
	)
	return record, err
}
