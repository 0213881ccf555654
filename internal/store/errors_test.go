package store

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/mattn/go-sqlite3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pavetrack/field-sync/internal/logger"
)

func TestMapSQLiteError(t *testing.T) {
	tests := []struct {
		name string
		in   error
		want error
	}{
		{"nil passes through", nil, nil},
		{"disk full", sqlite3.Error{Code: sqlite3.ErrFull}, ErrStorageFull},
		{"row too big", sqlite3.Error{Code: sqlite3.ErrTooBig}, ErrStorageFull},
		{"corrupt database", sqlite3.Error{Code: sqlite3.ErrCorrupt}, ErrCorrupt},
		{"not a database", sqlite3.Error{Code: sqlite3.ErrNotADB}, ErrCorrupt},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := mapSQLiteError(tt.in)
			if tt.want == nil {
				assert.NoError(t, got)
				return
			}
			assert.ErrorIs(t, got, tt.want)
		})
	}
}

func TestMapSQLiteError_UnknownErrorPassesThrough(t *testing.T) {
	in := fmt.Errorf("wrapped: %w", sqlite3.Error{Code: sqlite3.ErrBusy})
	got := mapSQLiteError(in)

	assert.NotErrorIs(t, got, ErrStorageFull)
	assert.NotErrorIs(t, got, ErrCorrupt)
	assert.ErrorIs(t, got, in)
}

// The sqlmock tests verify that driver failures surface through the
// repository with the mapped taxonomy attached.
func TestRecordRepository_Put_MapsDriverErrors(t *testing.T) {
	conn, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer conn.Close()

	mock.ExpectExec("INSERT INTO sync_records").
		WillReturnError(sqlite3.Error{Code: sqlite3.ErrFull})

	repo := NewRecordRepository(&DB{DB: conn, logger: logger.Nop()}, logger.Nop())
	err = repo.Put(context.Background(), rec("r1", 1, 0))

	assert.ErrorIs(t, err, ErrStorageFull)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRecordRepository_Get_SurfacesCorruption(t *testing.T) {
	conn, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer conn.Close()

	mock.ExpectQuery("SELECT (.+) FROM sync_records").
		WillReturnError(sqlite3.Error{Code: sqlite3.ErrCorrupt})

	repo := NewRecordRepository(&DB{DB: conn, logger: logger.Nop()}, logger.Nop())
	_, err = repo.Get(context.Background(), "r1")

	assert.ErrorIs(t, err, ErrCorrupt)
	assert.False(t, errors.Is(err, ErrNotFound))
	assert.NoError(t, mock.ExpectationsWereMet())
}
