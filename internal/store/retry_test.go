package store

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pavetrack/field-sync/internal/logger"
	"github.com/pavetrack/field-sync/models"
)

// flakyStore fails Put a fixed number of times before succeeding. A small
// hand-rolled stub avoids mockgen here.
type flakyStore struct {
	DurableStore

	failures int
	err      error
	calls    int
}

func (f *flakyStore) Put(ctx context.Context, record models.SyncRecord) error {
	f.calls++
	if f.calls <= f.failures {
		return f.err
	}
	return nil
}

func TestRetryingStore_Put_RecoversFromStorageFull(t *testing.T) {
	inner := &flakyStore{failures: 2, err: ErrStorageFull}
	s := NewRetryingStore(inner, time.Millisecond, 5, logger.Nop())

	err := s.Put(context.Background(), models.SyncRecord{ID: "r1", LocalVersion: 1})

	require.NoError(t, err)
	assert.Equal(t, 3, inner.calls)
}

func TestRetryingStore_Put_GivesUpAfterBudget(t *testing.T) {
	inner := &flakyStore{failures: 100, err: ErrStorageFull}
	s := NewRetryingStore(inner, time.Millisecond, 3, logger.Nop())

	err := s.Put(context.Background(), models.SyncRecord{ID: "r1", LocalVersion: 1})

	assert.ErrorIs(t, err, ErrStorageFull)
	assert.Equal(t, 3, inner.calls)
}

func TestRetryingStore_Put_DoesNotRetryCorruption(t *testing.T) {
	inner := &flakyStore{failures: 100, err: ErrCorrupt}
	s := NewRetryingStore(inner, time.Millisecond, 5, logger.Nop())

	err := s.Put(context.Background(), models.SyncRecord{ID: "r1", LocalVersion: 1})

	assert.ErrorIs(t, err, ErrCorrupt)
	assert.Equal(t, 1, inner.calls)
}
