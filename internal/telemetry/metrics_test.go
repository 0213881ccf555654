package telemetry

import (
	"io"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pavetrack/field-sync/models"
)

func TestMetrics_SnapshotAccumulates(t *testing.T) {
	m := New()

	started := time.Date(2026, 8, 1, 9, 0, 0, 0, time.UTC)
	m.RecordSession(models.SyncSession{
		ID:               "s1",
		StartedAt:        started,
		FinishedAt:       started.Add(2 * time.Second),
		NetworkClass:     models.NetworkUnmetered,
		Attempted:        5,
		Succeeded:        4,
		Failed:           1,
		BytesTransferred: 2048,
	})
	m.RecordSession(models.SyncSession{
		ID:           "s2",
		NetworkClass: models.NetworkMetered,
		Attempted:    2,
		Succeeded:    2,
	})

	m.RecordOutcome(models.OutcomeSuccess)
	m.RecordOutcome(models.OutcomePermanent)
	m.RecordConflictDetected()
	m.RecordConflictResolved(models.StrategyLastWriteWins)
	m.RecordStorageFault()

	snap := m.Snapshot()
	assert.Equal(t, int64(2), snap.Sessions)
	assert.Equal(t, int64(7), snap.Attempted)
	assert.Equal(t, int64(6), snap.Succeeded)
	assert.Equal(t, int64(1), snap.Failed)
	assert.Equal(t, int64(1), snap.DeadLettered)
	assert.Equal(t, int64(1), snap.ConflictsDetected)
	assert.Equal(t, int64(1), snap.ConflictsResolved)
	assert.Equal(t, int64(2048), snap.BytesTransferred)
	assert.Equal(t, int64(1), snap.StorageFaults)
}

func TestMetrics_HandlerExposesRegistry(t *testing.T) {
	m := New()
	m.SetQueueDepth(3)
	m.SetPendingConflicts(1)
	m.SetEngineStatus(models.StatusDraining)

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))
	require.Equal(t, 200, rec.Code)

	body, err := io.ReadAll(rec.Body)
	require.NoError(t, err)

	assert.Contains(t, string(body), "fieldsync_queue_depth 3")
	assert.Contains(t, string(body), `fieldsync_engine_status{status="draining"} 1`)
	assert.Contains(t, string(body), `fieldsync_engine_status{status="idle"} 0`)
}
