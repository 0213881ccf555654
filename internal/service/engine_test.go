package service

import (
	"context"
	"crypto/rand"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pavetrack/field-sync/internal/adapter"
	"github.com/pavetrack/field-sync/internal/authority"
	"github.com/pavetrack/field-sync/internal/codec"
	"github.com/pavetrack/field-sync/internal/config"
	"github.com/pavetrack/field-sync/internal/logger"
	"github.com/pavetrack/field-sync/internal/netmon"
	"github.com/pavetrack/field-sync/internal/queue"
	"github.com/pavetrack/field-sync/internal/resolver"
	"github.com/pavetrack/field-sync/internal/store"
	"github.com/pavetrack/field-sync/internal/telemetry"
	"github.com/pavetrack/field-sync/models"
)

// harness wires a full engine against the in-memory authority over a real
// HTTP round trip. Tests drive the orchestrator synchronously instead of
// running its loop, so nothing is timing-sensitive.
type harness struct {
	engine    *Engine
	orch      *Orchestrator
	records   store.DurableStore
	queue     *queue.Manager
	resolver  *resolver.Resolver
	monitor   *netmon.Monitor
	authority *authority.Authority
	pipeline  *codec.Pipeline
	metrics   *telemetry.Metrics
}

func newHarness(t *testing.T, resCfg resolver.Config, initial models.NetworkClass) *harness {
	t.Helper()
	ctx := context.Background()

	db, err := store.Open(ctx, filepath.Join(t.TempDir(), "sync.db"), logger.Nop())
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	records := store.NewRecordRepository(db, logger.Nop())
	outbox := store.NewOutbox(db, logger.Nop())

	keys := codec.NewKeyring()
	require.NoError(t, keys.SetActive(1, []byte("engine-test-key")))
	pipeline := codec.NewPipeline(keys, 64, logger.Nop())

	auth := authority.New()
	srv := httptest.NewServer(authority.NewHandler(auth, logger.Nop()).Init())
	t.Cleanup(srv.Close)

	transport, err := adapter.NewHTTPTransport(config.Remote{
		BaseURL:        srv.URL,
		RequestTimeout: config.Duration(5 * time.Second),
	}, logger.Nop())
	require.NoError(t, err)

	monitor := netmon.New(initial, 0, logger.Nop())
	t.Cleanup(monitor.Stop)

	qm := queue.NewManager(queue.Config{
		BackoffBase:     10 * time.Millisecond,
		BackoffCap:      100 * time.Millisecond,
		MaxAttempts:     3,
		MeteredMaxBytes: 1 << 20,
	}, logger.Nop())

	res := resolver.New(resCfg, records, pipeline, logger.Nop())
	metrics := telemetry.New()

	orch := NewOrchestrator(config.Sync{
		BatchSize: 10,
		Interval:  config.Duration(time.Minute),
	}, records, outbox, qm, res, transport, monitor, metrics, logger.Nop())

	return &harness{
		engine:    NewEngine(pipeline, outbox, qm, res, orch, metrics, logger.Nop()),
		orch:      orch,
		records:   records,
		queue:     qm,
		resolver:  res,
		monitor:   monitor,
		authority: auth,
		pipeline:  pipeline,
		metrics:   metrics,
	}
}

// pump applies queued scheduler events synchronously, control first, the
// way the loop does.
func (h *harness) pump(ctx context.Context) {
	for {
		ctrl := h.orch.takeControl()
		for _, ev := range ctrl {
			h.orch.handle(ctx, ev)
		}

		select {
		case <-h.orch.wakeups:
		case ev := <-h.orch.events:
			h.orch.handle(ctx, ev)
		default:
			if len(ctrl) == 0 {
				return
			}
		}
	}
}

func (h *harness) enqueue(t *testing.T, id string, payload []byte) models.QueueEntry {
	t.Helper()
	entry, err := h.engine.EnqueueMutation(context.Background(), models.Mutation{
		RecordID:   id,
		EntityType: "project",
		Payload:    payload,
		Op:         models.OpUpdate,
		Priority:   models.PriorityInteractive,
	})
	require.NoError(t, err)
	return entry
}

// seedRemote pushes a record into the authority as if another device made
// it, and returns the resulting remote version.
func (h *harness) seedRemote(t *testing.T, id string, payload []byte) int64 {
	t.Helper()
	encoded, err := h.pipeline.Encode(payload)
	require.NoError(t, err)
	results := h.authority.ApplyPush([]models.PushItem{
		{RecordID: id, EntityType: "project", EncodedPayload: encoded, BaseVersion: 0, Op: models.OpCreate},
	})
	require.True(t, results[0].Applied)
	return results[0].NewRemoteVersion
}

func TestEngine_OfflineEditThenReconnect_PushesExactlyOnce(t *testing.T) {
	h := newHarness(t, resolver.Config{}, models.NetworkOffline)
	ctx := context.Background()

	h.enqueue(t, "r1", []byte(`{"name":"culvert 4"}`))
	h.orch.maybeDrain(ctx)

	assert.Equal(t, models.StatusAwaitingNetwork, h.engine.Status())
	_, _, _, found := h.authority.Record("r1")
	assert.False(t, found, "nothing may reach the authority while offline")

	h.monitor.Report(models.NetworkUnmetered)
	h.orch.maybeDrain(ctx)

	_, version, _, found := h.authority.Record("r1")
	require.True(t, found)
	assert.Equal(t, int64(1), version)
	assert.Equal(t, models.StatusIdle, h.engine.Status())
	assert.Zero(t, h.queue.Len())

	local, err := h.records.Get(ctx, "r1")
	require.NoError(t, err)
	assert.Equal(t, int64(1), local.RemoteVersion)
	assert.False(t, local.HasPendingChanges())

	// A second drain must not replay the confirmed mutation.
	h.orch.maybeDrain(ctx)
	_, version, _, _ = h.authority.Record("r1")
	assert.Equal(t, int64(1), version)

	snap := h.engine.Telemetry()
	assert.Equal(t, int64(1), snap.Succeeded)
	assert.Zero(t, snap.Failed)
}

func TestEngine_PullAppliesRemoteChanges(t *testing.T) {
	h := newHarness(t, resolver.Config{}, models.NetworkUnmetered)
	ctx := context.Background()

	h.seedRemote(t, "r1", []byte(`{"name":"bridge deck"}`))
	h.seedRemote(t, "r2", []byte(`{"name":"guardrail"}`))

	h.orch.maybeDrain(ctx)

	for _, id := range []string{"r1", "r2"} {
		local, err := h.records.Get(ctx, id)
		require.NoError(t, err)
		assert.Equal(t, int64(1), local.RemoteVersion)
		assert.False(t, local.HasPendingChanges())
	}

	// Re-applying the same stream is a no-op.
	before, err := h.records.Get(ctx, "r1")
	require.NoError(t, err)
	h.orch.maybeDrain(ctx)
	after, err := h.records.Get(ctx, "r1")
	require.NoError(t, err)
	assert.Equal(t, before, after)
}

func TestEngine_PushConflict_AutoResolvedByLastWriteWins(t *testing.T) {
	h := newHarness(t, resolver.Config{}, models.NetworkUnmetered)
	ctx := context.Background()

	h.seedRemote(t, "r1", []byte(`{"name":"their edit"}`))

	// The local edit is made blind against version 0 but is newer, so
	// last-write-wins keeps it and the resolution is pushed in the same
	// drain.
	h.enqueue(t, "r1", []byte(`{"name":"our edit"}`))
	h.orch.maybeDrain(ctx)

	payload, version, _, found := h.authority.Record("r1")
	require.True(t, found)
	assert.Equal(t, int64(2), version)

	plain, err := h.pipeline.Decode(payload)
	require.NoError(t, err)
	assert.JSONEq(t, `{"name":"our edit"}`, string(plain))

	local, err := h.records.Get(ctx, "r1")
	require.NoError(t, err)
	assert.Equal(t, int64(2), local.RemoteVersion)
	assert.False(t, local.HasPendingChanges())
	assert.False(t, h.queue.Suspended("r1"))
	assert.Zero(t, h.engine.PendingConflicts())

	snap := h.engine.Telemetry()
	assert.Equal(t, int64(1), snap.ConflictsDetected)
	assert.Equal(t, int64(1), snap.ConflictsResolved)
}

func TestEngine_ManualConflict_SupplyResolution(t *testing.T) {
	h := newHarness(t, resolver.Config{
		Strategies: map[string]models.Strategy{"project": models.StrategyManual},
	}, models.NetworkUnmetered)
	ctx := context.Background()

	var notified []models.ConflictCase
	h.engine.SubscribeToConflicts(func(c models.ConflictCase) {
		notified = append(notified, c)
	})

	h.seedRemote(t, "r1", []byte(`{"name":"their edit"}`))
	h.enqueue(t, "r1", []byte(`{"name":"our edit"}`))
	h.orch.maybeDrain(ctx)

	require.Len(t, notified, 1)
	assert.Equal(t, "r1", notified[0].RecordID)
	assert.Equal(t, 1, h.engine.PendingConflicts())
	assert.True(t, h.queue.Suspended("r1"))

	// Further drains do not touch the suspended record.
	h.orch.maybeDrain(ctx)
	_, version, _, _ := h.authority.Record("r1")
	assert.Equal(t, int64(1), version)

	require.NoError(t, h.engine.SupplyManualResolution(ctx, notified[0].ID, []byte(`{"name":"merged"}`)))
	h.pump(ctx)

	assert.Zero(t, h.engine.PendingConflicts())
	assert.False(t, h.queue.Suspended("r1"))

	payload, version, _, _ := h.authority.Record("r1")
	assert.Equal(t, int64(2), version)
	plain, err := h.pipeline.Decode(payload)
	require.NoError(t, err)
	assert.JSONEq(t, `{"name":"merged"}`, string(plain))
}

func TestEngine_ManualResolutionSurvivesEnqueueBurst(t *testing.T) {
	h := newHarness(t, resolver.Config{
		Strategies: map[string]models.Strategy{"project": models.StrategyManual},
	}, models.NetworkUnmetered)
	ctx := context.Background()

	var caseID string
	h.engine.SubscribeToConflicts(func(c models.ConflictCase) { caseID = c.ID })

	h.seedRemote(t, "r1", []byte(`{"name":"their edit"}`))
	h.enqueue(t, "r1", []byte(`{"name":"our edit"}`))
	h.orch.maybeDrain(ctx)
	require.NotEmpty(t, caseID)

	// A bulk-enqueue burst saturates the wakeup buffer. The resolution
	// posted on top of it must still reach the scheduler, or the record
	// stays suspended with its merge never pushed.
	for i := 0; i < 2*cap(h.orch.events); i++ {
		h.orch.notify(event{kind: evEnqueued})
	}
	require.NoError(t, h.engine.SupplyManualResolution(ctx, caseID, []byte(`{"name":"merged"}`)))
	h.pump(ctx)

	assert.Zero(t, h.engine.PendingConflicts())
	assert.False(t, h.queue.Suspended("r1"))

	payload, version, _, _ := h.authority.Record("r1")
	assert.Equal(t, int64(2), version)
	plain, err := h.pipeline.Decode(payload)
	require.NoError(t, err)
	assert.JSONEq(t, `{"name":"merged"}`, string(plain))
}

func TestEngine_MeteredGateReportsAwaitingNetwork(t *testing.T) {
	h := newHarness(t, resolver.Config{}, models.NetworkMetered)
	ctx := context.Background()

	// Random bytes do not compress, so the encoded entry stays over the
	// 1 MiB metered gate.
	payload := make([]byte, 2<<20)
	_, err := rand.Read(payload)
	require.NoError(t, err)

	h.enqueue(t, "r1", payload)
	h.orch.maybeDrain(ctx)

	// Gated, not done: the entry is still queued and the engine reports
	// that it is waiting rather than idle.
	assert.Equal(t, 1, h.queue.Len())
	assert.Equal(t, models.StatusAwaitingNetwork, h.engine.Status())
	_, _, _, found := h.authority.Record("r1")
	assert.False(t, found)

	h.monitor.Report(models.NetworkUnmetered)
	h.orch.maybeDrain(ctx)

	_, version, _, found := h.authority.Record("r1")
	require.True(t, found)
	assert.Equal(t, int64(1), version)
	assert.Equal(t, models.StatusIdle, h.engine.Status())
}

func TestEngine_ManualConflict_Abandon(t *testing.T) {
	h := newHarness(t, resolver.Config{
		Strategies: map[string]models.Strategy{"project": models.StrategyManual},
	}, models.NetworkUnmetered)
	ctx := context.Background()

	var caseID string
	h.engine.SubscribeToConflicts(func(c models.ConflictCase) { caseID = c.ID })

	h.seedRemote(t, "r1", []byte(`{"name":"their edit"}`))
	h.enqueue(t, "r1", []byte(`{"name":"our edit"}`))
	h.orch.maybeDrain(ctx)
	require.NotEmpty(t, caseID)

	require.NoError(t, h.engine.AbandonConflict(caseID))
	h.pump(ctx)

	assert.Zero(t, h.engine.PendingConflicts())
	assert.False(t, h.queue.Suspended("r1"))

	// The local change was dropped; the authority keeps their edit.
	_, version, _, _ := h.authority.Record("r1")
	assert.Equal(t, int64(1), version)

	// The superseded mutation was retired from the outbox, so a restart
	// cannot resurrect it.
	pending, err := h.orch.outbox.Pending(ctx)
	require.NoError(t, err)
	assert.Empty(t, pending)

	assert.ErrorIs(t, h.engine.AbandonConflict(caseID), resolver.ErrCaseNotPending)
}

func TestEngine_DeletePropagates(t *testing.T) {
	h := newHarness(t, resolver.Config{}, models.NetworkUnmetered)
	ctx := context.Background()

	h.enqueue(t, "r1", []byte(`{"name":"survey point"}`))
	h.orch.maybeDrain(ctx)

	_, err := h.engine.EnqueueMutation(ctx, models.Mutation{
		RecordID: "r1", EntityType: "project", Op: models.OpDelete,
		Priority: models.PriorityInteractive,
	})
	require.NoError(t, err)
	h.orch.maybeDrain(ctx)

	_, version, deleted, found := h.authority.Record("r1")
	require.True(t, found)
	assert.True(t, deleted)
	assert.Equal(t, int64(2), version)
}

func TestEngine_PauseSuspendsDraining(t *testing.T) {
	h := newHarness(t, resolver.Config{}, models.NetworkUnmetered)
	ctx := context.Background()

	h.engine.Pause("host requested")
	h.pump(ctx)
	assert.Equal(t, models.StatusSuspended, h.engine.Status())
	assert.Equal(t, "host requested", h.engine.PauseReason())

	h.enqueue(t, "r1", []byte(`{"name":"while paused"}`))
	h.pump(ctx)
	h.orch.maybeDrain(ctx)

	_, _, _, found := h.authority.Record("r1")
	assert.False(t, found, "paused engine must not sync")

	h.engine.Resume()
	h.pump(ctx)

	assert.Empty(t, h.engine.PauseReason())
	_, version, _, found := h.authority.Record("r1")
	require.True(t, found)
	assert.Equal(t, int64(1), version)
}

func TestEngine_EnqueueValidation(t *testing.T) {
	h := newHarness(t, resolver.Config{}, models.NetworkOffline)
	ctx := context.Background()

	_, err := h.engine.EnqueueMutation(ctx, models.Mutation{Op: models.OpUpdate, Payload: []byte("x")})
	assert.ErrorIs(t, err, ErrInvalidMutation)

	_, err = h.engine.EnqueueMutation(ctx, models.Mutation{RecordID: "r1", Op: "rename"})
	assert.ErrorIs(t, err, ErrInvalidMutation)

	_, err = h.engine.EnqueueMutation(ctx, models.Mutation{RecordID: "r1", Op: models.OpUpdate})
	assert.ErrorIs(t, err, ErrInvalidMutation)
}

func TestEngine_OutboxReplayAfterRestart(t *testing.T) {
	h := newHarness(t, resolver.Config{}, models.NetworkOffline)
	ctx := context.Background()

	h.enqueue(t, "r1", []byte(`{"name":"survives restart"}`))

	// A fresh queue simulates a process restart: only the outbox knows
	// about the pending mutation.
	h.queue = queue.NewManager(queue.Config{}, logger.Nop())
	h.orch.queue = h.queue
	require.NoError(t, h.orch.replayOutbox(ctx))

	assert.Equal(t, 1, h.queue.Len())

	h.monitor.Report(models.NetworkUnmetered)
	h.orch.maybeDrain(ctx)

	_, version, _, found := h.authority.Record("r1")
	require.True(t, found)
	assert.Equal(t, int64(1), version)
}

func TestEngine_RunLoopDrainsOnEnqueue(t *testing.T) {
	h := newHarness(t, resolver.Config{}, models.NetworkUnmetered)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	done := make(chan error, 1)
	go func() { done <- h.engine.Run(ctx) }()

	h.enqueue(t, "r1", []byte(`{"name":"event driven"}`))

	require.Eventually(t, func() bool {
		_, _, _, found := h.authority.Record("r1")
		return found
	}, 5*time.Second, 10*time.Millisecond)

	cancel()
	select {
	case err := <-done:
		assert.ErrorIs(t, err, context.Canceled)
	case <-time.After(5 * time.Second):
		t.Fatal("orchestrator did not stop on cancel")
	}
}
