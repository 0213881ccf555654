// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 PaveTrack Systems

// Package telemetry collects sync engine counters. Recording is
// fire-and-forget; nothing in this package can fail the sync path.
package telemetry

import (
	"net/http"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/pavetrack/field-sync/models"
)

// Snapshot is the in-process counter view exposed to the host status
// indicator. Values are cumulative since engine start.
type Snapshot struct {
	Sessions          int64 `json:"sessions"`
	Attempted         int64 `json:"attempted"`
	Succeeded         int64 `json:"succeeded"`
	Failed            int64 `json:"failed"`
	DeadLettered      int64 `json:"dead_lettered"`
	ConflictsDetected int64 `json:"conflicts_detected"`
	ConflictsResolved int64 `json:"conflicts_resolved"`
	BytesTransferred  int64 `json:"bytes_transferred"`
	StorageFaults     int64 `json:"storage_faults"`
}

// Metrics owns the prometheus registry and the snapshot counters.
type Metrics struct {
	sessionsTotal     *prometheus.CounterVec
	entriesTotal      *prometheus.CounterVec
	conflictsDetected prometheus.Counter
	conflictsResolved *prometheus.CounterVec
	bytesTransferred  prometheus.Counter
	storageFaults     prometheus.Counter
	sessionDuration   prometheus.Histogram
	queueDepth        prometheus.Gauge
	pendingConflicts  prometheus.Gauge
	engineStatus      *prometheus.GaugeVec

	registry *prometheus.Registry

	mu   sync.Mutex
	snap Snapshot
}

func New() *Metrics {
	registry := prometheus.NewRegistry()

	m := &Metrics{
		registry: registry,

		sessionsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "fieldsync",
				Name:      "sessions_total",
				Help:      "Total number of sync sessions, by network class",
			},
			[]string{"network_class"},
		),
		entriesTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "fieldsync",
				Name:      "entries_total",
				Help:      "Total number of queue entries completed, by outcome",
			},
			[]string{"outcome"},
		),
		conflictsDetected: prometheus.NewCounter(
			prometheus.CounterOpts{
				Namespace: "fieldsync",
				Name:      "conflicts_detected_total",
				Help:      "Total number of detected version conflicts",
			},
		),
		conflictsResolved: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "fieldsync",
				Name:      "conflicts_resolved_total",
				Help:      "Total number of resolved conflicts, by strategy",
			},
			[]string{"strategy"},
		),
		bytesTransferred: prometheus.NewCounter(
			prometheus.CounterOpts{
				Namespace: "fieldsync",
				Name:      "bytes_transferred_total",
				Help:      "Total encoded payload bytes moved over the wire",
			},
		),
		storageFaults: prometheus.NewCounter(
			prometheus.CounterOpts{
				Namespace: "fieldsync",
				Name:      "storage_faults_total",
				Help:      "Total number of local storage failures",
			},
		),
		sessionDuration: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Namespace: "fieldsync",
				Name:      "session_duration_seconds",
				Help:      "Duration of sync sessions in seconds",
				Buckets:   prometheus.DefBuckets,
			},
		),
		queueDepth: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Namespace: "fieldsync",
				Name:      "queue_depth",
				Help:      "Current number of entries waiting in the sync queue",
			},
		),
		pendingConflicts: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Namespace: "fieldsync",
				Name:      "pending_conflicts",
				Help:      "Current number of conflict cases awaiting manual input",
			},
		),
		engineStatus: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: "fieldsync",
				Name:      "engine_status",
				Help:      "Current orchestrator state (1 for the active state)",
			},
			[]string{"status"},
		),
	}

	registry.MustRegister(
		m.sessionsTotal,
		m.entriesTotal,
		m.conflictsDetected,
		m.conflictsResolved,
		m.bytesTransferred,
		m.storageFaults,
		m.sessionDuration,
		m.queueDepth,
		m.pendingConflicts,
		m.engineStatus,
	)

	return m
}

// RecordSession folds a closed sync session into the counters.
func (m *Metrics) RecordSession(s models.SyncSession) {
	m.sessionsTotal.WithLabelValues(s.NetworkClass.String()).Inc()
	m.bytesTransferred.Add(float64(s.BytesTransferred))
	if !s.FinishedAt.IsZero() && s.FinishedAt.After(s.StartedAt) {
		m.sessionDuration.Observe(s.FinishedAt.Sub(s.StartedAt).Seconds())
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	m.snap.Sessions++
	m.snap.Attempted += s.Attempted
	m.snap.Succeeded += s.Succeeded
	m.snap.Failed += s.Failed
	m.snap.BytesTransferred += s.BytesTransferred
}

// RecordOutcome counts one completed queue entry.
func (m *Metrics) RecordOutcome(outcome models.Outcome) {
	m.entriesTotal.WithLabelValues(outcome.String()).Inc()
	if outcome == models.OutcomePermanent {
		m.mu.Lock()
		m.snap.DeadLettered++
		m.mu.Unlock()
	}
}

// RecordConflictDetected counts one detected divergence.
func (m *Metrics) RecordConflictDetected() {
	m.conflictsDetected.Inc()

	m.mu.Lock()
	m.snap.ConflictsDetected++
	m.mu.Unlock()
}

// RecordConflictResolved counts one closed conflict case.
func (m *Metrics) RecordConflictResolved(strategy models.Strategy) {
	m.conflictsResolved.WithLabelValues(string(strategy)).Inc()

	m.mu.Lock()
	m.snap.ConflictsResolved++
	m.mu.Unlock()
}

// RecordStorageFault counts one local storage failure.
func (m *Metrics) RecordStorageFault() {
	m.storageFaults.Inc()

	m.mu.Lock()
	m.snap.StorageFaults++
	m.mu.Unlock()
}

// SetQueueDepth updates the queue depth gauge.
func (m *Metrics) SetQueueDepth(n int) {
	m.queueDepth.Set(float64(n))
}

// SetPendingConflicts updates the pending manual case gauge.
func (m *Metrics) SetPendingConflicts(n int) {
	m.pendingConflicts.Set(float64(n))
}

// SetEngineStatus flips the status gauge so exactly one state reads 1.
func (m *Metrics) SetEngineStatus(status models.EngineStatus) {
	for _, s := range []models.EngineStatus{
		models.StatusIdle, models.StatusDraining,
		models.StatusAwaitingNetwork, models.StatusSuspended,
	} {
		v := 0.0
		if s == status {
			v = 1.0
		}
		m.engineStatus.WithLabelValues(s.String()).Set(v)
	}
}

// Snapshot returns a copy of the in-process counters.
func (m *Metrics) Snapshot() Snapshot {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.snap
}

// Handler exposes the registry for scraping.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}
