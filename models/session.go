package models

import "time"

// NetworkClass is the debounced connectivity classification consumed by the
// queue manager and orchestrator.
type NetworkClass int

const (
	NetworkOffline NetworkClass = iota
	NetworkMetered
	NetworkUnmetered
)

func (c NetworkClass) String() string {
	switch c {
	case NetworkOffline:
		return "offline"
	case NetworkMetered:
		return "metered"
	case NetworkUnmetered:
		return "unmetered"
	default:
		return "unknown"
	}
}

// EngineStatus is the queryable orchestrator state exposed to the host
// status indicator. It is informational, not for programmatic branching.
type EngineStatus int

const (
	StatusIdle EngineStatus = iota
	StatusDraining
	StatusAwaitingNetwork
	StatusSuspended
)

func (s EngineStatus) String() string {
	switch s {
	case StatusIdle:
		return "idle"
	case StatusDraining:
		return "draining"
	case StatusAwaitingNetwork:
		return "awaiting_network"
	case StatusSuspended:
		return "suspended"
	default:
		return "unknown"
	}
}

// SyncSession captures the counters of one drain pass. Sessions are
// ephemeral: opened when the orchestrator enters Draining, closed when it
// leaves, and folded into telemetry at close. Never persisted.
type SyncSession struct {
	ID               string       `json:"id"`
	StartedAt        time.Time    `json:"started_at"`
	FinishedAt       time.Time    `json:"finished_at"`
	NetworkClass     NetworkClass `json:"network_class"`
	Attempted        int64        `json:"attempted"`
	Succeeded        int64        `json:"succeeded"`
	Failed           int64        `json:"failed"`
	Conflicts        int64        `json:"conflicts"`
	BytesTransferred int64        `json:"bytes_transferred"`
}
