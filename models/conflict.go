package models

import "time"

// Strategy selects how a detected conflict is resolved.
type Strategy string

const (
	// StrategyLastWriteWins keeps the payload with the later UpdatedAt;
	// the loser's changes are discarded but logged.
	StrategyLastWriteWins Strategy = "last-write-wins"

	// StrategyMerge combines both payloads with a per-entity-type merge
	// function. Only meaningful for entity types whose payload structure
	// supports partial merge.
	StrategyMerge Strategy = "merge"

	// StrategyManual parks the case as pending until an external caller
	// supplies a merged payload.
	StrategyManual Strategy = "manual"
)

// ConflictStatus is the lifecycle state of a ConflictCase.
type ConflictStatus string

const (
	ConflictPending   ConflictStatus = "pending"
	ConflictResolved  ConflictStatus = "resolved"
	ConflictAbandoned ConflictStatus = "abandoned"
)

// ConflictCase is a detected divergence between the local and remote copy
// of a record. Cases are owned by the conflict resolver and are never
// silently discarded; abandonment is an explicit caller action.
type ConflictCase struct {
	ID             string         `json:"id"`
	RecordID       string         `json:"record_id"`
	EntityType     string         `json:"entity_type"`
	LocalSnapshot  SyncRecord     `json:"local_snapshot"`
	RemoteSnapshot SyncRecord     `json:"remote_snapshot"`
	DetectedAt     time.Time      `json:"detected_at"`
	Strategy       Strategy       `json:"strategy"`
	Status         ConflictStatus `json:"status"`
}
