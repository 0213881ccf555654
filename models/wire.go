package models

import "time"

// Wire contract between the engine and the remote authority. Payloads cross
// the wire in their encoded (compressed + encrypted) form; the authority
// stores them opaquely.

// PushItem is one record mutation inside a push batch.
type PushItem struct {
	RecordID       string    `json:"record_id"`
	EntityType     string    `json:"entity_type"`
	EncodedPayload []byte    `json:"encoded_payload,omitempty"`
	BaseVersion    int64     `json:"base_version"`
	Op             Operation `json:"op"`
}

// PushRequest is the batch envelope for a push call. Batch size is bounded
// by configuration; the orchestrator paginates larger drains.
type PushRequest struct {
	Items []PushItem `json:"items"`
}

// PushResult is the per-record outcome of a push. Exactly one of Applied or
// Conflict is set. On conflict the authority returns its current version
// and payload so the resolver can build the remote snapshot without an
// extra round trip.
type PushResult struct {
	RecordID         string    `json:"record_id"`
	Applied          bool      `json:"applied"`
	NewRemoteVersion int64     `json:"new_remote_version,omitempty"`
	Conflict         bool      `json:"conflict,omitempty"`
	CurrentRemote    int64     `json:"current_remote_version,omitempty"`
	CurrentPayload   []byte    `json:"current_payload,omitempty"`
	CurrentDeleted   bool      `json:"current_deleted,omitempty"`
	CurrentUpdatedAt time.Time `json:"current_updated_at,omitzero"`
}

// PushResponse is the push call envelope.
type PushResponse struct {
	Results []PushResult `json:"results"`
}

// PullChange is one remote-originated change in a pull stream.
type PullChange struct {
	RecordID       string    `json:"record_id"`
	EntityType     string    `json:"entity_type"`
	EncodedPayload []byte    `json:"encoded_payload,omitempty"`
	RemoteVersion  int64     `json:"remote_version"`
	Op             Operation `json:"op"`
	UpdatedAt      time.Time `json:"updated_at,omitzero"`
}

// PullPage is one page of remote changes plus the cursor to resume from.
type PullPage struct {
	Changes []PullChange `json:"changes"`
	Cursor  string       `json:"cursor"`
}
