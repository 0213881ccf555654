package models

// Mutation is the engine's ingress type: one locally-originated change
// handed over by the UI/business collaborator via EnqueueMutation. The
// payload arrives domain-serialized and plaintext; the outbox runs it
// through the codec before anything is persisted or transmitted.
type Mutation struct {
	RecordID   string
	EntityType string
	Payload    []byte
	Op         Operation
	Priority   Priority
	Urgent     bool
}
