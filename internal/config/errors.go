package config

import "errors"

// Validation errors returned by [Config.validate] when the merged
// configuration cannot drive the engine.
var (
	// ErrInvalidStoreConfig indicates an unusable local store setting
	// (empty DSN or an in-memory DSN, which cannot be crash-consistent).
	ErrInvalidStoreConfig = errors.New("invalid store configuration")
	// ErrInvalidQueueConfig indicates an unusable retry/backoff setting
	// (non-positive base, cap below base, or zero attempt budget).
	ErrInvalidQueueConfig = errors.New("invalid queue configuration")
	// ErrInvalidResolverConfig indicates an unknown resolution strategy.
	ErrInvalidResolverConfig = errors.New("invalid resolver configuration")
	// ErrInvalidSyncConfig indicates an unusable orchestrator setting
	// (zero batch size or drain interval).
	ErrInvalidSyncConfig = errors.New("invalid sync configuration")
	// ErrInvalidRemoteConfig indicates a missing remote base URL or
	// request timeout.
	ErrInvalidRemoteConfig = errors.New("invalid remote configuration")
)
