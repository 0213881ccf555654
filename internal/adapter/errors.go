package adapter

import "errors"

var (
	// ErrTransient marks failures that are expected to clear on their own:
	// network errors, timeouts, throttling, server-side errors. The queue
	// retries these with backoff.
	ErrTransient = errors.New("transient transport failure")

	// ErrPermanent marks failures that will not succeed on retry, such as
	// a rejected request shape. The queue dead-letters these immediately.
	ErrPermanent = errors.New("permanent transport failure")

	// ErrVersionConflict marks an optimistic-concurrency rejection for a
	// whole request. Per-item conflicts travel inside PushResult instead.
	ErrVersionConflict = errors.New("version conflict")
)
