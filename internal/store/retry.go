package store

import (
	"context"
	"errors"
	"time"

	"github.com/sethvargo/go-retry"

	"github.com/pavetrack/field-sync/internal/logger"
	"github.com/pavetrack/field-sync/models"
)

// RetryingStore decorates a DurableStore so transient put failures are
// retried with exponential backoff. Reads are deliberately not retried:
// masking a corrupt read behind retries would hide the fault from the
// orchestrator.
type RetryingStore struct {
	DurableStore

	base     time.Duration
	attempts uint64
	logger   *logger.Logger
}

// NewRetryingStore wraps inner. base is the first retry delay, attempts the
// total attempt budget including the first try.
func NewRetryingStore(inner DurableStore, base time.Duration, attempts uint64, log *logger.Logger) *RetryingStore {
	if base <= 0 {
		base = 250 * time.Millisecond
	}
	if attempts == 0 {
		attempts = 5
	}
	return &RetryingStore{DurableStore: inner, base: base, attempts: attempts, logger: log}
}

func (s *RetryingStore) Put(ctx context.Context, record models.SyncRecord) error {
	backoff := retry.WithMaxRetries(s.attempts-1, retry.NewExponential(s.base))

	err := retry.Do(ctx, backoff, func(ctx context.Context) error {
		putErr := s.DurableStore.Put(ctx, record)
		if putErr == nil {
			return nil
		}
		if errors.Is(putErr, ErrCorrupt) {
			// Retrying a corrupt database cannot succeed.
			return putErr
		}
		s.logger.Warn().Err(putErr).Str("record_id", record.ID).Msg("put failed, will retry")
		return retry.RetryableError(putErr)
	})
	return err
}
