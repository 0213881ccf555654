package workers

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pavetrack/field-sync/internal/logger"
	"github.com/pavetrack/field-sync/internal/store"
)

type sweepRecorder struct {
	store.DurableStore

	mu      sync.Mutex
	cutoffs []time.Time
}

func (s *sweepRecorder) SweepTombstones(_ context.Context, olderThan time.Time) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.cutoffs = append(s.cutoffs, olderThan)
	return 2, nil
}

func (s *sweepRecorder) count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.cutoffs)
}

func TestTombstoneGC_SweepsImmediatelyAndOnTick(t *testing.T) {
	rec := &sweepRecorder{}
	gc := NewTombstoneGC(rec, 24*time.Hour, 20*time.Millisecond, logger.Nop())

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		_ = gc.Run(ctx)
		close(done)
	}()

	require.Eventually(t, func() bool { return rec.count() >= 2 }, 5*time.Second, 5*time.Millisecond)
	cancel()
	<-done

	rec.mu.Lock()
	defer rec.mu.Unlock()
	for _, cutoff := range rec.cutoffs {
		assert.WithinDuration(t, time.Now().UTC().Add(-24*time.Hour), cutoff, time.Minute)
	}
}
