// Package netmon turns the host platform's raw connectivity signal into a
// debounced network classification. The engine does not detect transports
// itself; the host reports an already-classified signal (what counts as
// metered is host policy) and the monitor only stabilizes it.
package netmon

import (
	"sync"
	"time"

	"github.com/pavetrack/field-sync/internal/logger"
	"github.com/pavetrack/field-sync/models"
)

// Monitor is the network awareness monitor. A reported class must dwell for
// the configured minimum before the transition commits and subscribers
// fire, so marginal connectivity does not flap the orchestrator.
type Monitor struct {
	dwell  time.Duration
	logger *logger.Logger

	mu          sync.Mutex
	current     models.NetworkClass
	pending     models.NetworkClass
	pendingSet  bool
	dwellTimer  *time.Timer
	subscribers []func(models.NetworkClass)

	// afterFunc is swappable in tests.
	afterFunc func(time.Duration, func()) *time.Timer
}

// New builds a Monitor starting in the given class. dwell <= 0 disables
// debouncing (transitions commit immediately).
func New(initial models.NetworkClass, dwell time.Duration, log *logger.Logger) *Monitor {
	return &Monitor{
		dwell:     dwell,
		logger:    log,
		current:   initial,
		afterFunc: time.AfterFunc,
	}
}

// Current returns the committed network class.
func (m *Monitor) Current() models.NetworkClass {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.current
}

// Subscribe registers fn to be called on every committed class transition.
// Callbacks run on the monitor's timer goroutine and must not block.
func (m *Monitor) Subscribe(fn func(models.NetworkClass)) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.subscribers = append(m.subscribers, fn)
}

// Report feeds a raw classified signal from the host. The class becomes
// current once it has dwelled long enough; reporting the committed class
// cancels any pending transition.
func (m *Monitor) Report(class models.NetworkClass) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if class == m.current {
		m.cancelPendingLocked()
		return
	}

	if m.pendingSet && class == m.pending {
		// Same candidate still dwelling; let the timer run.
		return
	}

	m.cancelPendingLocked()

	if m.dwell <= 0 {
		m.commitLocked(class)
		return
	}

	m.pending = class
	m.pendingSet = true
	m.dwellTimer = m.afterFunc(m.dwell, func() { m.commitPending(class) })
}

// Stop cancels any pending transition timer.
func (m *Monitor) Stop() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.cancelPendingLocked()
}

func (m *Monitor) commitPending(class models.NetworkClass) {
	m.mu.Lock()
	if !m.pendingSet || m.pending != class {
		m.mu.Unlock()
		return
	}
	m.pendingSet = false
	m.dwellTimer = nil
	m.commitLocked(class)
	m.mu.Unlock()
}

// commitLocked records the transition and fires subscribers on a fresh
// goroutine, so a subscriber may call back into the monitor.
func (m *Monitor) commitLocked(class models.NetworkClass) {
	prev := m.current
	m.current = class
	subs := make([]func(models.NetworkClass), len(m.subscribers))
	copy(subs, m.subscribers)

	m.logger.Info().
		Str("from", prev.String()).
		Str("to", class.String()).
		Msg("network class transition")

	go func() {
		for _, fn := range subs {
			fn(class)
		}
	}()
}

func (m *Monitor) cancelPendingLocked() {
	if m.dwellTimer != nil {
		m.dwellTimer.Stop()
		m.dwellTimer = nil
	}
	m.pendingSet = false
}
