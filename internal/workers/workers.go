// Package workers provides abstractions for managing and running the
// engine's background workers. It defines the Worker interface and a
// Workers aggregate that runs multiple workers in a unified way.
package workers

import (
	"context"
	"errors"
	"sync"
)

// Worker is the interface implemented by any background worker. Run blocks
// until ctx is canceled or the worker fails.
type Worker interface {
	Run(ctx context.Context) error
}

// Workers runs a set of workers concurrently.
type Workers struct {
	workers []Worker
}

func NewWorkers(ws ...Worker) *Workers {
	return &Workers{workers: ws}
}

// Run starts every worker on its own goroutine and blocks until all have
// returned. Context cancellation errors are not reported; anything else is
// joined into the returned error.
func (w *Workers) Run(ctx context.Context) error {
	var (
		wg   sync.WaitGroup
		mu   sync.Mutex
		errs []error
	)

	for _, worker := range w.workers {
		wg.Add(1)
		go func(worker Worker) {
			defer wg.Done()
			if err := worker.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
				mu.Lock()
				errs = append(errs, err)
				mu.Unlock()
			}
		}(worker)
	}
	wg.Wait()

	return errors.Join(errs...)
}
