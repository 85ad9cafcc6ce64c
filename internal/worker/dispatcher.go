package worker

import (
	"context"
	"sync"

	"go.uber.org/zap"
)

// Dispatcher runs a fixed pool of workers against the shared queue.
type Dispatcher struct {
	workers []*Worker
	logger  *zap.Logger
}

// NewDispatcher builds a pool of n workers sharing the same dependencies.
func NewDispatcher(n int, build func() *Worker, logger *zap.Logger) *Dispatcher {
	if n < 1 {
		n = 1
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	workers := make([]*Worker, 0, n)
	for i := 0; i < n; i++ {
		workers = append(workers, build())
	}
	return &Dispatcher{workers: workers, logger: logger.Named("dispatcher")}
}

// Run starts every worker and blocks until the context finishes and all
// workers have returned.
func (d *Dispatcher) Run(ctx context.Context) {
	d.logger.Info("starting workers", zap.Int("count", len(d.workers)))

	var wg sync.WaitGroup
	for i, w := range d.workers {
		wg.Add(1)
		go func(idx int, w *Worker) {
			defer wg.Done()
			w.Run(ctx)
			d.logger.Debug("worker stopped", zap.Int("worker", idx))
		}(i, w)
	}

	<-ctx.Done()
	wg.Wait()
	d.logger.Info("all workers stopped")
}
