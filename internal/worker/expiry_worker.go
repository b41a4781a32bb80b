package worker

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/oregpt/escrowservice-sub000/internal/observability"
	"github.com/oregpt/escrowservice-sub000/internal/service"
)

// ExpiryWorker sweeps overdue unfunded escrows into the EXPIRED state.
type ExpiryWorker struct {
	svc          *service.ExpiryService
	pollInterval time.Duration
	batchSize    int32
	stopCh       chan struct{}
	stopOnce     sync.Once
}

func NewExpiryWorker(svc *service.ExpiryService) *ExpiryWorker {
	return &ExpiryWorker{
		svc:          svc,
		pollInterval: time.Minute,
		batchSize:    100,
		stopCh:       make(chan struct{}),
	}
}

// WithPollInterval sets the sweep interval.
func (w *ExpiryWorker) WithPollInterval(interval time.Duration) *ExpiryWorker {
	if interval > 0 {
		w.pollInterval = interval
	}
	return w
}

// WithBatchSize caps how many escrows one sweep closes.
func (w *ExpiryWorker) WithBatchSize(size int32) *ExpiryWorker {
	if size > 0 {
		w.batchSize = size
	}
	return w
}

// Start blocks and sweeps at the configured interval.
func (w *ExpiryWorker) Start(ctx context.Context) {
	zap.L().Info("expiry worker starting",
		zap.Duration("interval", w.pollInterval),
		zap.Int32("batch", w.batchSize))

	ticker := time.NewTicker(w.pollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			zap.L().Info("expiry worker context canceled")
			return
		case <-w.stopCh:
			zap.L().Info("expiry worker stop signal received")
			return
		case <-ticker.C:
			w.sweep(ctx)
		}
	}
}

// Stop stops the running worker loop.
func (w *ExpiryWorker) Stop() {
	w.stopOnce.Do(func() {
		close(w.stopCh)
	})
}

// Run starts the worker in a goroutine and returns a stop function.
func (w *ExpiryWorker) Run(ctx context.Context) func() {
	go w.Start(ctx)
	return w.Stop
}

// SweepOnce runs a single sweep immediately.
func (w *ExpiryWorker) SweepOnce(ctx context.Context) (int, error) {
	return w.svc.Sweep(ctx, w.batchSize)
}

func (w *ExpiryWorker) sweep(ctx context.Context) {
	if _, err := w.svc.Sweep(ctx, w.batchSize); err != nil {
		observability.IncrementWorkerRun("expiry", "failed")
		zap.L().Error("expiry sweep failed", zap.Error(err))
		return
	}
	observability.IncrementWorkerRun("expiry", "success")
}
