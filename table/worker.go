package table

import (
	"context"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/erigontech/segstore/store"
)

// CompactionWorker runs Compact on a timer in the background - the "one
// (optional) compaction worker" spec §5 allows the engine to spawn itself.
type CompactionWorker struct {
	g      *errgroup.Group
	cancel context.CancelFunc
}

// StartCompactionWorker launches a background goroutine that calls
// t.Compact every interval until Stop is called. ctx carries scratch state
// the worker reuses across ticks; callers must not use it concurrently
// from another goroutine (spec §4.7: DbContext is not thread-safe).
func (t *CompositeTable) StartCompactionWorker(parent context.Context, interval time.Duration, ctx store.Context) *CompactionWorker {
	runCtx, cancel := context.WithCancel(parent)
	g, gctx := errgroup.WithContext(runCtx)
	g.Go(func() error {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-gctx.Done():
				return nil
			case <-ticker.C:
				if err := t.Compact(ctx); err != nil {
					t.logger.Error("background compaction failed", zap.Error(err))
				}
			}
		}
	})
	return &CompactionWorker{g: g, cancel: cancel}
}

// Stop signals the worker to exit and waits for it to finish its current
// tick.
func (w *CompactionWorker) Stop() error {
	w.cancel()
	return w.g.Wait()
}
