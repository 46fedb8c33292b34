package queue

import (
	"context"
	"log/slog"
	"sync"

	"golang.org/x/sync/semaphore"
)

// Pool runs fired units on their own goroutines, at most size at a time, so timer
// callbacks and ticks never block on platform calls.
type Pool struct {
	executor Executor
	sem      *semaphore.Weighted
	wg       sync.WaitGroup
	ctx      context.Context
	cancel   context.CancelFunc
	log      *slog.Logger
}

func NewPool(executor Executor, size int, log *slog.Logger) *Pool {
	if size <= 0 {
		size = 1
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Pool{
		executor: executor,
		sem:      semaphore.NewWeighted(int64(size)),
		ctx:      ctx,
		cancel:   cancel,
		log:      log.With("component", "pool"),
	}
}

// Submit returns immediately; the unit waits for a free slot in the background.
func (p *Pool) Submit(payload PublishPayload) {
	p.wg.Add(1)
	go func() {
		defer p.wg.Done()

		if err := p.sem.Acquire(p.ctx, 1); err != nil {
			p.log.Warn("pool closed before unit could run", "post_id", payload.PostID, "unit_id", payload.UnitID)
			return
		}
		defer p.sem.Release(1)

		result, err := p.executor.Execute(p.ctx, payload.PostID, payload.UnitID)
		if err != nil {
			p.log.Error("execute failed", "post_id", payload.PostID, "unit_id", payload.UnitID, "error", err)
			return
		}
		p.log.Debug("unit executed", "post_id", payload.PostID, "unit_id", payload.UnitID,
			"status", result.Status, "skipped", result.Skipped)
	}()
}

// Wait blocks until every submitted unit has finished.
func (p *Pool) Wait() {
	p.wg.Wait()
}

// Shutdown waits for running units until ctx expires, then cancels whatever is left.
func (p *Pool) Shutdown(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		p.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		p.cancel()
		return nil
	case <-ctx.Done():
		p.cancel()
		<-done
		return ctx.Err()
	}
}
