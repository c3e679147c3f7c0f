package shadow

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"

	"golang.org/x/sync/semaphore"
)

// DefaultMaxInFlight bounds concurrently running shadow tasks of a Pool.
const DefaultMaxInFlight = 256

// Task is a detached unit of work. ctx is cancelled on scheduler shutdown.
type Task func(ctx context.Context)

// Scheduler runs tasks detached from the caller.
type Scheduler interface {
	// Submit never blocks. It reports false when the task was dropped.
	Submit(task Task) bool
}

// Pool runs each task on its own goroutine, admitting at most maxInFlight at once.
// Tasks beyond that are dropped rather than queued.
type Pool struct {
	ctx    context.Context
	cancel context.CancelFunc
	sem    *semaphore.Weighted

	mu       sync.RWMutex
	closed   bool
	wg       sync.WaitGroup
	inFlight atomic.Int64
}

func NewPool(maxInFlight int64) *Pool {
	if maxInFlight <= 0 {
		maxInFlight = DefaultMaxInFlight
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Pool{
		ctx:    ctx,
		cancel: cancel,
		sem:    semaphore.NewWeighted(maxInFlight),
	}
}

func (p *Pool) Submit(task Task) bool {
	p.mu.RLock()
	defer p.mu.RUnlock()

	if p.closed || !p.sem.TryAcquire(1) {
		return false
	}
	p.wg.Add(1)
	p.inFlight.Add(1)

	go func() {
		defer p.wg.Done()
		defer p.sem.Release(1)
		defer p.inFlight.Add(-1)
		defer func() {
			if r := recover(); r != nil {
				slog.Error("shadow: task panicked", "panic", r)
			}
		}()
		task(p.ctx)
	}()
	return true
}

// InFlight is the number of tasks currently running.
func (p *Pool) InFlight() int64 { return p.inFlight.Load() }

// Close stops admitting tasks, cancels running ones and waits for them to return.
func (p *Pool) Close() {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return
	}
	p.closed = true
	p.mu.Unlock()

	p.cancel()
	p.wg.Wait()
}
