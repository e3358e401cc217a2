// Package workerpool isolates each connection's goroutine from the rest
// of the process: a panicking handler is logged and terminated without
// taking the server down, and shutdown can wait for every live handler
// to finish within a deadline.
package workerpool

import (
	"context"
	"runtime/debug"
	"sync"
	"sync/atomic"

	"github.com/streamdesk/server/internal/logging"
)

var log = logging.L("workerpool")

// Task is a unit of work run in its own goroutine.
type Task func()

// Pool tracks every in-flight Task so Shutdown can wait for them to
// finish. Unlike a fixed-worker-count pool, Go spawns a new goroutine
// per task: one per accepted connection for its entire lifetime, which
// is the shape the server needs, not a bounded queue.
type Pool struct {
	wg        sync.WaitGroup
	accepting atomic.Bool
	ctx       context.Context
	cancel    context.CancelFunc
}

// New returns a Pool ready to accept tasks.
func New() *Pool {
	ctx, cancel := context.WithCancel(context.Background())
	p := &Pool{ctx: ctx, cancel: cancel}
	p.accepting.Store(true)
	return p
}

// Context is cancelled once Shutdown begins, so a long-running task can
// select on it to unblock a read or wait.
func (p *Pool) Context() context.Context {
	return p.ctx
}

// Go runs task in its own goroutine, recovering any panic so it cannot
// take down the process. Returns false without running task if the pool
// is already shutting down.
func (p *Pool) Go(task Task) bool {
	if !p.accepting.Load() {
		return false
	}
	p.wg.Add(1)
	go func() {
		defer p.wg.Done()
		defer func() {
			if r := recover(); r != nil {
				log.Error("task panicked", "panic", r, "stack", string(debug.Stack()))
			}
		}()
		task()
	}()
	return true
}

// Shutdown stops accepting new tasks, cancels Context, and waits for
// every in-flight task to finish or ctx to expire, whichever is first.
func (p *Pool) Shutdown(ctx context.Context) {
	p.accepting.Store(false)
	p.cancel()

	done := make(chan struct{})
	go func() {
		p.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		log.Info("worker pool drained")
	case <-ctx.Done():
		log.Warn("worker pool shutdown timed out, tasks still running")
	}
}
