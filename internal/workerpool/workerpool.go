// Package workerpool implements the bounded worker pool spec.md §4.E and §9
// describe: a listener hands an accepted connection to a pool's
// startWorker, which blocks until a worker slot is free. The original
// reserves a worker's stack from a fixed memory pool with a header word;
// spec.md §9's design note replaces that with "a worker channel fed by a
// bounded pool of persistent workers — no stack pool needed". Here a
// golang.org/x/sync/semaphore bounds how many workers run at once; each work
// item runs in a fresh goroutine rather than on a persistent worker.
package workerpool

import (
	"context"
	"sync"

	"golang.org/x/sync/semaphore"

	"github.com/openrobots-dev/urosnode/internal/rlog"
)

var log = rlog.For("workerpool")

// Pool bounds concurrent work items at Size, matching spec.md §6's
// xmlrpc.slave.poolsize / tcpros.{client,server}.poolsize knobs.
type Pool struct {
	sem  *semaphore.Weighted
	wg   sync.WaitGroup
	size int64
}

// New creates a Pool with the given fixed concurrency (size <= 0 means
// unbounded, matching a misconfigured poolsize defaulting to "no limit"
// rather than "no workers").
func New(size int) *Pool {
	if size <= 0 {
		size = 1 << 20
	}
	return &Pool{sem: semaphore.NewWeighted(int64(size)), size: int64(size)}
}

// Start blocks until a worker slot is free (spec.md §5's suspension point
// "thread-pool startWorker when no worker is free"), then runs fn in a new
// goroutine. Start returns once fn has been dispatched, not once it has
// completed; call Wait to block for completion (used at node shutdown to
// join every in-flight handler, spec.md §4.E step 5).
func (p *Pool) Start(ctx context.Context, fn func()) error {
	if err := p.sem.Acquire(ctx, 1); err != nil {
		return err
	}
	p.wg.Add(1)
	go func() {
		defer p.wg.Done()
		defer p.sem.Release(1)
		defer func() {
			if r := recover(); r != nil {
				logger := *log
				logger.Errorf("workerpool: recovered panic in worker: %v", r)
			}
		}()
		fn()
	}()
	return nil
}

// Wait blocks until every dispatched worker has returned.
func (p *Pool) Wait() { p.wg.Wait() }
