// Copyright 2025 Google LLC
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package workerpool serializes filesystem-facade callbacks onto a pool
// of reusable HTTP-capable workers. Two independent pools exist:
// foreground (user-blocking) and background (prefill/readahead), so
// speculative traffic never starves user-visible requests.
package workerpool

import (
	"context"
	"errors"
	"sync"

	"github.com/s3fuse/s3fuse/common"
	"github.com/s3fuse/s3fuse/internal/executor"
)

// ErrShuttingDown is returned to a WorkItem's Wait when the pool is torn
// down with the item still queued, or when the item is posted after
// teardown. An item a worker has already claimed runs to completion.
var ErrShuttingDown = errors.New("workerpool: shutting down")

// Thunk is a deferred operation: a closure over an executor that
// produces a POSIX-style integer result plus an error.
type Thunk func(e *executor.Executor) (int, error)

// WorkItem is a deferred operation submitted to a Pool: a thunk plus a
// one-shot completion. Created by the facade, owned by the pool's queue
// until claimed, then owned by the worker until completion fires.
type WorkItem struct {
	thunk Thunk
	done  chan struct{}
	res   int
	err   error
}

// NewWorkItem wraps thunk for submission to a Pool.
func NewWorkItem(thunk Thunk) *WorkItem {
	return &WorkItem{thunk: thunk, done: make(chan struct{})}
}

// Wait blocks the caller until a worker completes the thunk (or the pool
// shuts down with this item pending), and returns its result.
func (w *WorkItem) Wait() (int, error) {
	<-w.done
	return w.res, w.err
}

func (w *WorkItem) complete(res int, err error) {
	w.res = res
	w.err = err
	close(w.done)
}

// ExecutorFactory builds a fresh executor for a worker, called once at
// worker startup and again whenever the worker's current executor
// becomes unusable.
type ExecutorFactory func() *executor.Executor

// staticWorkerPool owns a fixed-size set of long-lived workers and a
// FIFO queue of pending work items.
type staticWorkerPool struct {
	mu       sync.Mutex
	cond     *sync.Cond
	queue    common.Queue[*WorkItem]
	shutdown bool

	wg sync.WaitGroup
}

// newStaticWorkerPool spins up n workers; n may be zero, in which case
// the pool accepts items but never drains them (used when a caller sizes
// one of the two pools in Pool down to zero).
func newStaticWorkerPool(n uint32, newExecutor ExecutorFactory) (*staticWorkerPool, error) {
	p := &staticWorkerPool{queue: common.NewLinkedListQueue[*WorkItem]()}
	p.cond = sync.NewCond(&p.mu)

	for i := uint32(0); i < n; i++ {
		p.wg.Add(1)
		go p.runWorker(newExecutor)
	}
	return p, nil
}

func (p *staticWorkerPool) runWorker(newExecutor ExecutorFactory) {
	defer p.wg.Done()

	exec := newExecutor()
	for {
		item, ok := p.dequeue()
		if !ok {
			return
		}

		if exec.Unusable() {
			exec = newExecutor()
		}

		res, err := item.thunk(exec)
		item.complete(res, err)
	}
}

// dequeue blocks until an item is available or the pool is shutting down.
func (p *staticWorkerPool) dequeue() (*WorkItem, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()

	for p.queue.IsEmpty() && !p.shutdown {
		p.cond.Wait()
	}
	if p.queue.IsEmpty() {
		return nil, false
	}
	return p.queue.Pop(), true
}

func (p *staticWorkerPool) post(item *WorkItem) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.shutdown {
		item.complete(0, ErrShuttingDown)
		return
	}
	p.queue.Push(item)
	p.cond.Signal()
}

// teardown wakes all workers, drains the queue by failing each pending
// item with ErrShuttingDown, and joins.
func (p *staticWorkerPool) teardown() {
	p.mu.Lock()
	p.shutdown = true
	var pending []*WorkItem
	for !p.queue.IsEmpty() {
		pending = append(pending, p.queue.Pop())
	}
	p.cond.Broadcast()
	p.mu.Unlock()

	for _, item := range pending {
		item.complete(0, ErrShuttingDown)
	}
	p.wg.Wait()
}

// Pool owns the foreground and background worker pools.
type Pool struct {
	fg *staticWorkerPool
	bg *staticWorkerPool
}

// New constructs a Pool with fgWorkers foreground workers and bgWorkers
// background workers, each owning one executor built by newExecutor for
// its lifetime. Construction fails only if both counts are zero; either
// one alone may be zero (e.g. a tight RLIMIT_NOFILE ceiling squeezing
// background workers out entirely still leaves a usable pool).
func New(fgWorkers, bgWorkers uint32, newExecutor ExecutorFactory) (*Pool, error) {
	if fgWorkers == 0 && bgWorkers == 0 {
		return nil, errors.New("workerpool: at least one of foreground or background worker count must be > 0")
	}

	fg, err := newStaticWorkerPool(fgWorkers, newExecutor)
	if err != nil {
		return nil, err
	}
	bg, err := newStaticWorkerPool(bgWorkers, newExecutor)
	if err != nil {
		return nil, err
	}
	return &Pool{fg: fg, bg: bg}, nil
}

// PostForeground enqueues a work item on the foreground pool and returns
// immediately; the caller blocks on WorkItem.Wait.
func (p *Pool) PostForeground(item *WorkItem) {
	p.fg.post(item)
}

// PostBackground enqueues a work item on the background pool. Used for
// best-effort prefill/readahead traffic; callers typically do not wait.
func (p *Pool) PostBackground(item *WorkItem) {
	p.bg.post(item)
}

// Shutdown wakes all workers in both pools, drains pending items with
// ErrShuttingDown, and joins. Safe to call once during unmount.
func (p *Pool) Shutdown(_ context.Context) error {
	p.fg.teardown()
	p.bg.teardown()
	return nil
}
