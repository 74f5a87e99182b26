// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

// Package workerspool implements a bounded pool of goroutines, used by engines to split the work of one
// primitive. Calls block until all the work they started is done.
package workerspool

import (
	"runtime"
	"sync"
)

// Pool limits the number of goroutines running tasks.
type Pool struct {
	// maxParallelism is a target on the limit of parallel work to do.
	maxParallelism int
	mu             sync.Mutex
	cond           sync.Cond // Should be signaled whenever numRunning is decreased.
	numRunning     int
}

// New return a new Pool of workers with the given parallelism.
// If maxParallelism is 0, the default runtime.NumCPU() is used.
// If maxParallelism is negative, parallelism is disabled and all the work is done inline.
func New(maxParallelism int) *Pool {
	w := &Pool{}
	if maxParallelism == 0 {
		maxParallelism = runtime.NumCPU()
	}
	w.maxParallelism = maxParallelism
	w.cond = sync.Cond{L: &w.mu}
	return w
}

// IsEnabled returns whether parallelism is enabled.
func (w *Pool) IsEnabled() bool {
	return w.maxParallelism > 0
}

// MaxParallelism is the limit on the number of tasks running concurrently.
// A value <= 0 means parallelism is disabled.
func (w *Pool) MaxParallelism() int {
	return w.maxParallelism
}

// lockedIsFull returns whether all available workers are in use.
//
// It must be called with Pool.mu acquired.
func (w *Pool) lockedIsFull() bool {
	return w.numRunning >= w.maxParallelism
}

// waitToStart waits until there is a worker available to run the task, and starts it in a goroutine.
func (w *Pool) waitToStart(task func()) {
	w.mu.Lock()
	defer w.mu.Unlock()
	for w.lockedIsFull() {
		w.cond.Wait()
	}
	w.numRunning++
	go func() {
		task()
		w.mu.Lock()
		w.numRunning--
		w.cond.Signal()
		w.mu.Unlock()
	}()
}

// ParallelFor calls fn(i) for every i in [0, n), using at most MaxParallelism goroutines,
// and returns when all calls have returned.
//
// If parallelism is disabled, or n <= 1, the calls are made inline, in order.
func (w *Pool) ParallelFor(n int, fn func(i int)) {
	if n <= 0 {
		return
	}
	if !w.IsEnabled() || n == 1 {
		for i := range n {
			fn(i)
		}
		return
	}
	var wg sync.WaitGroup
	wg.Add(n)
	for i := range n {
		w.waitToStart(func() {
			defer wg.Done()
			fn(i)
		})
	}
	wg.Wait()
}
