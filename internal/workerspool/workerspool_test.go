// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package workerspool

import (
	"runtime"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPool_ParallelFor(t *testing.T) {
	const maxParallelism = 3
	pool := New(maxParallelism)
	require.True(t, pool.IsEnabled())

	var running, maxRunning, count atomic.Int32
	visited := make([]bool, 50)
	pool.ParallelFor(len(visited), func(i int) {
		current := running.Add(1)
		for {
			old := maxRunning.Load()
			if current <= old || maxRunning.CompareAndSwap(old, current) {
				break
			}
		}
		runtime.Gosched()
		visited[i] = true
		count.Add(1)
		running.Add(-1)
	})
	assert.Equal(t, int32(50), count.Load())
	assert.LessOrEqual(t, maxRunning.Load(), int32(maxParallelism))
	for i, v := range visited {
		assert.Truef(t, v, "index %d not visited", i)
	}
}

func TestPool_Disabled(t *testing.T) {
	pool := New(-1)
	require.False(t, pool.IsEnabled())
	var order []int
	pool.ParallelFor(4, func(i int) { order = append(order, i) })
	assert.Equal(t, []int{0, 1, 2, 3}, order)

	pool = New(0)
	assert.Equal(t, runtime.NumCPU(), pool.MaxParallelism())
	pool.ParallelFor(0, func(int) { t.Fatal("should not be called") })
}
