// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package scratch

import (
	"sync"
	"testing"

	"github.com/gomlx/convkernels/backends"
	"github.com/janpfeifer/must"
	"github.com/stretchr/testify/require"
)

func TestPool(t *testing.T) {
	p := NewPool(0)
	buf := must.M1(p.Allocate(10))
	require.Len(t, buf, 10)
	require.Equal(t, int64(40), p.InUse())
	for i := range buf {
		buf[i] = float32(i + 1)
	}
	p.Release(buf)
	require.Equal(t, int64(0), p.InUse())

	// Reused buffers must come back zeroed.
	for range 3 {
		buf = must.M1(p.Allocate(10))
		require.Equal(t, make([]float32, 10), buf)
		p.Release(buf)
	}

	_, err := p.Allocate(0)
	require.ErrorIs(t, err, backends.ErrResource)
}

func TestPoolLimit(t *testing.T) {
	p := NewPool(100)
	a := must.M1(p.Allocate(20)) // 80 bytes.
	_, err := p.Allocate(10)     // 40 more bytes: over the limit.
	require.ErrorIs(t, err, backends.ErrResource)
	require.Equal(t, int64(80), p.InUse())
	p.Release(a)
	b := must.M1(p.Allocate(25))
	require.Len(t, b, 25)
	p.Release(b)
	require.Equal(t, int64(0), p.InUse())
}

func TestPoolConcurrent(t *testing.T) {
	p := NewPool(0)
	var wg sync.WaitGroup
	for range 16 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for range 100 {
				buf := must.M1(p.Allocate(64))
				buf[0] = 1
				p.Release(buf)
			}
		}()
	}
	wg.Wait()
	require.Equal(t, int64(0), p.InUse())
}
