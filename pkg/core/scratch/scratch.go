// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

// Package scratch provides the memory allocator used by the kernels for the internal buffers that back
// layout conversions.
//
// Buffers are float32 slices, zero-initialized when handed out. The default allocator pools released
// buffers by length, so rebuilding kernels with the same shapes doesn't create garbage.
package scratch

import (
	"sync"
	"sync/atomic"

	"github.com/dustin/go-humanize"
	"github.com/gomlx/convkernels/backends"
	"github.com/pkg/errors"
	"k8s.io/klog/v2"
)

// Allocator of scratch buffers.
//
// Implementations must be safe for concurrent use.
type Allocator interface {
	// Allocate returns a zero-initialized buffer with exactly numElements elements.
	// Errors wrap backends.ErrResource.
	Allocate(numElements int) ([]float32, error)

	// Release returns a buffer previously returned by Allocate. The buffer must not be used afterward.
	Release(buffer []float32)
}

// Pool is an Allocator that reuses released buffers of the same length.
// It can optionally be capped to a maximum number of bytes in use.
type Pool struct {
	// pools maps a buffer length to a *sync.Pool of *[]float32.
	pools sync.Map

	limitBytes int64
	inUseBytes atomic.Int64
}

var _ Allocator = (*Pool)(nil)

// NewPool returns a new Pool. If limitBytes > 0, allocations that would take the bytes in use over
// the limit fail.
func NewPool(limitBytes int64) *Pool {
	return &Pool{limitBytes: limitBytes}
}

var defaultPool = NewPool(0)

// Default returns the process-wide uncapped Pool.
func Default() *Pool {
	return defaultPool
}

const float32Bytes = 4

// getPool for the given length.
func (p *Pool) getPool(length int) *sync.Pool {
	pool, ok := p.pools.Load(length)
	if !ok {
		pool, _ = p.pools.LoadOrStore(length, &sync.Pool{
			New: func() any {
				buf := make([]float32, length)
				return &buf
			},
		})
	}
	return pool.(*sync.Pool)
}

// Allocate implements Allocator.
func (p *Pool) Allocate(numElements int) ([]float32, error) {
	if numElements <= 0 {
		return nil, errors.Wrapf(backends.ErrResource, "cannot allocate scratch buffer of %d elements", numElements)
	}
	numBytes := int64(numElements) * float32Bytes
	inUse := p.inUseBytes.Add(numBytes)
	if p.limitBytes > 0 && inUse > p.limitBytes {
		p.inUseBytes.Add(-numBytes)
		return nil, errors.Wrapf(backends.ErrResource, "allocating %s of scratch would exceed the limit of %s (%s in use)",
			humanize.Bytes(uint64(numBytes)), humanize.Bytes(uint64(p.limitBytes)), humanize.Bytes(uint64(inUse-numBytes)))
	}
	buf := *(p.getPool(numElements).Get().(*[]float32))
	clear(buf)
	if klog.V(3).Enabled() {
		klog.Infof("scratch: allocated %s (%s in use)", humanize.Bytes(uint64(numBytes)), humanize.Bytes(uint64(inUse)))
	}
	return buf, nil
}

// Release implements Allocator.
func (p *Pool) Release(buffer []float32) {
	if len(buffer) == 0 {
		return
	}
	buffer = buffer[:cap(buffer)]
	numBytes := int64(len(buffer)) * float32Bytes
	if p.inUseBytes.Add(-numBytes) < 0 {
		klog.Warningf("scratch: released more memory than allocated, buffer of %d elements was not from this pool?", len(buffer))
		p.inUseBytes.Store(0)
	}
	p.getPool(len(buffer)).Put(&buffer)
}

// InUse returns the number of bytes currently allocated and not released.
func (p *Pool) InUse() int64 {
	return p.inUseBytes.Load()
}
