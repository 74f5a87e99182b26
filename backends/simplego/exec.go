// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package simplego

import (
	"github.com/gomlx/convkernels/backends"
	"github.com/pkg/errors"
	"k8s.io/klog/v2"
)

// reorder is the primitive that copies the contents of one memory into another of a different layout.
type reorder struct {
	from, to *Memory
}

// NewReorder implements backends.MemoryInterface.
func (e *Engine) NewReorder(from, to backends.Memory) (backends.Primitive, error) {
	mFrom, err := toMemory(from, backends.ErrInvalidConfig)
	if err != nil {
		return nil, errors.WithMessage(err, "reorder source")
	}
	mTo, err := toMemory(to, backends.ErrInvalidConfig)
	if err != nil {
		return nil, errors.WithMessage(err, "reorder destination")
	}
	if !mFrom.layout.shape.Equal(mTo.layout.shape) {
		return nil, errors.Wrapf(backends.ErrInvalidConfig, "reorder from %s to %s: shapes differ", mFrom.layout, mTo.layout)
	}
	return &reorder{from: mFrom, to: mTo}, nil
}

// execReorder copies every element, in the row-major order of the logical shape.
func (e *Engine) execReorder(r *reorder) {
	from, to := r.from, r.to
	for _, indices := range from.layout.shape.Iter() {
		i0, i1, i2, i3 := indices[0], indices[1], indices[2], indices[3]
		to.data[to.layout.offset(i0, i1, i2, i3)] = from.data[from.layout.offset(i0, i1, i2, i3)]
	}
}

// Submit implements backends.MemoryInterface.
//
// Primitives are executed in order, and the first failure aborts the net: later primitives are not executed.
func (e *Engine) Submit(net []backends.Primitive) error {
	if err := e.checkValid("Submit"); err != nil {
		return errors.Wrap(backends.ErrExecution, err.Error())
	}
	for stepIdx, primitive := range net {
		switch p := primitive.(type) {
		case *reorder:
			if err := checkBound(stepIdx, "reorder", p.from, p.to); err != nil {
				return err
			}
			e.execReorder(p)
		case *convolution:
			if err := checkBound(stepIdx, "convolution", p.inputs[0], p.inputs[1], p.output); err != nil {
				return err
			}
			e.execConv(p)
		default:
			return errors.Wrapf(backends.ErrExecution, "step #%d: primitive %T was not created by engine %q", stepIdx, primitive, EngineName)
		}
		if klog.V(3).Enabled() {
			klog.Infof("simplego: executed step #%d (%T)", stepIdx, primitive)
		}
	}
	return nil
}

// checkBound returns an error if any of the memories has no data bound.
func checkBound(stepIdx int, name string, memories ...*Memory) error {
	for _, m := range memories {
		if !m.IsBound() {
			return errors.Wrapf(backends.ErrExecution, "step #%d (%s): memory with layout %s has no data bound", stepIdx, name, m.layout)
		}
	}
	return nil
}
