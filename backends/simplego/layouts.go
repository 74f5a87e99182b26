// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package simplego

import (
	"fmt"

	"github.com/gomlx/convkernels/backends"
	"github.com/gomlx/convkernels/pkg/core/shapes"
	"github.com/pkg/errors"
)

// blocking kind of a Layout.
type blocking int

const (
	// blockingNone is a plain layout: a permutation of the 4 axes, see Layout.strides.
	blockingNone blocking = iota

	// blockingChannels is "nChw<b>c": activations with the channels split in blocks of b, the block innermost.
	blockingChannels

	// blockingInputOutput is "OIhw<b>i<b>o": weights used by forward convolutions, the output channel innermost.
	blockingInputOutput

	// blockingOutputInput is "OIhw<b>o<b>i": weights used by backward-data convolutions, the input channel innermost.
	blockingOutputInput
)

// Layout implements backends.Layout for the SimpleGo engine.
//
// The shape is always in engine axis order, (N, C, H, W) for activations and (O, I, H, W) for weights.
type Layout struct {
	shape    shapes.Shape
	blocking blocking
	block    int

	// format and strides are only set for plain layouts: strides are indexed by engine axis.
	format  backends.Format
	strides [4]int
}

var _ backends.Layout = (*Layout)(nil)

// Shape implements backends.Layout.
func (l *Layout) Shape() shapes.Shape { return l.shape }

// String implements backends.Layout.
func (l *Layout) String() string {
	var name string
	switch l.blocking {
	case blockingChannels:
		name = fmt.Sprintf("nChw%dc", l.block)
	case blockingInputOutput:
		name = fmt.Sprintf("OIhw%di%do", l.block, l.block)
	case blockingOutputInput:
		name = fmt.Sprintf("OIhw%do%di", l.block, l.block)
	default:
		name = l.format.String()
	}
	return fmt.Sprintf("%s%v", name, l.shape.Dimensions)
}

// IsBlocked returns whether the layout splits channels into blocks.
func (l *Layout) IsBlocked() bool { return l.blocking != blockingNone }

// size is the number of elements required to hold the layout. There is no padding in any of the layouts.
func (l *Layout) size() int { return l.shape.Size() }

// offset returns the flat position of the element at the given engine axis indices.
func (l *Layout) offset(i0, i1, i2, i3 int) int {
	dims := l.shape.Dimensions
	b := l.block
	switch l.blocking {
	case blockingNone:
		return i0*l.strides[0] + i1*l.strides[1] + i2*l.strides[2] + i3*l.strides[3]
	case blockingChannels:
		// (n, c/b, h, w, c%b)
		return (((i0*(dims[1]/b)+i1/b)*dims[2]+i2)*dims[3]+i3)*b + i1%b
	case blockingInputOutput:
		// (o/b, i/b, h, w, i%b, o%b)
		return ((((i0/b*(dims[1]/b)+i1/b)*dims[2]+i2)*dims[3]+i3)*b+i1%b)*b + i0%b
	case blockingOutputInput:
		// (o/b, i/b, h, w, o%b, i%b)
		return ((((i0/b*(dims[1]/b)+i1/b)*dims[2]+i2)*dims[3]+i3)*b+i0%b)*b + i1%b
	}
	panic(errors.Errorf("simplego: unknown layout blocking %d", l.blocking))
}

// checkLayoutShape validates a shape for which a layout is created.
func checkLayoutShape(shape shapes.Shape) error {
	if !shape.Ok() || shape.Rank() != 4 {
		return errors.Wrapf(backends.ErrInvalidConfig, "engine %q only supports layouts for valid rank-4 shapes, got %s", EngineName, shape)
	}
	if !Capabilities.DTypes[shape.DType] {
		return errors.Wrapf(backends.ErrUnsupportedPrecision, "engine %q doesn't support dtype %s", EngineName, shape.DType)
	}
	for axis, dim := range shape.Dimensions {
		if dim <= 0 {
			return errors.Wrapf(backends.ErrInvalidConfig, "layout shape %s has dimension %d <= 0 on axis %d", shape, dim, axis)
		}
	}
	return nil
}

// plainLayout returns a plain layout of the shape, with the axes arranged as format.
func plainLayout(shape shapes.Shape, format backends.Format) (*Layout, error) {
	perm := format.Permutation()
	if perm == nil {
		return nil, errors.Wrapf(backends.ErrInvalidConfig, "engine %q: format %s is not a plain layout", EngineName, format)
	}
	if err := checkLayoutShape(shape); err != nil {
		return nil, err
	}
	l := &Layout{shape: shape.Clone(), blocking: blockingNone, format: format}
	stride := 1
	for k := len(perm) - 1; k >= 0; k-- {
		axis := perm[k]
		l.strides[axis] = stride
		stride *= shape.Dimensions[axis]
	}
	return l, nil
}

// blockedLayout returns a layout of the given blocking, assuming the dimensions are divisible by block.
func blockedLayout(shape shapes.Shape, kind blocking, block int) *Layout {
	return &Layout{shape: shape.Clone(), blocking: kind, block: block}
}

// Layout implements backends.LayoutInterface.
func (e *Engine) Layout(shape shapes.Shape, format backends.Format) (backends.Layout, error) {
	if format == backends.FormatAny {
		return nil, errors.Wrapf(backends.ErrInvalidConfig, "engine %q: layout %s can only be chosen by a convolution descriptor", EngineName, format)
	}
	return plainLayout(shape, format)
}

// requiredLayout returns the layout this engine prefers for the tensor in the given slot of a convolution.
//
// Activations are blocked by channels if they are divisible by the block size; weights if both the input
// and the output channels are. The blocking of the weights depends on the direction, as optimized engines do.
func (e *Engine) requiredLayout(direction backends.Direction, slot backends.Slot, shape shapes.Shape) *Layout {
	b := e.block
	if slot == backends.SlotWeights {
		if b > 0 && shape.Dimensions[0]%b == 0 && shape.Dimensions[1]%b == 0 {
			kind := blockingInputOutput
			if direction == backends.DirectionBackwardData {
				kind = blockingOutputInput
			}
			return blockedLayout(shape, kind, b)
		}
		l, _ := plainLayout(shape, backends.FormatOIHW)
		return l
	}
	if b > 0 && shape.Dimensions[1]%b == 0 {
		return blockedLayout(shape, blockingChannels, b)
	}
	l, _ := plainLayout(shape, backends.FormatNCHW)
	return l
}

// LayoutsEqual implements backends.LayoutInterface.
//
// Plain layouts are equal if they map every element to the same position: axes of dimension 1 are
// ignored, since their stride is irrelevant. Blocked layouts are equal if they have the same blocking.
// A plain and a blocked layout are never equal.
func (e *Engine) LayoutsEqual(a, b backends.Layout) bool {
	la, okA := a.(*Layout)
	lb, okB := b.(*Layout)
	if !okA || !okB || la == nil || lb == nil {
		return false
	}
	return layoutsEqual(la, lb)
}

func layoutsEqual(a, b *Layout) bool {
	if !a.shape.Equal(b.shape) || a.blocking != b.blocking {
		return false
	}
	if a.blocking != blockingNone {
		return a.block == b.block
	}
	for axis, dim := range a.shape.Dimensions {
		if dim > 1 && a.strides[axis] != b.strides[axis] {
			return false
		}
	}
	return true
}
