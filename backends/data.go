// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package backends

import (
	"fmt"

	"github.com/gomlx/convkernels/pkg/core/shapes"
)

// Layout identifies the physical arrangement of the elements of a tensor of a given shape.
//
// It is opaque from the kernels' perspective: it is created by the engine, and two layouts can only
// be compared with Engine.LayoutsEqual.
type Layout interface {
	// Shape returns the logical shape, in engine axis order (N, C, H, W) or (O, I, H, W).
	Shape() shapes.Shape

	// String returns a short description of the layout, for logging and printing.
	String() string
}

// OpDesc is a validated compute operation descriptor. Opaque to the kernels.
type OpDesc any

// Memory is a memory primitive: a layout plus a bindable data handle. Opaque to the kernels.
type Memory any

// Primitive is an executable step, either a reorder or a compute step. Opaque to the kernels.
type Primitive any

// Format is a layout hint used to request a layout from the engine.
//
// Only plain formats (permutations of the axes, without blocking) and FormatAny are defined:
// optimized engine layouts are never requested by hand, they are only obtained from descriptors.
type Format int

const (
	// FormatAny lets the engine choose the layout.
	FormatAny Format = iota

	// FormatNCHW is row-major (N, C, H, W), for activations.
	FormatNCHW

	// FormatNHWC is row-major (N, H, W, C), for activations.
	FormatNHWC

	// FormatCHWN is row-major (C, H, W, N), for activations: the batch-interleaved caller default.
	FormatCHWN

	// FormatOIHW is row-major (O, I, H, W), for weights.
	FormatOIHW

	// FormatHWIO is row-major (H, W, I, O), for weights.
	FormatHWIO

	// FormatIHWO is row-major (I, H, W, O), for weights: the output-input-interleaved caller default.
	FormatIHWO
)

var formatNames = map[Format]string{
	FormatAny:  "any",
	FormatNCHW: "nchw",
	FormatNHWC: "nhwc",
	FormatCHWN: "chwn",
	FormatOIHW: "oihw",
	FormatHWIO: "hwio",
	FormatIHWO: "ihwo",
}

// String implements fmt.Stringer.
func (f Format) String() string {
	if name, found := formatNames[f]; found {
		return name
	}
	return fmt.Sprintf("Format(%d)", int(f))
}

// IsWeights returns whether the format is meant for weights (as opposed to activations).
func (f Format) IsWeights() bool {
	return f == FormatOIHW || f == FormatHWIO || f == FormatIHWO
}

// Permutation returns the order in which the engine axes are laid out in memory, from the
// outermost to the innermost. Axes are numbered in engine order: (N, C, H, W) or (O, I, H, W).
//
// It returns nil for FormatAny or unknown formats.
func (f Format) Permutation() []int {
	switch f {
	case FormatNCHW, FormatOIHW:
		return []int{0, 1, 2, 3}
	case FormatNHWC:
		return []int{0, 2, 3, 1}
	case FormatCHWN, FormatIHWO:
		return []int{1, 2, 3, 0}
	case FormatHWIO:
		return []int{2, 3, 1, 0}
	default:
		return nil
	}
}
