// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package backends

import (
	"fmt"

	"github.com/gomlx/convkernels/pkg/core/shapes"
)

// ConvProblem describes a 2D convolution, in engine axis order.
//
// The shapes always use the forward naming, regardless of the direction: Source is (N, C, H, W),
// Weights is (O, I, Kh, Kw) and Destination is (N, O, P, Q). For DirectionBackwardData the
// Destination shaped tensor is consumed and the Source shaped one is produced.
type ConvProblem struct {
	Direction                    Direction
	Source, Weights, Destination shapes.Shape

	// Strides and Padding for the (h, w) spatial axes. Padding is symmetric and zero filled.
	Strides, Padding [2]int
}

// SlotShape returns the shape of the tensor in the given slot.
func (p ConvProblem) SlotShape(slot Slot) shapes.Shape {
	switch slot {
	case SlotSrc, SlotDiffSrc:
		return p.Source
	case SlotWeights:
		return p.Weights
	default:
		return p.Destination
	}
}

// String implements fmt.Stringer.
func (p ConvProblem) String() string {
	return fmt.Sprintf("Conv%s(source=%s, weights=%s, destination=%s, strides=%v, padding=%v)",
		p.Direction, p.Source, p.Weights, p.Destination, p.Strides, p.Padding)
}
