// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

// Package dims translates the logical axis ordering used by callers of the convolution kernels into
// the fixed axis ordering used by the engines.
//
// Logical ordering (channels first, batch last, as stored by the caller):
//
//   - Activations (source and destination): (C, H, W, N), or (C, D, H, W, N) with a depth axis.
//   - Weights: (I, R, S, O), or (I, T, R, S, O) with a depth axis: I input channels, T depth,
//     R x S spatial window and O output channels.
//   - Strides and padding: (h, w), or (d, h, w).
//
// Engine ordering:
//
//   - Activations: (N, C, H, W).
//   - Weights: (O, I, H, W).
//   - Strides and padding: (h, w).
//
// The depth axis is folded into the channel axis. That is exact only when the filter spans the whole
// input depth (T == D, no depth padding), in which case the output depth is 1. Other depth configurations
// are rejected.
package dims

import (
	"github.com/pkg/errors"
)

// Conv2D holds the engine ordered dimensions of a 2D convolution problem.
type Conv2D struct {
	// Source and Destination are in (N, C, H, W) order.
	Source, Destination []int

	// Weights are in (O, I, H, W) order.
	Weights []int

	// Strides and Padding are given for the (h, w) spatial axes.
	Strides, Padding [2]int

	// HasDepth is set if the logical dimensions included a depth axis.
	HasDepth bool
}

// Translate flattens the depth axis (if present) and reorders the logical dimensions to the engine order.
//
// The destination can be nil, in which case Conv2D.Destination is left nil.
// Translate is a pure function: it doesn't validate the convolution arithmetic (window sizes, output
// sizes). That is left to the engine.
func Translate(source, weights, destination, strides, padding []int) (c Conv2D, err error) {
	rank := len(source)
	if rank != 4 && rank != 5 {
		return c, errors.Errorf("source must have rank 4 (C,H,W,N) or 5 (C,D,H,W,N), got dimensions %v", source)
	}
	c.HasDepth = rank == 5
	if len(weights) != rank {
		return c, errors.Errorf("weights rank (dimensions %v) must match source rank (dimensions %v)", weights, source)
	}
	if destination != nil && len(destination) != rank {
		return c, errors.Errorf("destination rank (dimensions %v) must match source rank (dimensions %v)", destination, source)
	}
	spatialRank := rank - 2
	if len(strides) != spatialRank {
		return c, errors.Errorf("strides %v must have one value per spatial axis (%d)", strides, spatialRank)
	}
	if len(padding) != spatialRank {
		return c, errors.Errorf("padding %v must have one value per spatial axis (%d)", padding, spatialRank)
	}

	if c.HasDepth {
		depth, filterDepth := source[1], weights[1]
		if depth != filterDepth {
			return c, errors.Errorf("filter depth (%d) must span the whole source depth (%d)", filterDepth, depth)
		}
		if strides[0] < 1 {
			return c, errors.Errorf("depth stride must be >= 1, got %d", strides[0])
		}
		if padding[0] != 0 {
			return c, errors.Errorf("depth padding must be 0, got %d", padding[0])
		}
		if destination != nil && destination[1] != 1 {
			return c, errors.Errorf("destination depth must be 1, got dimensions %v", destination)
		}
	}

	c.Source = flattenActivation(source)
	c.Weights = flattenWeights(weights)
	if destination != nil {
		c.Destination = flattenActivation(destination)
	}
	copy(c.Strides[:], strides[spatialRank-2:])
	copy(c.Padding[:], padding[spatialRank-2:])
	return c, nil
}

// flattenActivation maps (C, [D,] H, W, N) to (N, C*D, H, W).
func flattenActivation(logical []int) []int {
	rank := len(logical)
	channels := logical[0]
	if rank == 5 {
		channels *= logical[1]
	}
	return []int{logical[rank-1], channels, logical[rank-3], logical[rank-2]}
}

// flattenWeights maps (I, [T,] R, S, O) to (O, I*T, R, S).
func flattenWeights(logical []int) []int {
	rank := len(logical)
	inputs := logical[0]
	if rank == 5 {
		inputs *= logical[1]
	}
	return []int{logical[rank-1], inputs, logical[rank-3], logical[rank-2]}
}

// ActivationToLogical maps engine ordered activation dimensions (N, C, H, W) back to the logical order
// (C, H, W, N), or (C, 1, H, W, N) if withDepth is set.
func ActivationToLogical(engine []int, withDepth bool) []int {
	n, ch, h, w := engine[0], engine[1], engine[2], engine[3]
	if withDepth {
		return []int{ch, 1, h, w, n}
	}
	return []int{ch, h, w, n}
}

// Size returns the number of elements of a tensor with the given dimensions.
func Size(dimensions []int) int {
	size := 1
	for _, dim := range dimensions {
		size *= dim
	}
	return size
}
