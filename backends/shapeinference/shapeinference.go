// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

// Package shapeinference validates convolution problems and infers their output shapes.
//
// It is shared by engine implementations (that must reject invalid problems when creating descriptors)
// and by the kernels (to infer a missing destination shape).
package shapeinference

import (
	"github.com/gomlx/convkernels/backends"
	"github.com/gomlx/convkernels/pkg/core/shapes"
	"github.com/pkg/errors"
)

// ConvOutputDims returns the output spatial dimension for the given input dimension, window (kernel)
// size, stride and symmetric padding. It may be <= 0 for invalid configurations.
func ConvOutputDims(input, window, stride, padding int) int {
	if stride <= 0 {
		return 0
	}
	padded := input + 2*padding - window
	if padded < 0 {
		return 0
	}
	return padded/stride + 1
}

// Conv2DOutput returns the destination shape (N, O, P, Q) of a 2D convolution of source (N, C, H, W) with
// weights (O, I, Kh, Kw).
//
// Errors wrap backends.ErrInvalidConfig.
func Conv2DOutput(source, weights shapes.Shape, strides, padding [2]int) (shapes.Shape, error) {
	// Convenient error returns.
	errorf := func(format string, args ...any) (shapes.Shape, error) {
		return shapes.Invalid(), errors.Wrapf(backends.ErrInvalidConfig, "Conv2DOutput: "+format, args...)
	}

	if !source.Ok() {
		return errorf("invalid source shape %s", source)
	}
	if !weights.Ok() {
		return errorf("invalid weights shape %s", weights)
	}
	if source.DType != weights.DType {
		return errorf("source (%s) and weights (%s) have different dtypes", source, weights)
	}
	if source.Rank() != 4 {
		return errorf("source must be rank-4 (N, C, H, W), got shape %s", source)
	}
	if weights.Rank() != 4 {
		return errorf("weights must be rank-4 (O, I, Kh, Kw), got shape %s", weights)
	}
	for axis, dim := range source.Dimensions {
		if dim <= 0 {
			return errorf("source axis %d has dimension %d <= 0 (shape %s)", axis, dim, source)
		}
	}
	for axis, dim := range weights.Dimensions {
		if dim <= 0 {
			return errorf("weights axis %d has dimension %d <= 0 (shape %s)", axis, dim, weights)
		}
	}
	if source.Dimensions[1] != weights.Dimensions[1] {
		return errorf("source channels (%d) don't match weights input channels (%d): source=%s, weights=%s",
			source.Dimensions[1], weights.Dimensions[1], source, weights)
	}

	dims := []int{source.Dimensions[0], weights.Dimensions[0], 0, 0}
	for spatial := range 2 {
		if strides[spatial] < 1 {
			return errorf("strides[%d]=%d must be >= 1", spatial, strides[spatial])
		}
		if padding[spatial] < 0 {
			return errorf("padding[%d]=%d must be >= 0", spatial, padding[spatial])
		}
		input, window := source.Dimensions[2+spatial], weights.Dimensions[2+spatial]
		out := ConvOutputDims(input, window, strides[spatial], padding[spatial])
		if out <= 0 {
			return errorf("spatial axis %d: input dimension %d with padding %d is smaller than window %d, output would be empty",
				spatial, input, padding[spatial], window)
		}
		dims[2+spatial] = out
	}
	return shapes.Shape{DType: source.DType, Dimensions: dims}, nil
}

// ValidateConv checks that the problem is a valid 2D convolution: shapes are consistent with each other,
// strides and padding. It doesn't check dtypes support, that is up to the engine.
func ValidateConv(problem backends.ConvProblem) error {
	if !problem.Direction.IsValid() {
		return errors.Wrapf(backends.ErrInvalidConfig, "invalid direction %s", problem.Direction)
	}
	want, err := Conv2DOutput(problem.Source, problem.Weights, problem.Strides, problem.Padding)
	if err != nil {
		return err
	}
	if !problem.Destination.Ok() {
		return errors.Wrapf(backends.ErrInvalidConfig, "invalid destination shape %s", problem.Destination)
	}
	if !want.Equal(problem.Destination) {
		return errors.Wrapf(backends.ErrInvalidConfig, "destination shape %s doesn't match the expected %s for %s",
			problem.Destination, want, problem)
	}
	return nil
}
