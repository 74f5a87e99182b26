// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

// Package convkernel builds and runs convolution kernels on top of a backends.Engine.
//
// A Kernel is the execution plan of one convolution configuration: the engine picks the layouts it
// computes fastest on, and the builder inserts a conversion (reorder) step for each input whose
// layout differs, backed by a scratch buffer owned by the Kernel. The plan ("net") is the list of
// conversions followed by the compute step, submitted on every Kernel.Run with the caller's buffers.
//
// Example:
//
//	engine := backends.New()
//	kernel, err := convkernel.BuildForward(engine, convkernel.Config{
//		Source:  []int{3, 8, 8, 2},  // C, H, W, N
//		Weights: []int{3, 3, 3, 4},  // I, R, S, O
//		Strides: []int{1, 1},
//		Padding: []int{1, 1},
//	})
//	...
//	err = kernel.Run(source, weights, destination)
//
// Kernels are built once per configuration and reused: building queries the engine, and may allocate.
// Runs of one Kernel must be serialized, different kernels can run concurrently.
package convkernel

import (
	"slices"

	"github.com/gomlx/convkernels/backends"
	"github.com/gomlx/convkernels/backends/shapeinference"
	"github.com/gomlx/convkernels/pkg/core/dims"
	"github.com/gomlx/convkernels/pkg/core/scratch"
	"github.com/gomlx/convkernels/pkg/core/shapes"
	"github.com/gomlx/gopjrt/dtypes"
	"github.com/pkg/errors"
)

// Config of a convolution kernel, with dimensions in the logical axis order documented in package dims.
//
// The naming is always the forward one: for a backward-data kernel Destination is the shape of the
// incoming gradient, and Source the shape of the gradient produced.
type Config struct {
	// Source dimensions: (C, H, W, N), or (C, D, H, W, N).
	Source []int

	// Weights dimensions: (I, R, S, O), or (I, T, R, S, O).
	Weights []int

	// Destination dimensions: (C, H, W, N), or (C, 1, H, W, N). Optional: if nil it is inferred, see OutputDims.
	Destination []int

	// Strides and Padding, one per spatial axis. If nil, they default to 1 and 0 respectively.
	Strides, Padding []int

	// DType of all tensors. If left as dtypes.InvalidDType, dtypes.Float32 is used.
	DType dtypes.DType

	// InputLayouts are the layouts the inputs (primary operand and weights) are given in, typically the
	// output layout of an upstream kernel. If nil, the default FormatCHWN for the primary operand and
	// FormatIHWO for the weights are used.
	InputLayouts [2]backends.Layout

	// Allocator for the scratch buffers of the conversions. If nil, scratch.Default() is used.
	Allocator scratch.Allocator
}

// DefaultInputFormats are the formats assumed for the inputs with no inherited layout.
var DefaultInputFormats = [2]backends.Format{backends.FormatCHWN, backends.FormatIHWO}

// dtype returns the configured dtype or the default one.
func (c *Config) dtype() dtypes.DType {
	if c.DType == dtypes.InvalidDType {
		return dtypes.Float32
	}
	return c.DType
}

// spatialDefault returns values if set, otherwise one value per spatial axis of the source.
func (c *Config) spatialDefault(values []int, value int) []int {
	if values != nil {
		return values
	}
	spatialRank := max(len(c.Source)-2, 0)
	defaults := make([]int, spatialRank)
	for i := range defaults {
		defaults[i] = value
	}
	return defaults
}

// translate the logical configuration to the engine dimensions.
func (c *Config) translate() (dims.Conv2D, error) {
	conv, err := dims.Translate(c.Source, c.Weights, c.Destination,
		c.spatialDefault(c.Strides, 1), c.spatialDefault(c.Padding, 0))
	if err != nil {
		return conv, errors.Wrap(backends.ErrInvalidConfig, err.Error())
	}
	return conv, nil
}

// problem returns the engine convolution problem for the configuration.
//
// Dimensions <= 0 are configuration errors, and a missing destination is inferred.
func (c *Config) problem(direction backends.Direction) (problem backends.ConvProblem, hasDepth bool, err error) {
	conv, err := c.translate()
	if err != nil {
		return
	}
	hasDepth = conv.HasDepth
	problem = backends.ConvProblem{Direction: direction, Strides: conv.Strides, Padding: conv.Padding}
	dtype := c.dtype()
	// Convenient function to convert dimensions to a shape.
	toShape := func(name string, logical, engineDims []int) (shapes.Shape, error) {
		shape, err := shapes.MakeChecked(dtype, engineDims...)
		if err != nil {
			return shape, errors.Wrapf(backends.ErrInvalidConfig, "%s dimensions %v: %v", name, logical, err)
		}
		return shape, nil
	}
	if problem.Source, err = toShape("source", c.Source, conv.Source); err != nil {
		return
	}
	if problem.Weights, err = toShape("weights", c.Weights, conv.Weights); err != nil {
		return
	}
	if conv.Destination == nil {
		problem.Destination, err = shapeinference.Conv2DOutput(problem.Source, problem.Weights, problem.Strides, problem.Padding)
	} else {
		problem.Destination, err = toShape("destination", c.Destination, conv.Destination)
	}
	return
}

// OutputDims returns the logical destination dimensions, (C, H, W, N) or (C, 1, H, W, N), of a convolution
// of the configured source and weights. Config.Destination is ignored.
//
// Configurations whose destination would have a dimension <= 0 return an error wrapping backends.ErrInvalidConfig.
func OutputDims(config Config) ([]int, error) {
	config.Destination = nil
	problem, hasDepth, err := config.problem(backends.DirectionForward)
	if err != nil {
		return nil, err
	}
	return dims.ActivationToLogical(problem.Destination.Dimensions, hasDepth), nil
}

// Clone returns a copy of the configuration that doesn't share the dimension slices.
// Layouts and the allocator are shared.
func (c Config) Clone() Config {
	c.Source = slices.Clone(c.Source)
	c.Weights = slices.Clone(c.Weights)
	c.Destination = slices.Clone(c.Destination)
	c.Strides = slices.Clone(c.Strides)
	c.Padding = slices.Clone(c.Padding)
	return c
}
