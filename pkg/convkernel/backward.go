// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package convkernel

import "github.com/gomlx/convkernels/backends"

// BuildBackwardData builds the kernel computing the gradient of the source of a forward convolution,
// given the gradient of its destination and the same weights.
//
// The calling convention is the same as BuildForward: Kernel.Run takes the destination gradient as the
// primary operand (input #0, in config.InputLayouts[0] or CHWN), the weights (input #1, in
// config.InputLayouts[1] or IHWO), and writes the source gradient, shaped as config.Source, in
// Kernel.OutputLayout(0).
//
// The config is the one of the forward convolution: Destination, if given, is the shape of the gradient
// consumed.
func BuildBackwardData(engine backends.Engine, config Config) (*Kernel, error) {
	return build(engine, backends.DirectionBackwardData, config)
}
