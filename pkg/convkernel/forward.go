// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package convkernel

import "github.com/gomlx/convkernels/backends"

// BuildForward builds the kernel computing destination = conv(source, weights), with the direct
// algorithm and no bias.
//
// Kernel.Run takes the source as the primary operand (input #0, in config.InputLayouts[0] or CHWN),
// the weights (input #1, in config.InputLayouts[1] or IHWO), and writes the destination in
// Kernel.OutputLayout(0).
//
// Configuration errors wrap backends.ErrInvalidConfig or backends.ErrUnsupportedPrecision, and failures to
// allocate scratch wrap backends.ErrResource.
func BuildForward(engine backends.Engine, config Config) (*Kernel, error) {
	return build(engine, backends.DirectionForward, config)
}
