// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package simplego

import (
	"github.com/gomlx/convkernels/backends"
	"github.com/gomlx/gopjrt/dtypes"
)

// Capabilities of the SimpleGo engine: the set of supported directions and data types.
var Capabilities = backends.Capabilities{
	Directions: map[backends.Direction]bool{
		backends.DirectionForward:      true,
		backends.DirectionBackwardData: true,
	},

	DTypes: map[dtypes.DType]bool{
		dtypes.Float32: true,
	},
}
