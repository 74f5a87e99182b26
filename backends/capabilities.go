// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package backends

import (
	"maps"

	"github.com/gomlx/gopjrt/dtypes"
)

// Capabilities holds mappings of what is supported by an engine.
type Capabilities struct {
	// Directions of convolution supported by an engine.
	// If not listed, it's assumed to be false, hence not supported.
	Directions map[Direction]bool

	// DTypes list the data types supported by an engine.
	// If not listed, it's assumed to be false, hence not supported.
	DTypes map[dtypes.DType]bool
}

// Clone makes a deep copy of the Capabilities.
func (c Capabilities) Clone() Capabilities {
	var c2 Capabilities
	c2.Directions = make(map[Direction]bool, len(c.Directions))
	maps.Copy(c2.Directions, c.Directions)
	c2.DTypes = make(map[dtypes.DType]bool, len(c.DTypes))
	maps.Copy(c2.DTypes, c.DTypes)
	return c2
}
