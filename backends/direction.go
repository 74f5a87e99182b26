// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package backends

import "fmt"

// Direction of the convolution computation.
type Direction int

const (
	// DirectionForward computes destination = conv(source, weights).
	DirectionForward Direction = iota

	// DirectionBackwardData computes the gradient of the source, given the gradient of the destination
	// and the weights.
	DirectionBackwardData
)

// String implements fmt.Stringer.
func (d Direction) String() string {
	switch d {
	case DirectionForward:
		return "Forward"
	case DirectionBackwardData:
		return "BackwardData"
	default:
		return fmt.Sprintf("Direction(%d)", int(d))
	}
}

// IsValid returns whether d is one of the defined directions.
func (d Direction) IsValid() bool {
	return d == DirectionForward || d == DirectionBackwardData
}

// Slot identifies the role of a tensor in a convolution primitive, using the engine's naming.
type Slot int

const (
	SlotSrc Slot = iota
	SlotWeights
	SlotDst
	SlotDiffSrc
	SlotDiffDst
)

var slotNames = [...]string{"src", "weights", "dst", "diff_src", "diff_dst"}

// String implements fmt.Stringer.
func (s Slot) String() string {
	if s >= 0 && int(s) < len(slotNames) {
		return slotNames[s]
	}
	return fmt.Sprintf("Slot(%d)", int(s))
}

// Slots returns the engine slots of the two inputs and of the output for the direction.
//
// For DirectionBackwardData the engine's naming is swapped relative to forward: the gradient of the
// destination is consumed and the gradient of the source is produced.
func (d Direction) Slots() (inputs [2]Slot, output Slot) {
	if d == DirectionBackwardData {
		return [2]Slot{SlotDiffDst, SlotWeights}, SlotDiffSrc
	}
	return [2]Slot{SlotSrc, SlotWeights}, SlotDst
}
