// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package convkernel

import (
	"fmt"
	"slices"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/dustin/go-humanize"
	"github.com/gomlx/convkernels/backends"
	"github.com/gomlx/convkernels/pkg/core/scratch"
	"github.com/gomlx/convkernels/pkg/core/shapes"
	"github.com/gomlx/exceptions"
	"k8s.io/klog/v2"
)

// NumInputs of every kernel: the primary operand and the weights.
const NumInputs = 2

// NumOutputs of every kernel.
const NumOutputs = 1

// conversion of one input to the layout required by the compute step.
type conversion struct {
	// memory in the required layout, bound to scratch.
	memory  backends.Memory
	scratch []float32
	reorder backends.Primitive
}

// slotRecord holds everything about one tensor of the kernel.
type slotRecord struct {
	slot  backends.Slot
	shape shapes.Shape

	// layout the caller's buffer is in, and memory the caller's buffer is bound to on Run.
	layout backends.Layout
	memory backends.Memory

	// required layout reported by the engine for the slot.
	required backends.Layout

	// conversion is nil if layout is the required one. Always nil for the output.
	conversion *conversion
}

// computeMemory returns the memory read by the compute step for the input.
func (r *slotRecord) computeMemory() backends.Memory {
	if r.conversion != nil {
		return r.conversion.memory
	}
	return r.memory
}

// StepKind of a step in the execution plan.
type StepKind int

const (
	// StepConversion is a reorder of an input to the layout required by the compute step.
	StepConversion StepKind = iota

	// StepCompute is the convolution itself.
	StepCompute
)

// String implements fmt.Stringer.
func (k StepKind) String() string {
	switch k {
	case StepConversion:
		return "Conversion"
	case StepCompute:
		return "Compute"
	default:
		return fmt.Sprintf("StepKind(%d)", int(k))
	}
}

// Step describes one entry of the execution plan.
type Step struct {
	Kind StepKind

	// Input index converted by a StepConversion. -1 for StepCompute.
	Input int
}

// String implements fmt.Stringer.
func (s Step) String() string {
	if s.Kind == StepConversion {
		return fmt.Sprintf("Conversion(input #%d)", s.Input)
	}
	return s.Kind.String()
}

// Kernel is the execution plan of one convolution configuration, built by BuildForward or BuildBackwardData.
//
// It owns the scratch buffers of its conversions until Finalize is called.
// Runs of the same Kernel must not be concurrent.
type Kernel struct {
	id        string
	engine    backends.Engine
	allocator scratch.Allocator
	problem   backends.ConvProblem
	hasDepth  bool

	// outputDims are the logical dimensions of the output: the destination for forward kernels, the
	// source for backward-data kernels.
	outputDims []int

	desc    backends.OpDesc
	compute backends.Primitive
	inputs  [NumInputs]*slotRecord
	output  *slotRecord

	// net is the execution plan submitted on Run, described by steps.
	net   []backends.Primitive
	steps []Step

	running atomic.Bool

	// muFinalize protects finalized and the release of the scratch buffers.
	muFinalize sync.Mutex
	finalized  bool
}

// ID of the kernel, used in logs.
func (k *Kernel) ID() string { return k.id }

// Direction of the convolution computed by the kernel.
func (k *Kernel) Direction() backends.Direction { return k.problem.Direction }

// Problem returns the convolution problem, in engine axis order, given to the engine.
func (k *Kernel) Problem() backends.ConvProblem { return k.problem }

// Engine the kernel was built with.
func (k *Kernel) Engine() backends.Engine { return k.engine }

// NumInputs returns the number of inputs, always 2.
func (k *Kernel) NumInputs() int { return NumInputs }

// NumOutputs returns the number of outputs, always 1.
func (k *Kernel) NumOutputs() int { return NumOutputs }

func (k *Kernel) input(i int) *slotRecord {
	if i < 0 || i >= NumInputs {
		exceptions.Panicf("convkernel: input #%d out of range, kernels have %d inputs", i, NumInputs)
	}
	return k.inputs[i]
}

func (k *Kernel) checkOutput(i int) {
	if i != 0 {
		exceptions.Panicf("convkernel: output #%d out of range, kernels have %d output", i, NumOutputs)
	}
}

// InputSlot returns the engine slot of input i.
func (k *Kernel) InputSlot(i int) backends.Slot { return k.input(i).slot }

// InputShape returns the engine shape of input i.
func (k *Kernel) InputShape(i int) shapes.Shape { return k.input(i).shape }

// InputLayout returns the layout the buffer of input i is expected in by Run.
func (k *Kernel) InputLayout(i int) backends.Layout { return k.input(i).layout }

// RequiredInputLayout returns the layout the compute step reads input i in.
func (k *Kernel) RequiredInputLayout(i int) backends.Layout { return k.input(i).required }

// NeedsConversion returns whether input i is converted before the compute step.
func (k *Kernel) NeedsConversion(i int) bool { return k.input(i).conversion != nil }

// NumConversions returns the number of conversion steps in the plan: 0, 1 or 2.
func (k *Kernel) NumConversions() int { return len(k.steps) - 1 }

// ScratchElements returns the number of elements of the scratch buffer of input i, 0 if it has no conversion.
func (k *Kernel) ScratchElements(i int) int {
	if c := k.input(i).conversion; c != nil {
		return len(c.scratch)
	}
	return 0
}

// ScratchBytes returns the total bytes of scratch owned by the kernel.
func (k *Kernel) ScratchBytes() int64 {
	var total int64
	for i := range NumInputs {
		total += int64(k.ScratchElements(i)) * int64(k.inputs[i].shape.DType.Memory())
	}
	return total
}

// OutputSlot returns the engine slot of output i.
func (k *Kernel) OutputSlot(i int) backends.Slot {
	k.checkOutput(i)
	return k.output.slot
}

// OutputShape returns the engine shape of output i.
func (k *Kernel) OutputShape(i int) shapes.Shape {
	k.checkOutput(i)
	return k.output.shape
}

// OutputLayout returns the layout Run writes output i in: always the one required by the engine.
// It can be given as an input layout of a downstream kernel.
func (k *Kernel) OutputLayout(i int) backends.Layout {
	k.checkOutput(i)
	return k.output.layout
}

// OutputDims returns the logical dimensions of output i.
//
// For forward kernels that is (C, H, W, N), or (C, 1, H, W, N) for 3D inputs. For backward-data kernels
// the output is the source gradient, with the dimensions of Config.Source, (C, [D,] H, W, N).
func (k *Kernel) OutputDims(i int) []int {
	k.checkOutput(i)
	return slices.Clone(k.outputDims)
}

// Steps returns a description of the execution plan, in order. The last step is always StepCompute.
func (k *Kernel) Steps() []Step { return slices.Clone(k.steps) }

// Net returns the primitives of the execution plan, in order, as created by the engine.
func (k *Kernel) Net() []backends.Primitive { return slices.Clone(k.net) }

// String implements fmt.Stringer.
func (k *Kernel) String() string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "Kernel(%s, %s", k.Direction(), k.problem)
	for i, input := range k.inputs {
		fmt.Fprintf(&sb, ", input #%d %s=%s", i, input.slot, input.layout)
		if input.conversion != nil {
			fmt.Fprintf(&sb, "->%s", input.required)
		}
	}
	fmt.Fprintf(&sb, ", output %s=%s", k.output.slot, k.output.layout)
	if bytes := k.ScratchBytes(); bytes > 0 {
		fmt.Fprintf(&sb, ", scratch %s", humanize.Bytes(uint64(bytes)))
	}
	sb.WriteString(")")
	return sb.String()
}

// IsFinalized returns whether Finalize was called.
func (k *Kernel) IsFinalized() bool {
	k.muFinalize.Lock()
	defer k.muFinalize.Unlock()
	return k.finalized
}

// Finalize releases the scratch buffers to the allocator, and makes the kernel invalid: Run fails afterward.
//
// It must not be called concurrently with Run. It's a no-op if called more than once.
func (k *Kernel) Finalize() {
	k.muFinalize.Lock()
	defer k.muFinalize.Unlock()
	if k.finalized {
		return
	}
	k.finalized = true
	k.releaseScratch()
	klog.V(1).Infof("convkernel %s: finalized", k.id)
}

// releaseScratch returns the scratch buffers to the allocator and unbinds them from the engine memories.
func (k *Kernel) releaseScratch() {
	for _, input := range k.inputs {
		if input == nil || input.conversion == nil || input.conversion.scratch == nil {
			continue
		}
		c := input.conversion
		if c.memory != nil {
			if err := k.engine.SetDataHandle(c.memory, nil); err != nil {
				klog.Warningf("convkernel %s: failed to unbind scratch of %s: %v", k.id, input.slot, err)
			}
		}
		k.allocator.Release(c.scratch)
		c.scratch = nil
	}
}
