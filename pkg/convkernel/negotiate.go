// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package convkernel

import (
	"slices"

	"github.com/dustin/go-humanize"
	"github.com/gomlx/convkernels/backends"
	"github.com/gomlx/convkernels/pkg/core/dims"
	"github.com/gomlx/convkernels/pkg/core/scratch"
	"github.com/google/uuid"
	"github.com/pkg/errors"
	"k8s.io/klog/v2"
)

// build negotiates the layouts of the convolution with the engine and assembles the execution plan.
// It is shared by all directions: Direction.Slots maps the inputs and output to the engine slots.
//
// On failure the scratch allocated so far is released.
func build(engine backends.Engine, direction backends.Direction, config Config) (*Kernel, error) {
	if engine == nil {
		return nil, errors.Wrapf(backends.ErrInvalidConfig, "%s kernel: nil engine", direction)
	}
	if !direction.IsValid() {
		return nil, errors.Wrapf(backends.ErrInvalidConfig, "invalid kernel direction %s", direction)
	}
	problem, hasDepth, err := config.problem(direction)
	if err != nil {
		return nil, errors.WithMessagef(err, "%s kernel with source %v, weights %v", direction, config.Source, config.Weights)
	}
	k := &Kernel{
		id:        uuid.NewString(),
		engine:    engine,
		allocator: config.Allocator,
		problem:   problem,
		hasDepth:  hasDepth,
	}
	if direction == backends.DirectionBackwardData {
		k.outputDims = slices.Clone(config.Source)
	} else {
		k.outputDims = dims.ActivationToLogical(problem.Destination.Dimensions, hasDepth)
	}
	if k.allocator == nil {
		k.allocator = scratch.Default()
	}
	if err := k.negotiate(config.InputLayouts); err != nil {
		k.releaseScratch()
		return nil, errors.WithMessagef(err, "%s kernel for %s", direction, problem)
	}
	if klog.V(1).Enabled() {
		klog.Infof("convkernel %s: built %s", k.id, k)
	}
	return k, nil
}

// negotiate queries the engine for the required layouts and creates the primitives of the plan.
func (k *Kernel) negotiate(inputLayouts [NumInputs]backends.Layout) error {
	var err error
	k.desc, err = k.engine.ConvDescriptor(k.problem)
	if err != nil {
		return err
	}
	inputSlots, outputSlot := k.problem.Direction.Slots()
	for i, slot := range inputSlots {
		r, err := k.negotiateInput(i, slot, inputLayouts[i])
		if err != nil {
			return err
		}
		k.inputs[i] = r
		if c := r.conversion; c != nil {
			k.net = append(k.net, c.reorder)
			k.steps = append(k.steps, Step{Kind: StepConversion, Input: i})
		}
	}

	// The output is always in the required layout.
	out := &slotRecord{slot: outputSlot, shape: k.problem.SlotShape(outputSlot)}
	if out.required, err = k.engine.RequiredLayout(k.desc, outputSlot); err != nil {
		return err
	}
	out.layout = out.required
	if out.memory, err = k.engine.NewMemory(out.layout); err != nil {
		return err
	}
	k.output = out

	inputs := [NumInputs]backends.Memory{k.inputs[0].computeMemory(), k.inputs[1].computeMemory()}
	if k.compute, err = k.engine.NewConvolution(k.desc, inputs, out.memory); err != nil {
		return err
	}
	k.net = append(k.net, k.compute)
	k.steps = append(k.steps, Step{Kind: StepCompute, Input: -1})
	return nil
}

// negotiateInput binds input i to its inherited layout (or the default one), and creates a conversion
// for it if that differs from the layout required by the engine for the slot.
func (k *Kernel) negotiateInput(i int, slot backends.Slot, inherited backends.Layout) (*slotRecord, error) {
	r := &slotRecord{slot: slot, shape: k.problem.SlotShape(slot)}
	var err error
	if inherited != nil {
		if !inherited.Shape().Equal(r.shape) {
			return nil, errors.Wrapf(backends.ErrInvalidConfig, "input #%d (%s) given layout %s, but its shape should be %s",
				i, slot, inherited, r.shape)
		}
		r.layout = inherited
	} else if r.layout, err = k.engine.Layout(r.shape, DefaultInputFormats[i]); err != nil {
		return nil, err
	}
	if r.memory, err = k.engine.NewMemory(r.layout); err != nil {
		return nil, err
	}
	if r.required, err = k.engine.RequiredLayout(k.desc, slot); err != nil {
		return nil, err
	}
	if k.engine.LayoutsEqual(r.layout, r.required) {
		klog.V(1).Infof("convkernel %s: input #%d (%s) already in layout %s", k.id, i, slot, r.required)
		return r, nil
	}

	// Conversion: the record is stored in the kernel before anything is allocated, so it is released on failure.
	c := &conversion{}
	r.conversion = c
	k.inputs[i] = r
	if c.memory, err = k.engine.NewMemory(r.required); err != nil {
		return nil, err
	}
	if c.scratch, err = k.allocator.Allocate(r.shape.Size()); err != nil {
		if !errors.Is(err, backends.ErrResource) {
			err = errors.Wrap(backends.ErrResource, err.Error())
		}
		return nil, errors.WithMessagef(err, "scratch for input #%d (%s)", i, slot)
	}
	if err = k.engine.SetDataHandle(c.memory, c.scratch); err != nil {
		return nil, err
	}
	if c.reorder, err = k.engine.NewReorder(r.memory, c.memory); err != nil {
		return nil, err
	}
	if klog.V(1).Enabled() {
		klog.Infof("convkernel %s: input #%d (%s) converted from %s to %s, scratch of %s", k.id, i, slot,
			r.layout, r.required, humanize.Bytes(uint64(len(c.scratch))*uint64(r.shape.DType.Memory())))
	}
	return r, nil
}
