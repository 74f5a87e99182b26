// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package simplego

import (
	"github.com/gomlx/convkernels/backends"
	"github.com/gomlx/convkernels/backends/shapeinference"
	"github.com/pkg/errors"
	"k8s.io/klog/v2"
)

// convDesc is the operation descriptor of a direct convolution: the validated problem, and the layouts
// chosen for each of its slots.
type convDesc struct {
	problem  backends.ConvProblem
	required map[backends.Slot]*Layout
}

// convolution is the compute primitive of a convDesc.
type convolution struct {
	desc   *convDesc
	inputs [2]*Memory
	output *Memory
}

// ConvDescriptor implements backends.ConvInterface.
//
// Checks are done in order: direction, dtypes and then the shapes, strides and padding.
func (e *Engine) ConvDescriptor(problem backends.ConvProblem) (backends.OpDesc, error) {
	if err := e.checkValid("ConvDescriptor"); err != nil {
		return nil, err
	}
	if !Capabilities.Directions[problem.Direction] {
		return nil, errors.Wrapf(backends.ErrInvalidConfig, "engine %q doesn't support convolution direction %s", EngineName, problem.Direction)
	}
	if err := checkDTypes(problem); err != nil {
		return nil, err
	}
	if err := shapeinference.ValidateConv(problem); err != nil {
		return nil, err
	}

	desc := &convDesc{problem: problem, required: make(map[backends.Slot]*Layout, 3)}
	inputSlots, outputSlot := problem.Direction.Slots()
	for _, slot := range append(inputSlots[:], outputSlot) {
		desc.required[slot] = e.requiredLayout(problem.Direction, slot, problem.SlotShape(slot))
	}
	if klog.V(2).Enabled() {
		klog.Infof("simplego: %s: %s=%s, %s=%s, %s=%s", problem,
			inputSlots[0], desc.required[inputSlots[0]], inputSlots[1], desc.required[inputSlots[1]],
			outputSlot, desc.required[outputSlot])
	}
	return desc, nil
}

// checkDTypes of the valid shapes of the problem. Invalid shapes are reported by shapeinference.
func checkDTypes(problem backends.ConvProblem) error {
	for _, slot := range []backends.Slot{backends.SlotSrc, backends.SlotWeights, backends.SlotDst} {
		shape := problem.SlotShape(slot)
		if shape.Ok() && !Capabilities.DTypes[shape.DType] {
			return errors.Wrapf(backends.ErrUnsupportedPrecision, "engine %q doesn't support dtype %s (%s shape %s)",
				EngineName, shape.DType, slot, shape)
		}
	}
	return nil
}

// toConvDesc casts a backends.OpDesc to the SimpleGo one.
func toConvDesc(desc backends.OpDesc) (*convDesc, error) {
	d, ok := desc.(*convDesc)
	if !ok || d == nil {
		return nil, errors.Wrapf(backends.ErrInvalidConfig, "engine %q: descriptor %T was not created by this engine", EngineName, desc)
	}
	return d, nil
}

// RequiredLayout implements backends.ConvInterface.
func (e *Engine) RequiredLayout(desc backends.OpDesc, slot backends.Slot) (backends.Layout, error) {
	d, err := toConvDesc(desc)
	if err != nil {
		return nil, err
	}
	l, found := d.required[slot]
	if !found {
		return nil, errors.Wrapf(backends.ErrInvalidConfig, "slot %s is not used by %s convolutions", slot, d.problem.Direction)
	}
	return l, nil
}

// NewConvolution implements backends.ConvInterface.
//
// It verifies that the memories have the layouts required by the descriptor.
func (e *Engine) NewConvolution(desc backends.OpDesc, inputs [2]backends.Memory, output backends.Memory) (backends.Primitive, error) {
	d, err := toConvDesc(desc)
	if err != nil {
		return nil, err
	}
	inputSlots, outputSlot := d.problem.Direction.Slots()
	conv := &convolution{desc: d}
	check := func(memory backends.Memory, slot backends.Slot) (*Memory, error) {
		m, err := toMemory(memory, backends.ErrInvalidConfig)
		if err != nil {
			return nil, errors.WithMessagef(err, "%s convolution slot %s", d.problem.Direction, slot)
		}
		if required := d.required[slot]; !layoutsEqual(m.layout, required) {
			return nil, errors.Wrapf(backends.ErrInvalidConfig, "%s convolution slot %s given memory with layout %s, but it requires %s",
				d.problem.Direction, slot, m.layout, required)
		}
		return m, nil
	}
	for ii, slot := range inputSlots {
		if conv.inputs[ii], err = check(inputs[ii], slot); err != nil {
			return nil, err
		}
	}
	if conv.output, err = check(output, outputSlot); err != nil {
		return nil, err
	}
	return conv, nil
}

// execConv runs the convolution primitive, whose memories must all be bound.
func (e *Engine) execConv(conv *convolution) {
	if conv.desc.problem.Direction == backends.DirectionBackwardData {
		e.execConvBackwardData(conv)
	} else {
		e.execConvForward(conv)
	}
}

// execConvForward computes dst[n, o, p, q] = Σ_{c, kh, kw} src[n, c, p*sh+kh-ph, q*sw+kw-pw] * w[o, c, kh, kw].
// The work is split over (n, o) pairs.
func (e *Engine) execConvForward(conv *convolution) {
	problem := conv.desc.problem
	src, weights, dst := conv.inputs[0], conv.inputs[1], conv.output
	srcDims, wDims, dstDims := problem.Source.Dimensions, problem.Weights.Dimensions, problem.Destination.Dimensions
	channels, height, width := srcDims[1], srcDims[2], srcDims[3]
	numOutputs, kh, kw := wDims[0], wDims[2], wDims[3]
	outH, outW := dstDims[2], dstDims[3]
	sh, sw := problem.Strides[0], problem.Strides[1]
	ph, pw := problem.Padding[0], problem.Padding[1]

	e.workers.ParallelFor(dstDims[0]*numOutputs, func(task int) {
		n, o := task/numOutputs, task%numOutputs
		for p := range outH {
			for q := range outW {
				var sum float32
				for c := range channels {
					for y := range kh {
						h := p*sh + y - ph
						if h < 0 || h >= height {
							continue
						}
						for x := range kw {
							w := q*sw + x - pw
							if w < 0 || w >= width {
								continue
							}
							sum += src.data[src.layout.offset(n, c, h, w)] * weights.data[weights.layout.offset(o, c, y, x)]
						}
					}
				}
				dst.data[dst.layout.offset(n, o, p, q)] = sum
			}
		}
	})
}

// execConvBackwardData computes the gradient of the source:
// diffSrc[n, c, h, w] = Σ_{o, kh, kw} diffDst[n, o, p, q] * w[o, c, kh, kw], for every (p, q) such that
// h = p*sh+kh-ph and w = q*sw+kw-pw. The work is split over (n, c) pairs.
func (e *Engine) execConvBackwardData(conv *convolution) {
	problem := conv.desc.problem
	diffDst, weights, diffSrc := conv.inputs[0], conv.inputs[1], conv.output
	srcDims, wDims, dstDims := problem.Source.Dimensions, problem.Weights.Dimensions, problem.Destination.Dimensions
	channels, height, width := srcDims[1], srcDims[2], srcDims[3]
	numOutputs, kh, kw := wDims[0], wDims[2], wDims[3]
	outH, outW := dstDims[2], dstDims[3]
	sh, sw := problem.Strides[0], problem.Strides[1]
	ph, pw := problem.Padding[0], problem.Padding[1]

	e.workers.ParallelFor(srcDims[0]*channels, func(task int) {
		n, c := task/channels, task%channels
		for h := range height {
			for w := range width {
				var sum float32
				for y := range kh {
					pStrided := h + ph - y
					if pStrided < 0 || pStrided%sh != 0 || pStrided/sh >= outH {
						continue
					}
					p := pStrided / sh
					for x := range kw {
						qStrided := w + pw - x
						if qStrided < 0 || qStrided%sw != 0 || qStrided/sw >= outW {
							continue
						}
						q := qStrided / sw
						for o := range numOutputs {
							sum += diffDst.data[diffDst.layout.offset(n, o, p, q)] * weights.data[weights.layout.offset(o, c, y, x)]
						}
					}
				}
				diffSrc.data[diffSrc.layout.offset(n, c, h, w)] = sum
			}
		}
	})
}
