// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

// Package enginetest provides a scriptable fake backends.Engine, to test the negotiation of layouts
// independently of any real engine.
//
// Layouts of the fake engine are a shape plus a tag: two layouts are equal if both match. Layouts
// created from a Format are tagged with the format name ("chwn", "ihwo", ...), and the layouts required by
// convolution descriptors are tagged as configured in Engine.RequiredTags (OptimalTag by default, which
// never matches a Format).
//
// The fake doesn't compute real convolutions: reorders copy the data unchanged, and the compute step
// writes output[i] = operand[i % len(operand)] + weights[i % len(weights)].
package enginetest

import (
	"fmt"
	"slices"
	"sync"

	"github.com/gomlx/convkernels/backends"
	"github.com/gomlx/convkernels/backends/shapeinference"
	"github.com/gomlx/convkernels/pkg/core/shapes"
	"github.com/gomlx/gopjrt/dtypes"
	"github.com/pkg/errors"
)

// Name of the fake engine.
const Name = "fake"

// OptimalTag is the tag of required layouts for slots not configured in Engine.RequiredTags.
const OptimalTag = "optimal"

// Layout of the fake engine.
type Layout struct {
	shape shapes.Shape
	Tag   string
}

var _ backends.Layout = (*Layout)(nil)

// Shape implements backends.Layout.
func (l *Layout) Shape() shapes.Shape { return l.shape }

// String implements backends.Layout.
func (l *Layout) String() string { return fmt.Sprintf("%s%v", l.Tag, l.shape.Dimensions) }

// Memory of the fake engine.
type Memory struct {
	Layout *Layout
	Data   []float32
}

// Reorder primitive of the fake engine.
type Reorder struct {
	From, To *Memory
}

// Convolution primitive of the fake engine.
type Convolution struct {
	Problem backends.ConvProblem
	Inputs  [2]*Memory
	Output  *Memory
}

type descriptor struct {
	problem backends.ConvProblem
}

// Engine is a fake backends.Engine. Configure it before use, it is not safe to change the configuration
// concurrently with calls.
type Engine struct {
	// RequiredTags maps slots to the tag of the layout RequiredLayout reports for them.
	// Slots not listed get OptimalTag.
	RequiredTags map[backends.Slot]string

	// Failures make the named method (e.g. "NewReorder") return the given error, unchanged in kind.
	Failures map[string]error

	// PanicOnSubmit makes Submit panic, like a misbehaving engine would.
	PanicOnSubmit bool

	// PanicValue is the value Submit panics with if PanicOnSubmit is set. If nil, it panics with an error.
	PanicValue any

	mu        sync.Mutex
	calls     []string
	problems  []backends.ConvProblem
	executed  []backends.Primitive
	finalized bool
}

var _ backends.Engine = (*Engine)(nil)

// New returns a new fake Engine, where every required layout is tagged OptimalTag.
func New() *Engine {
	return &Engine{
		RequiredTags: make(map[backends.Slot]string),
		Failures:     make(map[string]error),
	}
}

// record the call, and returns the configured failure for the method, if any.
func (e *Engine) record(method string) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.calls = append(e.calls, method)
	if err := e.Failures[method]; err != nil {
		return errors.WithMessagef(err, "%s: injected failure", method)
	}
	return nil
}

// Calls returns the names of the methods called so far, in order.
func (e *Engine) Calls() []string {
	e.mu.Lock()
	defer e.mu.Unlock()
	return slices.Clone(e.calls)
}

// Count returns how many times the method was called.
func (e *Engine) Count(method string) int {
	e.mu.Lock()
	defer e.mu.Unlock()
	var count int
	for _, call := range e.calls {
		if call == method {
			count++
		}
	}
	return count
}

// Problems returns the problems given to ConvDescriptor so far.
func (e *Engine) Problems() []backends.ConvProblem {
	e.mu.Lock()
	defer e.mu.Unlock()
	return slices.Clone(e.problems)
}

// Executed returns the primitives executed by Submit so far, in order.
func (e *Engine) Executed() []backends.Primitive {
	e.mu.Lock()
	defer e.mu.Unlock()
	return slices.Clone(e.executed)
}

// ResetCalls forgets the calls, problems and executed primitives recorded so far.
func (e *Engine) ResetCalls() {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.calls, e.problems, e.executed = nil, nil, nil
}

// IsFinalized returns whether Finalize was called.
func (e *Engine) IsFinalized() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.finalized
}

// Name implements backends.Engine.
func (e *Engine) Name() string { return Name }

// Description implements backends.Engine.
func (e *Engine) Description() string { return "Fake engine for tests" }

// Capabilities implements backends.Engine.
func (e *Engine) Capabilities() backends.Capabilities {
	return backends.Capabilities{
		Directions: map[backends.Direction]bool{backends.DirectionForward: true, backends.DirectionBackwardData: true},
		DTypes:     map[dtypes.DType]bool{dtypes.Float32: true},
	}
}

// Finalize implements backends.Engine.
func (e *Engine) Finalize() {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.finalized = true
}

// ConvDescriptor implements backends.ConvInterface.
func (e *Engine) ConvDescriptor(problem backends.ConvProblem) (backends.OpDesc, error) {
	if err := e.record("ConvDescriptor"); err != nil {
		return nil, err
	}
	e.mu.Lock()
	e.problems = append(e.problems, problem)
	e.mu.Unlock()
	for _, shape := range []shapes.Shape{problem.Source, problem.Weights, problem.Destination} {
		if shape.Ok() && shape.DType != dtypes.Float32 {
			return nil, errors.Wrapf(backends.ErrUnsupportedPrecision, "fake engine only supports Float32, got %s", shape)
		}
	}
	if err := shapeinference.ValidateConv(problem); err != nil {
		return nil, err
	}
	return &descriptor{problem: problem}, nil
}

// RequiredLayout implements backends.ConvInterface.
func (e *Engine) RequiredLayout(desc backends.OpDesc, slot backends.Slot) (backends.Layout, error) {
	if err := e.record("RequiredLayout"); err != nil {
		return nil, err
	}
	d, ok := desc.(*descriptor)
	if !ok {
		return nil, errors.Wrapf(backends.ErrInvalidConfig, "descriptor %T not from fake engine", desc)
	}
	tag, found := e.RequiredTags[slot]
	if !found {
		tag = OptimalTag
	}
	return &Layout{shape: d.problem.SlotShape(slot), Tag: tag}, nil
}

// NewConvolution implements backends.ConvInterface.
func (e *Engine) NewConvolution(desc backends.OpDesc, inputs [2]backends.Memory, output backends.Memory) (backends.Primitive, error) {
	if err := e.record("NewConvolution"); err != nil {
		return nil, err
	}
	d, ok := desc.(*descriptor)
	if !ok {
		return nil, errors.Wrapf(backends.ErrInvalidConfig, "descriptor %T not from fake engine", desc)
	}
	conv := &Convolution{Problem: d.problem}
	var err error
	for ii := range inputs {
		if conv.Inputs[ii], err = toMemory(inputs[ii]); err != nil {
			return nil, err
		}
	}
	if conv.Output, err = toMemory(output); err != nil {
		return nil, err
	}
	return conv, nil
}

// Layout implements backends.LayoutInterface.
func (e *Engine) Layout(shape shapes.Shape, format backends.Format) (backends.Layout, error) {
	if err := e.record("Layout"); err != nil {
		return nil, err
	}
	if format == backends.FormatAny {
		return nil, errors.Wrapf(backends.ErrInvalidConfig, "fake engine: format %s not accepted", format)
	}
	return &Layout{shape: shape.Clone(), Tag: format.String()}, nil
}

// LayoutsEqual implements backends.LayoutInterface.
func (e *Engine) LayoutsEqual(a, b backends.Layout) bool {
	e.mu.Lock()
	e.calls = append(e.calls, "LayoutsEqual")
	e.mu.Unlock()
	la, okA := a.(*Layout)
	lb, okB := b.(*Layout)
	if !okA || !okB {
		return false
	}
	return la.Tag == lb.Tag && la.shape.Equal(lb.shape)
}

func toMemory(memory backends.Memory) (*Memory, error) {
	m, ok := memory.(*Memory)
	if !ok || m == nil {
		return nil, errors.Wrapf(backends.ErrInvalidConfig, "memory %T not from fake engine", memory)
	}
	return m, nil
}

// NewMemory implements backends.MemoryInterface.
func (e *Engine) NewMemory(layout backends.Layout) (backends.Memory, error) {
	if err := e.record("NewMemory"); err != nil {
		return nil, err
	}
	l, ok := layout.(*Layout)
	if !ok {
		return nil, errors.Wrapf(backends.ErrInvalidConfig, "layout %T not from fake engine", layout)
	}
	return &Memory{Layout: l}, nil
}

// SetDataHandle implements backends.MemoryInterface.
func (e *Engine) SetDataHandle(memory backends.Memory, data []float32) error {
	if err := e.record("SetDataHandle"); err != nil {
		return err
	}
	m, err := toMemory(memory)
	if err != nil {
		return errors.Wrap(backends.ErrExecution, err.Error())
	}
	if data != nil && len(data) < m.Layout.shape.Size() {
		return errors.Wrapf(backends.ErrExecution, "buffer of %d elements too small for %s", len(data), m.Layout)
	}
	m.Data = data
	return nil
}

// NewReorder implements backends.MemoryInterface.
func (e *Engine) NewReorder(from, to backends.Memory) (backends.Primitive, error) {
	if err := e.record("NewReorder"); err != nil {
		return nil, err
	}
	mFrom, err := toMemory(from)
	if err != nil {
		return nil, err
	}
	mTo, err := toMemory(to)
	if err != nil {
		return nil, err
	}
	if !mFrom.Layout.shape.Equal(mTo.Layout.shape) {
		return nil, errors.Wrapf(backends.ErrInvalidConfig, "reorder from %s to %s: shapes differ", mFrom.Layout, mTo.Layout)
	}
	return &Reorder{From: mFrom, To: mTo}, nil
}

// Submit implements backends.MemoryInterface.
func (e *Engine) Submit(net []backends.Primitive) error {
	if err := e.record("Submit"); err != nil {
		return err
	}
	if e.PanicOnSubmit {
		if e.PanicValue != nil {
			panic(e.PanicValue)
		}
		panic(errors.New("fake engine panicked in Submit"))
	}
	for stepIdx, primitive := range net {
		switch p := primitive.(type) {
		case *Reorder:
			if p.From.Data == nil || p.To.Data == nil {
				return errors.Wrapf(backends.ErrExecution, "step #%d: reorder with unbound memory", stepIdx)
			}
			copy(p.To.Data, p.From.Data[:p.From.Layout.shape.Size()])
		case *Convolution:
			operand, weights, output := p.Inputs[0].Data, p.Inputs[1].Data, p.Output.Data
			if operand == nil || weights == nil || output == nil {
				return errors.Wrapf(backends.ErrExecution, "step #%d: convolution with unbound memory", stepIdx)
			}
			numOperand, numWeights := p.Inputs[0].Layout.shape.Size(), p.Inputs[1].Layout.shape.Size()
			for i := range p.Output.Layout.shape.Size() {
				output[i] = operand[i%numOperand] + weights[i%numWeights]
			}
		default:
			return errors.Wrapf(backends.ErrExecution, "step #%d: primitive %T not from fake engine", stepIdx, primitive)
		}
		e.mu.Lock()
		e.executed = append(e.executed, primitive)
		e.mu.Unlock()
	}
	return nil
}
