// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

// Package backends defines the interface a tensor-math engine needs to implement to run the
// convolution kernels built by package github.com/gomlx/convkernels/pkg/convkernel.
//
// It is modeled after MKL-DNN style APIs: the engine validates a convolution problem into an
// operation descriptor, reports the memory layout it requires for each tensor slot, and creates
// primitives (memory, reorders, convolutions) that are later submitted for execution as an ordered
// list ("net").
//
// All engine values (Layout, OpDesc, Memory, Primitive) are opaque to the kernels:
// layouts are only compared with Engine.LayoutsEqual.
package backends

import (
	"os"
	"strings"

	"github.com/gomlx/convkernels/pkg/core/shapes"
	"github.com/gomlx/exceptions"
)

// Engine is the API that needs to be implemented by a tensor-math engine.
type Engine interface {
	// Name returns the short name of the engine. E.g.: "go" for the reference SimpleGo engine.
	Name() string

	// Description is a longer description of the Engine that can be used to pretty-print.
	Description() string

	// Capabilities returns what the engine supports.
	Capabilities() Capabilities

	// ConvInterface is the sub-interface used to describe and create convolutions.
	ConvInterface

	// LayoutInterface is the sub-interface used to query and compare layouts.
	LayoutInterface

	// MemoryInterface is the sub-interface used to bind data and run primitives.
	MemoryInterface

	// Finalize releases all the associated resources immediately, and makes the engine invalid.
	Finalize()
}

// ConvInterface is the Engine's sub-interface that validates convolution problems and creates the compute step.
type ConvInterface interface {
	// ConvDescriptor validates the problem and returns an operation descriptor for it, using the
	// "direct" convolution algorithm, zero padding and no bias. The engine is free to choose the layouts
	// of all tensors.
	//
	// Invalid shapes, strides or padding return an error wrapping ErrInvalidConfig; unsupported dtypes
	// return an error wrapping ErrUnsupportedPrecision.
	ConvDescriptor(problem ConvProblem) (OpDesc, error)

	// RequiredLayout returns the layout the operation descriptor requires for the tensor in the given slot.
	// The slots available depend on the descriptor's direction, see Direction.Slots.
	RequiredLayout(desc OpDesc, slot Slot) (Layout, error)

	// NewConvolution creates the compute primitive for the descriptor.
	// The inputs and output memories must have the layouts returned by RequiredLayout for the
	// corresponding slots.
	NewConvolution(desc OpDesc, inputs [2]Memory, output Memory) (Primitive, error)
}

// LayoutInterface is the Engine's sub-interface to build and compare layouts.
type LayoutInterface interface {
	// Layout returns the engine's layout for a tensor of the given shape, arranged as the format hint.
	// FormatAny is not accepted here: only descriptors choose layouts freely.
	Layout(shape shapes.Shape, format Format) (Layout, error)

	// LayoutsEqual returns whether both layouts describe the same physical arrangement of the same shape.
	LayoutsEqual(a, b Layout) bool
}

// MemoryInterface is the Engine's sub-interface to manage memory primitives and execute nets.
type MemoryInterface interface {
	// NewMemory returns a memory primitive for the layout, with no data bound.
	NewMemory(layout Layout) (Memory, error)

	// SetDataHandle binds the data to the memory primitive, replacing any previous binding.
	// No data is copied: the memory primitive reads and writes to the given slice directly.
	// It fails if data has fewer elements than the layout requires.
	SetDataHandle(memory Memory, data []float32) error

	// NewReorder returns a primitive that copies the contents of from into to, converting the layout.
	// Both memories must hold the same logical shape.
	NewReorder(from, to Memory) (Primitive, error)

	// Submit executes the primitives in order, synchronously.
	// All memories referenced must have data bound.
	Submit(net []Primitive) error
}

// Constructor takes a config string (optionally empty) and returns an Engine.
type Constructor func(config string) Engine

var (
	registeredConstructors = make(map[string]Constructor)
	firstRegistered        string
)

// Register engine with the given name, and a default constructor that takes as input a configuration string that is
// passed along to the engine constructor.
//
// To be safe, call Register during initialization of a package.
func Register(name string, constructor Constructor) {
	if len(registeredConstructors) == 0 {
		firstRegistered = name
	}
	registeredConstructors[name] = constructor
}

// DefaultConfig is the name of the default engine configuration to use if specified.
//
// See NewWithConfig for the format of the configuration string.
var DefaultConfig string

// CONVKERNELS_ENGINE is the environment variable with the default engine configuration to use.
//
// The format of config is "<engine_name>:<engine_configuration>".
// The "<engine_name>" is the name of a registered engine (e.g.: "go") and
// "<engine_configuration>" is engine specific (e.g.: for the "go" engine, "block=16").
const CONVKERNELS_ENGINE = "CONVKERNELS_ENGINE"

// New returns a new default Engine.
//
// The default is:
//
// 1. The environment CONVKERNELS_ENGINE is used as a configuration if defined.
// 2. Next the variable DefaultConfig is used as a configuration if defined.
// 3. The first registered engine is used with an empty configuration.
//
// It panics if no engine was registered, or if the configuration is invalid.
func New() Engine {
	config, found := os.LookupEnv(CONVKERNELS_ENGINE)
	if found {
		return NewWithConfig(config)
	}
	if DefaultConfig != "" {
		return NewWithConfig(DefaultConfig)
	}
	return NewWithConfig("")
}

// NewWithConfig takes a configuration string formatted as "<engine_name>:<engine_configuration>".
//
// If "<engine_name>" is omitted, the first registered engine is used.
// It panics if the engine is not registered, or if the configuration is invalid.
func NewWithConfig(config string) Engine {
	if len(registeredConstructors) == 0 {
		exceptions.Panicf(`no registered engines -- maybe import the reference one with import _ "github.com/gomlx/convkernels/backends/simplego"?`)
	}
	engineName := firstRegistered
	engineConfig := config
	if idx := strings.Index(config, ":"); idx != -1 {
		engineName = config[:idx]
		engineConfig = config[idx+1:]
	} else if _, found := registeredConstructors[config]; found {
		engineName = config
		engineConfig = ""
	}
	constructor, found := registeredConstructors[engineName]
	if !found {
		exceptions.Panicf("can't find engine %q for configuration %q given", engineName, config)
	}
	return constructor(engineConfig)
}

// TryNew is like New, but returns an error instead of panicking.
func TryNew() (engine Engine, err error) {
	err = exceptions.TryCatch[error](func() { engine = New() })
	return
}
