// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package simplego

import (
	"github.com/gomlx/convkernels/backends"
	"github.com/pkg/errors"
)

// Memory for SimpleGo engine holds a layout and a reference to the flat data bound to it.
//
// The data is owned by whoever bound it: the memory never allocates nor copies it.
type Memory struct {
	layout *Layout

	// data is nil until bound with SetDataHandle. It has at least layout.size() elements.
	data []float32
}

// Layout returns the layout of the memory.
func (m *Memory) Layout() *Layout { return m.layout }

// IsBound returns whether data has been bound to the memory.
func (m *Memory) IsBound() bool { return m.data != nil }

// toLayout casts a backends.Layout to the SimpleGo one.
func toLayout(layout backends.Layout, kind error) (*Layout, error) {
	l, ok := layout.(*Layout)
	if !ok || l == nil {
		return nil, errors.Wrapf(kind, "engine %q: layout %v (%T) was not created by this engine", EngineName, layout, layout)
	}
	return l, nil
}

// toMemory casts a backends.Memory to the SimpleGo one.
func toMemory(memory backends.Memory, kind error) (*Memory, error) {
	m, ok := memory.(*Memory)
	if !ok || m == nil {
		return nil, errors.Wrapf(kind, "engine %q: memory %T was not created by this engine", EngineName, memory)
	}
	return m, nil
}

// NewMemory implements backends.MemoryInterface.
func (e *Engine) NewMemory(layout backends.Layout) (backends.Memory, error) {
	l, err := toLayout(layout, backends.ErrInvalidConfig)
	if err != nil {
		return nil, err
	}
	return &Memory{layout: l}, nil
}

// SetDataHandle implements backends.MemoryInterface.
//
// Binding a nil slice unbinds the memory.
func (e *Engine) SetDataHandle(memory backends.Memory, data []float32) error {
	m, err := toMemory(memory, backends.ErrExecution)
	if err != nil {
		return err
	}
	if data == nil {
		m.data = nil
		return nil
	}
	if len(data) < m.layout.size() {
		return errors.Wrapf(backends.ErrExecution, "buffer with %d elements is too small for layout %s, it requires %d elements",
			len(data), m.layout, m.layout.size())
	}
	m.data = data
	return nil
}
