// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package simplego

import (
	"testing"

	"github.com/gomlx/convkernels/backends"
	"github.com/gomlx/convkernels/pkg/core/shapes"
	"github.com/janpfeifer/must"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// arange returns a slice with values 0, 1, 2, ... n-1.
func arange(n int) []float32 {
	data := make([]float32, n)
	for i := range data {
		data[i] = float32(i)
	}
	return data
}

// boundMemory returns a memory for the layout, bound to data.
func boundMemory(t *testing.T, e *Engine, layout backends.Layout, data []float32) backends.Memory {
	t.Helper()
	m, err := e.NewMemory(layout)
	require.NoError(t, err)
	require.NoError(t, e.SetDataHandle(m, data))
	return m
}

func TestSetDataHandle(t *testing.T) {
	e := must.M1(NewEngine(""))
	layout := must.M1(e.Layout(S(F32, 2, 3, 4, 4), backends.FormatNCHW))
	m := must.M1(e.NewMemory(layout)).(*Memory)
	assert.False(t, m.IsBound())
	assert.Same(t, layout, m.Layout())

	err := e.SetDataHandle(m, make([]float32, 95))
	require.ErrorIs(t, err, backends.ErrExecution)
	assert.False(t, m.IsBound())

	data := make([]float32, 96)
	require.NoError(t, e.SetDataHandle(m, data))
	assert.True(t, m.IsBound())
	data[3] = 7
	assert.Equal(t, float32(7), m.data[3], "data must be bound without copying")

	// Larger buffers are accepted, nil unbinds.
	require.NoError(t, e.SetDataHandle(m, make([]float32, 100)))
	require.NoError(t, e.SetDataHandle(m, nil))
	assert.False(t, m.IsBound())

	require.ErrorIs(t, e.SetDataHandle("not a memory", data), backends.ErrExecution)
	_, err = e.NewMemory(nil)
	require.ErrorIs(t, err, backends.ErrInvalidConfig)
}

func TestReorder(t *testing.T) {
	e := must.M1(NewEngine("parallelism=-1"))
	shape := S(F32, 2, 16, 3, 5)
	size := shape.Size()
	chwn := must.M1(plainLayout(shape, backends.FormatCHWN))
	nhwc := must.M1(plainLayout(shape, backends.FormatNHWC))
	blocked := blockedLayout(shape, blockingChannels, 8)

	// CHWN -> nChw8c -> NHWC -> CHWN.
	original := arange(size)
	result := make([]float32, size)
	mChwn := boundMemory(t, e, chwn, original)
	mBlocked := boundMemory(t, e, blocked, make([]float32, size))
	mNhwc := boundMemory(t, e, nhwc, make([]float32, size))
	mResult := boundMemory(t, e, chwn, result)
	net := []backends.Primitive{
		must.M1(e.NewReorder(mChwn, mBlocked)),
		must.M1(e.NewReorder(mBlocked, mNhwc)),
		must.M1(e.NewReorder(mNhwc, mResult)),
	}
	require.NoError(t, e.Submit(net))
	require.Equal(t, original, result)

	// Every intermediate holds the same logical tensor.
	blockedData := mBlocked.(*Memory).data
	nhwcData := mNhwc.(*Memory).data
	for _, indices := range shape.Iter() {
		i0, i1, i2, i3 := indices[0], indices[1], indices[2], indices[3]
		want := original[chwn.offset(i0, i1, i2, i3)]
		require.Equal(t, want, blockedData[blocked.offset(i0, i1, i2, i3)])
		require.Equal(t, want, nhwcData[nhwc.offset(i0, i1, i2, i3)])
	}
}

func TestReorderErrors(t *testing.T) {
	e := must.M1(NewEngine(""))
	a := must.M1(e.NewMemory(must.M1(e.Layout(S(F32, 2, 3, 4, 4), backends.FormatNCHW))))
	b := must.M1(e.NewMemory(must.M1(e.Layout(S(F32, 2, 3, 4, 5), backends.FormatNCHW))))
	_, err := e.NewReorder(a, b)
	require.ErrorIs(t, err, backends.ErrInvalidConfig)
	_, err = e.NewReorder(a, 1.0)
	require.ErrorIs(t, err, backends.ErrInvalidConfig)

	// Unbound memories fail at execution.
	c := must.M1(e.NewMemory(must.M1(e.Layout(S(F32, 2, 3, 4, 4), backends.FormatCHWN))))
	reorder := must.M1(e.NewReorder(a, c))
	err = e.Submit([]backends.Primitive{reorder})
	require.ErrorIs(t, err, backends.ErrExecution)

	require.ErrorIs(t, e.Submit([]backends.Primitive{"not a primitive"}), backends.ErrExecution)
}

func TestSubmitAfterFinalize(t *testing.T) {
	e := must.M1(NewEngine(""))
	shape := shapes.Make(F32, 1, 1, 2, 2)
	a := boundMemory(t, e, must.M1(e.Layout(shape, backends.FormatNCHW)), arange(4))
	b := boundMemory(t, e, must.M1(e.Layout(shape, backends.FormatNHWC)), make([]float32, 4))
	reorder := must.M1(e.NewReorder(a, b))
	require.NoError(t, e.Submit([]backends.Primitive{reorder}))
	e.Finalize()
	require.ErrorIs(t, e.Submit([]backends.Primitive{reorder}), backends.ErrExecution)
	_, err := e.ConvDescriptor(backends.ConvProblem{})
	require.Error(t, err)
}
