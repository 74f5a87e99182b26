// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package shapes

import (
	"testing"

	"github.com/gomlx/gopjrt/dtypes"
	"github.com/stretchr/testify/require"
)

func TestShape(t *testing.T) {
	invalidShape := Invalid()
	require.False(t, invalidShape.Ok())
	require.False(t, Shape{}.Ok())

	shape0 := Make(dtypes.Float64)
	require.True(t, shape0.Ok())
	require.Equal(t, 0, shape0.Rank())
	require.Len(t, shape0.Dimensions, 0)
	require.Equal(t, 1, shape0.Size())
	require.Equal(t, 8, int(shape0.Memory()))

	shape1 := Make(dtypes.Float32, 2, 3, 8, 8)
	require.True(t, shape1.Ok())
	require.Equal(t, 4, shape1.Rank())
	require.Equal(t, 2*3*8*8, shape1.Size())
	require.Equal(t, 4*2*3*8*8, int(shape1.Memory()))
	require.Equal(t, "(Float32)[2 3 8 8]", shape1.String())
}

func TestMake(t *testing.T) {
	require.Panics(t, func() { _ = Make(dtypes.Float32, 2, 0, 3) })
	_, err := MakeChecked(dtypes.Float32, 2, -1)
	require.Error(t, err)
	s, err := MakeChecked(dtypes.Float32, 4, 3, 3, 3)
	require.NoError(t, err)
	require.Equal(t, []int{4, 3, 3, 3}, s.Dimensions)

	// Make must not alias the caller's slice.
	dims := []int{1, 2}
	s = Make(dtypes.Float32, dims...)
	dims[0] = 7
	require.Equal(t, 1, s.Dimensions[0])
}

func TestDim(t *testing.T) {
	shape := Make(dtypes.Float32, 4, 3, 2)
	require.Equal(t, 4, shape.Dim(0))
	require.Equal(t, 3, shape.Dim(1))
	require.Equal(t, 2, shape.Dim(2))
	require.Equal(t, 4, shape.Dim(-3))
	require.Equal(t, 2, shape.Dim(-1))
	require.Panics(t, func() { _ = shape.Dim(3) })
	require.Panics(t, func() { _ = shape.Dim(-4) })
}

func TestEqualAndClone(t *testing.T) {
	a := Make(dtypes.Float32, 2, 4, 8, 8)
	b := a.Clone()
	require.True(t, a.Equal(b))
	b.Dimensions[1] = 5
	require.False(t, a.Equal(b))
	require.False(t, a.Equal(Make(dtypes.Float64, 2, 4, 8, 8)))
}
