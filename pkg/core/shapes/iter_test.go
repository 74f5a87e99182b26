// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package shapes

import (
	"slices"
	"testing"

	"github.com/gomlx/gopjrt/dtypes"
	"github.com/stretchr/testify/require"
)

func TestShape_Strides(t *testing.T) {
	shape := Make(dtypes.Float32, 2, 3, 4)
	require.Equal(t, []int{12, 4, 1}, shape.Strides())

	shape = Make(dtypes.Float32, 5)
	require.Equal(t, []int{1}, shape.Strides())

	shape = Make(dtypes.Float32, 3, 1, 2)
	require.Equal(t, []int{2, 2, 1}, shape.Strides())
}

func TestShape_Iter(t *testing.T) {
	shape := Make(dtypes.Float32, 1, 1, 1, 1)
	collect := make([][]int, 0, shape.Size())
	for flatIdx, indices := range shape.Iter() {
		collect = append(collect, slices.Clone(indices))
		require.Equal(t, 0, flatIdx)
	}
	require.Equal(t, [][]int{{0, 0, 0, 0}}, collect)

	shape = Make(dtypes.Float32, 3, 1, 2)
	collect = collect[:0]
	var counter int
	for flatIdx, indices := range shape.Iter() {
		collect = append(collect, slices.Clone(indices))
		require.Equal(t, counter, flatIdx)
		counter++
	}
	want := [][]int{
		{0, 0, 0},
		{0, 0, 1},
		{1, 0, 0},
		{1, 0, 1},
		{2, 0, 0},
		{2, 0, 1},
	}
	require.Equal(t, want, collect)

	// Early break.
	counter = 0
	for range shape.Iter() {
		counter++
		if counter == 2 {
			break
		}
	}
	require.Equal(t, 2, counter)

	require.Panics(t, func() { shape.IterOn(make([]int, 2)) })
}
