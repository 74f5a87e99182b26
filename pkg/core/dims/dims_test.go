// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package dims

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestTranslate(t *testing.T) {
	type testCase struct {
		name                                         string
		source, weights, destination, strides, pads []int
		want                                         Conv2D
	}
	testCases := []testCase{
		{
			name:        "2D",
			source:      []int{3, 8, 8, 2},
			weights:     []int{3, 3, 3, 4},
			destination: []int{4, 8, 8, 2},
			strides:     []int{1, 1},
			pads:        []int{1, 1},
			want: Conv2D{
				Source:      []int{2, 3, 8, 8},
				Weights:     []int{4, 3, 3, 3},
				Destination: []int{2, 4, 8, 8},
				Strides:     [2]int{1, 1},
				Padding:     [2]int{1, 1},
			},
		},
		{
			name:        "non-square with strides",
			source:      []int{16, 10, 12, 1},
			weights:     []int{16, 3, 5, 32},
			destination: []int{32, 4, 5, 1},
			strides:     []int{2, 2},
			pads:        []int{0, 1},
			want: Conv2D{
				Source:      []int{1, 16, 10, 12},
				Weights:     []int{32, 16, 3, 5},
				Destination: []int{1, 32, 4, 5},
				Strides:     [2]int{2, 2},
				Padding:     [2]int{0, 1},
			},
		},
		{
			name:        "depth folded into channels",
			source:      []int{3, 2, 8, 8, 4},
			weights:     []int{3, 2, 3, 3, 5},
			destination: []int{5, 1, 8, 8, 4},
			strides:     []int{1, 1, 1},
			pads:        []int{0, 1, 1},
			want: Conv2D{
				Source:      []int{4, 6, 8, 8},
				Weights:     []int{5, 6, 3, 3},
				Destination: []int{4, 5, 8, 8},
				Strides:     [2]int{1, 1},
				Padding:     [2]int{1, 1},
				HasDepth:    true,
			},
		},
		{
			name:    "no destination",
			source:  []int{3, 8, 8, 2},
			weights: []int{3, 3, 3, 4},
			strides: []int{1, 1},
			pads:    []int{0, 0},
			want: Conv2D{
				Source:  []int{2, 3, 8, 8},
				Weights: []int{4, 3, 3, 3},
				Strides: [2]int{1, 1},
			},
		},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			got, err := Translate(tc.source, tc.weights, tc.destination, tc.strides, tc.pads)
			require.NoError(t, err)
			require.Equal(t, tc.want, got)
		})
	}
}

func TestTranslateErrors(t *testing.T) {
	_, err := Translate([]int{3, 8, 2}, []int{3, 3, 4}, nil, []int{1}, []int{0})
	require.Error(t, err, "rank 3 is not supported")

	_, err = Translate([]int{3, 8, 8, 2}, []int{3, 3, 3, 3, 4}, nil, []int{1, 1}, []int{0, 0})
	require.Error(t, err, "rank mismatch")

	_, err = Translate([]int{3, 8, 8, 2}, []int{3, 3, 3, 4}, nil, []int{1}, []int{0, 0})
	require.Error(t, err, "strides of the wrong length")

	_, err = Translate([]int{3, 8, 8, 2}, []int{3, 3, 3, 4}, nil, []int{1, 1}, []int{0, 0, 0})
	require.Error(t, err, "padding of the wrong length")

	_, err = Translate([]int{3, 4, 8, 8, 2}, []int{3, 2, 3, 3, 4}, nil, []int{1, 1, 1}, []int{0, 0, 0})
	require.Error(t, err, "filter doesn't span the depth")

	for _, depthStride := range []int{0, -7} {
		_, err = Translate([]int{3, 2, 8, 8, 2}, []int{3, 2, 3, 3, 4}, nil, []int{depthStride, 1, 1}, []int{0, 0, 0})
		require.Errorf(t, err, "depth stride %d", depthStride)
	}

	_, err = Translate([]int{3, 2, 8, 8, 2}, []int{3, 2, 3, 3, 4}, nil, []int{1, 1, 1}, []int{1, 0, 0})
	require.Error(t, err, "depth padding")

	_, err = Translate([]int{3, 2, 8, 8, 2}, []int{3, 2, 3, 3, 4}, []int{4, 2, 6, 6, 2}, []int{1, 1, 1}, []int{0, 0, 0})
	require.Error(t, err, "destination depth != 1")
}

func TestActivationToLogical(t *testing.T) {
	require.Equal(t, []int{4, 8, 8, 2}, ActivationToLogical([]int{2, 4, 8, 8}, false))
	require.Equal(t, []int{4, 1, 8, 8, 2}, ActivationToLogical([]int{2, 4, 8, 8}, true))
	require.Equal(t, 2*4*8*8, Size([]int{2, 4, 8, 8}))
}
