// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package shapeinference

import (
	"testing"

	"github.com/gomlx/convkernels/backends"
	"github.com/gomlx/convkernels/pkg/core/shapes"
	"github.com/gomlx/gopjrt/dtypes"
	"github.com/pkg/errors"
	"github.com/stretchr/testify/require"
)

// Aliases
var (
	S   = shapes.Make
	F32 = dtypes.Float32
)

func TestConv2DOutput(t *testing.T) {
	type testCase struct {
		name            string
		source, weights shapes.Shape
		strides, pads   [2]int
		want            shapes.Shape
	}
	testCases := []testCase{
		{"same padding", S(F32, 2, 3, 8, 8), S(F32, 4, 3, 3, 3), [2]int{1, 1}, [2]int{1, 1}, S(F32, 2, 4, 8, 8)},
		{"valid padding", S(F32, 2, 3, 8, 8), S(F32, 4, 3, 3, 3), [2]int{1, 1}, [2]int{0, 0}, S(F32, 2, 4, 6, 6)},
		{"strides", S(F32, 1, 16, 10, 12), S(F32, 32, 16, 3, 5), [2]int{2, 2}, [2]int{0, 1}, S(F32, 1, 32, 4, 5)},
		{"1x1", S(F32, 1, 8, 4, 4), S(F32, 16, 8, 1, 1), [2]int{1, 1}, [2]int{0, 0}, S(F32, 1, 16, 4, 4)},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			got, err := Conv2DOutput(tc.source, tc.weights, tc.strides, tc.pads)
			require.NoError(t, err)
			require.True(t, tc.want.Equal(got), "want %s, got %s", tc.want, got)
		})
	}
}

func TestConv2DOutputErrors(t *testing.T) {
	_, err := Conv2DOutput(S(F32, 2, 3, 2, 2), S(F32, 4, 3, 5, 5), [2]int{1, 1}, [2]int{0, 0})
	require.Error(t, err, "window larger than padded input")
	require.True(t, errors.Is(err, backends.ErrInvalidConfig))

	_, err = Conv2DOutput(S(F32, 2, 3, 8, 8), S(F32, 4, 2, 3, 3), [2]int{1, 1}, [2]int{0, 0})
	require.ErrorIs(t, err, backends.ErrInvalidConfig, "channels mismatch")

	_, err = Conv2DOutput(S(F32, 2, 3, 8, 8), S(F32, 4, 3, 3, 3), [2]int{0, 1}, [2]int{0, 0})
	require.ErrorIs(t, err, backends.ErrInvalidConfig, "zero stride")

	_, err = Conv2DOutput(S(F32, 2, 3, 8, 8), S(F32, 4, 3, 3, 3), [2]int{1, 1}, [2]int{-1, 0})
	require.ErrorIs(t, err, backends.ErrInvalidConfig, "negative padding")

	_, err = Conv2DOutput(S(F32, 2, 3, 8), S(F32, 4, 3, 3), [2]int{1, 1}, [2]int{0, 0})
	require.ErrorIs(t, err, backends.ErrInvalidConfig, "rank 3")

	_, err = Conv2DOutput(shapes.Invalid(), S(F32, 4, 3, 3, 3), [2]int{1, 1}, [2]int{0, 0})
	require.ErrorIs(t, err, backends.ErrInvalidConfig, "invalid shape")
}

func TestValidateConv(t *testing.T) {
	problem := backends.ConvProblem{
		Direction:   backends.DirectionForward,
		Source:      S(F32, 2, 3, 8, 8),
		Weights:     S(F32, 4, 3, 3, 3),
		Destination: S(F32, 2, 4, 8, 8),
		Strides:     [2]int{1, 1},
		Padding:     [2]int{1, 1},
	}
	require.NoError(t, ValidateConv(problem))

	problem.Destination = S(F32, 2, 4, 6, 6)
	require.ErrorIs(t, ValidateConv(problem), backends.ErrInvalidConfig)

	problem.Destination = S(F32, 2, 4, 8, 8)
	problem.Direction = backends.Direction(9)
	require.ErrorIs(t, ValidateConv(problem), backends.ErrInvalidConfig)
}

func TestConvOutputDims(t *testing.T) {
	require.Equal(t, 8, ConvOutputDims(8, 3, 1, 1))
	require.Equal(t, 4, ConvOutputDims(8, 3, 2, 1))
	require.Equal(t, 0, ConvOutputDims(2, 5, 1, 0))
	require.Equal(t, 0, ConvOutputDims(8, 3, 0, 0))
}
