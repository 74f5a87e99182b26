// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package backends

import (
	"testing"

	"github.com/gomlx/convkernels/pkg/core/shapes"
	"github.com/gomlx/exceptions"
	"github.com/gomlx/gopjrt/dtypes"
	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDirectionSlots(t *testing.T) {
	inputs, output := DirectionForward.Slots()
	assert.Equal(t, [2]Slot{SlotSrc, SlotWeights}, inputs)
	assert.Equal(t, SlotDst, output)

	inputs, output = DirectionBackwardData.Slots()
	assert.Equal(t, [2]Slot{SlotDiffDst, SlotWeights}, inputs)
	assert.Equal(t, SlotDiffSrc, output)

	assert.Equal(t, "Forward", DirectionForward.String())
	assert.Equal(t, "BackwardData", DirectionBackwardData.String())
	assert.False(t, Direction(7).IsValid())
	assert.Equal(t, "diff_dst", SlotDiffDst.String())
}

func TestConvProblemSlotShape(t *testing.T) {
	p := ConvProblem{
		Direction:   DirectionBackwardData,
		Source:      shapes.Make(dtypes.Float32, 2, 3, 8, 8),
		Weights:     shapes.Make(dtypes.Float32, 4, 3, 3, 3),
		Destination: shapes.Make(dtypes.Float32, 2, 4, 8, 8),
		Strides:     [2]int{1, 1},
		Padding:     [2]int{1, 1},
	}
	assert.True(t, p.SlotShape(SlotDiffDst).Equal(p.Destination))
	assert.True(t, p.SlotShape(SlotDiffSrc).Equal(p.Source))
	assert.True(t, p.SlotShape(SlotWeights).Equal(p.Weights))
}

func TestFormat(t *testing.T) {
	assert.Equal(t, []int{1, 2, 3, 0}, FormatCHWN.Permutation())
	assert.Equal(t, []int{1, 2, 3, 0}, FormatIHWO.Permutation())
	assert.Nil(t, FormatAny.Permutation())
	assert.True(t, FormatIHWO.IsWeights())
	assert.False(t, FormatCHWN.IsWeights())
	assert.Equal(t, "chwn", FormatCHWN.String())
}

func TestErrorKinds(t *testing.T) {
	err := errors.Wrapf(ErrUnsupportedPrecision, "dtype %s", dtypes.Float64)
	assert.True(t, IsConfigError(err))
	assert.False(t, IsConfigError(errors.Wrap(ErrExecution, "run")))
}

func TestRegistry(t *testing.T) {
	var gotConfig string
	Register("test_engine", func(config string) Engine {
		gotConfig = config
		return nil
	})
	_ = NewWithConfig("test_engine:block=8")
	require.Equal(t, "block=8", gotConfig)
	_ = NewWithConfig("test_engine")
	require.Equal(t, "", gotConfig)
	require.Panics(t, func() { _ = NewWithConfig("unknown_engine:x") })
}

func TestTryNew(t *testing.T) {
	Register("failing_engine", func(config string) Engine {
		exceptions.Panicf("failing_engine: invalid configuration %q", config)
		return nil
	})
	t.Setenv(CONVKERNELS_ENGINE, "failing_engine:bad")
	engine, err := TryNew()
	require.Error(t, err)
	require.Nil(t, engine)
	require.ErrorContains(t, err, `invalid configuration "bad"`)
}
