// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package backends

import "github.com/pkg/errors"

// Error kinds. Errors returned by engines and kernels wrap one of them, test with errors.Is.
var (
	// ErrInvalidConfig is returned for invalid shapes, strides or padding. Detected at construction time.
	ErrInvalidConfig = errors.New("invalid convolution configuration")

	// ErrUnsupportedPrecision is returned for dtypes the engine doesn't support. Detected at construction time.
	ErrUnsupportedPrecision = errors.New("unsupported precision")

	// ErrResource is returned when scratch memory can't be allocated.
	ErrResource = errors.New("resource exhausted")

	// ErrExecution is returned when binding a buffer or running a step fails.
	ErrExecution = errors.New("execution failed")
)

// IsConfigError returns whether err is a configuration error: either ErrInvalidConfig or ErrUnsupportedPrecision.
func IsConfigError(err error) bool {
	return errors.Is(err, ErrInvalidConfig) || errors.Is(err, ErrUnsupportedPrecision)
}
