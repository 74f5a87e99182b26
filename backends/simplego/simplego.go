// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

// Package simplego implements a simple, and not very fast, but very portable reference engine for the
// convolution kernels.
//
// It supports forward and backward-data direct convolutions in Float32. Like optimized engines it
// prefers channel-blocked layouts (e.g. "nChw8c") whenever the number of channels allows, so kernels
// built on it exercise the same conversion paths they would on a real engine.
//
// Configuration string, comma separated:
//
//   - "block=<n>": channel block size of the optimized layouts, 0 (always plain NCHW/OIHW), 8 (default) or 16.
//   - "parallelism=<n>": max number of goroutines used by one primitive. 0 (default) uses the number of CPUs,
//     a negative value runs everything inline.
package simplego

import (
	"strconv"
	"strings"
	"sync/atomic"

	"github.com/gomlx/convkernels/backends"
	"github.com/gomlx/convkernels/internal/workerspool"
	"github.com/gomlx/exceptions"
	"github.com/pkg/errors"
	"k8s.io/klog/v2"
)

// EngineName to be used in CONVKERNELS_ENGINE to specify this engine.
const EngineName = "go"

// DefaultBlock is the channel block size used when none is configured.
const DefaultBlock = 8

// Registers New() as the constructor for the "go" engine.
func init() {
	backends.Register(EngineName, New)
}

// New constructs a new SimpleGo Engine with the given configuration string.
//
// It panics if the configuration is invalid. Use NewEngine to get an error instead.
func New(config string) backends.Engine {
	e, err := NewEngine(config)
	if err != nil {
		exceptions.Panicf("simplego.New(%q): %+v", config, err)
	}
	return e
}

// NewEngine constructs a new SimpleGo Engine, see package documentation for the configuration format.
func NewEngine(config string) (*Engine, error) {
	e := &Engine{block: DefaultBlock}
	parallelism := 0
	for _, part := range strings.Split(config, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		key, value, found := strings.Cut(part, "=")
		if !found {
			return nil, errors.Wrapf(backends.ErrInvalidConfig, "engine %q: configuration %q is not in the form key=value", EngineName, part)
		}
		n, err := strconv.Atoi(value)
		if err != nil {
			return nil, errors.Wrapf(backends.ErrInvalidConfig, "engine %q: value of %q must be an integer: %v", EngineName, key, err)
		}
		switch key {
		case "block":
			if n < 0 {
				return nil, errors.Wrapf(backends.ErrInvalidConfig, "engine %q: block=%d must be >= 0", EngineName, n)
			}
			e.block = n
		case "parallelism":
			parallelism = n
		default:
			return nil, errors.Wrapf(backends.ErrInvalidConfig, "engine %q: unknown configuration key %q", EngineName, key)
		}
	}
	e.workers = workerspool.New(parallelism)
	klog.V(1).Infof("simplego engine created: block=%d, parallelism=%d", e.block, e.workers.MaxParallelism())
	return e, nil
}

// Engine implements the backends.Engine interface.
type Engine struct {
	// block is the channel block size of the optimized layouts. If 0, only plain layouts are used.
	block int

	workers   *workerspool.Pool
	finalized atomic.Bool
}

// Compile-time check that simplego.Engine implements backends.Engine.
var _ backends.Engine = &Engine{}

// Name returns the short name of the engine.
func (e *Engine) Name() string {
	return EngineName
}

// String implements fmt.Stringer.
func (e *Engine) String() string { return EngineName }

// Description is a longer description of the Engine that can be used to pretty-print.
func (e *Engine) Description() string {
	if e.block == 0 {
		return "SimpleGo portable engine (plain layouts)"
	}
	return "SimpleGo portable engine (nChw" + strconv.Itoa(e.block) + "c blocked layouts)"
}

// Block returns the configured channel block size, 0 if only plain layouts are used.
func (e *Engine) Block() int { return e.block }

// Capabilities returns information about what is supported by this engine.
func (e *Engine) Capabilities() backends.Capabilities {
	return Capabilities
}

// Finalize makes the engine invalid: descriptors can no longer be created, and nets no longer submitted.
func (e *Engine) Finalize() {
	e.finalized.Store(true)
}

// checkValid returns an error if the engine has been finalized.
func (e *Engine) checkValid(op string) error {
	if e.finalized.Load() {
		return errors.Errorf("engine %q: %s called after Finalize", EngineName, op)
	}
	return nil
}
