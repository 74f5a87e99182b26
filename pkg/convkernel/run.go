// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package convkernel

import (
	"github.com/gomlx/convkernels/backends"
	"github.com/gomlx/exceptions"
	"github.com/pkg/errors"
	"k8s.io/klog/v2"
)

// Run binds the caller's buffers to the kernel and executes the plan: the conversions first, then
// the compute step.
//
// The operand and weights must be in Kernel.InputLayout(0) and Kernel.InputLayout(1), and output is
// written in Kernel.OutputLayout(0). Binding doesn't copy: the buffers replace the ones of any previous Run.
//
// Errors, including panics of the engine of any value, wrap backends.ErrExecution. The kernel remains valid after a failed Run, and can be run again.
// Concurrent calls to Run of the same kernel are rejected.
func (k *Kernel) Run(operand, weights, output []float32) error {
	if k.IsFinalized() {
		return errors.Wrapf(backends.ErrExecution, "convkernel %s: Run called after Finalize", k.id)
	}
	if !k.running.CompareAndSwap(false, true) {
		return errors.Wrapf(backends.ErrExecution, "convkernel %s: concurrent Run of the same kernel, runs must be serialized", k.id)
	}
	defer k.running.Store(false)

	var err error
	if exception := exceptions.Try(func() { err = k.run(operand, weights, output) }); exception != nil {
		err = errors.Wrapf(backends.ErrExecution, "engine %q panicked: %+v", k.engine.Name(), exception)
	}
	if err != nil {
		return errors.WithMessagef(err, "convkernel %s: %s Run", k.id, k.Direction())
	}
	return nil
}

func (k *Kernel) run(operand, weights, output []float32) error {
	bindings := [...]struct {
		record *slotRecord
		data   []float32
	}{
		{k.inputs[0], operand},
		{k.inputs[1], weights},
		{k.output, output},
	}
	for _, b := range bindings {
		if err := k.engine.SetDataHandle(b.record.memory, b.data); err != nil {
			return wrapExecution(err, "binding %s", b.record.slot)
		}
	}
	if klog.V(2).Enabled() {
		klog.Infof("convkernel %s: bound %d, %d and %d elements, submitting %d steps", k.id,
			len(operand), len(weights), len(output), len(k.net))
	}
	if err := k.engine.Submit(k.net); err != nil {
		return wrapExecution(err, "submitting %d steps", len(k.net))
	}
	return nil
}

// wrapExecution makes sure the error wraps backends.ErrExecution.
func wrapExecution(err error, format string, args ...any) error {
	if !errors.Is(err, backends.ErrExecution) {
		err = errors.Wrap(backends.ErrExecution, err.Error())
	}
	return errors.WithMessagef(err, format, args...)
}
