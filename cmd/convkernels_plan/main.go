// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

// convkernels_plan prints the execution plans that the convolution kernel builders produce for a configuration:
// the layouts negotiated with the engine, the conversion steps inserted and the scratch they use.
//
// Example:
//
//	convkernels_plan -source=3,8,8,2 -weights=3,3,3,4 -padding=1,1 -engine="go:block=8" -runs=10
package main

import (
	"flag"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/dustin/go-humanize"
	"github.com/gomlx/convkernels/backends"
	_ "github.com/gomlx/convkernels/backends/simplego"
	"github.com/gomlx/convkernels/pkg/convkernel"
	"github.com/gomlx/exceptions"
	"github.com/gomlx/gopjrt/dtypes"
	"github.com/pkg/errors"
	"k8s.io/klog/v2"
)

var (
	flagEngine = flag.String("engine", "", fmt.Sprintf("Engine configuration, formatted as \"<engine>:<config>\". "+
		"If empty, $%s or the default engine is used.", backends.CONVKERNELS_ENGINE))
	flagDirection = flag.String("direction", "both", "Kernels to plan: \"forward\", \"backward_data\" or \"both\".")

	flagSource      = flag.String("source", "3,8,8,2", "Source dimensions, (C,H,W,N) or (C,D,H,W,N).")
	flagWeights     = flag.String("weights", "3,3,3,4", "Weights dimensions, (I,R,S,O) or (I,T,R,S,O).")
	flagDestination = flag.String("destination", "", "Destination dimensions. If empty they are inferred.")
	flagStrides     = flag.String("strides", "", "Strides, one per spatial axis. Defaults to 1.")
	flagPadding     = flag.String("padding", "", "Padding, one per spatial axis. Defaults to 0.")
	flagDType       = flag.String("dtype", "float32", "Data type of the tensors.")

	flagRuns = flag.Int("runs", 0, "If > 0, runs each kernel this many times on zeroed buffers and reports the average time.")
)

func main() {
	klog.InitFlags(nil)
	flag.Parse()
	config, err := configFromFlags()
	if err != nil {
		klog.Errorf("Invalid flags: %+v", err)
		os.Exit(1)
	}
	directions, err := parseDirections(*flagDirection)
	if err != nil {
		klog.Errorf("Invalid -direction: %v", err)
		os.Exit(1)
	}

	var engine backends.Engine
	err = exceptions.TryCatch[error](func() {
		if *flagEngine == "" {
			engine = backends.New()
		} else {
			engine = backends.NewWithConfig(*flagEngine)
		}
	})
	if err != nil {
		klog.Errorf("Failed to create engine: %+v", err)
		os.Exit(1)
	}
	defer engine.Finalize()

	for _, direction := range directions {
		if err := report(engine, direction, config); err != nil {
			klog.Errorf("%s kernel: %v", direction, err)
			os.Exit(1)
		}
	}
}

// parseInts parses a comma-separated list of integers. An empty value returns nil.
func parseInts(value string) ([]int, error) {
	value = strings.TrimSpace(value)
	if value == "" {
		return nil, nil
	}
	parts := strings.Split(value, ",")
	values := make([]int, len(parts))
	for i, part := range parts {
		v, err := strconv.Atoi(strings.TrimSpace(part))
		if err != nil {
			return nil, errors.Wrapf(err, "parsing %q", value)
		}
		values[i] = v
	}
	return values, nil
}

func configFromFlags() (config convkernel.Config, err error) {
	for _, f := range []struct {
		name   string
		value  string
		target *[]int
	}{
		{"source", *flagSource, &config.Source},
		{"weights", *flagWeights, &config.Weights},
		{"destination", *flagDestination, &config.Destination},
		{"strides", *flagStrides, &config.Strides},
		{"padding", *flagPadding, &config.Padding},
	} {
		if *f.target, err = parseInts(f.value); err != nil {
			return config, errors.WithMessagef(err, "-%s", f.name)
		}
	}
	var found bool
	config.DType, found = dtypes.MapOfNames[*flagDType]
	if !found {
		return config, errors.Errorf("-dtype=%q is not a known dtype", *flagDType)
	}
	return config, nil
}

func parseDirections(value string) ([]backends.Direction, error) {
	switch strings.ToLower(value) {
	case "forward":
		return []backends.Direction{backends.DirectionForward}, nil
	case "backward_data", "backward":
		return []backends.Direction{backends.DirectionBackwardData}, nil
	case "both", "":
		return []backends.Direction{backends.DirectionForward, backends.DirectionBackwardData}, nil
	}
	return nil, errors.Errorf("unknown direction %q", value)
}

func report(engine backends.Engine, direction backends.Direction, config convkernel.Config) error {
	build := convkernel.BuildForward
	if direction == backends.DirectionBackwardData {
		build = convkernel.BuildBackwardData
	}
	k, err := build(engine, config)
	if err != nil {
		return err
	}
	defer k.Finalize()

	fmt.Println(titleStyle.Render(fmt.Sprintf("%s kernel", direction)))
	summary := newPlanTable(lipgloss.Right, lipgloss.Left)
	summary.Row(false, "engine", fmt.Sprintf("%s (%s)", engine.Name(), engine.Description()))
	summary.Row(false, "problem", k.Problem().String())
	summary.Row(false, "output dims", fmt.Sprintf("%v", k.OutputDims(0)))
	summary.Row(false, "conversions", humanize.Comma(int64(k.NumConversions())))
	summary.Row(false, "scratch", humanize.Bytes(uint64(k.ScratchBytes())))
	fmt.Println(summary.Table.Render())

	steps := newPlanTable(lipgloss.Right, lipgloss.Left)
	steps.Table.Headers("#", "Step", "Slot", "From", "To", "Scratch")
	for stepIdx, step := range k.Steps() {
		if step.Kind == convkernel.StepConversion {
			i := step.Input
			steps.Row(true, strconv.Itoa(stepIdx), step.String(), k.InputSlot(i).String(),
				k.InputLayout(i).String(), k.RequiredInputLayout(i).String(),
				humanize.Bytes(uint64(k.ScratchElements(i))*uint64(k.InputShape(i).DType.Memory())))
			continue
		}
		inputs := make([]string, k.NumInputs())
		for i := range inputs {
			inputs[i] = fmt.Sprintf("%s=%s", k.InputSlot(i), k.RequiredInputLayout(i))
		}
		steps.Row(false, strconv.Itoa(stepIdx), step.String(), k.OutputSlot(0).String(),
			strings.Join(inputs, ", "), k.OutputLayout(0).String(), "-")
	}
	fmt.Println(steps.Table.Render())

	if *flagRuns > 0 {
		elapsed, err := timeRuns(k, *flagRuns)
		if err != nil {
			return err
		}
		fmt.Printf("    %s runs, %s per run\n", humanize.Comma(int64(*flagRuns)), elapsed)
	}
	return nil
}

// timeRuns runs the kernel on zeroed buffers and returns the average time per run.
func timeRuns(k *convkernel.Kernel, runs int) (time.Duration, error) {
	operand := make([]float32, k.InputShape(0).Size())
	weights := make([]float32, k.InputShape(1).Size())
	output := make([]float32, k.OutputShape(0).Size())
	start := time.Now()
	for range runs {
		if err := k.Run(operand, weights, output); err != nil {
			return 0, err
		}
	}
	return time.Since(start) / time.Duration(runs), nil
}
