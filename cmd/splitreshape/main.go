// splitreshape resolves the output shape of a SplitReshape layer and, optionally, runs it on an
// example input.
//
// Example:
//
//	splitreshape --input_shape=2,2,3,2 --target_shape=3,-1 --run
package main

import (
	"flag"
	"fmt"
	"strconv"
	"strings"

	"github.com/gomlx/exceptions"
	"github.com/gomlx/gomlx/backends"
	_ "github.com/gomlx/gomlx/backends/default"
	"github.com/gomlx/gomlx/pkg/core/dtypes"
	. "github.com/gomlx/gomlx/pkg/core/graph"
	"github.com/gomlx/gomlx/pkg/core/shapes"
	"github.com/gomlx/gomlx/pkg/core/tensors"
	"github.com/gomlx/splitreshape/layers"
	"github.com/gomlx/splitreshape/reshape"
	"github.com/janpfeifer/must"
	"github.com/pkg/errors"
	"k8s.io/klog/v2"
)

var (
	flagInputShape  = flag.String("input_shape", "", "Comma separated input dimensions, including the batch axis, e.g. \"2,2,3,2\"")
	flagTargetShape = flag.String("target_shape", "", "Comma separated target dimensions, excluding the batch axis. One of them can be -1.")
	flagSplitAxis   = flag.Int("split_axis", layers.DefaultSplitAxis, "Axis split into unit slices.")
	flagConcatAxis  = flag.Int("concat_axis", layers.DefaultConcatAxis, "Axis where the slices are concatenated.")
	flagPermutation = flag.String("permutation", formatDims(layers.DefaultPermutation), "Comma separated permutation applied after squeezing the last axis. Empty to disable.")
	flagRun         = flag.Bool("run", false, "Run the layer on an input with sequential values and print the output.")
)

// formatDims formats dims as a comma separated list of integers, the format accepted by parseDims.
func formatDims(dims []int) string {
	parts := make([]string, len(dims))
	for ii, dim := range dims {
		parts[ii] = strconv.Itoa(dim)
	}
	return strings.Join(parts, ",")
}

// parseDims parses a comma separated list of integers. Spaces around the values are ignored,
// and an empty value returns no dimensions.
func parseDims(name, value string) ([]int, error) {
	value = strings.TrimSpace(value)
	if value == "" {
		return nil, nil
	}
	parts := strings.Split(value, ",")
	dims := make([]int, len(parts))
	for ii, part := range parts {
		dim, err := strconv.Atoi(strings.TrimSpace(part))
		if err != nil {
			return nil, errors.Wrapf(err, "failed to parse --%s=%q", name, value)
		}
		dims[ii] = dim
	}
	return dims, nil
}

func main() {
	klog.InitFlags(nil)
	flag.Parse()

	inputDims := must.M1(parseDims("input_shape", *flagInputShape))
	targetDims := must.M1(parseDims("target_shape", *flagTargetShape))
	permutation := must.M1(parseDims("permutation", *flagPermutation))
	if len(inputDims) == 0 || len(targetDims) == 0 {
		klog.Fatalf("Both --input_shape and --target_shape must be set")
	}

	l, err := layers.FromConfig(layers.Config{
		TargetShape: targetDims,
		SplitAxis:   *flagSplitAxis,
		ConcatAxis:  *flagConcatAxis,
		Permutation: permutation,
	})
	if err != nil {
		klog.Fatalf("Invalid layer configuration: %+v", err)
	}
	klog.V(1).Infof("Layer: %s", l)

	inputSize, err := reshape.Size(inputDims)
	if err != nil {
		klog.Fatalf("Invalid --input_shape: %+v", err)
	}
	inputShape := shapes.Make(dtypes.Float32, inputDims...)
	outputShape, err := l.ComputeOutputShape(inputShape)
	if err != nil {
		klog.Fatalf("Failed to compute output shape: %+v", err)
	}
	forwardDims, err := l.ForwardDims(inputDims)
	if err != nil {
		klog.Fatalf("Input shape not supported: %+v", err)
	}
	fmt.Printf("Input shape:  %s (%d elements)\n", inputShape, inputSize)
	fmt.Printf("Output shape: %s\n", outputShape)
	if !outputShape.Equal(shapes.Make(dtypes.Float32, forwardDims...)) {
		klog.Warningf("Layer outputs dimensions %v, which don't match the target shape %v", forwardDims, targetDims)
	}
	if !*flagRun {
		return
	}

	backend := backends.MustNew()
	klog.Infof("Backend: %s", backend.Name())
	var output *tensors.Tensor
	err = exceptions.TryCatch[error](func() {
		exec := MustNewExec(backend, func(g *Graph) *Node {
			return l.Forward(IotaFull(g, inputShape))
		})
		defer exec.Finalize()
		output = exec.MustExec()[0]
	})
	if err != nil {
		klog.Fatalf("Failed to run layer: %+v", err)
	}
	fmt.Printf("Output:\n%s\n", output.GoStr())
}
