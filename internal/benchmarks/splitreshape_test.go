// Package benchmarks compares the SplitReshape layer executed by GoMLX with a pure Go implementation.
//
// The benchmarks are disabled unless --bench_duration is set, e.g.:
//
//	go test ./internal/benchmarks/ -test.run=Bench -bench_duration=10s
package benchmarks

import (
	"flag"
	"fmt"
	"math/rand/v2"
	"runtime"
	"testing"

	"github.com/gomlx/exceptions"
	"github.com/gomlx/gomlx/pkg/core/dtypes"
	. "github.com/gomlx/gomlx/pkg/core/graph"
	"github.com/gomlx/gomlx/pkg/core/graph/graphtest"
	"github.com/gomlx/gomlx/pkg/core/shapes"
	"github.com/gomlx/gomlx/pkg/core/tensors"
	"github.com/gomlx/splitreshape/layers"
	"github.com/janpfeifer/go-benchmarks"
	"github.com/janpfeifer/must"
	"github.com/stretchr/testify/require"
)

var (
	flagBenchDuration = flag.Duration("bench_duration", 0, "Benchmark duration, typically use 10 seconds. If left as 0, benchmark tests are disabled")
)

// SplitReshapeShapes are the [batch, height, width, channels] input shapes benchmarked.
var SplitReshapeShapes = []shapes.Shape{
	shapes.Make(dtypes.Float32, 1, 8, 8, 4),
	shapes.Make(dtypes.Float32, 16, 32, 32, 8),
	shapes.Make(dtypes.Float32, 64, 32, 128, 16),
}

// pureGoSplitReshape is the reference for SplitReshape with its default axes: input
// [batch, height, width, channels] becomes [batch, width, channels*height], with
// output[b, w, c*height+h] = input[b, h, w, c].
func pureGoSplitReshape(dims []int, input, output []float32) {
	batch, height, width, channels := dims[0], dims[1], dims[2], dims[3]
	for b := range batch {
		for h := range height {
			for w := range width {
				inBase := ((b*height+h)*width + w) * channels
				outBase := (b*width + w) * channels * height
				for c := range channels {
					output[outBase+c*height+h] = input[inBase+c]
				}
			}
		}
	}
}

// newSplitReshapeExec returns an executor of the default SplitReshape layer for inputs shaped
// [batch, height, width, channels].
func newSplitReshapeExec(shape shapes.Shape) *Exec {
	l := must.M1(layers.NewSplitReshape(shape.Dim(2), -1))
	return MustNewExec(graphtest.BuildTestBackend(), func(x *Node) *Node {
		return l.Forward(x)
	})
}

func randomInput(rng *rand.Rand, shape shapes.Shape) *tensors.Tensor {
	input := tensors.FromShape(shape)
	tensors.MutableFlatData(input, func(flat []float32) {
		for ii := range flat {
			flat[ii] = rng.Float32()
		}
	})
	return input
}

func TestSplitReshapeMatchesPureGo(t *testing.T) {
	rng := rand.New(rand.NewPCG(42, 0))
	for range 5 {
		shape := shapes.Make(dtypes.Float32, 1+rng.IntN(3), 1+rng.IntN(5), 1+rng.IntN(5), 1+rng.IntN(5))
		input := randomInput(rng, shape)
		exec := newSplitReshapeExec(shape)
		output := exec.MustExec(input)[0]
		require.NoErrorf(t, output.Shape().CheckDims(shape.Dim(0), shape.Dim(2), shape.Dim(3)*shape.Dim(1)),
			"input shape %s", shape)

		want := make([]float32, shape.Size())
		tensors.ConstFlatData(input, func(flat []float32) {
			pureGoSplitReshape(shape.Dimensions, flat, want)
		})
		tensors.ConstFlatData(output, func(flat []float32) {
			require.Equalf(t, want, flat, "input shape %s", shape)
		})
		exec.Finalize()
	}
}

func TestBenchSplitReshape(t *testing.T) {
	if testing.Short() || *flagBenchDuration == 0 {
		fmt.Printf("Skipping SplitReshape benchmark test: --short is set or --bench_duration is not set\n")
		t.SkipNow()
	}
	t.Run("GoMLX", benchGoMLXSplitReshape)
	t.Run("PureGo", benchPureGoSplitReshape)
}

func benchGoMLXSplitReshape(t *testing.T) {
	rng := rand.New(rand.NewPCG(42, 0))
	for shapeIdx, shape := range SplitReshapeShapes {
		exec := newSplitReshapeExec(shape)
		input := randomInput(rng, shape)
		benchFn := benchmarks.NamedFunction{
			Name: fmt.Sprintf("%s/%s", t.Name(), shape),
			Func: func() {
				output := exec.MustExec(input)[0]
				// Force transfer to local memory: this should be part of the cost.
				tensors.ConstFlatData(output, func(flat []float32) {
					_ = flat[0]
				})
				output.FinalizeAll()
			},
		}

		runtime.LockOSThread()
		benchmarks.New(benchFn).
			WithWarmUps(128).
			WithDuration(*flagBenchDuration).
			WithHeader(shapeIdx == 0).
			Done()
		runtime.UnlockOSThread()
		exec.Finalize()
	}
}

func benchPureGoSplitReshape(t *testing.T) {
	rng := rand.New(rand.NewPCG(42, 0))
	for shapeIdx, shape := range SplitReshapeShapes {
		input := make([]float32, shape.Size())
		for ii := range input {
			input[ii] = rng.Float32()
		}
		output := make([]float32, shape.Size())
		benchFn := benchmarks.NamedFunction{
			Name: fmt.Sprintf("%s/%s", t.Name(), shape),
			Func: func() {
				pureGoSplitReshape(shape.Dimensions, input, output)
				if output[0] != input[0] {
					exceptions.Panicf("pureGoSplitReshape: output[0]=%g, wanted %g", output[0], input[0])
				}
			},
		}
		benchmarks.New(benchFn).
			WithWarmUps(16).
			WithDuration(*flagBenchDuration).
			WithHeader(shapeIdx == 0).
			Done()
	}
}
