package layers

import (
	"fmt"
	"slices"

	"github.com/gomlx/exceptions"
	. "github.com/gomlx/gomlx/pkg/core/graph"
	"github.com/gomlx/gomlx/pkg/core/shapes"
	"github.com/gomlx/splitreshape/reshape"
	"github.com/pkg/errors"
	"k8s.io/klog/v2"
)

const (
	// DefaultSplitAxis is the axis split into unit slices: the channels axis of a [batch, height, width, channels] input.
	DefaultSplitAxis = 3

	// DefaultConcatAxis is the axis where the slices are concatenated: the height axis of a
	// [batch, height, width, channels] input.
	DefaultConcatAxis = 1
)

// DefaultPermutation is applied after squeezing the trailing unit axis: it swaps the last two axes of a rank-3 tensor.
var DefaultPermutation = []int{0, 2, 1}

// SplitReshape is a Layer that rearranges a tensor in 4 steps:
//
//  1. Splits the input along SplitAxis into slices of dimension 1.
//  2. Concatenates the slices along ConcatAxis.
//  3. Squeezes the last axis, which must have dimension 1.
//  4. Transposes the axes with Permutation (if not empty).
//
// With the defaults, an input shaped [batch, height, width, channels] becomes [batch, width, channels*height].
//
// The target shape, which may hold one reshape.UnknownDim, describes the output shape per example (excluding
// the batch axis). It's used by ComputeOutputShape, and Forward checks that the output matches it.
//
// SplitReshape is immutable: the With* methods return modified copies.
type SplitReshape struct {
	targetShape []int
	splitAxis   int
	concatAxis  int
	permutation []int
}

var _ Layer = (*SplitReshape)(nil)

// NewSplitReshape creates a SplitReshape layer with the given target shape (excluding the batch axis) and the
// default axes configuration.
//
// It returns an error if targetShape has more than one unknown dimension.
func NewSplitReshape(targetShape ...int) (*SplitReshape, error) {
	if reshape.CountUnknown(targetShape) > 1 {
		return nil, errors.Wrapf(reshape.ErrMultipleUnknownDimensions, "NewSplitReshape(targetShape=%v)", targetShape)
	}
	return &SplitReshape{
		targetShape: slices.Clone(targetShape),
		splitAxis:   DefaultSplitAxis,
		concatAxis:  DefaultConcatAxis,
		permutation: slices.Clone(DefaultPermutation),
	}, nil
}

// clone returns a deep copy of l.
func (l *SplitReshape) clone() *SplitReshape {
	return &SplitReshape{
		targetShape: slices.Clone(l.targetShape),
		splitAxis:   l.splitAxis,
		concatAxis:  l.concatAxis,
		permutation: slices.Clone(l.permutation),
	}
}

// WithSplitAxis returns a copy of the layer that splits along axis. Negative values count from the end.
// The default is DefaultSplitAxis.
func (l *SplitReshape) WithSplitAxis(axis int) *SplitReshape {
	c := l.clone()
	c.splitAxis = axis
	return c
}

// WithConcatAxis returns a copy of the layer that concatenates along axis. Negative values count from the end.
// The default is DefaultConcatAxis.
func (l *SplitReshape) WithConcatAxis(axis int) *SplitReshape {
	c := l.clone()
	c.concatAxis = axis
	return c
}

// WithPermutation returns a copy of the layer that transposes the squeezed tensor with the given permutation.
// An empty permutation disables the transposition. The default is DefaultPermutation.
func (l *SplitReshape) WithPermutation(permutation ...int) *SplitReshape {
	c := l.clone()
	c.permutation = nil
	if len(permutation) > 0 {
		c.permutation = slices.Clone(permutation)
	}
	return c
}

// TargetShape returns a copy of the configured target shape.
func (l *SplitReshape) TargetShape() []int { return slices.Clone(l.targetShape) }

// String implements fmt.Stringer.
func (l *SplitReshape) String() string {
	return fmt.Sprintf("SplitReshape(target=%v, splitAxis=%d, concatAxis=%d, permutation=%v)",
		l.targetShape, l.splitAxis, l.concatAxis, l.permutation)
}

// ComputeOutputShape returns the input's batch axis followed by the target shape, with its unknown dimension
// (if any) resolved against the remaining axes of input.
func (l *SplitReshape) ComputeOutputShape(input shapes.Shape) (shapes.Shape, error) {
	output, err := reshape.ResolveBatched(input, l.targetShape)
	if err != nil {
		return shapes.Shape{}, errors.WithMessagef(err, "%s.ComputeOutputShape(%s)", l, input)
	}
	return output, nil
}

// adjustAxis converts a negative axis to its positive counterpart, and checks it's within the rank.
func adjustAxis(axis, rank int) (int, error) {
	adjusted := axis
	if adjusted < 0 {
		adjusted += rank
	}
	if adjusted < 0 || adjusted >= rank {
		return 0, errors.Errorf("axis %d out-of-range for rank %d", axis, rank)
	}
	return adjusted, nil
}

// ForwardDims returns the dimensions Forward outputs for an input with the given dimensions.
// It doesn't take the target shape into account, see ComputeOutputShape for that.
func (l *SplitReshape) ForwardDims(inputDims []int) ([]int, error) {
	rank := len(inputDims)
	if rank < 2 {
		return nil, errors.Errorf("%s requires an input of rank >= 2, got dimensions %v", l, inputDims)
	}
	splitAxis, err := adjustAxis(l.splitAxis, rank)
	if err != nil {
		return nil, errors.WithMessagef(err, "%s invalid split axis", l)
	}
	concatAxis, err := adjustAxis(l.concatAxis, rank)
	if err != nil {
		return nil, errors.WithMessagef(err, "%s invalid concat axis", l)
	}

	dims := slices.Clone(inputDims)
	numSplits := dims[splitAxis]
	if numSplits == 0 {
		return nil, errors.Errorf("%s can't split axis %d of dimension 0 (input dimensions %v)", l, splitAxis, inputDims)
	}
	dims[splitAxis] = 1
	dims[concatAxis] *= numSplits

	if dims[rank-1] != 1 {
		return nil, errors.Errorf("%s can only squeeze the last axis if it has dimension 1, got dimensions %v "+
			"after split/concatenate (input dimensions %v)", l, dims, inputDims)
	}
	dims = dims[:rank-1]

	if len(l.permutation) == 0 {
		return dims, nil
	}
	if len(l.permutation) != len(dims) {
		return nil, errors.Errorf("%s permutation must have one value per axis of the squeezed tensor, "+
			"got dimensions %v", l, dims)
	}
	permuted := make([]int, len(dims))
	used := make([]bool, len(dims))
	for ii, axis := range l.permutation {
		if axis < 0 || axis >= len(dims) || used[axis] {
			return nil, errors.Errorf("%s permutation is not valid for squeezed dimensions %v", l, dims)
		}
		used[axis] = true
		permuted[ii] = dims[axis]
	}
	return permuted, nil
}

// Forward implements Layer. It panics if the input shape isn't compatible with the layer configuration,
// or if the output shape doesn't match the target shape.
func (l *SplitReshape) Forward(x *Node) *Node {
	outputDims, err := l.ForwardDims(x.Shape().Dimensions)
	if err != nil {
		panic(errors.WithMessagef(err, "SplitReshape.Forward(x.shape=%s)", x.Shape()))
	}
	declared, err := l.ComputeOutputShape(x.Shape())
	if err != nil {
		panic(errors.WithMessagef(err, "SplitReshape.Forward(x.shape=%s)", x.Shape()))
	}
	if !slices.Equal(declared.Dimensions, outputDims) {
		exceptions.Panicf("%s: output dimensions %v for input %s don't match the target shape, resolved to %s",
			l, outputDims, x.Shape(), declared)
	}
	if klog.V(1).Enabled() {
		klog.Infof("%s: %s -> %s", l, x.Shape(), declared)
	}

	output := splitConcatenate(x, AdjustAxisToOperandRank(x, l.splitAxis), AdjustAxisToOperandRank(x, l.concatAxis))
	output = Squeeze(output, -1)
	if len(l.permutation) > 0 {
		output = TransposeAllAxes(output, l.permutation...)
	}
	return output
}

// splitConcatenate splits x along splitAxis in unit slices and concatenates them along concatAxis.
func splitConcatenate(x *Node, splitAxis, concatAxis int) *Node {
	parts := Split(x, splitAxis, x.Shape().Dim(splitAxis))
	return Concatenate(parts, concatAxis)
}
