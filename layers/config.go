package layers

import (
	"slices"

	. "github.com/gomlx/gomlx/pkg/core/graph"
	"github.com/gomlx/gomlx/pkg/ml/context"
	"github.com/pkg/errors"
)

// Config holds the serializable configuration of a SplitReshape layer, so it can be saved along a model
// and recreated with FromConfig.
type Config struct {
	TargetShape []int `json:"target_shape"`
	SplitAxis   int   `json:"split_axis"`
	ConcatAxis  int   `json:"concat_axis"`
	Permutation []int `json:"permutation,omitempty"`
}

// Config returns the layer configuration.
func (l *SplitReshape) Config() Config {
	return Config{
		TargetShape: slices.Clone(l.targetShape),
		SplitAxis:   l.splitAxis,
		ConcatAxis:  l.concatAxis,
		Permutation: slices.Clone(l.permutation),
	}
}

// FromConfig recreates a SplitReshape layer from its configuration.
func FromConfig(config Config) (*SplitReshape, error) {
	l, err := NewSplitReshape(config.TargetShape...)
	if err != nil {
		return nil, err
	}
	return l.WithSplitAxis(config.SplitAxis).
		WithConcatAxis(config.ConcatAxis).
		WithPermutation(config.Permutation...), nil
}

const (
	// ParamTargetShape is the context hyperparameter with the SplitReshape target shape ([]int), excluding
	// the batch axis. It is required by FromContext.
	ParamTargetShape = "split_reshape_target_shape"

	// ParamSplitAxis is the context hyperparameter with the SplitReshape split axis. Default is DefaultSplitAxis.
	ParamSplitAxis = "split_reshape_split_axis"

	// ParamConcatAxis is the context hyperparameter with the SplitReshape concatenation axis.
	// Default is DefaultConcatAxis.
	ParamConcatAxis = "split_reshape_concat_axis"

	// ParamPermutation is the context hyperparameter with the SplitReshape final permutation ([]int).
	// Default is DefaultPermutation.
	ParamPermutation = "split_reshape_permutation"
)

// FromContext creates a SplitReshape layer configured by the hyperparameters set in ctx:
// see ParamTargetShape, ParamSplitAxis, ParamConcatAxis and ParamPermutation.
func FromContext(ctx *context.Context) (*SplitReshape, error) {
	targetShape := context.GetParamOr(ctx, ParamTargetShape, []int(nil))
	if len(targetShape) == 0 {
		return nil, errors.Errorf("context hyperparameter %q (scope %q) must be set for a SplitReshape layer",
			ParamTargetShape, ctx.Scope())
	}
	return FromConfig(Config{
		TargetShape: targetShape,
		SplitAxis:   context.GetParamOr(ctx, ParamSplitAxis, DefaultSplitAxis),
		ConcatAxis:  context.GetParamOr(ctx, ParamConcatAxis, DefaultConcatAxis),
		Permutation: context.GetParamOr(ctx, ParamPermutation, DefaultPermutation),
	})
}

// SplitReshapeLayer creates a SplitReshape layer from the hyperparameters in ctx (see FromContext) and applies it to x.
//
// It panics if the hyperparameters are invalid or if x's shape is incompatible with them.
func SplitReshapeLayer(ctx *context.Context, x *Node) *Node {
	l, err := FromContext(ctx.In("split_reshape"))
	if err != nil {
		panic(errors.WithMessagef(err, "SplitReshapeLayer(x.shape=%s)", x.Shape()))
	}
	return l.Forward(x)
}
