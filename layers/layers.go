// Package layers implements parameter-free GoMLX layers that transform the layout of a tensor.
//
//   - Layer: the capability shared by the layers, a static output shape computation and the graph
//     building forward function.
//   - SplitReshape: splits a tensor along one axis, concatenates the parts along another, squeezes the
//     trailing unit axis and finally permutes the axes.
//
// As with other GoMLX graph building functions, Forward panics (with exceptions.Panicf) in case of errors.
// Use ForwardOrError if an error is preferred.
package layers

import (
	"github.com/gomlx/exceptions"
	. "github.com/gomlx/gomlx/pkg/core/graph"
	"github.com/gomlx/gomlx/pkg/core/shapes"
)

// Layer is a parameter-free transformation applied to a tensor during the forward pass.
type Layer interface {
	// ComputeOutputShape returns the shape Forward outputs for an input of the given shape.
	ComputeOutputShape(input shapes.Shape) (shapes.Shape, error)

	// Forward builds the transformation of x in x's graph.
	Forward(x *Node) *Node
}

// ForwardOrError calls layer.Forward, and returns any exception thrown while building the graph as an error.
func ForwardOrError(layer Layer, x *Node) (output *Node, err error) {
	err = exceptions.TryCatch[error](func() {
		output = layer.Forward(x)
	})
	return
}
