// Package reshape resolves target shapes that may leave one dimension unknown.
//
// It mirrors numpy's handling of a -1 in a reshape: the unknown dimension is derived from the
// total number of elements of the input shape.
package reshape

import (
	"math"
	"slices"

	"github.com/gomlx/gomlx/pkg/core/shapes"
	"github.com/pkg/errors"
)

// UnknownDim marks a dimension in a target shape that should be inferred from the input size.
// Any negative dimension is treated as unknown.
const UnknownDim = -1

var (
	// ErrMultipleUnknownDimensions is returned when a target shape has more than one unknown dimension.
	ErrMultipleUnknownDimensions = errors.New("can only specify one unknown dimension")

	// ErrSizeMismatch is returned when the input and target shapes can't hold the same number of elements.
	ErrSizeMismatch = errors.New("total size of new array must be unchanged")
)

// mulDims returns a*b for non-negative a and b, or false if the product overflows an int.
func mulDims(a, b int) (int, bool) {
	if a != 0 && b > math.MaxInt/a {
		return 0, false
	}
	return a * b, true
}

// Size returns the number of elements of a shape with the given non-negative dimensions.
// The empty shape (a scalar) has size 1.
//
// It returns ErrSizeMismatch if the number of elements overflows an int.
func Size(dims []int) (int, error) {
	size := 1
	for _, dim := range dims {
		var ok bool
		size, ok = mulDims(size, dim)
		if !ok {
			return 0, errors.Wrapf(ErrSizeMismatch, "size of dimensions %v overflows int", dims)
		}
	}
	return size, nil
}

// CountUnknown returns the number of unknown dimensions in dims.
func CountUnknown(dims []int) int {
	count := 0
	for _, dim := range dims {
		if dim < 0 {
			count++
		}
	}
	return count
}

// HasUnknown returns whether any of the dims is an unknown dimension.
func HasUnknown(dims []int) bool {
	return CountUnknown(dims) > 0
}

// FixUnknownDimension returns targetDims with its unknown dimension (if any) replaced by the value
// that makes its size match the size of inputDims.
//
// It returns ErrMultipleUnknownDimensions if targetDims has more than one unknown dimension, and
// ErrSizeMismatch if the sizes can't be matched. Neither input slice is modified.
func FixUnknownDimension(inputDims, targetDims []int) ([]int, error) {
	known, unknownIdx := 1, -1
	for idx, dim := range targetDims {
		if dim < 0 {
			if unknownIdx != -1 {
				return nil, errors.Wrapf(ErrMultipleUnknownDimensions,
					"target dimensions %v have unknown dimensions at axes %d and %d", targetDims, unknownIdx, idx)
			}
			unknownIdx = idx
			continue
		}
		var ok bool
		known, ok = mulDims(known, dim)
		if !ok {
			return nil, errors.Wrapf(ErrSizeMismatch, "size of target dimensions %v overflows int", targetDims)
		}
	}

	total, err := Size(inputDims)
	if err != nil {
		return nil, errors.WithMessagef(err, "input dimensions of reshape to %v", targetDims)
	}
	resolved := slices.Clone(targetDims)
	if unknownIdx != -1 {
		if known == 0 || total%known != 0 {
			return nil, errors.Wrapf(ErrSizeMismatch,
				"input dimensions %v (size %d) can't be reshaped to %v", inputDims, total, targetDims)
		}
		resolved[unknownIdx] = total / known
	} else if total != known {
		return nil, errors.Wrapf(ErrSizeMismatch,
			"input dimensions %v (size %d) don't match target dimensions %v (size %d)", inputDims, total, targetDims, known)
	}
	return resolved, nil
}

// ResolveShape resolves targetDims against the dimensions of input, and returns the resolved shape
// with the same dtype as input.
func ResolveShape(input shapes.Shape, targetDims []int) (shapes.Shape, error) {
	dims, err := FixUnknownDimension(input.Dimensions, targetDims)
	if err != nil {
		return shapes.Shape{}, err
	}
	return shapes.Make(input.DType, dims...), nil
}

// ResolveBatched resolves targetDims against all but the first (batch) axis of input.
// The batch axis is preserved as the first axis of the returned shape.
func ResolveBatched(input shapes.Shape, targetDims []int) (shapes.Shape, error) {
	if input.Rank() < 1 {
		return shapes.Shape{}, errors.Errorf("input shape %s has no batch axis", input)
	}
	dims, err := FixUnknownDimension(input.Dimensions[1:], targetDims)
	if err != nil {
		return shapes.Shape{}, errors.WithMessagef(err, "resolving shape for batched input %s", input)
	}
	return shapes.Make(input.DType, append([]int{input.Dimensions[0]}, dims...)...), nil
}
