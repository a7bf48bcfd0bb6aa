package cpu

import (
	"fmt"

	"github.com/quanta-ml/quanta/internal/tensor"
)

// Reshape returns a tensor with new shape sharing the input's storage.
func (cpu *Backend) Reshape(t *tensor.RawTensor, newShape tensor.Shape) *tensor.RawTensor {
	if newShape.NumElements() != t.NumElements() {
		panic(fmt.Sprintf("reshape: cannot reshape %v into %v", t.Shape(), newShape))
	}
	return t.View(newShape)
}

// Transpose permutes dimensions. With no axes all dimensions are reversed.
// The result is materialized contiguously.
func (cpu *Backend) Transpose(t *tensor.RawTensor, axes ...int) *tensor.RawTensor {
	shape := t.Shape()
	ndim := len(shape)

	if len(axes) == 0 {
		axes = make([]int, ndim)
		for i := range axes {
			axes[i] = ndim - 1 - i
		}
	}
	if len(axes) != ndim {
		panic(fmt.Sprintf("transpose: expected %d axes, got %d", ndim, len(axes)))
	}

	seen := make([]bool, ndim)
	outShape := make(tensor.Shape, ndim)
	for i, ax := range axes {
		if ax < 0 || ax >= ndim || seen[ax] {
			panic(fmt.Sprintf("transpose: invalid axes %v for shape %v", axes, shape))
		}
		seen[ax] = true
		outShape[i] = shape[ax]
	}

	result := tensor.MustRaw(outShape, t.DType(), cpu.device)
	in, out := t.AsFloat32(), result.AsFloat32()

	inStrides := shape.ComputeStrides()
	outStrides := outShape.ComputeStrides()

	for i := range out {
		rem := i
		srcIdx := 0
		for d := 0; d < ndim; d++ {
			coord := rem / outStrides[d]
			rem %= outStrides[d]
			srcIdx += coord * inStrides[axes[d]]
		}
		out[i] = in[srcIdx]
	}
	return result
}
