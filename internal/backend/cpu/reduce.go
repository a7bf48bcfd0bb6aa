package cpu

import (
	"fmt"

	"github.com/quanta-ml/quanta/internal/tensor"
)

// SumDim sums along the given dimension. With keepDim the reduced dimension
// stays as size 1, otherwise it is removed.
func (cpu *Backend) SumDim(x *tensor.RawTensor, dim int, keepDim bool) *tensor.RawTensor {
	shape := x.Shape()
	if dim < 0 || dim >= len(shape) {
		panic(fmt.Sprintf("sumdim: invalid dimension %d for shape %v", dim, shape))
	}

	// outer x reduced x inner element layout around the reduced dimension.
	outer, inner := 1, 1
	for d := 0; d < dim; d++ {
		outer *= shape[d]
	}
	for d := dim + 1; d < len(shape); d++ {
		inner *= shape[d]
	}
	reduced := shape[dim]

	result := tensor.MustRaw(reducedShape(shape, dim, keepDim), x.DType(), cpu.device)
	in, out := x.AsFloat32(), result.AsFloat32()

	for o := 0; o < outer; o++ {
		for i := 0; i < inner; i++ {
			var sum float32
			base := o * reduced * inner
			for r := 0; r < reduced; r++ {
				sum += in[base+r*inner+i]
			}
			out[o*inner+i] = sum
		}
	}
	return result
}

// MeanDim averages along the given dimension.
func (cpu *Backend) MeanDim(x *tensor.RawTensor, dim int, keepDim bool) *tensor.RawTensor {
	result := cpu.SumDim(x, dim, keepDim)
	count := float32(x.Shape()[dim])
	out := result.AsFloat32()
	for i := range out {
		out[i] /= count
	}
	return result
}

// Argmax returns int32 indices of the maximum value along a dimension.
func (cpu *Backend) Argmax(x *tensor.RawTensor, dim int) *tensor.RawTensor {
	shape := x.Shape()
	if dim < 0 || dim >= len(shape) {
		panic(fmt.Sprintf("argmax: invalid dimension %d for shape %v", dim, shape))
	}

	outer, inner := 1, 1
	for d := 0; d < dim; d++ {
		outer *= shape[d]
	}
	for d := dim + 1; d < len(shape); d++ {
		inner *= shape[d]
	}
	reduced := shape[dim]

	result := tensor.MustRaw(reducedShape(shape, dim, false), tensor.Int32, cpu.device)
	in, out := x.AsFloat32(), result.AsInt32()

	for o := 0; o < outer; o++ {
		for i := 0; i < inner; i++ {
			base := o * reduced * inner
			best, bestIdx := in[base+i], 0
			for r := 1; r < reduced; r++ {
				if v := in[base+r*inner+i]; v > best {
					best, bestIdx = v, r
				}
			}
			out[o*inner+i] = int32(bestIdx)
		}
	}
	return result
}

// reducedShape computes the result shape of a reduction along dim.
// Reducing the only dimension without keepDim yields a scalar-like [1].
func reducedShape(shape tensor.Shape, dim int, keepDim bool) tensor.Shape {
	if keepDim {
		out := shape.Clone()
		out[dim] = 1
		return out
	}
	out := make(tensor.Shape, 0, len(shape)-1)
	for d, size := range shape {
		if d != dim {
			out = append(out, size)
		}
	}
	if len(out) == 0 {
		out = tensor.Shape{1}
	}
	return out
}
