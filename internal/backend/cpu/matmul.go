package cpu

import (
	"fmt"

	"github.com/quanta-ml/quanta/internal/parallel"
	"github.com/quanta-ml/quanta/internal/tensor"
)

// MatMul performs 2D matrix multiplication: [M,K] @ [K,N] -> [M,N].
// Rows of the result are computed in parallel with an i-k-j loop order for
// cache-friendly access to b.
func (cpu *Backend) MatMul(a, b *tensor.RawTensor) *tensor.RawTensor {
	aShape, bShape := a.Shape(), b.Shape()
	if len(aShape) != 2 || len(bShape) != 2 {
		panic(fmt.Sprintf("matmul: expected 2D tensors, got %v @ %v", aShape, bShape))
	}
	if aShape[1] != bShape[0] {
		panic(fmt.Sprintf("matmul: inner dimensions do not match: %v @ %v", aShape, bShape))
	}

	m, k, n := aShape[0], aShape[1], bShape[1]
	result := tensor.MustRaw(tensor.Shape{m, n}, a.DType(), cpu.device)

	av, bv := a.AsFloat32(), b.AsFloat32()
	out := result.AsFloat32()

	parallel.For(m, func(i int) {
		row := out[i*n : (i+1)*n]
		for kk := 0; kk < k; kk++ {
			aik := av[i*k+kk]
			if aik == 0 {
				continue
			}
			bRow := bv[kk*n : (kk+1)*n]
			for j := range row {
				row[j] += aik * bRow[j]
			}
		}
	})

	return result
}
